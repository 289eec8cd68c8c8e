package core

import (
	"errors"
	"fmt"
	"slices"

	"github.com/paulmach/orb"
)

// ErrGraphFrozen is returned by mutations once a simulation has been
// prepared on the graph.
var ErrGraphFrozen = errors.New("graph topology is frozen")

// Graph owns all nodes and directed edges.
type Graph struct {
	nodes    []*Node
	nodeByID map[NodeID]*Node
	edges    []*DirectedEdge

	metersPerCell float64
	frozen        bool
}

// NewGraph creates an empty graph. metersPerCell <= 0 selects
// DefaultMetersPerCell.
func NewGraph(metersPerCell float64) *Graph {
	if metersPerCell <= 0 {
		metersPerCell = DefaultMetersPerCell
	}
	return &Graph{
		nodeByID:      make(map[NodeID]*Node),
		metersPerCell: metersPerCell,
	}
}

// MetersPerCell returns the cell size used for geometry-derived lengths.
func (g *Graph) MetersPerCell() float64 { return g.metersPerCell }

// AddNode adds a vertex at the given position (meters).
func (g *Graph) AddNode(id NodeID, position orb.Point) (*Node, error) {
	if g.frozen {
		return nil, ErrGraphFrozen
	}
	if _, exists := g.nodeByID[id]; exists {
		return nil, fmt.Errorf("node %d already exists", id)
	}
	n := newNode(id, position)
	g.nodes = append(g.nodes, n)
	g.nodeByID[id] = n
	return n, nil
}

// AddEdge adds a directed edge between two existing nodes.
func (g *Graph) AddEdge(spec EdgeSpec) (*DirectedEdge, error) {
	if g.frozen {
		return nil, ErrGraphFrozen
	}
	origin, ok := g.nodeByID[spec.Origin]
	if !ok {
		return nil, fmt.Errorf("edge origin node %d not found", spec.Origin)
	}
	destination, ok := g.nodeByID[spec.Destination]
	if !ok {
		return nil, fmt.Errorf("edge destination node %d not found", spec.Destination)
	}
	if spec.MaxVelocity <= 0 {
		return nil, fmt.Errorf("edge %d->%d: max velocity must be positive, got %d", spec.Origin, spec.Destination, spec.MaxVelocity)
	}
	if spec.Cells < 0 {
		return nil, fmt.Errorf("edge %d->%d: cells must be non-negative, got %d", spec.Origin, spec.Destination, spec.Cells)
	}
	key := EdgeKey{Street: spec.StreetID, Origin: spec.Origin, Destination: spec.Destination}
	for _, e := range g.edges {
		if e.key == key {
			return nil, fmt.Errorf("edge %s already exists", key)
		}
	}

	e := newDirectedEdge(len(g.edges), spec, origin, destination, g.metersPerCell)
	g.edges = append(g.edges, e)
	origin.outgoing = append(origin.outgoing, e)
	destination.incoming = append(destination.incoming, e)
	return e, nil
}

// AddConnector registers a legal lane transition at the node both lanes meet.
func (g *Graph) AddConnector(from, to *Lane) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if from == nil || to == nil {
		return errors.New("connector lanes must not be nil")
	}
	return from.edge.destination.AddConnector(from, to)
}

// ConnectAll registers a connector from every incoming lane to every
// outgoing lane at every node. U-turns onto the reverse edge of the same
// street are skipped unless allowUTurns is set.
func (g *Graph) ConnectAll(allowUTurns bool) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	for _, n := range g.nodes {
		for _, in := range n.incoming {
			for _, out := range n.outgoing {
				if !allowUTurns && in.key.Street == out.key.Street && out.key.Destination == in.key.Origin {
					continue
				}
				for _, from := range in.lanes {
					for _, to := range out.lanes {
						if err := n.AddConnector(from, to); err != nil {
							return err
						}
					}
				}
			}
		}
	}
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodeByID[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []*DirectedEdge { return g.edges }

// Edge returns the edge with the given key.
func (g *Graph) Edge(key EdgeKey) (*DirectedEdge, bool) {
	for _, e := range g.edges {
		if e.key == key {
			return e, true
		}
	}
	return nil, false
}

// EdgeBetween returns the first edge from origin to destination.
func (g *Graph) EdgeBetween(origin, destination NodeID) (*DirectedEdge, bool) {
	n, ok := g.nodeByID[origin]
	if !ok {
		return nil, false
	}
	for _, e := range n.outgoing {
		if e.key.Destination == destination {
			return e, true
		}
	}
	return nil, false
}

// SortedNodes returns the nodes ordered by id.
func (g *Graph) SortedNodes() []*Node {
	out := slices.Clone(g.nodes)
	slices.SortFunc(out, func(a, b *Node) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return out
}

// Freeze forbids further topology changes.
func (g *Graph) Freeze() { g.frozen = true }

// Frozen reports whether the topology is frozen.
func (g *Graph) Frozen() bool { return g.frozen }

// Reset clears all lane occupancy and crossing state. Topology is kept.
func (g *Graph) Reset() {
	for _, e := range g.edges {
		e.Reset()
	}
	for _, n := range g.nodes {
		n.ClearCrossing()
	}
}

// SetMetersPerCell changes the cell size and re-derives every edge length.
func (g *Graph) SetMetersPerCell(metersPerCell float64) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if metersPerCell <= 0 {
		return fmt.Errorf("meters per cell must be positive, got %v", metersPerCell)
	}
	g.metersPerCell = metersPerCell
	for _, e := range g.edges {
		e.SetMetersPerCell(metersPerCell)
	}
	return nil
}
