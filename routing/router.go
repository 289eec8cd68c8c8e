// Package routing computes routes over a street graph. The simulation only
// consumes the resulting edge sequences.
package routing

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/Readm/street_sim/core"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// ErrNoRoute is returned when the destination cannot be reached.
var ErrNoRoute = errors.New("no route")

// Weight assigns a traversal cost to an edge.
type Weight func(e *core.DirectedEdge) float64

// ByCells weighs an edge by its length in cells.
func ByCells(e *core.DirectedEdge) float64 { return float64(e.Length()) }

// ByTravelTime weighs an edge by the steps needed at its speed limit.
func ByTravelTime(e *core.DirectedEdge) float64 {
	return float64(e.Length()) / float64(e.MaxVelocity())
}

const weightTolerance = 1e-9

// Router answers shortest-route queries. It snapshots the graph topology at
// construction and never touches lanes or nodes afterwards, so it is safe
// for concurrent use.
type Router struct {
	graph  *core.Graph
	weight Weight

	// reversed holds one arc per node pair, pointing from destination to
	// origin, weighted with the cheapest parallel edge.
	reversed *simple.WeightedDirectedGraph

	mu    sync.Mutex
	trees map[core.NodeID]path.Shortest
}

// New builds a router over g. A nil weight selects ByCells.
func New(g *core.Graph, weight Weight) *Router {
	if weight == nil {
		weight = ByCells
	}
	r := &Router{
		graph:    g,
		weight:   weight,
		reversed: simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		trees:    make(map[core.NodeID]path.Shortest),
	}
	for _, n := range g.SortedNodes() {
		r.reversed.AddNode(simple.Node(int64(n.ID())))
	}
	for _, e := range g.Edges() {
		from, to := int64(e.Destination().ID()), int64(e.Origin().ID())
		if from == to {
			continue
		}
		w := weight(e)
		if cur, ok := r.reversed.Weight(from, to); ok && cur <= w {
			continue
		}
		r.reversed.SetWeightedEdge(r.reversed.NewWeightedEdge(simple.Node(from), simple.Node(to), w))
	}
	return r
}

// Route returns the cheapest edge sequence from origin to destination. Ties
// are broken towards the edge with the smallest key at every node, so the
// answer does not depend on map iteration inside the path search. An empty
// route is returned when origin equals destination.
func (r *Router) Route(origin, destination core.NodeID) ([]*core.DirectedEdge, error) {
	start, ok := r.graph.Node(origin)
	if !ok {
		return nil, fmt.Errorf("origin node %d not found", origin)
	}
	if _, ok := r.graph.Node(destination); !ok {
		return nil, fmt.Errorf("destination node %d not found", destination)
	}
	if origin == destination {
		return nil, nil
	}

	tree := r.treeTo(destination)
	remaining := func(n *core.Node) float64 { return tree.WeightTo(int64(n.ID())) }
	if math.IsInf(remaining(start), 1) {
		return nil, fmt.Errorf("%w from %d to %d", ErrNoRoute, origin, destination)
	}

	var route []*core.DirectedEdge
	visited := map[core.NodeID]bool{origin: true}
	for cur := start; cur.ID() != destination; {
		next := r.cheapestStep(cur, remaining)
		if next == nil || visited[next.Destination().ID()] {
			return nil, fmt.Errorf("%w from %d to %d: inconsistent distances at node %d", ErrNoRoute, origin, destination, cur.ID())
		}
		route = append(route, next)
		cur = next.Destination()
		visited[cur.ID()] = true
	}
	return route, nil
}

// Distance returns the cost of the cheapest route, +Inf if there is none.
func (r *Router) Distance(origin, destination core.NodeID) float64 {
	if origin == destination {
		return 0
	}
	return r.treeTo(destination).WeightTo(int64(origin))
}

func (r *Router) cheapestStep(cur *core.Node, remaining func(*core.Node) float64) *core.DirectedEdge {
	out := slices.Clone(cur.Outgoing())
	slices.SortFunc(out, func(a, b *core.DirectedEdge) int {
		ka, kb := a.Key(), b.Key()
		switch {
		case ka.Destination != kb.Destination:
			if ka.Destination < kb.Destination {
				return -1
			}
			return 1
		case ka.Street < kb.Street:
			return -1
		case ka.Street > kb.Street:
			return 1
		}
		return 0
	})
	target := remaining(cur)
	for _, e := range out {
		if e.Destination() == cur {
			continue
		}
		if math.Abs(r.weight(e)+remaining(e.Destination())-target) < weightTolerance {
			return e
		}
	}
	return nil
}

func (r *Router) treeTo(destination core.NodeID) path.Shortest {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tree, ok := r.trees[destination]; ok {
		return tree
	}
	tree := path.DijkstraFrom(simple.Node(int64(destination)), r.reversed)
	r.trees[destination] = tree
	return tree
}
