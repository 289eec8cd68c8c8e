package core

import (
	"fmt"
	"slices"
	"sync"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
)

// NodeID identifies a graph vertex.
type NodeID uint64

// Node is a graph vertex. It owns its incoming and outgoing edge lists, the
// connector table of legal lane-to-lane transitions and the crossing
// arbitration state.
type Node struct {
	id       NodeID
	position orb.Point

	incoming []*DirectedEdge
	outgoing []*DirectedEdge

	connectors map[*Lane][]*Lane

	mu         sync.RWMutex
	registered map[uint64]Crosser
	granted    map[uint64]struct{}
}

func newNode(id NodeID, position orb.Point) *Node {
	return &Node{
		id:         id,
		position:   position,
		connectors: make(map[*Lane][]*Lane),
		registered: make(map[uint64]Crosser),
		granted:    make(map[uint64]struct{}),
	}
}

// ID returns the node id.
func (n *Node) ID() NodeID { return n.id }

// Position returns the node coordinate in meters.
func (n *Node) Position() orb.Point { return n.position }

// Incoming returns the edges ending here, in insertion order.
func (n *Node) Incoming() []*DirectedEdge { return n.incoming }

// Outgoing returns the edges starting here, in insertion order.
func (n *Node) Outgoing() []*DirectedEdge { return n.outgoing }

func (n *Node) String() string { return fmt.Sprintf("node(%d)", n.id) }

// AddConnector allows vehicles on from to continue on to through this node.
func (n *Node) AddConnector(from, to *Lane) error {
	if from == nil || to == nil {
		return fmt.Errorf("node %d: connector lanes must not be nil", n.id)
	}
	if from.edge.destination != n {
		return fmt.Errorf("node %d: lane %s does not end here", n.id, from)
	}
	if to.edge.origin != n {
		return fmt.Errorf("node %d: lane %s does not start here", n.id, to)
	}
	targets := n.connectors[from]
	if slices.Contains(targets, to) {
		return nil
	}
	targets = append(targets, to)
	slices.SortFunc(targets, compareLanes)
	n.connectors[from] = targets
	return nil
}

func compareLanes(a, b *Lane) int {
	if a.edge.id != b.edge.id {
		return a.edge.id - b.edge.id
	}
	return a.index - b.index
}

// Connectors returns the lanes reachable from the given incoming lane.
func (n *Node) Connectors(from *Lane) []*Lane {
	return n.connectors[from]
}

// HasConnector reports whether from -> to is a legal transition.
func (n *Node) HasConnector(from, to *Lane) bool {
	return slices.Contains(n.connectors[from], to)
}

// ConnectorCount returns the number of registered lane transitions.
func (n *Node) ConnectorCount() int {
	total := 0
	for _, targets := range n.connectors {
		total += len(targets)
	}
	return total
}

// NextLane picks the lane of next a vehicle enters when leaving from: among
// the lanes reachable through a connector, the one with the most room at its
// entry, ties going to the lowest index. A nil from means the vehicle enters
// the graph here and may take any lane of next. Lane occupancy must not
// change while it runs.
func (n *Node) NextLane(from *Lane, next *DirectedEdge) (*Lane, bool) {
	candidates := n.entryLanes(from, next)
	if len(candidates) == 0 {
		return nil, false
	}
	return lo.MaxBy(candidates, func(a, b *Lane) bool {
		return a.MaxInsertionIndex() > b.MaxInsertionIndex()
	}), true
}

// Leads reports whether a vehicle on from may continue onto next here. It
// only consults the connector table.
func (n *Node) Leads(from *Lane, next *DirectedEdge) bool {
	return len(n.entryLanes(from, next)) > 0
}

func (n *Node) entryLanes(from *Lane, next *DirectedEdge) []*Lane {
	if next == nil || next.origin != n {
		return nil
	}
	if from == nil {
		return next.lanes
	}
	return lo.Filter(n.connectors[from], func(to *Lane, _ int) bool { return to.edge == next })
}

// Register records c as pending crosser for the next arbitration pass.
func (n *Node) Register(c Crosser) {
	n.mu.Lock()
	n.registered[c.ID()] = c
	n.mu.Unlock()
}

// Unregister removes a crosser together with any permission it held.
func (n *Node) Unregister(id uint64) {
	n.mu.Lock()
	delete(n.registered, id)
	delete(n.granted, id)
	n.mu.Unlock()
}

// IsRegistered reports whether the vehicle waits at this node.
func (n *Node) IsRegistered(id uint64) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.registered[id]
	return ok
}

// PermissionToCross reports whether the last arbitration pass granted the
// vehicle permission.
func (n *Node) PermissionToCross(id uint64) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.granted[id]
	return ok
}

// Registered returns the ids of pending crossers in ascending order.
func (n *Node) Registered() []uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]uint64, 0, len(n.registered))
	for id := range n.registered {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Granted returns the ids holding permission in ascending order.
func (n *Node) Granted() []uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]uint64, 0, len(n.granted))
	for id := range n.granted {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Update runs one arbitration pass over the registered crossers. Each crosser
// is asked for its lanes exactly once per pass. Losers get their priority
// counter incremented. It returns the granted ids in
// ascending order.
func (n *Node) Update(logic CrossingLogic) []uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	crossers := make([]Crosser, 0, len(n.registered))
	for _, c := range n.registered {
		crossers = append(crossers, c)
	}
	slices.SortFunc(crossers, func(a, b Crosser) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})

	// crossers with nowhere to go take no part and keep their counter
	contenders := make([]Crosser, 0, len(crossers))
	requests := make([]CrossingRequest, 0, len(crossers))
	for _, c := range crossers {
		from, to := c.CrossingLanes()
		if to == nil {
			continue
		}
		contenders = append(contenders, c)
		requests = append(requests, CrossingRequest{
			ID:       c.ID(),
			From:     from,
			To:       to,
			Priority: c.PriorityCounter(),
		})
	}

	granted := Arbitrate(n, requests, logic)

	n.granted = make(map[uint64]struct{}, len(granted))
	for _, id := range granted {
		n.granted[id] = struct{}{}
	}
	for _, c := range contenders {
		if _, ok := n.granted[c.ID()]; !ok {
			c.IncPriorityCounter()
		}
	}
	return granted
}

// ClearCrossing drops all registrations and permissions.
func (n *Node) ClearCrossing() {
	n.mu.Lock()
	n.registered = make(map[uint64]Crosser)
	n.granted = make(map[uint64]struct{})
	n.mu.Unlock()
}
