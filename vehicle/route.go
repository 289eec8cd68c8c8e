package vehicle

import (
	"fmt"
	"slices"

	"github.com/Readm/street_sim/core"
)

// Route is the consumable sequence of edges a vehicle drives along. The
// first edge is the one the vehicle spawns onto.
type Route struct {
	edges []*core.DirectedEdge
	next  int
}

// NewRoute creates a route over the given edges.
func NewRoute(edges ...*core.DirectedEdge) *Route {
	return &Route{edges: slices.Clone(edges)}
}

// Validate checks that consecutive edges meet at a node.
func (r *Route) Validate() error {
	for i := 1; i < len(r.edges); i++ {
		prev, cur := r.edges[i-1], r.edges[i]
		if prev.Destination() != cur.Origin() {
			return fmt.Errorf("route breaks between %s and %s", prev.Key(), cur.Key())
		}
	}
	return nil
}

// Peek returns the next edge without consuming it.
func (r *Route) Peek() (*core.DirectedEdge, bool) {
	if r.next >= len(r.edges) {
		return nil, false
	}
	return r.edges[r.next], true
}

// Pop consumes the next edge.
func (r *Route) Pop() (*core.DirectedEdge, bool) {
	e, ok := r.Peek()
	if ok {
		r.next++
	}
	return e, ok
}

// IsEmpty reports whether every edge has been consumed.
func (r *Route) IsEmpty() bool { return r.next >= len(r.edges) }

// Len returns the number of edges left.
func (r *Route) Len() int { return len(r.edges) - r.next }

// Remaining returns the edges not yet consumed.
func (r *Route) Remaining() []*core.DirectedEdge {
	return slices.Clone(r.edges[r.next:])
}

// Origin returns the node the route starts at, nil for an empty route.
func (r *Route) Origin() *core.Node {
	if len(r.edges) == 0 {
		return nil
	}
	return r.edges[0].Origin()
}

// Destination returns the node the route ends at, nil for an empty route.
func (r *Route) Destination() *core.Node {
	if len(r.edges) == 0 {
		return nil
	}
	return r.edges[len(r.edges)-1].Destination()
}

// Clone returns an unconsumed copy of the full route.
func (r *Route) Clone() *Route {
	return NewRoute(r.edges...)
}
