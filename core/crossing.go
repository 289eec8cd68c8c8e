package core

import (
	"math"
	"slices"
)

const geometryEpsilon = 1e-9

// laneSideOffset separates the incoming and outgoing lanes of one street arm
// around a node: traffic keeps to its driving side, so on a right-hand arm the
// outgoing lanes lie clockwise of the incoming ones.
const laneSideOffset = 1e-3

// CrossingLogic configures the arbitration rules applied at nodes.
type CrossingLogic struct {
	DrivingOnTheRight         bool `json:"drivingOnTheRight"`
	EdgePriorityEnabled       bool `json:"edgePriorityEnabled"`
	PriorityToTheRightEnabled bool `json:"priorityToTheRightEnabled"`
	// OnlyOneVehicleEnabled treats every pair of crossings as conflicting,
	// so at most one vehicle crosses a node per step.
	OnlyOneVehicleEnabled bool `json:"onlyOneVehicleEnabled"`
}

// DefaultCrossingLogic returns right-hand traffic with edge priority and
// priority to the right enabled.
func DefaultCrossingLogic() CrossingLogic {
	return CrossingLogic{
		DrivingOnTheRight:         true,
		EdgePriorityEnabled:       true,
		PriorityToTheRightEnabled: true,
	}
}

// Crosser is a vehicle asking a node for permission to cross it.
type Crosser interface {
	ID() uint64
	// CrossingLanes returns the lane the vehicle waits on and the lane it
	// wants to enter. from is nil for a vehicle entering the graph here; to
	// is nil when the vehicle has nowhere legal to go.
	CrossingLanes() (from, to *Lane)
	PriorityCounter() int
	IncPriorityCounter()
}

// CrossingRequest is one vehicle's pending crossing as seen by arbitration.
type CrossingRequest struct {
	ID       uint64
	From     *Lane
	To       *Lane
	Priority int // waiting counter
}

func (r CrossingRequest) spawning() bool { return r.From == nil }

// level is the street priority of the approach. A vehicle entering the graph
// competes at the level of the street it enters.
func (r CrossingRequest) level(logic CrossingLogic) int {
	if !logic.EdgePriorityEnabled {
		return 0
	}
	if r.spawning() {
		return r.To.edge.priority
	}
	return r.From.edge.priority
}

// Arbitrate decides which requests may cross node in this pass. The result
// depends only on the request contents, never on their input order.
//
// Pairwise, a request beats a conflicting one by (a) street priority level,
// (b) waiting counter, (c) priority to the right, (d) moving traffic before
// vehicles entering the graph, (e) lower vehicle id. Rule (c) is not
// transitive, so requests are processed in a canonical order (a, b, d, e)
// and the first one that beats every conflicting remaining request goes
// next; when right-of-way forms a cycle the canonical head goes. A request
// is granted if it conflicts with nothing granted before it.
func Arbitrate(node *Node, requests []CrossingRequest, logic CrossingLogic) []uint64 {
	remaining := slices.Clone(requests)
	slices.SortFunc(remaining, func(a, b CrossingRequest) int {
		if la, lb := a.level(logic), b.level(logic); la != lb {
			if la > lb {
				return -1
			}
			return 1
		}
		if a.Priority != b.Priority {
			return b.Priority - a.Priority
		}
		if as, bs := a.spawning(), b.spawning(); as != bs {
			if bs {
				return -1
			}
			return 1
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	granted := make([]CrossingRequest, 0, len(remaining))
	for len(remaining) > 0 {
		pick := 0
		for i, c := range remaining {
			if beatsAllConflicting(node, c, remaining, logic) {
				pick = i
				break
			}
		}
		c := remaining[pick]
		remaining = slices.Delete(remaining, pick, pick+1)

		free := true
		for _, g := range granted {
			if Conflicts(node, c, g, logic) {
				free = false
				break
			}
		}
		if free {
			granted = append(granted, c)
		}
	}

	ids := make([]uint64, len(granted))
	for i, g := range granted {
		ids[i] = g.ID
	}
	slices.Sort(ids)
	return ids
}

func beatsAllConflicting(node *Node, c CrossingRequest, others []CrossingRequest, logic CrossingLogic) bool {
	for _, o := range others {
		if o.ID == c.ID || !Conflicts(node, c, o, logic) {
			continue
		}
		if !Beats(c, o, logic) {
			return false
		}
	}
	return true
}

// Beats reports whether a wins against b when their crossings conflict. On
// streets of equal level a vehicle that lost more passes always wins, so a
// steady stream of newcomers cannot starve it.
func Beats(a, b CrossingRequest, logic CrossingLogic) bool {
	if la, lb := a.level(logic), b.level(logic); la != lb {
		return la > lb
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if logic.PriorityToTheRightEnabled && !a.spawning() && !b.spawning() {
		if r := RightOfWay(a.From.edge, b.From.edge, logic.DrivingOnTheRight); r != 0 {
			return r > 0
		}
	}
	if as, bs := a.spawning(), b.spawning(); as != bs {
		return bs
	}
	return a.ID < b.ID
}

// RightOfWay compares two approaches to the same node. It returns 1 if a has
// right of way over b, -1 if b has right of way over a and 0 if neither
// (same or opposite direction).
func RightOfWay(a, b *DirectedEdge, drivingOnTheRight bool) int {
	da, db := a.destinationDirection, b.destinationDirection
	cross := da[0]*db[1] - da[1]*db[0]
	if math.Abs(cross) < geometryEpsilon {
		return 0
	}
	// cross > 0: b approaches from a's right.
	r := -1
	if cross < 0 {
		r = 1
	}
	if !drivingOnTheRight {
		r = -r
	}
	return r
}

// Conflicts reports whether the paths of two requests through node cross.
func Conflicts(node *Node, a, b CrossingRequest, logic CrossingLogic) bool {
	if a.ID == b.ID {
		return false
	}
	if logic.OnlyOneVehicleEnabled {
		return true
	}
	if a.To == b.To {
		return true
	}
	if a.spawning() || b.spawning() {
		return false
	}
	if a.From == b.From {
		return true
	}

	right := logic.DrivingOnTheRight
	a1, a2 := incomingAngle(a.From.edge, right), outgoingAngle(a.To.edge, right)
	side1 := arcSide(incomingAngle(b.From.edge, right), a1, a2)
	side2 := arcSide(outgoingAngle(b.To.edge, right), a1, a2)
	return side1*side2 < 0
}

// incomingAngle is the bearing from the node towards where the edge comes from.
func incomingAngle(e *DirectedEdge, drivingOnTheRight bool) float64 {
	d := e.destinationDirection
	a := math.Atan2(-d[1], -d[0])
	if drivingOnTheRight {
		return normalizeAngle(a + laneSideOffset)
	}
	return normalizeAngle(a - laneSideOffset)
}

// outgoingAngle is the bearing from the node towards where the edge leads.
func outgoingAngle(e *DirectedEdge, drivingOnTheRight bool) float64 {
	d := e.originDirection
	a := math.Atan2(d[1], d[0])
	if drivingOnTheRight {
		return normalizeAngle(a - laneSideOffset)
	}
	return normalizeAngle(a + laneSideOffset)
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// arcSide classifies x relative to the counter-clockwise arc from start to
// end: 1 strictly inside, -1 strictly outside, 0 on an endpoint.
func arcSide(x, start, end float64) int {
	d := normalizeAngle(x - start)
	if d < geometryEpsilon || 2*math.Pi-d < geometryEpsilon {
		return 0
	}
	span := normalizeAngle(end - start)
	if math.Abs(d-span) < geometryEpsilon {
		return 0
	}
	if d < span {
		return 1
	}
	return -1
}
