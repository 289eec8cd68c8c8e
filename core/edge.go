package core

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DefaultMetersPerCell is the classic Nagel-Schreckenberg cell size.
const DefaultMetersPerCell = 7.5

// EdgeKey identifies a directed edge structurally. The forward and backward
// edges of one street share StreetID but differ in direction.
type EdgeKey struct {
	Street      int64  `json:"street"`
	Origin      NodeID `json:"origin"`
	Destination NodeID `json:"destination"`
}

func (k EdgeKey) String() string {
	return fmt.Sprintf("%d:%d->%d", k.Street, k.Origin, k.Destination)
}

// EdgeSpec describes an edge to add to a Graph.
type EdgeSpec struct {
	StreetID    int64
	Origin      NodeID
	Destination NodeID
	Lanes       int
	MaxVelocity int // cells per step
	Priority    int // street priority level, higher wins at crossings

	// Cells fixes the length in cells. When 0 the length is derived from the
	// geometry and the graph's meters-per-cell.
	Cells int
	// Geometry is the street polyline in meters. A straight segment between
	// the two node positions is used when empty.
	Geometry orb.LineString
}

// DirectedEdge is a street segment from one node to another. Its geometry is
// immutable; its lanes carry the mutable occupancy.
type DirectedEdge struct {
	id          int
	key         EdgeKey
	origin      *Node
	destination *Node

	geometry      orb.LineString
	meters        float64
	metersPerCell float64
	fixedCells    int
	length        int

	maxVelocity int
	priority    int

	originDirection      orb.Point
	destinationDirection orb.Point

	lanes []*Lane
}

func newDirectedEdge(id int, spec EdgeSpec, origin, destination *Node, metersPerCell float64) *DirectedEdge {
	geom := spec.Geometry
	if len(geom) < 2 {
		geom = orb.LineString{origin.position, destination.position}
	}
	e := &DirectedEdge{
		id:            id,
		key:           EdgeKey{Street: spec.StreetID, Origin: origin.id, Destination: destination.id},
		origin:        origin,
		destination:   destination,
		geometry:      geom.Clone(),
		meters:        planar.Length(geom),
		metersPerCell: metersPerCell,
		fixedCells:    spec.Cells,
		maxVelocity:   spec.MaxVelocity,
		priority:      spec.Priority,
	}
	e.originDirection = unitVector(geom[0], geom[1])
	e.destinationDirection = unitVector(geom[len(geom)-2], geom[len(geom)-1])

	lanes := spec.Lanes
	if lanes < 1 {
		lanes = 1
	}
	e.lanes = make([]*Lane, lanes)
	for i := range e.lanes {
		e.lanes[i] = newLane(e, i)
	}
	e.length = e.deriveLength()
	return e
}

func unitVector(from, to orb.Point) orb.Point {
	dx, dy := to[0]-from[0], to[1]-from[1]
	n := math.Hypot(dx, dy)
	if n == 0 {
		return orb.Point{1, 0}
	}
	return orb.Point{dx / n, dy / n}
}

func (e *DirectedEdge) deriveLength() int {
	if e.fixedCells > 0 {
		return e.fixedCells
	}
	mpc := e.metersPerCell
	if mpc <= 0 {
		mpc = DefaultMetersPerCell
	}
	cells := int(math.Round(e.meters / mpc))
	if cells < 1 {
		cells = 1
	}
	return cells
}

// ID returns the edge's index in its graph.
func (e *DirectedEdge) ID() int { return e.id }

// Key returns the structural key of the edge.
func (e *DirectedEdge) Key() EdgeKey { return e.key }

// StreetID returns the id of the underlying street.
func (e *DirectedEdge) StreetID() int64 { return e.key.Street }

// Origin returns the node the edge starts at.
func (e *DirectedEdge) Origin() *Node { return e.origin }

// Destination returns the node the edge ends at.
func (e *DirectedEdge) Destination() *Node { return e.destination }

// Length returns the edge length in cells.
func (e *DirectedEdge) Length() int { return e.length }

// Meters returns the real-world length of the edge geometry.
func (e *DirectedEdge) Meters() float64 { return e.meters }

// MaxVelocity returns the speed limit in cells per step.
func (e *DirectedEdge) MaxVelocity() int { return e.maxVelocity }

// Priority returns the street priority level.
func (e *DirectedEdge) Priority() int { return e.priority }

// Geometry returns a copy of the edge polyline.
func (e *DirectedEdge) Geometry() orb.LineString { return e.geometry.Clone() }

// OriginDirection is the unit vector leaving the origin node.
func (e *DirectedEdge) OriginDirection() orb.Point { return e.originDirection }

// DestinationDirection is the unit vector arriving at the destination node.
func (e *DirectedEdge) DestinationDirection() orb.Point { return e.destinationDirection }

// Lanes returns the lanes, rightmost first.
func (e *DirectedEdge) Lanes() []*Lane { return e.lanes }

// Lane returns lane i or nil.
func (e *DirectedEdge) Lane(i int) *Lane {
	if i < 0 || i >= len(e.lanes) {
		return nil
	}
	return e.lanes[i]
}

// VehicleCount sums the occupants of all lanes.
func (e *DirectedEdge) VehicleCount() int {
	n := 0
	for _, l := range e.lanes {
		n += l.Len()
	}
	return n
}

// Density is the share of occupied cells over all lanes.
func (e *DirectedEdge) Density() float64 {
	total := e.length * len(e.lanes)
	if total == 0 {
		return 0
	}
	return float64(e.VehicleCount()) / float64(total)
}

// Reset clears all lanes and re-derives the cell count.
func (e *DirectedEdge) Reset() {
	for _, l := range e.lanes {
		l.Clear()
	}
	e.length = e.deriveLength()
}

// SetMetersPerCell switches the edge to a geometry-derived length using the
// given cell size. Lanes are cleared.
func (e *DirectedEdge) SetMetersPerCell(metersPerCell float64) {
	e.metersPerCell = metersPerCell
	e.fixedCells = 0
	e.Reset()
}

func (e *DirectedEdge) String() string {
	return fmt.Sprintf("edge(%s, %d cells, vmax %d, prio %d)", e.key, e.length, e.maxVelocity, e.priority)
}
