package core

import (
	"fmt"
	"slices"
)

// Occupant is anything that can stand on a lane cell.
type Occupant interface {
	ID() uint64
}

// Lane is a single-lane cellular array. Cell 0 is at the edge's origin and
// cell Length()-1 is the last cell before the destination node.
//
// All mutations (Insert, Remove, Move) must happen while the caller holds the
// lane lock. Reads are lock free: the step scheduler never runs a reading
// phase concurrently with a mutating one.
type Lane struct {
	edge  *DirectedEdge
	index int

	lock *laneLock

	cells  []int // occupied cells, ascending
	byCell map[int]Occupant
	byID   map[uint64]int
}

func newLane(edge *DirectedEdge, index int) *Lane {
	return &Lane{
		edge:   edge,
		index:  index,
		lock:   newLaneLock(),
		byCell: make(map[int]Occupant),
		byID:   make(map[uint64]int),
	}
}

// Edge returns the edge the lane belongs to.
func (l *Lane) Edge() *DirectedEdge { return l.edge }

// Index returns the lane's position within its edge (0 is the rightmost lane).
func (l *Lane) Index() int { return l.index }

// Length returns the lane length in cells.
func (l *Lane) Length() int { return l.edge.Length() }

func (l *Lane) String() string {
	return fmt.Sprintf("%s#%d", l.edge.Key(), l.index)
}

// Lock acquires the lane for holder. Waiters are served first come first
// served, and a holder may lock the same lane again without blocking.
func (l *Lane) Lock(holder uint64) { l.lock.lock(holder) }

// Unlock releases one level of the holder's lock.
func (l *Lane) Unlock(holder uint64) { l.lock.unlock(holder) }

// WithLock runs fn while holding the lane lock and releases it on every exit
// path, including panics.
func (l *Lane) WithLock(holder uint64, fn func()) {
	l.Lock(holder)
	defer l.Unlock(holder)
	fn()
}

// HeldBy reports whether holder currently owns the lane lock.
func (l *Lane) HeldBy(holder uint64) bool { return l.lock.heldBy(holder) }

// Len returns the number of occupants.
func (l *Lane) Len() int { return len(l.cells) }

// IsEmpty reports whether no vehicle occupies the lane.
func (l *Lane) IsEmpty() bool { return len(l.cells) == 0 }

// FirstVehicle returns the occupant nearest the destination.
func (l *Lane) FirstVehicle() (Occupant, int, bool) {
	if len(l.cells) == 0 {
		return nil, 0, false
	}
	cell := l.cells[len(l.cells)-1]
	return l.byCell[cell], cell, true
}

// LastVehicle returns the occupant nearest the origin, i.e. the one that
// bounds where a new vehicle can be inserted.
func (l *Lane) LastVehicle() (Occupant, int, bool) {
	if len(l.cells) == 0 {
		return nil, 0, false
	}
	cell := l.cells[0]
	return l.byCell[cell], cell, true
}

// PrevOf returns the nearest occupant strictly below cell (behind it).
func (l *Lane) PrevOf(cell int) (Occupant, int, bool) {
	i, _ := slices.BinarySearch(l.cells, cell)
	if i == 0 {
		return nil, 0, false
	}
	c := l.cells[i-1]
	return l.byCell[c], c, true
}

// NextOf returns the nearest occupant strictly above cell (ahead of it).
func (l *Lane) NextOf(cell int) (Occupant, int, bool) {
	i, found := slices.BinarySearch(l.cells, cell)
	if found {
		i++
	}
	if i >= len(l.cells) {
		return nil, 0, false
	}
	c := l.cells[i]
	return l.byCell[c], c, true
}

// At returns the occupant of cell, if any.
func (l *Lane) At(cell int) (Occupant, bool) {
	o, ok := l.byCell[cell]
	return o, ok
}

// CellOf returns the cell occupied by o.
func (l *Lane) CellOf(o Occupant) (int, bool) {
	cell, ok := l.byID[o.ID()]
	return cell, ok
}

// MaxInsertionIndex is the highest cell a vehicle entering from the origin
// node may land on: the cell just behind the last vehicle, or the lane's last
// cell when the lane is empty. A value of -1 means the entry cell is taken.
func (l *Lane) MaxInsertionIndex() int {
	if len(l.cells) == 0 {
		return l.Length() - 1
	}
	return l.cells[0] - 1
}

// Insert registers o as sole occupant of an unoccupied cell.
func (l *Lane) Insert(o Occupant, cell int) {
	if cell < 0 || cell >= l.Length() {
		l.violate(ViolationLaneState, o, cell, fmt.Sprintf("insert outside lane bounds [0,%d)", l.Length()))
	}
	if prev, ok := l.byCell[cell]; ok {
		l.violate(ViolationOccupancyConflict, o, cell, fmt.Sprintf("cell already held by vehicle %d", prev.ID()))
	}
	if old, ok := l.byID[o.ID()]; ok {
		l.violate(ViolationOccupancyConflict, o, cell, fmt.Sprintf("vehicle already on this lane at cell %d", old))
	}
	i, _ := slices.BinarySearch(l.cells, cell)
	l.cells = slices.Insert(l.cells, i, cell)
	l.byCell[cell] = o
	l.byID[o.ID()] = cell
}

// Remove takes o off the lane.
func (l *Lane) Remove(o Occupant) {
	cell, ok := l.byID[o.ID()]
	if !ok {
		l.violate(ViolationLaneState, o, -1, "remove of a vehicle that is not on this lane")
	}
	i, _ := slices.BinarySearch(l.cells, cell)
	l.cells = slices.Delete(l.cells, i, i+1)
	delete(l.byCell, cell)
	delete(l.byID, o.ID())
}

// Move shifts o forward by delta cells. A delta of 0 keeps the vehicle in
// place.
func (l *Lane) Move(o Occupant, delta int) int {
	cell, ok := l.byID[o.ID()]
	if !ok {
		l.violate(ViolationLaneState, o, -1, "move of a vehicle that is not on this lane")
	}
	if delta == 0 {
		return cell
	}
	if delta < 0 {
		l.violate(ViolationLaneState, o, cell, fmt.Sprintf("backward move by %d", delta))
	}
	l.Remove(o)
	l.Insert(o, cell+delta)
	return cell + delta
}

// Occupants returns the occupants ordered from origin to destination.
func (l *Lane) Occupants() []Occupant {
	out := make([]Occupant, len(l.cells))
	for i, c := range l.cells {
		out[i] = l.byCell[c]
	}
	return out
}

// Clear drops every occupant.
func (l *Lane) Clear() {
	l.cells = l.cells[:0]
	l.byCell = make(map[int]Occupant)
	l.byID = make(map[uint64]int)
}

func (l *Lane) violate(kind ViolationKind, o Occupant, cell int, detail string) {
	var id uint64
	if o != nil {
		id = o.ID()
	}
	Violate(&InvariantViolation{
		Kind:      kind,
		VehicleID: id,
		Edge:      l.edge.Key().String(),
		Lane:      l.index,
		Cell:      cell,
		Detail:    detail,
	})
}
