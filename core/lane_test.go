package core

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
)

type testOccupant uint64

func (o testOccupant) ID() uint64 { return uint64(o) }

func newTestLane(t *testing.T, cells int) *Lane {
	t.Helper()
	g := NewGraph(0)
	if _, err := g.AddNode(1, orb.Point{0, 0}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if _, err := g.AddNode(2, orb.Point{float64(cells) * DefaultMetersPerCell, 0}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	e, err := g.AddEdge(EdgeSpec{StreetID: 1, Origin: 1, Destination: 2, Lanes: 1, MaxVelocity: 5, Cells: cells})
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	return e.Lane(0)
}

func expectViolation(t *testing.T, kind ViolationKind, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected %s panic, got none", kind)
		}
		v, ok := AsInvariantViolation(r)
		if !ok {
			t.Fatalf("expected invariant violation, got %v", r)
		}
		if v.Kind != kind {
			t.Fatalf("expected violation kind %q, got %q", kind, v.Kind)
		}
	}()
	fn()
}

func TestLaneOrderedQueries(t *testing.T) {
	l := newTestLane(t, 10)
	if l.MaxInsertionIndex() != 9 {
		t.Fatalf("expected empty lane insertion index 9, got %d", l.MaxInsertionIndex())
	}

	l.Insert(testOccupant(1), 5)
	l.Insert(testOccupant(2), 2)
	l.Insert(testOccupant(3), 8)

	if o, cell, ok := l.FirstVehicle(); !ok || o.ID() != 3 || cell != 8 {
		t.Fatalf("unexpected first vehicle %v at %d (ok=%v)", o, cell, ok)
	}
	if o, cell, ok := l.LastVehicle(); !ok || o.ID() != 2 || cell != 2 {
		t.Fatalf("unexpected last vehicle %v at %d (ok=%v)", o, cell, ok)
	}
	if l.MaxInsertionIndex() != 1 {
		t.Fatalf("expected insertion index 1, got %d", l.MaxInsertionIndex())
	}

	if o, _, ok := l.NextOf(5); !ok || o.ID() != 3 {
		t.Fatalf("expected vehicle 3 ahead of cell 5, got %v", o)
	}
	if o, _, ok := l.PrevOf(5); !ok || o.ID() != 2 {
		t.Fatalf("expected vehicle 2 behind cell 5, got %v", o)
	}
	if o, _, ok := l.NextOf(3); !ok || o.ID() != 1 {
		t.Fatalf("expected vehicle 1 ahead of empty cell 3, got %v", o)
	}
	if _, _, ok := l.NextOf(8); ok {
		t.Fatalf("leader must have no vehicle ahead")
	}
	if _, _, ok := l.PrevOf(2); ok {
		t.Fatalf("last vehicle must have no vehicle behind")
	}

	if got := l.Move(testOccupant(1), 2); got != 7 {
		t.Fatalf("expected vehicle 1 at cell 7, got %d", got)
	}
	if got := l.Move(testOccupant(1), 0); got != 7 {
		t.Fatalf("zero move must keep cell 7, got %d", got)
	}
	if _, ok := l.At(5); ok {
		t.Fatalf("cell 5 must be free after the move")
	}

	ids := make([]uint64, 0, l.Len())
	for _, o := range l.Occupants() {
		ids = append(ids, o.ID())
	}
	if len(ids) != 3 || ids[0] != 2 || ids[1] != 1 || ids[2] != 3 {
		t.Fatalf("unexpected occupant order %v", ids)
	}

	l.Remove(testOccupant(2))
	if _, cell, _ := l.LastVehicle(); cell != 7 {
		t.Fatalf("expected last vehicle at 7 after removal, got %d", cell)
	}
	if l.MaxInsertionIndex() != 6 {
		t.Fatalf("expected insertion index 6, got %d", l.MaxInsertionIndex())
	}
}

func TestLaneOccupancyConflictPanics(t *testing.T) {
	l := newTestLane(t, 5)
	l.Insert(testOccupant(1), 3)

	expectViolation(t, ViolationOccupancyConflict, func() { l.Insert(testOccupant(2), 3) })
	expectViolation(t, ViolationOccupancyConflict, func() { l.Insert(testOccupant(1), 1) })
	expectViolation(t, ViolationLaneState, func() { l.Insert(testOccupant(3), 5) })
	expectViolation(t, ViolationLaneState, func() { l.Move(testOccupant(1), -1) })
	expectViolation(t, ViolationLaneState, func() { l.Remove(testOccupant(9)) })
}

func TestLaneLockIsReentrant(t *testing.T) {
	l := newTestLane(t, 5)

	l.Lock(7)
	l.Lock(7)
	l.Unlock(7)
	if !l.HeldBy(7) {
		t.Fatalf("lock must stay held until every Lock is matched")
	}
	l.Unlock(7)
	if l.HeldBy(7) {
		t.Fatalf("lock must be released")
	}

	expectViolation(t, ViolationLaneState, func() { l.Unlock(7) })
}

func TestLaneLockServesWaitersInArrivalOrder(t *testing.T) {
	l := newTestLane(t, 5)
	l.Lock(1)

	order := make(chan uint64, 2)
	waitForTickets := func(n uint64) {
		deadline := time.Now().Add(2 * time.Second)
		for {
			l.lock.mu.Lock()
			next := l.lock.next
			l.lock.mu.Unlock()
			if next >= n {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("waiter did not queue")
			}
			time.Sleep(time.Millisecond)
		}
	}
	for _, holder := range []uint64{2, 3} {
		go func(h uint64) {
			l.WithLock(h, func() { order <- h })
		}(holder)
		waitForTickets(holder)
	}

	l.Unlock(1)
	first, second := <-order, <-order
	if first != 2 || second != 3 {
		t.Fatalf("expected FIFO order 2,3 got %d,%d", first, second)
	}
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	l := newTestLane(t, 5)
	func() {
		defer func() { _ = recover() }()
		l.WithLock(4, func() { panic("boom") })
	}()
	if l.HeldBy(4) {
		t.Fatalf("lock must be released after a panic")
	}
}
