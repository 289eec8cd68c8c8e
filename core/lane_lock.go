package core

import "sync"

// laneLock is a ticket lock: waiters are served strictly in arrival order.
// The holder may re-acquire it; it is released when every Lock has been
// matched by an Unlock.
type laneLock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64
	serving uint64
	owner   uint64
	depth   int
}

func newLaneLock() *laneLock {
	l := &laneLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *laneLock) lock(holder uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth > 0 && l.owner == holder {
		l.depth++
		return
	}
	ticket := l.next
	l.next++
	for l.serving != ticket {
		l.cond.Wait()
	}
	l.owner = holder
	l.depth = 1
}

func (l *laneLock) unlock(holder uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth == 0 || l.owner != holder {
		panic(&InvariantViolation{
			Kind:      ViolationLaneState,
			VehicleID: holder,
			Detail:    "unlock of a lane lock that is not held by this holder",
		})
	}
	l.depth--
	if l.depth == 0 {
		l.serving++
		l.cond.Broadcast()
	}
}

func (l *laneLock) heldBy(holder uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth > 0 && l.owner == holder
}
