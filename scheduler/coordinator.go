package scheduler

import "sync"

// Coordinator releases numbered rounds to a fixed set of workers and lets a
// dispatcher wait until every worker has finished a round. Workers call
// WaitForRound, execute their share, and call MarkDone.
type Coordinator struct {
	mu       sync.Mutex
	cond     *sync.Cond
	released int

	workerDone map[string]int

	stopped bool
}

// NewCoordinator creates a coordinator for the provided worker identifiers.
// No round is released yet.
func NewCoordinator(workerIDs []string) *Coordinator {
	c := &Coordinator{
		released:   -1,
		workerDone: make(map[string]int, len(workerIDs)),
	}
	for _, id := range workerIDs {
		c.workerDone[id] = -1 // no round completed yet
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Release allows workers to run every round up to and including round.
func (c *Coordinator) Release(round int) {
	c.mu.Lock()
	if round > c.released {
		c.released = round
		c.cond.Broadcast()
	}
	c.mu.Unlock()
}

// Stop wakes all waiters; WaitForRound returns -1 afterwards.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// WaitForRound blocks until a round the worker has not completed is
// released and returns it. Returns -1 once the coordinator is stopped.
func (c *Coordinator) WaitForRound(workerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.stopped {
			return -1
		}
		if next := c.workerDone[workerID] + 1; next <= c.released {
			return next
		}
		c.cond.Wait()
	}
}

// MarkDone records that the worker completed round.
func (c *Coordinator) MarkDone(workerID string, round int) {
	c.mu.Lock()
	if round > c.workerDone[workerID] {
		c.workerDone[workerID] = round
		c.cond.Broadcast()
	}
	c.mu.Unlock()
}

// WaitAllDone blocks until every worker completed round. It returns false
// if the coordinator was stopped first.
func (c *Coordinator) WaitAllDone(round int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.allDoneLocked(round) {
		if c.stopped {
			return false
		}
		c.cond.Wait()
	}
	return true
}

// SnapshotProgress returns the released round and each worker's completed
// round.
func (c *Coordinator) SnapshotProgress() (released int, done map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	done = make(map[string]int, len(c.workerDone))
	for k, v := range c.workerDone {
		done[k] = v
	}
	return c.released, done
}

func (c *Coordinator) allDoneLocked(round int) bool {
	for _, done := range c.workerDone {
		if done < round {
			return false
		}
	}
	return true
}
