// Package scheduler runs the phases of a simulation step over a fixed pool
// of workers with a full barrier after every phase.
package scheduler

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/samber/lo"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("worker pool closed")

// PanicError is a panic recovered inside a phase.
type PanicError struct {
	Phase  string
	Worker int
	Value  any
	Stack  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("phase %s: worker %d panicked: %v", e.Phase, e.Worker, e.Value)
}

// Unwrap exposes panic values that are errors, so errors.As finds them.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Pool executes index ranges in parallel. A pool of one worker runs every
// phase on the calling goroutine.
type Pool struct {
	workers int
	ids     []string
	coord   *Coordinator
	wg      sync.WaitGroup

	mu     sync.Mutex
	round  int
	closed bool

	// current phase, written before Release and read by workers after
	// WaitForRound returns
	phase  string
	chunks [][]int
	fn     func(i int)
	errs   []error
}

// NewPool starts workers goroutines. workers < 1 is treated as 1.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{workers: workers, round: -1}
	if workers == 1 {
		return p
	}
	p.ids = make([]string, workers)
	for i := range p.ids {
		p.ids[i] = fmt.Sprintf("worker-%d", i)
	}
	p.coord = NewCoordinator(p.ids)
	p.errs = make([]error, workers)
	p.wg.Add(workers)
	for i := range workers {
		go p.loop(i)
	}
	return p
}

// Workers returns the pool size.
func (p *Pool) Workers() int { return p.workers }

// Run calls fn for every index in [0, n) and returns once all calls have
// finished. Indices are split into contiguous chunks, one per worker. If any
// call panics, the panic of the lowest chunk is returned as *PanicError.
func (p *Pool) Run(phase string, n int, fn func(i int)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if n <= 0 {
		return nil
	}
	if p.workers == 1 {
		return runChunk(phase, 0, lo.Range(n), fn)
	}

	size := (n + p.workers - 1) / p.workers
	p.phase = phase
	p.chunks = lo.Chunk(lo.Range(n), size)
	p.fn = fn
	for i := range p.errs {
		p.errs[i] = nil
	}

	p.round++
	p.coord.Release(p.round)
	if !p.coord.WaitAllDone(p.round) {
		return ErrClosed
	}

	for _, err := range p.errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Close stops the workers and waits for them to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.coord != nil {
		p.coord.Stop()
		p.wg.Wait()
	}
}

func (p *Pool) loop(worker int) {
	defer p.wg.Done()
	id := p.ids[worker]
	for {
		round := p.coord.WaitForRound(id)
		if round < 0 {
			return
		}
		if worker < len(p.chunks) {
			p.errs[worker] = runChunk(p.phase, worker, p.chunks[worker], p.fn)
		}
		p.coord.MarkDone(id, round)
	}
}

func runChunk(phase string, worker int, indices []int, fn func(i int)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Phase: phase, Worker: worker, Value: r, Stack: string(debug.Stack())}
		}
	}()
	for _, i := range indices {
		fn(i)
	}
	return nil
}
