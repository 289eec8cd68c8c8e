package simulation

import "context"

// CommandType enumerates control commands accepted by a running simulation.
type CommandType string

const (
	CommandNone   CommandType = "none"
	CommandPause  CommandType = "pause"
	CommandResume CommandType = "resume"
	CommandStep   CommandType = "step"
	CommandCancel CommandType = "cancel"
	// CommandReset rebuilds the graph and vehicles, optionally with a new
	// config or another predefined scenario.
	CommandReset CommandType = "reset"
	// CommandBlock toggles the blocking flag of one vehicle.
	CommandBlock CommandType = "block"
)

// Command is a control request delivered through a CommandQueue.
type Command struct {
	Type     CommandType `json:"type"`
	Config   *Config     `json:"config,omitempty"`
	Scenario string      `json:"scenario,omitempty"`
	Vehicle  uint64      `json:"vehicle,omitempty"`
	Blocking bool        `json:"blocking,omitempty"`
}

// CommandQueue abstracts command delivery to the run loop.
type CommandQueue interface {
	Enqueue(cmd Command) bool
	TryDequeue() (Command, bool)
	Next(ctx context.Context) (Command, bool)
}

type channelCommandQueue struct {
	ch chan Command
}

// NewCommandQueue returns a bounded queue; Enqueue fails when it is full.
func NewCommandQueue(buffer int) CommandQueue {
	return &channelCommandQueue{ch: make(chan Command, buffer)}
}

func (q *channelCommandQueue) Enqueue(cmd Command) bool {
	select {
	case q.ch <- cmd:
		return true
	default:
		return false
	}
}

func (q *channelCommandQueue) TryDequeue() (Command, bool) {
	select {
	case cmd := <-q.ch:
		return cmd, true
	default:
		return Command{Type: CommandNone}, false
	}
}

func (q *channelCommandQueue) Next(ctx context.Context) (Command, bool) {
	select {
	case cmd := <-q.ch:
		return cmd, true
	case <-ctx.Done():
		return Command{Type: CommandNone}, false
	}
}

// commandLoop drains and dispatches control commands. The handler returns
// false to stop the run loop.
type commandLoop struct {
	source  CommandQueue
	handler func(Command) bool
}

// drainPending handles every queued command until the queue is empty or
// the handler asks to stop.
func (c *commandLoop) drainPending() bool {
	if c.source == nil || c.handler == nil {
		return true
	}
	for {
		cmd, ok := c.source.TryDequeue()
		if !ok {
			return true
		}
		if !c.handler(cmd) {
			return false
		}
	}
}

// waitAndHandle blocks until a command arrives or ctx is done.
func (c *commandLoop) waitAndHandle(ctx context.Context) bool {
	if c.source == nil || c.handler == nil {
		<-ctx.Done()
		return true
	}
	cmd, ok := c.source.Next(ctx)
	if !ok {
		return true
	}
	return c.handler(cmd)
}

// Publisher receives a frame after every step. It runs on the simulation
// goroutine and must not block.
type Publisher func(*Frame)
