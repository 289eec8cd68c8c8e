// Package simulation schedules vehicles and nodes through discrete time
// steps and exposes the run loop, its control commands and the predefined
// scenarios.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Readm/street_sim/hooks"
	"github.com/Readm/street_sim/logger"
	"github.com/samber/lo"
)

// State is the lifecycle state of a Simulation.
type State string

const (
	StateNotPrepared State = "not_prepared"
	StatePrepared    State = "prepared"
	StateRunning     State = "running"
	StatePaused      State = "paused"
	StateFailed      State = "failed"
)

var (
	// ErrInvalidState is returned by operations not allowed in the current
	// state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrBusy is returned while Run owns the simulation; use commands instead.
	ErrBusy = errors.New("simulation is busy running")
)

const defaultCommandBuffer = 16

// Simulation owns one Manager at a time and moves it through the states
// not_prepared -> prepared -> running <-> paused, back to prepared on
// re-prepare, and to failed when a step breaks an invariant.
type Simulation struct {
	// runMu is held by Prepare, Step and for the whole of Run.
	runMu sync.Mutex

	mu      sync.RWMutex
	state   State
	frame   *Frame
	manager *Manager

	config   *ConfigHolder
	setup    Setup
	broker   *hooks.PluginBroker
	registry *hooks.Registry
	log      *logger.Logger
	commands CommandQueue
	publish  Publisher
	idle     bool
}

// Option customises a Simulation.
type Option func(*Simulation)

// WithLogger replaces the global logger.
func WithLogger(l *logger.Logger) Option { return func(s *Simulation) { s.log = l } }

// WithBroker shares a hook broker with the caller, e.g. to observe events.
func WithBroker(b *hooks.PluginBroker) Option { return func(s *Simulation) { s.broker = b } }

// WithRegistry supplies the plugin registry used to resolve config plugins.
func WithRegistry(r *hooks.Registry) Option { return func(s *Simulation) { s.registry = r } }

// WithPublisher receives a frame after every step and prepare.
func WithPublisher(p Publisher) Option { return func(s *Simulation) { s.publish = p } }

// WithCommandQueue replaces the default command queue.
func WithCommandQueue(q CommandQueue) Option { return func(s *Simulation) { s.commands = q } }

// WithIdleWhenDone keeps Run waiting for commands once all steps are done
// or a step failed, instead of returning.
func WithIdleWhenDone() Option { return func(s *Simulation) { s.idle = true } }

// New validates cfg and loads the configured plugins. The simulation starts
// in StateNotPrepared.
func New(setup Setup, cfg Config, opts ...Option) (*Simulation, error) {
	if setup == nil {
		return nil, errors.New("simulation setup is nil")
	}
	holder, err := NewConfigHolder(cfg)
	if err != nil {
		return nil, err
	}
	s := &Simulation{state: StateNotPrepared, config: holder, setup: setup}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.GetLogger()
	}
	if s.broker == nil {
		s.broker = hooks.NewPluginBroker()
	}
	if s.registry == nil {
		s.registry = NewDefaultRegistry(s.broker, s.log)
	}
	if s.commands == nil {
		s.commands = NewCommandQueue(defaultCommandBuffer)
	}

	cfg = holder.Get()
	if err := s.registry.LoadGlobal(cfg.Plugins); err != nil {
		return nil, err
	}
	nodes := lo.Keys(cfg.NodePlugins)
	slices.Sort(nodes)
	for _, id := range nodes {
		if err := s.registry.LoadForNode(id, cfg.NodePlugins[id]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewFromPreset creates a simulation from a predefined scenario. override,
// if not nil, may adjust the preset config before validation.
func NewFromPreset(name string, override func(*Config), opts ...Option) (*Simulation, error) {
	p, ok := GetScenarioByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q", name)
	}
	cfg := p.Config.clone()
	if override != nil {
		override(&cfg)
	}
	return New(p.Setup, cfg, opts...)
}

// State returns the current lifecycle state.
func (s *Simulation) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Simulation) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Config returns the active configuration.
func (s *Simulation) Config() Config { return s.config.Get() }

// SetConfig replaces the configuration used by the next Prepare. An invalid
// config is refused and the previous one stays in effect.
func (s *Simulation) SetConfig(cfg Config) error {
	if err := s.config.Set(cfg); err != nil {
		s.log.WithFields(map[string]any{"seed": cfg.Seed}).Warnf("config rejected: %v", err)
		return err
	}
	return nil
}

// Broker returns the hook broker.
func (s *Simulation) Broker() *hooks.PluginBroker { return s.broker }

// Commands returns the queue Run reads control commands from.
func (s *Simulation) Commands() CommandQueue { return s.commands }

// Enqueue submits a command to the run loop. It reports false when the
// queue is full.
func (s *Simulation) Enqueue(cmd Command) bool { return s.commands.Enqueue(cmd) }

// Frame returns the latest published frame, nil before the first Prepare.
func (s *Simulation) Frame() *Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// Stats returns the statistics of the latest frame.
func (s *Simulation) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return Stats{}
	}
	return s.frame.Stats
}

// Manager returns the current manager. It must only be used while no Run is
// in progress.
func (s *Simulation) Manager() *Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager
}

// Close releases the worker pool.
func (s *Simulation) Close() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if m := s.Manager(); m != nil {
		m.Close()
	}
}

// Prepare builds a fresh graph and vehicle population from the active
// config. It is allowed in every state except while Run is active.
func (s *Simulation) Prepare(ctx context.Context) error {
	if !s.runMu.TryLock() {
		return ErrBusy
	}
	defer s.runMu.Unlock()
	return s.prepareLocked(ctx)
}

func (s *Simulation) prepareLocked(ctx context.Context) error {
	cfg := s.config.Get()
	g, scenario, err := s.setup(cfg)
	if err != nil {
		return fmt.Errorf("build scenario: %w", err)
	}
	m := NewManager(g, cfg, s.broker, s.log)
	if err := m.Prepare(ctx, scenario); err != nil {
		m.Close()
		return err
	}

	s.mu.Lock()
	old := s.manager
	s.manager = m
	s.state = StatePrepared
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	s.publishFrame()
	return nil
}

// Step runs exactly one step outside of Run. The simulation is paused
// afterwards.
func (s *Simulation) Step() error {
	if !s.runMu.TryLock() {
		return ErrBusy
	}
	defer s.runMu.Unlock()
	switch st := s.State(); st {
	case StatePrepared, StatePaused:
	default:
		return fmt.Errorf("%w: cannot step while %s", ErrInvalidState, st)
	}
	s.setState(StatePaused)
	return s.stepLocked()
}

func (s *Simulation) stepLocked() error {
	err := s.manager.Step()
	if err != nil && s.manager.Failure() != nil {
		s.setState(StateFailed)
	}
	s.publishFrame()
	return err
}

// Run steps until the configured number of steps is reached, a cancel
// command arrives or ctx is done. Commands are handled between steps; a
// step in flight always completes.
func (s *Simulation) Run(ctx context.Context) error {
	if !s.runMu.TryLock() {
		return ErrBusy
	}
	defer s.runMu.Unlock()
	switch st := s.State(); st {
	case StatePrepared, StatePaused:
	case StateFailed:
		if !s.idle {
			return fmt.Errorf("%w: cannot run while %s", ErrInvalidState, st)
		}
	default:
		return fmt.Errorf("%w: cannot run while %s", ErrInvalidState, st)
	}

	r := &runner{sim: s, paused: s.State() == StateFailed}
	if !r.paused {
		s.setState(StateRunning)
	}
	loop := &commandLoop{source: s.commands, handler: func(cmd Command) bool { return r.handle(ctx, cmd) }}

	for {
		if !loop.drainPending() {
			break
		}
		if err := r.takeErr(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			break
		}
		if r.paused {
			if !loop.waitAndHandle(ctx) {
				break
			}
			if err := r.takeErr(); err != nil {
				return err
			}
			continue
		}
		if s.manager.StepCount() >= s.manager.cfg.TotalSteps {
			if !s.idle {
				break
			}
			r.pause()
			continue
		}
		if err := s.stepLocked(); err != nil {
			r.fail(err)
			if err := r.takeErr(); err != nil {
				return err
			}
			continue
		}
		if interval := s.manager.cfg.StepIntervalMs; interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(interval) * time.Millisecond):
			}
		}
	}

	if s.State() != StateFailed {
		s.setState(StatePaused)
	}
	return ctx.Err()
}

// runner carries the per-Run command state.
type runner struct {
	sim    *Simulation
	paused bool
	err    error
}

func (r *runner) pause() {
	r.paused = true
	if r.sim.State() != StateFailed {
		r.sim.setState(StatePaused)
	}
}

// fail records a step error. In idle mode the loop keeps serving commands
// so the simulation can be reset.
func (r *runner) fail(err error) {
	if r.sim.idle {
		r.paused = true
		return
	}
	r.err = err
}

func (r *runner) takeErr() error {
	err := r.err
	r.err = nil
	return err
}

func (r *runner) handle(ctx context.Context, cmd Command) bool {
	s := r.sim
	s.log.Debugf("control command: %s", cmd.Type)
	switch cmd.Type {
	case CommandPause:
		r.pause()
	case CommandResume:
		if s.State() == StateFailed {
			s.log.Warnf("resume ignored: simulation failed, reset it first")
			return true
		}
		r.paused = false
		s.setState(StateRunning)
	case CommandStep:
		if !r.paused || s.State() == StateFailed {
			return true
		}
		if err := s.stepLocked(); err != nil {
			r.fail(err)
		}
	case CommandCancel:
		return false
	case CommandReset:
		if err := s.reset(ctx, cmd); err != nil {
			s.log.Errorf("reset failed: %v", err)
			return true
		}
		if r.paused {
			s.setState(StatePaused)
		} else {
			s.setState(StateRunning)
		}
	case CommandBlock:
		v, ok := s.manager.Vehicle(cmd.Vehicle)
		if !ok {
			s.log.Warnf("block: vehicle %d not found", cmd.Vehicle)
			return true
		}
		v.SetBlocking(cmd.Blocking)
	case CommandNone:
	default:
		s.log.Warnf("unknown control command %q", cmd.Type)
	}
	return true
}

// reset applies the scenario and config carried by cmd and prepares again.
// A rejected config leaves both the config and the running scenario as they
// were.
func (s *Simulation) reset(ctx context.Context, cmd Command) error {
	setup := s.setup
	var cfg *Config
	if cmd.Scenario != "" {
		p, ok := GetScenarioByName(cmd.Scenario)
		if !ok {
			return fmt.Errorf("unknown scenario %q", cmd.Scenario)
		}
		setup = p.Setup
		c := p.Config.clone()
		cfg = &c
	}
	if cmd.Config != nil {
		cfg = cmd.Config
	}
	if cfg != nil {
		if err := s.SetConfig(*cfg); err != nil {
			return err
		}
	}
	s.setup = setup
	return s.prepareLocked(ctx)
}

func (s *Simulation) publishFrame() {
	m := s.manager
	frame := &Frame{
		Step:       m.StepCount(),
		Scenario:   m.scenario,
		GraphGUID:  m.GUID().String(),
		ConfigHash: m.cfg.Hash(),
		Vehicles:   m.Positions(),
		Edges:      m.Edges(),
		Stats:      m.Stats(),
	}
	s.mu.Lock()
	frame.State = s.state
	s.frame = frame
	s.mu.Unlock()
	if s.publish != nil {
		s.publish(frame)
	}
}
