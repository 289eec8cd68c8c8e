package simulation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Readm/street_sim/core"
	"github.com/Readm/street_sim/hooks"
	"github.com/Readm/street_sim/logger"
	"github.com/Readm/street_sim/scheduler"
	"github.com/Readm/street_sim/vehicle"
	"github.com/samber/lo"
)

var (
	// ErrNotPrepared is returned by Step before a successful Prepare.
	ErrNotPrepared = errors.New("simulation not prepared")
	// ErrFailed is returned by Step after a step was aborted by a broken
	// invariant. Only a new Prepare clears it.
	ErrFailed = errors.New("simulation failed")
)

// Manager drives vehicles and nodes through the step phases:
//
//	willMove  velocity decisions from last step's positions
//	move      lane occupancy changes
//	didMove   anger and registration with the node ahead
//	spawn     entry of waiting vehicles
//	update    arbitration at every node
//
// Each phase fans out over the worker pool and ends at a barrier, so the
// outcome does not depend on the number of workers.
type Manager struct {
	graph  *core.Graph
	cfg    Config
	pool   *scheduler.Pool
	broker *hooks.PluginBroker
	log    *logger.Logger

	nodes []*core.Node
	guid  core.GraphGUID

	scenario string
	vehicles []*vehicle.Vehicle // ascending id
	active   []*vehicle.Vehicle
	pending  []*vehicle.Vehicle

	prepared bool
	step     int
	failure  error
	stats    Stats
	busy     time.Duration
}

// NewManager creates a manager over g using cfg.Workers workers. broker and
// log may be nil.
func NewManager(g *core.Graph, cfg Config, broker *hooks.PluginBroker, log *logger.Logger) *Manager {
	if broker == nil {
		broker = hooks.NewPluginBroker()
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{
		graph:  g,
		cfg:    cfg,
		pool:   scheduler.NewPool(cfg.Workers),
		broker: broker,
		log:    log,
		nodes:  g.SortedNodes(),
	}
}

// Close stops the worker pool.
func (m *Manager) Close() { m.pool.Close() }

// Prepare clears all vehicles and lane state, generates the scenario's
// vehicles, freezes the graph topology and runs one arbitration pass so that
// vehicles without spawn delay can enter in the first step.
func (m *Manager) Prepare(ctx context.Context, scenario Scenario) error {
	m.prepared = false
	m.failure = nil
	m.step = 0
	m.busy = 0
	m.vehicles, m.active, m.pending = nil, nil, nil
	m.graph.Reset()
	m.scenario = scenario.Name()

	log := m.log.WithFields(map[string]any{"seed": m.cfg.Seed, "scenario": m.scenario})
	vehicles, err := scenario.Generate(ctx, m.graph, m.cfg)
	if err != nil {
		log.Errorf("vehicle generation failed: %v", err)
		return err
	}
	slices.SortFunc(vehicles, func(a, b *vehicle.Vehicle) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	for i := 1; i < len(vehicles); i++ {
		if vehicles[i].ID() == vehicles[i-1].ID() {
			return fmt.Errorf("scenario %s: duplicate vehicle id %d", m.scenario, vehicles[i].ID())
		}
	}

	m.graph.Freeze()
	m.guid = core.GUIDFrom(m.graph)
	m.vehicles = vehicles
	for _, v := range vehicles {
		v.Prepare()
	}
	if err := m.pool.Run("update", len(m.nodes), func(i int) {
		m.nodes[i].Update(m.cfg.Crossing)
	}); err != nil {
		return m.fail(0, err)
	}
	m.refresh()
	m.stats = collectStats(0, m.vehicles)
	m.prepared = true
	log.Infof("prepared %d vehicles on graph %s", len(vehicles), m.guid)
	return nil
}

// Step advances the simulation by one time step.
func (m *Manager) Step() error {
	if m.failure != nil {
		return fmt.Errorf("%w: %w", ErrFailed, m.failure)
	}
	if !m.prepared {
		return ErrNotPrepared
	}

	start := time.Now()
	step := m.step + 1
	active, pending := m.active, m.pending
	granted := make([][]uint64, len(m.nodes))
	phases := []struct {
		name string
		n    int
		fn   func(i int)
	}{
		{"willMove", len(active), func(i int) { active[i].WillMove() }},
		{"move", len(active), func(i int) { active[i].Move(step) }},
		{"didMove", len(active), func(i int) { active[i].DidMove() }},
		{"spawn", len(pending), func(i int) { pending[i].Spawn(step) }},
		{"update", len(m.nodes), func(i int) { granted[i] = m.nodes[i].Update(m.cfg.Crossing) }},
	}
	for _, ph := range phases {
		if err := m.pool.Run(ph.name, ph.n, ph.fn); err != nil {
			return m.fail(step, err)
		}
	}
	m.step = step
	elapsed := time.Since(start)
	m.busy += elapsed

	spawned, despawned := m.emitVehicleEvents(step)
	m.emitNodeEvents(step, granted)
	m.refresh()

	m.stats = collectStats(step, m.vehicles)
	m.stats.SpawnedThisStep = spawned
	m.stats.DespawnedThisStep = despawned
	m.stats.StepDuration = elapsed
	m.stats.MeanStepDuration = m.busy / time.Duration(step)

	if err := m.broker.EmitStepCompleted(&hooks.StepContext{
		Step:      step,
		Spawned:   spawned,
		Despawned: despawned,
		Active:    len(m.active),
		Duration:  elapsed,
	}); err != nil {
		m.hookFailed("step completed", step, 0, err)
	}
	return nil
}

func (m *Manager) emitVehicleEvents(step int) (spawned, despawned int) {
	for _, v := range m.vehicles {
		if v.SpawnedAt() == step {
			spawned++
			if err := m.broker.EmitVehicleSpawned(&hooks.VehicleContext{Step: step, Position: v.Position()}); err != nil {
				m.hookFailed("vehicle spawned", step, v.ID(), err)
			}
		}
		if v.DespawnedAt() == step {
			despawned++
			ctx := &hooks.VehicleContext{Step: step, Position: v.Position(), RouteInvalid: v.RouteInvalid()}
			if err := m.broker.EmitVehicleDespawned(ctx); err != nil {
				m.hookFailed("vehicle despawned", step, v.ID(), err)
			}
		}
	}
	return spawned, despawned
}

func (m *Manager) emitNodeEvents(step int, granted [][]uint64) {
	if !m.broker.HasNodeHooks() {
		return
	}
	for i, n := range m.nodes {
		registered := n.Registered()
		if len(registered) == 0 {
			continue
		}
		waiting := lo.Without(registered, granted[i]...)
		if err := m.broker.EmitNodeUpdated(&hooks.NodeContext{
			Step:    step,
			NodeID:  n.ID(),
			Granted: granted[i],
			Waiting: waiting,
		}); err != nil {
			m.hookFailed("node updated", step, 0, err)
		}
	}
}

func (m *Manager) refresh() {
	m.active = lo.Filter(m.vehicles, func(v *vehicle.Vehicle, _ int) bool { return v.State() == vehicle.Spawned })
	m.pending = lo.Filter(m.vehicles, func(v *vehicle.Vehicle, _ int) bool { return v.State() == vehicle.NotSpawned })
}

// fail records a fatal step error with enough context to reproduce it.
func (m *Manager) fail(step int, err error) error {
	m.failure = err
	fields := map[string]any{"seed": m.cfg.Seed, "step": step, "scenario": m.scenario}
	var pe *scheduler.PanicError
	if errors.As(err, &pe) {
		fields["phase"] = pe.Phase
	}
	iv, _ := lo.ErrorsAs[*core.InvariantViolation](err)
	if iv != nil {
		fields["vehicle"] = iv.VehicleID
		fields["edge"] = iv.Edge
		fields["lane"] = iv.Lane
		fields["cell"] = iv.Cell
		fields["velocity"] = iv.Velocity
	}
	m.log.WithFields(fields).Errorf("step aborted: %v", err)
	if pe != nil && pe.Stack != "" {
		m.log.Debugf("%s", pe.Stack)
	}
	if herr := m.broker.EmitViolation(&hooks.ViolationContext{
		Step:      step,
		Seed:      m.cfg.Seed,
		Violation: iv,
		Err:       err,
	}); herr != nil {
		m.hookFailed("violation", step, 0, herr)
	}
	return err
}

func (m *Manager) hookFailed(event string, step int, vehicleID uint64, err error) {
	fields := map[string]any{"seed": m.cfg.Seed, "step": step, "event": event}
	if vehicleID != 0 {
		fields["vehicle"] = vehicleID
	}
	m.log.WithFields(fields).Warnf("hook failed: %v", err)
}

// StepCount returns the number of completed steps.
func (m *Manager) StepCount() int { return m.step }

// Prepared reports whether Prepare succeeded.
func (m *Manager) Prepared() bool { return m.prepared }

// Failure returns the error that aborted the simulation, if any.
func (m *Manager) Failure() error { return m.failure }

// Graph returns the simulated graph.
func (m *Manager) Graph() *core.Graph { return m.graph }

// GUID returns the graph GUID computed at Prepare.
func (m *Manager) GUID() core.GraphGUID { return m.guid }

// Stats returns the statistics of the last completed step.
func (m *Manager) Stats() Stats { return m.stats }

// Vehicles returns all vehicles in ascending id order.
func (m *Manager) Vehicles() []*vehicle.Vehicle { return m.vehicles }

// Vehicle looks a vehicle up by id.
func (m *Manager) Vehicle(id uint64) (*vehicle.Vehicle, bool) {
	i, ok := slices.BinarySearchFunc(m.vehicles, id, func(v *vehicle.Vehicle, id uint64) int {
		switch {
		case v.ID() < id:
			return -1
		case v.ID() > id:
			return 1
		}
		return 0
	})
	if !ok {
		return nil, false
	}
	return m.vehicles[i], true
}

// Positions returns the positions of spawned vehicles in ascending id order.
func (m *Manager) Positions() []vehicle.Position {
	return lo.Map(m.active, func(v *vehicle.Vehicle, _ int) vehicle.Position { return v.Position() })
}

// Edges summarises the occupancy of every edge.
func (m *Manager) Edges() []EdgeFrame {
	return lo.Map(m.graph.Edges(), func(e *core.DirectedEdge, _ int) EdgeFrame {
		return EdgeFrame{
			Key:      e.Key(),
			Length:   e.Length(),
			Lanes:    len(e.Lanes()),
			Vehicles: e.VehicleCount(),
			Density:  e.Density(),
		}
	})
}
