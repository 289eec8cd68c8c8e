package vehicle

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/Readm/street_sim/core"
)

// State is the lifecycle position of a vehicle.
type State int

const (
	NotSpawned State = iota
	Spawned
	Despawned
)

func (s State) String() string {
	switch s {
	case NotSpawned:
		return "not_spawned"
	case Spawned:
		return "spawned"
	case Despawned:
		return "despawned"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateListener is called synchronously on the goroutine that moved the
// vehicle into state.
type StateListener func(v *Vehicle, state State)

// Options configures a new vehicle.
type Options struct {
	ID         uint64
	Seed       uint64
	GlobalSeed uint64
	SpawnDelay int
	Behavior   Behavior
	Route      *Route
}

// Position is what an observer sees of a vehicle between steps.
type Position struct {
	ID       uint64       `json:"id"`
	State    string       `json:"state"`
	Edge     core.EdgeKey `json:"edge"`
	Lane     int          `json:"lane"`
	Cell     int          `json:"cell"`
	Velocity int          `json:"velocity"`
	Anger    int          `json:"anger"`
}

// Vehicle drives itself along its route. Phase methods are called by the
// step scheduler; each vehicle is touched by exactly one worker per phase.
type Vehicle struct {
	id         uint64
	seed       uint64
	spawnDelay int
	behavior   Behavior
	blocking   atomic.Bool
	route      *Route
	rng        *rand.Rand

	state     State
	lane      *core.Lane
	cell      int
	velocity  int
	hasDashed bool

	registeredAt *core.Node
	// target is the lane chosen in the last arbitration pass
	target *core.Lane

	counterMu       sync.Mutex
	priorityCounter int

	stoppedSteps int
	anger        int
	totalAnger   int
	maxAnger     int

	spawnedAt   int
	despawnedAt int
	invalid     bool

	listeners []StateListener
}

// New creates a vehicle in state NotSpawned.
func New(opts Options) (*Vehicle, error) {
	if err := opts.Behavior.Validate(); err != nil {
		return nil, fmt.Errorf("vehicle %d: %w", opts.ID, err)
	}
	if opts.SpawnDelay < 0 {
		return nil, fmt.Errorf("vehicle %d: spawn delay must be non-negative, got %d", opts.ID, opts.SpawnDelay)
	}
	route := opts.Route
	if route == nil {
		route = NewRoute()
	}
	if err := route.Validate(); err != nil {
		return nil, fmt.Errorf("vehicle %d: %w", opts.ID, err)
	}
	v := &Vehicle{
		id:          opts.ID,
		seed:        opts.Seed,
		spawnDelay:  opts.SpawnDelay,
		behavior:    opts.Behavior,
		route:       route,
		rng:         NewStream(opts.GlobalSeed, opts.Seed, opts.ID),
		spawnedAt:   -1,
		despawnedAt: -1,
	}
	v.blocking.Store(opts.Behavior.Blocking)
	return v, nil
}

func (v *Vehicle) ID() uint64               { return v.id }
func (v *Vehicle) Seed() uint64             { return v.seed }
func (v *Vehicle) SpawnDelay() int          { return v.spawnDelay }
func (v *Vehicle) Behavior() Behavior       { return v.behavior }
func (v *Vehicle) State() State             { return v.state }
func (v *Vehicle) Lane() *core.Lane         { return v.lane }
func (v *Vehicle) Cell() int                { return v.cell }
func (v *Vehicle) Velocity() int            { return v.velocity }
func (v *Vehicle) Route() *Route            { return v.route }
func (v *Vehicle) HasDashed() bool          { return v.hasDashed }
func (v *Vehicle) Anger() int               { return v.anger }
func (v *Vehicle) TotalAnger() int          { return v.totalAnger }
func (v *Vehicle) MaxAnger() int            { return v.maxAnger }
func (v *Vehicle) SpawnedAt() int           { return v.spawnedAt }
func (v *Vehicle) DespawnedAt() int         { return v.despawnedAt }
func (v *Vehicle) RouteInvalid() bool       { return v.invalid }
func (v *Vehicle) Blocking() bool           { return v.blocking.Load() }
func (v *Vehicle) SetBlocking(b bool)       { v.blocking.Store(b) }
func (v *Vehicle) RegisteredAt() *core.Node { return v.registeredAt }

// Edge returns the edge the vehicle is on, nil unless spawned.
func (v *Vehicle) Edge() *core.DirectedEdge {
	if v.lane == nil {
		return nil
	}
	return v.lane.Edge()
}

// Position snapshots the observable state.
func (v *Vehicle) Position() Position {
	p := Position{
		ID:       v.id,
		State:    v.state.String(),
		Lane:     -1,
		Cell:     -1,
		Velocity: v.velocity,
		Anger:    v.anger,
	}
	if v.lane != nil {
		p.Edge = v.lane.Edge().Key()
		p.Lane = v.lane.Index()
		p.Cell = v.cell
	}
	return p
}

// MaxVelocity is the speed limit currently binding the vehicle.
func (v *Vehicle) MaxVelocity() int {
	if v.lane == nil {
		return v.behavior.MaxVelocity
	}
	return min(v.behavior.MaxVelocity, v.lane.Edge().MaxVelocity())
}

// AddListener registers l for spawn and despawn transitions. Listeners must
// be added before the simulation starts.
func (v *Vehicle) AddListener(l StateListener) {
	v.listeners = append(v.listeners, l)
}

func (v *Vehicle) setState(s State) {
	v.state = s
	for _, l := range v.listeners {
		l(v, s)
	}
}

// PriorityCounter returns how many arbitration passes the vehicle has lost
// since it last crossed a node.
func (v *Vehicle) PriorityCounter() int {
	v.counterMu.Lock()
	defer v.counterMu.Unlock()
	return v.priorityCounter
}

// IncPriorityCounter saturates at math.MaxInt.
func (v *Vehicle) IncPriorityCounter() {
	v.counterMu.Lock()
	defer v.counterMu.Unlock()
	if v.priorityCounter < math.MaxInt {
		v.priorityCounter++
	}
}

// DecPriorityCounter panics when the counter is already zero.
func (v *Vehicle) DecPriorityCounter() {
	v.counterMu.Lock()
	defer v.counterMu.Unlock()
	if v.priorityCounter == 0 {
		v.violate(core.ViolationPriorityUnderflow, "priority counter decremented below zero")
	}
	v.priorityCounter--
}

func (v *Vehicle) resetPriorityCounter() {
	v.counterMu.Lock()
	v.priorityCounter = 0
	v.counterMu.Unlock()
}

// CrossingLanes implements core.Crosser. It is called once per arbitration
// pass, while no lane changes, and fixes the lane the vehicle enters if the
// pass grants it. A vehicle waiting to spawn has no from lane.
func (v *Vehicle) CrossingLanes() (from, to *core.Lane) {
	v.target = nil
	next, ok := v.route.Peek()
	if !ok {
		return v.lane, nil
	}
	if v.state == NotSpawned {
		v.target, _ = next.Origin().NextLane(nil, next)
		return nil, v.target
	}
	if v.lane != nil {
		v.target, _ = v.lane.Edge().Destination().NextLane(v.lane, next)
	}
	return v.lane, v.target
}

// leadsOn reports whether the route continues past the destination node of
// the current lane through a connector.
func (v *Vehicle) leadsOn() bool {
	next, ok := v.route.Peek()
	return ok && v.lane.Edge().Destination().Leads(v.lane, next)
}

// Prepare registers a vehicle without spawn delay at its origin node so the
// initial arbitration pass can consider it.
func (v *Vehicle) Prepare() {
	if v.state == NotSpawned && v.spawnDelay == 0 && !v.route.IsEmpty() {
		v.registerForSpawn()
	}
}

func (v *Vehicle) registerForSpawn() {
	origin := v.route.Origin()
	if origin == nil || v.registeredAt == origin {
		return
	}
	origin.Register(v)
	v.registeredAt = origin
}

// WillMove computes the velocity for this step from the positions left by
// the previous one: accelerate, dash, brake, dawdle.
func (v *Vehicle) WillMove() {
	if v.state != Spawned {
		return
	}
	v.hasDashed = false
	if v.blocking.Load() {
		v.velocity = 0
		return
	}

	vel := v.behavior.accelerate(v.velocity)
	if v.behavior.DashFactor > 0 && v.rng.Float64() < v.behavior.DashFactor {
		vel = v.behavior.accelerate(vel)
		v.hasDashed = true
	}

	vel = v.brake(vel)

	if !v.hasDashed && v.behavior.DawdleFactor > 0 {
		if v.rng.Float64() < v.behavior.dawdleProbability() {
			vel = v.behavior.dawdle(vel)
		}
	}
	v.velocity = vel
}

func (v *Vehicle) brake(vel int) int {
	edge := v.lane.Edge()
	if _, front, ok := v.lane.NextOf(v.cell); ok {
		vel = min(vel, front-v.cell-1)
	} else {
		distance := edge.Length() - v.cell
		next := v.target
		switch {
		case next == nil:
			vel = min(vel, distance-1)
		case !edge.Destination().PermissionToCross(v.id):
			vel = min(vel, distance-1)
		default:
			vel = min(vel, distance+next.MaxInsertionIndex())
		}
	}
	vel = min(vel, edge.MaxVelocity())
	if vel < 0 {
		v.velocity = vel
		v.violate(core.ViolationVelocityUnderflow, "braking produced a negative velocity")
	}
	return vel
}

// Move applies the velocity chosen in WillMove. It is the only phase that
// mutates lane occupancy, always under the lane lock.
func (v *Vehicle) Move(step int) {
	if v.state != Spawned {
		return
	}
	length := v.lane.Length()
	distance := length - v.cell
	next := v.target

	if v.cell == length-1 && !v.blocking.Load() && !v.leadsOn() {
		if !v.route.IsEmpty() {
			v.invalid = true
		}
		v.despawn(step)
		return
	}
	if next != nil && v.velocity >= distance {
		v.cross(next, v.velocity-distance)
		return
	}

	lane := v.lane
	lane.WithLock(v.id, func() {
		v.cell = lane.Move(v, v.velocity)
	})
}

// cross leaves the current lane and enters next at cell. The two lanes are
// locked one after the other, never together.
func (v *Vehicle) cross(next *core.Lane, cell int) {
	from := v.lane
	node := from.Edge().Destination()

	from.WithLock(v.id, func() {
		from.Remove(v)
	})
	next.WithLock(v.id, func() {
		next.Insert(v, cell)
	})

	v.lane = next
	v.cell = cell
	v.velocity = min(v.velocity, next.Edge().MaxVelocity())
	v.target = nil
	v.route.Pop()
	node.Unregister(v.id)
	v.registeredAt = nil
	v.resetPriorityCounter()
}

// DidMove updates the anger statistics and registers the vehicle with the
// node ahead once it leads its lane within reach of the node.
func (v *Vehicle) DidMove() {
	if v.state != Spawned {
		return
	}
	v.updateAnger()
	v.registerAhead()
}

func (v *Vehicle) registerAhead() {
	if v.route.IsEmpty() {
		return
	}
	if _, _, ok := v.lane.NextOf(v.cell); ok {
		return
	}
	if v.lane.Length()-v.cell > v.behavior.MaxVelocity {
		return
	}
	node := v.lane.Edge().Destination()
	if v.registeredAt == node {
		return
	}
	node.Register(v)
	v.registeredAt = node
}

func (v *Vehicle) updateAnger() {
	if v.velocity == 0 {
		v.stoppedSteps++
	} else {
		v.stoppedSteps = 0
	}
	if v.stoppedSteps >= 2 {
		v.anger++
		v.totalAnger++
		v.maxAnger = max(v.maxAnger, v.anger)
	} else if v.anger > 0 {
		v.anger--
	}
}

// Spawn tries to put the vehicle onto the first lane of its route. It
// registers at the origin node in the step matching its spawn delay and
// enters once the node grants permission in a later step.
func (v *Vehicle) Spawn(step int) {
	if v.state != NotSpawned {
		return
	}
	if v.route.IsEmpty() {
		v.despawn(step)
		return
	}
	if step <= v.spawnDelay {
		if step == v.spawnDelay {
			v.registerForSpawn()
		}
		return
	}
	if v.registeredAt == nil {
		v.registerForSpawn()
		return
	}
	if !v.registeredAt.PermissionToCross(v.id) {
		return
	}

	first, _ := v.route.Peek()
	lane := v.target
	if lane == nil {
		return
	}
	entered := false
	lane.WithLock(v.id, func() {
		// the vehicle appears on the entry cell and drives on from there
		room := lane.MaxInsertionIndex()
		if room < 0 {
			return
		}
		vel := min(v.behavior.accelerate(0), first.MaxVelocity(), room)
		if v.blocking.Load() {
			vel = 0
		}
		lane.Insert(v, vel)
		v.lane = lane
		v.cell = vel
		v.velocity = vel
		entered = true
	})
	if !entered {
		return
	}

	v.target = nil
	v.route.Pop()
	v.registeredAt.Unregister(v.id)
	v.registeredAt = nil
	v.resetPriorityCounter()
	v.spawnedAt = step
	v.setState(Spawned)
	v.registerAhead()
}

// Despawn removes the vehicle from the graph immediately.
func (v *Vehicle) Despawn(step int) {
	if v.state == Despawned {
		return
	}
	v.despawn(step)
}

func (v *Vehicle) despawn(step int) {
	if v.lane != nil {
		lane := v.lane
		lane.WithLock(v.id, func() {
			lane.Remove(v)
		})
	}
	if v.registeredAt != nil {
		v.registeredAt.Unregister(v.id)
		v.registeredAt = nil
	}
	v.lane = nil
	v.target = nil
	v.cell = 0
	v.velocity = 0
	v.despawnedAt = step
	v.setState(Despawned)
}

func (v *Vehicle) violate(kind core.ViolationKind, detail string) {
	iv := &core.InvariantViolation{
		Kind:      kind,
		VehicleID: v.id,
		Lane:      -1,
		Cell:      v.cell,
		Velocity:  v.velocity,
		Detail:    detail,
	}
	if v.lane != nil {
		iv.Edge = v.lane.Edge().Key().String()
		iv.Lane = v.lane.Index()
	}
	core.Violate(iv)
}

func (v *Vehicle) String() string {
	return fmt.Sprintf("vehicle(%d %s)", v.id, v.state)
}
