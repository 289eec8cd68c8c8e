package hooks

import (
	"sync"
	"time"

	"github.com/Readm/street_sim/core"
	"github.com/Readm/street_sim/vehicle"
)

// PluginCategory represents the high-level role of a plugin.
type PluginCategory string

const (
	// PluginCategoryVisualization covers UI, frame streaming, or replay plugins.
	PluginCategoryVisualization PluginCategory = "visualization"
	// PluginCategoryInstrumentation covers metrics, tracing, and diagnostics.
	PluginCategoryInstrumentation PluginCategory = "instrumentation"
	// PluginCategoryJunction covers plugins watching a single node.
	PluginCategoryJunction PluginCategory = "junction"
)

// PluginDescriptor describes a plugin registered with the broker.
type PluginDescriptor struct {
	Name        string
	Category    PluginCategory
	Description string
}

// HookBundle groups multiple hook handlers that belong to one plugin.
type HookBundle struct {
	VehicleSpawned   []VehicleHook
	VehicleDespawned []VehicleHook
	NodeUpdated      []NodeHook
	StepCompleted    []StepHook
	Violation        []ViolationHook
}

// VehicleContext describes a vehicle state transition. Hooks run after the
// step that caused it, in ascending vehicle id order.
type VehicleContext struct {
	Step         int
	Position     vehicle.Position
	RouteInvalid bool
}

// NodeContext reports the outcome of one arbitration pass.
type NodeContext struct {
	Step    int
	NodeID  core.NodeID
	Granted []uint64
	Waiting []uint64
}

// StepContext summarises a completed step.
type StepContext struct {
	Step      int
	Spawned   int
	Despawned int
	Active    int
	Duration  time.Duration
}

// ViolationContext carries the diagnostic of a step aborted by a broken
// invariant.
type ViolationContext struct {
	Step      int
	Seed      uint64
	Violation *core.InvariantViolation
	Err       error
}

type VehicleHook func(ctx *VehicleContext) error
type NodeHook func(ctx *NodeContext) error
type StepHook func(ctx *StepContext) error
type ViolationHook func(ctx *ViolationContext) error

// PluginBroker coordinates hook registration and triggering. Observers never
// influence the simulation; an error only stops the remaining handlers of
// the same event.
type PluginBroker struct {
	mu sync.RWMutex

	spawnedHooks     []VehicleHook
	despawnedHooks   []VehicleHook
	nodeUpdatedHooks []NodeHook
	stepHooks        []StepHook
	violationHooks   []ViolationHook

	pluginCatalog map[PluginCategory][]PluginDescriptor
	pluginIndex   map[string]PluginDescriptor
}

// NewPluginBroker creates an empty broker instance.
func NewPluginBroker() *PluginBroker {
	return &PluginBroker{
		pluginCatalog: make(map[PluginCategory][]PluginDescriptor),
		pluginIndex:   make(map[string]PluginDescriptor),
	}
}

// RegisterVehicleSpawned adds a hook executed when a vehicle enters the graph.
func (p *PluginBroker) RegisterVehicleSpawned(h VehicleHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spawnedHooks = append(p.spawnedHooks, h)
}

// RegisterVehicleDespawned adds a hook executed when a vehicle leaves the graph.
func (p *PluginBroker) RegisterVehicleDespawned(h VehicleHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.despawnedHooks = append(p.despawnedHooks, h)
}

// RegisterNodeUpdated adds a hook executed after every arbitration pass of
// a node with at least one registered crosser.
func (p *PluginBroker) RegisterNodeUpdated(h NodeHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodeUpdatedHooks = append(p.nodeUpdatedHooks, h)
}

// RegisterStepCompleted adds a hook executed after every step.
func (p *PluginBroker) RegisterStepCompleted(h StepHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stepHooks = append(p.stepHooks, h)
}

// RegisterViolation adds a hook executed when a step aborts.
func (p *PluginBroker) RegisterViolation(h ViolationHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.violationHooks = append(p.violationHooks, h)
}

// EmitVehicleSpawned triggers spawn hooks.
func (p *PluginBroker) EmitVehicleSpawned(ctx *VehicleContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	p.mu.RLock()
	handlers := make([]VehicleHook, len(p.spawnedHooks))
	copy(handlers, p.spawnedHooks)
	p.mu.RUnlock()
	return run(handlers, ctx)
}

// EmitVehicleDespawned triggers despawn hooks.
func (p *PluginBroker) EmitVehicleDespawned(ctx *VehicleContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	p.mu.RLock()
	handlers := make([]VehicleHook, len(p.despawnedHooks))
	copy(handlers, p.despawnedHooks)
	p.mu.RUnlock()
	return run(handlers, ctx)
}

// EmitNodeUpdated triggers node hooks.
func (p *PluginBroker) EmitNodeUpdated(ctx *NodeContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	p.mu.RLock()
	handlers := make([]NodeHook, len(p.nodeUpdatedHooks))
	copy(handlers, p.nodeUpdatedHooks)
	p.mu.RUnlock()
	return run(handlers, ctx)
}

// EmitStepCompleted triggers step hooks.
func (p *PluginBroker) EmitStepCompleted(ctx *StepContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	p.mu.RLock()
	handlers := make([]StepHook, len(p.stepHooks))
	copy(handlers, p.stepHooks)
	p.mu.RUnlock()
	return run(handlers, ctx)
}

// EmitViolation triggers violation hooks.
func (p *PluginBroker) EmitViolation(ctx *ViolationContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	p.mu.RLock()
	handlers := make([]ViolationHook, len(p.violationHooks))
	copy(handlers, p.violationHooks)
	p.mu.RUnlock()
	return run(handlers, ctx)
}

// HasNodeHooks reports whether node events have any listener, so callers
// can skip building contexts nobody reads.
func (p *PluginBroker) HasNodeHooks() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.nodeUpdatedHooks) > 0
}

func run[C any, H ~func(*C) error](handlers []H, ctx *C) error {
	for _, handler := range handlers {
		if err := handler(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RegisterBundle registers a plugin descriptor together with all hook handlers.
func (p *PluginBroker) RegisterBundle(desc PluginDescriptor, bundle HookBundle) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.registerDescriptorLocked(desc)

	p.spawnedHooks = append(p.spawnedHooks, bundle.VehicleSpawned...)
	p.despawnedHooks = append(p.despawnedHooks, bundle.VehicleDespawned...)
	p.nodeUpdatedHooks = append(p.nodeUpdatedHooks, bundle.NodeUpdated...)
	p.stepHooks = append(p.stepHooks, bundle.StepCompleted...)
	p.violationHooks = append(p.violationHooks, bundle.Violation...)
}

// RegisterPluginMetadata stores plugin metadata without registering hooks.
func (p *PluginBroker) RegisterPluginMetadata(desc PluginDescriptor) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registerDescriptorLocked(desc)
}

// ListPlugins returns descriptors for plugins in the requested category.
func (p *PluginBroker) ListPlugins(category PluginCategory) []PluginDescriptor {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	catalog := p.pluginCatalog[category]
	if len(catalog) == 0 {
		return nil
	}
	out := make([]PluginDescriptor, len(catalog))
	copy(out, catalog)
	return out
}

// ListAllPlugins returns descriptors of every registered plugin.
func (p *PluginBroker) ListAllPlugins() []PluginDescriptor {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]PluginDescriptor, 0, len(p.pluginIndex))
	for _, desc := range p.pluginIndex {
		out = append(out, desc)
	}
	return out
}

func (p *PluginBroker) registerDescriptorLocked(desc PluginDescriptor) {
	if desc.Name == "" {
		return
	}
	if _, exists := p.pluginIndex[desc.Name]; exists {
		return
	}
	p.pluginIndex[desc.Name] = desc
	category := desc.Category
	p.pluginCatalog[category] = append(p.pluginCatalog[category], desc)
}
