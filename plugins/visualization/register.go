package visualization

import (
	"fmt"
	"slices"

	"github.com/Readm/street_sim/core"
	"github.com/Readm/street_sim/hooks"
	"github.com/Readm/street_sim/vehicle"
	"github.com/samber/lo"
)

// Event kinds forwarded to sinks.
const (
	EventSpawned   = "spawned"
	EventDespawned = "despawned"
	EventViolation = "violation"
)

// Event is a simulation notification in display form.
type Event struct {
	Kind         string            `json:"kind"`
	Step         int               `json:"step"`
	Vehicle      *vehicle.Position `json:"vehicle,omitempty"`
	RouteInvalid bool              `json:"routeInvalid,omitempty"`
	Violation    string            `json:"violation,omitempty"`
	Edge         *core.EdgeKey     `json:"edge,omitempty"`
}

// Sink receives events on the simulation goroutine and must not block.
type Sink func(Event)

// Options configure visualization plugin registration.
type Options struct {
	Sinks map[string]Sink
}

// Register registers one visualization plugin per sink, named
// "visualization/<mode>".
func Register(reg *hooks.Registry, opts Options) error {
	if reg == nil {
		return fmt.Errorf("registry is nil")
	}
	modes := lo.Keys(opts.Sinks)
	slices.Sort(modes)
	for _, mode := range modes {
		sink := opts.Sinks[mode]
		if sink == nil {
			continue
		}
		name := pluginName(mode)
		desc := hooks.PluginDescriptor{
			Name:        name,
			Category:    hooks.PluginCategoryVisualization,
			Description: fmt.Sprintf("%s visualization plugin", mode),
		}
		if err := reg.RegisterGlobal(name, desc, func(b *hooks.PluginBroker) error {
			if b == nil {
				return fmt.Errorf("plugin broker is nil")
			}
			install(b, sink)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func install(b *hooks.PluginBroker, sink Sink) {
	b.RegisterBundle(hooks.PluginDescriptor{}, hooks.HookBundle{
		VehicleSpawned: []hooks.VehicleHook{func(ctx *hooks.VehicleContext) error {
			pos := ctx.Position
			sink(Event{Kind: EventSpawned, Step: ctx.Step, Vehicle: &pos, Edge: &pos.Edge})
			return nil
		}},
		VehicleDespawned: []hooks.VehicleHook{func(ctx *hooks.VehicleContext) error {
			pos := ctx.Position
			sink(Event{Kind: EventDespawned, Step: ctx.Step, Vehicle: &pos, RouteInvalid: ctx.RouteInvalid})
			return nil
		}},
		Violation: []hooks.ViolationHook{func(ctx *hooks.ViolationContext) error {
			ev := Event{Kind: EventViolation, Step: ctx.Step}
			if ctx.Err != nil {
				ev.Violation = ctx.Err.Error()
			}
			sink(ev)
			return nil
		}},
	})
}

func pluginName(mode string) string {
	return "visualization/" + mode
}
