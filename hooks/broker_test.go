package hooks

import (
	"errors"
	"testing"

	"github.com/Readm/street_sim/core"
	"github.com/Readm/street_sim/vehicle"
)

func TestVehicleHooksRunInOrder(t *testing.T) {
	b := NewPluginBroker()
	order := make([]string, 0, 3)

	b.RegisterVehicleSpawned(func(ctx *VehicleContext) error {
		order = append(order, "spawn-1")
		return nil
	})
	b.RegisterVehicleSpawned(func(ctx *VehicleContext) error {
		order = append(order, "spawn-2")
		return nil
	})
	b.RegisterVehicleDespawned(func(ctx *VehicleContext) error {
		if !ctx.RouteInvalid {
			t.Fatalf("expected invalid route flag to reach the hook")
		}
		order = append(order, "despawn")
		return nil
	})

	ctx := &VehicleContext{Step: 3, Position: vehicle.Position{ID: 7}}
	if err := b.EmitVehicleSpawned(ctx); err != nil {
		t.Fatalf("EmitVehicleSpawned error: %v", err)
	}
	ctx.RouteInvalid = true
	if err := b.EmitVehicleDespawned(ctx); err != nil {
		t.Fatalf("EmitVehicleDespawned error: %v", err)
	}

	if len(order) != 3 || order[0] != "spawn-1" || order[1] != "spawn-2" || order[2] != "despawn" {
		t.Fatalf("unexpected hook order: %v", order)
	}
}

func TestHookErrorStopsProcessing(t *testing.T) {
	b := NewPluginBroker()
	calls := 0

	b.RegisterStepCompleted(func(ctx *StepContext) error {
		calls++
		return errors.New("hook fail")
	})
	b.RegisterStepCompleted(func(ctx *StepContext) error {
		calls++
		return nil
	})

	if err := b.EmitStepCompleted(&StepContext{Step: 1}); err == nil {
		t.Fatalf("expected error from step hook")
	}
	if calls != 1 {
		t.Fatalf("expected only first hook to run, calls=%d", calls)
	}
}

func TestViolationAndNodeHooks(t *testing.T) {
	b := NewPluginBroker()
	if b.HasNodeHooks() {
		t.Fatalf("fresh broker must have no node hooks")
	}

	var seen *core.InvariantViolation
	var granted []uint64
	b.RegisterBundle(PluginDescriptor{Name: "watch", Category: PluginCategoryInstrumentation}, HookBundle{
		Violation: []ViolationHook{func(ctx *ViolationContext) error {
			seen = ctx.Violation
			return nil
		}},
		NodeUpdated: []NodeHook{func(ctx *NodeContext) error {
			granted = ctx.Granted
			return nil
		}},
	})
	if !b.HasNodeHooks() {
		t.Fatalf("bundle must register node hooks")
	}

	iv := &core.InvariantViolation{Kind: core.ViolationVelocityUnderflow, VehicleID: 4}
	if err := b.EmitViolation(&ViolationContext{Step: 9, Seed: 1, Violation: iv}); err != nil {
		t.Fatalf("EmitViolation error: %v", err)
	}
	if seen != iv {
		t.Fatalf("violation hook did not receive the diagnostic")
	}
	if err := b.EmitNodeUpdated(&NodeContext{NodeID: 2, Granted: []uint64{5}}); err != nil {
		t.Fatalf("EmitNodeUpdated error: %v", err)
	}
	if len(granted) != 1 || granted[0] != 5 {
		t.Fatalf("unexpected granted ids %v", granted)
	}
	if got := b.ListPlugins(PluginCategoryInstrumentation); len(got) != 1 || got[0].Name != "watch" {
		t.Fatalf("unexpected catalog %v", got)
	}
}

func TestNilBrokerIsSafe(t *testing.T) {
	var b *PluginBroker
	b.RegisterVehicleSpawned(func(*VehicleContext) error { return nil })
	if err := b.EmitVehicleSpawned(&VehicleContext{}); err != nil {
		t.Fatalf("nil broker must not fail: %v", err)
	}
	if b.ListAllPlugins() != nil {
		t.Fatalf("nil broker must list nothing")
	}
}
