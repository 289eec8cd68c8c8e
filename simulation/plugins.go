package simulation

import (
	"errors"

	"github.com/Readm/street_sim/core"
	"github.com/Readm/street_sim/hooks"
	"github.com/Readm/street_sim/logger"
)

const (
	progressInterval = 100
	// junctionWatchThreshold is the queue length at which junction-watch
	// starts warning.
	junctionWatchThreshold = 4
)

// NewDefaultRegistry returns a registry bound to broker with the built-in
// plugins:
//
//	trace           debug line per spawn and despawn
//	progress        info line every 100 steps
//	junction-watch  warns when vehicles queue at a node (node plugin)
func NewDefaultRegistry(broker *hooks.PluginBroker, log *logger.Logger) *hooks.Registry {
	if log == nil {
		log = logger.GetLogger()
	}
	reg := hooks.NewRegistry(broker)
	if err := RegisterDefaultPlugins(reg, log); err != nil {
		log.Warnf("built-in plugins: %v", err)
	}
	return reg
}

// RegisterDefaultPlugins adds the built-in plugins to reg. Every plugin is
// attempted; the failures are joined.
func RegisterDefaultPlugins(reg *hooks.Registry, log *logger.Logger) error {
	if log == nil {
		log = logger.GetLogger()
	}
	var errs []error
	errs = append(errs, reg.RegisterGlobal("trace", hooks.PluginDescriptor{
		Name:        "trace",
		Category:    hooks.PluginCategoryInstrumentation,
		Description: "Logs every vehicle spawn and despawn at debug level",
	}, func(b *hooks.PluginBroker) error {
		b.RegisterVehicleSpawned(func(ctx *hooks.VehicleContext) error {
			log.Debugf("step %d: vehicle %d spawned on %s cell %d", ctx.Step, ctx.Position.ID, ctx.Position.Edge, ctx.Position.Cell)
			return nil
		})
		b.RegisterVehicleDespawned(func(ctx *hooks.VehicleContext) error {
			if ctx.RouteInvalid {
				log.Warnf("step %d: vehicle %d despawned with an invalid route", ctx.Step, ctx.Position.ID)
				return nil
			}
			log.Debugf("step %d: vehicle %d despawned", ctx.Step, ctx.Position.ID)
			return nil
		})
		return nil
	}))

	errs = append(errs, reg.RegisterGlobal("progress", hooks.PluginDescriptor{
		Name:        "progress",
		Category:    hooks.PluginCategoryInstrumentation,
		Description: "Logs active vehicle count periodically",
	}, func(b *hooks.PluginBroker) error {
		b.RegisterStepCompleted(func(ctx *hooks.StepContext) error {
			if ctx.Step%progressInterval == 0 {
				log.Infof("step %d: %d active vehicles, last step took %s", ctx.Step, ctx.Active, ctx.Duration)
			}
			return nil
		})
		return nil
	}))

	errs = append(errs, reg.RegisterNode("junction-watch", hooks.PluginDescriptor{
		Name:        "junction-watch",
		Category:    hooks.PluginCategoryJunction,
		Description: "Warns when vehicles queue at a node",
	}, func(nodeID core.NodeID, b *hooks.PluginBroker) error {
		b.RegisterNodeUpdated(func(ctx *hooks.NodeContext) error {
			if ctx.NodeID != nodeID || len(ctx.Waiting) < junctionWatchThreshold {
				return nil
			}
			log.Warnf("step %d: %d vehicles waiting at node %d", ctx.Step, len(ctx.Waiting), nodeID)
			return nil
		})
		return nil
	}))

	return errors.Join(errs...)
}
