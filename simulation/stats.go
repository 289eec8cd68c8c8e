package simulation

import (
	"time"

	"github.com/Readm/street_sim/vehicle"
	"github.com/samber/lo"
)

// Stats aggregates the vehicle population after a step.
type Stats struct {
	Step int `json:"step"`

	Total         int `json:"total"`
	NotSpawned    int `json:"notSpawned"`
	Active        int `json:"active"`
	Despawned     int `json:"despawned"`
	InvalidRoutes int `json:"invalidRoutes"`

	SpawnedThisStep   int `json:"spawnedThisStep"`
	DespawnedThisStep int `json:"despawnedThisStep"`

	MeanVelocity float64 `json:"meanVelocity"`
	MeanAnger    float64 `json:"meanAnger"`
	MaxAnger     int     `json:"maxAnger"`
	TotalAnger   int     `json:"totalAnger"`

	StepDuration     time.Duration `json:"stepDurationNs"`
	MeanStepDuration time.Duration `json:"meanStepDurationNs"`
}

// collectStats summarises vehicles. Timing and per-step counters are filled
// in by the manager.
func collectStats(step int, vehicles []*vehicle.Vehicle) Stats {
	active := lo.Filter(vehicles, func(v *vehicle.Vehicle, _ int) bool { return v.State() == vehicle.Spawned })
	s := Stats{
		Step:          step,
		Total:         len(vehicles),
		Active:        len(active),
		NotSpawned:    lo.CountBy(vehicles, func(v *vehicle.Vehicle) bool { return v.State() == vehicle.NotSpawned }),
		Despawned:     lo.CountBy(vehicles, func(v *vehicle.Vehicle) bool { return v.State() == vehicle.Despawned }),
		InvalidRoutes: lo.CountBy(vehicles, func(v *vehicle.Vehicle) bool { return v.RouteInvalid() }),
		TotalAnger:    lo.SumBy(vehicles, func(v *vehicle.Vehicle) int { return v.TotalAnger() }),
		MaxAnger:      lo.Max(lo.Map(vehicles, func(v *vehicle.Vehicle, _ int) int { return v.MaxAnger() })),
	}
	if len(active) > 0 {
		s.MeanVelocity = float64(lo.SumBy(active, func(v *vehicle.Vehicle) int { return v.Velocity() })) / float64(len(active))
		s.MeanAnger = float64(lo.SumBy(active, func(v *vehicle.Vehicle) int { return v.Anger() })) / float64(len(active))
	}
	return s
}
