package vehicle

import (
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"
)

// ErrInvalidBehavior is wrapped by every behavior validation failure.
var ErrInvalidBehavior = errors.New("invalid vehicle behavior")

// Behavior is the driving capability of a vehicle class. One value is
// handed to every vehicle of a scenario at construction and never changes
// during a run, except Blocking which vehicles copy into their own state.
type Behavior struct {
	// Acceleration maps the current velocity to the next one before the
	// speed limit is applied. nil means unit acceleration.
	Acceleration func(v int) int `json:"-"`
	// Dawdle maps a velocity to its dawdled value. nil means v-1, floored
	// at 0.
	Dawdle func(v int) int `json:"-"`

	MaxVelocity  int     `json:"maxVelocity"`
	DashFactor   float64 `json:"dashFactor"`
	DawdleFactor float64 `json:"dawdleFactor"`
	// Blocking vehicles stand still once spawned.
	Blocking bool `json:"blocking"`
}

// DefaultBehavior is a regular car.
func DefaultBehavior() Behavior {
	return Behavior{
		Acceleration: UnitAcceleration,
		Dawdle:       UnitDawdle,
		MaxVelocity:  5,
		DashFactor:   0.1,
		DawdleFactor: 0.2,
	}
}

// UnitAcceleration adds one cell per step.
func UnitAcceleration(v int) int { return v + 1 }

// UnitDawdle removes one cell per step without going below zero.
func UnitDawdle(v int) int { return max(0, v-1) }

// Validate checks the factor constraints and the speed limit.
func (b Behavior) Validate() error {
	if b.MaxVelocity <= 0 {
		return fmt.Errorf("%w: max velocity must be positive, got %d", ErrInvalidBehavior, b.MaxVelocity)
	}
	if math.IsNaN(b.DashFactor) || math.IsNaN(b.DawdleFactor) {
		return fmt.Errorf("%w: factors must be numbers (dash=%v dawdle=%v)", ErrInvalidBehavior, b.DashFactor, b.DawdleFactor)
	}
	if b.DashFactor < 0 || b.DawdleFactor < 0 {
		return fmt.Errorf("%w: factors must be non-negative (dash=%v dawdle=%v)", ErrInvalidBehavior, b.DashFactor, b.DawdleFactor)
	}
	if b.DashFactor+b.DawdleFactor > 1 {
		return fmt.Errorf("%w: dash factor %v + dawdle factor %v exceeds 1", ErrInvalidBehavior, b.DashFactor, b.DawdleFactor)
	}
	return nil
}

func (b Behavior) accelerate(v int) int {
	next := v + 1
	if b.Acceleration != nil {
		next = b.Acceleration(v)
	}
	return lo.Clamp(next, 0, b.MaxVelocity)
}

// dawdle never speeds a vehicle up and never makes it go backwards.
func (b Behavior) dawdle(v int) int {
	next := v - 1
	if b.Dawdle != nil {
		next = b.Dawdle(v)
	}
	return lo.Clamp(next, 0, v)
}

// dawdleProbability is the chance to dawdle given the vehicle did not dash.
// Callers must not ask when the vehicle dashed: with DashFactor 1 every
// vehicle dashes and the ratio is undefined.
func (b Behavior) dawdleProbability() float64 {
	return b.DawdleFactor / (1 - b.DashFactor)
}
