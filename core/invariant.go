package core

import "fmt"

// ViolationKind names the invariant that was broken.
type ViolationKind string

const (
	ViolationOccupancyConflict ViolationKind = "occupancy conflict"
	ViolationVelocityUnderflow ViolationKind = "velocity underflow"
	ViolationPriorityUnderflow ViolationKind = "priority counter underflow"
	ViolationLaneState         ViolationKind = "lane state"
)

// InvariantViolation is the diagnostic carried by a fatal simulation panic.
// Violations are never recovered locally; the step scheduler recovers them at
// the phase barrier, logs them and refuses to continue.
type InvariantViolation struct {
	Kind      ViolationKind
	VehicleID uint64
	Edge      string
	Lane      int
	Cell      int
	Velocity  int
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation (%s): vehicle=%d edge=%s lane=%d cell=%d velocity=%d: %s",
		e.Kind, e.VehicleID, e.Edge, e.Lane, e.Cell, e.Velocity, e.Detail)
}

// Violate aborts the current step with the given diagnostic.
func Violate(v *InvariantViolation) {
	panic(v)
}

// AsInvariantViolation extracts a violation from a recovered panic value.
func AsInvariantViolation(r any) (*InvariantViolation, bool) {
	switch v := r.(type) {
	case *InvariantViolation:
		return v, true
	case InvariantViolation:
		return &v, true
	default:
		return nil, false
	}
}
