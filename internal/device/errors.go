package device

import (
	"fmt"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrInvalidTransition) {
//	    // state machine refused the operation
//	}
var (
	// ErrInvalidTransition is wrapped by every *TransitionError.
	ErrInvalidTransition = fmt.Errorf("%w: device: invalid transition", fault.ErrInvariant)

	// ErrTerminal is returned for any mutation of a decommissioned device.
	ErrTerminal = fmt.Errorf("%w: device: decommissioned", fault.ErrInvariant)

	// ErrVersionConflict is returned when an event does not follow the
	// aggregate's current version.
	ErrVersionConflict = fmt.Errorf("%w: device: version conflict", fault.ErrConflict)

	// ErrForeignEvent is returned when an event belongs to another aggregate.
	ErrForeignEvent = fmt.Errorf("%w: device: event for another aggregate", fault.ErrConflict)

	// ErrNoHistory is returned when rehydrating from an empty event sequence.
	ErrNoHistory = fmt.Errorf("%w: device: no events", fault.ErrNotFound)

	// ErrInvalidName is returned for blank device names.
	ErrInvalidName = fmt.Errorf("%w: device: invalid name", fault.ErrValidation)

	// ErrInvalidType is returned when a device type string cannot be parsed.
	ErrInvalidType = fmt.Errorf("%w: device: invalid type", fault.ErrValidation)

	// ErrInvalidState is returned when a state string cannot be parsed.
	ErrInvalidState = fmt.Errorf("%w: device: invalid state", fault.ErrValidation)

	// ErrMissingField is returned when a required operation argument is blank.
	ErrMissingField = fmt.Errorf("%w: device: missing field", fault.ErrValidation)
)

// TransitionError reports an operation the state machine does not allow
// from the aggregate's current state.
type TransitionError struct {
	Op   string
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("device: %s: invalid transition from %s to %s", e.Op, e.From, e.To)
}

// Unwrap exposes ErrInvalidTransition, plus ErrTerminal when the device
// has been decommissioned.
func (e *TransitionError) Unwrap() []error {
	if e.From == StateDecommissioned {
		return []error{ErrInvalidTransition, ErrTerminal}
	}
	return []error{ErrInvalidTransition}
}
