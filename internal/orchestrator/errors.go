package orchestrator

import (
	"fmt"

	"github.com/nerrad567/netfleet-core/internal/fault"
	"github.com/nerrad567/netfleet-core/internal/ids"
)

var (
	// ErrDeviceNotFound is returned for ids the service does not know.
	ErrDeviceNotFound = fmt.Errorf("%w: orchestrator: device not found", fault.ErrNotFound)

	// ErrConnectionNotFound is returned for unknown connection ids.
	ErrConnectionNotFound = fmt.Errorf("%w: orchestrator: connection not found", fault.ErrNotFound)

	// ErrEndpointUnavailable is returned when a connection endpoint is
	// unknown or decommissioned.
	ErrEndpointUnavailable = fmt.Errorf("%w: orchestrator: endpoint unavailable", fault.ErrValidation)

	// ErrNoInventory is returned by inventory operations when none is wired.
	ErrNoInventory = fmt.Errorf("%w: orchestrator: no inventory configured", fault.ErrValidation)
)

// FanoutError reports a vendor or inventory call that failed after the
// operation's events were committed. The journal and cache reflect the
// operation; only the external side effect is missing.
type FanoutError struct {
	System   string // vendor system or inventory system name
	Op       string
	DeviceID ids.DeviceID
	Err      error
}

func (e *FanoutError) Error() string {
	return fmt.Sprintf("orchestrator: %s %s for %s: %v", e.System, e.Op, e.DeviceID, e.Err)
}

func (e *FanoutError) Unwrap() error { return e.Err }
