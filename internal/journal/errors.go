package journal

import (
	"errors"
	"fmt"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

var (
	// ErrClosed is returned by every operation on a closed store.
	ErrClosed = errors.New("journal: closed")

	// ErrUnavailable wraps storage failures that may succeed on retry.
	ErrUnavailable = fmt.Errorf("%w: journal: unavailable", fault.ErrTransport)

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = fmt.Errorf("%w: journal: invalid config", fault.ErrValidation)

	// ErrInvalidEnvelope is returned when a batch contains an envelope that
	// cannot be stored.
	ErrInvalidEnvelope = fmt.Errorf("%w: journal: invalid envelope", fault.ErrValidation)

	// ErrVersionConflict is returned when an envelope is not the next
	// version of its aggregate. The whole batch is rejected.
	ErrVersionConflict = fmt.Errorf("%w: journal: version conflict", fault.ErrConflict)

	// ErrPrefixInUse is returned when another stream already owns the prefix.
	ErrPrefixInUse = fmt.Errorf("%w: journal: subject prefix owned by another stream", fault.ErrConflict)

	// ErrSubscriptionClosed is returned by Next after Close.
	ErrSubscriptionClosed = errors.New("journal: subscription closed")

	// ErrInFlight is returned by Next while the previous message is neither
	// acked nor nak'd.
	ErrInFlight = errors.New("journal: previous message not acknowledged")
)
