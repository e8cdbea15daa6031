package event

import (
	"fmt"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

var (
	// ErrCorruptEnvelope is returned for envelopes that cannot be trusted:
	// unknown schema version or variant, missing correlation or causation.
	ErrCorruptEnvelope = fmt.Errorf("%w: event: corrupt envelope", fault.ErrFatal)

	// ErrInvalidSubject is returned for prefixes or patterns outside the grammar.
	ErrInvalidSubject = fmt.Errorf("%w: event: invalid subject", fault.ErrValidation)
)
