package network

import (
	"fmt"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

// Reasons carried by *fault.ValueError.
var (
	ErrInvalidLength = fmt.Errorf("%w: invalid length", fault.ErrValidation)
	ErrInvalidFormat = fmt.Errorf("%w: invalid format", fault.ErrValidation)
	ErrOutOfRange    = fmt.Errorf("%w: out of range", fault.ErrValidation)
	ErrEmpty         = fmt.Errorf("%w: empty", fault.ErrValidation)
)
