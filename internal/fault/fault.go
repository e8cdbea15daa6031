// Package fault defines the error kinds shared by every NetFleet package.
//
// Packages declare their own sentinel errors and wrap one of the kinds
// below, so callers can branch on the remedial action without knowing the
// concrete error:
//
//	ErrValidation  bad input, nothing was emitted
//	ErrInvariant   the state machine rejected the operation
//	ErrConflict    the caller must reload and retry
//	ErrTransport   a remote call failed and may be retried
//	ErrFatal       corrupt data that is skipped, never retried
//	ErrNotFound    the named entity does not exist
package fault

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrValidation = errors.New("validation")
	ErrInvariant  = errors.New("invariant violation")
	ErrConflict   = errors.New("conflict")
	ErrTransport  = errors.New("transport")
	ErrFatal      = errors.New("fatal")
	ErrNotFound   = errors.New("not found")
)

var kinds = []error{ErrValidation, ErrInvariant, ErrConflict, ErrNotFound, ErrTransport, ErrFatal}

// KindOf returns the kind sentinel err wraps, or nil when err carries no kind.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsRetryable reports whether err is a transport failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport)
}

// ValueError reports a malformed value. Field names the offending input.
type ValueError struct {
	Field  string
	Value  string
	Reason error
}

func (e *ValueError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Reason)
}

func (e *ValueError) Unwrap() error { return e.Reason }

// Is makes every ValueError a validation error regardless of its reason.
func (e *ValueError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValueError.
func Invalid(field, value string, reason error) error {
	return &ValueError{Field: field, Value: value, Reason: reason}
}
