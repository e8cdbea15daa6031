// Package audit keeps a queryable trail of the mutating operations the API
// accepted or refused.
//
// The event journal only holds what was committed. The audit trail also
// records calls that were rejected by validation or by the device state
// machine, keyed by the correlation id the caller can find in the
// X-Correlation-ID response header.
package audit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nerrad567/netfleet-core/internal/fault"
)

// ErrUnknownOutcome rejects a filter on an outcome that is never recorded.
var ErrUnknownOutcome = errors.New("audit: unknown outcome")

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Outcome classifies how an operation ended.
type Outcome string

// Outcomes.
const (
	OutcomeCommitted Outcome = "committed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// OutcomeFor maps an HTTP status to an Outcome.
func OutcomeFor(status int) Outcome {
	switch {
	case status >= 500: //nolint:mnd // HTTP status classes
		return OutcomeFailed
	case status >= 400: //nolint:mnd // HTTP status classes
		return OutcomeRejected
	default:
		return OutcomeCommitted
	}
}

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCommitted, OutcomeRejected, OutcomeFailed:
		return true
	}
	return false
}

// Entry is one audited operation.
type Entry struct {
	ID            string         `json:"id"`
	Action        string         `json:"action"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id,omitempty"`
	CorrelationID string         `json:"correlation_id"`
	Status        int            `json:"status"`
	Outcome       Outcome        `json:"outcome"`
	Details       map[string]any `json:"details,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Filter selects entries. Empty fields match everything.
type Filter struct {
	Action        string
	EntityType    string
	EntityID      string
	CorrelationID string
	Outcome       Outcome
	Limit         int // DefaultLimit when zero, capped at MaxLimit
	Offset        int
}

// Validate rejects filters that can never match.
func (f Filter) Validate() error {
	if f.Outcome != "" && !f.Outcome.Valid() {
		return fault.Invalid("outcome", string(f.Outcome), ErrUnknownOutcome)
	}
	return nil
}

func (f Filter) clamped() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f Filter) matches(e *Entry) bool {
	return (f.Action == "" || e.Action == f.Action) &&
		(f.EntityType == "" || e.EntityType == f.EntityType) &&
		(f.EntityID == "" || e.EntityID == f.EntityID) &&
		(f.CorrelationID == "" || e.CorrelationID == f.CorrelationID) &&
		(f.Outcome == "" || e.Outcome == f.Outcome)
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and queries audit entries.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) (*ListResult, error)
}

// prepare fills the generated fields of e.
func prepare(e *Entry, now func() time.Time) error {
	if e.Action == "" || e.EntityType == "" {
		return fmt.Errorf("%w: audit entry needs an action and an entity type", fault.ErrValidation)
	}
	if e.ID == "" {
		e.ID = "op-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	if e.Outcome == "" {
		e.Outcome = OutcomeFor(e.Status)
	}
	return nil
}

// MemoryRepository keeps entries in process memory. It backs the memory
// journal, where nothing else is persisted either.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewMemoryRepository returns an empty in-memory trail.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{now: time.Now}
}

// Record appends e, filling its ID, timestamp and outcome when unset.
func (m *MemoryRepository) Record(_ context.Context, e *Entry) error {
	if err := prepare(e, m.now); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *e
	stored.Details = maps.Clone(e.Details)
	m.entries = append(m.entries, stored)
	return nil
}

// List returns matching entries, newest first.
func (m *MemoryRepository) List(_ context.Context, f Filter) (*ListResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	f = f.clamped()

	m.mu.RLock()
	var matched []Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if f.matches(&m.entries[i]) {
			matched = append(matched, m.entries[i])
		}
	}
	m.mu.RUnlock()

	res := &ListResult{Entries: []Entry{}, Total: len(matched), Limit: f.Limit, Offset: f.Offset}
	if f.Offset < len(matched) {
		end := min(f.Offset+f.Limit, len(matched))
		res.Entries = slices.Clone(matched[f.Offset:end])
	}
	return res, nil
}
