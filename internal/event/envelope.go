package event

import (
	"time"

	"github.com/nerrad567/netfleet-core/internal/ids"
)

// Kind is the aggregate family an event belongs to.
type Kind string

// Aggregate kinds allowed in subjects.
const (
	KindDevice     Kind = "device"
	KindConnection Kind = "connection"
	KindTopology   Kind = "topology"
	KindInventory  Kind = "inventory"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDevice, KindConnection, KindTopology, KindInventory:
		return true
	}
	return false
}

// Payload is implemented by every event variant. Implementations use value
// receivers and are registered with Register.
type Payload interface {
	EventType() string
	AggregateKind() Kind
}

// Envelope wraps a payload with identity, timing and causal metadata.
type Envelope struct {
	EventID       ids.EventID
	AggregateID   string
	CorrelationID ids.CorrelationID
	CausationID   ids.CausationID
	Timestamp     time.Time
	Version       uint64
	Payload       Payload
}

// Type returns the payload variant name.
func (e Envelope) Type() string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.EventType()
}

// Kind returns the aggregate kind of the payload.
func (e Envelope) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.AggregateKind()
}

// Metadata is the causal context an operation stamps onto its events.
type Metadata struct {
	CorrelationID ids.CorrelationID
	CausationID   ids.CausationID
}

// NewMetadata starts a fresh correlation whose first event is caused by the
// command itself.
func NewMetadata() Metadata {
	return MetadataFor(ids.NewCorrelationID())
}

// MetadataFor continues an existing correlation.
func MetadataFor(corr ids.CorrelationID) Metadata {
	return Metadata{CorrelationID: corr, CausationID: ids.CausedByCommand(corr)}
}

// Caused returns m with causation pointing at ev.
func (m Metadata) Caused(ev ids.EventID) Metadata {
	m.CausationID = ids.CausedByEvent(ev)
	return m
}

// Builder stamps a sequence of envelopes for one aggregate. The first
// envelope is caused by the metadata's causation; each later one is caused
// by the envelope before it.
type Builder struct {
	meta        Metadata
	aggregateID string
	now         func() time.Time
	out         []Envelope
}

// NewBuilder returns a Builder for aggregateID.
func NewBuilder(meta Metadata, aggregateID string) *Builder {
	if meta.CorrelationID.IsZero() {
		meta = NewMetadata()
	}
	if meta.CausationID.IsZero() {
		meta.CausationID = ids.CausedByCommand(meta.CorrelationID)
	}
	return &Builder{meta: meta, aggregateID: aggregateID, now: time.Now}
}

// WithClock overrides the timestamp source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Add appends an envelope for p at version.
func (b *Builder) Add(version uint64, p Payload) Envelope {
	env := Envelope{
		EventID:       ids.NewEventID(),
		AggregateID:   b.aggregateID,
		CorrelationID: b.meta.CorrelationID,
		CausationID:   b.meta.CausationID,
		Timestamp:     b.now().UTC(),
		Version:       version,
		Payload:       p,
	}
	b.meta = b.meta.Caused(env.EventID)
	b.out = append(b.out, env)
	return env
}

// Envelopes returns everything added so far.
func (b *Builder) Envelopes() []Envelope { return b.out }
