package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/netfleet-core/internal/ids"
)

// SchemaVersion is written on every envelope this build produces.
const SchemaVersion = "v1"

// supportedSchemas is the version window Unmarshal accepts.
var supportedSchemas = map[string]bool{SchemaVersion: true}

type wireEnvelope struct {
	SchemaVersion string            `json:"schema_version"`
	EventID       ids.EventID       `json:"event_id"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateKind Kind              `json:"aggregate_kind"`
	EventType     string            `json:"event_type"`
	CorrelationID ids.CorrelationID `json:"correlation_id"`
	CausationID   ids.CausationID   `json:"causation_id"`
	Timestamp     time.Time         `json:"timestamp"`
	Version       uint64            `json:"version"`
	Payload       json.RawMessage   `json:"payload"`
}

// Marshal encodes e as a self-describing JSON document.
func Marshal(e Envelope) ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("event: marshal %s: nil payload", e.EventID)
	}
	if e.CorrelationID.IsZero() || e.CausationID.IsZero() {
		return nil, fmt.Errorf("event: marshal %s: %w: missing correlation or causation", e.EventID, ErrCorruptEnvelope)
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("event: marshal payload %s: %w", e.Type(), err)
	}
	return json.Marshal(wireEnvelope{
		SchemaVersion: SchemaVersion,
		EventID:       e.EventID,
		AggregateID:   e.AggregateID,
		AggregateKind: e.Kind(),
		EventType:     e.Type(),
		CorrelationID: e.CorrelationID,
		CausationID:   e.CausationID,
		Timestamp:     e.Timestamp.UTC(),
		Version:       e.Version,
		Payload:       payload,
	})
}

// Unmarshal decodes an envelope written by Marshal. Anything that fails to
// decode, names an unsupported schema or unknown variant, or lacks its
// causal ids is reported as ErrCorruptEnvelope.
func Unmarshal(data []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrCorruptEnvelope, err)
	}
	if !supportedSchemas[w.SchemaVersion] {
		return Envelope{}, fmt.Errorf("%w: schema version %q", ErrCorruptEnvelope, w.SchemaVersion)
	}
	if w.CorrelationID.IsZero() || w.CausationID.IsZero() {
		return Envelope{}, fmt.Errorf("%w: event %s missing correlation or causation", ErrCorruptEnvelope, w.EventID)
	}
	reg, ok := lookup(w.EventType)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: unknown event type %q", ErrCorruptEnvelope, w.EventType)
	}
	if w.AggregateKind != "" && w.AggregateKind != reg.kind {
		return Envelope{}, fmt.Errorf("%w: %s is a %s event, envelope says %s", ErrCorruptEnvelope, w.EventType, reg.kind, w.AggregateKind)
	}
	p, err := reg.decode(w.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: payload %s: %v", ErrCorruptEnvelope, w.EventType, err)
	}
	return Envelope{
		EventID:       w.EventID,
		AggregateID:   w.AggregateID,
		CorrelationID: w.CorrelationID,
		CausationID:   w.CausationID,
		Timestamp:     w.Timestamp.UTC(),
		Version:       w.Version,
		Payload:       p,
	}, nil
}
