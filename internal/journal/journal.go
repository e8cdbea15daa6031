package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/fault"
)

// Journal is the append-only event store.
type Journal interface {
	// Append atomically persists envs in order. Duplicates by message id
	// within the duplicate window are dropped without error. Every other
	// envelope must carry the next version of its aggregate, or the batch
	// fails with ErrVersionConflict and nothing is stored.
	Append(ctx context.Context, envs []event.Envelope) error

	// Load returns the events of one aggregate, oldest first. An unknown
	// aggregate yields an empty slice.
	Load(ctx context.Context, aggregateID string) ([]event.Envelope, error)

	// Subscribe opens a pull subscription.
	Subscribe(ctx context.Context, opts SubscribeOptions) (Subscription, error)

	Close() error
}

// AggregateLister enumerates aggregates of one kind in first-seen order.
// Both stores implement it; the orchestrator uses it to warm its cache.
type AggregateLister interface {
	Aggregates(ctx context.Context, kind event.Kind) ([]string, error)
}

// SubscribeOptions selects what a subscription receives.
type SubscribeOptions struct {
	// Pattern filters subjects; "*" matches one token, ">" the tail.
	Pattern string
	// Durable names a consumer whose position survives restarts.
	// Empty means ephemeral.
	Durable string
	// DeliverAll starts an ephemeral subscription at the first stored event
	// rather than the tail. Durables with no stored position always start
	// at the beginning.
	DeliverAll bool
}

// Subscription is a pull consumer. Next must not be called concurrently.
type Subscription interface {
	// Next blocks until a matching event is available or ctx is done.
	Next(ctx context.Context) (*Message, error)
	Close() error
}

// Message is one delivered event.
type Message struct {
	Envelope event.Envelope
	Subject  string
	Sequence uint64
	Headers  map[string]string

	sub *subscription
}

// Ack marks the message processed. Durable positions advance on Ack.
func (m *Message) Ack(ctx context.Context) error {
	return m.sub.ack(ctx, m)
}

// Nak returns the message so the next call to Next redelivers it.
func (m *Message) Nak(ctx context.Context) error {
	return m.sub.nak(m)
}

// Logger is the logging surface the stores need.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher fans committed events out to external observers.
// The MQTT client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Option configures a store.
type Option func(*options)

type options struct {
	logger    Logger
	publisher Publisher
	qos       byte
	topic     TopicFunc
	now       func() time.Time
}

func newOptions(opts []Option) options {
	o := options{logger: noopLogger{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the store logger.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPublisher enables post-commit fan-out.
func WithPublisher(p Publisher, qos byte) Option {
	return func(o *options) {
		o.publisher = p
		o.qos = qos
	}
}

// TopicFunc names the fan-out topic of an aggregate kind and variant token.
// The MQTT client's Topics.Event has this shape.
type TopicFunc func(kind, variant string) string

// WithTopics publishes fan-out on the topics fn builds instead of
// <subject prefix>/<kind>/<variant>.
func WithTopics(fn TopicFunc) Option {
	return func(o *options) { o.topic = fn }
}

// WithClock overrides the clock used for dedup and retention.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// pending is an envelope prepared for storage.
type pending struct {
	env     event.Envelope
	subject string
	msgID   string
	data    []byte
}

func prepare(prefix string, envs []event.Envelope) ([]pending, error) {
	out := make([]pending, 0, len(envs))
	for i, env := range envs {
		if env.Payload == nil {
			return nil, fmt.Errorf("%w: envelope %d has no payload", ErrInvalidEnvelope, i)
		}
		if strings.TrimSpace(env.AggregateID) == "" {
			return nil, fmt.Errorf("%w: envelope %d has no aggregate id", ErrInvalidEnvelope, i)
		}
		data, err := event.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("%w: envelope %d: %v", ErrInvalidEnvelope, i, err)
		}
		out = append(out, pending{
			env:     env,
			subject: event.Subject(prefix, env),
			msgID:   event.MsgID(env),
			data:    data,
		})
	}
	return out, nil
}

// checkVersion reports whether v extends last by exactly one.
func checkVersion(aggregateID string, last, v uint64) error {
	if v != last+1 {
		return fmt.Errorf("%w: %s at version %d, stored at %d", ErrVersionConflict, aggregateID, v, last)
	}
	return nil
}

// decode turns a stored record into a message, reporting corrupt rows.
func decode(sub *subscription, seq uint64, subject string, data []byte) (*Message, error) {
	env, err := event.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Envelope: env,
		Subject:  subject,
		Sequence: seq,
		Headers:  event.Headers(env),
		sub:      sub,
	}, nil
}

// fanout is the JSON body published to MQTT.
type fanout struct {
	Subject string            `json:"subject"`
	Headers map[string]string `json:"headers"`
	Event   json.RawMessage   `json:"event"`
}

// publish sends committed events to the configured publisher. Failures are
// logged and never returned.
func (o options) publish(prefix string, batch []pending) {
	if o.publisher == nil {
		return
	}
	topicOf := o.topic
	if topicOf == nil {
		topicOf = func(kind, variant string) string { return prefix + "/" + kind + "/" + variant }
	}
	for _, p := range batch {
		body, err := json.Marshal(fanout{
			Subject: p.subject,
			Headers: event.Headers(p.env),
			Event:   p.data,
		})
		if err != nil {
			o.logger.Warn("journal fan-out encode failed", "msg_id", p.msgID, "error", err)
			continue
		}
		topic := topicOf(string(p.env.Kind()), event.VariantToken(p.env.Type()))
		if err := o.publisher.Publish(topic, body, o.qos, false); err != nil {
			o.logger.Warn("journal fan-out publish failed", "topic", topic, "error", err)
		}
	}
}

// loadContext applies DefaultLoadTimeout when ctx has no deadline.
func loadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultLoadTimeout)
}

// storageError classifies a backend failure: cancellation stays as is so it
// is never retried, anything else is transport.
func storageError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("journal: %s: %w", op, ctxErr)
	}
	if fault.KindOf(err) != nil {
		return fmt.Errorf("journal: %s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
