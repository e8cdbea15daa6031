package topology

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nerrad567/netfleet-core/internal/journal"
	"github.com/nerrad567/netfleet-core/internal/retry"
)

// Logger is the logging surface the projector needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Projector keeps a Graph current by consuming the journal.
//
// It reads the whole stream from the first event on every start, because
// the graph lives in memory.
type Projector struct {
	graph   *Graph
	j       journal.Journal
	pattern string
	policy  retry.Policy
	log     Logger

	lastSeq atomic.Uint64
}

// ProjectorOption configures a Projector.
type ProjectorOption func(*Projector)

// WithRetryPolicy bounds retries of transport failures.
func WithRetryPolicy(policy retry.Policy) ProjectorOption {
	return func(p *Projector) { p.policy = policy }
}

// WithProjectorLogger sets the logger.
func WithProjectorLogger(l Logger) ProjectorOption {
	return func(p *Projector) {
		if l != nil {
			p.log = l
		}
	}
}

// NewProjector builds a projector for every subject under prefix.
func NewProjector(g *Graph, j journal.Journal, prefix string, opts ...ProjectorOption) *Projector {
	p := &Projector{
		graph:   g,
		j:       j,
		pattern: prefix + ".>",
		policy:  retry.DefaultPolicy,
		log:     noopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Graph returns the projected graph.
func (p *Projector) Graph() *Graph { return p.graph }

// LastSequence returns the journal sequence of the last applied event.
func (p *Projector) LastSequence() uint64 { return p.lastSeq.Load() }

// Run consumes events until ctx is done, returning nil on cancellation.
// A transport failure that outlasts the retry policy ends Run with that
// error. Corrupt records are skipped by the journal.
func (p *Projector) Run(ctx context.Context) error {
	notify := func(err error, wait time.Duration) {
		p.log.Warn("topology projector retrying", "wait", wait, "error", err)
	}

	sub, err := retry.Value(ctx, p.policy, func() (journal.Subscription, error) {
		return p.j.Subscribe(ctx, journal.SubscribeOptions{
			Pattern:    p.pattern,
			DeliverAll: true,
		})
	}, notify)
	if err != nil {
		if errors.Is(err, journal.ErrClosed) {
			return nil
		}
		return stopped(ctx, err)
	}
	defer sub.Close()

	p.log.Info("topology projector started", "pattern", p.pattern)

	for {
		msg, err := retry.Value(ctx, p.policy, func() (*journal.Message, error) {
			return sub.Next(ctx)
		}, notify)
		if err != nil {
			if errors.Is(err, journal.ErrSubscriptionClosed) {
				return nil
			}
			return stopped(ctx, err)
		}

		p.graph.Apply(msg.Envelope)
		p.lastSeq.Store(msg.Sequence)

		if err := retry.Do(ctx, p.policy, func() error { return msg.Ack(ctx) }, notify); err != nil {
			return stopped(ctx, err)
		}
	}
}

func stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
