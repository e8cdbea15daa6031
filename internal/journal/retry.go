package journal

import (
	"context"
	"time"

	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/retry"
)

// retrying decorates a Journal so transport failures of Append and Load are
// retried with backoff. Dedup by message id makes a repeated Append safe.
type retrying struct {
	Journal
	policy retry.Policy
	log    Logger
}

// WithRetry wraps j. Only transport-kind errors are retried.
func WithRetry(j Journal, policy retry.Policy, log Logger) Journal {
	if log == nil {
		log = noopLogger{}
	}
	return &retrying{Journal: j, policy: policy, log: log}
}

func (r *retrying) Append(ctx context.Context, envs []event.Envelope) error {
	return retry.Do(ctx, r.policy, func() error {
		return r.Journal.Append(ctx, envs)
	}, r.notify("append"))
}

func (r *retrying) Load(ctx context.Context, aggregateID string) ([]event.Envelope, error) {
	return retry.Value(ctx, r.policy, func() ([]event.Envelope, error) {
		return r.Journal.Load(ctx, aggregateID)
	}, r.notify("load"))
}

// Aggregates forwards to the wrapped store when it can list aggregates.
func (r *retrying) Aggregates(ctx context.Context, kind event.Kind) ([]string, error) {
	lister, ok := r.Journal.(AggregateLister)
	if !ok {
		return nil, nil
	}
	return retry.Value(ctx, r.policy, func() ([]string, error) {
		return lister.Aggregates(ctx, kind)
	}, r.notify("aggregates"))
}

func (r *retrying) notify(op string) retry.Notify {
	return func(err error, wait time.Duration) {
		r.log.Warn("journal operation failed, retrying", "op", op, "wait", wait, "error", err)
	}
}
