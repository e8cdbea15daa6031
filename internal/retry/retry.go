// Package retry runs transport calls with exponential backoff.
//
// Only errors of kind fault.ErrTransport are retried; every other error
// stops the loop at once and is returned unchanged.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

// Policy bounds a retry loop.
type Policy struct {
	// MaxTries is the total number of attempts, including the first.
	// Zero means DefaultPolicy's value.
	MaxTries uint
	// InitialInterval is the wait before the second attempt.
	InitialInterval time.Duration
	// MaxInterval caps the wait between attempts.
	MaxInterval time.Duration
	// MaxElapsed caps the whole loop. Zero means no cap beyond MaxTries.
	MaxElapsed time.Duration
}

// DefaultPolicy is used for any zero field.
var DefaultPolicy = Policy{
	MaxTries:        5,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// NoRetry makes exactly one attempt.
var NoRetry = Policy{MaxTries: 1}

func (p Policy) withDefaults() Policy {
	if p.MaxTries == 0 {
		p.MaxTries = DefaultPolicy.MaxTries
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultPolicy.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultPolicy.MaxInterval
	}
	return p
}

// Notify is called before each wait with the error that caused it.
type Notify func(err error, wait time.Duration)

// Do runs op until it succeeds, returns a non-transport error, the policy
// is exhausted, or ctx ends.
func Do(ctx context.Context, p Policy, op func() error, notify Notify) error {
	_, err := Value(ctx, p, func() (struct{}, error) {
		return struct{}{}, op()
	}, notify)
	return err
}

// Value is Do for operations that return a result.
func Value[T any](ctx context.Context, p Policy, op func() (T, error), notify Notify) (T, error) {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxTries),
	}
	if p.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.MaxElapsed))
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(notify)))
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !fault.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}
