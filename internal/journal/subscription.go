package journal

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/netfleet-core/internal/event"
)

// scanPage bounds how many records one scan reads.
const scanPage = 128

// record is a stored event as the subscription engine sees it.
type record struct {
	seq     uint64
	subject string
	data    []byte
}

// backend is what a store provides to the subscription engine.
type backend interface {
	// after returns up to limit records with sequence greater than seq.
	after(ctx context.Context, seq uint64, limit int) ([]record, error)
	// tail returns the highest stored sequence.
	tail(ctx context.Context) (uint64, error)
	// position returns the acked sequence of a durable, zero if unknown.
	position(ctx context.Context, durable string) (uint64, error)
	// savePosition persists a durable's acked sequence.
	savePosition(ctx context.Context, durable, pattern string, seq uint64) error
	// watch returns a channel closed on the next append or on close.
	watch() <-chan struct{}
	logger() Logger
}

type subscription struct {
	b       backend
	pattern string
	durable string

	mu       sync.Mutex
	cursor   uint64 // last sequence handed out or skipped
	inflight *Message
	closed   bool
	done     chan struct{}
}

func subscribe(ctx context.Context, b backend, opts SubscribeOptions) (*subscription, error) {
	if err := event.ValidatePattern(opts.Pattern); err != nil {
		return nil, err
	}

	var (
		start uint64
		err   error
	)
	switch {
	case opts.Durable != "":
		start, err = b.position(ctx, opts.Durable)
	case !opts.DeliverAll:
		start, err = b.tail(ctx)
	}
	if err != nil {
		return nil, storageError(ctx, "subscribe", err)
	}

	return &subscription{
		b:       b,
		pattern: opts.Pattern,
		durable: opts.Durable,
		cursor:  start,
		done:    make(chan struct{}),
	}, nil
}

// Next implements Subscription.
func (s *subscription) Next(ctx context.Context) (*Message, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return nil, ErrSubscriptionClosed
	case s.inflight != nil:
		s.mu.Unlock()
		return nil, ErrInFlight
	}
	s.mu.Unlock()

	for {
		// Take the wake channel before scanning so an append between the
		// scan and the wait is not missed.
		wake := s.b.watch()

		msg, err := s.scan(ctx)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, ErrSubscriptionClosed
		case <-wake:
		}
	}
}

func (s *subscription) scan(ctx context.Context) (*Message, error) {
	for {
		s.mu.Lock()
		cursor := s.cursor
		s.mu.Unlock()

		recs, err := s.b.after(ctx, cursor, scanPage)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil, ErrSubscriptionClosed
			}
			return nil, storageError(ctx, "next", err)
		}

		for _, rec := range recs {
			s.mu.Lock()
			s.cursor = rec.seq
			s.mu.Unlock()

			if !event.MatchSubject(s.pattern, rec.subject) {
				continue
			}
			msg, err := decode(s, rec.seq, rec.subject, rec.data)
			if err != nil {
				s.b.logger().Error("skipping corrupt journal record",
					"seq", rec.seq, "subject", rec.subject, "error", err)
				continue
			}

			s.mu.Lock()
			s.inflight = msg
			s.mu.Unlock()
			return msg, nil
		}

		if len(recs) < scanPage {
			return nil, nil
		}
	}
}

func (s *subscription) ack(ctx context.Context, m *Message) error {
	s.mu.Lock()
	if s.inflight != m {
		s.mu.Unlock()
		return nil
	}
	s.inflight = nil
	s.mu.Unlock()

	if s.durable == "" {
		return nil
	}
	if err := s.b.savePosition(ctx, s.durable, s.pattern, m.Sequence); err != nil {
		return storageError(ctx, "ack", err)
	}
	return nil
}

func (s *subscription) nak(m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight != m {
		return nil
	}
	s.inflight = nil
	s.cursor = m.Sequence - 1
	return nil
}

// Close implements Subscription.
func (s *subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// notifier is the broadcast used by both stores: the channel is closed and
// replaced on every append.
type notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{})}
}

func (n *notifier) watch() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

func (n *notifier) broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}
