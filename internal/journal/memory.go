package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/netfleet-core/internal/event"
)

// MemoryStore keeps the stream in process memory.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type MemoryStore struct {
	cfg  Config
	opts options
	*notifier

	mu        sync.RWMutex
	records   []memRecord
	lastSeq   uint64
	dedup     map[string]time.Time
	versions  map[string]uint64
	positions map[string]uint64
	closed    bool
}

type memRecord struct {
	record
	aggregateID string
	kind        event.Kind
	storedAt    time.Time
}

// NewMemoryStore validates cfg and returns an empty store.
func NewMemoryStore(cfg Config, opts ...Option) (*MemoryStore, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MemoryStore{
		cfg:       cfg,
		opts:      newOptions(opts),
		notifier:  newNotifier(),
		dedup:     make(map[string]time.Time),
		versions:  make(map[string]uint64),
		positions: make(map[string]uint64),
	}, nil
}

// Append implements Journal.
func (m *MemoryStore) Append(ctx context.Context, envs []event.Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	batch, err := prepare(m.cfg.SubjectPrefix, envs)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		m.mu.Unlock()
		return err
	}

	now := m.opts.now()
	cutoff := now.Add(-m.cfg.DuplicateWindow)
	for id, at := range m.dedup {
		if at.Before(cutoff) {
			delete(m.dedup, id)
		}
	}

	accepted, err := m.accept(batch)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	committed := make([]pending, 0, len(accepted))
	for _, p := range accepted {
		m.dedup[p.msgID] = now
		m.versions[p.env.AggregateID] = p.env.Version
		m.lastSeq++
		m.records = append(m.records, memRecord{
			record:      record{seq: m.lastSeq, subject: p.subject, data: p.data},
			aggregateID: p.env.AggregateID,
			kind:        p.env.Kind(),
			storedAt:    now,
		})
		committed = append(committed, p)
	}
	m.applyRetention(now)
	m.mu.Unlock()

	if len(committed) > 0 {
		m.broadcast()
		m.opts.publish(m.cfg.SubjectPrefix, committed)
	}
	return nil
}

// accept drops duplicates from batch and checks that the rest extend their
// aggregates' versions. It must be called with mu held and changes nothing.
func (m *MemoryStore) accept(batch []pending) ([]pending, error) {
	seen := make(map[string]bool, len(batch))
	next := make(map[string]uint64)
	out := make([]pending, 0, len(batch))
	for _, p := range batch {
		if _, dup := m.dedup[p.msgID]; dup || seen[p.msgID] {
			m.opts.logger.Debug("journal dropped duplicate", "msg_id", p.msgID)
			continue
		}
		seen[p.msgID] = true

		agg := p.env.AggregateID
		last, ok := next[agg]
		if !ok {
			last = m.versions[agg]
		}
		if err := checkVersion(agg, last, p.env.Version); err != nil {
			return nil, err
		}
		next[agg] = p.env.Version
		out = append(out, p)
	}
	return out, nil
}

// applyRetention must be called with mu held.
func (m *MemoryStore) applyRetention(now time.Time) {
	drop := 0
	if m.cfg.MaxMessages > 0 && int64(len(m.records)) > m.cfg.MaxMessages {
		drop = len(m.records) - int(m.cfg.MaxMessages)
	}
	if m.cfg.MaxAge > 0 {
		cutoff := now.Add(-m.cfg.MaxAge)
		for drop < len(m.records) && m.records[drop].storedAt.Before(cutoff) {
			drop++
		}
	}
	if drop > 0 {
		m.records = append([]memRecord(nil), m.records[drop:]...)
	}
}

// Load implements Journal.
func (m *MemoryStore) Load(ctx context.Context, aggregateID string) ([]event.Envelope, error) {
	ctx, cancel := loadContext(ctx)
	defer cancel()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := []event.Envelope{}
	for _, r := range m.records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.aggregateID != aggregateID {
			continue
		}
		env, err := event.Unmarshal(r.data)
		if err != nil {
			m.opts.logger.Error("skipping corrupt journal record", "seq", r.seq, "error", err)
			continue
		}
		out = append(out, env)
	}
	return out, nil
}

// Aggregates implements AggregateLister.
func (m *MemoryStore) Aggregates(ctx context.Context, kind event.Kind) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	seen := make(map[string]bool)
	var out []string
	for _, r := range m.records {
		if r.kind != kind || seen[r.aggregateID] {
			continue
		}
		seen[r.aggregateID] = true
		out = append(out, r.aggregateID)
	}
	return out, ctx.Err()
}

// Subscribe implements Journal.
func (m *MemoryStore) Subscribe(ctx context.Context, opts SubscribeOptions) (Subscription, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	return subscribe(ctx, m, opts)
}

// Close implements Journal. Blocked subscribers return ErrSubscriptionClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	m.broadcast()
	return nil
}

// Len reports how many events are retained.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) after(_ context.Context, seq uint64, limit int) ([]record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	i := sort.Search(len(m.records), func(i int) bool { return m.records[i].seq > seq })
	end := i + limit
	if end > len(m.records) {
		end = len(m.records)
	}
	out := make([]record, 0, end-i)
	for _, r := range m.records[i:end] {
		out = append(out, r.record)
	}
	return out, nil
}

func (m *MemoryStore) tail(context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSeq, nil
}

func (m *MemoryStore) position(_ context.Context, durable string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positions[durable], nil
}

func (m *MemoryStore) savePosition(_ context.Context, durable, _ string, seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if seq > m.positions[durable] {
		m.positions[durable] = seq
	}
	return nil
}

func (m *MemoryStore) logger() Logger { return m.opts.logger }

var (
	_ Journal         = (*MemoryStore)(nil)
	_ AggregateLister = (*MemoryStore)(nil)
)
