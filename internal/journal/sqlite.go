package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/infrastructure/database"

	// Registers the journal schema with the database package.
	_ "github.com/nerrad567/netfleet-core/migrations"
)

// SQLiteStore persists the stream in SQLite.
//
// Appends are serialized by a store mutex, so completion order equals
// sequence order.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type SQLiteStore struct {
	db   *database.DB
	cfg  Config
	opts options
	*notifier

	appendMu sync.Mutex
	closed   atomic.Bool
}

// NewSQLiteStore migrates db and claims cfg's stream. The caller keeps
// ownership of db.
func NewSQLiteStore(ctx context.Context, db *database.DB, cfg Config, opts ...Option) (*SQLiteStore, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrating journal schema: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		cfg:      cfg,
		opts:     newOptions(opts),
		notifier: newNotifier(),
	}
	if err := s.claimStream(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// claimStream registers the stream, rejecting a prefix owned by another
// stream name.
func (s *SQLiteStore) claimStream(ctx context.Context) error {
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM journal_streams WHERE subject_prefix = ?`,
		s.cfg.SubjectPrefix,
	).Scan(&owner)
	switch {
	case err == nil && owner != s.cfg.StreamName:
		return fmt.Errorf("%w: %q belongs to %q", ErrPrefixInUse, s.cfg.SubjectPrefix, owner)
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return storageError(ctx, "claim stream", err)
	}

	var prefix string
	err = s.db.QueryRowContext(ctx,
		`SELECT subject_prefix FROM journal_streams WHERE name = ?`,
		s.cfg.StreamName,
	).Scan(&prefix)
	switch {
	case err == nil:
		// The stream exists with another prefix; move it.
		_, err = s.db.ExecContext(ctx,
			`UPDATE journal_streams SET subject_prefix = ? WHERE name = ?`,
			s.cfg.SubjectPrefix, s.cfg.StreamName)
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO journal_streams (name, subject_prefix, created_at) VALUES (?, ?, ?)`,
			s.cfg.StreamName, s.cfg.SubjectPrefix, s.opts.now().UTC().Format(time.RFC3339))
	}
	if err != nil {
		return storageError(ctx, "claim stream", err)
	}
	return nil
}

// Append implements Journal.
func (s *SQLiteStore) Append(ctx context.Context, envs []event.Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	if s.closed.Load() {
		return ErrClosed
	}
	batch, err := prepare(s.cfg.SubjectPrefix, envs)
	if err != nil {
		return err
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	now := s.opts.now()
	committed, err := s.insert(ctx, batch, now)
	if err != nil {
		return storageError(ctx, "append", err)
	}
	if len(committed) == 0 {
		return nil
	}

	if err := s.applyRetention(ctx, now); err != nil {
		s.opts.logger.Warn("journal retention failed", "stream", s.cfg.StreamName, "error", err)
	}
	s.broadcast()
	s.opts.publish(s.cfg.SubjectPrefix, committed)
	return nil
}

func (s *SQLiteStore) insert(ctx context.Context, batch []pending, now time.Time) ([]pending, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	windowStart := now.Add(-s.cfg.DuplicateWindow).UnixNano()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM journal_dedup WHERE stream = ? AND stored_at < ?`,
		s.cfg.StreamName, windowStart,
	); err != nil {
		return nil, err
	}

	committed := make([]pending, 0, len(batch))
	next := make(map[string]uint64)
	for _, p := range batch {
		var storedAt int64
		err := tx.QueryRowContext(ctx,
			`SELECT stored_at FROM journal_dedup WHERE stream = ? AND msg_id = ?`,
			s.cfg.StreamName, p.msgID,
		).Scan(&storedAt)
		switch {
		case err == nil:
			s.opts.logger.Debug("journal dropped duplicate", "msg_id", p.msgID)
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return nil, err
		}

		agg := p.env.AggregateID
		last, ok := next[agg]
		if !ok {
			if last, err = lastVersion(ctx, tx, s.cfg.StreamName, agg); err != nil {
				return nil, err
			}
		}
		if err := checkVersion(agg, last, p.env.Version); err != nil {
			return nil, err
		}
		next[agg] = p.env.Version

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO journal_dedup (stream, msg_id, stored_at) VALUES (?, ?, ?)`,
			s.cfg.StreamName, p.msgID, now.UnixNano(),
		); err != nil {
			return nil, err
		}

		env := p.env
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO journal_events (
				stream, subject, msg_id, event_id, aggregate_id, aggregate_kind,
				event_type, correlation_id, causation_id, version, timestamp,
				stored_at, data
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.cfg.StreamName, p.subject, p.msgID, env.EventID.String(), env.AggregateID,
			string(env.Kind()), env.Type(), env.CorrelationID.String(), env.CausationID.String(),
			env.Version, env.Timestamp.UTC().Format(time.RFC3339Nano),
			now.UnixNano(), p.data,
		); err != nil {
			return nil, err
		}
		committed = append(committed, p)
	}

	for agg, v := range next {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO journal_aggregates (stream, aggregate_id, version) VALUES (?, ?, ?)
			 ON CONFLICT (stream, aggregate_id) DO UPDATE SET version = excluded.version`,
			s.cfg.StreamName, agg, v,
		); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing append: %w", err)
	}
	return committed, nil
}

func lastVersion(ctx context.Context, tx *sql.Tx, stream, aggregateID string) (uint64, error) {
	var v uint64
	err := tx.QueryRowContext(ctx,
		`SELECT version FROM journal_aggregates WHERE stream = ? AND aggregate_id = ?`,
		stream, aggregateID,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func (s *SQLiteStore) applyRetention(ctx context.Context, now time.Time) error {
	if s.cfg.MaxMessages > 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM journal_events WHERE stream = ? AND seq <= (
				SELECT seq FROM journal_events WHERE stream = ?
				ORDER BY seq DESC LIMIT 1 OFFSET ?
			)`,
			s.cfg.StreamName, s.cfg.StreamName, s.cfg.MaxMessages,
		); err != nil {
			return err
		}
	}
	if s.cfg.MaxAge > 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM journal_events WHERE stream = ? AND stored_at < ?`,
			s.cfg.StreamName, now.Add(-s.cfg.MaxAge).UnixNano(),
		); err != nil {
			return err
		}
	}
	return nil
}

// Load implements Journal.
func (s *SQLiteStore) Load(ctx context.Context, aggregateID string) ([]event.Envelope, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	ctx, cancel := loadContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, data FROM journal_events
		 WHERE stream = ? AND aggregate_id = ? ORDER BY seq`,
		s.cfg.StreamName, aggregateID,
	)
	if err != nil {
		return nil, storageError(ctx, "load", err)
	}
	defer rows.Close()

	out := []event.Envelope{}
	for rows.Next() {
		var (
			seq  uint64
			data []byte
		)
		if err := rows.Scan(&seq, &data); err != nil {
			return nil, storageError(ctx, "load", err)
		}
		env, err := event.Unmarshal(data)
		if err != nil {
			s.opts.logger.Error("skipping corrupt journal record", "seq", seq, "error", err)
			continue
		}
		out = append(out, env)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(ctx, "load", err)
	}
	return out, nil
}

// Aggregates implements AggregateLister.
func (s *SQLiteStore) Aggregates(ctx context.Context, kind event.Kind) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT aggregate_id FROM journal_events
		 WHERE stream = ? AND aggregate_kind = ?
		 GROUP BY aggregate_id ORDER BY MIN(seq)`,
		s.cfg.StreamName, string(kind),
	)
	if err != nil {
		return nil, storageError(ctx, "list aggregates", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageError(ctx, "list aggregates", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(ctx, "list aggregates", err)
	}
	return out, nil
}

// Subscribe implements Journal.
func (s *SQLiteStore) Subscribe(ctx context.Context, opts SubscribeOptions) (Subscription, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return subscribe(ctx, s, opts)
}

// Close implements Journal. The database stays open; its owner closes it.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.broadcast()
	return nil
}

func (s *SQLiteStore) after(ctx context.Context, seq uint64, limit int) ([]record, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, subject, data FROM journal_events
		 WHERE stream = ? AND seq > ? ORDER BY seq LIMIT ?`,
		s.cfg.StreamName, seq, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.seq, &r.subject, &r.data); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) tail(ctx context.Context) (uint64, error) {
	var seq uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM journal_events WHERE stream = ?`,
		s.cfg.StreamName,
	).Scan(&seq)
	if err != nil {
		return 0, err
	}
	// Retention can empty the stream; AUTOINCREMENT never reuses a sequence.
	if seq == 0 {
		err = s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM sqlite_sequence WHERE name = 'journal_events'`,
		).Scan(&seq)
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
		}
	}
	return seq, err
}

func (s *SQLiteStore) position(ctx context.Context, durable string) (uint64, error) {
	var seq uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT acked_seq FROM journal_consumers WHERE stream = ? AND name = ?`,
		s.cfg.StreamName, durable,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

func (s *SQLiteStore) savePosition(ctx context.Context, durable, pattern string, seq uint64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal_consumers (stream, name, pattern, acked_seq, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (stream, name) DO UPDATE SET
		   pattern = excluded.pattern,
		   acked_seq = MAX(acked_seq, excluded.acked_seq),
		   updated_at = excluded.updated_at`,
		s.cfg.StreamName, durable, pattern, seq, s.opts.now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *SQLiteStore) logger() Logger { return s.opts.logger }

var (
	_ Journal         = (*SQLiteStore)(nil)
	_ AggregateLister = (*SQLiteStore)(nil)
)
