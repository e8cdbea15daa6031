package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/netfleet-core/internal/infrastructure/database"

	// Registers the schema migrations with the database package.
	_ "github.com/nerrad567/netfleet-core/migrations"
)

// Fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository stores entries in the operation_audit table.
type SQLiteRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewSQLiteRepository migrates db and returns a repository over it.
func NewSQLiteRepository(ctx context.Context, db *database.DB) (*SQLiteRepository, error) {
	if err := db.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrating audit schema: %w", err)
	}
	return &SQLiteRepository{db: db, now: time.Now}, nil
}

// Record inserts e, filling its ID, timestamp and outcome when unset.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	if err := prepare(e, r.now); err != nil {
		return err
	}

	var details any
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO operation_audit
		 (id, action, entity_type, entity_id, correlation_id, status, outcome, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.EntityType, nullable(e.EntityID), e.CorrelationID,
		e.Status, string(e.Outcome), details, e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns matching entries, newest first.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) (*ListResult, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	f = f.clamped()

	var conds []string
	var args []any
	for _, c := range []struct {
		column, value string
	}{
		{"action", f.Action},
		{"entity_type", f.EntityType},
		{"entity_id", f.EntityID},
		{"correlation_id", f.CorrelationID},
		{"outcome", string(f.Outcome)},
	} {
		if c.value != "" {
			conds = append(conds, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	//nolint:gosec // WHERE holds column names and placeholders only
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM operation_audit "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	//nolint:gosec // WHERE holds column names and placeholders only
	query := `SELECT id, action, entity_type, entity_id, correlation_id, status, outcome, details, created_at
		FROM operation_audit ` + where + ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	res := &ListResult{Entries: []Entry{}, Total: total, Limit: f.Limit, Offset: f.Offset}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res.Entries = append(res.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return res, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                  Entry
		entityID, details  sql.NullString
		outcome, createdAt string
	)
	if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &entityID, &e.CorrelationID,
		&e.Status, &outcome, &details, &createdAt); err != nil {
		return Entry{}, fmt.Errorf("scanning audit entry: %w", err)
	}
	e.EntityID = entityID.String
	e.Outcome = Outcome(outcome)
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
			return Entry{}, fmt.Errorf("decoding details of audit entry %s: %w", e.ID, err)
		}
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}
