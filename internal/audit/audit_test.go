package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/netfleet-core/internal/fault"
	"github.com/nerrad567/netfleet-core/internal/infrastructure/database"
)

// backends runs fn against every Repository implementation with a fixed clock
// that advances one second per recorded entry.
func backends(t *testing.T, fn func(t *testing.T, repo Repository)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		repo := NewMemoryRepository()
		repo.now = steppingClock()
		fn(t, repo)
	})

	t.Run("sqlite", func(t *testing.T) {
		ctx := context.Background()
		db, err := database.Open(ctx, database.Config{Path: database.MemoryPath, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
		repo, err := NewSQLiteRepository(ctx, db)
		if err != nil {
			t.Fatalf("NewSQLiteRepository() error = %v", err)
		}
		repo.now = steppingClock()
		fn(t, repo)
	})
}

func steppingClock() func() time.Time {
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func seed(t *testing.T, repo Repository) {
	t.Helper()
	entries := []Entry{
		{Action: "discover", EntityType: "fleet", CorrelationID: "c-1", Status: 200},
		{Action: "adopt", EntityType: "device", EntityID: "d-001", CorrelationID: "c-2", Status: 200,
			Details: map[string]any{"path": "/api/v1/devices/d-001/adopt"}},
		{Action: "configure", EntityType: "device", EntityID: "d-001", CorrelationID: "c-3", Status: 409},
		{Action: "connect", EntityType: "connection", CorrelationID: "c-4", Status: 502},
	}
	for i := range entries {
		if err := repo.Record(context.Background(), &entries[i]); err != nil {
			t.Fatalf("Record(%s) error = %v", entries[i].Action, err)
		}
		if entries[i].ID == "" || entries[i].CreatedAt.IsZero() {
			t.Fatalf("Record(%s) left ID or CreatedAt unset", entries[i].Action)
		}
	}
}

func TestOutcomeFor(t *testing.T) {
	tests := []struct {
		status int
		want   Outcome
	}{
		{200, OutcomeCommitted},
		{201, OutcomeCommitted},
		{204, OutcomeCommitted},
		{400, OutcomeRejected},
		{409, OutcomeRejected},
		{499, OutcomeRejected},
		{500, OutcomeFailed},
		{502, OutcomeFailed},
	}
	for _, tt := range tests {
		if got := OutcomeFor(tt.status); got != tt.want {
			t.Errorf("OutcomeFor(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestRecordRequiresActionAndEntity(t *testing.T) {
	backends(t, func(t *testing.T, repo Repository) {
		err := repo.Record(context.Background(), &Entry{EntityType: "device"})
		if !errors.Is(err, fault.ErrValidation) {
			t.Errorf("Record() error = %v, want validation", err)
		}
	})
}

func TestListNewestFirst(t *testing.T) {
	backends(t, func(t *testing.T, repo Repository) {
		seed(t, repo)

		res, err := repo.List(context.Background(), Filter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Total != 4 || len(res.Entries) != 4 {
			t.Fatalf("List() total = %d, len = %d; want 4, 4", res.Total, len(res.Entries))
		}
		if res.Limit != DefaultLimit {
			t.Errorf("Limit = %d, want %d", res.Limit, DefaultLimit)
		}
		var got []string
		for _, e := range res.Entries {
			got = append(got, e.Action)
		}
		want := []string{"connect", "configure", "adopt", "discover"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("order = %v, want %v", got, want)
			}
		}

		adopt := res.Entries[2]
		if adopt.Outcome != OutcomeCommitted || adopt.EntityID != "d-001" {
			t.Errorf("adopt entry = %+v", adopt)
		}
		if adopt.Details["path"] != "/api/v1/devices/d-001/adopt" {
			t.Errorf("adopt details = %v", adopt.Details)
		}
		if res.Entries[0].Outcome != OutcomeFailed || res.Entries[1].Outcome != OutcomeRejected {
			t.Errorf("outcomes = %q, %q; want failed, rejected", res.Entries[0].Outcome, res.Entries[1].Outcome)
		}
	})
}

func TestListFilters(t *testing.T) {
	backends(t, func(t *testing.T, repo Repository) {
		seed(t, repo)

		tests := []struct {
			name   string
			filter Filter
			want   int
		}{
			{"by entity", Filter{EntityType: "device", EntityID: "d-001"}, 2},
			{"by action", Filter{Action: "connect"}, 1},
			{"by correlation", Filter{CorrelationID: "c-3"}, 1},
			{"by outcome", Filter{Outcome: OutcomeRejected}, 1},
			{"no match", Filter{EntityID: "d-999"}, 0},
		}
		for _, tt := range tests {
			res, err := repo.List(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("%s: List() error = %v", tt.name, err)
			}
			if res.Total != tt.want || len(res.Entries) != tt.want {
				t.Errorf("%s: total = %d, len = %d; want %d", tt.name, res.Total, len(res.Entries), tt.want)
			}
		}

		if _, err := repo.List(context.Background(), Filter{Outcome: "maybe"}); !errors.Is(err, fault.ErrValidation) {
			t.Errorf("List(unknown outcome) error = %v, want validation", err)
		}
	})
}

func TestListPagination(t *testing.T) {
	backends(t, func(t *testing.T, repo Repository) {
		seed(t, repo)
		ctx := context.Background()

		res, err := repo.List(ctx, Filter{Limit: 3, Offset: 2})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Total != 4 || len(res.Entries) != 2 || res.Entries[0].Action != "adopt" {
			t.Errorf("page = total %d, %d entries; want 4 total, 2 entries from adopt", res.Total, len(res.Entries))
		}

		res, err = repo.List(ctx, Filter{Limit: 1000, Offset: 10})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Limit != MaxLimit || len(res.Entries) != 0 || res.Entries == nil {
			t.Errorf("past-the-end page = limit %d, entries %v; want %d, empty", res.Limit, res.Entries, MaxLimit)
		}
	})
}
