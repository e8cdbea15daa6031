package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/fault"
	"github.com/nerrad567/netfleet-core/internal/infrastructure/database"
	"github.com/nerrad567/netfleet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/netfleet-core/internal/network"
	"github.com/nerrad567/netfleet-core/internal/retry"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StreamName = "TEST"
	cfg.SubjectPrefix = "netfleet"
	return cfg
}

func newSQLite(t *testing.T, cfg Config, opts ...Option) *SQLiteStore {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg.URL = SchemeSQLite + database.MemoryPath
	s, err := NewSQLiteStore(context.Background(), db, cfg, opts...)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newMemory(t *testing.T, cfg Config, opts ...Option) *MemoryStore {
	t.Helper()
	m, err := NewMemoryStore(cfg, opts...)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

// forEachStore runs fn against both backends.
func forEachStore(t *testing.T, cfg Config, fn func(t *testing.T, j Journal), opts ...Option) {
	t.Run("memory", func(t *testing.T) { fn(t, newMemory(t, cfg, opts...)) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLite(t, cfg, opts...)) })
}

// discovered returns the envelopes of a freshly discovered device followed
// by a rename.
func discovered(t *testing.T, n int) (*device.Device, []event.Envelope) {
	t.Helper()
	mac := network.MustParseMAC(fmt.Sprintf("aa:bb:cc:00:00:%02x", n))
	d, envs, err := device.Discover(event.NewMetadata(), mac, device.TypeSwitch, nil, "")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	more, err := d.Rename(event.NewMetadata(), fmt.Sprintf("sw-%d", n))
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	return d, append(envs, more...)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "sqlite url", mutate: func(c *Config) { c.URL = "sqlite:///tmp/j.db" }},
		{name: "bad scheme", mutate: func(c *Config) { c.URL = "nats://x" }, wantErr: "url"},
		{name: "sqlite without path", mutate: func(c *Config) { c.URL = SchemeSQLite }, wantErr: "needs a path"},
		{name: "empty stream", mutate: func(c *Config) { c.StreamName = " " }, wantErr: "stream_name"},
		{name: "prefix with dot", mutate: func(c *Config) { c.SubjectPrefix = "net.fleet" }, wantErr: "prefix"},
		{name: "too many replicas", mutate: func(c *Config) { c.Replicas = 6 }, wantErr: "replicas"},
		{name: "short window", mutate: func(c *Config) { c.DuplicateWindow = time.Minute }, wantErr: "duplicate_window"},
		{name: "negative max messages", mutate: func(c *Config) { c.MaxMessages = -1 }, wantErr: "max_messages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, fault.ErrValidation) {
				t.Fatalf("Validate() error = %v, want validation kind", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidate_ReportsAllProblems(t *testing.T) {
	cfg := Config{URL: "bogus", SubjectPrefix: "a b", Replicas: 9, DuplicateWindow: time.Second}
	err := cfg.Validate()
	for _, want := range []string{"url", "stream_name", "prefix", "replicas", "duplicate_window"} {
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, want mention of %q", err, want)
		}
	}
}

func TestAppendLoad(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		ctx := context.Background()
		d, envs := discovered(t, 1)

		if err := j.Append(ctx, envs); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		got, err := j.Load(ctx, d.ID.String())
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(got) != len(envs) {
			t.Fatalf("Load() returned %d events, want %d", len(got), len(envs))
		}
		for i := range got {
			if got[i].EventID != envs[i].EventID || got[i].Version != envs[i].Version {
				t.Errorf("Load()[%d] = %s v%d, want %s v%d",
					i, got[i].EventID, got[i].Version, envs[i].EventID, envs[i].Version)
			}
		}

		rebuilt, err := device.Rehydrate(got)
		if err != nil {
			t.Fatalf("Rehydrate() error = %v", err)
		}
		if rebuilt.Name != d.Name || rebuilt.Version != d.Version {
			t.Errorf("Rehydrate() = %q v%d, want %q v%d", rebuilt.Name, rebuilt.Version, d.Name, d.Version)
		}
	})
}

func TestLoad_UnknownAggregate(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		got, err := j.Load(context.Background(), "nope")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("Load() = %v, want empty slice", got)
		}
	})
}

func TestAppend_DropsDuplicates(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		ctx := context.Background()
		d, envs := discovered(t, 2)

		for i := 0; i < 3; i++ {
			if err := j.Append(ctx, envs); err != nil {
				t.Fatalf("Append() #%d error = %v", i, err)
			}
		}
		got, err := j.Load(ctx, d.ID.String())
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(got) != len(envs) {
			t.Errorf("Load() returned %d events after repeated append, want %d", len(got), len(envs))
		}
	})
}

func TestAppend_DuplicateWindowExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		ctx := context.Background()
		d, envs := discovered(t, 3)
		first := envs[:1]

		if err := j.Append(ctx, first); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		advance(3 * time.Minute)
		// Once forgotten, a redelivery is no longer dropped silently; the
		// version check rejects it instead.
		if err := j.Append(ctx, first); !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("Append() after window error = %v, want ErrVersionConflict", err)
		}
		got, _ := j.Load(ctx, d.ID.String())
		if len(got) != 1 {
			t.Errorf("Load() returned %d events, want 1", len(got))
		}
	}, WithClock(clock))
}

func TestAppend_VersionConflict(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		ctx := context.Background()
		d, envs := discovered(t, 5)
		if err := j.Append(ctx, envs); err != nil {
			t.Fatalf("Append() error = %v", err)
		}

		// A second writer working from version 1 renames too.
		stale, err := device.Rehydrate(envs[:1])
		if err != nil {
			t.Fatalf("Rehydrate() error = %v", err)
		}
		dup, err := stale.Rename(event.NewMetadata(), "other-name")
		if err != nil {
			t.Fatalf("Rename() error = %v", err)
		}

		gap := envs[1]
		gap.Version = 4
		gap.Timestamp = gap.Timestamp.Add(time.Second)

		for name, batch := range map[string][]event.Envelope{
			"repeated version": dup,
			"skipped version":  {gap},
		} {
			err := j.Append(ctx, batch)
			if !errors.Is(err, ErrVersionConflict) {
				t.Errorf("Append(%s) error = %v, want ErrVersionConflict", name, err)
			}
			if !errors.Is(err, fault.ErrConflict) {
				t.Errorf("Append(%s) error = %v, want conflict kind", name, err)
			}
			if fault.IsRetryable(err) {
				t.Errorf("Append(%s) error must not be retryable", name)
			}
		}

		got, err := j.Load(ctx, d.ID.String())
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(got) != len(envs) {
			t.Errorf("Load() returned %d events, want %d", len(got), len(envs))
		}
		if _, err := device.Rehydrate(got); err != nil {
			t.Errorf("Rehydrate(stored) error = %v", err)
		}
	})
}

func TestAppend_VersionConflictRejectsWholeBatch(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		ctx := context.Background()
		good, envs := discovered(t, 6)
		_, other := discovered(t, 7)

		// other is missing its first event, so nothing of the batch lands.
		batch := append(append([]event.Envelope(nil), envs...), other[1])
		if err := j.Append(ctx, batch); !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("Append() error = %v, want ErrVersionConflict", err)
		}
		if got, _ := j.Load(ctx, good.ID.String()); len(got) != 0 {
			t.Errorf("Load() returned %d events from a rejected batch, want 0", len(got))
		}

		// The rejected batch left no dedup tokens behind.
		if err := j.Append(ctx, envs); err != nil {
			t.Fatalf("Append() retry error = %v", err)
		}
		if got, _ := j.Load(ctx, good.ID.String()); len(got) != len(envs) {
			t.Errorf("Load() returned %d events, want %d", len(got), len(envs))
		}
	})
}

func TestAppend_VersionsSurviveRetention(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessages = 1
	forEachStore(t, cfg, func(t *testing.T, j Journal) {
		ctx := context.Background()
		_, envs := discovered(t, 8)
		if err := j.Append(ctx, envs); err != nil {
			t.Fatalf("Append() error = %v", err)
		}

		// Retention trimmed version 1, but the aggregate is still at 2.
		restart := envs[0]
		restart.Timestamp = restart.Timestamp.Add(time.Second)
		if err := j.Append(ctx, []event.Envelope{restart}); !errors.Is(err, ErrVersionConflict) {
			t.Errorf("Append() error = %v, want ErrVersionConflict", err)
		}
	})
}

func TestAppend_InvalidEnvelope(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		err := j.Append(context.Background(), []event.Envelope{{AggregateID: "x"}})
		if !errors.Is(err, ErrInvalidEnvelope) {
			t.Errorf("Append() error = %v, want ErrInvalidEnvelope", err)
		}
	})
}

func TestAppend_CancelledContext(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d, envs := discovered(t, 4)

		err := j.Append(ctx, envs)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Append() error = %v, want context.Canceled", err)
		}
		if fault.IsRetryable(err) {
			t.Error("cancelled append must not be retryable")
		}
		got, _ := j.Load(context.Background(), d.ID.String())
		if len(got) != 0 {
			t.Errorf("Load() returned %d events after cancelled append, want 0", len(got))
		}
	})
}

func TestAggregates(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		ctx := context.Background()
		var want []string
		for i := 0; i < 3; i++ {
			d, envs := discovered(t, 10+i)
			if err := j.Append(ctx, envs); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			want = append(want, d.ID.String())
		}

		got, err := j.(AggregateLister).Aggregates(ctx, event.KindDevice)
		if err != nil {
			t.Fatalf("Aggregates() error = %v", err)
		}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("Aggregates() = %v, want %v", got, want)
		}
	})
}

func TestRetention_MaxMessages(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessages = 2
	forEachStore(t, cfg, func(t *testing.T, j Journal) {
		ctx := context.Background()
		d, envs := discovered(t, 20)
		if err := j.Append(ctx, envs); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		other, more := discovered(t, 21)
		if err := j.Append(ctx, more); err != nil {
			t.Fatalf("Append() error = %v", err)
		}

		if got, _ := j.Load(ctx, d.ID.String()); len(got) != 0 {
			t.Errorf("Load(oldest) returned %d events, want 0 after retention", len(got))
		}
		if got, _ := j.Load(ctx, other.ID.String()); len(got) != 2 {
			t.Errorf("Load(newest) returned %d events, want 2", len(got))
		}
	})
}

func TestSubscribe_DurableResume(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, envs := discovered(t, 30)
		if err := j.Append(ctx, envs); err != nil {
			t.Fatalf("Append() error = %v", err)
		}

		opts := SubscribeOptions{Pattern: "netfleet.device.>", Durable: "proj"}
		sub, err := j.Subscribe(ctx, opts)
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		msg, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if msg.Envelope.Type() != device.EventDiscovered {
			t.Errorf("Next() type = %s, want %s", msg.Envelope.Type(), device.EventDiscovered)
		}
		if msg.Subject != "netfleet.device.device_discovered" {
			t.Errorf("Next() subject = %s", msg.Subject)
		}
		if msg.Headers[event.HeaderMsgID] != event.MsgID(envs[0]) {
			t.Errorf("Next() Msg-Id header = %s, want %s", msg.Headers[event.HeaderMsgID], event.MsgID(envs[0]))
		}
		if err := msg.Ack(ctx); err != nil {
			t.Fatalf("Ack() error = %v", err)
		}
		sub.Close()

		resumed, err := j.Subscribe(ctx, opts)
		if err != nil {
			t.Fatalf("Subscribe() again error = %v", err)
		}
		defer resumed.Close()
		msg, err = resumed.Next(ctx)
		if err != nil {
			t.Fatalf("Next() after resume error = %v", err)
		}
		if msg.Envelope.EventID != envs[1].EventID {
			t.Errorf("resumed Next() = %s, want second event %s", msg.Envelope.EventID, envs[1].EventID)
		}
	})
}

func TestSubscribe_NakRedelivers(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, envs := discovered(t, 31)
		if err := j.Append(ctx, envs); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		sub, err := j.Subscribe(ctx, SubscribeOptions{Pattern: ">", DeliverAll: true})
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		defer sub.Close()

		first, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if _, err := sub.Next(ctx); !errors.Is(err, ErrInFlight) {
			t.Errorf("Next() with message in flight error = %v, want ErrInFlight", err)
		}
		if err := first.Nak(ctx); err != nil {
			t.Fatalf("Nak() error = %v", err)
		}
		again, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next() after Nak error = %v", err)
		}
		if again.Sequence != first.Sequence {
			t.Errorf("Next() after Nak sequence = %d, want %d", again.Sequence, first.Sequence)
		}
	})
}

func TestSubscribe_EphemeralStartsAtTail(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, old := discovered(t, 32)
		if err := j.Append(ctx, old); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		sub, err := j.Subscribe(ctx, SubscribeOptions{Pattern: "netfleet.*.device_discovered"})
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		defer sub.Close()

		fresh, envs := discovered(t, 33)
		go func() { _ = j.Append(ctx, envs) }()

		msg, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if msg.Envelope.AggregateID != fresh.ID.String() {
			t.Errorf("Next() aggregate = %s, want %s", msg.Envelope.AggregateID, fresh.ID)
		}
	})
}

func TestSubscribe_OrderWithinAggregate(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		sub, err := j.Subscribe(ctx, SubscribeOptions{Pattern: ">"})
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		defer sub.Close()

		var all []event.Envelope
		for i := 0; i < 5; i++ {
			_, envs := discovered(t, 40+i)
			if err := j.Append(ctx, envs); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			all = append(all, envs...)
		}

		var last uint64
		for i := range all {
			msg, err := sub.Next(ctx)
			if err != nil {
				t.Fatalf("Next() #%d error = %v", i, err)
			}
			if msg.Envelope.EventID != all[i].EventID {
				t.Errorf("Next() #%d = %s, want %s", i, msg.Envelope.EventID, all[i].EventID)
			}
			if msg.Sequence <= last {
				t.Errorf("Next() #%d sequence %d not after %d", i, msg.Sequence, last)
			}
			last = msg.Sequence
			_ = msg.Ack(ctx)
		}
	})
}

func TestSubscribe_NextRespectsContext(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		sub, err := j.Subscribe(context.Background(), SubscribeOptions{Pattern: ">"})
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		defer sub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := sub.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Next() error = %v, want context.DeadlineExceeded", err)
		}
	})
}

func TestSubscribe_CloseWakesNext(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		sub, err := j.Subscribe(context.Background(), SubscribeOptions{Pattern: ">"})
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}

		done := make(chan error, 1)
		go func() {
			_, err := sub.Next(context.Background())
			done <- err
		}()
		time.Sleep(10 * time.Millisecond)
		j.Close()

		select {
		case err := <-done:
			if !errors.Is(err, ErrSubscriptionClosed) {
				t.Errorf("Next() after store Close error = %v, want ErrSubscriptionClosed", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Next() did not return after store Close")
		}
	})
}

func TestSubscribe_InvalidPattern(t *testing.T) {
	forEachStore(t, testConfig(), func(t *testing.T, j Journal) {
		_, err := j.Subscribe(context.Background(), SubscribeOptions{Pattern: "netfleet..device"})
		if !errors.Is(err, fault.ErrValidation) {
			t.Errorf("Subscribe() error = %v, want validation kind", err)
		}
	})
}

func TestSubscribe_SkipsCorruptRecords(t *testing.T) {
	m := newMemory(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.mu.Lock()
	m.lastSeq++
	m.records = append(m.records, memRecord{
		record:      record{seq: m.lastSeq, subject: "netfleet.device.device_discovered", data: []byte("{broken")},
		aggregateID: "broken",
		kind:        event.KindDevice,
		storedAt:    time.Now(),
	})
	m.mu.Unlock()

	_, envs := discovered(t, 50)
	if err := m.Append(ctx, envs[:1]); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	sub, err := m.Subscribe(ctx, SubscribeOptions{Pattern: ">", DeliverAll: true})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()
	msg, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if msg.Envelope.EventID != envs[0].EventID {
		t.Errorf("Next() = %s, want the valid event %s", msg.Envelope.EventID, envs[0].EventID)
	}
}

func TestSQLite_PrefixOwnedByAnotherStream(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer db.Close()

	cfg := testConfig()
	cfg.URL = SchemeSQLite + database.MemoryPath
	if _, err := NewSQLiteStore(ctx, db, cfg); err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	// Reopening the same stream is fine.
	if _, err := NewSQLiteStore(ctx, db, cfg); err != nil {
		t.Fatalf("NewSQLiteStore() reopen error = %v", err)
	}

	cfg.StreamName = "OTHER"
	_, err = NewSQLiteStore(ctx, db, cfg)
	if !errors.Is(err, ErrPrefixInUse) {
		t.Errorf("NewSQLiteStore() error = %v, want ErrPrefixInUse", err)
	}
	if !errors.Is(err, fault.ErrConflict) {
		t.Errorf("NewSQLiteStore() error = %v, want conflict kind", err)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	fail   bool
}

func (p *recordingPublisher) Publish(topic string, _ []byte, _ byte, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	if p.fail {
		return errors.New("broker down")
	}
	return nil
}

func TestAppend_FansOutAfterCommit(t *testing.T) {
	tests := []struct {
		name string
		fail bool
	}{
		{name: "publisher ok"},
		{name: "publisher failing does not fail append", fail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{fail: tt.fail}
			m := newMemory(t, testConfig(), WithPublisher(pub, 1))
			_, envs := discovered(t, 60)

			if err := m.Append(context.Background(), envs); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			want := []string{"netfleet/device/device_discovered", "netfleet/device/device_renamed"}
			if strings.Join(pub.topics, ",") != strings.Join(want, ",") {
				t.Errorf("published topics = %v, want %v", pub.topics, want)
			}

			// Duplicates are not re-published.
			if err := m.Append(context.Background(), envs); err != nil {
				t.Fatalf("Append() duplicate error = %v", err)
			}
			if len(pub.topics) != len(want) {
				t.Errorf("published %d messages after duplicate append, want %d", len(pub.topics), len(want))
			}
		})
	}
}

func TestAppend_FanOutTopics(t *testing.T) {
	pub := &recordingPublisher{}
	topics := mqtt.Topics{Prefix: "site-a/events"}
	m := newMemory(t, testConfig(), WithPublisher(pub, 0), WithTopics(topics.Event))
	_, envs := discovered(t, 60)

	if err := m.Append(context.Background(), envs[:1]); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if len(pub.topics) != 1 || pub.topics[0] != "site-a/events/device/device_discovered" {
		t.Errorf("published topics = %v, want [site-a/events/device/device_discovered]", pub.topics)
	}
}

// flakyJournal fails Append with a transport error a fixed number of times.
type flakyJournal struct {
	Journal
	failures int
	calls    int
	err      error
}

func (f *flakyJournal) Append(ctx context.Context, envs []event.Envelope) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return f.Journal.Append(ctx, envs)
}

func TestWithRetry(t *testing.T) {
	policy := retry.Policy{MaxTries: 4, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   error
	}{
		{name: "recovers from transport errors", failures: 2, err: ErrUnavailable, wantCalls: 3},
		{name: "gives up after max tries", failures: 10, err: ErrUnavailable, wantCalls: 4, wantErr: ErrUnavailable},
		{name: "validation is not retried", failures: 10, err: ErrInvalidEnvelope, wantCalls: 1, wantErr: ErrInvalidEnvelope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flaky := &flakyJournal{Journal: newMemory(t, testConfig()), failures: tt.failures, err: tt.err}
			j := WithRetry(flaky, policy, nil)
			_, envs := discovered(t, 70)

			err := j.Append(context.Background(), envs)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Append() error = %v, want %v", err, tt.wantErr)
			}
			if flaky.calls != tt.wantCalls {
				t.Errorf("Append() attempts = %d, want %d", flaky.calls, tt.wantCalls)
			}
		})
	}
}
