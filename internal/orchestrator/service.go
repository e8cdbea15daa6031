package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/inventory"
	"github.com/nerrad567/netfleet-core/internal/journal"
	"github.com/nerrad567/netfleet-core/internal/network"
	"github.com/nerrad567/netfleet-core/internal/retry"
	"github.com/nerrad567/netfleet-core/internal/topology"
	"github.com/nerrad567/netfleet-core/internal/vendor"
)

// DefaultConcurrency bounds parallel steps of DiscoverAndProvision.
const DefaultConcurrency = 4

// Logger is the logging surface the service needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics receives operation and event counts.
type Metrics interface {
	ObserveOperation(op string, elapsed time.Duration, err error)
	ObserveEvents(envs []event.Envelope)
	SetDeviceCounts(counts map[string]int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) ObserveEvents([]event.Envelope)                {}
func (noopMetrics) SetDeviceCounts(map[string]int)                {}

// Recorder receives committed events for time-series storage.
// It must not block.
type Recorder interface {
	RecordLifecycle(envs []event.Envelope)
}

type noopRecorder struct{}

func (noopRecorder) RecordLifecycle([]event.Envelope) {}

// Deps holds the service's collaborators. Journal and Vendor are required.
type Deps struct {
	Journal   journal.Journal
	Vendor    vendor.DeviceControl
	Inventory inventory.Inventory // optional
	Logger    Logger
	Metrics   Metrics
	Tracer    trace.Tracer
	Recorder  Recorder
	// Retry bounds retries of journal, vendor and inventory calls.
	// The journal is wrapped with journal.WithRetry under this policy.
	Retry retry.Policy
	// Concurrency bounds parallel adoption and sync in batches.
	Concurrency int
}

// Service is the orchestration service.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Operations on the same
//     device are serialized; operations on different devices run in
//     parallel.
type Service struct {
	journal   journal.Journal
	lister    journal.AggregateLister
	vendor    vendor.DeviceControl
	inventory inventory.Inventory
	log       Logger
	metrics   Metrics
	tracer    trace.Tracer
	recorder  Recorder
	retry     retry.Policy
	limit     int

	// discoverMu serializes discovery so one MAC never yields two devices.
	discoverMu sync.Mutex

	// connMu serializes connection changes. It is taken after any entry
	// locks and before mu.
	connMu sync.Mutex

	// mu guards the maps below. It is never held while taking an entry lock.
	mu          sync.RWMutex
	entries     map[ids.DeviceID]*entry
	byMAC       map[network.MAC]ids.DeviceID
	vendorRefs  map[ids.DeviceID]string
	states      map[ids.DeviceID]device.State
	connections map[ids.ConnectionID]*connection
}

type entry struct {
	mu  sync.Mutex
	dev *device.Device
}

type connection struct {
	info    inventory.ConnectionInfo
	version uint64
}

// New validates deps and returns a service with an empty cache. Call Warm
// to load existing aggregates from the journal.
func New(deps Deps) (*Service, error) {
	if deps.Journal == nil {
		return nil, errors.New("orchestrator: journal is required")
	}
	if deps.Vendor == nil {
		return nil, errors.New("orchestrator: vendor is required")
	}
	s := &Service{
		vendor:      deps.Vendor,
		inventory:   deps.Inventory,
		log:         deps.Logger,
		metrics:     deps.Metrics,
		tracer:      deps.Tracer,
		recorder:    deps.Recorder,
		retry:       deps.Retry,
		limit:       deps.Concurrency,
		entries:     make(map[ids.DeviceID]*entry),
		byMAC:       make(map[network.MAC]ids.DeviceID),
		vendorRefs:  make(map[ids.DeviceID]string),
		states:      make(map[ids.DeviceID]device.State),
		connections: make(map[ids.ConnectionID]*connection),
	}
	if s.log == nil {
		s.log = noopLogger{}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("")
	}
	if s.recorder == nil {
		s.recorder = noopRecorder{}
	}
	if s.limit <= 0 {
		s.limit = DefaultConcurrency
	}
	s.journal = journal.WithRetry(deps.Journal, s.retry, s.log)
	if _, ok := deps.Journal.(journal.AggregateLister); ok {
		s.lister = s.journal.(journal.AggregateLister)
	}
	return s, nil
}

// Get returns a copy of the cached device.
func (s *Service) Get(id ids.DeviceID) (*device.Device, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dev.Clone(), nil
}

// ByMAC returns a copy of the device with mac.
func (s *Service) ByMAC(mac network.MAC) (*device.Device, error) {
	s.mu.RLock()
	id, ok := s.byMAC[mac]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: mac %s", ErrDeviceNotFound, mac)
	}
	return s.Get(id)
}

// List returns copies of every cached device, sorted by id.
func (s *Service) List() []*device.Device {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*device.Device, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.dev.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out
}

// Connections returns the live connections, sorted by id.
func (s *Service) Connections() []inventory.ConnectionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]inventory.ConnectionInfo, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, c.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out
}

func (s *Service) entry(id ids.DeviceID) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// insert adds a cache entry for d. It reports false, changing nothing, when
// the device is already cached.
func (s *Service) insert(d *device.Device) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[d.ID]; exists {
		return false
	}
	s.entries[d.ID] = &entry{dev: d}
	s.byMAC[d.MAC] = d.ID
	s.states[d.ID] = d.State
	return true
}

// install replaces the aggregate of a cached entry. The caller holds e.mu.
func (s *Service) install(e *entry, d *device.Device) {
	e.dev = d
	s.mu.Lock()
	s.byMAC[d.MAC] = d.ID
	s.states[d.ID] = d.State
	s.mu.Unlock()
}

// withEntry runs fn holding the entry lock for id.
func (s *Service) withEntry(id ids.DeviceID, fn func(e *entry) error) error {
	e, ok := s.entry(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e)
}

// commit runs op on a clone of the entry's aggregate, appends the result
// and installs the clone. The caller holds e.mu.
func (s *Service) commit(ctx context.Context, e *entry, meta event.Metadata,
	op func(d *device.Device, meta event.Metadata) ([]event.Envelope, error),
) ([]event.Envelope, error) {
	clone := e.dev.Clone()
	envs, err := op(clone, meta)
	if err != nil {
		return nil, err
	}
	if len(envs) == 0 {
		return nil, nil
	}
	if err := s.append(ctx, envs); err != nil {
		return nil, err
	}

	e.dev = clone
	s.mu.Lock()
	s.states[clone.ID] = clone.State
	s.mu.Unlock()
	s.publishCounts()
	return envs, nil
}

// append writes envs to the journal.
func (s *Service) append(ctx context.Context, envs []event.Envelope) error {
	if err := s.journal.Append(ctx, envs); err != nil {
		return fmt.Errorf("appending %d events: %w", len(envs), err)
	}
	s.metrics.ObserveEvents(envs)
	s.recorder.RecordLifecycle(envs)
	return nil
}

func (s *Service) publishCounts() {
	s.mu.RLock()
	counts := make(map[string]int)
	for _, st := range s.states {
		counts[st.String()]++
	}
	s.mu.RUnlock()
	s.metrics.SetDeviceCounts(counts)
}

func (s *Service) notify(what string) retry.Notify {
	return func(err error, wait time.Duration) {
		s.log.Warn("retrying", "call", what, "wait", wait, "error", err)
	}
}

// instrument wraps one public operation with a span, metrics and logging.
func (s *Service) instrument(ctx context.Context, op string, id *ids.DeviceID, fn func(ctx context.Context) error) error {
	start := time.Now()
	meta := MetadataFrom(ctx)
	ctx = WithMetadata(ctx, meta)

	attrs := []attribute.KeyValue{attribute.String("netfleet.correlation_id", meta.CorrelationID.String())}
	if id != nil {
		attrs = append(attrs, attribute.String("netfleet.device_id", id.String()))
	}
	ctx, span := s.tracer.Start(ctx, "orchestrator."+op, trace.WithAttributes(attrs...))
	defer span.End()

	err := fn(ctx)

	s.metrics.ObserveOperation(op, time.Since(start), err)
	logArgs := []any{"op", op, "correlation_id", meta.CorrelationID.String(), "duration", time.Since(start)}
	if id != nil {
		logArgs = append(logArgs, "device_id", id.String())
	}

	var fanout *FanoutError
	switch {
	case err == nil:
		s.log.Debug("operation completed", logArgs...)
	case errors.As(err, &fanout):
		span.RecordError(err)
		s.log.Warn("operation committed with fan-out failure", append(logArgs, "error", err)...)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Warn("operation failed", append(logArgs, "error", err)...)
	}
	return err
}

// connectionInfo converts an established event payload.
func connectionInfo(p topology.Established) inventory.ConnectionInfo {
	return inventory.ConnectionInfo{
		ID:        p.ConnectionID,
		Source:    p.Source,
		Target:    p.Target,
		Type:      string(p.Type),
		VLAN:      p.VLAN,
		Bandwidth: p.Bandwidth,
	}
}
