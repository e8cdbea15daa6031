package orchestrator

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/inventory"
	"github.com/nerrad567/netfleet-core/internal/journal"
	"github.com/nerrad567/netfleet-core/internal/retry"
	"github.com/nerrad567/netfleet-core/internal/vendor"
)

var fastRetry = retry.Policy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

// coreSwitch is the controller device used throughout the scenarios.
func coreSwitch() vendor.Device {
	ip := netip.MustParseAddr("192.168.1.10")
	return vendor.Device{
		VendorID: "d-001",
		MAC:      "00:11:22:33:44:55",
		Model:    "USW-24-POE",
		Name:     "Core-Sw-1",
		IP:       &ip,
	}
}

type harness struct {
	svc     *Service
	journal *journal.MemoryStore
	vendor  *vendor.Static
	inv     *inventory.Memory
}

type harnessOption func(*Deps)

func withInventory(inv inventory.Inventory) harnessOption {
	return func(d *Deps) { d.Inventory = inv }
}

func withJournal(j journal.Journal) harnessOption {
	return func(d *Deps) { d.Journal = j }
}

func withVendor(v vendor.DeviceControl) harnessOption {
	return func(d *Deps) { d.Vendor = v }
}

func newHarness(t *testing.T, devices []vendor.Device, opts ...harnessOption) *harness {
	t.Helper()
	j, err := journal.NewMemoryStore(journal.DefaultConfig())
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })

	v := vendor.NewStatic("unifi", devices...)
	if err := v.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	deps := Deps{Journal: j, Vendor: v, Retry: fastRetry}
	for _, opt := range opts {
		opt(&deps)
	}
	svc, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h := &harness{svc: svc, journal: j, vendor: v}
	if inv, ok := deps.Inventory.(*inventory.Memory); ok {
		h.inv = inv
	}
	return h
}

// scriptedJournal returns queued errors from Append before delegating.
type scriptedJournal struct {
	journal.Journal

	mu      sync.Mutex
	errs    []error
	appends int
}

func (j *scriptedJournal) Append(ctx context.Context, envs []event.Envelope) error {
	j.mu.Lock()
	j.appends++
	if len(j.errs) > 0 {
		err := j.errs[0]
		j.errs = j.errs[1:]
		j.mu.Unlock()
		return err
	}
	j.mu.Unlock()
	return j.Journal.Append(ctx, envs)
}

func (j *scriptedJournal) Aggregates(ctx context.Context, kind event.Kind) ([]string, error) {
	return j.Journal.(journal.AggregateLister).Aggregates(ctx, kind)
}

func (j *scriptedJournal) queue(errs ...error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errs = append(j.errs, errs...)
}

// flakyVendor fails AdoptDevice for the listed vendor ids.
type flakyVendor struct {
	*vendor.Static
	failAdopt map[string]error
}

func (v *flakyVendor) AdoptDevice(ctx context.Context, vendorID string) error {
	if err, ok := v.failAdopt[vendorID]; ok {
		return err
	}
	return v.Static.AdoptDevice(ctx, vendorID)
}

// flakyInventory fails SyncDevice a fixed number of times.
type flakyInventory struct {
	*inventory.Memory

	mu       sync.Mutex
	failures int
	err      error
}

func (i *flakyInventory) SyncDevice(ctx context.Context, d *device.Device) (string, error) {
	i.mu.Lock()
	if i.failures > 0 {
		i.failures--
		i.mu.Unlock()
		return "", i.err
	}
	i.mu.Unlock()
	return i.Memory.SyncDevice(ctx, d)
}
