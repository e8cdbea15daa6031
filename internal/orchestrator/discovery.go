package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/network"
	"github.com/nerrad567/netfleet-core/internal/retry"
	"github.com/nerrad567/netfleet-core/internal/vendor"
)

type vendorDevice struct {
	vendor.Device
	mac network.MAC
}

// listVendor lists controller devices, dropping those with malformed MACs.
func (s *Service) listVendor(ctx context.Context) ([]vendorDevice, error) {
	raw, err := s.vendor.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]vendorDevice, 0, len(raw))
	for _, vd := range raw {
		mac, err := network.ParseMAC(vd.MAC)
		if err != nil {
			s.log.Warn("skipping vendor device with malformed mac",
				"vendor", s.vendor.VendorName(), "vendor_id", vd.VendorID, "mac", vd.MAC, "error", err)
			continue
		}
		out = append(out, vendorDevice{Device: vd, mac: mac})
	}
	return out, nil
}

// DiscoverDevices creates an aggregate for every controller device whose
// MAC is not cached yet and returns the new ids. Running it twice against
// an unchanged controller emits nothing the second time.
func (s *Service) DiscoverDevices(ctx context.Context) ([]ids.DeviceID, error) {
	var found []ids.DeviceID
	err := s.instrument(ctx, "discover", nil, func(ctx context.Context) error {
		s.discoverMu.Lock()
		defer s.discoverMu.Unlock()

		devices, err := retry.Value(ctx, s.retry, func() ([]vendorDevice, error) {
			return s.listVendor(ctx)
		}, s.notify("vendor list"))
		if err != nil {
			return err
		}

		meta := MetadataFrom(ctx)
		for _, vd := range devices {
			s.mu.Lock()
			id, known := s.byMAC[vd.mac]
			if known {
				s.vendorRefs[id] = vd.VendorID
			}
			s.mu.Unlock()
			if known {
				continue
			}

			d, envs, err := device.Discover(meta, vd.mac, device.InferType(vd.Model), vd.IP, vd.Name)
			if err != nil {
				s.log.Warn("skipping vendor device", "vendor_id", vd.VendorID, "error", err)
				continue
			}
			if err := s.append(ctx, envs); err != nil {
				return err
			}

			// Warm may have loaded the new aggregate already.
			s.insert(d)
			s.mu.Lock()
			s.vendorRefs[d.ID] = vd.VendorID
			s.mu.Unlock()
			found = append(found, d.ID)
			meta = meta.Caused(envs[len(envs)-1].EventID)

			s.log.Info("device discovered",
				"device_id", d.ID.String(), "mac", d.MAC.String(), "type", d.Type.String(), "vendor_id", vd.VendorID)
		}
		s.publishCounts()
		return nil
	})
	return found, err
}

// Step names used in BatchReport failures.
const (
	StepDiscover = "discover"
	StepAdopt    = "adopt"
	StepSync     = "sync"
)

// StepFailure records one failed step of a batch.
type StepFailure struct {
	Step     string       `json:"step"`
	DeviceID ids.DeviceID `json:"device_id,omitzero"`
	Err      error        `json:"-"`
	Message  string       `json:"error"`
	// Committed is true when the step's events were stored and only the
	// external call failed.
	Committed bool `json:"committed"`
}

// BatchReport summarizes DiscoverAndProvision.
type BatchReport struct {
	CorrelationID ids.CorrelationID `json:"correlation_id"`
	Discovered    []ids.DeviceID    `json:"discovered"`
	Adopted       []ids.DeviceID    `json:"adopted"`
	Synced        []ids.DeviceID    `json:"synced"`
	Failures      []StepFailure     `json:"failures"`
}

// OK reports whether every step succeeded.
func (r *BatchReport) OK() bool { return len(r.Failures) == 0 }

type batch struct {
	mu     sync.Mutex
	report BatchReport
}

func (b *batch) fail(step string, id ids.DeviceID, err error) {
	var fanout *FanoutError
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.Failures = append(b.report.Failures, StepFailure{
		Step:      step,
		DeviceID:  id,
		Err:       err,
		Message:   err.Error(),
		Committed: errors.As(err, &fanout),
	})
}

func (b *batch) add(list *[]ids.DeviceID, id ids.DeviceID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	*list = append(*list, id)
}

// DiscoverAndProvision discovers new devices, adopts each of them and syncs
// every live device to the inventory. Steps run with bounded parallelism and
// a failed step never stops the others; failures are collected in the
// report. Only a cancelled ctx ends the batch early.
func (s *Service) DiscoverAndProvision(ctx context.Context) (*BatchReport, error) {
	meta := MetadataFrom(ctx)
	ctx = WithMetadata(ctx, meta)
	b := &batch{report: BatchReport{CorrelationID: meta.CorrelationID}}

	discovered, err := s.DiscoverDevices(ctx)
	b.report.Discovered = discovered
	if err != nil {
		b.fail(StepDiscover, ids.DeviceID{}, err)
	}

	s.forEach(ctx, discovered, func(ctx context.Context, id ids.DeviceID) {
		_, err := s.AdoptDevice(ctx, id)
		var fanout *FanoutError
		if err == nil || errors.As(err, &fanout) {
			b.add(&b.report.Adopted, id)
		}
		if err != nil {
			b.fail(StepAdopt, id, err)
		}
	})

	if s.inventory != nil {
		var live []ids.DeviceID
		for _, d := range s.List() {
			if !d.Terminal() {
				live = append(live, d.ID)
			}
		}
		s.forEach(ctx, live, func(ctx context.Context, id ids.DeviceID) {
			if _, err := s.SyncInventory(ctx, id); err != nil {
				b.fail(StepSync, id, err)
				return
			}
			b.add(&b.report.Synced, id)
		})
	}

	r := b.report
	sortIDs(r.Adopted)
	sortIDs(r.Synced)
	sort.SliceStable(r.Failures, func(i, j int) bool {
		if r.Failures[i].Step != r.Failures[j].Step {
			return stepOrder(r.Failures[i].Step) < stepOrder(r.Failures[j].Step)
		}
		return r.Failures[i].DeviceID.Compare(r.Failures[j].DeviceID) < 0
	})
	return &r, ctx.Err()
}

// forEach runs fn for every id with at most s.limit in flight. Each call
// gets its own causation so events of parallel steps do not chain.
func (s *Service) forEach(ctx context.Context, list []ids.DeviceID, fn func(ctx context.Context, id ids.DeviceID)) {
	var g errgroup.Group
	g.SetLimit(s.limit)
	meta := MetadataFrom(ctx)
	for _, id := range list {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(WithMetadata(ctx, event.MetadataFor(meta.CorrelationID)), id)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Steps report through the batch
}

func stepOrder(step string) int {
	switch step {
	case StepDiscover:
		return 0
	case StepAdopt:
		return 1
	default:
		return 2
	}
}

func sortIDs(s []ids.DeviceID) {
	sort.Slice(s, func(i, j int) bool { return s[i].Compare(s[j]) < 0 })
}
