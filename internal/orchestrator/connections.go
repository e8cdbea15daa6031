package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/inventory"
	"github.com/nerrad567/netfleet-core/internal/retry"
	"github.com/nerrad567/netfleet-core/internal/topology"
)

// ConnectDevices records a link between two live devices and mirrors it to
// the inventory when one is wired.
func (s *Service) ConnectDevices(ctx context.Context, spec topology.ConnectionSpec) (ids.ConnectionID, error) {
	var connID ids.ConnectionID
	err := s.instrument(ctx, "connect", nil, func(ctx context.Context) error {
		info, err := s.recordConnection(ctx, spec)
		if err != nil {
			return err
		}
		connID = info.ID

		if s.inventory == nil {
			return nil
		}
		if err := retry.Do(ctx, s.retry, func() error {
			return s.inventory.SyncConnection(ctx, info)
		}, s.notify("inventory connection sync")); err != nil {
			return &FanoutError{System: s.inventory.SystemName(), Op: "sync_connection", DeviceID: spec.Source.Device, Err: err}
		}
		return nil
	})
	return connID, err
}

// recordConnection appends the link while holding both endpoint entry locks,
// so neither endpoint can be decommissioned until the link is stored.
func (s *Service) recordConnection(ctx context.Context, spec topology.ConnectionSpec) (inventory.ConnectionInfo, error) {
	unlock, err := s.lockEndpoints(spec.Source.Device, spec.Target.Device)
	if err != nil {
		return inventory.ConnectionInfo{}, err
	}
	defer unlock()

	s.connMu.Lock()
	defer s.connMu.Unlock()

	id, envs, err := topology.Establish(MetadataFrom(ctx), spec)
	if err != nil {
		return inventory.ConnectionInfo{}, err
	}
	if err := s.append(ctx, envs); err != nil {
		return inventory.ConnectionInfo{}, err
	}

	info := connectionInfo(envs[0].Payload.(topology.Established))
	s.mu.Lock()
	s.connections[id] = &connection{info: info, version: envs[len(envs)-1].Version}
	s.mu.Unlock()
	return info, nil
}

// lockEndpoints takes the entry locks of the given devices in id order and
// checks that each is cached and not decommissioned.
func (s *Service) lockEndpoints(devices ...ids.DeviceID) (func(), error) {
	sorted := append([]ids.DeviceID(nil), devices...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })

	var held []*entry
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
		}
	}
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		e, ok := s.entry(id)
		if !ok {
			unlock()
			return nil, fmt.Errorf("%w: %s unknown", ErrEndpointUnavailable, id)
		}
		e.mu.Lock()
		held = append(held, e)
		if e.dev.Terminal() {
			unlock()
			return nil, fmt.Errorf("%w: %s is decommissioned", ErrEndpointUnavailable, id)
		}
	}
	return unlock, nil
}

// DisconnectDevices removes a recorded link.
func (s *Service) DisconnectDevices(ctx context.Context, id ids.ConnectionID) error {
	return s.instrument(ctx, "disconnect", nil, func(ctx context.Context) error {
		s.connMu.Lock()
		defer s.connMu.Unlock()

		s.mu.RLock()
		c, ok := s.connections[id]
		s.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
		}

		envs := topology.Remove(MetadataFrom(ctx), id, c.version)
		if err := s.append(ctx, envs); err != nil {
			return err
		}
		s.mu.Lock()
		delete(s.connections, id)
		s.mu.Unlock()
		return nil
	})
}
