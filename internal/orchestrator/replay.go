package orchestrator

import (
	"context"
	"fmt"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/topology"
)

// ReplayEvents rebuilds a device from the journal, replaces the cached copy
// and returns it.
func (s *Service) ReplayEvents(ctx context.Context, id ids.DeviceID) (*device.Device, error) {
	var out *device.Device
	err := s.instrument(ctx, "replay", &id, func(ctx context.Context) error {
		d, err := s.reload(ctx, id)
		if err != nil {
			return err
		}
		out = d.Clone()
		return nil
	})
	return out, err
}

// reload rebuilds id from the journal and caches it. For a cached device the
// load and the install happen under the entry lock, so a mutation cannot
// commit in between and be overwritten by the older aggregate.
func (s *Service) reload(ctx context.Context, id ids.DeviceID) (*device.Device, error) {
	for {
		if e, ok := s.entry(id); ok {
			return s.reloadEntry(ctx, e, id)
		}
		d, err := s.rehydrate(ctx, id.String())
		if err != nil {
			return nil, err
		}
		if s.insert(d) {
			return d, nil
		}
		// Cached concurrently; load again under its lock.
	}
}

func (s *Service) reloadEntry(ctx context.Context, e *entry, id ids.DeviceID) (*device.Device, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, err := s.rehydrate(ctx, id.String())
	if err != nil {
		return nil, err
	}
	s.install(e, d)
	return d, nil
}

func (s *Service) rehydrate(ctx context.Context, aggregateID string) (*device.Device, error) {
	envs, err := s.journal.Load(ctx, aggregateID)
	if err != nil {
		return nil, err
	}
	if len(envs) == 0 {
		return nil, fmt.Errorf("%w: %s has no events", ErrDeviceNotFound, aggregateID)
	}
	return device.Rehydrate(envs)
}

// Warm loads every device and connection aggregate in the journal into the
// cache. Journals that cannot list aggregates leave the cache empty.
// Aggregates that fail to rehydrate are logged and skipped.
func (s *Service) Warm(ctx context.Context) error {
	return s.instrument(ctx, "warm", nil, func(ctx context.Context) error {
		if s.lister == nil {
			s.log.Warn("journal cannot list aggregates; cache starts empty")
			return nil
		}

		devices, err := s.lister.Aggregates(ctx, event.KindDevice)
		if err != nil {
			return fmt.Errorf("listing devices: %w", err)
		}
		for _, aggID := range devices {
			id, err := ids.ParseDeviceID(aggID)
			if err == nil {
				_, err = s.reload(ctx, id)
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Error("skipping device that failed to rehydrate", "aggregate_id", aggID, "error", err)
			}
		}

		conns, err := s.lister.Aggregates(ctx, event.KindConnection)
		if err != nil {
			return fmt.Errorf("listing connections: %w", err)
		}
		for _, aggID := range conns {
			if err := s.warmConnection(ctx, aggID); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Error("skipping connection that failed to load", "aggregate_id", aggID, "error", err)
			}
		}

		s.publishCounts()
		s.log.Info("cache warmed", "devices", len(devices), "connections", len(conns))
		return nil
	})
}

func (s *Service) warmConnection(ctx context.Context, aggID string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	envs, err := s.journal.Load(ctx, aggID)
	if err != nil {
		return err
	}
	var c *connection
	for _, env := range envs {
		switch p := env.Payload.(type) {
		case topology.Established:
			c = &connection{info: connectionInfo(p), version: env.Version}
		case topology.Removed:
			c = nil
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil {
		if id, err := ids.ParseConnectionID(aggID); err == nil {
			delete(s.connections, id)
		}
		return nil
	}
	s.connections[c.info.ID] = c
	return nil
}
