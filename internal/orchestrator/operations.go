package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/fault"
	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/network"
	"github.com/nerrad567/netfleet-core/internal/retry"
)

// AdoptDevice moves a discovered device to Adopting and asks the vendor
// controller to adopt it. A vendor failure leaves the device Adopting and
// is returned as a *FanoutError together with the device.
func (s *Service) AdoptDevice(ctx context.Context, id ids.DeviceID) (*device.Device, error) {
	var out *device.Device
	err := s.instrument(ctx, "adopt", &id, func(ctx context.Context) error {
		return s.withEntry(id, func(e *entry) error {
			// The controller-agnostic vendor id is the MAC.
			if _, err := s.commit(ctx, e, MetadataFrom(ctx), func(d *device.Device, m event.Metadata) ([]event.Envelope, error) {
				return d.Adopt(m, d.MAC.String())
			}); err != nil {
				return err
			}
			out = e.dev.Clone()
			return s.vendorCall(ctx, e.dev, "adopt", func(vendorID string) error {
				return s.vendor.AdoptDevice(ctx, vendorID)
			})
		})
	})
	return out, err
}

// MarkProvisioned records model and firmware and, when an inventory is
// wired, syncs the device to it.
func (s *Service) MarkProvisioned(ctx context.Context, id ids.DeviceID, model, firmware string) (*device.Device, error) {
	var out *device.Device
	err := s.instrument(ctx, "mark_provisioned", &id, func(ctx context.Context) error {
		return s.withEntry(id, func(e *entry) error {
			meta := MetadataFrom(ctx)
			envs, err := s.commit(ctx, e, meta, func(d *device.Device, m event.Metadata) ([]event.Envelope, error) {
				return d.MarkProvisioned(m, model, firmware)
			})
			if err != nil {
				return err
			}
			out = e.dev.Clone()
			if s.inventory == nil {
				return nil
			}
			if len(envs) > 0 {
				meta = meta.Caused(envs[len(envs)-1].EventID)
			}
			err = s.syncLocked(ctx, e, meta)
			out = e.dev.Clone()
			return err
		})
	})
	return out, err
}

// SyncInventory pushes the device to the inventory and records the
// external id it was given.
func (s *Service) SyncInventory(ctx context.Context, id ids.DeviceID) (*device.Device, error) {
	if s.inventory == nil {
		return nil, ErrNoInventory
	}
	var out *device.Device
	err := s.instrument(ctx, "sync_inventory", &id, func(ctx context.Context) error {
		return s.withEntry(id, func(e *entry) error {
			err := s.syncLocked(ctx, e, MetadataFrom(ctx))
			out = e.dev.Clone()
			return err
		})
	})
	return out, err
}

// syncLocked calls the inventory and commits the resulting
// DeviceSyncedToInventory event. The caller holds e.mu.
func (s *Service) syncLocked(ctx context.Context, e *entry, meta event.Metadata) error {
	snapshot := e.dev.Clone()
	externalID, err := retry.Value(ctx, s.retry, func() (string, error) {
		return s.inventory.SyncDevice(ctx, snapshot)
	}, s.notify("inventory sync"))
	if err != nil {
		return &FanoutError{System: s.inventory.SystemName(), Op: "sync", DeviceID: snapshot.ID, Err: err}
	}
	_, err = s.commit(ctx, e, meta, func(d *device.Device, m event.Metadata) ([]event.Envelope, error) {
		return d.RecordInventorySync(m, externalID, s.inventory.SystemName())
	})
	return err
}

// ConfigureDevice records interface and VLAN configuration and pushes it to
// the vendor controller as YAML.
func (s *Service) ConfigureDevice(ctx context.Context, id ids.DeviceID, ifaces []network.InterfaceConfig, vlans []network.VLANConfig) (*device.Device, error) {
	var out *device.Device
	err := s.instrument(ctx, "configure", &id, func(ctx context.Context) error {
		return s.withEntry(id, func(e *entry) error {
			if _, err := s.commit(ctx, e, MetadataFrom(ctx), func(d *device.Device, m event.Metadata) ([]event.Envelope, error) {
				return d.Configure(m, ifaces, vlans)
			}); err != nil {
				return err
			}
			out = e.dev.Clone()

			payload, err := configPayload(out)
			if err != nil {
				return &FanoutError{System: s.vendor.VendorName(), Op: "apply_config", DeviceID: id, Err: err}
			}
			return s.vendorCall(ctx, e.dev, "apply_config", func(vendorID string) error {
				return s.vendor.ApplyConfig(ctx, vendorID, payload)
			})
		})
	})
	return out, err
}

// RenameDevice changes the human name. Renaming to the current name emits
// nothing.
func (s *Service) RenameDevice(ctx context.Context, id ids.DeviceID, name string) (*device.Device, error) {
	return s.simple(ctx, "rename", id, func(d *device.Device, m event.Metadata) ([]event.Envelope, error) {
		return d.Rename(m, name)
	})
}

// ReportFailure moves an in-flight device to Error.
func (s *Service) ReportFailure(ctx context.Context, id ids.DeviceID, reason string) (*device.Device, error) {
	return s.simple(ctx, "report_failure", id, func(d *device.Device, m event.Metadata) ([]event.Envelope, error) {
		return d.MarkFailed(m, reason)
	})
}

// RecoverDevice returns a device in Error to Discovered.
func (s *Service) RecoverDevice(ctx context.Context, id ids.DeviceID) (*device.Device, error) {
	return s.simple(ctx, "recover", id, func(d *device.Device, m event.Metadata) ([]event.Envelope, error) {
		return d.Recover(m)
	})
}

// DecommissionDevice retires the device and removes it from the inventory
// on a best-effort basis.
func (s *Service) DecommissionDevice(ctx context.Context, id ids.DeviceID) (*device.Device, error) {
	var out *device.Device
	err := s.instrument(ctx, "decommission", &id, func(ctx context.Context) error {
		return s.withEntry(id, func(e *entry) error {
			if _, err := s.commit(ctx, e, MetadataFrom(ctx), func(d *device.Device, m event.Metadata) ([]event.Envelope, error) {
				return d.Decommission(m)
			}); err != nil {
				return err
			}
			out = e.dev.Clone()
			if s.inventory == nil {
				return nil
			}
			err := retry.Do(ctx, s.retry, func() error {
				return s.inventory.RemoveDevice(ctx, id)
			}, s.notify("inventory remove"))
			if err != nil && !errors.Is(err, fault.ErrNotFound) {
				return &FanoutError{System: s.inventory.SystemName(), Op: "remove", DeviceID: id, Err: err}
			}
			return nil
		})
	})
	return out, err
}

func (s *Service) simple(ctx context.Context, op string, id ids.DeviceID,
	fn func(d *device.Device, m event.Metadata) ([]event.Envelope, error),
) (*device.Device, error) {
	var out *device.Device
	err := s.instrument(ctx, op, &id, func(ctx context.Context) error {
		return s.withEntry(id, func(e *entry) error {
			if _, err := s.commit(ctx, e, MetadataFrom(ctx), fn); err != nil {
				return err
			}
			out = e.dev.Clone()
			return nil
		})
	})
	return out, err
}

// vendorCall resolves the controller's own id for d and runs call with
// retries. Failures become *FanoutError.
func (s *Service) vendorCall(ctx context.Context, d *device.Device, op string, call func(vendorID string) error) error {
	vendorID, err := s.vendorID(ctx, d)
	if err == nil {
		err = retry.Do(ctx, s.retry, func() error { return call(vendorID) }, s.notify("vendor "+op))
	}
	if err != nil {
		return &FanoutError{System: s.vendor.VendorName(), Op: op, DeviceID: d.ID, Err: err}
	}
	return nil
}

// vendorID returns the controller id recorded at discovery, asking the
// controller again after a restart emptied the map.
func (s *Service) vendorID(ctx context.Context, d *device.Device) (string, error) {
	s.mu.RLock()
	ref, ok := s.vendorRefs[d.ID]
	s.mu.RUnlock()
	if ok {
		return ref, nil
	}

	devices, err := retry.Value(ctx, s.retry, func() ([]vendorDevice, error) {
		return s.listVendor(ctx)
	}, s.notify("vendor list"))
	if err != nil {
		return "", err
	}
	for _, vd := range devices {
		if vd.mac == d.MAC {
			s.mu.Lock()
			s.vendorRefs[d.ID] = vd.VendorID
			s.mu.Unlock()
			return vd.VendorID, nil
		}
	}
	return "", fmt.Errorf("no controller device with mac %s", d.MAC)
}

// devicePayload is the YAML document sent to the controller on configure.
type devicePayload struct {
	Device     string                    `yaml:"device"`
	MAC        string                    `yaml:"mac"`
	Name       string                    `yaml:"name,omitempty"`
	Interfaces []network.InterfaceConfig `yaml:"interfaces,omitempty"`
	VLANs      []network.VLANConfig      `yaml:"vlans,omitempty"`
}

func configPayload(d *device.Device) ([]byte, error) {
	return yaml.Marshal(devicePayload{
		Device:     d.ID.String(),
		MAC:        d.MAC.String(),
		Name:       d.Name,
		Interfaces: d.Interfaces,
		VLANs:      d.VLANs,
	})
}
