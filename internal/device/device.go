package device

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/network"
)

// Device is the aggregate for one managed network device.
//
// Fields are exported for reading; change them only through the operations
// below so every change is recorded as an event.
type Device struct {
	ID              ids.DeviceID
	MAC             network.MAC
	Type            Type
	IP              *netip.Addr
	Name            string
	VendorID        string
	Model           string
	FirmwareVersion string
	State           State
	Version         uint64
	Interfaces      []network.InterfaceConfig
	VLANs           []network.VLANConfig
	InventoryRefs   map[string]string
	FailureReason   string
}

// Discover creates a new aggregate from a first observation.
// name may be empty.
func Discover(meta event.Metadata, mac network.MAC, typ Type, ip *netip.Addr, name string) (*Device, []event.Envelope, error) {
	if mac.IsZero() {
		return nil, nil, fmt.Errorf("%w: mac", ErrMissingField)
	}
	id := ids.NewDeviceID()
	d := &Device{}
	p := Discovered{DeviceID: id, MAC: mac, DeviceType: typ, Name: strings.TrimSpace(name)}
	if ip != nil {
		addr := *ip
		p.IP = &addr
	}
	envs, err := d.record(meta, id, p)
	if err != nil {
		return nil, nil, err
	}
	return d, envs, nil
}

// Rename changes the human name. Renaming to the current name is a no-op.
func (d *Device) Rename(meta event.Metadata, name string) ([]event.Envelope, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if err := d.requireLive("rename", d.State); err != nil {
		return nil, err
	}
	if name == d.Name {
		return nil, nil
	}
	return d.record(meta, d.ID, Renamed{DeviceID: d.ID, OldName: d.Name, NewName: name})
}

// Adopt starts controller adoption.
func (d *Device) Adopt(meta event.Metadata, vendorID string) ([]event.Envelope, error) {
	if strings.TrimSpace(vendorID) == "" {
		return nil, fmt.Errorf("%w: vendor_id", ErrMissingField)
	}
	if err := d.require("adopt", StateAdopting, StateDiscovered); err != nil {
		return nil, err
	}
	return d.record(meta, d.ID, Adopting{DeviceID: d.ID, VendorID: vendorID})
}

// MarkProvisioned records the model and firmware the device reported.
func (d *Device) MarkProvisioned(meta event.Metadata, model, firmware string) ([]event.Envelope, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%w: model", ErrMissingField)
	}
	if err := d.require("mark_provisioned", StateProvisioned, StateAdopting, StateDiscovered); err != nil {
		return nil, err
	}
	return d.record(meta, d.ID, Provisioned{DeviceID: d.ID, Model: model, FirmwareVersion: firmware})
}

// Configure records desired interface and VLAN configuration.
func (d *Device) Configure(meta event.Metadata, ifaces []network.InterfaceConfig, vlans []network.VLANConfig) ([]event.Envelope, error) {
	if err := d.require("configure", StateConfiguring, StateProvisioned, StateConfiguring); err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if err := iface.Validate(); err != nil {
			return nil, err
		}
	}
	seen := make(map[network.VLANID]bool, len(vlans))
	for _, v := range vlans {
		if _, err := network.NewVLAN(int(v.ID), v.Name); err != nil {
			return nil, err
		}
		if seen[v.ID] {
			return nil, fmt.Errorf("%w: vlan %d listed twice", network.ErrInvalidFormat, v.ID)
		}
		seen[v.ID] = true
	}
	p := Configured{DeviceID: d.ID, VLANs: append([]network.VLANConfig(nil), vlans...)}
	for _, iface := range ifaces {
		p.Interfaces = append(p.Interfaces, iface.Clone())
	}
	return d.record(meta, d.ID, p)
}

// Decommission retires the device. It is the last accepted operation.
func (d *Device) Decommission(meta event.Metadata) ([]event.Envelope, error) {
	if err := d.requireLive("decommission", StateDecommissioned); err != nil {
		return nil, err
	}
	return d.record(meta, d.ID, Decommissioned{DeviceID: d.ID})
}

// RecordInventorySync notes the id an inventory system holds for the device.
// Recording the same id again is a no-op.
func (d *Device) RecordInventorySync(meta event.Metadata, externalID, system string) ([]event.Envelope, error) {
	if externalID == "" || system == "" {
		return nil, fmt.Errorf("%w: external_id and system", ErrMissingField)
	}
	if err := d.requireLive("record_inventory_sync", d.State); err != nil {
		return nil, err
	}
	if d.InventoryRefs[system] == externalID {
		return nil, nil
	}
	return d.record(meta, d.ID, SyncedToInventory{DeviceID: d.ID, ExternalID: externalID, System: system})
}

// MarkFailed moves an in-flight device to Error.
func (d *Device) MarkFailed(meta event.Metadata, reason string) ([]event.Envelope, error) {
	if err := d.require("mark_failed", StateError, StateAdopting, StateProvisioned, StateConfiguring); err != nil {
		return nil, err
	}
	return d.record(meta, d.ID, Failed{DeviceID: d.ID, Reason: reason, PreviousState: d.State})
}

// Recover returns a failed device to Discovered so adoption can be retried.
func (d *Device) Recover(meta event.Metadata) ([]event.Envelope, error) {
	if err := d.require("recover", StateDiscovered, StateError); err != nil {
		return nil, err
	}
	return d.record(meta, d.ID, Recovered{DeviceID: d.ID})
}

// Terminal reports whether the device has been decommissioned.
func (d *Device) Terminal() bool { return d.State.Terminal() }

func (d *Device) require(op string, to State, from ...State) error {
	for _, s := range from {
		if d.State == s {
			return nil
		}
	}
	return &TransitionError{Op: op, From: d.State, To: to}
}

func (d *Device) requireLive(op string, to State) error {
	if d.State.Terminal() {
		return &TransitionError{Op: op, From: d.State, To: to}
	}
	return nil
}

// record stamps payloads as envelopes and folds them into d. On error d is
// left as it was.
func (d *Device) record(meta event.Metadata, id ids.DeviceID, payloads ...event.Payload) ([]event.Envelope, error) {
	b := event.NewBuilder(meta, id.String())
	next := d.Clone()
	for i, p := range payloads {
		env := b.Add(d.Version+uint64(i)+1, p)
		if err := next.Apply(env); err != nil {
			return nil, err
		}
	}
	*d = *next
	return b.Envelopes(), nil
}

// Apply folds one event into the aggregate. The event must be the next
// version of this aggregate.
func (d *Device) Apply(env event.Envelope) error {
	if env.Version != d.Version+1 {
		return fmt.Errorf("%w: %s at version %d, aggregate at %d", ErrVersionConflict, env.Type(), env.Version, d.Version)
	}
	if d.Version > 0 && env.AggregateID != d.ID.String() {
		return fmt.Errorf("%w: %s", ErrForeignEvent, env.AggregateID)
	}
	if _, ok := env.Payload.(Discovered); d.Version == 0 && !ok {
		return fmt.Errorf("%w: history of %s starts with %s", ErrVersionConflict, env.AggregateID, env.Type())
	}

	switch p := env.Payload.(type) {
	case Discovered:
		if d.Version != 0 {
			return fmt.Errorf("%w: %s already discovered", ErrVersionConflict, d.ID)
		}
		if env.AggregateID != p.DeviceID.String() {
			return fmt.Errorf("%w: %s", ErrForeignEvent, env.AggregateID)
		}
		d.ID = p.DeviceID
		d.MAC = p.MAC
		d.Type = p.DeviceType
		if p.IP != nil {
			ip := *p.IP
			d.IP = &ip
		}
		d.Name = p.Name
		d.State = StateDiscovered
	case Renamed:
		d.Name = p.NewName
	case Adopting:
		d.VendorID = p.VendorID
		d.State = StateAdopting
	case Provisioned:
		d.Model = p.Model
		d.FirmwareVersion = p.FirmwareVersion
		d.State = StateProvisioned
	case Configured:
		d.Interfaces = nil
		for _, iface := range p.Interfaces {
			d.Interfaces = append(d.Interfaces, iface.Clone())
		}
		d.VLANs = append([]network.VLANConfig(nil), p.VLANs...)
		d.State = StateConfiguring
	case Decommissioned:
		d.State = StateDecommissioned
	case SyncedToInventory:
		if d.InventoryRefs == nil {
			d.InventoryRefs = make(map[string]string)
		}
		d.InventoryRefs[p.System] = p.ExternalID
	case Failed:
		d.FailureReason = p.Reason
		d.State = StateError
	case Recovered:
		d.FailureReason = ""
		d.State = StateDiscovered
	default:
		return fmt.Errorf("%w: %s is not a device event", ErrForeignEvent, env.Type())
	}
	d.Version = env.Version
	return nil
}

// Rehydrate rebuilds an aggregate by folding envs, oldest first, from empty.
func Rehydrate(envs []event.Envelope) (*Device, error) {
	if len(envs) == 0 {
		return nil, ErrNoHistory
	}
	d := &Device{}
	for _, env := range envs {
		if err := d.Apply(env); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Clone returns a deep copy that shares no mutable state with d.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	c := *d
	if d.IP != nil {
		ip := *d.IP
		c.IP = &ip
	}
	if d.Interfaces != nil {
		c.Interfaces = make([]network.InterfaceConfig, len(d.Interfaces))
		for i, iface := range d.Interfaces {
			c.Interfaces[i] = iface.Clone()
		}
	}
	if d.VLANs != nil {
		c.VLANs = append([]network.VLANConfig(nil), d.VLANs...)
	}
	if d.InventoryRefs != nil {
		c.InventoryRefs = make(map[string]string, len(d.InventoryRefs))
		for k, v := range d.InventoryRefs {
			c.InventoryRefs[k] = v
		}
	}
	return &c
}
