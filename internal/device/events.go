package device

import (
	"net/netip"

	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/network"
)

// Event type names.
const (
	EventDiscovered        = "DeviceDiscovered"
	EventAdopting          = "DeviceAdopting"
	EventProvisioned       = "DeviceProvisioned"
	EventConfigured        = "DeviceConfigured"
	EventRenamed           = "DeviceRenamed"
	EventDecommissioned    = "DeviceDecommissioned"
	EventSyncedToInventory = "DeviceSyncedToInventory"
	EventFailed            = "DeviceFailed"
	EventRecovered         = "DeviceRecovered"
)

// Discovered is the first event of every device.
type Discovered struct {
	DeviceID   ids.DeviceID `json:"device_id"`
	MAC        network.MAC  `json:"mac"`
	DeviceType Type         `json:"device_type"`
	IP         *netip.Addr  `json:"ip,omitempty"`
	Name       string       `json:"name,omitempty"`
}

// Adopting records the start of controller adoption.
type Adopting struct {
	DeviceID ids.DeviceID `json:"device_id"`
	VendorID string       `json:"vendor_id"`
}

// Provisioned records the device reporting in with its model and firmware.
type Provisioned struct {
	DeviceID        ids.DeviceID `json:"device_id"`
	Model           string       `json:"model"`
	FirmwareVersion string       `json:"firmware_version"`
}

// Configured records desired interface and VLAN configuration.
type Configured struct {
	DeviceID   ids.DeviceID              `json:"device_id"`
	Interfaces []network.InterfaceConfig `json:"interfaces,omitempty"`
	VLANs      []network.VLANConfig      `json:"vlans,omitempty"`
}

// Renamed records a human name change.
type Renamed struct {
	DeviceID ids.DeviceID `json:"device_id"`
	OldName  string       `json:"old_name"`
	NewName  string       `json:"new_name"`
}

// Decommissioned is the last event of a device.
type Decommissioned struct {
	DeviceID ids.DeviceID `json:"device_id"`
}

// SyncedToInventory records the id an inventory system assigned the device.
type SyncedToInventory struct {
	DeviceID   ids.DeviceID `json:"device_id"`
	ExternalID string       `json:"external_id"`
	System     string       `json:"system"`
}

// Failed records a reported failure.
type Failed struct {
	DeviceID      ids.DeviceID `json:"device_id"`
	Reason        string       `json:"reason"`
	PreviousState State        `json:"previous_state"`
}

// Recovered returns a failed device to Discovered.
type Recovered struct {
	DeviceID ids.DeviceID `json:"device_id"`
}

func (Discovered) EventType() string        { return EventDiscovered }
func (Adopting) EventType() string          { return EventAdopting }
func (Provisioned) EventType() string       { return EventProvisioned }
func (Configured) EventType() string        { return EventConfigured }
func (Renamed) EventType() string           { return EventRenamed }
func (Decommissioned) EventType() string    { return EventDecommissioned }
func (SyncedToInventory) EventType() string { return EventSyncedToInventory }
func (Failed) EventType() string            { return EventFailed }
func (Recovered) EventType() string         { return EventRecovered }

func (Discovered) AggregateKind() event.Kind        { return event.KindDevice }
func (Adopting) AggregateKind() event.Kind          { return event.KindDevice }
func (Provisioned) AggregateKind() event.Kind       { return event.KindDevice }
func (Configured) AggregateKind() event.Kind        { return event.KindDevice }
func (Renamed) AggregateKind() event.Kind           { return event.KindDevice }
func (Decommissioned) AggregateKind() event.Kind    { return event.KindDevice }
func (SyncedToInventory) AggregateKind() event.Kind { return event.KindDevice }
func (Failed) AggregateKind() event.Kind            { return event.KindDevice }
func (Recovered) AggregateKind() event.Kind         { return event.KindDevice }

func init() {
	event.Register[Discovered]()
	event.Register[Adopting]()
	event.Register[Provisioned]()
	event.Register[Configured]()
	event.Register[Renamed]()
	event.Register[Decommissioned]()
	event.Register[SyncedToInventory]()
	event.Register[Failed]()
	event.Register[Recovered]()
}

// StateAfter returns the lifecycle state a payload moves a device into.
// ok is false for events that leave the state unchanged.
func StateAfter(p event.Payload) (s State, ok bool) {
	switch p.(type) {
	case Discovered, Recovered:
		return StateDiscovered, true
	case Adopting:
		return StateAdopting, true
	case Provisioned:
		return StateProvisioned, true
	case Configured:
		return StateConfiguring, true
	case Failed:
		return StateError, true
	case Decommissioned:
		return StateDecommissioned, true
	}
	return 0, false
}
