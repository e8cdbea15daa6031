// Package inventory defines the capability NetFleet uses to mirror devices
// into a DCIM/IPAM system such as NetBox, plus an in-process implementation.
package inventory

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/fault"
	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/network"
)

// Inventory is an external system of record.
type Inventory interface {
	SystemName() string
	// SyncDevice upserts d and returns its id in the external system.
	SyncDevice(ctx context.Context, d *device.Device) (string, error)
	RemoveDevice(ctx context.Context, id ids.DeviceID) error
	SyncConnection(ctx context.Context, info ConnectionInfo) error
	GetIPAssignments(ctx context.Context, cidr network.Prefix) ([]IPAssignment, error)
	AllocateIP(ctx context.Context, cidr network.Prefix, id ids.DeviceID) (IPAssignment, error)
}

// Status is the lifecycle of an address assignment.
type Status string

// Assignment statuses.
const (
	StatusActive     Status = "active"
	StatusReserved   Status = "reserved"
	StatusDeprecated Status = "deprecated"
)

// IPAssignment is one address record.
type IPAssignment struct {
	Address   netip.Addr    `json:"address" yaml:"address"`
	PrefixLen int           `json:"prefix_len" yaml:"prefix_len"`
	DeviceID  *ids.DeviceID `json:"device_id,omitempty" yaml:"device_id,omitempty"`
	Interface string        `json:"interface,omitempty" yaml:"interface,omitempty"`
	Status    Status        `json:"status" yaml:"status"`
}

// ConnectionInfo is a link as the inventory records it.
type ConnectionInfo struct {
	ID        ids.ConnectionID
	Source    network.Endpoint
	Target    network.Endpoint
	Type      string
	VLAN      *network.VLANID
	Bandwidth *network.LinkSpeed
}

var (
	// ErrPoolExhausted is returned when a prefix has no free address.
	ErrPoolExhausted = fmt.Errorf("%w: inventory: no free address", fault.ErrConflict)

	// ErrUnknownDevice is returned for devices the inventory never saw.
	ErrUnknownDevice = fmt.Errorf("%w: inventory: unknown device", fault.ErrNotFound)

	// ErrOutsidePrefix is returned when an address is not in the prefix.
	ErrOutsidePrefix = fmt.Errorf("%w: inventory: address outside prefix", fault.ErrValidation)
)
