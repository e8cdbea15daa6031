package topology

import (
	"fmt"

	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/fault"
	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/network"
)

// ConnectionType is the physical or logical medium of a link.
type ConnectionType string

// Connection types.
const (
	ConnEthernet ConnectionType = "ethernet"
	ConnFiber    ConnectionType = "fiber"
	ConnWireless ConnectionType = "wireless"
	ConnVirtual  ConnectionType = "virtual"
	ConnUplink   ConnectionType = "uplink"
)

// Valid reports whether t is a known connection type.
func (t ConnectionType) Valid() bool {
	switch t {
	case ConnEthernet, ConnFiber, ConnWireless, ConnVirtual, ConnUplink:
		return true
	}
	return false
}

// Connection event names.
const (
	EventConnectionEstablished = "ConnectionEstablished"
	EventConnectionRemoved     = "ConnectionRemoved"
)

// Established adds an edge between two device ports.
type Established struct {
	ConnectionID ids.ConnectionID   `json:"connection_id"`
	Source       network.Endpoint   `json:"source"`
	Target       network.Endpoint   `json:"target"`
	Type         ConnectionType     `json:"type"`
	VLAN         *network.VLANID    `json:"vlan,omitempty"`
	Bandwidth    *network.LinkSpeed `json:"bandwidth,omitempty"`
}

// Removed deletes an edge.
type Removed struct {
	ConnectionID ids.ConnectionID `json:"connection_id"`
}

func (Established) EventType() string         { return EventConnectionEstablished }
func (Removed) EventType() string             { return EventConnectionRemoved }
func (Established) AggregateKind() event.Kind { return event.KindConnection }
func (Removed) AggregateKind() event.Kind     { return event.KindConnection }

func init() {
	event.Register[Established]()
	event.Register[Removed]()
}

// ErrInvalidConnection is returned for malformed connection requests.
var ErrInvalidConnection = fmt.Errorf("%w: topology: invalid connection", fault.ErrValidation)

// ConnectionSpec describes a link to establish.
type ConnectionSpec struct {
	Source    network.Endpoint
	Target    network.Endpoint
	Type      ConnectionType
	VLAN      *network.VLANID
	Bandwidth *network.LinkSpeed
}

// Validate checks the spec is self-consistent. Whether the endpoints exist is
// the caller's concern.
func (s ConnectionSpec) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("%w: type %q", ErrInvalidConnection, s.Type)
	}
	if s.Source.Device.IsZero() || s.Target.Device.IsZero() {
		return fmt.Errorf("%w: both endpoints need a device", ErrInvalidConnection)
	}
	if s.Source.Device == s.Target.Device && s.Source.Port.Equal(s.Target.Port) {
		return fmt.Errorf("%w: endpoints are the same port", ErrInvalidConnection)
	}
	if s.VLAN != nil {
		if _, err := network.NewVLANID(int(*s.VLAN)); err != nil {
			return err
		}
	}
	if s.Bandwidth != nil && *s.Bandwidth == 0 {
		return fmt.Errorf("%w: zero bandwidth", ErrInvalidConnection)
	}
	return nil
}

// Establish mints a connection id and the event recording it.
func Establish(meta event.Metadata, spec ConnectionSpec) (ids.ConnectionID, []event.Envelope, error) {
	if err := spec.Validate(); err != nil {
		return ids.ConnectionID{}, nil, err
	}
	id := ids.NewConnectionID()
	b := event.NewBuilder(meta, id.String())
	b.Add(1, Established{
		ConnectionID: id,
		Source:       spec.Source,
		Target:       spec.Target,
		Type:         spec.Type,
		VLAN:         spec.VLAN,
		Bandwidth:    spec.Bandwidth,
	})
	return id, b.Envelopes(), nil
}

// Remove records the removal of an established connection at version.
func Remove(meta event.Metadata, id ids.ConnectionID, version uint64) []event.Envelope {
	b := event.NewBuilder(meta, id.String())
	b.Add(version+1, Removed{ConnectionID: id})
	return b.Envelopes()
}
