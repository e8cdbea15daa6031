// Package ids provides the time-ordered identifiers used across NetFleet.
//
// Every identifier is a UUIDv7: 128 bits whose leading 48 bits are a
// millisecond timestamp, so identifiers sort by creation time. Each category
// is a distinct Go type so a DeviceID cannot be passed where an EventID is
// expected.
package ids

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

// ErrMalformed is the reason carried by a failed identifier parse.
var ErrMalformed = errors.New("malformed identifier")

// Category is implemented by the marker types that distinguish identifiers.
type Category interface {
	field() string
}

type (
	device      struct{}
	topology    struct{}
	connection  struct{}
	eventCat    struct{}
	correlation struct{}
	causation   struct{}
)

func (device) field() string      { return "device_id" }
func (topology) field() string    { return "topology_id" }
func (connection) field() string  { return "connection_id" }
func (eventCat) field() string    { return "event_id" }
func (correlation) field() string { return "correlation_id" }
func (causation) field() string   { return "causation_id" }

// ID is a UUIDv7 tagged with its category.
type ID[C Category] [16]byte

// Identifier categories.
type (
	DeviceID      = ID[device]
	TopologyID    = ID[topology]
	ConnectionID  = ID[connection]
	EventID       = ID[eventCat]
	CorrelationID = ID[correlation]
	CausationID   = ID[causation]
)

func newID[C Category]() ID[C] {
	u, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the system random source is broken.
		panic(fmt.Sprintf("ids: generating uuid: %v", err))
	}
	return ID[C](u)
}

func parse[C Category](s string) (ID[C], error) {
	var c C
	u, err := uuid.Parse(s)
	if err != nil {
		return ID[C]{}, fault.Invalid(c.field(), s, ErrMalformed)
	}
	// The nil UUID is the zero value and must survive a text round trip.
	if u != uuid.Nil && u.Version() != 7 {
		return ID[C]{}, fault.Invalid(c.field(), s, ErrMalformed)
	}
	return ID[C](u), nil
}

// NewDeviceID mints a DeviceID.
func NewDeviceID() DeviceID { return newID[device]() }

// NewTopologyID mints a TopologyID.
func NewTopologyID() TopologyID { return newID[topology]() }

// NewConnectionID mints a ConnectionID.
func NewConnectionID() ConnectionID { return newID[connection]() }

// NewEventID mints an EventID.
func NewEventID() EventID { return newID[eventCat]() }

// NewCorrelationID mints a CorrelationID.
func NewCorrelationID() CorrelationID { return newID[correlation]() }

// ParseDeviceID parses the canonical string form of a DeviceID.
func ParseDeviceID(s string) (DeviceID, error) { return parse[device](s) }

// ParseTopologyID parses the canonical string form of a TopologyID.
func ParseTopologyID(s string) (TopologyID, error) { return parse[topology](s) }

// ParseConnectionID parses the canonical string form of a ConnectionID.
func ParseConnectionID(s string) (ConnectionID, error) { return parse[connection](s) }

// ParseEventID parses the canonical string form of an EventID.
func ParseEventID(s string) (EventID, error) { return parse[eventCat](s) }

// ParseCorrelationID parses the canonical string form of a CorrelationID.
func ParseCorrelationID(s string) (CorrelationID, error) { return parse[correlation](s) }

// ParseCausationID parses the canonical string form of a CausationID.
func ParseCausationID(s string) (CausationID, error) { return parse[causation](s) }

// CausedByEvent names an event as the cause of a later event.
func CausedByEvent(id EventID) CausationID { return CausationID(id) }

// CausedByCommand names the command (identified by its correlation) as the
// cause of its first event.
func CausedByCommand(id CorrelationID) CausationID { return CausationID(id) }

// String returns the canonical lowercase hyphenated form.
func (id ID[C]) String() string { return uuid.UUID(id).String() }

// IsZero reports whether id is the zero value.
func (id ID[C]) IsZero() bool { return id == ID[C]{} }

// Compare orders identifiers by their bytes, which for UUIDv7 is creation order.
func (id ID[C]) Compare(other ID[C]) int { return bytes.Compare(id[:], other[:]) }

// MarshalText implements encoding.TextMarshaler.
func (id ID[C]) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID[C]) UnmarshalText(b []byte) error {
	parsed, err := parse[C](string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
