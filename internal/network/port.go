package network

import (
	"strconv"
	"strings"

	"github.com/nerrad567/netfleet-core/internal/fault"
	"github.com/nerrad567/netfleet-core/internal/ids"
)

// Port names a physical or logical port, optionally with a numeric index.
type Port struct {
	Name  string `json:"name" yaml:"name"`
	Index *int   `json:"index,omitempty" yaml:"index,omitempty"`
}

// NewPort builds an unindexed port.
func NewPort(name string) (Port, error) {
	if strings.TrimSpace(name) == "" {
		return Port{}, fault.Invalid("port", name, ErrEmpty)
	}
	if strings.Contains(name, "#") {
		return Port{}, fault.Invalid("port", name, ErrInvalidFormat)
	}
	return Port{Name: name}, nil
}

// NewIndexedPort builds a port with an index.
func NewIndexedPort(name string, index int) (Port, error) {
	p, err := NewPort(name)
	if err != nil {
		return Port{}, err
	}
	if index < 0 {
		return Port{}, fault.Invalid("port_index", strconv.Itoa(index), ErrOutOfRange)
	}
	p.Index = &index
	return p, nil
}

// String renders "name" or "name#index".
func (p Port) String() string {
	if p.Index == nil {
		return p.Name
	}
	return p.Name + "#" + strconv.Itoa(*p.Index)
}

// Equal compares name and index by value.
func (p Port) Equal(other Port) bool {
	if p.Name != other.Name {
		return false
	}
	if p.Index == nil || other.Index == nil {
		return p.Index == nil && other.Index == nil
	}
	return *p.Index == *other.Index
}

// ParsePort reverses Port.String.
func ParsePort(s string) (Port, error) {
	name, idx, found := strings.Cut(s, "#")
	if !found {
		return NewPort(name)
	}
	n, err := strconv.Atoi(idx)
	if err != nil {
		return Port{}, fault.Invalid("port", s, ErrInvalidFormat)
	}
	return NewIndexedPort(name, n)
}

// Endpoint is one end of a connection: a device and one of its ports.
type Endpoint struct {
	Device ids.DeviceID `json:"device" yaml:"device"`
	Port   Port         `json:"port" yaml:"port"`
}

func (e Endpoint) String() string { return e.Device.String() + "/" + e.Port.String() }
