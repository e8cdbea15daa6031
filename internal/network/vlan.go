package network

import (
	"strconv"
	"strings"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

// VLAN id bounds. 0 and 4095 are reserved by 802.1Q.
const (
	MinVLAN = 1
	MaxVLAN = 4094
)

// VLANID is an 802.1Q VLAN identifier in [MinVLAN, MaxVLAN].
type VLANID uint16

// NewVLANID validates id.
func NewVLANID(id int) (VLANID, error) {
	if id < MinVLAN || id > MaxVLAN {
		return 0, fault.Invalid("vlan_id", strconv.Itoa(id), ErrOutOfRange)
	}
	return VLANID(id), nil
}

// ParseVLANID parses a decimal VLAN id.
func ParseVLANID(s string) (VLANID, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fault.Invalid("vlan_id", s, ErrInvalidFormat)
	}
	return NewVLANID(n)
}

func (v VLANID) String() string { return strconv.Itoa(int(v)) }

// VLANConfig is a named VLAN, optionally the native (untagged) VLAN of a trunk.
type VLANConfig struct {
	ID     VLANID `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Native bool   `json:"native,omitempty" yaml:"native,omitempty"`
}

// NewVLAN validates and builds a non-native VLANConfig.
func NewVLAN(id int, name string) (VLANConfig, error) {
	vid, err := NewVLANID(id)
	if err != nil {
		return VLANConfig{}, err
	}
	if strings.TrimSpace(name) == "" {
		return VLANConfig{}, fault.Invalid("vlan_name", name, ErrEmpty)
	}
	if strings.Contains(name, ":") {
		return VLANConfig{}, fault.Invalid("vlan_name", name, ErrInvalidFormat)
	}
	return VLANConfig{ID: vid, Name: name}, nil
}

// AsNative returns a copy of v marked native.
func (v VLANConfig) AsNative() VLANConfig {
	v.Native = true
	return v
}

// String renders "<id>:<name>" with a ":native" suffix for the native VLAN.
func (v VLANConfig) String() string {
	s := v.ID.String() + ":" + v.Name
	if v.Native {
		s += ":native"
	}
	return s
}

// ParseVLAN reverses VLANConfig.String.
func ParseVLAN(s string) (VLANConfig, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return VLANConfig{}, fault.Invalid("vlan", s, ErrInvalidFormat)
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return VLANConfig{}, fault.Invalid("vlan", s, ErrInvalidFormat)
	}
	v, err := NewVLAN(id, parts[1])
	if err != nil {
		return VLANConfig{}, err
	}
	if len(parts) == 3 {
		if parts[2] != "native" {
			return VLANConfig{}, fault.Invalid("vlan", s, ErrInvalidFormat)
		}
		v.Native = true
	}
	return v, nil
}
