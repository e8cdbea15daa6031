package network

import (
	"strings"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

// InterfaceConfig is the desired configuration of one device interface.
type InterfaceConfig struct {
	Name      string             `json:"name" yaml:"name"`
	Addresses []InterfaceAddress `json:"addresses,omitempty" yaml:"addresses,omitempty"`
	VLANs     []VLANID           `json:"vlans,omitempty" yaml:"vlans,omitempty"`
	Speed     LinkSpeed          `json:"speed,omitempty" yaml:"speed,omitempty"`
	Enabled   bool               `json:"enabled" yaml:"enabled"`
}

// Validate checks the interface has a name and no repeated address or VLAN.
func (c InterfaceConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fault.Invalid("interface_name", c.Name, ErrEmpty)
	}
	seen := make(map[string]bool, len(c.Addresses))
	for _, a := range c.Addresses {
		if seen[a.Addr().String()] {
			return fault.Invalid("interface_address", a.String(), ErrInvalidFormat)
		}
		seen[a.Addr().String()] = true
	}
	vlans := make(map[VLANID]bool, len(c.VLANs))
	for _, v := range c.VLANs {
		if v < MinVLAN || v > MaxVLAN {
			return fault.Invalid("vlan_id", v.String(), ErrOutOfRange)
		}
		if vlans[v] {
			return fault.Invalid("vlan_id", v.String(), ErrInvalidFormat)
		}
		vlans[v] = true
	}
	return nil
}

// Clone returns a deep copy.
func (c InterfaceConfig) Clone() InterfaceConfig {
	out := c
	out.Addresses = append([]InterfaceAddress(nil), c.Addresses...)
	out.VLANs = append([]VLANID(nil), c.VLANs...)
	return out
}
