package network

import (
	"net/netip"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

// Prefix is a masked IP network such as 10.0.0.0/16.
type Prefix struct {
	p netip.Prefix
}

// ParsePrefix parses CIDR notation. Host bits are cleared, so
// "192.168.1.7/24" yields 192.168.1.0/24.
func ParsePrefix(s string) (Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return Prefix{}, fault.Invalid("prefix", s, ErrInvalidFormat)
	}
	return Prefix{p: p.Masked()}, nil
}

// MustParsePrefix is ParsePrefix for literals.
func MustParsePrefix(s string) Prefix {
	p, err := ParsePrefix(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PrefixFrom wraps a netip.Prefix, masking host bits.
func PrefixFrom(p netip.Prefix) (Prefix, error) {
	if !p.IsValid() {
		return Prefix{}, fault.Invalid("prefix", p.String(), ErrInvalidFormat)
	}
	return Prefix{p: p.Masked()}, nil
}

// Netip returns the underlying netip.Prefix.
func (p Prefix) Netip() netip.Prefix { return p.p }

// Addr returns the network address.
func (p Prefix) Addr() netip.Addr { return p.p.Addr() }

// Bits returns the prefix length.
func (p Prefix) Bits() int { return p.p.Bits() }

// IsValid reports whether p was built by a parser.
func (p Prefix) IsValid() bool { return p.p.IsValid() }

// Contains reports whether addr lies inside p.
func (p Prefix) Contains(addr netip.Addr) bool { return p.p.Contains(addr) }

// HostBits returns the number of host bits in the prefix.
func (p Prefix) HostBits() int { return p.p.Addr().BitLen() - p.p.Bits() }

func (p Prefix) String() string { return p.p.String() }

// MarshalText implements encoding.TextMarshaler.
func (p Prefix) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Prefix) UnmarshalText(b []byte) error {
	parsed, err := ParsePrefix(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// InterfaceAddress is an address with its subnet length, host bits kept,
// e.g. 10.0.0.1/24.
type InterfaceAddress struct {
	p netip.Prefix
}

// ParseInterfaceAddress parses "addr/len".
func ParseInterfaceAddress(s string) (InterfaceAddress, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return InterfaceAddress{}, fault.Invalid("interface_address", s, ErrInvalidFormat)
	}
	return InterfaceAddress{p: p}, nil
}

// NewInterfaceAddress pairs addr with a prefix length of bits.
func NewInterfaceAddress(addr netip.Addr, bits int) (InterfaceAddress, error) {
	p, err := addr.Prefix(bits)
	if err != nil {
		return InterfaceAddress{}, fault.Invalid("interface_address", addr.String(), ErrOutOfRange)
	}
	return InterfaceAddress{p: netip.PrefixFrom(addr, p.Bits())}, nil
}

// Addr returns the host address.
func (a InterfaceAddress) Addr() netip.Addr { return a.p.Addr() }

// Bits returns the subnet length.
func (a InterfaceAddress) Bits() int { return a.p.Bits() }

// Network returns the subnet the address sits in.
func (a InterfaceAddress) Network() Prefix { return Prefix{p: a.p.Masked()} }

func (a InterfaceAddress) String() string { return a.p.String() }

// MarshalText implements encoding.TextMarshaler.
func (a InterfaceAddress) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *InterfaceAddress) UnmarshalText(b []byte) error {
	parsed, err := ParseInterfaceAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddr parses a bare IP address.
func ParseAddr(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fault.Invalid("ip", s, ErrInvalidFormat)
	}
	return a, nil
}
