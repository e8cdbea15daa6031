package network

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

const (
	macOctets = 6
	macLength = macOctets*3 - 1
)

// MAC is a 48-bit hardware address. The zero value is not a valid address;
// build one with ParseMAC.
type MAC [macOctets]byte

// ParseMAC accepts hh:hh:hh:hh:hh:hh or hh-hh-hh-hh-hh-hh in any case.
// Anything of the wrong size fails with ErrInvalidLength, anything else
// malformed with ErrInvalidFormat.
func ParseMAC(s string) (MAC, error) {
	var m MAC
	if len(s) != macLength {
		return m, fault.Invalid("mac", s, ErrInvalidLength)
	}

	sep := s[2]
	if sep != ':' && sep != '-' {
		return m, fault.Invalid("mac", s, ErrInvalidFormat)
	}

	for i := 0; i < macOctets; i++ {
		pos := i * 3
		if i > 0 && s[pos-1] != sep {
			return m, fault.Invalid("mac", s, ErrInvalidFormat)
		}
		b, err := hex.DecodeString(s[pos : pos+2])
		if err != nil {
			return m, fault.Invalid("mac", s, fmt.Errorf("%w: octet %d is not hex", ErrInvalidFormat, i+1))
		}
		m[i] = b[0]
	}
	return m, nil
}

// MustParseMAC is ParseMAC for literals in tests and fixtures.
func MustParseMAC(s string) MAC {
	m, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}

// String returns the lowercase colon-separated form.
func (m MAC) String() string {
	var b strings.Builder
	b.Grow(macLength)
	for i, o := range m {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex.EncodeToString([]byte{o}))
	}
	return b.String()
}

// IsZero reports whether m is the all-zero address.
func (m MAC) IsZero() bool { return m == MAC{} }

// MarshalText implements encoding.TextMarshaler.
func (m MAC) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MAC) UnmarshalText(b []byte) error {
	parsed, err := ParseMAC(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
