package network

import (
	"strconv"
	"strings"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

// LinkSpeed is a link rate in bits per second.
type LinkSpeed uint64

// Common link speeds.
const (
	Speed100M LinkSpeed = 100_000_000
	Speed1G   LinkSpeed = 1_000_000_000
	Speed10G  LinkSpeed = 10 * Speed1G
	Speed25G  LinkSpeed = 25 * Speed1G
	Speed40G  LinkSpeed = 40 * Speed1G
	Speed100G LinkSpeed = 100 * Speed1G
)

var speedUnits = []struct {
	suffix string
	scale  float64
}{
	{"T", 1e12},
	{"G", 1e9},
	{"M", 1e6},
	{"K", 1e3},
}

// ParseLinkSpeed accepts a bare bit rate ("1000000") or a number with a
// K/M/G/T suffix ("2.5G"). Zero and negative rates are rejected.
func ParseLinkSpeed(s string) (LinkSpeed, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	scale := 1.0
	for _, u := range speedUnits {
		if strings.HasSuffix(raw, u.suffix) {
			raw = strings.TrimSuffix(raw, u.suffix)
			scale = u.scale
			break
		}
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fault.Invalid("link_speed", s, ErrInvalidFormat)
	}
	bps := n * scale
	if bps < 1 || bps != float64(uint64(bps)) {
		return 0, fault.Invalid("link_speed", s, ErrOutOfRange)
	}
	return LinkSpeed(bps), nil
}

// String picks the largest unit that divides the rate into a short decimal,
// so ParseLinkSpeed(s.String()) == s.
func (s LinkSpeed) String() string {
	for _, u := range speedUnits {
		v := float64(s) / u.scale
		if v < 1 {
			continue
		}
		text := strconv.FormatFloat(v, 'f', -1, 64)
		if back, err := strconv.ParseFloat(text, 64); err == nil && LinkSpeed(back*u.scale) == s {
			return text + u.suffix
		}
	}
	return strconv.FormatUint(uint64(s), 10)
}

// MarshalText implements encoding.TextMarshaler.
func (s LinkSpeed) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *LinkSpeed) UnmarshalText(b []byte) error {
	parsed, err := ParseLinkSpeed(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
