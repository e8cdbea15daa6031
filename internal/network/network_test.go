package network

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/nerrad567/netfleet-core/internal/fault"
)

func TestParseMAC(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "colon lowercase", input: "00:11:22:33:44:55", want: "00:11:22:33:44:55"},
		{name: "dash uppercase", input: "AA-BB-CC-DD-EE-FF", want: "aa:bb:cc:dd:ee:ff"},
		{name: "mixed case colon", input: "aA:bB:cC:dD:eE:fF", want: "aa:bb:cc:dd:ee:ff"},
		{name: "five octets", input: "00:11:22:33:44", wantErr: ErrInvalidLength},
		{name: "seven octets", input: "00:11:22:33:44:55:66", wantErr: ErrInvalidLength},
		{name: "empty", input: "", wantErr: ErrInvalidLength},
		{name: "non hex", input: "00:11:22:33:44:GG", wantErr: ErrInvalidFormat},
		{name: "mixed separators", input: "00:11-22:33:44:55", wantErr: ErrInvalidFormat},
		{name: "dot separators", input: "00.11.22.33.44.55", wantErr: ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMAC(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseMAC(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				var ve *fault.ValueError
				if !errors.As(err, &ve) || ve.Field != "mac" {
					t.Errorf("expected ValueError naming mac, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMAC(%q) error = %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseMAC(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseMAC_DashEqualsColon(t *testing.T) {
	a, err := ParseMAC("AA-BB-CC-DD-EE-FF")
	if err != nil {
		t.Fatalf("ParseMAC() error = %v", err)
	}
	b, err := ParseMAC("aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("ParseMAC() error = %v", err)
	}
	if a != b {
		t.Errorf("%s != %s", a, b)
	}
}

func TestMAC_RoundTrip(t *testing.T) {
	m := MustParseMAC("de:ad:be:ef:00:01")
	back, err := ParseMAC(m.String())
	if err != nil || back != m {
		t.Errorf("round trip = %v, %v; want %v", back, err, m)
	}
}

func TestNewVLAN(t *testing.T) {
	tests := []struct {
		id      int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{100, false},
		{4094, false},
		{4095, true},
		{-1, true},
	}

	for _, tt := range tests {
		_, err := NewVLAN(tt.id, "x")
		if (err != nil) != tt.wantErr {
			t.Errorf("NewVLAN(%d) error = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrOutOfRange) {
			t.Errorf("NewVLAN(%d) error = %v, want ErrOutOfRange", tt.id, err)
		}
	}
}

func TestNewVLAN_EmptyName(t *testing.T) {
	if _, err := NewVLAN(10, " "); !errors.Is(err, ErrEmpty) {
		t.Errorf("NewVLAN() error = %v, want ErrEmpty", err)
	}
}

func TestVLAN_RoundTrip(t *testing.T) {
	v, err := NewVLAN(20, "voice")
	if err != nil {
		t.Fatalf("NewVLAN() error = %v", err)
	}
	for _, in := range []VLANConfig{v, v.AsNative()} {
		out, err := ParseVLAN(in.String())
		if err != nil {
			t.Fatalf("ParseVLAN(%q) error = %v", in, err)
		}
		if out != in {
			t.Errorf("ParseVLAN(%q) = %+v, want %+v", in, out, in)
		}
	}
	if _, err := ParseVLAN("20:voice:trunk"); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestParsePrefix(t *testing.T) {
	p, err := ParsePrefix("192.168.1.7/24")
	if err != nil {
		t.Fatalf("ParsePrefix() error = %v", err)
	}
	if p.String() != "192.168.1.0/24" {
		t.Errorf("ParsePrefix() = %s, want masked network", p)
	}
	if !p.Contains(netip.MustParseAddr("192.168.1.200")) {
		t.Error("expected prefix to contain .200")
	}
	if p.HostBits() != 8 {
		t.Errorf("HostBits() = %d, want 8", p.HostBits())
	}

	for _, bad := range []string{"10.0.0.0/33", "10.0.0.0", "nope"} {
		if _, err := ParsePrefix(bad); !errors.Is(err, fault.ErrValidation) {
			t.Errorf("ParsePrefix(%q) error = %v, want validation error", bad, err)
		}
	}
}

func TestInterfaceAddress(t *testing.T) {
	a, err := ParseInterfaceAddress("10.0.0.1/24")
	if err != nil {
		t.Fatalf("ParseInterfaceAddress() error = %v", err)
	}
	if a.String() != "10.0.0.1/24" {
		t.Errorf("host bits lost: %s", a)
	}
	if a.Network().String() != "10.0.0.0/24" {
		t.Errorf("Network() = %s", a.Network())
	}

	b, err := NewInterfaceAddress(netip.MustParseAddr("10.0.0.1"), 24)
	if err != nil || b != a {
		t.Errorf("NewInterfaceAddress() = %v, %v; want %v", b, err, a)
	}
}

func TestLinkSpeed(t *testing.T) {
	tests := []struct {
		input string
		want  LinkSpeed
		print string
	}{
		{"1G", Speed1G, "1G"},
		{"2.5G", 2_500_000_000, "2.5G"},
		{"100m", Speed100M, "100M"},
		{"10G", Speed10G, "10G"},
		{"100G", Speed100G, "100G"},
		{"1500", 1500, "1.5K"},
		{"7", 7, "7"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLinkSpeed(tt.input)
			if err != nil {
				t.Fatalf("ParseLinkSpeed(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLinkSpeed(%q) = %d, want %d", tt.input, got, tt.want)
			}
			if got.String() != tt.print {
				t.Errorf("String() = %q, want %q", got.String(), tt.print)
			}
			back, err := ParseLinkSpeed(got.String())
			if err != nil || back != got {
				t.Errorf("round trip = %v, %v", back, err)
			}
		})
	}

	for _, bad := range []string{"", "0", "-1G", "fast", "0.5"} {
		if _, err := ParseLinkSpeed(bad); err == nil {
			t.Errorf("ParseLinkSpeed(%q) expected error", bad)
		}
	}
}

func TestPort(t *testing.T) {
	p, err := NewIndexedPort("eth", 3)
	if err != nil {
		t.Fatalf("NewIndexedPort() error = %v", err)
	}
	if p.String() != "eth#3" {
		t.Errorf("String() = %q", p.String())
	}
	back, err := ParsePort(p.String())
	if err != nil || !back.Equal(p) {
		t.Errorf("ParsePort() = %v, %v", back, err)
	}

	plain, err := ParsePort("uplink")
	if err != nil || plain.Index != nil {
		t.Errorf("ParsePort(uplink) = %+v, %v", plain, err)
	}
	if plain.Equal(p) {
		t.Error("ports with different names should differ")
	}

	for _, bad := range []string{"", "eth#x", "eth#-1"} {
		if _, err := ParsePort(bad); err == nil {
			t.Errorf("ParsePort(%q) expected error", bad)
		}
	}
}

func TestInterfaceConfig_Validate(t *testing.T) {
	addr := func(s string) InterfaceAddress {
		a, err := ParseInterfaceAddress(s)
		if err != nil {
			t.Fatal(err)
		}
		return a
	}

	tests := []struct {
		name    string
		cfg     InterfaceConfig
		wantErr bool
	}{
		{name: "valid", cfg: InterfaceConfig{Name: "eth0", Addresses: []InterfaceAddress{addr("10.0.0.1/24")}, VLANs: []VLANID{10, 20}}},
		{name: "missing name", cfg: InterfaceConfig{}, wantErr: true},
		{name: "duplicate address", cfg: InterfaceConfig{Name: "eth0", Addresses: []InterfaceAddress{addr("10.0.0.1/24"), addr("10.0.0.1/16")}}, wantErr: true},
		{name: "duplicate vlan", cfg: InterfaceConfig{Name: "eth0", VLANs: []VLANID{10, 10}}, wantErr: true},
		{name: "vlan out of range", cfg: InterfaceConfig{Name: "eth0", VLANs: []VLANID{4095}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
