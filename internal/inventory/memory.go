package inventory

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"sync"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/network"
)

// maxScan bounds the address search in very large (IPv6) prefixes.
const maxScan = 1 << 16

// DeviceRecord is what Memory stores per device.
type DeviceRecord struct {
	ExternalID string
	Name       string
	MAC        string
	Type       string
	State      string
	IP         *netip.Addr
}

// Memory is an in-process inventory with a simple IPAM.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Memory struct {
	name string

	mu          sync.Mutex
	nextID      int
	devices     map[ids.DeviceID]DeviceRecord
	connections map[ids.ConnectionID]ConnectionInfo
	addresses   map[netip.Addr]IPAssignment
}

// NewMemory returns an empty inventory called name.
func NewMemory(name string) *Memory {
	return &Memory{
		name:        name,
		devices:     make(map[ids.DeviceID]DeviceRecord),
		connections: make(map[ids.ConnectionID]ConnectionInfo),
		addresses:   make(map[netip.Addr]IPAssignment),
	}
}

func (m *Memory) SystemName() string { return m.name }

func (m *Memory) SyncDevice(ctx context.Context, d *device.Device) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.devices[d.ID]
	if !ok {
		m.nextID++
		rec.ExternalID = strconv.Itoa(m.nextID)
	}
	rec.Name = d.Name
	rec.MAC = d.MAC.String()
	rec.Type = d.Type.String()
	rec.State = d.State.String()
	rec.IP = nil
	if d.IP != nil {
		ip := *d.IP
		rec.IP = &ip
	}
	m.devices[d.ID] = rec
	return rec.ExternalID, nil
}

// RemoveDevice forgets the device and deprecates its addresses.
func (m *Memory) RemoveDevice(ctx context.Context, id ids.DeviceID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	delete(m.devices, id)
	for addr, a := range m.addresses {
		if a.DeviceID != nil && *a.DeviceID == id {
			a.Status = StatusDeprecated
			m.addresses[addr] = a
		}
	}
	return nil
}

func (m *Memory) SyncConnection(ctx context.Context, info ConnectionInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[info.ID] = info
	return nil
}

// GetIPAssignments returns the assignments inside cidr, sorted by address.
func (m *Memory) GetIPAssignments(ctx context.Context, cidr network.Prefix) ([]IPAssignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []IPAssignment
	for addr, a := range m.addresses {
		if cidr.Contains(addr) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Less(out[j].Address) })
	return out, nil
}

// AllocateIP assigns the lowest free host address in cidr to id. A device
// that already holds an active address in cidr gets the same one back.
// Prefixes of /30 (or the IPv6 equivalent) and larger skip the network and
// broadcast addresses.
func (m *Memory) AllocateIP(ctx context.Context, cidr network.Prefix, id ids.DeviceID) (IPAssignment, error) {
	if err := ctx.Err(); err != nil {
		return IPAssignment{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for addr, a := range m.addresses {
		if cidr.Contains(addr) && a.Status == StatusActive && a.DeviceID != nil && *a.DeviceID == id {
			return a, nil
		}
	}

	first, last := hostRange(cidr)
	scanned := 0
	for addr := first; addr.IsValid() && addr.Compare(last) <= 0; addr = addr.Next() {
		if scanned++; scanned > maxScan {
			break
		}
		if existing, taken := m.addresses[addr]; taken && existing.Status != StatusDeprecated {
			continue
		}
		owner := id
		a := IPAssignment{Address: addr, PrefixLen: cidr.Bits(), DeviceID: &owner, Status: StatusActive}
		m.addresses[addr] = a
		return a, nil
	}
	return IPAssignment{}, fmt.Errorf("%w: %s", ErrPoolExhausted, cidr)
}

// Reserve marks addr as reserved, for gateways and other fixed hosts.
func (m *Memory) Reserve(cidr network.Prefix, addr netip.Addr, iface string) error {
	if !cidr.Contains(addr) {
		return fmt.Errorf("%w: %s not in %s", ErrOutsidePrefix, addr, cidr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[addr] = IPAssignment{Address: addr, PrefixLen: cidr.Bits(), Interface: iface, Status: StatusReserved}
	return nil
}

// Device returns the stored record for id.
func (m *Memory) Device(id ids.DeviceID) (DeviceRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.devices[id]
	return rec, ok
}

// Connections returns how many connections were synced.
func (m *Memory) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.connections)
}

// hostRange returns the first and last assignable addresses of p.
func hostRange(p network.Prefix) (first, last netip.Addr) {
	first = p.Addr()
	last = lastAddr(p.Netip())
	if p.HostBits() >= 2 {
		first = first.Next()
		last = last.Prev()
	}
	return first, last
}

// lastAddr sets every host bit of p.
func lastAddr(p netip.Prefix) netip.Addr {
	b := p.Masked().Addr().AsSlice()
	bits := p.Bits()
	for i := range b {
		for bit := 0; bit < 8; bit++ {
			if i*8+bit >= bits {
				b[i] |= 0x80 >> bit
			}
		}
	}
	addr, _ := netip.AddrFromSlice(b)
	return addr
}

var _ Inventory = (*Memory)(nil)
