package projection

import (
	"fmt"
	"net/netip"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/network"
	"github.com/nerrad567/netfleet-core/internal/topology"
)

// allocator hands out host addresses from the base network in order.
type allocator struct {
	base network.Prefix
	next netip.Addr
	last netip.Addr
}

func newAllocator(base network.Prefix) *allocator {
	p := base.Netip().Masked()
	first, last := p.Addr(), broadcast(p)
	if base.Addr().Is4() && base.HostBits() >= 2 {
		first, last = first.Next(), last.Prev()
	}
	return &allocator{base: base, next: first, last: last}
}

func (a *allocator) take() (network.InterfaceAddress, error) {
	if !a.next.IsValid() || a.next.Compare(a.last) > 0 {
		return network.InterfaceAddress{}, fmt.Errorf("base network %s is too small for the shape", a.base)
	}
	addr := a.next
	a.next = a.next.Next()
	return network.NewInterfaceAddress(addr, a.base.Bits())
}

func broadcast(p netip.Prefix) netip.Addr {
	b := p.Addr().AsSlice()
	host := p.Addr().BitLen() - p.Bits()
	for i := len(b) - 1; i >= 0 && host > 0; i-- {
		n := min(host, 8)
		b[i] |= byte(1<<n - 1)
		host -= n
	}
	out, _ := netip.AddrFromSlice(b)
	return out
}

// builder accumulates synthesized devices and links. The first error
// sticks and later calls do nothing.
type builder struct {
	alloc   *allocator
	slugs   *slugger
	devices []deviceSpec
	links   []linkSpec
	err     error
}

func (b *builder) device(name string, typ device.Type, ports ...string) {
	if b.err != nil {
		return
	}
	addr, err := b.alloc.take()
	if err != nil {
		b.err = err
		return
	}
	d := deviceSpec{
		Slug:        b.slugs.next(name),
		Name:        name,
		Type:        typ.String(),
		IP:          addr.Addr().String(),
		Synthesized: true,
		Interfaces:  []interfaceSpec{{Name: "mgmt0", Addresses: []string{addr.String()}, Enabled: true}},
		kind:        typ.Kind,
	}
	for _, p := range ports {
		d.Interfaces = append(d.Interfaces, interfaceSpec{Name: p, Enabled: true})
	}
	b.devices = append(b.devices, d)
}

func (b *builder) link(src, srcPort, dst, dstPort, typ string) {
	if b.err != nil {
		return
	}
	b.links = append(b.links, linkSpec{
		Source:      endpointSpec{Device: src, Port: srcPort},
		Target:      endpointSpec{Device: dst, Port: dstPort},
		Type:        typ,
		Synthesized: true,
	})
}

func ports(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

func nth(prefix string, i int) string { return fmt.Sprintf("%s-%d", prefix, i) }

// synthesize fills an empty model with the shape's devices and links.
func synthesize(shape Shape, base network.Prefix) ([]deviceSpec, []linkSpec, error) {
	b := &builder{alloc: newAllocator(base), slugs: newSlugger()}
	uplink := string(topology.ConnUplink)
	fiber := string(topology.ConnFiber)

	switch s := shape.(type) {
	case SingleRouter:
		b.device("router-1", device.TypeGateway, ports("eth", s.Interfaces)...)

	case RouterSwitch:
		b.device("router-1", device.TypeGateway, ports("eth", s.SwitchCount)...)
		for i := 1; i <= s.SwitchCount; i++ {
			b.device(nth("switch", i), device.TypeSwitch, ports("port", s.PortsPerSwitch)...)
			b.link(nth("switch", i), fmt.Sprintf("port%d", s.PortsPerSwitch), "router-1", fmt.Sprintf("eth%d", i), uplink)
		}

	case ThreeTier:
		perDist := (s.Access + s.Distribution - 1) / s.Distribution
		for i := 1; i <= s.Core; i++ {
			b.device(nth("core", i), device.TypeSwitch, ports("down", s.Distribution)...)
		}
		for j := 1; j <= s.Distribution; j++ {
			b.device(nth("dist", j), device.TypeSwitch, append(ports("up", s.Core), ports("down", perDist)...)...)
			for i := 1; i <= s.Core; i++ {
				b.link(nth("dist", j), fmt.Sprintf("up%d", i), nth("core", i), fmt.Sprintf("down%d", j), fiber)
			}
		}
		for k := 1; k <= s.Access; k++ {
			b.device(nth("access", k), device.TypeSwitch, append([]string{"up1"}, ports("port", s.HostsPerAccess)...)...)
			dist := (k-1)%s.Distribution + 1
			b.link(nth("access", k), "up1", nth("dist", dist), fmt.Sprintf("down%d", (k-1)/s.Distribution+1), uplink)
		}

	case SpineLeaf:
		for i := 1; i <= s.Spine; i++ {
			b.device(nth("spine", i), device.TypeSwitch, ports("leaf", s.Leaf)...)
		}
		for j := 1; j <= s.Leaf; j++ {
			b.device(nth("leaf", j), device.TypeSwitch, append(ports("spine", s.Spine), ports("host", s.HostsPerLeaf)...)...)
			for i := 1; i <= s.Spine; i++ {
				b.link(nth("leaf", j), fmt.Sprintf("spine%d", i), nth("spine", i), fmt.Sprintf("leaf%d", j), fiber)
			}
		}
	}
	return b.devices, b.links, b.err
}

// uplinks links every non-gateway device to the first gateway. It returns
// nil when the model has no gateway.
func uplinks(devices []deviceSpec) []linkSpec {
	var gw *deviceSpec
	for i := range devices {
		if devices[i].kind == device.KindGateway {
			gw = &devices[i]
			break
		}
	}
	if gw == nil {
		return nil
	}
	var out []linkSpec
	for _, d := range devices {
		if d.Slug == gw.Slug {
			continue
		}
		out = append(out, linkSpec{
			Source:      endpointSpec{Device: d.Slug, Port: "uplink"},
			Target:      endpointSpec{Device: gw.Slug, Port: fmt.Sprintf("port%d", len(out)+1)},
			Type:        string(topology.ConnUplink),
			Synthesized: true,
		})
	}
	return out
}
