package projection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/network"
	"github.com/nerrad567/netfleet-core/internal/topology"
)

// deviceSpec is one device as it appears in the bundle. Synthesized
// devices have no ID.
type deviceSpec struct {
	Slug        string          `yaml:"slug"`
	ID          string          `yaml:"id,omitempty"`
	Name        string          `yaml:"name"`
	Type        string          `yaml:"type"`
	State       string          `yaml:"state,omitempty"`
	MAC         string          `yaml:"mac,omitempty"`
	Model       string          `yaml:"model,omitempty"`
	Firmware    string          `yaml:"firmware,omitempty"`
	IP          string          `yaml:"ip,omitempty"`
	Synthesized bool            `yaml:"synthesized,omitempty"`
	Interfaces  []interfaceSpec `yaml:"interfaces,omitempty"`
	VLANs       []vlanSpec      `yaml:"vlans,omitempty"`

	kind device.TypeKind
}

type interfaceSpec struct {
	Name      string   `yaml:"name"`
	Addresses []string `yaml:"addresses,omitempty"`
	VLANs     []int    `yaml:"vlans,omitempty"`
	Speed     string   `yaml:"speed,omitempty"`
	Enabled   bool     `yaml:"enabled"`
}

type vlanSpec struct {
	ID     int    `yaml:"id"`
	Name   string `yaml:"name"`
	Native bool   `yaml:"native,omitempty"`
}

type endpointSpec struct {
	Device string `yaml:"device"`
	Port   string `yaml:"port"`
}

// linkSpec is one connection. Endpoints name device slugs.
type linkSpec struct {
	ID          string       `yaml:"id,omitempty"`
	Source      endpointSpec `yaml:"source"`
	Target      endpointSpec `yaml:"target"`
	Type        string       `yaml:"type"`
	VLAN        int          `yaml:"vlan,omitempty"`
	Bandwidth   string       `yaml:"bandwidth,omitempty"`
	Synthesized bool         `yaml:"synthesized,omitempty"`
}

type model struct {
	devices []deviceSpec
	links   []linkSpec
	// missing collects endpoints that name no active device.
	missing []string
}

func (m *model) device(slug string) (deviceSpec, bool) {
	for _, d := range m.devices {
		if d.Slug == slug {
			return d, true
		}
	}
	return deviceSpec{}, false
}

// fromSnapshot converts the live part of the graph. Decommissioned nodes and
// the links that touch them are left out. Links naming devices the graph
// has never seen are kept and recorded as missing endpoints.
func fromSnapshot(snap topology.Snapshot) *model {
	m := &model{}
	slugs := newSlugger()
	byID := make(map[string]string)
	retired := make(map[string]bool)

	nodes := append([]topology.Node(nil), snap.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID.Compare(nodes[j].ID) < 0 })
	for _, n := range nodes {
		if n.Terminal {
			retired[n.ID.String()] = true
			continue
		}
		name := n.Name
		if name == "" {
			name = n.Type.String() + "-" + n.ID.String()[:8]
		}
		d := deviceSpec{
			Slug:     slugs.next(name),
			ID:       n.ID.String(),
			Name:     name,
			Type:     n.Type.String(),
			State:    n.State.String(),
			MAC:      n.MAC.String(),
			Model:    n.Model,
			Firmware: n.FirmwareVersion,
			kind:     n.Type.Kind,
		}
		if n.IP != nil {
			d.IP = n.IP.String()
		}
		for _, iface := range n.Interfaces {
			d.Interfaces = append(d.Interfaces, interfaceFrom(iface))
		}
		for _, v := range n.VLANs {
			d.VLANs = append(d.VLANs, vlanSpec{ID: int(v.ID), Name: v.Name, Native: v.Native})
		}
		byID[d.ID] = d.Slug
		m.devices = append(m.devices, d)
	}

	edges := append([]topology.Edge(nil), snap.Edges...)
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID.Compare(edges[j].ID) < 0 })
	for _, e := range edges {
		if retired[e.Source.Device.String()] || retired[e.Target.Device.String()] {
			continue
		}
		l := linkSpec{
			ID:     e.ID.String(),
			Source: endpointSpec{Device: byID[e.Source.Device.String()], Port: e.Source.Port.String()},
			Target: endpointSpec{Device: byID[e.Target.Device.String()], Port: e.Target.Port.String()},
			Type:   string(e.Type),
		}
		if e.VLAN != nil {
			l.VLAN = int(*e.VLAN)
		}
		if e.Bandwidth != nil {
			l.Bandwidth = e.Bandwidth.String()
		}
		for _, ep := range []struct {
			slug string
			end  network.Endpoint
		}{{l.Source.Device, e.Source}, {l.Target.Device, e.Target}} {
			if ep.slug == "" {
				m.missing = append(m.missing, fmt.Sprintf("connection %s: endpoint %s", e.ID, ep.end))
			}
		}
		m.links = append(m.links, l)
	}
	return m
}

func interfaceFrom(iface network.InterfaceConfig) interfaceSpec {
	out := interfaceSpec{Name: iface.Name, Enabled: iface.Enabled}
	for _, a := range iface.Addresses {
		out.Addresses = append(out.Addresses, a.String())
	}
	for _, v := range iface.VLANs {
		out.VLANs = append(out.VLANs, int(v))
	}
	if iface.Speed != 0 {
		out.Speed = iface.Speed.String()
	}
	return out
}

// slugger hands out file-safe names, suffixing repeats with -2, -3, ...
type slugger struct {
	taken map[string]bool
}

func newSlugger() *slugger { return &slugger{taken: make(map[string]bool)} }

func (s *slugger) next(name string) string {
	base := slugify(name)
	slug := base
	for n := 2; s.taken[slug]; n++ {
		slug = fmt.Sprintf("%s-%d", base, n)
	}
	s.taken[slug] = true
	return slug
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "device"
	}
	return out
}
