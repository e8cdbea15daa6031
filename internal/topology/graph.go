package topology

import (
	"net/netip"
	"sort"
	"sync"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/network"
)

// Node is the read-model view of one device.
type Node struct {
	ID              ids.DeviceID              `json:"id"`
	MAC             network.MAC               `json:"mac"`
	Type            device.Type               `json:"type"`
	State           device.State              `json:"state"`
	Name            string                    `json:"name,omitempty"`
	IP              *netip.Addr               `json:"ip,omitempty"`
	VendorID        string                    `json:"vendor_id,omitempty"`
	Model           string                    `json:"model,omitempty"`
	FirmwareVersion string                    `json:"firmware_version,omitempty"`
	Interfaces      []network.InterfaceConfig `json:"interfaces,omitempty"`
	VLANs           []network.VLANConfig      `json:"vlans,omitempty"`
	InventoryRefs   map[string]string         `json:"inventory_refs,omitempty"`
	Terminal        bool                      `json:"terminal"`
	Version         uint64                    `json:"version"`
}

func (n Node) clone() Node {
	c := n
	if n.IP != nil {
		ip := *n.IP
		c.IP = &ip
	}
	c.Interfaces = nil
	for _, iface := range n.Interfaces {
		c.Interfaces = append(c.Interfaces, iface.Clone())
	}
	c.VLANs = append([]network.VLANConfig(nil), n.VLANs...)
	if n.InventoryRefs != nil {
		c.InventoryRefs = make(map[string]string, len(n.InventoryRefs))
		for k, v := range n.InventoryRefs {
			c.InventoryRefs[k] = v
		}
	}
	return c
}

// Edge is the read-model view of one connection. Endpoints reference nodes
// by id.
type Edge struct {
	ID        ids.ConnectionID   `json:"id"`
	Source    network.Endpoint   `json:"source"`
	Target    network.Endpoint   `json:"target"`
	Type      ConnectionType     `json:"type"`
	VLAN      *network.VLANID    `json:"vlan,omitempty"`
	Bandwidth *network.LinkSpeed `json:"bandwidth,omitempty"`
	Version   uint64             `json:"version"`
}

func (e Edge) clone() Edge {
	c := e
	if e.VLAN != nil {
		v := *e.VLAN
		c.VLAN = &v
	}
	if e.Bandwidth != nil {
		b := *e.Bandwidth
		c.Bandwidth = &b
	}
	return c
}

// Graph is the topology read model: devices and connections in two flat
// tables keyed by id. It changes only through Apply.
//
// All methods are safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[ids.DeviceID]*Node
	edges map[ids.ConnectionID]*Edge
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[ids.DeviceID]*Node),
		edges: make(map[ids.ConnectionID]*Edge),
	}
}

// Apply folds one event into the graph. Events already reflected (same or
// older version) are ignored, so redelivery and replay are harmless.
// Updates for devices the graph has never seen are dropped.
func (g *Graph) Apply(env event.Envelope) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch p := env.Payload.(type) {
	case device.Discovered:
		if _, ok := g.nodes[p.DeviceID]; ok {
			return
		}
		n := &Node{ID: p.DeviceID, MAC: p.MAC, Type: p.DeviceType, State: device.StateDiscovered, Name: p.Name, Version: env.Version}
		if p.IP != nil {
			ip := *p.IP
			n.IP = &ip
		}
		g.nodes[p.DeviceID] = n
	case Established:
		if _, ok := g.edges[p.ConnectionID]; ok {
			return
		}
		e := Edge{ID: p.ConnectionID, Source: p.Source, Target: p.Target, Type: p.Type, VLAN: p.VLAN, Bandwidth: p.Bandwidth, Version: env.Version}
		e = e.clone()
		g.edges[p.ConnectionID] = &e
	case Removed:
		delete(g.edges, p.ConnectionID)
	default:
		g.applyDeviceUpdate(env)
	}
}

func (g *Graph) applyDeviceUpdate(env event.Envelope) {
	id, err := ids.ParseDeviceID(env.AggregateID)
	if err != nil {
		return
	}
	n, ok := g.nodes[id]
	if !ok || env.Version <= n.Version {
		return
	}

	switch p := env.Payload.(type) {
	case device.Renamed:
		n.Name = p.NewName
	case device.Adopting:
		n.VendorID = p.VendorID
		n.State = device.StateAdopting
	case device.Provisioned:
		n.Model = p.Model
		n.FirmwareVersion = p.FirmwareVersion
		n.State = device.StateProvisioned
	case device.Configured:
		n.Interfaces = nil
		for _, iface := range p.Interfaces {
			n.Interfaces = append(n.Interfaces, iface.Clone())
		}
		n.VLANs = append([]network.VLANConfig(nil), p.VLANs...)
		n.State = device.StateConfiguring
	case device.SyncedToInventory:
		if n.InventoryRefs == nil {
			n.InventoryRefs = make(map[string]string)
		}
		n.InventoryRefs[p.System] = p.ExternalID
	case device.Failed:
		n.State = device.StateError
	case device.Recovered:
		n.State = device.StateDiscovered
	case device.Decommissioned:
		n.State = device.StateDecommissioned
		n.Terminal = true
	default:
		return
	}
	n.Version = env.Version
}

// Get returns a copy of the node for id.
func (g *Graph) Get(id ids.DeviceID) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Neighbors returns the devices sharing a connection with id, in either
// direction, sorted and without duplicates.
func (g *Graph) Neighbors(id ids.DeviceID) []ids.DeviceID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.neighborsLocked(id)
}

func (g *Graph) neighborsLocked(id ids.DeviceID) []ids.DeviceID {
	seen := make(map[ids.DeviceID]bool)
	for _, e := range g.edges {
		switch id {
		case e.Source.Device:
			seen[e.Target.Device] = true
		case e.Target.Device:
			seen[e.Source.Device] = true
		}
	}
	delete(seen, id)
	out := make([]ids.DeviceID, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sortIDs(out)
	return out
}

// Reachable returns every device reachable from id through connections,
// excluding id itself. Cycles are followed once.
func (g *Graph) Reachable(id ids.DeviceID) []ids.DeviceID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[ids.DeviceID]bool{id: true}
	queue := []ids.DeviceID{id}
	var out []ids.DeviceID
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range g.neighborsLocked(cur) {
			if visited[n] {
				continue
			}
			visited[n] = true
			out = append(out, n)
			queue = append(queue, n)
		}
	}
	sortIDs(out)
	return out
}

// ByType returns copies of the nodes of typ, sorted by id.
func (g *Graph) ByType(typ device.Type) []Node {
	return g.filter(func(n *Node) bool { return n.Type == typ })
}

// ListByState returns copies of the nodes in state, sorted by id.
func (g *Graph) ListByState(state device.State) []Node {
	return g.filter(func(n *Node) bool { return n.State == state })
}

// Nodes returns copies of every node, sorted by id.
func (g *Graph) Nodes() []Node {
	return g.filter(func(*Node) bool { return true })
}

func (g *Graph) filter(keep func(*Node) bool) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Node
	for _, n := range g.nodes {
		if keep(n) {
			out = append(out, n.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out
}

// Edges returns copies of every edge, sorted by id.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out
}

// Snapshot is a point-in-time copy of the graph.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Snapshot copies the whole graph under one read lock.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Snapshot{Nodes: make([]Node, 0, len(g.nodes)), Edges: make([]Edge, 0, len(g.edges))}
	for _, n := range g.nodes {
		s.Nodes = append(s.Nodes, n.clone())
	}
	for _, e := range g.edges {
		s.Edges = append(s.Edges, e.clone())
	}
	sort.Slice(s.Nodes, func(i, j int) bool { return s.Nodes[i].ID.Compare(s.Nodes[j].ID) < 0 })
	sort.Slice(s.Edges, func(i, j int) bool { return s.Edges[i].ID.Compare(s.Edges[j].ID) < 0 })
	return s
}

func sortIDs(s []ids.DeviceID) {
	sort.Slice(s, func(i, j int) bool { return s[i].Compare(s[j]) < 0 })
}
