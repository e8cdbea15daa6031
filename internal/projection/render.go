package projection

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/topology"
)

// Artifact names within a bundle.
const (
	ManifestFile    = "manifest.yaml"
	ConnectionsFile = "connections.yaml"
	InventoryFile   = "inventory.yaml"
	DiagramFile     = "topology.mmd"
	MetadataFile    = "metadata.yaml"
	DevicesDir      = "devices"
)

// File is one artifact. Path uses forward slashes.
type File struct {
	Path string
	Data []byte
}

// Bundle is a rendered set of artifacts, sorted by path.
type Bundle struct {
	Name        string
	Shape       string
	Synthesized bool
	Devices     int
	Connections int

	root   string
	files  []File
	digest string
}

// Render builds the bundle for snap. now is written to metadata.yaml only.
func Render(snap topology.Snapshot, opts Options, now time.Time) (*Bundle, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	m := fromSnapshot(snap)
	synthesized := false
	if _, custom := opts.Shape.(Custom); !custom {
		switch {
		case len(m.devices) == 0:
			devices, links, err := synthesize(opts.Shape, opts.BaseNetwork)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
			}
			m.devices = devices
			m.links = append(m.links, links...)
			synthesized = true
		case len(m.links) == 0:
			m.links = uplinks(m.devices)
			synthesized = len(m.links) > 0
		}
	}

	if err := validate(m, opts.BaseNetwork); err != nil {
		return nil, err
	}

	b := &Bundle{
		Name:        opts.Name,
		Shape:       opts.Shape.Kind(),
		Synthesized: synthesized,
		Devices:     len(m.devices),
		Connections: len(m.links),
		root:        opts.OutputRoot,
	}
	if err := b.render(m, opts); err != nil {
		return nil, err
	}
	b.digest = b.computeDigest()

	meta, err := encodeYAML(metadataDoc{
		Name:        opts.Name,
		Generator:   "netfleet",
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Digest:      b.digest,
	})
	if err != nil {
		return nil, err
	}
	b.add(MetadataFile, meta)
	sort.Slice(b.files, func(i, j int) bool { return b.files[i].Path < b.files[j].Path })
	return b, nil
}

type shapeDoc struct {
	Kind   string `yaml:"kind"`
	Params Shape  `yaml:"params,omitempty"`
}

type manifestDevice struct {
	Slug string `yaml:"slug"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	File string `yaml:"file"`
}

type manifestDoc struct {
	Name        string           `yaml:"name"`
	BaseNetwork string           `yaml:"base_network"`
	Shape       shapeDoc         `yaml:"shape"`
	Synthesized bool             `yaml:"synthesized"`
	Devices     []manifestDevice `yaml:"devices"`
	Connections int              `yaml:"connections"`
	Files       []string         `yaml:"files"`
}

type connectionsDoc struct {
	Connections []linkSpec `yaml:"connections"`
}

type inventoryDoc struct {
	All inventoryGroup `yaml:"all"`
}

type inventoryGroup struct {
	Vars     map[string]string    `yaml:"vars,omitempty"`
	Children map[string]hostGroup `yaml:"children"`
}

type hostGroup struct {
	Hosts map[string]inventoryHost `yaml:"hosts"`
}

type inventoryHost struct {
	AnsibleHost string `yaml:"ansible_host,omitempty"`
	DeviceType  string `yaml:"device_type"`
	MAC         string `yaml:"mac,omitempty"`
	Model       string `yaml:"model,omitempty"`
}

type metadataDoc struct {
	Name        string `yaml:"name"`
	Generator   string `yaml:"generator"`
	GeneratedAt string `yaml:"generated_at"`
	Digest      string `yaml:"digest"`
}

func (b *Bundle) render(m *model, opts Options) error {
	man := manifestDoc{
		Name:        opts.Name,
		BaseNetwork: opts.BaseNetwork.String(),
		Shape:       shapeDoc{Kind: opts.Shape.Kind(), Params: opts.Shape},
		Synthesized: b.Synthesized,
		Connections: len(m.links),
		Files:       []string{ConnectionsFile, InventoryFile, DiagramFile},
	}
	inv := inventoryDoc{All: inventoryGroup{
		Vars:     map[string]string{"netfleet_bundle": opts.Name, "base_network": opts.BaseNetwork.String()},
		Children: make(map[string]hostGroup),
	}}

	for _, d := range m.devices {
		file := path.Join(DevicesDir, d.Slug+".yaml")
		data, err := encodeYAML(d)
		if err != nil {
			return err
		}
		b.add(file, data)
		man.Devices = append(man.Devices, manifestDevice{Slug: d.Slug, Name: d.Name, Type: d.Type, File: file})
		man.Files = append(man.Files, file)

		group, ok := inv.All.Children[groupName(d.kind)]
		if !ok {
			group = hostGroup{Hosts: make(map[string]inventoryHost)}
			inv.All.Children[groupName(d.kind)] = group
		}
		group.Hosts[d.Slug] = inventoryHost{
			AnsibleHost: d.IP,
			DeviceType:  d.Type,
			MAC:         d.MAC,
			Model:       d.Model,
		}
	}
	sort.Strings(man.Files)

	for _, doc := range []struct {
		name string
		v    any
	}{
		{ManifestFile, man},
		{ConnectionsFile, connectionsDoc{Connections: m.links}},
		{InventoryFile, inv},
	} {
		data, err := encodeYAML(doc.v)
		if err != nil {
			return err
		}
		b.add(doc.name, data)
	}
	b.add(DiagramFile, diagram(m))
	return nil
}

func groupName(kind device.TypeKind) string {
	switch kind {
	case device.KindGateway:
		return "gateways"
	case device.KindSwitch:
		return "switches"
	case device.KindAccessPoint:
		return "access_points"
	default:
		return "generic"
	}
}

// diagram renders a Mermaid flowchart.
func diagram(m *model) []byte {
	var buf bytes.Buffer
	buf.WriteString("graph TD\n")
	for _, d := range m.devices {
		fmt.Fprintf(&buf, "    %s[\"%s<br/>%s\"]\n", mermaidID(d.Slug), mermaidText(d.Name), mermaidText(d.Type))
	}
	for _, l := range m.links {
		label := l.Type
		if l.VLAN != 0 {
			label = fmt.Sprintf("%s vlan %d", label, l.VLAN)
		}
		fmt.Fprintf(&buf, "    %s -->|%s| %s\n", mermaidID(l.Source.Device), label, mermaidID(l.Target.Device))
	}
	return buf.Bytes()
}

func mermaidID(slug string) string { return strings.ReplaceAll(slug, "-", "_") }
func mermaidText(s string) string  { return strings.ReplaceAll(s, `"`, "#quot;") }

func encodeYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Bundle) add(p string, data []byte) {
	b.files = append(b.files, File{Path: p, Data: data})
}

func (b *Bundle) computeDigest() string {
	files := append([]File(nil), b.files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	h := sha256.New()
	for _, f := range files {
		if f.Path == MetadataFile {
			continue
		}
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		h.Write(f.Data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Digest is the hex SHA-256 of every artifact except metadata.yaml.
func (b *Bundle) Digest() string { return b.digest }

// Files returns the artifacts sorted by path.
func (b *Bundle) Files() []File {
	out := make([]File, len(b.files))
	for i, f := range b.files {
		out[i] = File{Path: f.Path, Data: append([]byte(nil), f.Data...)}
	}
	return out
}

// File returns the artifact at p.
func (b *Bundle) File(p string) ([]byte, bool) {
	for _, f := range b.files {
		if f.Path == p {
			return append([]byte(nil), f.Data...), true
		}
	}
	return nil, false
}

// WriteDir writes the bundle under root, or under Options.OutputRoot when
// root is empty. Existing files are overwritten.
func (b *Bundle) WriteDir(root string) error {
	if root == "" {
		root = b.root
	}
	if root == "" {
		return fmt.Errorf("%w: no output root", ErrInvalidOptions)
	}
	for _, f := range b.files {
		dst := filepath.Join(root, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
		}
		if err := os.WriteFile(dst, f.Data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
	}
	return nil
}
