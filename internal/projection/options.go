package projection

import (
	"fmt"
	"strings"

	"github.com/nerrad567/netfleet-core/internal/fault"
	"github.com/nerrad567/netfleet-core/internal/network"
)

// ErrInvalidOptions is returned for unusable render options.
var ErrInvalidOptions = fmt.Errorf("%w: projection: invalid options", fault.ErrValidation)

// Options describes the bundle to render.
type Options struct {
	Name        string
	BaseNetwork network.Prefix
	// Shape selects what to synthesize for sparse graphs. Nil means
	// AutoShape(BaseNetwork).
	Shape Shape
	// OutputRoot is where WriteDir puts the bundle when no root is given.
	OutputRoot string
}

// withDefaults checks the options and fills in the shape.
func (o Options) withDefaults() (Options, error) {
	if strings.TrimSpace(o.Name) == "" {
		return o, fmt.Errorf("%w: name is required", ErrInvalidOptions)
	}
	if !o.BaseNetwork.IsValid() {
		return o, fmt.Errorf("%w: base network is required", ErrInvalidOptions)
	}
	if o.Shape == nil {
		o.Shape = AutoShape(o.BaseNetwork)
	}
	if err := o.Shape.validate(); err != nil {
		return o, err
	}
	return o, nil
}

// Shape is the topology template used for synthesis. The implementations
// are SingleRouter, RouterSwitch, ThreeTier, SpineLeaf and Custom.
type Shape interface {
	// Kind names the shape in artifacts and configuration.
	Kind() string
	validate() error
}

// SingleRouter is one gateway with Interfaces LAN interfaces.
type SingleRouter struct {
	Interfaces int `yaml:"interfaces" json:"interfaces"`
}

// RouterSwitch is a gateway with SwitchCount access switches.
type RouterSwitch struct {
	SwitchCount    int `yaml:"switch_count" json:"switch_count"`
	PortsPerSwitch int `yaml:"ports_per_switch" json:"ports_per_switch"`
}

// ThreeTier is a core, distribution and access hierarchy.
type ThreeTier struct {
	Core           int `yaml:"core" json:"core"`
	Distribution   int `yaml:"distribution" json:"distribution"`
	Access         int `yaml:"access" json:"access"`
	HostsPerAccess int `yaml:"hosts_per_access" json:"hosts_per_access"`
}

// SpineLeaf is a two-tier Clos fabric.
type SpineLeaf struct {
	Spine        int `yaml:"spine" json:"spine"`
	Leaf         int `yaml:"leaf" json:"leaf"`
	HostsPerLeaf int `yaml:"hosts_per_leaf" json:"hosts_per_leaf"`
}

// Custom never synthesizes anything; the bundle is exactly the graph.
type Custom struct{}

func (SingleRouter) Kind() string { return "single_router" }
func (RouterSwitch) Kind() string { return "router_switch" }
func (ThreeTier) Kind() string    { return "three_tier" }
func (SpineLeaf) Kind() string    { return "spine_leaf" }
func (Custom) Kind() string       { return "custom" }

func (s SingleRouter) validate() error { return positive(s, s.Interfaces) }
func (s RouterSwitch) validate() error { return positive(s, s.SwitchCount, s.PortsPerSwitch) }
func (s ThreeTier) validate() error {
	return positive(s, s.Core, s.Distribution, s.Access, s.HostsPerAccess)
}
func (s SpineLeaf) validate() error { return positive(s, s.Spine, s.Leaf, s.HostsPerLeaf) }
func (Custom) validate() error      { return nil }

func positive(s Shape, counts ...int) error {
	for _, n := range counts {
		if n < 1 {
			return fmt.Errorf("%w: %s counts must be positive", ErrInvalidOptions, s.Kind())
		}
	}
	return nil
}

// AutoShape picks a shape from the size of the base network.
func AutoShape(base network.Prefix) Shape {
	bits := base.Bits()
	if base.Addr().Is6() {
		return SingleRouter{Interfaces: 4}
	}
	switch {
	case bits >= 24 && bits <= 30:
		return RouterSwitch{SwitchCount: 1, PortsPerSwitch: 24}
	case bits >= 16 && bits <= 23:
		return ThreeTier{Core: 2, Distribution: 4, Access: 8, HostsPerAccess: 12}
	case bits >= 8 && bits <= 15:
		return SpineLeaf{Spine: 4, Leaf: 16, HostsPerLeaf: 32}
	default:
		return SingleRouter{Interfaces: 4}
	}
}

// ShapeByName returns the named shape with the parameters AutoShape would
// use. "auto" and "" defer to AutoShape.
func ShapeByName(name string, base network.Prefix) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return AutoShape(base), nil
	case "single_router":
		return SingleRouter{Interfaces: 4}, nil
	case "router_switch":
		return RouterSwitch{SwitchCount: 1, PortsPerSwitch: 24}, nil
	case "three_tier":
		return ThreeTier{Core: 2, Distribution: 4, Access: 8, HostsPerAccess: 12}, nil
	case "spine_leaf":
		return SpineLeaf{Spine: 4, Leaf: 16, HostsPerLeaf: 32}, nil
	case "custom":
		return Custom{}, nil
	}
	return nil, fmt.Errorf("%w: unknown shape %q", ErrInvalidOptions, name)
}
