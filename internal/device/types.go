package device

import (
	"fmt"
	"strings"
)

// TypeKind classifies a device.
type TypeKind int

// Device type kinds.
const (
	KindGeneric TypeKind = iota
	KindGateway
	KindSwitch
	KindAccessPoint
)

// Type is the device classification. Generic types keep the vendor model
// they were inferred from.
type Type struct {
	Kind  TypeKind
	Model string
}

// Fixed device types.
var (
	TypeGateway     = Type{Kind: KindGateway}
	TypeSwitch      = Type{Kind: KindSwitch}
	TypeAccessPoint = Type{Kind: KindAccessPoint}
)

// Generic returns the catch-all type for model.
func Generic(model string) Type { return Type{Kind: KindGeneric, Model: model} }

const genericPrefix = "generic:"

// String renders gateway, switch, access_point or generic:<model>.
func (t Type) String() string {
	switch t.Kind {
	case KindGateway:
		return "gateway"
	case KindSwitch:
		return "switch"
	case KindAccessPoint:
		return "access_point"
	default:
		return genericPrefix + t.Model
	}
}

// ParseType reverses Type.String.
func ParseType(s string) (Type, error) {
	switch s {
	case "gateway":
		return TypeGateway, nil
	case "switch":
		return TypeSwitch, nil
	case "access_point":
		return TypeAccessPoint, nil
	}
	if model, ok := strings.CutPrefix(s, genericPrefix); ok {
		return Generic(model), nil
	}
	return Type{}, fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Model substrings checked in order: gateway before switch before access point.
var inferenceRules = []struct {
	typ     Type
	needles []string
}{
	{TypeGateway, []string{"gateway", "ugw", "udm"}},
	{TypeSwitch, []string{"switch", "usw"}},
	{TypeAccessPoint, []string{"ap", "uap", "u6"}},
}

// InferType maps a vendor model string to a device type by
// case-insensitive substring match.
func InferType(model string) Type {
	m := strings.ToLower(model)
	for _, rule := range inferenceRules {
		for _, n := range rule.needles {
			if strings.Contains(m, n) {
				return rule.typ
			}
		}
	}
	return Generic(model)
}

// State is a position in the device lifecycle.
type State int

// Lifecycle states.
const (
	StateDiscovered State = iota + 1
	StateAdopting
	StateProvisioned
	StateConfiguring
	StateError
	StateDecommissioned
)

var stateNames = map[State]string{
	StateDiscovered:     "discovered",
	StateAdopting:       "adopting",
	StateProvisioned:    "provisioned",
	StateConfiguring:    "configuring",
	StateError:          "error",
	StateDecommissioned: "decommissioned",
}

// States lists every state in lifecycle order.
func States() []State {
	return []State{StateDiscovered, StateAdopting, StateProvisioned, StateConfiguring, StateError, StateDecommissioned}
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState reverses State.String.
func ParseState(s string) (State, error) {
	for st, n := range stateNames {
		if n == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidState, s)
}

// Terminal reports whether no further mutation is accepted.
func (s State) Terminal() bool { return s == StateDecommissioned }

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	parsed, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
