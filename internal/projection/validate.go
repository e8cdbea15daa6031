package projection

import (
	"fmt"
	"strings"

	"github.com/nerrad567/netfleet-core/internal/fault"
	"github.com/nerrad567/netfleet-core/internal/network"
)

// ErrInvalidBundle is wrapped by every *ValidationError.
var ErrInvalidBundle = fmt.Errorf("%w: projection: invalid bundle", fault.ErrValidation)

// Issue is one validation failure.
type Issue struct {
	Device string `json:"device,omitempty"`
	Field  string `json:"field"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
}

func (i Issue) String() string {
	var b strings.Builder
	if i.Device != "" {
		b.WriteString(i.Device + ": ")
	}
	b.WriteString(i.Field)
	if i.Value != "" {
		b.WriteString(" " + i.Value)
	}
	b.WriteString(": " + i.Reason)
	return b.String()
}

// ValidationError lists every problem that stopped a render.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("projection: %d validation issue(s): %s", len(e.Issues), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidBundle }

// validate checks addresses against the base network, address uniqueness
// across interfaces and that every link names known devices.
func validate(m *model, base network.Prefix) error {
	var issues []Issue
	owner := make(map[string]string)

	for _, d := range m.devices {
		if d.IP != "" {
			ip, err := network.ParseAddr(d.IP)
			switch {
			case err != nil:
				issues = append(issues, Issue{Device: d.Slug, Field: "ip", Value: d.IP, Reason: "not an address"})
			case !base.Contains(ip):
				issues = append(issues, Issue{Device: d.Slug, Field: "ip", Value: d.IP, Reason: "outside " + base.String()})
			}
		}
		for _, iface := range d.Interfaces {
			where := d.Slug + "/" + iface.Name
			for _, raw := range iface.Addresses {
				a, err := network.ParseInterfaceAddress(raw)
				if err != nil {
					issues = append(issues, Issue{Device: d.Slug, Field: "interface " + iface.Name, Value: raw, Reason: "not an address"})
					continue
				}
				if !base.Contains(a.Addr()) {
					issues = append(issues, Issue{Device: d.Slug, Field: "interface " + iface.Name, Value: raw, Reason: "outside " + base.String()})
				}
				key := a.Addr().String()
				if first, ok := owner[key]; ok {
					issues = append(issues, Issue{Device: d.Slug, Field: "interface " + iface.Name, Value: raw, Reason: "address already used by " + first})
					continue
				}
				owner[key] = where
			}
		}
	}

	for _, missing := range m.missing {
		issues = append(issues, Issue{Field: "connection", Reason: missing + " names no active device"})
	}
	for _, l := range m.links {
		for _, ep := range []endpointSpec{l.Source, l.Target} {
			if ep.Device == "" {
				continue // reported through m.missing
			}
			if _, ok := m.device(ep.Device); !ok {
				issues = append(issues, Issue{Field: "connection", Value: ep.Device + "/" + ep.Port, Reason: "unknown device"})
			}
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
