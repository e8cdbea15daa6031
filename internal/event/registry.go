package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type decoder func(json.RawMessage) (Payload, error)

type registration struct {
	kind   Kind
	decode decoder
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]registration)
)

// Register adds P to the set of variants the codec accepts. It panics on a
// duplicate name or an unknown kind, both of which are programming errors.
func Register[P Payload]() {
	var zero P
	name := zero.EventType()
	kind := zero.AggregateKind()
	if !kind.Valid() {
		panic(fmt.Sprintf("event: %s registered with unknown kind %q", name, kind))
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("event: duplicate registration of " + name)
	}
	registry[name] = registration{
		kind: kind,
		decode: func(raw json.RawMessage) (Payload, error) {
			var p P
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
			return p, nil
		},
	}
}

func lookup(name string) (registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	r, ok := registry[name]
	return r, ok
}

// Registered lists the registered variant names in sorted order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
