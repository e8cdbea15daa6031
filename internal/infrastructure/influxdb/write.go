package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/event"
)

// MeasurementLifecycle is the measurement lifecycle points are written to.
const MeasurementLifecycle = "device_lifecycle"

const unknownState = "unknown"

// RecordLifecycle queues one point per device event. Other aggregate
// kinds are ignored. It never blocks on the network.
func (c *Client) RecordLifecycle(envs []event.Envelope) {
	if !c.IsConnected() {
		return
	}
	for _, env := range envs {
		if env.Kind() != event.KindDevice {
			continue
		}
		c.writer.WritePoint(c.lifecyclePoint(env))
	}
}

// lifecyclePoint builds the point for env and updates the state cache.
func (c *Client) lifecyclePoint(env event.Envelope) *write.Point {
	c.statesMu.Lock()
	if s, ok := device.StateAfter(env.Payload); ok {
		c.states[env.AggregateID] = s
	}
	state := unknownState
	if s, ok := c.states[env.AggregateID]; ok {
		state = s.String()
	}
	if _, ok := env.Payload.(device.Decommissioned); ok {
		delete(c.states, env.AggregateID)
	}
	c.statesMu.Unlock()

	return write.NewPoint(
		MeasurementLifecycle,
		map[string]string{
			"device_id":  env.AggregateID,
			"event_type": env.Type(),
			"state":      state,
		},
		map[string]any{
			// #nosec G115 -- aggregate versions stay far below MaxInt64
			"version": int64(env.Version),
		},
		env.Timestamp,
	)
}
