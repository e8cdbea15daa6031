// Package influxdb records device lifecycle history in InfluxDB 2.x.
//
// Every committed device event becomes one point in the
// "device_lifecycle" measurement:
//
//	tags:   device_id, event_type, state
//	fields: version
//	time:   the event timestamp
//
// state is the lifecycle state after the event. Events that do not change
// state (renames, inventory syncs) carry the last state the client saw for
// that device, or "unknown" after a restart until the next transition.
//
// Writes go through the client library's non-blocking batching API, so
// RecordLifecycle never waits on the network. Write failures surface
// asynchronously through SetOnError.
//
// # Usage
//
//	rec, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer rec.Close()
//
//	svc, err := orchestrator.New(orchestrator.Deps{Recorder: rec, ...})
package influxdb
