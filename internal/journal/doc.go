// Package journal is the append-only event log that holds NetFleet's
// durable state.
//
// # Contract
//
//   - Append persists a batch atomically: every envelope becomes visible to
//     subscribers in input order, or none does.
//   - Two successful Appends touching the same aggregate are observed in
//     completion order by every subscriber.
//   - Envelopes whose message id (aggregate, variant, nanosecond timestamp)
//     was stored within the duplicate window are dropped silently, which
//     makes retrying a failed Append safe (WithRetry does so).
//   - Otherwise an envelope's version must be one past the last stored
//     version of its aggregate, or the whole batch fails with
//     ErrVersionConflict. Stored versions outlive retention.
//   - Load returns one aggregate's events oldest first, with a default
//     deadline of DefaultLoadTimeout.
//   - Subscribe returns a pull subscription with explicit Ack/Nak. Durable
//     subscriptions persist their position and resume after restart.
//
// # Backends
//
//	sqlite:///var/lib/netfleet/journal.db   SQLiteStore, durable
//	memory://                               MemoryStore, process lifetime
//
// Both backends share the subscription engine in subscription.go. After a
// commit the store can also fan the batch out over MQTT (WithPublisher)
// for observers outside the process, on topics built by WithTopics; that path is best effort and never
// affects the append result.
package journal
