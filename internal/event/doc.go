// Package event defines the lifecycle event envelope, its wire codec and the
// subject grammar the journal routes events by.
//
// # Envelope
//
// Every event travels in an Envelope carrying its identity, the aggregate it
// belongs to, its correlation and causation ids and the aggregate version it
// produced. Correlation and causation are mandatory: an envelope missing
// either is corrupt and is rejected by Unmarshal.
//
// # Payloads
//
// Payload variants are declared by the packages that own the aggregates
// (device and connection events) and registered here with Register. The
// registry is the closed set of variants the codec will accept; anything else
// decodes as ErrCorruptEnvelope.
//
// # Subjects
//
//	<prefix>.<aggregate-kind>.<variant>
//
//	netfleet.device.device_discovered
//	netfleet.connection.connection_established
//
// Patterns may use "*" for one token and ">" for the remaining tokens.
package event
