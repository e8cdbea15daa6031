// Package api implements the HTTP admin API and the lifecycle event stream.
//
// This package provides:
//   - REST endpoints for every orchestration operation under /api/v1
//   - topology and connection reads from the projected graph
//   - rendering of the declarative projection bundle
//   - a WebSocket stream of committed events read from the journal
//   - middleware for correlation ids, logging, recovery, CORS and metrics
//   - an audit trail of mutating calls, queryable at /api/v1/audit
//
// # Correlation
//
// A request may carry X-Correlation-ID. When it does, every event the
// request commits carries that id; otherwise one is minted. Either way the
// id is echoed in the response header, so a caller can find its events in
// the journal, on the stream or in the audit trail. Rejected calls commit
// no events, so the audit trail is the only record of them.
//
// # Errors
//
// Errors are mapped from their fault kind: validation 400, not found 404,
// invariant and conflict 409, transport 502, anything else 500 with the
// message withheld. A cancelled request is 499 and an expired deadline 504.
// A projection that fails validation is 422 with every issue listed. An
// operation whose events were committed but whose vendor or inventory call
// failed still succeeds; the response carries the failure as a warning.
//
// Authentication is out of scope; deploy behind a reverse proxy that
// enforces it.
package api
