// Package orchestrator mediates between vendor controllers, the device
// aggregates and the journal.
//
// Every operation follows the same shape:
//
//	lock the device entry
//	    clone the cached aggregate
//	    run the domain operation on the clone  -> events
//	    append the events (retrying transport failures)
//	    on success the clone replaces the cached aggregate
//	    fan out to vendor / inventory (best effort)
//	unlock
//
// A failed or cancelled append discards the clone, so the cache never holds
// state the journal does not. Once an append succeeds the operation is
// committed; a later vendor or inventory failure is reported as a
// *FanoutError alongside the committed result.
//
// All events of one operation share a correlation id. Pass one in with
// WithCorrelation to tie operations to an outer request.
package orchestrator
