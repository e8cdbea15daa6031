// Package device implements the device aggregate: the consistency boundary
// for one managed network device and the state machine that governs it.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                        Device aggregate                          │
//	│                                                                  │
//	│   operation ──▶ precondition ──▶ envelopes ──▶ Apply ──▶ state    │
//	│   (Adopt, …)    (state machine)  (events.go)   (device.go)        │
//	│                                                                  │
//	└──────────────────────────────────────────────────────────────────┘
//	            │                                   ▲
//	            ▼                                   │
//	   orchestrator appends              Rehydrate folds journal
//	   envelopes to the journal          history from empty
//
// Operations never mutate state directly: they build envelopes and fold
// them through Apply, the same path Rehydrate uses, so a replayed aggregate
// is indistinguishable from the one that produced the events.
//
// # State machine
//
//	Discovered ──adopt──▶ Adopting ──provision──▶ Provisioned ──configure──▶ Configuring
//	     │                                           ▲                          │ ▲
//	     └──────────────provision────────────────────┘                          └─┘
//
//	Adopting, Provisioned, Configuring ──fail──▶ Error ──recover──▶ Discovered
//	any non-terminal state ──decommission──▶ Decommissioned (terminal)
//
// Rename and inventory sync are allowed in every non-terminal state and do
// not change it.
package device
