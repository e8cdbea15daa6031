// Package projection renders the topology read model into a declarative
// bundle of text artifacts.
//
// Rendering is a pure function of a topology.Snapshot and Options: equal
// inputs produce byte-identical artifacts. The only file carrying a
// timestamp is metadata.yaml, which Bundle.Digest leaves out.
//
// When the graph is empty, or has devices but no links, the selected Shape
// fills the gaps with synthesized devices and uplinks. Validation runs on
// the final model and reports every problem it finds in one
// *ValidationError.
package projection
