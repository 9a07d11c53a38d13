// Package engine implements the photostack stacking engine.
//
// The engine is the only writer of stack state. It serves direct user
// operations (search, create, get, update, delete, delete-all, remove-asset,
// delete-asset) and consumes two bus events:
//
//   - AssetMetadataExtracted: runs the auto-stacking algorithm
//   - AssetDelete: cascades an asset deletion into its stack
//
// ARCHITECTURE:
//
// Direct operations authorize first, then read and write the stores, then
// publish exactly one event. Events are published only after the mutation
// has committed.
//
// Auto-stacking converges to one stack per (owner, grouping key) however the
// trigger events interleave. Two layers serialize the read-decide-write
// sequence:
//
//  1. In-process: a keyed mutex on the group hash, so handlers for the same
//     group run one at a time.
//  2. Storage: the auto_stack_groups claim row and conditional membership
//     writes. A writer that loses the race gets store.ErrConflict and the
//     whole sequence is retried with exponential backoff.
//
// Retry exhaustion is reported as an INTERNAL error, which makes the bus
// redeliver the event.
//
// CRITICAL PATTERNS:
//
// The engine depends only on the narrow interfaces in engine.go. Production
// wires *store.Store, *access.Ownership and *eventbus.Bus; tests substitute
// recording publishers and permissive authorizers.
package engine
