// Package harness runs conformance scenarios against the stacking engine.
//
// A scenario seeds assets, executes a list of steps through the real engine
// and event bus, and then checks assertions against the final database
// state and the journal of published events.
//
// # Scenario Format
//
//	name: burst_convergence
//	description: "Three extractions of one burst converge on one stack"
//	assets:
//	  - { id: A1, owner: U1, key: burst-1 }
//	  - { id: A2, owner: U1, key: burst-1, captured: "2024-06-01T12:00:05Z" }
//	steps:
//	  - create: { user: U1, assets: [A1, A2] }
//	  - update: { user: U1, stack: S1, primary: A2 }
//	  - extracted: { user: U1, concurrent: [A1, A2] }
//	  - delete: { user: U2, stack: S1 }
//	    expect_error: FORBIDDEN
//	assertions:
//	  - { type: stack_count, user: U1, count: 1 }
//	  - { type: stack_members, stack: S1, members: [A1, A2] }
//	  - { type: invariants }
//
// # Step Types
//
//   - create, update, delete, delete_all, remove_asset: direct operations
//   - extracted: publishes AssetMetadataExtracted for one asset, or for
//     every asset in `concurrent` before waiting, so handlers race
//   - delete_asset: cascading asset deletion
//
// Any step may carry expect_error with an engine error code.
//
// # Assertion Types
//
//   - stack_count: number of stacks owned by a user
//   - stack_members: exact member list of a stack (capture order)
//   - stack_primary: primary asset of a stack ("" for none)
//   - asset_stack: stack an asset belongs to ("" for none)
//   - event_count: number of journaled events with a given name
//   - invariants: no store invariant violations
//
// # Deterministic Testing
//
// Each run uses a fresh SQLite database, stack ids S1, S2, ... and a
// stepping clock. The trace groups journaled events by step and sorts
// them within a step, so concurrent steps produce stable golden files.
package harness
