// Package store provides SQLite-backed storage for assets, stacks and the
// event journal.
//
// The store implements the asset and stack repositories consumed by the
// stacking engine:
//   - Assets: media asset records with a nullable stack back-reference
//   - Stacks: stack records; membership is derived from assets.stack_id
//   - Auto-stack groups: one claim row per (owner, grouping key)
//   - Events: append-only journal of published events
//
// # Critical Patterns
//
// Single-column membership
//   - An asset's stack_id IS its membership; the relation can never be one-sided
//   - Deleting a stack clears stack_id on its members in the same transaction
//
// Conditional writes for auto-stacking
//   - Members are attached with "... WHERE stack_id IS NULL"
//   - UNIQUE(owner_id, grouping_key) on auto_stack_groups
//   - Either check failing returns ErrConflict; the caller re-reads and retries
//
// Deterministic ordering
//   - Members are ordered by captured_at ASC, id ASC COLLATE BINARY
//   - Journal reads are ordered by seq ASC, id ASC COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - A single open connection; SQLite allows one writer at a time
package store
