// Package ir provides the shared domain types for photostack.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal, so it remains
// the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Identifiers are opaque strings; an empty string means "unset"
//   - Grouping keys are NFC-normalized before they are stored or compared
//   - Event payloads serialize to RFC 8785 canonical JSON for content addressing
//   - All JSON tags use camelCase to match the published event contract
package ir
