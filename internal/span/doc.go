// Package span provides the universal ledger record type for spanos.
//
// This package contains the Span type and its identity machinery. All other
// internal packages import span; span imports nothing internal. This keeps
// the record model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Spans are immutable once appended; a new state is a new (id, seq) pair
//   - Timestamps use a fixed-width RFC 3339 UTC encoding so lexicographic
//     ordering of the at field equals temporal ordering
//   - Content hashes use RFC 8785 canonical JSON and SHA-256 with domain
//     separation; signature and curr_hash are excluded from the hash input
//   - No floats in hashed content - integers only
package span
