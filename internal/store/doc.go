// Package store provides SQLite-backed durable storage for the span ledger.
//
// The store implements an append-only log:
//   - Append fails with ErrConflict when (id, seq) already exists
//   - AppendDerived swallows constraint conflicts for kernel idempotency
//   - visible_spans resolves each logical entity to its maximum-seq version
//   - Every query applies the caller's tenant boundary: private spans are
//     invisible outside their owning tenant, public spans visible to all
//
// # Critical patterns
//
// Idempotency by constraint, not locking:
//   - UNIQUE(parent_id) WHERE entity_type='request' AND status='scheduled'
//     makes request derivation safe under concurrent observer runs
//
// Deterministic query results:
//   - All queries ORDER BY at with equal timestamps broken by insertion
//     order (rowid), ascending or descending as requested, so overlapping
//     kernel runs see stable order
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// JSON bags (related_to, input, output, error, metadata) are stored as
// canonical JSON text so content hashes survive storage round trips.
package store
