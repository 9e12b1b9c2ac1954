package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/spanos/internal/span"
)

// ErrConflict is returned by Append when (id, seq) already exists.
// The existing row is never altered.
var ErrConflict = errors.New("span already exists")

const insertColumns = `
	(id, seq, entity_type, who, did, this, at, status, name, description,
	 code, language, runtime, owner_id, tenant_id, visibility, parent_id,
	 related_to, input, output, error, duration_ms, trace_id, metadata,
	 curr_hash, signature, public_key)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Append inserts a span. Returns ErrConflict if a span with the same
// (id, seq) already exists - the append-only guarantee.
func (s *Store) Append(ctx context.Context, sp span.Span) error {
	args, err := insertArgs(sp)
	if err != nil {
		return fmt.Errorf("append span: %w", err)
	}

	_, err = s.db.ExecContext(ctx, "INSERT INTO spans"+insertColumns, args...)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("append span %s seq %d: %w", sp.ID, sp.Seq, ErrConflict)
		}
		return fmt.Errorf("append span: %w", err)
	}

	return nil
}

// AppendDerived inserts a derived span, swallowing uniqueness conflicts.
// Returns whether a row was actually inserted. Kernels use this for
// constraint-guarded idempotency: re-deriving an existing span is harmless
// and must not surface as a kernel failure.
func (s *Store) AppendDerived(ctx context.Context, sp span.Span) (inserted bool, err error) {
	args, err := insertArgs(sp)
	if err != nil {
		return false, fmt.Errorf("append derived span: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO spans"+insertColumns+" ON CONFLICT DO NOTHING", args...)
	if err != nil {
		return false, fmt.Errorf("append derived span: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append derived span: rows affected: %w", err)
	}

	return rows > 0, nil
}

// insertArgs serializes a span into the insert parameter list.
// JSON bags use canonical serialization so content hashes survive
// storage round trips.
func insertArgs(sp span.Span) ([]any, error) {
	relatedTo, err := marshalList(sp.RelatedTo)
	if err != nil {
		return nil, fmt.Errorf("related_to: %w", err)
	}
	input, err := marshalBag(sp.Input)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	output, err := marshalBag(sp.Output)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	errBag, err := marshalBag(sp.Error)
	if err != nil {
		return nil, fmt.Errorf("error: %w", err)
	}
	metadata, err := marshalBag(sp.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	return []any{
		sp.ID, sp.Seq, sp.EntityType, sp.Who, sp.Did, sp.This, sp.At,
		sp.Status, sp.Name, sp.Description, sp.Code, sp.Language, sp.Runtime,
		sp.OwnerID, sp.TenantID, sp.Visibility, sp.ParentID,
		relatedTo, input, output, errBag, sp.DurationMS, sp.TraceID, metadata,
		sp.CurrHash, sp.Signature, sp.PublicKey,
	}, nil
}
