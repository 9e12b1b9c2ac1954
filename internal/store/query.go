package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/spanos/internal/span"
)

// Filter selects latest-version spans from the visible view.
// The zero value matches everything the tenant may see.
type Filter struct {
	// Tenant is the caller's tenant boundary. Private spans outside this
	// tenant are never returned; public spans always are.
	Tenant string

	// InTenant restricts results to spans whose tenant_id equals this
	// value. Unlike Tenant it excludes public spans from other tenants.
	InTenant string

	EntityType string
	Status     string
	ID         string
	ParentID   string

	// RelatedTo matches spans whose related_to array contains this id.
	RelatedTo string

	// After matches spans with at strictly greater than this timestamp.
	After string

	// Descending flips the at ordering (newest first).
	Descending bool

	// Limit bounds the result size; 0 means no bound.
	Limit int
}

const selectColumns = `
	id, seq, entity_type, who, did, this, at, status, name, description,
	code, language, runtime, owner_id, tenant_id, visibility, parent_id,
	related_to, input, output, error, duration_ms, trace_id, metadata,
	curr_hash, signature, public_key`

// compileFilter builds parameterized SQL for a Filter.
// Every query is ordered for deterministic results; values are always
// parameterized, never interpolated.
func compileFilter(f Filter) (string, []any) {
	var conds []string
	var params []any

	// The tenant boundary is the authorization boundary for everything
	// built on top of the store.
	conds = append(conds, "(visibility = ? OR tenant_id = ?)")
	params = append(params, span.VisibilityPublic, f.Tenant)

	addEq := func(col, val string) {
		if val != "" {
			conds = append(conds, col+" = ?")
			params = append(params, val)
		}
	}
	addEq("tenant_id", f.InTenant)
	addEq("entity_type", f.EntityType)
	addEq("status", f.Status)
	addEq("id", f.ID)
	addEq("parent_id", f.ParentID)

	if f.RelatedTo != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(related_to) WHERE json_each.value = ?)")
		params = append(params, f.RelatedTo)
	}
	if f.After != "" {
		conds = append(conds, "at > ?")
		params = append(params, f.After)
	}

	dir := "ASC"
	if f.Descending {
		dir = "DESC"
	}

	// Equal timestamps fall back to insertion order, so results are
	// deterministic and ties resolve to the later-inserted span when
	// descending.
	query := "SELECT" + selectColumns + "\n\tFROM visible_spans\n\tWHERE " +
		strings.Join(conds, " AND ") +
		fmt.Sprintf("\n\tORDER BY at %s, inserted %s", dir, dir)

	if f.Limit > 0 {
		query += " LIMIT ?"
		params = append(params, f.Limit)
	}

	return query, params
}

// Visible returns the latest-version spans matching the filter, scoped to
// the filter's tenant boundary. Returns an empty slice (not nil) when
// nothing matches.
func (s *Store) Visible(ctx context.Context, f Filter) ([]span.Span, error) {
	query, params := compileFilter(f)

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query visible spans: %w", err)
	}
	defer rows.Close()

	var spans []span.Span
	for rows.Next() {
		sp, err := scanSpan(rows)
		if err != nil {
			return nil, err
		}
		spans = append(spans, sp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visible spans: %w", err)
	}

	if spans == nil {
		spans = []span.Span{}
	}

	return spans, nil
}

// Latest returns the current version of a single entity, tenant-scoped.
// The boolean reports whether the entity exists (and is visible).
func (s *Store) Latest(ctx context.Context, tenant, id, entityType string) (span.Span, bool, error) {
	spans, err := s.Visible(ctx, Filter{
		Tenant:     tenant,
		ID:         id,
		EntityType: entityType,
		Limit:      1,
	})
	if err != nil {
		return span.Span{}, false, err
	}
	if len(spans) == 0 {
		return span.Span{}, false, nil
	}
	return spans[0], true, nil
}

// CountVersions reports how many versions exist for an id, bypassing the
// visible view. Used by bootstrap to skip already-seeded entities.
func (s *Store) CountVersions(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM spans WHERE id = ?", id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count versions: %w", err)
	}
	return count, nil
}

// scanSpan scans a row from selectColumns into a Span.
func scanSpan(rows *sql.Rows) (span.Span, error) {
	var sp span.Span
	var relatedTo, input, output, errBag, metadata string

	if err := rows.Scan(
		&sp.ID, &sp.Seq, &sp.EntityType, &sp.Who, &sp.Did, &sp.This, &sp.At,
		&sp.Status, &sp.Name, &sp.Description, &sp.Code, &sp.Language,
		&sp.Runtime, &sp.OwnerID, &sp.TenantID, &sp.Visibility, &sp.ParentID,
		&relatedTo, &input, &output, &errBag, &sp.DurationMS, &sp.TraceID,
		&metadata, &sp.CurrHash, &sp.Signature, &sp.PublicKey,
	); err != nil {
		return span.Span{}, fmt.Errorf("scan span: %w", err)
	}

	var err error
	if sp.RelatedTo, err = unmarshalList(relatedTo); err != nil {
		return span.Span{}, err
	}
	if sp.Input, err = unmarshalBag(input); err != nil {
		return span.Span{}, err
	}
	if sp.Output, err = unmarshalBag(output); err != nil {
		return span.Span{}, err
	}
	if sp.Error, err = unmarshalBag(errBag); err != nil {
		return span.Span{}, err
	}
	if sp.Metadata, err = unmarshalBag(metadata); err != nil {
		return span.Span{}, err
	}

	return sp, nil
}
