// Package manifest resolves the execution whitelist and global policy knobs
// from the most recent manifest span.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/spanos/internal/span"
	"github.com/roach88/spanos/internal/store"
)

// DefaultSlowMS is the slow-call threshold used when the manifest does not
// set metadata.policy.slow_ms.
const DefaultSlowMS = 5000

// Manifest holds the knobs the loader and the run kernel read.
type Manifest struct {
	// AllowedBootIDs is the execution whitelist. Empty means every boot is
	// rejected - the fail-closed default when no manifest was seeded.
	AllowedBootIDs []string

	// SlowMS is the slow-call threshold in milliseconds.
	SlowMS int64

	// SignaturesRequired enables hash and signature verification in the
	// loader.
	SignaturesRequired bool
}

// Allows reports whether a function id is whitelisted for boot.
func (m Manifest) Allows(functionID string) bool {
	for _, id := range m.AllowedBootIDs {
		if id == functionID {
			return true
		}
	}
	return false
}

// Resolver reads the current manifest from the ledger.
type Resolver struct {
	store *store.Store
}

// NewResolver creates a manifest resolver over a ledger store.
func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Current returns the manifest from the most recent (at descending) visible
// manifest span. If none exists it returns the fail-closed default: an empty
// whitelist, so the loader rejects every boot until a manifest is seeded.
func (r *Resolver) Current(ctx context.Context, tenant string) (Manifest, error) {
	spans, err := r.store.Visible(ctx, store.Filter{
		Tenant:     tenant,
		EntityType: span.EntityManifest,
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("resolve manifest: %w", err)
	}

	if len(spans) == 0 {
		return Manifest{SlowMS: DefaultSlowMS}, nil
	}

	return fromMetadata(spans[0].Metadata), nil
}

// fromMetadata decodes the manifest knobs from a manifest span's metadata.
// Unknown or malformed entries degrade to defaults rather than failing the
// resolve - a bad manifest must not take the loader down with it.
func fromMetadata(meta map[string]any) Manifest {
	m := Manifest{SlowMS: DefaultSlowMS}

	if ids, ok := meta["allowed_boot_ids"].([]any); ok {
		for _, v := range ids {
			if s, ok := v.(string); ok {
				m.AllowedBootIDs = append(m.AllowedBootIDs, s)
			}
		}
	}

	if policy, ok := meta["policy"].(map[string]any); ok {
		if slow, ok := asInt64(policy["slow_ms"]); ok && slow > 0 {
			m.SlowMS = slow
		}
	}

	if features, ok := meta["features"].(map[string]any); ok {
		if required, ok := features["signatures_required"].(bool); ok {
			m.SignaturesRequired = required
		}
	}

	return m
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
