package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/spanos/internal/kernel"
	"github.com/roach88/spanos/internal/span"
	"github.com/roach88/spanos/internal/store"
)

// ManifestID is the stable id of the seeded manifest span.
const ManifestID = "00000000-0000-4000-8000-0000000000ff"

// Report lists what Bootstrap did, by span id.
type Report struct {
	Created []string
	Skipped []string
}

// Bootstrap installs the seed set into the ledger. Existing spans are
// never touched: any id with at least one version already in the ledger
// is skipped, so operator edits and re-signed kernels survive re-runs.
func Bootstrap(ctx context.Context, st *store.Store, clock kernel.Clock, log *slog.Logger) (Report, error) {
	if log == nil {
		log = slog.Default()
	}
	s, err := Load()
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, def := range s.Kernels {
		created, err := installKernel(ctx, st, clock, def)
		if err != nil {
			return report, fmt.Errorf("install kernel %s: %w", def.Name, err)
		}
		if created {
			report.Created = append(report.Created, def.ID)
		} else {
			report.Skipped = append(report.Skipped, def.ID)
		}
	}

	created, err := installManifest(ctx, st, clock, s.Manifest)
	if err != nil {
		return report, fmt.Errorf("install manifest: %w", err)
	}
	if created {
		report.Created = append(report.Created, ManifestID)
	} else {
		report.Skipped = append(report.Skipped, ManifestID)
	}

	log.Info("bootstrap complete",
		"created", len(report.Created),
		"skipped", len(report.Skipped))
	return report, nil
}

func installKernel(ctx context.Context, st *store.Store, clock kernel.Clock, def KernelDef) (bool, error) {
	n, err := st.CountVersions(ctx, def.ID)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	sp := span.Span{
		ID:          def.ID,
		Seq:         0,
		EntityType:  span.EntityFunction,
		Who:         "bootstrap",
		Did:         "installed",
		This:        def.Name,
		At:          span.FormatTime(clock.Now()),
		Status:      span.StatusActive,
		Name:        def.Name,
		Description: def.Description,
		Runtime:     def.Runtime,
		OwnerID:     span.SystemTenant,
		TenantID:    span.SystemTenant,
		Visibility:  span.VisibilityPublic,
	}
	hash, err := span.ContentHash(sp)
	if err != nil {
		return false, err
	}
	sp.CurrHash = hash

	if err := st.Append(ctx, sp); err != nil {
		return false, err
	}
	return true, nil
}

func installManifest(ctx context.Context, st *store.Store, clock kernel.Clock, def ManifestDef) (bool, error) {
	n, err := st.CountVersions(ctx, ManifestID)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	ids := make([]any, len(def.AllowedBootIDs))
	for i, id := range def.AllowedBootIDs {
		ids[i] = id
	}
	sp := span.Span{
		ID:         ManifestID,
		Seq:        0,
		EntityType: span.EntityManifest,
		Who:        "bootstrap",
		Did:        "installed",
		This:       "manifest",
		At:         span.FormatTime(clock.Now()),
		Status:     span.StatusActive,
		Name:       "manifest",
		OwnerID:    span.SystemTenant,
		TenantID:   span.SystemTenant,
		Visibility: span.VisibilityPublic,
		Metadata: map[string]any{
			"allowed_boot_ids": ids,
			"policy":           map[string]any{"slow_ms": def.SlowMS},
			"features":         map[string]any{"signatures_required": def.SignaturesRequired},
		},
	}
	if err := st.Append(ctx, sp); err != nil {
		return false, err
	}
	return true, nil
}
