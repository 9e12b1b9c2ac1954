package seed

import (
	"context"

	"github.com/roach88/spanos/internal/manifest"
	"github.com/roach88/spanos/internal/span"
	"github.com/roach88/spanos/internal/store"
)

// VerifyReport describes how the installed seed compares to the expected
// set. An empty report means the deployment contract holds.
type VerifyReport struct {
	MissingKernels  []string
	NotWhitelisted  []string
	HashMismatches  []string
	ManifestMissing bool
}

// OK reports whether the seed is fully installed and whitelisted.
func (r VerifyReport) OK() bool {
	return len(r.MissingKernels) == 0 && len(r.NotWhitelisted) == 0 &&
		len(r.HashMismatches) == 0 && !r.ManifestMissing
}

// Verify checks that every seed kernel is present in the visible ledger,
// carries a content hash that still matches its fields, and is
// whitelisted by the current manifest.
func Verify(ctx context.Context, st *store.Store, manifests *manifest.Resolver) (VerifyReport, error) {
	s, err := Load()
	if err != nil {
		return VerifyReport{}, err
	}

	var report VerifyReport
	for _, def := range s.Kernels {
		fn, ok, err := st.Latest(ctx, span.SystemTenant, def.ID, span.EntityFunction)
		if err != nil {
			return report, err
		}
		if !ok {
			report.MissingKernels = append(report.MissingKernels, def.ID)
			continue
		}
		if fn.CurrHash != "" {
			computed, err := span.ContentHash(fn)
			if err != nil {
				return report, err
			}
			if computed != fn.CurrHash {
				report.HashMismatches = append(report.HashMismatches, def.ID)
			}
		}
	}

	m, err := manifests.Current(ctx, span.SystemTenant)
	if err != nil {
		return report, err
	}
	if len(m.AllowedBootIDs) == 0 {
		report.ManifestMissing = true
	}
	for _, def := range s.Kernels {
		if !m.Allows(def.ID) {
			report.NotWhitelisted = append(report.NotWhitelisted, def.ID)
		}
	}
	return report, nil
}
