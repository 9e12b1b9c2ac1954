package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/roach88/spanos/internal/kernel"
	"github.com/roach88/spanos/internal/loader"
	"github.com/roach88/spanos/internal/manifest"
	"github.com/roach88/spanos/internal/seed"
	"github.com/roach88/spanos/internal/span"
	"github.com/roach88/spanos/internal/store"
	"github.com/roach88/spanos/internal/testutil"
)

// Tenant is the tenant every harness invocation runs in unless a step
// overrides it.
const Tenant = span.SystemTenant

// scenarioEpoch is where the stepping clock starts. Fixed so timestamps
// are reproducible across runs.
var scenarioEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness wires a deterministic spanos instance for scenario execution.
type Harness struct {
	Store  *store.Store
	Loader *loader.Loader
	Clock  *testutil.SteppingClock
	IDs    *testutil.SequentialIDs
}

// Result holds the final ledger after a scenario run.
type Result struct {
	Ledger []span.Span
}

// New builds a harness over a fresh temp-dir ledger with a stepping clock
// and sequential identifiers. Kernel logs are discarded.
func New(t *testing.T) *Harness {
	t.Helper()

	st := testutil.OpenStore(t)
	clock := testutil.NewSteppingClock(scenarioEpoch, time.Millisecond)
	ids := testutil.NewSequentialIDs("test-id")
	manifests := manifest.NewResolver(st)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := kernel.BuiltIn(manifests, nil)

	return &Harness{
		Store:  st,
		Loader: loader.New(st, manifests, registry, clock, ids, log),
		Clock:  clock,
		IDs:    ids,
	}
}

// Run executes a scenario and evaluates its assertions. The returned
// ledger holds every span visible in the harness tenant, in at order.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if scenario.Bootstrap {
		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		if _, err := seed.Bootstrap(ctx, h.Store, h.Clock, log); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	for i, def := range scenario.Spans {
		sp, err := h.decodeSpan(def)
		if err != nil {
			return nil, fmt.Errorf("spans[%d]: %w", i, err)
		}
		if err := h.Store.Append(ctx, sp); err != nil {
			return nil, fmt.Errorf("spans[%d]: append: %w", i, err)
		}
	}

	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	ledger, err := h.Store.Visible(ctx, store.Filter{Tenant: Tenant})
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	result := &Result{Ledger: ledger}

	for i, assertion := range scenario.Assertions {
		if err := h.evaluate(ctx, assertion); err != nil {
			return result, fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return result, nil
}

func (h *Harness) runStep(ctx context.Context, step Step) error {
	env := map[string]string{loader.EnvTenantID: Tenant}
	for k, v := range step.Env {
		env[k] = v
	}

	_, err := h.Loader.Boot(ctx, step.Boot, env)
	if step.ExpectError == "" {
		if err != nil {
			return fmt.Errorf("boot %s: %w", step.Boot, err)
		}
		return nil
	}
	if err == nil {
		return fmt.Errorf("boot %s: expected %s error, got success", step.Boot, step.ExpectError)
	}
	if code := loader.CodeOf(err); string(code) != step.ExpectError {
		return fmt.Errorf("boot %s: expected %s error, got %s: %w", step.Boot, step.ExpectError, code, err)
	}
	return nil
}

// decodeSpan converts a YAML span definition to a span, filling harness
// defaults for identity, timestamp and ownership.
func (h *Harness) decodeSpan(def map[string]any) (span.Span, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return span.Span{}, fmt.Errorf("encode definition: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var sp span.Span
	if err := dec.Decode(&sp); err != nil {
		return span.Span{}, fmt.Errorf("decode definition: %w", err)
	}

	if sp.ID == "" {
		sp.ID = h.IDs.Generate()
	}
	if sp.At == "" {
		sp.At = span.FormatTime(h.Clock.Now())
	}
	if sp.Who == "" {
		sp.Who = "test"
	}
	if sp.OwnerID == "" {
		sp.OwnerID = "test"
	}
	if sp.TenantID == "" {
		sp.TenantID = Tenant
	}
	if sp.Visibility == "" {
		sp.Visibility = span.VisibilityPublic
	}
	return sp, nil
}

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	matches, err := h.Store.Visible(ctx, store.Filter{
		Tenant:     Tenant,
		EntityType: a.EntityType,
		Status:     a.Status,
		ParentID:   a.ParentID,
		RelatedTo:  a.RelatedTo,
	})
	if err != nil {
		return err
	}

	switch a.Type {
	case AssertSpanCount:
		if len(matches) != a.Count {
			return fmt.Errorf("%s: expected %d spans, found %d", a.Type, a.Count, len(matches))
		}
	case AssertSpanAbsent:
		if len(matches) != 0 {
			return fmt.Errorf("%s: expected no spans, found %d", a.Type, len(matches))
		}
	case AssertSpanExists:
		if len(matches) == 0 {
			return fmt.Errorf("%s: no matching spans", a.Type)
		}
		if len(a.Expect) == 0 {
			return nil
		}
		for _, m := range matches {
			if matchesExpect(m, a.Expect) {
				return nil
			}
		}
		return fmt.Errorf("%s: %d spans matched filter, none matched expect", a.Type, len(matches))
	}
	return nil
}

// matchesExpect does a subset comparison of expected fields against the
// span's wire representation.
func matchesExpect(sp span.Span, expect map[string]any) bool {
	raw, err := json.Marshal(sp)
	if err != nil {
		return false
	}
	var bag map[string]any
	if err := json.Unmarshal(raw, &bag); err != nil {
		return false
	}
	for key, want := range expect {
		got, ok := bag[key]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}
