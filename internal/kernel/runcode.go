package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/spanos/internal/manifest"
	"github.com/roach88/spanos/internal/rules"
	"github.com/roach88/spanos/internal/span"
)

// execTimeout bounds a single stored-code evaluation. Separate from the
// manifest's slow threshold, which only labels runs, never kills them.
const execTimeout = 30 * time.Second

// RunCode executes a target function span's stored code and records the
// outcome as an execution span.
//
// The target is threaded through the environment (SPAN_ID), never through
// shared state. A code-level failure is recorded as an error-status
// execution span and is not a RunCode failure: callers learn the
// function's actual result from the ledger, not from the boot response.
// Successful runs slower than the manifest threshold additionally get a
// status_patch span; failed runs never do.
type RunCode struct {
	Manifests *manifest.Resolver
}

func (r *RunCode) ID() string   { return span.RunCodeKernelID }
func (r *RunCode) Name() string { return "run_code" }

func (r *RunCode) Run(ctx context.Context, kc *Context) error {
	targetID := kc.Env[EnvSpanID]
	if targetID == "" {
		return fmt.Errorf("%s not set in environment", EnvSpanID)
	}

	m, err := r.Manifests.Current(ctx, kc.Tenant)
	if err != nil {
		return fmt.Errorf("resolve manifest: %w", err)
	}

	fn, ok, err := kc.Latest(ctx, targetID, span.EntityFunction)
	if err != nil {
		return fmt.Errorf("fetch function %s: %w", targetID, err)
	}
	if !ok {
		return fmt.Errorf("function %s not found", targetID)
	}

	start := kc.Clock.Now()
	output, evalErr := r.evaluate(ctx, fn, kc.Env)
	durationMS := kc.Clock.Now().Sub(start).Milliseconds()

	exec := span.Span{
		ID:         kc.NewID(),
		Seq:        0,
		EntityType: span.EntityExecution,
		Who:        r.Name(),
		Did:        "executed",
		This:       fn.ID,
		At:         kc.Now(),
		ParentID:   fn.ID,
		RelatedTo:  []string{fn.ID},
		Input:      fn.Input,
		OwnerID:    fn.OwnerID,
		TenantID:   fn.TenantID,
		Visibility: fn.Visibility,
		TraceID:    fn.TraceID,
		DurationMS: durationMS,
	}
	if evalErr != nil {
		exec.Status = span.StatusError
		exec.Error = map[string]any{"message": evalErr.Error()}
	} else {
		exec.Status = span.StatusComplete
		exec.Output = output
	}
	if err := kc.Append(ctx, exec); err != nil {
		return fmt.Errorf("record execution: %w", err)
	}

	if evalErr == nil && durationMS > m.SlowMS {
		patch := span.Span{
			ID:         kc.NewID(),
			Seq:        0,
			EntityType: span.EntityStatusPatch,
			Who:        r.Name(),
			Did:        "flagged",
			This:       exec.ID,
			At:         kc.Now(),
			Status:     span.StatusComplete,
			RelatedTo:  []string{exec.ID},
			OwnerID:    fn.OwnerID,
			TenantID:   fn.TenantID,
			Visibility: fn.Visibility,
			TraceID:    fn.TraceID,
			Metadata: map[string]any{
				"status":      "slow",
				"duration_ms": durationMS,
			},
		}
		if err := kc.Append(ctx, patch); err != nil {
			return fmt.Errorf("record slow patch: %w", err)
		}
	}

	return nil
}

func (r *RunCode) evaluate(ctx context.Context, fn span.Span, env map[string]string) (map[string]any, error) {
	if fn.Code == "" {
		return nil, fmt.Errorf("function %s has no code", fn.ID)
	}
	if fn.Runtime != "" && fn.Runtime != span.RuntimeCEL {
		return nil, fmt.Errorf("unsupported runtime %q", fn.Runtime)
	}
	evalCtx, cancel := context.WithTimeout(ctx, execTimeout)
	defer cancel()
	return rules.EvaluateFunction(evalCtx, fn.Code, fn.Input, env)
}
