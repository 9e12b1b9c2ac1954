// Package loader is the Stage-0 trust gate. Every execution, external or
// kernel-initiated, enters through Boot: whitelist check, function fetch,
// optional integrity verification, audit record, then invocation under the
// capability contract. Nothing executes without passing through here.
package loader

import (
	"context"
	"log/slog"

	"github.com/roach88/spanos/internal/kernel"
	"github.com/roach88/spanos/internal/manifest"
	"github.com/roach88/spanos/internal/rules"
	"github.com/roach88/spanos/internal/span"
	"github.com/roach88/spanos/internal/store"
)

// Environment keys identifying the boot caller.
const (
	EnvUserID   = "APP_USER_ID"
	EnvTenantID = "APP_TENANT_ID"
)

// Result reports a successful boot. The invoked code's actual outcome
// lives in the ledger, not here: a kernel records its own execution spans.
type Result struct {
	FunctionID string `json:"function_id"`
	ExecutedAt string `json:"executed_at"`
}

// Loader verifies and invokes function spans.
type Loader struct {
	store     *store.Store
	manifests *manifest.Resolver
	registry  *kernel.Registry
	clock     kernel.Clock
	ids       kernel.IDGenerator
	log       *slog.Logger
}

// New wires a loader. A nil logger falls back to slog.Default.
func New(st *store.Store, manifests *manifest.Resolver, registry *kernel.Registry, clock kernel.Clock, ids kernel.IDGenerator, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		store:     st,
		manifests: manifests,
		registry:  registry,
		clock:     clock,
		ids:       ids,
		log:       log,
	}
}

// Boot verifies functionID against the current manifest and invokes it
// with the caller-supplied environment.
//
// The boot_event audit span is appended unconditionally once verification
// passes and before invocation, so every verified execution attempt is on
// the ledger even when the invoked code later fails. Rejections before
// that point leave no trace beyond the returned error.
func (l *Loader) Boot(ctx context.Context, functionID string, env map[string]string) (Result, error) {
	if functionID == "" {
		return Result{}, newError(ErrCodeValidation, "", "function_id required")
	}
	if env == nil {
		env = map[string]string{}
	}
	tenant := env[EnvTenantID]
	if tenant == "" {
		tenant = span.SystemTenant
	}

	m, err := l.manifests.Current(ctx, tenant)
	if err != nil {
		return Result{}, wrapError(ErrCodeExecution, functionID, "resolve manifest", err)
	}
	if !m.Allows(functionID) {
		return Result{}, newError(ErrCodeAuthorization, functionID, "function_id not in manifest whitelist")
	}

	fn, ok, err := l.store.Latest(ctx, tenant, functionID, span.EntityFunction)
	if err != nil {
		return Result{}, wrapError(ErrCodeExecution, functionID, "fetch function", err)
	}
	if !ok {
		return Result{}, newError(ErrCodeNotFound, functionID, "function not found in ledger")
	}

	if m.SignaturesRequired {
		if err := l.verifyIntegrity(fn); err != nil {
			return Result{}, err
		}
	}

	if err := l.recordBootEvent(ctx, fn, tenant, env); err != nil {
		return Result{}, err
	}

	kc := kernel.NewContext(l.store, tenant, env, l.clock, l.ids, l.reenter, l.log)
	if err := l.invoke(ctx, fn, kc); err != nil {
		return Result{}, err
	}

	l.log.Info("boot complete", "function_id", functionID, "tenant", tenant)
	return Result{
		FunctionID: functionID,
		ExecutedAt: span.FormatTime(l.clock.Now()),
	}, nil
}

// verifyIntegrity recomputes the function's content hash and checks the
// stored hash and signature against it. The hash covers every field except
// signature and curr_hash, in canonical key order.
func (l *Loader) verifyIntegrity(fn span.Span) error {
	computed, err := span.ContentHash(fn)
	if err != nil {
		return wrapError(ErrCodeIntegrity, fn.ID, "compute content hash", err)
	}
	if fn.CurrHash != "" && fn.CurrHash != computed {
		return newError(ErrCodeIntegrity, fn.ID, "hash mismatch")
	}
	if fn.Signature != "" && fn.PublicKey != "" {
		valid, err := span.VerifySignature(fn.PublicKey, computed, fn.Signature)
		if err != nil {
			return wrapError(ErrCodeIntegrity, fn.ID, "verify signature", err)
		}
		if !valid {
			return newError(ErrCodeIntegrity, fn.ID, "invalid signature")
		}
	}
	return nil
}

func (l *Loader) recordBootEvent(ctx context.Context, fn span.Span, tenant string, env map[string]string) error {
	userID := env[EnvUserID]
	if userID == "" {
		userID = "anonymous"
	}
	event := span.Span{
		ID:         l.ids.Generate(),
		Seq:        0,
		EntityType: span.EntityBootEvent,
		Who:        userID,
		Did:        "booted",
		This:       fn.ID,
		At:         span.FormatTime(l.clock.Now()),
		Status:     span.StatusComplete,
		RelatedTo:  []string{fn.ID},
		OwnerID:    userID,
		TenantID:   tenant,
		Visibility: span.VisibilityPrivate,
		Metadata: map[string]any{
			"function_id": fn.ID,
			"user_id":     userID,
			"tenant_id":   tenant,
		},
	}
	if err := l.store.Append(ctx, event); err != nil {
		return wrapError(ErrCodeExecution, fn.ID, "record boot event", err)
	}
	return nil
}

// invoke resolves the function's entry point and runs it. Functions with
// runtime "go" dispatch to the compiled-in kernel registry by span id;
// runtime "cel" compiles the stored code. Anything else is not invocable.
func (l *Loader) invoke(ctx context.Context, fn span.Span, kc *kernel.Context) error {
	switch fn.Runtime {
	case span.RuntimeGo:
		k, ok := l.registry.Lookup(fn.ID)
		if !ok {
			return newError(ErrCodeExecution, fn.ID, "kernel has no default/main export")
		}
		if err := k.Run(ctx, kc); err != nil {
			return wrapError(ErrCodeExecution, fn.ID, err.Error(), err)
		}
		return nil
	case span.RuntimeCEL:
		if fn.Code == "" {
			return newError(ErrCodeExecution, fn.ID, "kernel has no default/main export")
		}
		if _, err := rules.EvaluateFunction(ctx, fn.Code, fn.Input, kc.Env); err != nil {
			return wrapError(ErrCodeExecution, fn.ID, err.Error(), err)
		}
		return nil
	default:
		return newError(ErrCodeExecution, fn.ID, "kernel has no default/main export")
	}
}

// reenter is the Boot capability handed to kernels. It is the same public
// entry point, so kernel-initiated work passes the same trust gate as any
// external caller.
func (l *Loader) reenter(ctx context.Context, functionID string, env map[string]string) error {
	_, err := l.Boot(ctx, functionID, env)
	return err
}
