package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/spanos/internal/rules"
	"github.com/roach88/spanos/internal/span"
	"github.com/roach88/spanos/internal/store"
)

// PolicyAgent incrementally evaluates active policies over the ledger.
//
// Each policy tracks progress through an append-only cursor span linked by
// related_to; the cursor's metadata.last_at is the newest ledger timestamp
// the policy has attempted. A candidate that fails evaluation is logged and
// still advances the cursor past its timestamp, so the batch never stalls
// on one bad span. Delivery of derived spans is at-least-once: a crash
// between emission and cursor append re-emits on the next run, and the
// conflict-swallowing insert absorbs exact duplicates.
type PolicyAgent struct{}

func (p *PolicyAgent) ID() string   { return span.PolicyAgentKernelID }
func (p *PolicyAgent) Name() string { return "policy_agent" }

func (p *PolicyAgent) Run(ctx context.Context, kc *Context) error {
	policies, err := kc.Visible(ctx, store.Filter{
		EntityType: span.EntityPolicy,
		Status:     span.StatusActive,
	})
	if err != nil {
		return fmt.Errorf("scan active policies: %w", err)
	}

	for _, policy := range policies {
		if err := p.runPolicy(ctx, kc, policy); err != nil {
			return fmt.Errorf("policy %s: %w", policy.ID, err)
		}
	}
	return nil
}

func (p *PolicyAgent) runPolicy(ctx context.Context, kc *Context, policy span.Span) error {
	cursorAt, err := p.cursorAt(ctx, kc, policy.ID)
	if err != nil {
		return err
	}

	// Candidates are confined to the policy's own tenant. A public policy
	// from another tenant must never see, or re-emit under its tenant,
	// spans it could only reach through the public visibility rule.
	candidates, err := kc.Visible(ctx, store.Filter{
		InTenant: policy.TenantID,
		After:    cursorAt,
		Limit:    PolicyBatchSize,
	})
	if err != nil {
		return fmt.Errorf("scan candidates: %w", err)
	}

	lastAt := ""
	emitted := 0
	for _, cand := range candidates {
		lastAt = cand.At
		if err := p.evaluateCandidate(ctx, kc, policy, cand, &emitted); err != nil {
			kc.Log.Warn("policy evaluation failed",
				"policy_id", policy.ID,
				"candidate_id", cand.ID,
				"error", err)
		}
	}

	// Cursors only move when work was attempted; an empty batch appends
	// nothing.
	if lastAt == "" {
		return nil
	}
	cursor := span.Span{
		ID:         kc.NewID(),
		Seq:        0,
		EntityType: span.EntityPolicyCursor,
		Who:        p.Name(),
		Did:        "advanced",
		This:       policy.ID,
		At:         kc.Now(),
		Status:     span.StatusComplete,
		RelatedTo:  []string{policy.ID},
		OwnerID:    policy.OwnerID,
		TenantID:   policy.TenantID,
		Visibility: policy.Visibility,
		Metadata:   map[string]any{"last_at": lastAt},
	}
	if err := kc.Append(ctx, cursor); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}

	kc.Log.Info("policy run complete",
		"policy_id", policy.ID,
		"candidates", len(candidates),
		"emitted", emitted,
		"cursor_at", lastAt)
	return nil
}

// cursorAt resolves the policy's newest cursor position, defaulting to the
// epoch when the policy has never run.
func (p *PolicyAgent) cursorAt(ctx context.Context, kc *Context, policyID string) (string, error) {
	cursors, err := kc.Visible(ctx, store.Filter{
		EntityType: span.EntityPolicyCursor,
		RelatedTo:  policyID,
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return "", fmt.Errorf("resolve cursor: %w", err)
	}
	if len(cursors) == 0 {
		return span.EpochTime, nil
	}
	if at, ok := cursors[0].Metadata["last_at"].(string); ok && at != "" {
		return at, nil
	}
	return span.EpochTime, nil
}

func (p *PolicyAgent) evaluateCandidate(ctx context.Context, kc *Context, policy, cand span.Span, emitted *int) error {
	bag, err := spanBag(cand)
	if err != nil {
		return err
	}
	actions, err := rules.EvaluatePolicy(ctx, policy.Code, bag)
	if err != nil {
		return err
	}
	for _, action := range actions {
		switch action.Kind {
		case rules.ActionEmitSpan:
			derived, err := p.derivedSpan(kc, policy, cand, action.EmitSpan)
			if err != nil {
				return err
			}
			inserted, err := kc.AppendDerived(ctx, derived)
			if err != nil {
				return err
			}
			if inserted {
				*emitted++
			}
		default:
			return fmt.Errorf("unsupported action kind %q", action.Kind)
		}
	}
	return nil
}

// derivedSpan decodes an emit_span payload and backfills identity,
// timestamp and ownership from the policy.
func (p *PolicyAgent) derivedSpan(kc *Context, policy, cand span.Span, payload map[string]any) (span.Span, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return span.Span{}, fmt.Errorf("encode emit_span payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var derived span.Span
	if err := dec.Decode(&derived); err != nil {
		return span.Span{}, fmt.Errorf("decode emit_span payload: %w", err)
	}
	if derived.EntityType == "" {
		return span.Span{}, fmt.Errorf("emit_span payload has no entity_type")
	}
	if derived.ID == "" {
		derived.ID = kc.NewID()
	}
	if derived.At == "" {
		derived.At = kc.Now()
	}
	if derived.Who == "" {
		derived.Who = p.Name()
	}
	if derived.OwnerID == "" {
		derived.OwnerID = policy.OwnerID
	}
	if derived.TenantID == "" {
		derived.TenantID = policy.TenantID
	}
	if derived.Visibility == "" {
		derived.Visibility = policy.Visibility
	}
	if len(derived.RelatedTo) == 0 {
		derived.RelatedTo = []string{cand.ID}
	}
	return derived, nil
}
