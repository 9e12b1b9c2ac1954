package kernel

import (
	"context"
	"fmt"

	"github.com/roach88/spanos/internal/span"
	"github.com/roach88/spanos/internal/store"
)

// Observer derives request spans for scheduled functions.
//
// A bounded batch of scheduled functions is scanned oldest first, and one
// request span per function is attempted. Idempotency under concurrent or
// repeated runs comes from the store's uniqueness constraint over open
// requests per parent, not from locking: a duplicate attempt is swallowed
// as a conflict, never surfaced as a kernel failure.
type Observer struct{}

func (o *Observer) ID() string   { return span.ObserverKernelID }
func (o *Observer) Name() string { return "observer" }

func (o *Observer) Run(ctx context.Context, kc *Context) error {
	functions, err := kc.Visible(ctx, store.Filter{
		EntityType: span.EntityFunction,
		Status:     span.StatusScheduled,
		Limit:      ObserverBatchSize,
	})
	if err != nil {
		return fmt.Errorf("scan scheduled functions: %w", err)
	}

	derived := 0
	for _, fn := range functions {
		traceID := fn.TraceID
		if traceID == "" {
			traceID = kc.NewID()
		}
		req := span.Span{
			ID:         kc.NewID(),
			Seq:        0,
			EntityType: span.EntityRequest,
			Who:        o.Name(),
			Did:        "requested",
			This:       fn.ID,
			At:         kc.Now(),
			Status:     span.StatusScheduled,
			ParentID:   fn.ID,
			RelatedTo:  []string{fn.ID},
			OwnerID:    fn.OwnerID,
			TenantID:   fn.TenantID,
			Visibility: fn.Visibility,
			TraceID:    traceID,
		}
		inserted, err := kc.AppendDerived(ctx, req)
		if err != nil {
			return fmt.Errorf("derive request for %s: %w", fn.ID, err)
		}
		if inserted {
			derived++
		}
	}

	kc.Log.Info("observer run complete",
		"scanned", len(functions),
		"derived", derived)
	return nil
}
