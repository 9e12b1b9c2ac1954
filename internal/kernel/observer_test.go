package kernel

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spanos/internal/span"
	"github.com/roach88/spanos/internal/store"
)

func scheduledFunction(id, at string) span.Span {
	return span.Span{
		ID:         id,
		Seq:        0,
		EntityType: span.EntityFunction,
		Who:        "test",
		At:         at,
		Status:     span.StatusScheduled,
		Code:       `{"ok": true}`,
		Runtime:    span.RuntimeCEL,
		OwnerID:    "owner-1",
		TenantID:   span.SystemTenant,
		Visibility: span.VisibilityPublic,
	}
}

func TestObserver_DerivesOneRequestPerFunction(t *testing.T) {
	kc, st := newTestContext(t, span.SystemTenant)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		fn := scheduledFunction(
			fmt.Sprintf("fn-%d", i),
			fmt.Sprintf("2024-01-01T00:00:0%d.000000000Z", i))
		require.NoError(t, st.Append(ctx, fn))
	}

	require.NoError(t, (&Observer{}).Run(ctx, kc))

	requests, err := st.Visible(ctx, store.Filter{
		Tenant:     span.SystemTenant,
		EntityType: span.EntityRequest,
	})
	require.NoError(t, err)
	require.Len(t, requests, 3)

	parents := map[string]bool{}
	for _, req := range requests {
		assert.Equal(t, span.StatusScheduled, req.Status)
		assert.NotEmpty(t, req.TraceID)
		assert.Equal(t, []string{req.ParentID}, req.RelatedTo)
		parents[req.ParentID] = true
	}
	assert.Len(t, parents, 3, "each function gets its own request")
}

func TestObserver_RerunDerivesNothing(t *testing.T) {
	kc, st := newTestContext(t, span.SystemTenant)
	ctx := context.Background()

	fn := scheduledFunction("fn-1", "2024-01-01T00:00:00.000000000Z")
	require.NoError(t, st.Append(ctx, fn))

	observer := &Observer{}
	require.NoError(t, observer.Run(ctx, kc))
	require.NoError(t, observer.Run(ctx, kc))

	requests, err := st.Visible(ctx, store.Filter{
		Tenant:     span.SystemTenant,
		EntityType: span.EntityRequest,
	})
	require.NoError(t, err)
	assert.Len(t, requests, 1, "re-running the observer must not duplicate requests")
}

func TestObserver_BatchBounded(t *testing.T) {
	kc, st := newTestContext(t, span.SystemTenant)
	ctx := context.Background()

	for i := 0; i < ObserverBatchSize+4; i++ {
		fn := scheduledFunction(
			fmt.Sprintf("fn-%02d", i),
			fmt.Sprintf("2024-01-01T00:00:%02d.000000000Z", i))
		require.NoError(t, st.Append(ctx, fn))
	}

	require.NoError(t, (&Observer{}).Run(ctx, kc))

	requests, err := st.Visible(ctx, store.Filter{
		Tenant:     span.SystemTenant,
		EntityType: span.EntityRequest,
	})
	require.NoError(t, err)
	assert.Len(t, requests, ObserverBatchSize, "one run processes at most one batch")

	// Oldest functions go first.
	parents := map[string]bool{}
	for _, req := range requests {
		parents[req.ParentID] = true
	}
	assert.True(t, parents["fn-00"])
	assert.False(t, parents[fmt.Sprintf("fn-%02d", ObserverBatchSize)])
}
