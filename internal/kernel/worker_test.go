package kernel

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spanos/internal/span"
)

func scheduledRequest(id, parentID, at string) span.Span {
	return span.Span{
		ID:         id,
		Seq:        0,
		EntityType: span.EntityRequest,
		Who:        "observer",
		At:         at,
		Status:     span.StatusScheduled,
		ParentID:   parentID,
		RelatedTo:  []string{parentID},
		TenantID:   span.SystemTenant,
		Visibility: span.VisibilityPublic,
	}
}

func TestWorker_BootsRunCodePerRequest(t *testing.T) {
	kc, st := newTestContext(t, span.SystemTenant)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		req := scheduledRequest(
			fmt.Sprintf("req-%d", i),
			fmt.Sprintf("fn-%d", i),
			fmt.Sprintf("2024-01-01T00:00:0%d.000000000Z", i))
		require.NoError(t, st.Append(ctx, req))
	}

	var booted []string
	var targets []string
	kc.Boot = func(ctx context.Context, functionID string, env map[string]string) error {
		booted = append(booted, functionID)
		targets = append(targets, env[EnvSpanID])
		return nil
	}

	require.NoError(t, (&Worker{}).Run(ctx, kc))

	assert.Equal(t, []string{span.RunCodeKernelID, span.RunCodeKernelID}, booted)
	assert.Equal(t, []string{"fn-0", "fn-1"}, targets, "oldest request goes first")
}

func TestWorker_FailureDoesNotAbortBatch(t *testing.T) {
	kc, st := newTestContext(t, span.SystemTenant)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req := scheduledRequest(
			fmt.Sprintf("req-%d", i),
			fmt.Sprintf("fn-%d", i),
			fmt.Sprintf("2024-01-01T00:00:0%d.000000000Z", i))
		require.NoError(t, st.Append(ctx, req))
	}

	var attempted []string
	kc.Boot = func(ctx context.Context, functionID string, env map[string]string) error {
		target := env[EnvSpanID]
		attempted = append(attempted, target)
		if target == "fn-1" {
			return fmt.Errorf("boom")
		}
		return nil
	}

	// One failed boot must not abort the batch or fail the run.
	require.NoError(t, (&Worker{}).Run(ctx, kc))
	assert.Equal(t, []string{"fn-0", "fn-1", "fn-2"}, attempted)
}

func TestWorker_EnvNotSharedAcrossRequests(t *testing.T) {
	kc, st := newTestContext(t, span.SystemTenant)
	ctx := context.Background()
	kc.Env["APP_USER_ID"] = "worker"

	for i := 0; i < 2; i++ {
		req := scheduledRequest(
			fmt.Sprintf("req-%d", i),
			fmt.Sprintf("fn-%d", i),
			fmt.Sprintf("2024-01-01T00:00:0%d.000000000Z", i))
		require.NoError(t, st.Append(ctx, req))
	}

	var envs []map[string]string
	kc.Boot = func(ctx context.Context, functionID string, env map[string]string) error {
		envs = append(envs, env)
		return nil
	}

	require.NoError(t, (&Worker{}).Run(ctx, kc))
	require.Len(t, envs, 2)
	assert.NotEqual(t, envs[0][EnvSpanID], envs[1][EnvSpanID])
	for _, env := range envs {
		assert.Equal(t, "worker", env["APP_USER_ID"], "caller env is forwarded")
	}
	assert.NotContains(t, kc.Env, EnvSpanID, "the worker's own env must stay clean")
}
