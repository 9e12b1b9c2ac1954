package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spanos/internal/manifest"
	"github.com/roach88/spanos/internal/span"
	"github.com/roach88/spanos/internal/testutil"
)

var kernelIDs = []string{
	span.RunCodeKernelID,
	span.ObserverKernelID,
	span.RequestWorkerKernelID,
	span.PolicyAgentKernelID,
	span.ProviderExecKernelID,
}

func TestLoad_CompilesEmbeddedSeed(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)

	require.Len(t, s.Kernels, 5)
	names := map[string]string{}
	for _, def := range s.Kernels {
		names[def.ID] = def.Name
		assert.Equal(t, "go", def.Runtime)
		assert.NotEmpty(t, def.Description)
	}
	assert.Equal(t, "run_code", names[span.RunCodeKernelID])
	assert.Equal(t, "observer", names[span.ObserverKernelID])
	assert.Equal(t, "request_worker", names[span.RequestWorkerKernelID])
	assert.Equal(t, "policy_agent", names[span.PolicyAgentKernelID])
	assert.Equal(t, "provider_exec", names[span.ProviderExecKernelID])

	// The default manifest whitelists exactly the five kernels.
	assert.ElementsMatch(t, kernelIDs, s.Manifest.AllowedBootIDs)
	assert.Equal(t, int64(5000), s.Manifest.SlowMS)
	assert.False(t, s.Manifest.SignaturesRequired)
}

func TestBootstrap_CreatesThenSkips(t *testing.T) {
	st := testutil.OpenStore(t)
	ctx := context.Background()
	clock := testutil.NewSteppingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)

	report, err := Bootstrap(ctx, st, clock, nil)
	require.NoError(t, err)
	assert.Len(t, report.Created, 6)
	assert.Empty(t, report.Skipped)

	for _, id := range kernelIDs {
		fn, ok, err := st.Latest(ctx, span.SystemTenant, id, span.EntityFunction)
		require.NoError(t, err)
		require.True(t, ok, "kernel %s must be installed", id)
		assert.Equal(t, span.StatusActive, fn.Status)
		assert.Equal(t, span.RuntimeGo, fn.Runtime)
		assert.Equal(t, span.VisibilityPublic, fn.Visibility)

		// Installed kernels carry a verifiable content hash.
		computed, err := span.ContentHash(fn)
		require.NoError(t, err)
		assert.Equal(t, computed, fn.CurrHash)
	}

	again, err := Bootstrap(ctx, st, clock, nil)
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Len(t, again.Skipped, 6)
}

func TestBootstrap_PreservesOperatorEdits(t *testing.T) {
	st := testutil.OpenStore(t)
	ctx := context.Background()
	clock := testutil.NewSteppingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)

	// An operator installed a customized observer before bootstrap ran.
	custom := span.Span{
		ID:         span.ObserverKernelID,
		Seq:        0,
		EntityType: span.EntityFunction,
		Who:        "operator",
		At:         "2023-12-31T00:00:00.000000000Z",
		Status:     span.StatusActive,
		Name:       "observer-custom",
		Runtime:    span.RuntimeGo,
		OwnerID:    span.SystemTenant,
		TenantID:   span.SystemTenant,
		Visibility: span.VisibilityPublic,
	}
	require.NoError(t, st.Append(ctx, custom))

	report, err := Bootstrap(ctx, st, clock, nil)
	require.NoError(t, err)
	assert.Contains(t, report.Skipped, span.ObserverKernelID)

	fn, ok, err := st.Latest(ctx, span.SystemTenant, span.ObserverKernelID, span.EntityFunction)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "observer-custom", fn.Name)
}

func TestVerify_ReportsEmptyLedger(t *testing.T) {
	st := testutil.OpenStore(t)

	report, err := Verify(context.Background(), st, manifest.NewResolver(st))
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.ElementsMatch(t, kernelIDs, report.MissingKernels)
	assert.ElementsMatch(t, kernelIDs, report.NotWhitelisted)
	assert.True(t, report.ManifestMissing)
}

func TestVerify_DetectsTamperedKernel(t *testing.T) {
	st := testutil.OpenStore(t)
	ctx := context.Background()
	clock := testutil.NewSteppingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)

	_, err := Bootstrap(ctx, st, clock, nil)
	require.NoError(t, err)

	// A later version changes the code but carries the old hash forward.
	fn, ok, err := st.Latest(ctx, span.SystemTenant, span.RunCodeKernelID, span.EntityFunction)
	require.NoError(t, err)
	require.True(t, ok)
	fn.Seq++
	fn.Code = `{"patched": true}`
	fn.At = span.FormatTime(clock.Now())
	require.NoError(t, st.Append(ctx, fn))

	report, err := Verify(ctx, st, manifest.NewResolver(st))
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, []string{span.RunCodeKernelID}, report.HashMismatches)
}

func TestVerify_OKAfterBootstrap(t *testing.T) {
	st := testutil.OpenStore(t)
	ctx := context.Background()
	clock := testutil.NewSteppingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)

	_, err := Bootstrap(ctx, st, clock, nil)
	require.NoError(t, err)

	report, err := Verify(ctx, st, manifest.NewResolver(st))
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Empty(t, report.MissingKernels)
	assert.Empty(t, report.NotWhitelisted)
}
