package loader

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spanos/internal/kernel"
	"github.com/roach88/spanos/internal/manifest"
	"github.com/roach88/spanos/internal/span"
	"github.com/roach88/spanos/internal/store"
	"github.com/roach88/spanos/internal/testutil"
)

type loaderFixture struct {
	store  *store.Store
	loader *Loader
}

func newFixture(t *testing.T) loaderFixture {
	t.Helper()
	st := testutil.OpenStore(t)
	manifests := manifest.NewResolver(st)
	registry := kernel.BuiltIn(manifests, nil)
	clock := testutil.NewSteppingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)
	ids := testutil.NewSequentialIDs("id")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return loaderFixture{
		store:  st,
		loader: New(st, manifests, registry, clock, ids, log),
	}
}

func (f loaderFixture) appendManifest(t *testing.T, allowed []string, sigsRequired bool) {
	t.Helper()
	ids := make([]any, len(allowed))
	for i, id := range allowed {
		ids[i] = id
	}
	m := span.Span{
		ID:         "manifest-1",
		Seq:        0,
		EntityType: span.EntityManifest,
		Who:        "test",
		At:         "2023-12-31T00:00:00.000000000Z",
		Status:     span.StatusActive,
		OwnerID:    span.SystemTenant,
		TenantID:   span.SystemTenant,
		Visibility: span.VisibilityPublic,
		Metadata: map[string]any{
			"allowed_boot_ids": ids,
			"features":         map[string]any{"signatures_required": sigsRequired},
		},
	}
	require.NoError(t, f.store.Append(context.Background(), m))
}

func celFunction(id string) span.Span {
	return span.Span{
		ID:         id,
		Seq:        0,
		EntityType: span.EntityFunction,
		Who:        "test",
		At:         "2023-12-31T00:00:01.000000000Z",
		Status:     span.StatusActive,
		Code:       `{"ok": true}`,
		Runtime:    span.RuntimeCEL,
		OwnerID:    "owner-1",
		TenantID:   span.SystemTenant,
		Visibility: span.VisibilityPublic,
	}
}

func (f loaderFixture) bootEvents(t *testing.T) []span.Span {
	t.Helper()
	events, err := f.store.Visible(context.Background(), store.Filter{
		Tenant:     span.SystemTenant,
		EntityType: span.EntityBootEvent,
	})
	require.NoError(t, err)
	return events
}

func TestBoot_EmptyFunctionID(t *testing.T) {
	f := newFixture(t)
	_, err := f.loader.Boot(context.Background(), "", nil)
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
	assert.Equal(t, 400, HTTPStatusOf(err))
}

func TestBoot_NotWhitelisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendManifest(t, []string{"fn-allowed"}, false)
	require.NoError(t, f.store.Append(ctx, celFunction("fn-denied")))

	_, err := f.loader.Boot(ctx, "fn-denied", nil)
	require.Error(t, err)
	assert.Equal(t, ErrCodeAuthorization, CodeOf(err))
	assert.Equal(t, 403, HTTPStatusOf(err))

	// A rejected boot leaves no audit record.
	assert.Empty(t, f.bootEvents(t))
}

func TestBoot_EmptyWhitelistRejectsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Append(ctx, celFunction("fn-1")))

	_, err := f.loader.Boot(ctx, "fn-1", nil)
	require.Error(t, err)
	assert.Equal(t, ErrCodeAuthorization, CodeOf(err))
}

func TestBoot_FunctionNotFound(t *testing.T) {
	f := newFixture(t)
	f.appendManifest(t, []string{"fn-ghost"}, false)

	_, err := f.loader.Boot(context.Background(), "fn-ghost", nil)
	require.Error(t, err)
	assert.Equal(t, ErrCodeNotFound, CodeOf(err))
	assert.Equal(t, 404, HTTPStatusOf(err))
	assert.Empty(t, f.bootEvents(t))
}

func TestBoot_SuccessRecordsOneBootEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendManifest(t, []string{"fn-1"}, false)
	require.NoError(t, f.store.Append(ctx, celFunction("fn-1")))

	res, err := f.loader.Boot(ctx, "fn-1", map[string]string{EnvUserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "fn-1", res.FunctionID)
	_, perr := span.ParseTime(res.ExecutedAt)
	assert.NoError(t, perr)

	events := f.bootEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, "user-1", events[0].Who)
	assert.Equal(t, []string{"fn-1"}, events[0].RelatedTo)
	assert.Equal(t, span.VisibilityPrivate, events[0].Visibility)
	assert.Equal(t, "fn-1", events[0].Metadata["function_id"])
}

func TestBoot_AnonymousCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendManifest(t, []string{"fn-1"}, false)
	require.NoError(t, f.store.Append(ctx, celFunction("fn-1")))

	_, err := f.loader.Boot(ctx, "fn-1", nil)
	require.NoError(t, err)

	events := f.bootEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, "anonymous", events[0].Who)
}

func TestBoot_FailedInvocationStillAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendManifest(t, []string{"fn-1"}, false)

	fn := celFunction("fn-1")
	fn.Code = `{"x": input.missing}`
	require.NoError(t, f.store.Append(ctx, fn))

	_, err := f.loader.Boot(ctx, "fn-1", nil)
	require.Error(t, err)
	assert.Equal(t, ErrCodeExecution, CodeOf(err))

	// Verification passed, so the attempt is on the ledger.
	assert.Len(t, f.bootEvents(t), 1)
}

func TestBoot_HashMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendManifest(t, []string{"fn-1"}, true)

	fn := celFunction("fn-1")
	hash, err := span.ContentHash(fn)
	require.NoError(t, err)
	fn.CurrHash = hash
	fn.Code = `{"tampered": true}` // stored hash no longer matches
	require.NoError(t, f.store.Append(ctx, fn))

	_, err = f.loader.Boot(ctx, "fn-1", nil)
	require.Error(t, err)
	assert.Equal(t, ErrCodeIntegrity, CodeOf(err))
	assert.Contains(t, err.Error(), "hash mismatch")
	assert.Empty(t, f.bootEvents(t))
}

func TestBoot_SignatureVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendManifest(t, []string{"fn-signed", "fn-forged"}, true)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	signed := celFunction("fn-signed")
	signed.PublicKey = hex.EncodeToString(pub)
	hash, err := span.ContentHash(signed)
	require.NoError(t, err)
	signed.CurrHash = hash
	signed.Signature, err = span.Sign(priv, hash)
	require.NoError(t, err)
	require.NoError(t, f.store.Append(ctx, signed))

	_, err = f.loader.Boot(ctx, "fn-signed", nil)
	require.NoError(t, err, "a correctly signed function boots")

	forged := celFunction("fn-forged")
	forged.PublicKey = hex.EncodeToString(pub)
	hash, err = span.ContentHash(forged)
	require.NoError(t, err)
	forged.CurrHash = hash
	forged.Signature, err = span.Sign(otherPriv, hash)
	require.NoError(t, err)
	require.NoError(t, f.store.Append(ctx, forged))

	_, err = f.loader.Boot(ctx, "fn-forged", nil)
	require.Error(t, err)
	assert.Equal(t, ErrCodeIntegrity, CodeOf(err))
	assert.Contains(t, err.Error(), "invalid signature")
}

func TestBoot_UnknownRuntimeHasNoEntryPoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendManifest(t, []string{"fn-1"}, false)

	fn := celFunction("fn-1")
	fn.Runtime = "wasm"
	require.NoError(t, f.store.Append(ctx, fn))

	_, err := f.loader.Boot(ctx, "fn-1", nil)
	require.Error(t, err)
	assert.Equal(t, ErrCodeExecution, CodeOf(err))
	assert.Contains(t, err.Error(), "kernel has no default/main export")
}

func TestBoot_GoRuntimeUnregisteredID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendManifest(t, []string{"fn-1"}, false)

	fn := celFunction("fn-1")
	fn.Runtime = span.RuntimeGo
	fn.Code = ""
	require.NoError(t, f.store.Append(ctx, fn))

	_, err := f.loader.Boot(ctx, "fn-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kernel has no default/main export")
}

func TestBoot_ObserverKernelEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendManifest(t, []string{span.ObserverKernelID}, false)

	observer := span.Span{
		ID:         span.ObserverKernelID,
		Seq:        0,
		EntityType: span.EntityFunction,
		Who:        "test",
		At:         "2023-12-31T00:00:01.000000000Z",
		Status:     span.StatusActive,
		Runtime:    span.RuntimeGo,
		OwnerID:    span.SystemTenant,
		TenantID:   span.SystemTenant,
		Visibility: span.VisibilityPublic,
	}
	require.NoError(t, f.store.Append(ctx, observer))

	scheduled := celFunction("fn-waiting")
	scheduled.Status = span.StatusScheduled
	require.NoError(t, f.store.Append(ctx, scheduled))

	_, err := f.loader.Boot(ctx, span.ObserverKernelID, nil)
	require.NoError(t, err)

	requests, err := f.store.Visible(ctx, store.Filter{
		Tenant:     span.SystemTenant,
		EntityType: span.EntityRequest,
	})
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "fn-waiting", requests[0].ParentID)
}
