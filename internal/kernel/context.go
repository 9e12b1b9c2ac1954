package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/spanos/internal/span"
	"github.com/roach88/spanos/internal/store"
)

// BootFunc re-enters the loader's public entry point. Kernels that delegate
// work to other kernels use it instead of any privileged shortcut.
type BootFunc func(ctx context.Context, functionID string, env map[string]string) error

// Context is the capability set handed to an invoked kernel. It is the
// whole of what booted code may do: append to the ledger, read the visible
// view within the invocation's tenant, read the clock, mint identifiers,
// hash and verify, read the caller environment, and re-boot.
type Context struct {
	Tenant string
	Env    map[string]string
	Boot   BootFunc
	Clock  Clock
	IDs    IDGenerator
	Log    *slog.Logger

	store *store.Store
}

// NewContext builds a capability context over the given store, scoped to
// one tenant. Env may be nil.
func NewContext(st *store.Store, tenant string, env map[string]string, clock Clock, ids IDGenerator, boot BootFunc, log *slog.Logger) *Context {
	if env == nil {
		env = map[string]string{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Context{
		Tenant: tenant,
		Env:    env,
		Boot:   boot,
		Clock:  clock,
		IDs:    ids,
		Log:    log,
		store:  st,
	}
}

// Append writes a span to the ledger. Spans without a tenant are stamped
// with the invocation's tenant; a kernel cannot write into another tenant.
func (c *Context) Append(ctx context.Context, sp span.Span) error {
	sp = c.stamp(sp)
	return c.store.Append(ctx, sp)
}

// AppendDerived writes a span through the conflict-swallowing path. It
// reports whether the row was inserted; false means an equivalent span
// already existed.
func (c *Context) AppendDerived(ctx context.Context, sp span.Span) (bool, error) {
	sp = c.stamp(sp)
	return c.store.AppendDerived(ctx, sp)
}

func (c *Context) stamp(sp span.Span) span.Span {
	if sp.TenantID == "" {
		sp.TenantID = c.Tenant
	}
	if sp.At == "" {
		sp.At = c.Now()
	}
	return sp
}

// Visible reads the latest-version view, always scoped to the
// invocation's tenant regardless of what the filter asked for.
func (c *Context) Visible(ctx context.Context, f store.Filter) ([]span.Span, error) {
	f.Tenant = c.Tenant
	return c.store.Visible(ctx, f)
}

// Latest returns the current version of one entity, tenant-scoped.
func (c *Context) Latest(ctx context.Context, id, entityType string) (span.Span, bool, error) {
	return c.store.Latest(ctx, c.Tenant, id, entityType)
}

// Now returns the clock reading in the ledger's fixed-width encoding.
func (c *Context) Now() string {
	return span.FormatTime(c.Clock.Now())
}

// NewID mints an identifier for a derived span.
func (c *Context) NewID() string {
	return c.IDs.Generate()
}

// Hash computes the domain-separated digest of raw bytes.
func (c *Context) Hash(data []byte) string {
	return span.Hash(data)
}

// Verify checks an ed25519 signature over a hex digest.
func (c *Context) Verify(pubHex, hashHex, sigHex string) (bool, error) {
	return span.VerifySignature(pubHex, hashHex, sigHex)
}

// spanBag decodes a span into the map shape stored rule code evaluates
// over. Numbers survive as json.Number so integer fields stay exact.
func spanBag(sp span.Span) (map[string]any, error) {
	raw, err := json.Marshal(sp)
	if err != nil {
		return nil, fmt.Errorf("encode span: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var bag map[string]any
	if err := dec.Decode(&bag); err != nil {
		return nil, fmt.Errorf("decode span: %w", err)
	}
	return bag, nil
}
