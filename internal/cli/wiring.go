package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/spanos/internal/config"
	"github.com/roach88/spanos/internal/kernel"
	"github.com/roach88/spanos/internal/loader"
	"github.com/roach88/spanos/internal/manifest"
	"github.com/roach88/spanos/internal/store"
)

// app wires the components every command needs: the store, the manifest
// resolver, the kernel registry and the loader.
type app struct {
	cfg       config.Config
	store     *store.Store
	manifests *manifest.Resolver
	loader    *loader.Loader
	clock     kernel.Clock
	log       *slog.Logger
}

func openApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open ledger database", err)
	}

	manifests := manifest.NewResolver(st)
	clock := kernel.WallClock{}
	ids := kernel.UUIDv7Generator{}
	registry := kernel.BuiltIn(manifests, nil)
	ld := loader.New(st, manifests, registry, clock, ids, log)

	return &app{
		cfg:       cfg,
		store:     st,
		manifests: manifests,
		loader:    ld,
		clock:     clock,
		log:       log,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// baseEnv is the environment forwarded into every invocation.
func (a *app) baseEnv() map[string]string {
	env := map[string]string{}
	if a.cfg.SigningKeyHex != "" {
		env["SIGNING_KEY_HEX"] = a.cfg.SigningKeyHex
	}
	return env
}

func printer(opts *RootOptions, cmd *cobra.Command) *Printer {
	return &Printer{
		Format:  opts.Format,
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
		Verbose: opts.Verbose,
	}
}
