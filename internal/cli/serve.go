package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/spanos/internal/loader"
	"github.com/roach88/spanos/internal/sched"
	"github.com/roach88/spanos/internal/server"
	"github.com/roach88/spanos/internal/span"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and kernel poll loops",
		Long: `Run the HTTP server and the periodic kernel triggers.

The observer, request worker and policy agent kernels are booted on
their configured intervals; the provider exec kernel runs only on
demand through its trigger endpoint. Shuts down gracefully on SIGINT
or SIGTERM.

Example:
  SPANOS_ADDR=:8787 spanos serve --db spanos.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerEnv := a.baseEnv()
	workerEnv[loader.EnvUserID] = server.WorkerIdentity
	workerEnv[loader.EnvTenantID] = span.SystemTenant

	bootKernel := func(id string) sched.Handler {
		return func(ctx context.Context) error {
			_, err := a.loader.Boot(ctx, id, workerEnv)
			return err
		}
	}

	var group sched.Group
	group.Go(ctx, sched.Interval{Name: "observer", Period: a.cfg.ObserverInterval, Log: a.log},
		bootKernel(span.ObserverKernelID))
	group.Go(ctx, sched.Interval{Name: "worker", Period: a.cfg.WorkerInterval, Log: a.log},
		bootKernel(span.RequestWorkerKernelID))
	group.Go(ctx, sched.Interval{Name: "policy-agent", Period: a.cfg.PolicyInterval, Log: a.log},
		bootKernel(span.PolicyAgentKernelID))

	srv := &http.Server{
		Addr:    a.cfg.Addr,
		Handler: server.New(a.loader, a.baseEnv(), a.log).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("serving", "addr", a.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "server failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("shutdown incomplete", "error", err)
	}
	group.Wait()
	a.log.Info("stopped")
	return nil
}
