package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/spanos/internal/seed"
)

// NewBootstrapCommand creates the bootstrap command.
func NewBootstrapCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Install the built-in kernels and default manifest",
		Long: `Install the built-in kernels and default manifest into the ledger.

Bootstrap is idempotent: spans that already exist in the ledger are left
untouched and reported as skipped, so a bootstrapped ledger keeps any
operator edits across re-runs.

Example:
  spanos bootstrap --db spanos.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootstrap(rootOpts, cmd)
		},
	}
	return cmd
}

func runBootstrap(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	out := printer(opts, cmd)
	report, err := seed.Bootstrap(cmd.Context(), a.store, a.clock, a.log)
	if err != nil {
		_ = out.Fail(CodeBootstrap, err.Error(), nil)
		return WrapExitError(ExitCommandError, "bootstrap failed", err)
	}

	if opts.Format == "json" {
		return out.Success(map[string]any{
			"created": report.Created,
			"skipped": report.Skipped,
		})
	}
	return out.Success(fmt.Sprintf("bootstrap complete: %d created, %d skipped",
		len(report.Created), len(report.Skipped)))
}
