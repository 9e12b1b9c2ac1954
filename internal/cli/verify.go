package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/spanos/internal/seed"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that the built-in kernels are installed and whitelisted",
		Long: `Check that every built-in kernel is present in the visible ledger and
whitelisted by the current manifest.

Exits 1 when the deployment contract does not hold.

Example:
  spanos verify --db spanos.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd)
		},
	}
	return cmd
}

func runVerify(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	out := printer(opts, cmd)
	report, err := seed.Verify(cmd.Context(), a.store, a.manifests)
	if err != nil {
		_ = out.Fail(CodeVerify, err.Error(), nil)
		return WrapExitError(ExitCommandError, "verify failed", err)
	}

	if report.OK() {
		return out.Success("all kernels installed and whitelisted")
	}

	details := map[string]any{
		"missing_kernels":  report.MissingKernels,
		"not_whitelisted":  report.NotWhitelisted,
		"hash_mismatches":  report.HashMismatches,
		"manifest_missing": report.ManifestMissing,
	}
	_ = out.Fail(CodeVerify, summary(report), details)
	return NewExitError(ExitFailure, "verification failed")
}

func summary(report seed.VerifyReport) string {
	var parts []string
	if len(report.MissingKernels) > 0 {
		parts = append(parts, fmt.Sprintf("%d kernels missing", len(report.MissingKernels)))
	}
	if len(report.NotWhitelisted) > 0 {
		parts = append(parts, fmt.Sprintf("%d kernels not whitelisted", len(report.NotWhitelisted)))
	}
	if len(report.HashMismatches) > 0 {
		parts = append(parts, fmt.Sprintf("%d kernels with stale hashes", len(report.HashMismatches)))
	}
	if report.ManifestMissing {
		parts = append(parts, "manifest missing or empty")
	}
	return strings.Join(parts, "; ")
}
