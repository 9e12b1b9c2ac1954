package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// BootOptions holds flags for the boot command.
type BootOptions struct {
	*RootOptions
	Env []string
}

// NewBootCommand creates the boot command.
func NewBootCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BootOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "boot <function-id>",
		Short: "Boot a function through the verification gate",
		Long: `Boot a function through the verification gate.

The function must be whitelisted by the current manifest. The invoked
code records its own outcome in the ledger; this command only reports
whether the boot itself succeeded.

Example:
  spanos boot 00000000-0000-4000-8000-000000000002 --env APP_TENANT_ID=system`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoot(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Env, "env", nil, "environment entry KEY=VALUE (repeatable)")

	return cmd
}

func runBoot(opts *BootOptions, functionID string, cmd *cobra.Command) error {
	env, err := parseEnv(opts.Env)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --env", err)
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	for k, v := range a.baseEnv() {
		if _, set := env[k]; !set {
			env[k] = v
		}
	}

	out := printer(opts.RootOptions, cmd)
	result, err := a.loader.Boot(cmd.Context(), functionID, env)
	if err != nil {
		_ = out.Fail(CodeBoot, err.Error(), nil)
		return WrapExitError(ExitFailure, "boot failed", err)
	}

	if opts.Format == "json" {
		return out.Success(result)
	}
	return out.Success(fmt.Sprintf("booted %s at %s", result.FunctionID, result.ExecutedAt))
}

func parseEnv(entries []string) (map[string]string, error) {
	env := map[string]string{}
	for _, entry := range entries {
		key, value, found := strings.Cut(entry, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", entry)
		}
		env[key] = value
	}
	return env, nil
}
