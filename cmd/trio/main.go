// Command trio is the CLI entry point for the Trio agent runtime: a
// single-turn driver by default (--prompt/--non-interactive), a
// long-lived session server (serve), and inspection commands for
// in-flight mini-agents and persisted sessions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trioctl/trio/internal/config"
)

// Exit codes per the CLI contract: 0 success, 1 unhandled failure, 2
// invalid usage, 130 cancelled (SIGINT/SIGTERM mid-run).
const (
	exitSuccess      = 0
	exitFailure      = 1
	exitInvalidUsage = 2
	exitCancelled    = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := buildRootCmd()
	root.SetArgs(args)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.Is(err, errInvalidUsage):
		return exitInvalidUsage
	default:
		fmt.Fprintln(os.Stderr, "trio:", err)
		return exitFailure
	}
}

// errInvalidUsage wraps a usage error so run() can map it to exit code 2
// instead of the generic failure code.
var errInvalidUsage = errors.New("invalid usage")

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errInvalidUsage}, args...)...)
}

func defaultConfigPath() string {
	if path := os.Getenv("TRIO_CONFIG"); path != "" {
		return path
	}
	return "trio.yaml"
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(errUnwrapStat(err)) {
			return nil, usageError("config file not found: %s", path)
		}
		return nil, err
	}
	return cfg, nil
}

// errUnwrapStat peels back wrapped errors looking for the underlying
// os.Stat failure, since config.Load wraps every error it returns.
func errUnwrapStat(err error) error {
	for err != nil {
		if os.IsNotExist(err) {
			return err
		}
		err = errors.Unwrap(err)
	}
	return nil
}

func buildRootCmd() *cobra.Command {
	var (
		configPath   string
		prompt       string
		nonInteractive bool
		mode         string
		approvalMode string
		debug        bool
	)

	cmd := &cobra.Command{
		Use:   "trio",
		Short: "Trio is a task-orchestrating agent runtime",
		Long: `Trio plans a request into a DAG of steps, runs it through the
Executor or delegates groups of steps to mini-agents, and aggregates the
result into a single turn response.

Running trio with no subcommand starts a single turn: use --prompt to
supply the request text and --non-interactive to print the response and
exit rather than dropping into a REPL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" && nonInteractive {
				return usageError("--prompt is required with --non-interactive")
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runTurn(cmd.Context(), cfg, turnOptions{
				Prompt:         prompt,
				NonInteractive: nonInteractive,
				Mode:           mode,
				ApprovalMode:   approvalMode,
				Debug:          debug,
			})
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Request text for a single turn")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Print the turn result and exit instead of starting a REPL")
	cmd.Flags().StringVar(&mode, "mode", "", "Response verbosity: concise or default")
	cmd.Flags().StringVar(&approvalMode, "approval", "", "Approval policy: default, autoEdit, or yolo")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(buildServeCmd())
	cmd.AddCommand(buildAgentsCmd())
	cmd.AddCommand(buildSessionsCmd())
	cmd.AddCommand(buildConfigCmd())

	return cmd
}
