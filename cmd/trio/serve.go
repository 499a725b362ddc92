package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trioctl/trio/internal/config"
	"github.com/trioctl/trio/pkg/models"
)

// buildServeCmd creates the "serve" subcommand: it wires the full runtime
// once and keeps a single session live across turns, reading requests from
// stdin until EOF or cancellation, rather than tearing the runtime down
// after one turn like the default run path does for --non-interactive.
func buildServeCmd() *cobra.Command {
	var (
		configPath   string
		mode         string
		approvalMode string
		debug        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep a session live across turns",
		Long: `Start a long-lived Trio session that reads one request per line from
standard input and prints each turn's response, reusing the same runtime
(event bus, lifecycle manager, tool registry) across turns instead of
rebuilding it per invocation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			opts := turnOptions{Mode: mode, ApprovalMode: approvalMode, Debug: debug}
			resolvedMode, err := opts.resolveMode()
			if err != nil {
				return err
			}
			if err := opts.resolveApproval(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, effectiveConfigPath(configPath), resolvedMode, approvalMode, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&mode, "mode", "", "Response verbosity: concise or default")
	cmd.Flags().StringVar(&approvalMode, "approval", "", "Approval policy: default, autoEdit, or yolo")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, configPath string, mode models.Mode, approvalMode string, debug bool) error {
	rt, err := buildRuntime(ctx, cfg, approvalMode, debug)
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer rt.Close(ctx)

	if err := config.WatchFile(ctx, configPath, rt.warnf, func(reloaded *config.Config) {
		newMode := reloaded.Runtime.EffectiveSecurityMode()
		if newMode != rt.perms.Mode() {
			rt.logger.Info(ctx, "serve: security mode changed via config reload", "from", rt.perms.Mode(), "to", newMode)
			rt.perms.SetMode(newMode)
		}
	}); err != nil {
		rt.logger.Warn(ctx, "serve: config hot-reload disabled", "error", err)
	}

	session := &models.Session{Mode: mode}
	if err := rt.sessionStore.CreateSession(ctx, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	rt.logger.Info(ctx, "serve: session started", "sessionId", session.ID)

	return runREPL(ctx, rt, session.ID, mode, os.Stdin, os.Stdout)
}
