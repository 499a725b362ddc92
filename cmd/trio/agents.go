package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trioctl/trio/pkg/models"
)

// buildAgentsCmd creates the "agents" command group, reflecting the
// Lifecycle Manager's (C5) live agent table and the Agent Spawner's (C6)
// admission state. These commands observe a runtime built fresh for the
// invocation, so they only see agents spawned within the current process's
// lifetime (e.g. mini-agents started by a prior turn in the same `serve`
// session); there is no cross-process agent registry.
func buildAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect and control mini-agents",
	}
	cmd.AddCommand(buildAgentsListCmd(), buildAgentsStatusCmd(), buildAgentsCancelCmd())
	return cmd
}

func buildAgentsListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live mini-agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLifecycle(cmd.Context(), configPath, func(rt *runtime) error {
				agents := rt.lifecycle.List()
				if len(agents) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No live agents.")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ID                                    STATE       STARTED")
				for _, a := range agents {
					fmt.Fprintf(cmd.OutOrStdout(), "%-36s  %-10s  %s\n", a.ID, a.State, a.StartedAt.Format("15:04:05"))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildAgentsStatusCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show detailed status for one mini-agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLifecycle(cmd.Context(), configPath, func(rt *runtime) error {
				instance, ok := rt.lifecycle.Get(args[0])
				if !ok {
					return usageError("unknown agent id: %s", args[0])
				}
				printAgentInstance(cmd, instance)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildAgentsCancelCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running mini-agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLifecycle(cmd.Context(), configPath, func(rt *runtime) error {
				if !rt.lifecycle.Cancel(args[0]) {
					return usageError("agent %s is unknown or already finished", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func printAgentInstance(cmd *cobra.Command, instance models.AgentInstance) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Agent: %s\n", instance.ID)
	fmt.Fprintf(out, "State: %s\n", instance.State)
	fmt.Fprintf(out, "Started: %s\n", instance.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	if instance.EndedAt != nil {
		fmt.Fprintf(out, "Ended: %s\n", instance.EndedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	fmt.Fprintf(out, "Tool Calls: %d\n", instance.Counters.ToolCalls)
	fmt.Fprintf(out, "Tokens Used: %d\n", instance.Counters.Tokens)
	if instance.LastError != "" {
		fmt.Fprintf(out, "Last Error: %s\n", instance.LastError)
	}
}

// withLifecycle builds a runtime, hands it to fn, and tears it down
// afterward. Agent inspection commands share this helper with the default
// run path's buildRuntime so the Lifecycle Manager's defaults stay in one
// place.
func withLifecycle(ctx context.Context, configPath string, fn func(rt *runtime) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	rt, err := buildRuntime(ctx, cfg, "", false)
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer rt.Close(ctx)
	return fn(rt)
}
