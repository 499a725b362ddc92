package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trioctl/trio/internal/sessions"
)

// buildSessionsCmd creates the "sessions" command group over C11's Session
// + Snapshot store, which persists across process invocations (unlike the
// agents group), so these commands work whether the store is the in-memory
// default or a configured Cockroach backend.
func buildSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect persisted sessions",
	}
	cmd.AddCommand(buildSessionsListCmd(), buildSessionsShowCmd())
	return cmd
}

func buildSessionsListCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessionStore(cmd, configPath, func(cmd *cobra.Command, store sessions.Store) error {
				list, err := store.ListSessions(cmd.Context(), sessions.ListOptions{Limit: limit})
				if err != nil {
					return fmt.Errorf("list sessions: %w", err)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ID                                    STATUS  TURNS  STARTED")
				for _, s := range list {
					fmt.Fprintf(cmd.OutOrStdout(), "%-36s  %-6s  %-5d  %s\n", s.ID, s.Status, s.TurnCount, s.StartedAt.Format("2006-01-02T15:04:05"))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().IntVar(&limit, "limit", 50, "Max number of sessions to return")
	return cmd
}

func buildSessionsShowCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session and its latest snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessionStore(cmd, configPath, func(cmd *cobra.Command, store sessions.Store) error {
				out := cmd.OutOrStdout()
				session, err := store.GetSession(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("get session: %w", err)
				}
				fmt.Fprintf(out, "Session: %s\n", session.ID)
				fmt.Fprintf(out, "Status: %s\n", session.Status)
				fmt.Fprintf(out, "Mode: %s\n", session.Mode)
				fmt.Fprintf(out, "Turns: %d\n", session.TurnCount)
				fmt.Fprintf(out, "Tokens Used: %d\n", session.TokensUsed)
				fmt.Fprintf(out, "Started: %s\n", session.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
				if session.EndedAt != nil {
					fmt.Fprintf(out, "Ended: %s\n", session.EndedAt.Format("2006-01-02T15:04:05Z07:00"))
				}

				snapshot, err := store.LatestSnapshot(cmd.Context(), session.ID)
				if err != nil {
					fmt.Fprintln(out, "No snapshot recorded.")
					return nil
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Latest Snapshot: sequence %d\n", snapshot.SequenceNumber)
				fmt.Fprintf(out, "  Ephemeral bytes: %d\n", len(snapshot.EphemeralState))
				fmt.Fprintf(out, "  Retrieved ids: %d\n", len(snapshot.RetrievalIDs))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func withSessionStore(cmd *cobra.Command, configPath string, fn func(cmd *cobra.Command, store sessions.Store) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store, err := buildSessionStore(cfg)
	if err != nil {
		return fmt.Errorf("initialize session store: %w", err)
	}
	return fn(cmd, store)
}
