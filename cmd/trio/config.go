package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trioctl/trio/internal/config"
)

// buildConfigCmd groups read-only configuration inspection subcommands:
// validating a config file against Load's own parsing/defaulting, and
// exporting the JSON Schema document editor tooling can use for
// autocompletion against trio.yaml.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate Trio configuration",
	}
	cmd.AddCommand(buildConfigValidateCmd(), buildConfigSchemaCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config %q is valid (llm provider: %s)\n", effectiveConfigPath(configPath), cfg.LLM.DefaultProvider)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return fmt.Errorf("build config schema: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(append(schema, '\n'))
			return err
		},
	}
	return cmd
}

func effectiveConfigPath(path string) string {
	if path == "" {
		return defaultConfigPath()
	}
	return path
}
