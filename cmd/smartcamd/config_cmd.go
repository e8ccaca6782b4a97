// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/smartcam/internal/config"
)

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, validate and inspect configuration files",
	}
	cmd.AddCommand(
		newConfigInitCmd(configPath),
		newConfigValidateCmd(configPath),
		newConfigDumpCmd(configPath),
	)
	return cmd
}

func newConfigInitCmd(configPath *string) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Long:  "Write the default configuration to path (default " + defaultConfigName + "). JSON or YAML is chosen by extension.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = defaultConfigName
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "default configuration written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := resolveConfigPath(*configPath)
			if _, err := config.NewLoader(path).Load(); err != nil {
				return fmt.Errorf("configuration error in %s: %w", describePath(path), err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", describePath(path))
			return nil
		},
	}
}

func newConfigDumpCmd(configPath *string) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration (defaults + file + env)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "yaml" && format != "json" {
				return fmt.Errorf("unsupported format %q (use yaml or json)", format)
			}
			path := resolveConfigPath(*configPath)
			cfg, err := config.NewLoader(path).Load()
			if err != nil {
				return fmt.Errorf("configuration error in %s: %w", describePath(path), err)
			}
			out, err := config.Marshal(cfg, "effective."+format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")
	return cmd
}

func describePath(path string) string {
	if path == "" {
		return "built-in defaults"
	}
	return path
}
