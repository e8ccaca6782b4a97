// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command smartcamd records motion-triggered video segments from a camera
// and compresses them in the background.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/smartcam/internal/config"
	"github.com/ManuGH/smartcam/internal/daemon"
	"github.com/ManuGH/smartcam/internal/version"
)

// defaultConfigName is looked up in the working directory when neither
// --config nor SMARTCAM_CONFIG is given.
const defaultConfigName = "smartcam_config.json"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "smartcamd",
		Short:         "Motion-triggered camera segment recorder",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd, resolveConfigPath(configPath))
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML or JSON)")

	root.AddCommand(
		newRunCmd(&configPath),
		newConfigCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the recorder until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd, resolveConfigPath(*configPath))
		},
	}
}

func runDaemon(cmd *cobra.Command, configPath string) error {
	ctx, stop := daemon.WaitForShutdown()
	defer stop()

	app, err := daemon.Bootstrap(ctx, daemon.Options{
		ConfigPath: configPath,
		Version:    version.Version,
		LogOutput:  cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

// resolveConfigPath picks --config, then SMARTCAM_CONFIG, then
// ./smartcam_config.json if present. Empty means defaults and env only.
func resolveConfigPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if p := strings.TrimSpace(config.ParseString("SMARTCAM_CONFIG", "")); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigName); err == nil {
		abs, err := filepath.Abs(defaultConfigName)
		if err == nil {
			return abs
		}
		return defaultConfigName
	}
	return ""
}
