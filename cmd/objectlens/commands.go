// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/objectlens/cmd/objectlens/config"
	"github.com/AleutianAI/objectlens/pkg/logging"
	"github.com/AleutianAI/objectlens/pkg/ux"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app carries what every command needs after PersistentPreRunE.
type app struct {
	configPath string
	logLevel   string

	cfg     *config.Config
	logger  *logging.Logger
	printer *ux.Printer
}

func (a *app) slog() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger.Slog()
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(ux.NewPrinter())
}

func newRootCmdWith(printer *ux.Printer) *cobra.Command {
	a := &app{printer: printer}

	root := &cobra.Command{
		Use:   "objectlens",
		Short: "Live object graphs for a paused debug session",
		Long: `objectlens connects to a Debug Adapter Protocol server, turns the
paused program's variables into an object graph on every stop, and streams
it to connected panels as a network or an object diagram.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.objectlens/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(a),
		newExportCmd(a),
		newRecordingsCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}
	path := a.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	a.configPath = path

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	lc, err := cfg.Logging.Logging("objectlens")
	if err != nil {
		return err
	}
	logger, err := logging.New(lc)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	a.logger = logger
	slog.SetDefault(logger.Slog())
	return nil
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the objectlens version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			a.printer.Info(fmt.Sprintf("objectlens %s (%s %s/%s)", version, runtime.Version(), runtime.GOOS, runtime.GOARCH))
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			a.printer.Info(a.configPath)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			// Loading already validated it.
			a.printer.Success(a.configPath + " is valid")
			return nil
		},
	})
	return cmd
}
