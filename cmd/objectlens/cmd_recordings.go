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
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/objectlens/services/lens/diagram"
	"github.com/AleutianAI/objectlens/services/lens/recording"
)

func newRecordingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recordings",
		Aliases: []string{"rec"},
		Short:   "List, export and delete recorded sessions",
		Long: `recordings reads the configured recording store directly. With the
badger backend the store is locked while "objectlens serve" runs; use the
server's /v1/lens/recordings API instead.`,
	}
	cmd.AddCommand(newRecordingsListCmd(a), newRecordingsExportCmd(a), newRecordingsDeleteCmd(a))
	return cmd
}

// withStore opens the store for the duration of fn.
func (a *app) withStore(ctx context.Context, fn func(recording.Store) error) error {
	store, err := openStore(ctx, a.cfg.Recording)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newRecordingsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recordings, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(store recording.Store) error {
				recs, err := store.ListRecordings(cmd.Context())
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					a.printer.Info("no recordings")
					return nil
				}
				rows := make([][]string, 0, len(recs))
				for _, r := range recs {
					state := "stopped"
					if r.Active() {
						state = "recording"
					}
					rows = append(rows, []string{
						r.ID, r.Name, r.CreatedAt.Local().Format(time.DateTime), strconv.Itoa(r.FrameCount), state,
					})
				}
				a.printer.Table([]string{"ID", "NAME", "CREATED", "FRAMES", "STATE"}, rows)
				return nil
			})
		},
	}
}

func newRecordingsExportCmd(a *app) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write every frame of a recording as diagrams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := diagram.ParseFormat(format)
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(store recording.Store) error {
				w := cmd.OutOrStdout()
				if output != "" {
					file, err := os.Create(output)
					if err != nil {
						return err
					}
					defer file.Close()
					w = file
				}
				if err := recording.Export(cmd.Context(), store, args[0], f, w); err != nil {
					return err
				}
				if output != "" {
					a.printer.Success(fmt.Sprintf("wrote %s", output))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(diagram.FormatPlantUML), "plantuml or graphviz")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newRecordingsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete recordings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store recording.Store) error {
				for _, id := range args {
					if err := recording.ValidateID(id); err != nil {
						return err
					}
					if err := store.DeleteRecording(cmd.Context(), id); err != nil {
						return fmt.Errorf("deleting %s: %w", id, err)
					}
					a.printer.Success("deleted " + id)
				}
				return nil
			})
		},
	}
}
