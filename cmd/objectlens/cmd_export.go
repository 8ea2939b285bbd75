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
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/objectlens/services/lens/diagram"
	"github.com/AleutianAI/objectlens/services/lens/server"
)

func newExportCmd(a *app) *cobra.Command {
	var format, output, serverURL string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the frame a running server is showing",
		Long: `export asks a running "objectlens serve" for the selected stack frame
as a diagram, without clusters or hidden nodes.`,
		Example: `  objectlens export -f graphviz -o frame.dot
  objectlens export | plantuml -pipe > frame.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := diagram.ParseFormat(format)
			if err != nil {
				return err
			}
			base := serverURL
			if base == "" {
				base = "http://" + a.cfg.Server.Address
			}
			w := cmd.OutOrStdout()
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			if err := fetchExport(cmd.Context(), base, f, w); err != nil {
				return err
			}
			if output != "" {
				a.printer.Success("wrote " + output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(diagram.FormatPlantUML), "plantuml or graphviz")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&serverURL, "server", "", "server base URL (default http://<server.address>)")
	return cmd
}

// fetchExport downloads GET /v1/lens/export into w.
func fetchExport(ctx context.Context, base string, f diagram.Format, w io.Writer) error {
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	u = u.JoinPath("/v1/lens/export")
	u.RawQuery = url.Values{"format": {string(f)}}.Encode()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("is objectlens serve running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e server.ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if err := sonic.Unmarshal(body, &e); err == nil && e.Error != "" {
			return fmt.Errorf("server: %s (%s)", e.Error, e.Code)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}
