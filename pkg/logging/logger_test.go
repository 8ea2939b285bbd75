// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "", want: LevelInfo},
		{in: "INFO", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: " error ", want: LevelError},
		{in: "trace", want: LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownLevel)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "warn", LevelWarn.String())
}

func TestNew_ConsoleFormats(t *testing.T) {
	var text bytes.Buffer
	logger, err := New(Config{Level: LevelInfo, Service: "objectlens", Format: FormatText, Output: &text})
	require.NoError(t, err)
	logger.Slog().Debug("hidden")
	logger.Slog().Info("stopped", "thread_id", 1)
	assert.NotContains(t, text.String(), "hidden")
	assert.Contains(t, text.String(), "msg=stopped")
	assert.Contains(t, text.String(), "service=objectlens")

	var auto bytes.Buffer
	logger, err = New(Config{Output: &auto})
	require.NoError(t, err)
	logger.With(slog.String("client_id", "c1")).Warn("dropped")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(auto.Bytes(), &entry), "non-terminal output defaults to JSON")
	assert.Equal(t, "dropped", entry["msg"])
	assert.Equal(t, "c1", entry["client_id"])
}

func TestNew_FileLogging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer
	logger, err := New(Config{Level: LevelDebug, LogDir: dir, Service: "lens", Format: FormatText, Output: &console})
	require.NoError(t, err)

	logger.Slog().Debug("building frame", "frame_id", 7)
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close(), "close is idempotent")

	path := filepath.Join(dir, "lens_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "building frame", entry["msg"])
	assert.Equal(t, "lens", entry["service"])
	assert.Contains(t, console.String(), "building frame")
}

func TestNew_QuietWithoutFile(t *testing.T) {
	var out bytes.Buffer
	logger, err := New(Config{Quiet: true, Output: &out})
	require.NoError(t, err)
	logger.Slog().Error("nobody hears this")
	assert.Empty(t, out.String())
}

func TestNew_BadLogDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err := New(Config{LogDir: filepath.Join(file, "logs")})
	assert.Error(t, err)
}
