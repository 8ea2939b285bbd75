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
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/objectlens/cmd/objectlens/config"
	"github.com/AleutianAI/objectlens/pkg/ux"
	"github.com/AleutianAI/objectlens/services/lens/diagram"
	"github.com/AleutianAI/objectlens/services/lens/recording"
	"github.com/AleutianAI/objectlens/services/lens/storage/badger"
)

// writeConfig writes a config that keeps logs and recordings under dir.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf("recording:\n  backend: badger\n  path: %s\nlogging:\n  level: warn\n  dir: \"\"\n",
		filepath.Join(dir, "recordings"))
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmdWith(&ux.Printer{Out: &out, Err: &errOut, Machine: true})
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestServeFlags_Apply(t *testing.T) {
	cfg := config.Default()
	f := serveFlags{
		address:   "127.0.0.1:9000",
		dapAddr:   "127.0.0.1:5005",
		request:   "launch",
		arguments: `{"mainClass":"demo.Main"}`,
		view:      "diagram",
	}
	require.NoError(t, f.apply(cfg))
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	assert.Equal(t, "launch", cfg.Debugger.Request)
	assert.Equal(t, "demo.Main", cfg.Debugger.Arguments["mainClass"])
	assert.Equal(t, "diagram", cfg.Session.View)

	assert.Error(t, serveFlags{arguments: "[1,2]"}.apply(config.Default()))
	assert.ErrorIs(t, serveFlags{request: "connect"}.apply(config.Default()), config.ErrInvalid)
}

func TestOpenStore_Disabled(t *testing.T) {
	_, err := openStore(context.Background(), config.RecordingConfig{Backend: config.BackendNone})
	assert.ErrorIs(t, err, errRecordingDisabled)
}

func TestVersionCmd(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "objectlens dev"))
}

func TestConfigPathCmd(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)
	out, _, err := run(t, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)
}

func TestRecordingsCmds(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)

	out, _, err := run(t, "--config", path, "recordings", "list")
	require.NoError(t, err)
	assert.Equal(t, "no recordings\n", out)

	store, err := recording.OpenBadgerStore(badger.DefaultConfig(filepath.Join(dir, "recordings")))
	require.NoError(t, err)
	r := recording.NewRecorder(store)
	rec, err := r.Start(context.Background(), "demo")
	require.NoError(t, err)
	_, err = r.Stop(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, _, err = run(t, "--config", path, "recordings", "list")
	require.NoError(t, err)
	assert.Contains(t, out, rec.ID+"\tdemo\t")
	assert.Contains(t, out, "\t0\tstopped")

	out, _, err = run(t, "--config", path, "recordings", "export", rec.ID)
	require.NoError(t, err)
	assert.Empty(t, out, "a recording without frames exports nothing")

	_, _, err = run(t, "--config", path, "recordings", "delete", "nope")
	assert.ErrorIs(t, err, recording.ErrInvalidID)

	out, _, err = run(t, "--config", path, "recordings", "delete", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "OK: deleted "+rec.ID+"\n", out)

	_, _, err = run(t, "--config", path, "recordings", "delete", rec.ID)
	assert.ErrorIs(t, err, recording.ErrRecordingNotFound)
}

func TestFetchExport(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/lens/export" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("format") == "graphviz" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"no snapshot yet","code":"NO_SNAPSHOT"}`))
			return
		}
		_, _ = w.Write([]byte("@startuml\n@enduml\n"))
	}))
	defer ts.Close()

	var buf bytes.Buffer
	require.NoError(t, fetchExport(context.Background(), ts.URL, diagram.FormatPlantUML, &buf))
	assert.Equal(t, "@startuml\n@enduml\n", buf.String())

	err := fetchExport(context.Background(), ts.URL, diagram.FormatGraphViz, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NO_SNAPSHOT")
}
