// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/objectlens/services/lens/diagram"
	"github.com/AleutianAI/objectlens/services/lens/observability"
	"github.com/AleutianAI/objectlens/services/lens/recording"
	"github.com/AleutianAI/objectlens/services/lens/session"
	"github.com/AleutianAI/objectlens/services/lens/storage/badger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeController replays a fixed command through the hub and records the
// panel messages it receives.
type fakeController struct {
	hub      *Hub
	received chan session.PanelMessage
	export   string
	noSnap   bool
}

func newFakeController(hub *Hub) *fakeController {
	return &fakeController{hub: hub, received: make(chan session.PanelMessage, 8), export: "@startuml\n@enduml\n"}
}

func (f *fakeController) HandlePanelMessage(_ context.Context, msg session.PanelMessage) error {
	f.received <- msg
	if err := msg.Validate(); err != nil {
		return err
	}
	return nil
}

func (f *fakeController) Replay(ctx context.Context) error {
	f.hub.Publish(ctx, session.Message{Command: "initializeRenderingArea", View: "network"})
	return nil
}

func (f *fakeController) Export(_ context.Context, format diagram.Format, w io.Writer) error {
	if f.noSnap {
		return session.ErrNoSnapshot
	}
	_, err := fmt.Fprintf(w, "%s%s", f.export, format)
	return err
}

func (f *fakeController) State() session.State {
	return session.State{Snapshots: 2, Live: true, Cursor: 1, StackFrames: []string{"main"}}
}

type fixture struct {
	server *Server
	ctrl   *fakeController
	hub    *Hub
	store  *recording.BadgerStore
	reg    *prometheus.Registry
}

func newFixture(t *testing.T, withRecording bool) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	hub := NewHub(WithHubMetrics(metrics))
	ctrl := newFakeController(hub)
	cfg := Config{Controller: ctrl, Hub: hub, Gatherer: reg}

	f := &fixture{ctrl: ctrl, hub: hub, reg: reg}
	if withRecording {
		store, err := recording.OpenBadgerStore(badger.InMemoryConfig())
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		f.store = store
		cfg.Store = store
		cfg.Recorder = recording.NewRecorder(store, recording.WithRecorderMetrics(metrics))
	}

	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	f.server = s
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Hub: NewHub()})
	assert.ErrorIs(t, err, ErrNilController)
	_, err = New(Config{Controller: newFakeController(nil)})
	assert.ErrorIs(t, err, ErrNilHub)
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, Version, resp.Version)
	assert.Zero(t, resp.Clients)
}

func TestHandleMetrics(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "objectlens_")
}

func TestHandleState(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(http.MethodGet, "/v1/lens/state", "")
	require.Equal(t, http.StatusOK, w.Code)

	var st session.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Snapshots)
	assert.Equal(t, []string{"main"}, st.StackFrames)
}

func TestHandleExport(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name       string
		query      string
		noSnap     bool
		wantStatus int
		wantBody   string
		wantCode   string
	}{
		{name: "default plantuml", query: "", wantStatus: http.StatusOK, wantBody: "@startuml\n@enduml\nplantuml"},
		{name: "graphviz alias", query: "?format=dot", wantStatus: http.StatusOK, wantBody: "@startuml\n@enduml\ngraphviz"},
		{name: "unknown format", query: "?format=svg", wantStatus: http.StatusBadRequest, wantCode: "UNKNOWN_FORMAT"},
		{name: "no snapshot", query: "", noSnap: true, wantStatus: http.StatusNotFound, wantCode: "NO_SNAPSHOT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.ctrl.noSnap = tt.noSnap
			w := f.do(http.MethodGet, "/v1/lens/export"+tt.query, "")
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
				return
			}
			assert.Equal(t, tt.wantBody, w.Body.String())
			assert.Contains(t, w.Header().Get("Content-Disposition"), "frame.")
		})
	}
}

func TestRecordingRoutesDisabled(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(http.MethodGet, "/v1/lens/recordings", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordingLifecycle(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(http.MethodPost, "/v1/lens/recording/stop", "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NOT_RECORDING", decodeError(t, w).Code)

	w = f.do(http.MethodGet, "/v1/lens/recording", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/v1/lens/recording/start", `{"name":"bug-42"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var rec recording.Recording
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "bug-42", rec.Name)
	require.NoError(t, recording.ValidateID(rec.ID))

	w = f.do(http.MethodPost, "/v1/lens/recording/start", "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_RECORDING", decodeError(t, w).Code)

	w = f.do(http.MethodDelete, "/v1/lens/recordings/"+rec.ID, "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "RECORDING_ACTIVE", decodeError(t, w).Code)

	w = f.do(http.MethodGet, "/v1/lens/recording", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/v1/lens/recording/stop", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/v1/lens/recordings", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []recording.Recording
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
	assert.NotNil(t, list[0].StoppedAt)

	w = f.do(http.MethodGet, "/v1/lens/recordings/"+rec.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/v1/lens/recordings/"+rec.ID+"/export?format=graphviz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), rec.ID+".dot")

	w = f.do(http.MethodGet, "/v1/lens/recordings/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", decodeError(t, w).Code)

	w = f.do(http.MethodDelete, "/v1/lens/recordings/"+rec.ID, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodGet, "/v1/lens/recordings/"+rec.ID, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RECORDING_NOT_FOUND", decodeError(t, w).Code)
}

func TestHandleStartRecording_InvalidBody(t *testing.T) {
	f := newFixture(t, true)
	w := f.do(http.MethodPost, "/v1/lens/recording/start", `{"name":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, w).Code)
}

func dial(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(f.server.Handler())
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/lens/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) session.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg session.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocket_ReplayAndPanelMessages(t *testing.T) {
	f := newFixture(t, false)
	conn := dial(t, f)

	msg := readMessage(t, conn)
	assert.Equal(t, "initializeRenderingArea", msg.Command)
	assert.Equal(t, 1, f.hub.Clients())
	assert.Equal(t, float64(1), connectedClients(t, f.reg))

	require.NoError(t, conn.WriteJSON(session.PanelMessage{Command: session.CommandHideNode, NodeID: "object_Point@7"}))
	select {
	case got := <-f.ctrl.received:
		assert.Equal(t, session.PanelMessage{Command: session.CommandHideNode, NodeID: "object_Point@7"}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("panel message not delivered")
	}

	require.NoError(t, conn.WriteJSON(session.PanelMessage{Command: "launchMissiles"}))
	<-f.ctrl.received
	msg = readMessage(t, conn)
	assert.Equal(t, session.CommandNotification, msg.Command)
	require.NotNil(t, msg.Notification)
	assert.Equal(t, "error", msg.Notification.Kind)
	assert.Contains(t, msg.Notification.Message, "launchMissiles")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg = readMessage(t, conn)
	assert.Equal(t, session.CommandNotification, msg.Command)
	assert.Contains(t, msg.Notification.Message, "invalid panel message")
}

func connectedClients(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "objectlens_server_connected_clients" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("connected clients gauge not registered")
	return 0
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) entries(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestHub_LogsStructuredAttributes(t *testing.T) {
	logs := &syncBuffer{}
	reg := prometheus.NewRegistry()
	hub := NewHub(
		WithHubMetrics(observability.NewMetrics(reg)),
		WithHubLogger(slog.New(slog.NewJSONHandler(logs, nil))),
	)
	ctrl := newFakeController(hub)
	s, err := New(Config{Controller: ctrl, Hub: hub, Gatherer: reg})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	conn := dial(t, &fixture{server: s, ctrl: ctrl, hub: hub, reg: reg})
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(session.PanelMessage{Command: "launchMissiles"}))
	<-ctrl.received
	assert.Equal(t, session.CommandNotification, readMessage(t, conn).Command)

	var found map[string]any
	for _, entry := range logs.entries(t) {
		if entry["msg"] == "panel message failed" {
			found = entry
		}
	}
	require.NotNil(t, found, "failure was not logged")
	assert.Equal(t, "launchMissiles", found["command"])
	assert.NotEmpty(t, found["client_id"])
	assert.IsType(t, "", found["error"])
}

func TestHub_BroadcastAndClose(t *testing.T) {
	f := newFixture(t, false)
	first := dial(t, f)
	second := dial(t, f)
	readMessage(t, first)
	readMessage(t, first)
	readMessage(t, second)
	require.Eventually(t, func() bool { return f.hub.Clients() == 2 }, 5*time.Second, 10*time.Millisecond)

	f.hub.Publish(context.Background(), session.Message{Command: session.CommandDeselectStackFrames})
	assert.Equal(t, session.CommandDeselectStackFrames, readMessage(t, first).Command)
	assert.Equal(t, session.CommandDeselectStackFrames, readMessage(t, second).Command)

	f.server.Close()
	assert.Zero(t, f.hub.Clients())
	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)
}

func TestListenAndServe_Shutdown(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

var _ Controller = (*fakeController)(nil)
