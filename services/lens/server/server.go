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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/objectlens/services/lens/diagram"
	"github.com/AleutianAI/objectlens/services/lens/recording"
	"github.com/AleutianAI/objectlens/services/lens/session"
)

// Controller is the session surface the server drives.
type Controller interface {
	PanelHandler
	Export(ctx context.Context, f diagram.Format, w io.Writer) error
	State() session.State
}

// Recorder starts and stops recordings.
type Recorder interface {
	Start(ctx context.Context, name string) (recording.Recording, error)
	Stop(ctx context.Context) (recording.Recording, error)
	Active() (recording.Recording, bool)
}

// Config wires a Server.
type Config struct {
	// Controller handles panel interactions and exports. Required.
	Controller Controller

	// Hub carries published messages to panels. Required; it must be the
	// publisher the controller was built with.
	Hub *Hub

	// Recorder and Store enable the recording routes when both are set.
	Recorder Recorder
	Store    recording.Store

	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer

	// ServiceName names the otelgin spans. Defaults to "objectlens".
	ServiceName string

	// AllowedOrigins restricts websocket origins. Empty allows any.
	AllowedOrigins []string

	// Debug enables gin's request logger.
	Debug bool

	Logger *slog.Logger
}

// Server is the HTTP and websocket front of a debug session.
//
// # Thread Safety
//
// Safe for concurrent use once constructed.
type Server struct {
	cfg      Config
	router   *gin.Engine
	upgrader websocket.Upgrader
	logger   *slog.Logger
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// New builds the router.
//
// # Outputs
//
//   - *Server: Ready to serve.
//   - error: ErrNilController or ErrNilHub.
func New(cfg Config) (*Server, error) {
	if cfg.Controller == nil {
		return nil, ErrNilController
	}
	if cfg.Hub == nil {
		return nil, ErrNilHub
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "objectlens"
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{cfg: cfg, logger: logger, baseCtx: ctx, cancel: cancel}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     s.checkOrigin,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Debug {
		router.Use(gin.Logger())
	}
	router.Use(otelgin.Middleware(cfg.ServiceName))
	s.registerRoutes(router)
	s.router = router
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and disconnects every panel.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("objectlens server listening", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down objectlens server")
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// Close disconnects every panel and ends their handlers.
func (s *Server) Close() {
	s.cancel()
	s.cfg.Hub.Close()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, r.Header.Get("Origin"))
}

func (s *Server) recordingEnabled() bool {
	return s.cfg.Recorder != nil && s.cfg.Store != nil
}
