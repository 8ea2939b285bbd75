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
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/objectlens/services/lens/diagram"
	"github.com/AleutianAI/objectlens/services/lens/recording"
	"github.com/AleutianAI/objectlens/services/lens/session"
	"github.com/AleutianAI/objectlens/services/lens/telemetry"
)

// HandleHealth handles GET /health.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: Version,
		Clients: s.cfg.Hub.Clients(),
	})
}

// HandleMetrics handles GET /metrics.
func (s *Server) HandleMetrics(c *gin.Context) {
	promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}

// HandleWebSocket handles GET /v1/lens/ws.
//
// # Description
//
// Upgrades the request and serves the panel until it disconnects. The
// new panel immediately receives the stack frames and a full
// initialization of the selected frame.
func (s *Server) HandleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	s.cfg.Hub.Serve(s.baseCtx, conn, s.cfg.Controller)
}

// HandleState handles GET /v1/lens/state.
func (s *Server) HandleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Controller.State())
}

// HandleExport handles GET /v1/lens/export.
//
// # Description
//
// Writes the selected stack frame as a diagram. The format query
// parameter defaults to plantuml.
//
// # Response
//
//	200 OK: diagram text
//	400 Bad Request: unknown format
//	404 Not Found: no snapshot yet
func (s *Server) HandleExport(c *gin.Context) {
	format, ok := s.parseFormat(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := s.cfg.Controller.Export(c.Request.Context(), format, &buf); err != nil {
		if errors.Is(err, session.ErrNoSnapshot) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NO_SNAPSHOT"})
			return
		}
		s.logger.Error("export failed", slog.String("format", string(format)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "EXPORT_FAILED"})
		return
	}
	writeDiagram(c, "frame", format, buf.Bytes())
}

// HandleStartRecording handles POST /v1/lens/recording/start.
//
// # Response
//
//	201 Created: recording.Recording
//	400 Bad Request: invalid body
//	409 Conflict: already recording
func (s *Server) HandleStartRecording(c *gin.Context) {
	var req StartRecordingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
			return
		}
	}

	rec, err := s.cfg.Recorder.Start(c.Request.Context(), req.Name)
	if err != nil {
		if errors.Is(err, recording.ErrAlreadyRecording) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "ALREADY_RECORDING"})
			return
		}
		s.internalError(c, "start recording", err)
		return
	}
	s.logger.Info("recording started", slog.String("recording_id", rec.ID), slog.String("name", rec.Name))
	c.JSON(http.StatusCreated, rec)
}

// HandleStopRecording handles POST /v1/lens/recording/stop.
func (s *Server) HandleStopRecording(c *gin.Context) {
	rec, err := s.cfg.Recorder.Stop(c.Request.Context())
	if err != nil {
		if errors.Is(err, recording.ErrNotRecording) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "NOT_RECORDING"})
			return
		}
		s.internalError(c, "stop recording", err)
		return
	}
	s.logger.Info("recording stopped", slog.String("recording_id", rec.ID), slog.Int("frames", rec.FrameCount))
	c.JSON(http.StatusOK, rec)
}

// HandleActiveRecording handles GET /v1/lens/recording.
func (s *Server) HandleActiveRecording(c *gin.Context) {
	rec, ok := s.cfg.Recorder.Active()
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: recording.ErrNotRecording.Error(), Code: "NOT_RECORDING"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandleListRecordings handles GET /v1/lens/recordings.
func (s *Server) HandleListRecordings(c *gin.Context) {
	recs, err := s.cfg.Store.ListRecordings(c.Request.Context())
	if err != nil {
		s.internalError(c, "list recordings", err)
		return
	}
	if recs == nil {
		recs = []recording.Recording{}
	}
	c.JSON(http.StatusOK, recs)
}

// HandleGetRecording handles GET /v1/lens/recordings/:id.
func (s *Server) HandleGetRecording(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}
	rec, err := s.cfg.Store.GetRecording(c.Request.Context(), id)
	if err != nil {
		s.recordingError(c, "get recording", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandleExportRecording handles GET /v1/lens/recordings/:id/export.
func (s *Server) HandleExportRecording(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}
	format, ok := s.parseFormat(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := recording.Export(c.Request.Context(), s.cfg.Store, id, format, &buf); err != nil {
		s.recordingError(c, "export recording", err)
		return
	}
	writeDiagram(c, id, format, buf.Bytes())
}

// HandleDeleteRecording handles DELETE /v1/lens/recordings/:id.
func (s *Server) HandleDeleteRecording(c *gin.Context) {
	id, ok := recordingID(c)
	if !ok {
		return
	}
	if active, on := s.cfg.Recorder.Active(); on && active.ID == id {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "recording is in progress", Code: "RECORDING_ACTIVE"})
		return
	}
	if err := s.cfg.Store.DeleteRecording(c.Request.Context(), id); err != nil {
		s.recordingError(c, "delete recording", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func recordingID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := recording.ValidateID(id); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_ID"})
		return "", false
	}
	return id, true
}

func (s *Server) parseFormat(c *gin.Context) (diagram.Format, bool) {
	format, err := diagram.ParseFormat(c.DefaultQuery("format", string(diagram.FormatPlantUML)))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "UNKNOWN_FORMAT"})
		return "", false
	}
	return format, true
}

func (s *Server) recordingError(c *gin.Context, op string, err error) {
	if errors.Is(err, recording.ErrRecordingNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "RECORDING_NOT_FOUND"})
		return
	}
	s.internalError(c, op, err)
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	telemetry.LoggerWithTrace(c.Request.Context(), s.logger).Error(op+" failed", slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "INTERNAL"})
}

func writeDiagram(c *gin.Context, name string, format diagram.Format, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s%s"`, name, format.Extension()))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", body)
}
