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
	"github.com/gin-gonic/gin"
)

// registerRoutes mounts every endpoint.
//
//	GET    /health
//	GET    /metrics
//	GET    /v1/lens/ws
//	GET    /v1/lens/state
//	GET    /v1/lens/export?format=plantuml|graphviz
//	POST   /v1/lens/recording/start
//	POST   /v1/lens/recording/stop
//	GET    /v1/lens/recording
//	GET    /v1/lens/recordings
//	GET    /v1/lens/recordings/:id
//	GET    /v1/lens/recordings/:id/export
//	DELETE /v1/lens/recordings/:id
func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.HandleHealth)
	router.GET("/metrics", s.HandleMetrics)

	v1 := router.Group("/v1")
	lens := v1.Group("/lens")
	{
		lens.GET("/ws", s.HandleWebSocket)
		lens.GET("/state", s.HandleState)
		lens.GET("/export", s.HandleExport)

		if !s.recordingEnabled() {
			return
		}

		rec := lens.Group("/recording")
		{
			rec.POST("/start", s.HandleStartRecording)
			rec.POST("/stop", s.HandleStopRecording)
			rec.GET("", s.HandleActiveRecording)
		}

		recs := lens.Group("/recordings")
		{
			recs.GET("", s.HandleListRecordings)
			recs.GET("/:id", s.HandleGetRecording)
			recs.GET("/:id/export", s.HandleExportRecording)
			recs.DELETE("/:id", s.HandleDeleteRecording)
		}
	}
}
