// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes a debug session's visualization over HTTP: a
// websocket that streams render commands to panels and accepts their
// interactions, diagram export, and the recording API.
package server

import (
	"errors"
)

// Version is the objectlens server version reported by /health.
const Version = "0.3.0"

var (
	// ErrNilController is returned when a server is built without a controller.
	ErrNilController = errors.New("controller must not be nil")

	// ErrNilHub is returned when a server is built without a hub.
	ErrNilHub = errors.New("hub must not be nil")
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Clients int    `json:"clients"`
}

// StartRecordingRequest is the body of POST /v1/lens/recording/start.
type StartRecordingRequest struct {
	Name string `json:"name" binding:"max=128"`
}
