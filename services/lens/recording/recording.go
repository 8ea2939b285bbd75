// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package recording captures stop-by-stop diagrams of a debug session and
// stores them for later export.
//
// A Recorder is attached to the session controller as a capturer. While a
// recording is active every appended snapshot becomes one Frame holding the
// diagram of the top stack frame. Recordings live in a Store; BadgerStore
// keeps them on local disk and RedisStore in a shared Redis.
package recording

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"

	"github.com/AleutianAI/objectlens/services/lens/diagram"
)

var (
	// ErrAlreadyRecording is returned by Start while a recording is active.
	ErrAlreadyRecording = errors.New("recording already running")

	// ErrNotRecording is returned by Stop when no recording is active.
	ErrNotRecording = errors.New("recording not running")

	// ErrRecordingNotFound is returned for an unknown recording ID.
	ErrRecordingNotFound = errors.New("recording not found")

	// ErrInvalidID is returned for an ID that is not a UUID.
	ErrInvalidID = errors.New("invalid recording id")
)

// Recording describes one recorded session span.
type Recording struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"createdAt"`
	StoppedAt  *time.Time `json:"stoppedAt,omitempty"`
	FrameCount int        `json:"frameCount"`
}

// Active reports whether the recording has not been stopped.
func (r Recording) Active() bool {
	return r.StoppedAt == nil
}

// Frame is the diagram of one stop.
type Frame struct {
	Index      int              `json:"index"`
	CapturedAt time.Time        `json:"capturedAt"`
	ThreadID   int              `json:"threadId"`
	FrameName  string           `json:"frameName"`
	Diagram    *diagram.Diagram `json:"diagram"`
}

// Store persists recordings and their frames.
//
// # Description
//
// Frames are returned in index order and recordings in creation order.
// AppendFrame and Frames return ErrRecordingNotFound for an unknown
// recording.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	SaveRecording(ctx context.Context, rec Recording) error
	AppendFrame(ctx context.Context, id string, frame Frame) error
	GetRecording(ctx context.Context, id string) (Recording, error)
	ListRecordings(ctx context.Context) ([]Recording, error)
	Frames(ctx context.Context, id string) ([]Frame, error)
	DeleteRecording(ctx context.Context, id string) error
	Close() error
}

func encode(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func decode(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}
