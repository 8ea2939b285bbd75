// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recording

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/objectlens/services/lens/diagram"
	"github.com/AleutianAI/objectlens/services/lens/graph"
	"github.com/AleutianAI/objectlens/services/lens/history"
	"github.com/AleutianAI/objectlens/services/lens/observability"
)

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRecorderMetrics counts captured frames.
func WithRecorderMetrics(m *observability.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// Recorder captures snapshots into a Store while a recording is active.
//
// # Description
//
// Start and Stop form a two-state machine; starting twice or stopping
// while idle are errors. Capture is a no-op while idle so the recorder can
// stay attached to the session controller permanently.
//
// # Thread Safety
//
// Safe for concurrent use.
type Recorder struct {
	store   Store
	now     func() time.Time
	logger  *slog.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	active *Recording
	next   int
}

// NewRecorder creates an idle recorder writing to store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins a new recording.
//
// # Outputs
//
//   - Recording: The saved recording with a fresh UUID.
//   - error: ErrAlreadyRecording, or a store failure.
func (r *Recorder) Start(ctx context.Context, name string) (Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return Recording{}, fmt.Errorf("%w: %s", ErrAlreadyRecording, r.active.ID)
	}

	rec := Recording{ID: uuid.NewString(), Name: name, CreatedAt: r.now().UTC()}
	if rec.Name == "" {
		rec.Name = rec.CreatedAt.Format("2006-01-02 15:04:05")
	}
	if err := r.store.SaveRecording(ctx, rec); err != nil {
		return Recording{}, fmt.Errorf("saving recording: %w", err)
	}
	r.active = &rec
	r.next = 0
	r.logger.Info("recording started", slog.String("recording_id", rec.ID), slog.String("name", rec.Name))
	return rec, nil
}

// Stop ends the active recording.
//
// # Outputs
//
//   - Recording: The stopped recording with its frame count.
//   - error: ErrNotRecording, or a store failure. On a store failure the
//     recording stays active.
func (r *Recorder) Stop(ctx context.Context) (Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return Recording{}, ErrNotRecording
	}

	rec := *r.active
	stopped := r.now().UTC()
	rec.StoppedAt = &stopped
	rec.FrameCount = r.next
	if err := r.store.SaveRecording(ctx, rec); err != nil {
		return Recording{}, fmt.Errorf("saving recording: %w", err)
	}
	r.active = nil
	r.logger.Info("recording stopped", slog.String("recording_id", rec.ID), slog.Int("frames", rec.FrameCount))
	return rec, nil
}

// IsRecording reports whether a recording is active.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Active returns the active recording, if any.
func (r *Recorder) Active() (Recording, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return Recording{}, false
	}
	rec := *r.active
	rec.FrameCount = r.next
	return rec, true
}

// Capture stores the top frame of snap as the next frame of the active
// recording. It does nothing while idle.
func (r *Recorder) Capture(ctx context.Context, snap history.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil
	}

	top, ok := snap.Frame(0)
	if !ok {
		top = history.FrameGraph{Graph: graph.Empty()}
	}
	d, err := diagram.NewReader(diagram.WithStackFrameName(top.Name)).Read(top.Graph)
	if err != nil {
		return fmt.Errorf("reading diagram: %w", err)
	}

	frame := Frame{
		Index:      r.next,
		CapturedAt: r.now().UTC(),
		ThreadID:   snap.ThreadID,
		FrameName:  top.Name,
		Diagram:    d,
	}
	if err := r.store.AppendFrame(ctx, r.active.ID, frame); err != nil {
		return fmt.Errorf("appending frame: %w", err)
	}
	r.next++
	r.metrics.RecordFrame()
	return nil
}
