// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history keeps the snapshots taken at successive stop events and a
// cursor for stepping through them.
//
// Navigation only re-selects snapshots that were already built; it never
// causes a debug session request.
package history

import "github.com/AleutianAI/objectlens/services/lens/graph"

// Live is the cursor value meaning "the newest snapshot".
const Live = -1

// DefaultCapacity bounds the number of retained snapshots.
const DefaultCapacity = 500

// FrameGraph is the graph of one stack frame at one stop.
type FrameGraph struct {
	FrameID int
	Name    string
	Graph   *graph.Graph
}

// Snapshot holds every stack frame's graph from one stop, top frame first.
type Snapshot struct {
	ThreadID int
	Frames   []FrameGraph
}

// Frame returns frame i, or false when out of range.
func (s Snapshot) Frame(i int) (FrameGraph, bool) {
	if i < 0 || i >= len(s.Frames) {
		return FrameGraph{}, false
	}
	return s.Frames[i], true
}

// FrameNames lists the frame names top first.
func (s Snapshot) FrameNames() []string {
	names := make([]string, 0, len(s.Frames))
	for _, f := range s.Frames {
		names = append(names, f.Name)
	}
	return names
}

// Equal reports deep value equality of the frames' names and graphs.
//
// Frame IDs are excluded because adapters renumber frames at every stop.
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s.Frames) != len(o.Frames) {
		return false
	}
	for i := range s.Frames {
		if s.Frames[i].Name != o.Frames[i].Name || !s.Frames[i].Graph.Equal(o.Frames[i].Graph) {
			return false
		}
	}
	return true
}

// History is a bounded, append-only sequence of snapshots with a cursor.
//
// # Description
//
// The cursor is Live (-1) or the index of a retained snapshot, 0 being the
// oldest. When the capacity is exceeded the oldest snapshot is dropped.
// Eviction only happens on Append, which goes live, so a non-live cursor
// never points at a dropped snapshot.
//
// # Thread Safety
//
// NOT safe for concurrent use; caller must synchronize.
type History struct {
	buf    *RingBuffer[Snapshot]
	cursor int
}

// New creates a history retaining up to capacity snapshots.
func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		buf:    NewRingBuffer[Snapshot](capacity),
		cursor: Live,
	}
}

// Append adds s unless it equals the newest snapshot.
//
// # Outputs
//
//   - bool: True if s was appended. Appending moves the cursor to Live.
func (h *History) Append(s Snapshot) bool {
	if newest, ok := h.buf.PeekNewest(); ok && newest.Equal(s) {
		return false
	}
	h.buf.Push(s)
	h.cursor = Live
	return true
}

// StepBack selects the previous snapshot. No-op at the oldest one.
//
// # Outputs
//
//   - bool: True if the cursor moved.
func (h *History) StepBack() bool {
	switch {
	case h.buf.Len() < 2:
		return false
	case h.cursor == Live:
		h.cursor = h.buf.Len() - 2
		return true
	case h.cursor == 0:
		return false
	default:
		h.cursor--
		return true
	}
}

// StepForward selects the next snapshot. No-op when live. Reaching the
// newest snapshot makes the cursor Live again.
//
// # Outputs
//
//   - bool: True if the cursor moved.
func (h *History) StepForward() bool {
	if h.cursor == Live {
		return false
	}
	h.cursor++
	if h.cursor >= h.buf.Len()-1 {
		h.cursor = Live
	}
	return true
}

// GoLive resets the cursor to the newest snapshot.
func (h *History) GoLive() {
	h.cursor = Live
}

// Current returns the selected snapshot, or false when history is empty.
func (h *History) Current() (Snapshot, bool) {
	if h.cursor == Live {
		return h.buf.PeekNewest()
	}
	return h.buf.At(h.cursor)
}

// Latest returns the newest snapshot regardless of the cursor.
func (h *History) Latest() (Snapshot, bool) {
	return h.buf.PeekNewest()
}

// Cursor returns the cursor: Live or an index, 0 being the oldest.
func (h *History) Cursor() int {
	return h.cursor
}

// IsLive reports whether the newest snapshot is selected.
func (h *History) IsLive() bool {
	return h.cursor == Live
}

// Len returns the number of retained snapshots.
func (h *History) Len() int {
	return h.buf.Len()
}

// Snapshots returns the retained snapshots, oldest first.
func (h *History) Snapshots() []Snapshot {
	return h.buf.Slice()
}

// Reset discards every snapshot and goes live.
func (h *History) Reset() {
	h.buf.Clear()
	h.cursor = Live
}
