// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session drives the object graph engine from debugger events and
// panel messages.
//
// The Controller is the boundary component. It turns stop events into
// snapshot graphs, keeps them in history, applies the user's view state
// (selected frame, collapsed clusters, hidden nodes) and publishes panel
// commands. Stop events race: every stop bumps a generation counter and a
// build that finishes after a newer stop is discarded.
package session

import "errors"

var (
	// ErrStaleBuild marks a build superseded by a newer stop event. It is
	// counted and logged, never returned to callers of HandleStopped.
	ErrStaleBuild = errors.New("build superseded by a newer stop")

	// ErrLostConnection is returned when the stack trace cannot be fetched.
	ErrLostConnection = errors.New("lost connection to debug session")

	// ErrNoSnapshot is returned by operations that need a snapshot before
	// the first stop.
	ErrNoSnapshot = errors.New("no snapshot available")

	// ErrUnknownCommand is returned for a panel message with an
	// unsupported command.
	ErrUnknownCommand = errors.New("unknown panel command")

	// ErrNilPublisher is returned by NewController without a publisher.
	ErrNilPublisher = errors.New("publisher must not be nil")
)
