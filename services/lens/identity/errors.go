// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package identity assigns stable node IDs to raw debugger variables.
//
// Objects are identified by the reference signature the debug adapter
// reports as their value, so re-inspecting the same live object at a later
// stop yields the same ID. Everything without a runtime identity is
// identified by a content hash.
package identity

import "errors"

var (
	// ErrIDCollision is returned when one ID is issued for two different
	// node kinds within a build pass.
	ErrIDCollision = errors.New("node id collision")

	// ErrInvalidProfile is returned for a type profile without primitives.
	ErrInvalidProfile = errors.New("invalid type profile")
)
