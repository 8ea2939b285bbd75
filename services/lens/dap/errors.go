// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dap implements debugger.Session over the Debug Adapter Protocol.
//
// A Client owns one connection to a debug adapter. Requests are written
// with monotonically increasing sequence numbers and matched to responses
// by request_seq; events are translated to debugger.Event values and
// delivered on a channel.
package dap

import "errors"

var (
	// ErrClosed is returned for requests on a closed client.
	ErrClosed = errors.New("dap client closed")

	// ErrRequestFailed is returned when the adapter answers success=false.
	ErrRequestFailed = errors.New("dap request failed")

	// ErrUnexpectedResponse is returned when a response has the wrong type
	// for its request.
	ErrUnexpectedResponse = errors.New("unexpected dap response")
)
