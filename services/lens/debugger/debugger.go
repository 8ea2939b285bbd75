// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package debugger defines the data a debug session hands to the object
// graph engine: stack frames, scopes, raw variables, and lifecycle events.
//
// The engine never talks to a debug adapter directly. Anything that can
// answer StackTrace, Scopes and Variables requests satisfies Session; the
// dap package provides the Debug Adapter Protocol implementation and
// debuggertest provides an in-memory one for tests.
package debugger

import (
	"context"
	"fmt"
)

// Variable is one raw variable as reported by the debug adapter.
//
// VariablesReference is zero when the variable has no children.
type Variable struct {
	Name               string            `json:"name"`
	Value              string            `json:"value"`
	Type               string            `json:"type,omitempty"`
	VariablesReference int               `json:"variablesReference"`
	PresentationHint   *PresentationHint `json:"presentationHint,omitempty"`
}

// PresentationHint carries the adapter's display hints for a variable.
type PresentationHint struct {
	Kind       string   `json:"kind,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
	Lazy       bool     `json:"lazy,omitempty"`
}

// IsLazy reports whether the variable is a lazy wrapper whose real value
// sits one Variables request further down.
func (v Variable) IsLazy() bool {
	return v.PresentationHint != nil && v.PresentationHint.Lazy && v.VariablesReference > 0
}

// HasChildren reports whether the variable can be expanded.
func (v Variable) HasChildren() bool {
	return v.VariablesReference > 0
}

// StackFrame is one frame of a thread's call stack.
type StackFrame struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
	Line   int    `json:"line,omitempty"`
}

// Scope is a named group of variables within a stack frame.
type Scope struct {
	Name               string `json:"name"`
	VariablesReference int    `json:"variablesReference"`
	Expensive          bool   `json:"expensive"`
}

// GlobalScopeName is excluded from root enumeration along with expensive scopes.
const GlobalScopeName = "Global"

// Inspectable reports whether the scope's variables are enumerated as graph roots.
func (s Scope) Inspectable() bool {
	return !s.Expensive && s.Name != GlobalScopeName
}

// Session is the request/response surface of a debug session.
//
// # Description
//
// Implementations may be called concurrently. Timeouts, if any, belong to
// the implementation; the engine only propagates ctx.
type Session interface {
	StackTrace(ctx context.Context, threadID int) ([]StackFrame, error)
	Scopes(ctx context.Context, frameID int) ([]Scope, error)
	Variables(ctx context.Context, variablesReference int) ([]Variable, error)
}

// EventKind enumerates the session lifecycle events the engine reacts to.
type EventKind int

const (
	EventInitialized EventKind = iota
	EventStopped
	EventContinued
	EventTerminated
	EventExited
)

// String returns the DAP event name for the kind.
func (k EventKind) String() string {
	switch k {
	case EventInitialized:
		return "initialized"
	case EventStopped:
		return "stopped"
	case EventContinued:
		return "continued"
	case EventTerminated:
		return "terminated"
	case EventExited:
		return "exited"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a session lifecycle notification.
type Event struct {
	Kind     EventKind
	ThreadID int
	Reason   string
}
