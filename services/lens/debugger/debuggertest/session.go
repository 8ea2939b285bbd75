// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package debuggertest provides an in-memory debugger.Session for tests.
package debuggertest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/objectlens/services/lens/debugger"
)

// ErrUnknownReference is returned for a variables reference with no entry.
var ErrUnknownReference = errors.New("unknown variables reference")

// Session is a scripted debugger.Session.
//
// Frames, scopes and variables are registered up front; failures can be
// injected per reference. Every method is safe for concurrent use.
type Session struct {
	mu        sync.RWMutex
	frames    map[int][]debugger.StackFrame
	scopes    map[int][]debugger.Scope
	variables map[int][]debugger.Variable
	failing   map[int]error
	traceErr  error
	hook      func(ref int)

	// Calls counts every request served.
	Calls atomic.Int64
}

// New returns an empty scripted session.
func New() *Session {
	return &Session{
		frames:    make(map[int][]debugger.StackFrame),
		scopes:    make(map[int][]debugger.Scope),
		variables: make(map[int][]debugger.Variable),
		failing:   make(map[int]error),
	}
}

// SetFrames registers the stack trace returned for a thread.
func (s *Session) SetFrames(threadID int, frames ...debugger.StackFrame) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[threadID] = frames
	return s
}

// SetScopes registers the scopes returned for a frame.
func (s *Session) SetScopes(frameID int, scopes ...debugger.Scope) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[frameID] = scopes
	return s
}

// SetVariables registers the children of a variables reference.
func (s *Session) SetVariables(ref int, vars ...debugger.Variable) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variables[ref] = vars
	return s
}

// Fail makes every Variables or Scopes request for id return err.
func (s *Session) Fail(id int, err error) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[id] = err
	return s
}

// FailStackTrace makes StackTrace return err.
func (s *Session) FailStackTrace(err error) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traceErr = err
	return s
}

// OnVariables installs a hook run before each Variables request.
func (s *Session) OnVariables(hook func(ref int)) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
	return s
}

// StackTrace implements debugger.Session.
func (s *Session) StackTrace(ctx context.Context, threadID int) ([]debugger.StackFrame, error) {
	s.Calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.traceErr != nil {
		return nil, s.traceErr
	}
	return append([]debugger.StackFrame(nil), s.frames[threadID]...), nil
}

// Scopes implements debugger.Session.
func (s *Session) Scopes(ctx context.Context, frameID int) ([]debugger.Scope, error) {
	s.Calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.failing[frameID]; ok {
		return nil, err
	}
	return append([]debugger.Scope(nil), s.scopes[frameID]...), nil
}

// Variables implements debugger.Session.
func (s *Session) Variables(ctx context.Context, ref int) ([]debugger.Variable, error) {
	s.Calls.Add(1)
	s.mu.RLock()
	hook := s.hook
	s.mu.RUnlock()
	if hook != nil {
		hook(ref)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.failing[ref]; ok {
		return nil, err
	}
	vars, ok := s.variables[ref]
	if !ok {
		return nil, ErrUnknownReference
	}
	return append([]debugger.Variable(nil), vars...), nil
}
