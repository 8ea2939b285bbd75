// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AleutianAI/objectlens/services/lens/diagram"
	"github.com/AleutianAI/objectlens/services/lens/diff"
	"github.com/AleutianAI/objectlens/services/lens/graph"
)

// ErrUnknownView is returned for a view name that is not supported.
var ErrUnknownView = errors.New("unknown view")

// View selects the panel vocabulary.
type View string

const (
	ViewNetwork View = "network"
	ViewDiagram View = "diagram"
)

// ParseView validates a view name. The empty string selects the network view.
func ParseView(s string) (View, error) {
	switch View(s) {
	case "", ViewNetwork:
		return ViewNetwork, nil
	case ViewDiagram:
		return ViewDiagram, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownView, s)
	}
}

// CommandKind names a panel command.
type CommandKind string

const (
	CommandInitialize CommandKind = "initializeRenderingArea"
	CommandUpdate     CommandKind = "updateRenderingArea"
)

// Command is one message for the panel's rendering area.
//
// Data holds NetworkInit, NetworkUpdate, DiagramInit or DiagramUpdate
// depending on View and Kind.
type Command struct {
	Kind CommandKind `json:"command"`
	View View        `json:"view"`
	Data any         `json:"data"`
}

// DiagramInit is the payload of a diagram initialize command.
type DiagramInit struct {
	Diagram *diagram.Diagram `json:"diagram"`
	Style   Style            `json:"style"`
}

// DiagramUpdate is the payload of a diagram update command.
type DiagramUpdate struct {
	Delta diff.Delta `json:"delta"`
}

// Renderer produces panel commands for consecutive graphs.
//
// # Description
//
// Next returns an initialize command when there is no previous graph or
// the style changed since the last command, and an update command
// otherwise.
//
// # Thread Safety
//
// Safe for concurrent use.
type Renderer struct {
	mu       sync.Mutex
	view     View
	style    Style
	outdated bool
	reader   *diagram.Reader
}

// NewRenderer creates a renderer for one view.
func NewRenderer(view View, style Style, opts ...diagram.ReaderOption) *Renderer {
	return &Renderer{
		view:   view,
		style:  style,
		reader: diagram.NewReader(opts...),
	}
}

// View returns the renderer's view.
func (r *Renderer) View() View {
	return r.view
}

// Style returns the current style.
func (r *Renderer) Style() Style {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.style
}

// SetStyle replaces the style. The next command is an initialize command.
func (r *Renderer) SetStyle(style Style) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.style = style
	r.outdated = true
}

// Next returns the command that moves the panel from prev to next.
//
// # Inputs
//
//   - prev: The graph the panel currently shows. Nil if none.
//   - next: The graph to show. Nil is drawn as an empty graph.
//
// # Outputs
//
//   - Command: Initialize or update command.
//   - error: Non-nil when the diagram projection of either graph fails.
func (r *Renderer) Next(prev, next *graph.Graph) (Command, error) {
	r.mu.Lock()
	initialize := prev == nil || r.outdated
	r.outdated = false
	style := r.style
	r.mu.Unlock()

	if next == nil {
		next = graph.Empty()
	}

	switch r.view {
	case ViewDiagram:
		return r.nextDiagram(prev, next, style, initialize)
	default:
		if initialize {
			return Command{Kind: CommandInitialize, View: ViewNetwork, Data: NetworkInitFor(next, style)}, nil
		}
		return Command{Kind: CommandUpdate, View: ViewNetwork, Data: NetworkChanges(prev, next, style)}, nil
	}
}

func (r *Renderer) nextDiagram(prev, next *graph.Graph, style Style, initialize bool) (Command, error) {
	nextDiagram, err := r.reader.Read(next)
	if err != nil {
		return Command{}, fmt.Errorf("reading next diagram: %w", err)
	}
	if initialize {
		return Command{
			Kind: CommandInitialize,
			View: ViewDiagram,
			Data: DiagramInit{Diagram: nextDiagram, Style: style},
		}, nil
	}

	prevDiagram, err := r.reader.Read(prev)
	if err != nil {
		return Command{}, fmt.Errorf("reading previous diagram: %w", err)
	}
	delta, err := diff.Diff(prevDiagram, nextDiagram)
	if err != nil {
		return Command{}, fmt.Errorf("diffing diagrams: %w", err)
	}
	return Command{Kind: CommandUpdate, View: ViewDiagram, Data: DiagramUpdate{Delta: delta}}, nil
}
