// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"fmt"

	"github.com/AleutianAI/objectlens/services/lens/history"
	"github.com/AleutianAI/objectlens/services/lens/render"
)

// Outgoing panel command names, besides the render.CommandKind values.
const (
	CommandUpdateStackFrames   = "updateStackFrames"
	CommandDeselectStackFrames = "deselectStackFrames"
	CommandNotification        = "notification"
)

// Incoming panel command names.
const (
	CommandStepBack         = "stepBack"
	CommandStepForward      = "stepForward"
	CommandSelectStackFrame = "selectStackFrame"
	CommandCreateCluster    = "createCluster"
	CommandOpenCluster      = "openCluster"
	CommandOpenAllClusters  = "openAllClusters"
	CommandHideNode         = "hideNode"
	CommandShowAllNodes     = "showAllNodes"
)

// NotificationLostConnection is the notification kind published when the
// debug session stops answering.
const NotificationLostConnection = "lost-connection"

// Notification is a user-facing status message.
type Notification struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Message is one command sent to the panel.
//
// Command is a render.CommandKind for rendering area commands, or one of
// the Command* constants above.
type Message struct {
	Command       string        `json:"command"`
	View          render.View   `json:"view,omitempty"`
	Data          any           `json:"data,omitempty"`
	StackFrames   []string      `json:"stackFrames,omitempty"`
	SelectedFrame int           `json:"selectedFrame,omitempty"`
	Notification  *Notification `json:"notification,omitempty"`
}

func renderMessage(cmd render.Command) Message {
	return Message{Command: string(cmd.Kind), View: cmd.View, Data: cmd.Data}
}

func stackFramesMessage(names []string, selected int) Message {
	return Message{Command: CommandUpdateStackFrames, StackFrames: names, SelectedFrame: selected}
}

// Publisher delivers messages to the panel.
//
// Publish must not block for long; it is called with the controller's
// lock held so messages arrive in order.
type Publisher interface {
	Publish(ctx context.Context, msg Message)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg Message)

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, msg Message) {
	f(ctx, msg)
}

// Capturer receives every snapshot appended to history, such as a
// recorder.
type Capturer interface {
	Capture(ctx context.Context, snap history.Snapshot) error
}

// PanelMessage is one command received from the panel.
//
// Index is used by selectStackFrame (-1 selects the top frame); NodeID by
// createCluster, openCluster and hideNode.
type PanelMessage struct {
	Command string `json:"command"`
	Index   int    `json:"index,omitempty"`
	NodeID  string `json:"nodeId,omitempty"`
}

// Validate checks that the message carries the fields its command needs.
func (m PanelMessage) Validate() error {
	switch m.Command {
	case CommandStepBack, CommandStepForward, CommandOpenAllClusters, CommandShowAllNodes, CommandSelectStackFrame:
		return nil
	case CommandCreateCluster, CommandOpenCluster, CommandHideNode:
		if m.NodeID == "" {
			return fmt.Errorf("%s: nodeId is required", m.Command)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, m.Command)
	}
}
