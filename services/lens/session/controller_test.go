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
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/objectlens/services/lens/builder"
	"github.com/AleutianAI/objectlens/services/lens/debugger"
	"github.com/AleutianAI/objectlens/services/lens/debugger/debuggertest"
	"github.com/AleutianAI/objectlens/services/lens/diagram"
	"github.com/AleutianAI/objectlens/services/lens/history"
	"github.com/AleutianAI/objectlens/services/lens/identity"
	"github.com/AleutianAI/objectlens/services/lens/render"
)

type sink struct {
	mu   sync.Mutex
	msgs []Message
}

func (s *sink) Publish(_ context.Context, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *sink) all() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

func (s *sink) last(t *testing.T) Message {
	t.Helper()
	msgs := s.all()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func (s *sink) count(command string) int {
	n := 0
	for _, m := range s.all() {
		if m.Command == command {
			n++
		}
	}
	return n
}

type captures struct {
	mu    sync.Mutex
	snaps []history.Snapshot
}

func (c *captures) Capture(_ context.Context, snap history.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, snap)
	return nil
}

// scripted returns a session with a two-frame stack on thread 1:
// main has n=3 and p -> Point@7 -> next Point@8; caller has argc=1.
func scripted() *debuggertest.Session {
	return debuggertest.New().
		SetFrames(1, debugger.StackFrame{ID: 1, Name: "main"}, debugger.StackFrame{ID: 2, Name: "caller"}).
		SetScopes(1, debugger.Scope{Name: "Locals", VariablesReference: 10}).
		SetScopes(2, debugger.Scope{Name: "Locals", VariablesReference: 20}).
		SetVariables(10,
			debugger.Variable{Name: "n", Type: "int", Value: "3"},
			debugger.Variable{Name: "p", Type: "Point", Value: "Point@7", VariablesReference: 11},
		).
		SetVariables(11,
			debugger.Variable{Name: "x", Type: "int", Value: "1"},
			debugger.Variable{Name: "next", Type: "Point", Value: "Point@8", VariablesReference: 12},
		).
		SetVariables(12, debugger.Variable{Name: "x", Type: "int", Value: "2"}).
		SetVariables(20, debugger.Variable{Name: "argc", Type: "int", Value: "1"})
}

func newController(t *testing.T, sess *debuggertest.Session, opts ...Option) (*Controller, *sink) {
	t.Helper()
	out := &sink{}
	c, err := NewController(sess, builder.NewBuilder(sess, identity.MustJava()), out, opts...)
	require.NoError(t, err)
	return c, out
}

func networkUpdate(t *testing.T, msg Message) render.NetworkUpdate {
	t.Helper()
	require.Equal(t, string(render.CommandUpdate), msg.Command)
	u, ok := msg.Data.(render.NetworkUpdate)
	require.True(t, ok, "data is %T", msg.Data)
	return u
}

func networkInit(t *testing.T, msg Message) render.NetworkInit {
	t.Helper()
	require.Equal(t, string(render.CommandInitialize), msg.Command)
	init, ok := msg.Data.(render.NetworkInit)
	require.True(t, ok, "data is %T", msg.Data)
	return init
}

func nodeIDs(nodes []render.NetworkNode) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestNewController_Validation(t *testing.T) {
	sess := scripted()
	_, err := NewController(sess, builder.NewBuilder(sess, identity.MustJava()), nil)
	assert.ErrorIs(t, err, ErrNilPublisher)

	_, err = NewController(nil, nil, &sink{})
	assert.ErrorIs(t, err, builder.ErrNilSession)
}

func TestController_HandleStopped(t *testing.T) {
	ctx := context.Background()
	capt := &captures{}
	c, out := newController(t, scripted(), WithCapturer(capt))

	require.NoError(t, c.HandleStopped(ctx, 1))

	msgs := out.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, CommandUpdateStackFrames, msgs[0].Command)
	assert.Equal(t, []string{"main", "caller"}, msgs[0].StackFrames)

	init := networkInit(t, msgs[1])
	assert.Contains(t, nodeIDs(init.Nodes), "object_Point@7")
	assert.Contains(t, nodeIDs(init.Nodes), "object_Point@8")
	assert.Len(t, init.Edges, 1)

	state := c.State()
	assert.Equal(t, 1, state.Snapshots)
	assert.True(t, state.Live)
	require.Len(t, capt.snaps, 1)
	assert.Len(t, capt.snaps[0].Frames, 2)
}

func TestController_SecondStopIsIncremental(t *testing.T) {
	ctx := context.Background()
	sess := scripted()
	c, out := newController(t, sess)
	require.NoError(t, c.HandleStopped(ctx, 1))

	sess.SetVariables(12, debugger.Variable{Name: "x", Type: "int", Value: "5"})
	require.NoError(t, c.HandleStopped(ctx, 1))

	u := networkUpdate(t, out.last(t))
	assert.Equal(t, []string{"object_Point@8"}, nodeIDs(u.UpdateNodes))
	assert.Equal(t, render.GroupChangedNode, u.UpdateNodes[0].Group)
	assert.Empty(t, u.AddNodes)
	assert.Empty(t, u.DeleteNodeIDs)
	assert.Equal(t, 2, c.State().Snapshots)
}

func TestController_IdenticalStopNotAppended(t *testing.T) {
	ctx := context.Background()
	c, out := newController(t, scripted())
	require.NoError(t, c.HandleStopped(ctx, 1))
	require.NoError(t, c.HandleStopped(ctx, 1))

	assert.Equal(t, 1, c.State().Snapshots)
	assert.True(t, networkUpdate(t, out.last(t)).Empty())
}

func TestController_Navigation(t *testing.T) {
	ctx := context.Background()
	sess := scripted()
	c, out := newController(t, sess)

	moved, err := c.StepBack(ctx)
	require.NoError(t, err)
	assert.False(t, moved, "no history yet")

	require.NoError(t, c.HandleStopped(ctx, 1))
	sess.SetVariables(12, debugger.Variable{Name: "x", Type: "int", Value: "5"})
	require.NoError(t, c.HandleStopped(ctx, 1))
	calls := sess.Calls.Load()

	moved, err = c.StepBack(ctx)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.False(t, c.State().Live)
	assert.Equal(t, []string{"object_Point@8"}, nodeIDs(networkUpdate(t, out.last(t)).UpdateNodes))

	moved, err = c.StepBack(ctx)
	require.NoError(t, err)
	assert.False(t, moved, "already at the oldest snapshot")

	moved, err = c.StepForward(ctx)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.True(t, c.State().Live)

	assert.Equal(t, calls, sess.Calls.Load(), "navigation never queries the session")
}

func TestController_SelectStackFrame(t *testing.T) {
	ctx := context.Background()
	c, out := newController(t, scripted())
	assert.ErrorIs(t, c.SelectStackFrame(ctx, 1), ErrNoSnapshot)

	require.NoError(t, c.HandleStopped(ctx, 1))
	require.NoError(t, c.SelectStackFrame(ctx, 1))
	assert.Equal(t, 1, c.State().SelectedFrame)
	u := networkUpdate(t, out.last(t))
	assert.Len(t, u.AddNodes, 1)
	assert.Contains(t, u.DeleteNodeIDs, "object_Point@7")

	require.NoError(t, c.SelectStackFrame(ctx, TopFrame))
	assert.Equal(t, 0, c.State().SelectedFrame)

	require.NoError(t, c.SelectStackFrame(ctx, 7))
	assert.Equal(t, 0, c.State().SelectedFrame)
}

func TestController_SelectStackFrameReturnsToLive(t *testing.T) {
	ctx := context.Background()
	sess := scripted()
	c, out := newController(t, sess)
	require.NoError(t, c.HandleStopped(ctx, 1))
	sess.SetVariables(20, debugger.Variable{Name: "argc", Type: "int", Value: "2"})
	require.NoError(t, c.HandleStopped(ctx, 1))

	moved, err := c.StepBack(ctx)
	require.NoError(t, err)
	require.True(t, moved)
	require.False(t, c.State().Live)
	frames := out.count(CommandUpdateStackFrames)

	require.NoError(t, c.SelectStackFrame(ctx, 1))
	st := c.State()
	assert.True(t, st.Live)
	assert.Equal(t, 1, st.SelectedFrame)
	assert.Equal(t, frames+1, out.count(CommandUpdateStackFrames))

	u := networkUpdate(t, out.last(t))
	require.Len(t, u.AddNodes, 1)
	assert.Equal(t, "(int) argc:\n2", u.AddNodes[0].Label, "frame comes from the newest snapshot")
}

func TestController_Clusters(t *testing.T) {
	ctx := context.Background()
	c, out := newController(t, scripted())
	require.NoError(t, c.HandleStopped(ctx, 1))

	require.NoError(t, c.Collapse(ctx, "object_Point@7"))
	u := networkUpdate(t, out.last(t))
	assert.Equal(t, []string{"cluster_object_Point@7"}, nodeIDs(u.AddNodes))
	assert.ElementsMatch(t, []string{"object_Point@7", "object_Point@8"}, u.DeleteNodeIDs)
	assert.Equal(t, []string{"object_Point@7"}, c.State().Collapsed)

	published := len(out.all())
	require.NoError(t, c.Collapse(ctx, "object_Point@7"))
	assert.Len(t, out.all(), published, "collapsing twice publishes nothing")

	require.NoError(t, c.Expand(ctx, "cluster_object_Point@7"))
	u = networkUpdate(t, out.last(t))
	assert.ElementsMatch(t, []string{"object_Point@7", "object_Point@8"}, nodeIDs(u.AddNodes))
	assert.Equal(t, []string{"cluster_object_Point@7"}, u.DeleteNodeIDs)

	require.NoError(t, c.Collapse(ctx, "object_Point@7"))
	require.NoError(t, c.ExpandAll(ctx))
	assert.Empty(t, c.State().Collapsed)
}

func TestController_HideNodes(t *testing.T) {
	ctx := context.Background()
	c, out := newController(t, scripted())
	require.NoError(t, c.HandleStopped(ctx, 1))

	require.NoError(t, c.HideNode(ctx, "object_Point@8"))
	u := networkUpdate(t, out.last(t))
	assert.Equal(t, []string{"object_Point@8"}, u.DeleteNodeIDs)
	assert.Len(t, u.DeleteEdgeIDs, 1)
	assert.Equal(t, []string{"object_Point@8"}, c.State().Hidden)

	require.NoError(t, c.ShowAllNodes(ctx))
	u = networkUpdate(t, out.last(t))
	assert.Equal(t, []string{"object_Point@8"}, nodeIDs(u.AddNodes))
	assert.Empty(t, c.State().Hidden)
}

func TestController_HideNodeDiagramView(t *testing.T) {
	ctx := context.Background()
	c, out := newController(t, scripted(), WithView(render.ViewDiagram))
	require.NoError(t, c.HandleStopped(ctx, 1))

	require.NoError(t, c.HideNode(ctx, "object_Point@7"))
	msg := out.last(t)
	require.Equal(t, string(render.CommandUpdate), msg.Command)
	u, ok := msg.Data.(render.DiagramUpdate)
	require.True(t, ok, "data is %T", msg.Data)
	removed := make([]string, 0, len(u.Delta.Structures.Removed))
	for _, s := range u.Delta.Structures.Removed {
		removed = append(removed, s.ID)
	}
	assert.ElementsMatch(t, []string{
		diagram.StructureID("object_Point@7"),
		diagram.StructureID("object_Point@8"),
	}, removed)

	require.NoError(t, c.HandleStopped(ctx, 1), "later stops still render with the filter on")
	require.NoError(t, c.ShowAllNodes(ctx))
	assert.Empty(t, c.State().Hidden)
}

func TestController_LostConnection(t *testing.T) {
	ctx := context.Background()
	sess := scripted().FailStackTrace(errors.New("connection reset"))
	c, out := newController(t, sess)

	assert.ErrorIs(t, c.HandleStopped(ctx, 1), ErrLostConnection)
	assert.ErrorIs(t, c.HandleStopped(ctx, 1), ErrLostConnection)

	assert.Equal(t, 1, out.count(CommandNotification))
	msg := out.last(t)
	require.NotNil(t, msg.Notification)
	assert.Equal(t, NotificationLostConnection, msg.Notification.Kind)
}

func TestController_StaleBuildDiscarded(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	sess := scripted().
		SetFrames(2, debugger.StackFrame{ID: 3, Name: "worker"}).
		SetScopes(3, debugger.Scope{Name: "Locals", VariablesReference: 30}).
		SetVariables(30, debugger.Variable{Name: "done", Type: "boolean", Value: "true"})
	sess.OnVariables(func(ref int) {
		if ref == 10 {
			once.Do(func() { close(entered) })
			<-release
		}
	})
	c, out := newController(t, sess)

	slow := make(chan error, 1)
	go func() { slow <- c.HandleStopped(ctx, 1) }()

	<-entered
	require.NoError(t, c.HandleStopped(ctx, 2))
	close(release)

	select {
	case err := <-slow:
		require.NoError(t, err, "stale builds are not surfaced")
	case <-time.After(5 * time.Second):
		t.Fatal("slow build never finished")
	}

	state := c.State()
	assert.Equal(t, 1, state.Snapshots)
	assert.Equal(t, []string{"worker"}, state.StackFrames)
	assert.Equal(t, 1, out.count(CommandUpdateStackFrames))
}

func TestController_ContinuedAndReset(t *testing.T) {
	ctx := context.Background()
	c, out := newController(t, scripted())
	require.NoError(t, c.HandleStopped(ctx, 1))
	require.NoError(t, c.Collapse(ctx, "object_Point@7"))

	require.NoError(t, c.HandleEvent(ctx, debugger.Event{Kind: debugger.EventContinued}))
	assert.Equal(t, CommandDeselectStackFrames, out.last(t).Command)
	assert.Equal(t, 1, c.State().Snapshots, "continue keeps history")

	require.NoError(t, c.HandleEvent(ctx, debugger.Event{Kind: debugger.EventTerminated}))
	state := c.State()
	assert.Zero(t, state.Snapshots)
	assert.Empty(t, state.Collapsed)

	require.NoError(t, c.HandleEvent(ctx, debugger.Event{Kind: debugger.EventStopped, ThreadID: 1}))
	networkInit(t, out.last(t))
}

func TestController_SetStyle(t *testing.T) {
	ctx := context.Background()
	c, out := newController(t, scripted())
	require.NoError(t, c.HandleStopped(ctx, 1))

	style := render.DefaultStyle()
	style.DefaultNode.Background = "#ffffff"
	require.NoError(t, c.SetStyle(ctx, style))
	init := networkInit(t, out.last(t))
	assert.Equal(t, "#ffffff", init.Options.Groups[render.GroupDefaultNode].Color.Background)
}

func TestController_Export(t *testing.T) {
	ctx := context.Background()
	c, _ := newController(t, scripted())

	var buf bytes.Buffer
	assert.ErrorIs(t, c.Export(ctx, diagram.FormatPlantUML, &buf), ErrNoSnapshot)

	require.NoError(t, c.HandleStopped(ctx, 1))
	require.NoError(t, c.Collapse(ctx, "object_Point@7"))
	require.NoError(t, c.Export(ctx, diagram.FormatPlantUML, &buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "@startuml\n"))
	assert.Contains(t, out, `"main"`)
	assert.Contains(t, out, "Point@8", "export ignores clusters")
	assert.NotContains(t, out, "cluster_")
}

func TestController_HandlePanelMessage(t *testing.T) {
	ctx := context.Background()
	c, out := newController(t, scripted())
	require.NoError(t, c.HandleStopped(ctx, 1))

	assert.ErrorIs(t, c.HandlePanelMessage(ctx, PanelMessage{Command: "explode"}), ErrUnknownCommand)
	assert.Error(t, c.HandlePanelMessage(ctx, PanelMessage{Command: CommandHideNode}))

	require.NoError(t, c.HandlePanelMessage(ctx, PanelMessage{Command: CommandCreateCluster, NodeID: "object_Point@7"}))
	assert.Equal(t, []string{"object_Point@7"}, c.State().Collapsed)
	require.NoError(t, c.HandlePanelMessage(ctx, PanelMessage{Command: CommandOpenAllClusters}))
	assert.Empty(t, c.State().Collapsed)
	require.NoError(t, c.HandlePanelMessage(ctx, PanelMessage{Command: CommandSelectStackFrame, Index: 1}))
	assert.Equal(t, 1, c.State().SelectedFrame)

	before := len(out.all())
	require.NoError(t, c.Replay(ctx))
	msgs := out.all()[before:]
	require.Len(t, msgs, 2)
	assert.Equal(t, CommandUpdateStackFrames, msgs[0].Command)
	networkInit(t, msgs[1])
}

func TestController_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, out := newController(t, scripted())

	events := make(chan debugger.Event, 2)
	events <- debugger.Event{Kind: debugger.EventStopped, ThreadID: 1}
	close(events)

	require.NoError(t, c.Run(ctx, events))
	assert.Equal(t, 1, c.State().Snapshots)
	assert.Equal(t, 1, out.count(CommandUpdateStackFrames))
}
