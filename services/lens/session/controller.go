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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/objectlens/services/lens/builder"
	"github.com/AleutianAI/objectlens/services/lens/cluster"
	"github.com/AleutianAI/objectlens/services/lens/debugger"
	"github.com/AleutianAI/objectlens/services/lens/diagram"
	"github.com/AleutianAI/objectlens/services/lens/graph"
	"github.com/AleutianAI/objectlens/services/lens/history"
	"github.com/AleutianAI/objectlens/services/lens/observability"
	"github.com/AleutianAI/objectlens/services/lens/render"
)

var tracer = otel.Tracer("objectlens.session")

// TopFrame selects the top stack frame in SelectStackFrame.
const TopFrame = -1

// Options configures a Controller.
type Options struct {
	// View selects the panel vocabulary.
	// Default: render.ViewNetwork
	View render.View

	// Style is the initial color scheme.
	Style render.Style

	// HistoryCapacity bounds the number of retained snapshots.
	// Default: history.DefaultCapacity
	HistoryCapacity int

	// MaxConcurrentFrames bounds how many frames are built at once.
	// Default: 4
	MaxConcurrentFrames int

	// Capturer receives every appended snapshot. Optional.
	Capturer Capturer

	// Metrics receives stop and publish counts. Optional.
	Metrics *observability.Metrics

	// Logger is used for diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		View:                render.ViewNetwork,
		Style:               render.DefaultStyle(),
		HistoryCapacity:     history.DefaultCapacity,
		MaxConcurrentFrames: 4,
		Logger:              slog.Default(),
	}
}

// Option configures Options.
type Option func(*Options)

// WithView selects the panel vocabulary.
func WithView(view render.View) Option {
	return func(o *Options) { o.View = view }
}

// WithStyle sets the initial color scheme.
func WithStyle(style render.Style) Option {
	return func(o *Options) { o.Style = style }
}

// WithHistoryCapacity bounds the number of retained snapshots.
func WithHistoryCapacity(n int) Option {
	return func(o *Options) { o.HistoryCapacity = n }
}

// WithMaxConcurrentFrames bounds concurrent frame builds.
func WithMaxConcurrentFrames(n int) Option {
	return func(o *Options) { o.MaxConcurrentFrames = n }
}

// WithCapturer installs a snapshot capturer such as a recorder.
func WithCapturer(c Capturer) Option {
	return func(o *Options) { o.Capturer = c }
}

// WithMetrics installs Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// Controller turns debugger events and panel messages into panel commands.
//
// # Description
//
// HandleStopped is the only operation that talks to the debug session.
// Every other operation re-presents graphs already in history with the
// current view state: selected frame, collapsed clusters and hidden
// nodes.
//
// # Thread Safety
//
// Safe for concurrent use. Builds for different stops may run
// concurrently; only the newest one is applied.
type Controller struct {
	session   debugger.Session
	builder   *builder.Builder
	publisher Publisher
	renderer  *render.Renderer
	clusters  *cluster.Engine
	options   Options
	logger    *slog.Logger

	generation atomic.Uint64

	mu       sync.Mutex
	history  *history.History
	selected int
	hidden   map[string]bool
	shown    *graph.Graph
	lost     bool
}

// NewController creates a controller.
//
// # Inputs
//
//   - session: Source of stack traces.
//   - b: Builds frame graphs; normally built on the same session.
//   - pub: Receives panel messages.
//
// # Outputs
//
//   - *Controller: Ready for events.
//   - error: ErrNilPublisher or builder.ErrNilSession.
func NewController(session debugger.Session, b *builder.Builder, pub Publisher, opts ...Option) (*Controller, error) {
	if pub == nil {
		return nil, ErrNilPublisher
	}
	if session == nil || b == nil {
		return nil, builder.ErrNilSession
	}
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.MaxConcurrentFrames <= 0 {
		options.MaxConcurrentFrames = 1
	}

	return &Controller{
		session:   session,
		builder:   b,
		publisher: pub,
		renderer:  render.NewRenderer(options.View, options.Style),
		clusters:  cluster.NewEngine(),
		options:   options,
		logger:    options.Logger.With(slog.String("component", "session")),
		history:   history.New(options.HistoryCapacity),
		hidden:    make(map[string]bool),
	}, nil
}

// HandleEvent dispatches a lifecycle event.
//
// Stopped events are handled synchronously; callers that want newer stops
// to overtake slow builds run HandleEvent in its own goroutine (see Run).
func (c *Controller) HandleEvent(ctx context.Context, ev debugger.Event) error {
	switch ev.Kind {
	case debugger.EventStopped:
		return c.HandleStopped(ctx, ev.ThreadID)
	case debugger.EventContinued:
		c.HandleContinued(ctx)
	case debugger.EventInitialized, debugger.EventTerminated, debugger.EventExited:
		c.Reset(ctx)
	}
	return nil
}

// Run consumes events until ctx is done or events is closed.
//
// Each stop is built in its own goroutine so that a newer stop can
// supersede a slow one. Run waits for outstanding builds before returning.
func (c *Controller) Run(ctx context.Context, events <-chan debugger.Event) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Kind != debugger.EventStopped {
				_ = c.HandleEvent(ctx, ev)
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := c.HandleStopped(ctx, ev.ThreadID); err != nil && !errors.Is(err, context.Canceled) {
					c.logger.Warn("stop handling failed",
						slog.Int("thread_id", ev.ThreadID),
						slog.String("error", err.Error()),
					)
				}
			}()
		}
	}
}

// HandleStopped inspects the stopped thread and publishes the result.
//
// # Description
//
// Bumps the generation, fetches the stack trace and builds one graph per
// frame, frames fanning out concurrently. If another stop or a reset
// happened meanwhile the result is discarded. Otherwise the snapshot is
// appended to history, captured, and the stack frame names and a render
// command are published.
//
// # Outputs
//
//   - error: ErrLostConnection when the stack trace fails (a lost-connection
//     notification is published once), ctx errors, and fatal build errors.
//     A superseded build returns nil.
func (c *Controller) HandleStopped(ctx context.Context, threadID int) error {
	gen := c.generation.Add(1)
	start := time.Now()

	ctx, span := tracer.Start(ctx, "session.HandleStopped")
	defer span.End()
	span.SetAttributes(attribute.Int("thread_id", threadID), attribute.Int64("generation", int64(gen)))

	snap, err := c.buildSnapshot(ctx, threadID)
	if err != nil {
		c.options.Metrics.RecordStop(observability.StopFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrLostConnection) {
			c.notifyLostConnection(ctx, err)
		}
		return err
	}
	c.options.Metrics.RecordBuild(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	if current := c.generation.Load(); current != gen {
		c.options.Metrics.RecordStop(observability.StopStale)
		span.SetAttributes(attribute.Bool("stale", true))
		c.logger.Debug("discarding stale build",
			slog.Int("thread_id", threadID),
			slog.Uint64("generation", gen),
			slog.Uint64("current", current),
			slog.String("reason", ErrStaleBuild.Error()),
		)
		return nil
	}

	c.lost = false
	c.history.Append(snap)
	c.selected = 0
	c.options.Metrics.RecordStop(observability.StopApplied)

	if c.options.Capturer != nil {
		if err := c.options.Capturer.Capture(ctx, snap); err != nil {
			c.logger.Warn("snapshot capture failed", slog.String("error", err.Error()))
		}
	}

	c.publish(ctx, stackFramesMessage(snap.FrameNames(), c.selected))
	return c.presentLocked(ctx)
}

func (c *Controller) buildSnapshot(ctx context.Context, threadID int) (history.Snapshot, error) {
	frames, err := c.session.StackTrace(ctx, threadID)
	if err != nil {
		if ctx.Err() != nil {
			return history.Snapshot{}, ctx.Err()
		}
		return history.Snapshot{}, fmt.Errorf("%w: %w", ErrLostConnection, err)
	}

	results := make([]history.FrameGraph, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.options.MaxConcurrentFrames)
	for i, frame := range frames {
		g.Go(func() error {
			res, err := c.builder.BuildFrame(gctx, frame.ID)
			if err != nil {
				return fmt.Errorf("frame %q: %w", frame.Name, err)
			}
			results[i] = history.FrameGraph{FrameID: frame.ID, Name: frame.Name, Graph: res.Graph}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return history.Snapshot{}, err
	}
	return history.Snapshot{ThreadID: threadID, Frames: results}, nil
}

func (c *Controller) notifyLostConnection(ctx context.Context, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lost {
		return
	}
	c.lost = true
	c.logger.Error("debug session unreachable", slog.String("error", err.Error()))
	c.publish(ctx, Message{
		Command:      CommandNotification,
		Notification: &Notification{Kind: NotificationLostConnection, Message: err.Error()},
	})
}

// HandleContinued tells the panel that no frame is selected while the
// debuggee runs. History is kept.
func (c *Controller) HandleContinued(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publish(ctx, Message{Command: CommandDeselectStackFrames})
}

// Reset drops history, clusters, hidden nodes and the render baseline, and
// invalidates in-flight builds. Used on session start and end.
func (c *Controller) Reset(ctx context.Context) {
	c.generation.Add(1)
	c.clusters.ExpandAll()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history.Reset()
	c.selected = 0
	c.hidden = make(map[string]bool)
	c.shown = nil
	c.lost = false
	c.logger.Debug("session state reset")
}

// StepBack shows the previous snapshot.
//
// # Outputs
//
//   - bool: False at the oldest snapshot; nothing is published then.
//   - error: Render failures.
func (c *Controller) StepBack(ctx context.Context) (bool, error) {
	return c.navigate(ctx, (*history.History).StepBack)
}

// StepForward shows the next snapshot, going live at the newest.
func (c *Controller) StepForward(ctx context.Context) (bool, error) {
	return c.navigate(ctx, (*history.History).StepForward)
}

func (c *Controller) navigate(ctx context.Context, move func(*history.History) bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !move(c.history) {
		return false, nil
	}
	c.selected = 0
	snap, _ := c.history.Current()
	c.publish(ctx, stackFramesMessage(snap.FrameNames(), c.selected))
	return true, c.presentLocked(ctx)
}

// SelectStackFrame shows frame index of the newest snapshot. The history
// cursor goes back to live first. TopFrame or an out-of-range index
// selects the top frame.
func (c *Controller) SelectStackFrame(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasLive := c.history.IsLive()
	c.history.GoLive()
	snap, ok := c.history.Current()
	if !ok {
		return ErrNoSnapshot
	}
	if _, ok := snap.Frame(index); !ok {
		index = 0
	}
	c.selected = index
	if !wasLive {
		c.publish(ctx, stackFramesMessage(snap.FrameNames(), c.selected))
	}
	return c.presentLocked(ctx)
}

// Collapse folds the subgraph reachable from nodeID into a cluster.
func (c *Controller) Collapse(ctx context.Context, nodeID string) error {
	changed, err := c.clusters.Collapse(nodeID)
	if err != nil || !changed {
		return err
	}
	return c.present(ctx)
}

// Expand opens a cluster, by cluster ID or root node ID.
func (c *Controller) Expand(ctx context.Context, id string) error {
	if !c.clusters.Expand(id) {
		return nil
	}
	return c.present(ctx)
}

// ExpandAll opens every cluster.
func (c *Controller) ExpandAll(ctx context.Context) error {
	c.clusters.ExpandAll()
	return c.present(ctx)
}

// HideNode removes a node from the view until ShowAllNodes.
func (c *Controller) HideNode(ctx context.Context, nodeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hidden[nodeID] {
		return nil
	}
	c.hidden[nodeID] = true
	return c.presentLocked(ctx)
}

// ShowAllNodes clears the hidden-node filter.
func (c *Controller) ShowAllNodes(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.hidden) == 0 {
		return nil
	}
	c.hidden = make(map[string]bool)
	return c.presentLocked(ctx)
}

// SetStyle replaces the color scheme; the next render command is a full
// initialization. The current view is republished when there is one.
func (c *Controller) SetStyle(ctx context.Context, style render.Style) error {
	c.renderer.SetStyle(style)
	return c.present(ctx)
}

// HandlePanelMessage dispatches a message received from the panel.
func (c *Controller) HandlePanelMessage(ctx context.Context, msg PanelMessage) error {
	if err := msg.Validate(); err != nil {
		c.options.Metrics.RecordPanelMessage(msg.Command, false)
		return err
	}
	var err error
	switch msg.Command {
	case CommandStepBack:
		_, err = c.StepBack(ctx)
	case CommandStepForward:
		_, err = c.StepForward(ctx)
	case CommandSelectStackFrame:
		err = c.SelectStackFrame(ctx, msg.Index)
	case CommandCreateCluster:
		err = c.Collapse(ctx, msg.NodeID)
	case CommandOpenCluster:
		err = c.Expand(ctx, msg.NodeID)
	case CommandOpenAllClusters:
		err = c.ExpandAll(ctx)
	case CommandHideNode:
		err = c.HideNode(ctx, msg.NodeID)
	case CommandShowAllNodes:
		err = c.ShowAllNodes(ctx)
	}
	c.options.Metrics.RecordPanelMessage(msg.Command, err == nil)
	return err
}

// Export writes the selected frame's graph, without clusters or hidden
// nodes, as a diagram in format f.
func (c *Controller) Export(ctx context.Context, f diagram.Format, w io.Writer) error {
	_, span := tracer.Start(ctx, "session.Export")
	defer span.End()
	span.SetAttributes(attribute.String("format", string(f)))

	frame, err := c.currentFrame()
	if err != nil {
		c.options.Metrics.RecordExport(string(f), false)
		return err
	}
	err = exportFrame(frame, f, w)
	c.options.Metrics.RecordExport(string(f), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func exportFrame(frame history.FrameGraph, f diagram.Format, w io.Writer) error {
	writer, err := diagram.WriterFor(f)
	if err != nil {
		return err
	}
	d, err := diagram.NewReader(diagram.WithStackFrameName(frame.Name)).Read(frame.Graph)
	if err != nil {
		return fmt.Errorf("reading diagram: %w", err)
	}
	return writer.Write(w, d)
}

func (c *Controller) currentFrame() (history.FrameGraph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.history.Current()
	if !ok {
		return history.FrameGraph{}, ErrNoSnapshot
	}
	frame, ok := snap.Frame(c.selected)
	if !ok {
		return history.FrameGraph{}, ErrNoSnapshot
	}
	return frame, nil
}

// State summarizes the controller for status endpoints.
type State struct {
	Snapshots     int      `json:"snapshots"`
	Live          bool     `json:"live"`
	Cursor        int      `json:"cursor"`
	StackFrames   []string `json:"stackFrames"`
	SelectedFrame int      `json:"selectedFrame"`
	Collapsed     []string `json:"collapsed"`
	Hidden        []string `json:"hidden"`
}

// State returns a copy of the navigation and view state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		Snapshots:     c.history.Len(),
		Live:          c.history.IsLive(),
		Cursor:        c.history.Cursor(),
		SelectedFrame: c.selected,
		Collapsed:     c.clusters.Collapsed(),
		Hidden:        make([]string, 0, len(c.hidden)),
	}
	if snap, ok := c.history.Current(); ok {
		s.StackFrames = snap.FrameNames()
	}
	for id := range c.hidden {
		s.Hidden = append(s.Hidden, id)
	}
	slices.Sort(s.Hidden)
	return s
}

// Replay republishes the stack frames and a full initialization, for a
// panel that just connected.
func (c *Controller) Replay(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.history.Current()
	if !ok {
		return nil
	}
	c.shown = nil
	c.publish(ctx, stackFramesMessage(snap.FrameNames(), c.selected))
	return c.presentLocked(ctx)
}

func (c *Controller) present(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presentLocked(ctx)
}

// presentLocked renders the selected frame with the view state applied and
// publishes the command. Caller holds c.mu.
func (c *Controller) presentLocked(ctx context.Context) error {
	snap, ok := c.history.Current()
	if !ok {
		return nil
	}
	frame, ok := snap.Frame(c.selected)
	if !ok {
		frame = history.FrameGraph{Graph: graph.Empty()}
	}

	view, err := c.clusters.Apply(ctx, frame.Graph)
	if err != nil {
		return fmt.Errorf("applying clusters: %w", err)
	}
	if len(c.hidden) > 0 {
		ids := make([]string, 0, len(c.hidden))
		for id := range c.hidden {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		if view, err = cluster.Hide(view, ids); err != nil {
			return fmt.Errorf("hiding nodes: %w", err)
		}
	}

	cmd, err := c.renderer.Next(c.shown, view)
	if err != nil {
		return fmt.Errorf("rendering: %w", err)
	}
	c.shown = view
	c.publish(ctx, renderMessage(cmd))
	return nil
}

func (c *Controller) publish(ctx context.Context, msg Message) {
	c.options.Metrics.RecordPublished(msg.Command)
	c.publisher.Publish(ctx, msg)
}
