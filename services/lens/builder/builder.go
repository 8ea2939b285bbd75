// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package builder turns a paused stack frame's variables into a snapshot graph.
//
// The builder walks the variable tree one level at a time. All Variables
// requests of a level are issued concurrently and merged in request order
// before the next level starts, so the resulting graph is deterministic
// regardless of which response arrives first.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/objectlens/services/lens/debugger"
	"github.com/AleutianAI/objectlens/services/lens/graph"
	"github.com/AleutianAI/objectlens/services/lens/identity"
)

// ErrNilSession is returned when a Builder is used without a session.
var ErrNilSession = errors.New("debug session must not be nil")

// BuilderOptions configures the builder.
type BuilderOptions struct {
	// MaxDepth bounds expansion from any stack root. Objects at MaxDepth
	// are added to the graph but their children are not fetched.
	MaxDepth int

	// MaxValueLength is the display budget for strings and arrays, in runes.
	MaxValueLength int

	// MaxConcurrentFetches bounds in-flight Variables requests per level.
	MaxConcurrentFetches int

	// MaxNodes caps the graph size. Zero means unbounded.
	MaxNodes int

	// Logger receives build diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultBuilderOptions returns sensible defaults.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		MaxDepth:             10,
		MaxValueLength:       30,
		MaxConcurrentFetches: 8,
	}
}

// BuilderOption is a functional option for configuring the builder.
type BuilderOption func(*BuilderOptions)

// WithMaxDepth sets the expansion depth budget.
func WithMaxDepth(depth int) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxDepth = depth
	}
}

// WithMaxValueLength sets the display budget for strings and arrays.
func WithMaxValueLength(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxValueLength = n
	}
}

// WithMaxConcurrentFetches bounds in-flight Variables requests.
func WithMaxConcurrentFetches(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxConcurrentFetches = n
	}
}

// WithMaxNodes caps the number of nodes per graph.
func WithMaxNodes(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxNodes = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(o *BuilderOptions) {
		o.Logger = logger
	}
}

// BuildStats summarizes one build pass.
type BuildStats struct {
	NodeCount     int
	RelationCount int
	Levels        int
	Fetches       int
	FetchErrors   int
	DepthLimited  int
	Truncated     int
	Duration      time.Duration
}

// BuildResult is the outcome of a build pass.
type BuildResult struct {
	Graph *graph.Graph
	Stats BuildStats
}

// Builder builds snapshot graphs from a debug session.
//
// # Description
//
// Each Build call is an independent pass with its own memoization state,
// so a Builder can serve concurrent builds for different stack frames.
//
// # Thread Safety
//
// Safe for concurrent use.
type Builder struct {
	session debugger.Session
	scheme  *identity.Scheme
	options BuilderOptions
	logger  *slog.Logger
}

// NewBuilder creates a builder reading from session and classifying with scheme.
func NewBuilder(session debugger.Session, scheme *identity.Scheme, opts ...BuilderOption) *Builder {
	options := DefaultBuilderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.MaxConcurrentFetches <= 0 {
		options.MaxConcurrentFetches = 1
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if scheme == nil {
		scheme = identity.MustJava()
	}
	return &Builder{
		session: session,
		scheme:  scheme,
		options: options,
		logger:  logger.With(slog.String("component", "builder")),
	}
}

// Options returns the effective options.
func (b *Builder) Options() BuilderOptions {
	return b.options
}

// Scheme returns the identity scheme in use.
func (b *Builder) Scheme() *identity.Scheme {
	return b.scheme
}

// BuildFrame builds the graph of one stack frame.
//
// # Description
//
// Fetches the frame's scopes, drops expensive scopes and the Global scope,
// fetches the remaining scopes' variables concurrently and builds from
// them in scope order. Fetch failures degrade to empty lists.
//
// # Inputs
//
//   - ctx: Cancels outstanding requests.
//   - frameID: The DAP frame ID.
//
// # Outputs
//
//   - *BuildResult: The frozen graph and build statistics.
//   - error: ctx errors and fatal identity or graph errors only.
func (b *Builder) BuildFrame(ctx context.Context, frameID int) (*BuildResult, error) {
	if b.session == nil {
		return nil, ErrNilSession
	}
	roots, fetches, failures, err := b.frameRoots(ctx, frameID)
	if err != nil {
		return nil, err
	}
	return b.build(ctx, roots, BuildStats{Fetches: fetches, FetchErrors: failures})
}

// Build builds a graph from already materialized root variables.
//
// # Outputs
//
//   - *BuildResult: The frozen graph and build statistics.
//   - error: ctx errors, identity.ErrIDCollision and graph errors.
func (b *Builder) Build(ctx context.Context, roots []debugger.Variable) (*BuildResult, error) {
	return b.build(ctx, roots, BuildStats{})
}

func (b *Builder) build(ctx context.Context, roots []debugger.Variable, initial BuildStats) (*BuildResult, error) {
	start := time.Now()
	ctx, span := startBuildSpan(ctx, len(roots))
	defer span.End()

	state := newBuildState(b, initial)
	err := state.run(ctx, roots)
	stats := state.finish(time.Since(start))
	recordBuildMetrics(ctx, stats.Duration, stats, err == nil)
	setBuildSpanResult(span, stats)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	b.logger.Debug("graph built",
		slog.Int("nodes", stats.NodeCount),
		slog.Int("relations", stats.RelationCount),
		slog.Int("levels", stats.Levels),
		slog.Int("fetch_errors", stats.FetchErrors),
		slog.Duration("duration", stats.Duration),
	)
	return &BuildResult{Graph: state.g, Stats: stats}, nil
}

// frameRoots collects the root variables of a frame.
func (b *Builder) frameRoots(ctx context.Context, frameID int) ([]debugger.Variable, int, int, error) {
	scopes, err := b.session.Scopes(ctx, frameID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, 0, ctx.Err()
		}
		b.logger.Warn("scopes unavailable",
			slog.Int("frame_id", frameID),
			slog.String("error", err.Error()),
		)
		return nil, 1, 1, nil
	}

	var inspectable []debugger.Scope
	for _, scope := range scopes {
		if scope.Inspectable() {
			inspectable = append(inspectable, scope)
		}
	}

	perScope := make([][]debugger.Variable, len(inspectable))
	var failures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.options.MaxConcurrentFetches)
	for i, scope := range inspectable {
		g.Go(func() error {
			vars, err := b.session.Variables(gctx, scope.VariablesReference)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures.Add(1)
				b.logger.Warn("scope variables unavailable",
					slog.String("scope", scope.Name),
					slog.String("error", err.Error()),
				)
				return nil
			}
			perScope[i] = vars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, 0, err
	}

	var roots []debugger.Variable
	for _, vars := range perScope {
		roots = append(roots, vars...)
	}
	return roots, 1 + len(inspectable), int(failures.Load()), nil
}

// taskKind says what a fetched child list is used for.
type taskKind int

const (
	taskExpand taskKind = iota
	taskArray
	taskLazy
)

// fetchTask is one pending Variables request of a level.
type fetchTask struct {
	kind     taskKind
	ref      int
	nodeID   string
	depth    int
	variable debugger.Variable
	class    identity.Classification
}

// buildState is the per-pass state. Only fetches run concurrently; graph
// mutation happens on the calling goroutine between levels.
type buildState struct {
	b        *Builder
	g        *graph.Graph
	registry *identity.Registry
	stats    BuildStats

	fetches     atomic.Int64
	fetchErrors atomic.Int64
}

func newBuildState(b *Builder, initial BuildStats) *buildState {
	var opts []graph.GraphOption
	if b.options.MaxNodes > 0 {
		opts = append(opts, graph.WithMaxNodes(b.options.MaxNodes))
	}
	s := &buildState{
		b:        b,
		g:        graph.NewGraph(opts...),
		registry: identity.NewRegistry(),
		stats:    initial,
	}
	return s
}

func (s *buildState) run(ctx context.Context, roots []debugger.Variable) error {
	var pending []fetchTask
	for _, v := range roots {
		tasks, err := s.place(graph.StackFrameID, v, 0)
		if err != nil {
			return err
		}
		pending = append(pending, tasks...)
	}

	for len(pending) > 0 {
		if s.b.session == nil {
			return ErrNilSession
		}
		s.stats.Levels++
		results, err := s.fetchAll(ctx, pending)
		if err != nil {
			return err
		}

		var next []fetchTask
		for i, task := range pending {
			children := results[i]
			switch task.kind {
			case taskExpand:
				for _, child := range children {
					tasks, err := s.place(task.nodeID, child, task.depth+1)
					if err != nil {
						return err
					}
					next = append(next, tasks...)
				}
			case taskArray:
				if err := s.fillArray(task, children); err != nil {
					return err
				}
			case taskLazy:
				if len(children) == 0 {
					continue
				}
				inner := children[0]
				inner.Name = task.variable.Name
				inner.PresentationHint = nil
				tasks, err := s.place(task.nodeID, inner, task.depth)
				if err != nil {
					return err
				}
				next = append(next, tasks...)
			}
		}
		pending = next
	}
	return s.assignNames()
}

// fetchAll issues every task's Variables request concurrently.
func (s *buildState) fetchAll(ctx context.Context, tasks []fetchTask) ([][]debugger.Variable, error) {
	results := make([][]debugger.Variable, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.b.options.MaxConcurrentFetches)
	for i, task := range tasks {
		g.Go(func() error {
			s.fetches.Add(1)
			vars, err := s.b.session.Variables(gctx, task.ref)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.fetchErrors.Add(1)
				s.b.logger.Warn("variables unavailable",
					slog.Int("variables_reference", task.ref),
					slog.String("node_id", task.nodeID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			results[i] = vars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// place adds one variable under parentID and returns follow-up fetches.
func (s *buildState) place(parentID string, v debugger.Variable, depth int) ([]fetchTask, error) {
	if v.IsLazy() {
		return []fetchTask{{kind: taskLazy, ref: v.VariablesReference, nodeID: parentID, depth: depth, variable: v}}, nil
	}

	scheme := s.b.scheme
	class := scheme.Classify(v)
	root := parentID == graph.StackFrameID

	switch {
	case class.IsPrimitive:
		if !root {
			return nil, s.g.AddPrimitiveValue(parentID, graph.PrimitiveValue{Type: v.Type, Name: v.Name, Value: v.Value})
		}
		id := scheme.NodeID(v)
		fresh, err := s.registry.Register(id)
		if err != nil || !fresh {
			return nil, err
		}
		return nil, s.g.AddNode(&graph.Node{ID: id.Value, Kind: id.Kind, Type: v.Type, Name: v.Name, Value: v.Value})

	case class.IsNull:
		id := scheme.NodeID(v)
		if !root {
			id = scheme.LeafID(parentID, v)
		}
		fresh, err := s.registry.Register(id)
		if err != nil {
			return nil, err
		}
		if fresh {
			if err := s.g.AddNode(&graph.Node{ID: id.Value, Kind: id.Kind, Type: v.Type, Value: "null"}); err != nil {
				return nil, err
			}
		}
		return nil, s.g.Link(parentID, id.Value, v.Name)

	case class.IsLeaf():
		id := scheme.NodeID(v)
		if !root {
			id = scheme.LeafID(parentID, v)
		}
		fresh, err := s.registry.Register(id)
		if err != nil {
			return nil, err
		}
		if !fresh {
			return nil, s.g.Link(parentID, id.Value, v.Name)
		}
		node := &graph.Node{ID: id.Value, Kind: id.Kind, Type: v.Type}
		if class.IsString {
			node.Value, node.Tooltip = truncateString(v.Value, s.b.options.MaxValueLength)
			if node.Tooltip != "" {
				s.stats.Truncated++
			}
		} else {
			node.Value = renderArray(nil)
		}
		if err := s.g.AddNode(node); err != nil {
			return nil, err
		}
		if err := s.g.Link(parentID, id.Value, v.Name); err != nil {
			return nil, err
		}
		if class.IsArray() && v.HasChildren() {
			return []fetchTask{{kind: taskArray, ref: v.VariablesReference, nodeID: id.Value, depth: depth, variable: v, class: class}}, nil
		}
		return nil, nil

	default:
		id := scheme.NodeID(v)
		fresh, err := s.registry.Register(id)
		if err != nil {
			return nil, err
		}
		var tasks []fetchTask
		if fresh {
			if err := s.g.AddNode(&graph.Node{ID: id.Value, Kind: id.Kind, Type: v.Type, Value: v.Value}); err != nil {
				return nil, err
			}
			if v.HasChildren() {
				if depth < s.b.options.MaxDepth {
					tasks = append(tasks, fetchTask{kind: taskExpand, ref: v.VariablesReference, nodeID: id.Value, depth: depth, variable: v})
				} else {
					s.stats.DepthLimited++
				}
			}
		}
		if err := s.g.Link(parentID, id.Value, v.Name); err != nil {
			return nil, err
		}
		return tasks, nil
	}
}

// fillArray renders an array leaf from its fetched elements.
func (s *buildState) fillArray(task fetchTask, elements []debugger.Variable) error {
	values := make([]string, 0, len(elements))
	for _, e := range elements {
		values = append(values, e.Value)
	}
	cut := arrayCut
	if task.class.IsStringArray {
		cut = stringArrayCut
	}
	value, tooltip := truncate(renderArray(values), s.b.options.MaxValueLength, cut)
	if tooltip != "" {
		s.stats.Truncated++
	}
	return s.g.SetValue(task.nodeID, value, tooltip)
}

// assignNames names nodes reached only from the stack frame.
func (s *buildState) assignNames() error {
	for _, n := range s.g.Nodes() {
		if n.Kind == graph.KindPrimitive || n.Name != "" || !n.RootOnly() {
			continue
		}
		if err := s.g.SetName(n.ID, n.IncomingRelations[0].RelationName); err != nil {
			return fmt.Errorf("assign name: %w", err)
		}
	}
	return nil
}

func (s *buildState) finish(duration time.Duration) BuildStats {
	s.g.Freeze()
	stats := s.stats
	stats.Fetches += int(s.fetches.Load())
	stats.FetchErrors += int(s.fetchErrors.Load())
	stats.NodeCount = s.g.Len()
	stats.RelationCount = s.g.RelationCount()
	stats.Duration = duration
	return stats
}
