// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cluster collapses subgraphs of a snapshot graph into single nodes.
//
// Collapsing is view state: the Engine only remembers which roots are
// collapsed, and Apply derives a new graph from the full one every time.
// The input graph is never modified.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/objectlens/services/lens/graph"
)

// idPrefix marks synthetic cluster node IDs.
const idPrefix = "cluster_"

// ErrEmptyRootID is returned when collapsing or expanding an empty ID.
var ErrEmptyRootID = errors.New("cluster root id must not be empty")

var tracer = otel.Tracer("objectlens.cluster")

// ID returns the ID of the cluster node standing in for rootID.
func ID(rootID string) string {
	return idPrefix + rootID
}

// Engine holds the set of collapsed roots.
//
// # Thread Safety
//
// Safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	collapsed map[string]struct{}
}

// NewEngine returns an engine with nothing collapsed.
func NewEngine() *Engine {
	return &Engine{collapsed: make(map[string]struct{})}
}

// Collapse marks rootID as collapsed.
//
// # Outputs
//
//   - bool: True if rootID was not already collapsed.
//   - error: ErrEmptyRootID.
func (e *Engine) Collapse(rootID string) (bool, error) {
	if rootID == "" {
		return false, ErrEmptyRootID
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.collapsed[rootID]; ok {
		return false, nil
	}
	e.collapsed[rootID] = struct{}{}
	return true, nil
}

// Expand removes rootID from the collapsed set. Cluster node IDs are
// accepted too and mapped back to their root.
//
// # Outputs
//
//   - bool: True if rootID was collapsed.
func (e *Engine) Expand(rootID string) bool {
	if root, ok := RootOf(rootID); ok {
		rootID = root
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.collapsed[rootID]; !ok {
		return false
	}
	delete(e.collapsed, rootID)
	return true
}

// ExpandAll clears the collapsed set.
func (e *Engine) ExpandAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.collapsed)
}

// Collapsed returns the collapsed roots in sorted order.
func (e *Engine) Collapsed() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.collapsed))
	for id := range e.collapsed {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// IsCollapsed reports whether rootID is collapsed.
func (e *Engine) IsCollapsed(rootID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.collapsed[rootID]
	return ok
}

// Apply projects g through the engine's current collapsed set.
func (e *Engine) Apply(ctx context.Context, g *graph.Graph) (*graph.Graph, error) {
	return Apply(ctx, g, e.Collapsed())
}

// RootOf maps a cluster node ID back to its root ID.
func RootOf(clusterID string) (string, bool) {
	if len(clusterID) <= len(idPrefix) || clusterID[:len(idPrefix)] != idPrefix {
		return "", false
	}
	return clusterID[len(idPrefix):], true
}

// Apply returns g with every collapsed root's closure contracted.
//
// # Description
//
// Roots are processed in sorted order against the graph produced so far.
// A root is skipped when it is absent (never built, or already absorbed by
// an earlier cluster) or when nothing is reachable from it. Otherwise the
// root and its closure are replaced by one KindCluster node that carries
// the root's display attributes:
//   - relations into the closure from outside are retargeted to the
//     cluster node under their original names;
//   - relations between closure members are dropped;
//   - closure members are removed.
//
// The closure is closed under references, so the cluster node owns none.
//
// # Outputs
//
//   - *graph.Graph: A new frozen graph. g itself when nothing collapses.
//   - error: Only if the projection is internally inconsistent.
func Apply(ctx context.Context, g *graph.Graph, collapsed []string) (*graph.Graph, error) {
	_, span := tracer.Start(ctx, "ClusterEngine.Apply",
		trace.WithAttributes(attribute.Int("cluster.collapsed", len(collapsed))),
	)
	defer span.End()

	roots := slices.Clone(collapsed)
	slices.Sort(roots)
	roots = slices.Compact(roots)

	current := g
	applied := 0
	for _, root := range roots {
		if !current.Has(root) {
			continue
		}
		closure := current.Reachable(root)
		if len(closure) == 0 {
			continue
		}
		next, err := contract(current, root, closure)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		current = next
		applied++
	}
	span.SetAttributes(attribute.Int("cluster.applied", applied))
	return current, nil
}

// contract replaces root and closure with a single cluster node.
func contract(g *graph.Graph, rootID string, closure []string) (*graph.Graph, error) {
	hidden := make(map[string]bool, len(closure)+1)
	hidden[rootID] = true
	for _, id := range closure {
		hidden[id] = true
	}

	root, _ := g.Node(rootID)
	clusterID := ID(rootID)
	cluster := &graph.Node{
		ID:              clusterID,
		Kind:            graph.KindCluster,
		Type:            root.Type,
		Value:           root.Value,
		Tooltip:         root.Tooltip,
		Name:            root.Name,
		HiddenCount:     len(closure) + root.HiddenCount,
		PrimitiveValues: root.PrimitiveValues,
	}

	nodes := g.Nodes()
	for _, n := range nodes {
		if !hidden[n.ID] {
			continue
		}
		if n.ID != rootID && n.Kind == graph.KindCluster {
			cluster.HiddenCount += n.HiddenCount
		}
		for _, rel := range n.IncomingRelations {
			if hidden[rel.ParentID] || slices.Contains(cluster.IncomingRelations, rel) {
				continue
			}
			cluster.IncomingRelations = append(cluster.IncomingRelations, rel)
		}
	}

	out := graph.NewGraph()
	for _, n := range nodes {
		if n.ID == rootID {
			if err := out.AddNode(cluster); err != nil {
				return nil, err
			}
			continue
		}
		if hidden[n.ID] {
			continue
		}
		refs := make([]graph.Reference, 0, len(n.References))
		for _, ref := range n.References {
			if hidden[ref.ChildID] {
				ref.ChildID = clusterID
			}
			if !slices.Contains(refs, ref) {
				refs = append(refs, ref)
			}
		}
		n.References = refs
		if err := out.AddNode(n); err != nil {
			return nil, err
		}
	}
	out.Freeze()
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("contract %s: %w", rootID, err)
	}
	return out, nil
}

// Hide returns g without the given nodes and every relation touching them.
//
// # Description
//
// Used for the "hide node" view filter. Like Apply it is a projection and
// g is not modified. Unknown IDs are ignored. Nodes that were only
// reachable through a hidden node are dropped as well, so the result
// never holds an object with neither a name nor an incoming relation.
// Nodes that had no incoming relation in g are kept.
func Hide(g *graph.Graph, ids []string) (*graph.Graph, error) {
	if len(ids) == 0 {
		return g, nil
	}
	hidden := make(map[string]bool, len(ids))
	for _, id := range ids {
		hidden[id] = true
	}
	visible := reachableUnhidden(g, hidden)

	out := graph.NewGraph()
	for _, n := range g.Nodes() {
		if !visible[n.ID] {
			continue
		}
		n.References = slices.DeleteFunc(n.References, func(r graph.Reference) bool { return !visible[r.ChildID] })
		n.IncomingRelations = slices.DeleteFunc(n.IncomingRelations, func(r graph.IncomingRelation) bool {
			return !r.IsRoot() && !visible[r.ParentID]
		})
		if err := out.AddNode(n); err != nil {
			return nil, err
		}
	}
	out.Freeze()
	return out, out.Validate()
}

// reachableUnhidden walks references from the stack roots of g, never
// entering a hidden node.
func reachableUnhidden(g *graph.Graph, hidden map[string]bool) map[string]bool {
	seen := make(map[string]bool, g.Len())
	var queue []string
	for _, n := range g.Nodes() {
		if hidden[n.ID] {
			continue
		}
		seed := len(n.IncomingRelations) == 0
		for _, rel := range n.IncomingRelations {
			if rel.IsRoot() {
				seed = true
				break
			}
		}
		if seed {
			seen[n.ID] = true
			queue = append(queue, n.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		for _, ref := range n.References {
			if hidden[ref.ChildID] || seen[ref.ChildID] {
				continue
			}
			seen[ref.ChildID] = true
			queue = append(queue, ref.ChildID)
		}
	}
	return seen
}
