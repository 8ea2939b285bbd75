// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"
	"slices"
	"strings"
)

// StackFrameID is the parent ID of every stack-root relation.
//
// It never names a node in a Graph; it stands for the synthetic stack
// frame that owns the local variables.
const StackFrameID = "__stackFrame__"

// Kind discriminates what a Node represents.
type Kind int

const (
	// KindObject is a runtime object identified by its reference signature.
	KindObject Kind = iota

	// KindValue is a string or array leaf rendered as a single value.
	KindValue

	// KindPrimitive is a primitive variable rooted directly in the stack frame.
	KindPrimitive

	// KindNull is a null leaf.
	KindNull

	// KindCluster is a synthetic node standing in for a collapsed subgraph.
	KindCluster
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindValue:
		return "value"
	case KindPrimitive:
		return "primitive"
	case KindNull:
		return "null"
	case KindCluster:
		return "cluster"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Expandable reports whether nodes of this kind own references.
func (k Kind) Expandable() bool {
	return k == KindObject || k == KindCluster
}

// PrimitiveValue is a primitive field attached directly to its owner.
type PrimitiveValue struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// IncomingRelation records a named edge from ParentID into a node.
type IncomingRelation struct {
	ParentID     string `json:"parentId"`
	RelationName string `json:"relationName"`
}

// IsRoot reports whether the relation comes from the stack frame.
func (r IncomingRelation) IsRoot() bool {
	return r.ParentID == StackFrameID
}

// Reference records a named edge from a node to ChildID.
type Reference struct {
	ChildID      string `json:"childId"`
	RelationName string `json:"relationName"`
}

// Node is one vertex of the snapshot graph.
//
// Value holds the possibly truncated display value; Tooltip holds the
// untruncated form and is empty when nothing was cut. Name is only set for
// nodes reached exclusively from the stack frame.
type Node struct {
	ID                string             `json:"id"`
	Kind              Kind               `json:"kind"`
	Type              string             `json:"type,omitempty"`
	Value             string             `json:"value,omitempty"`
	Tooltip           string             `json:"tooltip,omitempty"`
	Name              string             `json:"name,omitempty"`
	HiddenCount       int                `json:"hiddenCount,omitempty"`
	PrimitiveValues   []PrimitiveValue   `json:"primitiveValues,omitempty"`
	IncomingRelations []IncomingRelation `json:"incomingRelations,omitempty"`
	References        []Reference        `json:"references,omitempty"`
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	c.PrimitiveValues = slices.Clone(n.PrimitiveValues)
	c.IncomingRelations = slices.Clone(n.IncomingRelations)
	c.References = slices.Clone(n.References)
	return &c
}

// Equal reports deep value equality. Nil and empty slices compare equal.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	return n.ID == o.ID &&
		n.Kind == o.Kind &&
		n.Type == o.Type &&
		n.Value == o.Value &&
		n.Tooltip == o.Tooltip &&
		n.Name == o.Name &&
		n.HiddenCount == o.HiddenCount &&
		slices.Equal(n.PrimitiveValues, o.PrimitiveValues) &&
		slices.Equal(n.IncomingRelations, o.IncomingRelations) &&
		slices.Equal(n.References, o.References)
}

// RootOnly reports whether the node has at least one incoming relation and
// every one of them comes from the stack frame.
func (n *Node) RootOnly() bool {
	if len(n.IncomingRelations) == 0 {
		return false
	}
	for _, rel := range n.IncomingRelations {
		if !rel.IsRoot() {
			return false
		}
	}
	return true
}

// DisplayName returns Name, falling back to the first incoming relation name.
func (n *Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	for _, rel := range n.IncomingRelations {
		if rel.RelationName != "" {
			return rel.RelationName
		}
	}
	return ""
}

// String implements fmt.Stringer for debugging output.
func (n *Node) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]", n.ID, n.Kind)
	if n.Type != "" {
		fmt.Fprintf(&b, " (%s)", n.Type)
	}
	if n.Name != "" {
		fmt.Fprintf(&b, " %s", n.Name)
	}
	if n.Value != "" {
		fmt.Fprintf(&b, " = %s", n.Value)
	}
	return b.String()
}

// GraphOptions configures graph limits.
type GraphOptions struct {
	// MaxNodes is the node capacity. Zero means unbounded.
	MaxNodes int
}

// GraphOption is a functional option for configuring a Graph.
type GraphOption func(*GraphOptions)

// WithMaxNodes caps the number of nodes the graph accepts.
func WithMaxNodes(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxNodes = n
	}
}

// Graph is an ordered mapping from node ID to Node.
//
// # Description
//
// Insertion order is kept so that two builds over the same program state
// produce graphs that compare equal and render identically. A Graph is
// mutable until Freeze(); every mutator returns ErrGraphFrozen afterwards.
//
// # Thread Safety
//
// Single writer during build. Safe for concurrent reads after Freeze().
type Graph struct {
	nodes   map[string]*Node
	order   []string
	options GraphOptions
	frozen  bool
}

// NewGraph creates an empty, unfrozen graph.
func NewGraph(opts ...GraphOption) *Graph {
	options := GraphOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return &Graph{
		nodes:   make(map[string]*Node),
		options: options,
	}
}

// Empty returns a frozen graph with no nodes.
func Empty() *Graph {
	g := NewGraph()
	g.Freeze()
	return g
}

// Freeze transitions the graph to read-only mode.
func (g *Graph) Freeze() {
	g.frozen = true
}

// IsFrozen reports whether Freeze has been called.
func (g *Graph) IsFrozen() bool {
	return g.frozen
}

// AddNode inserts a node.
//
// # Description
//
// The graph takes ownership of n; callers must not mutate it afterwards.
// Relations already present on n are stored as given, which lets
// projections copy nodes wholesale. Use Link to add new relations.
//
// # Outputs
//
//   - error: ErrGraphFrozen, ErrEmptyNodeID, ErrDuplicateNode or
//     ErrMaxNodesExceeded.
func (g *Graph) AddNode(n *Node) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if n == nil || n.ID == "" {
		return ErrEmptyNodeID
	}
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	if g.options.MaxNodes > 0 && len(g.nodes) >= g.options.MaxNodes {
		return ErrMaxNodesExceeded
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return nil
}

// Link records the relation (parentID, name) -> childID on both endpoints.
//
// # Description
//
// parentID may be StackFrameID, in which case only the child's incoming
// relation is recorded. Linking the same triple twice is a no-op.
//
// # Outputs
//
//   - error: ErrGraphFrozen or ErrNodeNotFound.
func (g *Graph) Link(parentID, childID, name string) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	child, ok := g.nodes[childID]
	if !ok {
		return fmt.Errorf("%w: child %s", ErrNodeNotFound, childID)
	}
	rel := IncomingRelation{ParentID: parentID, RelationName: name}
	if slices.Contains(child.IncomingRelations, rel) {
		return nil
	}
	if parentID != StackFrameID {
		parent, ok := g.nodes[parentID]
		if !ok {
			return fmt.Errorf("%w: parent %s", ErrNodeNotFound, parentID)
		}
		parent.References = append(parent.References, Reference{ChildID: childID, RelationName: name})
	}
	child.IncomingRelations = append(child.IncomingRelations, rel)
	return nil
}

// AddPrimitiveValue appends a primitive field to a node.
func (g *Graph) AddPrimitiveValue(id string, pv PrimitiveValue) error {
	n, err := g.mutable(id)
	if err != nil {
		return err
	}
	n.PrimitiveValues = append(n.PrimitiveValues, pv)
	return nil
}

// SetValue replaces a node's display value and tooltip.
func (g *Graph) SetValue(id, value, tooltip string) error {
	n, err := g.mutable(id)
	if err != nil {
		return err
	}
	n.Value = value
	n.Tooltip = tooltip
	return nil
}

// SetName replaces a node's name.
func (g *Graph) SetName(id, name string) error {
	n, err := g.mutable(id)
	if err != nil {
		return err
	}
	n.Name = name
	return nil
}

func (g *Graph) mutable(id string) (*Node, error) {
	if g.frozen {
		return nil, ErrGraphFrozen
	}
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

// Has reports whether a node with the ID exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns a copy of the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Nodes returns copies of all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id].Clone())
	}
	return out
}

// IDs returns node IDs in insertion order.
func (g *Graph) IDs() []string {
	return slices.Clone(g.order)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.order)
}

// RelationCount returns the number of incoming relations across all nodes.
func (g *Graph) RelationCount() int {
	count := 0
	for _, n := range g.nodes {
		count += len(n.IncomingRelations)
	}
	return count
}

// Reachable returns the IDs reachable from rootID by following references
// transitively, excluding rootID itself, in breadth-first order.
func (g *Graph) Reachable(rootID string) []string {
	root, ok := g.nodes[rootID]
	if !ok {
		return nil
	}
	visited := map[string]bool{rootID: true}
	var out []string
	queue := []*Node{root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, ref := range current.References {
			if visited[ref.ChildID] {
				continue
			}
			visited[ref.ChildID] = true
			child, ok := g.nodes[ref.ChildID]
			if !ok {
				continue
			}
			out = append(out, ref.ChildID)
			queue = append(queue, child)
		}
	}
	return out
}

// Equal reports deep value equality, including insertion order.
func (g *Graph) Equal(o *Graph) bool {
	if g == nil || o == nil {
		return g.Len() == 0 && o.Len() == 0
	}
	if !slices.Equal(g.order, o.order) {
		return false
	}
	for _, id := range g.order {
		if !g.nodes[id].Equal(o.nodes[id]) {
			return false
		}
	}
	return true
}

// Validate checks that every reference resolves and that references and
// incoming relations mirror each other.
func (g *Graph) Validate() error {
	for _, id := range g.order {
		n := g.nodes[id]
		for _, ref := range n.References {
			child, ok := g.nodes[ref.ChildID]
			if !ok {
				return fmt.Errorf("%w: %s -> %s", ErrDanglingReference, id, ref.ChildID)
			}
			want := IncomingRelation{ParentID: id, RelationName: ref.RelationName}
			if !slices.Contains(child.IncomingRelations, want) {
				return fmt.Errorf("%w: %s -[%s]-> %s", ErrInconsistentRelation, id, ref.RelationName, ref.ChildID)
			}
		}
		for _, rel := range n.IncomingRelations {
			if rel.IsRoot() {
				continue
			}
			parent, ok := g.nodes[rel.ParentID]
			if !ok {
				return fmt.Errorf("%w: %s <- %s", ErrDanglingReference, id, rel.ParentID)
			}
			want := Reference{ChildID: id, RelationName: rel.RelationName}
			if !slices.Contains(parent.References, want) {
				return fmt.Errorf("%w: %s <-[%s]- %s", ErrInconsistentRelation, id, rel.RelationName, rel.ParentID)
			}
		}
	}
	return nil
}
