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
	"fmt"
	"strings"

	"github.com/AleutianAI/objectlens/services/lens/graph"
)

// NetworkNode is one box of the network view.
type NetworkNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Title string `json:"title,omitempty"`
	Group Group  `json:"group"`
}

// EdgeColor is the stroke of a network edge.
type EdgeColor struct {
	Color     string `json:"color,omitempty"`
	Highlight string `json:"highlight,omitempty"`
}

// NetworkEdge is one labelled arrow of the network view.
type NetworkEdge struct {
	ID    string     `json:"id"`
	From  string     `json:"from"`
	To    string     `json:"to"`
	Label string     `json:"label"`
	Color *EdgeColor `json:"color,omitempty"`
}

// GroupStyle is the per-group styling block of NetworkOptions.
type GroupStyle struct {
	Color GroupColor `json:"color"`
	Font  GroupFont  `json:"font"`
}

// GroupColor mirrors the node color fields of the network renderer.
type GroupColor struct {
	Border     string         `json:"border"`
	Background string         `json:"background"`
	Highlight  HighlightColor `json:"highlight"`
}

// HighlightColor is the color of a selected node.
type HighlightColor struct {
	Border     string `json:"border"`
	Background string `json:"background"`
}

// GroupFont is the label font of a group.
type GroupFont struct {
	Color string `json:"color"`
}

// NetworkOptions configures the network renderer on initialization.
type NetworkOptions struct {
	Nodes   NodeOptions          `json:"nodes"`
	Edges   EdgeOptions          `json:"edges"`
	Physics PhysicsOptions       `json:"physics"`
	Groups  map[Group]GroupStyle `json:"groups"`
}

// NodeOptions holds node defaults.
type NodeOptions struct {
	Shape string `json:"shape"`
}

// EdgeOptions holds edge defaults.
type EdgeOptions struct {
	Arrows string    `json:"arrows"`
	Color  EdgeColor `json:"color"`
}

// PhysicsOptions selects the layout solver.
type PhysicsOptions struct {
	Solver    string           `json:"solver"`
	Repulsion RepulsionOptions `json:"repulsion"`
}

// RepulsionOptions tunes the repulsion solver.
type RepulsionOptions struct {
	NodeDistance int `json:"nodeDistance"`
}

// NetworkInit is the payload of a network initialize command.
type NetworkInit struct {
	Nodes   []NetworkNode  `json:"nodes"`
	Edges   []NetworkEdge  `json:"edges"`
	Options NetworkOptions `json:"options"`
}

// NetworkUpdate is the payload of a network update command.
type NetworkUpdate struct {
	AddNodes      []NetworkNode `json:"addNodes"`
	UpdateNodes   []NetworkNode `json:"updateNodes"`
	DeleteNodeIDs []string      `json:"deleteNodeIds"`
	AddEdges      []NetworkEdge `json:"addEdges"`
	DeleteEdgeIDs []string      `json:"deleteEdgeIds"`
}

// Empty reports whether the update changes nothing.
func (u NetworkUpdate) Empty() bool {
	return len(u.AddNodes)+len(u.UpdateNodes)+len(u.DeleteNodeIDs)+len(u.AddEdges)+len(u.DeleteEdgeIDs) == 0
}

// EdgeID returns the network edge id of a named relation.
func EdgeID(parentID, childID, relation string) string {
	return parentID + "to" + childID + "withName" + relation
}

// NetworkNodeFor builds the network box of a graph node.
//
// # Description
//
// The label's top line is "(type) name". The bottom section is one
// "(type) name: value" line per primitive value for objects and clusters
// that own any, and the value otherwise. Untyped named
// nodes are drawn in the variable group. Cluster boxes carry an extra
// line with the number of hidden nodes.
func NetworkNodeFor(n *graph.Node) NetworkNode {
	var top strings.Builder
	if n.Type != "" {
		fmt.Fprintf(&top, "(%s)", n.Type)
	}
	if n.Type != "" && n.Name != "" {
		top.WriteByte(' ')
	}
	top.WriteString(n.Name)

	bottom := n.Value
	if n.Kind.Expandable() && len(n.PrimitiveValues) > 0 {
		lines := make([]string, 0, len(n.PrimitiveValues))
		for _, pv := range n.PrimitiveValues {
			lines = append(lines, fmt.Sprintf("(%s) %s: %s", pv.Type, pv.Name, pv.Value))
		}
		bottom = strings.Join(lines, "\n")
	}
	if n.Kind == graph.KindCluster && n.HiddenCount > 0 {
		hidden := fmt.Sprintf("[+%d hidden]", n.HiddenCount)
		if bottom == "" {
			bottom = hidden
		} else {
			bottom += "\n" + hidden
		}
	}

	label := top.String()
	switch {
	case label != "" && bottom != "":
		label += ":\n" + bottom
	case label == "":
		label = bottom
	}

	group := GroupDefaultNode
	if n.Type == "" && n.Name != "" {
		group = GroupDefaultVariable
	}
	return NetworkNode{ID: n.ID, Label: label, Title: n.Tooltip, Group: group}
}

// networkEdges returns the drawable incoming edges of n. Relations from the
// stack frame have no box to start from and are skipped.
func networkEdges(n *graph.Node) []NetworkEdge {
	var edges []NetworkEdge
	for _, rel := range n.IncomingRelations {
		if rel.IsRoot() {
			continue
		}
		edges = append(edges, NetworkEdge{
			ID:    EdgeID(rel.ParentID, n.ID, rel.RelationName),
			From:  rel.ParentID,
			To:    n.ID,
			Label: rel.RelationName,
		})
	}
	return edges
}

// NetworkOptionsFor returns the initialization options for a style.
func NetworkOptionsFor(style Style) NetworkOptions {
	groups := make(map[Group]GroupStyle, 4)
	for _, g := range []Group{GroupDefaultNode, GroupDefaultVariable, GroupChangedNode, GroupChangedVariable} {
		c := style.Color(g)
		groups[g] = GroupStyle{
			Color: GroupColor{
				Border:     c.Border,
				Background: c.Background,
				Highlight:  HighlightColor{Border: c.Border, Background: c.Background},
			},
			Font: GroupFont{Color: c.Font},
		}
	}
	return NetworkOptions{
		Nodes:   NodeOptions{Shape: "box"},
		Edges:   EdgeOptions{Arrows: "to", Color: edgeColor(style.DefaultNode)},
		Physics: PhysicsOptions{Solver: "repulsion", Repulsion: RepulsionOptions{NodeDistance: 100}},
		Groups:  groups,
	}
}

func edgeColor(c NodeColor) EdgeColor {
	return EdgeColor{Color: c.Border, Highlight: c.Border}
}

// NetworkInitFor builds the full network view of g.
func NetworkInitFor(g *graph.Graph, style Style) NetworkInit {
	init := NetworkInit{
		Nodes:   []NetworkNode{},
		Edges:   []NetworkEdge{},
		Options: NetworkOptionsFor(style),
	}
	if g == nil {
		return init
	}
	for _, n := range g.Nodes() {
		init.Nodes = append(init.Nodes, NetworkNodeFor(n))
		init.Edges = append(init.Edges, networkEdges(n)...)
	}
	return init
}

// NetworkChanges computes the incremental update from prev to next.
//
// # Description
//
// Nodes are matched by ID. New nodes and their edges are added, vanished
// nodes and their edges are deleted. For nodes present in both graphs the
// incoming relations are compared edge by edge, and the box is updated
// when any displayed attribute differs. Added and updated boxes are moved
// to the changed groups; added edges take the changed edge color.
//
// # Outputs
//
//   - NetworkUpdate: Deterministic; next-graph order for additions and
//     updates, prev-graph order for deletions. Each edge id appears once.
func NetworkChanges(prev, next *graph.Graph, style Style) NetworkUpdate {
	u := NetworkUpdate{
		AddNodes:      []NetworkNode{},
		UpdateNodes:   []NetworkNode{},
		DeleteNodeIDs: []string{},
		AddEdges:      []NetworkEdge{},
		DeleteEdgeIDs: []string{},
	}
	changed := edgeColor(style.ChangedNode)
	addedEdges := make(map[string]bool)
	deletedEdges := make(map[string]bool)

	addEdge := func(e NetworkEdge) {
		if addedEdges[e.ID] {
			return
		}
		addedEdges[e.ID] = true
		e.Color = &changed
		u.AddEdges = append(u.AddEdges, e)
	}
	deleteEdge := func(e NetworkEdge) {
		if deletedEdges[e.ID] {
			return
		}
		deletedEdges[e.ID] = true
		u.DeleteEdgeIDs = append(u.DeleteEdgeIDs, e.ID)
	}

	for _, n := range next.Nodes() {
		old, existed := prev.Node(n.ID)
		if !existed {
			box := NetworkNodeFor(n)
			box.Group = box.Group.Changed()
			u.AddNodes = append(u.AddNodes, box)
			for _, e := range networkEdges(n) {
				addEdge(e)
			}
			continue
		}

		oldEdges := edgeSet(networkEdges(old))
		newEdges := edgeSet(networkEdges(n))
		for _, e := range networkEdges(n) {
			if !oldEdges[e.ID] {
				addEdge(e)
			}
		}
		for _, e := range networkEdges(old) {
			if !newEdges[e.ID] {
				deleteEdge(e)
			}
		}

		if displayChanged(old, n) {
			box := NetworkNodeFor(n)
			box.Group = box.Group.Changed()
			u.UpdateNodes = append(u.UpdateNodes, box)
		}
	}

	for _, old := range prev.Nodes() {
		if next.Has(old.ID) {
			continue
		}
		u.DeleteNodeIDs = append(u.DeleteNodeIDs, old.ID)
		for _, e := range networkEdges(old) {
			deleteEdge(e)
		}
	}
	return u
}

func edgeSet(edges []NetworkEdge) map[string]bool {
	set := make(map[string]bool, len(edges))
	for _, e := range edges {
		set[e.ID] = true
	}
	return set
}

func displayChanged(a, b *graph.Node) bool {
	if a.Value != b.Value || a.Tooltip != b.Tooltip || a.Type != b.Type || a.Name != b.Name || a.HiddenCount != b.HiddenCount {
		return true
	}
	if len(a.PrimitiveValues) != len(b.PrimitiveValues) {
		return true
	}
	for i := range a.PrimitiveValues {
		if a.PrimitiveValues[i] != b.PrimitiveValues[i] {
			return true
		}
	}
	return false
}
