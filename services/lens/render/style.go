// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render turns snapshot graphs into the commands a panel consumes.
//
// Two views are supported. The network view draws every graph node as a
// box with labelled edges. The diagram view draws the structures, fields
// and references of the diagram projection. Both views start with a full
// initialize command and continue with incremental updates.
package render

// Group names the visual class of a network node.
type Group string

const (
	GroupDefaultNode     Group = "defaultNode"
	GroupDefaultVariable Group = "defaultVariable"
	GroupChangedNode     Group = "changedNode"
	GroupChangedVariable Group = "changedVariable"
)

// Changed returns the highlighted counterpart of g.
func (g Group) Changed() Group {
	if g == GroupDefaultVariable || g == GroupChangedVariable {
		return GroupChangedVariable
	}
	return GroupChangedNode
}

// NodeColor holds the colors of one group.
type NodeColor struct {
	Border     string `yaml:"border" json:"border" validate:"required,hexcolor"`
	Background string `yaml:"background" json:"background" validate:"required,hexcolor"`
	Font       string `yaml:"font" json:"font" validate:"required,hexcolor"`
}

// Style is the color scheme shared by both views.
type Style struct {
	DefaultNode     NodeColor `yaml:"default_node" json:"defaultNode" validate:"required"`
	DefaultVariable NodeColor `yaml:"default_variable" json:"defaultVariable" validate:"required"`
	ChangedNode     NodeColor `yaml:"changed_node" json:"changedNode" validate:"required"`
	ChangedVariable NodeColor `yaml:"changed_variable" json:"changedVariable" validate:"required"`
}

// DefaultStyle returns the built-in color scheme.
func DefaultStyle() Style {
	return Style{
		DefaultNode:     NodeColor{Border: "#007acc", Background: "#e8f2fa", Font: "#1e1e1e"},
		DefaultVariable: NodeColor{Border: "#6c6c6c", Background: "#f3f3f3", Font: "#1e1e1e"},
		ChangedNode:     NodeColor{Border: "#c72e0f", Background: "#fbe9e5", Font: "#1e1e1e"},
		ChangedVariable: NodeColor{Border: "#c72e0f", Background: "#fff4e0", Font: "#1e1e1e"},
	}
}

// Color returns the colors of a group.
func (s Style) Color(g Group) NodeColor {
	switch g {
	case GroupDefaultVariable:
		return s.DefaultVariable
	case GroupChangedNode:
		return s.ChangedNode
	case GroupChangedVariable:
		return s.ChangedVariable
	default:
		return s.DefaultNode
	}
}
