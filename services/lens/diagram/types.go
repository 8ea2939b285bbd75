// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diagram

import (
	"github.com/AleutianAI/objectlens/services/lens/graph"
	"github.com/AleutianAI/objectlens/services/lens/identity"
)

const (
	// StackFrameID is the ID of the synthetic structure owning stack locals.
	StackFrameID = graph.StackFrameID

	// StackFrameType is the type shown for the stack frame structure.
	StackFrameType = "[StackFrame]"
)

// Structure is a box in the diagram: an object, a cluster, a value leaf
// reached through a field, or the stack frame.
type Structure struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// Field is a named scalar row of a structure.
type Field struct {
	ParentID string `json:"parentId"`
	Name     string `json:"name"`
	Value    string `json:"value"`
	Type     string `json:"type,omitempty"`
}

// FieldKey identifies a field across diagrams.
type FieldKey struct {
	ParentID string
	Name     string
}

// Key returns the field's identity key.
func (f Field) Key() FieldKey {
	return FieldKey{ParentID: f.ParentID, Name: f.Name}
}

// Reference is a named edge between two structures.
type Reference struct {
	StartID string `json:"startId"`
	EndID   string `json:"endId"`
	Name    string `json:"name"`
}

// ReferenceKey identifies a reference across diagrams.
type ReferenceKey struct {
	StartID string
	Name    string
}

// Key returns the reference's identity key.
func (r Reference) Key() ReferenceKey {
	return ReferenceKey{StartID: r.StartID, Name: r.Name}
}

// Diagram is the structures/fields/references projection of a graph.
type Diagram struct {
	Structures []Structure `json:"structures"`
	Fields     []Field     `json:"fields"`
	References []Reference `json:"references"`
}

// FieldsOf returns the fields owned by structure id, in diagram order.
func (d *Diagram) FieldsOf(id string) []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.ParentID == id {
			out = append(out, f)
		}
	}
	return out
}

// ReferencesFrom returns the references starting at structure id.
func (d *Diagram) ReferencesFrom(id string) []Reference {
	var out []Reference
	for _, r := range d.References {
		if r.StartID == id {
			out = append(out, r)
		}
	}
	return out
}

// StructureID maps a graph node ID to a diagram-safe structure ID.
func StructureID(nodeID string) string {
	if nodeID == graph.StackFrameID {
		return StackFrameID
	}
	return "_" + identity.Digest(nodeID)
}
