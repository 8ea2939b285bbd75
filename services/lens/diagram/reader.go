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
	"fmt"

	"github.com/AleutianAI/objectlens/services/lens/graph"
)

// Reader projects graphs onto diagrams.
type Reader struct {
	frameName string
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithStackFrameName sets the name shown on the stack frame structure.
func WithStackFrameName(name string) ReaderOption {
	return func(r *Reader) {
		r.frameName = name
	}
}

// NewReader creates a Reader.
func NewReader(opts ...ReaderOption) *Reader {
	r := &Reader{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read projects g with a default Reader.
func Read(g *graph.Graph) (*Diagram, error) {
	return NewReader().Read(g)
}

// Read projects g onto a diagram.
//
// # Description
//
// The stack frame structure always comes first. Then, in node order:
//   - objects and clusters become structures, their primitive values fields;
//   - root primitives become fields of the stack frame;
//   - value leaves become stack frame fields for each root relation and a
//     structure when reached through a field;
//   - null leaves become "null" fields of each parent.
//
// References follow: stack frame references to root structures first,
// then each node's references to structures in node order.
//
// # Outputs
//
//   - *Diagram: The projection.
//   - error: ErrTypeMissing, ErrNullObjectValue or ErrAnonymousObject.
func (r *Reader) Read(g *graph.Graph) (*Diagram, error) {
	d := &Diagram{
		Structures: []Structure{{ID: StackFrameID, Name: Escape(r.frameName), Type: StackFrameType}},
	}
	nodes := g.Nodes()
	structural := make(map[string]bool, len(nodes))

	for _, n := range nodes {
		switch n.Kind {
		case graph.KindObject, graph.KindCluster:
			if err := r.readObject(d, n); err != nil {
				return nil, err
			}
			structural[n.ID] = true

		case graph.KindPrimitive:
			if err := checkTyped(n.Name, n.Value, n.Type); err != nil {
				return nil, err
			}
			d.Fields = append(d.Fields, Field{
				ParentID: StackFrameID,
				Name:     Escape(n.Name),
				Value:    Escape(n.Value),
				Type:     n.Type,
			})

		case graph.KindValue:
			if err := checkTyped(n.DisplayName(), n.Value, n.Type); err != nil {
				return nil, err
			}
			owned := false
			for _, rel := range n.IncomingRelations {
				if !rel.IsRoot() {
					owned = true
					continue
				}
				d.Fields = append(d.Fields, Field{
					ParentID: StackFrameID,
					Name:     Escape(rel.RelationName),
					Value:    Escape(n.Value),
					Type:     n.Type,
				})
			}
			if owned {
				d.Structures = append(d.Structures, Structure{
					ID:    StructureID(n.ID),
					Name:  Escape(fieldName(n)),
					Type:  n.Type,
					Value: Escape(n.Value),
				})
				structural[n.ID] = true
			}

		case graph.KindNull:
			for _, rel := range n.IncomingRelations {
				d.Fields = append(d.Fields, Field{
					ParentID: StructureID(rel.ParentID),
					Name:     Escape(rel.RelationName),
					Value:    "null",
				})
			}
		}
	}

	for _, n := range nodes {
		if n.Kind != graph.KindObject && n.Kind != graph.KindCluster {
			continue
		}
		for _, rel := range n.IncomingRelations {
			if rel.IsRoot() {
				d.References = append(d.References, Reference{
					StartID: StackFrameID,
					EndID:   StructureID(n.ID),
					Name:    Escape(rel.RelationName),
				})
			}
		}
	}
	for _, n := range nodes {
		for _, ref := range n.References {
			if !structural[ref.ChildID] {
				continue
			}
			name := ref.RelationName
			if name == "" {
				name = n.DisplayName()
			}
			d.References = append(d.References, Reference{
				StartID: StructureID(n.ID),
				EndID:   StructureID(ref.ChildID),
				Name:    Escape(name),
			})
		}
	}
	return d, nil
}

func (r *Reader) readObject(d *Diagram, n *graph.Node) error {
	if n.Value == "null" {
		return fmt.Errorf("%w: %s", ErrNullObjectValue, n.ID)
	}
	if n.Name == "" && len(n.IncomingRelations) == 0 {
		return fmt.Errorf("%w: %s", ErrAnonymousObject, n.ID)
	}
	id := StructureID(n.ID)
	d.Structures = append(d.Structures, Structure{
		ID:    id,
		Name:  Escape(n.DisplayName()),
		Type:  n.Type,
		Value: Escape(n.Value),
	})
	for _, pv := range n.PrimitiveValues {
		if err := checkTyped(pv.Name, pv.Value, pv.Type); err != nil {
			return err
		}
		d.Fields = append(d.Fields, Field{
			ParentID: id,
			Name:     Escape(pv.Name),
			Value:    Escape(pv.Value),
			Type:     pv.Type,
		})
	}
	return nil
}

// fieldName names a leaf structure after the first field reaching it.
func fieldName(n *graph.Node) string {
	for _, rel := range n.IncomingRelations {
		if !rel.IsRoot() {
			return rel.RelationName
		}
	}
	return n.DisplayName()
}

func checkTyped(name, value, typ string) error {
	if value != "" && typ == "" {
		return fmt.Errorf("%w: %s", ErrTypeMissing, name)
	}
	return nil
}
