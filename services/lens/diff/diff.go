// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff classifies the structures, fields and references of two
// diagrams as added, updated, removed or restored.
//
// Restored means present and unchanged in both. It is reported explicitly
// so a renderer that tore its canvas down for an unrelated reason can put
// unchanged entities back without animating them as new.
package diff

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/objectlens/services/lens/diagram"
)

// ErrDuplicateKey is returned when one diagram holds two entities with the
// same identity key.
var ErrDuplicateKey = errors.New("duplicate identity key")

// Partition splits one entity kind into the four diff classes.
//
// Added, Updated and Restored hold the new version in new-diagram order;
// Removed holds the old version in old-diagram order.
type Partition[T any] struct {
	Added    []T `json:"added"`
	Updated  []T `json:"updated"`
	Removed  []T `json:"removed"`
	Restored []T `json:"restored"`
}

// Changed reports whether anything was added, updated or removed.
func (p Partition[T]) Changed() bool {
	return len(p.Added)+len(p.Updated)+len(p.Removed) > 0
}

// Len returns the number of classified entities.
func (p Partition[T]) Len() int {
	return len(p.Added) + len(p.Updated) + len(p.Removed) + len(p.Restored)
}

// Compare partitions old and new by key.
//
// # Description
//
// Entities are matched by key. A matched pair is restored when same
// reports true and updated otherwise. Added, Updated and Restored follow
// the order of new, Removed the order of old. The result depends only on
// the inputs' contents and order, never on map iteration.
//
// # Outputs
//
//   - Partition[T]: Every key of old and new lands in exactly one class.
//   - error: ErrDuplicateKey when either side repeats a key.
func Compare[T any, K comparable](old, new []T, key func(T) K, same func(a, b T) bool) (Partition[T], error) {
	var p Partition[T]

	oldByKey := make(map[K]T, len(old))
	for _, item := range old {
		k := key(item)
		if _, dup := oldByKey[k]; dup {
			return Partition[T]{}, fmt.Errorf("%w: old %v", ErrDuplicateKey, k)
		}
		oldByKey[k] = item
	}

	seen := make(map[K]bool, len(new))
	for _, item := range new {
		k := key(item)
		if seen[k] {
			return Partition[T]{}, fmt.Errorf("%w: new %v", ErrDuplicateKey, k)
		}
		seen[k] = true

		prev, existed := oldByKey[k]
		switch {
		case !existed:
			p.Added = append(p.Added, item)
		case same(prev, item):
			p.Restored = append(p.Restored, item)
		default:
			p.Updated = append(p.Updated, item)
		}
	}

	for _, item := range old {
		if !seen[key(item)] {
			p.Removed = append(p.Removed, item)
		}
	}
	return p, nil
}

// Delta is the diff of two diagrams.
type Delta struct {
	Structures Partition[diagram.Structure] `json:"structures"`
	Fields     Partition[diagram.Field]     `json:"fields"`
	References Partition[diagram.Reference] `json:"references"`
}

// Empty reports whether the diagrams are structurally identical.
func (d Delta) Empty() bool {
	return !d.Structures.Changed() && !d.Fields.Changed() && !d.References.Changed()
}

// Counts summarizes a delta across all entity kinds.
type Counts struct {
	Added    int
	Updated  int
	Removed  int
	Restored int
}

// Counts totals the delta's classes.
func (d Delta) Counts() Counts {
	return Counts{
		Added:    len(d.Structures.Added) + len(d.Fields.Added) + len(d.References.Added),
		Updated:  len(d.Structures.Updated) + len(d.Fields.Updated) + len(d.References.Updated),
		Removed:  len(d.Structures.Removed) + len(d.Fields.Removed) + len(d.References.Removed),
		Restored: len(d.Structures.Restored) + len(d.Fields.Restored) + len(d.References.Restored),
	}
}

// Diff compares two diagrams. A nil old diagram makes everything added.
//
// # Description
//
// Keys and compared attributes per kind:
//   - structure: ID; Value.
//   - field: (ParentID, Name); Value.
//   - reference: (StartID, Name); EndID.
func Diff(old, new *diagram.Diagram) (Delta, error) {
	if old == nil {
		old = &diagram.Diagram{}
	}
	if new == nil {
		new = &diagram.Diagram{}
	}

	structures, err := Compare(old.Structures, new.Structures,
		func(s diagram.Structure) string { return s.ID },
		func(a, b diagram.Structure) bool { return a.Value == b.Value },
	)
	if err != nil {
		return Delta{}, fmt.Errorf("structures: %w", err)
	}

	fields, err := Compare(old.Fields, new.Fields,
		diagram.Field.Key,
		func(a, b diagram.Field) bool { return a.Value == b.Value },
	)
	if err != nil {
		return Delta{}, fmt.Errorf("fields: %w", err)
	}

	references, err := Compare(old.References, new.References,
		diagram.Reference.Key,
		func(a, b diagram.Reference) bool { return a.EndID == b.EndID },
	)
	if err != nil {
		return Delta{}, fmt.Errorf("references: %w", err)
	}

	return Delta{Structures: structures, Fields: fields, References: references}, nil
}
