// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the snapshot graph of a paused program's variables.
//
// Nodes are runtime objects, rooted primitive holders, string/array value
// leaves and null leaves. Edges are named relations recorded twice: as an
// incoming relation on the child and as a reference on the parent.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use during building. It is designed for:
//   - Single-writer access during build phase (AddNode, Link calls)
//   - Read-only access after Freeze() is called
//
// After Freeze(), the graph can be safely read from multiple goroutines.
//
// # Lifecycle
//
//  1. Create with NewGraph()
//  2. Build with AddNode(), Link() and the attribute setters
//  3. Call Freeze() to finalize
//  4. Read with Node(), Nodes(), Reachable() and friends
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrGraphFrozen is returned when attempting to modify a frozen graph.
	ErrGraphFrozen = errors.New("graph is frozen and cannot be modified")

	// ErrNodeNotFound is returned when a relation names a node that does
	// not exist. Both endpoints must be added before they are linked.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when adding a node with an ID that
	// already exists in the graph.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrEmptyNodeID is returned when adding a node without an ID.
	ErrEmptyNodeID = errors.New("node ID must not be empty")

	// ErrMaxNodesExceeded is returned when the graph has reached its
	// configured maximum node capacity.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrDanglingReference is returned by Validate when a reference points
	// at a node that is not part of the graph.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrInconsistentRelation is returned by Validate when a reference has
	// no matching incoming relation on its child, or the reverse.
	ErrInconsistentRelation = errors.New("reference and incoming relation disagree")
)
