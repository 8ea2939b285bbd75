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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	require.NoError(t, g.AddNode(&Node{ID: "object_A@1", Kind: KindObject, Type: "A", Value: "A@1"}))
	require.NoError(t, g.AddNode(&Node{ID: "object_B@2", Kind: KindObject, Type: "B", Value: "B@2"}))
	require.NoError(t, g.AddNode(&Node{ID: "object_C@3", Kind: KindObject, Type: "C", Value: "C@3"}))
	require.NoError(t, g.Link(StackFrameID, "object_A@1", "a"))
	require.NoError(t, g.Link("object_A@1", "object_B@2", "next"))
	require.NoError(t, g.Link("object_B@2", "object_C@3", "next"))
	require.NoError(t, g.Link("object_C@3", "object_A@1", "back"))
	g.Freeze()
	return g
}

func TestGraph_AddNode(t *testing.T) {
	t.Run("duplicate id is rejected", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.AddNode(&Node{ID: "x"}))
		err := g.AddNode(&Node{ID: "x"})
		assert.True(t, errors.Is(err, ErrDuplicateNode))
	})

	t.Run("empty id is rejected", func(t *testing.T) {
		g := NewGraph()
		assert.ErrorIs(t, g.AddNode(&Node{}), ErrEmptyNodeID)
		assert.ErrorIs(t, g.AddNode(nil), ErrEmptyNodeID)
	})

	t.Run("frozen graph rejects writes", func(t *testing.T) {
		g := NewGraph()
		g.Freeze()
		assert.ErrorIs(t, g.AddNode(&Node{ID: "x"}), ErrGraphFrozen)
		assert.ErrorIs(t, g.Link(StackFrameID, "x", "x"), ErrGraphFrozen)
		assert.ErrorIs(t, g.SetName("x", "x"), ErrGraphFrozen)
	})

	t.Run("max nodes", func(t *testing.T) {
		g := NewGraph(WithMaxNodes(1))
		require.NoError(t, g.AddNode(&Node{ID: "a"}))
		assert.ErrorIs(t, g.AddNode(&Node{ID: "b"}), ErrMaxNodesExceeded)
	})
}

func TestGraph_Link(t *testing.T) {
	t.Run("records both directions", func(t *testing.T) {
		g := buildChain(t)
		a, ok := g.Node("object_A@1")
		require.True(t, ok)
		assert.Equal(t, []Reference{{ChildID: "object_B@2", RelationName: "next"}}, a.References)
		assert.Equal(t, []IncomingRelation{
			{ParentID: StackFrameID, RelationName: "a"},
			{ParentID: "object_C@3", RelationName: "back"},
		}, a.IncomingRelations)
		require.NoError(t, g.Validate())
	})

	t.Run("missing endpoints", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.AddNode(&Node{ID: "a"}))
		assert.ErrorIs(t, g.Link("a", "missing", "f"), ErrNodeNotFound)
		assert.ErrorIs(t, g.Link("missing", "a", "f"), ErrNodeNotFound)
	})

	t.Run("duplicate triple is ignored", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.AddNode(&Node{ID: "a"}))
		require.NoError(t, g.AddNode(&Node{ID: "b"}))
		require.NoError(t, g.Link("a", "b", "f"))
		require.NoError(t, g.Link("a", "b", "f"))
		a, _ := g.Node("a")
		assert.Len(t, a.References, 1)
	})
}

func TestGraph_Reachable(t *testing.T) {
	g := buildChain(t)
	assert.Equal(t, []string{"object_B@2", "object_C@3"}, g.Reachable("object_A@1"))
	assert.Equal(t, []string{"object_C@3", "object_A@1"}, g.Reachable("object_B@2"))
	assert.Nil(t, g.Reachable("missing"))
}

func TestGraph_Equal(t *testing.T) {
	a := buildChain(t)
	b := buildChain(t)
	assert.True(t, a.Equal(b))

	c := NewGraph()
	for _, n := range a.Nodes() {
		require.NoError(t, c.AddNode(n))
	}
	require.NoError(t, c.SetValue("object_B@2", "B@2 changed", ""))
	c.Freeze()
	assert.False(t, a.Equal(c))

	var nilGraph *Graph
	assert.True(t, nilGraph.Equal(Empty()))
	assert.False(t, nilGraph.Equal(a))
}

func TestGraph_NodeReturnsCopy(t *testing.T) {
	g := buildChain(t)
	n, _ := g.Node("object_A@1")
	n.References[0].RelationName = "mutated"
	again, _ := g.Node("object_A@1")
	assert.Equal(t, "next", again.References[0].RelationName)
}

func TestGraph_Validate(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode(&Node{ID: "a", References: []Reference{{ChildID: "b", RelationName: "f"}}}))
	assert.ErrorIs(t, g.Validate(), ErrDanglingReference)

	h := NewGraph()
	require.NoError(t, h.AddNode(&Node{ID: "a", References: []Reference{{ChildID: "b", RelationName: "f"}}}))
	require.NoError(t, h.AddNode(&Node{ID: "b"}))
	assert.ErrorIs(t, h.Validate(), ErrInconsistentRelation)
}

func TestNode_RootOnly(t *testing.T) {
	n := &Node{IncomingRelations: []IncomingRelation{{ParentID: StackFrameID, RelationName: "x"}}}
	assert.True(t, n.RootOnly())
	n.IncomingRelations = append(n.IncomingRelations, IncomingRelation{ParentID: "p", RelationName: "f"})
	assert.False(t, n.RootOnly())
	assert.False(t, (&Node{}).RootOnly())
	assert.Equal(t, "x", n.DisplayName())
}
