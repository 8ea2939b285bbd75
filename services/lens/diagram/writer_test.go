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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDiagram() *Diagram {
	return &Diagram{
		Structures: []Structure{
			{ID: StackFrameID, Type: StackFrameType},
			{ID: "P", Name: "p", Type: "Person", Value: "Person@1"},
		},
		Fields: []Field{
			{ParentID: StackFrameID, Name: "x", Value: "9", Type: "int"},
			{ParentID: "P", Name: "name", Value: "hi"},
		},
		References: []Reference{
			{StartID: StackFrameID, EndID: "P", Name: "p"},
		},
	}
}

func TestPlantUMLWriter(t *testing.T) {
	out, err := Render(FormatPlantUML, sampleDiagram())
	require.NoError(t, err)
	assert.Equal(t, `@startuml
map "" as __stackFrame__ <<[StackFrame]>> {
  x => 9 (int)
  p =>
}
object "p" as P <<Person>> {
  Person@1
  name => hi
}
__stackFrame__::p => P : p
@enduml
`, out)
	assert.Contains(t, out, "\n  name => hi\n")
}

func TestPlantUMLWriter_QuotesInNames(t *testing.T) {
	d := &Diagram{Structures: []Structure{{ID: "Q", Name: `say "hi"`, Type: "T"}}}
	out, err := Render(FormatPlantUML, d)
	require.NoError(t, err)
	assert.Contains(t, out, `map "say <U+0022>hi<U+0022>" as Q <<T>> {`)
}

func TestGraphVizWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, GraphVizWriter{}.Write(&buf, sampleDiagram()))
	assert.Equal(t, `digraph ObjectDiagram {
  node [shape=plaintext]
  __stackFrame__ [label=<<table border="0" cellborder="1" cellspacing="0">
    <th><td colspan="2"><b></b><br/><i>&lt;&lt;[StackFrame]&gt;&gt;</i></td></th>
    <tr><td align="left">x</td><td align="left" port="x">9 (int)</td></tr>
    <tr><td align="left">p</td><td align="left" port="p"></td></tr>
  </table>>]
  P [label=<<table border="0" cellborder="1" cellspacing="0">
    <th><td colspan="2"><b>p</b><br/><i>&lt;&lt;Person&gt;&gt;</i></td></th>
    <tr><td colspan="2">Person@1</td></tr>
    <tr><td align="left">name</td><td align="left" port="name">hi</td></tr>
  </table>>]
  __stackFrame__:p -> P [label="p"]
}
`, buf.String())
}

func TestGraphVizWriter_EscapesMarkup(t *testing.T) {
	d := &Diagram{Structures: []Structure{{ID: "L", Name: "list", Type: "List<String>", Value: "a&b"}}}
	out, err := Render(FormatGraphViz, d)
	require.NoError(t, err)
	assert.Contains(t, out, "&lt;&lt;List&lt;String&gt;&gt;&gt;")
	assert.Contains(t, out, "<td colspan=\"2\">a&amp;b</td>")
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"plantuml": FormatPlantUML,
		".puml":    FormatPlantUML,
		"DOT":      FormatGraphViz,
		"graphviz": FormatGraphViz,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("svg")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = WriterFor("svg")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.Equal(t, ".dot", FormatGraphViz.Extension())
}
