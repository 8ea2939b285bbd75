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
	"html"
	"io"
)

// GraphVizWriter renders object diagrams as a DOT digraph whose nodes are
// HTML tables with one port per row.
type GraphVizWriter struct{}

// Format implements Writer.
func (GraphVizWriter) Format() Format {
	return FormatGraphViz
}

// Write implements Writer.
func (GraphVizWriter) Write(w io.Writer, d *Diagram) error {
	lines := []string{
		"digraph ObjectDiagram {",
		"  node [shape=plaintext]",
	}
	for _, b := range blocks(d) {
		lines = append(lines,
			fmt.Sprintf(`  %s [label=<<table border="0" cellborder="1" cellspacing="0">`, b.ID),
			fmt.Sprintf(`    <th><td colspan="2"><b>%s</b><br/><i>&lt;&lt;%s&gt;&gt;</i></td></th>`,
				html.EscapeString(b.Name), html.EscapeString(b.Type)),
		)
		if b.Value != "" {
			lines = append(lines, fmt.Sprintf(`    <tr><td colspan="2">%s</td></tr>`, html.EscapeString(b.Value)))
		}
		for _, row := range b.rows {
			name := html.EscapeString(row.Name)
			lines = append(lines, fmt.Sprintf(`    <tr><td align="left">%s</td><td align="left" port="%s">%s</td></tr>`,
				name, name, html.EscapeString(row.Value)))
		}
		lines = append(lines, "  </table>>]")
	}
	for _, r := range d.References {
		lines = append(lines, fmt.Sprintf(`  %s:%s -> %s [label="%s"]`, r.StartID, r.Name, r.EndID, r.Name))
	}
	lines = append(lines, "}")
	return writeLines(w, lines)
}
