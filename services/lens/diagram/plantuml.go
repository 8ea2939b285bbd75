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
	"io"
	"strings"
)

// PlantUMLWriter renders object diagrams in PlantUML syntax.
type PlantUMLWriter struct{}

// Format implements Writer.
func (PlantUMLWriter) Format() Format {
	return FormatPlantUML
}

// Write implements Writer.
func (PlantUMLWriter) Write(w io.Writer, d *Diagram) error {
	lines := []string{"@startuml"}
	for _, b := range blocks(d) {
		keyword := "map"
		if b.Value != "" {
			keyword = "object"
		}
		name := strings.ReplaceAll(b.Name, `"`, "<U+0022>")
		lines = append(lines, fmt.Sprintf(`%s "%s" as %s <<%s>> {`, keyword, name, b.ID, b.Type))
		if b.Value != "" {
			lines = append(lines, "  "+b.Value)
		}
		for _, row := range b.rows {
			line := "  " + row.Name + " =>"
			if row.Value != "" {
				line += " " + row.Value
			}
			lines = append(lines, line)
		}
		lines = append(lines, "}")
	}
	for _, r := range d.References {
		lines = append(lines, fmt.Sprintf("%s::%s => %s : %s", r.StartID, r.Name, r.EndID, r.Name))
	}
	lines = append(lines, "@enduml")
	return writeLines(w, lines)
}
