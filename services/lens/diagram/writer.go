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

// Format is a text export format.
type Format string

const (
	// FormatPlantUML renders @startuml object diagrams.
	FormatPlantUML Format = "plantuml"

	// FormatGraphViz renders a DOT digraph with HTML-table labels.
	FormatGraphViz Format = "graphviz"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatPlantUML, FormatGraphViz}
}

// ParseFormat accepts a format name or its common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "plantuml", "puml", "uml":
		return FormatPlantUML, nil
	case "graphviz", "dot", "gv":
		return FormatGraphViz, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Extension returns the conventional file extension, dot included.
func (f Format) Extension() string {
	switch f {
	case FormatPlantUML:
		return ".puml"
	case FormatGraphViz:
		return ".dot"
	default:
		return ".txt"
	}
}

// Writer serializes diagrams.
type Writer interface {
	Format() Format
	Write(w io.Writer, d *Diagram) error
}

// WriterFor returns the writer for a format.
func WriterFor(f Format) (Writer, error) {
	switch f {
	case FormatPlantUML:
		return PlantUMLWriter{}, nil
	case FormatGraphViz:
		return GraphVizWriter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// Render serializes d in format f.
func Render(f Format, d *Diagram) (string, error) {
	w, err := WriterFor(f)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := w.Write(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}

// block is a structure with its display rows.
type block struct {
	Structure
	rows []Field
}

// blocks lists each structure with its rows: its fields, shown as
// "value (type)" when typed, then one empty row per outgoing reference.
func blocks(d *Diagram) []block {
	out := make([]block, 0, len(d.Structures))
	for _, s := range d.Structures {
		b := block{Structure: s}
		for _, f := range d.FieldsOf(s.ID) {
			value := f.Value
			if f.Type != "" {
				value = fmt.Sprintf("%s (%s)", f.Value, f.Type)
			}
			b.rows = append(b.rows, Field{ParentID: s.ID, Name: f.Name, Value: value})
		}
		for _, r := range d.ReferencesFrom(s.ID) {
			b.rows = append(b.rows, Field{ParentID: s.ID, Name: r.Name})
		}
		out = append(out, b)
	}
	return out
}

// writeLines writes lines joined by newlines with a trailing newline.
func writeLines(w io.Writer, lines []string) error {
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}
