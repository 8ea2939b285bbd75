// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builder

import (
	"strings"
	"unicode/utf8"
)

// Ellipsis marks a truncated display value.
const Ellipsis = "…"

// truncation describes how a rendering may be cut.
type truncation struct {
	// separator is searched backwards to cut at an element or word boundary.
	separator string

	// keep is how many bytes of the separator stay before the ellipsis.
	keep int

	// closing is appended after the ellipsis.
	closing string
}

var (
	stringCut      = truncation{separator: " "}
	arrayCut       = truncation{separator: ",", closing: "]"}
	stringArrayCut = truncation{separator: `","`, keep: 1, closing: "]"}
)

// truncate shortens value to at most limit runes.
//
// # Description
//
// Values within the limit are returned unchanged with an empty tooltip.
// Longer values are cut to limit-1-len(closing) runes, leaving room for
// the ellipsis and the closing marker, then back to the last separator
// after the first character when there is one, then closed with the
// ellipsis and the closing marker. The tooltip carries the full value.
func truncate(value string, limit int, cut truncation) (display, tooltip string) {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value, ""
	}
	budget := limit - 1 - utf8.RuneCountInString(cut.closing)
	if budget < 1 {
		budget = 1
	}
	body := string([]rune(value)[:budget])
	if cut.separator != "" {
		if i := strings.LastIndex(body, cut.separator); i > 0 {
			body = body[:i+cut.keep]
		}
	}
	return body + Ellipsis + cut.closing, value
}

// truncateString shortens a string value, keeping its closing quote.
func truncateString(value string, limit int) (string, string) {
	cut := stringCut
	if strings.HasPrefix(value, `"`) {
		cut.closing = `"`
	}
	return truncate(value, limit, cut)
}

// renderArray joins element values into a bracketed list.
func renderArray(elements []string) string {
	return "[" + strings.Join(elements, ",") + "]"
}
