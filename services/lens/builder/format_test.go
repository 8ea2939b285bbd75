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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	t.Run("short values are untouched", func(t *testing.T) {
		display, tooltip := truncateString(`"hi"`, 30)
		assert.Equal(t, `"hi"`, display)
		assert.Empty(t, tooltip)
	})

	t.Run("strings cut at a word boundary", func(t *testing.T) {
		full := `"the quick brown fox jumps over the lazy dog"`
		display, tooltip := truncateString(full, 30)
		assert.Equal(t, `"the quick brown fox jumps…"`, display)
		assert.Equal(t, full, tooltip)
	})

	t.Run("primitive arrays cut at an element boundary", func(t *testing.T) {
		elems := make([]string, 0, 20)
		for i := 1; i <= 20; i++ {
			elems = append(elems, itoa(i))
		}
		display, tooltip := truncate(renderArray(elems), 30, arrayCut)
		assert.Equal(t, "[1,2,3,4,5,6,7,8,9,10,11,12…]", display)
		assert.Equal(t, renderArray(elems), tooltip)
	})

	t.Run("string arrays keep the closing quote", func(t *testing.T) {
		full := renderArray([]string{`"alpha"`, `"beta"`, `"gamma"`, `"delta"`, `"epsilon"`})
		display, _ := truncate(full, 30, stringArrayCut)
		assert.Equal(t, `["alpha","beta","gamma"…]`, display)
	})

	t.Run("never exceeds the budget", func(t *testing.T) {
		display, _ := truncateString(`"`+strings.Repeat("x", 80)+`"`, 30)
		assert.LessOrEqual(t, len([]rune(display)), 30)
	})

	t.Run("cut length leaves room for the markers", func(t *testing.T) {
		display, _ := truncateString(strings.Repeat("y", 40), 30)
		assert.Equal(t, strings.Repeat("y", 29)+Ellipsis, display)

		display, _ = truncateString(`"`+strings.Repeat("x", 40)+`"`, 30)
		assert.Equal(t, `"`+strings.Repeat("x", 27)+Ellipsis+`"`, display)
	})

	t.Run("zero limit disables truncation", func(t *testing.T) {
		display, tooltip := truncateString(strings.Repeat("y", 100), 0)
		assert.Len(t, display, 100)
		assert.Empty(t, tooltip)
	})
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}
