// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diagram projects snapshot graphs onto an object diagram of
// structures, fields and references, and serializes diagrams as PlantUML
// or GraphViz text.
//
// The diagram is the vocabulary shared by the diff engine and the UML
// renderer; text export reads the same model.
package diagram

import "errors"

// Validation errors. They indicate a builder defect and abort the read.
var (
	// ErrTypeMissing is returned for a primitive value without a type.
	ErrTypeMissing = errors.New("type missing for primitive value")

	// ErrNullObjectValue is returned for an object carrying the value "null".
	// Nulls are represented as null leaves, never as object values.
	ErrNullObjectValue = errors.New("unexpected null value for object")

	// ErrAnonymousObject is returned for an object with neither a name nor
	// an incoming relation.
	ErrAnonymousObject = errors.New("anonymous object references not supported")

	// ErrUnknownFormat is returned for an unsupported export format.
	ErrUnknownFormat = errors.New("unknown diagram format")
)
