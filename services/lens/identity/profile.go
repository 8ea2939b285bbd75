// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package identity

import (
	"fmt"
	"slices"
)

// TypeProfile is the closed set of language type names that drive
// classification. Types outside the profile are objects.
type TypeProfile struct {
	// Name identifies the profile, e.g. "java".
	Name string `yaml:"name" json:"name" validate:"required"`

	// Primitives are scalar type names. Each also forms an array type
	// with ArraySuffix appended.
	Primitives []string `yaml:"primitives" json:"primitives" validate:"required,min=1,dive,required"`

	// Strings are string type names. Each also forms a string array type.
	Strings []string `yaml:"strings" json:"strings" validate:"dive,required"`

	// NullType is the type the adapter reports for null values.
	NullType string `yaml:"null_type" json:"null_type"`

	// NullValue is the value the adapter reports for null references.
	NullValue string `yaml:"null_value" json:"null_value"`

	// ArraySuffix turns an element type into its array type.
	ArraySuffix string `yaml:"array_suffix" json:"array_suffix"`

	// SizeAnnotation starts the descriptive suffix stripped from object
	// values before they become IDs, e.g. "size=" in "ArrayList@12 size=3".
	SizeAnnotation string `yaml:"size_annotation" json:"size_annotation"`
}

// JavaProfile returns the profile for the Java debug adapter.
func JavaProfile() TypeProfile {
	return TypeProfile{
		Name:           "java",
		Primitives:     []string{"boolean", "char", "byte", "short", "int", "long", "float", "double"},
		Strings:        []string{"String"},
		NullType:       "null",
		NullValue:      "null",
		ArraySuffix:    "[]",
		SizeAnnotation: "size=",
	}
}

// Validate checks that the profile can classify anything at all.
func (p TypeProfile) Validate() error {
	if len(p.Primitives) == 0 {
		return fmt.Errorf("%w: %q has no primitive types", ErrInvalidProfile, p.Name)
	}
	if slices.Contains(p.Primitives, "") || slices.Contains(p.Strings, "") {
		return fmt.Errorf("%w: %q contains an empty type name", ErrInvalidProfile, p.Name)
	}
	return nil
}

// Classification is the result of classifying one raw variable.
//
// At most one predicate is true. All false means the variable is an object.
type Classification struct {
	IsPrimitive      bool
	IsPrimitiveArray bool
	IsNull           bool
	IsString         bool
	IsStringArray    bool
}

// IsObject reports whether no other predicate applies.
func (c Classification) IsObject() bool {
	return !c.IsPrimitive && !c.IsPrimitiveArray && !c.IsNull && !c.IsString && !c.IsStringArray
}

// IsArray reports whether the variable renders as a bracketed element list.
func (c Classification) IsArray() bool {
	return c.IsPrimitiveArray || c.IsStringArray
}

// IsLeaf reports whether the variable becomes a single-value leaf node.
func (c Classification) IsLeaf() bool {
	return c.IsString || c.IsArray()
}

// String names the classification.
func (c Classification) String() string {
	switch {
	case c.IsPrimitive:
		return "primitive"
	case c.IsPrimitiveArray:
		return "primitive-array"
	case c.IsNull:
		return "null"
	case c.IsString:
		return "string"
	case c.IsStringArray:
		return "string-array"
	default:
		return "object"
	}
}
