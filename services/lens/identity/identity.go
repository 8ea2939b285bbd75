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
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/AleutianAI/objectlens/services/lens/debugger"
	"github.com/AleutianAI/objectlens/services/lens/graph"
)

const (
	objectPrefix   = "object_"
	nullPrefix     = "null_"
	variablePrefix = "variable_"
	valuePrefix    = "value_"
)

// ID is an issued node ID together with the kind of node it names.
type ID struct {
	Value string
	Kind  graph.Kind
}

// Scheme classifies raw variables and assigns their node IDs.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type Scheme struct {
	profile         TypeProfile
	primitives      map[string]struct{}
	primitiveArrays map[string]struct{}
	strings         map[string]struct{}
	stringArrays    map[string]struct{}
}

// NewScheme builds a Scheme for the given profile.
func NewScheme(profile TypeProfile) (*Scheme, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	s := &Scheme{
		profile:         profile,
		primitives:      make(map[string]struct{}, len(profile.Primitives)),
		primitiveArrays: make(map[string]struct{}, len(profile.Primitives)),
		strings:         make(map[string]struct{}, len(profile.Strings)),
		stringArrays:    make(map[string]struct{}, len(profile.Strings)),
	}
	for _, t := range profile.Primitives {
		s.primitives[t] = struct{}{}
		if profile.ArraySuffix != "" {
			s.primitiveArrays[t+profile.ArraySuffix] = struct{}{}
		}
	}
	for _, t := range profile.Strings {
		s.strings[t] = struct{}{}
		if profile.ArraySuffix != "" {
			s.stringArrays[t+profile.ArraySuffix] = struct{}{}
		}
	}
	return s, nil
}

// MustJava returns the Java scheme. It panics only if JavaProfile is broken.
func MustJava() *Scheme {
	s, err := NewScheme(JavaProfile())
	if err != nil {
		panic(err)
	}
	return s
}

// Profile returns the profile the scheme was built from.
func (s *Scheme) Profile() TypeProfile {
	return s.profile
}

// Classify reports what kind of value a raw variable holds.
func (s *Scheme) Classify(v debugger.Variable) Classification {
	if _, ok := s.primitives[v.Type]; ok {
		return Classification{IsPrimitive: true}
	}
	if _, ok := s.primitiveArrays[v.Type]; ok {
		return Classification{IsPrimitiveArray: true}
	}
	if s.isNull(v) {
		return Classification{IsNull: true}
	}
	if _, ok := s.strings[v.Type]; ok {
		return Classification{IsString: true}
	}
	if _, ok := s.stringArrays[v.Type]; ok {
		return Classification{IsStringArray: true}
	}
	return Classification{}
}

func (s *Scheme) isNull(v debugger.Variable) bool {
	if s.profile.NullType != "" && v.Type == s.profile.NullType {
		return true
	}
	return s.profile.NullValue != "" && v.Value == s.profile.NullValue && !v.HasChildren()
}

// NodeID returns the ID of a variable reached from the stack frame, and of
// any object regardless of where it was reached.
//
// # Description
//
//   - null: a hash of name, type and value.
//   - object: the reported value token with the size annotation stripped.
//   - primitive: a hash of name, type and value (KindPrimitive).
//   - string or array: a hash of name, type and value (KindValue).
func (s *Scheme) NodeID(v debugger.Variable) ID {
	c := s.Classify(v)
	switch {
	case c.IsNull:
		return ID{Value: nullPrefix + Digest(v.Name, v.Type, v.Value), Kind: graph.KindNull}
	case c.IsObject():
		return ID{Value: objectPrefix + s.ObjectToken(v), Kind: graph.KindObject}
	case c.IsPrimitive:
		return ID{Value: variablePrefix + Digest(v.Name, v.Type, v.Value), Kind: graph.KindPrimitive}
	default:
		return ID{Value: variablePrefix + Digest(v.Name, v.Type, v.Value), Kind: graph.KindValue}
	}
}

// LeafID returns the ID of a string, array or null leaf owned by parentID.
//
// Leaves have no runtime identity of their own; keying them by owner and
// field keeps the ID stable while the value changes between stops, and
// keeps two owners from sharing one leaf.
func (s *Scheme) LeafID(parentID string, v debugger.Variable) ID {
	if s.Classify(v).IsNull {
		return ID{Value: nullPrefix + Digest(parentID, v.Name), Kind: graph.KindNull}
	}
	return ID{Value: valuePrefix + Digest(parentID, v.Name), Kind: graph.KindValue}
}

// ObjectToken returns the identity token of an object variable.
func (s *Scheme) ObjectToken(v debugger.Variable) string {
	token := v.Value
	if s.profile.SizeAnnotation != "" {
		if i := strings.Index(token, s.profile.SizeAnnotation); i >= 0 {
			token = token[:i]
		}
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Digest(v.Name, v.Type, strconv.Itoa(v.VariablesReference))
	}
	return token
}

// Digest returns a 16-digit hex hash of the given parts.
func Digest(parts ...string) string {
	// Hash fails only for unsupported kinds; []string is always supported.
	h, _ := hashstructure.Hash(parts, hashstructure.FormatV2, nil)
	return fmt.Sprintf("%016x", h)
}

// Registry remembers which kind every issued ID names.
//
// # Description
//
// A build pass registers each ID before creating its node. The first
// registration reports fresh; later ones with the same kind are memoized
// hits; a later one with a different kind is a collision.
//
// # Thread Safety
//
// Safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	kinds map[string]graph.Kind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]graph.Kind)}
}

// Register records id and reports whether it was seen for the first time.
func (r *Registry) Register(id ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kind, seen := r.kinds[id.Value]
	if !seen {
		r.kinds[id.Value] = id.Kind
		return true, nil
	}
	if kind != id.Kind {
		return false, fmt.Errorf("%w: %s issued as %s and %s", ErrIDCollision, id.Value, kind, id.Kind)
	}
	return false, nil
}

// Len returns the number of registered IDs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.kinds)
}
