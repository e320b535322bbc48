//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GridETL.
//
// GridETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GridETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GridETL. If not, see https://www.gnu.org/licenses/.

package factory

import (
	"fmt"
	"strings"
)

// Attribute names shared by several factories.
const (
	UUID          = "uuid"
	ID            = "id"
	OperatesFrom  = "operatesFrom"
	OperatesUntil = "operatesUntil"
	VRated        = "vRated"
	VoltLvl       = "voltLvl"
	Time          = "time"
	InputModel    = "inputModel"

	// References resolved by the caller and removed before matching.
	Operator = "operator"
	Node     = "node"
	NodeA    = "nodeA"
	NodeB    = "nodeB"
	Type     = "type"
)

// ReferenceAttributes are the attribute names holding UUIDs of other entities.
var ReferenceAttributes = []string{Operator, Node, NodeA, NodeB, Type}

// Shape is a named set of attribute names accepted by one construction variant.
// Names compare case-insensitively and duplicates are dropped.
type Shape struct {
	name  string
	attrs []string
	set   map[string]struct{}
}

// NewShape returns a shape holding attrs in the given order, without duplicates.
func NewShape(name string, attrs ...string) Shape {
	s := Shape{name: name, set: make(map[string]struct{}, len(attrs))}
	return s.add(attrs)
}

// With returns a new shape extending s by attrs.
func (s Shape) With(name string, attrs ...string) Shape {
	out := Shape{name: name, set: make(map[string]struct{}, len(s.attrs)+len(attrs))}
	out = out.add(s.attrs)
	return out.add(attrs)
}

func (s Shape) add(attrs []string) Shape {
	for _, a := range attrs {
		key := fold(a)
		if _, ok := s.set[key]; ok {
			continue
		}
		s.set[key] = struct{}{}
		s.attrs = append(s.attrs, a)
	}
	return s
}

// Name returns the variant name.
func (s Shape) Name() string { return s.name }

// Attributes returns the attribute names in declaration order.
func (s Shape) Attributes() []string { return append([]string(nil), s.attrs...) }

// Len returns the number of attributes.
func (s Shape) Len() int { return len(s.attrs) }

// Contains reports whether the shape holds the attribute.
func (s Shape) Contains(attr string) bool {
	_, ok := s.set[fold(attr)]
	return ok
}

// Equal reports whether both shapes hold the same attribute set.
func (s Shape) Equal(other Shape) bool {
	if len(s.set) != len(other.set) {
		return false
	}
	for k := range s.set {
		if _, ok := other.set[k]; !ok {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	return fmt.Sprintf("%s[%s]", s.name, strings.Join(s.attrs, ", "))
}

func (s Shape) matches(d *EntityData) bool {
	if len(s.set) != len(d.values) {
		return false
	}
	for k := range d.values {
		if _, ok := s.set[k]; !ok {
			return false
		}
	}
	return true
}

// MatchShape returns the index of the one shape whose attribute set equals the attributes
// of d. No match or several matches yield a *ShapeMismatchError.
func MatchShape(d *EntityData, shapes []Shape) (int, error) {
	var matches []int
	for i, s := range shapes {
		if s.matches(d) {
			matches = append(matches, i)
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	provided := make([]Attribute, len(d.names))
	for i, n := range d.names {
		provided[i] = Attribute{Name: n, Value: d.values[fold(n)]}
	}
	return -1, &ShapeMismatchError{
		Target:     d.target,
		Provided:   provided,
		Candidates: shapes,
		Matches:    matches,
	}
}

// ValidateShapes rejects shape lists in which two shapes hold the same attribute set.
func ValidateShapes(shapes []Shape) error {
	for i := range shapes {
		for j := i + 1; j < len(shapes); j++ {
			if shapes[i].Equal(shapes[j]) {
				return fmt.Errorf("%w: %d %s and %d %s", ErrAmbiguousShapes, i, shapes[i], j, shapes[j])
			}
		}
	}
	return nil
}

// withOperationTime returns base followed by its variant accepting operatesFrom and
// operatesUntil.
func withOperationTime(base Shape) []Shape {
	return []Shape{base, base.With(base.name+"+operationTime", OperatesFrom, OperatesUntil)}
}
