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
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Sentinel errors for classifying factory failures with errors.Is.
var (
	ErrMissingField     = errors.New("missing field")
	ErrMalformedField   = errors.New("malformed field")
	ErrDuplicateField   = errors.New("duplicate field")
	ErrShapeMismatch    = errors.New("no unique shape matches the provided fields")
	ErrUnsupportedType  = errors.New("unsupported target type")
	ErrFactoryNotFound  = errors.New("factory not found")
	ErrDuplicateFactory = errors.New("factory already registered")
	ErrAmbiguousShapes  = errors.New("factory declares identical shapes")
	ErrUnresolved       = errors.New("unresolved reference")
)

// MissingFieldError reports a required attribute absent from the record or blank.
type MissingFieldError struct {
	Field  string
	Target reflect.Type
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: field %q is missing or empty", typeName(e.Target), e.Field)
}

// Is reports ErrMissingField.
func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

// MalformedFieldError reports a raw value that could not be parsed into the requested type.
type MalformedFieldError struct {
	Field  string
	Raw    string
	Target reflect.Type
	Cause  error
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("%s: field %q has malformed value %q: %v", typeName(e.Target), e.Field, e.Raw, e.Cause)
}

// Is reports ErrMalformedField.
func (e *MalformedFieldError) Is(target error) bool { return target == ErrMalformedField }

// Unwrap returns the parse error.
func (e *MalformedFieldError) Unwrap() error { return e.Cause }

// UnresolvedReferenceError reports a reference attribute that was handed to a factory
// without the referenced entity. It concerns only the one record.
type UnresolvedReferenceError struct {
	Field  string
	Raw    string
	Target reflect.Type
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("%s: reference %s=%q was not resolved", typeName(e.Target), e.Field, e.Raw)
}

// Is reports ErrUnresolved.
func (e *UnresolvedReferenceError) Is(target error) bool { return target == ErrUnresolved }

// ShapeMismatchError lists the provided attributes and every candidate shape so that a
// broken source file can be fixed without reading code.
type ShapeMismatchError struct {
	Target     reflect.Type
	Provided   []Attribute
	Candidates []Shape
	Matches    []int
}

// Attribute is one provided name and raw value.
type Attribute struct {
	Name  string
	Value string
}

func (e *ShapeMismatchError) Error() string {
	var b strings.Builder
	names := make([]string, len(e.Provided))
	for i, a := range e.Provided {
		names[i] = a.Name
	}
	fmt.Fprintf(&b, "the provided fields [%s] with data\n{", strings.Join(names, ", "))
	for i, a := range e.Provided {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "%s -> %s", a.Name, a.Value)
	}
	b.WriteString("}\n")
	if len(e.Matches) > 1 {
		fmt.Fprintf(&b, "match %d shapes of %s ambiguously.\n", len(e.Matches), typeName(e.Target))
	} else {
		fmt.Fprintf(&b, "are invalid for an instance of %s.\n", typeName(e.Target))
	}
	fmt.Fprintf(&b, "The following field sets are accepted for %s (not case-sensitive):\n", typeName(e.Target))
	for i, s := range e.Candidates {
		fmt.Fprintf(&b, "%d: [%s]\n", i, strings.Join(s.Attributes(), ", "))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports ErrShapeMismatch.
func (e *ShapeMismatchError) Is(target error) bool { return target == ErrShapeMismatch }

// Ambiguous reports whether more than one shape matched.
func (e *ShapeMismatchError) Ambiguous() bool { return len(e.Matches) > 1 }

// UnsupportedTypeError is raised when a factory is asked to build a type it was not
// declared for. It is a wiring defect and is always fatal.
type UnsupportedTypeError struct {
	Target    reflect.Type
	Supported []reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	names := make([]string, len(e.Supported))
	for i, t := range e.Supported {
		names[i] = typeName(t)
	}
	return fmt.Sprintf("%s: cannot build %s, supported types are [%s]",
		ErrUnsupportedType, typeName(e.Target), strings.Join(names, ", "))
}

// Is reports ErrUnsupportedType.
func (e *UnsupportedTypeError) Is(target error) bool { return target == ErrUnsupportedType }

// FactoryError wraps a recoverable failure to build one record.
type FactoryError struct {
	Target reflect.Type
	Err    error
}

func (e *FactoryError) Error() string {
	return fmt.Sprintf("factory error building %s: %v", typeName(e.Target), e.Err)
}

func (e *FactoryError) Unwrap() error { return e.Err }

// IsFatal reports whether err is a wiring defect that must stop a batch rather than skip
// the record.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnsupportedType) || errors.Is(err, ErrAmbiguousShapes)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
