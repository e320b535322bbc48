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

package processor

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrProcessorNotFound    = errors.New("processor not found")
	ErrDuplicateProcessor   = errors.New("processor already registered")
	ErrTypeMismatch         = errors.New("entity type does not match processor")
	ErrUnsupportedFieldType = errors.New("unsupported field type")
	ErrNoCanonicalUnit      = errors.New("quantity field declares no canonical unit")
	ErrNilEntity            = errors.New("nil entity")
	ErrInvalidAttribute     = errors.New("invalid attribute declaration")
)

// TypeMismatchError is returned when an entity reaches a processor of another type.
// Processors match exact types only.
type TypeMismatchError struct {
	Expected reflect.Type
	Actual   reflect.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: processor for %s cannot handle %s", ErrTypeMismatch, e.Expected, e.Actual)
}

// Is reports ErrTypeMismatch.
func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

// UnsupportedFieldTypeError is returned for a field whose runtime type has no string form.
// It signals a model change without a matching stringification rule, not bad data.
type UnsupportedFieldTypeError struct {
	Owner reflect.Type
	Field string
	Type  reflect.Type
}

func (e *UnsupportedFieldTypeError) Error() string {
	return fmt.Sprintf("%s: %s.%s has type %s", ErrUnsupportedFieldType, e.Owner, e.Field, e.Type)
}

// Is reports ErrUnsupportedFieldType.
func (e *UnsupportedFieldTypeError) Is(target error) bool { return target == ErrUnsupportedFieldType }

// FieldError wraps a failure to stringify one field, e.g. a unit conversion.
type FieldError struct {
	Owner reflect.Type
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("processing %s.%s: %v", e.Owner, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// IsFatal reports whether err is a defect in the model or the wiring rather than a
// problem with one entity. Such errors must stop a batch under every error strategy.
func IsFatal(err error) bool {
	return errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrUnsupportedFieldType) ||
		errors.Is(err, ErrNoCanonicalUnit) ||
		errors.Is(err, ErrProcessorNotFound)
}
