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

package source

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/factory"
)

// ProblemKind classifies a record that could not be turned into an entity.
type ProblemKind int

const (
	// MalformedRecord covers shape mismatches and unparsable values.
	MalformedRecord ProblemKind = iota
	// UnknownType means no factory is registered for the target type.
	UnknownType
	// UnresolvedReference means a referenced entity was not loaded.
	UnresolvedReference
)

func (k ProblemKind) String() string {
	switch k {
	case MalformedRecord:
		return "malformed record"
	case UnknownType:
		return "unknown type"
	case UnresolvedReference:
		return "unresolved reference"
	default:
		return fmt.Sprintf("ProblemKind(%d)", int(k))
	}
}

// UnresolvedReferenceError reports a reference attribute whose UUID is not among the
// entities loaded so far, or points to an entity of the wrong kind.
type UnresolvedReferenceError struct {
	Attribute string
	UUID      uuid.UUID
	Want      reflect.Type
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("attribute %q references unknown %s %s", e.Attribute, e.Want.Name(), e.UUID)
}

// Problem is one skipped record.
type Problem struct {
	Kind    ProblemKind
	Dataset string
	Row     int
	Target  reflect.Type
	Record  core.Record
	Err     error
}

func (p Problem) Error() string {
	return fmt.Sprintf("%s row %d: %s: %v", p.Dataset, p.Row, p.Kind, p.Err)
}

func (p Problem) Unwrap() error { return p.Err }

// Report collects the outcome of a load. It is safe for concurrent use.
type Report struct {
	mu       sync.Mutex
	read     int
	built    int
	problems []Problem
}

func (r *Report) record(built bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.read++
	if built {
		r.built++
	}
}

func (r *Report) add(p Problem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.read++
	r.problems = append(r.problems, p)
}

// Read returns the number of records read.
func (r *Report) Read() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read
}

// Built returns the number of entities built.
func (r *Report) Built() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.built
}

// Problems returns a copy of the skipped records.
func (r *Report) Problems() []Problem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Problem(nil), r.problems...)
}

// Count returns the number of problems of kind k.
func (r *Report) Count(k ProblemKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.problems {
		if p.Kind == k {
			n++
		}
	}
	return n
}

// OK reports whether every record was built.
func (r *Report) OK() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.problems) == 0
}

// Err joins all problems, or returns nil when there are none.
func (r *Report) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := make([]error, len(r.problems))
	for i, p := range r.problems {
		errs[i] = p
	}
	return errors.Join(errs...)
}

func classify(err error) ProblemKind {
	var unresolved *UnresolvedReferenceError
	switch {
	case errors.Is(err, factory.ErrFactoryNotFound):
		return UnknownType
	case errors.As(err, &unresolved), errors.Is(err, factory.ErrUnresolved):
		return UnresolvedReference
	default:
		return MalformedRecord
	}
}
