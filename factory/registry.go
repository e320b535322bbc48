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
	"reflect"
	"sort"
)

// Registry maps target types to their factories.
// It is filled once at startup and only read afterwards, so concurrent Build calls are safe.
type Registry struct {
	factories map[reflect.Type]Factory
}

// NewRegistry returns a registry holding fs.
func NewRegistry(fs ...Factory) (*Registry, error) {
	r := &Registry{factories: make(map[reflect.Type]Factory)}
	for _, f := range fs {
		if err := r.Register(f); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds f for each of its supported types after checking its shapes.
func (r *Registry) Register(f Factory) error {
	for _, t := range f.SupportedTypes() {
		if _, ok := r.factories[t]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateFactory, typeName(t))
		}
		if err := ValidateShapes(f.ShapesFor(t)); err != nil {
			return fmt.Errorf("%s: %w", typeName(t), err)
		}
	}
	for _, t := range f.SupportedTypes() {
		r.factories[t] = f
	}
	return nil
}

// For returns the factory registered for t.
func (r *Registry) For(t reflect.Type) (Factory, error) {
	f, ok := r.factories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFactoryNotFound, typeName(t))
	}
	return f, nil
}

// Build dispatches data to the factory of its target type. ErrFactoryNotFound is returned
// unwrapped so callers can tell unknown types apart from bad records.
func (r *Registry) Build(data Data) (any, error) {
	f, err := r.For(data.Attributes().Target())
	if err != nil {
		return nil, err
	}
	return f.BuildAny(data)
}

// Types returns the registered target types ordered by name.
func (r *Registry) Types() []reflect.Type {
	out := make([]reflect.Type, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Build is a typed convenience over Registry.Build.
func Build[T any](r *Registry, data Data) (T, error) {
	var zero T
	v, err := r.Build(data)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, &UnsupportedTypeError{Target: reflect.TypeOf(v), Supported: []reflect.Type{reflect.TypeOf((*T)(nil)).Elem()}}
	}
	return t, nil
}
