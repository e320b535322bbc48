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
	"strings"
)

// Factory is the type-erased view of an EntityFactory held by a Registry.
type Factory interface {
	// SupportedTypes returns the target types the factory builds.
	SupportedTypes() []reflect.Type
	// ShapesFor returns the accepted attribute sets for target.
	ShapesFor(target reflect.Type) []Shape
	// BuildAny builds one record into an entity of data's target type.
	BuildAny(data Data) (any, error)
}

// EntityFactory builds values of T from records wrapped in D.
type EntityFactory[D Data, T any] struct {
	supported  []reflect.Type
	shapesFor  func(target reflect.Type) []Shape
	buildModel func(data D, shape int) (T, error)
}

// NewEntityFactory returns a factory for the supported target types. shapesFor declares the
// accepted attribute sets per target type; buildModel receives the index of the matched shape.
func NewEntityFactory[D Data, T any](
	shapesFor func(target reflect.Type) []Shape,
	buildModel func(data D, shape int) (T, error),
	supported ...reflect.Type,
) *EntityFactory[D, T] {
	return &EntityFactory[D, T]{
		supported:  supported,
		shapesFor:  shapesFor,
		buildModel: buildModel,
	}
}

// SupportedTypes implements Factory.
func (f *EntityFactory[D, T]) SupportedTypes() []reflect.Type {
	return append([]reflect.Type(nil), f.supported...)
}

// ShapesFor implements Factory.
func (f *EntityFactory[D, T]) ShapesFor(target reflect.Type) []Shape {
	return f.shapesFor(target)
}

// Supports reports whether target is one of the factory's types.
func (f *EntityFactory[D, T]) Supports(target reflect.Type) bool {
	for _, t := range f.supported {
		if t == target {
			return true
		}
	}
	return false
}

// Build turns one record into a T.
//
// An unsupported target type is returned as *UnsupportedTypeError and must be treated as
// fatal. Shape mismatches and field errors are returned as *FactoryError and only concern
// this record.
func (f *EntityFactory[D, T]) Build(data D) (T, error) {
	var zero T
	attrs := data.Attributes()
	if !f.Supports(attrs.Target()) {
		return zero, &UnsupportedTypeError{Target: attrs.Target(), Supported: f.SupportedTypes()}
	}

	shape, err := MatchShape(attrs, f.shapesFor(attrs.Target()))
	if err != nil {
		return zero, &FactoryError{Target: attrs.Target(), Err: err}
	}

	entity, err := f.buildModel(data, shape)
	if err != nil {
		return zero, &FactoryError{Target: attrs.Target(), Err: err}
	}
	return entity, nil
}

// BuildAny implements Factory. A bare *EntityData for a type with references is lifted
// into D with no references resolved, so the record fails on its own rather than as a
// wiring defect.
func (f *EntityFactory[D, T]) BuildAny(data Data) (any, error) {
	d, ok := data.(D)
	if !ok {
		attrs := data.Attributes()
		if !f.Supports(attrs.Target()) {
			return nil, &UnsupportedTypeError{Target: attrs.Target(), Supported: f.SupportedTypes()}
		}
		var err error
		if d, err = lift[D](attrs); err != nil {
			return nil, err
		}
	}
	v, err := f.Build(d)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// lift wraps d into the reference carrying type D. References present in the record are
// reported as unresolved, blank ones are dropped.
func lift[D Data](d *EntityData) (D, error) {
	var zero D
	if _, bare := any(zero).(*EntityData); bare {
		return any(d).(D), nil
	}
	for _, name := range ReferenceAttributes {
		if raw, ok := d.FieldOptional(name); ok && strings.TrimSpace(raw) != "" {
			return zero, &FactoryError{
				Target: d.Target(),
				Err:    &UnresolvedReferenceError{Field: name, Raw: raw, Target: d.Target()},
			}
		}
	}
	asset := AssetData{EntityData: d.Without(ReferenceAttributes...)}
	var out any
	switch any(zero).(type) {
	case AssetData:
		out = asset
	case NodeAssetData:
		out = NodeAssetData{AssetData: asset}
	case ConnectorData:
		out = ConnectorData{AssetData: asset}
	case LineData:
		out = LineData{ConnectorData: ConnectorData{AssetData: asset}}
	default:
		return zero, &UnsupportedTypeError{Target: d.Target(), Supported: []reflect.Type{reflect.TypeOf((*D)(nil)).Elem()}}
	}
	return out.(D), nil
}

// Validate checks the declared shapes of every supported type.
func (f *EntityFactory[D, T]) Validate() error {
	for _, t := range f.supported {
		if err := ValidateShapes(f.shapesFor(t)); err != nil {
			return fmt.Errorf("%s: %w", typeName(t), err)
		}
	}
	return nil
}
