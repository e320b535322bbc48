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
	"fmt"
	"reflect"
	"sort"

	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/model"
)

// Registry holds one processor per exact entity type and one per time series key.
// It is filled at startup and only read afterwards.
type Registry struct {
	extractor *Extractor
	entities  map[reflect.Type]*EntityProcessor
	series    map[TimeSeriesKey]*TimeSeriesProcessor
}

// NewRegistry returns a registry with processors for types.
func NewRegistry(x *Extractor, types ...reflect.Type) (*Registry, error) {
	r := &Registry{
		extractor: x,
		entities:  make(map[reflect.Type]*EntityProcessor),
		series:    make(map[TimeSeriesKey]*TimeSeriesProcessor),
	}
	for _, t := range types {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a processor for t.
func (r *Registry) Register(t reflect.Type) error {
	p, err := NewEntityProcessor(r.extractor, t)
	if err != nil {
		return err
	}
	if _, ok := r.entities[p.Type()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProcessor, p.Type())
	}
	r.entities[p.Type()] = p
	return nil
}

// RegisterTimeSeries adds a processor for key.
func (r *Registry) RegisterTimeSeries(key TimeSeriesKey) error {
	if _, ok := r.series[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProcessor, key)
	}
	p, err := NewTimeSeriesProcessor(r.extractor, key)
	if err != nil {
		return err
	}
	r.series[key] = p
	return nil
}

// For returns the processor of t.
func (r *Registry) For(t reflect.Type) (*EntityProcessor, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	p, ok := r.entities[t]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrProcessorNotFound, t)
	}
	return p, nil
}

// ForTimeSeries returns the processor of key.
func (r *Registry) ForTimeSeries(key TimeSeriesKey) (*TimeSeriesProcessor, error) {
	p, ok := r.series[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcessorNotFound, key)
	}
	return p, nil
}

// HandleEntity dispatches e to the processor of its type.
func (r *Registry) HandleEntity(e any) (core.Record, error) {
	if e == nil {
		return nil, ErrNilEntity
	}
	p, err := r.For(reflect.TypeOf(e))
	if err != nil {
		return nil, err
	}
	return p.HandleEntity(e)
}

// HandleTimeSeries dispatches ts to the processor of its key.
func (r *Registry) HandleTimeSeries(ts model.TimeSeries) ([]core.Record, error) {
	if ts == nil {
		return nil, ErrNilEntity
	}
	p, err := r.ForTimeSeries(KeyOf(ts))
	if err != nil {
		return nil, err
	}
	return p.HandleTimeSeries(ts)
}

// HeaderElements returns the columns of t.
func (r *Registry) HeaderElements(t reflect.Type) ([]string, error) {
	p, err := r.For(t)
	if err != nil {
		return nil, err
	}
	return p.HeaderElements(), nil
}

// Types returns the registered entity types ordered by name.
func (r *Registry) Types() []reflect.Type {
	out := make([]reflect.Type, 0, len(r.entities))
	for t := range r.entities {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// DefaultRegistry returns a registry for every entity and time series kind of the model.
func DefaultRegistry() (*Registry, error) {
	r, err := NewRegistry(NewExtractor(),
		reflect.TypeOf((*model.OperatorInput)(nil)).Elem(),
		reflect.TypeOf((*model.LineTypeInput)(nil)).Elem(),
		reflect.TypeOf((*model.NodeInput)(nil)).Elem(),
		reflect.TypeOf((*model.LineInput)(nil)).Elem(),
		reflect.TypeOf((*model.SwitchInput)(nil)).Elem(),
		reflect.TypeOf((*model.LoadInput)(nil)).Elem(),
		reflect.TypeOf((*model.NodeResult)(nil)).Elem(),
		reflect.TypeOf((*model.LoadResult)(nil)).Elem(),
		reflect.TypeOf((*model.StorageResult)(nil)).Elem(),
		reflect.TypeOf((*model.SwitchResult)(nil)).Elem(),
		reflect.TypeOf((*model.LineResult)(nil)).Elem(),
	)
	if err != nil {
		return nil, err
	}
	for _, key := range []TimeSeriesKey{
		IndividualTimeSeriesKey[model.PValue](),
		IndividualTimeSeriesKey[model.SValue](),
	} {
		if err := r.RegisterTimeSeries(key); err != nil {
			return nil, err
		}
	}
	return r, nil
}
