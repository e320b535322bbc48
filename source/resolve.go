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
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/aaronlmathis/gridetl/factory"
	"github.com/aaronlmathis/gridetl/model"
)

// Resolver replaces reference attributes by the entities they point to. It is safe for
// concurrent use.
type Resolver struct {
	mu   sync.RWMutex
	refs map[uuid.UUID]model.Entity
}

// NewResolver returns a resolver knowing entities.
func NewResolver(entities ...model.Entity) *Resolver {
	r := &Resolver{refs: make(map[uuid.UUID]model.Entity, len(entities))}
	for _, e := range entities {
		r.Add(e)
	}
	return r
}

// Add makes e available to later references.
func (r *Resolver) Add(e model.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs[e.EntityUUID()] = e
}

// Len returns the number of known entities.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.refs)
}

func (r *Resolver) get(id uuid.UUID) (model.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.refs[id]
	return e, ok
}

// Wrap returns the factory input for d. Input types with references get their
// resolved entities attached and the reference attributes removed.
func (r *Resolver) Wrap(d *factory.EntityData) (factory.Data, error) {
	target := d.Target()
	switch target {
	case reflect.TypeOf((*model.NodeInput)(nil)).Elem():
		return r.asset(d)
	case reflect.TypeOf((*model.SwitchInput)(nil)).Elem():
		return r.connector(d)
	case reflect.TypeOf((*model.LineInput)(nil)).Elem():
		c, err := r.connector(d)
		if err != nil {
			return nil, err
		}
		lt, err := lookup[*model.LineTypeInput](r, d, factory.Type)
		if err != nil {
			return nil, err
		}
		return factory.LineData{ConnectorData: c, Type: lt}, nil
	case reflect.TypeOf((*model.LoadInput)(nil)).Elem():
		a, err := r.asset(d)
		if err != nil {
			return nil, err
		}
		n, err := lookup[*model.NodeInput](r, d, factory.Node)
		if err != nil {
			return nil, err
		}
		return factory.NodeAssetData{AssetData: a, Node: n}, nil
	default:
		return d, nil
	}
}

func (r *Resolver) asset(d *factory.EntityData) (factory.AssetData, error) {
	op, err := lookup[*model.OperatorInput](r, d, factory.Operator)
	if err != nil {
		return factory.AssetData{}, err
	}
	return factory.AssetData{EntityData: d.Without(factory.ReferenceAttributes...), Operator: op}, nil
}

func (r *Resolver) connector(d *factory.EntityData) (factory.ConnectorData, error) {
	a, err := r.asset(d)
	if err != nil {
		return factory.ConnectorData{}, err
	}
	nodeA, err := lookup[*model.NodeInput](r, d, factory.NodeA)
	if err != nil {
		return factory.ConnectorData{}, err
	}
	nodeB, err := lookup[*model.NodeInput](r, d, factory.NodeB)
	if err != nil {
		return factory.ConnectorData{}, err
	}
	return factory.ConnectorData{AssetData: a, NodeA: nodeA, NodeB: nodeB}, nil
}

// lookup resolves attribute key of d. A blank or absent reference yields the zero value;
// the factory decides whether that is acceptable.
func lookup[T model.Entity](r *Resolver, d *factory.EntityData, key string) (T, error) {
	var zero T
	raw, ok := d.FieldOptional(key)
	if !ok || raw == "" {
		return zero, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return zero, &factory.MalformedFieldError{Field: key, Raw: raw, Target: d.Target(), Cause: err}
	}
	want := reflect.TypeOf((*T)(nil)).Elem()
	e, ok := r.get(id)
	if !ok {
		return zero, &UnresolvedReferenceError{Attribute: key, UUID: id, Want: want.Elem()}
	}
	v, ok := e.(T)
	if !ok {
		return zero, fmt.Errorf("%w: found %T", &UnresolvedReferenceError{Attribute: key, UUID: id, Want: want.Elem()}, e)
	}
	return v, nil
}
