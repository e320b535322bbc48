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

	"github.com/aaronlmathis/gridetl/core"
)

// EntityProcessor flattens entities of one exact type into records.
type EntityProcessor struct {
	typ   reflect.Type
	table *AttributeTable
}

// NewEntityProcessor builds the processor for t, resolving its attribute table through x.
func NewEntityProcessor(x *Extractor, t reflect.Type) (*EntityProcessor, error) {
	table, err := x.Table(t)
	if err != nil {
		return nil, err
	}
	return &EntityProcessor{typ: table.Type(), table: table}, nil
}

// Type returns the entity type handled by the processor.
func (p *EntityProcessor) Type() reflect.Type { return p.typ }

// HeaderElements returns the columns of every record produced by HandleEntity, in order.
func (p *EntityProcessor) HeaderElements() []string {
	return p.table.Names()
}

// HandleEntity flattens e, which must be a p.Type() value or a pointer to one.
func (p *EntityProcessor) HandleEntity(e any) (core.Record, error) {
	v := reflect.ValueOf(e)
	if !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
		return nil, fmt.Errorf("%w: processor for %s", ErrNilEntity, p.typ)
	}
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Type() != p.typ {
		return nil, &TypeMismatchError{Expected: p.typ, Actual: reflect.TypeOf(e)}
	}

	record := make(core.Record, len(p.table.attrs))
	for _, a := range p.table.attrs {
		s, err := stringify(p.typ, a, a.Value(v))
		if err != nil {
			return nil, err
		}
		record[a.Name] = s
	}
	return record, nil
}
