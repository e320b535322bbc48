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
	"strings"
	"sync"

	"github.com/aaronlmathis/gridetl/model"
	"github.com/aaronlmathis/gridetl/quantity"
)

// Package processor flattens typed grid entities into textual records.
//
// Attributes are the exported struct fields carrying an `attr` tag. Embedded structs are
// flattened, `attr:",inline"` flattens a named field and `attr:"-"` hides one. The optional
// `unit=` tag option names the unit a quantity field is persisted in for its owning type.

const tagName = "attr"

// UUIDAttribute is always the first column.
const UUIDAttribute = "uuid"

// Attribute is one column of an AttributeTable.
type Attribute struct {
	Name  string
	Unit  quantity.Unit
	index []int
}

// Value returns the attribute of v, which must be of the table's type.
func (a Attribute) Value(v reflect.Value) reflect.Value {
	return v.FieldByIndex(a.index)
}

// AttributeTable is the ordered set of attributes of one type.
type AttributeTable struct {
	typ   reflect.Type
	attrs []Attribute
}

// Type returns the struct type described by the table.
func (t *AttributeTable) Type() reflect.Type { return t.typ }

// Attributes returns the columns in output order.
func (t *AttributeTable) Attributes() []Attribute {
	return append([]Attribute(nil), t.attrs...)
}

// Names returns the column names in output order.
func (t *AttributeTable) Names() []string {
	names := make([]string, len(t.attrs))
	for i, a := range t.attrs {
		names[i] = a.Name
	}
	return names
}

type compositePart struct {
	name  string
	field string
	unit  string
}

// compositeRules split value objects into several columns.
var compositeRules = map[reflect.Type][]compositePart{
	reflect.TypeOf((*model.OperationTime)(nil)).Elem(): {
		{name: "operatesFrom", field: "StartDate"},
		{name: "operatesUntil", field: "EndDate"},
	},
	reflect.TypeOf((*model.VoltageLevel)(nil)).Elem(): {
		{name: "vRated", field: "Nominal", unit: "kV"},
		{name: "voltLvl", field: "ID"},
	},
}

// Extractor builds attribute tables and caches them per type.
// It is safe for concurrent use.
type Extractor struct {
	cache sync.Map
}

// NewExtractor returns an empty extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Table returns the attribute table of t. Pointer types are dereferenced.
func (x *Extractor) Table(t reflect.Type) (*AttributeTable, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := x.cache.Load(t); ok {
		return cached.(*AttributeTable), nil
	}

	table, err := buildTable(t)
	if err != nil {
		return nil, err
	}
	actual, _ := x.cache.LoadOrStore(t, table)
	return actual.(*AttributeTable), nil
}

func buildTable(t reflect.Type) (*AttributeTable, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidAttribute, t)
	}

	var attrs []Attribute
	if err := collect(t, nil, &attrs); err != nil {
		return nil, fmt.Errorf("%s: %w", t, err)
	}

	excluded := map[string]bool{}
	if ex, ok := reflect.Zero(t).Interface().(model.AttributeExcluder); ok {
		for _, name := range ex.ExcludedAttributes() {
			excluded[strings.ToLower(name)] = true
		}
	}

	seen := map[string]bool{}
	kept := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Name)
		if excluded[key] {
			continue
		}
		if seen[key] {
			return nil, fmt.Errorf("%w: %s declares %q twice", ErrInvalidAttribute, t, a.Name)
		}
		seen[key] = true
		kept = append(kept, a)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return lessAttribute(kept[i].Name, kept[j].Name)
	})
	return &AttributeTable{typ: t, attrs: kept}, nil
}

// lessAttribute orders uuid first and everything else case-insensitively.
func lessAttribute(a, b string) bool {
	au, bu := strings.EqualFold(a, UUIDAttribute), strings.EqualFold(b, UUIDAttribute)
	if au != bu {
		return au
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

func collect(t reflect.Type, prefix []int, out *[]Attribute) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		index := append(append([]int(nil), prefix...), i)

		tag, hasTag := f.Tag.Lookup(tagName)
		name, opts := parseTag(tag)
		if name == "-" {
			continue
		}

		if parts, ok := compositeRules[f.Type]; ok && name == "" {
			for _, p := range parts {
				sub, _ := f.Type.FieldByName(p.field)
				a, err := newAttribute(p.name, p.unit, append(append([]int(nil), index...), sub.Index...))
				if err != nil {
					return err
				}
				*out = append(*out, a)
			}
			continue
		}

		if f.Type.Kind() == reflect.Struct && name == "" && (f.Anonymous || opts["inline"] != "") {
			if err := collect(f.Type, index, out); err != nil {
				return err
			}
			continue
		}

		if !hasTag || name == "" {
			continue
		}
		a, err := newAttribute(name, opts["unit"], index)
		if err != nil {
			return err
		}
		*out = append(*out, a)
	}
	return nil
}

func newAttribute(name, unitSymbol string, index []int) (Attribute, error) {
	a := Attribute{Name: name, index: index}
	if unitSymbol == "" {
		return a, nil
	}
	u, err := quantity.ParseUnit(unitSymbol)
	if err != nil {
		return a, fmt.Errorf("%w: attribute %q: %v", ErrInvalidAttribute, name, err)
	}
	a.Unit = u
	return a, nil
}

// parseTag splits `name,opt,key=value` into the name and its options. Bare options map to
// their own name.
func parseTag(tag string) (string, map[string]string) {
	parts := strings.Split(tag, ",")
	opts := make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok {
			v = k
		}
		opts[k] = v
	}
	return strings.TrimSpace(parts[0]), opts
}
