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
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aaronlmathis/gridetl/geo"
	"github.com/aaronlmathis/gridetl/model"
	"github.com/aaronlmathis/gridetl/quantity"
)

// Package factory turns flat textual records into typed grid entities.
//
// A record is wrapped into EntityData together with the type it should become. Each
// EntityFactory declares the attribute sets (shapes) it accepts per target type, picks the
// single shape matching the record exactly and then builds the entity from typed getters.

// Data is implemented by EntityData and by the wrappers that add resolved references to it.
type Data interface {
	Attributes() *EntityData
}

// EntityData is an immutable, case-insensitive view of one record tagged with its target type.
type EntityData struct {
	target reflect.Type
	names  []string
	values map[string]string
}

// NewEntityData wraps fields for target. Keys that collide under case folding are rejected.
func NewEntityData(fields map[string]string, target reflect.Type) (*EntityData, error) {
	d := &EntityData{
		target: target,
		names:  make([]string, 0, len(fields)),
		values: make(map[string]string, len(fields)),
	}
	for name, value := range fields {
		key := fold(name)
		if _, dup := d.values[key]; dup {
			return nil, fmt.Errorf("%w: %q in record for %s", ErrDuplicateField, name, typeName(target))
		}
		d.values[key] = value
		d.names = append(d.names, name)
	}
	sort.Slice(d.names, func(i, j int) bool { return fold(d.names[i]) < fold(d.names[j]) })
	return d, nil
}

// MustEntityData is NewEntityData for records known to be well formed.
func MustEntityData(fields map[string]string, target reflect.Type) *EntityData {
	d, err := NewEntityData(fields, target)
	if err != nil {
		panic(err)
	}
	return d
}

// Attributes implements Data.
func (d *EntityData) Attributes() *EntityData { return d }

// Target returns the type the record should be built into.
func (d *EntityData) Target() reflect.Type { return d.target }

// Len returns the number of attributes.
func (d *EntityData) Len() int { return len(d.names) }

// Names returns the attribute names as provided, in case-insensitive order.
func (d *EntityData) Names() []string {
	return append([]string(nil), d.names...)
}

// Fields returns a copy of the attributes keyed by their provided names.
func (d *EntityData) Fields() map[string]string {
	out := make(map[string]string, len(d.names))
	for _, n := range d.names {
		out[n] = d.values[fold(n)]
	}
	return out
}

// Without returns a copy of d lacking the named attributes.
func (d *EntityData) Without(names ...string) *EntityData {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[fold(n)] = true
	}
	out := &EntityData{target: d.target, values: make(map[string]string, len(d.values))}
	for _, n := range d.names {
		if drop[fold(n)] {
			continue
		}
		out.names = append(out.names, n)
		out.values[fold(n)] = d.values[fold(n)]
	}
	return out
}

// Contains reports whether the attribute is present, even if blank.
func (d *EntityData) Contains(name string) bool {
	_, ok := d.values[fold(name)]
	return ok
}

// FieldOptional returns the raw value and whether the attribute is present.
func (d *EntityData) FieldOptional(name string) (string, bool) {
	v, ok := d.values[fold(name)]
	return v, ok
}

// Field returns the raw value of a required attribute.
func (d *EntityData) Field(name string) (string, error) {
	v, ok := d.values[fold(name)]
	if !ok {
		return "", d.missing(name)
	}
	return v, nil
}

// Bool reads "1" or "true" (any case, surrounding space ignored) as true and any other
// non-blank value as false. A blank value is missing, not false.
func (d *EntityData) Bool(name string) (bool, error) {
	raw, err := d.required(name)
	if err != nil {
		return false, err
	}
	v := strings.TrimSpace(raw)
	return v == "1" || strings.EqualFold(v, "true"), nil
}

// Int parses a decimal integer.
func (d *EntityData) Int(name string) (int, error) {
	return ParseField(d, name, func(s string) (int, error) {
		return strconv.Atoi(strings.TrimSpace(s))
	})
}

// Float parses a decimal number.
func (d *EntityData) Float(name string) (float64, error) {
	return ParseField(d, name, parseFloat)
}

// UUID parses an identifier.
func (d *EntityData) UUID(name string) (uuid.UUID, error) {
	return ParseField(d, name, parseUUID)
}

// OptionalUUID parses an identifier; a blank or absent value yields nil.
func (d *EntityData) OptionalUUID(name string) (*uuid.UUID, error) {
	return optionalField(d, name, parseUUID)
}

// UUIDs parses whitespace separated identifiers. An empty value yields an empty slice.
func (d *EntityData) UUIDs(name string) ([]uuid.UUID, error) {
	raw, err := d.Field(name)
	if err != nil {
		return nil, err
	}
	ids := []uuid.UUID{}
	for _, tok := range strings.Fields(raw) {
		id, err := parseUUID(tok)
		if err != nil {
			return nil, d.malformed(name, raw, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Quantity parses a number and attaches u.
func (d *EntityData) Quantity(name string, u quantity.Unit) (quantity.Quantity, error) {
	return ParseField(d, name, func(s string) (quantity.Quantity, error) {
		v, err := parseFloat(s)
		return quantity.New(v, u), err
	})
}

// OptionalQuantity is Quantity returning nil for a blank or absent value.
func (d *EntityData) OptionalQuantity(name string, u quantity.Unit) (*quantity.Quantity, error) {
	return optionalField(d, name, func(s string) (quantity.Quantity, error) {
		v, err := parseFloat(s)
		return quantity.New(v, u), err
	})
}

// Time parses a canonical timestamp.
func (d *EntityData) Time(name string) (time.Time, error) {
	return ParseField(d, name, parseTime)
}

// OptionalTime is Time returning nil for a blank or absent value.
func (d *EntityData) OptionalTime(name string) (*time.Time, error) {
	return optionalField(d, name, parseTime)
}

// Point parses a GeoJSON point. A blank or absent value yields nil.
func (d *EntityData) Point(name string) (*geo.Point, error) {
	raw, _ := d.FieldOptional(name)
	p, err := geo.ParsePoint(raw)
	if err != nil {
		return nil, d.malformed(name, raw, err)
	}
	return p, nil
}

// LineString parses a GeoJSON line string. A blank or absent value yields nil.
func (d *EntityData) LineString(name string) (*geo.LineString, error) {
	raw, _ := d.FieldOptional(name)
	l, err := geo.ParseLineString(raw)
	if err != nil {
		return nil, d.malformed(name, raw, err)
	}
	return l, nil
}

// Characteristic parses a curve in `prefix:{(x,y),...}` notation restricted to prefixes.
func (d *EntityData) Characteristic(name string, prefixes ...string) (model.Characteristic, error) {
	return ParseField(d, name, func(s string) (model.Characteristic, error) {
		return model.ParseCharacteristic(s, prefixes...)
	})
}

// OperationTime reads operatesFrom and operatesUntil. Absent or blank bounds are open.
func (d *EntityData) OperationTime() (model.OperationTime, error) {
	from, err := d.OptionalTime(OperatesFrom)
	if err != nil {
		return model.OperationTime{}, err
	}
	until, err := d.OptionalTime(OperatesUntil)
	if err != nil {
		return model.OperationTime{}, err
	}
	return model.OperationTime{StartDate: from, EndDate: until}, nil
}

// VoltageLevel reads voltLvl and vRated.
func (d *EntityData) VoltageLevel() (model.VoltageLevel, error) {
	id, err := d.Field(VoltLvl)
	if err != nil {
		return model.VoltageLevel{}, err
	}
	nominal, err := d.Quantity(VRated, quantity.KiloVolt)
	if err != nil {
		return model.VoltageLevel{}, err
	}
	return model.VoltageLevel{ID: id, Nominal: nominal}, nil
}

// ParseField reads a required, non-blank attribute with parse and reports parse failures
// as MalformedFieldError.
func ParseField[T any](d *EntityData, name string, parse func(string) (T, error)) (T, error) {
	var zero T
	raw, err := d.required(name)
	if err != nil {
		return zero, err
	}
	v, err := parse(raw)
	if err != nil {
		return zero, d.malformed(name, raw, err)
	}
	return v, nil
}

func optionalField[T any](d *EntityData, name string, parse func(string) (T, error)) (*T, error) {
	raw, ok := d.FieldOptional(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := parse(raw)
	if err != nil {
		return nil, d.malformed(name, raw, err)
	}
	return &v, nil
}

func (d *EntityData) required(name string) (string, error) {
	raw, ok := d.values[fold(name)]
	if !ok || strings.TrimSpace(raw) == "" {
		return "", d.missing(name)
	}
	return raw, nil
}

func (d *EntityData) missing(name string) error {
	return &MissingFieldError{Field: name, Target: d.target}
}

func (d *EntityData) malformed(name, raw string, cause error) error {
	return &MalformedFieldError{Field: name, Raw: raw, Target: d.target, Cause: cause}
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(s))
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(model.TimeLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func fold(s string) string { return strings.ToLower(s) }

// AssetData is the record of an asset together with its resolved operator.
type AssetData struct {
	*EntityData
	Operator *model.OperatorInput
}

// NodeAssetData is the record of an asset attached to one node.
type NodeAssetData struct {
	AssetData
	Node *model.NodeInput
}

// ConnectorData is the record of an asset connecting two nodes.
type ConnectorData struct {
	AssetData
	NodeA *model.NodeInput
	NodeB *model.NodeInput
}

// LineData is the record of a line with its resolved type.
type LineData struct {
	ConnectorData
	Type *model.LineTypeInput
}
