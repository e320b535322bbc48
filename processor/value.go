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
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aaronlmathis/gridetl/geo"
	"github.com/aaronlmathis/gridetl/model"
	"github.com/aaronlmathis/gridetl/quantity"
)

// stringify renders one attribute value. Absent values become "". The set of handled types
// is closed; anything else is an UnsupportedFieldTypeError.
func stringify(owner reflect.Type, a Attribute, v reflect.Value) (string, error) {
	switch x := v.Interface().(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return quantity.FormatValue(x), nil
	case uuid.UUID:
		return x.String(), nil
	case []uuid.UUID:
		ids := make([]string, len(x))
		for i, id := range x {
			ids[i] = id.String()
		}
		return strings.Join(ids, " "), nil
	case quantity.Quantity:
		return canonical(owner, a, x)
	case *quantity.Quantity:
		if x == nil {
			return "", nil
		}
		return canonical(owner, a, *x)
	case time.Time:
		return formatTime(x), nil
	case *time.Time:
		if x == nil {
			return "", nil
		}
		return formatTime(*x), nil
	case *geo.Point:
		if x == nil {
			return "", nil
		}
		return x.String(), nil
	case *geo.LineString:
		if x == nil {
			return "", nil
		}
		return x.String(), nil
	case model.Characteristic:
		if x.IsZero() {
			return "", nil
		}
		return x.String(), nil
	case *model.OperatorInput:
		if model.IsNotAssigned(x) {
			return "", nil
		}
		return x.UUID.String(), nil
	case model.Enum:
		return x.EnumKey(), nil
	case model.Entity:
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return "", nil
		}
		return x.EntityUUID().String(), nil
	default:
		return "", &UnsupportedFieldTypeError{Owner: owner, Field: a.Name, Type: v.Type()}
	}
}

// canonical converts q into the unit declared for the attribute on its owning type. An
// unset quantity is absent.
func canonical(owner reflect.Type, a Attribute, q quantity.Quantity) (string, error) {
	if q.Unit().IsZero() {
		return "", nil
	}
	if a.Unit.IsZero() {
		return "", &FieldError{Owner: owner, Field: a.Name, Err: ErrNoCanonicalUnit}
	}
	v, err := q.ValueIn(a.Unit)
	if err != nil {
		return "", &FieldError{Owner: owner, Field: a.Name, Err: err}
	}
	return quantity.FormatValue(v), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(model.TimeLayout)
}
