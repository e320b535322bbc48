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

package transform

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/model"
	"github.com/aaronlmathis/gridetl/naming"
	"github.com/aaronlmathis/gridetl/quantity"
)

// Package transform provides reusable, composable record transformations for GridETL
// pipelines.
//
// Transformations prepare foreign datasets for the entity factories: selecting and renaming
// columns, normalising keys and values, filling defaults and converting units. Every
// function returns a core.Transformer and never modifies its input record.

// Select creates a transformer that keeps only the specified fields.
func Select(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(fields))
		for _, field := range fields {
			if value, exists := record[field]; exists {
				result[field] = value
			}
		}
		return result, nil
	})
}

// Rename creates a transformer that renames fields according to mapping.
// Keys are original field names, values are new field names.
func Rename(mapping map[string]string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(record))
		for key, value := range record {
			if newKey, exists := mapping[key]; exists {
				result[newKey] = value
			} else {
				result[key] = value
			}
		}
		return result, nil
	})
}

// Alias renames field alias to name, matching alias case-insensitively. It fails when
// both are present with different values.
func Alias(name string, aliases ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		for key, value := range record {
			if strings.EqualFold(key, name) {
				continue
			}
			for _, alias := range aliases {
				if !strings.EqualFold(key, alias) {
					continue
				}
				if existing, ok := result.Lookup(name); ok && existing != value {
					return nil, fmt.Errorf("field %q conflicts with its alias %q", name, key)
				}
				delete(result, key)
				result[name] = value
			}
		}
		return result, nil
	})
}

// CamelCaseKeys rewrites snake case or separated keys to lower camel case, so that
// "v_mag" becomes "vMag" and "operates-from" becomes "operatesFrom".
func CamelCaseKeys() core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(record))
		for key, value := range record {
			result[camelCase(key)] = value
		}
		return result, nil
	})
}

// LowerCaseKeys lower-cases every key.
func LowerCaseKeys() core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(record))
		for key, value := range record {
			lower := strings.ToLower(key)
			if _, dup := result[lower]; dup {
				return nil, fmt.Errorf("keys collide after lower-casing: %q", lower)
			}
			result[lower] = value
		}
		return result, nil
	})
}

// AddField creates a transformer that adds a field computed from the record.
func AddField(field string, fn func(core.Record) string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		result[field] = fn(record)
		return result, nil
	})
}

// Default fills field with value when it is absent or blank.
func Default(field, value string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		if current, ok := record[field]; !ok || strings.TrimSpace(current) == "" {
			result[field] = value
		}
		return result, nil
	})
}

// TrimSpace trims whitespace from the specified fields, or from every field when none
// are given.
func TrimSpace(fields ...string) core.Transformer {
	return mapValues(strings.TrimSpace, fields)
}

// ToUpper converts the specified fields to uppercase.
func ToUpper(fields ...string) core.Transformer {
	return mapValues(strings.ToUpper, fields)
}

// ToLower converts the specified fields to lowercase.
func ToLower(fields ...string) core.Transformer {
	return mapValues(strings.ToLower, fields)
}

// NullValues blanks fields whose value is one of markers, for datasets that spell out
// absent values such as "NULL" or "n/a".
func NullValues(markers ...string) core.Transformer {
	set := make(map[string]struct{}, len(markers))
	for _, m := range markers {
		set[m] = struct{}{}
	}
	return mapValues(func(v string) string {
		if _, ok := set[v]; ok {
			return ""
		}
		return v
	}, nil)
}

// ParseTime re-formats field from layout into the timestamp layout of the model.
// Blank values stay blank.
func ParseTime(field, layout string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		value, exists := record[field]
		if !exists || value == "" {
			return record, nil
		}
		parsed, err := time.Parse(layout, value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse time field %s: %w", field, err)
		}
		result := record.Clone()
		result[field] = parsed.UTC().Format(model.TimeLayout)
		return result, nil
	})
}

// ConvertUnit rescales the numeric value of field from one unit to another, for sources
// that store e.g. line lengths in metres instead of kilometres.
func ConvertUnit(field string, from, to quantity.Unit) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		value, exists := record[field]
		if !exists || strings.TrimSpace(value) == "" {
			return record, nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("failed to convert field %s: %w", field, err)
		}
		converted, err := quantity.New(v, from).ValueIn(to)
		if err != nil {
			return nil, fmt.Errorf("failed to convert field %s: %w", field, err)
		}
		result := record.Clone()
		result[field] = quantity.FormatValue(converted)
		return result, nil
	})
}

// RemoveFields removes the specified fields. Fields that don't exist are ignored.
func RemoveFields(fields ...string) core.Transformer {
	remove := make(map[string]bool, len(fields))
	for _, field := range fields {
		remove[field] = true
	}

	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(record))
		for k, v := range record {
			if !remove[k] {
				result[k] = v
			}
		}
		return result, nil
	})
}

// Chain composes transformers into one, applied in order.
func Chain(transformers ...core.Transformer) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		current := record
		for _, t := range transformers {
			next, err := t.Transform(ctx, current)
			if err != nil {
				return nil, err
			}
			current = next
		}
		return current, nil
	})
}

func mapValues(fn func(string) string, fields []string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		if len(fields) == 0 {
			for k, v := range result {
				result[k] = fn(v)
			}
			return result, nil
		}
		for _, field := range fields {
			if value, exists := record[field]; exists {
				result[field] = fn(value)
			}
		}
		return result, nil
	})
}

func camelCase(key string) string {
	tokens := naming.Tokenize(key)
	var b strings.Builder
	for i, t := range tokens {
		if i == 0 {
			if strings.ToUpper(t) == t {
				b.WriteString(strings.ToLower(t))
			} else {
				b.WriteString(strings.ToLower(t[:1]) + t[1:])
			}
			continue
		}
		b.WriteString(strings.ToUpper(t[:1]) + t[1:])
	}
	return b.String()
}
