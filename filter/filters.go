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

package filter

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/model"
)

// Package filter provides reusable, composable record filters for GridETL pipelines.
//
// Field names are matched like the entity factories match them: an exact key wins,
// otherwise keys compare case-insensitively. An empty value counts as absent.

// NotEmpty excludes records where any of the fields is absent or blank.
func NotEmpty(fields ...string) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, field := range fields {
			value, exists := record.Lookup(field)
			if !exists || strings.TrimSpace(value) == "" {
				return false, nil
			}
		}
		return true, nil
	})
}

// Equals includes records where the field equals value.
func Equals(field, value string) core.Filter {
	return match(field, func(v string) bool { return v == value })
}

// EqualFold includes records where the field equals value ignoring case.
func EqualFold(field, value string) core.Filter {
	return match(field, func(v string) bool { return strings.EqualFold(v, value) })
}

// In includes records where the field value is one of values.
func In(field string, values ...string) core.Filter {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return match(field, func(v string) bool {
		_, ok := set[v]
		return ok
	})
}

// UUIDIn includes records where the field holds one of ids, regardless of how the uuid
// is spelled.
func UUIDIn(field string, ids ...uuid.UUID) core.Filter {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return match(field, func(v string) bool {
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil {
			return false
		}
		_, ok := set[id]
		return ok
	})
}

// Contains includes records where the field contains substring.
func Contains(field, substring string) core.Filter {
	return match(field, func(v string) bool { return strings.Contains(v, substring) })
}

// StartsWith includes records where the field starts with prefix.
func StartsWith(field, prefix string) core.Filter {
	return match(field, func(v string) bool { return strings.HasPrefix(v, prefix) })
}

// EndsWith includes records where the field ends with suffix.
func EndsWith(field, suffix string) core.Filter {
	return match(field, func(v string) bool { return strings.HasSuffix(v, suffix) })
}

// MatchesRegex includes records where the field matches pattern. It panics if pattern
// does not compile.
func MatchesRegex(field, pattern string) core.Filter {
	regex := regexp.MustCompile(pattern)
	return match(field, regex.MatchString)
}

// GreaterThan includes records where the numeric field is greater than threshold.
// Values that are not numbers are excluded.
func GreaterThan(field string, threshold float64) core.Filter {
	return numeric(field, func(n float64) bool { return n > threshold })
}

// LessThan includes records where the numeric field is less than threshold.
func LessThan(field string, threshold float64) core.Filter {
	return numeric(field, func(n float64) bool { return n < threshold })
}

// Between includes records where the numeric field is between lo and hi (inclusive).
func Between(field string, lo, hi float64) core.Filter {
	return numeric(field, func(n float64) bool { return n >= lo && n <= hi })
}

// TimeBetween includes records whose timestamp field lies in [from, until). A zero until
// leaves the window open. A malformed timestamp is an error rather than a silent drop.
func TimeBetween(field string, from, until time.Time) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record.Lookup(field)
		if !exists || value == "" {
			return false, nil
		}
		t, err := time.Parse(model.TimeLayout, value)
		if err != nil {
			return false, fmt.Errorf("filter on %s: %w", field, err)
		}
		if t.Before(from) {
			return false, nil
		}
		return until.IsZero() || t.Before(until), nil
	})
}

// And requires all filters to pass.
func And(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil {
				return false, err
			}
			if !include {
				return false, nil
			}
		}
		return true, nil
	})
}

// Or requires at least one filter to pass.
func Or(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil {
				return false, err
			}
			if include {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not negates filter.
func Not(filter core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		return !include, nil
	})
}

// Custom creates a filter from a predicate.
func Custom(predicate func(core.Record) bool) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		return predicate(record), nil
	})
}

func match(field string, pred func(string) bool) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record.Lookup(field)
		if !exists {
			return false, nil
		}
		return pred(value), nil
	})
}

func numeric(field string, pred func(float64) bool) core.Filter {
	return match(field, func(v string) bool {
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return false
		}
		return pred(n)
	})
}
