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

// aggregator.go - per-field aggregation over string records
package aggregate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aaronlmathis/gridetl/core"
)

// Aggregator summarises one field over a group of records. Blank values are nulls and are
// ignored by every aggregator except Count.
type Aggregator interface {
	// Add processes a record for aggregation.
	Add(ctx context.Context, record core.Record) error
	// Result returns the aggregate formatted as an attribute value. An aggregate over no
	// values is "".
	Result() string
	// Reset clears the aggregator state for reuse.
	Reset()
}

// CountAggregator counts the records of a group.
type CountAggregator struct {
	count int
}

func (c *CountAggregator) Add(ctx context.Context, record core.Record) error {
	c.count++
	return nil
}

func (c *CountAggregator) Result() string { return strconv.Itoa(c.count) }

func (c *CountAggregator) Reset() { c.count = 0 }

// numeric folds the non-blank numeric values of Field.
type numeric struct {
	Field string
	n     int
	value float64
	fold  func(acc, v float64) float64
}

func (a *numeric) Add(ctx context.Context, record core.Record) error {
	raw, ok := record.Lookup(a.Field)
	if !ok || raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("field %s: %q is not a number", a.Field, raw)
	}
	if a.n == 0 {
		a.value = v
	} else {
		a.value = a.fold(a.value, v)
	}
	a.n++
	return nil
}

func (a *numeric) Result() string {
	if a.n == 0 {
		return ""
	}
	return formatFloat(a.value)
}

func (a *numeric) Reset() {
	a.n = 0
	a.value = 0
}

// NewSum sums field.
func NewSum(field string) Aggregator {
	return &numeric{Field: field, fold: func(acc, v float64) float64 { return acc + v }}
}

// NewMin keeps the smallest value of field.
func NewMin(field string) Aggregator {
	return &numeric{Field: field, fold: func(acc, v float64) float64 { return min(acc, v) }}
}

// NewMax keeps the largest value of field.
func NewMax(field string) Aggregator {
	return &numeric{Field: field, fold: func(acc, v float64) float64 { return max(acc, v) }}
}

// AvgAggregator averages the values of Field.
type AvgAggregator struct {
	Field string
	sum   numeric
}

// NewAvg averages field.
func NewAvg(field string) Aggregator {
	return &AvgAggregator{Field: field, sum: numeric{Field: field, fold: func(acc, v float64) float64 { return acc + v }}}
}

func (a *AvgAggregator) Add(ctx context.Context, record core.Record) error {
	return a.sum.Add(ctx, record)
}

func (a *AvgAggregator) Result() string {
	if a.sum.n == 0 {
		return ""
	}
	return formatFloat(a.sum.value / float64(a.sum.n))
}

func (a *AvgAggregator) Reset() { a.sum.Reset() }

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
