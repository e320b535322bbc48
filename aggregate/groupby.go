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

package aggregate

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aaronlmathis/gridetl/core"
)

// GroupBy groups records by the values of some fields and aggregates every group, for
// example the voltage magnitudes of node results per node:
//
//	summary, err := aggregate.NewGroupBy("inputModel").
//	    Count("results").
//	    Min("vMag", "vMagMin").
//	    Max("vMag", "vMagMax").
//	    Process(ctx, reader)
type GroupBy struct {
	groupFields []string
	outputs     []string
	newAgg      map[string]func() Aggregator
}

// NewGroupBy creates a GroupBy over groupFields. Without fields all records form one group.
func NewGroupBy(groupFields ...string) *GroupBy {
	return &GroupBy{
		groupFields: groupFields,
		newAgg:      make(map[string]func() Aggregator),
	}
}

// Aggregate adds a custom aggregator written to outputField. newAgg is called once per group.
func (g *GroupBy) Aggregate(outputField string, newAgg func() Aggregator) *GroupBy {
	if _, ok := g.newAgg[outputField]; !ok {
		g.outputs = append(g.outputs, outputField)
	}
	g.newAgg[outputField] = newAgg
	return g
}

// Count adds a record count for the specified output field
func (g *GroupBy) Count(outputField string) *GroupBy {
	return g.Aggregate(outputField, func() Aggregator { return &CountAggregator{} })
}

// Sum adds a sum aggregator for the specified field
func (g *GroupBy) Sum(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, func() Aggregator { return NewSum(field) })
}

// Avg adds an average aggregator for the specified field
func (g *GroupBy) Avg(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, func() Aggregator { return NewAvg(field) })
}

// Min adds a minimum aggregator for the specified field
func (g *GroupBy) Min(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, func() Aggregator { return NewMin(field) })
}

// Max adds a maximum aggregator for the specified field
func (g *GroupBy) Max(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, func() Aggregator { return NewMax(field) })
}

// Header returns the columns of the result records: the group fields, then the outputs in
// the order they were added.
func (g *GroupBy) Header() []string {
	return append(append([]string(nil), g.groupFields...), g.outputs...)
}

type group struct {
	key  core.Record
	aggs map[string]Aggregator
}

// Process reads src until io.EOF and returns one record per group, in the order the groups
// first appeared. The source is not closed.
func (g *GroupBy) Process(ctx context.Context, src core.DataSource) ([]core.Record, error) {
	index := make(map[string]*group)
	var order []*group

	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := src.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		key, values := g.groupKey(record)
		grp, ok := index[key]
		if !ok {
			grp = &group{key: values, aggs: make(map[string]Aggregator, len(g.outputs))}
			for _, out := range g.outputs {
				grp.aggs[out] = g.newAgg[out]()
			}
			index[key] = grp
			order = append(order, grp)
		}
		for _, out := range g.outputs {
			if err := grp.aggs[out].Add(ctx, record); err != nil {
				return nil, fmt.Errorf("row %d: aggregate %s: %w", row, out, err)
			}
		}
	}

	results := make([]core.Record, 0, len(order))
	for _, grp := range order {
		result := grp.key.Clone()
		for _, out := range g.outputs {
			result[out] = grp.aggs[out].Result()
		}
		results = append(results, result)
	}
	return results, nil
}

// groupKey returns an unambiguous key for the group of record and its group values.
func (g *GroupBy) groupKey(record core.Record) (string, core.Record) {
	values := make(core.Record, len(g.groupFields))
	var b strings.Builder
	for _, field := range g.groupFields {
		v, _ := record.Lookup(field)
		values[field] = v
		fmt.Fprintf(&b, "%d:%s|", len(v), v)
	}
	return b.String(), values
}
