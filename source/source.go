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

// Package source loads typed grid entities through a connector.
//
// Input entities are read in dependency order so that every reference can be resolved
// against entities that are already built. Records that fail are skipped, logged and
// collected in a Report; only wiring defects abort a load.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aaronlmathis/gridetl/connector"
	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/dag"
	"github.com/aaronlmathis/gridetl/factory"
	"github.com/aaronlmathis/gridetl/model"
	"github.com/aaronlmathis/gridetl/naming"
)

// InputTypes are the grid input types in load order.
var InputTypes = []reflect.Type{
	reflect.TypeOf((*model.OperatorInput)(nil)).Elem(),
	reflect.TypeOf((*model.LineTypeInput)(nil)).Elem(),
	reflect.TypeOf((*model.NodeInput)(nil)).Elem(),
	reflect.TypeOf((*model.LineInput)(nil)).Elem(),
	reflect.TypeOf((*model.SwitchInput)(nil)).Elem(),
	reflect.TypeOf((*model.LoadInput)(nil)).Elem(),
}

// ResultTypes are the result types read by Results when no types are given.
var ResultTypes = []reflect.Type{
	reflect.TypeOf((*model.NodeResult)(nil)).Elem(),
	reflect.TypeOf((*model.LoadResult)(nil)).Elem(),
	reflect.TypeOf((*model.StorageResult)(nil)).Elem(),
	reflect.TypeOf((*model.SwitchResult)(nil)).Elem(),
	reflect.TypeOf((*model.LineResult)(nil)).Elem(),
}

// GridSource reads entities from a connector.
type GridSource struct {
	conn        connector.Connector
	naming      *naming.Strategy
	factories   *factory.Registry
	logger      *slog.Logger
	concurrency int
}

// Option configures a GridSource.
type Option func(*GridSource)

// WithNaming sets the dataset naming strategy.
func WithNaming(n *naming.Strategy) Option {
	return func(s *GridSource) { s.naming = n }
}

// WithFactories replaces the default factory registry.
func WithFactories(r *factory.Registry) Option {
	return func(s *GridSource) { s.factories = r }
}

// WithLogger sets the logger used for skipped records.
func WithLogger(l *slog.Logger) Option {
	return func(s *GridSource) { s.logger = l }
}

// WithConcurrency limits the datasets read in parallel.
func WithConcurrency(n int) Option {
	return func(s *GridSource) { s.concurrency = n }
}

// New returns a source reading from conn.
func New(conn connector.Connector, opts ...Option) (*GridSource, error) {
	if conn == nil {
		return nil, errors.New("source: connector is required")
	}
	s := &GridSource{conn: conn, concurrency: 4}
	for _, opt := range opts {
		opt(s)
	}
	if s.naming == nil {
		s.naming = naming.NewStrategy()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.factories == nil {
		r, err := factory.DefaultRegistry()
		if err != nil {
			return nil, err
		}
		s.factories = r
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s, nil
}

// inputDependencies lists, per input type, the types its references point to.
var inputDependencies = map[reflect.Type][]reflect.Type{
	reflect.TypeOf((*model.NodeInput)(nil)).Elem():   {reflect.TypeOf((*model.OperatorInput)(nil)).Elem()},
	reflect.TypeOf((*model.LineInput)(nil)).Elem():   {reflect.TypeOf((*model.OperatorInput)(nil)).Elem(), reflect.TypeOf((*model.NodeInput)(nil)).Elem(), reflect.TypeOf((*model.LineTypeInput)(nil)).Elem()},
	reflect.TypeOf((*model.SwitchInput)(nil)).Elem(): {reflect.TypeOf((*model.OperatorInput)(nil)).Elem(), reflect.TypeOf((*model.NodeInput)(nil)).Elem()},
	reflect.TypeOf((*model.LoadInput)(nil)).Elem():   {reflect.TypeOf((*model.OperatorInput)(nil)).Elem(), reflect.TypeOf((*model.NodeInput)(nil)).Elem()},
}

// Grid loads all input entities. Missing datasets are treated as empty. Datasets are
// read as soon as the datasets they reference are loaded; independent datasets are read
// in parallel.
func (s *GridSource) Grid(ctx context.Context) (*model.RawGrid, *Report, error) {
	grid := &model.RawGrid{}
	report := &Report{}
	refs := NewResolver()
	var mu sync.Mutex

	b := dag.NewDAG("grid")
	for _, t := range InputTypes {
		t := t
		var deps []string
		for _, dep := range inputDependencies[t] {
			deps = append(deps, dep.Name())
		}
		b.Add(t.Name(), func(ctx context.Context) error {
			return s.loadInputs(ctx, t, grid, &mu, refs, report)
		}, deps)
	}
	plan, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	exec := dag.NewExecutor(dag.WithMaxWorkers(s.concurrency), dag.WithLogger(s.logger))
	if _, err := exec.Execute(ctx, plan); err != nil {
		var taskErr *dag.TaskError
		if errors.As(err, &taskErr) {
			err = taskErr.Err
		}
		return nil, report, err
	}

	s.logger.Info("grid loaded",
		"operators", len(grid.Operators),
		"nodes", len(grid.Nodes),
		"lines", len(grid.Lines),
		"switches", len(grid.Switches),
		"loads", len(grid.Loads),
		"skipped", len(report.Problems()))
	return grid, report, nil
}

// loadInputs reads the dataset of input type t into grid and makes every built entity
// available to refs.
func (s *GridSource) loadInputs(ctx context.Context, t reflect.Type, grid *model.RawGrid, mu *sync.Mutex, refs *Resolver, report *Report) error {
	name := s.naming.EntityName(t)
	return s.each(ctx, name, func(row int, record core.Record) error {
		v, err := s.build(refs, record, t)
		if err != nil {
			return s.skip(report, name, row, t, record, err)
		}
		e, ok := v.(model.Entity)
		if !ok {
			return &factory.UnsupportedTypeError{Target: reflect.TypeOf(v), Supported: InputTypes}
		}
		mu.Lock()
		added := grid.Add(e)
		mu.Unlock()
		if !added {
			return &factory.UnsupportedTypeError{Target: reflect.TypeOf(v), Supported: InputTypes}
		}
		refs.Add(e)
		report.record(true)
		return nil
	})
}

// Results loads result entities of types, or of ResultTypes when none are given. Each
// type is read concurrently; the returned entities keep the order of types.
func (s *GridSource) Results(ctx context.Context, types ...reflect.Type) ([]model.Entity, *Report, error) {
	if len(types) == 0 {
		types = ResultTypes
	}
	report := &Report{}
	perType := make([][]model.Entity, len(types))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, t := range types {
		i, t := i, t
		g.Go(func() error {
			name := s.naming.EntityName(t)
			return s.each(ctx, name, func(row int, record core.Record) error {
				v, err := s.build(nil, record, t)
				if err != nil {
					return s.skip(report, name, row, t, record, err)
				}
				e, ok := v.(model.Entity)
				if !ok {
					return &factory.UnsupportedTypeError{Target: reflect.TypeOf(v), Supported: types}
				}
				perType[i] = append(perType[i], e)
				report.record(true)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report, err
	}

	var out []model.Entity
	for _, es := range perType {
		out = append(out, es...)
	}
	return out, report, nil
}

// TimeSeries loads every individual time series the connector lists. Series files are
// recognised by name; other datasets are ignored.
func (s *GridSource) TimeSeries(ctx context.Context) ([]model.TimeSeries, *Report, error) {
	names, err := s.conn.Names(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list datasets: %w", err)
	}

	type series struct {
		name   string
		scheme string
		id     uuid.UUID
	}
	var found []series
	for _, name := range names {
		scheme, id, err := s.naming.ParseTimeSeriesName(name)
		if err != nil {
			continue
		}
		found = append(found, series{name: name, scheme: scheme, id: id})
	}

	report := &Report{}
	out := make([]model.TimeSeries, len(found))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, f := range found {
		i, f := i, f
		g.Go(func() error {
			var (
				ts  model.TimeSeries
				err error
			)
			switch f.scheme {
			case naming.SchemeActivePower:
				ts, err = loadSeries[model.PValue](ctx, s, report, f.name, f.id)
			case naming.SchemeApparentPower:
				ts, err = loadSeries[model.SValue](ctx, s, report, f.name, f.id)
			default:
				s.logger.Warn("skipping time series with unknown value scheme", "dataset", f.name, "scheme", f.scheme)
				return nil
			}
			out[i] = ts
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report, err
	}

	kept := out[:0]
	for _, ts := range out {
		if ts != nil {
			kept = append(kept, ts)
		}
	}
	return kept, report, nil
}

func loadSeries[V model.Value](
	ctx context.Context,
	s *GridSource,
	report *Report,
	name string,
	id uuid.UUID,
) (*model.IndividualTimeSeries[V], error) {
	target := reflect.TypeOf((*model.TimeBasedValue[V])(nil)).Elem()
	ts := &model.IndividualTimeSeries[V]{UniqueEntity: model.UniqueEntity{UUID: id}}
	err := s.each(ctx, name, func(row int, record core.Record) error {
		built, err := s.build(nil, record, target)
		if err != nil {
			return s.skip(report, name, row, target, record, err)
		}
		entry, ok := built.(model.TimeBasedValue[V])
		if !ok {
			return &factory.UnsupportedTypeError{Target: reflect.TypeOf(built), Supported: []reflect.Type{target}}
		}
		ts.Entries = append(ts.Entries, entry)
		report.record(true)
		return nil
	})
	if err != nil {
		return nil, err
	}
	ts.Sort()
	return ts, nil
}

// each streams the records of dataset name into fn. Rows are counted from 1.
func (s *GridSource) each(ctx context.Context, name string, fn func(row int, record core.Record) error) error {
	src, err := s.conn.Source(ctx, name)
	if errors.Is(err, connector.ErrNotFound) {
		s.logger.Debug("dataset not found", "dataset", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer src.Close()

	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := src.Read(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := fn(row, record); err != nil {
			return err
		}
	}
}

// build turns record into an entity of target. A nil resolver passes the attributes on
// unchanged.
func (s *GridSource) build(res *Resolver, record core.Record, target reflect.Type) (any, error) {
	if _, err := s.factories.For(target); err != nil {
		return nil, err
	}
	d, err := factory.NewEntityData(record, target)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return s.factories.Build(d)
	}
	data, err := res.Wrap(d)
	if err != nil {
		return nil, err
	}
	return s.factories.Build(data)
}

// skip records a failed row. Fatal errors are returned to stop the load.
func (s *GridSource) skip(report *Report, dataset string, row int, target reflect.Type, record core.Record, err error) error {
	if factory.IsFatal(err) {
		return err
	}
	p := Problem{
		Kind:    classify(err),
		Dataset: dataset,
		Row:     row,
		Target:  target,
		Record:  record,
		Err:     err,
	}
	report.add(p)
	s.logger.Warn("skipping record",
		"dataset", dataset,
		"row", row,
		"target", target.Name(),
		"kind", p.Kind.String(),
		"error", err,
		"record", map[string]string(record))
	return nil
}
