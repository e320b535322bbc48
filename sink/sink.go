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

// Package sink persists typed grid entities through a connector.
//
// Every entity type is written to its own dataset, named by the naming strategy, with the
// column order of its processor. Datasets are opened on first use and kept open until
// Close, so the header is written exactly once per type.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/aaronlmathis/gridetl/connector"
	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/model"
	"github.com/aaronlmathis/gridetl/naming"
	"github.com/aaronlmathis/gridetl/processor"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("sink: closed")

// EntitySink writes entities and time series into per-type datasets. It is safe for
// concurrent use.
type EntitySink struct {
	conn       connector.Connector
	naming     *naming.Strategy
	processors *processor.Registry
	logger     *slog.Logger

	mu      sync.Mutex
	sinks   map[string]core.DataSink
	written map[string]int
	closed  bool
}

// Option configures an EntitySink.
type Option func(*EntitySink)

// WithNaming sets the dataset naming strategy.
func WithNaming(n *naming.Strategy) Option {
	return func(s *EntitySink) { s.naming = n }
}

// WithProcessors replaces the default processor registry.
func WithProcessors(r *processor.Registry) Option {
	return func(s *EntitySink) { s.processors = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *EntitySink) { s.logger = l }
}

// New returns a sink writing into conn.
func New(conn connector.Connector, opts ...Option) (*EntitySink, error) {
	if conn == nil {
		return nil, errors.New("sink: connector is required")
	}
	s := &EntitySink{
		conn:    conn,
		sinks:   make(map[string]core.DataSink),
		written: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.naming == nil {
		s.naming = naming.NewStrategy()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.processors == nil {
		r, err := processor.DefaultRegistry()
		if err != nil {
			return nil, err
		}
		s.processors = r
	}
	return s, nil
}

// Persist writes one entity to the dataset of its type.
func (s *EntitySink) Persist(ctx context.Context, e model.Entity) error {
	if e == nil {
		return processor.ErrNilEntity
	}
	if ts, ok := e.(model.TimeSeries); ok {
		return s.PersistTimeSeries(ctx, ts)
	}
	p, err := s.processors.For(reflect.TypeOf(e))
	if err != nil {
		return err
	}
	record, err := p.HandleEntity(e)
	if err != nil {
		return err
	}
	name := s.naming.EntityName(p.Type())

	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.open(ctx, name, p.HeaderElements())
	if err != nil {
		return err
	}
	if err := out.Write(ctx, record); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	s.written[name]++
	return nil
}

// PersistAll writes es in order and stops at the first error.
func (s *EntitySink) PersistAll(ctx context.Context, es []model.Entity) error {
	for _, e := range es {
		if err := s.Persist(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// PersistGrid writes every input entity of g.
func (s *EntitySink) PersistGrid(ctx context.Context, g *model.RawGrid) error {
	return s.PersistAll(ctx, g.Entities())
}

// PersistTimeSeries writes ts into its own dataset. The dataset is closed right away as a
// series is always written in one piece.
func (s *EntitySink) PersistTimeSeries(ctx context.Context, ts model.TimeSeries) error {
	if ts == nil {
		return processor.ErrNilEntity
	}
	p, err := s.processors.ForTimeSeries(processor.KeyOf(ts))
	if err != nil {
		return err
	}
	rows, err := p.HandleTimeSeries(ts)
	if err != nil {
		return err
	}
	name, err := s.naming.TimeSeriesName(ts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.open(ctx, name, p.HeaderElements())
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := out.Write(ctx, row); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	s.written[name] += len(rows)
	delete(s.sinks, name)
	return finish(name, out)
}

// Written returns the number of records written per dataset.
func (s *EntitySink) Written() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.written))
	for k, v := range s.written {
		out[k] = v
	}
	return out
}

// Close flushes and closes every open dataset.
func (s *EntitySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	names := make([]string, 0, len(s.sinks))
	for name := range s.sinks {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := finish(name, s.sinks[name]); err != nil {
			errs = append(errs, err)
		}
		s.logger.Debug("dataset written", "dataset", name, "records", s.written[name])
	}
	s.sinks = nil
	return errors.Join(errs...)
}

// open returns the sink of name, creating it with header on first use. Callers hold mu.
func (s *EntitySink) open(ctx context.Context, name string, header []string) (core.DataSink, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if out, ok := s.sinks[name]; ok {
		return out, nil
	}
	out, err := s.conn.Sink(ctx, name, header)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	s.sinks[name] = out
	return out, nil
}

func finish(name string, out core.DataSink) error {
	if err := out.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("flush %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}
