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

package gridetl

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/aaronlmathis/gridetl/processor"
)

// ExportPipeline flattens entities of one type into a DataSink.
type ExportPipeline struct {
	name         string
	target       reflect.Type
	sink         DataSink
	processors   *processor.Registry
	strategy     ErrorStrategy
	errorHandler ErrorHandler
	logger       *slog.Logger
	metrics      *Metrics

	mu         sync.Mutex
	headerSent bool
	stats      Stats
	errors     []error
}

// ExportOption configures an ExportPipeline.
type ExportOption func(*ExportPipeline)

// WithExportProcessors replaces the default processor registry.
func WithExportProcessors(r *processor.Registry) ExportOption {
	return func(p *ExportPipeline) { p.processors = r }
}

// WithExportErrorStrategy sets the error handling strategy.
func WithExportErrorStrategy(s ErrorStrategy) ExportOption {
	return func(p *ExportPipeline) { p.strategy = s }
}

// WithExportErrorHandler sets a custom error handler.
func WithExportErrorHandler(h ErrorHandler) ExportOption {
	return func(p *ExportPipeline) { p.errorHandler = h }
}

// WithExportLogger sets the logger.
func WithExportLogger(l *slog.Logger) ExportOption {
	return func(p *ExportPipeline) { p.logger = l }
}

// WithExportMetrics records metrics under name.
func WithExportMetrics(m *Metrics, name string) ExportOption {
	return func(p *ExportPipeline) {
		p.metrics = m
		if name != "" {
			p.name = name
		}
	}
}

// NewExportPipeline returns a pipeline writing entities of target into sink. Sinks
// implementing HeaderSink receive the processor's column order before the first record.
func NewExportPipeline(target reflect.Type, sink DataSink, opts ...ExportOption) (*ExportPipeline, error) {
	if sink == nil {
		return nil, fmt.Errorf("export pipeline requires a data sink")
	}
	for target != nil && target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	if target == nil {
		return nil, fmt.Errorf("export pipeline requires a target entity type")
	}
	p := &ExportPipeline{name: "export", target: target, sink: sink, strategy: FailFast}
	for _, opt := range opts {
		opt(p)
	}
	if p.processors == nil {
		r, err := processor.DefaultRegistry()
		if err != nil {
			return nil, err
		}
		p.processors = r
	}
	if _, err := p.processors.For(target); err != nil {
		return nil, err
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Write flattens one entity and writes it to the sink. Errors for which processor.IsFatal
// holds are returned under every strategy.
func (p *ExportPipeline) Write(ctx context.Context, entity any) error {
	if err := p.ensureHeader(); err != nil {
		return err
	}
	record, err := p.flatten(entity)
	if err != nil {
		return p.handleError(ctx, nil, err)
	}
	if err := p.sink.Write(ctx, record); err != nil {
		return p.handleError(ctx, record, err)
	}
	p.count(outcomeWritten, func(s *Stats) { s.Handled++ })
	return nil
}

// Execute writes every entity, then flushes and closes the sink.
func (p *ExportPipeline) Execute(ctx context.Context, entities []any) error {
	start := time.Now()
	defer func() {
		p.mu.Lock()
		p.stats.Duration = time.Since(start)
		p.mu.Unlock()
		p.metrics.observe(p.name, time.Since(start))
	}()

	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			p.sink.Close()
			return err
		}
		if err := p.Write(ctx, e); err != nil {
			p.sink.Close()
			return err
		}
	}
	if err := p.Close(); err != nil {
		return err
	}
	if p.strategy == CollectErrors {
		p.mu.Lock()
		defer p.mu.Unlock()
		if len(p.errors) > 0 {
			return &CollectedError{Errors: append([]error(nil), p.errors...)}
		}
	}
	return nil
}

// Close sends the header if nothing was written, then flushes and closes the sink.
func (p *ExportPipeline) Close() error {
	if err := p.ensureHeader(); err != nil {
		p.sink.Close()
		return err
	}
	if err := p.sink.Flush(); err != nil {
		p.sink.Close()
		return err
	}
	return p.sink.Close()
}

// Stats returns the counters so far.
func (p *ExportPipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *ExportPipeline) flatten(entity any) (Record, error) {
	p.count(outcomeRead, func(s *Stats) { s.Read++ })
	if entity == nil {
		return nil, processor.ErrNilEntity
	}
	proc, err := p.processors.For(p.target)
	if err != nil {
		return nil, err
	}
	return proc.HandleEntity(entity)
}

func (p *ExportPipeline) ensureHeader() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.headerSent {
		return nil
	}
	p.headerSent = true
	hs, ok := p.sink.(HeaderSink)
	if !ok {
		return nil
	}
	header, err := p.processors.HeaderElements(p.target)
	if err != nil {
		return err
	}
	return hs.SetHeader(header)
}

func (p *ExportPipeline) count(outcome string, update func(*Stats)) {
	p.mu.Lock()
	update(&p.stats)
	p.mu.Unlock()
	p.metrics.count(p.name, outcome)
}

func (p *ExportPipeline) handleError(ctx context.Context, record Record, err error) error {
	p.count(outcomeFailed, func(s *Stats) { s.Failed++ })
	if p.strategy == FailFast || processor.IsFatal(err) {
		return err
	}
	p.logger.Warn("skipping entity", "pipeline", p.name, "target", typeName(p.target), "error", err)
	p.metrics.count(p.name, outcomeSkipped)
	if p.strategy == CollectErrors {
		p.mu.Lock()
		p.errors = append(p.errors, err)
		p.mu.Unlock()
	}
	if p.errorHandler != nil {
		return p.errorHandler.HandleError(ctx, record, err)
	}
	return nil
}
