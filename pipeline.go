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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/aaronlmathis/gridetl/factory"
	"github.com/aaronlmathis/gridetl/validators"
)

// Package gridetl builds typed grid entities from flat records and flattens them again.
//
// Core Concepts:
//   - DataSource / DataSink: record streams (CSV, JSON lines, Parquet, PostgreSQL, MongoDB, S3).
//   - Transformer / Filter: record level preparation before entities are built.
//   - Pipeline: DataSource -> transformers -> filters -> factory -> EntityHandler.
//   - ExportPipeline: entities -> processor -> DataSink.
//   - ErrorStrategy: fail fast, skip or collect record errors. Wiring defects always stop.
//
// Example usage:
//
//	pipeline, err := gridetl.NewPipeline().
//	    From(csvReader).
//	    As(reflect.TypeOf((*model.NodeResult)(nil)).Elem()).
//	    Transform(transform.Rename(map[string]string{"v_mag": "vMag"})).
//	    To(handler).
//	    WithErrorStrategy(gridetl.SkipErrors).
//	    Build()
//	if err != nil { log.Fatal(err) }
//	if err := pipeline.Execute(context.Background()); err != nil { log.Fatal(err) }

// Stats summarises one pipeline run.
type Stats struct {
	Read     int
	Filtered int
	Built    int
	Handled  int
	Failed   int
	Duration time.Duration
}

// PipelineBuilder provides a fluent API for constructing import pipelines.
type PipelineBuilder struct {
	pipeline *Pipeline
}

// NewPipeline creates a new PipelineBuilder.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{
			name:     "import",
			strategy: FailFast,
		},
	}
}

// From sets the DataSource for the pipeline.
func (pb *PipelineBuilder) From(source DataSource) *PipelineBuilder {
	pb.pipeline.source = source
	return pb
}

// As sets the entity type built from every record.
func (pb *PipelineBuilder) As(target reflect.Type) *PipelineBuilder {
	for target != nil && target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	pb.pipeline.target = target
	return pb
}

// Transform adds a Transformer to the pipeline.
func (pb *PipelineBuilder) Transform(transformer Transformer) *PipelineBuilder {
	pb.pipeline.transformers = append(pb.pipeline.transformers, transformer)
	return pb
}

// Filter adds a Filter to the pipeline.
func (pb *PipelineBuilder) Filter(filter Filter) *PipelineBuilder {
	pb.pipeline.filters = append(pb.pipeline.filters, filter)
	return pb
}

// Map adds a mapping transformation using a function.
func (pb *PipelineBuilder) Map(fn func(ctx context.Context, record Record) (Record, error)) *PipelineBuilder {
	return pb.Transform(TransformFunc(fn))
}

// Where adds a filtering condition using a function.
func (pb *PipelineBuilder) Where(fn func(ctx context.Context, record Record) (bool, error)) *PipelineBuilder {
	return pb.Filter(FilterFunc(fn))
}

// Validate checks every included record with v before the entity is built. Violations
// are record errors handled by the ErrorStrategy.
func (pb *PipelineBuilder) Validate(v *validators.RecordValidator) *PipelineBuilder {
	pb.pipeline.validators = append(pb.pipeline.validators, v)
	return pb
}

// CheckQuality observes every included record in q and fails the run when q.Check fails
// at the end of the source. The check applies under every ErrorStrategy.
func (pb *PipelineBuilder) CheckQuality(q *validators.Quality) *PipelineBuilder {
	pb.pipeline.quality = q
	return pb
}

// Resolve sets the resolver attaching referenced entities to each record.
func (pb *PipelineBuilder) Resolve(r Resolver) *PipelineBuilder {
	pb.pipeline.resolver = r
	return pb
}

// To sets the receiver of built entities.
func (pb *PipelineBuilder) To(handler EntityHandler) *PipelineBuilder {
	pb.pipeline.handler = handler
	return pb
}

// WithFactories replaces the default factory registry.
func (pb *PipelineBuilder) WithFactories(r *factory.Registry) *PipelineBuilder {
	pb.pipeline.factories = r
	return pb
}

// WithErrorStrategy sets the error handling strategy.
func (pb *PipelineBuilder) WithErrorStrategy(strategy ErrorStrategy) *PipelineBuilder {
	pb.pipeline.strategy = strategy
	return pb
}

// WithErrorHandler sets a custom error handler.
func (pb *PipelineBuilder) WithErrorHandler(handler ErrorHandler) *PipelineBuilder {
	pb.pipeline.errorHandler = handler
	return pb
}

// WithLogger sets the logger. The default is slog.Default().
func (pb *PipelineBuilder) WithLogger(logger *slog.Logger) *PipelineBuilder {
	pb.pipeline.logger = logger
	return pb
}

// WithMetrics records pipeline metrics under name.
func (pb *PipelineBuilder) WithMetrics(m *Metrics, name string) *PipelineBuilder {
	pb.pipeline.metrics = m
	if name != "" {
		pb.pipeline.name = name
	}
	return pb
}

// Build validates and constructs the Pipeline.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	p := pb.pipeline
	if p.source == nil {
		return nil, fmt.Errorf("pipeline requires a data source")
	}
	if p.target == nil {
		return nil, fmt.Errorf("pipeline requires a target entity type")
	}
	if p.handler == nil {
		return nil, fmt.Errorf("pipeline requires an entity handler")
	}
	if p.factories == nil {
		r, err := factory.DefaultRegistry()
		if err != nil {
			return nil, err
		}
		p.factories = r
	}
	if _, err := p.factories.For(p.target); err != nil {
		return nil, err
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Pipeline reads records, builds one entity per record and hands it on.
type Pipeline struct {
	name         string
	source       DataSource
	target       reflect.Type
	transformers []Transformer
	filters      []Filter
	validators   []*validators.RecordValidator
	quality      *validators.Quality
	resolver     Resolver
	factories    *factory.Registry
	handler      EntityHandler
	strategy     ErrorStrategy
	errorHandler ErrorHandler
	logger       *slog.Logger
	metrics      *Metrics

	mu     sync.Mutex
	stats  Stats
	errors []error
}

// Execute runs the pipeline until the source is exhausted. The source is closed on return.
//
// Record errors follow the configured ErrorStrategy. Errors that indicate a wiring defect
// (see factory.IsFatal) stop the run under every strategy.
func (p *Pipeline) Execute(ctx context.Context) error {
	start := time.Now()
	defer func() {
		p.source.Close()
		p.mu.Lock()
		p.stats.Duration = time.Since(start)
		p.mu.Unlock()
		p.metrics.observe(p.name, time.Since(start))
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := p.source.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}
		p.count(outcomeRead, func(s *Stats) { s.Read++ })

		if len(record) == 0 {
			continue
		}

		transformed, err := p.applyTransformations(ctx, record)
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}
		if len(transformed) == 0 {
			continue
		}

		include, err := p.applyFilters(ctx, transformed)
		if err != nil {
			if err := p.handleError(ctx, record, err); err != nil {
				return err
			}
			continue
		}
		if !include {
			p.count(outcomeFiltered, func(s *Stats) { s.Filtered++ })
			continue
		}
		if p.quality != nil {
			p.quality.Observe(transformed)
		}
		if err := p.validate(transformed); err != nil {
			if err := p.handleError(ctx, transformed, err); err != nil {
				return err
			}
			continue
		}

		entity, err := p.build(transformed)
		if err != nil {
			if factory.IsFatal(err) {
				p.count(outcomeFailed, func(s *Stats) { s.Failed++ })
				return err
			}
			if err := p.handleError(ctx, transformed, err); err != nil {
				return err
			}
			continue
		}
		p.count(outcomeBuilt, func(s *Stats) { s.Built++ })

		if err := p.handler.HandleEntity(ctx, entity); err != nil {
			if err := p.handleError(ctx, transformed, err); err != nil {
				return err
			}
			continue
		}
		p.count(outcomeWritten, func(s *Stats) { s.Handled++ })
	}

	if p.quality != nil {
		if err := p.quality.Check(); err != nil {
			return err
		}
	}
	if p.strategy == CollectErrors {
		return p.collected()
	}
	return nil
}

// Stats returns the counters of the last run.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Errors returns the record errors collected under CollectErrors.
func (p *Pipeline) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.errors...)
}

func (p *Pipeline) build(record Record) (any, error) {
	d, err := factory.NewEntityData(record, p.target)
	if err != nil {
		return nil, err
	}
	if p.resolver == nil {
		return p.factories.Build(d)
	}
	data, err := p.resolver.Wrap(d)
	if err != nil {
		return nil, err
	}
	return p.factories.Build(data)
}

func (p *Pipeline) validate(record Record) error {
	for _, v := range p.validators {
		if err := v.Validate(record); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) applyFilters(ctx context.Context, record Record) (bool, error) {
	for _, filter := range p.filters {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		if !include {
			return false, nil
		}
	}
	return true, nil
}

func (p *Pipeline) applyTransformations(ctx context.Context, record Record) (Record, error) {
	current := record
	for _, transformer := range p.transformers {
		transformed, err := transformer.Transform(ctx, current)
		if err != nil {
			return nil, err
		}
		current = transformed
	}
	return current, nil
}

func (p *Pipeline) count(outcome string, update func(*Stats)) {
	p.mu.Lock()
	update(&p.stats)
	p.mu.Unlock()
	p.metrics.count(p.name, outcome)
}

func (p *Pipeline) handleError(ctx context.Context, record Record, err error) error {
	p.count(outcomeFailed, func(s *Stats) { s.Failed++ })
	if p.strategy == FailFast {
		return err
	}
	p.logger.Warn("skipping record",
		"pipeline", p.name,
		"target", typeName(p.target),
		"error", err,
		"record", map[string]string(record))
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

func (p *Pipeline) collected() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errors) == 0 {
		return nil
	}
	return &CollectedError{Errors: append([]error(nil), p.errors...)}
}

// CollectedError is returned by a CollectErrors run that skipped records.
type CollectedError struct {
	Errors []error
}

func (e *CollectedError) Error() string {
	return fmt.Sprintf("%d records failed: %v", len(e.Errors), errors.Join(e.Errors...))
}

func (e *CollectedError) Unwrap() []error { return e.Errors }

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}
