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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aaronlmathis/gridetl"
	"github.com/aaronlmathis/gridetl/connector"
	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/dag"
	"github.com/aaronlmathis/gridetl/sink"
	"github.com/aaronlmathis/gridetl/source"
)

// runner copies the parts of a grid dataset from one connector to another.
type runner struct {
	job      *Job
	strategy core.ErrorStrategy
	logger   *slog.Logger
	metrics  *gridetl.Metrics

	mu       sync.Mutex
	problems []error
}

func newRunner(job *Job, logger *slog.Logger, metrics *gridetl.Metrics) (*runner, error) {
	strategy, err := core.ParseErrorStrategy(job.ErrorStrategy)
	if err != nil {
		return nil, err
	}
	return &runner{job: job, strategy: strategy, logger: logger, metrics: metrics}, nil
}

func (r *runner) run(ctx context.Context) error {
	from, err := connector.Open(ctx, r.job.Source)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer from.Close()
	to, err := connector.Open(ctx, r.job.Target)
	if err != nil {
		return fmt.Errorf("open target: %w", err)
	}
	defer to.Close()

	src, err := source.New(from,
		source.WithNaming(r.job.Naming.Strategy()),
		source.WithLogger(r.logger),
		source.WithConcurrency(r.job.Concurrency))
	if err != nil {
		return err
	}
	out, err := sink.New(to,
		sink.WithNaming(r.job.targetNaming().Strategy()),
		sink.WithLogger(r.logger))
	if err != nil {
		return err
	}

	if err := r.copy(ctx, src, out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	for name, n := range out.Written() {
		r.logger.Debug("dataset written", "dataset", name, "records", n)
	}
	if r.strategy == core.CollectErrors && len(r.problems) > 0 {
		return &gridetl.CollectedError{Errors: r.problems}
	}
	return nil
}

// copy loads and writes the included parts. The parts do not reference each other and
// run in parallel.
func (r *runner) copy(ctx context.Context, src *source.GridSource, out *sink.EntitySink) error {
	parts := map[string]dag.TaskFunc{
		partGrid: func(ctx context.Context) error {
			start := time.Now()
			grid, report, err := src.Grid(ctx)
			if err != nil {
				return fmt.Errorf("load grid: %w", err)
			}
			if err := r.check(partGrid, report); err != nil {
				return err
			}
			if err := out.PersistGrid(ctx, grid); err != nil {
				return fmt.Errorf("write grid: %w", err)
			}
			r.finish(partGrid, report, len(grid.Entities()), start)
			return nil
		},
		partResults: func(ctx context.Context) error {
			start := time.Now()
			results, report, err := src.Results(ctx)
			if err != nil {
				return fmt.Errorf("load results: %w", err)
			}
			if err := r.check(partResults, report); err != nil {
				return err
			}
			if err := out.PersistAll(ctx, results); err != nil {
				return fmt.Errorf("write results: %w", err)
			}
			r.finish(partResults, report, len(results), start)
			return nil
		},
		partTimeSeries: func(ctx context.Context) error {
			start := time.Now()
			series, report, err := src.TimeSeries(ctx)
			if err != nil {
				return fmt.Errorf("load time series: %w", err)
			}
			if err := r.check(partTimeSeries, report); err != nil {
				return err
			}
			entries := 0
			for _, ts := range series {
				if err := out.PersistTimeSeries(ctx, ts); err != nil {
					return fmt.Errorf("write time series %s: %w", ts.EntityUUID(), err)
				}
				entries += ts.Len()
			}
			r.finish(partTimeSeries, report, entries, start)
			return nil
		},
	}

	b := dag.NewDAG("copy")
	for _, part := range r.job.Include {
		b.Add(part, parts[part], nil)
	}
	plan, err := b.Build()
	if err != nil {
		return err
	}
	exec := dag.NewExecutor(dag.WithMaxWorkers(len(r.job.Include)), dag.WithLogger(r.logger))
	if _, err := exec.Execute(ctx, plan); err != nil {
		var taskErr *dag.TaskError
		if errors.As(err, &taskErr) {
			return taskErr.Err
		}
		return err
	}
	return nil
}

// check applies the error strategy to a load report. Under FailFast nothing of a part
// with problems is written.
func (r *runner) check(part string, report *source.Report) error {
	if report.OK() {
		return nil
	}
	switch r.strategy {
	case core.FailFast:
		return fmt.Errorf("%s: %w", part, report.Err())
	case core.CollectErrors:
		r.mu.Lock()
		for _, p := range report.Problems() {
			r.problems = append(r.problems, p)
		}
		r.mu.Unlock()
	}
	r.logger.Warn("records skipped", "part", part, "count", len(report.Problems()))
	return nil
}

func (r *runner) finish(part string, report *source.Report, written int, start time.Time) {
	stats := gridetl.Stats{
		Read:     report.Read(),
		Built:    report.Built(),
		Handled:  written,
		Failed:   len(report.Problems()),
		Duration: time.Since(start),
	}
	r.metrics.AddStats(part, stats)
	r.logger.Info("part copied",
		"part", part,
		"read", stats.Read,
		"written", stats.Handled,
		"failed", stats.Failed,
		"duration", stats.Duration)
}
