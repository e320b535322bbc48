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


// executor.go - level by level DAG execution with retries
package dag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Backoff returns the delay before retry attempt (starting at 0).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff doubles the delay on every attempt up to MaxDelay.
type ExponentialBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (eb ExponentialBackoff) Delay(attempt int) time.Duration {
	delay := eb.BaseDelay * time.Duration(1<<uint(attempt))
	if delay > eb.MaxDelay || delay <= 0 {
		delay = eb.MaxDelay
	}
	return delay
}

// TaskError reports the task that stopped an execution.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string { return fmt.Sprintf("task %s: %v", e.Task, e.Err) }

func (e *TaskError) Unwrap() error { return e.Err }

// TaskResult describes one executed task.
type TaskResult struct {
	Attempts int
	Duration time.Duration
	Err      error
}

// Result contains the outcome of an execution. Tasks of levels after a failure are
// missing from Tasks.
type Result struct {
	Start time.Time
	End   time.Time
	Tasks map[string]TaskResult
}

// Executor runs DAGs.
type Executor struct {
	maxWorkers int
	backoff    Backoff
	logger     *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxWorkers sets the maximum number of tasks running at once.
func WithMaxWorkers(workers int) ExecutorOption {
	return func(e *Executor) {
		if workers > 0 {
			e.maxWorkers = workers
		}
	}
}

// WithBackoff sets the delay between retries.
func WithBackoff(b Backoff) ExecutorOption {
	return func(e *Executor) { e.backoff = b }
}

// WithLogger sets the logger used for progress and retries.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		maxWorkers: runtime.NumCPU(),
		backoff:    ExponentialBackoff{BaseDelay: time.Second, MaxDelay: time.Minute},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Execute runs d level by level. The first failing task cancels the other tasks of its
// level, and no later level is started; the returned error is a *TaskError.
func (e *Executor) Execute(ctx context.Context, d *DAG) (*Result, error) {
	res := &Result{Start: time.Now(), Tasks: make(map[string]TaskResult, len(d.ids))}
	var mu sync.Mutex

	for i, level := range d.Levels() {
		if err := ctx.Err(); err != nil {
			res.End = time.Now()
			return res, err
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.maxWorkers)
		for _, id := range level {
			id := id
			g.Go(func() error {
				tr := e.runTask(gctx, d.tasks[id])
				mu.Lock()
				res.Tasks[id] = tr
				mu.Unlock()
				if tr.Err != nil {
					return &TaskError{Task: id, Err: tr.Err}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			res.End = time.Now()
			return res, err
		}
		e.logger.Debug("level completed", "dag", d.name, "level", i, "tasks", len(level))
	}
	res.End = time.Now()
	return res, nil
}

func (e *Executor) runTask(ctx context.Context, t *Task) TaskResult {
	start := time.Now()
	var tr TaskResult
	for attempt := 0; ; attempt++ {
		tr.Attempts++
		tr.Err = e.attempt(ctx, t)
		if tr.Err == nil || attempt >= t.Retries || ctx.Err() != nil || errors.Is(tr.Err, context.Canceled) {
			break
		}
		delay := e.backoff.Delay(attempt)
		e.logger.Warn("task failed, retrying", "task", t.ID, "attempt", tr.Attempts, "delay", delay, "error", tr.Err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			tr.Err = ctx.Err()
			tr.Duration = time.Since(start)
			return tr
		}
	}
	tr.Duration = time.Since(start)
	return tr
}

func (e *Executor) attempt(ctx context.Context, t *Task) error {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	return t.Run(ctx)
}
