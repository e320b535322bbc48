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


// Package dag runs named tasks in dependency order. Tasks of the same level, whose
// dependencies all completed, run in parallel.
package dag

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrCycle is returned by Build when dependencies form a cycle.
	ErrCycle = errors.New("dag contains a cycle")
	// ErrMissingDependency is returned by Build when a task depends on an unknown task.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrDuplicateTask is returned by Build when a task id is added twice.
	ErrDuplicateTask = errors.New("duplicate task")
)

// TaskFunc is the work of a task.
type TaskFunc func(ctx context.Context) error

// Task is a node of a DAG.
type Task struct {
	ID      string
	Run     TaskFunc
	Deps    []string
	Retries int
	Timeout time.Duration
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// WithRetries retries a failed task up to n times.
func WithRetries(n int) TaskOption {
	return func(t *Task) { t.Retries = n }
}

// WithTimeout bounds every attempt of a task.
func WithTimeout(d time.Duration) TaskOption {
	return func(t *Task) { t.Timeout = d }
}

// DAG is a validated task graph. It is immutable once built.
type DAG struct {
	name  string
	tasks map[string]*Task
	// ids keeps insertion order so that levels are deterministic
	ids []string
}

// Builder provides a fluent API for constructing DAGs.
type Builder struct {
	dag  *DAG
	errs []error
}

// NewDAG creates a new DAG builder.
func NewDAG(name string) *Builder {
	return &Builder{dag: &DAG{name: name, tasks: make(map[string]*Task)}}
}

// Add adds a task running run once every task in deps succeeded.
func (b *Builder) Add(id string, run TaskFunc, deps []string, opts ...TaskOption) *Builder {
	if _, exists := b.dag.tasks[id]; exists {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateTask, id))
		return b
	}
	t := &Task{ID: id, Run: run}
	for _, dep := range deps {
		if !slices.Contains(t.Deps, dep) {
			t.Deps = append(t.Deps, dep)
		}
	}
	for _, opt := range opts {
		opt(t)
	}
	b.dag.tasks[id] = t
	b.dag.ids = append(b.dag.ids, id)
	return b
}

// Build validates and returns the constructed DAG.
func (b *Builder) Build() (*DAG, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	for _, id := range b.dag.ids {
		for _, dep := range b.dag.tasks[id].Deps {
			if _, exists := b.dag.tasks[dep]; !exists {
				return nil, fmt.Errorf("%w: task %s depends on %s", ErrMissingDependency, id, dep)
			}
		}
	}
	if _, err := b.dag.order(); err != nil {
		return nil, err
	}
	return b.dag, nil
}

// Name returns the name of the DAG.
func (d *DAG) Name() string { return d.name }

// Tasks returns the task ids in insertion order.
func (d *DAG) Tasks() []string {
	return append([]string(nil), d.ids...)
}

// HasTask reports whether id is part of the DAG.
func (d *DAG) HasTask(id string) bool {
	_, exists := d.tasks[id]
	return exists
}

// Dependencies returns the tasks id depends on.
func (d *DAG) Dependencies(id string) []string {
	if t, exists := d.tasks[id]; exists {
		return append([]string(nil), t.Deps...)
	}
	return nil
}

// Downstream returns the tasks depending on id.
func (d *DAG) Downstream(id string) []string {
	var out []string
	for _, other := range d.ids {
		for _, dep := range d.tasks[other].Deps {
			if dep == id {
				out = append(out, other)
				break
			}
		}
	}
	return out
}

// Levels groups the tasks by dependency depth. Every task of a level only depends on
// tasks of earlier levels.
func (d *DAG) Levels() [][]string {
	order, err := d.order()
	if err != nil {
		return nil
	}
	level := make(map[string]int, len(order))
	depth := 0
	for _, id := range order {
		l := 0
		for _, dep := range d.tasks[id].Deps {
			l = max(l, level[dep]+1)
		}
		level[id] = l
		depth = max(depth, l+1)
	}
	out := make([][]string, depth)
	for _, id := range d.ids {
		out[level[id]] = append(out[level[id]], id)
	}
	return out
}

// order sorts the tasks topologically with Kahn's algorithm, keeping insertion order
// among ready tasks.
func (d *DAG) order() ([]string, error) {
	inDegree := make(map[string]int, len(d.ids))
	for _, id := range d.ids {
		inDegree[id] = len(d.tasks[id].Deps)
	}
	var queue, out []string
	for _, id := range d.ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		out = append(out, current)
		for _, id := range d.Downstream(current) {
			inDegree[id]--
			if inDegree[id] == 0 {
				queue = append(queue, id)
			}
		}
	}
	if len(out) != len(d.ids) {
		return nil, ErrCycle
	}
	return out, nil
}
