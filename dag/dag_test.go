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


package dag

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) error { return nil }

func quiet() ExecutorOption {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func gridLoad(t *testing.T, run func(id string) TaskFunc) *DAG {
	t.Helper()
	d, err := NewDAG("grid").
		Add("operator", run("operator"), nil).
		Add("line_type", run("line_type"), nil).
		Add("node", run("node"), []string{"operator"}).
		Add("line", run("line"), []string{"node", "line_type", "operator"}).
		Add("switch", run("switch"), []string{"node", "operator"}).
		Add("load", run("load"), []string{"node", "operator"}).
		Build()
	require.NoError(t, err)
	return d
}

func TestDAG_Levels(t *testing.T) {
	d := gridLoad(t, func(string) TaskFunc { return noop })
	assert.Equal(t, [][]string{
		{"operator", "line_type"},
		{"node"},
		{"line", "switch", "load"},
	}, d.Levels())
	assert.Equal(t, []string{"node", "line", "switch", "load"}, d.Downstream("operator"))
	assert.Equal(t, []string{"node", "operator"}, d.Dependencies("switch"))
	assert.True(t, d.HasTask("load"))
	assert.False(t, d.HasTask("storage"))
	assert.Equal(t, "grid", d.Name())
	assert.Len(t, d.Tasks(), 6)
}

func TestBuilder_Invalid(t *testing.T) {
	tests := map[string]struct {
		build func() (*DAG, error)
		want  error
	}{
		"cycle": {
			build: func() (*DAG, error) {
				return NewDAG("x").Add("a", noop, []string{"b"}).Add("b", noop, []string{"a"}).Build()
			},
			want: ErrCycle,
		},
		"self": {
			build: func() (*DAG, error) { return NewDAG("x").Add("a", noop, []string{"a"}).Build() },
			want:  ErrCycle,
		},
		"missing": {
			build: func() (*DAG, error) { return NewDAG("x").Add("a", noop, []string{"b"}).Build() },
			want:  ErrMissingDependency,
		},
		"duplicate": {
			build: func() (*DAG, error) { return NewDAG("x").Add("a", noop, nil).Add("a", noop, nil).Build() },
			want:  ErrDuplicateTask,
		},
	}
	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			_, err := tc.build()
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestBuilder_RepeatedDependency(t *testing.T) {
	d, err := NewDAG("x").Add("a", noop, nil).Add("b", noop, []string{"a", "a"}).Build()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, d.Levels())
}

func TestExecutor_RunsLevelsInOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		done = map[string]bool{}
	)
	var running, peak atomic.Int32
	d := gridLoad(t, func(id string) TaskFunc {
		return func(context.Context) error {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			defer mu.Unlock()
			for _, dep := range map[string][]string{
				"node":   {"operator"},
				"line":   {"node", "line_type"},
				"switch": {"node"},
				"load":   {"node"},
			}[id] {
				if !done[dep] {
					return errors.New(id + " ran before " + dep)
				}
			}
			done[id] = true
			return nil
		}
	})

	res, err := NewExecutor(WithMaxWorkers(4), quiet()).Execute(context.Background(), d)
	require.NoError(t, err)
	assert.Len(t, res.Tasks, 6)
	assert.Len(t, done, 6)
	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.False(t, res.End.Before(res.Start))
}

func TestExecutor_FailureStopsLaterLevels(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Int32
	d := gridLoad(t, func(id string) TaskFunc {
		return func(context.Context) error {
			ran.Add(1)
			if id == "node" {
				return boom
			}
			return nil
		}
	})

	res, err := NewExecutor(quiet()).Execute(context.Background(), d)
	require.ErrorIs(t, err, boom)
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "node", taskErr.Task)
	assert.Equal(t, int32(3), ran.Load())
	assert.NotContains(t, res.Tasks, "line")
	assert.ErrorIs(t, res.Tasks["node"].Err, boom)
}

func TestExecutor_Retries(t *testing.T) {
	var calls atomic.Int32
	flaky := func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}
	d, err := NewDAG("x").Add("flaky", flaky, nil, WithRetries(2)).Build()
	require.NoError(t, err)

	res, err := NewExecutor(WithBackoff(ExponentialBackoff{}), quiet()).Execute(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Tasks["flaky"].Attempts)

	calls.Store(0)
	d, err = NewDAG("x").Add("flaky", flaky, nil, WithRetries(1)).Build()
	require.NoError(t, err)
	res, err = NewExecutor(WithBackoff(ExponentialBackoff{}), quiet()).Execute(context.Background(), d)
	assert.EqualError(t, err, "task flaky: transient")
	assert.Equal(t, 2, res.Tasks["flaky"].Attempts)
}

func TestExecutor_Timeout(t *testing.T) {
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	d, err := NewDAG("x").Add("slow", slow, nil, WithTimeout(10*time.Millisecond)).Build()
	require.NoError(t, err)
	_, err = NewExecutor(quiet()).Execute(context.Background(), d)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecutor_Canceled(t *testing.T) {
	d, err := NewDAG("x").Add("a", noop, nil).Build()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewExecutor(quiet()).Execute(ctx, d)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 5*time.Second, b.Delay(3))
}
