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
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gridetl/factory"
	"github.com/aaronlmathis/gridetl/model"
	"github.com/aaronlmathis/gridetl/processor"
	"github.com/aaronlmathis/gridetl/quantity"
	"github.com/aaronlmathis/gridetl/source"
	"github.com/aaronlmathis/gridetl/validators"
)

// sliceSource is an in-memory DataSource.
type sliceSource struct {
	records []Record
	pos     int
	closed  bool
}

func (s *sliceSource) Read(ctx context.Context) (Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

// memorySink collects records and the header it was given.
type memorySink struct {
	header  []string
	records []Record
	flushed bool
	closed  bool
	failOn  string
}

func (m *memorySink) SetHeader(columns []string) error {
	m.header = columns
	return nil
}

func (m *memorySink) Write(ctx context.Context, r Record) error {
	if m.failOn != "" && r["uuid"] == m.failOn {
		return errors.New("disk full")
	}
	m.records = append(m.records, r)
	return nil
}

func (m *memorySink) Flush() error { m.flushed = true; return nil }
func (m *memorySink) Close() error { m.closed = true; return nil }

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func operatorRecords() []Record {
	return []Record{
		{"uuid": "8f9682df-0744-4b58-a122-f0dc730f6510", "id": "first"},
		{"uuid": "not-a-uuid", "id": "broken"},
		{"UUID": "f15105c4-a2de-4ab8-a621-4bc98e372d92", "Id": "second"},
		{"uuid": "1e6f2a4f-0c4c-4a44-b1d4-7c3b2d3f6c6a", "id": "third", "extra": "x"},
	}
}

func collect(out *[]any) EntityHandler {
	return EntityHandlerFunc(func(ctx context.Context, e any) error {
		*out = append(*out, e)
		return nil
	})
}

func TestPipeline_Build(t *testing.T) {
	_, err := NewPipeline().Build()
	assert.Error(t, err)

	_, err = NewPipeline().From(&sliceSource{}).Build()
	assert.Error(t, err)

	_, err = NewPipeline().From(&sliceSource{}).As(reflect.TypeOf((*model.NodeResult)(nil)).Elem()).Build()
	assert.Error(t, err)

	_, err = NewPipeline().
		From(&sliceSource{}).
		As(reflect.TypeOf((*model.SystemParticipantResult)(nil)).Elem()).
		To(EntityHandlerFunc(func(context.Context, any) error { return nil })).
		Build()
	assert.ErrorIs(t, err, factory.ErrFactoryNotFound)
}

func TestPipeline_FailFast(t *testing.T) {
	src := &sliceSource{records: operatorRecords()}
	var got []any
	p, err := NewPipeline().
		From(src).
		As(reflect.TypeOf((**model.OperatorInput)(nil)).Elem()).
		To(collect(&got)).
		Build()
	require.NoError(t, err)

	err = p.Execute(context.Background())
	assert.ErrorIs(t, err, factory.ErrMalformedField)
	assert.Len(t, got, 1)
	assert.True(t, src.closed)
	assert.Equal(t, 1, p.Stats().Failed)
}

func TestPipeline_SkipErrors(t *testing.T) {
	var logs bytes.Buffer
	var got []any
	var handled []error
	p, err := NewPipeline().
		From(&sliceSource{records: operatorRecords()}).
		As(reflect.TypeOf((*model.OperatorInput)(nil)).Elem()).
		To(collect(&got)).
		WithErrorStrategy(SkipErrors).
		WithErrorHandler(ErrorHandlerFunc(func(ctx context.Context, r Record, err error) error {
			handled = append(handled, err)
			return nil
		})).
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))).
		Build()
	require.NoError(t, err)

	require.NoError(t, p.Execute(context.Background()))
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].(*model.OperatorInput).ID)
	assert.Equal(t, "second", got[1].(*model.OperatorInput).ID)

	require.Len(t, handled, 2)
	assert.ErrorIs(t, handled[0], factory.ErrMalformedField)
	assert.ErrorIs(t, handled[1], factory.ErrShapeMismatch)
	assert.Contains(t, logs.String(), "skipping record")

	stats := p.Stats()
	assert.Equal(t, 4, stats.Read)
	assert.Equal(t, 2, stats.Built)
	assert.Equal(t, 2, stats.Handled)
	assert.Equal(t, 2, stats.Failed)
}

func TestPipeline_CollectErrors(t *testing.T) {
	var got []any
	p, err := NewPipeline().
		From(&sliceSource{records: operatorRecords()}).
		As(reflect.TypeOf((*model.OperatorInput)(nil)).Elem()).
		To(collect(&got)).
		WithErrorStrategy(CollectErrors).
		WithLogger(quiet()).
		Build()
	require.NoError(t, err)

	err = p.Execute(context.Background())
	var collected *CollectedError
	require.ErrorAs(t, err, &collected)
	assert.Len(t, collected.Errors, 2)
	assert.Len(t, p.Errors(), 2)
	assert.ErrorIs(t, err, factory.ErrShapeMismatch)
	assert.Len(t, got, 2)
}

func TestPipeline_TransformAndFilter(t *testing.T) {
	var got []any
	p, err := NewPipeline().
		From(&sliceSource{records: operatorRecords()}).
		As(reflect.TypeOf((*model.OperatorInput)(nil)).Elem()).
		Map(func(ctx context.Context, r Record) (Record, error) {
			out := r.Clone()
			delete(out, "extra")
			return out, nil
		}).
		Where(func(ctx context.Context, r Record) (bool, error) {
			return !strings.HasPrefix(r["id"], "broken"), nil
		}).
		To(collect(&got)).
		WithErrorStrategy(SkipErrors).
		WithLogger(quiet()).
		Build()
	require.NoError(t, err)

	require.NoError(t, p.Execute(context.Background()))
	assert.Len(t, got, 3)
	assert.Equal(t, 1, p.Stats().Filtered)
}

func TestPipeline_ResolvesReferences(t *testing.T) {
	op := &model.OperatorInput{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, ID: "op"}
	records := []Record{{
		"uuid": uuid.NewString(), "id": "n1", "operator": op.UUID.String(),
		"operatesFrom": "", "operatesUntil": "", "vTarget": "1", "vRated": "0.4",
		"slack": "false", "geoPosition": "", "voltLvl": "NS", "subnet": "3",
	}}

	var got []any
	p, err := NewPipeline().
		From(&sliceSource{records: records}).
		As(reflect.TypeOf((*model.NodeInput)(nil)).Elem()).
		Resolve(source.NewResolver(op)).
		To(collect(&got)).
		Build()
	require.NoError(t, err)
	require.NoError(t, p.Execute(context.Background()))
	require.Len(t, got, 1)
	assert.Same(t, op, got[0].(*model.NodeInput).Operator)
}

// miswiredFactory claims a type it cannot build.
type miswiredFactory struct{}

func (miswiredFactory) SupportedTypes() []reflect.Type {
	return []reflect.Type{reflect.TypeOf((*model.OperatorInput)(nil)).Elem()}
}

func (miswiredFactory) ShapesFor(reflect.Type) []factory.Shape { return nil }

func (miswiredFactory) BuildAny(data factory.Data) (any, error) {
	return nil, &factory.UnsupportedTypeError{Target: data.Attributes().Target()}
}

func TestPipeline_FatalStopsEveryStrategy(t *testing.T) {
	reg, err := factory.NewRegistry(miswiredFactory{})
	require.NoError(t, err)
	for _, strategy := range []ErrorStrategy{FailFast, SkipErrors, CollectErrors} {
		p, err := NewPipeline().
			From(&sliceSource{records: operatorRecords()}).
			As(reflect.TypeOf((*model.OperatorInput)(nil)).Elem()).
			To(EntityHandlerFunc(func(context.Context, any) error { return nil })).
			WithFactories(reg).
			WithErrorStrategy(strategy).
			WithLogger(quiet()).
			Build()
		require.NoError(t, err)
		assert.ErrorIs(t, p.Execute(context.Background()), factory.ErrUnsupportedType)
		assert.Equal(t, 1, p.Stats().Read)
	}
}

func TestPipeline_BareRecordsOfTypesWithReferences(t *testing.T) {
	node := func(id, operator string) Record {
		return Record{
			"uuid": uuid.NewString(), "id": id, "operator": operator,
			"vTarget": "1", "vRated": "20", "voltLvl": "MS", "slack": "false", "subnet": "1", "geoPosition": "",
		}
	}
	records := []Record{
		node("referenced", uuid.NewString()),
		{"uuid": uuid.NewString(), "id": "incomplete"},
		node("plain", ""),
	}
	var got []any
	p, err := NewPipeline().
		From(&sliceSource{records: records}).
		As(reflect.TypeOf((*model.NodeInput)(nil)).Elem()).
		To(collect(&got)).
		WithErrorStrategy(CollectErrors).
		WithLogger(quiet()).
		Build()
	require.NoError(t, err)

	err = p.Execute(context.Background())
	var collected *CollectedError
	require.ErrorAs(t, err, &collected)
	require.Len(t, collected.Errors, 2)
	assert.ErrorIs(t, collected.Errors[0], factory.ErrUnresolved)
	assert.ErrorIs(t, collected.Errors[1], factory.ErrShapeMismatch)

	require.Len(t, got, 1)
	assert.Equal(t, "plain", got[0].(*model.NodeInput).ID)
	assert.Equal(t, 3, p.Stats().Read)
}

func TestPipeline_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, err := NewPipeline().
		From(&sliceSource{records: operatorRecords()}).
		As(reflect.TypeOf((*model.OperatorInput)(nil)).Elem()).
		To(EntityHandlerFunc(func(context.Context, any) error { return nil })).
		Build()
	require.NoError(t, err)
	assert.ErrorIs(t, p.Execute(ctx), context.Canceled)
}

func TestPipeline_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	p, err := NewPipeline().
		From(&sliceSource{records: operatorRecords()}).
		As(reflect.TypeOf((*model.OperatorInput)(nil)).Elem()).
		To(EntityHandlerFunc(func(context.Context, any) error { return nil })).
		WithErrorStrategy(SkipErrors).
		WithLogger(quiet()).
		WithMetrics(m, "operators").
		Build()
	require.NoError(t, err)
	require.NoError(t, p.Execute(context.Background()))

	assert.Equal(t, 4.0, testutil.ToFloat64(m.records.WithLabelValues("operators", outcomeRead)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.records.WithLabelValues("operators", outcomeBuilt)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.records.WithLabelValues("operators", outcomeSkipped)))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "duplicate registration")

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.count("x", outcomeRead) })
}

func TestExportPipeline(t *testing.T) {
	results := []any{
		&model.NodeResult{
			ResultEntity: model.ResultEntity{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, Time: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), InputModel: uuid.New()},
			VMag:         quantity.New(1, quantity.PU),
			VAng:         quantity.New(0, quantity.Degree),
		},
	}
	sink := &memorySink{}
	p, err := NewExportPipeline(reflect.TypeOf((**model.NodeResult)(nil)).Elem(), sink)
	require.NoError(t, err)
	require.NoError(t, p.Execute(context.Background(), results))

	assert.Equal(t, []string{"uuid", "inputModel", "time", "vAng", "vMag"}, sink.header)
	require.Len(t, sink.records, 1)
	assert.Equal(t, "1", sink.records[0]["vMag"])
	assert.True(t, sink.flushed)
	assert.True(t, sink.closed)
	assert.Equal(t, 1, p.Stats().Handled)
}

func TestExportPipeline_Errors(t *testing.T) {
	_, err := NewExportPipeline(reflect.TypeOf((*model.NodeResult)(nil)).Elem(), nil)
	assert.Error(t, err)

	sink := &memorySink{}
	p, err := NewExportPipeline(reflect.TypeOf((*model.NodeResult)(nil)).Elem(), sink)
	require.NoError(t, err)
	err = p.Execute(context.Background(), []any{&model.LineResult{}})
	assert.Error(t, err)
	assert.True(t, sink.closed)

	sink = &memorySink{}
	p, err = NewExportPipeline(reflect.TypeOf((*model.NodeResult)(nil)).Elem(), sink,
		WithExportErrorStrategy(CollectErrors), WithExportLogger(quiet()))
	require.NoError(t, err)
	err = p.Execute(context.Background(), []any{nil, &model.NodeResult{}})
	var collected *CollectedError
	require.ErrorAs(t, err, &collected)
	assert.Len(t, collected.Errors, 1)
	assert.Len(t, sink.records, 1)
}

type taggedResult struct {
	model.UniqueEntity
	Tags map[string]string `attr:"tags"`
}

func TestExportPipeline_DefectsStopEveryStrategy(t *testing.T) {
	for _, strategy := range []ErrorStrategy{SkipErrors, CollectErrors} {
		sink := &memorySink{}
		p, err := NewExportPipeline(reflect.TypeOf((*model.NodeResult)(nil)).Elem(), sink,
			WithExportErrorStrategy(strategy), WithExportLogger(quiet()))
		require.NoError(t, err)
		err = p.Execute(context.Background(), []any{&model.LoadResult{}, &model.NodeResult{}})
		assert.ErrorIs(t, err, processor.ErrTypeMismatch)
		assert.Empty(t, sink.records)
		assert.True(t, sink.closed)
		assert.Equal(t, 1, p.Stats().Failed)
	}

	procs, err := processor.NewRegistry(processor.NewExtractor(), reflect.TypeOf((*taggedResult)(nil)).Elem())
	require.NoError(t, err)
	p, err := NewExportPipeline(reflect.TypeOf((*taggedResult)(nil)).Elem(), &memorySink{},
		WithExportProcessors(procs), WithExportErrorStrategy(SkipErrors), WithExportLogger(quiet()))
	require.NoError(t, err)
	err = p.Execute(context.Background(), []any{&taggedResult{Tags: map[string]string{"a": "b"}}})
	assert.ErrorIs(t, err, processor.ErrUnsupportedFieldType)
}

func TestPipeline_Validate(t *testing.T) {
	var got []any
	var handled []error
	p, err := NewPipeline().
		From(&sliceSource{records: operatorRecords()}).
		As(reflect.TypeOf((*model.OperatorInput)(nil)).Elem()).
		Validate(validators.New(
			validators.WithRule("uuid", validators.FieldRule{Type: validators.FieldTypeUUID}),
			validators.WithForbidden("extra"))).
		To(collect(&got)).
		WithErrorStrategy(SkipErrors).
		WithErrorHandler(ErrorHandlerFunc(func(ctx context.Context, r Record, err error) error {
			handled = append(handled, err)
			return nil
		})).
		WithLogger(quiet()).
		Build()
	require.NoError(t, err)

	require.NoError(t, p.Execute(context.Background()))
	assert.Len(t, got, 2)
	require.Len(t, handled, 2)
	var fe *validators.FieldError
	require.ErrorAs(t, handled[0], &fe)
	assert.Equal(t, "uuid", fe.Field)
	require.ErrorAs(t, handled[1], &fe)
	assert.Equal(t, "forbidden", fe.Reason)
	assert.Equal(t, 2, p.Stats().Built)
}

func TestPipeline_CheckQuality(t *testing.T) {
	q := &validators.Quality{MinRecords: 10}
	var got []any
	p, err := NewPipeline().
		From(&sliceSource{records: operatorRecords()}).
		As(reflect.TypeOf((*model.OperatorInput)(nil)).Elem()).
		CheckQuality(q).
		To(collect(&got)).
		WithErrorStrategy(SkipErrors).
		WithLogger(quiet()).
		Build()
	require.NoError(t, err)

	err = p.Execute(context.Background())
	assert.ErrorIs(t, err, validators.ErrQuality)
	assert.Equal(t, 4, q.Records())
	assert.Len(t, got, 2)
}
