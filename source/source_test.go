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

package source

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gridetl/connector"
	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/factory"
	"github.com/aaronlmathis/gridetl/model"
	"github.com/aaronlmathis/gridetl/naming"
	"github.com/aaronlmathis/gridetl/quantity"
	"github.com/aaronlmathis/gridetl/sink"
)

var t0 = time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

func testGrid() *model.RawGrid {
	op := &model.OperatorInput{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, ID: "op"}
	lt := &model.LineTypeInput{
		AssetTypeInput: model.AssetTypeInput{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, ID: "NA2XS2Y"},
		B:              quantity.New(0.00322, quantity.MicroSiemensPerKilometer),
		G:              quantity.New(0, quantity.MicroSiemensPerKilometer),
		R:              quantity.New(0.437, quantity.OhmPerKilometer),
		X:              quantity.New(0.356, quantity.OhmPerKilometer),
		IMax:           quantity.New(300, quantity.Ampere),
		VRated:         quantity.New(20, quantity.KiloVolt),
	}
	node := func(id string, slack bool) *model.NodeInput {
		return &model.NodeInput{
			AssetInput: model.AssetInput{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, ID: id, Operator: op},
			VTarget:    quantity.New(1, quantity.PU),
			Slack:      slack,
			VoltLvl:    model.VoltageLevel{ID: "MS", Nominal: quantity.New(20, quantity.KiloVolt)},
			Subnet:     1,
		}
	}
	a, b := node("a", true), node("b", false)
	return &model.RawGrid{
		Operators: []*model.OperatorInput{op},
		LineTypes: []*model.LineTypeInput{lt},
		Nodes:     []*model.NodeInput{a, b},
		Lines: []*model.LineInput{{
			ConnectorInput: model.ConnectorInput{
				AssetInput:      model.AssetInput{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, ID: "line", Operator: model.NotAssignedOperator},
				NodeA:           a,
				NodeB:           b,
				ParallelDevices: 1,
			},
			Type:              lt,
			Length:            quantity.New(1.2, quantity.Kilometer),
			OlmCharacteristic: model.OlmDefault,
		}},
		Switches: []*model.SwitchInput{{
			ConnectorInput: model.ConnectorInput{
				AssetInput:      model.AssetInput{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, ID: "switch", Operator: op},
				NodeA:           a,
				NodeB:           b,
				ParallelDevices: 1,
			},
			Closed: true,
		}},
		Loads: []*model.LoadInput{{
			SystemParticipantInput: model.SystemParticipantInput{
				AssetInput:       model.AssetInput{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, ID: "load", Operator: op},
				Node:             b,
				QCharacteristics: model.Characteristic{Prefix: model.PrefixCosPhiFixed, Points: []model.CharacteristicPoint{{X: 0, Y: 1}}},
			},
			LoadProfile: model.LoadProfileH0,
			EConsAnnual: quantity.New(4000, quantity.KiloWattHour),
			SRated:      quantity.New(25, quantity.KiloVoltAmpere),
			CosPhiRated: 0.95,
		}},
	}
}

func newDir(t *testing.T, opts ...connector.DirOption) *connector.Dir {
	t.Helper()
	d, err := connector.NewDir(t.TempDir(), opts...)
	require.NoError(t, err)
	return d
}

func persist(t *testing.T, conn connector.Connector, entities []model.Entity, opts ...sink.Option) {
	t.Helper()
	s, err := sink.New(conn, opts...)
	require.NoError(t, err)
	require.NoError(t, s.PersistAll(context.Background(), entities))
	require.NoError(t, s.Close())
}

func TestGridSource_RoundTrip(t *testing.T) {
	for _, format := range []connector.Format{connector.FormatCSV, connector.FormatJSON, connector.FormatParquet} {
		format := format
		t.Run(format.String(), func(t *testing.T) {
			dir := newDir(t, connector.WithFormat(format))
			grid := testGrid()
			persist(t, dir, grid.Entities())

			src, err := New(dir)
			require.NoError(t, err)
			got, report, err := src.Grid(context.Background())
			require.NoError(t, err)
			require.True(t, report.OK(), "%v", report.Err())
			assert.Equal(t, 7, report.Built())
			assert.Equal(t, grid, got)
		})
	}
}

// tracingConn records when datasets are opened and closed.
type tracingConn struct {
	connector.Connector
	mu     sync.Mutex
	events []string
}

func (c *tracingConn) log(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *tracingConn) Source(ctx context.Context, name string) (core.DataSource, error) {
	src, err := c.Connector.Source(ctx, name)
	if err != nil {
		return nil, err
	}
	c.log("open " + name)
	return &tracingSource{DataSource: src, close: func() { c.log("close " + name) }}, nil
}

type tracingSource struct {
	core.DataSource
	close func()
}

func (s *tracingSource) Close() error {
	s.close()
	return s.DataSource.Close()
}

func TestGridSource_LoadsDatasetsAfterTheirReferences(t *testing.T) {
	dir := newDir(t)
	grid := testGrid()
	persist(t, dir, grid.Entities())

	for _, concurrency := range []int{1, 6} {
		conn := &tracingConn{Connector: dir}
		src, err := New(conn, WithConcurrency(concurrency))
		require.NoError(t, err)
		got, report, err := src.Grid(context.Background())
		require.NoError(t, err)
		require.True(t, report.OK(), "%v", report.Err())
		assert.Equal(t, grid, got)

		at := func(event string) int {
			i := slices.Index(conn.events, event)
			require.GreaterOrEqual(t, i, 0, "missing %q in %v", event, conn.events)
			return i
		}
		assert.Less(t, at("close operator_input"), at("open node_input"))
		assert.Less(t, at("close line_type_input"), at("open line_input"))
		for _, dependent := range []string{"line_input", "switch_input", "load_input"} {
			assert.Less(t, at("close node_input"), at("open "+dependent))
		}
	}
}

func TestResolver_ConcurrentUse(t *testing.T) {
	r := NewResolver()
	op := &model.OperatorInput{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, ID: "op"}
	r.Add(op)
	d, err := factory.NewEntityData(core.Record{"uuid": uuid.NewString(), "id": "n", "operator": op.UUID.String()}, reflect.TypeOf((*model.NodeInput)(nil)).Elem())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Add(&model.OperatorInput{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}})
		}()
		go func() {
			defer wg.Done()
			data, err := r.Wrap(d)
			if assert.NoError(t, err) {
				assert.Same(t, op, data.(factory.AssetData).Operator)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 9, r.Len())
}

func TestGridSource_MissingDatasetsAreEmpty(t *testing.T) {
	src, err := New(newDir(t))
	require.NoError(t, err)

	grid, report, err := src.Grid(context.Background())
	require.NoError(t, err)
	assert.Empty(t, grid.Entities())
	assert.Zero(t, report.Read())

	results, _, err := src.Results(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGridSource_ReportsBadRecords(t *testing.T) {
	dir := newDir(t)
	grid := testGrid()
	persist(t, dir, grid.Entities())

	// one load points to a node that does not exist, another has a broken rating
	loads := "uuid,cosPhiRated,dsm,eConsAnnual,id,loadProfile,node,operatesFrom,operatesUntil,operator,qCharacteristics,sRated\n" +
		uuid.NewString() + ",0.95,false,4000,ghost,h0," + uuid.NewString() + ",,,,\"cosPhiFixed:{(0.00,1.00)}\",25\n" +
		uuid.NewString() + ",0.95,false,4000,broken,h0," + grid.Nodes[0].UUID.String() + ",,,,\"cosPhiFixed:{(0.00,1.00)}\",lots\n" +
		uuid.NewString() + ",0.95,false,4000,ok,h0," + grid.Nodes[0].UUID.String() + ",,,,\"cosPhiFixed:{(0.00,1.00)}\",25\n"
	require.NoError(t, os.WriteFile(dir.Path("load_input"), []byte(loads), 0o644))

	var logs bytes.Buffer
	src, err := New(dir, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)

	got, report, err := src.Grid(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Loads, 1)
	assert.Equal(t, "ok", got.Loads[0].ID)
	assert.Same(t, model.NotAssignedOperator, got.Loads[0].Operator)

	assert.Equal(t, 1, report.Count(UnresolvedReference))
	assert.Equal(t, 1, report.Count(MalformedRecord))
	assert.Equal(t, 9, report.Read())

	problems := report.Problems()
	require.Len(t, problems, 2)
	assert.Equal(t, "load_input", problems[0].Dataset)
	assert.Equal(t, 1, problems[0].Row)
	assert.Equal(t, 2, problems[1].Row)
	assert.ErrorIs(t, report.Err(), factory.ErrMalformedField)
	assert.Contains(t, logs.String(), "skipping record")
	assert.Contains(t, logs.String(), "target=LoadInput")
}

func TestGridSource_UnknownType(t *testing.T) {
	dir := newDir(t)
	grid := testGrid()
	persist(t, dir, grid.Entities())

	onlyOperators, err := factory.NewRegistry(factory.NewOperatorInputFactory())
	require.NoError(t, err)
	src, err := New(dir, WithFactories(onlyOperators), WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	require.NoError(t, err)

	got, report, err := src.Grid(context.Background())
	require.NoError(t, err)
	assert.Len(t, got.Operators, 1)
	assert.Empty(t, got.Nodes)
	assert.Equal(t, 6, report.Count(UnknownType))
}

func TestGridSource_Results(t *testing.T) {
	dir := newDir(t)
	results := []model.Entity{
		&model.NodeResult{
			ResultEntity: model.ResultEntity{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, Time: t0, InputModel: uuid.New()},
			VMag:         quantity.New(0.99, quantity.PU),
			VAng:         quantity.New(2, quantity.Degree),
		},
		&model.SwitchResult{
			ResultEntity: model.ResultEntity{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, Time: t0, InputModel: uuid.New()},
			Closed:       false,
		},
	}
	persist(t, dir, results)

	src, err := New(dir, WithConcurrency(2))
	require.NoError(t, err)
	got, report, err := src.Results(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, results, got)

	got, _, err = src.Results(context.Background(), reflect.TypeOf((*model.SwitchResult)(nil)).Elem())
	require.NoError(t, err)
	assert.Equal(t, results[1:], got)
}

func TestGridSource_TimeSeries(t *testing.T) {
	strategy := naming.NewStrategy(naming.WithPrefix("sim"))
	dir := newDir(t)

	p := &model.IndividualTimeSeries[model.PValue]{
		UniqueEntity: model.UniqueEntity{UUID: uuid.New()},
		Entries: []model.TimeBasedValue[model.PValue]{
			{Time: t0, Value: model.PValue{P: quantity.Ptr(1, quantity.KiloWatt)}},
			{Time: t0.Add(time.Hour), Value: model.PValue{P: quantity.Ptr(2.5, quantity.KiloWatt)}},
		},
	}
	s := &model.IndividualTimeSeries[model.SValue]{
		UniqueEntity: model.UniqueEntity{UUID: uuid.New()},
		Entries: []model.TimeBasedValue[model.SValue]{
			{Time: t0, Value: model.SValue{PValue: model.PValue{P: quantity.Ptr(1, quantity.KiloWatt)}, Q: quantity.Ptr(0.5, quantity.KiloVar)}},
		},
	}
	persist(t, dir, []model.Entity{p, s}, sink.WithNaming(strategy))
	// unrelated datasets are ignored
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dir.Path("x")), "notes.csv"), []byte("a\n1\n"), 0o644))

	src, err := New(dir, WithNaming(strategy))
	require.NoError(t, err)
	got, report, err := src.TimeSeries(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.ElementsMatch(t, []model.TimeSeries{p, s}, got)
}

func TestGridSource_TimeSeriesUsesConfiguredFactories(t *testing.T) {
	dir := newDir(t)
	p := &model.IndividualTimeSeries[model.PValue]{
		UniqueEntity: model.UniqueEntity{UUID: uuid.New()},
		Entries: []model.TimeBasedValue[model.PValue]{
			{Time: t0, Value: model.PValue{P: quantity.Ptr(1, quantity.KiloWatt)}},
		},
	}
	s := &model.IndividualTimeSeries[model.SValue]{
		UniqueEntity: model.UniqueEntity{UUID: uuid.New()},
		Entries: []model.TimeBasedValue[model.SValue]{
			{Time: t0, Value: model.SValue{PValue: model.PValue{P: quantity.Ptr(1, quantity.KiloWatt)}, Q: quantity.Ptr(0.5, quantity.KiloVar)}},
			{Time: t0.Add(time.Hour), Value: model.SValue{PValue: model.PValue{P: quantity.Ptr(2, quantity.KiloWatt)}, Q: quantity.Ptr(1, quantity.KiloVar)}},
		},
	}
	persist(t, dir, []model.Entity{p, s})

	onlyP, err := factory.NewRegistry(factory.NewPValueFactory())
	require.NoError(t, err)
	src, err := New(dir, WithFactories(onlyP), WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	require.NoError(t, err)

	got, report, err := src.TimeSeries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(UnknownType))
	require.Len(t, got, 2)
	for _, ts := range got {
		switch ts := ts.(type) {
		case *model.IndividualTimeSeries[model.PValue]:
			assert.Equal(t, p, ts)
		case *model.IndividualTimeSeries[model.SValue]:
			assert.Equal(t, s.UUID, ts.UUID)
			assert.Empty(t, ts.Entries)
		default:
			t.Fatalf("unexpected series %T", ts)
		}
	}
}

func TestNew_RequiresConnector(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestProblemKind_String(t *testing.T) {
	assert.Equal(t, "unresolved reference", UnresolvedReference.String())
	assert.Equal(t, "unknown type", UnknownType.String())
	assert.Equal(t, "malformed record", MalformedRecord.String())
}
