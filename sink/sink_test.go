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

package sink

import (
	"context"
	"encoding/csv"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gridetl/connector"
	"github.com/aaronlmathis/gridetl/model"
	"github.com/aaronlmathis/gridetl/naming"
	"github.com/aaronlmathis/gridetl/processor"
	"github.com/aaronlmathis/gridetl/quantity"
)

var t0 = time.Date(2022, 5, 4, 8, 15, 0, 0, time.UTC)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func newSink(t *testing.T, opts ...Option) (*EntitySink, *connector.Dir) {
	t.Helper()
	dir, err := connector.NewDir(t.TempDir())
	require.NoError(t, err)
	s, err := New(dir, opts...)
	require.NoError(t, err)
	return s, dir
}

func nodeResult(vMag float64) *model.NodeResult {
	return &model.NodeResult{
		ResultEntity: model.ResultEntity{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, Time: t0, InputModel: uuid.New()},
		VMag:         quantity.New(vMag, quantity.PU),
		VAng:         quantity.New(0, quantity.Degree),
	}
}

func TestEntitySink_HeaderOncePerType(t *testing.T) {
	s, dir := newSink(t)
	ctx := context.Background()

	require.NoError(t, s.Persist(ctx, nodeResult(1.01)))
	require.NoError(t, s.Persist(ctx, nodeResult(0.97)))
	require.NoError(t, s.Persist(ctx, &model.OperatorInput{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, ID: "op"}))
	require.NoError(t, s.Close())

	rows := readCSV(t, dir.Path("node_result"))
	require.Len(t, rows, 3)
	procs, err := processor.DefaultRegistry()
	require.NoError(t, err)
	header, err := procs.HeaderElements(reflect.TypeOf((*model.NodeResult)(nil)).Elem())
	require.NoError(t, err)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, "uuid", rows[0][0])

	rows = readCSV(t, dir.Path("operator_input"))
	assert.Equal(t, []string{"uuid", "id"}, rows[0])
	assert.Equal(t, "op", rows[1][1])

	assert.Equal(t, map[string]int{"node_result": 2, "operator_input": 1}, s.Written())
}

func TestEntitySink_TimeSeries(t *testing.T) {
	s, dir := newSink(t, WithNaming(naming.NewStrategy(naming.WithSuffix("v1"))))
	ts := &model.IndividualTimeSeries[model.PValue]{
		UniqueEntity: model.UniqueEntity{UUID: uuid.MustParse("b88dee50-5484-4136-901d-050d8c1c97d1")},
		Entries: []model.TimeBasedValue[model.PValue]{
			{Time: t0, Value: model.PValue{P: quantity.Ptr(3, quantity.KiloWatt)}},
			{Time: t0.Add(time.Hour)},
		},
	}
	require.NoError(t, s.Persist(context.Background(), ts))

	rows := readCSV(t, dir.Path("its_p_b88dee50-5484-4136-901d-050d8c1c97d1_v1"))
	assert.Equal(t, [][]string{
		{"p", "time"},
		{"3", "2022-05-04T08:15:00Z"},
		{"", "2022-05-04T09:15:00Z"},
	}, rows)
	require.NoError(t, s.Close())
}

func TestEntitySink_Errors(t *testing.T) {
	s, _ := newSink(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Persist(ctx, nil), processor.ErrNilEntity)
	assert.ErrorIs(t, s.Persist(ctx, &model.SystemParticipantResult{}), processor.ErrProcessorNotFound)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Persist(ctx, nodeResult(1)), ErrClosed)
	assert.NoError(t, s.Close())

	_, err := New(nil)
	assert.Error(t, err)
}

func TestEntitySink_PersistGrid(t *testing.T) {
	s, dir := newSink(t)
	op := &model.OperatorInput{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, ID: "op"}
	node := &model.NodeInput{
		AssetInput: model.AssetInput{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, ID: "n", Operator: op},
		VTarget:    quantity.New(1, quantity.PU),
		VoltLvl:    model.VoltageLevel{ID: "NS", Nominal: quantity.New(0.4, quantity.KiloVolt)},
	}
	require.NoError(t, s.PersistGrid(context.Background(), &model.RawGrid{
		Operators: []*model.OperatorInput{op},
		Nodes:     []*model.NodeInput{node},
	}))
	require.NoError(t, s.Close())

	names, err := dir.Names(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"node_input", "operator_input"}, names)

	rows := readCSV(t, dir.Path("node_input"))
	require.Len(t, rows, 2)
	record := make(map[string]string)
	for i, col := range rows[0] {
		record[col] = rows[1][i]
	}
	assert.Equal(t, op.UUID.String(), record["operator"])
	assert.Equal(t, "0.4", record["vRated"])
}
