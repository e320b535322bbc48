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

package processor

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/factory"
	"github.com/aaronlmathis/gridetl/geo"
	"github.com/aaronlmathis/gridetl/model"
	"github.com/aaronlmathis/gridetl/quantity"
)

// resolve wraps record the way a grid source does: references are looked up by UUID and
// removed from the attributes.
func resolve(t *testing.T, record core.Record, target reflect.Type, refs map[uuid.UUID]model.Entity) factory.Data {
	t.Helper()
	d, err := factory.NewEntityData(record, target)
	require.NoError(t, err)

	lookup := func(key string) model.Entity {
		raw, ok := d.FieldOptional(key)
		if !ok || raw == "" {
			return nil
		}
		e, ok := refs[uuid.MustParse(raw)]
		require.True(t, ok, "unresolved %s %s", key, raw)
		return e
	}
	node := func(key string) *model.NodeInput {
		if e := lookup(key); e != nil {
			return e.(*model.NodeInput)
		}
		return nil
	}

	asset := factory.AssetData{EntityData: d.Without(factory.ReferenceAttributes...)}
	if e := lookup(factory.Operator); e != nil {
		asset.Operator = e.(*model.OperatorInput)
	}
	switch target {
	case reflect.TypeOf((*model.NodeInput)(nil)).Elem():
		return asset
	case reflect.TypeOf((*model.SwitchInput)(nil)).Elem():
		return factory.ConnectorData{AssetData: asset, NodeA: node(factory.NodeA), NodeB: node(factory.NodeB)}
	case reflect.TypeOf((*model.LineInput)(nil)).Elem():
		ld := factory.LineData{ConnectorData: factory.ConnectorData{AssetData: asset, NodeA: node(factory.NodeA), NodeB: node(factory.NodeB)}}
		if e := lookup(factory.Type); e != nil {
			ld.Type = e.(*model.LineTypeInput)
		}
		return ld
	case reflect.TypeOf((*model.LoadInput)(nil)).Elem():
		return factory.NodeAssetData{AssetData: asset, Node: node(factory.Node)}
	default:
		return d
	}
}

func TestRoundTrip(t *testing.T) {
	procs, err := DefaultRegistry()
	require.NoError(t, err)
	facts, err := factory.DefaultRegistry()
	require.NoError(t, err)

	until := time.Date(2030, 6, 30, 12, 0, 0, 0, time.UTC)
	refs := map[uuid.UUID]model.Entity{
		operator.UUID: operator,
		nodeA.UUID:    nodeA,
		nodeB.UUID:    nodeB,
		lineType.UUID: lineType,
	}

	entities := []model.Entity{
		operator,
		lineType,
		nodeA,
		nodeB,
		&model.LineInput{
			ConnectorInput: model.ConnectorInput{
				AssetInput: model.AssetInput{
					UniqueEntity:  model.UniqueEntity{UUID: uuid.New()},
					ID:            "line_AtoB",
					Operator:      operator,
					OperationTime: model.OperationTime{StartDate: &t0, EndDate: &until},
				},
				NodeA:           nodeA,
				NodeB:           nodeB,
				ParallelDevices: 2,
			},
			Type:              lineType,
			Length:            quantity.New(0.003, quantity.Kilometer),
			GeoPosition:       &geo.LineString{Coordinates: []geo.Point{{Lon: 7.411111, Lat: 51.492528}, {Lon: 7.414116, Lat: 51.484136}}},
			OlmCharacteristic: model.OlmDefault,
		},
		&model.SwitchInput{
			ConnectorInput: model.ConnectorInput{
				AssetInput: model.AssetInput{
					UniqueEntity: model.UniqueEntity{UUID: uuid.New()},
					ID:           "switch",
					Operator:     model.NotAssignedOperator,
				},
				NodeA:           nodeA,
				NodeB:           nodeB,
				ParallelDevices: 1,
			},
			Closed: true,
		},
		&model.LoadInput{
			SystemParticipantInput: model.SystemParticipantInput{
				AssetInput: model.AssetInput{
					UniqueEntity: model.UniqueEntity{UUID: uuid.New()},
					ID:           "load",
					Operator:     operator,
				},
				Node: nodeA,
				QCharacteristics: model.Characteristic{
					Prefix: model.PrefixCosPhiP,
					Points: []model.CharacteristicPoint{{X: 0, Y: 1}, {X: 0.9, Y: 1}, {X: 1.2, Y: -0.3}},
				},
			},
			LoadProfile: model.LoadProfileH0,
			Dsm:         false,
			EConsAnnual: quantity.New(4000, quantity.KiloWattHour),
			SRated:      quantity.New(25, quantity.KiloVoltAmpere),
			CosPhiRated: 0.95,
		},
		&model.NodeResult{
			ResultEntity: model.ResultEntity{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, Time: t0, InputModel: nodeA.UUID},
			VMag:         quantity.New(0.98, quantity.PU),
			VAng:         quantity.New(-1.5, quantity.Degree),
		},
		&model.LoadResult{SystemParticipantResult: model.SystemParticipantResult{
			ResultEntity: model.ResultEntity{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, Time: t0, InputModel: uuid.New()},
			P:            quantity.New(0.025, quantity.MegaWatt),
			Q:            quantity.New(0.001, quantity.MegaVar),
		}},
		&model.StorageResult{
			SystemParticipantResult: model.SystemParticipantResult{
				ResultEntity: model.ResultEntity{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, Time: t0, InputModel: uuid.New()},
				P:            quantity.New(-0.0125, quantity.MegaWatt),
				Q:            quantity.New(0, quantity.MegaVar),
			},
			Soc: quantity.New(55.5, quantity.Percent),
		},
		&model.LineResult{
			ResultEntity: model.ResultEntity{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, Time: t0, InputModel: uuid.New()},
			IAMag:        quantity.New(112.5, quantity.Ampere),
			IAAng:        quantity.New(-3.25, quantity.Degree),
			IBMag:        quantity.New(112.25, quantity.Ampere),
			IBAng:        quantity.New(176.75, quantity.Degree),
		},
		&model.SwitchResult{
			ResultEntity: model.ResultEntity{UniqueEntity: model.UniqueEntity{UUID: uuid.New()}, Time: t0, InputModel: uuid.New()},
			Closed:       true,
		},
	}

	for _, e := range entities {
		e := e
		target := reflect.TypeOf(e).Elem()
		t.Run(target.Name(), func(t *testing.T) {
			record, err := procs.HandleEntity(e)
			require.NoError(t, err)

			rebuilt, err := facts.Build(resolve(t, record, target, refs))
			require.NoError(t, err)
			assert.Equal(t, e, rebuilt)
		})
	}
}

func TestRoundTrip_TimeSeries(t *testing.T) {
	procs, err := DefaultRegistry()
	require.NoError(t, err)

	ts := &model.IndividualTimeSeries[model.SValue]{
		UniqueEntity: model.UniqueEntity{UUID: uuid.New()},
		Entries: []model.TimeBasedValue[model.SValue]{
			{Time: t0, Value: model.SValue{PValue: model.PValue{P: quantity.Ptr(1.5, quantity.KiloWatt)}, Q: quantity.Ptr(0.3, quantity.KiloVar)}},
			{Time: t0.Add(15 * time.Minute), Value: model.SValue{PValue: model.PValue{P: quantity.Ptr(2, quantity.KiloWatt)}}},
		},
	}

	rows, err := procs.HandleTimeSeries(ts)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	f := factory.NewSValueFactory()
	for i, row := range rows {
		entry, err := f.Build(factory.MustEntityData(row, reflect.TypeOf((*model.TimeBasedValue[model.SValue])(nil)).Elem()))
		require.NoError(t, err)
		assert.Equal(t, ts.Entries[i], entry)
	}
}
