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

package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gridetl/quantity"
)

func TestCharacteristic_RoundTrip(t *testing.T) {
	tests := []struct {
		in   string
		want Characteristic
	}{
		{"cosPhiFixed:{(0.00,1.00)}", FixedCosPhi},
		{"olm:{(0.00,1.00)}", OlmDefault},
		{"cosPhiP:{(0.00,1.00),(0.90,1.00),(1.20,-0.30)}", Characteristic{
			Prefix: PrefixCosPhiP,
			Points: []CharacteristicPoint{{0, 1}, {0.9, 1}, {1.2, -0.3}},
		}},
		{"qV:{(0.925,-1.00),(1.075,1.00)}", Characteristic{
			Prefix: PrefixQV,
			Points: []CharacteristicPoint{{0.925, -1}, {1.075, 1}},
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCharacteristic(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestParseCharacteristic_Errors(t *testing.T) {
	_, err := ParseCharacteristic("cosPhiFixed:(0,1)")
	assert.Error(t, err)

	_, err = ParseCharacteristic("cosPhiFixed:{}")
	assert.Error(t, err)

	_, err = ParseCharacteristic("olm:{(0.00,1.00)}", PrefixCosPhiFixed, PrefixCosPhiP, PrefixQV)
	assert.Error(t, err)
}

func TestParseLoadProfile(t *testing.T) {
	lp, err := ParseLoadProfile(" H0 ")
	require.NoError(t, err)
	assert.Equal(t, LoadProfileH0, lp)
	assert.Equal(t, "h0", lp.EnumKey())

	lp, err = ParseLoadProfile("")
	require.NoError(t, err)
	assert.Equal(t, LoadProfileNone, lp)

	_, err = ParseLoadProfile("x9")
	assert.Error(t, err)
}

func TestOperationTime_Includes(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	ot := OperationTime{StartDate: &start, EndDate: &end}

	assert.True(t, ot.IsLimited())
	assert.True(t, ot.Includes(start.Add(time.Hour)))
	assert.False(t, ot.Includes(start.Add(-time.Hour)))
	assert.False(t, ot.Includes(end.Add(time.Hour)))
	assert.True(t, NotLimited.Includes(end.Add(time.Hour)))
	assert.False(t, NotLimited.IsLimited())
}

func TestIsNotAssigned(t *testing.T) {
	assert.True(t, IsNotAssigned(nil))
	assert.True(t, IsNotAssigned(NotAssignedOperator))
	assert.False(t, IsNotAssigned(&OperatorInput{UniqueEntity: UniqueEntity{UUID: uuid.New()}}))
}

func TestIndividualTimeSeries(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := &IndividualTimeSeries[PValue]{
		UniqueEntity: UniqueEntity{UUID: uuid.New()},
		Entries: []TimeBasedValue[PValue]{
			{Time: t0.Add(time.Hour), Value: PValue{P: quantity.Ptr(2, quantity.KiloWatt)}},
			{Time: t0, Value: PValue{P: quantity.Ptr(1, quantity.KiloWatt)}},
		},
	}
	ts.Sort()
	assert.Equal(t, t0, ts.Entries[0].Time)
	assert.Equal(t, 2, ts.Len())

	v, ok := ts.ValueAt(t0.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, 2.0, v.P.Value())

	assert.Equal(t, "PValue", ts.ValueType().Name())
	_, ok = ts.EntryAt(0).(TimeBasedValue[PValue])
	assert.True(t, ok)
}

func TestRawGrid_Add(t *testing.T) {
	g := &RawGrid{}
	node := &NodeInput{AssetInput: AssetInput{UniqueEntity: UniqueEntity{UUID: uuid.New()}}}
	assert.True(t, g.Add(node))
	assert.True(t, g.Add(&OperatorInput{}))
	assert.False(t, g.Add(&NodeResult{}))

	found, ok := g.Node(node.UUID)
	require.True(t, ok)
	assert.Same(t, node, found)
	assert.Len(t, g.Entities(), 2)
}
