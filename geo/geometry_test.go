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

package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoint_RoundTrip(t *testing.T) {
	p := Point{Lon: 7.4116482, Lat: 51.4843281}
	s := p.String()
	assert.Equal(t, `{"type":"Point","coordinates":[7.4116482,51.4843281]}`, s)

	parsed, err := ParsePoint(s)
	require.NoError(t, err)
	assert.Equal(t, p, *parsed)
}

func TestLineString_RoundTrip(t *testing.T) {
	l := LineString{Coordinates: []Point{{7.41, 51.48}, {7.42, 51.49}}}
	parsed, err := ParseLineString(l.String())
	require.NoError(t, err)
	assert.Equal(t, l, *parsed)
}

func TestParse_Blank(t *testing.T) {
	p, err := ParsePoint("   ")
	require.NoError(t, err)
	assert.Nil(t, p)

	l, err := ParseLineString("")
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", "POINT(1 2)"},
		{"wrong type", `{"type":"LineString","coordinates":[[1,2],[3,4]]}`},
		{"bad coordinates", `{"type":"Point","coordinates":"x"}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePoint(tt.in)
			assert.ErrorIs(t, err, ErrMalformedGeometry)
		})
	}

	_, err := ParseLineString(`{"type":"LineString","coordinates":[[1,2]]}`)
	assert.ErrorIs(t, err, ErrMalformedGeometry)
}
