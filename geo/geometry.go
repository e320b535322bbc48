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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Package geo holds the two geometries the grid model persists (node positions and line
// courses) and their GeoJSON text form.

// ErrMalformedGeometry is returned for text that is not a GeoJSON geometry of the expected type.
var ErrMalformedGeometry = errors.New("malformed geometry")

// Point is a WGS84 longitude/latitude position.
type Point struct {
	Lon float64
	Lat float64
}

// LineString is an ordered sequence of positions.
type LineString struct {
	Coordinates []Point
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// String renders the point as GeoJSON.
func (p Point) String() string {
	return fmt.Sprintf(`{"type":"Point","coordinates":%s}`, position(p))
}

// String renders the line as GeoJSON.
func (l LineString) String() string {
	var b strings.Builder
	b.WriteString(`{"type":"LineString","coordinates":[`)
	for i, p := range l.Coordinates {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(position(p))
	}
	b.WriteString(`]}`)
	return b.String()
}

func position(p Point) string {
	raw, _ := json.Marshal([2]float64{p.Lon, p.Lat})
	return string(raw)
}

// ParsePoint reads a GeoJSON Point. Blank input yields nil without error.
func ParsePoint(s string) (*Point, error) {
	g, err := decode(s, "Point")
	if err != nil || g == nil {
		return nil, err
	}
	var c [2]float64
	if err := json.Unmarshal(g.Coordinates, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
	}
	return &Point{Lon: c[0], Lat: c[1]}, nil
}

// ParseLineString reads a GeoJSON LineString. Blank input yields nil without error.
func ParseLineString(s string) (*LineString, error) {
	g, err := decode(s, "LineString")
	if err != nil || g == nil {
		return nil, err
	}
	var cs [][2]float64
	if err := json.Unmarshal(g.Coordinates, &cs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
	}
	if len(cs) < 2 {
		return nil, fmt.Errorf("%w: line string needs at least two positions", ErrMalformedGeometry)
	}
	l := &LineString{Coordinates: make([]Point, len(cs))}
	for i, c := range cs {
		l.Coordinates[i] = Point{Lon: c[0], Lat: c[1]}
	}
	return l, nil
}

func decode(s, want string) (*geometry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var g geometry
	if err := json.Unmarshal([]byte(s), &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
	}
	if !strings.EqualFold(g.Type, want) {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrMalformedGeometry, want, g.Type)
	}
	return &g, nil
}
