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
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CharacteristicPoint is one support point of a characteristic curve.
type CharacteristicPoint struct {
	X float64
	Y float64
}

// Characteristic is a named piecewise curve, persisted as `prefix:{(x1,y1),(x2,y2)}`.
type Characteristic struct {
	Prefix string
	Points []CharacteristicPoint
}

// Characteristic prefixes known to the model.
const (
	PrefixCosPhiFixed = "cosPhiFixed"
	PrefixCosPhiP     = "cosPhiP"
	PrefixQV          = "qV"
	PrefixOlm         = "olm"
)

// FixedCosPhi is the default reactive power characteristic of system participants.
var FixedCosPhi = Characteristic{Prefix: PrefixCosPhiFixed, Points: []CharacteristicPoint{{0, 1}}}

// OlmDefault is the default overhead line monitoring characteristic (no thermal uprating).
var OlmDefault = Characteristic{Prefix: PrefixOlm, Points: []CharacteristicPoint{{0, 1}}}

var (
	characteristicPattern = regexp.MustCompile(`^([A-Za-z]+):\{(.*)\}$`)
	pointPattern          = regexp.MustCompile(`\(\s*([^,()]+)\s*,\s*([^,()]+)\s*\)`)
)

// String renders the curve notation.
func (c Characteristic) String() string {
	parts := make([]string, len(c.Points))
	for i, p := range c.Points {
		parts[i] = "(" + formatDecimal(p.X) + "," + formatDecimal(p.Y) + ")"
	}
	return c.Prefix + ":{" + strings.Join(parts, ",") + "}"
}

// IsZero reports whether c is unset.
func (c Characteristic) IsZero() bool {
	return c.Prefix == "" && len(c.Points) == 0
}

// ParseCharacteristic reads the curve notation. When prefixes are given the parsed prefix
// must be one of them.
func ParseCharacteristic(s string, prefixes ...string) (Characteristic, error) {
	m := characteristicPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Characteristic{}, fmt.Errorf("malformed characteristic %q", s)
	}
	if len(prefixes) > 0 && !containsFold(prefixes, m[1]) {
		return Characteristic{}, fmt.Errorf("characteristic %q has prefix %q, expected one of %v", s, m[1], prefixes)
	}

	c := Characteristic{Prefix: m[1]}
	for _, pm := range pointPattern.FindAllStringSubmatch(m[2], -1) {
		x, err := strconv.ParseFloat(strings.TrimSpace(pm[1]), 64)
		if err != nil {
			return Characteristic{}, fmt.Errorf("characteristic %q: %w", s, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(pm[2]), 64)
		if err != nil {
			return Characteristic{}, fmt.Errorf("characteristic %q: %w", s, err)
		}
		c.Points = append(c.Points, CharacteristicPoint{X: x, Y: y})
	}
	if len(c.Points) == 0 {
		return Characteristic{}, fmt.Errorf("characteristic %q has no points", s)
	}
	return c, nil
}

// formatDecimal keeps at least two fraction digits ("1" -> "1.00") without losing precision.
func formatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	switch {
	case dot < 0:
		return s + ".00"
	case len(s)-dot-1 < 2:
		return s + strings.Repeat("0", 2-(len(s)-dot-1))
	default:
		return s
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
