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

package quantity

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/unit"
)

// ErrIncompatibleUnit is returned when converting between units of different families or dimensions.
var ErrIncompatibleUnit = errors.New("incompatible unit")

// Quantity is a value with its unit.
type Quantity struct {
	value float64
	unit  Unit
}

// New returns a quantity of value in u.
func New(value float64, u Unit) Quantity {
	return Quantity{value: value, unit: u}
}

// Ptr returns a pointer to a new quantity, for optional fields.
func Ptr(value float64, u Unit) *Quantity {
	q := New(value, u)
	return &q
}

// Value returns the numeric value in the quantity's own unit.
func (q Quantity) Value() float64 { return q.value }

// Unit returns the quantity's unit.
func (q Quantity) Unit() Unit { return q.unit }

// SI returns the quantity as a dimensioned SI value.
func (q Quantity) SI() *unit.Unit {
	return unit.New(q.value*q.unit.scale, q.unit.dims)
}

// To converts q into target.
func (q Quantity) To(target Unit) (Quantity, error) {
	if q.unit.symbol == target.symbol {
		return q, nil
	}
	if q.unit.family != target.family {
		return Quantity{}, fmt.Errorf("%w: %s to %s", ErrIncompatibleUnit, q.unit, target)
	}
	si := q.SI()
	if err := si.Check(target.dims); err != nil {
		return Quantity{}, fmt.Errorf("%w: %s to %s: %v", ErrIncompatibleUnit, q.unit, target, err)
	}
	return Quantity{value: si.Value() / target.scale, unit: target}, nil
}

// ValueIn converts q into target and returns the bare number.
func (q Quantity) ValueIn(target Unit) (float64, error) {
	c, err := q.To(target)
	if err != nil {
		return 0, err
	}
	return c.value, nil
}

// Equal reports whether q and other describe the same amount within tolerance.
func (q Quantity) Equal(other Quantity, tolerance float64) bool {
	c, err := other.To(q.unit)
	if err != nil {
		return false
	}
	return math.Abs(q.value-c.value) <= tolerance
}

// String renders the quantity as "<value> <symbol>".
func (q Quantity) String() string {
	return FormatValue(q.value) + " " + q.unit.symbol
}

// FormatValue renders a float in its shortest round-trippable decimal form.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Parse reads a "<value> <symbol>" string as produced by String.
func Parse(s string) (Quantity, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Quantity{}, fmt.Errorf("malformed quantity %q", s)
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("malformed quantity %q: %w", s, err)
	}
	u, err := ParseUnit(fields[1])
	if err != nil {
		return Quantity{}, err
	}
	return New(v, u), nil
}
