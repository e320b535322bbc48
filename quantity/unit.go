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
	"fmt"
	"strings"

	"github.com/ctessum/unit"
)

// Package quantity models physical quantities with display units (kW, MVAr, pu, ...).
//
// A Unit is a scaled SI unit: its scale maps a value in the unit onto the SI base value and its
// dimensions are the SI dimensions of github.com/ctessum/unit. Units with equal dimensions can
// still be incompatible (active vs reactive power), which is why every unit also belongs to a
// Family.

// Family groups units that may be converted into each other.
type Family string

const (
	FamilyRatio          Family = "ratio"
	FamilyAngle          Family = "angle"
	FamilyVoltage        Family = "voltage"
	FamilyCurrent        Family = "current"
	FamilyActivePower    Family = "active_power"
	FamilyReactivePower  Family = "reactive_power"
	FamilyApparentPower  Family = "apparent_power"
	FamilyEnergy         Family = "energy"
	FamilyLength         Family = "length"
	FamilyResistanceLen  Family = "resistance_per_length"
	FamilyConductanceLen Family = "conductance_per_length"
)

// Unit is a named, scaled SI unit.
type Unit struct {
	symbol string
	scale  float64
	family Family
	dims   unit.Dimensions
}

// Symbol returns the textual symbol, e.g. "kV".
func (u Unit) Symbol() string { return u.symbol }

// Family returns the conversion family of the unit.
func (u Unit) Family() Family { return u.family }

// IsZero reports whether u is the zero Unit.
func (u Unit) IsZero() bool { return u.symbol == "" }

func (u Unit) String() string { return u.symbol }

// Compatible reports whether values can be converted from u to other.
func (u Unit) Compatible(other Unit) bool {
	if u.family != other.family {
		return false
	}
	return unit.New(1, u.dims).Check(other.dims) == nil
}

var (
	dimensionless = unit.Dimensions{}
	voltDims      = unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 2, unit.TimeDim: -3, unit.CurrentDim: -1}
	ampereDims    = unit.Dimensions{unit.CurrentDim: 1}
	wattDims      = unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 2, unit.TimeDim: -3}
	jouleDims     = unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 2, unit.TimeDim: -2}
	meterDims     = unit.Dimensions{unit.LengthDim: 1}
	ohmPerMDims   = unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 1, unit.TimeDim: -3, unit.CurrentDim: -2}
	siemensPerM   = unit.Dimensions{unit.MassDim: -1, unit.LengthDim: -3, unit.TimeDim: 3, unit.CurrentDim: 2}
)

// Standard units of the grid model.
var (
	PU      = Unit{"pu", 1, FamilyRatio, dimensionless}
	Percent = Unit{"%", 0.01, FamilyRatio, dimensionless}

	Degree = Unit{"deg", 1, FamilyAngle, dimensionless}

	Volt     = Unit{"V", 1, FamilyVoltage, voltDims}
	KiloVolt = Unit{"kV", 1e3, FamilyVoltage, voltDims}

	Ampere = Unit{"A", 1, FamilyCurrent, ampereDims}

	Watt     = Unit{"W", 1, FamilyActivePower, wattDims}
	KiloWatt = Unit{"kW", 1e3, FamilyActivePower, wattDims}
	MegaWatt = Unit{"MW", 1e6, FamilyActivePower, wattDims}

	KiloVar = Unit{"kVAr", 1e3, FamilyReactivePower, wattDims}
	MegaVar = Unit{"MVAr", 1e6, FamilyReactivePower, wattDims}

	KiloVoltAmpere = Unit{"kVA", 1e3, FamilyApparentPower, wattDims}
	MegaVoltAmpere = Unit{"MVA", 1e6, FamilyApparentPower, wattDims}

	KiloWattHour = Unit{"kWh", 3.6e6, FamilyEnergy, jouleDims}
	MegaWattHour = Unit{"MWh", 3.6e9, FamilyEnergy, jouleDims}

	Meter     = Unit{"m", 1, FamilyLength, meterDims}
	Kilometer = Unit{"km", 1e3, FamilyLength, meterDims}

	OhmPerKilometer          = Unit{"Ohm/km", 1e-3, FamilyResistanceLen, ohmPerMDims}
	MicroSiemensPerKilometer = Unit{"uS/km", 1e-9, FamilyConductanceLen, siemensPerM}
)

var bySymbol = map[string]Unit{}

func init() {
	for _, u := range []Unit{
		PU, Percent, Degree, Volt, KiloVolt, Ampere, Watt, KiloWatt, MegaWatt,
		KiloVar, MegaVar, KiloVoltAmpere, MegaVoltAmpere, KiloWattHour, MegaWattHour,
		Meter, Kilometer, OhmPerKilometer, MicroSiemensPerKilometer,
	} {
		bySymbol[strings.ToLower(u.symbol)] = u
	}
}

// ParseUnit resolves a unit symbol, case-insensitively.
func ParseUnit(symbol string) (Unit, error) {
	u, ok := bySymbol[strings.ToLower(strings.TrimSpace(symbol))]
	if !ok {
		return Unit{}, fmt.Errorf("unknown unit %q", symbol)
	}
	return u, nil
}
