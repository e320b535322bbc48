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

package factory

import (
	"reflect"

	"github.com/aaronlmathis/gridetl/model"
	"github.com/aaronlmathis/gridetl/quantity"
)

// NewPValueFactory builds active power time series entries.
func NewPValueFactory() *EntityFactory[*EntityData, model.TimeBasedValue[model.PValue]] {
	shapes := []Shape{NewShape("pValue", Time, P)}
	return NewEntityFactory(
		func(reflect.Type) []Shape { return shapes },
		func(d *EntityData, _ int) (model.TimeBasedValue[model.PValue], error) {
			var (
				v   model.TimeBasedValue[model.PValue]
				err error
			)
			if v.Time, err = d.Time(Time); err != nil {
				return v, err
			}
			v.Value.P, err = d.OptionalQuantity(P, quantity.KiloWatt)
			return v, err
		},
		reflect.TypeOf((*model.TimeBasedValue[model.PValue])(nil)).Elem(),
	)
}

// NewSValueFactory builds apparent power time series entries.
func NewSValueFactory() *EntityFactory[*EntityData, model.TimeBasedValue[model.SValue]] {
	shapes := []Shape{NewShape("sValue", Time, P, Q)}
	return NewEntityFactory(
		func(reflect.Type) []Shape { return shapes },
		func(d *EntityData, _ int) (model.TimeBasedValue[model.SValue], error) {
			var (
				v   model.TimeBasedValue[model.SValue]
				err error
			)
			if v.Time, err = d.Time(Time); err != nil {
				return v, err
			}
			if v.Value.P, err = d.OptionalQuantity(P, quantity.KiloWatt); err != nil {
				return v, err
			}
			v.Value.Q, err = d.OptionalQuantity(Q, quantity.KiloVar)
			return v, err
		},
		reflect.TypeOf((*model.TimeBasedValue[model.SValue])(nil)).Elem(),
	)
}

// DefaultRegistry returns a registry holding every factory of the model.
func DefaultRegistry() (*Registry, error) {
	return NewRegistry(
		NewOperatorInputFactory(),
		NewLineTypeInputFactory(),
		NewNodeInputFactory(),
		NewLineInputFactory(),
		NewSwitchInputFactory(),
		NewLoadInputFactory(),
		NewNodeResultFactory(),
		NewSystemParticipantResultFactory(),
		NewSwitchResultFactory(),
		NewLineResultFactory(),
		NewPValueFactory(),
		NewSValueFactory(),
	)
}
