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

	"github.com/google/uuid"

	"github.com/aaronlmathis/gridetl/model"
	"github.com/aaronlmathis/gridetl/quantity"
)

// Result attribute names.
const (
	VMag  = "vMag"
	VAng  = "vAng"
	P     = "p"
	Q     = "q"
	Soc   = "soc"
	IAMag = "iAMag"
	IAAng = "iAAng"
	IBMag = "iBMag"
	IBAng = "iBAng"
)

// resultShapes returns base and its variant carrying an explicit uuid. Results written by
// simulators often lack the uuid, in which case a random one is assigned.
func resultShapes(name string, attrs ...string) []Shape {
	base := NewShape(name, append([]string{Time, InputModel}, attrs...)...)
	return []Shape{base, base.With(name+"+uuid", UUID)}
}

func buildResult(d *EntityData) (model.ResultEntity, error) {
	var (
		r   model.ResultEntity
		err error
	)
	if d.Contains(UUID) {
		if r.UUID, err = d.UUID(UUID); err != nil {
			return r, err
		}
	} else {
		r.UUID = uuid.New()
	}
	if r.Time, err = d.Time(Time); err != nil {
		return r, err
	}
	if r.InputModel, err = d.UUID(InputModel); err != nil {
		return r, err
	}
	return r, nil
}

// NewNodeResultFactory builds node results.
func NewNodeResultFactory() *EntityFactory[*EntityData, *model.NodeResult] {
	shapes := resultShapes("nodeResult", VMag, VAng)
	return NewEntityFactory(
		func(reflect.Type) []Shape { return shapes },
		func(d *EntityData, _ int) (*model.NodeResult, error) {
			base, err := buildResult(d)
			if err != nil {
				return nil, err
			}
			r := &model.NodeResult{ResultEntity: base}
			if r.VMag, err = d.Quantity(VMag, quantity.PU); err != nil {
				return nil, err
			}
			if r.VAng, err = d.Quantity(VAng, quantity.Degree); err != nil {
				return nil, err
			}
			return r, nil
		},
		reflect.TypeOf((*model.NodeResult)(nil)).Elem(),
	)
}

// NewSystemParticipantResultFactory builds the results of loads and storages. Storage
// results additionally carry the state of charge.
func NewSystemParticipantResultFactory() *EntityFactory[*EntityData, model.Entity] {
	loadShapes := resultShapes("participantResult", P, Q)
	storageShapes := resultShapes("storageResult", P, Q, Soc)
	storageType := reflect.TypeOf((*model.StorageResult)(nil)).Elem()

	return NewEntityFactory(
		func(t reflect.Type) []Shape {
			if t == storageType {
				return storageShapes
			}
			return loadShapes
		},
		func(d *EntityData, _ int) (model.Entity, error) {
			base, err := buildResult(d)
			if err != nil {
				return nil, err
			}
			sp := model.SystemParticipantResult{ResultEntity: base}
			if sp.P, err = d.Quantity(P, quantity.MegaWatt); err != nil {
				return nil, err
			}
			if sp.Q, err = d.Quantity(Q, quantity.MegaVar); err != nil {
				return nil, err
			}
			if d.Target() != storageType {
				return &model.LoadResult{SystemParticipantResult: sp}, nil
			}
			soc, err := d.Quantity(Soc, quantity.Percent)
			if err != nil {
				return nil, err
			}
			return &model.StorageResult{SystemParticipantResult: sp, Soc: soc}, nil
		},
		reflect.TypeOf((*model.LoadResult)(nil)).Elem(),
		storageType,
	)
}

// NewSwitchResultFactory builds switch results.
func NewSwitchResultFactory() *EntityFactory[*EntityData, *model.SwitchResult] {
	shapes := resultShapes("switchResult", Closed)
	return NewEntityFactory(
		func(reflect.Type) []Shape { return shapes },
		func(d *EntityData, _ int) (*model.SwitchResult, error) {
			base, err := buildResult(d)
			if err != nil {
				return nil, err
			}
			r := &model.SwitchResult{ResultEntity: base}
			if r.Closed, err = d.Bool(Closed); err != nil {
				return nil, err
			}
			return r, nil
		},
		reflect.TypeOf((*model.SwitchResult)(nil)).Elem(),
	)
}

// NewLineResultFactory builds line results.
func NewLineResultFactory() *EntityFactory[*EntityData, *model.LineResult] {
	shapes := resultShapes("lineResult", IAMag, IAAng, IBMag, IBAng)
	return NewEntityFactory(
		func(reflect.Type) []Shape { return shapes },
		func(d *EntityData, _ int) (*model.LineResult, error) {
			base, err := buildResult(d)
			if err != nil {
				return nil, err
			}
			r := &model.LineResult{ResultEntity: base}
			for _, f := range []struct {
				name string
				unit quantity.Unit
				dst  *quantity.Quantity
			}{
				{IAMag, quantity.Ampere, &r.IAMag},
				{IAAng, quantity.Degree, &r.IAAng},
				{IBMag, quantity.Ampere, &r.IBMag},
				{IBAng, quantity.Degree, &r.IBAng},
			} {
				if *f.dst, err = d.Quantity(f.name, f.unit); err != nil {
					return nil, err
				}
			}
			return r, nil
		},
		reflect.TypeOf((*model.LineResult)(nil)).Elem(),
	)
}
