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

// Input attribute names.
const (
	VTarget           = "vTarget"
	Slack             = "slack"
	GeoPosition       = "geoPosition"
	Subnet            = "subnet"
	ParallelDevices   = "parallelDevices"
	Length            = "length"
	OlmCharacteristic = "olmCharacteristic"
	Closed            = "closed"
	QCharacteristics  = "qCharacteristics"
	LoadProfile       = "loadProfile"
	Dsm               = "dsm"
	EConsAnnual       = "eConsAnnual"
	SRated            = "sRated"
	CosPhiRated       = "cosPhiRated"
)

// NewOperatorInputFactory builds operators.
func NewOperatorInputFactory() *EntityFactory[*EntityData, *model.OperatorInput] {
	shapes := []Shape{NewShape("operator", UUID, ID)}
	return NewEntityFactory(
		func(reflect.Type) []Shape { return shapes },
		func(d *EntityData, _ int) (*model.OperatorInput, error) {
			id, err := d.UUID(UUID)
			if err != nil {
				return nil, err
			}
			name, err := d.Field(ID)
			if err != nil {
				return nil, err
			}
			return &model.OperatorInput{UniqueEntity: model.UniqueEntity{UUID: id}, ID: name}, nil
		},
		reflect.TypeOf((*model.OperatorInput)(nil)).Elem(),
	)
}

// NewLineTypeInputFactory builds line types.
func NewLineTypeInputFactory() *EntityFactory[*EntityData, *model.LineTypeInput] {
	shapes := []Shape{NewShape("lineType", UUID, ID, "b", "g", "r", "x", "iMax", VRated)}
	return NewEntityFactory(
		func(reflect.Type) []Shape { return shapes },
		func(d *EntityData, _ int) (*model.LineTypeInput, error) {
			var (
				lt  = &model.LineTypeInput{}
				err error
			)
			if lt.UUID, err = d.UUID(UUID); err != nil {
				return nil, err
			}
			if lt.ID, err = d.Field(ID); err != nil {
				return nil, err
			}
			fields := []struct {
				name string
				unit quantity.Unit
				dst  *quantity.Quantity
			}{
				{"b", quantity.MicroSiemensPerKilometer, &lt.B},
				{"g", quantity.MicroSiemensPerKilometer, &lt.G},
				{"r", quantity.OhmPerKilometer, &lt.R},
				{"x", quantity.OhmPerKilometer, &lt.X},
				{"iMax", quantity.Ampere, &lt.IMax},
				{VRated, quantity.KiloVolt, &lt.VRated},
			}
			for _, f := range fields {
				if *f.dst, err = d.Quantity(f.name, f.unit); err != nil {
					return nil, err
				}
			}
			return lt, nil
		},
		reflect.TypeOf((*model.LineTypeInput)(nil)).Elem(),
	)
}

// NewNodeInputFactory builds nodes.
func NewNodeInputFactory() *EntityFactory[AssetData, *model.NodeInput] {
	shapes := withOperationTime(NewShape("node", UUID, ID, VTarget, VRated, Slack, GeoPosition, VoltLvl, Subnet))
	return NewEntityFactory(
		func(reflect.Type) []Shape { return shapes },
		func(d AssetData, _ int) (*model.NodeInput, error) {
			asset, err := buildAsset(d)
			if err != nil {
				return nil, err
			}
			n := &model.NodeInput{AssetInput: asset}
			if n.VTarget, err = d.Quantity(VTarget, quantity.PU); err != nil {
				return nil, err
			}
			if n.Slack, err = d.Bool(Slack); err != nil {
				return nil, err
			}
			if n.GeoPosition, err = d.Point(GeoPosition); err != nil {
				return nil, err
			}
			if n.VoltLvl, err = d.VoltageLevel(); err != nil {
				return nil, err
			}
			if n.Subnet, err = d.Int(Subnet); err != nil {
				return nil, err
			}
			return n, nil
		},
		reflect.TypeOf((*model.NodeInput)(nil)).Elem(),
	)
}

// NewLineInputFactory builds lines. The olm characteristic may be left out and defaults to
// no uprating.
func NewLineInputFactory() *EntityFactory[LineData, *model.LineInput] {
	base := NewShape("line", UUID, ID, ParallelDevices, Length, GeoPosition)
	shapes := append(withOperationTime(base), withOperationTime(base.With("line+olm", OlmCharacteristic))...)
	return NewEntityFactory(
		func(reflect.Type) []Shape { return shapes },
		func(d LineData, _ int) (*model.LineInput, error) {
			conn, err := buildConnector(d.ConnectorData)
			if err != nil {
				return nil, err
			}
			if d.Type == nil {
				return nil, &MissingFieldError{Field: Type, Target: d.Target()}
			}
			l := &model.LineInput{ConnectorInput: conn, Type: d.Type, OlmCharacteristic: model.OlmDefault}
			if l.ParallelDevices, err = d.Int(ParallelDevices); err != nil {
				return nil, err
			}
			if l.Length, err = d.Quantity(Length, quantity.Kilometer); err != nil {
				return nil, err
			}
			if l.GeoPosition, err = d.LineString(GeoPosition); err != nil {
				return nil, err
			}
			if raw, ok := d.FieldOptional(OlmCharacteristic); ok && raw != "" {
				if l.OlmCharacteristic, err = d.Characteristic(OlmCharacteristic, model.PrefixOlm); err != nil {
					return nil, err
				}
			}
			return l, nil
		},
		reflect.TypeOf((*model.LineInput)(nil)).Elem(),
	)
}

// NewSwitchInputFactory builds switches.
func NewSwitchInputFactory() *EntityFactory[ConnectorData, *model.SwitchInput] {
	shapes := withOperationTime(NewShape("switch", UUID, ID, Closed))
	return NewEntityFactory(
		func(reflect.Type) []Shape { return shapes },
		func(d ConnectorData, _ int) (*model.SwitchInput, error) {
			conn, err := buildConnector(d)
			if err != nil {
				return nil, err
			}
			s := &model.SwitchInput{ConnectorInput: conn}
			s.ParallelDevices = 1
			if s.Closed, err = d.Bool(Closed); err != nil {
				return nil, err
			}
			return s, nil
		},
		reflect.TypeOf((*model.SwitchInput)(nil)).Elem(),
	)
}

// NewLoadInputFactory builds loads.
func NewLoadInputFactory() *EntityFactory[NodeAssetData, *model.LoadInput] {
	shapes := withOperationTime(NewShape("load",
		UUID, ID, QCharacteristics, LoadProfile, Dsm, EConsAnnual, SRated, CosPhiRated))
	return NewEntityFactory(
		func(reflect.Type) []Shape { return shapes },
		func(d NodeAssetData, _ int) (*model.LoadInput, error) {
			asset, err := buildAsset(d.AssetData)
			if err != nil {
				return nil, err
			}
			if d.Node == nil {
				return nil, &MissingFieldError{Field: Node, Target: d.Target()}
			}
			l := &model.LoadInput{SystemParticipantInput: model.SystemParticipantInput{
				AssetInput: asset,
				Node:       d.Node,
			}}
			if l.QCharacteristics, err = d.Characteristic(QCharacteristics,
				model.PrefixCosPhiFixed, model.PrefixCosPhiP, model.PrefixQV); err != nil {
				return nil, err
			}
			raw, _ := d.FieldOptional(LoadProfile)
			if l.LoadProfile, err = model.ParseLoadProfile(raw); err != nil {
				return nil, &MalformedFieldError{Field: LoadProfile, Raw: raw, Target: d.Target(), Cause: err}
			}
			if l.Dsm, err = d.Bool(Dsm); err != nil {
				return nil, err
			}
			if l.EConsAnnual, err = d.Quantity(EConsAnnual, quantity.KiloWattHour); err != nil {
				return nil, err
			}
			if l.SRated, err = d.Quantity(SRated, quantity.KiloVoltAmpere); err != nil {
				return nil, err
			}
			if l.CosPhiRated, err = d.Float(CosPhiRated); err != nil {
				return nil, err
			}
			return l, nil
		},
		reflect.TypeOf((*model.LoadInput)(nil)).Elem(),
	)
}

func buildAsset(d AssetData) (model.AssetInput, error) {
	var (
		a   model.AssetInput
		err error
	)
	if a.UUID, err = d.UUID(UUID); err != nil {
		return a, err
	}
	if a.ID, err = d.Field(ID); err != nil {
		return a, err
	}
	if a.OperationTime, err = d.OperationTime(); err != nil {
		return a, err
	}
	a.Operator = d.Operator
	if a.Operator == nil {
		a.Operator = model.NotAssignedOperator
	}
	return a, nil
}

func buildConnector(d ConnectorData) (model.ConnectorInput, error) {
	asset, err := buildAsset(d.AssetData)
	if err != nil {
		return model.ConnectorInput{}, err
	}
	if d.NodeA == nil {
		return model.ConnectorInput{}, &MissingFieldError{Field: NodeA, Target: d.Target()}
	}
	if d.NodeB == nil {
		return model.ConnectorInput{}, &MissingFieldError{Field: NodeB, Target: d.Target()}
	}
	return model.ConnectorInput{AssetInput: asset, NodeA: d.NodeA, NodeB: d.NodeB}, nil
}
