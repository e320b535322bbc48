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
	"github.com/aaronlmathis/gridetl/geo"
	"github.com/aaronlmathis/gridetl/quantity"
)

// NodeInput is an electrical node.
type NodeInput struct {
	AssetInput
	VTarget     quantity.Quantity `attr:"vTarget,unit=pu"`
	Slack       bool              `attr:"slack"`
	GeoPosition *geo.Point        `attr:"geoPosition"`
	VoltLvl     VoltageLevel
	Subnet      int `attr:"subnet"`
}

// LineTypeInput describes the electrical parameters of a line type.
type LineTypeInput struct {
	AssetTypeInput
	B      quantity.Quantity `attr:"b,unit=uS/km"`
	G      quantity.Quantity `attr:"g,unit=uS/km"`
	R      quantity.Quantity `attr:"r,unit=Ohm/km"`
	X      quantity.Quantity `attr:"x,unit=Ohm/km"`
	IMax   quantity.Quantity `attr:"iMax,unit=A"`
	VRated quantity.Quantity `attr:"vRated,unit=kV"`
}

// ConnectorInput is the common part of assets connecting two nodes.
type ConnectorInput struct {
	AssetInput
	NodeA           *NodeInput `attr:"nodeA"`
	NodeB           *NodeInput `attr:"nodeB"`
	ParallelDevices int        `attr:"parallelDevices"`
}

// LineInput is an overhead line or cable.
type LineInput struct {
	ConnectorInput
	Type              *LineTypeInput    `attr:"type"`
	Length            quantity.Quantity `attr:"length,unit=km"`
	GeoPosition       *geo.LineString   `attr:"geoPosition"`
	OlmCharacteristic Characteristic    `attr:"olmCharacteristic"`
}

// SwitchInput connects two nodes without impedance.
type SwitchInput struct {
	ConnectorInput
	Closed bool `attr:"closed"`
}

// ExcludedAttributes implements AttributeExcluder. A switch is never operated in parallel.
func (SwitchInput) ExcludedAttributes() []string {
	return []string{"parallelDevices"}
}

// SystemParticipantInput is the common part of assets connected to a single node.
type SystemParticipantInput struct {
	AssetInput
	Node             *NodeInput     `attr:"node"`
	QCharacteristics Characteristic `attr:"qCharacteristics"`
}

// LoadInput is an electrical consumer.
type LoadInput struct {
	SystemParticipantInput
	LoadProfile LoadProfile       `attr:"loadProfile"`
	Dsm         bool              `attr:"dsm"`
	EConsAnnual quantity.Quantity `attr:"eConsAnnual,unit=kWh"`
	SRated      quantity.Quantity `attr:"sRated,unit=kVA"`
	CosPhiRated float64           `attr:"cosPhiRated"`
}
