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
	"time"

	"github.com/google/uuid"

	"github.com/aaronlmathis/gridetl/quantity"
)

// ResultEntity is the common part of simulation results.
type ResultEntity struct {
	UniqueEntity
	Time       time.Time `attr:"time"`
	InputModel uuid.UUID `attr:"inputModel"`
}

// NodeResult is the voltage at a node.
type NodeResult struct {
	ResultEntity
	VMag quantity.Quantity `attr:"vMag,unit=pu"`
	VAng quantity.Quantity `attr:"vAng,unit=deg"`
}

// SystemParticipantResult is the power drawn or fed in by a system participant.
// Results persist power in MW/MVAr, inputs in kW/kVAr.
type SystemParticipantResult struct {
	ResultEntity
	P quantity.Quantity `attr:"p,unit=MW"`
	Q quantity.Quantity `attr:"q,unit=MVAr"`
}

// LoadResult is the power of a load.
type LoadResult struct {
	SystemParticipantResult
}

// SwitchResult is the switching state of a switch.
type SwitchResult struct {
	ResultEntity
	Closed bool `attr:"closed"`
}

// LineResult holds the currents at both ports of a line.
type LineResult struct {
	ResultEntity
	IAMag quantity.Quantity `attr:"iAMag,unit=A"`
	IAAng quantity.Quantity `attr:"iAAng,unit=deg"`
	IBMag quantity.Quantity `attr:"iBMag,unit=A"`
	IBAng quantity.Quantity `attr:"iBAng,unit=deg"`
}

// StorageResult is the power and state of charge of a storage.
type StorageResult struct {
	SystemParticipantResult
	Soc quantity.Quantity `attr:"soc,unit=%"`
}
