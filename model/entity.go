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

// Package model defines the power grid entity graph: input assets, their types, simulation
// results and time series. Entities are plain structs; the `attr` struct tag names the
// persisted attribute and, for quantities, its canonical unit (`attr:"vRated,unit=kV"`).

// TimeLayout is the format timestamps are persisted in. Times are written in UTC.
const TimeLayout = time.RFC3339

// Entity is anything identified by a UUID.
type Entity interface {
	EntityUUID() uuid.UUID
}

// UniqueEntity carries the identifier shared by all entities.
type UniqueEntity struct {
	UUID uuid.UUID `attr:"uuid"`
}

// EntityUUID implements Entity.
func (e UniqueEntity) EntityUUID() uuid.UUID { return e.UUID }

// Enum is implemented by closed value sets persisted by key.
type Enum interface {
	EnumKey() string
}

// AttributeExcluder is implemented by types that structurally inherit attributes which carry
// no meaning for them.
type AttributeExcluder interface {
	ExcludedAttributes() []string
}

// OperatorInput is the grid operator responsible for an asset.
type OperatorInput struct {
	UniqueEntity
	ID string `attr:"id"`
}

// NotAssignedOperator is the placeholder operator of assets without one. It is persisted as "".
var NotAssignedOperator = &OperatorInput{
	UniqueEntity: UniqueEntity{UUID: uuid.MustParse("f15105c4-a2de-4ab8-a621-4bc98e372d92")},
	ID:           "NO_OPERATOR_ASSIGNED",
}

// IsNotAssigned reports whether op is nil or the placeholder operator.
func IsNotAssigned(op *OperatorInput) bool {
	return op == nil || op.UUID == NotAssignedOperator.UUID
}

// OperationTime bounds the period an asset is in operation. Nil bounds are open.
type OperationTime struct {
	StartDate *time.Time
	EndDate   *time.Time
}

// NotLimited is the operation time of assets operating forever.
var NotLimited = OperationTime{}

// IsLimited reports whether at least one bound is set.
func (o OperationTime) IsLimited() bool {
	return o.StartDate != nil || o.EndDate != nil
}

// Includes reports whether t lies within the operation time.
func (o OperationTime) Includes(t time.Time) bool {
	if o.StartDate != nil && t.Before(*o.StartDate) {
		return false
	}
	if o.EndDate != nil && t.After(*o.EndDate) {
		return false
	}
	return true
}

// VoltageLevel groups nodes by nominal voltage.
type VoltageLevel struct {
	ID      string
	Nominal quantity.Quantity
}

// AssetInput is the common part of all physical grid assets.
type AssetInput struct {
	UniqueEntity
	ID            string         `attr:"id"`
	Operator      *OperatorInput `attr:"operator"`
	OperationTime OperationTime
}

// InService reports whether the asset operates at t.
func (a AssetInput) InService(t time.Time) bool {
	return a.OperationTime.Includes(t)
}

// AssetTypeInput is the common part of reusable technical type descriptions.
type AssetTypeInput struct {
	UniqueEntity
	ID string `attr:"id"`
}
