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

package gridetl

import (
	"context"

	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/factory"
)

// Package gridetl moves power grid datasets between flat record stores and a typed entity
// model.
//
// This file re-exports the record interfaces of package core so that pipelines can be
// assembled from the root package alone, and declares the entity side interfaces.

// Record is a flat textual record. An empty value marks an absent attribute.
type Record = core.Record

// DataSource streams records; see core.DataSource.
type DataSource = core.DataSource

// DataSink receives records; see core.DataSink.
type DataSink = core.DataSink

// HeaderSink is a DataSink with a fixed column order.
type HeaderSink = core.HeaderSink

// Transformer rewrites records before they reach a factory.
type Transformer = core.Transformer

// Filter decides whether a record is processed.
type Filter = core.Filter

// TransformFunc adapts a function to Transformer.
type TransformFunc = core.TransformFunc

// FilterFunc adapts a function to Filter.
type FilterFunc = core.FilterFunc

// ErrorHandler is consulted for record errors under SkipErrors and CollectErrors.
type ErrorHandler = core.ErrorHandler

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc = core.ErrorHandlerFunc

// ErrorStrategy selects how record errors are treated.
type ErrorStrategy = core.ErrorStrategy

// Error strategies.
const (
	FailFast      = core.FailFast
	SkipErrors    = core.SkipErrors
	CollectErrors = core.CollectErrors
)

// EntityHandler receives the entities built by a Pipeline.
type EntityHandler interface {
	HandleEntity(ctx context.Context, entity any) error
}

// EntityHandlerFunc adapts a function to EntityHandler.
type EntityHandlerFunc func(ctx context.Context, entity any) error

// HandleEntity implements EntityHandler.
func (f EntityHandlerFunc) HandleEntity(ctx context.Context, entity any) error {
	return f(ctx, entity)
}

// Resolver turns raw entity attributes into the input of a factory, typically by
// attaching referenced entities. *source.Resolver implements it.
type Resolver interface {
	Wrap(d *factory.EntityData) (factory.Data, error)
}
