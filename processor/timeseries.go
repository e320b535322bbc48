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

package processor

import (
	"fmt"
	"reflect"

	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/model"
)

// TimeSeriesKey identifies a time series processor. Series kinds, entry kinds and value
// kinds vary independently.
type TimeSeriesKey struct {
	Series reflect.Type
	Entry  reflect.Type
	Value  reflect.Type
}

// KeyOf returns the key of ts.
func KeyOf(ts model.TimeSeries) TimeSeriesKey {
	series := reflect.TypeOf(ts)
	for series.Kind() == reflect.Pointer {
		series = series.Elem()
	}
	return TimeSeriesKey{Series: series, Entry: ts.EntryType(), Value: ts.ValueType()}
}

// IndividualTimeSeriesKey returns the key of individual time series holding V.
func IndividualTimeSeriesKey[V model.Value]() TimeSeriesKey {
	return KeyOf(&model.IndividualTimeSeries[V]{})
}

func (k TimeSeriesKey) String() string {
	return fmt.Sprintf("(%s, %s, %s)", name(k.Series), name(k.Entry), name(k.Value))
}

func name(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// TimeSeriesProcessor flattens the entries of one kind of time series.
type TimeSeriesProcessor struct {
	key   TimeSeriesKey
	entry *EntityProcessor
}

// NewTimeSeriesProcessor builds the processor for key.
func NewTimeSeriesProcessor(x *Extractor, key TimeSeriesKey) (*TimeSeriesProcessor, error) {
	entry, err := NewEntityProcessor(x, key.Entry)
	if err != nil {
		return nil, err
	}
	return &TimeSeriesProcessor{key: key, entry: entry}, nil
}

// Key returns the handled series kind.
func (p *TimeSeriesProcessor) Key() TimeSeriesKey { return p.key }

// HeaderElements returns the columns of every entry record.
func (p *TimeSeriesProcessor) HeaderElements() []string {
	return p.entry.HeaderElements()
}

// HandleTimeSeries flattens every entry of ts in order.
func (p *TimeSeriesProcessor) HandleTimeSeries(ts model.TimeSeries) ([]core.Record, error) {
	if ts == nil {
		return nil, fmt.Errorf("%w: time series processor for %s", ErrNilEntity, p.key)
	}
	if key := KeyOf(ts); key != p.key {
		return nil, &TypeMismatchError{Expected: p.key.Series, Actual: key.Series}
	}
	records := make([]core.Record, 0, ts.Len())
	for i := 0; i < ts.Len(); i++ {
		r, err := p.entry.HandleEntity(ts.EntryAt(i))
		if err != nil {
			return nil, fmt.Errorf("entry %d of time series %s: %w", i, ts.EntityUUID(), err)
		}
		records = append(records, r)
	}
	return records, nil
}
