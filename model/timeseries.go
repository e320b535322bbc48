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
	"reflect"
	"sort"
	"time"

	"github.com/aaronlmathis/gridetl/quantity"
)

// Value is a time series value kind.
type Value interface {
	PValue | SValue
}

// PValue is an active power value. Time series persist input-side units.
type PValue struct {
	P *quantity.Quantity `attr:"p,unit=kW"`
}

// SValue is an apparent power value split into its active and reactive parts.
type SValue struct {
	PValue
	Q *quantity.Quantity `attr:"q,unit=kVAr"`
}

// TimeBasedValue is one time series entry.
type TimeBasedValue[V Value] struct {
	Time  time.Time `attr:"time"`
	Value V         `attr:",inline"`
}

// TimeSeries is the type-erased view of a time series used for dispatch.
type TimeSeries interface {
	Entity
	Len() int
	EntryAt(i int) any
	EntryType() reflect.Type
	ValueType() reflect.Type
}

// IndividualTimeSeries is a time series with explicit values at each point in time.
type IndividualTimeSeries[V Value] struct {
	UniqueEntity
	Entries []TimeBasedValue[V]
}

// Len implements TimeSeries.
func (ts *IndividualTimeSeries[V]) Len() int { return len(ts.Entries) }

// EntryAt implements TimeSeries.
func (ts *IndividualTimeSeries[V]) EntryAt(i int) any { return ts.Entries[i] }

// EntryType implements TimeSeries.
func (ts *IndividualTimeSeries[V]) EntryType() reflect.Type {
	return reflect.TypeOf((*TimeBasedValue[V])(nil)).Elem()
}

// ValueType implements TimeSeries.
func (ts *IndividualTimeSeries[V]) ValueType() reflect.Type {
	return reflect.TypeOf((*V)(nil)).Elem()
}

// Sort orders the entries by time.
func (ts *IndividualTimeSeries[V]) Sort() {
	sort.SliceStable(ts.Entries, func(i, j int) bool {
		return ts.Entries[i].Time.Before(ts.Entries[j].Time)
	})
}

// ValueAt returns the value at exactly t.
func (ts *IndividualTimeSeries[V]) ValueAt(t time.Time) (V, bool) {
	for _, e := range ts.Entries {
		if e.Time.Equal(t) {
			return e.Value, true
		}
	}
	var zero V
	return zero, false
}
