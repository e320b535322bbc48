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

package validators

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gridetl/core"
)

func TestRecordValidator(t *testing.T) {
	v := New(
		WithRequired("uuid", "id"),
		WithForbidden("password"),
		WithRule("uuid", FieldRule{Type: FieldTypeUUID}),
		WithRule("vMag", FieldRule{Type: FieldTypeFloat, Min: Float(0), Max: Float(2)}),
		WithRule("time", FieldRule{Type: FieldTypeTime}),
		WithRule("voltLvl", FieldRule{Allowed: []string{"LV", "MV", "HV"}}),
		WithRule("id", FieldRule{Pattern: regexp.MustCompile(`^[a-z_]+$`)}),
	)

	tests := []struct {
		name   string
		record core.Record
		fields []string
	}{
		{
			name:   "valid",
			record: core.Record{"uuid": "4ca90220-74c2-4369-9afa-a18bf068840d", "id": "node_a", "vMag": "1.01", "time": "2020-01-01T00:00:00Z", "voltLvl": "MV"},
		},
		{
			name:   "case insensitive names and null values",
			record: core.Record{"UUID": "4ca90220-74c2-4369-9afa-a18bf068840d", "ID": "node_a", "vmag": ""},
		},
		{
			name:   "missing required",
			record: core.Record{"uuid": "4ca90220-74c2-4369-9afa-a18bf068840d", "id": ""},
			fields: []string{"id"},
		},
		{
			name:   "forbidden",
			record: core.Record{"uuid": "4ca90220-74c2-4369-9afa-a18bf068840d", "id": "a", "password": "x"},
			fields: []string{"password"},
		},
		{
			name:   "bad values",
			record: core.Record{"uuid": "nope", "id": "Node A", "vMag": "3", "time": "yesterday", "voltLvl": "EHV"},
			fields: []string{"uuid", "id", "time", "vMag", "voltLvl"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.record)
			if len(tt.fields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var got []string
			for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
				var fe *FieldError
				require.ErrorAs(t, e, &fe)
				got = append(got, fe.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestFieldRule_Custom(t *testing.T) {
	v := New(WithRule("parallelDevices", FieldRule{
		Type: FieldTypeInt,
		Custom: func(s string) error {
			if s == "0" {
				return assert.AnError
			}
			return nil
		},
	}))
	assert.NoError(t, v.Validate(core.Record{"parallelDevices": "2"}))
	assert.Error(t, v.Validate(core.Record{"parallelDevices": "0"}))
	assert.Error(t, v.Validate(core.Record{"parallelDevices": "1.5"}))
}

func TestQuality(t *testing.T) {
	q := &Quality{MinRecords: 2, MaxRecords: 3, MaxNullRate: 0.5}
	q.Observe(core.Record{"uuid": "a", "p": ""})
	assert.ErrorIs(t, q.Check(), ErrQuality)

	q.Observe(core.Record{"uuid": "b", "p": "1"})
	assert.NoError(t, q.Check())
	assert.Equal(t, 0.5, q.NullRate("p"))

	q.Observe(core.Record{"uuid": "c"})
	err := q.Check()
	require.ErrorIs(t, err, ErrQuality)
	assert.Contains(t, err.Error(), "field p has null rate 0.67")
	assert.Equal(t, 3, q.Records())

	q.Observe(core.Record{"uuid": "d", "p": "2"})
	assert.Contains(t, q.Check().Error(), "at most 3 allowed")
	assert.Equal(t, 0.0, (&Quality{}).NullRate("p"))
}
