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

package filter

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gridetl/core"
)

func include(t *testing.T, f core.Filter, r core.Record) bool {
	t.Helper()
	ok, err := f.ShouldInclude(context.Background(), r)
	require.NoError(t, err)
	return ok
}

func TestFilters(t *testing.T) {
	id := uuid.MustParse("9185b8c1-86ba-4a16-8dea-5ac898e8caa5")
	record := core.Record{
		"uuid":       "9185B8C1-86BA-4A16-8DEA-5AC898E8CAA5",
		"id":         "node_a",
		"vMag":       "0.98",
		"operator":   "",
		"inputModel": id.String(),
	}

	tests := []struct {
		name   string
		filter core.Filter
		want   bool
	}{
		{"not empty", NotEmpty("id", "vmag"), true},
		{"not empty blank", NotEmpty("id", "operator"), false},
		{"not empty missing", NotEmpty("node"), false},
		{"equals", Equals("id", "node_a"), true},
		{"equals case-insensitive key", Equals("ID", "node_a"), true},
		{"equals other", Equals("id", "node_b"), false},
		{"equal fold", EqualFold("id", "NODE_A"), true},
		{"in", In("id", "node_b", "node_a"), true},
		{"in missing", In("node", "x"), false},
		{"uuid in", UUIDIn("uuid", id), true},
		{"uuid in other", UUIDIn("inputModel", uuid.New()), false},
		{"contains", Contains("id", "de_"), true},
		{"prefix", StartsWith("id", "node"), true},
		{"suffix", EndsWith("id", "_b"), false},
		{"regex", MatchesRegex("id", `^node_[a-z]$`), true},
		{"greater", GreaterThan("vMag", 0.95), true},
		{"less", LessThan("vMag", 0.95), false},
		{"between", Between("vMag", 0.9, 1.1), true},
		{"numeric on text", GreaterThan("id", 0), false},
		{"and", And(Equals("id", "node_a"), NotEmpty("operator")), false},
		{"or", Or(Equals("id", "node_b"), NotEmpty("vMag")), true},
		{"not", Not(NotEmpty("operator")), true},
		{"custom", Custom(func(r core.Record) bool { return len(r) == 5 }), true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, include(t, tt.filter, record))
		})
	}
}

func TestTimeBetween(t *testing.T) {
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	until := from.Add(time.Hour)

	f := TimeBetween("time", from, until)
	assert.True(t, include(t, f, core.Record{"time": "2020-01-01T00:00:00Z"}))
	assert.True(t, include(t, f, core.Record{"time": "2020-01-01T00:59:00Z"}))
	assert.False(t, include(t, f, core.Record{"time": "2020-01-01T01:00:00Z"}))
	assert.False(t, include(t, f, core.Record{"time": ""}))
	assert.True(t, include(t, TimeBetween("time", from, time.Time{}), core.Record{"time": "2030-01-01T00:00:00Z"}))

	_, err := f.ShouldInclude(context.Background(), core.Record{"time": "yesterday"})
	assert.Error(t, err)
}
