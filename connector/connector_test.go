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

package connector

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/gridetl/core"
)

func drain(t *testing.T, src core.DataSource) []core.Record {
	t.Helper()
	defer src.Close()
	var out []core.Record
	for {
		r, err := src.Read(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, r)
	}
}

func TestDir_RoundTrip(t *testing.T) {
	header := []string{"uuid", "id", "operator"}
	records := []core.Record{
		{"uuid": "a", "id": "node_a", "operator": "op"},
		{"uuid": "b", "id": "node_b", "operator": ""},
	}

	for _, format := range []Format{FormatCSV, FormatJSON, FormatParquet} {
		format := format
		t.Run(format.String(), func(t *testing.T) {
			ctx := context.Background()
			d, err := NewDir(filepath.Join(t.TempDir(), "grid"), WithFormat(format))
			require.NoError(t, err)

			sink, err := d.Sink(ctx, "node_input", header)
			require.NoError(t, err)
			for _, r := range records {
				require.NoError(t, sink.Write(ctx, r))
			}
			require.NoError(t, sink.Close())

			names, err := d.Names(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"node_input"}, names)

			src, err := d.Source(ctx, "node_input")
			require.NoError(t, err)
			assert.Equal(t, records, drain(t, src))
		})
	}
}

func TestDir_EmptyDatasetKeepsHeader(t *testing.T) {
	ctx := context.Background()
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)

	sink, err := d.Sink(ctx, "line_input", []string{"uuid", "id"})
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(d.Path("line_input"))
	require.NoError(t, err)
	assert.Equal(t, "uuid,id\n", string(data))
}

func TestDir_NotFound(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)
	_, err = d.Source(context.Background(), "node_input")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDir_Comma(t *testing.T) {
	ctx := context.Background()
	d, err := NewDir(t.TempDir(), WithComma(';'))
	require.NoError(t, err)

	sink, err := d.Sink(ctx, "operator_input", []string{"uuid", "id"})
	require.NoError(t, err)
	require.NoError(t, sink.Write(ctx, core.Record{"uuid": "a", "id": "x"}))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(d.Path("operator_input"))
	require.NoError(t, err)
	assert.Equal(t, "uuid;id\na;x\n", string(data))
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatCSV, "CSV": FormatCSV, "jsonl": FormatJSON, "parquet": FormatParquet} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestHasExt(t *testing.T) {
	name, ok := hasExt("its_p_x.json", FormatJSON)
	assert.True(t, ok)
	assert.Equal(t, "its_p_x", name)

	_, ok = hasExt("node_input.csv", FormatParquet)
	assert.False(t, ok)
}

func TestS3_Key(t *testing.T) {
	c := NewS3(nil, "bucket", "/grids/vn/", FormatParquet)
	assert.Equal(t, "grids/vn/node_input.parquet", c.Key("node_input"))

	c = NewS3(nil, "bucket", "", FormatCSV)
	assert.Equal(t, "node_input.csv", c.Key("node_input"))
}

func TestConfig_Validate(t *testing.T) {
	const doc = `
kind: postgres
dsn: postgres://localhost/grid
schema: grid
on_conflict: update
batch_size: 500
`
	var c Config
	require.NoError(t, yaml.Unmarshal([]byte(doc), &c))
	assert.NoError(t, c.Validate())
	assert.Equal(t, 500, c.BatchSize)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown kind", Config{Kind: "ftp"}},
		{"dir without path", Config{Kind: "dir"}},
		{"s3 without bucket", Config{Kind: "s3"}},
		{"mongo without database", Config{Kind: "mongo"}},
		{"bad format", Config{Kind: "dir", Path: "x", Format: "xml"}},
		{"bad conflict", Config{Kind: "dir", Path: "x", OnConflict: "merge"}},
		{"bad comma", Config{Kind: "dir", Path: "x", Comma: ";;"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestOpen_Dir(t *testing.T) {
	c, err := Open(context.Background(), Config{Kind: "dir", Path: t.TempDir(), Format: "json", Comma: ";"})
	require.NoError(t, err)
	defer c.Close()

	d, ok := c.(*Dir)
	require.True(t, ok)
	assert.Equal(t, FormatJSON, d.format)
	assert.Equal(t, ';', d.comma)
}
