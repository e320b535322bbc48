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

package writers

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gridetl/core"
)

func TestPostgresWriter_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts []PostgresWriterOption
		want string
	}{
		{"no connection", []PostgresWriterOption{WithTableName("", "node_input")}, "dsn or shared db"},
		{"no table", []PostgresWriterOption{WithPostgresDSN("postgres://localhost/grid")}, "table name"},
		{
			"conflict without columns",
			[]PostgresWriterOption{
				WithPostgresDSN("postgres://localhost/grid"),
				WithTableName("", "node_input"),
				WithConflictResolution(ConflictIgnore, nil, nil),
			},
			"conflict columns",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPostgresWriter(tt.opts...)
			var perr *PostgresWriterError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "validate", perr.Op)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestPostgresWriter_SharedDBIsNotClosed(t *testing.T) {
	db, err := sql.Open("postgres", "postgres://localhost/grid?sslmode=disable")
	require.NoError(t, err)
	defer db.Close()

	w, err := NewPostgresWriter(WithPostgresDB(db), WithTableName("grid", "node_input"))
	require.NoError(t, err)
	require.NoError(t, w.SetHeader([]string{"uuid", "id"}))
	require.NoError(t, w.Close())
	assert.False(t, w.ownsDB)
}

func TestBuildCreateTable(t *testing.T) {
	opts := &PostgresWriterOptions{Schema: "grid", TableName: "node_input", ConflictColumns: []string{"uuid"}}
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "grid"."node_input" ("uuid" TEXT, "vRated" TEXT, PRIMARY KEY ("uuid"))`,
		buildCreateTable(opts, []string{"uuid", "vRated"}))

	opts = &PostgresWriterOptions{TableName: "its_p_x"}
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "its_p_x" ("p" TEXT, "time" TEXT)`,
		buildCreateTable(opts, []string{"p", "time"}))
}

func TestBuildInsert(t *testing.T) {
	columns := []string{"uuid", "id", "vRated"}

	opts := &PostgresWriterOptions{TableName: "node_input"}
	assert.Equal(t,
		`INSERT INTO "node_input" ("uuid", "id", "vRated") VALUES ($1, $2, $3)`,
		buildInsert(opts, columns))

	opts.ConflictResolution = ConflictIgnore
	opts.ConflictColumns = []string{"uuid"}
	assert.Equal(t,
		`INSERT INTO "node_input" ("uuid", "id", "vRated") VALUES ($1, $2, $3) ON CONFLICT ("uuid") DO NOTHING`,
		buildInsert(opts, columns))

	opts.ConflictResolution = ConflictUpdate
	assert.Equal(t,
		`INSERT INTO "node_input" ("uuid", "id", "vRated") VALUES ($1, $2, $3) ON CONFLICT ("uuid") DO UPDATE SET "id" = EXCLUDED."id", "vRated" = EXCLUDED."vRated"`,
		buildInsert(opts, columns))

	opts.UpdateColumns = []string{"id"}
	assert.Equal(t,
		`INSERT INTO "node_input" ("uuid", "id", "vRated") VALUES ($1, $2, $3) ON CONFLICT ("uuid") DO UPDATE SET "id" = EXCLUDED."id"`,
		buildInsert(opts, columns))
}

func TestRowValues(t *testing.T) {
	values := rowValues(core.Record{"uuid": "a", "operator": ""}, []string{"uuid", "operator", "id"})
	assert.Equal(t, []interface{}{
		sql.NullString{String: "a", Valid: true},
		sql.NullString{},
		sql.NullString{},
	}, values)
}
