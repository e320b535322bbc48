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
	"database/sql"
	"fmt"
	"slices"

	_ "github.com/lib/pq"

	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/readers"
	"github.com/aaronlmathis/gridetl/writers"
)

// Postgres stores one TEXT table per dataset in a schema.
type Postgres struct {
	db        *sql.DB
	ownsDB    bool
	schema    string
	batchSize int
	conflict  writers.ConflictResolution
	replace   bool
}

// PostgresOption configures a Postgres connector.
type PostgresOption func(*Postgres)

// WithPostgresBatchSize sets the insert batch size.
func WithPostgresBatchSize(n int) PostgresOption {
	return func(p *Postgres) { p.batchSize = n }
}

// WithPostgresConflict sets how rows with an existing uuid are handled.
func WithPostgresConflict(c writers.ConflictResolution) PostgresOption {
	return func(p *Postgres) { p.conflict = c }
}

// WithPostgresReplace truncates tables before writing.
func WithPostgresReplace(replace bool) PostgresOption {
	return func(p *Postgres) { p.replace = replace }
}

// NewPostgres returns a connector on a shared pool. The pool stays open on Close.
func NewPostgres(db *sql.DB, schema string, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db, schema: schema, batchSize: 1000}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpenPostgres connects to dsn and returns a connector owning the pool.
func OpenPostgres(ctx context.Context, dsn, schema string, opts ...PostgresOption) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := NewPostgres(db, schema, opts...)
	p.ownsDB = true
	return p, nil
}

// Source implements Connector.
func (p *Postgres) Source(ctx context.Context, name string) (core.DataSource, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables
		 WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2)`,
		p.schema, name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("lookup table %s: %w", name, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: table %s", ErrNotFound, readers.QualifiedTable(p.schema, name))
	}
	return readers.NewPostgresReader(ctx,
		readers.WithPostgresDB(p.db),
		readers.WithPostgresTable(p.schema, name),
		readers.WithPostgresBatchSize(p.batchSize),
	)
}

// Sink implements Connector. Tables are created on demand; rows keyed by uuid follow the
// configured conflict resolution.
func (p *Postgres) Sink(ctx context.Context, name string, header []string) (core.DataSink, error) {
	opts := []writers.PostgresWriterOption{
		writers.WithPostgresDB(p.db),
		writers.WithTableName(p.schema, name),
		writers.WithColumns(header),
		writers.WithCreateTable(true),
		writers.WithTruncateTable(p.replace),
		writers.WithPostgresBatchSize(p.batchSize),
		writers.WithTransactionMode(true),
	}
	if p.conflict != writers.ConflictError && slices.Contains(header, "uuid") {
		opts = append(opts, writers.WithConflictResolution(p.conflict, []string{"uuid"}, nil))
	}
	return writers.NewPostgresWriter(opts...)
}

// Names implements Connector.
func (p *Postgres) Names(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema())
		 ORDER BY table_name`, p.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close implements Connector.
func (p *Postgres) Close() error {
	if p.ownsDB {
		return p.db.Close()
	}
	return nil
}
