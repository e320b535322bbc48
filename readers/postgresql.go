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

package readers

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/aaronlmathis/gridetl/core"
)

// Package readers provides implementations of core.DataSource for reading flat records.
//
// This file implements a configurable PostgreSQL reader. It supports connection pooling,
// cursor-based streaming in batches, query parameterization and statistics. Every column is
// delivered as text; SQL NULL becomes "".

// PostgresReaderError provides structured error information for Postgres reader operations
type PostgresReaderError struct {
	Op  string // Operation that failed (e.g., "connect", "query", "scan", "read")
	Err error  // Underlying error
}

func (e *PostgresReaderError) Error() string {
	return fmt.Sprintf("postgres reader %s: %v", e.Op, e.Err)
}

func (e *PostgresReaderError) Unwrap() error {
	return e.Err
}

// PostgresReader implements core.DataSource for PostgreSQL databases.
type PostgresReader struct {
	mu                  sync.Mutex
	db                  *sql.DB
	ownsDB              bool
	tx                  *sql.Tx
	rows                *sql.Rows
	rowsInBatch         int
	columnNames         []string
	values              []sql.NullString
	scanBuffer          []interface{}
	stats               PostgresReaderStats
	opts                *PostgresReaderOptions
	cursorName          string
	isFinished          bool
	lastHealthCheck     time.Time
	healthCheckInterval time.Duration
}

// PostgresReaderStats holds statistics about the Postgres reader's performance
type PostgresReaderStats struct {
	RecordsRead     int64
	BatchesFetched  int64
	QueryDuration   time.Duration
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
	ConnectionTime  time.Duration
}

// PostgresReaderOptions configures the Postgres reader
type PostgresReaderOptions struct {
	DSN                 string        // Database connection string
	DB                  *sql.DB       // Shared connection pool; takes precedence over DSN
	Query               string        // SQL query to execute
	Params              []interface{} // Optional query parameters
	BatchSize           int           // Rows fetched per cursor batch
	ConnMaxLifetime     time.Duration // Maximum connection lifetime
	ConnMaxIdleTime     time.Duration // Maximum connection idle time
	MaxOpenConns        int           // Maximum open connections
	MaxIdleConns        int           // Maximum idle connections
	QueryTimeout        time.Duration // Connect and query timeout
	UseCursor           bool          // Use server-side cursor for large results
	CursorName          string        // Name for the cursor (if UseCursor is true)
	HealthCheckInterval time.Duration
}

// PostgresReaderOption represents a configuration function for PostgresReaderOptions
type PostgresReaderOption func(*PostgresReaderOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresDB reuses an open connection pool. The reader does not close it.
func WithPostgresDB(db *sql.DB) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DB = db
	}
}

// WithPostgresQuery sets the SQL query and optional parameters.
func WithPostgresQuery(query string, params ...interface{}) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Query = query
		if len(params) > 0 {
			opts.Params = make([]interface{}, len(params))
			copy(opts.Params, params)
		}
	}
}

// WithPostgresTable reads all rows of schema.table.
func WithPostgresTable(schema, table string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Query = "SELECT * FROM " + QualifiedTable(schema, table)
		opts.Params = nil
	}
}

// WithPostgresBatchSize sets the batch size for cursor fetches.
func WithPostgresBatchSize(size int) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.BatchSize = size
	}
}

// WithPostgresConnectionPool configures the connection pool.
func WithPostgresConnectionPool(maxOpen, maxIdle int) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
	}
}

// WithPostgresConnectionTimeout sets connection and idle timeouts.
func WithPostgresConnectionTimeout(lifetime, idleTime time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.ConnMaxLifetime = lifetime
		opts.ConnMaxIdleTime = idleTime
	}
}

// WithPostgresHealthCheckInterval sets how often the connection is pinged while reading.
func WithPostgresHealthCheckInterval(interval time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.HealthCheckInterval = interval
	}
}

// WithPostgresQueryTimeout sets the query execution timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.QueryTimeout = timeout
	}
}

// WithPostgresCursor enables or disables server-side cursor usage for large results.
func WithPostgresCursor(useCursor bool, cursorName string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.UseCursor = useCursor
		opts.CursorName = cursorName
	}
}

// QualifiedTable quotes schema and table for use in SQL. An empty schema is omitted.
func QualifiedTable(schema, table string) string {
	if schema == "" {
		return pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

// NewPostgresReader creates a new PostgreSQL reader with the given options.
func NewPostgresReader(ctx context.Context, options ...PostgresReaderOption) (*PostgresReader, error) {
	opts := (&PostgresReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	if opts.DSN == "" && opts.DB == nil {
		return nil, &PostgresReaderError{Op: "validate", Err: fmt.Errorf("dsn is required")}
	}
	if opts.Query == "" {
		return nil, &PostgresReaderError{Op: "validate", Err: fmt.Errorf("query is required")}
	}
	cursorName := opts.CursorName
	if cursorName == "" {
		cursorName = "gridetl_cursor"
	}
	if opts.UseCursor && !isValidCursorName(cursorName) {
		return nil, &PostgresReaderError{Op: "validate_cursor", Err: fmt.Errorf("invalid cursor name: %s", cursorName)}
	}

	startTime := time.Now()
	db, owns := opts.DB, false
	if db == nil {
		var err error
		if db, err = openPostgres(opts); err != nil {
			return nil, err
		}
		owns = true
	}

	ctx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if owns {
			db.Close()
		}
		return nil, &PostgresReaderError{Op: "ping", Err: err}
	}

	reader := &PostgresReader{
		db:                  db,
		ownsDB:              owns,
		opts:                opts,
		cursorName:          cursorName,
		healthCheckInterval: opts.HealthCheckInterval,
		lastHealthCheck:     time.Now(),
		stats: PostgresReaderStats{
			NullValueCounts: make(map[string]int64),
			ConnectionTime:  time.Since(startTime),
		},
	}

	if err := reader.executeQuery(ctx); err != nil {
		reader.Close()
		return nil, err
	}

	return reader, nil
}

func openPostgres(opts *PostgresReaderOptions) (*sql.DB, error) {
	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, &PostgresReaderError{Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	return db, nil
}

// Stats returns statistics about the PostgreSQL reader's performance
func (p *PostgresReader) Stats() PostgresReaderStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	statsCopy := p.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Columns returns the column names of the result.
func (p *PostgresReader) Columns() []string {
	return append([]string(nil), p.columnNames...)
}

// Read implements the core.DataSource interface. Thread-safe.
func (p *PostgresReader) Read(ctx context.Context) (core.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	startTime := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(startTime)
		p.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &PostgresReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if p.db == nil {
		return nil, &PostgresReaderError{Op: "read", Err: fmt.Errorf("reader is closed")}
	}

	if time.Since(p.lastHealthCheck) > p.healthCheckInterval {
		if err := p.db.PingContext(ctx); err != nil {
			return nil, &PostgresReaderError{Op: "ping", Err: err}
		}
		p.lastHealthCheck = time.Now()
	}

	if p.isFinished || p.rows == nil {
		return nil, io.EOF
	}

	for !p.rows.Next() {
		if err := p.rows.Err(); err != nil {
			return nil, &PostgresReaderError{Op: "read", Err: err}
		}
		// a full cursor batch means there may be more rows
		if !p.opts.UseCursor || p.rowsInBatch < p.opts.BatchSize {
			p.isFinished = true
			return nil, io.EOF
		}
		if err := p.fetchBatch(ctx); err != nil {
			return nil, err
		}
	}

	if err := p.rows.Scan(p.scanBuffer...); err != nil {
		return nil, &PostgresReaderError{Op: "scan", Err: err}
	}
	p.rowsInBatch++
	p.stats.RecordsRead++

	record := make(core.Record, len(p.columnNames))
	for i, name := range p.columnNames {
		if !p.values[i].Valid {
			p.stats.NullValueCounts[name]++
		}
		record[name] = p.values[i].String
	}
	return record, nil
}

// Close releases all resources held by the PostgreSQL reader
func (p *PostgresReader) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []string

	if p.rows != nil {
		if err := p.rows.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("closing rows: %v", err))
		}
		p.rows = nil
	}

	if p.tx != nil {
		if err := p.tx.Rollback(); err != nil {
			errs = append(errs, fmt.Sprintf("rolling back transaction: %v", err))
		}
		p.tx = nil
	}

	if p.db != nil && p.ownsDB {
		if err := p.db.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("closing database: %v", err))
		}
	}
	p.db = nil

	if len(errs) > 0 {
		return &PostgresReaderError{Op: "close", Err: fmt.Errorf("%s", strings.Join(errs, "; "))}
	}
	return nil
}

// withDefaults applies default values to PostgresReaderOptions
func (opts *PostgresReaderOptions) withDefaults() *PostgresReaderOptions {
	result := &PostgresReaderOptions{}
	if opts != nil {
		*result = *opts
	}

	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.QueryTimeout <= 0 {
		result.QueryTimeout = 30 * time.Second
	}
	if result.ConnMaxLifetime <= 0 {
		result.ConnMaxLifetime = 5 * time.Minute
	}
	if result.ConnMaxIdleTime <= 0 {
		result.ConnMaxIdleTime = 1 * time.Minute
	}
	if result.MaxOpenConns <= 0 {
		result.MaxOpenConns = 10
	}
	if result.MaxIdleConns <= 0 {
		result.MaxIdleConns = 5
	}
	if result.HealthCheckInterval <= 0 {
		result.HealthCheckInterval = 30 * time.Second
	}
	return result
}

// executeQuery runs the query and prepares the reader for streaming results
func (p *PostgresReader) executeQuery(ctx context.Context) error {
	startTime := time.Now()

	if p.opts.UseCursor {
		if err := p.declareCursor(ctx); err != nil {
			return err
		}
	} else {
		rows, err := p.db.QueryContext(ctx, p.opts.Query, p.opts.Params...)
		if err != nil {
			return &PostgresReaderError{Op: "query", Err: err}
		}
		p.rows = rows
	}
	p.stats.QueryDuration = time.Since(startTime)

	columnNames, err := p.rows.Columns()
	if err != nil {
		return &PostgresReaderError{Op: "columns", Err: err}
	}
	p.columnNames = columnNames
	p.values = make([]sql.NullString, len(columnNames))
	p.scanBuffer = make([]interface{}, len(columnNames))
	for i := range p.scanBuffer {
		p.scanBuffer[i] = &p.values[i]
	}
	return nil
}

// declareCursor opens a transaction holding a server-side cursor and fetches the first batch.
func (p *PostgresReader) declareCursor(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return &PostgresReaderError{Op: "begin_transaction", Err: err}
	}
	p.tx = tx

	declareSQL := fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", p.cursorName, p.opts.Query)
	if _, err := tx.ExecContext(ctx, declareSQL, p.opts.Params...); err != nil {
		return &PostgresReaderError{Op: "declare_cursor", Err: err}
	}
	return p.fetchBatch(ctx)
}

func (p *PostgresReader) fetchBatch(ctx context.Context) error {
	if p.rows != nil {
		p.rows.Close()
	}
	rows, err := p.tx.QueryContext(ctx, fmt.Sprintf("FETCH %d FROM %s", p.opts.BatchSize, p.cursorName))
	if err != nil {
		return &PostgresReaderError{Op: "fetch_cursor", Err: err}
	}
	p.rows = rows
	p.rowsInBatch = 0
	p.stats.BatchesFetched++
	return nil
}

// isValidCursorName validates cursor name for SQL injection prevention
func isValidCursorName(name string) bool {
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_') {
			return false
		}
	}
	return len(name) > 0 && len(name) <= 63 // PostgreSQL identifier limit
}
