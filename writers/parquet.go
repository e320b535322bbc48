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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/gridetl/core"
)

// This file implements a batching Parquet writer. Every column is a nullable UTF-8 string;
// empty values are stored as nulls so that a read-back yields "" again.

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "schema", "write_batch", "close_writer")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriter implements core.HeaderSink for Parquet files.
type ParquetWriter struct {
	out          io.Writer
	closer       io.Closer
	writer       *pqarrow.FileWriter
	schema       *arrow.Schema
	closed       bool
	errorState   bool
	recordBuffer []core.Record
	fieldOrder   []string
	fieldIndex   map[string]int
	builder      *array.RecordBuilder
	allocator    memory.Allocator
	stats        WriterStats
	opts         *ParquetWriterOptions
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // Number of records to buffer before writing
	Compression  compress.Compression // Compression algorithm
	FieldOrder   []string             // Explicit field ordering
	RowGroupSize int64                // Maximum rows per row group
	Metadata     map[string]string    // File metadata
}

// WriterStats holds statistics about the Parquet writer's performance.
type WriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	ErrorCount      int64
	NullValueCounts map[string]int64
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression algorithm.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithFieldOrder sets the explicit field ordering for the Parquet schema.
func WithFieldOrder(fields []string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.FieldOrder = append([]string(nil), fields...)
	}
}

// WithRowGroupSize sets the row group size for the Parquet file.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithMetadata sets user metadata for the Parquet file.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

// NewParquetWriter creates a new Parquet writer for a file, creating parent directories.
func NewParquetWriter(filename string, options ...WriterOption) (*ParquetWriter, error) {
	if dir := filepath.Dir(filename); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &ParquetWriterError{Op: "create_directory", Err: fmt.Errorf("failed to create directory %s: %w", dir, err)}
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, &ParquetWriterError{Op: "open_file", Err: fmt.Errorf("failed to create parquet file %s: %w", filename, err)}
	}
	return NewParquetWriterTo(file, options...), nil
}

// NewParquetWriterTo creates a Parquet writer on w. If w is an io.Closer it is closed by
// Close.
func NewParquetWriterTo(w io.Writer, options ...WriterOption) *ParquetWriter {
	opts := (&ParquetWriterOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	p := &ParquetWriter{
		out:          w,
		recordBuffer: make([]core.Record, 0, opts.BatchSize),
		stats:        WriterStats{NullValueCounts: make(map[string]int64)},
		allocator:    memory.NewGoAllocator(),
		opts:         opts,
	}
	if c, ok := w.(io.Closer); ok {
		p.closer = c
	}
	if len(opts.FieldOrder) > 0 {
		p.setFieldOrder(opts.FieldOrder)
	}
	return p
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	return p.stats
}

// Schema returns the file schema, or nil before the first write.
func (p *ParquetWriter) Schema() *arrow.Schema {
	return p.schema
}

// SetHeader fixes the column order. It must be called before the first Write.
func (p *ParquetWriter) SetHeader(columns []string) error {
	if p.schema != nil {
		return &ParquetWriterError{Op: "set_header", Err: fmt.Errorf("schema already initialized")}
	}
	p.setFieldOrder(columns)
	return nil
}

func (p *ParquetWriter) setFieldOrder(columns []string) {
	p.fieldOrder = append([]string(nil), columns...)
	p.fieldIndex = make(map[string]int, len(columns))
	for i, name := range columns {
		p.fieldIndex[name] = i
	}
}

// Write implements the core.DataSink interface. Records are buffered and written in batches.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.errorState {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if err := ctx.Err(); err != nil {
		return &ParquetWriterError{Op: "write", Err: err}
	}

	if p.fieldOrder == nil {
		keys := make([]string, 0, len(record))
		for k := range record {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		p.setFieldOrder(keys)
	}
	if p.schema == nil {
		if err := p.initializeSchema(); err != nil {
			p.errorState = true
			p.stats.ErrorCount++
			return err
		}
	}

	for k := range record {
		if _, ok := p.fieldIndex[k]; !ok {
			p.stats.ErrorCount++
			return &ParquetWriterError{Op: "validate", Err: fmt.Errorf("field %q is not in the schema", k)}
		}
	}

	p.recordBuffer = append(p.recordBuffer, record)
	p.stats.RecordsWritten++

	if int64(len(p.recordBuffer)) >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			p.errorState = true
			p.stats.ErrorCount++
			return err
		}
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (p *ParquetWriter) Flush() error {
	return p.flushBatch()
}

// Close implements the core.DataSink interface. A writer that saw a header but no records
// produces a file with the schema and no rows.
func (p *ParquetWriter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	if p.schema == nil && len(p.fieldOrder) > 0 {
		if err := p.initializeSchema(); err != nil {
			return err
		}
	}
	if err := p.flushBatch(); err != nil {
		return &ParquetWriterError{Op: "flush_remaining", Err: err}
	}

	if p.builder != nil {
		p.builder.Release()
		p.builder = nil
	}

	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			return &ParquetWriterError{Op: "close_writer", Err: fmt.Errorf("failed to close parquet writer: %w", err)}
		}
		p.writer = nil
	}

	if p.closer != nil {
		// the file writer may already have closed the sink
		if err := p.closer.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			return &ParquetWriterError{Op: "close_file", Err: err}
		}
	}
	return nil
}

func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.RowGroupSize <= 0 {
		result.RowGroupSize = 10000
	}
	if result.Compression == 0 {
		result.Compression = compress.Codecs.Snappy
	}
	return result
}

// initializeSchema creates the all-string Arrow schema and the file writer.
func (p *ParquetWriter) initializeSchema() error {
	fields := make([]arrow.Field, len(p.fieldOrder))
	for i, name := range p.fieldOrder {
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
	}

	var md *arrow.Metadata
	if len(p.opts.Metadata) > 0 {
		keys := make([]string, 0, len(p.opts.Metadata))
		for k := range p.opts.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make([]string, len(keys))
		for i, k := range keys {
			values[i] = p.opts.Metadata[k]
		}
		m := arrow.NewMetadata(keys, values)
		md = &m
	}
	p.schema = arrow.NewSchema(fields, md)

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(p.schema, p.out, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return &ParquetWriterError{Op: "create_writer", Err: fmt.Errorf("failed to create parquet file writer: %w", err)}
	}
	p.writer = writer
	p.builder = array.NewRecordBuilder(p.allocator, p.schema)
	return nil
}

// flushBatch writes the current buffer to the Parquet file.
func (p *ParquetWriter) flushBatch() error {
	if len(p.recordBuffer) == 0 {
		return nil
	}
	startTime := time.Now()

	for _, record := range p.recordBuffer {
		for i, name := range p.fieldOrder {
			b := p.builder.Field(i).(*array.StringBuilder)
			value := record[name]
			if value == "" {
				b.AppendNull()
				p.stats.NullValueCounts[name]++
				continue
			}
			b.Append(value)
		}
	}

	rec := p.builder.NewRecord()
	defer rec.Release()

	if err := p.writer.Write(rec); err != nil {
		return &ParquetWriterError{Op: "write_batch", Err: fmt.Errorf("failed to write record batch: %w", err)}
	}

	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(startTime)
	p.stats.LastFlushTime = time.Now()
	p.recordBuffer = p.recordBuffer[:0]
	return nil
}
