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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/apache/arrow/go/arrow/memory"
	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/gridetl/core"
)

// ParquetReaderError provides structured error information for parquet reader operations
type ParquetReaderError struct {
	Op  string // Operation that failed (e.g., "read", "load_batch", "open_file", "schema")
	Err error  // Underlying error
}

func (e *ParquetReaderError) Error() string {
	return fmt.Sprintf("parquet reader %s: %v", e.Op, e.Err)
}

func (e *ParquetReaderError) Unwrap() error {
	return e.Err
}

// ParquetReader implements DataSource for Parquet files.
// Every column is rendered as text; null cells become "".
type ParquetReader struct {
	closer          io.Closer
	reader          *file.Reader
	recordReader    pqarrow.RecordReader
	currentBatch    arrow.Record
	currentBatchIdx int
	totalRows       int64
	schema          *arrow.Schema
	stats           ReaderStats
	opts            *ParquetReaderOptions
}

// ReaderStats holds statistics about the Parquet reader's performance
type ReaderStats struct {
	RecordsRead     int64
	BatchesRead     int64
	BytesRead       int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
}

// ParquetReaderOptions configures the Parquet reader
type ParquetReaderOptions struct {
	BatchSize   int64    // Rows per batch
	Columns     []string // Optional column projection
	MemoryLimit int64    // Limit on estimated bytes read
}

// ReaderOption represents a configuration function
type ReaderOption func(*ParquetReaderOptions)

func WithBatchSize(size int64) ReaderOption {
	return func(opts *ParquetReaderOptions) {
		opts.BatchSize = size
	}
}

func WithColumnProjection(columns ...string) ReaderOption {
	return func(opts *ParquetReaderOptions) {
		opts.Columns = make([]string, len(columns))
		copy(opts.Columns, columns)
	}
}

func WithMemoryLimit(limit int64) ReaderOption {
	return func(opts *ParquetReaderOptions) {
		opts.MemoryLimit = limit
	}
}

// NewParquetReader opens a Parquet file and prepares an Arrow RecordReader
func NewParquetReader(filename string, options ...ReaderOption) (*ParquetReader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, &ParquetReaderError{Op: "open_file", Err: err}
	}
	r, err := newParquetReader(f, options...)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewParquetReaderFromBytes reads a Parquet file held in memory, e.g. an object store body.
func NewParquetReaderFromBytes(data []byte, options ...ReaderOption) (*ParquetReader, error) {
	return newParquetReader(bytes.NewReader(data), options...)
}

func newParquetReader(src parquet.ReaderAtSeeker, options ...ReaderOption) (*ParquetReader, error) {
	opts := (&ParquetReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}

	parquetReader, err := file.NewParquetReader(src)
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_reader", Err: err}
	}

	arrowReader, err := pqarrow.NewFileReader(parquetReader, pqarrow.ArrowReadProperties{BatchSize: opts.BatchSize}, memory.NewGoAllocator())
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_arrow_reader", Err: err}
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, &ParquetReaderError{Op: "get_schema", Err: err}
	}

	var colIndices []int
	for _, name := range opts.Columns {
		indices := schema.FieldIndices(name)
		if len(indices) == 0 {
			return nil, &ParquetReaderError{Op: "column_projection", Err: fmt.Errorf("column %q not found in schema", name)}
		}
		colIndices = append(colIndices, indices[0])
	}

	recordReader, err := arrowReader.GetRecordReader(context.Background(), colIndices, nil)
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_record_reader", Err: err}
	}

	return &ParquetReader{
		reader:       parquetReader,
		recordReader: recordReader,
		totalRows:    parquetReader.NumRows(),
		schema:       recordReader.Schema(),
		stats:        ReaderStats{NullValueCounts: make(map[string]int64)},
		opts:         opts,
	}, nil
}

// Read reads the next record from the Parquet file, returning core.Record or io.EOF
func (p *ParquetReader) Read(ctx context.Context) (core.Record, error) {
	startTime := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(startTime)
		p.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &ParquetReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if p.currentBatch == nil || p.currentBatchIdx >= int(p.currentBatch.NumRows()) {
		if err := p.loadNextBatch(); err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, &ParquetReaderError{Op: "load_batch", Err: err}
		}
	}

	result := p.extractRecordFromBatch(p.currentBatch, p.currentBatchIdx)
	p.currentBatchIdx++
	p.stats.RecordsRead++

	return result, nil
}

// Close releases resources and closes the underlying file
func (p *ParquetReader) Close() error {
	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}
	if p.recordReader != nil {
		p.recordReader.Release()
		p.recordReader = nil
	}
	if p.closer != nil {
		err := p.closer.Close()
		p.closer = nil
		return err
	}
	return nil
}

// Schema returns the Arrow schema of the projected columns
func (p *ParquetReader) Schema() *arrow.Schema {
	return p.schema
}

// NumRows returns the row count stored in the file metadata.
func (p *ParquetReader) NumRows() int64 {
	return p.totalRows
}

// Stats returns statistics about the Parquet reader's performance
func (p *ParquetReader) Stats() ReaderStats {
	return p.stats
}

func (opts *ParquetReaderOptions) withDefaults() *ParquetReaderOptions {
	result := &ParquetReaderOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.MemoryLimit <= 0 {
		result.MemoryLimit = 1 << 30
	}
	return result
}

func (p *ParquetReader) loadNextBatch() error {
	if p.stats.BytesRead > 0 && p.stats.BytesRead >= p.opts.MemoryLimit {
		return fmt.Errorf("memory limit exceeded: %d bytes >= %d limit", p.stats.BytesRead, p.opts.MemoryLimit)
	}

	if p.currentBatch != nil {
		p.currentBatch.Release()
		p.currentBatch = nil
	}

	for {
		rec, err := p.recordReader.Read()
		if err != nil {
			return err
		}
		if rec == nil {
			return io.EOF
		}
		if rec.NumRows() == 0 {
			continue
		}
		// the record reader owns rec until its next Read
		rec.Retain()
		p.currentBatch = rec
		p.currentBatchIdx = 0
		p.stats.BatchesRead++
		p.stats.BytesRead += estimateBatchBytes(rec)
		return nil
	}
}

// estimateBatchBytes approximates the memory held by a batch from its column widths.
func estimateBatchBytes(rec arrow.Record) int64 {
	var estimated int64
	for i := 0; i < int(rec.NumCols()); i++ {
		switch rec.Column(i).DataType().ID() {
		case arrow.BOOL, arrow.INT8, arrow.UINT8:
			estimated += rec.NumRows()
		case arrow.INT16, arrow.UINT16:
			estimated += rec.NumRows() * 2
		case arrow.INT32, arrow.UINT32, arrow.FLOAT32, arrow.DATE32:
			estimated += rec.NumRows() * 4
		case arrow.STRING, arrow.BINARY:
			estimated += rec.NumRows() * 32
		default:
			estimated += rec.NumRows() * 8
		}
	}
	return estimated
}

func (p *ParquetReader) extractRecordFromBatch(record arrow.Record, pos int) core.Record {
	res := make(core.Record, record.NumCols())
	sch := record.Schema()
	for i := 0; i < int(record.NumCols()); i++ {
		name := sch.Field(i).Name
		res[name] = p.extractValueFromColumn(record.Column(i), pos, name)
	}
	return res
}

// extractValueFromColumn renders one cell as text.
func (p *ParquetReader) extractValueFromColumn(col arrow.Array, rowIdx int, fieldName string) string {
	if col.IsNull(rowIdx) {
		p.stats.NullValueCounts[fieldName]++
		return ""
	}

	switch arr := col.(type) {
	case *array.String:
		return arr.Value(rowIdx)
	case *array.Boolean:
		return strconv.FormatBool(arr.Value(rowIdx))
	case *array.Int8:
		return strconv.FormatInt(int64(arr.Value(rowIdx)), 10)
	case *array.Int16:
		return strconv.FormatInt(int64(arr.Value(rowIdx)), 10)
	case *array.Int32:
		return strconv.FormatInt(int64(arr.Value(rowIdx)), 10)
	case *array.Int64:
		return strconv.FormatInt(arr.Value(rowIdx), 10)
	case *array.Uint8:
		return strconv.FormatUint(uint64(arr.Value(rowIdx)), 10)
	case *array.Uint16:
		return strconv.FormatUint(uint64(arr.Value(rowIdx)), 10)
	case *array.Uint32:
		return strconv.FormatUint(uint64(arr.Value(rowIdx)), 10)
	case *array.Uint64:
		return strconv.FormatUint(arr.Value(rowIdx), 10)
	case *array.Float32:
		return strconv.FormatFloat(float64(arr.Value(rowIdx)), 'g', -1, 32)
	case *array.Float64:
		return strconv.FormatFloat(arr.Value(rowIdx), 'g', -1, 64)
	case *array.Binary:
		return string(arr.Value(rowIdx))
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return StringifyValue(arr.Value(rowIdx).ToTime(unit))
	case *array.Date32:
		return StringifyValue(arr.Value(rowIdx).ToTime())
	case *array.Date64:
		return StringifyValue(arr.Value(rowIdx).ToTime())
	default:
		return StringifyValue(col.GetOneForMarshal(rowIdx))
	}
}
