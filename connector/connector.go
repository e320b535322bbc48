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

// Package connector maps dataset names to record sources and sinks on a storage backend.
//
// A dataset holds the records of one entity type or one individual time series; its name
// comes from the naming package ("node_input", "its_p_<uuid>"). Backends are a local
// directory, an S3 prefix, a PostgreSQL schema and a MongoDB database.
package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/writers"
)

// ErrNotFound is returned by Source when a dataset does not exist.
var ErrNotFound = errors.New("dataset not found")

// Connector opens datasets on a storage backend.
type Connector interface {
	// Source opens the dataset name for reading. It returns an error wrapping ErrNotFound
	// when the dataset does not exist.
	Source(ctx context.Context, name string) (core.DataSource, error)
	// Sink creates or replaces the dataset name with the given columns.
	Sink(ctx context.Context, name string, header []string) (core.DataSink, error)
	// Names lists the datasets present on the backend.
	Names(ctx context.Context) ([]string, error)
	// Close releases connections owned by the connector.
	Close() error
}

// Format is a file encoding used by the directory and S3 connectors.
type Format int

const (
	FormatCSV Format = iota
	FormatJSON
	FormatParquet
)

// ParseFormat parses "csv", "json" (or "jsonl") and "parquet". Blank means csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "json", "jsonl":
		return FormatJSON, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return 0, fmt.Errorf("unknown format %q", s)
	}
}

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	case FormatParquet:
		return "parquet"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	switch f {
	case FormatJSON:
		return ".jsonl"
	case FormatParquet:
		return ".parquet"
	default:
		return ".csv"
	}
}

// newStreamSink wraps w in a writer for format f with the columns of header.
func newStreamSink(w io.WriteCloser, f Format, header []string, comma rune) (core.DataSink, error) {
	switch f {
	case FormatCSV:
		opts := []writers.WriterOptionCSV{writers.WithHeaders(header)}
		if comma != 0 {
			opts = append(opts, writers.WithComma(comma))
		}
		sink, err := writers.NewCSVWriter(w, opts...)
		if err != nil {
			w.Close()
			return nil, err
		}
		return sink, nil
	case FormatJSON:
		return writers.NewJSONWriter(w), nil
	case FormatParquet:
		return writers.NewParquetWriterTo(w, writers.WithFieldOrder(header)), nil
	default:
		w.Close()
		return nil, fmt.Errorf("unsupported format %s", f)
	}
}

func hasExt(name string, f Format) (string, bool) {
	ext := f.Ext()
	if f == FormatJSON && strings.HasSuffix(name, ".json") {
		ext = ".json"
	}
	if !strings.HasSuffix(name, ext) {
		return "", false
	}
	return strings.TrimSuffix(name, ext), true
}
