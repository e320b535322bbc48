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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/readers"
)

// Dir stores one file per dataset in a local directory.
type Dir struct {
	root   string
	format Format
	comma  rune
}

// DirOption configures a Dir.
type DirOption func(*Dir)

// WithFormat sets the file format. The default is csv.
func WithFormat(f Format) DirOption {
	return func(d *Dir) { d.format = f }
}

// WithComma sets the csv field delimiter.
func WithComma(r rune) DirOption {
	return func(d *Dir) { d.comma = r }
}

// NewDir returns a connector on root, creating the directory if needed.
func NewDir(root string, opts ...DirOption) (*Dir, error) {
	d := &Dir{root: root, comma: ','}
	for _, opt := range opts {
		opt(d)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", root, err)
	}
	return d, nil
}

// Path returns the file of dataset name.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.root, name+d.format.Ext())
}

// Source implements Connector.
func (d *Dir) Source(ctx context.Context, name string) (core.DataSource, error) {
	path := d.Path(name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}

	if d.format == FormatParquet {
		return readers.NewParquetReader(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if d.format == FormatJSON {
		return readers.NewJSONReader(f), nil
	}
	r, err := readers.NewCSVReader(f, readers.WithCSVComma(d.comma))
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Sink implements Connector. An existing file is truncated.
func (d *Dir) Sink(ctx context.Context, name string, header []string) (core.DataSink, error) {
	f, err := os.Create(d.Path(name))
	if err != nil {
		return nil, err
	}
	return newStreamSink(f, d.format, header, d.comma)
}

// Names implements Connector.
func (d *Dir) Names(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := hasExt(e.Name(), d.format); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close implements Connector.
func (d *Dir) Close() error {
	return nil
}
