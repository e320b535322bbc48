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
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/gridetl/core"
)

// mockWriteCloser records output and can be made to fail.
type mockWriteCloser struct {
	*strings.Builder
	closed    bool
	failWrite bool
	failClose bool
	mu        sync.Mutex
}

func (m *mockWriteCloser) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return 0, io.ErrUnexpectedEOF
	}
	return m.Builder.Write(p)
}

func (m *mockWriteCloser) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.failClose {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (m *mockWriteCloser) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Builder.String()
}

func (m *mockWriteCloser) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func newMockWriteCloser() *mockWriteCloser {
	return &mockWriteCloser{Builder: &strings.Builder{}}
}

func parseCSV(t *testing.T, s string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVWriter_BasicFunctionality(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock)
	require.NoError(t, err)

	err = writer.Write(context.Background(), core.Record{"uuid": "a", "id": "node_a", "vTarget": "1"})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	rows := parseCSV(t, mock.String())
	assert.Equal(t, [][]string{{"id", "uuid", "vTarget"}, {"node_a", "a", "1"}}, rows)
	assert.True(t, mock.IsClosed())
}

func TestCSVWriter_SetHeader(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock)
	require.NoError(t, err)

	require.NoError(t, writer.SetHeader([]string{"uuid", "operator", "id"}))
	require.NoError(t, writer.Write(context.Background(), core.Record{"uuid": "a", "id": "x"}))
	require.NoError(t, writer.Close())

	rows := parseCSV(t, mock.String())
	assert.Equal(t, [][]string{{"uuid", "operator", "id"}, {"a", "", "x"}}, rows)

	assert.Error(t, writer.SetHeader([]string{"uuid"}))
}

func TestCSVWriter_UnknownColumn(t *testing.T) {
	writer, err := NewCSVWriter(newMockWriteCloser(), WithHeaders([]string{"uuid"}))
	require.NoError(t, err)

	err = writer.Write(context.Background(), core.Record{"uuid": "a", "extra": "b"})
	var werr *CSVWriterError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "write", werr.Op)
}

func TestCSVWriter_HeaderOnly(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock, WithHeaders([]string{"uuid", "id"}))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	assert.Equal(t, "uuid,id\n", mock.String())
}

func TestCSVWriter_CustomDelimiter(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock, WithComma(';'), WithHeaders([]string{"a", "b"}))
	require.NoError(t, err)

	require.NoError(t, writer.Write(context.Background(), core.Record{"a": "1;2", "b": "x"}))
	require.NoError(t, writer.Close())

	assert.Equal(t, "a;b\n\"1;2\";x\n", mock.String())

	_, err = NewCSVWriter(newMockWriteCloser(), WithComma('"'))
	assert.Error(t, err)
}

func TestCSVWriter_NoHeaders(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock, WithWriteHeader(false), WithHeaders([]string{"a"}))
	require.NoError(t, err)

	require.NoError(t, writer.Write(context.Background(), core.Record{"a": "1"}))
	require.NoError(t, writer.Close())
	assert.Equal(t, "1\n", mock.String())
}

func TestCSVWriter_BatchedWrites(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock, WithCSVBatchSize(2), WithHeaders([]string{"n"}))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, writer.Write(ctx, core.Record{"n": "1"}))
	assert.Equal(t, int64(0), writer.Stats().FlushCount)

	require.NoError(t, writer.Write(ctx, core.Record{"n": "2"}))
	assert.Equal(t, int64(1), writer.Stats().FlushCount)
	assert.Equal(t, "n\n1\n2\n", mock.String())

	require.NoError(t, writer.Write(ctx, core.Record{"n": "3"}))
	require.NoError(t, writer.Close())
	assert.Equal(t, "n\n1\n2\n3\n", mock.String())
	assert.Equal(t, int64(3), writer.Stats().RecordsWritten)
}

func TestCSVWriter_NullValueTracking(t *testing.T) {
	writer, err := NewCSVWriter(newMockWriteCloser(), WithHeaders([]string{"a", "b"}))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, writer.Write(ctx, core.Record{"a": "", "b": "x"}))
	require.NoError(t, writer.Write(ctx, core.Record{"a": "", "b": ""}))

	stats := writer.Stats()
	assert.Equal(t, int64(2), stats.NullValueCounts["a"])
	assert.Equal(t, int64(1), stats.NullValueCounts["b"])
}

func TestCSVWriter_ErrorHandling(t *testing.T) {
	t.Run("write failure", func(t *testing.T) {
		mock := newMockWriteCloser()
		mock.failWrite = true
		writer, err := NewCSVWriter(mock, WithCSVBatchSize(1))
		require.NoError(t, err)

		err = writer.Write(context.Background(), core.Record{"a": "1"})
		require.Error(t, err)

		err = writer.Write(context.Background(), core.Record{"a": "2"})
		assert.ErrorContains(t, err, "error state")
	})

	t.Run("close failure", func(t *testing.T) {
		mock := newMockWriteCloser()
		mock.failClose = true
		writer, err := NewCSVWriter(mock)
		require.NoError(t, err)
		assert.ErrorIs(t, writer.Close(), io.ErrUnexpectedEOF)
	})

	t.Run("cancelled context", func(t *testing.T) {
		writer, err := NewCSVWriter(newMockWriteCloser())
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, writer.Write(ctx, core.Record{"a": "1"}), context.Canceled)
	})
}

func TestCSVWriter_ConcurrentSafety(t *testing.T) {
	mock := newMockWriteCloser()
	writer, err := NewCSVWriter(mock, WithHeaders([]string{"g", "i"}), WithCSVBatchSize(10))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				assert.NoError(t, writer.Write(context.Background(), core.Record{"g": fmt.Sprint(g), "i": fmt.Sprint(i)}))
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, writer.Close())

	rows := parseCSV(t, mock.String())
	assert.Len(t, rows, 101)
}

func BenchmarkCSVWriter_Write(b *testing.B) {
	writer, _ := NewCSVWriter(newMockWriteCloser(), WithCSVBatchSize(100))
	record := core.Record{"uuid": "4ca90220-74c2-4369-9afa-a18bf068840d", "id": "node_a", "vTarget": "1"}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = writer.Write(ctx, record)
	}
	_ = writer.Close()
}
