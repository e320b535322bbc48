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
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aaronlmathis/gridetl/core"
)

// MongoWriterError wraps MongoDB write errors with context about the operation.
type MongoWriterError struct {
	Op         string
	Collection string
	Err        error
}

func (e *MongoWriterError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo writer %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo writer %s: %v", e.Op, e.Err)
}

func (e *MongoWriterError) Unwrap() error {
	return e.Err
}

// MongoWriterStats holds MongoDB write statistics.
type MongoWriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	DuplicateCount  int64
	WriteDuration   time.Duration
	LastWriteTime   time.Time
	NullValueCounts map[string]int64
}

// MongoWriterOptions configures the MongoDB writer.
type MongoWriterOptions struct {
	Database   string
	Collection string
	BatchSize  int
	Ordered    bool // Stop a batch at the first failing document
	OmitEmpty  bool // Leave empty fields out of documents
	Upsert     bool // Replace documents by their "uuid" field instead of inserting
	DropFirst  bool // Drop the collection before the first write
}

// WriterOptionMongo is a functional option.
type WriterOptionMongo func(*MongoWriterOptions)

func WithMongoDatabase(database string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Database = database
	}
}

func WithMongoCollection(collection string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Collection = collection
	}
}

func WithMongoBatchSize(size int) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.BatchSize = size
	}
}

func WithMongoOrdered(ordered bool) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Ordered = ordered
	}
}

func WithMongoOmitEmpty(omit bool) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.OmitEmpty = omit
	}
}

func WithMongoUpsert(upsert bool) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Upsert = upsert
	}
}

func WithMongoDropFirst(drop bool) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.DropFirst = drop
	}
}

// MongoWriter implements core.DataSink over one collection. The client is owned by the
// caller and stays connected after Close.
type MongoWriter struct {
	collection *mongo.Collection
	options    MongoWriterOptions
	buffer     []core.Record
	stats      MongoWriterStats
	prepared   bool
	mu         sync.Mutex
}

// NewMongoWriter creates a writer on client.
func NewMongoWriter(client *mongo.Client, opts ...WriterOptionMongo) (*MongoWriter, error) {
	options := MongoWriterOptions{BatchSize: 1000, Ordered: true}
	for _, opt := range opts {
		opt(&options)
	}
	if client == nil {
		return nil, &MongoWriterError{Op: "validate", Err: fmt.Errorf("client is required")}
	}
	if options.Database == "" || options.Collection == "" {
		return nil, &MongoWriterError{Op: "validate", Err: fmt.Errorf("database and collection are required")}
	}
	if options.BatchSize <= 0 {
		options.BatchSize = 1000
	}
	return &MongoWriter{
		collection: client.Database(options.Database).Collection(options.Collection),
		options:    options,
		buffer:     make([]core.Record, 0, options.BatchSize),
		stats:      MongoWriterStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Write implements the core.DataSink interface.
func (m *MongoWriter) Write(ctx context.Context, record core.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range record {
		if v == "" {
			m.stats.NullValueCounts[k]++
		}
	}
	m.buffer = append(m.buffer, record)
	if len(m.buffer) >= m.options.BatchSize {
		return m.flushUnsafe(ctx)
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (m *MongoWriter) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushUnsafe(context.Background())
}

// Close implements the core.DataSink interface.
func (m *MongoWriter) Close() error {
	return m.Flush()
}

// Stats returns a copy of the write statistics.
func (m *MongoWriter) Stats() MongoWriterStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.NullValueCounts = make(map[string]int64, len(m.stats.NullValueCounts))
	for k, v := range m.stats.NullValueCounts {
		s.NullValueCounts[k] = v
	}
	return s
}

// recordDocument converts a record into a BSON document with sorted keys.
func recordDocument(record core.Record, omitEmpty bool) bson.D {
	doc := make(bson.D, 0, len(record))
	for _, k := range record.Keys() {
		v := record[k]
		if omitEmpty && v == "" {
			continue
		}
		doc = append(doc, bson.E{Key: k, Value: v})
	}
	return doc
}

func (m *MongoWriter) flushUnsafe(ctx context.Context) error {
	if !m.prepared && m.options.DropFirst {
		if err := m.collection.Drop(ctx); err != nil {
			return &MongoWriterError{Op: "drop", Collection: m.options.Collection, Err: err}
		}
	}
	m.prepared = true

	if len(m.buffer) == 0 {
		return nil
	}
	start := time.Now()

	if m.options.Upsert {
		models := make([]mongo.WriteModel, len(m.buffer))
		for i, r := range m.buffer {
			models[i] = mongo.NewReplaceOneModel().
				SetFilter(bson.D{{Key: "uuid", Value: r["uuid"]}}).
				SetReplacement(recordDocument(r, m.options.OmitEmpty)).
				SetUpsert(true)
		}
		if _, err := m.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(m.options.Ordered)); err != nil {
			return &MongoWriterError{Op: "bulk_write", Collection: m.options.Collection, Err: err}
		}
	} else {
		docs := make([]interface{}, len(m.buffer))
		for i, r := range m.buffer {
			docs[i] = recordDocument(r, m.options.OmitEmpty)
		}
		res, err := m.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(m.options.Ordered))
		if err != nil {
			var bwe mongo.BulkWriteException
			if !m.options.Ordered && errors.As(err, &bwe) && onlyDuplicates(bwe) {
				m.stats.DuplicateCount += int64(len(bwe.WriteErrors))
			} else {
				return &MongoWriterError{Op: "insert_many", Collection: m.options.Collection, Err: err}
			}
		}
		if res != nil {
			m.stats.RecordsWritten += int64(len(res.InsertedIDs))
		}
	}
	if m.options.Upsert {
		m.stats.RecordsWritten += int64(len(m.buffer))
	}

	m.stats.BatchesWritten++
	m.stats.WriteDuration += time.Since(start)
	m.stats.LastWriteTime = time.Now()
	m.buffer = m.buffer[:0]
	return nil
}

// onlyDuplicates reports whether every failed document hit a duplicate key.
func onlyDuplicates(e mongo.BulkWriteException) bool {
	if e.WriteConcernError != nil || len(e.WriteErrors) == 0 {
		return false
	}
	for _, we := range e.WriteErrors {
		switch we.Code {
		case 11000, 11001, 12582:
		default:
			return false
		}
	}
	return true
}
