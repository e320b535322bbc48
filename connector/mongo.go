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
	"fmt"
	"slices"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/readers"
	"github.com/aaronlmathis/gridetl/writers"
)

// Mongo stores one collection per dataset in a database.
type Mongo struct {
	client     *mongo.Client
	ownsClient bool
	database   string
	batchSize  int
	upsert     bool
	replace    bool
}

// MongoOption configures a Mongo connector.
type MongoOption func(*Mongo)

// WithMongoBatchSize sets the InsertMany batch size.
func WithMongoBatchSize(n int) MongoOption {
	return func(m *Mongo) { m.batchSize = n }
}

// WithMongoUpsert replaces documents with the same uuid instead of inserting.
func WithMongoUpsert(upsert bool) MongoOption {
	return func(m *Mongo) { m.upsert = upsert }
}

// WithMongoReplace drops collections before writing.
func WithMongoReplace(replace bool) MongoOption {
	return func(m *Mongo) { m.replace = replace }
}

// NewMongo returns a connector on a shared client. The client stays connected on Close.
func NewMongo(client *mongo.Client, database string, opts ...MongoOption) *Mongo {
	m := &Mongo{client: client, database: database, batchSize: 1000}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ConnectMongo opens a client and returns a connector owning it.
func ConnectMongo(ctx context.Context, conn readers.MongoConnOptions, database string, opts ...MongoOption) (*Mongo, error) {
	client, err := readers.ConnectMongo(ctx, conn)
	if err != nil {
		return nil, err
	}
	m := NewMongo(client, database, opts...)
	m.ownsClient = true
	return m, nil
}

// Source implements Connector.
func (m *Mongo) Source(ctx context.Context, name string) (core.DataSource, error) {
	names, err := m.Names(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(names, name) {
		return nil, fmt.Errorf("%w: collection %s.%s", ErrNotFound, m.database, name)
	}
	return readers.NewMongoReader(
		readers.WithMongoClient(m.client),
		readers.WithMongoDB(m.database),
		readers.WithMongoCollection(name),
		readers.WithMongoBatchSize(int32(m.batchSize)),
	)
}

// Sink implements Connector. Empty values are stored as empty strings so that documents
// keep the full column set.
func (m *Mongo) Sink(ctx context.Context, name string, header []string) (core.DataSink, error) {
	return writers.NewMongoWriter(m.client,
		writers.WithMongoDatabase(m.database),
		writers.WithMongoCollection(name),
		writers.WithMongoBatchSize(m.batchSize),
		writers.WithMongoUpsert(m.upsert && slices.Contains(header, "uuid")),
		writers.WithMongoDropFirst(m.replace),
	)
}

// Names implements Connector.
func (m *Mongo) Names(ctx context.Context) ([]string, error) {
	names, err := m.client.Database(m.database).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections of %s: %w", m.database, err)
	}
	sort.Strings(names)
	return names, nil
}

// Close implements Connector.
func (m *Mongo) Close() error {
	if m.ownsClient {
		return m.client.Disconnect(context.Background())
	}
	return nil
}
