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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestConvertBSONValue(t *testing.T) {
	oid := primitive.NewObjectID()
	dec, err := primitive.ParseDecimal128("0.005")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"object id", oid, oid.Hex()},
		{"datetime", primitive.NewDateTimeFromTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)), "2020-01-01T00:00:00Z"},
		{"decimal", dec, "0.005"},
		{"null", primitive.Null{}, ""},
		{"nil", nil, ""},
		{"int32", int32(7), "7"},
		{"double", 0.437, "0.437"},
		{"string", "node_a", "node_a"},
		{"array", bson.A{"a", "b"}, `["a","b"]`},
		{"document", bson.D{{Key: "type", Value: "Point"}}, `{"type":"Point"}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, convertBSONValue(tt.in))
		})
	}
}

func TestNewMongoReader_Validation(t *testing.T) {
	_, err := NewMongoReader(WithMongoCollection("node_input"))
	var merr *MongoReaderError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "validate", merr.Op)

	_, err = NewMongoReader(WithMongoDB("grid"))
	assert.ErrorContains(t, err, "collection")

	r, err := NewMongoReader(WithMongoDB("grid"), WithMongoCollection("node_input"))
	require.NoError(t, err)
	assert.Equal(t, ModeFind, r.opts.Mode)
	assert.Equal(t, int32(1000), r.opts.BatchSize)
	assert.Equal(t, "mongodb://localhost:27017", r.opts.URI)
	assert.NoError(t, r.Close())

	r, err = NewMongoReader(WithMongoDB("grid"), WithMongoCollection("node_input"),
		WithMongoPipeline([]bson.M{{"$match": bson.M{"subnet": "1"}}}))
	require.NoError(t, err)
	assert.Equal(t, ModeAggregate, r.opts.Mode)
}

func TestBuildMongoClientOptions(t *testing.T) {
	conn := DefaultMongoConnOptions()
	conn.Username, conn.Password, conn.AuthDatabase = "grid", "secret", "admin"
	conn.TLS = true

	opts, err := BuildMongoClientOptions(conn)
	require.NoError(t, err)
	require.NotNil(t, opts.Auth)
	assert.Equal(t, "admin", opts.Auth.AuthSource)
	assert.NotNil(t, opts.TLSConfig)
	assert.Equal(t, uint64(100), *opts.MaxPoolSize)

	conn.ReadPreference = "fastest"
	_, err = BuildMongoClientOptions(conn)
	assert.ErrorContains(t, err, "read preference")

	conn = DefaultMongoConnOptions()
	conn.ReadConcern = "eventual"
	_, err = BuildMongoClientOptions(conn)
	assert.ErrorContains(t, err, "read concern")
}
