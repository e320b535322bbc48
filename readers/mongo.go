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
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/aaronlmathis/gridetl/core"
)

// This file implements a configurable MongoDB reader. Documents are flattened into text
// records: scalars are stringified, nested documents and arrays are kept as extended JSON.

// MongoReaderError provides structured error information for MongoDB reader operations
type MongoReaderError struct {
	Op         string // Operation that failed (e.g., "connect", "query", "decode", "aggregate")
	Collection string // Collection being accessed when error occurred
	Err        error  // Underlying error
}

func (e *MongoReaderError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo reader %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo reader %s: %v", e.Op, e.Err)
}

func (e *MongoReaderError) Unwrap() error {
	return e.Err
}

// MongoReaderStats holds statistics about the MongoDB reader's performance
type MongoReaderStats struct {
	RecordsRead     int64            // Total records read
	QueriesExecuted int64            // Total queries executed
	ReadDuration    time.Duration    // Total time spent reading
	LastReadTime    time.Time        // Time of last read
	NullValueCounts map[string]int64 // Count of null values per field
	ErrorCount      int64            // Number of errors encountered
}

// MongoReadMode defines how data should be read from MongoDB
type MongoReadMode string

const (
	ModeFind      MongoReadMode = "find"      // Standard find query
	ModeAggregate MongoReadMode = "aggregate" // Aggregation pipeline
)

// MongoConnOptions configures the MongoDB client shared by readers and writers.
type MongoConnOptions struct {
	URI             string        // MongoDB connection URI
	Timeout         time.Duration // Connect timeout
	MaxPoolSize     uint64        // Connection pool size
	MinPoolSize     uint64        // Minimum connections in pool
	MaxConnIdleTime time.Duration // Max idle time for connections
	ReadPreference  string        // Read preference: primary, secondary, etc.
	ReadConcern     string        // Read concern level
	AuthDatabase    string        // Authentication database
	Username        string        // Authentication username
	Password        string        // Authentication password
	TLS             bool          // Enable TLS
	TLSInsecure     bool          // Skip TLS verification
	ReplicaSetName  string        // Replica set name
	RetryReads      bool          // Enable read retries
	RetryWrites     bool          // Enable write retries
	Compressors     []string      // Compression algorithms
}

// DefaultMongoConnOptions returns the connection defaults.
func DefaultMongoConnOptions() MongoConnOptions {
	return MongoConnOptions{
		URI:             "mongodb://localhost:27017",
		Timeout:         30 * time.Second,
		MaxPoolSize:     100,
		MinPoolSize:     5,
		MaxConnIdleTime: 10 * time.Minute,
		ReadPreference:  "primary",
		ReadConcern:     "local",
		RetryReads:      true,
		RetryWrites:     true,
		Compressors:     []string{"zstd", "zlib", "snappy"},
	}
}

// MongoReaderOptions configures the MongoDB reader
type MongoReaderOptions struct {
	MongoConnOptions
	Client       *mongo.Client // Shared client; takes precedence over the connection options
	Database     string        // Database name
	Collection   string        // Collection name
	Mode         MongoReadMode // Read mode
	Filter       bson.M        // Query filter for find operations
	Projection   bson.M        // Field projection
	Sort         bson.D        // Sort specification
	Pipeline     []bson.M      // Aggregation pipeline stages
	BatchSize    int32         // Batch size for cursor
	Limit        int64         // Maximum number of documents to read
	Skip         int64         // Number of documents to skip
	AllowDiskUse bool          // Allow aggregation to use disk
	Comment      string        // Query comment for profiling
	KeepID       bool          // Keep the _id field in records
}

// ReaderOptionMongo is a functional option for MongoReaderOptions
type ReaderOptionMongo func(*MongoReaderOptions)

// Connection options
func WithMongoURI(uri string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.URI = uri
	}
}

func WithMongoClient(client *mongo.Client) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Client = client
	}
}

func WithMongoDB(database string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Database = database
	}
}

func WithMongoCollection(collection string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Collection = collection
	}
}

// Query options
func WithMongoFilter(filter bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Filter = filter
	}
}

func WithMongoProjection(projection bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Projection = projection
	}
}

func WithMongoSort(sort bson.D) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Sort = sort
	}
}

func WithMongoPipeline(pipeline []bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Pipeline = pipeline
		opts.Mode = ModeAggregate
	}
}

func WithMongoLimit(limit int64) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Limit = limit
	}
}

func WithMongoBatchSize(batchSize int32) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.BatchSize = batchSize
	}
}

func WithMongoAuth(username, password, authDB string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Username = username
		opts.Password = password
		opts.AuthDatabase = authDB
	}
}

func WithMongoTLS(enabled, insecure bool) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.TLS = enabled
		opts.TLSInsecure = insecure
	}
}

func WithMongoKeepID(keep bool) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.KeepID = keep
	}
}

// MongoReader implements core.DataSource for MongoDB collections
type MongoReader struct {
	client     *mongo.Client
	ownsClient bool
	collection *mongo.Collection
	cursor     *mongo.Cursor
	opts       *MongoReaderOptions
	stats      MongoReaderStats
}

// NewMongoReader creates a new MongoDB reader. The connection is opened lazily on the
// first Read unless a shared client is given.
func NewMongoReader(options ...ReaderOptionMongo) (*MongoReader, error) {
	opts := &MongoReaderOptions{
		MongoConnOptions: DefaultMongoConnOptions(),
		Mode:             ModeFind,
		BatchSize:        1000,
	}
	for _, option := range options {
		option(opts)
	}

	if opts.Database == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("database name is required")}
	}
	if opts.Collection == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("collection name is required")}
	}
	if opts.Mode == ModeAggregate && len(opts.Pipeline) == 0 {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("pipeline is required for aggregate mode")}
	}

	reader := &MongoReader{
		opts:  opts,
		stats: MongoReaderStats{NullValueCounts: make(map[string]int64)},
	}
	if opts.Client != nil {
		reader.client = opts.Client
		reader.collection = opts.Client.Database(opts.Database).Collection(opts.Collection)
	}
	return reader, nil
}

// ConnectMongo opens and pings a client.
func ConnectMongo(ctx context.Context, conn MongoConnOptions) (*mongo.Client, error) {
	clientOpts, err := BuildMongoClientOptions(conn)
	if err != nil {
		return nil, &MongoReaderError{Op: "build_options", Err: err}
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, &MongoReaderError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, &MongoReaderError{Op: "ping", Err: err}
	}
	return client, nil
}

// BuildMongoClientOptions constructs MongoDB client options from the connection settings.
func BuildMongoClientOptions(conn MongoConnOptions) (*options.ClientOptions, error) {
	clientOpts := options.Client().ApplyURI(conn.URI)

	if conn.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(conn.MaxPoolSize)
	}
	if conn.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(conn.MinPoolSize)
	}
	if conn.MaxConnIdleTime > 0 {
		clientOpts.SetMaxConnIdleTime(conn.MaxConnIdleTime)
	}
	if conn.Timeout > 0 {
		clientOpts.SetConnectTimeout(conn.Timeout)
	}

	if conn.Username != "" && conn.Password != "" {
		clientOpts.SetAuth(options.Credential{
			Username:   conn.Username,
			Password:   conn.Password,
			AuthSource: conn.AuthDatabase,
		})
	}

	if conn.TLS {
		clientOpts.SetTLSConfig(&tls.Config{InsecureSkipVerify: conn.TLSInsecure})
	}

	if conn.ReadPreference != "" {
		var readPref *readpref.ReadPref
		switch conn.ReadPreference {
		case "primary":
			readPref = readpref.Primary()
		case "primaryPreferred":
			readPref = readpref.PrimaryPreferred()
		case "secondary":
			readPref = readpref.Secondary()
		case "secondaryPreferred":
			readPref = readpref.SecondaryPreferred()
		case "nearest":
			readPref = readpref.Nearest()
		default:
			return nil, fmt.Errorf("invalid read preference: %s", conn.ReadPreference)
		}
		clientOpts.SetReadPreference(readPref)
	}

	if conn.ReadConcern != "" {
		var rc *readconcern.ReadConcern
		switch conn.ReadConcern {
		case "local":
			rc = readconcern.Local()
		case "available":
			rc = readconcern.Available()
		case "majority":
			rc = readconcern.Majority()
		case "linearizable":
			rc = readconcern.Linearizable()
		case "snapshot":
			rc = readconcern.Snapshot()
		default:
			return nil, fmt.Errorf("invalid read concern: %s", conn.ReadConcern)
		}
		clientOpts.SetReadConcern(rc)
	}

	clientOpts.SetRetryReads(conn.RetryReads)
	clientOpts.SetRetryWrites(conn.RetryWrites)
	if len(conn.Compressors) > 0 {
		clientOpts.SetCompressors(conn.Compressors)
	}
	if conn.ReplicaSetName != "" {
		clientOpts.SetReplicaSet(conn.ReplicaSetName)
	}

	return clientOpts, nil
}

// Read implements the core.DataSource interface
func (mr *MongoReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() {
		mr.stats.ReadDuration += time.Since(start)
		mr.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &MongoReaderError{Op: "read", Collection: mr.opts.Collection, Err: ctx.Err()}
	default:
	}

	if mr.client == nil {
		client, err := ConnectMongo(ctx, mr.opts.MongoConnOptions)
		if err != nil {
			return nil, err
		}
		mr.client, mr.ownsClient = client, true
		mr.collection = client.Database(mr.opts.Database).Collection(mr.opts.Collection)
	}

	if mr.cursor == nil {
		if err := mr.initializeCursor(ctx); err != nil {
			return nil, &MongoReaderError{Op: "init_cursor", Collection: mr.opts.Collection, Err: err}
		}
	}

	if !mr.cursor.Next(ctx) {
		if err := mr.cursor.Err(); err != nil {
			mr.stats.ErrorCount++
			return nil, &MongoReaderError{Op: "cursor_next", Collection: mr.opts.Collection, Err: err}
		}
		return nil, io.EOF
	}

	var doc bson.M
	if err := mr.cursor.Decode(&doc); err != nil {
		mr.stats.ErrorCount++
		return nil, &MongoReaderError{Op: "decode", Collection: mr.opts.Collection, Err: err}
	}

	record := make(core.Record, len(doc))
	for key, value := range doc {
		if key == "_id" && !mr.opts.KeepID {
			continue
		}
		s := convertBSONValue(value)
		if s == "" {
			mr.stats.NullValueCounts[key]++
		}
		record[key] = s
	}
	mr.stats.RecordsRead++

	return record, nil
}

// Close implements the core.DataSource interface. A shared client stays connected.
func (mr *MongoReader) Close() error {
	var errs []string
	ctx := context.Background()

	if mr.cursor != nil {
		if err := mr.cursor.Close(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("cursor close: %v", err))
		}
		mr.cursor = nil
	}

	if mr.client != nil && mr.ownsClient {
		if err := mr.client.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("client disconnect: %v", err))
		}
	}
	mr.client = nil

	if len(errs) > 0 {
		return &MongoReaderError{Op: "close", Err: fmt.Errorf("multiple errors: %s", strings.Join(errs, "; "))}
	}
	return nil
}

// Stats returns MongoDB reader performance statistics
func (mr *MongoReader) Stats() MongoReaderStats {
	return mr.stats
}

func (mr *MongoReader) initializeCursor(ctx context.Context) error {
	mr.stats.QueriesExecuted++

	switch mr.opts.Mode {
	case ModeFind:
		findOpts := options.Find()
		if mr.opts.BatchSize > 0 {
			findOpts.SetBatchSize(mr.opts.BatchSize)
		}
		if mr.opts.Limit > 0 {
			findOpts.SetLimit(mr.opts.Limit)
		}
		if mr.opts.Skip > 0 {
			findOpts.SetSkip(mr.opts.Skip)
		}
		if mr.opts.Projection != nil {
			findOpts.SetProjection(mr.opts.Projection)
		}
		if mr.opts.Sort != nil {
			findOpts.SetSort(mr.opts.Sort)
		}
		if mr.opts.Comment != "" {
			findOpts.SetComment(mr.opts.Comment)
		}
		filter := mr.opts.Filter
		if filter == nil {
			filter = bson.M{}
		}
		cursor, err := mr.collection.Find(ctx, filter, findOpts)
		if err != nil {
			return err
		}
		mr.cursor = cursor
		return nil

	case ModeAggregate:
		aggOpts := options.Aggregate()
		if mr.opts.BatchSize > 0 {
			aggOpts.SetBatchSize(mr.opts.BatchSize)
		}
		if mr.opts.AllowDiskUse {
			aggOpts.SetAllowDiskUse(true)
		}
		if mr.opts.Comment != "" {
			aggOpts.SetComment(mr.opts.Comment)
		}
		cursor, err := mr.collection.Aggregate(ctx, mr.opts.Pipeline, aggOpts)
		if err != nil {
			return err
		}
		mr.cursor = cursor
		return nil

	default:
		return fmt.Errorf("unsupported read mode: %s", mr.opts.Mode)
	}
}

// convertBSONValue renders a BSON value as record text.
func convertBSONValue(value interface{}) string {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return StringifyValue(v.Time())
	case primitive.Timestamp:
		return StringifyValue(time.Unix(int64(v.T), 0))
	case primitive.Decimal128:
		return v.String()
	case primitive.Binary:
		return string(v.Data)
	case primitive.Regex:
		return v.Pattern
	case primitive.JavaScript:
		return string(v)
	case primitive.Symbol:
		return string(v)
	case primitive.Undefined, primitive.Null:
		return ""
	case bson.M, bson.D, bson.A:
		raw, err := bson.MarshalExtJSON(bson.M{"v": v}, false, false)
		if err != nil {
			return fmt.Sprint(v)
		}
		// unwrap the helper document {"v":...}
		s := string(raw)
		return strings.TrimSuffix(strings.TrimPrefix(s, `{"v":`), "}")
	default:
		return StringifyValue(v)
	}
}
