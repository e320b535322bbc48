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
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/aaronlmathis/gridetl/readers"
	"github.com/aaronlmathis/gridetl/writers"
)

// Config describes a connector in a job file.
type Config struct {
	Kind      string `yaml:"kind"` // dir, s3, postgres or mongo
	Format    string `yaml:"format,omitempty"`
	BatchSize int    `yaml:"batch_size,omitempty"`
	// Replace truncates tables and drops collections before writing.
	Replace bool `yaml:"replace,omitempty"`
	// OnConflict is "error", "ignore" or "update" for rows with an existing uuid.
	OnConflict string `yaml:"on_conflict,omitempty"`

	Path  string `yaml:"path,omitempty"`
	Comma string `yaml:"comma,omitempty"`

	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Profile   string `yaml:"profile,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`

	DSN    string `yaml:"dsn,omitempty"`
	Schema string `yaml:"schema,omitempty"`

	URI      string        `yaml:"uri,omitempty"`
	Database string        `yaml:"database,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// Validate checks that the fields required by Kind are set.
func (c Config) Validate() error {
	if _, err := ParseFormat(c.Format); err != nil {
		return err
	}
	if _, err := parseConflict(c.OnConflict); err != nil {
		return err
	}
	if len([]rune(c.Comma)) > 1 {
		return fmt.Errorf("comma must be a single character, got %q", c.Comma)
	}
	switch c.Kind {
	case "dir":
		if c.Path == "" {
			return fmt.Errorf("dir connector: path is required")
		}
	case "s3":
		if c.Bucket == "" {
			return fmt.Errorf("s3 connector: bucket is required")
		}
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("postgres connector: dsn is required")
		}
	case "mongo":
		if c.Database == "" {
			return fmt.Errorf("mongo connector: database is required")
		}
	default:
		return fmt.Errorf("unknown connector kind %q", c.Kind)
	}
	return nil
}

func parseConflict(s string) (writers.ConflictResolution, error) {
	switch s {
	case "", "error":
		return writers.ConflictError, nil
	case "ignore":
		return writers.ConflictIgnore, nil
	case "update":
		return writers.ConflictUpdate, nil
	default:
		return 0, fmt.Errorf("unknown conflict resolution %q", s)
	}
}

// Open creates the connector described by c.
func Open(ctx context.Context, c Config) (Connector, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	format, _ := ParseFormat(c.Format)
	conflict, _ := parseConflict(c.OnConflict)

	switch c.Kind {
	case "dir":
		opts := []DirOption{WithFormat(format)}
		if c.Comma != "" {
			opts = append(opts, WithComma([]rune(c.Comma)[0]))
		}
		return NewDir(c.Path, opts...)

	case "s3":
		client, err := readers.NewS3Client(ctx, readers.S3ClientOptions{
			Region:         c.Region,
			Profile:        c.Profile,
			EndpointURL:    c.Endpoint,
			ForcePathStyle: c.PathStyle,
			Credentials:    aws.Credentials{AccessKeyID: c.AccessKey, SecretAccessKey: c.SecretKey},
		})
		if err != nil {
			return nil, err
		}
		return NewS3(client, c.Bucket, c.Prefix, format), nil

	case "postgres":
		opts := []PostgresOption{WithPostgresConflict(conflict), WithPostgresReplace(c.Replace)}
		if c.BatchSize > 0 {
			opts = append(opts, WithPostgresBatchSize(c.BatchSize))
		}
		return OpenPostgres(ctx, c.DSN, c.Schema, opts...)

	default: // mongo
		conn := readers.DefaultMongoConnOptions()
		if c.URI != "" {
			conn.URI = c.URI
		}
		if c.Timeout > 0 {
			conn.Timeout = c.Timeout
		}
		opts := []MongoOption{WithMongoUpsert(conflict == writers.ConflictUpdate), WithMongoReplace(c.Replace)}
		if c.BatchSize > 0 {
			opts = append(opts, WithMongoBatchSize(c.BatchSize))
		}
		return ConnectMongo(ctx, conn, c.Database, opts...)
	}
}
