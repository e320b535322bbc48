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
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/readers"
)

// S3 stores one object per dataset below a key prefix.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	format Format
}

// NewS3 returns a connector on bucket/prefix.
func NewS3(client *s3.Client, bucket, prefix string, format Format) *S3 {
	return &S3{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), format: format}
}

// Key returns the object key of dataset name.
func (c *S3) Key(name string) string {
	return path.Join(c.prefix, name+c.format.Ext())
}

// Source implements Connector.
func (c *S3) Source(ctx context.Context, name string) (core.DataSource, error) {
	key := c.Key(name)
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, c.bucket, key)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", c.bucket, key, err)
	}
	return readers.ReaderForKey(out.Body, key)
}

// Sink implements Connector. The object is uploaded when the sink is closed.
func (c *S3) Sink(ctx context.Context, name string, header []string) (core.DataSink, error) {
	w := &objectWriter{ctx: ctx, client: c.client, bucket: c.bucket, key: c.Key(name)}
	return newStreamSink(w, c.format, header, 0)
}

// Names implements Connector.
func (c *S3) Names(ctx context.Context) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(c.bucket)}
	if c.prefix != "" {
		input.Prefix = aws.String(c.prefix + "/")
	}
	var names []string
	paginator := s3.NewListObjectsV2Paginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", c.bucket, c.prefix, err)
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), c.prefix+"/")
			if strings.Contains(rel, "/") {
				continue
			}
			if name, ok := hasExt(rel, c.format); ok {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close implements Connector.
func (c *S3) Close() error {
	return nil
}

// objectWriter buffers an object and uploads it on the first Close.
type objectWriter struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	buf    bytes.Buffer
	once   sync.Once
	err    error
}

func (w *objectWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *objectWriter) Close() error {
	w.once.Do(func() {
		_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
			Bucket: aws.String(w.bucket),
			Key:    aws.String(w.key),
			Body:   bytes.NewReader(w.buf.Bytes()),
		})
		if err != nil {
			w.err = fmt.Errorf("put s3://%s/%s: %w", w.bucket, w.key, err)
		}
	})
	return w.err
}
