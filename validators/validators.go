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

// validators.go - record and dataset quality checks run before entities are built
package validators

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/model"
)

// ErrQuality marks a dataset that failed a Quality check.
var ErrQuality = errors.New("data quality check failed")

// FieldType is the expected type of an attribute value.
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeInt    FieldType = "int"
	FieldTypeFloat  FieldType = "float"
	FieldTypeBool   FieldType = "bool"
	FieldTypeTime   FieldType = "time"
	FieldTypeUUID   FieldType = "uuid"
	FieldTypeAny    FieldType = "any"
)

// FieldRule restricts the values of one attribute. Blank values are nulls and are only
// checked by Required and Quality.
type FieldRule struct {
	Type    FieldType
	Pattern *regexp.Regexp
	Min     *float64
	Max     *float64
	Allowed []string
	Custom  func(string) error
}

// FieldError reports an attribute that broke a rule.
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("field %s value %q: %s", e.Field, e.Value, e.Reason)
}

// RecordValidator checks single records. It is safe for concurrent use once built.
type RecordValidator struct {
	required  []string
	forbidden []string
	rules     map[string]FieldRule
}

// Option configures a RecordValidator.
type Option func(*RecordValidator)

// WithRequired requires non-blank values for fields.
func WithRequired(fields ...string) Option {
	return func(v *RecordValidator) { v.required = append(v.required, fields...) }
}

// WithForbidden rejects records carrying any of fields.
func WithForbidden(fields ...string) Option {
	return func(v *RecordValidator) { v.forbidden = append(v.forbidden, fields...) }
}

// WithRule adds a rule for field.
func WithRule(field string, rule FieldRule) Option {
	return func(v *RecordValidator) { v.rules[field] = rule }
}

// New creates a RecordValidator.
func New(opts ...Option) *RecordValidator {
	v := &RecordValidator{rules: make(map[string]FieldRule)}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns every violation of r joined into one error, or nil. Field names match
// case-insensitively.
func (v *RecordValidator) Validate(r core.Record) error {
	var errs []error
	for _, field := range v.required {
		if value, ok := r.Lookup(field); !ok || value == "" {
			errs = append(errs, &FieldError{Field: field, Reason: "required"})
		}
	}
	for _, field := range v.forbidden {
		if _, ok := r.Lookup(field); ok {
			errs = append(errs, &FieldError{Field: field, Reason: "forbidden"})
		}
	}

	fields := make([]string, 0, len(v.rules))
	for field := range v.rules {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		value, ok := r.Lookup(field)
		if !ok || value == "" {
			continue
		}
		if err := v.rules[field].check(value); err != nil {
			errs = append(errs, &FieldError{Field: field, Value: value, Reason: err.Error()})
		}
	}
	return errors.Join(errs...)
}

func (rule FieldRule) check(value string) error {
	if err := checkType(value, rule.Type); err != nil {
		return err
	}
	if rule.Pattern != nil && !rule.Pattern.MatchString(value) {
		return fmt.Errorf("does not match %s", rule.Pattern)
	}
	if rule.Min != nil || rule.Max != nil {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("not a number")
		}
		if rule.Min != nil && f < *rule.Min {
			return fmt.Errorf("below minimum %g", *rule.Min)
		}
		if rule.Max != nil && f > *rule.Max {
			return fmt.Errorf("above maximum %g", *rule.Max)
		}
	}
	if len(rule.Allowed) > 0 && !slices.Contains(rule.Allowed, value) {
		return fmt.Errorf("not one of %s", strings.Join(rule.Allowed, ", "))
	}
	if rule.Custom != nil {
		return rule.Custom(value)
	}
	return nil
}

func checkType(value string, t FieldType) error {
	var err error
	switch t {
	case FieldTypeInt:
		_, err = strconv.ParseInt(value, 10, 64)
	case FieldTypeFloat:
		_, err = strconv.ParseFloat(value, 64)
	case FieldTypeBool:
		_, err = strconv.ParseBool(value)
	case FieldTypeTime:
		_, err = time.Parse(model.TimeLayout, value)
	case FieldTypeUUID:
		_, err = uuid.Parse(value)
	}
	if err != nil {
		return fmt.Errorf("not a valid %s", t)
	}
	return nil
}

// Float returns a pointer to f, for FieldRule bounds.
func Float(f float64) *float64 { return &f }

// Quality accumulates dataset level statistics and checks them once all records were
// seen. It is safe for concurrent use.
type Quality struct {
	// MinRecords and MaxRecords bound the number of observed records. Zero disables a bound.
	MinRecords int
	MaxRecords int
	// MaxNullRate is the highest allowed share of blank or missing values per field.
	// Zero disables the check.
	MaxNullRate float64

	mu      sync.Mutex
	records int
	present map[string]int
	nulls   map[string]int
}

// Observe adds r to the statistics.
func (q *Quality) Observe(r core.Record) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.present == nil {
		q.present = make(map[string]int)
		q.nulls = make(map[string]int)
	}
	q.records++
	for field, value := range r {
		q.present[field]++
		if value == "" {
			q.nulls[field]++
		}
	}
}

// Records returns the number of observed records.
func (q *Quality) Records() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.records
}

// NullRate returns the share of observed records in which field was blank or missing.
func (q *Quality) NullRate(field string) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nullRate(field)
}

func (q *Quality) nullRate(field string) float64 {
	if q.records == 0 {
		return 0
	}
	missing := q.records - q.present[field]
	return float64(q.nulls[field]+missing) / float64(q.records)
}

// Check returns an ErrQuality error listing every violated bound.
func (q *Quality) Check() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var problems []string
	if q.records < q.MinRecords {
		problems = append(problems, fmt.Sprintf("got %d records, need at least %d", q.records, q.MinRecords))
	}
	if q.MaxRecords > 0 && q.records > q.MaxRecords {
		problems = append(problems, fmt.Sprintf("got %d records, at most %d allowed", q.records, q.MaxRecords))
	}
	if q.MaxNullRate > 0 {
		fields := make([]string, 0, len(q.present))
		for field := range q.present {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			if rate := q.nullRate(field); rate > q.MaxNullRate {
				problems = append(problems, fmt.Sprintf("field %s has null rate %.2f, maximum %.2f", field, rate, q.MaxNullRate))
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrQuality, strings.Join(problems, "; "))
}
