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

package naming

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/aaronlmathis/gridetl/model"
)

// Package naming derives file, table and collection names from entity types.
//
// Entity types map to snake case ("LineTypeInput" -> "line_type_input"). Individual time
// series are persisted one per file as "its_<scheme>_<uuid>", where the scheme names the
// value kind ("p" for active power, "pq" for apparent power).

// ErrUnknownName is returned when a name does not belong to any known entity or series.
var ErrUnknownName = errors.New("unknown entity name")

// Value schemes of individual time series.
const (
	SchemeActivePower   = "p"
	SchemeApparentPower = "pq"
)

var schemes = map[reflect.Type]string{
	reflect.TypeOf((*model.PValue)(nil)).Elem(): SchemeActivePower,
	reflect.TypeOf((*model.SValue)(nil)).Elem(): SchemeApparentPower,
}

var timeSeriesPattern = regexp.MustCompile(`^its_([a-z]+)_([0-9a-fA-F-]{36})$`)

// Strategy builds persistence names with an optional prefix and suffix.
type Strategy struct {
	prefix string
	suffix string
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithPrefix prepends prefix and an underscore to every name.
func WithPrefix(prefix string) Option {
	return func(s *Strategy) { s.prefix = prefix }
}

// WithSuffix appends an underscore and suffix to every name.
func WithSuffix(suffix string) Option {
	return func(s *Strategy) { s.suffix = suffix }
}

// NewStrategy returns a naming strategy.
func NewStrategy(opts ...Option) *Strategy {
	s := &Strategy{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EntityName returns the persistence name of entity type t.
func (s *Strategy) EntityName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return s.wrap(SnakeCase(t.Name()))
}

// TimeSeriesName returns the persistence name of an individual time series.
func (s *Strategy) TimeSeriesName(ts model.TimeSeries) (string, error) {
	scheme, ok := schemes[ts.ValueType()]
	if !ok {
		return "", fmt.Errorf("%w: no scheme for time series values of %s", ErrUnknownName, ts.ValueType())
	}
	return s.wrap("its_" + scheme + "_" + ts.EntityUUID().String()), nil
}

// ParseTimeSeriesName splits a name produced by TimeSeriesName into its scheme and uuid.
func (s *Strategy) ParseTimeSeriesName(name string) (string, uuid.UUID, error) {
	name = s.unwrap(name)
	m := timeSeriesPattern.FindStringSubmatch(name)
	if m == nil {
		return "", uuid.Nil, fmt.Errorf("%w: %q is not a time series name", ErrUnknownName, name)
	}
	id, err := uuid.Parse(m[2])
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("%w: %q: %v", ErrUnknownName, name, err)
	}
	return m[1], id, nil
}

// ValueType returns the time series value type of a scheme.
func ValueType(scheme string) (reflect.Type, bool) {
	for t, s := range schemes {
		if s == scheme {
			return t, true
		}
	}
	return nil, false
}

func (s *Strategy) wrap(name string) string {
	if s.prefix != "" {
		name = s.prefix + "_" + name
	}
	if s.suffix != "" {
		name = name + "_" + s.suffix
	}
	return name
}

func (s *Strategy) unwrap(name string) string {
	if s.prefix != "" {
		name = strings.TrimPrefix(name, s.prefix+"_")
	}
	if s.suffix != "" {
		name = strings.TrimSuffix(name, "_"+s.suffix)
	}
	return name
}

// SnakeCase lower-cases s and joins its CamelCase tokens with underscores.
func SnakeCase(s string) string {
	tokens := Tokenize(s)
	for i, t := range tokens {
		tokens[i] = strings.ToLower(t)
	}
	return strings.Join(tokens, "_")
}

// Tokenize splits a CamelCase, camelCase or separated identifier into tokens.
//   - "LineTypeInput" -> ["Line", "Type", "Input"]
//   - "iAMag" -> ["i", "A", "Mag"]
//   - "HVNode" -> ["HV", "Node"]
func Tokenize(s string) []string {
	var (
		tokens  []string
		current strings.Builder
	)
	runes := []rune(s)
	for i, r := range runes {
		if isSeparator(r) {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			continue
		}
		if i > 0 && startsToken(runes, i) && current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func isSeparator(r rune) bool {
	return r == '_' || r == '-' || r == ' ' || r == '.'
}

func startsToken(runes []rune, i int) bool {
	r, prev := runes[i], runes[i-1]
	if !unicode.IsUpper(r) {
		return false
	}
	if !unicode.IsUpper(prev) {
		return true
	}
	// end of an acronym: "HVNode" splits before 'N'
	return i+1 < len(runes) && unicode.IsLower(runes[i+1])
}
