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

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/gridetl/connector"
	"github.com/aaronlmathis/gridetl/core"
	"github.com/aaronlmathis/gridetl/naming"
)

// Parts of a grid dataset a job can copy.
const (
	partGrid       = "grid"
	partResults    = "results"
	partTimeSeries = "time_series"
)

// Job is a conversion job read from a YAML file.
type Job struct {
	Source connector.Config `yaml:"source"`
	Target connector.Config `yaml:"target"`

	Naming       NamingConfig  `yaml:"naming"`
	TargetNaming *NamingConfig `yaml:"target_naming,omitempty"`

	// Include lists the parts to copy. The default is the grid only.
	Include       []string  `yaml:"include,omitempty"`
	ErrorStrategy string    `yaml:"error_strategy,omitempty"`
	Concurrency   int       `yaml:"concurrency,omitempty"`
	Log           LogConfig `yaml:"log"`
}

// NamingConfig configures dataset names.
type NamingConfig struct {
	Prefix string `yaml:"prefix,omitempty"`
	Suffix string `yaml:"suffix,omitempty"`
}

// Strategy returns the naming strategy.
func (n NamingConfig) Strategy() *naming.Strategy {
	return naming.NewStrategy(naming.WithPrefix(n.Prefix), naming.WithSuffix(n.Suffix))
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn or error
	Format string `yaml:"format,omitempty"` // text or json
}

// LoadJob reads and validates the job file at path. Environment variables in the file
// are expanded, so secrets can stay out of it.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}
	return ParseJob(data)
}

// ParseJob parses and validates a job.
func ParseJob(data []byte) (*Job, error) {
	var job Job
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &job); err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}
	if len(job.Include) == 0 {
		job.Include = []string{partGrid}
	}
	var parts []string
	for _, part := range job.Include {
		if !slices.Contains(parts, part) {
			parts = append(parts, part)
		}
	}
	job.Include = parts
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// Validate checks the job.
func (j *Job) Validate() error {
	if err := j.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := j.Target.Validate(); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	if _, err := core.ParseErrorStrategy(j.ErrorStrategy); err != nil {
		return err
	}
	for _, part := range j.Include {
		switch part {
		case partGrid, partResults, partTimeSeries:
		default:
			return fmt.Errorf("unknown part %q in include", part)
		}
	}
	if _, err := j.Log.level(); err != nil {
		return err
	}
	return nil
}

func (j *Job) targetNaming() NamingConfig {
	if j.TargetNaming != nil {
		return *j.TargetNaming
	}
	return j.Naming
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return level, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

// Logger returns a logger writing to w.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	level, _ := l.level()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
