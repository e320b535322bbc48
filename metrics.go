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

package gridetl

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Record outcomes counted by Metrics.
const (
	outcomeRead     = "read"
	outcomeFiltered = "filtered"
	outcomeBuilt    = "built"
	outcomeWritten  = "written"
	outcomeSkipped  = "skipped"
	outcomeFailed   = "failed"
)

// Metrics holds Prometheus metrics for pipelines. A nil *Metrics records nothing.
type Metrics struct {
	records  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates pipeline metrics and registers them with reg. A nil reg leaves the
// collectors unregistered, which is useful in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridetl_records_total",
				Help: "Records processed by pipelines, by outcome",
			},
			[]string{"pipeline", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gridetl_pipeline_duration_seconds",
				Help:    "Duration of pipeline runs",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"pipeline"},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.records, m.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) count(pipeline, outcome string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(pipeline, outcome).Inc()
}

func (m *Metrics) observe(pipeline string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(pipeline).Observe(d.Seconds())
}

// AddStats adds the counters of a finished run to the metrics of pipeline.
func (m *Metrics) AddStats(pipeline string, s Stats) {
	if m == nil {
		return
	}
	for outcome, n := range map[string]int{
		outcomeRead:     s.Read,
		outcomeFiltered: s.Filtered,
		outcomeBuilt:    s.Built,
		outcomeWritten:  s.Handled,
		outcomeFailed:   s.Failed,
	} {
		m.records.WithLabelValues(pipeline, outcome).Add(float64(n))
	}
	m.observe(pipeline, s.Duration)
}

// Collectors returns the underlying collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{m.records, m.duration}
}
