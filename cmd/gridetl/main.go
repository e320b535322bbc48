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

// Command gridetl copies a power grid dataset between storage backends.
//
// Usage:
//
//	gridetl -job job.yaml [-metrics-addr :9102]
//
// The job file names a source and a target connector (dir, s3, postgres or mongo), the
// parts to copy (grid, results, time_series) and the error strategy for bad records.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aaronlmathis/gridetl"
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	fs := flag.NewFlagSet("gridetl", flag.ContinueOnError)
	jobPath := fs.String("job", "", "path of the YAML job file")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *jobPath == "" {
		fmt.Fprintln(os.Stderr, "gridetl: -job is required")
		fs.Usage()
		return 2
	}

	job, err := LoadJob(*jobPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gridetl: %v\n", err)
		return 2
	}
	logger := job.Log.Logger(os.Stderr)

	reg := prometheus.NewRegistry()
	metrics, err := gridetl.NewMetrics(reg)
	if err != nil {
		logger.Error("register metrics", "error", err)
		return 1
	}
	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", "error", err)
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := newRunner(job, logger, metrics)
	if err != nil {
		logger.Error("invalid job", "error", err)
		return 2
	}
	if err := r.run(ctx); err != nil {
		var collected *gridetl.CollectedError
		if errors.As(err, &collected) {
			logger.Error("job finished with skipped records", "count", len(collected.Errors))
			for _, e := range collected.Errors {
				logger.Warn("skipped", "error", e)
			}
			return 1
		}
		logger.Error("job failed", "error", err)
		return 1
	}
	logger.Info("job finished")
	return 0
}
