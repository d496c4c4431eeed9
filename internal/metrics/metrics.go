// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes the Prometheus counters and histograms the
// engine and cache backends update, plus an optional /metrics HTTP server.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quack_cache_hits_total",
		Help: "Cache hits per backend tier and target.",
	}, []string{"backend", "target"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quack_cache_misses_total",
		Help: "Cache misses per backend tier and target.",
	}, []string{"backend", "target"})

	BuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quack_build_duration_seconds",
		Help:    "Wall-clock duration of target build commands.",
		Buckets: prometheus.DefBuckets,
	}, []string{"target"})

	ArchiveBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quack_archive_bytes_total",
		Help: "Bytes written by the archiver, per direction.",
	}, []string{"direction"}) // "pack" or "extract"
)

// Serve starts a /metrics HTTP endpoint on addr and blocks until ctx is
// canceled. Call it from a goroutine, the same way the teacher's
// cmd/cie/index.go starts its metrics listener alongside the main work.
func Serve(ctx context.Context, addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics.http.start", "addr", addr, "path", "/metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics.http.error", "err", err)
	}
}
