// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_requests_total",
			Help: "Total requests handled, by surface and status code",
		},
		[]string{"surface", "status"},
	)

	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_request_duration_seconds",
			Help:    "Request latency by surface",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"surface"},
	)

	promBlockedRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_blocked_requests_total",
			Help: "Requests blocked by policy (sensitive data or budget)",
		},
	)

	promUpstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_upstream_calls_total",
			Help: "Upstream provider calls by model",
		},
		[]string{"model"},
	)

	promTokensProxied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_tokens_proxied_total",
			Help: "Tokens proxied through the engine, by model and direction",
		},
		[]string{"model", "direction"},
	)
)

func init() {
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
	prometheus.MustRegister(promBlockedRequests)
	prometheus.MustRegister(promUpstreamCalls)
	prometheus.MustRegister(promTokensProxied)
}

// statusRecorder captures the response code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE handlers keep streaming behind the recorder
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// metricsMiddleware records request counts and latency per surface
func metricsMiddleware(surface string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			promRequestsTotal.WithLabelValues(surface, strconv.Itoa(rec.status)).Inc()
			promRequestDuration.WithLabelValues(surface).Observe(time.Since(start).Seconds())
		})
	}
}
