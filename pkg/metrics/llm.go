/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics provides shared Prometheus metrics for canary components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label constants for metrics.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusFallback = "fallback"
)

// LLM operation label values.
const (
	OperationJudge   = "judge"
	OperationRewrite = "rewrite"
)

// LLMMetrics holds Prometheus metrics for LLM interactions.
// These metrics track judge and rewrite usage for cost analysis and to make
// fallback storms visible when the upstream API degrades.
type LLMMetrics struct {
	// RequestsTotal is the total number of LLM calls by operation and status.
	// Status "fallback" means the canned result was served instead of a
	// model response.
	RequestsTotal *prometheus.CounterVec

	// RequestDuration is the histogram of LLM call durations.
	RequestDuration *prometheus.HistogramVec

	// CacheHitsTotal is the total number of judge cache hits.
	CacheHitsTotal *prometheus.CounterVec

	// CacheMissesTotal is the total number of judge cache misses.
	CacheMissesTotal *prometheus.CounterVec
}

// LLMMetricsConfig configures the LLM metrics.
type LLMMetricsConfig struct {
	// Model is the configured model name, recorded as a constant label.
	Model string

	// Buckets for the request duration histogram.
	// If nil, defaults to standard LLM buckets.
	DurationBuckets []float64
}

// DefaultLLMDurationBuckets are the default histogram buckets for LLM call
// durations. Calls time out at 30s, so buckets stop there.
var DefaultLLMDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30}

// NewLLMMetrics creates and registers LLM metrics using the default registry.
func NewLLMMetrics(cfg LLMMetricsConfig) *LLMMetrics {
	return NewLLMMetricsWithRegisterer(prometheus.DefaultRegisterer, cfg)
}

// NewLLMMetricsWithRegisterer creates LLM metrics registered against the given
// Prometheus registerer. Use prometheus.NewRegistry() in tests for isolation.
func NewLLMMetricsWithRegisterer(reg prometheus.Registerer, cfg LLMMetricsConfig) *LLMMetrics {
	labels := prometheus.Labels{
		"model": cfg.Model,
	}

	buckets := cfg.DurationBuckets
	if buckets == nil {
		buckets = DefaultLLMDurationBuckets
	}

	factory := promauto.With(reg)
	return &LLMMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "promptcanary_llm_requests_total",
			Help:        "Total LLM calls by operation and status",
			ConstLabels: labels,
		}, []string{"operation", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "promptcanary_llm_request_duration_seconds",
			Help:        "LLM call duration in seconds",
			ConstLabels: labels,
			Buckets:     buckets,
		}, []string{"operation"}),

		CacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "promptcanary_llm_cache_hits_total",
			Help:        "Total judge cache hits",
			ConstLabels: labels,
		}, []string{"operation"}),

		CacheMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "promptcanary_llm_cache_misses_total",
			Help:        "Total judge cache misses",
			ConstLabels: labels,
		}, []string{"operation"}),
	}
}

// LLMCallMetrics contains the metrics for a single LLM call.
type LLMCallMetrics struct {
	Operation       string
	DurationSeconds float64
	Fallback        bool
	HasError        bool
}

// RecordCall records metrics for one LLM call.
func (m *LLMMetrics) RecordCall(c LLMCallMetrics) {
	status := StatusSuccess
	if c.Fallback {
		status = StatusFallback
	} else if c.HasError {
		status = StatusError
	}

	m.RequestsTotal.WithLabelValues(c.Operation, status).Inc()
	m.RequestDuration.WithLabelValues(c.Operation).Observe(c.DurationSeconds)
}

// RecordCacheHit records one judge cache hit.
func (m *LLMMetrics) RecordCacheHit(operation string) {
	m.CacheHitsTotal.WithLabelValues(operation).Inc()
}

// RecordCacheMiss records one judge cache miss.
func (m *LLMMetrics) RecordCacheMiss(operation string) {
	m.CacheMissesTotal.WithLabelValues(operation).Inc()
}

// LLMMetricsRecorder is the interface for recording LLM metrics.
// This allows for no-op implementations when metrics are disabled.
type LLMMetricsRecorder interface {
	RecordCall(c LLMCallMetrics)
	RecordCacheHit(operation string)
	RecordCacheMiss(operation string)
}

// Ensure implementations satisfy the interface.
var (
	_ LLMMetricsRecorder = (*LLMMetrics)(nil)
	_ LLMMetricsRecorder = (*NoOpLLMMetrics)(nil)
)

// NoOpLLMMetrics is a no-op implementation for when metrics are disabled.
type NoOpLLMMetrics struct{}

// RecordCall is a no-op implementation that intentionally does nothing.
func (n *NoOpLLMMetrics) RecordCall(_ LLMCallMetrics) {}

// RecordCacheHit is a no-op implementation that intentionally does nothing.
func (n *NoOpLLMMetrics) RecordCacheHit(_ string) {}

// RecordCacheMiss is a no-op implementation that intentionally does nothing.
func (n *NoOpLLMMetrics) RecordCacheMiss(_ string) {}
