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

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics holds Prometheus metrics for the API surface.
// The route label carries the registered pattern (e.g. "/prompts/{id}/release"),
// never the raw request path, to keep cardinality bounded.
type HTTPMetrics struct {
	// RequestsTotal counts requests by method, route, and status code.
	RequestsTotal *prometheus.CounterVec

	// RequestDuration tracks request handling duration in seconds.
	RequestDuration *prometheus.HistogramVec

	// RequestsInFlight gauges currently executing requests.
	RequestsInFlight prometheus.Gauge

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal prometheus.Counter
}

// DefaultHTTPDurationBuckets are histogram buckets for request durations.
// Most endpoints answer in milliseconds; analyze and release calls wait on
// the LLM and can take tens of seconds.
var DefaultHTTPDurationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewHTTPMetrics creates and registers HTTP metrics using the default registry.
func NewHTTPMetrics() *HTTPMetrics {
	return NewHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewHTTPMetricsWithRegisterer creates HTTP metrics registered against the
// given Prometheus registerer. Use prometheus.NewRegistry() in tests for isolation.
func NewHTTPMetricsWithRegisterer(reg prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(reg)
	return &HTTPMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "promptcanary_http_requests_total",
			Help: "Total HTTP requests by method, route, and status code",
		}, []string{"method", "route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "promptcanary_http_request_duration_seconds",
			Help:    "HTTP request handling duration in seconds",
			Buckets: DefaultHTTPDurationBuckets,
		}, []string{"method", "route"}),

		RequestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "promptcanary_http_requests_in_flight",
			Help: "Number of HTTP requests currently being handled",
		}),

		RateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "promptcanary_http_rate_limited_total",
			Help: "Total HTTP requests rejected by the rate limiter",
		}),
	}
}

// RecordRequest records one handled request.
func (m *HTTPMetrics) RecordRequest(method, route string, status int, seconds float64) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordRateLimited records one rejected request.
func (m *HTTPMetrics) RecordRateLimited() {
	m.RateLimitedTotal.Inc()
}

// InFlight returns the in-flight gauge for middleware use.
func (m *HTTPMetrics) InFlight() prometheus.Gauge {
	return m.RequestsInFlight
}

// HTTPMetricsRecorder is the interface for recording HTTP metrics.
// This allows for no-op implementations when metrics are disabled.
type HTTPMetricsRecorder interface {
	RecordRequest(method, route string, status int, seconds float64)
	RecordRateLimited()
}

// Ensure implementations satisfy the interface.
var (
	_ HTTPMetricsRecorder = (*HTTPMetrics)(nil)
	_ HTTPMetricsRecorder = (*NoOpHTTPMetrics)(nil)
)

// NoOpHTTPMetrics is a no-op implementation for when metrics are disabled.
type NoOpHTTPMetrics struct{}

// RecordRequest is a no-op implementation that intentionally does nothing.
func (n *NoOpHTTPMetrics) RecordRequest(_, _ string, _ int, _ float64) {}

// RecordRateLimited is a no-op implementation that intentionally does nothing.
func (n *NoOpHTTPMetrics) RecordRateLimited() {}
