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

package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/canarylabs/promptcanary/pkg/logctx"
	"github.com/canarylabs/promptcanary/pkg/metrics"
)

// headerRequestID carries the request id to clients and upstream proxies.
const headerRequestID = "X-Request-ID"

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestIDMiddleware assigns each request a uuid (honoring a caller-supplied
// X-Request-ID), echoes it in the response, and stores it in the request
// context for log correlation.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)

		ctx := logctx.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitMiddleware rejects requests above the configured rate with a 429.
// The bucket is shared across all routes and callers: the limit protects the
// engine (and the LLM spend behind it), not per-client fairness.
func RateLimitMiddleware(requests int, window time.Duration, m metrics.HTTPMetricsRecorder, next http.Handler) http.Handler {
	if requests <= 0 || window <= 0 {
		return next
	}
	if m == nil {
		m = &metrics.NoOpHTTPMetrics{}
	}

	limiter := rate.NewLimiter(rate.Limit(float64(requests)/window.Seconds()), requests)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			m.RecordRateLimited()
			w.Header().Set(headerContentType, contentTypeJSON)
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"detail": "rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MetricsMiddleware records request counts, durations, and in-flight gauge.
// The route label uses the matched mux pattern so cardinality stays bounded.
func MetricsMiddleware(m *metrics.HTTPMetrics, next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.InFlight().Inc()
		defer m.InFlight().Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.RecordRequest(r.Method, route, rec.status, time.Since(start).Seconds())
	})
}
