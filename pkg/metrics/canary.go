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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Routing role label values.
const (
	RoleActive = "active"
	RoleCanary = "canary"
)

// Canary check outcome label values.
const (
	CheckOutcomeRollback     = "rollback"
	CheckOutcomeKeep         = "keep"
	CheckOutcomeInsufficient = "insufficient_samples"
	CheckOutcomeNoCanary     = "no_canary"
)

// Rollback trigger label values.
const (
	TriggerAuto   = "auto"
	TriggerManual = "manual"
)

// CanaryMetrics holds Prometheus metrics for the release engine.
// Labels are low-cardinality only (role, outcome, trigger). Per-prompt
// dimensions belong in OTel traces, not metric labels.
type CanaryMetrics struct {
	// RoutesTotal counts routing decisions by served role.
	RoutesTotal *prometheus.CounterVec

	// ReleasesTotal counts canary versions staged for traffic.
	ReleasesTotal prometheus.Counter

	// ChecksTotal counts canary checks by outcome.
	ChecksTotal *prometheus.CounterVec

	// RollbacksTotal counts rollbacks by trigger.
	RollbacksTotal *prometheus.CounterVec

	// WebhookDeliveriesTotal counts rollback webhook deliveries by status.
	WebhookDeliveriesTotal *prometheus.CounterVec
}

// NewCanaryMetrics creates and registers canary metrics using the default registry.
func NewCanaryMetrics() *CanaryMetrics {
	return NewCanaryMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCanaryMetricsWithRegisterer creates canary metrics registered against the
// given Prometheus registerer. Use prometheus.NewRegistry() in tests for isolation.
func NewCanaryMetricsWithRegisterer(reg prometheus.Registerer) *CanaryMetrics {
	factory := promauto.With(reg)
	return &CanaryMetrics{
		RoutesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "promptcanary_routes_total",
			Help: "Total routing decisions by served role",
		}, []string{"role"}),

		ReleasesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "promptcanary_releases_total",
			Help: "Total canary versions staged for traffic",
		}),

		ChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "promptcanary_checks_total",
			Help: "Total canary checks by outcome",
		}, []string{"outcome"}),

		RollbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "promptcanary_rollbacks_total",
			Help: "Total canary rollbacks by trigger",
		}, []string{"trigger"}),

		WebhookDeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "promptcanary_webhook_deliveries_total",
			Help: "Total rollback webhook deliveries by status",
		}, []string{"status"}),
	}
}

// RecordRoute records one routing decision.
func (m *CanaryMetrics) RecordRoute(role string) {
	m.RoutesTotal.WithLabelValues(role).Inc()
}

// RecordRelease records one staged canary.
func (m *CanaryMetrics) RecordRelease() {
	m.ReleasesTotal.Inc()
}

// RecordCheck records one canary check outcome.
func (m *CanaryMetrics) RecordCheck(outcome string) {
	m.ChecksTotal.WithLabelValues(outcome).Inc()
}

// RecordRollback records one rollback by trigger.
func (m *CanaryMetrics) RecordRollback(trigger string) {
	m.RollbacksTotal.WithLabelValues(trigger).Inc()
}

// RecordWebhookDelivery records one webhook delivery attempt.
func (m *CanaryMetrics) RecordWebhookDelivery(success bool) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	m.WebhookDeliveriesTotal.WithLabelValues(status).Inc()
}

// CanaryMetricsRecorder is the interface for recording release engine metrics.
// This allows for no-op implementations when metrics are disabled.
type CanaryMetricsRecorder interface {
	RecordRoute(role string)
	RecordRelease()
	RecordCheck(outcome string)
	RecordRollback(trigger string)
	RecordWebhookDelivery(success bool)
}

// Ensure implementations satisfy the interface.
var (
	_ CanaryMetricsRecorder = (*CanaryMetrics)(nil)
	_ CanaryMetricsRecorder = (*NoOpCanaryMetrics)(nil)
)

// NoOpCanaryMetrics is a no-op implementation for when metrics are disabled.
type NoOpCanaryMetrics struct{}

// RecordRoute is a no-op implementation that intentionally does nothing.
func (n *NoOpCanaryMetrics) RecordRoute(_ string) {}

// RecordRelease is a no-op implementation that intentionally does nothing.
func (n *NoOpCanaryMetrics) RecordRelease() {}

// RecordCheck is a no-op implementation that intentionally does nothing.
func (n *NoOpCanaryMetrics) RecordCheck(_ string) {}

// RecordRollback is a no-op implementation that intentionally does nothing.
func (n *NoOpCanaryMetrics) RecordRollback(_ string) {}

// RecordWebhookDelivery is a no-op implementation that intentionally does nothing.
func (n *NoOpCanaryMetrics) RecordWebhookDelivery(_ bool) {}
