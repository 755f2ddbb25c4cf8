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

package canary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/canarylabs/promptcanary/internal/prompt/scoring"
	"github.com/canarylabs/promptcanary/pkg/metrics"
)

// DefaultWebhookTimeout bounds one webhook delivery attempt.
const DefaultWebhookTimeout = 5 * time.Second

// rollbackEventType is the type tag on the webhook payload.
const rollbackEventType = "prompt_canary_rollback"

// RollbackNotification carries what an automatic rollback tells the outside
// world.
type RollbackNotification struct {
	PromptID  int64
	Message   string
	CanaryAvg float64
	ActiveAvg float64
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithNotifierHTTPClient sets a custom HTTP client (useful for tests).
func WithNotifierHTTPClient(hc *http.Client) NotifierOption {
	return func(n *Notifier) {
		n.client = hc
	}
}

// WithNotifierMetrics sets the metrics recorder.
func WithNotifierMetrics(m metrics.CanaryMetricsRecorder) NotifierOption {
	return func(n *Notifier) {
		n.metrics = m
	}
}

// WithNotifierLogger sets the logger.
func WithNotifierLogger(log logr.Logger) NotifierOption {
	return func(n *Notifier) {
		n.log = log
	}
}

// Notifier delivers rollback webhooks on a best-effort basis. Delivery
// failures are logged and counted, never surfaced: a rollback that committed
// stays committed regardless of what the webhook endpoint does.
type Notifier struct {
	url     string
	client  *http.Client
	metrics metrics.CanaryMetricsRecorder
	log     logr.Logger
}

// NewNotifier creates a Notifier posting to url. An empty url disables
// delivery entirely.
func NewNotifier(url string, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		url:     url,
		client:  &http.Client{Timeout: DefaultWebhookTimeout},
		metrics: &metrics.NoOpCanaryMetrics{},
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// NotifyRollback posts the rollback payload to the configured URL. Averages
// are rounded to three decimals at this boundary. Any transport error or
// non-2xx response is swallowed with a warning log.
func (n *Notifier) NotifyRollback(ctx context.Context, ev RollbackNotification) {
	if !n.Enabled() {
		return
	}

	payload := struct {
		Type      string  `json:"type"`
		PromptID  int64   `json:"prompt_id"`
		Message   string  `json:"message"`
		CanaryAvg float64 `json:"canary_avg"`
		ActiveAvg float64 `json:"active_avg"`
	}{
		Type:      rollbackEventType,
		PromptID:  ev.PromptID,
		Message:   ev.Message,
		CanaryAvg: scoring.Round3(ev.CanaryAvg),
		ActiveAvg: scoring.Round3(ev.ActiveAvg),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error(err, "webhook payload marshal failed", "promptID", ev.PromptID)
		n.metrics.RecordWebhookDelivery(false)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultWebhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.log.Error(err, "webhook request creation failed", "promptID", ev.PromptID)
		n.metrics.RecordWebhookDelivery(false)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Error(err, "webhook delivery failed", "promptID", ev.PromptID, "url", n.url)
		n.metrics.RecordWebhookDelivery(false)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.log.Info("webhook rejected",
			"promptID", ev.PromptID, "url", n.url, "status", fmt.Sprintf("%d", resp.StatusCode))
		n.metrics.RecordWebhookDelivery(false)
		return
	}

	n.metrics.RecordWebhookDelivery(true)
	n.log.V(1).Info("webhook delivered", "promptID", ev.PromptID)
}
