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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/canarylabs/promptcanary/internal/prompt"
	"github.com/canarylabs/promptcanary/pkg/metrics"
)

// Sentinel errors surfaced by the controller. The HTTP layer maps them to
// client-facing status codes.
var (
	// ErrNoSuggestions is returned by Release when a prompt has no
	// suggestions to mint a canary version from.
	ErrNoSuggestions = errors.New("no suggestions exist for this prompt")

	// ErrSuggestionMismatch is returned by Release when the named suggestion
	// belongs to a different prompt.
	ErrSuggestionMismatch = errors.New("suggestion does not belong to this prompt")
)

// Defaults for the health check decision.
const (
	DefaultMinSamples = 30
	DefaultThreshold  = 0.55
	DefaultWindowDays = 30

	// DefaultCheckTimeout bounds the detached health check spawned after a
	// release; it is independent of the releasing request's deadline.
	DefaultCheckTimeout = 30 * time.Second

	// comparisonEpsilon guards the rollback comparison against float noise:
	// the canary average must be below the cutoff by more than this.
	comparisonEpsilon = 1e-9
)

// ControllerStore is the slice of the store the controller needs.
type ControllerStore interface {
	GetPrompt(ctx context.Context, id int64) (*prompt.Prompt, error)
	GetVersion(ctx context.Context, id int64) (*prompt.Version, error)
	GetRelease(ctx context.Context, promptID int64) (*prompt.Release, error)
	InitRelease(ctx context.Context, promptID int64) (*prompt.Release, error)
	StageCanary(ctx context.Context, promptID int64, text string, pct int32) (*prompt.Release, *prompt.Version, error)
	ClearCanary(ctx context.Context, promptID int64, reason string) (*prompt.RollbackEvent, error)
	GetSuggestion(ctx context.Context, id int64) (*prompt.Suggestion, error)
	LatestSuggestion(ctx context.Context, promptID int64) (*prompt.Suggestion, error)
	RoleAverages(ctx context.Context, promptID int64, since time.Time) (*prompt.RoleAverages, error)
	ListRollbacks(ctx context.Context, promptID int64, limit int) ([]*prompt.RollbackEvent, error)
}

// ControllerConfig carries the health check defaults, usually sourced from
// the environment at startup.
type ControllerConfig struct {
	// MinSamples is the minimum canary evaluation count before a rollback
	// decision is allowed. Default 30.
	MinSamples int
	// Threshold is the fraction of active performance the canary must hold,
	// in (0,1]. Default 0.55.
	Threshold float64
	// WindowDays is the evaluation aggregation window. Default 30.
	WindowDays int
	// CheckTimeout bounds detached health checks. Default 30s.
	CheckTimeout time.Duration
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		c.Threshold = DefaultThreshold
	}
	if c.WindowDays <= 0 {
		c.WindowDays = DefaultWindowDays
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = DefaultCheckTimeout
	}
	return c
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithNotifier sets the rollback webhook notifier.
func WithNotifier(n *Notifier) ControllerOption {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithControllerMetrics sets the metrics recorder.
func WithControllerMetrics(m metrics.CanaryMetricsRecorder) ControllerOption {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithControllerLogger sets the logger.
func WithControllerLogger(log logr.Logger) ControllerOption {
	return func(c *Controller) {
		c.log = log
	}
}

// WithClock replaces the time source for tests.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller owns every mutation of a prompt's release state: staging a
// canary from a suggestion, the windowed health check, and rollback. All
// store mutations it triggers are atomic and serialized per prompt by the
// store's row lock.
type Controller struct {
	store    ControllerStore
	cfg      ControllerConfig
	notifier *Notifier
	metrics  metrics.CanaryMetricsRecorder
	log      logr.Logger
	now      func() time.Time
}

// NewController creates a Controller over the given store.
func NewController(store ControllerStore, cfg ControllerConfig, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:   store,
		cfg:     cfg.withDefaults(),
		metrics: &metrics.NoOpCanaryMetrics{},
		log:     logr.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReleaseStatus describes the serving state after a release.
type ReleaseStatus struct {
	PromptID      int64 `json:"prompt_id"`
	ActiveVersion int32 `json:"active_version"`
	CanaryVersion int32 `json:"canary_version"`
	CanaryPercent int32 `json:"canary_percent"`
}

// Release mints a new version from a suggestion and stages it as the canary
// at the requested percentage (clamped to [0,100]).
//
// When suggestionID is zero the prompt's most recent suggestion is used. The
// release record is bootstrapped from the prompt text if the prompt has never
// been routed. A detached health check runs after the release commits; it
// never blocks the caller.
func (c *Controller) Release(ctx context.Context, promptID, suggestionID int64, percent int32) (*ReleaseStatus, error) {
	if _, err := c.store.GetPrompt(ctx, promptID); err != nil {
		return nil, err
	}

	sugg, err := c.resolveSuggestion(ctx, promptID, suggestionID)
	if err != nil {
		return nil, err
	}

	if _, err := c.store.GetRelease(ctx, promptID); errors.Is(err, prompt.ErrReleaseNotFound) {
		if _, err := c.store.InitRelease(ctx, promptID); err != nil {
			return nil, fmt.Errorf("bootstrapping release: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("loading release: %w", err)
	}

	release, version, err := c.store.StageCanary(ctx, promptID, sugg.SuggestedText, prompt.ClampPercent(percent))
	if err != nil {
		return nil, fmt.Errorf("staging canary: %w", err)
	}

	active, err := c.store.GetVersion(ctx, release.ActiveVersionID)
	if err != nil {
		return nil, fmt.Errorf("loading active version: %w", err)
	}

	c.metrics.RecordRelease()
	c.log.Info("canary staged",
		"promptID", promptID, "canaryVersion", version.Version, "percent", release.CanaryPercent)

	c.scheduleCheck(ctx, promptID)

	return &ReleaseStatus{
		PromptID:      promptID,
		ActiveVersion: active.Version,
		CanaryVersion: version.Version,
		CanaryPercent: release.CanaryPercent,
	}, nil
}

// resolveSuggestion picks the suggestion to release: the named one when
// suggestionID is non-zero, otherwise the prompt's most recent.
func (c *Controller) resolveSuggestion(ctx context.Context, promptID, suggestionID int64) (*prompt.Suggestion, error) {
	if suggestionID != 0 {
		sugg, err := c.store.GetSuggestion(ctx, suggestionID)
		if err != nil {
			return nil, err
		}
		if sugg.PromptID != promptID {
			return nil, ErrSuggestionMismatch
		}
		return sugg, nil
	}

	sugg, err := c.store.LatestSuggestion(ctx, promptID)
	if errors.Is(err, prompt.ErrSuggestionNotFound) {
		return nil, ErrNoSuggestions
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest suggestion: %w", err)
	}
	return sugg, nil
}

// scheduleCheck spawns the post-release health check, detached from the
// releasing request's deadline but still carrying its values.
func (c *Controller) scheduleCheck(ctx context.Context, promptID int64) {
	detached := context.WithoutCancel(ctx)
	go func() {
		checkCtx, cancel := context.WithTimeout(detached, c.cfg.CheckTimeout)
		defer cancel()

		result, err := c.Check(checkCtx, promptID, CheckOptions{})
		if err != nil {
			c.log.Error(err, "post-release canary check failed", "promptID", promptID)
			return
		}
		c.log.V(1).Info("post-release canary check done",
			"promptID", promptID, "rolledBack", result.RolledBack, "reason", result.Reason)
	}()
}

// Rollback manually withdraws the live canary, recording an audit event. No
// webhook is emitted: a manual rollback is user-initiated and already
// observable. A second call returns prompt.ErrNoCanary and changes nothing.
func (c *Controller) Rollback(ctx context.Context, promptID int64, reason string) (*prompt.RollbackEvent, error) {
	if reason == "" {
		reason = "manual rollback"
	}

	event, err := c.store.ClearCanary(ctx, promptID, reason)
	if errors.Is(err, prompt.ErrReleaseNotFound) {
		return nil, prompt.ErrNoCanary
	}
	if err != nil {
		return nil, err
	}

	c.metrics.RecordRollback(metrics.TriggerManual)
	c.log.Info("canary rolled back manually", "promptID", promptID, "reason", reason)
	return event, nil
}

// CheckOptions overrides the controller's configured decision parameters for
// a single check. Zero values keep the configured defaults.
type CheckOptions struct {
	MinSamples int
	Threshold  float64
	WindowDays int
}

// CheckResult is the outcome of one canary health check.
type CheckResult struct {
	Checked       bool    `json:"checked"`
	RolledBack    bool    `json:"rolled_back"`
	Reason        string  `json:"reason"`
	CanaryAvg     float64 `json:"canary_avg"`
	ActiveAvg     float64 `json:"active_avg"`
	CanarySamples int     `json:"canary_samples"`
	ActiveSamples int     `json:"active_samples"`
}

// Check runs the canary health decision for one prompt.
//
// With no live canary it reports nothing to do. With fewer canary samples in
// the window than the minimum it defers. Otherwise the canary is rolled back
// iff its windowed average falls below the threshold fraction of the active
// average; the rollback commits the audit event and the release mutation in
// one transaction, then emits a best-effort webhook.
func (c *Controller) Check(ctx context.Context, promptID int64, opts CheckOptions) (*CheckResult, error) {
	minSamples := opts.MinSamples
	if minSamples <= 0 {
		minSamples = c.cfg.MinSamples
	}
	threshold := opts.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = c.cfg.Threshold
	}
	windowDays := opts.WindowDays
	if windowDays <= 0 {
		windowDays = c.cfg.WindowDays
	}

	release, err := c.store.GetRelease(ctx, promptID)
	if errors.Is(err, prompt.ErrReleaseNotFound) {
		c.metrics.RecordCheck(metrics.CheckOutcomeNoCanary)
		return &CheckResult{Checked: true, Reason: "no active canary"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading release: %w", err)
	}
	if !release.HasCanary() {
		c.metrics.RecordCheck(metrics.CheckOutcomeNoCanary)
		return &CheckResult{Checked: true, Reason: "no active canary"}, nil
	}

	since := c.now().AddDate(0, 0, -windowDays)
	agg, err := c.store.RoleAverages(ctx, promptID, since)
	if err != nil {
		return nil, fmt.Errorf("aggregating evaluations: %w", err)
	}

	result := &CheckResult{
		Checked:       true,
		CanaryAvg:     agg.CanaryAvg,
		ActiveAvg:     agg.ActiveAvg,
		CanarySamples: agg.CanaryCount,
		ActiveSamples: agg.ActiveCount,
	}

	if agg.CanaryCount < minSamples {
		result.Reason = fmt.Sprintf("insufficient samples: %d/%d", agg.CanaryCount, minSamples)
		c.metrics.RecordCheck(metrics.CheckOutcomeInsufficient)
		return result, nil
	}

	cutoff := agg.ActiveAvg * threshold
	if agg.CanaryAvg+comparisonEpsilon >= cutoff {
		result.Reason = "canary acceptable"
		c.metrics.RecordCheck(metrics.CheckOutcomeKeep)
		return result, nil
	}

	reason := fmt.Sprintf("auto-rollback: canary_avg %.3f < active_avg %.3f * threshold %.2f",
		agg.CanaryAvg, agg.ActiveAvg, threshold)

	if _, err := c.store.ClearCanary(ctx, promptID, reason); err != nil {
		// A concurrent rollback got there first; the canary is already gone.
		if errors.Is(err, prompt.ErrNoCanary) {
			result.Reason = "no active canary"
			c.metrics.RecordCheck(metrics.CheckOutcomeNoCanary)
			return result, nil
		}
		return nil, fmt.Errorf("rolling back canary: %w", err)
	}

	result.RolledBack = true
	result.Reason = reason
	c.metrics.RecordCheck(metrics.CheckOutcomeRollback)
	c.metrics.RecordRollback(metrics.TriggerAuto)
	c.log.Info("canary rolled back automatically", "promptID", promptID, "reason", reason)

	if c.notifier != nil {
		c.notifier.NotifyRollback(ctx, RollbackNotification{
			PromptID:  promptID,
			Message:   reason,
			CanaryAvg: agg.CanaryAvg,
			ActiveAvg: agg.ActiveAvg,
		})
	}

	return result, nil
}

// RollbackRecord is one entry of the rollback audit trail with version ids
// resolved to sequence numbers where the versions still exist.
type RollbackRecord struct {
	FromVersion int32     `json:"from_version"`
	ToVersion   int32     `json:"to_version"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// Status describes a prompt's current serving state.
type Status struct {
	PromptID      int64            `json:"prompt_id"`
	ActiveVersion int32            `json:"active_version"`
	CanaryVersion int32            `json:"canary_version,omitempty"`
	CanaryPercent int32            `json:"canary_percent"`
	Rollbacks     []RollbackRecord `json:"recent_rollbacks"`
}

// Status reports the current active/canary versions, the traffic split, and
// the last five rollback events. Returns prompt.ErrReleaseNotFound for
// prompts that have never been routed or released.
func (c *Controller) Status(ctx context.Context, promptID int64) (*Status, error) {
	release, err := c.store.GetRelease(ctx, promptID)
	if err != nil {
		return nil, err
	}

	st := &Status{PromptID: promptID, CanaryPercent: release.CanaryPercent}

	if st.ActiveVersion, err = c.versionNumber(ctx, release.ActiveVersionID); err != nil {
		return nil, err
	}
	if st.CanaryVersion, err = c.versionNumber(ctx, release.CanaryVersionID); err != nil {
		return nil, err
	}

	events, err := c.store.ListRollbacks(ctx, promptID, 5)
	if err != nil {
		return nil, fmt.Errorf("listing rollbacks: %w", err)
	}

	st.Rollbacks = make([]RollbackRecord, 0, len(events))
	for _, ev := range events {
		rec := RollbackRecord{Reason: ev.Reason, CreatedAt: ev.CreatedAt}
		if rec.FromVersion, err = c.versionNumber(ctx, ev.FromVersionID); err != nil {
			return nil, err
		}
		if rec.ToVersion, err = c.versionNumber(ctx, ev.ToVersionID); err != nil {
			return nil, err
		}
		st.Rollbacks = append(st.Rollbacks, rec)
	}
	return st, nil
}

// versionNumber resolves a version id to its sequence number, tolerating ids
// that are zero or point at manually deleted versions.
func (c *Controller) versionNumber(ctx context.Context, id int64) (int32, error) {
	if id == 0 {
		return 0, nil
	}
	v, err := c.store.GetVersion(ctx, id)
	if errors.Is(err, prompt.ErrVersionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading version %d: %w", id, err)
	}
	return v.Version, nil
}
