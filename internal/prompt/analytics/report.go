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

// Package analytics computes the windowed cross-prompt report: counts, score
// averages, human feedback stats, the judged optimized-vs-original win rate,
// and a canary performance block. Reports are cached when a cache is wired.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/canarylabs/promptcanary/internal/prompt"
	"github.com/canarylabs/promptcanary/internal/prompt/llm"
	"github.com/canarylabs/promptcanary/internal/prompt/scoring"
)

// Defaults for report computation.
const (
	// DefaultWindowDays is the report window when none is requested.
	DefaultWindowDays = 30

	// DefaultMaxCompare caps how many prompt/suggestion pairs feed the
	// win-rate sample. Each pair costs two judge calls.
	DefaultMaxCompare = 20
)

// Cache stores computed reports keyed by window. Any Get error counts as a
// miss; Set failures are logged and ignored.
type Cache interface {
	GetReport(ctx context.Context, windowDays int, out any) error
	SetReport(ctx context.Context, windowDays int, report any) error
}

// Improvement is the judged win rate of latest suggestions over their
// original prompts.
type Improvement struct {
	WinRate float64 `json:"optimized_vs_original_win_rate"`
	Sampled int     `json:"sampled"`
}

// CanarySummary compares canary against active traffic across all prompts in
// the window.
type CanarySummary struct {
	AvgCanaryOverall   float64 `json:"avg_canary_overall"`
	AvgActiveOverall   float64 `json:"avg_active_overall"`
	NaiveCanaryWinRate float64 `json:"naive_canary_win_rate"`
	RollbacksInWindow  int64   `json:"rollbacks_in_window"`
}

// Report is the full windowed analytics report. All averages are rounded to
// three decimals at this boundary.
type Report struct {
	WindowDays  int                  `json:"window_days"`
	Counts      prompt.ReportCounts  `json:"counts"`
	Scores      prompt.ScoreAverages `json:"scores"`
	Improvement Improvement          `json:"improvement"`
	Canary      CanarySummary        `json:"canary"`
	Feedback    prompt.FeedbackStats `json:"feedback"`
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithCache wires a report cache.
func WithCache(c Cache) ReporterOption {
	return func(r *Reporter) {
		r.cache = c
	}
}

// WithMaxCompare overrides the win-rate sample cap.
func WithMaxCompare(n int) ReporterOption {
	return func(r *Reporter) {
		r.maxCompare = n
	}
}

// WithReporterLogger sets the logger.
func WithReporterLogger(log logr.Logger) ReporterOption {
	return func(r *Reporter) {
		r.log = log
	}
}

// WithClock replaces the wall clock for tests.
func WithClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) {
		r.now = now
	}
}

// Reporter computes windowed analytics reports over the whole store.
type Reporter struct {
	store      prompt.ReportStore
	judge      llm.Judge
	cache      Cache
	maxCompare int
	now        func() time.Time
	log        logr.Logger
}

// NewReporter creates a Reporter over the given store and judge.
func NewReporter(store prompt.ReportStore, judge llm.Judge, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		store:      store,
		judge:      judge,
		maxCompare: DefaultMaxCompare,
		now:        time.Now,
		log:        logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report computes the analytics report for the window. A non-positive window
// selects the default. Cached reports are served when fresh; a cache failure
// in either direction degrades to computing uncached.
func (r *Reporter) Report(ctx context.Context, windowDays int) (*Report, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	if r.cache != nil {
		var cached Report
		if err := r.cache.GetReport(ctx, windowDays, &cached); err == nil {
			r.log.V(1).Info("report served from cache", "windowDays", windowDays)
			return &cached, nil
		}
	}

	since := r.now().AddDate(0, 0, -windowDays)

	counts, err := r.store.CountsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("counting window rows: %w", err)
	}

	scores, err := r.store.ScoreAveragesSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("averaging scores: %w", err)
	}

	feedback, err := r.store.FeedbackStatsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("aggregating feedback: %w", err)
	}

	improvement, err := r.improvementWinRate(ctx)
	if err != nil {
		return nil, err
	}

	canarySum, err := r.canarySummary(ctx, since)
	if err != nil {
		return nil, err
	}

	report := &Report{
		WindowDays: windowDays,
		Counts:     *counts,
		Scores: prompt.ScoreAverages{
			Overall: scoring.Round3(scores.Overall),
			Clarity: scoring.Round3(scores.Clarity),
			Length:  scoring.Round3(scores.Length),
		},
		Improvement: improvement,
		Canary:      canarySum,
		Feedback: prompt.FeedbackStats{
			AvgRating: scoring.Round3(feedback.AvgRating),
			Count:     feedback.Count,
		},
	}

	if r.cache != nil {
		if err := r.cache.SetReport(ctx, windowDays, report); err != nil {
			r.log.Error(err, "report cache write failed", "windowDays", windowDays)
		}
	}

	return report, nil
}

// improvementWinRate judges each sampled prompt's latest suggestion against
// its original text and counts the suggestion wins.
func (r *Reporter) improvementWinRate(ctx context.Context) (Improvement, error) {
	pairs, err := r.store.LatestComparisonPairs(ctx, r.maxCompare)
	if err != nil {
		return Improvement{}, fmt.Errorf("sampling comparison pairs: %w", err)
	}

	wins, total := 0, 0
	for _, pair := range pairs {
		orig := r.judge.JudgePrompt(ctx, pair.PromptText, "")
		sug := r.judge.JudgePrompt(ctx, pair.SuggestedText, "")
		total++
		if sug.OverallScore > orig.OverallScore {
			wins++
		}
	}

	winRate := 0.0
	if total > 0 {
		winRate = float64(wins) / float64(total)
	}
	return Improvement{WinRate: scoring.Round3(winRate), Sampled: total}, nil
}

func (r *Reporter) canarySummary(ctx context.Context, since time.Time) (CanarySummary, error) {
	canaryAvg, activeAvg, err := r.store.RoleOverallSince(ctx, since)
	if err != nil {
		return CanarySummary{}, fmt.Errorf("averaging role scores: %w", err)
	}

	rollbacks, err := r.store.CountRollbacksSince(ctx, since)
	if err != nil {
		return CanarySummary{}, fmt.Errorf("counting rollbacks: %w", err)
	}

	winRate := 0.5
	switch {
	case canaryAvg > activeAvg:
		winRate = 1.0
	case canaryAvg < activeAvg:
		winRate = 0.0
	}

	return CanarySummary{
		AvgCanaryOverall:   scoring.Round3(canaryAvg),
		AvgActiveOverall:   scoring.Round3(activeAvg),
		NaiveCanaryWinRate: winRate,
		RollbacksInWindow:  rollbacks,
	}, nil
}
