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

package prompt

import (
	"context"
	"time"
)

// ReportCounts tallies rows created inside a report window.
type ReportCounts struct {
	Prompts     int64 `json:"prompts"`
	Responses   int64 `json:"responses"`
	Evaluations int64 `json:"evaluations"`
	Suggestions int64 `json:"suggestions"`
}

// ScoreAverages holds mean evaluation scores inside a report window. Rows
// with a missing score are skipped; an empty window averages to zero.
type ScoreAverages struct {
	Overall float64 `json:"overall_avg"`
	Clarity float64 `json:"clarity_avg"`
	Length  float64 `json:"length_avg"`
}

// FeedbackStats summarizes human ratings inside a report window.
type FeedbackStats struct {
	AvgRating float64 `json:"avg_rating"`
	Count     int64   `json:"ratings_count"`
}

// ComparisonPair couples a prompt's original text with its newest suggested
// rewrite, for win-rate sampling.
type ComparisonPair struct {
	PromptID      int64
	PromptText    string
	SuggestedText string
}

// ReportStore serves the cross-prompt aggregates behind the analytics report.
type ReportStore interface {
	// CountsSince counts prompts, responses, evaluations, and suggestions
	// created at or after since.
	CountsSince(ctx context.Context, since time.Time) (*ReportCounts, error)

	// ScoreAveragesSince averages overall, clarity, and length scores over
	// evaluations created at or after since.
	ScoreAveragesSince(ctx context.Context, since time.Time) (*ScoreAverages, error)

	// FeedbackStatsSince averages and counts ratings created at or after since.
	FeedbackStatsSince(ctx context.Context, since time.Time) (*FeedbackStats, error)

	// RoleOverallSince averages overall scores over evaluations created at
	// or after since, split by served role. Unlike RoleAverages this skips
	// rows with a missing score rather than counting them as zero.
	RoleOverallSince(ctx context.Context, since time.Time) (canaryAvg, activeAvg float64, err error)

	// CountRollbacksSince counts rollback events created at or after since.
	CountRollbacksSince(ctx context.Context, since time.Time) (int64, error)

	// LatestComparisonPairs returns up to limit prompts that have at least
	// one suggestion, each paired with its newest suggestion, ordered by
	// suggestion recency.
	LatestComparisonPairs(ctx context.Context, limit int) ([]*ComparisonPair, error)
}
