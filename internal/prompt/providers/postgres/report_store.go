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

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/canarylabs/promptcanary/internal/prompt"
)

// --- ReportStore -------------------------------------------------------------

func (p *Provider) CountsSince(ctx context.Context, since time.Time) (*prompt.ReportCounts, error) {
	query := `SELECT
		(SELECT COUNT(*) FROM prompts WHERE created_at >= $1),
		(SELECT COUNT(*) FROM responses WHERE created_at >= $1),
		(SELECT COUNT(*) FROM evaluations WHERE created_at >= $1),
		(SELECT COUNT(*) FROM suggestions WHERE created_at >= $1)`

	var c prompt.ReportCounts
	err := p.pool.QueryRow(ctx, query, since).Scan(&c.Prompts, &c.Responses, &c.Evaluations, &c.Suggestions)
	if err != nil {
		return nil, fmt.Errorf("postgres: report counts: %w", err)
	}
	return &c, nil
}

func (p *Provider) ScoreAveragesSince(ctx context.Context, since time.Time) (*prompt.ScoreAverages, error) {
	query := `SELECT
		COALESCE(AVG(overall_score), 0),
		COALESCE(AVG(clarity_score), 0),
		COALESCE(AVG(length_score), 0)
	FROM evaluations WHERE created_at >= $1`

	var a prompt.ScoreAverages
	err := p.pool.QueryRow(ctx, query, since).Scan(&a.Overall, &a.Clarity, &a.Length)
	if err != nil {
		return nil, fmt.Errorf("postgres: score averages: %w", err)
	}
	return &a, nil
}

func (p *Provider) FeedbackStatsSince(ctx context.Context, since time.Time) (*prompt.FeedbackStats, error) {
	query := `SELECT COALESCE(AVG(rating), 0), COUNT(*) FROM feedback WHERE created_at >= $1`

	var s prompt.FeedbackStats
	err := p.pool.QueryRow(ctx, query, since).Scan(&s.AvgRating, &s.Count)
	if err != nil {
		return nil, fmt.Errorf("postgres: feedback stats: %w", err)
	}
	return &s, nil
}

func (p *Provider) RoleOverallSince(ctx context.Context, since time.Time) (canaryAvg, activeAvg float64, err error) {
	query := `SELECT
		COALESCE(AVG(overall_score) FILTER (WHERE is_canary), 0),
		COALESCE(AVG(overall_score) FILTER (WHERE NOT is_canary), 0)
	FROM evaluations WHERE created_at >= $1 AND overall_score IS NOT NULL`

	err = p.pool.QueryRow(ctx, query, since).Scan(&canaryAvg, &activeAvg)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: role overall averages: %w", err)
	}
	return canaryAvg, activeAvg, nil
}

func (p *Provider) CountRollbacksSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rollback_events WHERE created_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count rollbacks: %w", err)
	}
	return n, nil
}

func (p *Provider) LatestComparisonPairs(ctx context.Context, limit int) ([]*prompt.ComparisonPair, error) {
	// DISTINCT ON keeps only the newest suggestion per prompt.
	query := `SELECT prompt_id, prompt_text, suggested_text FROM (
		SELECT DISTINCT ON (s.prompt_id)
			s.prompt_id AS prompt_id, p.text AS prompt_text, s.suggested_text AS suggested_text,
			s.created_at AS suggested_at
		FROM suggestions s
		JOIN prompts p ON p.id = s.prompt_id
		ORDER BY s.prompt_id, s.created_at DESC, s.id DESC
	) latest ORDER BY suggested_at DESC LIMIT $1`

	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: latest comparison pairs: %w", err)
	}
	return collectRows(rows, func(row pgx.Row) (*prompt.ComparisonPair, error) {
		var pair prompt.ComparisonPair
		if err := row.Scan(&pair.PromptID, &pair.PromptText, &pair.SuggestedText); err != nil {
			return nil, fmt.Errorf("postgres: scan comparison pair: %w", err)
		}
		return &pair, nil
	}, "comparison pairs")
}
