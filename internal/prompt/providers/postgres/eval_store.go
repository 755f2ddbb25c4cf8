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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/canarylabs/promptcanary/internal/pgutil"
	"github.com/canarylabs/promptcanary/internal/prompt"
)

// --- EvaluationStore ---------------------------------------------------------

func (p *Provider) CreateEvaluation(ctx context.Context, ev *prompt.Evaluation) (*prompt.Evaluation, error) {
	query := `INSERT INTO evaluations
		(prompt_id, response_id, clarity_score, length_score, toxicity_score, overall_score, notes, is_canary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING ` + evaluationColumns
	out, err := scanEvaluation(p.pool.QueryRow(ctx, query,
		ev.PromptID, pgutil.NullInt64(ev.ResponseID),
		ev.ClarityScore, ev.LengthScore, ev.ToxicityScore, ev.OverallScore,
		ev.Notes, ev.IsCanary,
	))
	if err != nil {
		return nil, fmt.Errorf("postgres: create evaluation: %w", err)
	}
	return out, nil
}

func (p *Provider) LatestEvaluation(ctx context.Context, promptID int64) (*prompt.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations
		WHERE prompt_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`
	ev, err := scanEvaluation(p.pool.QueryRow(ctx, query, promptID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ev, nil
}

func (p *Provider) ListEvaluations(ctx context.Context, promptID int64, limit int) ([]*prompt.Evaluation, error) {
	qb := &pgutil.QueryBuilder{}
	qb.Add("prompt_id=$?", promptID)
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE 1=1` +
		qb.Where() + ` ORDER BY created_at DESC, id DESC`
	query = qb.AppendPagination(query, limit, 0)

	rows, err := p.pool.Query(ctx, query, qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list evaluations: %w", err)
	}
	return collectRows(rows, scanEvaluation, "evaluations")
}

// RoleAverages aggregates windowed overall scores partitioned by served role.
// Missing overall scores count as zero so a broken scoring run drags the
// average down instead of silently vanishing from the comparison.
func (p *Provider) RoleAverages(ctx context.Context, promptID int64, since time.Time) (*prompt.RoleAverages, error) {
	query := `SELECT
		COALESCE(AVG(COALESCE(overall_score, 0)) FILTER (WHERE is_canary), 0),
		COALESCE(AVG(COALESCE(overall_score, 0)) FILTER (WHERE NOT is_canary), 0),
		COUNT(*) FILTER (WHERE is_canary),
		COUNT(*) FILTER (WHERE NOT is_canary)
	FROM evaluations
	WHERE prompt_id=$1 AND created_at >= $2`

	var agg prompt.RoleAverages
	err := p.pool.QueryRow(ctx, query, promptID, since).Scan(
		&agg.CanaryAvg, &agg.ActiveAvg, &agg.CanaryCount, &agg.ActiveCount,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: role averages: %w", err)
	}
	return &agg, nil
}
