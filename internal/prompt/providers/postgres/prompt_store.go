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

	"github.com/canarylabs/promptcanary/internal/pgutil"
	"github.com/canarylabs/promptcanary/internal/prompt"
)

// --- PromptStore -------------------------------------------------------------

func (p *Provider) CreatePrompt(ctx context.Context, text string) (*prompt.Prompt, error) {
	query := `INSERT INTO prompts (text) VALUES ($1) RETURNING ` + promptColumns
	pr, err := scanPrompt(p.pool.QueryRow(ctx, query, text))
	if err != nil {
		return nil, fmt.Errorf("postgres: create prompt: %w", err)
	}
	return pr, nil
}

func (p *Provider) GetPrompt(ctx context.Context, id int64) (*prompt.Prompt, error) {
	query := `SELECT ` + promptColumns + ` FROM prompts WHERE id=$1`
	return scanPrompt(p.pool.QueryRow(ctx, query, id))
}

// --- VersionStore ------------------------------------------------------------

func (p *Provider) GetVersion(ctx context.Context, id int64) (*prompt.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM prompt_versions WHERE id=$1`
	return scanVersion(p.pool.QueryRow(ctx, query, id))
}

// --- SuggestionStore ---------------------------------------------------------

func (p *Provider) CreateSuggestion(ctx context.Context, s *prompt.Suggestion) (*prompt.Suggestion, error) {
	query := `INSERT INTO suggestions (prompt_id, suggested_text, rationale)
		VALUES ($1, $2, $3) RETURNING ` + suggestionColumns
	out, err := scanSuggestion(p.pool.QueryRow(ctx, query, s.PromptID, s.SuggestedText, s.Rationale))
	if err != nil {
		return nil, fmt.Errorf("postgres: create suggestion: %w", err)
	}
	return out, nil
}

func (p *Provider) GetSuggestion(ctx context.Context, id int64) (*prompt.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE id=$1`
	return scanSuggestion(p.pool.QueryRow(ctx, query, id))
}

func (p *Provider) LatestSuggestion(ctx context.Context, promptID int64) (*prompt.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions
		WHERE prompt_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`
	return scanSuggestion(p.pool.QueryRow(ctx, query, promptID))
}

func (p *Provider) ListSuggestions(ctx context.Context, promptID int64, limit int) ([]*prompt.Suggestion, error) {
	qb := &pgutil.QueryBuilder{}
	qb.Add("prompt_id=$?", promptID)
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE 1=1` +
		qb.Where() + ` ORDER BY created_at DESC, id DESC`
	query = qb.AppendPagination(query, limit, 0)

	rows, err := p.pool.Query(ctx, query, qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list suggestions: %w", err)
	}
	return collectRows(rows, scanSuggestion, "suggestions")
}

// --- ResponseStore -----------------------------------------------------------

func (p *Provider) CreateResponse(ctx context.Context, r *prompt.Response) (*prompt.Response, error) {
	query := `INSERT INTO responses (prompt_id, model_name, content, latency_ms, input_tokens, output_tokens)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING ` + responseColumns
	out, err := scanResponse(p.pool.QueryRow(ctx, query,
		r.PromptID, r.ModelName, r.Content,
		pgutil.NullInt32(r.LatencyMS), pgutil.NullInt32(r.InputTokens), pgutil.NullInt32(r.OutputTokens),
	))
	if err != nil {
		return nil, fmt.Errorf("postgres: create response: %w", err)
	}
	return out, nil
}

func (p *Provider) GetResponse(ctx context.Context, id int64) (*prompt.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM responses WHERE id=$1`
	return scanResponse(p.pool.QueryRow(ctx, query, id))
}

// --- FeedbackStore -----------------------------------------------------------

func (p *Provider) CreateFeedback(ctx context.Context, f *prompt.Feedback) (*prompt.Feedback, error) {
	query := `INSERT INTO feedback (prompt_id, response_id, rating, comment)
		VALUES ($1, $2, $3, $4) RETURNING ` + feedbackColumns
	out, err := scanFeedback(p.pool.QueryRow(ctx, query,
		f.PromptID, pgutil.NullInt64(f.ResponseID), f.Rating, f.Comment,
	))
	if err != nil {
		return nil, fmt.Errorf("postgres: create feedback: %w", err)
	}
	return out, nil
}

func (p *Provider) ListFeedback(ctx context.Context, promptID int64, limit int) ([]*prompt.Feedback, error) {
	qb := &pgutil.QueryBuilder{}
	qb.Add("prompt_id=$?", promptID)
	query := `SELECT ` + feedbackColumns + ` FROM feedback WHERE 1=1` +
		qb.Where() + ` ORDER BY created_at DESC, id DESC`
	query = qb.AppendPagination(query, limit, 0)

	rows, err := p.pool.Query(ctx, query, qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list feedback: %w", err)
	}
	return collectRows(rows, scanFeedback, "feedback")
}

// --- RollbackStore -----------------------------------------------------------

func (p *Provider) ListRollbacks(ctx context.Context, promptID int64, limit int) ([]*prompt.RollbackEvent, error) {
	qb := &pgutil.QueryBuilder{}
	qb.Add("prompt_id=$?", promptID)
	query := `SELECT ` + rollbackColumns + ` FROM rollback_events WHERE 1=1` +
		qb.Where() + ` ORDER BY created_at DESC, id DESC`
	query = qb.AppendPagination(query, limit, 0)

	rows, err := p.pool.Query(ctx, query, qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rollback events: %w", err)
	}
	return collectRows(rows, scanRollback, "rollback events")
}
