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

// Package postgres implements the prompt.Store interfaces on PostgreSQL.
// Release mutations run inside transactions with a row lock on the release,
// so concurrent Release/Rollback/Check calls serialize per prompt.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/canarylabs/promptcanary/internal/prompt"
	"github.com/canarylabs/promptcanary/internal/pgutil"
)

// Compile-time interface check.
var _ prompt.Store = (*Provider)(nil)

// Provider implements prompt.Store using PostgreSQL.
type Provider struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// New creates a Provider that owns the underlying connection pool. The pool is
// created from cfg and verified with a PING. Close will shut down the pool.
func New(cfg Config) (*Provider, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("postgres: connection string is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing connection string: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	if cfg.TLS != nil {
		poolCfg.ConnConfig.TLSConfig = cfg.TLS
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping failed: %w", err)
	}

	return &Provider{pool: pool, ownsPool: true}, nil
}

// NewFromPool wraps an existing connection pool. Close is a no-op because the
// caller retains ownership of the pool.
func NewFromPool(pool *pgxpool.Pool) *Provider {
	return &Provider{pool: pool, ownsPool: false}
}

// Close shuts down the pool if this provider owns it.
func (p *Provider) Close() error {
	if p.ownsPool {
		p.pool.Close()
	}
	return nil
}

// --- transaction helpers ----------------------------------------------------

func (p *Provider) beginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin tx: %w", err)
	}
	return tx, nil
}

// isSerializationFailure reports whether err is a Postgres serialization
// failure or deadlock, the two conditions worth retrying once.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// withTxRetry runs fn inside a transaction, committing on success. A
// serialization failure is retried exactly once; everything else surfaces
// immediately with the transaction rolled back.
func (p *Provider) withTxRetry(ctx context.Context, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = p.runTx(ctx, fn)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (p *Provider) runTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.beginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// --- row scanners -----------------------------------------------------------

// Column lists for SELECTs (no trailing comma).
const (
	promptColumns     = `id, text, created_at`
	versionColumns    = `id, prompt_id, version, text, is_active, created_at`
	releaseColumns    = `id, prompt_id, active_version_id, canary_version_id, canary_percent, updated_at`
	suggestionColumns = `id, prompt_id, suggested_text, rationale, created_at`
	responseColumns   = `id, prompt_id, model_name, content, latency_ms, input_tokens, output_tokens, created_at`
	evaluationColumns = `id, prompt_id, response_id, clarity_score, length_score, toxicity_score, overall_score, notes, is_canary, created_at`
	feedbackColumns   = `id, prompt_id, response_id, rating, comment, created_at`
	rollbackColumns   = `id, prompt_id, from_version_id, to_version_id, reason, created_at`
)

func scanPrompt(row pgx.Row) (*prompt.Prompt, error) {
	var pr prompt.Prompt
	if err := row.Scan(&pr.ID, &pr.Text, &pr.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, prompt.ErrPromptNotFound
		}
		return nil, fmt.Errorf("postgres: scan prompt: %w", err)
	}
	return &pr, nil
}

func scanVersion(row pgx.Row) (*prompt.Version, error) {
	var v prompt.Version
	if err := row.Scan(&v.ID, &v.PromptID, &v.Version, &v.Text, &v.IsActive, &v.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, prompt.ErrVersionNotFound
		}
		return nil, fmt.Errorf("postgres: scan version: %w", err)
	}
	return &v, nil
}

func scanRelease(row pgx.Row) (*prompt.Release, error) {
	var r prompt.Release
	var activeID, canaryID *int64
	if err := row.Scan(&r.ID, &r.PromptID, &activeID, &canaryID, &r.CanaryPercent, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, prompt.ErrReleaseNotFound
		}
		return nil, fmt.Errorf("postgres: scan release: %w", err)
	}
	r.ActiveVersionID = pgutil.Int64OrZero(activeID)
	r.CanaryVersionID = pgutil.Int64OrZero(canaryID)
	return &r, nil
}

func scanSuggestion(row pgx.Row) (*prompt.Suggestion, error) {
	var s prompt.Suggestion
	if err := row.Scan(&s.ID, &s.PromptID, &s.SuggestedText, &s.Rationale, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, prompt.ErrSuggestionNotFound
		}
		return nil, fmt.Errorf("postgres: scan suggestion: %w", err)
	}
	return &s, nil
}

func scanResponse(row pgx.Row) (*prompt.Response, error) {
	var r prompt.Response
	var latency, inTokens, outTokens *int32
	err := row.Scan(&r.ID, &r.PromptID, &r.ModelName, &r.Content, &latency, &inTokens, &outTokens, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, prompt.ErrResponseNotFound
		}
		return nil, fmt.Errorf("postgres: scan response: %w", err)
	}
	r.LatencyMS = pgutil.Int32OrZero(latency)
	r.InputTokens = pgutil.Int32OrZero(inTokens)
	r.OutputTokens = pgutil.Int32OrZero(outTokens)
	return &r, nil
}

func scanEvaluation(row pgx.Row) (*prompt.Evaluation, error) {
	var ev prompt.Evaluation
	var responseID *int64
	var clarity, length, toxicity, overall *float64
	err := row.Scan(&ev.ID, &ev.PromptID, &responseID, &clarity, &length, &toxicity, &overall, &ev.Notes, &ev.IsCanary, &ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan evaluation: %w", err)
	}
	ev.ResponseID = pgutil.Int64OrZero(responseID)
	ev.ClarityScore = pgutil.Float64OrZero(clarity)
	ev.LengthScore = pgutil.Float64OrZero(length)
	ev.ToxicityScore = pgutil.Float64OrZero(toxicity)
	ev.OverallScore = pgutil.Float64OrZero(overall)
	return &ev, nil
}

func scanFeedback(row pgx.Row) (*prompt.Feedback, error) {
	var f prompt.Feedback
	var responseID *int64
	if err := row.Scan(&f.ID, &f.PromptID, &responseID, &f.Rating, &f.Comment, &f.CreatedAt); err != nil {
		return nil, fmt.Errorf("postgres: scan feedback: %w", err)
	}
	f.ResponseID = pgutil.Int64OrZero(responseID)
	return &f, nil
}

func scanRollback(row pgx.Row) (*prompt.RollbackEvent, error) {
	var e prompt.RollbackEvent
	var fromID, toID *int64
	if err := row.Scan(&e.ID, &e.PromptID, &fromID, &toID, &e.Reason, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("postgres: scan rollback event: %w", err)
	}
	e.FromVersionID = pgutil.Int64OrZero(fromID)
	e.ToVersionID = pgutil.Int64OrZero(toID)
	return &e, nil
}

// collectRows drains rows through scan, returning an empty slice rather than
// nil when nothing matched.
func collectRows[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error), what string) ([]*T, error) {
	defer rows.Close()

	out := []*T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate %s: %w", what, err)
	}
	return out, nil
}
