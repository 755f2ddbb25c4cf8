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

	"github.com/jackc/pgx/v5"

	"github.com/canarylabs/promptcanary/internal/prompt"
)

// Release mutations follow one shape: begin a transaction, lock the release
// row with SELECT ... FOR UPDATE, apply the read-modify-write, commit. The
// lock serializes concurrent Release/Rollback/Check calls on the same prompt
// so no caller ever observes half-applied canary state.

func (p *Provider) GetRelease(ctx context.Context, promptID int64) (*prompt.Release, error) {
	query := `SELECT ` + releaseColumns + ` FROM prompt_releases WHERE prompt_id=$1`
	return scanRelease(p.pool.QueryRow(ctx, query, promptID))
}

func (p *Provider) InitRelease(ctx context.Context, promptID int64) (*prompt.Release, error) {
	var release *prompt.Release

	err := p.withTxRetry(ctx, func(tx pgx.Tx) error {
		// Lock the prompt row so two bootstrappers serialize; the second one
		// then sees the release the first created.
		var text string
		err := tx.QueryRow(ctx, `SELECT text FROM prompts WHERE id=$1 FOR UPDATE`, promptID).Scan(&text)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return prompt.ErrPromptNotFound
			}
			return fmt.Errorf("postgres: lock prompt: %w", err)
		}

		existing, err := scanRelease(tx.QueryRow(ctx,
			`SELECT `+releaseColumns+` FROM prompt_releases WHERE prompt_id=$1`, promptID))
		if err == nil {
			release = existing
			return nil
		}
		if !errors.Is(err, prompt.ErrReleaseNotFound) {
			return err
		}

		v1, err := scanVersion(tx.QueryRow(ctx,
			`INSERT INTO prompt_versions (prompt_id, version, text, is_active)
			 VALUES ($1, 1, $2, TRUE) RETURNING `+versionColumns, promptID, text))
		if err != nil {
			return fmt.Errorf("postgres: create version 1: %w", err)
		}

		release, err = scanRelease(tx.QueryRow(ctx,
			`INSERT INTO prompt_releases (prompt_id, active_version_id, canary_version_id, canary_percent)
			 VALUES ($1, $2, NULL, 0) RETURNING `+releaseColumns, promptID, v1.ID))
		if err != nil {
			return fmt.Errorf("postgres: create release: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return release, nil
}

func (p *Provider) StageCanary(ctx context.Context, promptID int64, text string, pct int32) (*prompt.Release, *prompt.Version, error) {
	pct = prompt.ClampPercent(pct)

	var (
		release *prompt.Release
		version *prompt.Version
	)

	err := p.withTxRetry(ctx, func(tx pgx.Tx) error {
		if _, err := p.lockRelease(ctx, tx, promptID); err != nil {
			return err
		}

		// New rewrites always outnumber every prior version of the prompt,
		// including canaries withdrawn by earlier rollbacks. Anything
		// narrower collides with UNIQUE (prompt_id, version).
		var next int32
		err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM prompt_versions
			 WHERE prompt_id=$1`, promptID,
		).Scan(&next)
		if err != nil {
			return fmt.Errorf("postgres: next version number: %w", err)
		}

		version, err = scanVersion(tx.QueryRow(ctx,
			`INSERT INTO prompt_versions (prompt_id, version, text, is_active)
			 VALUES ($1, $2, $3, FALSE) RETURNING `+versionColumns, promptID, next, text))
		if err != nil {
			return fmt.Errorf("postgres: create canary version: %w", err)
		}

		release, err = scanRelease(tx.QueryRow(ctx,
			`UPDATE prompt_releases SET canary_version_id=$2, canary_percent=$3, updated_at=now()
			 WHERE prompt_id=$1 RETURNING `+releaseColumns, promptID, version.ID, pct))
		if err != nil {
			return fmt.Errorf("postgres: stage canary: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return release, version, nil
}

func (p *Provider) ClearCanary(ctx context.Context, promptID int64, reason string) (*prompt.RollbackEvent, error) {
	var event *prompt.RollbackEvent

	err := p.withTxRetry(ctx, func(tx pgx.Tx) error {
		locked, err := p.lockRelease(ctx, tx, promptID)
		if err != nil {
			return err
		}
		if !locked.HasCanary() {
			return prompt.ErrNoCanary
		}

		event, err = scanRollback(tx.QueryRow(ctx,
			`INSERT INTO rollback_events (prompt_id, from_version_id, to_version_id, reason)
			 VALUES ($1, $2, $3, $4) RETURNING `+rollbackColumns,
			promptID, locked.CanaryVersionID, locked.ActiveVersionID, reason))
		if err != nil {
			return fmt.Errorf("postgres: create rollback event: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE prompt_releases SET canary_version_id=NULL, canary_percent=0, updated_at=now()
			 WHERE prompt_id=$1`, promptID)
		if err != nil {
			return fmt.Errorf("postgres: clear canary: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// lockRelease reads the release row under FOR UPDATE inside tx.
func (p *Provider) lockRelease(ctx context.Context, tx pgx.Tx, promptID int64) (*prompt.Release, error) {
	return scanRelease(tx.QueryRow(ctx,
		`SELECT `+releaseColumns+` FROM prompt_releases WHERE prompt_id=$1 FOR UPDATE`, promptID))
}
