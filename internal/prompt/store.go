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
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations. Callers should match
// with errors.Is; implementations wrap these with provider detail.
var (
	// ErrPromptNotFound is returned when a prompt id resolves to nothing.
	ErrPromptNotFound = errors.New("prompt not found")

	// ErrVersionNotFound is returned when a version id resolves to nothing.
	ErrVersionNotFound = errors.New("prompt version not found")

	// ErrReleaseNotFound is returned when a prompt has no release record.
	ErrReleaseNotFound = errors.New("release not found")

	// ErrSuggestionNotFound is returned when a suggestion id resolves to
	// nothing, or a prompt has no suggestions at all.
	ErrSuggestionNotFound = errors.New("suggestion not found")

	// ErrResponseNotFound is returned when a response id resolves to nothing.
	ErrResponseNotFound = errors.New("response not found")

	// ErrNoCanary is returned by ClearCanary when the release has no live
	// canary to withdraw.
	ErrNoCanary = errors.New("no canary to rollback")
)

// PromptStore persists prompts.
type PromptStore interface {
	// CreatePrompt stores a new prompt and returns it with ID and
	// CreatedAt populated.
	CreatePrompt(ctx context.Context, text string) (*Prompt, error)

	// GetPrompt returns the prompt by id.
	// Returns ErrPromptNotFound if it does not exist.
	GetPrompt(ctx context.Context, id int64) (*Prompt, error)
}

// VersionStore persists prompt versions.
type VersionStore interface {
	// GetVersion returns the version by id.
	// Returns ErrVersionNotFound if it does not exist.
	GetVersion(ctx context.Context, id int64) (*Version, error)
}

// ReleaseStore persists per-prompt serving state. Mutating methods run in a
// single transaction and take a row lock on the release, so concurrent
// writers serialize per prompt.
type ReleaseStore interface {
	// GetRelease returns the release for a prompt.
	// Returns ErrReleaseNotFound if the prompt has never been routed.
	GetRelease(ctx context.Context, promptID int64) (*Release, error)

	// InitRelease creates version 1 from the prompt text and a release
	// pointing at it with no canary, then returns the release. If a release
	// already exists (including one created by a concurrent caller) it is
	// returned unchanged. Returns ErrPromptNotFound for unknown prompts.
	InitRelease(ctx context.Context, promptID int64) (*Release, error)

	// StageCanary mints the next version from text and installs it as the
	// canary at pct percent of traffic, replacing any previous canary
	// without recording a rollback. The version number is one past the
	// highest of the current active and canary versions. Returns the
	// updated release and the new version.
	// Returns ErrReleaseNotFound if the prompt has never been routed.
	StageCanary(ctx context.Context, promptID int64, text string, pct int32) (*Release, *Version, error)

	// ClearCanary withdraws the live canary, returns traffic to the active
	// version, and records a rollback event with the given reason, all in
	// one transaction. Returns ErrNoCanary when no canary is live and
	// ErrReleaseNotFound when the prompt has never been routed.
	ClearCanary(ctx context.Context, promptID int64, reason string) (*RollbackEvent, error)
}

// EvaluationStore persists the append-only evaluation trail.
type EvaluationStore interface {
	// CreateEvaluation stores an evaluation and returns it with ID and
	// CreatedAt populated.
	CreateEvaluation(ctx context.Context, ev *Evaluation) (*Evaluation, error)

	// LatestEvaluation returns the most recent evaluation for a prompt, or
	// (nil, nil) when the prompt has none.
	LatestEvaluation(ctx context.Context, promptID int64) (*Evaluation, error)

	// ListEvaluations returns evaluations for a prompt, newest first,
	// capped at limit (0 means no cap).
	ListEvaluations(ctx context.Context, promptID int64, limit int) ([]*Evaluation, error)

	// RoleAverages aggregates overall scores for a prompt since the given
	// time, partitioned by served role. Missing overall scores count as 0.
	RoleAverages(ctx context.Context, promptID int64, since time.Time) (*RoleAverages, error)
}

// SuggestionStore persists optimizer output.
type SuggestionStore interface {
	// CreateSuggestion stores a suggestion and returns it with ID and
	// CreatedAt populated.
	CreateSuggestion(ctx context.Context, s *Suggestion) (*Suggestion, error)

	// GetSuggestion returns the suggestion by id.
	// Returns ErrSuggestionNotFound if it does not exist.
	GetSuggestion(ctx context.Context, id int64) (*Suggestion, error)

	// LatestSuggestion returns the most recent suggestion for a prompt.
	// Returns ErrSuggestionNotFound when the prompt has none.
	LatestSuggestion(ctx context.Context, promptID int64) (*Suggestion, error)

	// ListSuggestions returns suggestions for a prompt, newest first,
	// capped at limit (0 means no cap).
	ListSuggestions(ctx context.Context, promptID int64, limit int) ([]*Suggestion, error)
}

// ResponseStore persists recorded model responses.
type ResponseStore interface {
	// CreateResponse stores a response and returns it with ID and
	// CreatedAt populated.
	CreateResponse(ctx context.Context, r *Response) (*Response, error)

	// GetResponse returns the response by id.
	// Returns ErrResponseNotFound if it does not exist.
	GetResponse(ctx context.Context, id int64) (*Response, error)
}

// FeedbackStore persists human ratings.
type FeedbackStore interface {
	// CreateFeedback stores a feedback record and returns it with ID and
	// CreatedAt populated.
	CreateFeedback(ctx context.Context, f *Feedback) (*Feedback, error)

	// ListFeedback returns feedback for a prompt, newest first, capped at
	// limit (0 means no cap).
	ListFeedback(ctx context.Context, promptID int64, limit int) ([]*Feedback, error)
}

// RollbackStore reads the rollback audit trail. Writes happen only through
// ReleaseStore.ClearCanary.
type RollbackStore interface {
	// ListRollbacks returns rollback events for a prompt, newest first,
	// capped at limit (0 means no cap).
	ListRollbacks(ctx context.Context, promptID int64, limit int) ([]*RollbackEvent, error)
}

// Store is the full persistence surface of the canary engine.
type Store interface {
	PromptStore
	VersionStore
	ReleaseStore
	EvaluationStore
	SuggestionStore
	ResponseStore
	FeedbackStore
	RollbackStore
	ReportStore
}
