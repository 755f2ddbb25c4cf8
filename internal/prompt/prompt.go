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

// Package prompt defines the domain model for versioned prompts, canary
// releases, and their evaluation trail.
package prompt

import "time"

// Prompt is the durable natural-language input to an LLM. Its text is
// immutable after creation and seeds version 1 of the release lineage.
type Prompt struct {
	// ID is the stable integer identifier.
	ID int64 `json:"id"`
	// Text is the original prompt text.
	Text string `json:"text"`
	// CreatedAt is when the prompt was first recorded.
	CreatedAt time.Time `json:"created_at"`
}

// Version is an immutable text revision of a prompt. Version numbers form a
// dense 1-based sequence per prompt and are unique within it.
type Version struct {
	// ID is the stable integer identifier.
	ID int64 `json:"id"`
	// PromptID is the owning prompt.
	PromptID int64 `json:"prompt_id"`
	// Version is the 1-based sequence number within the prompt.
	Version int32 `json:"version"`
	// Text is the revision text. Immutable once written.
	Text string `json:"text"`
	// IsActive reports whether this revision is the serving baseline.
	IsActive bool `json:"is_active"`
	// CreatedAt is when the revision was minted.
	CreatedAt time.Time `json:"created_at"`
}

// Release is the per-prompt serving record: which version is active, which
// (if any) is in canary, and what fraction of traffic the canary receives.
// Exactly one release exists per routed prompt; it is never deleted.
//
// CanaryVersionID is zero iff CanaryPercent is zero; the two fields are
// always written together.
type Release struct {
	// ID is the stable integer identifier.
	ID int64 `json:"id"`
	// PromptID is the owning prompt. Unique across releases.
	PromptID int64 `json:"prompt_id"`
	// ActiveVersionID is the baseline version receiving non-canary traffic.
	ActiveVersionID int64 `json:"active_version_id"`
	// CanaryVersionID is the candidate version, or zero when no canary is live.
	CanaryVersionID int64 `json:"canary_version_id,omitempty"`
	// CanaryPercent is the share of traffic routed to the canary, in [0,100].
	CanaryPercent int32 `json:"canary_percent"`
	// UpdatedAt is when the serving state last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCanary reports whether a canary version is currently receiving traffic.
func (r *Release) HasCanary() bool {
	return r.CanaryVersionID != 0 && r.CanaryPercent > 0
}

// Suggestion is a candidate rewrite of a prompt, produced by the optimizer
// and consumed by the release controller to mint a canary version.
type Suggestion struct {
	// ID is the stable integer identifier.
	ID int64 `json:"id"`
	// PromptID is the owning prompt.
	PromptID int64 `json:"prompt_id"`
	// SuggestedText is the rewritten prompt text.
	SuggestedText string `json:"suggested_text"`
	// Rationale explains why the rewrite was proposed.
	Rationale string `json:"rationale"`
	// CreatedAt is when the suggestion was stored.
	CreatedAt time.Time `json:"created_at"`
}

// Response is an externally produced model output recorded alongside an
// analyze call. Latency and token counts are optional caller-supplied hints.
type Response struct {
	// ID is the stable integer identifier.
	ID int64 `json:"id"`
	// PromptID is the owning prompt.
	PromptID int64 `json:"prompt_id"`
	// ModelName identifies the producing model ("unknown" when unspecified).
	ModelName string `json:"model_name"`
	// Content is the model output text.
	Content string `json:"content"`
	// LatencyMS is the generation latency in milliseconds, if known.
	LatencyMS int32 `json:"latency_ms,omitempty"`
	// InputTokens is the prompt token count, if known.
	InputTokens int32 `json:"input_tokens,omitempty"`
	// OutputTokens is the completion token count, if known.
	OutputTokens int32 `json:"output_tokens,omitempty"`
	// CreatedAt is when the response was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// Evaluation is the append-only outcome of one scoring pass over a served
// prompt. IsCanary records the role of the version that was actually served
// when the evaluation was produced.
type Evaluation struct {
	// ID is the stable integer identifier.
	ID int64 `json:"id"`
	// PromptID is the owning prompt.
	PromptID int64 `json:"prompt_id"`
	// ResponseID links the evaluated response, or zero when none was recorded.
	ResponseID int64 `json:"response_id,omitempty"`
	// ClarityScore is the heuristic clarity score in [0,1].
	ClarityScore float64 `json:"clarity_score"`
	// LengthScore is the heuristic length score in [0,1].
	LengthScore float64 `json:"length_score"`
	// ToxicityScore is the heuristic toxicity score in [0,1].
	ToxicityScore float64 `json:"toxicity_score"`
	// OverallScore is the combined score in [0,1], rounded to 3 decimals.
	OverallScore float64 `json:"overall_score"`
	// Notes carries the judge's improvement notes.
	Notes string `json:"notes"`
	// IsCanary reports whether the canary version was served for this pass.
	IsCanary bool `json:"is_canary"`
	// CreatedAt is when the evaluation was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// Feedback is a human rating of a prompt or one of its responses.
type Feedback struct {
	// ID is the stable integer identifier.
	ID int64 `json:"id"`
	// PromptID is the owning prompt.
	PromptID int64 `json:"prompt_id"`
	// ResponseID links a specific response, or zero for prompt-level feedback.
	ResponseID int64 `json:"response_id,omitempty"`
	// Rating is the human score, 1 (worst) to 5 (best).
	Rating int32 `json:"rating"`
	// Comment is free-form reviewer commentary.
	Comment string `json:"comment,omitempty"`
	// CreatedAt is when the feedback was stored.
	CreatedAt time.Time `json:"created_at"`
}

// RollbackEvent is the audit record emitted whenever a canary is cleared,
// automatically or manually. Append-only.
type RollbackEvent struct {
	// ID is the stable integer identifier.
	ID int64 `json:"id"`
	// PromptID is the owning prompt.
	PromptID int64 `json:"prompt_id"`
	// FromVersionID is the canary version that was withdrawn.
	FromVersionID int64 `json:"from_version_id"`
	// ToVersionID is the active version traffic returned to.
	ToVersionID int64 `json:"to_version_id"`
	// Reason records why the rollback happened.
	Reason string `json:"reason"`
	// CreatedAt is when the rollback committed.
	CreatedAt time.Time `json:"created_at"`
}

// RoleAverages aggregates windowed evaluation scores for one prompt,
// partitioned by the served role. Null overall scores count as zero.
type RoleAverages struct {
	// CanaryAvg is the mean overall score of canary-tagged evaluations.
	CanaryAvg float64 `json:"canary_avg"`
	// ActiveAvg is the mean overall score of active-tagged evaluations.
	ActiveAvg float64 `json:"active_avg"`
	// CanaryCount is the number of canary-tagged evaluations in the window.
	CanaryCount int `json:"canary_count"`
	// ActiveCount is the number of active-tagged evaluations in the window.
	ActiveCount int `json:"active_count"`
}

// ClampPercent clamps a requested canary percentage to [0,100].
func ClampPercent(pct int32) int32 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
