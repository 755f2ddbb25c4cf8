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

// Package optimizer produces candidate prompt rewrites. The basic path feeds
// the latest evaluation notes to the LLM rewriter; the smart path analyzes
// the prompt's evaluation history, derives targeted rewrite strategies from
// it, and keeps a rewrite only when the judge predicts a real improvement.
package optimizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/canarylabs/promptcanary/internal/prompt"
	"github.com/canarylabs/promptcanary/internal/prompt/llm"
)

// ErrNoEvaluations is returned when a prompt has no evaluation history to
// analyze.
var ErrNoEvaluations = errors.New("no evaluation data available")

// defaultNotes guides the rewriter when a prompt has never been evaluated.
const defaultNotes = "Improve clarity; add constraints and success criteria."

// Store is the slice of the store the optimizer needs.
type Store interface {
	GetPrompt(ctx context.Context, id int64) (*prompt.Prompt, error)
	LatestEvaluation(ctx context.Context, promptID int64) (*prompt.Evaluation, error)
	ListEvaluations(ctx context.Context, promptID int64, limit int) ([]*prompt.Evaluation, error)
	ListFeedback(ctx context.Context, promptID int64, limit int) ([]*prompt.Feedback, error)
	CreateSuggestion(ctx context.Context, s *prompt.Suggestion) (*prompt.Suggestion, error)
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(o *Optimizer) {
		o.log = log
	}
}

// Optimizer turns evaluation history into suggested prompt rewrites.
type Optimizer struct {
	store    Store
	judge    llm.Judge
	rewriter llm.Rewriter
	log      logr.Logger
}

// New creates an Optimizer over the given store, judge, and rewriter.
func New(store Store, judge llm.Judge, rewriter llm.Rewriter, opts ...Option) *Optimizer {
	o := &Optimizer{
		store:    store,
		judge:    judge,
		rewriter: rewriter,
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OptimizeResult is the outcome of a basic optimization pass.
type OptimizeResult struct {
	PromptID      int64  `json:"prompt_id"`
	SuggestedText string `json:"suggested_text"`
}

// Optimize rewrites a prompt guided by its most recent evaluation notes and
// stores the result as a suggestion. Prompts with no evaluations are rewritten
// with generic guidance. Returns prompt.ErrPromptNotFound for unknown prompts.
func (o *Optimizer) Optimize(ctx context.Context, promptID int64) (*OptimizeResult, error) {
	p, err := o.store.GetPrompt(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("loading prompt: %w", err)
	}

	last, err := o.store.LatestEvaluation(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("loading latest evaluation: %w", err)
	}
	notes := defaultNotes
	if last != nil {
		notes = last.Notes
	}

	rewritten := o.rewriter.RewritePrompt(ctx, p.Text, notes)

	if _, err := o.store.CreateSuggestion(ctx, &prompt.Suggestion{
		PromptID:      promptID,
		SuggestedText: rewritten,
		Rationale:     notes,
	}); err != nil {
		return nil, fmt.Errorf("storing suggestion: %w", err)
	}

	o.log.V(1).Info("suggestion stored", "promptID", promptID)
	return &OptimizeResult{PromptID: promptID, SuggestedText: rewritten}, nil
}
