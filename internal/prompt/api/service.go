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

// Package api exposes the canary engine over HTTP: the analyze pipeline,
// optimization, feedback, history, analytics, and release control endpoints,
// plus the middleware stack (request id, rate limit, metrics).
package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/canarylabs/promptcanary/internal/prompt"
	"github.com/canarylabs/promptcanary/internal/prompt/canary"
	"github.com/canarylabs/promptcanary/internal/prompt/llm"
	"github.com/canarylabs/promptcanary/internal/prompt/scoring"
)

// Validation errors surfaced to clients.
var (
	// ErrMissingPrompt is returned when an analyze request names neither a
	// prompt text nor a prompt id.
	ErrMissingPrompt = errors.New("prompt or prompt_id is required")

	// ErrInvalidRating is returned when a feedback rating is outside 1..5.
	ErrInvalidRating = errors.New("rating must be 1..5")

	// ErrResponseMismatch is returned when a feedback response id does not
	// exist or belongs to a different prompt.
	ErrResponseMismatch = errors.New("response_id invalid for this prompt")
)

// defaultModelName tags responses recorded without a model name.
const defaultModelName = "unknown"

// PipelineStore is the slice of the store the analyze pipeline needs.
type PipelineStore interface {
	CreatePrompt(ctx context.Context, text string) (*prompt.Prompt, error)
	GetPrompt(ctx context.Context, id int64) (*prompt.Prompt, error)
	CreateResponse(ctx context.Context, r *prompt.Response) (*prompt.Response, error)
	GetResponse(ctx context.Context, id int64) (*prompt.Response, error)
	CreateEvaluation(ctx context.Context, ev *prompt.Evaluation) (*prompt.Evaluation, error)
	ListEvaluations(ctx context.Context, promptID int64, limit int) ([]*prompt.Evaluation, error)
	ListSuggestions(ctx context.Context, promptID int64, limit int) ([]*prompt.Suggestion, error)
	CreateFeedback(ctx context.Context, f *prompt.Feedback) (*prompt.Feedback, error)
}

// VersionSelector decides which version of a prompt serves one request.
type VersionSelector interface {
	ChooseVersion(ctx context.Context, promptID int64) (canary.Selection, error)
}

// JudgeCache stores judge results keyed by prompt/response pair. Any Get
// error counts as a miss.
type JudgeCache interface {
	GetJudgment(ctx context.Context, promptText, response string) (*llm.Judgment, error)
	SetJudgment(ctx context.Context, promptText, response string, j *llm.Judgment) error
}

// ServiceOption configures an AnalyzeService.
type ServiceOption func(*AnalyzeService)

// WithJudgeCache wires a judge result cache.
func WithJudgeCache(c JudgeCache) ServiceOption {
	return func(s *AnalyzeService) {
		s.cache = c
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(log logr.Logger) ServiceOption {
	return func(s *AnalyzeService) {
		s.log = log
	}
}

// AnalyzeService runs the evaluation pipeline: route, score, judge, persist.
// It also owns the feedback and history reads, which share its store slice.
type AnalyzeService struct {
	store  PipelineStore
	router VersionSelector
	judge  llm.Judge
	cache  JudgeCache
	log    logr.Logger
}

// NewAnalyzeService creates an AnalyzeService.
func NewAnalyzeService(store PipelineStore, router VersionSelector, judge llm.Judge, opts ...ServiceOption) *AnalyzeService {
	s := &AnalyzeService{
		store:  store,
		router: router,
		judge:  judge,
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnalyzeRequest is the analyze endpoint input. Exactly one of Prompt or
// PromptID is required; Response and the latency/token hints are optional.
type AnalyzeRequest struct {
	Prompt       string `json:"prompt,omitempty"`
	PromptID     int64  `json:"prompt_id,omitempty"`
	Response     string `json:"response,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	LatencyMS    int32  `json:"latency_ms,omitempty"`
	InputTokens  int32  `json:"input_tokens,omitempty"`
	OutputTokens int32  `json:"output_tokens,omitempty"`
}

// EvaluationResult is the scored outcome returned to the caller.
type EvaluationResult struct {
	ClarityScore  float64 `json:"clarity_score"`
	LengthScore   float64 `json:"length_score"`
	ToxicityScore float64 `json:"toxicity_score"`
	OverallScore  float64 `json:"overall_score"`
	Notes         string  `json:"notes"`
}

// AnalyzeResponse is the analyze endpoint output.
type AnalyzeResponse struct {
	PromptID   int64            `json:"prompt_id"`
	Evaluation EvaluationResult `json:"evaluation"`
}

// Analyze runs one evaluation pass: resolve or create the prompt, record the
// optional response, pick the serving version through the router, score the
// served text with heuristics and the judge, and persist the evaluation
// tagged with the served role.
func (s *AnalyzeService) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	text := strings.TrimSpace(req.Prompt)
	if req.PromptID == 0 && text == "" {
		return nil, ErrMissingPrompt
	}

	var p *prompt.Prompt
	var err error
	if req.PromptID != 0 {
		if p, err = s.store.GetPrompt(ctx, req.PromptID); err != nil {
			return nil, err
		}
	} else {
		if p, err = s.store.CreatePrompt(ctx, text); err != nil {
			return nil, fmt.Errorf("storing prompt: %w", err)
		}
	}

	var responseID int64
	respText := strings.TrimSpace(req.Response)
	if respText != "" {
		model := req.ModelName
		if model == "" {
			model = defaultModelName
		}
		row, err := s.store.CreateResponse(ctx, &prompt.Response{
			PromptID:     p.ID,
			ModelName:    model,
			Content:      respText,
			LatencyMS:    req.LatencyMS,
			InputTokens:  req.InputTokens,
			OutputTokens: req.OutputTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("storing response: %w", err)
		}
		responseID = row.ID
	}

	sel, err := s.router.ChooseVersion(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	servedText := sel.Text
	if servedText == "" {
		servedText = p.Text
	}

	scores := scoring.Heuristics(servedText)
	judgment := s.judgePrompt(ctx, servedText, respText)

	ev := &prompt.Evaluation{
		PromptID:      p.ID,
		ResponseID:    responseID,
		ClarityScore:  scores.Clarity,
		LengthScore:   scores.Length,
		ToxicityScore: scores.Toxicity,
		OverallScore:  scores.Overall(),
		Notes:         judgment.Notes,
		IsCanary:      sel.IsCanary,
	}
	if _, err := s.store.CreateEvaluation(ctx, ev); err != nil {
		return nil, fmt.Errorf("storing evaluation: %w", err)
	}

	s.log.V(1).Info("prompt analyzed",
		"promptID", p.ID, "overall", ev.OverallScore, "canary", ev.IsCanary)

	return &AnalyzeResponse{
		PromptID: p.ID,
		Evaluation: EvaluationResult{
			ClarityScore:  ev.ClarityScore,
			LengthScore:   ev.LengthScore,
			ToxicityScore: ev.ToxicityScore,
			OverallScore:  ev.OverallScore,
			Notes:         ev.Notes,
		},
	}, nil
}

// judgePrompt serves a judgment from the cache when possible, falling through
// to the judge. Fallback judgments are never cached by the cache provider.
func (s *AnalyzeService) judgePrompt(ctx context.Context, text, response string) *llm.Judgment {
	if s.cache != nil {
		if j, err := s.cache.GetJudgment(ctx, text, response); err == nil {
			return j
		}
	}

	j := s.judge.JudgePrompt(ctx, text, response)

	if s.cache != nil {
		if err := s.cache.SetJudgment(ctx, text, response, j); err != nil {
			s.log.Error(err, "judgment cache write failed")
		}
	}
	return j
}

// FeedbackRequest is the feedback endpoint input.
type FeedbackRequest struct {
	PromptID   int64  `json:"prompt_id"`
	ResponseID int64  `json:"response_id,omitempty"`
	Rating     int32  `json:"rating"`
	Comment    string `json:"comment,omitempty"`
}

// FeedbackAck confirms stored feedback.
type FeedbackAck struct {
	OK bool `json:"ok"`
}

// Feedback persists a human rating of a prompt or one of its responses. The
// response, when named, must belong to the rated prompt.
func (s *AnalyzeService) Feedback(ctx context.Context, req FeedbackRequest) (*FeedbackAck, error) {
	if _, err := s.store.GetPrompt(ctx, req.PromptID); err != nil {
		return nil, err
	}

	if req.ResponseID != 0 {
		resp, err := s.store.GetResponse(ctx, req.ResponseID)
		if errors.Is(err, prompt.ErrResponseNotFound) {
			return nil, ErrResponseMismatch
		}
		if err != nil {
			return nil, fmt.Errorf("loading response: %w", err)
		}
		if resp.PromptID != req.PromptID {
			return nil, ErrResponseMismatch
		}
	}

	if req.Rating < 1 || req.Rating > 5 {
		return nil, ErrInvalidRating
	}

	if _, err := s.store.CreateFeedback(ctx, &prompt.Feedback{
		PromptID:   req.PromptID,
		ResponseID: req.ResponseID,
		Rating:     req.Rating,
		Comment:    strings.TrimSpace(req.Comment),
	}); err != nil {
		return nil, fmt.Errorf("storing feedback: %w", err)
	}

	return &FeedbackAck{OK: true}, nil
}

// HistoryEvaluation is one scored pass in a prompt's history.
type HistoryEvaluation struct {
	Overall   float64   `json:"overall"`
	Clarity   float64   `json:"clarity"`
	Length    float64   `json:"length"`
	Toxicity  float64   `json:"toxicity"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// HistorySuggestion is one rewrite attempt in a prompt's history.
type HistorySuggestion struct {
	Text      string    `json:"text"`
	Rationale string    `json:"rationale"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse is the full evolution record of one prompt, newest first.
type HistoryResponse struct {
	Prompt      string              `json:"prompt"`
	Evaluations []HistoryEvaluation `json:"evaluations"`
	Suggestions []HistorySuggestion `json:"suggestions"`
}

// History returns a prompt's text with its complete evaluation and suggestion
// trails.
func (s *AnalyzeService) History(ctx context.Context, promptID int64) (*HistoryResponse, error) {
	p, err := s.store.GetPrompt(ctx, promptID)
	if err != nil {
		return nil, err
	}

	evals, err := s.store.ListEvaluations(ctx, promptID, 0)
	if err != nil {
		return nil, fmt.Errorf("listing evaluations: %w", err)
	}

	suggestions, err := s.store.ListSuggestions(ctx, promptID, 0)
	if err != nil {
		return nil, fmt.Errorf("listing suggestions: %w", err)
	}

	out := &HistoryResponse{
		Prompt:      p.Text,
		Evaluations: make([]HistoryEvaluation, 0, len(evals)),
		Suggestions: make([]HistorySuggestion, 0, len(suggestions)),
	}
	for _, e := range evals {
		out.Evaluations = append(out.Evaluations, HistoryEvaluation{
			Overall:   e.OverallScore,
			Clarity:   e.ClarityScore,
			Length:    e.LengthScore,
			Toxicity:  e.ToxicityScore,
			Notes:     e.Notes,
			CreatedAt: e.CreatedAt,
		})
	}
	for _, sg := range suggestions {
		out.Suggestions = append(out.Suggestions, HistorySuggestion{
			Text:      sg.SuggestedText,
			Rationale: sg.Rationale,
			CreatedAt: sg.CreatedAt,
		})
	}
	return out, nil
}
