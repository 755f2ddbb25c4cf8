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

// Package llm provides the OpenAI-backed judge and rewriter used to score
// and optimize prompts. Both operations degrade to canned fallbacks instead
// of failing: callers always get usable data, and fallbacks are visible in
// logs, metrics, and traces.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/canarylabs/promptcanary/internal/tracing"
	"github.com/canarylabs/promptcanary/pkg/metrics"
)

// Defaults applied by NewClient for zero-valued config fields.
const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.2
	DefaultTimeout     = 30 * time.Second
)

// genAISystem is the gen_ai.system attribute value for spans.
const genAISystem = "openai"

const (
	judgeSystemPrompt = "You are a strict evaluator of LLM prompts. Respond ONLY with compact JSON."

	judgeUserTemplate = `Evaluate the following PROMPT (and RESPONSE if given).

PROMPT:
%s

RESPONSE:
%s

Return JSON with keys:
clarity_score (0-1), specificity_score (0-1), risk_of_hallucination (0-1), overall_score (0-1), notes (short).
`

	rewriteSystemPrompt = "Rewrite prompts to be concise, unambiguous, and outcome-oriented under 40 words. Return ONLY the rewritten prompt text."

	rewriteUserTemplate = "Original:\n%s\n\nConsiderations:\n%s"

	// defaultConsiderations is used when a rewrite is requested with no notes.
	defaultConsiderations = "Improve clarity and include success criteria."

	// fallbackNotes ships with the canned judgment.
	fallbackNotes = "Tighten wording; add explicit constraints and success criteria."

	// rewriteFallbackSuffix is appended to the trimmed original when the
	// rewriter cannot reach the model.
	rewriteFallbackSuffix = " (Rewrite: be specific, add constraints, measurable success criteria.)"
)

// Judgment is the structured result of judging a prompt. Scores are in [0,1]
// as reported by the model; missing keys decode to zero. Fallback marks the
// canned result served when the model was unreachable.
type Judgment struct {
	ClarityScore        float64 `json:"clarity_score"`
	SpecificityScore    float64 `json:"specificity_score"`
	RiskOfHallucination float64 `json:"risk_of_hallucination"`
	OverallScore        float64 `json:"overall_score"`
	Notes               string  `json:"notes"`
	Fallback            bool    `json:"-"`
}

// FallbackJudgment returns the canned judgment served when the model cannot
// be reached or returns an unusable shape.
func FallbackJudgment() *Judgment {
	return &Judgment{
		ClarityScore:        0.7,
		SpecificityScore:    0.6,
		RiskOfHallucination: 0.4,
		OverallScore:        0.65,
		Notes:               fallbackNotes,
		Fallback:            true,
	}
}

// Judge evaluates prompts. Implementations never fail: any upstream problem
// yields the canned fallback judgment.
type Judge interface {
	JudgePrompt(ctx context.Context, prompt, response string) *Judgment
}

// Rewriter rewrites prompts. Implementations never fail: any upstream
// problem yields the original text with a canned rewrite suffix.
type Rewriter interface {
	RewritePrompt(ctx context.Context, original, notes string) string
}

// Config holds client configuration. Zero values select the defaults above.
type Config struct {
	// APIKey authenticates against the chat completions API. When empty the
	// client serves fallbacks without attempting any call.
	APIKey string

	// BaseURL is the API root, without the trailing slash.
	BaseURL string

	// Model is the chat model to use.
	Model string

	// Temperature is the sampling temperature.
	Temperature float64

	// Timeout is the hard per-call time limit.
	Timeout time.Duration

	// MaxCallsPerSecond bounds the aggregate call rate.
	MaxCallsPerSecond int32

	// MaxConcurrentCalls bounds in-flight calls.
	MaxConcurrentCalls int32
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (useful for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.LLMMetricsRecorder) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracing sets the tracing provider.
func WithTracing(tp *tracing.Provider) Option {
	return func(c *Client) {
		c.tracing = tp
	}
}

// Client talks to the OpenAI chat completions API. A circuit breaker guards
// the upstream so a dead API short-circuits to fallbacks instead of burning
// the 30s timeout on every call.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	timeout     time.Duration

	limiter *RateLimiter
	breaker *gobreaker.CircuitBreaker[*chatResponse]

	metrics metrics.LLMMetricsRecorder
	tracing *tracing.Provider
	log     logr.Logger
}

// Compile-time interface checks.
var (
	_ Judge    = (*Client)(nil)
	_ Rewriter = (*Client)(nil)
)

// NewClient creates a Client with the given configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		httpClient:  &http.Client{},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		limiter:     NewRateLimiter(cfg.MaxCallsPerSecond, cfg.MaxConcurrentCalls),
		metrics:     &metrics.NoOpLLMMetrics{},
		log:         logr.Discard(),
	}

	c.breaker = gobreaker.NewCircuitBreaker[*chatResponse](gobreaker.Settings{
		Name:        "openai-chat",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Info("circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	for _, opt := range opts {
		opt(c)
	}

	if c.tracing == nil {
		// Disabled provider construction cannot fail.
		c.tracing, _ = tracing.NewProvider(context.Background(), tracing.Config{Enabled: false})
	}

	return c
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// JudgePrompt evaluates a prompt (and optional response) with the model.
// It never fails: when the API key is missing, the call errors out, or the
// model returns an unusable shape, the canned fallback judgment is served.
func (c *Client) JudgePrompt(ctx context.Context, prompt, response string) *Judgment {
	start := time.Now()
	ctx, span := c.tracing.StartLLMSpan(ctx, c.model, genAISystem)
	defer span.End()
	tracing.AddTextLengths(span, len(prompt), len(response))

	if c.apiKey == "" {
		return c.judgeFallback(span, start, "api key not configured", nil)
	}

	respText := response
	if respText == "" {
		respText = "(none)"
	}
	messages := []chatMessage{
		{Role: "system", Content: judgeSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(judgeUserTemplate, prompt, respText)},
	}

	out, err := c.chat(ctx, messages, true)
	if err != nil {
		return c.judgeFallback(span, start, "upstream call failed", err)
	}

	var payload struct {
		ClarityScore        float64 `json:"clarity_score"`
		SpecificityScore    float64 `json:"specificity_score"`
		RiskOfHallucination float64 `json:"risk_of_hallucination"`
		OverallScore        float64 `json:"overall_score"`
		Notes               *string `json:"notes"`
	}
	if err := json.Unmarshal([]byte(out.Choices[0].Message.Content), &payload); err != nil || payload.Notes == nil {
		return c.judgeFallback(span, start, "bad JSON shape", err)
	}

	c.annotateSpan(span, out)
	tracing.SetSuccess(span)
	c.metrics.RecordCall(metrics.LLMCallMetrics{
		Operation:       metrics.OperationJudge,
		DurationSeconds: time.Since(start).Seconds(),
	})

	return &Judgment{
		ClarityScore:        payload.ClarityScore,
		SpecificityScore:    payload.SpecificityScore,
		RiskOfHallucination: payload.RiskOfHallucination,
		OverallScore:        payload.OverallScore,
		Notes:               *payload.Notes,
	}
}

// RewritePrompt rewrites a prompt guided by improvement notes. It never
// fails: any upstream problem yields the trimmed original with a canned
// rewrite suffix appended.
func (c *Client) RewritePrompt(ctx context.Context, original, notes string) string {
	start := time.Now()
	ctx, span := c.tracing.StartLLMSpan(ctx, c.model, genAISystem)
	defer span.End()
	tracing.AddTextLengths(span, len(original), 0)

	if c.apiKey == "" {
		return c.rewriteFallback(span, start, original, "api key not configured", nil)
	}

	if notes == "" {
		notes = defaultConsiderations
	}
	messages := []chatMessage{
		{Role: "system", Content: rewriteSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(rewriteUserTemplate, original, notes)},
	}

	out, err := c.chat(ctx, messages, false)
	if err != nil {
		return c.rewriteFallback(span, start, original, "upstream call failed", err)
	}

	c.annotateSpan(span, out)
	tracing.SetSuccess(span)
	c.metrics.RecordCall(metrics.LLMCallMetrics{
		Operation:       metrics.OperationRewrite,
		DurationSeconds: time.Since(start).Seconds(),
	})

	return strings.TrimSpace(out.Choices[0].Message.Content)
}

func (c *Client) judgeFallback(span trace.Span, start time.Time, reason string, err error) *Judgment {
	if err != nil {
		tracing.RecordError(span, err)
		c.log.Error(err, "judge call failed, returning fallback scores", "reason", reason)
	} else {
		c.log.Info("judge unavailable, returning fallback scores", "reason", reason)
	}
	c.metrics.RecordCall(metrics.LLMCallMetrics{
		Operation:       metrics.OperationJudge,
		DurationSeconds: time.Since(start).Seconds(),
		Fallback:        true,
		HasError:        err != nil,
	})
	return FallbackJudgment()
}

func (c *Client) rewriteFallback(span trace.Span, start time.Time, original, reason string, err error) string {
	if err != nil {
		tracing.RecordError(span, err)
		c.log.Error(err, "rewrite call failed, returning fallback text", "reason", reason)
	} else {
		c.log.Info("rewriter unavailable, returning fallback text", "reason", reason)
	}
	c.metrics.RecordCall(metrics.LLMCallMetrics{
		Operation:       metrics.OperationRewrite,
		DurationSeconds: time.Since(start).Seconds(),
		Fallback:        true,
		HasError:        err != nil,
	})
	return strings.TrimSpace(original) + rewriteFallbackSuffix
}

func (c *Client) annotateSpan(span trace.Span, out *chatResponse) {
	tracing.AddResponseModel(span, out.Model)
	tracing.AddFinishReason(span, out.Choices[0].FinishReason)
	tracing.AddLLMUsage(span, out.Usage.PromptTokens, out.Usage.CompletionTokens)
}

// chat performs one rate-limited, breaker-guarded chat completion call.
func (c *Client) chat(ctx context.Context, messages []chatMessage, jsonObject bool) (*chatResponse, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.breaker.Execute(func() (*chatResponse, error) {
		return c.doChat(ctx, messages, jsonObject)
	})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) doChat(ctx context.Context, messages []chatMessage, jsonObject bool) (*chatResponse, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	}
	if jsonObject {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	buf, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}
	return &out, nil
}

// readAPIError extracts the upstream error message from a non-200 response.
func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("openai: %s: %s", resp.Status, apiErr.Error.Message)
	}
	return fmt.Errorf("openai: unexpected status %s", resp.Status)
}
