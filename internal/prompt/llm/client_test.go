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

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeCompletion builds a chat completions response whose single choice
// carries the given content.
func fakeCompletion(content string) chatResponse {
	return chatResponse{
		ID:    "chatcmpl-test",
		Model: "gpt-4o-mini",
		Choices: []chatChoice{
			{Message: chatMessage{Role: "assistant", Content: content}, FinishReason: "stop"},
		},
		Usage: chatUsage{PromptTokens: 42, CompletionTokens: 17},
	}
}

// newFakeOpenAI serves canned completion content and records the last request
// body for assertions.
func newFakeOpenAI(t *testing.T, content string, lastReq *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q, want Bearer test-key", auth)
		}
		if lastReq != nil {
			if err := json.NewDecoder(r.Body).Decode(lastReq); err != nil {
				t.Errorf("decoding request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fakeCompletion(content))
	}))
}

func TestJudgePromptParsesModelJSON(t *testing.T) {
	var req chatRequest
	srv := newFakeOpenAI(t, `{"clarity_score":0.9,"specificity_score":0.8,"risk_of_hallucination":0.1,"overall_score":0.85,"notes":"solid prompt"}`, &req)
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})

	j := c.JudgePrompt(context.Background(), "Summarize this", "a response")
	if j.Fallback {
		t.Fatal("got fallback judgment from a healthy upstream")
	}
	if j.ClarityScore != 0.9 || j.OverallScore != 0.85 {
		t.Errorf("scores = %+v, want model values", j)
	}
	if j.Notes != "solid prompt" {
		t.Errorf("Notes = %q, want solid prompt", j.Notes)
	}

	if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
		t.Error("judge request missing json_object response format")
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Errorf("messages = %+v, want system + user", req.Messages)
	}
	if !strings.Contains(req.Messages[1].Content, "Summarize this") {
		t.Error("user message does not embed the prompt")
	}
}

func TestJudgePromptFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "upstream 500",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			},
		},
		{
			name: "non-JSON content",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(fakeCompletion("sorry, I cannot do that"))
			},
		},
		{
			name: "JSON missing notes",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(fakeCompletion(`{"overall_score":0.9}`))
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(chatResponse{ID: "x"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})

			j := c.JudgePrompt(context.Background(), "prompt", "")
			if !j.Fallback {
				t.Fatal("expected fallback judgment")
			}
			want := FallbackJudgment()
			if *j != *want {
				t.Errorf("judgment = %+v, want canned fallback %+v", j, want)
			}
		})
	}
}

func TestJudgePromptWithoutAPIKey(t *testing.T) {
	// No server: the client must not attempt any call.
	c := NewClient(Config{})

	j := c.JudgePrompt(context.Background(), "prompt", "")
	if !j.Fallback {
		t.Fatal("expected fallback judgment without an API key")
	}
	if j.OverallScore != 0.65 {
		t.Errorf("OverallScore = %v, want 0.65", j.OverallScore)
	}
}

func TestRewritePrompt(t *testing.T) {
	var req chatRequest
	srv := newFakeOpenAI(t, "  Rewrite: do X with Y constraint.  ", &req)
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})

	got := c.RewritePrompt(context.Background(), "do the thing", "add constraints")
	if got != "Rewrite: do X with Y constraint." {
		t.Errorf("rewrite = %q, want trimmed model output", got)
	}
	if req.ResponseFormat != nil {
		t.Error("rewrite request must not force json_object")
	}
	if !strings.Contains(req.Messages[1].Content, "add constraints") {
		t.Error("user message does not embed the notes")
	}
}

func TestRewritePromptDefaultConsiderations(t *testing.T) {
	var req chatRequest
	srv := newFakeOpenAI(t, "rewritten", &req)
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	c.RewritePrompt(context.Background(), "original", "")

	if !strings.Contains(req.Messages[1].Content, defaultConsiderations) {
		t.Error("empty notes must fall back to the default considerations")
	}
}

func TestRewritePromptFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})

	got := c.RewritePrompt(context.Background(), "  my prompt  ", "notes")
	want := "my prompt" + rewriteFallbackSuffix
	if got != want {
		t.Errorf("rewrite = %q, want %q", got, want)
	}
}

func TestRewritePromptWithoutAPIKey(t *testing.T) {
	c := NewClient(Config{})

	got := c.RewritePrompt(context.Background(), "original", "")
	if !strings.HasPrefix(got, "original") || !strings.HasSuffix(got, rewriteFallbackSuffix) {
		t.Errorf("rewrite = %q, want original plus fallback suffix", got)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})

	// Five consecutive failures trip the breaker; further calls short-circuit
	// without reaching the server.
	for range 10 {
		j := c.JudgePrompt(context.Background(), "prompt", "")
		if !j.Fallback {
			t.Fatal("expected fallback while upstream is failing")
		}
	}
	if calls != 5 {
		t.Errorf("upstream calls = %d, want 5 before the breaker opens", calls)
	}
}

func TestRateLimiterConcurrency(t *testing.T) {
	rl := NewRateLimiter(0, 2)

	ctx := context.Background()
	if err := rl.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := rl.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}

	// Third acquisition must block until a slot frees; give it a canceled
	// context so the test stays fast.
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := rl.Acquire(canceled); err == nil {
		t.Fatal("expected context error when no slot is free")
	}

	rl.Release()
	if err := rl.Acquire(ctx); err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
	rl.Release()
	rl.Release()
}

func TestClientDefaults(t *testing.T) {
	c := NewClient(Config{})
	if c.Model() != DefaultModel {
		t.Errorf("Model() = %q, want %q", c.Model(), DefaultModel)
	}
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
	}
	if c.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", c.timeout, DefaultTimeout)
	}
}
