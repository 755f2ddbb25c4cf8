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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-logr/logr"

	"github.com/canarylabs/promptcanary/internal/prompt"
	"github.com/canarylabs/promptcanary/internal/prompt/analytics"
	"github.com/canarylabs/promptcanary/internal/prompt/canary"
	"github.com/canarylabs/promptcanary/internal/prompt/optimizer"
)

// Handler constants.
const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"

	defaultCanaryPercent = 10

	minWindowDays = 1
	maxWindowDays = 365
)

// Request shape errors mapped at the boundary.
var (
	errBadJSON         = errors.New("invalid request body")
	errInvalidPromptID = errors.New("prompt_id must be a positive integer")
	errInvalidWindow   = errors.New("window_days must be between 1 and 365")
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Handler provides the HTTP endpoints of the canary engine.
type Handler struct {
	pipeline   *AnalyzeService
	controller *canary.Controller
	optimizer  *optimizer.Optimizer
	reporter   *analytics.Reporter
	log        logr.Logger
}

// NewHandler creates a Handler over the engine services.
func NewHandler(pipeline *AnalyzeService, controller *canary.Controller, opt *optimizer.Optimizer, reporter *analytics.Reporter, log logr.Logger) *Handler {
	return &Handler{
		pipeline:   pipeline,
		controller: controller,
		optimizer:  opt,
		reporter:   reporter,
		log:        log.WithName("canary-handler"),
	}
}

// RegisterRoutes registers the API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /analyze", h.handleAnalyze)
	mux.HandleFunc("GET /optimize", h.handleOptimize)
	mux.HandleFunc("POST /feedback", h.handleFeedback)
	mux.HandleFunc("GET /history", h.handleHistory)
	mux.HandleFunc("GET /report", h.handleReport)
	mux.HandleFunc("POST /prompts/{id}/release", h.handleRelease)
	mux.HandleFunc("POST /prompts/{id}/rollback", h.handleRollback)
	mux.HandleFunc("GET /prompts/{id}/status", h.handleStatus)
	mux.HandleFunc("POST /prompts/{id}/check", h.handleCheck)
	mux.HandleFunc("GET /prompts/{id}/analysis", h.handleAnalysis)
	mux.HandleFunc("POST /prompts/{id}/smart-optimize", h.handleSmartOptimize)
}

// handleAnalyze runs the evaluation pipeline on a prompt.
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadJSON)
		return
	}

	out, err := h.pipeline.Analyze(r.Context(), req)
	if err != nil {
		h.logServerError(err, "Analyze failed")
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// handleOptimize stores a rewrite suggestion for a prompt.
func (h *Handler) handleOptimize(w http.ResponseWriter, r *http.Request) {
	id, err := queryPromptID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := h.optimizer.Optimize(r.Context(), id)
	if err != nil {
		h.logServerError(err, "Optimize failed", "promptID", id)
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// handleFeedback stores a human rating.
func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadJSON)
		return
	}

	out, err := h.pipeline.Feedback(r.Context(), req)
	if err != nil {
		h.logServerError(err, "Feedback failed", "promptID", req.PromptID)
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// handleHistory returns a prompt's evaluation and suggestion trails.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := queryPromptID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := h.pipeline.History(r.Context(), id)
	if err != nil {
		h.logServerError(err, "History failed", "promptID", id)
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// handleReport returns the windowed cross-prompt analytics report.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	windowDays := analytics.DefaultWindowDays
	if s := r.URL.Query().Get("window_days"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < minWindowDays || v > maxWindowDays {
			writeError(w, errInvalidWindow)
			return
		}
		windowDays = v
	}

	out, err := h.reporter.Report(r.Context(), windowDays)
	if err != nil {
		h.logServerError(err, "Report failed", "windowDays", windowDays)
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// releaseRequest is the release endpoint body. A missing canary_percent
// defaults to 10.
type releaseRequest struct {
	SuggestionID  int64  `json:"suggestion_id,omitempty"`
	CanaryPercent *int32 `json:"canary_percent,omitempty"`
}

// handleRelease stages a canary version from a suggestion.
func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	id, err := pathPromptID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req releaseRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	percent := int32(defaultCanaryPercent)
	if req.CanaryPercent != nil {
		percent = *req.CanaryPercent
	}

	out, err := h.controller.Release(r.Context(), id, req.SuggestionID, percent)
	if err != nil {
		h.logServerError(err, "Release failed", "promptID", id)
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// handleRollback manually withdraws the live canary.
func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request) {
	id, err := pathPromptID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Reason string `json:"reason,omitempty"`
	}
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.controller.Rollback(r.Context(), id, req.Reason); err != nil {
		h.logServerError(err, "Rollback failed", "promptID", id)
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

// handleStatus returns a prompt's serving state and recent rollbacks.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathPromptID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := h.controller.Status(r.Context(), id)
	if err != nil {
		h.logServerError(err, "Status failed", "promptID", id)
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// checkRequest optionally overrides the configured check parameters.
type checkRequest struct {
	MinSamples int     `json:"min_samples,omitempty"`
	Threshold  float64 `json:"threshold,omitempty"`
	WindowDays int     `json:"window_days,omitempty"`
}

// handleCheck runs the canary health check synchronously.
func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	id, err := pathPromptID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req checkRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.controller.Check(r.Context(), id, canary.CheckOptions{
		MinSamples: req.MinSamples,
		Threshold:  req.Threshold,
		WindowDays: req.WindowDays,
	})
	if err != nil {
		h.logServerError(err, "Check failed", "promptID", id)
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// handleAnalysis returns the prompt pattern analysis.
func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := pathPromptID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := h.optimizer.AnalyzePatterns(r.Context(), id)
	if err != nil {
		h.logServerError(err, "AnalyzePatterns failed", "promptID", id)
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// handleSmartOptimize runs the strategy-driven optimization pass.
func (h *Handler) handleSmartOptimize(w http.ResponseWriter, r *http.Request) {
	id, err := pathPromptID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := h.optimizer.SmartOptimize(r.Context(), id)
	if err != nil {
		h.logServerError(err, "SmartOptimize failed", "promptID", id)
		writeError(w, err)
		return
	}
	writeJSON(w, out)
}

// logServerError logs only errors that will surface as a 5xx; expected client
// errors stay out of the error log.
func (h *Handler) logServerError(err error, msg string, kv ...any) {
	if status, _ := mapError(err); status >= http.StatusInternalServerError {
		h.log.Error(err, msg, kv...)
	}
}

// pathPromptID parses the {id} path segment as a positive prompt id.
func pathPromptID(r *http.Request) (int64, error) {
	return parsePromptID(r.PathValue("id"))
}

// queryPromptID parses the prompt_id query parameter as a positive prompt id.
func queryPromptID(r *http.Request) (int64, error) {
	return parsePromptID(r.URL.Query().Get("prompt_id"))
}

func parsePromptID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidPromptID
	}
	return id, nil
}

// decodeOptionalBody decodes a JSON body into dst, tolerating an empty body.
func decodeOptionalBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errBadJSON
}

// writeJSON writes a JSON 200 OK response.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response is already partially written; nothing useful left to do.
		_ = err
	}
}

// mapError resolves an error to its HTTP status and client-facing detail.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMissingPrompt),
		errors.Is(err, ErrInvalidRating),
		errors.Is(err, errInvalidPromptID),
		errors.Is(err, errInvalidWindow):
		return http.StatusUnprocessableEntity, unwrapDetail(err)

	case errors.Is(err, errBadJSON),
		errors.Is(err, ErrResponseMismatch),
		errors.Is(err, canary.ErrNoSuggestions),
		errors.Is(err, canary.ErrSuggestionMismatch),
		errors.Is(err, prompt.ErrNoCanary):
		return http.StatusBadRequest, unwrapDetail(err)

	case errors.Is(err, prompt.ErrReleaseNotFound):
		return http.StatusNotFound, "no release state for prompt"

	case errors.Is(err, prompt.ErrPromptNotFound),
		errors.Is(err, prompt.ErrVersionNotFound),
		errors.Is(err, prompt.ErrSuggestionNotFound),
		errors.Is(err, prompt.ErrResponseNotFound),
		errors.Is(err, optimizer.ErrNoEvaluations):
		return http.StatusNotFound, unwrapDetail(err)

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"

	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// unwrapDetail returns the innermost error message, stripping provider
// wrapping so clients see the sentinel text.
func unwrapDetail(err error) string {
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return err.Error()
		}
		err = inner
	}
}

// writeError maps known errors to HTTP status codes and writes the JSON
// error body.
func writeError(w http.ResponseWriter, err error) {
	status, detail := mapError(err)
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Detail: detail})
}
