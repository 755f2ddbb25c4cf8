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

// Package logctx provides structured logging context management.
// It allows storing and extracting common logging fields from context.Context,
// enabling consistent logging across the API, router, and release components.
package logctx

import (
	"context"
	"strconv"

	"github.com/go-logr/logr"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields.
// These keys are used to store values in context.Context that will be
// automatically extracted and added to log entries.
const (
	// ContextKeyRequestID identifies the individual HTTP request.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyPromptID identifies the prompt being operated on.
	ContextKeyPromptID contextKey = "prompt_id"

	// ContextKeyModel identifies the LLM model being used.
	ContextKeyModel contextKey = "model"

	// ContextKeyOperation identifies the engine operation
	// (e.g., "analyze", "release", "check", "rollback").
	ContextKeyOperation contextKey = "operation"

	// ContextKeyStage identifies the processing stage within an operation
	// (e.g., "judge", "rewrite", "score").
	ContextKeyStage contextKey = "stage"
)

// allContextKeys lists all context keys that should be extracted for logging.
var allContextKeys = []contextKey{
	ContextKeyRequestID,
	ContextKeyPromptID,
	ContextKeyModel,
	ContextKeyOperation,
	ContextKeyStage,
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithPromptID returns a new context with the prompt ID set.
func WithPromptID(ctx context.Context, promptID int64) context.Context {
	return context.WithValue(ctx, ContextKeyPromptID, strconv.FormatInt(promptID, 10))
}

// WithModel returns a new context with the model name set.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ContextKeyModel, model)
}

// WithOperation returns a new context with the operation name set.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, ContextKeyOperation, operation)
}

// WithStage returns a new context with the processing stage set.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

// LoggingFields holds all standard logging context fields.
// This struct is used with WithLoggingContext for bulk field setting.
type LoggingFields struct {
	RequestID string
	PromptID  string
	Model     string
	Operation string
	Stage     string
}

// WithLoggingContext returns a new context with multiple logging fields set at once.
// Only non-empty values are set.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.RequestID != "" {
		ctx = WithRequestID(ctx, fields.RequestID)
	}
	if fields.PromptID != "" {
		ctx = context.WithValue(ctx, ContextKeyPromptID, fields.PromptID)
	}
	if fields.Model != "" {
		ctx = WithModel(ctx, fields.Model)
	}
	if fields.Operation != "" {
		ctx = WithOperation(ctx, fields.Operation)
	}
	if fields.Stage != "" {
		ctx = WithStage(ctx, fields.Stage)
	}
	return ctx
}

// ExtractLoggingFields extracts all logging fields from a context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	fields := LoggingFields{}
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		fields.RequestID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyPromptID); v != nil {
		fields.PromptID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyModel); v != nil {
		fields.Model, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyOperation); v != nil {
		fields.Operation, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyStage); v != nil {
		fields.Stage, _ = v.(string)
	}
	return fields
}

// LogrValues extracts context values and returns them as key-value pairs
// suitable for use with logr.Logger.WithValues().
// Only non-empty values are included.
func LogrValues(ctx context.Context) []interface{} {
	var values []interface{}
	for _, key := range allContextKeys {
		if v := ctx.Value(key); v != nil {
			if s, ok := v.(string); ok && s != "" {
				values = append(values, string(key), s)
			}
		}
	}
	return values
}

// LoggerWithContext returns a logger enriched with all context values.
// This is a convenience function for logr.Logger.
func LoggerWithContext(log logr.Logger, ctx context.Context) logr.Logger {
	values := LogrValues(ctx)
	if len(values) == 0 {
		return log
	}
	return log.WithValues(values...)
}

// RequestID extracts the request ID from the context.
func RequestID(ctx context.Context) string {
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// PromptID extracts the prompt ID from the context.
func PromptID(ctx context.Context) string {
	if v := ctx.Value(ContextKeyPromptID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Operation extracts the operation name from the context.
func Operation(ctx context.Context) string {
	if v := ctx.Value(ContextKeyOperation); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
