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

// Package canary implements the release state machine for versioned prompts:
// probabilistic traffic routing between the active and canary version, canary
// staging from suggestions, the windowed health check, and automatic or
// manual rollback with an audit trail and best-effort webhook notification.
package canary

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/go-logr/logr"

	"github.com/canarylabs/promptcanary/internal/prompt"
	"github.com/canarylabs/promptcanary/pkg/metrics"
)

// Selection is the outcome of one routing decision. A zero Selection (empty
// Text, VersionID 0) means the prompt does not exist.
type Selection struct {
	// Text is the prompt text of the version chosen to serve.
	Text string
	// IsCanary reports whether the canary version was chosen.
	IsCanary bool
	// VersionID identifies the chosen version.
	VersionID int64
}

// RouterStore is the slice of the store the router needs.
type RouterStore interface {
	GetRelease(ctx context.Context, promptID int64) (*prompt.Release, error)
	InitRelease(ctx context.Context, promptID int64) (*prompt.Release, error)
	GetVersion(ctx context.Context, id int64) (*prompt.Version, error)
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithDraw replaces the traffic draw with a deterministic function for tests.
// The function must return a uniform integer in [1,100].
func WithDraw(draw func() int32) RouterOption {
	return func(r *Router) {
		r.draw = draw
	}
}

// WithRouterMetrics sets the metrics recorder.
func WithRouterMetrics(m metrics.CanaryMetricsRecorder) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithRouterLogger sets the logger.
func WithRouterLogger(log logr.Logger) RouterOption {
	return func(r *Router) {
		r.log = log
	}
}

// Router decides which version of a prompt serves a single request. The draw
// uses math/rand/v2, which is process-seeded from a high-entropy source and
// safe for concurrent use; it is never shared with security-sensitive code.
type Router struct {
	store   RouterStore
	draw    func() int32
	metrics metrics.CanaryMetricsRecorder
	log     logr.Logger
}

// NewRouter creates a Router over the given store.
func NewRouter(store RouterStore, opts ...RouterOption) *Router {
	r := &Router{
		store:   store,
		draw:    func() int32 { return rand.Int32N(100) + 1 },
		metrics: &metrics.NoOpCanaryMetrics{},
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ChooseVersion selects the version of a prompt to serve for one request,
// lazily bootstrapping a version-1 release for prompts that have none. An
// unknown prompt yields a zero Selection and no error.
//
// With a live canary at percent p, a uniform draw r in [1,100] selects the
// canary when r <= p, so percent 100 always serves the canary and percent 0
// always serves the active version.
func (r *Router) ChooseVersion(ctx context.Context, promptID int64) (Selection, error) {
	release, err := r.store.GetRelease(ctx, promptID)
	if errors.Is(err, prompt.ErrReleaseNotFound) {
		release, err = r.store.InitRelease(ctx, promptID)
		if errors.Is(err, prompt.ErrPromptNotFound) {
			return Selection{}, nil
		}
	}
	if err != nil {
		return Selection{}, fmt.Errorf("choosing version: %w", err)
	}

	versionID := release.ActiveVersionID
	isCanary := false
	if release.HasCanary() && r.draw() <= release.CanaryPercent {
		versionID = release.CanaryVersionID
		isCanary = true
	}

	v, err := r.store.GetVersion(ctx, versionID)
	if err != nil {
		return Selection{}, fmt.Errorf("loading selected version: %w", err)
	}

	role := metrics.RoleActive
	if isCanary {
		role = metrics.RoleCanary
	}
	r.metrics.RecordRoute(role)
	r.log.V(1).Info("version selected",
		"promptID", promptID, "version", v.Version, "canary", isCanary)

	return Selection{Text: v.Text, IsCanary: isCanary, VersionID: v.ID}, nil
}
