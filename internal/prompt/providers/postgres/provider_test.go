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
	"database/sql"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/canarylabs/promptcanary/internal/prompt"
	canarypg "github.com/canarylabs/promptcanary/internal/prompt/postgres"
)

var testConnStr string

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("promptcanary_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	testConnStr, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}

	os.Exit(code)
}

// freshDB creates an isolated database, runs migrations, and returns a pgxpool.Pool.
func freshDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbName := fmt.Sprintf("test_%d", time.Now().UnixNano())

	db, err := sql.Open("pgx", testConnStr)
	require.NoError(t, err)
	_, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	connStr := replaceDBName(testConnStr, dbName)

	mg, err := canarypg.NewMigrator(connStr, logr.Discard())
	require.NoError(t, err)
	require.NoError(t, mg.Up())
	require.NoError(t, mg.Close())

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		mainDB, err := sql.Open("pgx", testConnStr)
		if err == nil {
			_, _ = mainDB.Exec(fmt.Sprintf("DROP DATABASE %s WITH (FORCE)", dbName))
			_ = mainDB.Close()
		}
	})

	return pool
}

func replaceDBName(connStr, newDB string) string {
	qIdx := len(connStr)
	for i, c := range connStr {
		if c == '?' {
			qIdx = i
			break
		}
	}
	slashIdx := 0
	for i := qIdx - 1; i >= 0; i-- {
		if connStr[i] == '/' {
			slashIdx = i
			break
		}
	}
	return connStr[:slashIdx+1] + newDB + connStr[qIdx:]
}

func newProvider(t *testing.T) *Provider {
	t.Helper()
	pool := freshDB(t)
	return NewFromPool(pool)
}

// --- Prompt CRUD ------------------------------------------------------------

func TestCreateGetPrompt(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	created, err := p.CreatePrompt(ctx, "Summarize the quarterly report")
	require.NoError(t, err)
	assert.Positive(t, created.ID)
	assert.Equal(t, "Summarize the quarterly report", created.Text)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := p.GetPrompt(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Text, got.Text)
}

func TestGetPromptNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)

	_, err := p.GetPrompt(context.Background(), 9999)
	assert.ErrorIs(t, err, prompt.ErrPromptNotFound)
}

// --- Responses and feedback -------------------------------------------------

func TestCreateGetResponse(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	pr, err := p.CreatePrompt(ctx, "prompt under test")
	require.NoError(t, err)

	created, err := p.CreateResponse(ctx, &prompt.Response{
		PromptID:     pr.ID,
		ModelName:    "gpt-4o-mini",
		Content:      "a model answer",
		LatencyMS:    240,
		InputTokens:  12,
		OutputTokens: 48,
	})
	require.NoError(t, err)
	assert.Positive(t, created.ID)

	got, err := p.GetResponse(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", got.ModelName)
	assert.Equal(t, "a model answer", got.Content)
	assert.Equal(t, int32(240), got.LatencyMS)
	assert.Equal(t, int32(12), got.InputTokens)
	assert.Equal(t, int32(48), got.OutputTokens)
}

func TestCreateResponseOptionalFields(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	pr, err := p.CreatePrompt(ctx, "prompt under test")
	require.NoError(t, err)

	// Zero latency/token hints round-trip as NULLs and come back as zero.
	created, err := p.CreateResponse(ctx, &prompt.Response{
		PromptID:  pr.ID,
		ModelName: "unknown",
		Content:   "bare response",
	})
	require.NoError(t, err)

	got, err := p.GetResponse(ctx, created.ID)
	require.NoError(t, err)
	assert.Zero(t, got.LatencyMS)
	assert.Zero(t, got.InputTokens)
	assert.Zero(t, got.OutputTokens)
}

func TestGetResponseNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)

	_, err := p.GetResponse(context.Background(), 4242)
	assert.ErrorIs(t, err, prompt.ErrResponseNotFound)
}

func TestCreateListFeedback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	pr, err := p.CreatePrompt(ctx, "prompt under test")
	require.NoError(t, err)
	resp, err := p.CreateResponse(ctx, &prompt.Response{PromptID: pr.ID, ModelName: "unknown", Content: "out"})
	require.NoError(t, err)

	_, err = p.CreateFeedback(ctx, &prompt.Feedback{PromptID: pr.ID, Rating: 4, Comment: "solid"})
	require.NoError(t, err)
	withResp, err := p.CreateFeedback(ctx, &prompt.Feedback{PromptID: pr.ID, ResponseID: resp.ID, Rating: 2})
	require.NoError(t, err)
	assert.Equal(t, resp.ID, withResp.ResponseID)

	list, err := p.ListFeedback(ctx, pr.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// Newest first.
	assert.Equal(t, withResp.ID, list[0].ID)
	assert.Equal(t, int32(2), list[0].Rating)
	assert.Equal(t, "solid", list[1].Comment)

	limited, err := p.ListFeedback(ctx, pr.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// --- Suggestions ------------------------------------------------------------

func TestSuggestionLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	pr, err := p.CreatePrompt(ctx, "original wording")
	require.NoError(t, err)

	first, err := p.CreateSuggestion(ctx, &prompt.Suggestion{
		PromptID:      pr.ID,
		SuggestedText: "first rewrite",
		Rationale:     "clarity",
	})
	require.NoError(t, err)
	second, err := p.CreateSuggestion(ctx, &prompt.Suggestion{
		PromptID:      pr.ID,
		SuggestedText: "second rewrite",
		Rationale:     "constraints",
	})
	require.NoError(t, err)

	got, err := p.GetSuggestion(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first rewrite", got.SuggestedText)
	assert.Equal(t, "clarity", got.Rationale)

	latest, err := p.LatestSuggestion(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	list, err := p.ListSuggestions(ctx, pr.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestSuggestionNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	_, err := p.GetSuggestion(ctx, 777)
	assert.ErrorIs(t, err, prompt.ErrSuggestionNotFound)

	pr, err := p.CreatePrompt(ctx, "no suggestions yet")
	require.NoError(t, err)
	_, err = p.LatestSuggestion(ctx, pr.ID)
	assert.ErrorIs(t, err, prompt.ErrSuggestionNotFound)
}

// --- Evaluations ------------------------------------------------------------

func TestCreateListEvaluations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	pr, err := p.CreatePrompt(ctx, "prompt under test")
	require.NoError(t, err)

	first, err := p.CreateEvaluation(ctx, &prompt.Evaluation{
		PromptID:      pr.ID,
		ClarityScore:  0.9,
		LengthScore:   0.5,
		ToxicityScore: 1.0,
		OverallScore:  0.8,
		Notes:         "looks fine",
	})
	require.NoError(t, err)
	second, err := p.CreateEvaluation(ctx, &prompt.Evaluation{
		PromptID:     pr.ID,
		OverallScore: 0.4,
		Notes:        "canary pass",
		IsCanary:     true,
	})
	require.NoError(t, err)

	list, err := p.ListEvaluations(ctx, pr.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.True(t, list[0].IsCanary)
	assert.Equal(t, 0.9, list[1].ClarityScore)
	assert.Equal(t, "looks fine", list[1].Notes)

	latest, err := p.LatestEvaluation(ctx, pr.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, first.PromptID, latest.PromptID)
}

func TestLatestEvaluationEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	pr, err := p.CreatePrompt(ctx, "never evaluated")
	require.NoError(t, err)

	ev, err := p.LatestEvaluation(ctx, pr.ID)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestRoleAverages(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	pr, err := p.CreatePrompt(ctx, "prompt under test")
	require.NoError(t, err)

	for _, ev := range []*prompt.Evaluation{
		{PromptID: pr.ID, OverallScore: 0.8},
		{PromptID: pr.ID, OverallScore: 0.6},
		{PromptID: pr.ID, OverallScore: 0.9, IsCanary: true},
		{PromptID: pr.ID, OverallScore: 0.3, IsCanary: true},
	} {
		_, err := p.CreateEvaluation(ctx, ev)
		require.NoError(t, err)
	}

	agg, err := p.RoleAverages(ctx, pr.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.6, agg.CanaryAvg, 1e-9)
	assert.InDelta(t, 0.7, agg.ActiveAvg, 1e-9)
	assert.Equal(t, 2, agg.CanaryCount)
	assert.Equal(t, 2, agg.ActiveCount)

	// A window starting in the future sees nothing.
	empty, err := p.RoleAverages(ctx, pr.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, empty.CanaryCount)
	assert.Zero(t, empty.ActiveCount)
	assert.Zero(t, empty.CanaryAvg)
}

// --- Release lifecycle ------------------------------------------------------

func TestInitRelease(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	pr, err := p.CreatePrompt(ctx, "baseline text")
	require.NoError(t, err)

	rel, err := p.InitRelease(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, pr.ID, rel.PromptID)
	assert.Positive(t, rel.ActiveVersionID)
	assert.Zero(t, rel.CanaryVersionID)
	assert.Zero(t, rel.CanaryPercent)
	assert.False(t, rel.HasCanary())

	// Version 1 carries the prompt's original text and is active.
	v1, err := p.GetVersion(ctx, rel.ActiveVersionID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), v1.Version)
	assert.Equal(t, "baseline text", v1.Text)
	assert.True(t, v1.IsActive)

	// Bootstrapping again returns the same release.
	again, err := p.InitRelease(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, rel.ID, again.ID)
	assert.Equal(t, rel.ActiveVersionID, again.ActiveVersionID)
}

func TestInitReleaseUnknownPrompt(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)

	_, err := p.InitRelease(context.Background(), 12345)
	assert.ErrorIs(t, err, prompt.ErrPromptNotFound)
}

func TestStageCanary(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	pr, err := p.CreatePrompt(ctx, "baseline text")
	require.NoError(t, err)
	_, err = p.InitRelease(ctx, pr.ID)
	require.NoError(t, err)

	rel, v, err := p.StageCanary(ctx, pr.ID, "canary text", 25)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v.Version)
	assert.Equal(t, "canary text", v.Text)
	assert.False(t, v.IsActive)
	assert.Equal(t, v.ID, rel.CanaryVersionID)
	assert.Equal(t, int32(25), rel.CanaryPercent)
	assert.True(t, rel.HasCanary())

	// Restaging replaces the canary and bumps the version number.
	rel2, v2, err := p.StageCanary(ctx, pr.ID, "newer canary", 50)
	require.NoError(t, err)
	assert.Equal(t, int32(3), v2.Version)
	assert.Equal(t, v2.ID, rel2.CanaryVersionID)
	assert.Equal(t, int32(50), rel2.CanaryPercent)
}

func TestStageCanaryAfterRollback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	pr, err := p.CreatePrompt(ctx, "baseline text")
	require.NoError(t, err)
	_, err = p.InitRelease(ctx, pr.ID)
	require.NoError(t, err)

	// First canary cycle: stage v2, then roll it back.
	_, v2, err := p.StageCanary(ctx, pr.ID, "first canary", 10)
	require.NoError(t, err)
	require.Equal(t, int32(2), v2.Version)
	_, err = p.ClearCanary(ctx, pr.ID, "auto-rollback: scores regressed")
	require.NoError(t, err)

	// The next release must mint version 3 even though the release row no
	// longer references the withdrawn v2.
	rel, v3, err := p.StageCanary(ctx, pr.ID, "second canary", 20)
	require.NoError(t, err)
	assert.Equal(t, int32(3), v3.Version)
	assert.Equal(t, v3.ID, rel.CanaryVersionID)
	assert.Equal(t, int32(20), rel.CanaryPercent)
	assert.True(t, rel.HasCanary())

	// And the cycle keeps going: rollback again, release again.
	_, err = p.ClearCanary(ctx, pr.ID, "manual rollback")
	require.NoError(t, err)
	_, v4, err := p.StageCanary(ctx, pr.ID, "third canary", 30)
	require.NoError(t, err)
	assert.Equal(t, int32(4), v4.Version)
}

func TestStageCanaryClampsPercent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	pr, err := p.CreatePrompt(ctx, "baseline text")
	require.NoError(t, err)
	_, err = p.InitRelease(ctx, pr.ID)
	require.NoError(t, err)

	rel, _, err := p.StageCanary(ctx, pr.ID, "canary text", 250)
	require.NoError(t, err)
	assert.Equal(t, int32(100), rel.CanaryPercent)
}

func TestStageCanaryWithoutRelease(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	pr, err := p.CreatePrompt(ctx, "unrouted prompt")
	require.NoError(t, err)

	_, _, err = p.StageCanary(ctx, pr.ID, "canary text", 10)
	assert.ErrorIs(t, err, prompt.ErrReleaseNotFound)
}

func TestClearCanary(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	pr, err := p.CreatePrompt(ctx, "baseline text")
	require.NoError(t, err)
	rel, err := p.InitRelease(ctx, pr.ID)
	require.NoError(t, err)
	staged, v, err := p.StageCanary(ctx, pr.ID, "canary text", 20)
	require.NoError(t, err)
	require.True(t, staged.HasCanary())

	event, err := p.ClearCanary(ctx, pr.ID, "auto-rollback: scores regressed")
	require.NoError(t, err)
	assert.Equal(t, v.ID, event.FromVersionID)
	assert.Equal(t, rel.ActiveVersionID, event.ToVersionID)
	assert.Equal(t, "auto-rollback: scores regressed", event.Reason)

	cleared, err := p.GetRelease(ctx, pr.ID)
	require.NoError(t, err)
	assert.Zero(t, cleared.CanaryVersionID)
	assert.Zero(t, cleared.CanaryPercent)
	assert.False(t, cleared.HasCanary())

	// Clearing again has nothing to withdraw.
	_, err = p.ClearCanary(ctx, pr.ID, "again")
	assert.ErrorIs(t, err, prompt.ErrNoCanary)

	events, err := p.ListRollbacks(ctx, pr.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)
}

func TestGetReleaseNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)

	_, err := p.GetRelease(context.Background(), 321)
	assert.ErrorIs(t, err, prompt.ErrReleaseNotFound)
}

// --- Report aggregates ------------------------------------------------------

func TestReportAggregates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()
	since := time.Now().Add(-time.Hour)

	pr, err := p.CreatePrompt(ctx, "report prompt")
	require.NoError(t, err)
	resp, err := p.CreateResponse(ctx, &prompt.Response{PromptID: pr.ID, ModelName: "unknown", Content: "out"})
	require.NoError(t, err)
	_, err = p.CreateSuggestion(ctx, &prompt.Suggestion{PromptID: pr.ID, SuggestedText: "better", Rationale: "r"})
	require.NoError(t, err)

	for _, ev := range []*prompt.Evaluation{
		{PromptID: pr.ID, ResponseID: resp.ID, ClarityScore: 1.0, LengthScore: 0.5, OverallScore: 0.9},
		{PromptID: pr.ID, ClarityScore: 0.5, LengthScore: 0.3, OverallScore: 0.5, IsCanary: true},
	} {
		_, err := p.CreateEvaluation(ctx, ev)
		require.NoError(t, err)
	}
	_, err = p.CreateFeedback(ctx, &prompt.Feedback{PromptID: pr.ID, Rating: 4})
	require.NoError(t, err)
	_, err = p.CreateFeedback(ctx, &prompt.Feedback{PromptID: pr.ID, Rating: 2})
	require.NoError(t, err)

	counts, err := p.CountsSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Prompts)
	assert.Equal(t, int64(1), counts.Responses)
	assert.Equal(t, int64(2), counts.Evaluations)
	assert.Equal(t, int64(1), counts.Suggestions)

	scores, err := p.ScoreAveragesSince(ctx, since)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, scores.Overall, 1e-9)
	assert.InDelta(t, 0.75, scores.Clarity, 1e-9)
	assert.InDelta(t, 0.4, scores.Length, 1e-9)

	stats, err := p.FeedbackStatsSince(ctx, since)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, stats.AvgRating, 1e-9)
	assert.Equal(t, int64(2), stats.Count)

	canaryAvg, activeAvg, err := p.RoleOverallSince(ctx, since)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, canaryAvg, 1e-9)
	assert.InDelta(t, 0.9, activeAvg, 1e-9)
}

func TestCountRollbacksSince(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	pr, err := p.CreatePrompt(ctx, "baseline text")
	require.NoError(t, err)
	_, err = p.InitRelease(ctx, pr.ID)
	require.NoError(t, err)
	_, _, err = p.StageCanary(ctx, pr.ID, "canary text", 10)
	require.NoError(t, err)
	_, err = p.ClearCanary(ctx, pr.ID, "manual rollback")
	require.NoError(t, err)

	n, err := p.CountRollbacksSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	future, err := p.CountRollbacksSince(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, future)
}

func TestLatestComparisonPairs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	p := newProvider(t)
	ctx := context.Background()

	first, err := p.CreatePrompt(ctx, "first prompt")
	require.NoError(t, err)
	second, err := p.CreatePrompt(ctx, "second prompt")
	require.NoError(t, err)

	// Two suggestions for the first prompt; only the newest should survive.
	_, err = p.CreateSuggestion(ctx, &prompt.Suggestion{PromptID: first.ID, SuggestedText: "old rewrite", Rationale: "r"})
	require.NoError(t, err)
	_, err = p.CreateSuggestion(ctx, &prompt.Suggestion{PromptID: first.ID, SuggestedText: "new rewrite", Rationale: "r"})
	require.NoError(t, err)
	_, err = p.CreateSuggestion(ctx, &prompt.Suggestion{PromptID: second.ID, SuggestedText: "second rewrite", Rationale: "r"})
	require.NoError(t, err)

	pairs, err := p.LatestComparisonPairs(ctx, 20)
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	byPrompt := map[int64]*prompt.ComparisonPair{}
	for _, pair := range pairs {
		byPrompt[pair.PromptID] = pair
	}
	require.Contains(t, byPrompt, first.ID)
	assert.Equal(t, "first prompt", byPrompt[first.ID].PromptText)
	assert.Equal(t, "new rewrite", byPrompt[first.ID].SuggestedText)
	assert.Equal(t, "second rewrite", byPrompt[second.ID].SuggestedText)

	capped, err := p.LatestComparisonPairs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)
}
