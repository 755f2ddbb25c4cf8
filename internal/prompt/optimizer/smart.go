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

package optimizer

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/canarylabs/promptcanary/internal/prompt"
	"github.com/canarylabs/promptcanary/internal/prompt/scoring"
)

const (
	// maxStrategies caps how many rewrite strategies one smart pass tests.
	maxStrategies = 3

	// improvementCutoff is the judged score gain a rewrite must show over
	// the original before it is stored as a suggestion.
	improvementCutoff = 0.1
)

// strategy is one targeted rewrite approach derived from the analysis.
type strategy struct {
	name        string
	instruction string
	reasoning   string
}

// Candidate is one strategy-driven rewrite, judged against the original.
type Candidate struct {
	Strategy         string  `json:"strategy"`
	OptimizedText    string  `json:"optimized_text"`
	ImprovementScore float64 `json:"improvement_score"`
	PredictedBetter  bool    `json:"predicted_better"`
	Reasoning        string  `json:"reasoning"`
}

// SmartResult is the outcome of one smart optimization pass. Best and
// SuggestionID are set only when a candidate beat the improvement cutoff.
type SmartResult struct {
	Success      bool        `json:"success"`
	Message      string      `json:"message,omitempty"`
	Best         *Candidate  `json:"best_version,omitempty"`
	Candidates   []Candidate `json:"all_versions"`
	Analysis     *Analysis   `json:"analysis"`
	SuggestionID int64       `json:"suggestion_id,omitempty"`
}

// SmartOptimize analyzes a prompt's evaluation history, derives targeted
// rewrite strategies from what the history shows, judges each rewrite against
// the original, and stores the best one as a suggestion when the judge
// predicts a real improvement. Prompts with no evaluation history cannot be
// optimized this way; the result reports that without failing. Returns
// prompt.ErrPromptNotFound for unknown prompts.
func (o *Optimizer) SmartOptimize(ctx context.Context, promptID int64) (*SmartResult, error) {
	p, err := o.store.GetPrompt(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("loading prompt: %w", err)
	}

	analysis, err := o.AnalyzePatterns(ctx, promptID)
	if errors.Is(err, ErrNoEvaluations) {
		return &SmartResult{Success: false, Message: ErrNoEvaluations.Error()}, nil
	}
	if err != nil {
		return nil, err
	}

	original := o.judge.JudgePrompt(ctx, p.Text, "")

	strategies := deriveStrategies(analysis)
	if len(strategies) > maxStrategies {
		strategies = strategies[:maxStrategies]
	}

	candidates := make([]Candidate, 0, len(strategies))
	for _, s := range strategies {
		rewritten := o.rewriter.RewritePrompt(ctx, p.Text, s.instruction)
		judged := o.judge.JudgePrompt(ctx, rewritten, "")
		improvement := judged.OverallScore - original.OverallScore

		candidates = append(candidates, Candidate{
			Strategy:         s.name,
			OptimizedText:    rewritten,
			ImprovementScore: scoring.Round3(improvement),
			PredictedBetter:  improvement > improvementCutoff,
			Reasoning:        s.reasoning,
		})
	}

	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		switch {
		case a.ImprovementScore > b.ImprovementScore:
			return -1
		case a.ImprovementScore < b.ImprovementScore:
			return 1
		default:
			return 0
		}
	})

	result := &SmartResult{Candidates: candidates, Analysis: analysis}
	if len(candidates) == 0 || !candidates[0].PredictedBetter {
		result.Message = "no significant improvement found"
		return result, nil
	}

	best := candidates[0]
	stored, err := o.store.CreateSuggestion(ctx, &prompt.Suggestion{
		PromptID:      promptID,
		SuggestedText: best.OptimizedText,
		Rationale: fmt.Sprintf("Data-driven optimization using %s strategy. Predicted improvement: %.3f",
			best.Strategy, best.ImprovementScore),
	})
	if err != nil {
		return nil, fmt.Errorf("storing suggestion: %w", err)
	}

	o.log.Info("smart optimization stored suggestion",
		"promptID", promptID, "strategy", best.Strategy, "improvement", best.ImprovementScore)

	result.Success = true
	result.Best = &best
	result.SuggestionID = stored.ID
	return result, nil
}

// deriveStrategies picks rewrite strategies that address what the analysis
// found. Falls back to a single general strategy when nothing specific
// applies.
func deriveStrategies(a *Analysis) []strategy {
	var out []strategy

	hasIssue := func(name string) bool {
		return slices.Contains(a.CommonIssues, name)
	}

	if hasIssue("unclear") || a.Characteristics.WordCount > 100 {
		out = append(out, strategy{
			name:        "clarity_focus",
			instruction: "Rewrite this prompt to be much clearer and more concise. Remove unnecessary words and make the instructions crystal clear.",
			reasoning:   "Current prompt is too long or unclear based on evaluation data",
		})
	}
	if hasIssue("poor_structure") {
		out = append(out, strategy{
			name:        "structured_approach",
			instruction: "Rewrite this prompt with clear structure: 1) Context, 2) Task, 3) Requirements, 4) Example format.",
			reasoning:   "Current prompt lacks clear structure",
		})
	}
	if !a.Characteristics.HasExamples {
		out = append(out, strategy{
			name:        "example_enhanced",
			instruction: "Rewrite this prompt and include a concrete example of what a good response looks like.",
			reasoning:   "Adding examples typically improves prompt performance",
		})
	}
	if !a.Characteristics.HasConstraints {
		out = append(out, strategy{
			name:        "constraint_focused",
			instruction: "Rewrite this prompt with specific constraints and requirements. Be very clear about what the output should and shouldn't include.",
			reasoning:   "Adding constraints helps guide the model to better outputs",
		})
	}
	if !a.Characteristics.HasQuestions {
		out = append(out, strategy{
			name:        "question_driven",
			instruction: "Rewrite this prompt as a series of clear questions that guide the model to the desired output.",
			reasoning:   "Question-based prompts often perform better",
		})
	}

	if len(out) == 0 {
		out = append(out, strategy{
			name:        "general_improvement",
			instruction: "Improve this prompt by making it more specific, clear, and actionable. Add any missing context or requirements.",
			reasoning:   "General improvement based on best practices",
		})
	}
	return out
}
