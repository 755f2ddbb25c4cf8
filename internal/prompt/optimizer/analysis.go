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
	"fmt"
	"strings"

	"github.com/canarylabs/promptcanary/internal/prompt"
)

// Score bands used by the performance analysis.
const (
	highScoreCutoff = 0.7
	lowScoreCutoff  = 0.4

	// recentFeedbackLimit caps how much feedback feeds the human-rating
	// average.
	recentFeedbackLimit = 10
)

// constraintTerms mark a prompt as carrying explicit requirements.
var constraintTerms = []string{"must", "should", "require", "limit"}

// issueKeywords maps a named issue to the note keywords that indicate it.
// Ordered so analysis output is stable.
var issueKeywords = []struct {
	name     string
	keywords []string
}{
	{"unclear", []string{"unclear", "vague", "ambiguous", "confusing"}},
	{"too_long", []string{"too long", "verbose", "wordy"}},
	{"too_short", []string{"too short", "brief", "incomplete"}},
	{"missing_context", []string{"context", "background", "information"}},
	{"poor_structure", []string{"structure", "format", "organization"}},
}

// Characteristics describes the surface shape of a prompt's text.
type Characteristics struct {
	WordCount      int  `json:"word_count"`
	HasQuestions   bool `json:"has_questions"`
	HasExamples    bool `json:"has_examples"`
	HasConstraints bool `json:"has_constraints"`
}

// Performance summarizes a prompt's evaluation and feedback history.
type Performance struct {
	TotalEvaluations int     `json:"total_evaluations"`
	HighScoreCount   int     `json:"high_score_count"`
	LowScoreCount    int     `json:"low_score_count"`
	AvgScore         float64 `json:"avg_score"`
	AvgHumanRating   float64 `json:"avg_human_rating"`
}

// Analysis is the full pattern analysis of one prompt.
type Analysis struct {
	Characteristics Characteristics `json:"prompt_characteristics"`
	Performance     Performance     `json:"performance_analysis"`
	CommonIssues    []string        `json:"common_issues"`
	Suggestions     []string        `json:"optimization_suggestions"`
}

// AnalyzePatterns analyzes what makes a prompt work well or poorly, from its
// text shape, evaluation history, and recent human feedback. Returns
// prompt.ErrPromptNotFound for unknown prompts and ErrNoEvaluations when
// there is no evaluation history to analyze.
func (o *Optimizer) AnalyzePatterns(ctx context.Context, promptID int64) (*Analysis, error) {
	p, err := o.store.GetPrompt(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("loading prompt: %w", err)
	}

	evals, err := o.store.ListEvaluations(ctx, promptID, 0)
	if err != nil {
		return nil, fmt.Errorf("loading evaluations: %w", err)
	}
	if len(evals) == 0 {
		return nil, ErrNoEvaluations
	}

	feedback, err := o.store.ListFeedback(ctx, promptID, recentFeedbackLimit)
	if err != nil {
		return nil, fmt.Errorf("loading feedback: %w", err)
	}

	chars := analyzeCharacteristics(p.Text)

	high, low := 0, 0
	var scoreSum float64
	for _, e := range evals {
		if e.OverallScore == 0 {
			continue
		}
		scoreSum += e.OverallScore
		if e.OverallScore > highScoreCutoff {
			high++
		}
		if e.OverallScore < lowScoreCutoff {
			low++
		}
	}

	var avgRating float64
	if len(feedback) > 0 {
		var sum int32
		for _, f := range feedback {
			sum += f.Rating
		}
		avgRating = float64(sum) / float64(len(feedback))
	}

	return &Analysis{
		Characteristics: chars,
		Performance: Performance{
			TotalEvaluations: len(evals),
			HighScoreCount:   high,
			LowScoreCount:    low,
			AvgScore:         scoreSum / float64(len(evals)),
			AvgHumanRating:   avgRating,
		},
		CommonIssues: identifyCommonIssues(evals),
		Suggestions:  generateSuggestions(p.Text, evals, feedback),
	}, nil
}

func analyzeCharacteristics(text string) Characteristics {
	lower := strings.ToLower(text)

	hasConstraints := false
	for _, term := range constraintTerms {
		if strings.Contains(lower, term) {
			hasConstraints = true
			break
		}
	}

	return Characteristics{
		WordCount:      len(strings.Fields(text)),
		HasQuestions:   strings.Contains(text, "?"),
		HasExamples:    strings.Contains(lower, "example") || strings.Contains(lower, "for instance"),
		HasConstraints: hasConstraints,
	}
}

// identifyCommonIssues scans evaluation notes for known issue keywords.
func identifyCommonIssues(evals []*prompt.Evaluation) []string {
	var notes []string
	for _, e := range evals {
		if e.Notes != "" {
			notes = append(notes, strings.ToLower(e.Notes))
		}
	}
	if len(notes) == 0 {
		return nil
	}

	var issues []string
	for _, issue := range issueKeywords {
		if anyNoteContains(notes, issue.keywords) {
			issues = append(issues, issue.name)
		}
	}
	return issues
}

func anyNoteContains(notes, keywords []string) bool {
	for _, note := range notes {
		for _, kw := range keywords {
			if strings.Contains(note, kw) {
				return true
			}
		}
	}
	return false
}

// generateSuggestions turns the observed history into concrete, textual
// optimization advice.
func generateSuggestions(text string, evals []*prompt.Evaluation, feedback []*prompt.Feedback) []string {
	var suggestions []string

	wordCount := len(strings.Fields(text))
	if wordCount > 100 {
		suggestions = append(suggestions, "Consider shortening the prompt - longer prompts often score lower")
	} else if wordCount < 20 {
		suggestions = append(suggestions, "Add more detail - very short prompts often lack clarity")
	}

	lowScores := 0
	for _, e := range evals {
		if e.OverallScore != 0 && e.OverallScore < 0.5 {
			lowScores++
		}
	}
	if float64(lowScores) > float64(len(evals))*0.3 {
		suggestions = append(suggestions, "This prompt consistently scores low - consider major restructuring")
	}

	if len(feedback) > 0 {
		lowRatings := 0
		for _, f := range feedback {
			if f.Rating <= 2 {
				lowRatings++
			}
		}
		if float64(lowRatings) > float64(len(feedback))*0.4 {
			suggestions = append(suggestions, "Human feedback indicates this prompt needs improvement")
		}
	}

	lower := strings.ToLower(text)
	if !strings.Contains(lower, "example") {
		suggestions = append(suggestions, "Consider adding an example to improve clarity")
	}
	if !strings.Contains(lower, "must") && !strings.Contains(lower, "should") && !strings.Contains(lower, "require") {
		suggestions = append(suggestions, "Add specific requirements or constraints")
	}

	return suggestions
}
