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

// Package scoring provides fast, deterministic prompt scoring using simple
// heuristics. It complements the LLM judge: these scores never require an
// API call and are the ones persisted with each evaluation.
package scoring

import (
	"math"
	"strings"
)

const (
	// optimalWords is the word count scoring highest on the length axis.
	optimalWords = 40

	// lengthSlack divides the distance from optimalWords; prompts more than
	// 60 words away from the optimum score zero on length.
	lengthSlack = 60.0

	// vaguenessPenalty is subtracted from clarity per vague-term occurrence.
	vaguenessPenalty = 0.15
)

// vagueTerms are matched case-insensitively against the prompt text.
// Every occurrence counts, not just the first.
var vagueTerms = []string{"maybe", "sort of", "kind of", "roughly", "approximately"}

// Scores holds the three heuristic axes, each in [0,1] and rounded to
// three decimals.
type Scores struct {
	Length   float64
	Clarity  float64
	Toxicity float64
}

// Heuristics scores a prompt on length, clarity, and toxicity.
//
// Length peaks at 40 words and decays linearly to zero 60 words away in
// either direction. Clarity starts at 1.0 and loses 0.15 per vague-term
// occurrence, floored at zero. Toxicity is a placeholder and always 1.0.
func Heuristics(prompt string) Scores {
	words := len(strings.Fields(prompt))
	length := 1.0 - math.Abs(float64(words)-optimalWords)/lengthSlack
	length = math.Max(0.0, math.Min(1.0, length))

	lower := strings.ToLower(prompt)
	vagueness := 0
	for _, term := range vagueTerms {
		vagueness += strings.Count(lower, term)
	}
	clarity := math.Max(0.0, 1.0-vaguenessPenalty*float64(vagueness))

	return Scores{
		Length:   Round3(length),
		Clarity:  Round3(clarity),
		Toxicity: Round3(1.0),
	}
}

// Overall averages the three axes and rounds to three decimals.
func (s Scores) Overall() float64 {
	return Round3((s.Length + s.Clarity + s.Toxicity) / 3.0)
}

// Round3 rounds half away from zero to three decimals. All scores cross
// serialization and storage boundaries in this form.
func Round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
