package rewards

import (
	"context"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-rollout/internal/ports"
)

// foldCaser is a package-level Unicode case folder for performance.
// This avoids creating a new caser for each string comparison.
var foldCaser = cases.Fold()

// ExactMatchReward scores 1.0 when the parsed answer equals the reference
// answer under Unicode case folding, 0.0 otherwise.
func ExactMatchReward(_ context.Context, rc ports.RewardContext) (float64, error) {
	got := parsed(rc)
	if got == "" && rc.Answer == "" {
		return 1.0, nil
	}
	if foldCaser.String(got) == foldCaser.String(rc.Answer) {
		return 1.0, nil
	}
	return 0.0, nil
}

// FuzzyMatchReward builds a reward function that scores the normalized
// Levenshtein similarity between the parsed answer and the reference.
// Similarities below threshold score 0.0; a zero threshold passes the raw
// similarity through.
func FuzzyMatchReward(threshold float64) ports.RewardFunc {
	return func(_ context.Context, rc ports.RewardContext) (float64, error) {
		sim := similarity(foldCaser.String(parsed(rc)), foldCaser.String(rc.Answer))
		if sim < threshold {
			return 0.0, nil
		}
		return sim, nil
	}
}

// parsed extracts the scorable answer from the completion, falling back to
// raw trimming when the rubric carries no parser.
func parsed(rc ports.RewardContext) string {
	if rc.Parser != nil {
		return rc.Parser.ParseAnswer(rc.Completion)
	}
	return BasicParser{}.ParseAnswer(rc.Completion)
}

// similarity computes a normalized Levenshtein similarity in [0, 1].
func similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	// The levenshtein library operates on runes, so the normalizing length
	// must be a rune count as well for Unicode correctness.
	distance := levenshtein.ComputeDistance(s1, s2)
	maxLen := utf8.RuneCountInString(s1)
	if n := utf8.RuneCountInString(s2); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1.0
	}

	sim := 1.0 - float64(distance)/float64(maxLen)
	if sim < 0 {
		sim = 0
	}
	return sim
}
