// Package rewards provides stock parsers and reward functions for common
// scoring needs: exact matching, fuzzy matching, and format adherence.
package rewards

import (
	"context"
	"regexp"
	"strings"

	"github.com/ahrav/go-rollout/internal/domain"
	"github.com/ahrav/go-rollout/internal/ports"
)

var _ ports.Parser = (*BasicParser)(nil)

// BasicParser extracts answers by trimming whitespace from the final
// assistant message. It is the default parser for rubrics that need no
// structured extraction.
type BasicParser struct{}

// Parse returns the text with surrounding whitespace removed.
func (BasicParser) Parse(text string) string { return strings.TrimSpace(text) }

// ParseAnswer extracts the answer from the last assistant message.
func (p BasicParser) ParseAnswer(completion []domain.Message) string {
	last := domain.LastAssistant(completion)
	if last == nil {
		return ""
	}
	return p.Parse(last.Content)
}

// thinkBlock matches a reasoning block at the start of a response,
// tolerating a missing opening tag (models sometimes emit only the close).
var thinkBlock = regexp.MustCompile(`(?s)^(?:<think>)?.*?</think>`)

var _ ports.Parser = (*ThinkParser)(nil)

// ThinkParser strips a leading <think>...</think> reasoning block before
// extracting the answer, so chain-of-thought text never reaches scoring.
type ThinkParser struct{}

// Parse removes the reasoning block, if present, and trims the remainder.
func (ThinkParser) Parse(text string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(text, ""))
}

// ParseAnswer extracts the post-reasoning answer from the last assistant
// message.
func (p ThinkParser) ParseAnswer(completion []domain.Message) string {
	last := domain.LastAssistant(completion)
	if last == nil {
		return ""
	}
	return p.Parse(last.Content)
}

// followsThinkFormat reports whether a response is well-formed for the
// ThinkParser: exactly one reasoning block, properly closed, with a
// non-empty answer after it.
func followsThinkFormat(text string) bool {
	opens := strings.Count(text, "<think>")
	closes := strings.Count(text, "</think>")
	if opens != 1 || closes != 1 {
		return false
	}
	if !strings.HasPrefix(strings.TrimSpace(text), "<think>") {
		return false
	}
	rest := text[strings.Index(text, "</think>")+len("</think>"):]
	return strings.TrimSpace(rest) != ""
}

// ThinkFormatReward scores adherence to the <think> response format: the
// fraction of assistant turns that carry a well-formed reasoning block
// followed by an answer. Tool-calling turns without content are skipped.
func ThinkFormatReward(_ context.Context, rc ports.RewardContext) (float64, error) {
	var total, wellFormed int
	for _, m := range rc.Completion {
		if m.Role != domain.RoleAssistant || m.Content == "" {
			continue
		}
		total++
		if followsThinkFormat(m.Content) {
			wellFormed++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(wellFormed) / float64(total), nil
}
