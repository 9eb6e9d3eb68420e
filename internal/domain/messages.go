// Package domain contains pure, dependency-free domain models and types
// for the rollout engine.
package domain

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a conversation message.
type Role string

// Conversation roles recognized by the engine.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is the single canonical representation of a tool invocation
// requested by the model. Backend adapters normalize their native tool-call
// shapes into this form before a response enters the engine.
type ToolCall struct {
	// ID uniquely identifies this call within its conversation so tool
	// result messages can reference it.
	ID string `json:"id"`

	// Name is the tool being invoked.
	Name string `json:"name"`

	// Arguments preserves the serialized argument payload verbatim for
	// replay and debugging. The engine never interprets it.
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one entry in a conversation. Assistant messages may carry tool
// calls; tool result messages reference the call they answer via ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// OverlongPromptID is the designated sentinel response identifier marking
// "input exceeded the backend's context window". It is a terminal,
// non-error condition, distinct from a failed generation.
const OverlongPromptID = "overlong-prompt"

// ModelResponse is one raw turn of model output, retained on the rollout
// state for observability.
type ModelResponse struct {
	// ID is the backend's response identifier, or OverlongPromptID.
	ID string `json:"id"`

	// Message is the normalized assistant message, nil for the too-long
	// sentinel.
	Message *Message `json:"message,omitempty"`
}

// OverlongPromptResponse returns the sentinel response indicating the
// conversation no longer fits the backend's input limit.
func OverlongPromptResponse() ModelResponse {
	return ModelResponse{ID: OverlongPromptID}
}

// PromptTooLong reports whether this response is the too-long sentinel.
func (r ModelResponse) PromptTooLong() bool { return r.ID == OverlongPromptID }

// MessageMode selects the conversation shape an engine expects.
type MessageMode string

const (
	// ModeChat runs structured multi-message conversations.
	ModeChat MessageMode = "chat"

	// ModeCompletion runs raw-text prompts.
	ModeCompletion MessageMode = "completion"
)

// Prompt is the immutable input conversation for one example: either an
// ordered message sequence (chat mode) or raw text (completion mode).
type Prompt struct {
	Messages []Message `json:"messages,omitempty"`
	Text     string    `json:"text,omitempty"`
}

// ChatPrompt builds a structured prompt from an ordered message sequence.
func ChatPrompt(messages ...Message) Prompt { return Prompt{Messages: messages} }

// TextPrompt builds a raw-text prompt.
func TextPrompt(text string) Prompt { return Prompt{Text: text} }

// IsChat reports whether the prompt is a structured message sequence.
func (p Prompt) IsChat() bool { return p.Messages != nil }

// AsMessages returns the prompt as a message sequence. Raw-text prompts are
// wrapped in a single user message so the turn loop operates uniformly on
// messages in both modes.
func (p Prompt) AsMessages() []Message {
	if p.IsChat() {
		return p.Messages
	}
	return []Message{{Role: RoleUser, Content: p.Text}}
}

// MessagesText concatenates the text content of a message sequence.
// Tool plumbing (calls and results) is excluded; this is the view reward
// functions score against.
func MessagesText(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		if m.Role == RoleTool || m.Content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

// LastAssistant returns the final assistant message of a sequence, or nil.
func LastAssistant(messages []Message) *Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleAssistant {
			return &messages[i]
		}
	}
	return nil
}
