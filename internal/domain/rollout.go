package domain

import "maps"

// Timing accumulates wall-clock costs for one rollout in milliseconds.
// Generation and scoring are tracked separately because they are driven by
// independent scheduler phases.
type Timing struct {
	GenerationMS int64 `json:"generation_ms"`
	ScoringMS    int64 `json:"scoring_ms"`
	TotalMS      int64 `json:"total_ms"`
}

// Example is one dataset entry handed to the engine: the input prompt, the
// reference answer used for scoring, and free-form task metadata.
type Example struct {
	ID     int
	Prompt Prompt
	Answer string
	Task   string
	Info   map[string]any
}

// RolloutState carries all mutable per-rollout data. It is owned exclusively
// by the rollout task that created it; nothing here is safe for cross-task
// mutation and nothing needs to be, because states are never shared.
type RolloutState struct {
	// ExampleID identifies the dataset example this rollout was built from.
	ExampleID int

	// Prompt is the immutable input conversation.
	Prompt Prompt

	// Completion is the append-only conversation built during the rollout.
	Completion []Message

	// Answer is the reference value reward functions score against.
	Answer string

	// Task labels the example's task family.
	Task string

	// Info carries free-form example metadata.
	Info map[string]any

	// Turn counts completed turns. It starts at zero, never decreases, and
	// increases by exactly one per completed turn.
	Turn int

	// Responses retains every raw model response in order.
	Responses []ModelResponse

	// Timing accumulates generation, scoring, and total durations.
	Timing Timing

	// ResourceID is the handle of the externally provisioned sandbox bound
	// to this rollout, empty when none has been acquired.
	ResourceID string

	// PromptTooLong is set when the backend reports the conversation no
	// longer fits its context window. Terminal, not an error.
	PromptTooLong bool

	// Err records the failure that aborted this rollout, if any. A failed
	// rollout still occupies its batch slot so output stays index-aligned.
	Err error

	// Scratch is hook-owned state threaded through the turn loop, e.g. a
	// scripted environment's game state.
	Scratch map[string]any
}

// NewRolloutState builds the initial state for one example with the turn
// counter and timing zeroed.
func NewRolloutState(ex Example) *RolloutState {
	return &RolloutState{
		ExampleID: ex.ID,
		Prompt:    ex.Prompt,
		Answer:    ex.Answer,
		Task:      ex.Task,
		Info:      maps.Clone(ex.Info),
		Scratch:   make(map[string]any),
	}
}

// Context assembles the conversation handed to the backend:
// prompt followed by the completion so far.
func (s *RolloutState) Context() []Message {
	prompt := s.Prompt.AsMessages()
	ctx := make([]Message, 0, len(prompt)+len(s.Completion))
	ctx = append(ctx, prompt...)
	ctx = append(ctx, s.Completion...)
	return ctx
}

// AppendCompletion appends messages to the rollout's completion.
// The completion is append-only; messages are never rewritten or removed.
func (s *RolloutState) AppendCompletion(messages ...Message) {
	s.Completion = append(s.Completion, messages...)
}

// RecordResponse appends a raw model response to the response log.
func (s *RolloutState) RecordResponse(r ModelResponse) {
	s.Responses = append(s.Responses, r)
}

// AdvanceTurn marks one turn as completed.
func (s *RolloutState) AdvanceTurn() { s.Turn++ }

// TakeResourceID returns the rollout's resource handle and clears it.
// The check-and-clear makes release idempotent: the first completion check
// gets the handle, any later check is a no-op.
func (s *RolloutState) TakeResourceID() (string, bool) {
	if s.ResourceID == "" {
		return "", false
	}
	id := s.ResourceID
	s.ResourceID = ""
	return id, true
}

// CompletionText returns the completion's visible text for scoring.
func (s *RolloutState) CompletionText() string {
	return MessagesText(s.Completion)
}
