package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRolloutState(t *testing.T) {
	info := map[string]any{"difficulty": "hard"}
	ex := Example{
		ID:     7,
		Prompt: ChatPrompt(Message{Role: RoleUser, Content: "q"}),
		Answer: "a",
		Task:   "qa",
		Info:   info,
	}

	state := NewRolloutState(ex)

	assert.Equal(t, 7, state.ExampleID)
	assert.Equal(t, "a", state.Answer)
	assert.Equal(t, "qa", state.Task)
	assert.Zero(t, state.Turn)
	assert.Empty(t, state.Completion)
	assert.NotNil(t, state.Scratch)

	// Info is cloned so hook mutations never leak back into the dataset.
	state.Info["difficulty"] = "easy"
	assert.Equal(t, "hard", info["difficulty"])
}

func TestRolloutStateContext(t *testing.T) {
	state := NewRolloutState(Example{
		Prompt: ChatPrompt(
			Message{Role: RoleSystem, Content: "sys"},
			Message{Role: RoleUser, Content: "q"},
		),
	})
	state.AppendCompletion(Message{Role: RoleAssistant, Content: "a1"})
	state.AppendCompletion(
		Message{Role: RoleUser, Content: "env"},
		Message{Role: RoleAssistant, Content: "a2"},
	)

	ctx := state.Context()
	require.Len(t, ctx, 5)
	assert.Equal(t, "sys", ctx[0].Content)
	assert.Equal(t, "q", ctx[1].Content)
	assert.Equal(t, "a1", ctx[2].Content)
	assert.Equal(t, "env", ctx[3].Content)
	assert.Equal(t, "a2", ctx[4].Content)

	// The assembled context is a copy; mutating it must not corrupt the
	// prompt or completion.
	ctx[0].Content = "mutated"
	assert.Equal(t, "sys", state.Prompt.Messages[0].Content)
}

func TestTakeResourceID(t *testing.T) {
	state := NewRolloutState(Example{})

	id, ok := state.TakeResourceID()
	assert.False(t, ok, "no handle bound yet")
	assert.Empty(t, id)

	state.ResourceID = "sb-123"

	id, ok = state.TakeResourceID()
	assert.True(t, ok)
	assert.Equal(t, "sb-123", id)

	// Second take is a no-op: exactly-once release semantics.
	id, ok = state.TakeResourceID()
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestRecordResponseAndAdvanceTurn(t *testing.T) {
	state := NewRolloutState(Example{})

	state.RecordResponse(ModelResponse{ID: "r1"})
	state.RecordResponse(OverlongPromptResponse())
	require.Len(t, state.Responses, 2)
	assert.True(t, state.Responses[1].PromptTooLong())

	state.AdvanceTurn()
	state.AdvanceTurn()
	assert.Equal(t, 2, state.Turn)
}

func TestCompletionText(t *testing.T) {
	state := NewRolloutState(Example{})
	state.AppendCompletion(
		Message{Role: RoleAssistant, Content: "step one"},
		Message{Role: RoleTool, Content: "ignored"},
		Message{Role: RoleAssistant, Content: "done"},
	)
	assert.Equal(t, "step one\ndone", state.CompletionText())
}
