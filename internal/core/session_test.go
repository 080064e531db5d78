package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"formate/pkg/flow"
)

func TestSessionState_NewSessionState(t *testing.T) {
	state := NewSessionState()

	assert.NotNil(t, state)
	assert.Empty(t, state.Messages)
	assert.Empty(t, state.ConversationID)
	assert.False(t, state.Done)
}

func TestSessionState_AddMessage(t *testing.T) {
	state := NewSessionState()

	state.AddMessage("assistant", "How was your week?")
	state.AddMessage("user", "Busy")

	assert.Len(t, state.Messages, 2)
	assert.Equal(t, "assistant", state.Messages[0].Role)
	assert.Equal(t, "How was your week?", state.Messages[0].Content)
	assert.Equal(t, "user", state.Messages[1].Role)
	assert.Equal(t, "Busy", state.Messages[1].Content)
}

func TestSessionState_Advance(t *testing.T) {
	state := NewSessionState()

	state.Advance(&Turn{ConversationID: "c1", PlanID: "FP-1", Next: flow.AskField("q1")})
	assert.Equal(t, "c1", state.ConversationID)
	assert.Equal(t, "FP-1", state.PlanID)
	assert.False(t, state.Done)

	state.Advance(&Turn{ConversationID: "c1", PlanID: "FP-1", Next: flow.End(flow.ReasonPlanExhausted)})
	assert.True(t, state.Done)
	assert.Equal(t, flow.ReasonPlanExhausted, state.Current.Reason)
}

func TestSessionState_Clone(t *testing.T) {
	state := NewSessionState()
	state.AddMessage("user", "Test")
	state.ConversationID = "c1"
	state.Done = true

	clone := state.Clone()

	// Verify clone has same values
	assert.Len(t, clone.Messages, 1)
	assert.Equal(t, "c1", clone.ConversationID)
	assert.True(t, clone.Done)

	// Verify it's a deep copy
	state.AddMessage("user", "Another message")
	assert.Len(t, state.Messages, 2)
	assert.Len(t, clone.Messages, 1)
}
