package core

import (
	"formate/pkg/flow"
)

// SessionState represents the in-memory state of an interactive interview.
type SessionState struct {
	ConversationID string
	PlanID         string
	Current        flow.NextStep
	Messages       []Message
	Done           bool
}

// Message represents a conversation message.
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// NewSessionState creates a new session state.
func NewSessionState() *SessionState {
	return &SessionState{
		Messages: make([]Message, 0),
	}
}

// AddMessage adds a message to the conversation history.
func (s *SessionState) AddMessage(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}

// Advance records the turn the interviewer returned.
func (s *SessionState) Advance(t *Turn) {
	s.ConversationID = t.ConversationID
	s.PlanID = t.PlanID
	s.Current = t.Next
	s.Done = t.Next.IsEnd()
}

// Clone creates a deep copy of the session state.
func (s *SessionState) Clone() *SessionState {
	clone := &SessionState{
		ConversationID: s.ConversationID,
		PlanID:         s.PlanID,
		Current:        s.Current,
		Messages:       make([]Message, len(s.Messages)),
		Done:           s.Done,
	}

	copy(clone.Messages, s.Messages)

	return clone
}
