package schema

import (
	"fmt"
	"time"
)

// TranscriptEvent is the interface for all conversation log events.
type TranscriptEvent interface {
	EventType() string
	EventID() string
	Timestamp() time.Time
}

// ConversationStarted opens a conversation against a plan.
type ConversationStarted struct {
	EventID_       string    `json:"event_id" yaml:"event_id"`
	ConversationID string    `json:"conversation_id" yaml:"conversation_id"`
	PlanID         string    `json:"plan_id" yaml:"plan_id"`
	Timestamp_     time.Time `json:"timestamp" yaml:"timestamp"`
}

func (e *ConversationStarted) EventType() string    { return "ConversationStarted" }
func (e *ConversationStarted) EventID() string      { return e.EventID_ }
func (e *ConversationStarted) Timestamp() time.Time { return e.Timestamp_ }

// AnswerRecorded stores one respondent answer.
type AnswerRecorded struct {
	EventID_   string    `json:"event_id" yaml:"event_id"`
	FieldID    string    `json:"field_id" yaml:"field_id"`
	Answer     Answer    `json:"answer" yaml:"answer"`
	Timestamp_ time.Time `json:"timestamp" yaml:"timestamp"`
}

func (e *AnswerRecorded) EventType() string    { return "AnswerRecorded" }
func (e *AnswerRecorded) EventID() string      { return e.EventID_ }
func (e *AnswerRecorded) Timestamp() time.Time { return e.Timestamp_ }

// ConversationEnded closes a conversation. Reason is a flow end reason.
type ConversationEnded struct {
	EventID_   string    `json:"event_id" yaml:"event_id"`
	Reason     string    `json:"reason" yaml:"reason"`
	Timestamp_ time.Time `json:"timestamp" yaml:"timestamp"`
}

func (e *ConversationEnded) EventType() string    { return "ConversationEnded" }
func (e *ConversationEnded) EventID() string      { return e.EventID_ }
func (e *ConversationEnded) Timestamp() time.Time { return e.Timestamp_ }

// Transcript is the replayed state of one conversation.
type Transcript struct {
	ConversationID string
	PlanID         string
	Answers        *AnswerSet
	LastFieldID    string
	Ended          bool
	EndReason      string
	StartedAt      time.Time
	UpdatedAt      time.Time
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{Answers: NewAnswerSet()}
}

// Asked returns the number of questions answered so far. A field asked again
// through a backward jump counts again.
func (t *Transcript) Asked() int {
	return t.Answers.Turns()
}

// Apply folds one event into the transcript. Answers recorded after the
// conversation ended are rejected.
func (t *Transcript) Apply(event TranscriptEvent) error {
	switch e := event.(type) {
	case *ConversationStarted:
		if t.ConversationID != "" && t.ConversationID != e.ConversationID {
			return fmt.Errorf("conversation %s already started as %s", e.ConversationID, t.ConversationID)
		}
		t.ConversationID = e.ConversationID
		t.PlanID = e.PlanID
		t.StartedAt = e.Timestamp_
	case *AnswerRecorded:
		if t.Ended {
			return fmt.Errorf("conversation %s already ended", t.ConversationID)
		}
		t.Answers.Put(e.FieldID, e.Answer)
		t.LastFieldID = e.FieldID
	case *ConversationEnded:
		t.Ended = true
		t.EndReason = e.Reason
	default:
		return fmt.Errorf("unknown event type: %T", event)
	}
	if event.Timestamp().After(t.UpdatedAt) {
		t.UpdatedAt = event.Timestamp()
	}
	return nil
}
