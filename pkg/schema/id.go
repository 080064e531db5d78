package schema

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewPlanID generates a new plan ID in format FP-{nanoid(10)}.
func NewPlanID() (string, error) {
	id, err := gonanoid.New(10)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("FP-%s", id), nil
}

// NewEventID generates a new transcript event ID in format EVT-{nanoid(10)}.
func NewEventID() (string, error) {
	id, err := gonanoid.New(10)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("EVT-%s", id), nil
}

// NewConversationID generates a random UUID for a respondent conversation.
func NewConversationID() string {
	return uuid.NewString()
}
