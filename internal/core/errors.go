package core

import "fmt"

// ValidationError represents a validation failure.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// LockError represents a file locking error.
type LockError struct {
	Operation string
	Message   string
	Err       error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("lock %s: %s", e.Operation, e.Message)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// LLMError represents an LLM operation error.
type LLMError struct {
	Task    string
	Message string
	Err     error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("LLM task %s: %s", e.Task, e.Message)
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a missing plan, conversation or invite.
type NotFoundError struct {
	Kind string // "plan", "conversation", "invite"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// StateError reports an operation the conversation's state does not allow,
// such as answering after it ended.
type StateError struct {
	ConversationID string
	Message        string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("conversation %s: %s", e.ConversationID, e.Message)
}

// PolicyError reports an early end the plan's stopping policy does not permit.
type PolicyError struct {
	PlanID string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("plan %s does not permit ending early for %q", e.PlanID, e.Reason)
}
