package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockCompleter replays canned replies in order, repeating the last one.
// It records every prompt it receives.
type MockCompleter struct {
	Replies []string // Raw reply texts
	Error   error    // Error to return (if any)

	mu      sync.Mutex
	prompts []string
}

// NewMockCompleter creates a completer that answers with the given replies.
func NewMockCompleter(replies ...string) *MockCompleter {
	return &MockCompleter{Replies: replies}
}

// NewMockCompleterJSON marshals each value into a reply.
func NewMockCompleterJSON(values ...any) (*MockCompleter, error) {
	replies := make([]string, 0, len(values))
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal mock reply: %w", err)
		}
		replies = append(replies, string(data))
	}
	return NewMockCompleter(replies...), nil
}

// Complete implements Completer.
func (m *MockCompleter) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var prompt string
	if len(messages) > 0 {
		prompt = messages[len(messages)-1].Content
	}
	m.prompts = append(m.prompts, prompt)

	if m.Error != nil {
		return "", m.Error
	}
	if len(m.Replies) == 0 {
		return "", NewAPIError(0, "mock has no replies")
	}
	i := len(m.prompts) - 1
	if i >= len(m.Replies) {
		i = len(m.Replies) - 1
	}
	return m.Replies[i], nil
}

// Calls returns the number of completions requested.
func (m *MockCompleter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns every prompt received, oldest first.
func (m *MockCompleter) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// NewMockClient builds a Client backed by a MockCompleter.
func NewMockClient(replies ...string) (*Client, *MockCompleter) {
	mock := NewMockCompleter(replies...)
	client := NewClientWithCompleter(&Config{DefaultModel: "mock/model", MaxRetries: 3}, mock)
	return client, mock
}
