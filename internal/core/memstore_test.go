package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"formate/pkg/schema"
)

// memStore is an in-memory PlanStore and TranscriptStore.
type memStore struct {
	mu      sync.Mutex
	plans   map[string]*PlanRecord
	invites map[string]string
	events  map[string][]schema.TranscriptEvent

	appendErr error
}

func newMemStore() *memStore {
	return &memStore{
		plans:   map[string]*PlanRecord{},
		invites: map[string]string{},
		events:  map[string][]schema.TranscriptEvent{},
	}
}

func (m *memStore) SavePlan(ctx context.Context, rec *PlanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[rec.ID]; ok {
		return fmt.Errorf("plan %s exists", rec.ID)
	}
	for _, tok := range []string{rec.InviteCode, rec.Vanity} {
		if tok == "" {
			continue
		}
		if _, ok := m.invites[tok]; ok {
			return fmt.Errorf("invite %s taken", tok)
		}
	}
	m.plans[rec.ID] = rec
	m.invites[rec.InviteCode] = rec.ID
	if rec.Vanity != "" {
		m.invites[rec.Vanity] = rec.ID
	}
	return nil
}

func (m *memStore) GetPlan(ctx context.Context, id string) (*PlanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.plans[id]
	if !ok {
		return nil, &NotFoundError{Kind: "plan", ID: id}
	}
	return rec, nil
}

func (m *memStore) ResolveInvite(ctx context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.invites[token]
	if !ok {
		return "", &NotFoundError{Kind: "invite", ID: token}
	}
	return id, nil
}

func (m *memStore) AppendEvents(ctx context.Context, convID string, events ...schema.TranscriptEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	for _, e := range m.events[convID] {
		if _, ok := e.(*schema.ConversationEnded); ok {
			return &StateError{ConversationID: convID, Message: "conversation already ended"}
		}
	}
	m.events[convID] = append(m.events[convID], events...)
	return nil
}

func (m *memStore) LoadTranscript(ctx context.Context, convID string) (*schema.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events, ok := m.events[convID]
	if !ok {
		return nil, &NotFoundError{Kind: "conversation", ID: convID}
	}
	tr := schema.NewTranscript()
	for _, e := range events {
		if err := tr.Apply(e); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

func (m *memStore) eventTypes(convID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events[convID]))
	for _, e := range m.events[convID] {
		out = append(out, e.EventType())
	}
	return out
}

// fakeLock counts acquisitions and can be told to fail.
type fakeLock struct {
	held       bool
	acquireErr error
	acquires   int
	releases   int
}

func (l *fakeLock) Acquire() error {
	if l.acquireErr != nil {
		return l.acquireErr
	}
	if l.held {
		return &LockError{Operation: "acquire", Message: "already held"}
	}
	l.held = true
	l.acquires++
	return nil
}

func (l *fakeLock) Release() error {
	if !l.held {
		return errors.New("not held")
	}
	l.held = false
	l.releases++
	return nil
}

// surveyPayload is a small plan covering choice, rating, text and a branch.
func surveyPayload() map[string]any {
	return map[string]any{
		"summary": "Team offsite feedback",
		"intro":   "Quick questions about the offsite.",
		"outro":   "Thanks!",
		"fields": []any{
			map[string]any{
				"id": "attended", "label": "Did you attend?", "type": "boolean", "required": true,
			},
			map[string]any{
				"id": "rating", "label": "How would you rate it?", "type": "rating", "required": true,
				"validation": map[string]any{"max": 5},
			},
			map[string]any{
				"id": "favorite", "label": "Favorite activity?", "type": "multiple_choice", "required": true,
				"options": []any{
					map[string]any{"id": "hike", "label": "Hike"},
					map[string]any{"id": "dinner", "label": "Dinner"},
				},
			},
			map[string]any{
				"id": "comments", "label": "Anything else?", "type": "long_text", "required": false,
			},
		},
		"branching": []any{
			map[string]any{
				"when": []any{map[string]any{"fieldId": "attended", "op": "eq", "value": false}},
				"goTo": "end",
			},
			map[string]any{
				"when": []any{
					map[string]any{"fieldId": "rating", "op": "lt", "value": 3},
					map[string]any{"fieldId": "comments", "op": "not_filled"},
				},
				"goTo": "field:comments",
			},
		},
		"stopping": map[string]any{
			"hardLimit":  map[string]any{"maxQuestions": 10},
			"llmMayEnd":  true,
			"endReasons": []any{"trolling"},
		},
	}
}

func newTestInterviewer(t *testing.T, gen PlanGenerator) (*Interviewer, *memStore, *PlanRecord) {
	t.Helper()
	store := newMemStore()
	iv := NewInterviewer(store, store, gen, nil)
	rec, err := iv.CreatePlan(context.Background(), surveyPayload(), "")
	require.NoError(t, err)
	return iv, store, rec
}
