package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formate/internal/core"
	"formate/pkg/schema"
)

func testPlan(t *testing.T) *schema.FormPlan {
	t.Helper()
	plan, err := schema.ParsePlan(map[string]any{
		"summary": "Lunch preferences",
		"fields": []any{
			map[string]any{"id": "diet", "label": "Any dietary needs?", "type": "short_text", "required": false},
			map[string]any{
				"id": "cuisine", "label": "Favorite cuisine?", "type": "multiple_choice", "required": true,
				"options": []any{
					map[string]any{"id": "thai", "label": "Thai"},
					map[string]any{"id": "pizza", "label": "Pizza"},
				},
			},
			map[string]any{"id": "budget", "label": "Budget?", "type": "rating", "required": true, "validation": map[string]any{"max": 4}},
		},
		"branching": []any{
			map[string]any{
				"when": []any{map[string]any{"fieldId": "cuisine", "op": "eq", "value": "pizza"}},
				"goTo": "end",
			},
		},
		"stopping": map[string]any{"hardLimit": map[string]any{"maxQuestions": 3}, "llmMayEnd": false},
	})
	require.NoError(t, err)
	return plan
}

func testRecord(t *testing.T, id, code, vanity string) *core.PlanRecord {
	return &core.PlanRecord{
		ID:         id,
		Plan:       testPlan(t),
		InviteCode: code,
		Vanity:     vanity,
		CreatedAt:  time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC),
	}
}

func newTestRepository(t *testing.T) *Repository {
	return NewRepository(filepath.Join(t.TempDir(), "data"), nil)
}

func TestRepository_SaveAndGetPlan(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	rec := testRecord(t, "FP-1", "abcd2345", "lunch-poll")

	require.NoError(t, repo.SavePlan(ctx, rec))
	assert.FileExists(t, filepath.Join(repo.BaseDir(), plansDir, "FP-1.yaml"))

	got, err := repo.GetPlan(ctx, "FP-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.InviteCode, got.InviteCode)
	assert.Equal(t, rec.Vanity, got.Vanity)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, rec.Plan, got.Plan)

	id, err := repo.ResolveInvite(ctx, "abcd2345")
	require.NoError(t, err)
	assert.Equal(t, "FP-1", id)

	id, err = repo.ResolveInvite(ctx, "lunch-poll")
	require.NoError(t, err)
	assert.Equal(t, "FP-1", id)
}

func TestRepository_NotFound(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	var nf *core.NotFoundError

	_, err := repo.GetPlan(ctx, "FP-missing")
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "plan", nf.Kind)

	_, err = repo.GetPlan(ctx, "../escape")
	require.True(t, errors.As(err, &nf))

	_, err = repo.ResolveInvite(ctx, "nope")
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "invite", nf.Kind)

	_, err = repo.LoadTranscript(ctx, "c-missing")
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "conversation", nf.Kind)
}

func TestRepository_InviteTokensAreUnique(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SavePlan(ctx, testRecord(t, "FP-1", "abcd2345", "lunch-poll")))

	err := repo.SavePlan(ctx, testRecord(t, "FP-2", "wxyz6789", "lunch-poll"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already belongs to plan FP-1")

	// The failed save left nothing behind.
	_, err = repo.GetPlan(ctx, "FP-2")
	var nf *core.NotFoundError
	assert.True(t, errors.As(err, &nf))
	_, err = repo.ResolveInvite(ctx, "wxyz6789")
	assert.True(t, errors.As(err, &nf))

	err = repo.SavePlan(ctx, testRecord(t, "FP-1", "qrst2345", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestRepository_AppendAndLoadTranscript(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	ts := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.AppendEvents(ctx, "c1",
		&schema.ConversationStarted{EventID_: "e1", ConversationID: "c1", PlanID: "FP-1", Timestamp_: ts},
	))
	require.NoError(t, repo.AppendEvents(ctx, "c1",
		&schema.AnswerRecorded{EventID_: "e2", FieldID: "diet", Answer: schema.Answer{}, Timestamp_: ts.Add(time.Second)},
		&schema.AnswerRecorded{EventID_: "e3", FieldID: "cuisine", Answer: schema.TextAnswer("pizza"), Timestamp_: ts.Add(2 * time.Second)},
	))
	require.NoError(t, repo.AppendEvents(ctx, "c1",
		&schema.ConversationEnded{EventID_: "e4", Reason: "branch_end", Timestamp_: ts.Add(2 * time.Second)},
	))

	tr, err := repo.LoadTranscript(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "FP-1", tr.PlanID)
	assert.Equal(t, 2, tr.Asked())
	assert.True(t, tr.Ended)
	assert.Equal(t, "branch_end", tr.EndReason)

	diet, ok := tr.Answers.Get("diet")
	require.True(t, ok)
	assert.False(t, diet.Filled())

	raw, err := os.ReadFile(filepath.Join(repo.BaseDir(), conversationsDir, "c1.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "event_type: AnswerRecorded")
}

func TestRepository_RefusesEventsAfterEnd(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	ts := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.AppendEvents(ctx, "c1",
		&schema.ConversationStarted{EventID_: "e1", ConversationID: "c1", PlanID: "FP-1", Timestamp_: ts},
		&schema.ConversationEnded{EventID_: "e2", Reason: "hard_limit", Timestamp_: ts},
	))

	err := repo.AppendEvents(ctx, "c1",
		&schema.AnswerRecorded{EventID_: "e3", FieldID: "diet", Answer: schema.TextAnswer("none"), Timestamp_: ts})
	var se *core.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "c1", se.ConversationID)

	tr, err := repo.LoadTranscript(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Asked())
	assert.Equal(t, "hard_limit", tr.EndReason)
}

func TestRepository_AppendEventsRejectsUnsafeID(t *testing.T) {
	repo := newTestRepository(t)
	err := repo.AppendEvents(context.Background(), "../x",
		&schema.ConversationEnded{EventID_: "e", Reason: "x", Timestamp_: time.Now()})
	require.Error(t, err)
	assert.NoDirExists(t, repo.BaseDir())
}

func TestRepository_ConcurrentAppends(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	ts := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.AppendEvents(ctx, "c1",
		&schema.ConversationStarted{EventID_: "start", ConversationID: "c1", PlanID: "FP-1", Timestamp_: ts}))

	fields := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for i, f := range fields {
		wg.Add(1)
		go func(i int, f string) {
			defer wg.Done()
			assert.NoError(t, repo.AppendEvents(ctx, "c1", &schema.AnswerRecorded{
				EventID_: "e-" + f, FieldID: f, Answer: schema.TextAnswer(f),
				Timestamp_: ts.Add(time.Duration(i+1) * time.Second),
			}))
		}(i, f)
	}
	wg.Wait()

	tr, err := repo.LoadTranscript(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, len(fields), tr.Asked())
	for i, entry := range tr.Answers.Entries() {
		assert.Equal(t, fields[i], entry.FieldID)
	}
}

func TestRepository_CanceledContext(t *testing.T) {
	repo := newTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, repo.SavePlan(ctx, testRecord(t, "FP-1", "abcd2345", "")), context.Canceled)
	_, err := repo.GetPlan(ctx, "FP-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRepository_WithInterviewer(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	iv := core.NewInterviewer(repo, repo, nil, nil)

	planMap, err := testPlan(t).ToMap()
	require.NoError(t, err)
	rec, err := iv.CreatePlan(ctx, planMap, "team-lunch")
	require.NoError(t, err)

	resolved, err := iv.ResolvePlan(ctx, "team-lunch")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, resolved.ID)

	turn, err := iv.Start(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "diet", turn.Next.FieldID)

	turn, err = iv.Answer(ctx, turn.ConversationID, "diet", "none")
	require.NoError(t, err)
	assert.Equal(t, "cuisine", turn.Next.FieldID)

	turn, err = iv.Answer(ctx, turn.ConversationID, "cuisine", "pizza")
	require.NoError(t, err)
	assert.True(t, turn.Next.IsEnd())

	// A fresh repository over the same directory sees the same state.
	reopened := NewRepository(repo.BaseDir(), nil)
	tr, err := reopened.LoadTranscript(ctx, turn.ConversationID)
	require.NoError(t, err)
	assert.True(t, tr.Ended)
	assert.Equal(t, "branch_end", tr.EndReason)
	assert.Equal(t, 2, tr.Asked())
}
