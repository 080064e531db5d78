package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formate/internal/llm/tasks"
	"formate/pkg/flow"
	"formate/pkg/schema"
)

func TestInterviewer_CreatePlan(t *testing.T) {
	ctx := context.Background()

	t.Run("valid plan gets id and invite code", func(t *testing.T) {
		store := newMemStore()
		iv := NewInterviewer(store, store, nil, nil)

		rec, err := iv.CreatePlan(ctx, surveyPayload(), "offsite-2026")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(rec.ID, "FP-"))
		assert.Len(t, rec.InviteCode, 8)
		assert.Equal(t, "offsite-2026", rec.Vanity)
		assert.Len(t, rec.Plan.Fields, 4)

		id, err := store.ResolveInvite(ctx, rec.InviteCode)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, id)
	})

	t.Run("invalid plan is rejected with the validator error", func(t *testing.T) {
		store := newMemStore()
		iv := NewInterviewer(store, store, nil, nil)

		payload := surveyPayload()
		payload["summary"] = ""

		_, err := iv.CreatePlan(ctx, payload, "")
		var ve *schema.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "summary", ve.Path)
		assert.Empty(t, store.plans)
	})

	t.Run("bad vanity slug", func(t *testing.T) {
		store := newMemStore()
		iv := NewInterviewer(store, store, nil, nil)

		_, err := iv.CreatePlan(ctx, surveyPayload(), "no spaces allowed")
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "vanity", ve.Field)
	})

	t.Run("taken vanity slug", func(t *testing.T) {
		store := newMemStore()
		iv := NewInterviewer(store, store, nil, nil)

		_, err := iv.CreatePlan(ctx, surveyPayload(), "offsite")
		require.NoError(t, err)
		_, err = iv.CreatePlan(ctx, surveyPayload(), "Offsite")
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "vanity", ve.Field)
		assert.Contains(t, ve.Message, "already taken")
	})
}

func TestInterviewer_DraftPlan(t *testing.T) {
	ctx := context.Background()
	plan, err := schema.ParsePlan(surveyPayload())
	require.NoError(t, err)

	t.Run("stores generated plan", func(t *testing.T) {
		store := newMemStore()
		gen := NewMockPlanGenerator(plan)
		iv := NewInterviewer(store, store, gen, nil)

		rec, err := iv.DraftPlan(ctx, &tasks.PlanGenInput{Description: "offsite"}, "")
		require.NoError(t, err)
		assert.Equal(t, 1, gen.PlanCalls)
		assert.Same(t, plan, rec.Plan)
	})

	t.Run("generator failure", func(t *testing.T) {
		store := newMemStore()
		gen := NewMockPlanGenerator(nil)
		gen.PlanError = &LLMError{Task: "plan_generation", Message: "boom"}
		iv := NewInterviewer(store, store, gen, nil)

		_, err := iv.DraftPlan(ctx, &tasks.PlanGenInput{Description: "offsite"}, "")
		var le *LLMError
		require.ErrorAs(t, err, &le)
	})

	t.Run("not configured", func(t *testing.T) {
		store := newMemStore()
		iv := NewInterviewer(store, store, nil, nil)

		_, err := iv.DraftPlan(ctx, &tasks.PlanGenInput{Description: "offsite"}, "")
		assert.ErrorIs(t, err, ErrNoGenerator)
	})
}

func TestInterviewer_ResolvePlan(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	iv := NewInterviewer(store, store, nil, nil)

	rec, err := iv.CreatePlan(ctx, surveyPayload(), "offsite")
	require.NoError(t, err)

	for _, ref := range []string{
		rec.ID,
		rec.InviteCode,
		"offsite",
		"OFFSITE",
		"https://forms.example.com/f/" + rec.InviteCode,
		"/join?invite=offsite",
	} {
		t.Run(ref, func(t *testing.T) {
			got, err := iv.ResolvePlan(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, rec.ID, got.ID)
		})
	}

	_, err = iv.ResolvePlan(ctx, "unknown-slug")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestInterviewer_FullConversation(t *testing.T) {
	ctx := context.Background()
	iv, store, rec := newTestInterviewer(t, nil)

	turn, err := iv.Start(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "attended", turn.Next.FieldID)
	assert.Equal(t, "Did you attend?", turn.Field.Label)
	assert.Equal(t, 0, turn.Asked)

	convID := turn.ConversationID
	steps := []struct {
		field string
		raw   any
		next  string
	}{
		{"attended", true, "rating"},
		{"rating", 4.0, "favorite"},
		{"favorite", "hike", "comments"},
	}
	for _, s := range steps {
		turn, err = iv.Answer(ctx, convID, s.field, s.raw)
		require.NoError(t, err, s.field)
		require.Equal(t, s.next, turn.Next.FieldID, "after %s", s.field)
	}

	turn, err = iv.Answer(ctx, convID, "comments", nil)
	require.NoError(t, err)
	assert.True(t, turn.Next.IsEnd())
	assert.Equal(t, flow.ReasonPlanExhausted, turn.Next.Reason)
	assert.Nil(t, turn.Field)
	assert.Equal(t, 4, turn.Asked)

	assert.Equal(t, []string{
		"ConversationStarted", "AnswerRecorded", "AnswerRecorded",
		"AnswerRecorded", "AnswerRecorded", "ConversationEnded",
	}, store.eventTypes(convID))

	tr, err := iv.Transcript(ctx, convID)
	require.NoError(t, err)
	assert.True(t, tr.Ended)
	assert.Equal(t, string(flow.ReasonPlanExhausted), tr.EndReason)
	assert.Equal(t, rec.ID, tr.PlanID)

	_, err = iv.Answer(ctx, convID, "comments", "late")
	var se *StateError
	require.ErrorAs(t, err, &se)
}

func TestInterviewer_BranchToEnd(t *testing.T) {
	ctx := context.Background()
	iv, _, rec := newTestInterviewer(t, nil)

	turn, err := iv.Start(ctx, rec.ID)
	require.NoError(t, err)

	turn, err = iv.Answer(ctx, turn.ConversationID, "attended", false)
	require.NoError(t, err)
	assert.True(t, turn.Next.IsEnd())
	assert.Equal(t, flow.ReasonBranchEnd, turn.Next.Reason)
	assert.Equal(t, 0, turn.Next.Rule)
}

func TestInterviewer_LowRatingAsksCommentsOnce(t *testing.T) {
	ctx := context.Background()
	iv, _, rec := newTestInterviewer(t, nil)

	turn, err := iv.Start(ctx, rec.ID)
	require.NoError(t, err)
	convID := turn.ConversationID

	_, err = iv.Answer(ctx, convID, "attended", "yes")
	require.NoError(t, err)
	turn, err = iv.Answer(ctx, convID, "rating", 2)
	require.NoError(t, err)
	require.Equal(t, "comments", turn.Next.FieldID, "low rating jumps to comments")
	assert.Equal(t, 1, turn.Next.Rule)

	turn, err = iv.Answer(ctx, convID, "comments", "The bus was late.")
	require.NoError(t, err)
	assert.True(t, turn.Next.IsEnd())
	assert.Equal(t, flow.ReasonPlanExhausted, turn.Next.Reason)
}

// loopPlan jumps from b back to a while b is filled.
func loopPlan(maxQuestions int) map[string]any {
	return map[string]any{
		"summary": "Loop",
		"fields": []any{
			map[string]any{"id": "a", "label": "A?", "type": "short_text"},
			map[string]any{"id": "b", "label": "B?", "type": "short_text"},
		},
		"branching": []any{
			map[string]any{
				"when": []any{map[string]any{"fieldId": "b", "op": "filled"}},
				"goTo": "field:a",
			},
		},
		"stopping": map[string]any{"hardLimit": map[string]any{"maxQuestions": maxQuestions}},
	}
}

func TestInterviewer_HardLimitStopsCycles(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	iv := NewInterviewer(store, store, nil, nil)

	rec, err := iv.CreatePlan(ctx, loopPlan(3), "")
	require.NoError(t, err)
	turn, err := iv.Start(ctx, rec.ID)
	require.NoError(t, err)
	convID := turn.ConversationID

	turn, err = iv.Answer(ctx, convID, "a", "one")
	require.NoError(t, err)
	require.Equal(t, "b", turn.Next.FieldID)

	turn, err = iv.Answer(ctx, convID, "b", "two")
	require.NoError(t, err)
	require.Equal(t, "a", turn.Next.FieldID, "b jumps back to a")

	turn, err = iv.Answer(ctx, convID, "a", "three")
	require.NoError(t, err)
	assert.True(t, turn.Next.IsEnd())
	assert.Equal(t, flow.ReasonHardLimit, turn.Next.Reason)
	assert.Equal(t, 3, turn.Asked)

	tr, err := iv.Transcript(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, 2, tr.Answers.Len())
	assert.Equal(t, 3, tr.Asked())
	assert.Equal(t, string(flow.ReasonHardLimit), tr.EndReason)
}

func TestInterviewer_JumpBackAsksAgain(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	iv := NewInterviewer(store, store, nil, nil)

	payload := map[string]any{
		"summary": "Repeat",
		"fields": []any{
			map[string]any{"id": "a", "label": "A?", "type": "short_text"},
			map[string]any{"id": "b", "label": "B?", "type": "short_text"},
		},
		"branching": []any{
			map[string]any{
				"when": []any{map[string]any{"fieldId": "a", "op": "filled"}},
				"goTo": "field:a",
			},
		},
		"stopping": map[string]any{"hardLimit": map[string]any{"maxQuestions": 4}},
	}
	rec, err := iv.CreatePlan(ctx, payload, "")
	require.NoError(t, err)
	turn, err := iv.Start(ctx, rec.ID)
	require.NoError(t, err)
	convID := turn.ConversationID

	for i := 1; i < 4; i++ {
		turn, err = iv.Answer(ctx, convID, "a", "again")
		require.NoError(t, err)
		require.Equal(t, "a", turn.Next.FieldID, "answer %d", i)
		assert.Equal(t, 0, turn.Next.Rule)
		assert.Equal(t, i, turn.Asked)
	}

	turn, err = iv.Answer(ctx, convID, "a", "again")
	require.NoError(t, err)
	assert.True(t, turn.Next.IsEnd())
	assert.Equal(t, flow.ReasonHardLimit, turn.Next.Reason)
}

func TestInterviewer_ConcurrentAnswersEndOnce(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	iv := NewInterviewer(store, store, nil, nil)

	rec, err := iv.CreatePlan(ctx, loopPlan(1), "")
	require.NoError(t, err)
	turn, err := iv.Start(ctx, rec.ID)
	require.NoError(t, err)
	convID := turn.ConversationID

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = iv.Answer(ctx, convID, "a", "first")
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var se *StateError
		assert.ErrorAs(t, err, &se)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, []string{"ConversationStarted", "AnswerRecorded", "ConversationEnded"}, store.eventTypes(convID))

	turn, err = iv.Current(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, flow.ReasonHardLimit, turn.Next.Reason)
}

func TestMemStore_RefusesEventsAfterEnd(t *testing.T) {
	ctx := context.Background()
	iv, store, rec := newTestInterviewer(t, nil)

	turn, err := iv.Start(ctx, rec.ID)
	require.NoError(t, err)
	_, err = iv.End(ctx, turn.ConversationID, schema.EndReasonTrolling)
	require.NoError(t, err)

	err = store.AppendEvents(ctx, turn.ConversationID, &schema.AnswerRecorded{EventID_: "EVT-late", FieldID: "attended", Answer: schema.TextAnswer("yes")})
	var se *StateError
	require.ErrorAs(t, err, &se)
}

func TestInterviewer_AnswerValidation(t *testing.T) {
	ctx := context.Background()
	iv, store, rec := newTestInterviewer(t, nil)

	turn, err := iv.Start(ctx, rec.ID)
	require.NoError(t, err)
	convID := turn.ConversationID

	tests := []struct {
		name  string
		field string
		raw   any
	}{
		{"unknown field", "ghost", "x"},
		{"required left empty", "attended", nil},
		{"not a boolean", "attended", "maybe"},
		{"rating out of range", "rating", 9},
		{"option not offered", "favorite", "karaoke"},
		{"object answer", "comments", map[string]any{"a": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := iv.Answer(ctx, convID, tt.field, tt.raw)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	assert.Equal(t, []string{"ConversationStarted"}, store.eventTypes(convID), "rejected answers are not recorded")
}

func TestInterviewer_HardLimit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	iv := NewInterviewer(store, store, nil, nil)

	payload := surveyPayload()
	payload["stopping"] = map[string]any{"hardLimit": map[string]any{"maxQuestions": 2}}
	rec, err := iv.CreatePlan(ctx, payload, "")
	require.NoError(t, err)

	turn, err := iv.Start(ctx, rec.ID)
	require.NoError(t, err)
	_, err = iv.Answer(ctx, turn.ConversationID, "attended", true)
	require.NoError(t, err)
	turn, err = iv.Answer(ctx, turn.ConversationID, "rating", 5)
	require.NoError(t, err)

	assert.True(t, turn.Next.IsEnd())
	assert.Equal(t, flow.ReasonHardLimit, turn.Next.Reason)
}

func TestInterviewer_End(t *testing.T) {
	ctx := context.Background()
	iv, _, rec := newTestInterviewer(t, nil)

	turn, err := iv.Start(ctx, rec.ID)
	require.NoError(t, err)
	convID := turn.ConversationID

	_, err = iv.End(ctx, convID, schema.EndReasonEnoughInfo)
	var pe *PolicyError
	require.ErrorAs(t, err, &pe, "plan only allows trolling")

	turn, err = iv.End(ctx, convID, schema.EndReasonTrolling)
	require.NoError(t, err)
	assert.True(t, turn.Next.IsEnd())
	assert.Equal(t, flow.ReasonTrolling, turn.Next.Reason)

	_, err = iv.End(ctx, convID, schema.EndReasonTrolling)
	var se *StateError
	require.ErrorAs(t, err, &se)

	_, err = iv.End(ctx, "missing", schema.EndReasonTrolling)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestInterviewer_EarlyEndCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("permitted reason ends", func(t *testing.T) {
		gen := NewMockPlanGenerator(nil)
		gen.EndOutput = &tasks.EndCheckOutput{End: true, Reason: "trolling", Reasoning: "gibberish"}
		iv, _, rec := newTestInterviewer(t, gen)

		turn, err := iv.Start(ctx, rec.ID)
		require.NoError(t, err)
		turn, err = iv.Answer(ctx, turn.ConversationID, "attended", true)
		require.NoError(t, err)

		assert.True(t, turn.Next.IsEnd())
		assert.Equal(t, flow.ReasonTrolling, turn.Next.Reason)
		assert.Equal(t, 1, gen.EndCalls)
	})

	t.Run("unpermitted reason is ignored", func(t *testing.T) {
		gen := NewMockPlanGenerator(nil)
		gen.EndOutput = &tasks.EndCheckOutput{End: true, Reason: "enough_info", Reasoning: "done"}
		iv, _, rec := newTestInterviewer(t, gen)

		turn, err := iv.Start(ctx, rec.ID)
		require.NoError(t, err)
		turn, err = iv.Answer(ctx, turn.ConversationID, "attended", true)
		require.NoError(t, err)
		assert.Equal(t, "rating", turn.Next.FieldID)
	})

	t.Run("model failure does not interrupt", func(t *testing.T) {
		gen := NewMockPlanGenerator(nil)
		gen.EndError = errors.New("provider down")
		iv, _, rec := newTestInterviewer(t, gen)

		turn, err := iv.Start(ctx, rec.ID)
		require.NoError(t, err)
		turn, err = iv.Answer(ctx, turn.ConversationID, "attended", true)
		require.NoError(t, err)
		assert.Equal(t, "rating", turn.Next.FieldID)
	})

	t.Run("llmMayEnd false skips the model", func(t *testing.T) {
		gen := NewMockPlanGenerator(nil)
		store := newMemStore()
		iv := NewInterviewer(store, store, gen, nil)
		payload := surveyPayload()
		payload["stopping"] = map[string]any{"llmMayEnd": false}
		rec, err := iv.CreatePlan(ctx, payload, "")
		require.NoError(t, err)

		turn, err := iv.Start(ctx, rec.ID)
		require.NoError(t, err)
		_, err = iv.Answer(ctx, turn.ConversationID, "attended", true)
		require.NoError(t, err)
		assert.Equal(t, 0, gen.EndCalls)
	})
}

func TestInterviewer_Current(t *testing.T) {
	ctx := context.Background()
	iv, _, rec := newTestInterviewer(t, nil)

	turn, err := iv.Start(ctx, rec.ID)
	require.NoError(t, err)
	convID := turn.ConversationID

	cur, err := iv.Current(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, "attended", cur.Next.FieldID)

	_, err = iv.Answer(ctx, convID, "attended", true)
	require.NoError(t, err)

	cur, err = iv.Current(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, "rating", cur.Next.FieldID)
	assert.Equal(t, 1, cur.Asked)
}

func TestInterviewer_StartUnknownPlan(t *testing.T) {
	store := newMemStore()
	iv := NewInterviewer(store, store, nil, nil)

	_, err := iv.Start(context.Background(), "FP-missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "plan", nf.Kind)
}

func TestInterviewer_AppendFailure(t *testing.T) {
	ctx := context.Background()
	iv, store, rec := newTestInterviewer(t, nil)

	turn, err := iv.Start(ctx, rec.ID)
	require.NoError(t, err)

	store.appendErr = errors.New("disk full")
	_, err = iv.Answer(ctx, turn.ConversationID, "attended", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record answer")
}
