package tasks

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formate/internal/llm"
	"formate/pkg/schema"
)

const minimalPlanJSON = `{
  "summary": "Lunch preferences",
  "fields": [
    {"id": "q1", "label": "What did you eat?", "type": "short_text", "required": true}
  ],
  "stopping": {"hardLimit": {"maxQuestions": 3}, "llmMayEnd": false, "endReasons": []}
}`

func TestExecutePlanGeneration(t *testing.T) {
	t.Run("valid plan on first attempt", func(t *testing.T) {
		client, mock := llm.NewMockClient(minimalPlanJSON)

		plan, err := ExecutePlanGeneration(client, context.Background(), &PlanGenInput{
			Description: "What do people eat for lunch?",
		})
		require.NoError(t, err)
		assert.Equal(t, "Lunch preferences", plan.Summary)
		assert.Len(t, plan.Fields, 1)
		assert.Equal(t, 1, mock.Calls())
		assert.Contains(t, mock.Prompts()[0], "What do people eat for lunch?")
	})

	t.Run("validator errors are fed back", func(t *testing.T) {
		dangling := strings.Replace(minimalPlanJSON, `"stopping"`,
			`"branching": [{"when": [{"fieldId": "ghost", "op": "filled"}], "goTo": "end"}], "stopping"`, 1)
		client, mock := llm.NewMockClient(dangling, minimalPlanJSON)

		plan, err := ExecutePlanGeneration(client, context.Background(), &PlanGenInput{
			Description: "lunch",
		})
		require.NoError(t, err)
		assert.Empty(t, plan.Branching)
		require.Equal(t, 2, mock.Calls())
		assert.Contains(t, mock.Prompts()[1], "PREVIOUS VALIDATION ERROR")
		assert.Contains(t, mock.Prompts()[1], "ghost")
	})

	t.Run("question budget enforced", func(t *testing.T) {
		client, mock := llm.NewMockClient(minimalPlanJSON)

		_, err := ExecutePlanGeneration(client, context.Background(), &PlanGenInput{
			Description:  "lunch",
			MaxQuestions: 2,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "plan generation task failed")
		assert.Contains(t, err.Error(), "at most 2")
		assert.Equal(t, 3, mock.Calls())
	})

	t.Run("empty description", func(t *testing.T) {
		client, mock := llm.NewMockClient(minimalPlanJSON)

		_, err := ExecutePlanGeneration(client, context.Background(), &PlanGenInput{Description: "  "})
		require.Error(t, err)
		assert.Equal(t, 0, mock.Calls())
	})

	t.Run("provider error", func(t *testing.T) {
		client, mock := llm.NewMockClient()
		mock.Error = llm.NewAPIError(503, "overloaded")

		_, err := ExecutePlanGeneration(client, context.Background(), &PlanGenInput{Description: "lunch"})
		require.Error(t, err)

		var llmErr *llm.LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, llm.ErrorTypeAPI, llmErr.Type)
		assert.Equal(t, 1, mock.Calls())
	})
}

func TestExecutePlanGeneration_Fixture(t *testing.T) {
	fixture, err := llm.LoadFixture("../"+llm.FixturesDir, "plan-generation-commute")
	require.NoError(t, err)

	var input PlanGenInput
	require.NoError(t, fixture.UnmarshalInput(&input))

	mock := llm.FixtureCompleter(fixture)
	client := llm.NewClientWithCompleter(&llm.Config{DefaultModel: fixture.Model}, mock)

	plan, err := ExecutePlanGeneration(client, context.Background(), &input)
	require.NoError(t, err)

	assert.Len(t, plan.Fields, 5)
	assert.Len(t, plan.Branching, 2)
	assert.Equal(t, schema.GoToKindEnd, plan.Branching[0].GoTo.Kind)
	assert.Equal(t, schema.JumpTo("comments"), plan.Branching[1].GoTo)
	assert.LessOrEqual(t, plan.Stopping.HardLimit.MaxQuestions, input.MaxQuestions)
}
