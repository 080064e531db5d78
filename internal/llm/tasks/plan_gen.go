package tasks

import (
	"context"
	"fmt"
	"strings"

	"formate/internal/llm"
	"formate/pkg/schema"
)

// ExecutePlanGeneration drafts a FormPlan from a creator's description.
// The reply must pass schema.ParsePlan; failures are fed back to the model.
func ExecutePlanGeneration(
	client *llm.Client,
	ctx context.Context,
	input *PlanGenInput,
) (*schema.FormPlan, error) {
	if strings.TrimSpace(input.Description) == "" {
		return nil, fmt.Errorf("plan generation: description is required")
	}

	prompt := llm.BuildPlanPrompt(input.Description, input.Seed, input.MaxQuestions)

	var plan *schema.FormPlan
	validate := func(raw *map[string]any) error {
		p, err := schema.ParsePlan(*raw)
		if err != nil {
			return err
		}
		if input.MaxQuestions > 0 && p.Stopping.HardLimit.MaxQuestions > input.MaxQuestions {
			return fmt.Errorf("stopping.hardLimit.maxQuestions must be at most %d, got %d",
				input.MaxQuestions, p.Stopping.HardLimit.MaxQuestions)
		}
		plan = p
		return nil
	}

	if _, err := llm.GenerateStructured[map[string]any](
		client,
		ctx,
		"", // Use default model from config
		prompt,
		validate,
	); err != nil {
		return nil, fmt.Errorf("plan generation task failed: %w", err)
	}

	return plan, nil
}
