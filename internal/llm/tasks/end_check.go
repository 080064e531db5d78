package tasks

import (
	"context"
	"fmt"

	"formate/internal/llm"
	"formate/pkg/flow"
	"formate/pkg/schema"
)

// ExecuteEndCheck asks the model whether an interview may end before the
// plan runs out. The plan's stopping policy has the last word: a reason it
// does not permit is reported as End=false without calling the model.
func ExecuteEndCheck(
	client *llm.Client,
	ctx context.Context,
	input *EndCheckInput,
) (*EndCheckOutput, error) {
	var allowed []schema.EndReason
	for _, r := range schema.EndReasons {
		if flow.MayEnd(input.Plan, r) {
			allowed = append(allowed, r)
		}
	}
	if len(allowed) == 0 {
		return &EndCheckOutput{Reasoning: "plan does not allow ending early"}, nil
	}

	prompt := llm.BuildEndCheckPrompt(input.Plan, input.Answers, allowed)

	validate := func(output *EndCheckOutput) error {
		if output.Reasoning == "" {
			return fmt.Errorf("reasoning is required")
		}
		if !output.End {
			return nil
		}
		if !flow.MayEnd(input.Plan, schema.EndReason(output.Reason)) {
			return fmt.Errorf("reason must be one of %v, got %q", allowed, output.Reason)
		}
		return nil
	}

	result, err := llm.GenerateStructured[EndCheckOutput](
		client,
		ctx,
		client.EndCheckModel(),
		prompt,
		validate,
	)
	if err != nil {
		return nil, fmt.Errorf("end check task failed: %w", err)
	}

	if !result.End {
		result.Reason = ""
	}
	return result, nil
}
