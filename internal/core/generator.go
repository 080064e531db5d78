package core

import (
	"context"

	"formate/internal/llm"
	"formate/internal/llm/tasks"
	"formate/pkg/schema"
)

// PlanGenerator abstracts the LLM tasks for testability.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, input *tasks.PlanGenInput) (*schema.FormPlan, error)
	CheckEnd(ctx context.Context, input *tasks.EndCheckInput) (*tasks.EndCheckOutput, error)
}

// RealPlanGenerator implements PlanGenerator using real LLM calls.
type RealPlanGenerator struct {
	client *llm.Client
}

// NewRealPlanGenerator creates a PlanGenerator backed by client.
func NewRealPlanGenerator(client *llm.Client) PlanGenerator {
	return &RealPlanGenerator{client: client}
}

func (g *RealPlanGenerator) GeneratePlan(ctx context.Context, input *tasks.PlanGenInput) (*schema.FormPlan, error) {
	plan, err := tasks.ExecutePlanGeneration(g.client, ctx, input)
	if err != nil {
		return nil, &LLMError{Task: "plan_generation", Message: "could not draft a valid plan", Err: err}
	}
	return plan, nil
}

func (g *RealPlanGenerator) CheckEnd(ctx context.Context, input *tasks.EndCheckInput) (*tasks.EndCheckOutput, error) {
	out, err := tasks.ExecuteEndCheck(g.client, ctx, input)
	if err != nil {
		return nil, &LLMError{Task: "end_check", Message: "model did not decide", Err: err}
	}
	return out, nil
}

// MockPlanGenerator implements PlanGenerator for testing with canned responses.
type MockPlanGenerator struct {
	Plan      *schema.FormPlan
	EndOutput *tasks.EndCheckOutput

	PlanError error
	EndError  error

	PlanCalls int
	EndCalls  int
}

// NewMockPlanGenerator creates a mock that never ends interviews early.
func NewMockPlanGenerator(plan *schema.FormPlan) *MockPlanGenerator {
	return &MockPlanGenerator{
		Plan:      plan,
		EndOutput: &tasks.EndCheckOutput{End: false, Reasoning: "keep asking"},
	}
}

func (m *MockPlanGenerator) GeneratePlan(ctx context.Context, input *tasks.PlanGenInput) (*schema.FormPlan, error) {
	m.PlanCalls++
	if m.PlanError != nil {
		return nil, m.PlanError
	}
	return m.Plan, nil
}

func (m *MockPlanGenerator) CheckEnd(ctx context.Context, input *tasks.EndCheckInput) (*tasks.EndCheckOutput, error) {
	m.EndCalls++
	if m.EndError != nil {
		return nil, m.EndError
	}
	return m.EndOutput, nil
}
