package tasks

import (
	"formate/pkg/schema"
)

// Plan Generation Task Types

// PlanGenInput is the input for drafting a FormPlan.
type PlanGenInput struct {
	Description  string `json:"description"`
	Seed         string `json:"seed,omitempty"`
	MaxQuestions int    `json:"max_questions,omitempty"`
}

// End Check Task Types

// EndCheckInput is the input for the early-end check.
type EndCheckInput struct {
	Plan    *schema.FormPlan  `json:"plan"`
	Answers *schema.AnswerSet `json:"answers"`
}

// EndCheckOutput is the output from the end check task.
type EndCheckOutput struct {
	End       bool   `json:"end"`
	Reason    string `json:"reason"`
	Reasoning string `json:"reasoning"`
}
