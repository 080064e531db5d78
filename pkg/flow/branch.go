package flow

import (
	"formate/pkg/schema"
)

// StepKind discriminates next steps.
type StepKind string

const (
	StepField StepKind = "field"
	StepEnd   StepKind = "end"
)

// Reason explains why a conversation ended.
type Reason string

const (
	ReasonBranchEnd     Reason = "branch_end"     // A branch rule jumped to end
	ReasonPlanExhausted Reason = "plan_exhausted" // The last field was answered
	ReasonHardLimit     Reason = "hard_limit"     // stopping.hardLimit.maxQuestions reached
	ReasonEnoughInfo    Reason = Reason(schema.EndReasonEnoughInfo)
	ReasonTrolling      Reason = Reason(schema.EndReasonTrolling)
)

// NextStep is either the field to ask next or the end of the conversation.
type NextStep struct {
	Kind    StepKind `json:"kind"`
	FieldID string   `json:"fieldId,omitempty"`
	Reason  Reason   `json:"reason,omitempty"`
	// Rule is the index of the branch rule that decided the step, or -1.
	Rule int `json:"rule"`
}

// AskField builds a field step.
func AskField(id string) NextStep {
	return NextStep{Kind: StepField, FieldID: id, Rule: -1}
}

// End builds a terminal step.
func End(reason Reason) NextStep {
	return NextStep{Kind: StepEnd, Reason: reason, Rule: -1}
}

// IsEnd reports whether the step is terminal.
func (s NextStep) IsEnd() bool {
	return s.Kind == StepEnd
}

func (s NextStep) String() string {
	if s.IsEnd() {
		return "end(" + string(s.Reason) + ")"
	}
	return schema.GoToFieldPrefix + s.FieldID
}

// First returns the opening step of a plan: its first field.
func First(plan *schema.FormPlan) NextStep {
	if len(plan.Fields) == 0 {
		return End(ReasonPlanExhausted)
	}
	return AskField(plan.Fields[0].ID)
}

// Next decides what follows the field just answered. Branch rules are
// scanned in declaration order and the first rule whose conditions all hold
// wins. With no match the conversation falls through to the field after
// justAnswered, or ends after the last field.
func Next(plan *schema.FormPlan, answers *schema.AnswerSet, justAnswered string) NextStep {
	for i, rule := range plan.Branching {
		if !EvaluateAll(rule.When, answers) {
			continue
		}
		step := resolve(plan, rule.GoTo, justAnswered)
		step.Rule = i
		return step
	}
	return sequential(plan, justAnswered)
}

func resolve(plan *schema.FormPlan, target schema.GoTo, justAnswered string) NextStep {
	switch target.Kind {
	case schema.GoToKindEnd:
		return End(ReasonBranchEnd)
	case schema.GoToKindField:
		if plan.FieldIndex(target.FieldID) >= 0 {
			return AskField(target.FieldID)
		}
		// Unreachable for validated plans; fall back to declared order.
		return sequential(plan, justAnswered)
	default:
		return sequential(plan, justAnswered)
	}
}

func sequential(plan *schema.FormPlan, justAnswered string) NextStep {
	i := plan.FieldIndex(justAnswered)
	if i < 0 {
		return First(plan)
	}
	if i+1 >= len(plan.Fields) {
		return End(ReasonPlanExhausted)
	}
	return AskField(plan.Fields[i+1].ID)
}
