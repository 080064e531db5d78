package flow

import (
	"formate/pkg/schema"
)

// StopDecision is the outcome of the stopping check.
type StopDecision struct {
	Stop   bool
	Reason Reason
}

// CheckStop applies the hard limit: once asked reaches
// stopping.hardLimit.maxQuestions the conversation must end.
func CheckStop(plan *schema.FormPlan, asked int) StopDecision {
	if asked >= plan.Stopping.HardLimit.MaxQuestions {
		return StopDecision{Stop: true, Reason: ReasonHardLimit}
	}
	return StopDecision{}
}

// MayEnd reports whether the conversation engine is permitted to end early
// for reason. It grants permission only; judging whether enough was learned
// is the engine's job.
func MayEnd(plan *schema.FormPlan, reason schema.EndReason) bool {
	return plan.Stopping.Allows(reason)
}

// Decide composes the stopping check with branching: the hard limit is
// consulted first and, when it does not stop the conversation, Next decides.
// Questions asked are counted as answer turns, so cycles built from backward
// jumps still reach the limit.
func Decide(plan *schema.FormPlan, answers *schema.AnswerSet, justAnswered string) NextStep {
	if d := CheckStop(plan, answers.Turns()); d.Stop {
		return End(d.Reason)
	}
	return Next(plan, answers, justAnswered)
}
