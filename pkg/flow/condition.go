// Package flow decides the next step of a conversation from a validated
// plan and the answers collected so far. Every function here is pure and
// total: once a plan passed schema.ParsePlan, evaluation never fails.
package flow

import (
	"formate/pkg/schema"
)

// EvaluateCondition tests one condition against the answer set. A field
// without an answer, or a reference to a field the set does not know,
// satisfies not_filled and nothing else.
func EvaluateCondition(c schema.Condition, answers *schema.AnswerSet) bool {
	answer, ok := answers.Get(c.FieldID)
	filled := ok && answer.Filled()

	switch c.Op {
	case schema.OpFilled:
		return filled
	case schema.OpNotFilled:
		return !filled
	}

	if !filled || c.Value == nil {
		return false
	}
	want := *c.Value

	switch c.Op {
	case schema.OpEq:
		return equals(answer, want)
	case schema.OpNeq:
		return !equals(answer, want)
	case schema.OpGt, schema.OpLt:
		got, ok := answer.Scalar()
		if !ok {
			return false
		}
		left, ok := got.Float()
		if !ok {
			return false
		}
		right, ok := want.Float()
		if !ok {
			return false
		}
		if c.Op == schema.OpGt {
			return left > right
		}
		return left < right
	case schema.OpIncludes:
		return includes(answer, want)
	case schema.OpNotIncludes:
		return !includes(answer, want)
	}
	return false
}

// EvaluateAll reports whether every condition holds.
func EvaluateAll(conds []schema.Condition, answers *schema.AnswerSet) bool {
	for _, c := range conds {
		if !EvaluateCondition(c, answers) {
			return false
		}
	}
	return true
}

// equals compares by string coercion. A list equals a value only when it
// holds exactly that one value.
func equals(a schema.Answer, want schema.Scalar) bool {
	items := a.Items()
	return len(items) == 1 && items[0].Equal(want)
}

func includes(a schema.Answer, want schema.Scalar) bool {
	for _, it := range a.Items() {
		if it.Equal(want) {
			return true
		}
	}
	return false
}
