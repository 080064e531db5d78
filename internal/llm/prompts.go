package llm

import (
	"fmt"
	"strings"

	"formate/pkg/schema"
)

// PlanFormatGuide describes the plan payload to the model. The limits are
// the ones schema.ParsePlan enforces.
var PlanFormatGuide = fmt.Sprintf(`
FormPlan structure:

{
  "summary": "what the creator wants to learn (1-%d chars)",
  "seed": "optional opening context (max %d chars)",
  "intro": "optional greeting shown before the first question (max %d chars)",
  "outro": "optional closing message (max %d chars)",
  "fields": [                                  // %d-%d fields
    {
      "id": "snake_case_id",                   // 1-%d chars, unique
      "label": "the question (1-%d chars)",
      "type": "%s",
      "required": true,
      "helpText": "optional hint (max %d chars)",
      "options": [{"id": "opt_id", "label": "Option"}],   // only for choice types, 1-%d
      "validation": {"min": 0, "max": 10, "regex": "^...$"} // optional
    }
  ],
  "branching": [                               // optional, max %d rules
    {
      "when": [{"fieldId": "an existing field id", "op": "%s", "value": "x"}],  // 1-%d conditions
      "goTo": "next" | "end" | "field:<existing field id>"
    }
  ],
  "stopping": {
    "hardLimit": {"maxQuestions": %d},          // %d-%d
    "llmMayEnd": true,
    "endReasons": ["enough_info", "trolling"]
  }
}

Rules:
- Choice types (multiple_choice, checkbox, multi_select) MUST have options; other types MUST NOT.
- "value" is required for every op except filled and not_filled.
- Every fieldId and goTo target MUST name a field declared in "fields".
- For rating fields, validation.max is the number of levels (1-10, default 5).
`,
	schema.SummaryMax, schema.SeedMax, schema.IntroMax, schema.OutroMax,
	schema.FieldsMin, schema.FieldsMax,
	schema.FieldIDMax, schema.FieldLabelMax,
	joinFieldTypes("|"), schema.HelpTextMax, schema.OptionsMax,
	schema.BranchingMax, joinOps("|"), schema.ConditionsMax,
	schema.MaxQuestionsDef, schema.MaxQuestionsMin, schema.MaxQuestionsMax,
)

func joinFieldTypes(sep string) string {
	names := make([]string, len(schema.FieldTypes))
	for i, t := range schema.FieldTypes {
		names[i] = string(t)
	}
	return strings.Join(names, sep)
}

func joinOps(sep string) string {
	names := make([]string, len(schema.ConditionOps))
	for i, op := range schema.ConditionOps {
		names[i] = string(op)
	}
	return strings.Join(names, sep)
}

// BuildPlanPrompt creates a prompt that drafts a FormPlan from a creator's
// description of what they want to learn.
func BuildPlanPrompt(description, seed string, maxQuestions int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`Design a short conversational survey for this request: "%s"

`, description))

	if seed != "" {
		sb.WriteString(fmt.Sprintf("CONTEXT FROM THE CREATOR:\n%s\n\n", seed))
	}

	if maxQuestions > 0 {
		sb.WriteString(fmt.Sprintf("Ask at most %d questions (set stopping.hardLimit.maxQuestions accordingly).\n\n", maxQuestions))
	}

	sb.WriteString(`GUIDELINES:
1. Start with the question that matters most; keep labels short and friendly
2. Prefer choice fields when the answer space is small
3. Use branching only to skip questions that no longer apply or to end early
4. Do not ask for information the creator did not ask to collect
`)
	sb.WriteString(PlanFormatGuide)
	sb.WriteString("\nReturn ONLY valid JSON with the FormPlan structure above.")

	return sb.String()
}

// BuildEndCheckPrompt asks whether an interview may end before the plan is
// exhausted. allowed lists the end reasons the plan permits.
func BuildEndCheckPrompt(plan *schema.FormPlan, answers *schema.AnswerSet, allowed []schema.EndReason) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("The creator wants to learn: %q\n\n", plan.Summary))

	sb.WriteString("INTERVIEW SO FAR:\n")
	for _, entry := range answers.Entries() {
		label := entry.FieldID
		if f, ok := plan.Field(entry.FieldID); ok {
			label = f.Label
		}
		sb.WriteString(fmt.Sprintf("- Q: %s\n  A: %s\n", label, describeAnswer(entry.Answer)))
	}
	sb.WriteString("\n")

	reasons := make([]string, len(allowed))
	for i, r := range allowed {
		reasons[i] = string(r)
	}

	sb.WriteString(fmt.Sprintf(`Decide whether the interview should end now.
Allowed reasons: %s
- enough_info: the answers already cover what the creator wants to learn
- trolling: the respondent is clearly not answering in good faith

If neither applies, set "end" to false.

Return ONLY valid JSON with this exact structure:
{
  "end": boolean,
  "reason": "one of the allowed reasons, or empty",
  "reasoning": "one sentence"
}`, strings.Join(reasons, ", ")))

	return sb.String()
}

func describeAnswer(a schema.Answer) string {
	if !a.Filled() {
		return "(skipped)"
	}
	items := a.Items()
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	return strings.Join(parts, ", ")
}
