package schema

// FieldType represents the kind of input a form field collects.
type FieldType string

const (
	FieldShortText      FieldType = "short_text"
	FieldLongText       FieldType = "long_text"
	FieldMultipleChoice FieldType = "multiple_choice"
	FieldCheckbox       FieldType = "checkbox"
	FieldMultiSelect    FieldType = "multi_select"
	FieldRating         FieldType = "rating"
	FieldNumber         FieldType = "number"
	FieldDate           FieldType = "date"
	FieldBoolean        FieldType = "boolean"
)

// FieldTypes lists every accepted field type in declaration order.
var FieldTypes = []FieldType{
	FieldShortText, FieldLongText, FieldMultipleChoice, FieldCheckbox,
	FieldMultiSelect, FieldRating, FieldNumber, FieldDate, FieldBoolean,
}

// IsChoice reports whether the field type is answered from an option set.
func (t FieldType) IsChoice() bool {
	switch t {
	case FieldMultipleChoice, FieldCheckbox, FieldMultiSelect:
		return true
	}
	return false
}

// IsMulti reports whether the field type accepts more than one option.
func (t FieldType) IsMulti() bool {
	return t == FieldCheckbox || t == FieldMultiSelect
}

// IsText reports whether the field type collects free text.
func (t FieldType) IsText() bool {
	return t == FieldShortText || t == FieldLongText
}

// ConditionOp is the comparison applied by a branch condition.
type ConditionOp string

const (
	OpEq          ConditionOp = "eq"
	OpNeq         ConditionOp = "neq"
	OpGt          ConditionOp = "gt"
	OpLt          ConditionOp = "lt"
	OpIncludes    ConditionOp = "includes"
	OpNotIncludes ConditionOp = "not_includes"
	OpFilled      ConditionOp = "filled"
	OpNotFilled   ConditionOp = "not_filled"
)

// ConditionOps lists every accepted condition operator.
var ConditionOps = []ConditionOp{
	OpEq, OpNeq, OpGt, OpLt, OpIncludes, OpNotIncludes, OpFilled, OpNotFilled,
}

// NeedsValue reports whether the operator compares against Condition.Value.
func (op ConditionOp) NeedsValue() bool {
	return op != OpFilled && op != OpNotFilled
}

// EndReason is a reason the conversation engine may give for ending early.
type EndReason string

const (
	EndReasonEnoughInfo EndReason = "enough_info" // Respondent has answered what matters
	EndReasonTrolling   EndReason = "trolling"    // Respondent is not engaging in good faith
)

// EndReasons lists the reasons a stopping policy may permit.
var EndReasons = []EndReason{EndReasonEnoughInfo, EndReasonTrolling}

// ValidationLimits defines the constraints for plan fields.
const (
	SummaryMin      = 1
	SummaryMax      = 800
	SeedMax         = 800
	IntroMax        = 300
	OutroMax        = 300
	FieldsMin       = 1
	FieldsMax       = 20
	BranchingMax    = 50
	FieldIDMin      = 1
	FieldIDMax      = 48
	FieldLabelMin   = 1
	FieldLabelMax   = 120
	HelpTextMax     = 200
	OptionsMax      = 10
	OptionIDMin     = 1
	OptionIDMax     = 48
	OptionLabelMin  = 1
	OptionLabelMax  = 120
	RegexMax        = 256
	ConditionsMin   = 1
	ConditionsMax   = 5
	MaxQuestionsMin = 1
	MaxQuestionsMax = 50
	MaxQuestionsDef = 10
	EndReasonsMax   = 2
	RatingLevelsMin = 1
	RatingLevelsMax = 10
	RatingLevelsDef = 5
	GoToFieldPrefix = "field:"
	GoToNext        = "next"
	GoToEnd         = "end"
	DateLayout      = "2006-01-02"
	AnswerTextMax   = 5000
)
