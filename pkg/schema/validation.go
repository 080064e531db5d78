package schema

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// ValidatePlan checks every bound, enum and reference of a typed plan. It is
// the same gate ParsePlan applies after decoding, so re-validating an
// accepted plan always succeeds.
func ValidatePlan(p *FormPlan) error {
	if p == nil {
		return newError(KindMissingField, "$", "plan is required")
	}

	if err := checkLength(p.Summary, "summary", SummaryMin, SummaryMax); err != nil {
		return err
	}
	if err := checkLength(p.Seed, "seed", 0, SeedMax); err != nil {
		return err
	}
	if err := checkLength(p.Intro, "intro", 0, IntroMax); err != nil {
		return err
	}
	if err := checkLength(p.Outro, "outro", 0, OutroMax); err != nil {
		return err
	}

	if len(p.Fields) < FieldsMin || len(p.Fields) > FieldsMax {
		return newError(KindLengthOutOfRange, "fields", "must have %d-%d fields, got %d", FieldsMin, FieldsMax, len(p.Fields))
	}
	seen := make(map[string]bool, len(p.Fields))
	for i := range p.Fields {
		path := indexPath("fields", i)
		if err := ValidateField(&p.Fields[i], path); err != nil {
			return err
		}
		if seen[p.Fields[i].ID] {
			return newError(KindDuplicateID, joinPath(path, "id"), "field id %q is already used", p.Fields[i].ID)
		}
		seen[p.Fields[i].ID] = true
	}

	if len(p.Branching) > BranchingMax {
		return newError(KindLengthOutOfRange, "branching", "must have at most %d rules, got %d", BranchingMax, len(p.Branching))
	}
	for i := range p.Branching {
		if err := validateRule(&p.Branching[i], indexPath("branching", i), seen); err != nil {
			return err
		}
	}

	return ValidateStopping(&p.Stopping, "stopping")
}

// ValidateField validates a single field in isolation. Field id uniqueness
// and references are checked by ValidatePlan.
func ValidateField(f *FormField, path string) error {
	if err := checkLength(f.ID, joinPath(path, "id"), FieldIDMin, FieldIDMax); err != nil {
		return err
	}
	if err := checkLength(f.Label, joinPath(path, "label"), FieldLabelMin, FieldLabelMax); err != nil {
		return err
	}
	if !validFieldType(f.Type) {
		return newError(KindInvalidEnum, joinPath(path, "type"), "type must be one of %v, got %q", FieldTypes, f.Type)
	}
	if err := checkLength(f.HelpText, joinPath(path, "helpText"), 0, HelpTextMax); err != nil {
		return err
	}

	optPath := joinPath(path, "options")
	if f.Type.IsChoice() {
		if len(f.Options) == 0 {
			return newError(KindInvalidOptionSet, optPath, "%s field requires at least one option", f.Type)
		}
	} else if len(f.Options) > 0 {
		return newError(KindInvalidOptionSet, optPath, "options are only allowed on choice fields, not %s", f.Type)
	}
	if len(f.Options) > OptionsMax {
		return newError(KindInvalidOptionSet, optPath, "must have at most %d options, got %d", OptionsMax, len(f.Options))
	}
	optionIDs := make(map[string]bool, len(f.Options))
	for i, o := range f.Options {
		oPath := indexPath(optPath, i)
		if err := checkLength(o.ID, joinPath(oPath, "id"), OptionIDMin, OptionIDMax); err != nil {
			return err
		}
		if err := checkLength(o.Label, joinPath(oPath, "label"), OptionLabelMin, OptionLabelMax); err != nil {
			return err
		}
		if optionIDs[o.ID] {
			return newError(KindInvalidOptionSet, joinPath(oPath, "id"), "option id %q is already used in this field", o.ID)
		}
		optionIDs[o.ID] = true
	}

	if v := f.Validation; v != nil {
		vPath := joinPath(path, "validation")
		if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
			return newError(KindLengthOutOfRange, joinPath(vPath, "min"), "min %v must not exceed max %v", *v.Min, *v.Max)
		}
		if err := checkLength(v.Regex, joinPath(vPath, "regex"), 0, RegexMax); err != nil {
			return err
		}
		if v.Regex != "" {
			if _, err := regexp.Compile(v.Regex); err != nil {
				return newError(KindWrongType, joinPath(vPath, "regex"), "regex does not compile: %v", err)
			}
		}
	}

	return nil
}

func validateRule(r *BranchRule, path string, fieldIDs map[string]bool) error {
	whenPath := joinPath(path, "when")
	if len(r.When) < ConditionsMin || len(r.When) > ConditionsMax {
		return newError(KindLengthOutOfRange, whenPath, "must have %d-%d conditions, got %d", ConditionsMin, ConditionsMax, len(r.When))
	}
	for i, c := range r.When {
		cPath := indexPath(whenPath, i)
		if c.FieldID == "" {
			return newError(KindMissingField, joinPath(cPath, "fieldId"), "fieldId is required")
		}
		if !fieldIDs[c.FieldID] {
			return newError(KindDanglingReference, joinPath(cPath, "fieldId"), "field %q does not exist", c.FieldID)
		}
		if !validOp(c.Op) {
			return newError(KindInvalidEnum, joinPath(cPath, "op"), "op must be one of %v, got %q", ConditionOps, c.Op)
		}
		if c.Op.NeedsValue() && c.Value == nil {
			return newError(KindMissingField, joinPath(cPath, "value"), "value is required for op %s", c.Op)
		}
		if c.Value != nil && c.Value.Kind == 0 {
			return newError(KindWrongType, joinPath(cPath, "value"), "value must be a string, number or boolean")
		}
	}

	goToPath := joinPath(path, "goTo")
	switch r.GoTo.Kind {
	case GoToKindNext, GoToKindEnd:
	case GoToKindField:
		if !goToFieldPattern.MatchString(r.GoTo.String()) {
			return newError(KindInvalidGoToFormat, goToPath, "goTo %q must match %s", r.GoTo.String(), goToFieldPattern.String())
		}
		if !fieldIDs[r.GoTo.FieldID] {
			return newError(KindDanglingReference, goToPath, "field %q does not exist", r.GoTo.FieldID)
		}
	default:
		return newError(KindInvalidGoToFormat, goToPath, "goTo must be next, end or field:<id>")
	}
	return nil
}

// ValidateStopping checks a stopping policy.
func ValidateStopping(s *StoppingPolicy, path string) error {
	maxPath := joinPath(joinPath(path, "hardLimit"), "maxQuestions")
	if s.HardLimit.MaxQuestions < MaxQuestionsMin || s.HardLimit.MaxQuestions > MaxQuestionsMax {
		return newError(KindLengthOutOfRange, maxPath, "maxQuestions must be %d-%d, got %d", MaxQuestionsMin, MaxQuestionsMax, s.HardLimit.MaxQuestions)
	}
	reasonsPath := joinPath(path, "endReasons")
	if len(s.EndReasons) > EndReasonsMax {
		return newError(KindLengthOutOfRange, reasonsPath, "must have at most %d end reasons, got %d", EndReasonsMax, len(s.EndReasons))
	}
	seen := make(map[EndReason]bool, len(s.EndReasons))
	for i, r := range s.EndReasons {
		rPath := indexPath(reasonsPath, i)
		if r != EndReasonEnoughInfo && r != EndReasonTrolling {
			return newError(KindInvalidEnum, rPath, "end reason must be one of %v, got %q", EndReasons, r)
		}
		if seen[r] {
			return newError(KindDuplicateID, rPath, "end reason %q is listed twice", r)
		}
		seen[r] = true
	}
	return nil
}

func checkLength(s, path string, min, max int) error {
	n := utf8.RuneCountInString(s)
	if n < min || n > max {
		if min == 0 {
			return newError(KindLengthOutOfRange, path, "must be at most %d characters, got %d", max, n)
		}
		return newError(KindLengthOutOfRange, path, "must be %d-%d characters, got %d", min, max, n)
	}
	return nil
}

func validFieldType(t FieldType) bool {
	for _, ft := range FieldTypes {
		if ft == t {
			return true
		}
	}
	return false
}

func validOp(op ConditionOp) bool {
	for _, o := range ConditionOps {
		if o == op {
			return true
		}
	}
	return false
}

// describe is used by answer checks to name a field in messages.
func describe(f *FormField) string {
	return fmt.Sprintf("%s (%s)", f.ID, f.Type)
}
