package schema

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// AnswerError reports an answer that does not fit its field.
type AnswerError struct {
	FieldID string
	Message string
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("answer for %s: %s", e.FieldID, e.Message)
}

func answerErr(f *FormField, format string, args ...any) *AnswerError {
	return &AnswerError{FieldID: f.ID, Message: fmt.Sprintf(format, args...)}
}

// CheckAnswer validates a respondent's answer against the field's type,
// options and validation. An unfilled answer is only accepted for optional
// fields.
func CheckAnswer(f *FormField, a Answer) error {
	if !a.Filled() {
		if f.Required {
			return answerErr(f, "%s is required", describe(f))
		}
		return nil
	}

	switch {
	case f.Type.IsChoice():
		return checkChoice(f, a)
	case f.Type == FieldRating || f.Type == FieldNumber:
		return checkNumeric(f, a)
	case f.Type == FieldBoolean:
		s, ok := a.Scalar()
		if !ok {
			return answerErr(f, "expected a single yes/no value")
		}
		if s.Kind == ScalarBool {
			return nil
		}
		switch strings.ToLower(s.String()) {
		case "true", "false", "yes", "no":
			return nil
		}
		return answerErr(f, "expected yes or no, got %q", s.String())
	case f.Type == FieldDate:
		s, ok := a.Scalar()
		if !ok {
			return answerErr(f, "expected a single date")
		}
		if _, err := time.Parse(DateLayout, s.String()); err != nil {
			return answerErr(f, "expected a date formatted %s, got %q", DateLayout, s.String())
		}
		return nil
	default:
		return checkText(f, a)
	}
}

func checkChoice(f *FormField, a Answer) error {
	items := a.Items()
	if !f.Type.IsMulti() && len(items) != 1 {
		return answerErr(f, "expected exactly one option, got %d", len(items))
	}
	for _, it := range items {
		if _, ok := f.Option(it.String()); !ok {
			return answerErr(f, "%q is not one of the options", it.String())
		}
	}
	return nil
}

func checkNumeric(f *FormField, a Answer) error {
	s, ok := a.Scalar()
	if !ok {
		return answerErr(f, "expected a single number")
	}
	n, ok := s.Float()
	if !ok {
		return answerErr(f, "expected a number, got %q", s.String())
	}
	if f.Type == FieldRating {
		levels := RatingLevels(f.Validation)
		if n < 1 || n > float64(levels) || n != math.Trunc(n) {
			return answerErr(f, "rating must be a whole number from 1 to %d", levels)
		}
		if v := f.Validation; v != nil && v.Min != nil && n < *v.Min {
			return answerErr(f, "must be at least %v", *v.Min)
		}
		return nil
	}
	if v := f.Validation; v != nil {
		if v.Min != nil && n < *v.Min {
			return answerErr(f, "must be at least %v", *v.Min)
		}
		if v.Max != nil && n > *v.Max {
			return answerErr(f, "must be at most %v", *v.Max)
		}
	}
	return nil
}

func checkText(f *FormField, a Answer) error {
	s, ok := a.Scalar()
	if !ok {
		return answerErr(f, "expected text")
	}
	text := s.String()
	if utf8.RuneCountInString(text) > AnswerTextMax {
		return answerErr(f, "must be at most %d characters", AnswerTextMax)
	}
	if f.Validation != nil && f.Validation.Regex != "" {
		re, err := regexp.Compile(f.Validation.Regex)
		if err != nil {
			return answerErr(f, "field regex does not compile: %v", err)
		}
		if !re.MatchString(text) {
			return answerErr(f, "does not match %s", f.Validation.Regex)
		}
	}
	return nil
}
