package schema

import "fmt"

// ErrorKind classifies a plan validation failure.
type ErrorKind string

const (
	KindMissingField      ErrorKind = "missing_field"
	KindLengthOutOfRange  ErrorKind = "length_out_of_range"
	KindInvalidEnum       ErrorKind = "invalid_enum"
	KindWrongType         ErrorKind = "wrong_type"
	KindDanglingReference ErrorKind = "dangling_reference"
	KindDuplicateID       ErrorKind = "duplicate_id"
	KindInvalidOptionSet  ErrorKind = "invalid_option_set"
	KindInvalidGoToFormat ErrorKind = "invalid_goto_format"
)

// ValidationError describes the first constraint a plan payload violated.
// Path locates the offending value, e.g. fields[2].options[0].id.
type ValidationError struct {
	Kind       ErrorKind `json:"kind"`
	Path       string    `json:"path"`
	Constraint string    `json:"constraint"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Path, e.Constraint, e.Kind)
}

func newError(kind ErrorKind, path, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Path: path, Constraint: fmt.Sprintf(format, args...)}
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func indexPath(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i)
}
