package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScalarKind discriminates Scalar values.
type ScalarKind int

const (
	ScalarString ScalarKind = iota + 1
	ScalarNumber
	ScalarBool
)

// Scalar is a string, number or boolean.
type Scalar struct {
	Kind ScalarKind
	Str  string
	Num  float64
	Bool bool
}

func String(s string) Scalar  { return Scalar{Kind: ScalarString, Str: s} }
func Number(n float64) Scalar { return Scalar{Kind: ScalarNumber, Num: n} }
func Boolean(b bool) Scalar   { return Scalar{Kind: ScalarBool, Bool: b} }

// StringPtr returns a pointer to a string scalar, for Condition.Value.
func StringPtr(s string) *Scalar {
	v := String(s)
	return &v
}

// NumberPtr returns a pointer to a number scalar.
func NumberPtr(n float64) *Scalar {
	v := Number(n)
	return &v
}

// BoolPtr returns a pointer to a boolean scalar.
func BoolPtr(b bool) *Scalar {
	v := Boolean(b)
	return &v
}

// ScalarOf converts a decoded JSON or YAML value into a Scalar.
func ScalarOf(v any) (Scalar, bool) {
	switch x := v.(type) {
	case string:
		return String(x), true
	case bool:
		return Boolean(x), true
	case Scalar:
		return x, true
	}
	if n, ok := numberOf(v); ok {
		return Number(n), true
	}
	return Scalar{}, false
}

// String returns the string coercion used for equality and set membership.
func (s Scalar) String() string {
	switch s.Kind {
	case ScalarNumber:
		return strconv.FormatFloat(s.Num, 'f', -1, 64)
	case ScalarBool:
		return strconv.FormatBool(s.Bool)
	default:
		return s.Str
	}
}

// Float coerces the scalar to a finite number.
func (s Scalar) Float() (float64, bool) {
	var n float64
	switch s.Kind {
	case ScalarNumber:
		n = s.Num
	case ScalarString:
		trimmed := strings.TrimSpace(s.Str)
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	case ScalarBool:
		if s.Bool {
			n = 1
		}
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// Equal compares two scalars by their string coercion.
func (s Scalar) Equal(o Scalar) bool {
	return s.String() == o.String()
}

// Interface returns the plain Go value.
func (s Scalar) Interface() any {
	switch s.Kind {
	case ScalarNumber:
		return s.Num
	case ScalarBool:
		return s.Bool
	case ScalarString:
		return s.Str
	}
	return nil
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Interface())
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, ok := ScalarOf(v)
	if !ok {
		return fmt.Errorf("value must be a string, number or boolean")
	}
	*s = parsed
	return nil
}

func (s Scalar) MarshalYAML() (interface{}, error) {
	return s.Interface(), nil
}

func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	parsed, ok := ScalarOf(v)
	if !ok {
		return fmt.Errorf("value must be a string, number or boolean")
	}
	*s = parsed
	return nil
}

// Answer is a respondent's value for one field: a single scalar or a list.
// The zero Answer means "not answered".
type Answer struct {
	list   bool
	scalar Scalar
	items  []Scalar
}

// ScalarAnswer wraps a single value.
func ScalarAnswer(s Scalar) Answer { return Answer{scalar: s} }

// ListAnswer wraps a list of values.
func ListAnswer(items ...Scalar) Answer {
	cp := make([]Scalar, len(items))
	copy(cp, items)
	return Answer{list: true, items: cp}
}

// TextAnswer is shorthand for a string answer.
func TextAnswer(s string) Answer { return ScalarAnswer(String(s)) }

// IsList reports whether the answer holds a list.
func (a Answer) IsList() bool { return a.list }

// Scalar returns the single value. ok is false for list answers.
func (a Answer) Scalar() (Scalar, bool) {
	if a.list || a.scalar.Kind == 0 {
		return Scalar{}, false
	}
	return a.scalar, true
}

// Items returns the answer as a set: the list items, or the scalar alone.
func (a Answer) Items() []Scalar {
	if a.list {
		return a.items
	}
	if a.scalar.Kind == 0 {
		return nil
	}
	return []Scalar{a.scalar}
}

// Filled reports whether the answer exists and is non-empty.
func (a Answer) Filled() bool {
	if a.list {
		return len(a.items) > 0
	}
	switch a.scalar.Kind {
	case 0:
		return false
	case ScalarString:
		return a.scalar.Str != ""
	}
	return true
}

// Interface returns the plain Go value for serialization.
func (a Answer) Interface() any {
	if a.list {
		out := make([]any, len(a.items))
		for i, it := range a.items {
			out[i] = it.Interface()
		}
		return out
	}
	return a.scalar.Interface()
}

func (a Answer) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Interface())
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseStoredAnswer(v)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Answer) MarshalYAML() (interface{}, error) {
	return a.Interface(), nil
}

func (a *Answer) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	parsed, err := ParseStoredAnswer(v)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseStoredAnswer converts a raw stored value into an Answer. Arrays become
// lists, strings holding a JSON array of scalars become lists, nil becomes the
// empty answer and anything else scalar becomes a scalar answer. A string
// whose array nests arrays or objects stays a plain string.
func ParseStoredAnswer(raw any) (Answer, error) {
	switch v := raw.(type) {
	case nil:
		return Answer{}, nil
	case Answer:
		return v, nil
	case []any:
		return listOf(v)
	case []string:
		items := make([]Scalar, len(v))
		for i, s := range v {
			items[i] = String(s)
		}
		return ListAnswer(items...), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") {
			var arr []any
			if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
				if list, err := listOf(arr); err == nil {
					return list, nil
				}
			}
		}
		return TextAnswer(v), nil
	}
	s, ok := ScalarOf(raw)
	if !ok {
		return Answer{}, fmt.Errorf("unsupported answer type %T", raw)
	}
	return ScalarAnswer(s), nil
}

func listOf(values []any) (Answer, error) {
	items := make([]Scalar, 0, len(values))
	for i, el := range values {
		s, ok := ScalarOf(el)
		if !ok {
			return Answer{}, fmt.Errorf("answer item %d: unsupported type %T", i, el)
		}
		items = append(items, s)
	}
	return ListAnswer(items...), nil
}

// AnsweredField is one entry of an answer history.
type AnsweredField struct {
	FieldID string `json:"fieldId" yaml:"fieldId"`
	Answer  Answer `json:"answer" yaml:"answer"`
}

// AnswerSet is the ordered answer history of a conversation. Re-answering a
// field replaces its value but keeps its original position. Every Put counts
// as one turn, repeats included.
type AnswerSet struct {
	entries []AnsweredField
	turns   int
}

// NewAnswerSet builds a set from an ordered history.
func NewAnswerSet(history ...AnsweredField) *AnswerSet {
	s := &AnswerSet{}
	for _, h := range history {
		s.Put(h.FieldID, h.Answer)
	}
	return s
}

// Put records an answer.
func (s *AnswerSet) Put(fieldID string, a Answer) {
	s.turns++
	for i := range s.entries {
		if s.entries[i].FieldID == fieldID {
			s.entries[i].Answer = a
			return
		}
	}
	s.entries = append(s.entries, AnsweredField{FieldID: fieldID, Answer: a})
}

// Get returns the answer for fieldID.
func (s *AnswerSet) Get(fieldID string) (Answer, bool) {
	if s == nil {
		return Answer{}, false
	}
	for _, e := range s.entries {
		if e.FieldID == fieldID {
			return e.Answer, true
		}
	}
	return Answer{}, false
}

// Len returns the number of distinct answered fields.
func (s *AnswerSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Turns returns how many answers were recorded, counting a field once per
// time it was answered.
func (s *AnswerSet) Turns() int {
	if s == nil {
		return 0
	}
	return s.turns
}

// Entries returns a copy of the history in asking order.
func (s *AnswerSet) Entries() []AnsweredField {
	if s == nil {
		return nil
	}
	out := make([]AnsweredField, len(s.entries))
	copy(out, s.entries)
	return out
}

// Last returns the most recently added field id.
func (s *AnswerSet) Last() (string, bool) {
	if s.Len() == 0 {
		return "", false
	}
	return s.entries[len(s.entries)-1].FieldID, true
}

// Clone returns an independent copy.
func (s *AnswerSet) Clone() *AnswerSet {
	return &AnswerSet{entries: s.Entries(), turns: s.Turns()}
}

// MarshalJSON encodes the set as its ordered history.
func (s *AnswerSet) MarshalJSON() ([]byte, error) {
	entries := s.Entries()
	if entries == nil {
		entries = []AnsweredField{}
	}
	return json.Marshal(entries)
}

// UnmarshalJSON decodes an ordered history, merging repeated fields.
func (s *AnswerSet) UnmarshalJSON(data []byte) error {
	var history []AnsweredField
	if err := json.Unmarshal(data, &history); err != nil {
		return err
	}
	*s = *NewAnswerSet(history...)
	return nil
}
