package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Option is a selectable answer of a choice field.
type Option struct {
	ID    string `json:"id" yaml:"id" jsonschema:"minLength=1,maxLength=48"`
	Label string `json:"label" yaml:"label" jsonschema:"minLength=1,maxLength=120"`
}

// FieldValidation constrains an answer. Min and Max bound numeric answers,
// Regex constrains text answers. For rating fields Max is also the number
// of displayed levels, see RatingLevels.
type FieldValidation struct {
	Min   *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max   *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Regex string   `json:"regex,omitempty" yaml:"regex,omitempty" jsonschema:"maxLength=256"`
}

// FormField is one question of a plan.
type FormField struct {
	ID         string           `json:"id" yaml:"id" jsonschema:"minLength=1,maxLength=48"`
	Label      string           `json:"label" yaml:"label" jsonschema:"minLength=1,maxLength=120"`
	Type       FieldType        `json:"type" yaml:"type"`
	Required   bool             `json:"required" yaml:"required"`
	HelpText   string           `json:"helpText,omitempty" yaml:"helpText,omitempty" jsonschema:"maxLength=200"`
	Options    []Option         `json:"options,omitempty" yaml:"options,omitempty" jsonschema:"maxItems=10"`
	Validation *FieldValidation `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// Option returns the option with the given id.
func (f *FormField) Option(id string) (Option, bool) {
	for _, o := range f.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Condition tests a stored answer. Value is nil for filled/not_filled.
type Condition struct {
	FieldID string      `json:"fieldId" yaml:"fieldId"`
	Op      ConditionOp `json:"op" yaml:"op"`
	Value   *Scalar     `json:"value,omitempty" yaml:"value,omitempty"`
}

// GoToKind discriminates branch targets.
type GoToKind string

const (
	GoToKindNext  GoToKind = "next"
	GoToKindEnd   GoToKind = "end"
	GoToKindField GoToKind = "field"
)

var goToFieldPattern = regexp.MustCompile(`^field:[\w-]{1,48}$`)

// GoTo is the parsed target of a branch rule.
type GoTo struct {
	Kind    GoToKind
	FieldID string // set when Kind is GoToKindField
}

// ParseGoTo parses "next", "end" or "field:<id>".
func ParseGoTo(s string) (GoTo, error) {
	switch s {
	case GoToNext:
		return GoTo{Kind: GoToKindNext}, nil
	case GoToEnd:
		return GoTo{Kind: GoToKindEnd}, nil
	}
	if !goToFieldPattern.MatchString(s) {
		return GoTo{}, fmt.Errorf("goTo %q must be next, end or match %s", s, goToFieldPattern.String())
	}
	return GoTo{Kind: GoToKindField, FieldID: strings.TrimPrefix(s, GoToFieldPrefix)}, nil
}

// JumpTo builds a field target.
func JumpTo(fieldID string) GoTo {
	return GoTo{Kind: GoToKindField, FieldID: fieldID}
}

func (g GoTo) String() string {
	switch g.Kind {
	case GoToKindField:
		return GoToFieldPrefix + g.FieldID
	case GoToKindEnd:
		return GoToEnd
	default:
		return GoToNext
	}
}

func (g GoTo) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

func (g *GoTo) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseGoTo(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

func (g GoTo) MarshalYAML() (interface{}, error) {
	return g.String(), nil
}

func (g *GoTo) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseGoTo(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// BranchRule jumps to GoTo when every condition in When holds.
type BranchRule struct {
	When []Condition `json:"when" yaml:"when" jsonschema:"minItems=1,maxItems=5"`
	GoTo GoTo        `json:"goTo" yaml:"goTo"`
}

// HardLimit caps the number of questions asked in one conversation.
type HardLimit struct {
	MaxQuestions int `json:"maxQuestions" yaml:"maxQuestions"`
}

// StoppingPolicy decides when a conversation must or may end.
type StoppingPolicy struct {
	HardLimit  HardLimit   `json:"hardLimit" yaml:"hardLimit"`
	LLMMayEnd  bool        `json:"llmMayEnd" yaml:"llmMayEnd"`
	EndReasons []EndReason `json:"endReasons" yaml:"endReasons"`
}

// DefaultStoppingPolicy returns the policy applied when a plan omits one.
func DefaultStoppingPolicy() StoppingPolicy {
	return StoppingPolicy{
		HardLimit:  HardLimit{MaxQuestions: MaxQuestionsDef},
		LLMMayEnd:  true,
		EndReasons: []EndReason{EndReasonEnoughInfo, EndReasonTrolling},
	}
}

// Allows reports whether the policy permits ending early for reason.
func (s StoppingPolicy) Allows(reason EndReason) bool {
	if !s.LLMMayEnd {
		return false
	}
	for _, r := range s.EndReasons {
		if r == reason {
			return true
		}
	}
	return false
}

// FormPlan is the validated definition of a conversational survey.
// A plan is never mutated once ParsePlan or ValidatePlan accepted it.
type FormPlan struct {
	Summary   string         `json:"summary" yaml:"summary" jsonschema:"minLength=1,maxLength=800"`
	Seed      string         `json:"seed,omitempty" yaml:"seed,omitempty" jsonschema:"maxLength=800"`
	Intro     string         `json:"intro,omitempty" yaml:"intro,omitempty" jsonschema:"maxLength=300"`
	Outro     string         `json:"outro,omitempty" yaml:"outro,omitempty" jsonschema:"maxLength=300"`
	Fields    []FormField    `json:"fields" yaml:"fields" jsonschema:"minItems=1,maxItems=20"`
	Branching []BranchRule   `json:"branching,omitempty" yaml:"branching,omitempty" jsonschema:"maxItems=50"`
	Stopping  StoppingPolicy `json:"stopping" yaml:"stopping"`
}

// FieldIndex returns the position of the field in declaration order, or -1.
func (p *FormPlan) FieldIndex(id string) int {
	for i := range p.Fields {
		if p.Fields[i].ID == id {
			return i
		}
	}
	return -1
}

// Field returns the field with the given id.
func (p *FormPlan) Field(id string) (*FormField, bool) {
	i := p.FieldIndex(id)
	if i < 0 {
		return nil, false
	}
	return &p.Fields[i], true
}

// ToMap renders the plan as the loosely typed payload ParsePlan accepts.
func (p *FormPlan) ToMap() (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	return m, nil
}

// RatingLevels returns the number of rating levels to offer: validation.max
// clamped to [1,10], or 5 when unset.
func RatingLevels(v *FieldValidation) int {
	if v == nil || v.Max == nil {
		return RatingLevelsDef
	}
	// Clamp in float64 so huge values cannot overflow int.
	m := *v.Max
	if m < RatingLevelsMin {
		return RatingLevelsMin
	}
	if m > RatingLevelsMax {
		return RatingLevelsMax
	}
	return int(m)
}
