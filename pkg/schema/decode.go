package schema

import (
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// DecodePlanJSON parses and validates a JSON plan payload.
func DecodePlanJSON(data []byte) (*FormPlan, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse plan json: %w", err)
	}
	return ParsePlan(raw)
}

// DecodePlanYAML parses and validates a YAML plan payload.
func DecodePlanYAML(data []byte) (*FormPlan, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse plan yaml: %w", err)
	}
	return ParsePlan(raw)
}

// ParsePlan turns a loosely typed payload into a validated FormPlan. On
// failure the error is a *ValidationError naming the first violation.
// Out-of-range values are rejected, never clamped.
func ParsePlan(raw any) (*FormPlan, error) {
	m, ok := asMap(raw)
	if !ok {
		return nil, newError(KindWrongType, "$", "plan must be an object")
	}

	plan := &FormPlan{}
	var err error

	if plan.Summary, err = requiredString(m, "", "summary"); err != nil {
		return nil, err
	}
	if plan.Seed, err = optionalString(m, "", "seed"); err != nil {
		return nil, err
	}
	if plan.Intro, err = optionalString(m, "", "intro"); err != nil {
		return nil, err
	}
	if plan.Outro, err = optionalString(m, "", "outro"); err != nil {
		return nil, err
	}

	rawFields, present := m["fields"]
	if !present || rawFields == nil {
		return nil, newError(KindMissingField, "fields", "fields is required")
	}
	fieldList, ok := asList(rawFields)
	if !ok {
		return nil, newError(KindWrongType, "fields", "fields must be an array")
	}
	plan.Fields = make([]FormField, 0, len(fieldList))
	for i, rf := range fieldList {
		f, err := decodeField(rf, indexPath("fields", i))
		if err != nil {
			return nil, err
		}
		plan.Fields = append(plan.Fields, f)
	}

	if rawBranching, present := m["branching"]; present && rawBranching != nil {
		ruleList, ok := asList(rawBranching)
		if !ok {
			return nil, newError(KindWrongType, "branching", "branching must be an array")
		}
		for i, rr := range ruleList {
			rule, err := decodeRule(rr, indexPath("branching", i))
			if err != nil {
				return nil, err
			}
			plan.Branching = append(plan.Branching, rule)
		}
	}

	plan.Stopping = DefaultStoppingPolicy()
	if rawStopping, present := m["stopping"]; present && rawStopping != nil {
		if plan.Stopping, err = decodeStopping(rawStopping, "stopping"); err != nil {
			return nil, err
		}
	}

	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func decodeField(raw any, path string) (FormField, error) {
	m, ok := asMap(raw)
	if !ok {
		return FormField{}, newError(KindWrongType, path, "field must be an object")
	}

	var f FormField
	var err error
	if f.ID, err = requiredString(m, path, "id"); err != nil {
		return FormField{}, err
	}
	if f.Label, err = requiredString(m, path, "label"); err != nil {
		return FormField{}, err
	}
	typ, err := requiredString(m, path, "type")
	if err != nil {
		return FormField{}, err
	}
	f.Type = FieldType(typ)
	if f.Required, err = optionalBool(m, path, "required", true); err != nil {
		return FormField{}, err
	}
	if f.HelpText, err = optionalString(m, path, "helpText"); err != nil {
		return FormField{}, err
	}

	if rawOptions, present := m["options"]; present && rawOptions != nil {
		optPath := joinPath(path, "options")
		list, ok := asList(rawOptions)
		if !ok {
			return FormField{}, newError(KindWrongType, optPath, "options must be an array")
		}
		for i, ro := range list {
			oPath := indexPath(optPath, i)
			om, ok := asMap(ro)
			if !ok {
				return FormField{}, newError(KindWrongType, oPath, "option must be an object")
			}
			var o Option
			if o.ID, err = requiredString(om, oPath, "id"); err != nil {
				return FormField{}, err
			}
			if o.Label, err = requiredString(om, oPath, "label"); err != nil {
				return FormField{}, err
			}
			f.Options = append(f.Options, o)
		}
	}

	if rawValidation, present := m["validation"]; present && rawValidation != nil {
		vPath := joinPath(path, "validation")
		vm, ok := asMap(rawValidation)
		if !ok {
			return FormField{}, newError(KindWrongType, vPath, "validation must be an object")
		}
		v := &FieldValidation{}
		if v.Min, err = optionalNumber(vm, vPath, "min"); err != nil {
			return FormField{}, err
		}
		if v.Max, err = optionalNumber(vm, vPath, "max"); err != nil {
			return FormField{}, err
		}
		if v.Regex, err = optionalString(vm, vPath, "regex"); err != nil {
			return FormField{}, err
		}
		f.Validation = v
	}

	return f, nil
}

func decodeRule(raw any, path string) (BranchRule, error) {
	m, ok := asMap(raw)
	if !ok {
		return BranchRule{}, newError(KindWrongType, path, "branch rule must be an object")
	}

	var rule BranchRule
	whenPath := joinPath(path, "when")
	rawWhen, present := m["when"]
	if !present || rawWhen == nil {
		return BranchRule{}, newError(KindMissingField, whenPath, "when is required")
	}
	list, ok := asList(rawWhen)
	if !ok {
		return BranchRule{}, newError(KindWrongType, whenPath, "when must be an array")
	}
	rule.When = make([]Condition, 0, len(list))
	for i, rc := range list {
		c, err := decodeCondition(rc, indexPath(whenPath, i))
		if err != nil {
			return BranchRule{}, err
		}
		rule.When = append(rule.When, c)
	}

	goToPath := joinPath(path, "goTo")
	target, err := requiredString(m, path, "goTo")
	if err != nil {
		return BranchRule{}, err
	}
	if rule.GoTo, err = ParseGoTo(target); err != nil {
		return BranchRule{}, newError(KindInvalidGoToFormat, goToPath, "%v", err)
	}
	return rule, nil
}

func decodeCondition(raw any, path string) (Condition, error) {
	m, ok := asMap(raw)
	if !ok {
		return Condition{}, newError(KindWrongType, path, "condition must be an object")
	}

	var c Condition
	var err error
	if c.FieldID, err = requiredString(m, path, "fieldId"); err != nil {
		return Condition{}, err
	}
	op, err := requiredString(m, path, "op")
	if err != nil {
		return Condition{}, err
	}
	c.Op = ConditionOp(op)

	rawValue, present := m["value"]
	if !c.Op.NeedsValue() {
		// filled/not_filled ignore any value.
		return c, nil
	}
	valuePath := joinPath(path, "value")
	if !present || rawValue == nil {
		return Condition{}, newError(KindMissingField, valuePath, "value is required for op %s", op)
	}
	s, ok := ScalarOf(rawValue)
	if !ok {
		return Condition{}, newError(KindWrongType, valuePath, "value must be a string, number or boolean")
	}
	c.Value = &s
	return c, nil
}

func decodeStopping(raw any, path string) (StoppingPolicy, error) {
	m, ok := asMap(raw)
	if !ok {
		return StoppingPolicy{}, newError(KindWrongType, path, "stopping must be an object")
	}

	policy := DefaultStoppingPolicy()

	if rawLimit, present := m["hardLimit"]; present && rawLimit != nil {
		limitPath := joinPath(path, "hardLimit")
		lm, ok := asMap(rawLimit)
		if !ok {
			return StoppingPolicy{}, newError(KindWrongType, limitPath, "hardLimit must be an object")
		}
		if rawMax, present := lm["maxQuestions"]; present && rawMax != nil {
			maxPath := joinPath(limitPath, "maxQuestions")
			n, ok := numberOf(rawMax)
			if !ok || n != math.Trunc(n) {
				return StoppingPolicy{}, newError(KindWrongType, maxPath, "maxQuestions must be an integer")
			}
			policy.HardLimit.MaxQuestions = int(n)
		}
	}

	var err error
	if policy.LLMMayEnd, err = optionalBool(m, path, "llmMayEnd", true); err != nil {
		return StoppingPolicy{}, err
	}

	if rawReasons, present := m["endReasons"]; present && rawReasons != nil {
		reasonsPath := joinPath(path, "endReasons")
		list, ok := asList(rawReasons)
		if !ok {
			return StoppingPolicy{}, newError(KindWrongType, reasonsPath, "endReasons must be an array")
		}
		policy.EndReasons = make([]EndReason, 0, len(list))
		for i, rr := range list {
			s, ok := rr.(string)
			if !ok {
				return StoppingPolicy{}, newError(KindWrongType, indexPath(reasonsPath, i), "end reason must be a string")
			}
			policy.EndReasons = append(policy.EndReasons, EndReason(s))
		}
	}

	return policy, nil
}

func requiredString(m map[string]any, base, key string) (string, error) {
	path := joinPath(base, key)
	v, present := m[key]
	if !present || v == nil {
		return "", newError(KindMissingField, path, "%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", newError(KindWrongType, path, "%s must be a string", key)
	}
	return s, nil
}

func optionalString(m map[string]any, base, key string) (string, error) {
	v, present := m[key]
	if !present || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", newError(KindWrongType, joinPath(base, key), "%s must be a string", key)
	}
	return s, nil
}

func optionalBool(m map[string]any, base, key string, def bool) (bool, error) {
	v, present := m[key]
	if !present || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, newError(KindWrongType, joinPath(base, key), "%s must be a boolean", key)
	}
	return b, nil
}

func optionalNumber(m map[string]any, base, key string) (*float64, error) {
	v, present := m[key]
	if !present || v == nil {
		return nil, nil
	}
	n, ok := numberOf(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, newError(KindWrongType, joinPath(base, key), "%s must be a finite number", key)
	}
	return &n, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	list, ok := v.([]any)
	return list, ok
}

func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
