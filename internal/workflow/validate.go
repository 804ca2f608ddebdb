package workflow

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"complyflow/internal/domain"
)

// Rule kinds.
const (
	RuleRequired = "required"
	RuleEmail    = "email"
	RulePhone    = "phone"
	RuleCustom   = "custom"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Err returns a domain.ValidationError for an invalid result, nil otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return domain.ValidationError{Errors: r.Errors}
}

// Validate applies every rule of step to data and collects one message per
// failing rule. email and phone only apply to values that are present.
func (t *Table) Validate(step domain.WorkflowStep, data map[string]any) Result {
	res := Result{Valid: true, Errors: []string{}}
	for _, rule := range step.Rules {
		value, has := data[rule.Field]
		var ok bool
		switch rule.Type {
		case RuleRequired:
			ok = present(value, has)
		case RuleEmail:
			ok = !present(value, has) || isEmail(value)
		case RulePhone:
			ok = !present(value, has) || isPhone(value)
		case RuleCustom:
			fn, registered := t.rules[rule.Custom]
			ok = registered && fn(value, data)
		}
		if !ok {
			res.Valid = false
			res.Errors = append(res.Errors, rule.Message)
		}
	}
	return res
}

func present(v any, has bool) bool {
	if !has || v == nil {
		return false
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x) != ""
	case bool:
		return x
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

func isEmail(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return validate.Var(strings.TrimSpace(s), "email") == nil
}

func isPhone(v any) bool {
	s := fmt.Sprint(v)
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= minPhoneDigits && digits <= maxPhoneDigits
}

func builtinRules() map[string]CustomRule {
	return map[string]CustomRule{
		// iso_date accepts an empty value; pair it with required when needed.
		"iso_date": func(v any, _ map[string]any) bool {
			if !present(v, true) {
				return true
			}
			s, ok := v.(string)
			if !ok {
				return false
			}
			if _, err := time.Parse(time.DateOnly, s); err == nil {
				return true
			}
			_, err := time.Parse(time.RFC3339, s)
			return err == nil
		},
		"risk_score": func(v any, _ map[string]any) bool {
			n, ok := number(v)
			return ok && n >= 1 && n <= 25
		},
	}
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}
