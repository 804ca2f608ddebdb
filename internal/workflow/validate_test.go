package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complyflow/internal/domain"
	"complyflow/internal/workflow"
)

func stepWith(rules ...domain.ValidationRule) domain.WorkflowStep {
	return domain.WorkflowStep{ID: "s", Title: "S", Rules: rules}
}

func TestRequiredRule(t *testing.T) {
	table, err := workflow.Default()
	require.NoError(t, err)
	step := stepWith(domain.ValidationRule{Field: "x", Type: workflow.RuleRequired, Message: "x is required"})

	res := table.Validate(step, map[string]any{})
	require.False(t, res.Valid)
	require.Equal(t, []string{"x is required"}, res.Errors)

	require.True(t, table.Validate(step, map[string]any{"x": "present"}).Valid)

	for name, v := range map[string]any{
		"nil":        nil,
		"blank":      "   ",
		"empty list": []any{},
		"empty strs": []string{},
		"false":      false,
		"empty map":  map[string]any{},
	} {
		assert.False(t, table.Validate(step, map[string]any{"x": v}).Valid, name)
	}
	for name, v := range map[string]any{
		"zero number": 0,
		"true":        true,
		"list":        []any{"a"},
	} {
		assert.True(t, table.Validate(step, map[string]any{"x": v}).Valid, name)
	}
}

func TestEmailAndPhoneOnlyWhenPresent(t *testing.T) {
	table, err := workflow.Default()
	require.NoError(t, err)
	step := stepWith(
		domain.ValidationRule{Field: "email", Type: workflow.RuleEmail, Message: "bad email"},
		domain.ValidationRule{Field: "phone", Type: workflow.RulePhone, Message: "bad phone"},
	)

	require.True(t, table.Validate(step, map[string]any{}).Valid)
	require.True(t, table.Validate(step, map[string]any{"email": "", "phone": ""}).Valid)
	require.True(t, table.Validate(step, map[string]any{"email": "dpo@example.com", "phone": "+1 (555) 123-4567"}).Valid)

	res := table.Validate(step, map[string]any{"email": "not-an-email", "phone": "12345"})
	require.Equal(t, []string{"bad email", "bad phone"}, res.Errors)

	require.False(t, table.Validate(step, map[string]any{"phone": "1234567890123456"}).Valid)
	require.False(t, table.Validate(step, map[string]any{"email": 42}).Valid)
}

func TestValidateDoesNotShortCircuit(t *testing.T) {
	table, err := workflow.Default()
	require.NoError(t, err)
	step, err := table.Step("worker", "data-access-request", "provide-identity-verification")
	require.NoError(t, err)

	res := table.Validate(step, map[string]any{"phone": "1"})
	require.False(t, res.Valid)
	require.Equal(t, []string{"Full name is required", "Email address is required", "Please enter a valid phone number"}, res.Errors)
	require.Equal(t, domain.KindValidationFailed, domain.KindOf(res.Err()))
}

func TestBuiltinCustomRules(t *testing.T) {
	table, err := workflow.Default()
	require.NoError(t, err)
	risk, err := table.Step("dpo", "dpia", "identify-risks")
	require.NoError(t, err)
	require.True(t, table.Validate(risk, map[string]any{"riskScore": float64(12)}).Valid)
	require.Equal(t, []string{"Risk score must be between 1 and 25"}, table.Validate(risk, map[string]any{"riskScore": 30}).Errors)

	consent, err := table.Step("worker", "consent-management", "update-preferences")
	require.NoError(t, err)
	require.True(t, table.Validate(consent, map[string]any{}).Valid)
	require.True(t, table.Validate(consent, map[string]any{"effectiveDate": "2024-05-01"}).Valid)
	require.False(t, table.Validate(consent, map[string]any{"effectiveDate": "yesterday"}).Valid)

	unknown := stepWith(domain.ValidationRule{Field: "x", Type: workflow.RuleCustom, Custom: "nope", Message: "m"})
	require.Equal(t, []string{"m"}, table.Validate(unknown, map[string]any{"x": 1}).Errors)
}
