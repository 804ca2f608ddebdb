package workflow

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"complyflow/internal/domain"
)

//go:embed definitions.yaml
var builtinDefinitions []byte

//go:embed schema.json
var definitionSchema string

// CustomRule reports whether value satisfies a named rule. data is the whole submission.
type CustomRule func(value any, data map[string]any) bool

// Table is the immutable set of workflow definitions keyed by persona and workflow id.
type Table struct {
	personas  map[string][]domain.Workflow
	workflows map[string]map[string]*domain.Workflow
	steps     map[string]map[string]int
	rules     map[string]CustomRule
}

type Option func(*Table)

// WithCustomRule registers fn under name for rules of type custom.
func WithCustomRule(name string, fn CustomRule) Option {
	return func(t *Table) { t.rules[name] = fn }
}

type document struct {
	Personas map[string][]domain.Workflow `yaml:"personas"`
}

// Default loads the embedded definitions.
func Default(opts ...Option) (*Table, error) {
	return Load(builtinDefinitions, opts...)
}

// LoadFile loads definitions from path, or the embedded set when path is empty.
func LoadFile(path string, opts ...Option) (*Table, error) {
	if path == "" {
		return Default(opts...)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow definitions: %w", err)
	}
	return Load(data, opts...)
}

// Load parses YAML (or JSON) definitions, checks them against the definition
// schema and verifies referential integrity.
func Load(data []byte, opts ...Option) (*Table, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("parse workflow definitions: %w", err)
	}
	if err := checkSchema(generic); err != nil {
		return nil, err
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse workflow definitions: %w", err)
	}
	t := &Table{
		personas:  map[string][]domain.Workflow{},
		workflows: map[string]map[string]*domain.Workflow{},
		steps:     map[string]map[string]int{},
		rules:     builtinRules(),
	}
	for _, o := range opts {
		o(t)
	}
	for persona, wfs := range doc.Personas {
		t.personas[persona] = wfs
		t.workflows[persona] = map[string]*domain.Workflow{}
		for i := range t.personas[persona] {
			wf := &t.personas[persona][i]
			if _, dup := t.workflows[persona][wf.ID]; dup {
				return nil, fmt.Errorf("persona %s: duplicate workflow %s", persona, wf.ID)
			}
			t.workflows[persona][wf.ID] = wf
			idx, err := t.checkWorkflow(*wf)
			if err != nil {
				return nil, fmt.Errorf("workflow %s/%s: %w", persona, wf.ID, err)
			}
			t.steps[stepsKey(persona, wf.ID)] = idx
		}
	}
	return t, nil
}

func checkSchema(doc any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(definitionSchema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("check workflow definitions: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var msgs []string
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("workflow definitions do not match schema: %s", strings.Join(msgs, "; "))
}

func (t *Table) checkWorkflow(wf domain.Workflow) (map[string]int, error) {
	idx := make(map[string]int, len(wf.Steps))
	for i, s := range wf.Steps {
		if _, dup := idx[s.ID]; dup {
			return nil, fmt.Errorf("duplicate step %s", s.ID)
		}
		idx[s.ID] = i
	}
	var errs []error
	for _, s := range wf.Steps {
		if s.Next != "" {
			n, ok := idx[s.Next]
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("step %s: next %s does not exist", s.ID, s.Next))
			case wf.Steps[n].Previous != s.ID:
				errs = append(errs, fmt.Errorf("step %s: next %s does not point back", s.ID, s.Next))
			}
		}
		if s.Previous != "" {
			p, ok := idx[s.Previous]
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("step %s: previous %s does not exist", s.ID, s.Previous))
			case wf.Steps[p].Next != s.ID:
				errs = append(errs, fmt.Errorf("step %s: previous %s does not point forward", s.ID, s.Previous))
			}
		}
		declared := map[string]bool{}
		for _, f := range s.Fields {
			declared[f.Name] = true
		}
		for _, r := range s.Rules {
			if !declared[r.Field] {
				errs = append(errs, fmt.Errorf("step %s: rule on undeclared field %s", s.ID, r.Field))
			}
			if r.Type == RuleCustom {
				if _, ok := t.rules[r.Custom]; !ok {
					errs = append(errs, fmt.Errorf("step %s: custom rule %q is not registered", s.ID, r.Custom))
				}
			}
		}
	}
	return idx, errors.Join(errs...)
}

// Personas returns the persona names in sorted order.
func (t *Table) Personas() []string {
	names := make([]string, 0, len(t.personas))
	for p := range t.personas {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// Workflows returns the workflows of persona in definition order.
func (t *Table) Workflows(persona string) []domain.Workflow {
	return t.personas[persona]
}

func (t *Table) Workflow(persona, workflowID string) (domain.Workflow, error) {
	wf, ok := t.workflows[persona][workflowID]
	if !ok {
		return domain.Workflow{}, fmt.Errorf("workflow %s/%s: %w", persona, workflowID, domain.ErrNotFound)
	}
	return *wf, nil
}

// Steps returns the ordered steps, or nil when the workflow is unknown.
func (t *Table) Steps(persona, workflowID string) []domain.WorkflowStep {
	wf, ok := t.workflows[persona][workflowID]
	if !ok {
		return nil
	}
	return wf.Steps
}

func (t *Table) Step(persona, workflowID, stepID string) (domain.WorkflowStep, error) {
	wf, ok := t.workflows[persona][workflowID]
	if !ok {
		return domain.WorkflowStep{}, fmt.Errorf("workflow %s/%s: %w", persona, workflowID, domain.ErrNotFound)
	}
	i, ok := t.steps[stepsKey(persona, workflowID)][stepID]
	if !ok {
		return domain.WorkflowStep{}, fmt.Errorf("step %s in %s/%s: %w", stepID, persona, workflowID, domain.ErrNotFound)
	}
	return wf.Steps[i], nil
}

// NextStep follows the next pointer of stepID. ok is false on the last step.
func (t *Table) NextStep(persona, workflowID, stepID string) (domain.WorkflowStep, bool, error) {
	cur, err := t.Step(persona, workflowID, stepID)
	if err != nil || cur.Next == "" {
		return domain.WorkflowStep{}, false, err
	}
	next, err := t.Step(persona, workflowID, cur.Next)
	return next, err == nil, err
}

// PreviousStep follows the previous pointer of stepID. ok is false on the first step.
func (t *Table) PreviousStep(persona, workflowID, stepID string) (domain.WorkflowStep, bool, error) {
	cur, err := t.Step(persona, workflowID, stepID)
	if err != nil || cur.Previous == "" {
		return domain.WorkflowStep{}, false, err
	}
	prev, err := t.Step(persona, workflowID, cur.Previous)
	return prev, err == nil, err
}

func stepsKey(persona, workflowID string) string {
	return persona + "/" + workflowID
}
