package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"k8s.io/utils/clock"

	"complyflow/internal/domain"
	"complyflow/internal/events"
	"complyflow/internal/storage"
)

// Progress key scopes.
const (
	ScopePersona = "persona"
	ScopeGlobal  = "global"
)

// Tracker records step completions for persona workflows.
type Tracker struct {
	Table  *Table
	Store  *storage.Adapter
	Scope  string
	Clock  clock.PassiveClock
	Events events.Recorder
	Logger *slog.Logger

	mu sync.Mutex
}

func NewTracker(table *Table, store *storage.Adapter, scope string) *Tracker {
	if scope == "" {
		scope = ScopePersona
	}
	return &Tracker{
		Table:  table,
		Store:  store,
		Scope:  scope,
		Clock:  clock.RealClock{},
		Logger: slog.Default(),
	}
}

func (t *Tracker) key(persona, workflowID string) string {
	if t.Scope == ScopeGlobal {
		return storage.WorkflowProgressKey("", workflowID)
	}
	return storage.WorkflowProgressKey(persona, workflowID)
}

func (t *Tracker) fresh(persona string, wf domain.Workflow) domain.WorkflowProgress {
	now := t.Clock.Now().UTC()
	return domain.WorkflowProgress{
		Persona:        persona,
		WorkflowID:     wf.ID,
		CurrentStep:    wf.Steps[0].ID,
		CompletedSteps: []string{},
		Data:           map[string]any{},
		Status:         domain.ProgressNotStarted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Progress returns the stored progress, or a not-started record when none exists.
func (t *Tracker) Progress(ctx context.Context, persona, workflowID string) (domain.WorkflowProgress, error) {
	wf, err := t.Table.Workflow(persona, workflowID)
	if err != nil {
		return domain.WorkflowProgress{}, err
	}
	return t.load(ctx, persona, wf)
}

func (t *Tracker) load(ctx context.Context, persona string, wf domain.Workflow) (domain.WorkflowProgress, error) {
	p := t.fresh(persona, wf)
	found, err := t.Store.Get(ctx, t.key(persona, wf.ID), &p)
	if err != nil {
		return domain.WorkflowProgress{}, fmt.Errorf("load progress %s/%s: %w", persona, wf.ID, err)
	}
	if found {
		if p.CompletedSteps == nil {
			p.CompletedSteps = []string{}
		}
		if p.Data == nil {
			p.Data = map[string]any{}
		}
	}
	return p, nil
}

// CompleteStep validates data against stepID and records the completion.
// An invalid submission returns a domain.ValidationError and changes nothing.
// Completing a step twice lists it twice in CompletedSteps.
func (t *Tracker) CompleteStep(ctx context.Context, persona, workflowID, stepID string, data map[string]any) (domain.WorkflowProgress, error) {
	wf, err := t.Table.Workflow(persona, workflowID)
	if err != nil {
		return domain.WorkflowProgress{}, err
	}
	step, err := t.Table.Step(persona, workflowID, stepID)
	if err != nil {
		return domain.WorkflowProgress{}, err
	}
	if err := t.Table.Validate(step, data).Err(); err != nil {
		return domain.WorkflowProgress{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.load(ctx, persona, wf)
	if err != nil {
		return domain.WorkflowProgress{}, err
	}
	p.Persona = persona
	p.CompletedSteps = append(p.CompletedSteps, step.ID)
	for k, v := range data {
		p.Data[k] = v
	}
	if step.Next != "" {
		p.CurrentStep = step.Next
		p.Status = domain.ProgressInProgress
	} else {
		p.CurrentStep = step.ID
		p.Status = domain.ProgressCompleted
	}
	p.UpdatedAt = t.Clock.Now().UTC()
	if err := t.Store.Set(ctx, t.key(persona, workflowID), p, storage.SetOptions{}); err != nil {
		return domain.WorkflowProgress{}, fmt.Errorf("save progress %s/%s: %w", persona, workflowID, err)
	}

	entityID := persona + "/" + workflowID
	events.Emit(ctx, t.Events, t.Logger, events.Entry{
		Type:       "workflow.step.completed",
		EntityKind: "workflow",
		EntityID:   entityID,
		ActorID:    persona,
		Payload:    events.Payload{"step": step.ID, "current_step": p.CurrentStep},
	})
	if p.Status == domain.ProgressCompleted {
		events.Emit(ctx, t.Events, t.Logger, events.Entry{
			Type:       "workflow.completed",
			EntityKind: "workflow",
			EntityID:   entityID,
			ActorID:    persona,
		})
	}
	return p, nil
}

// Reset removes stored progress for the workflow.
func (t *Tracker) Reset(ctx context.Context, persona, workflowID string) error {
	if _, err := t.Table.Workflow(persona, workflowID); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Store.Remove(ctx, t.key(persona, workflowID))
}

// Percent is the share of distinct workflow steps present in p.CompletedSteps.
func (t *Tracker) Percent(p domain.WorkflowProgress) int {
	steps := t.Table.Steps(p.Persona, p.WorkflowID)
	if len(steps) == 0 {
		return 0
	}
	done := map[string]bool{}
	for _, id := range p.CompletedSteps {
		done[id] = true
	}
	n := 0
	for _, s := range steps {
		if done[s.ID] {
			n++
		}
	}
	return int(math.Round(float64(n) * 100 / float64(len(steps))))
}
