package project

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"complyflow/internal/domain"
	"complyflow/internal/events"
	"complyflow/internal/storage"
)

const day = 24 * time.Hour

type phaseTemplate struct {
	name         string
	from, to     int
	deliverables []string
	milestones   []string
}

var defaultPhases = []phaseTemplate{
	{
		name: "assessment", from: 0, to: 30,
		deliverables: []string{"Privacy gap analysis", "Data inventory", "Risk register"},
		milestones:   []string{"Assessment kickoff", "Gap analysis approved"},
	},
	{
		name: "planning", from: 30, to: 60,
		deliverables: []string{"Compliance roadmap", "RACI matrix", "Budget estimate"},
		milestones:   []string{"Roadmap approved"},
	},
	{
		name: "implementation", from: 60, to: 120,
		deliverables: []string{"Updated policies", "Technical controls", "Staff training records"},
		milestones:   []string{"Policies published", "Controls deployed"},
	},
	{
		name: "validation", from: 120, to: 150,
		deliverables: []string{"Audit evidence pack", "Final compliance report"},
		milestones:   []string{"Internal audit complete", "Sign-off"},
	},
}

// Manager owns compliance projects. Entities live in a normalized arena and
// each project is persisted as one snapshot after every mutation.
type Manager struct {
	Store  *storage.Adapter
	Clock  clock.PassiveClock
	Events events.Recorder
	Logger *slog.Logger

	mu     sync.Mutex
	arena  *arena
	loaded bool
}

func New(store *storage.Adapter) *Manager {
	return &Manager{Store: store, Clock: clock.RealClock{}, Logger: slog.Default()}
}

func (m *Manager) now() time.Time {
	return m.Clock.Now().UTC()
}

type Input struct {
	Name             string              `json:"name" validate:"required"`
	Description      string              `json:"description,omitempty"`
	StartDate        time.Time           `json:"start_date,omitempty"`
	TargetCompletion time.Time           `json:"target_completion,omitempty"`
	TeamMembers      []domain.TeamMember `json:"team_members,omitempty" validate:"dive"`
}

type TaskInput struct {
	Title          string    `json:"title" validate:"required"`
	Description    string    `json:"description,omitempty"`
	AssigneeID     string    `json:"assignee_id,omitempty"`
	DueDate        time.Time `json:"due_date,omitempty"`
	Priority       string    `json:"priority,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Category       string    `json:"category,omitempty"`
	Deliverable    string    `json:"deliverable,omitempty"`
	Dependencies   []string  `json:"dependencies,omitempty"`
	EstimatedHours float64   `json:"estimated_hours,omitempty" validate:"gte=0"`
}

func (m *Manager) ensureLoaded(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	a := newArena()
	var ids []string
	if _, err := m.Store.Get(ctx, storage.ProjectKey("index"), &ids); err != nil {
		return fmt.Errorf("load project index: %w", err)
	}
	for _, id := range ids {
		var s snapshot
		found, err := m.Store.Get(ctx, storage.ProjectKey(id), &s)
		if err != nil {
			return fmt.Errorf("load project %s: %w", id, err)
		}
		if !found {
			m.Logger.Warn("indexed project missing", "project_id", id)
			continue
		}
		a.add(s)
	}
	if _, err := m.Store.Get(ctx, storage.ProjectKey("current"), &a.current); err != nil {
		return fmt.Errorf("load current project: %w", err)
	}
	m.arena = a
	m.loaded = true
	return nil
}

// CreateProject builds a project with the four default phases laid out from
// the start date and makes it the current project.
func (m *Manager) CreateProject(ctx context.Context, in Input, actorID string) (domain.Project, error) {
	if err := domain.Check(in); err != nil {
		return domain.Project{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return domain.Project{}, err
	}

	now := m.now()
	start := in.StartDate
	if start.IsZero() {
		start = now
	}
	target := in.TargetCompletion
	if target.IsZero() {
		target = start.Add(150 * day)
	}
	p := projectRecord{
		ID:               uuid.NewString(),
		Name:             in.Name,
		Description:      in.Description,
		TeamMembers:      []domain.TeamMember{},
		StartDate:        start,
		TargetCompletion: target,
		CreatedAt:        now,
		LastUpdated:      now,
	}
	for _, tm := range in.TeamMembers {
		if tm.ID == "" {
			tm.ID = uuid.NewString()
		}
		p.TeamMembers = append(p.TeamMembers, tm)
	}
	c := m.arena.begin(p)
	for i, tpl := range defaultPhases {
		status := domain.PhasePlanning
		if i == 0 {
			status = domain.PhaseInProgress
		}
		ph := phaseRecord{
			ID:           uuid.NewString(),
			ProjectID:    p.ID,
			Name:         tpl.name,
			Status:       status,
			StartDate:    start.Add(time.Duration(tpl.from) * day),
			EndDate:      start.Add(time.Duration(tpl.to) * day),
			TaskIDs:      []string{},
			Deliverables: slices.Clone(tpl.deliverables),
			Milestones:   slices.Clone(tpl.milestones),
		}
		c.project.PhaseIDs = append(c.project.PhaseIDs, ph.ID)
		c.putPhase(ph)
	}
	c.recompute()

	if err := m.persistNew(ctx, p.ID, c.snapshot()); err != nil {
		return domain.Project{}, err
	}
	c.commit()
	m.arena.current = p.ID

	events.Emit(ctx, m.Events, m.Logger, events.Entry{
		Type: "project.created", EntityKind: "project", EntityID: p.ID, ActorID: actorID,
		Payload: events.Payload{"name": p.Name},
	})
	view, _ := m.arena.view(p.ID)
	return view, nil
}

// persistNew writes a new project's snapshot, the index and the current
// pointer. A failed write removes what was already written so the project
// does not reappear on the next load.
func (m *Manager) persistNew(ctx context.Context, id string, snap snapshot) error {
	prev := m.arena.ids()
	if err := m.Store.Set(ctx, storage.ProjectKey(id), snap, storage.SetOptions{}); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	if err := m.Store.Set(ctx, storage.ProjectKey("index"), append(slices.Clone(prev), id), storage.SetOptions{}); err != nil {
		m.rollbackNew(ctx, id, nil)
		return fmt.Errorf("save project index: %w", err)
	}
	if err := m.Store.Set(ctx, storage.ProjectKey("current"), id, storage.SetOptions{}); err != nil {
		m.rollbackNew(ctx, id, prev)
		return fmt.Errorf("save current project: %w", err)
	}
	return nil
}

func (m *Manager) rollbackNew(ctx context.Context, id string, index []string) {
	if index != nil {
		if err := m.Store.Set(ctx, storage.ProjectKey("index"), index, storage.SetOptions{}); err != nil {
			m.Logger.Warn("restore project index", "project_id", id, "error", err)
		}
	}
	if err := m.Store.Remove(ctx, storage.ProjectKey(id)); err != nil {
		m.Logger.Warn("remove unsaved project", "project_id", id, "error", err)
	}
}

// update stages fn against one project, recomputes derived fields, persists
// the snapshot and only then commits to the arena.
func (m *Manager) update(ctx context.Context, projectID string, fn func(*change) error) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return domain.Project{}, err
	}
	p, ok := m.arena.projects[projectID]
	if !ok {
		return domain.Project{}, fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
	}
	c := m.arena.begin(p)
	if err := fn(c); err != nil {
		return domain.Project{}, err
	}
	c.recompute()
	c.project.LastUpdated = m.now()
	if err := m.Store.Set(ctx, storage.ProjectKey(projectID), c.snapshot(), storage.SetOptions{}); err != nil {
		return domain.Project{}, fmt.Errorf("save project: %w", err)
	}
	c.commit()
	view, _ := m.arena.view(projectID)
	return view, nil
}

func (m *Manager) AddTask(ctx context.Context, projectID, phaseID string, in TaskInput, actorID string) (domain.Task, error) {
	if err := domain.Check(in); err != nil {
		return domain.Task{}, err
	}
	var created domain.Task
	_, err := m.update(ctx, projectID, func(c *change) error {
		ph, ok := c.phase(phaseID)
		if !ok {
			return fmt.Errorf("phase %s: %w", phaseID, domain.ErrNotFound)
		}
		for _, dep := range in.Dependencies {
			if _, ok := c.task(dep); !ok {
				return fmt.Errorf("dependency %s is not a task of project %s: %w", dep, projectID, domain.ErrInvalidInput)
			}
		}
		if err := checkAssignee(c, in.AssigneeID); err != nil {
			return err
		}
		t := domain.Task{
			ID:             uuid.NewString(),
			PhaseID:        phaseID,
			Title:          in.Title,
			Description:    in.Description,
			Status:         domain.TaskNotStarted,
			DueDate:        in.DueDate,
			Priority:       in.Priority,
			Category:       in.Category,
			Deliverable:    in.Deliverable,
			Evidence:       []string{},
			Dependencies:   append([]string{}, in.Dependencies...),
			EstimatedHours: in.EstimatedHours,
		}
		if t.Priority == "" {
			t.Priority = domain.PriorityMedium
		}
		if t.DueDate.IsZero() {
			t.DueDate = ph.EndDate
		}
		if in.AssigneeID != "" {
			assignee := in.AssigneeID
			t.AssigneeID = &assignee
		}
		ph.TaskIDs = append(slices.Clone(ph.TaskIDs), t.ID)
		c.putPhase(ph)
		c.putTask(t)
		created = t
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	events.Emit(ctx, m.Events, m.Logger, events.Entry{
		Type: "task.created", EntityKind: "task", EntityID: created.ID, ActorID: actorID,
		Payload: events.Payload{"project_id": projectID, "phase_id": phaseID},
	})
	return created, nil
}

var taskStatuses = []string{domain.TaskNotStarted, domain.TaskInProgress, domain.TaskCompleted, domain.TaskBlocked}

var phaseStatuses = []string{domain.PhasePlanning, domain.PhaseInProgress, domain.PhaseCompleted, domain.PhaseOnHold}

func (m *Manager) UpdateTaskStatus(ctx context.Context, projectID, taskID, status, actorID string) (domain.Project, error) {
	if !slices.Contains(taskStatuses, status) {
		return domain.Project{}, fmt.Errorf("task status %q: %w", status, domain.ErrInvalidInput)
	}
	var from string
	p, err := m.updateTask(ctx, projectID, taskID, func(t *domain.Task) error {
		from = t.Status
		t.Status = status
		return nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	events.Emit(ctx, m.Events, m.Logger, events.Entry{
		Type: "task.status.updated", EntityKind: "task", EntityID: taskID, ActorID: actorID,
		Payload: events.Payload{"from": from, "to": status},
	})
	return p, nil
}

// AssignTask sets the assignee; an empty assigneeID clears it.
func (m *Manager) AssignTask(ctx context.Context, projectID, taskID, assigneeID, actorID string) (domain.Project, error) {
	p, err := m.update(ctx, projectID, func(c *change) error {
		t, ok := c.task(taskID)
		if !ok {
			return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
		}
		if err := checkAssignee(c, assigneeID); err != nil {
			return err
		}
		t.AssigneeID = nil
		if assigneeID != "" {
			t.AssigneeID = &assigneeID
		}
		c.putTask(t)
		return nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	events.Emit(ctx, m.Events, m.Logger, events.Entry{
		Type: "task.assigned", EntityKind: "task", EntityID: taskID, ActorID: actorID,
		Payload: events.Payload{"assignee_id": assigneeID},
	})
	return p, nil
}

// AddEvidence links an evidence reference to a task. Linking twice is a no-op.
func (m *Manager) AddEvidence(ctx context.Context, projectID, taskID, evidenceID, actorID string) (domain.Project, error) {
	if evidenceID == "" {
		return domain.Project{}, fmt.Errorf("evidence id is empty: %w", domain.ErrInvalidInput)
	}
	p, err := m.updateTask(ctx, projectID, taskID, func(t *domain.Task) error {
		if !slices.Contains(t.Evidence, evidenceID) {
			t.Evidence = append(slices.Clone(t.Evidence), evidenceID)
		}
		return nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	events.Emit(ctx, m.Events, m.Logger, events.Entry{
		Type: "task.evidence.added", EntityKind: "task", EntityID: taskID, ActorID: actorID,
		Payload: events.Payload{"evidence_id": evidenceID},
	})
	return p, nil
}

// LogHours adds hours to a task's actual hours.
func (m *Manager) LogHours(ctx context.Context, projectID, taskID string, hours float64, actorID string) (domain.Project, error) {
	if hours <= 0 {
		return domain.Project{}, fmt.Errorf("hours must be positive: %w", domain.ErrInvalidInput)
	}
	var total float64
	p, err := m.updateTask(ctx, projectID, taskID, func(t *domain.Task) error {
		t.ActualHours += hours
		total = t.ActualHours
		return nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	events.Emit(ctx, m.Events, m.Logger, events.Entry{
		Type: "task.hours.logged", EntityKind: "task", EntityID: taskID, ActorID: actorID,
		Payload: events.Payload{"hours": hours, "actual_hours": total},
	})
	return p, nil
}

func (m *Manager) updateTask(ctx context.Context, projectID, taskID string, fn func(*domain.Task) error) (domain.Project, error) {
	return m.update(ctx, projectID, func(c *change) error {
		t, ok := c.task(taskID)
		if !ok {
			return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
		}
		if err := fn(&t); err != nil {
			return err
		}
		c.putTask(t)
		return nil
	})
}

func (m *Manager) UpdatePhaseStatus(ctx context.Context, projectID, phaseID, status, actorID string) (domain.Project, error) {
	if !slices.Contains(phaseStatuses, status) {
		return domain.Project{}, fmt.Errorf("phase status %q: %w", status, domain.ErrInvalidInput)
	}
	p, err := m.update(ctx, projectID, func(c *change) error {
		ph, ok := c.phase(phaseID)
		if !ok {
			return fmt.Errorf("phase %s: %w", phaseID, domain.ErrNotFound)
		}
		ph.Status = status
		c.putPhase(ph)
		return nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	events.Emit(ctx, m.Events, m.Logger, events.Entry{
		Type: "phase.status.updated", EntityKind: "phase", EntityID: phaseID, ActorID: actorID,
		Payload: events.Payload{"status": status},
	})
	return p, nil
}

func (m *Manager) AddTeamMember(ctx context.Context, projectID string, member domain.TeamMember, actorID string) (domain.TeamMember, error) {
	if err := domain.Check(member); err != nil {
		return domain.TeamMember{}, err
	}
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	_, err := m.update(ctx, projectID, func(c *change) error {
		for _, tm := range c.project.TeamMembers {
			if tm.ID == member.ID {
				return fmt.Errorf("team member %s already exists: %w", member.ID, domain.ErrInvalidInput)
			}
		}
		c.project.TeamMembers = append(c.project.TeamMembers, member)
		return nil
	})
	if err != nil {
		return domain.TeamMember{}, err
	}
	events.Emit(ctx, m.Events, m.Logger, events.Entry{
		Type: "project.member.added", EntityKind: "project", EntityID: projectID, ActorID: actorID,
		Payload: events.Payload{"member_id": member.ID},
	})
	return member, nil
}

func checkAssignee(c *change, assigneeID string) error {
	if assigneeID == "" {
		return nil
	}
	for _, tm := range c.project.TeamMembers {
		if tm.ID == assigneeID {
			return nil
		}
	}
	return fmt.Errorf("assignee %s is not a team member: %w", assigneeID, domain.ErrInvalidInput)
}

// SetCurrent moves the current project pointer.
func (m *Manager) SetCurrent(ctx context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return err
	}
	if _, ok := m.arena.projects[projectID]; !ok {
		return fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
	}
	if err := m.Store.Set(ctx, storage.ProjectKey("current"), projectID, storage.SetOptions{}); err != nil {
		return fmt.Errorf("save current project: %w", err)
	}
	m.arena.current = projectID
	return nil
}

func (m *Manager) Get(ctx context.Context, projectID string) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return domain.Project{}, err
	}
	p, ok := m.arena.view(projectID)
	if !ok {
		return domain.Project{}, fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
	}
	return p, nil
}

// Current returns the current project, or ErrNotFound when none is set.
func (m *Manager) Current(ctx context.Context) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return domain.Project{}, err
	}
	p, ok := m.arena.view(m.arena.current)
	if !ok {
		return domain.Project{}, fmt.Errorf("current project: %w", domain.ErrNotFound)
	}
	return p, nil
}

// List returns every project, oldest first.
func (m *Manager) List(ctx context.Context) ([]domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	res := []domain.Project{}
	for _, id := range m.arena.ids() {
		p, _ := m.arena.view(id)
		res = append(res, p)
	}
	return res, nil
}

// Task returns one task of a project.
func (m *Manager) Task(ctx context.Context, projectID, taskID string) (domain.Task, error) {
	p, err := m.Get(ctx, projectID)
	if err != nil {
		return domain.Task{}, err
	}
	for _, ph := range p.Phases {
		for _, t := range ph.Tasks {
			if t.ID == taskID {
				return t, nil
			}
		}
	}
	return domain.Task{}, fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
}
