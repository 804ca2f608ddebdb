package project

import (
	"math"
	"sort"
	"time"

	"complyflow/internal/domain"
)

// projectRecord is a project without its phases.
type projectRecord struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	Description      string              `json:"description,omitempty"`
	PhaseIDs         []string            `json:"phase_ids"`
	TeamMembers      []domain.TeamMember `json:"team_members"`
	OverallProgress  int                 `json:"overall_progress"`
	CurrentPhaseID   string              `json:"current_phase_id,omitempty"`
	StartDate        time.Time           `json:"start_date"`
	TargetCompletion time.Time           `json:"target_completion"`
	CreatedAt        time.Time           `json:"created_at"`
	LastUpdated      time.Time           `json:"last_updated"`
}

// phaseRecord is a phase without its tasks.
type phaseRecord struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	TaskIDs      []string  `json:"task_ids"`
	Deliverables []string  `json:"deliverables"`
	Milestones   []string  `json:"milestones"`
}

// snapshot is the persisted form of one project.
type snapshot struct {
	Project projectRecord `json:"project"`
	Phases  []phaseRecord `json:"phases"`
	Tasks   []domain.Task `json:"tasks"`
}

// arena holds every loaded entity by id.
type arena struct {
	projects map[string]projectRecord
	phases   map[string]phaseRecord
	tasks    map[string]domain.Task
	order    []string
	current  string
}

func newArena() *arena {
	return &arena{
		projects: map[string]projectRecord{},
		phases:   map[string]phaseRecord{},
		tasks:    map[string]domain.Task{},
	}
}

func (a *arena) add(s snapshot) {
	if _, ok := a.projects[s.Project.ID]; !ok {
		a.order = append(a.order, s.Project.ID)
	}
	a.projects[s.Project.ID] = s.Project
	for _, ph := range s.Phases {
		a.phases[ph.ID] = ph
	}
	for _, t := range s.Tasks {
		a.tasks[t.ID] = t
	}
}

// change stages updates to one project. Reads see staged values first;
// nothing reaches the arena until commit.
type change struct {
	a       *arena
	project projectRecord
	phases  map[string]phaseRecord
	tasks   map[string]domain.Task
}

func (a *arena) begin(p projectRecord) *change {
	p.PhaseIDs = append([]string{}, p.PhaseIDs...)
	p.TeamMembers = append([]domain.TeamMember{}, p.TeamMembers...)
	return &change{a: a, project: p, phases: map[string]phaseRecord{}, tasks: map[string]domain.Task{}}
}

func (c *change) phase(id string) (phaseRecord, bool) {
	if ph, ok := c.phases[id]; ok {
		return ph, true
	}
	ph, ok := c.a.phases[id]
	if !ok || ph.ProjectID != c.project.ID {
		return phaseRecord{}, false
	}
	return ph, true
}

func (c *change) task(id string) (domain.Task, bool) {
	if t, ok := c.tasks[id]; ok {
		return t, true
	}
	t, ok := c.a.tasks[id]
	if !ok {
		return domain.Task{}, false
	}
	if _, inProject := c.phase(t.PhaseID); !inProject {
		return domain.Task{}, false
	}
	return t, true
}

func (c *change) putPhase(ph phaseRecord) { c.phases[ph.ID] = ph }

func (c *change) putTask(t domain.Task) { c.tasks[t.ID] = t }

// recompute refreshes overall progress and the current phase pointer.
func (c *change) recompute() {
	total, done := 0, 0
	c.project.CurrentPhaseID = ""
	for _, phID := range c.project.PhaseIDs {
		ph, _ := c.phase(phID)
		for _, tID := range ph.TaskIDs {
			t, _ := c.task(tID)
			total++
			if t.Status == domain.TaskCompleted {
				done++
			}
		}
		if c.project.CurrentPhaseID == "" && ph.Status != domain.PhaseCompleted {
			c.project.CurrentPhaseID = ph.ID
		}
	}
	if c.project.CurrentPhaseID == "" && len(c.project.PhaseIDs) > 0 {
		c.project.CurrentPhaseID = c.project.PhaseIDs[len(c.project.PhaseIDs)-1]
	}
	c.project.OverallProgress = 0
	if total > 0 {
		c.project.OverallProgress = int(math.Round(float64(done) * 100 / float64(total)))
	}
}

func (c *change) snapshot() snapshot {
	s := snapshot{Project: c.project, Phases: []phaseRecord{}, Tasks: []domain.Task{}}
	for _, phID := range c.project.PhaseIDs {
		ph, _ := c.phase(phID)
		s.Phases = append(s.Phases, ph)
		for _, tID := range ph.TaskIDs {
			t, _ := c.task(tID)
			s.Tasks = append(s.Tasks, t)
		}
	}
	return s
}

func (c *change) commit() {
	c.a.add(snapshot{Project: c.project})
	for id, ph := range c.phases {
		c.a.phases[id] = ph
	}
	for id, t := range c.tasks {
		c.a.tasks[id] = t
	}
}

// view assembles the nested project.
func (a *arena) view(id string) (domain.Project, bool) {
	p, ok := a.projects[id]
	if !ok {
		return domain.Project{}, false
	}
	out := domain.Project{
		ID:               p.ID,
		Name:             p.Name,
		Description:      p.Description,
		Phases:           []domain.Phase{},
		TeamMembers:      append([]domain.TeamMember{}, p.TeamMembers...),
		OverallProgress:  p.OverallProgress,
		CurrentPhaseID:   p.CurrentPhaseID,
		StartDate:        p.StartDate,
		TargetCompletion: p.TargetCompletion,
		CreatedAt:        p.CreatedAt,
		LastUpdated:      p.LastUpdated,
	}
	for _, phID := range p.PhaseIDs {
		ph := a.phases[phID]
		phase := domain.Phase{
			ID:           ph.ID,
			Name:         ph.Name,
			Status:       ph.Status,
			StartDate:    ph.StartDate,
			EndDate:      ph.EndDate,
			Tasks:        []domain.Task{},
			Deliverables: append([]string{}, ph.Deliverables...),
			Milestones:   append([]string{}, ph.Milestones...),
		}
		for _, tID := range ph.TaskIDs {
			t := a.tasks[tID]
			t.Evidence = append([]string{}, t.Evidence...)
			t.Dependencies = append([]string{}, t.Dependencies...)
			phase.Tasks = append(phase.Tasks, t)
		}
		out.Phases = append(out.Phases, phase)
	}
	return out, true
}

func (a *arena) ids() []string {
	ids := append([]string(nil), a.order...)
	sort.SliceStable(ids, func(i, j int) bool {
		return a.projects[ids[i]].CreatedAt.Before(a.projects[ids[j]].CreatedAt)
	})
	return ids
}
