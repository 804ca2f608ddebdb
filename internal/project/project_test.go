package project_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"complyflow/internal/domain"
	"complyflow/internal/events"
	"complyflow/internal/logging"
	"complyflow/internal/project"
	"complyflow/internal/storage"
)

var epoch = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func newManager(t *testing.T, b storage.Backend) (*project.Manager, *clocktesting.FakeClock, *events.Memory) {
	t.Helper()
	clk := clocktesting.NewFakeClock(epoch)
	rec := &events.Memory{}
	m := project.New(storage.New(b, storage.WithLogger(logging.Discard())))
	m.Clock = clk
	m.Events = rec
	m.Logger = logging.Discard()
	return m, clk, rec
}

func TestCreateProjectDefaultPhases(t *testing.T) {
	ctx := context.Background()
	m, _, rec := newManager(t, storage.NewMemory())

	p, err := m.CreateProject(ctx, project.Input{Name: "GDPR readiness"}, "dpo")
	require.NoError(t, err)
	require.Len(t, p.Phases, 4)

	names := []string{}
	for _, ph := range p.Phases {
		names = append(names, ph.Name)
	}
	require.Equal(t, []string{"assessment", "planning", "implementation", "validation"}, names)

	require.Equal(t, epoch, p.Phases[0].StartDate)
	for i := 1; i < len(p.Phases); i++ {
		require.Equal(t, p.Phases[i-1].EndDate, p.Phases[i].StartDate)
		require.True(t, p.Phases[i].EndDate.After(p.Phases[i].StartDate))
	}
	require.Equal(t, epoch.Add(150*24*time.Hour), p.Phases[3].EndDate)
	require.Equal(t, epoch.Add(150*24*time.Hour), p.TargetCompletion)
	require.Equal(t, domain.PhaseInProgress, p.Phases[0].Status)
	require.Equal(t, p.Phases[0].ID, p.CurrentPhaseID)
	require.Equal(t, 0, p.OverallProgress)

	cur, err := m.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, p.ID, cur.ID)
	require.Equal(t, []string{"project.created"}, rec.Types())
}

func TestCreateProjectOverrides(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, storage.NewMemory())
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	target := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	p, err := m.CreateProject(ctx, project.Input{
		Name:             "CCPA",
		Description:      "California rollout",
		StartDate:        start,
		TargetCompletion: target,
		TeamMembers:      []domain.TeamMember{{Name: "Ana", Email: "ana@example.com", Role: "dpo"}},
	}, "dpo")
	require.NoError(t, err)
	require.Equal(t, start, p.Phases[0].StartDate)
	require.Equal(t, target, p.TargetCompletion)
	require.Len(t, p.TeamMembers, 1)
	require.NotEmpty(t, p.TeamMembers[0].ID)

	_, err = m.CreateProject(ctx, project.Input{}, "dpo")
	require.Equal(t, domain.KindValidationFailed, domain.KindOf(err))
	_, err = m.CreateProject(ctx, project.Input{Name: "x", TeamMembers: []domain.TeamMember{{Name: "Bo", Email: "bad"}}}, "dpo")
	require.Equal(t, domain.KindValidationFailed, domain.KindOf(err))
}

func TestTaskMutations(t *testing.T) {
	ctx := context.Background()
	m, clk, rec := newManager(t, storage.NewMemory())
	p, err := m.CreateProject(ctx, project.Input{Name: "ISO 27701"}, "dpo")
	require.NoError(t, err)
	member, err := m.AddTeamMember(ctx, p.ID, domain.TeamMember{Name: "Bo", Role: "engineer"}, "dpo")
	require.NoError(t, err)

	assessment := p.Phases[0].ID
	inventory, err := m.AddTask(ctx, p.ID, assessment, project.TaskInput{Title: "Build data inventory", EstimatedHours: 16}, "dpo")
	require.NoError(t, err)
	require.Equal(t, domain.TaskNotStarted, inventory.Status)
	require.Equal(t, domain.PriorityMedium, inventory.Priority)
	require.Equal(t, p.Phases[0].EndDate, inventory.DueDate)

	gap, err := m.AddTask(ctx, p.ID, assessment, project.TaskInput{Title: "Gap analysis", Dependencies: []string{inventory.ID}, Priority: domain.PriorityHigh}, "dpo")
	require.NoError(t, err)

	clk.Step(time.Hour)
	got, err := m.AssignTask(ctx, p.ID, inventory.ID, member.ID, "dpo")
	require.NoError(t, err)
	require.Equal(t, epoch.Add(time.Hour), got.LastUpdated)
	require.Equal(t, member.ID, *got.Phases[0].Tasks[0].AssigneeID)

	got, err = m.AddEvidence(ctx, p.ID, inventory.ID, "ev-1", "dpo")
	require.NoError(t, err)
	got, err = m.AddEvidence(ctx, p.ID, inventory.ID, "ev-1", "dpo")
	require.NoError(t, err)
	require.Equal(t, []string{"ev-1"}, got.Phases[0].Tasks[0].Evidence)

	got, err = m.UpdateTaskStatus(ctx, p.ID, inventory.ID, domain.TaskCompleted, "bo")
	require.NoError(t, err)
	require.Equal(t, 50, got.OverallProgress)

	got, err = m.LogHours(ctx, p.ID, inventory.ID, 4.5, "bo")
	require.NoError(t, err)
	require.Equal(t, 4.5, got.Phases[0].Tasks[0].ActualHours)

	got, err = m.UpdateTaskStatus(ctx, p.ID, gap.ID, domain.TaskCompleted, "bo")
	require.NoError(t, err)
	require.Equal(t, 100, got.OverallProgress)

	got, err = m.UpdatePhaseStatus(ctx, p.ID, assessment, domain.PhaseCompleted, "dpo")
	require.NoError(t, err)
	require.Equal(t, got.Phases[1].ID, got.CurrentPhaseID)

	got, err = m.AssignTask(ctx, p.ID, inventory.ID, "", "dpo")
	require.NoError(t, err)
	require.Nil(t, got.Phases[0].Tasks[0].AssigneeID)

	task, err := m.Task(ctx, p.ID, gap.ID)
	require.NoError(t, err)
	require.Equal(t, []string{inventory.ID}, task.Dependencies)

	require.Equal(t, []string{
		"project.created",
		"project.member.added",
		"task.created",
		"task.created",
		"task.assigned",
		"task.evidence.added",
		"task.evidence.added",
		"task.status.updated",
		"task.hours.logged",
		"task.status.updated",
		"phase.status.updated",
		"task.assigned",
	}, rec.Types())
}

func TestUnknownIDsAndBadInput(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, storage.NewMemory())
	p, err := m.CreateProject(ctx, project.Input{Name: "A"}, "dpo")
	require.NoError(t, err)
	other, err := m.CreateProject(ctx, project.Input{Name: "B"}, "dpo")
	require.NoError(t, err)
	foreign, err := m.AddTask(ctx, other.ID, other.Phases[0].ID, project.TaskInput{Title: "foreign"}, "dpo")
	require.NoError(t, err)

	_, err = m.UpdateTaskStatus(ctx, "missing", foreign.ID, domain.TaskCompleted, "dpo")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = m.UpdateTaskStatus(ctx, p.ID, foreign.ID, domain.TaskCompleted, "dpo")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = m.AddTask(ctx, p.ID, other.Phases[0].ID, project.TaskInput{Title: "x"}, "dpo")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = m.AddTask(ctx, p.ID, p.Phases[0].ID, project.TaskInput{Title: "x", Dependencies: []string{foreign.ID}}, "dpo")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = m.AddTask(ctx, p.ID, p.Phases[0].ID, project.TaskInput{Title: "x", Priority: "urgent"}, "dpo")
	require.Equal(t, domain.KindValidationFailed, domain.KindOf(err))
	_, err = m.UpdateTaskStatus(ctx, other.ID, foreign.ID, "done", "dpo")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = m.AssignTask(ctx, other.ID, foreign.ID, "stranger", "dpo")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = m.UpdatePhaseStatus(ctx, p.ID, p.Phases[0].ID, "paused", "dpo")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = m.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, m.SetCurrent(ctx, "missing"), domain.ErrNotFound)

	require.NoError(t, m.SetCurrent(ctx, p.ID))
	cur, err := m.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, p.ID, cur.ID)

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "A", list[0].Name)
}

func TestStateSurvivesReload(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	m, _, _ := newManager(t, mem)
	p, err := m.CreateProject(ctx, project.Input{Name: "Reloaded"}, "dpo")
	require.NoError(t, err)
	task, err := m.AddTask(ctx, p.ID, p.Phases[2].ID, project.TaskInput{Title: "Train staff"}, "dpo")
	require.NoError(t, err)
	_, err = m.UpdateTaskStatus(ctx, p.ID, task.ID, domain.TaskInProgress, "dpo")
	require.NoError(t, err)

	keys, err := mem.Keys(ctx, "project_")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"project_" + p.ID, "project_current", "project_index"}, keys)

	fresh, _, _ := newManager(t, mem)
	cur, err := fresh.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, p.ID, cur.ID)
	require.Len(t, cur.Phases[2].Tasks, 1)
	require.Equal(t, domain.TaskInProgress, cur.Phases[2].Tasks[0].Status)
}

type flakyBackend struct {
	*storage.Memory
	fail    bool
	failKey string
}

func (f *flakyBackend) Set(ctx context.Context, key, value string) error {
	if f.fail || (f.failKey != "" && key == f.failKey) {
		return errors.New("quota exceeded")
	}
	return f.Memory.Set(ctx, key, value)
}

func TestFailedPersistLeavesProjectUnchanged(t *testing.T) {
	ctx := context.Background()
	b := &flakyBackend{Memory: storage.NewMemory()}
	m, _, _ := newManager(t, b)
	p, err := m.CreateProject(ctx, project.Input{Name: "Atomic"}, "dpo")
	require.NoError(t, err)
	task, err := m.AddTask(ctx, p.ID, p.Phases[0].ID, project.TaskInput{Title: "t"}, "dpo")
	require.NoError(t, err)

	b.fail = true
	_, err = m.UpdateTaskStatus(ctx, p.ID, task.ID, domain.TaskCompleted, "dpo")
	require.Equal(t, domain.KindStorageUnavailable, domain.KindOf(err))
	_, err = m.AddTask(ctx, p.ID, p.Phases[0].ID, project.TaskInput{Title: "lost"}, "dpo")
	require.Error(t, err)

	got, err := m.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Phases[0].Tasks, 1)
	require.Equal(t, domain.TaskNotStarted, got.Phases[0].Tasks[0].Status)
	require.Equal(t, 0, got.OverallProgress)
}

func TestFailedCreateLeavesNoProjectBehind(t *testing.T) {
	ctx := context.Background()
	b := &flakyBackend{Memory: storage.NewMemory()}
	m, _, _ := newManager(t, b)
	first, err := m.CreateProject(ctx, project.Input{Name: "Kept"}, "dpo")
	require.NoError(t, err)

	for _, key := range []string{"project_current", "project_index"} {
		b.failKey = key
		_, err = m.CreateProject(ctx, project.Input{Name: "Lost"}, "dpo")
		require.Equal(t, domain.KindStorageUnavailable, domain.KindOf(err), key)

		list, err := m.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)

		b.failKey = ""
		fresh, _, _ := newManager(t, b)
		list, err = fresh.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1, key)
		require.Equal(t, first.ID, list[0].ID)
		cur, err := fresh.Current(ctx)
		require.NoError(t, err)
		require.Equal(t, first.ID, cur.ID)

		keys, err := b.Keys(ctx, "project_")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"project_" + first.ID, "project_current", "project_index"}, keys)
	}
}
