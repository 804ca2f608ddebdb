package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"complyflow/internal/domain"
	"complyflow/internal/engine"
	"complyflow/internal/project"
)

type ProjectPath struct {
	ProjectID string `path:"project_id"`
}

type TaskPath struct {
	ProjectID string `path:"project_id"`
	TaskID    string `path:"task_id"`
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusUnprocessableEntity,
	http.StatusServiceUnavailable,
}

func registerProjects(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create a project with the default phases",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*body[domain.Project], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Projects.CreateProject(ctx, project.Input{
			Name:             input.Body.Name,
			Description:      input.Body.Description,
			StartDate:        orZero(input.Body.StartDate),
			TargetCompletion: orZero(input.Body.TargetCompletion),
			TeamMembers:      input.Body.TeamMembers,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.Project], error) {
		items, err := e.Projects.List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-current-project",
		Method:      http.MethodGet,
		Path:        "/projects/current",
		Summary:     "Get the current project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*body[domain.Project], error) {
		p, err := e.Projects.Current(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ProjectPath) (*body[domain.Project], error) {
		p, err := e.Projects.Get(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "set-current-project",
		Method:        http.MethodPut,
		Path:          "/projects/{project_id}/current",
		Summary:       "Make a project the current one",
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *ProjectPath) (*struct{}, error) {
		if err := e.Projects.SetCurrent(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-team-member",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/members",
		Summary:       "Add a team member",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectPath
		Body AddMemberRequest `json:"body"`
	}) (*body[domain.TeamMember], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.Projects.AddTeamMember(ctx, input.ProjectID, domain.TeamMember{
			ID:    input.Body.ID,
			Name:  input.Body.Name,
			Email: input.Body.Email,
			Role:  input.Body.Role,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-phase-status",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/phases/{phase_id}/status",
		Summary:     "Set a phase status",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectPath
		PhaseID string           `path:"phase_id"`
		Body    SetStatusRequest `json:"body"`
	}) (*body[domain.Project], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Projects.UpdatePhaseStatus(ctx, input.ProjectID, input.PhaseID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})
}

func registerTasks(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/phases/{phase_id}/tasks",
		Summary:       "Add a task to a phase",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectPath
		PhaseID string            `path:"phase_id"`
		Body    CreateTaskRequest `json:"body"`
	}) (*body[domain.Task], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Projects.AddTask(ctx, input.ProjectID, input.PhaseID, project.TaskInput{
			Title:          input.Body.Title,
			Description:    input.Body.Description,
			AssigneeID:     input.Body.AssigneeID,
			DueDate:        orZero(input.Body.DueDate),
			Priority:       input.Body.Priority,
			Category:       input.Body.Category,
			Deliverable:    input.Body.Deliverable,
			Dependencies:   input.Body.Dependencies,
			EstimatedHours: input.Body.EstimatedHours,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks/{task_id}",
		Summary:     "Get a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *TaskPath) (*body[domain.Task], error) {
		t, err := e.Projects.Task(ctx, input.ProjectID, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-status",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/tasks/{task_id}/status",
		Summary:     "Set a task status",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body SetStatusRequest `json:"body"`
	}) (*body[domain.Project], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Projects.UpdateTaskStatus(ctx, input.ProjectID, input.TaskID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-task",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/tasks/{task_id}/assignee",
		Summary:     "Assign a task to a team member",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body AssignTaskRequest `json:"body"`
	}) (*body[domain.Project], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Projects.AssignTask(ctx, input.ProjectID, input.TaskID, input.Body.AssigneeID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-task-evidence",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/tasks/{task_id}/evidence",
		Summary:     "Link evidence to a task",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body LinkEvidenceRequest `json:"body"`
	}) (*body[domain.Project], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, _, err := e.LinkTaskEvidence(ctx, input.ProjectID, input.TaskID, input.Body.EvidenceID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "log-task-hours",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/tasks/{task_id}/hours",
		Summary:     "Log hours against a task",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body LogHoursRequest `json:"body"`
	}) (*body[domain.Project], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Projects.LogHours(ctx, input.ProjectID, input.TaskID, input.Body.Hours, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})
}
