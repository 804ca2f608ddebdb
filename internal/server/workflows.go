package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"complyflow/internal/domain"
	"complyflow/internal/engine"
	"complyflow/internal/workflow"
)

type WorkflowPath struct {
	Persona    string `path:"persona"`
	WorkflowID string `path:"workflow_id"`
}

type StepPath struct {
	Persona    string `path:"persona"`
	WorkflowID string `path:"workflow_id"`
	StepID     string `path:"step_id"`
}

func registerWorkflows(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-personas",
		Method:      http.MethodGet,
		Path:        "/personas",
		Summary:     "List personas with workflows",
	}, func(ctx context.Context, _ *struct{}) (*body[[]string], error) {
		return reply(e.Workflows.Personas()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workflows",
		Method:      http.MethodGet,
		Path:        "/personas/{persona}/workflows",
		Summary:     "List the workflows of a persona",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Persona string `path:"persona"`
	}) (*body[[]domain.Workflow], error) {
		if err := requirePersona(ctx, input.Persona); err != nil {
			return nil, err
		}
		items := e.Workflows.Workflows(input.Persona)
		if items == nil {
			items = []domain.Workflow{}
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workflow",
		Method:      http.MethodGet,
		Path:        "/personas/{persona}/workflows/{workflow_id}",
		Summary:     "Get a workflow definition",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *WorkflowPath) (*body[domain.Workflow], error) {
		if err := requirePersona(ctx, input.Persona); err != nil {
			return nil, err
		}
		wf, err := e.Workflows.Workflow(input.Persona, input.WorkflowID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(wf), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-progress",
		Method:      http.MethodGet,
		Path:        "/personas/{persona}/workflows/{workflow_id}/progress",
		Summary:     "Get workflow progress",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *WorkflowPath) (*body[ProgressResponse], error) {
		if err := requirePersona(ctx, input.Persona); err != nil {
			return nil, err
		}
		p, err := e.Progress.Progress(ctx, input.Persona, input.WorkflowID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ProgressResponse{WorkflowProgress: p, Percent: e.Progress.Percent(p)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "reset-progress",
		Method:        http.MethodDelete,
		Path:          "/personas/{persona}/workflows/{workflow_id}/progress",
		Summary:       "Reset workflow progress",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *WorkflowPath) (*struct{}, error) {
		if err := requirePersona(ctx, input.Persona); err != nil {
			return nil, err
		}
		if err := e.Progress.Reset(ctx, input.Persona, input.WorkflowID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-step",
		Method:      http.MethodPost,
		Path:        "/personas/{persona}/workflows/{workflow_id}/steps/{step_id}/validate",
		Summary:     "Validate step data without recording it",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StepPath
		Body CompleteStepRequest `json:"body"`
	}) (*body[workflow.Result], error) {
		if err := requirePersona(ctx, input.Persona); err != nil {
			return nil, err
		}
		step, err := e.Workflows.Step(input.Persona, input.WorkflowID, input.StepID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(e.Workflows.Validate(step, input.Body.Data)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-step",
		Method:      http.MethodPost,
		Path:        "/personas/{persona}/workflows/{workflow_id}/steps/{step_id}/complete",
		Summary:     "Complete a workflow step",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		StepPath
		Body CompleteStepRequest `json:"body"`
	}) (*body[ProgressResponse], error) {
		if err := requirePersona(ctx, input.Persona); err != nil {
			return nil, err
		}
		p, err := e.Progress.CompleteStep(ctx, input.Persona, input.WorkflowID, input.StepID, input.Body.Data)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ProgressResponse{WorkflowProgress: p, Percent: e.Progress.Percent(p)}), nil
	})
}
