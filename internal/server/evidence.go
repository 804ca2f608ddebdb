package server

import (
	"bytes"
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"complyflow/internal/domain"
	"complyflow/internal/engine"
	"complyflow/internal/evidence"
)

type EvidencePath struct {
	EvidenceID string `path:"evidence_id"`
}

type EvidenceQuery struct {
	Type      string `query:"type"`
	Framework string `query:"framework"`
	Tag       string `query:"tag"`
	Query     string `query:"q"`
}

func (q EvidenceQuery) filter() evidence.Filter {
	return evidence.Filter{Type: q.Type, Framework: q.Framework, Tag: q.Tag, Query: q.Query}
}

func registerEvidence(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-evidence",
		Method:        http.MethodPost,
		Path:          "/evidence",
		Summary:       "Register an evidence item",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateEvidenceRequest `json:"body"`
	}) (*body[domain.EvidenceItem], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		it, err := e.Evidence.Add(ctx, evidence.AddInput{
			Name:        input.Body.Name,
			Type:        input.Body.Type,
			Category:    input.Body.Category,
			Description: input.Body.Description,
			SizeBytes:   input.Body.SizeBytes,
			Tags:        input.Body.Tags,
			LinkedTasks: input.Body.LinkedTasks,
			Frameworks:  input.Body.Frameworks,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(it), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-evidence",
		Method:      http.MethodGet,
		Path:        "/evidence",
		Summary:     "Search evidence, most recently modified first",
	}, func(ctx context.Context, input *struct {
		EvidenceQuery
	}) (*body[[]domain.EvidenceItem], error) {
		items, err := e.Evidence.List(ctx, input.filter())
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-evidence",
		Method:      http.MethodGet,
		Path:        "/evidence/export",
		Summary:     "Export evidence as JSON or CSV",
	}, func(ctx context.Context, input *struct {
		EvidenceQuery
		Format string `query:"format" enum:"json,csv" default:"json"`
	}) (*struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}, error) {
		var buf bytes.Buffer
		if err := e.Evidence.Export(ctx, &buf, input.Format, input.filter()); err != nil {
			return nil, handleError(err)
		}
		ct := "application/json"
		if input.Format == evidence.FormatCSV {
			ct = "text/csv"
		}
		return &struct {
			ContentType string `header:"Content-Type"`
			Body        []byte
		}{ContentType: ct, Body: buf.Bytes()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-evidence",
		Method:      http.MethodGet,
		Path:        "/evidence/{evidence_id}",
		Summary:     "Get an evidence item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *EvidencePath) (*body[domain.EvidenceItem], error) {
		it, err := e.Evidence.Get(ctx, input.EvidenceID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(it), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-evidence",
		Method:      http.MethodPatch,
		Path:        "/evidence/{evidence_id}",
		Summary:     "Update evidence metadata",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		EvidencePath
		Body UpdateEvidenceRequest `json:"body"`
	}) (*body[domain.EvidenceItem], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		it, err := e.Evidence.Update(ctx, input.EvidenceID, evidence.UpdateInput{
			Name:        input.Body.Name,
			Category:    input.Body.Category,
			Description: input.Body.Description,
			Tags:        input.Body.Tags,
			Frameworks:  input.Body.Frameworks,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(it), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "link-evidence-task",
		Method:      http.MethodPost,
		Path:        "/evidence/{evidence_id}/links",
		Summary:     "Link evidence to a task",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		EvidencePath
		Body LinkTaskRequest `json:"body"`
	}) (*body[domain.EvidenceItem], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		_, it, err := e.LinkTaskEvidence(ctx, input.Body.ProjectID, input.Body.TaskID, input.EvidenceID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(it), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-evidence-access",
		Method:      http.MethodPost,
		Path:        "/evidence/{evidence_id}/access",
		Summary:     "Record that evidence was viewed or downloaded",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		EvidencePath
		Body RecordAccessRequest `json:"body"`
	}) (*body[domain.EvidenceItem], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		it, err := e.Evidence.RecordAccess(ctx, input.EvidenceID, input.Body.Action, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(it), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-evidence",
		Method:        http.MethodDelete,
		Path:          "/evidence/{evidence_id}",
		Summary:       "Delete an evidence item",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *EvidencePath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Evidence.Delete(ctx, input.EvidenceID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSettings(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-mode",
		Method:      http.MethodGet,
		Path:        "/settings/mode",
		Summary:     "Get the app mode",
	}, func(ctx context.Context, _ *struct{}) (*body[ModeResponse], error) {
		mode, err := e.Settings.Mode(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ModeResponse{Mode: mode}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-mode",
		Method:      http.MethodPut,
		Path:        "/settings/mode",
		Summary:     "Switch between solo and team mode",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body SetModeRequest `json:"body"`
	}) (*body[ModeResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Settings.SetMode(ctx, input.Body.Mode, actorID); err != nil {
			return nil, handleError(err)
		}
		return reply(ModeResponse{Mode: input.Body.Mode}), nil
	})
}
