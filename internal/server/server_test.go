package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"complyflow/internal/config"
	"complyflow/internal/domain"
	"complyflow/internal/engine"
	"complyflow/internal/logging"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Backend = "memory"
	cfg.Notifications.Desktop = "denied"
	e, err := engine.Open(context.Background(), engine.Options{
		Workspace: t.TempDir(),
		Config:    cfg,
		Logger:    logging.Discard(),
		Out:       io.Discard,
	})
	require.NoError(t, err)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowActorHeader: true, Logger: logging.Discard()},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		require.NoError(t, e.Close())
	})
	token, err := SignToken(testSecret, "alice", "", time.Hour)
	require.NoError(t, err)
	return &testServer{Server: srv, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if headers == nil {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodGet, "/v0/health", nil, map[string]string{})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodGet, "/v0/personas", nil, map[string]string{})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	env := decode[apiError](t, data)
	require.Equal(t, "unauthorized", env.Body.Code)

	res, _ = srv.do(t, http.MethodGet, "/v0/personas", nil, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = srv.do(t, http.MethodGet, "/v0/me", nil, map[string]string{"X-Actor-Id": "bob"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Equal(t, "header", decode[WhoAmIResponse](t, data).Source)
}

func TestCompleteStepFlow(t *testing.T) {
	srv := newTestServer(t)
	base := "/v0/personas/worker/workflows/data-access-request"

	res, data := srv.do(t, http.MethodPost, base+"/steps/select-data-types/complete", map[string]any{
		"data": map[string]any{"dataTypes": []string{}},
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	env := decode[apiError](t, data)
	require.Equal(t, "validation_failed", env.Body.Code)
	require.Equal(t, "Please select at least one data type", env.Body.Message)

	res, data = srv.do(t, http.MethodPost, base+"/steps/select-data-types/complete", map[string]any{
		"data": map[string]any{"dataTypes": []string{"contact_info"}},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	prog := decode[ProgressResponse](t, data)
	require.Equal(t, "provide-identity-verification", prog.CurrentStep)
	require.Equal(t, domain.ProgressInProgress, prog.Status)
	require.Equal(t, 33, prog.Percent)

	res, data = srv.do(t, http.MethodGet, base+"/progress", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, []string{"select-data-types"}, decode[ProgressResponse](t, data).CompletedSteps)

	res, _ = srv.do(t, http.MethodGet, "/v0/personas/worker/workflows/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	dpoOnly, err := SignToken(testSecret, "dana", "dpo", time.Hour)
	require.NoError(t, err)
	res, _ = srv.do(t, http.MethodGet, base+"/progress", nil, map[string]string{"Authorization": "Bearer " + dpoOnly})
	require.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = srv.do(t, http.MethodDelete, base+"/progress", nil, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestProjectAndTaskRoutes(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodPost, "/v0/projects", map[string]any{
		"name":         "GDPR rollout",
		"team_members": []map[string]any{{"id": "m1", "name": "Mia"}},
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	p := decode[domain.Project](t, data)
	require.Len(t, p.Phases, 4)

	res, data = srv.do(t, http.MethodPost, "/v0/projects/"+p.ID+"/phases/"+p.Phases[0].ID+"/tasks", map[string]any{
		"title": "Map processing activities", "assignee_id": "m1",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	task := decode[domain.Task](t, data)

	res, data = srv.do(t, http.MethodPatch, "/v0/projects/"+p.ID+"/tasks/"+task.ID+"/status", map[string]any{"status": "completed"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Equal(t, 100, decode[domain.Project](t, data).OverallProgress)

	res, data = srv.do(t, http.MethodPut, "/v0/projects/"+p.ID+"/tasks/"+task.ID+"/assignee", map[string]any{"assignee_id": "stranger"}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, _ = srv.do(t, http.MethodGet, "/v0/projects/"+p.ID+"/tasks/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = srv.do(t, http.MethodPut, "/v0/projects/"+p.ID+"/current", nil, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	res, data = srv.do(t, http.MethodGet, "/v0/projects/current", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, p.ID, decode[domain.Project](t, data).ID)

	res, data = srv.do(t, http.MethodGet, "/v0/events?entity_kind=task", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NotEmpty(t, decode[[]domain.Event](t, data))
}

func TestRemindersAndNotifications(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodPost, "/v0/reminders", map[string]any{
		"title":        "Quarterly review",
		"scheduled_at": time.Now().UTC().Add(-5 * time.Second).Format(time.RFC3339),
		"priority":     "high",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodPost, "/v0/reminders/check", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Len(t, decode[CheckRemindersResponse](t, data).Fired, 1)

	res, data = srv.do(t, http.MethodGet, "/v0/notifications?unread=true", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	items := decode[[]domain.Notification](t, data)
	require.Len(t, items, 1)

	res, _ = srv.do(t, http.MethodPost, "/v0/notifications/"+items[0].ID+"/read", nil, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	res, data = srv.do(t, http.MethodGet, "/v0/notifications/unread-count", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, 0, decode[CountResponse](t, data).Count)

	res, _ = srv.do(t, http.MethodDelete, "/v0/reminders/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestEvidenceAndSettings(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodPost, "/v0/evidence", map[string]any{
		"name": "Privacy Policy", "type": "policy", "size_bytes": 1024, "frameworks": []string{"GDPR"},
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	it := decode[domain.EvidenceItem](t, data)
	require.Equal(t, "alice", it.UploadedBy)

	res, data = srv.do(t, http.MethodPost, "/v0/evidence/"+it.ID+"/access", map[string]any{"action": "viewed"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Len(t, decode[domain.EvidenceItem](t, data).AuditTrail, 2)

	res, data = srv.do(t, http.MethodGet, "/v0/evidence/export?format=csv&framework=GDPR", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.True(t, strings.HasPrefix(res.Header.Get("Content-Type"), "text/csv"))
	require.Contains(t, string(data), "Privacy Policy")

	res, data = srv.do(t, http.MethodPut, "/v0/settings/mode", map[string]any{"mode": "team"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = srv.do(t, http.MethodGet, "/v0/settings/mode", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "team", decode[ModeResponse](t, data).Mode)

	res, _ = srv.do(t, http.MethodPut, "/v0/settings/mode", map[string]any{"mode": "crowd"}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestTaskEvidenceLinksBothSides(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodPost, "/v0/evidence", map[string]any{"name": "DPIA", "type": "assessment"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	first := decode[domain.EvidenceItem](t, data)
	res, data = srv.do(t, http.MethodPost, "/v0/evidence", map[string]any{"name": "ROPA", "type": "legal"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	second := decode[domain.EvidenceItem](t, data)

	res, data = srv.do(t, http.MethodPost, "/v0/projects", map[string]any{"name": "Audit pack"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	p := decode[domain.Project](t, data)
	res, data = srv.do(t, http.MethodPost, "/v0/projects/"+p.ID+"/phases/"+p.Phases[0].ID+"/tasks", map[string]any{"title": "Collect evidence"}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	task := decode[domain.Task](t, data)

	res, data = srv.do(t, http.MethodPost, "/v0/projects/"+p.ID+"/tasks/"+task.ID+"/evidence", map[string]any{"evidence_id": first.ID}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = srv.do(t, http.MethodGet, "/v0/evidence/"+first.ID, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Contains(t, decode[domain.EvidenceItem](t, data).LinkedTasks, task.ID)

	// the vault route resolves the current project
	res, data = srv.do(t, http.MethodPost, "/v0/evidence/"+second.ID+"/links", map[string]any{"task_id": task.ID}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Contains(t, decode[domain.EvidenceItem](t, data).LinkedTasks, task.ID)
	res, data = srv.do(t, http.MethodGet, "/v0/projects/"+p.ID+"/tasks/"+task.ID, nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Equal(t, []string{first.ID, second.ID}, decode[domain.Task](t, data).Evidence)

	res, _ = srv.do(t, http.MethodPost, "/v0/projects/"+p.ID+"/tasks/"+task.ID+"/evidence", map[string]any{"evidence_id": "missing"}, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = srv.do(t, http.MethodPost, "/v0/evidence/"+first.ID+"/links", map[string]any{"task_id": "missing"}, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}
