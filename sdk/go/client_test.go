package complyflowsdk

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"complyflow/internal/config"
	"complyflow/internal/engine"
	"complyflow/internal/logging"
	"complyflow/internal/server"
)

func newClient(t *testing.T) *Client {
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
	h, err := server.New(server.Config{Engine: e, BasePath: "/v0", Auth: server.AuthConfig{JWTSecret: "sdk-secret"}})
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		_ = e.Close()
	})
	token, err := server.SignToken("sdk-secret", "sdk-user", "", time.Hour)
	require.NoError(t, err)
	c := New(srv.URL)
	c.BearerToken = token
	return c
}

func TestClientWorkflowAndProjects(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	_, err := c.CompleteStep(ctx, "worker", "data-access-request", "select-data-types", map[string]any{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 422, apiErr.StatusCode)
	require.Equal(t, "validation_failed", apiErr.Code)

	prog, err := c.CompleteStep(ctx, "worker", "data-access-request", "select-data-types", map[string]any{
		"dataTypes": []string{"personal_info"},
	})
	require.NoError(t, err)
	require.Equal(t, "in_progress", prog.Status)

	p, err := c.CreateProject(ctx, "SOC 2", "")
	require.NoError(t, err)
	require.NotEmpty(t, p.Phases)
	task, err := c.AddTask(ctx, p.ID, p.Phases[1].ID, "Write policy")
	require.NoError(t, err)
	p, err = c.SetTaskStatus(ctx, p.ID, task.ID, "completed")
	require.NoError(t, err)
	require.Equal(t, 100, p.OverallProgress)

	evs, err := c.Events(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, evs)
}

func TestClientRejectsMissingAuth(t *testing.T) {
	c := newClient(t)
	c.BearerToken = ""
	_, err := c.Notifications(context.Background(), true)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 401, apiErr.StatusCode)
}
