package complyflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal complyflow HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no bearer token is set.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Progress is a persona's position in a workflow.
type Progress struct {
	Persona        string         `json:"persona"`
	WorkflowID     string         `json:"workflow_id"`
	CurrentStep    string         `json:"current_step"`
	CompletedSteps []string       `json:"completed_steps"`
	Data           map[string]any `json:"data"`
	Status         string         `json:"status"`
	Percent        int            `json:"percent"`
}

// Project represents the API project model (partial).
type Project struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Phases          []Phase `json:"phases"`
	OverallProgress int     `json:"overall_progress"`
}

type Phase struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Tasks  []Task `json:"tasks"`
}

type Task struct {
	ID         string  `json:"id"`
	PhaseID    string  `json:"phase_id"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	AssigneeID *string `json:"assignee_id,omitempty"`
	Priority   string  `json:"priority"`
}

type Reminder struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Message     string    `json:"message,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Priority    string    `json:"priority,omitempty"`
}

type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
	Priority  string    `json:"priority"`
}

type Evidence struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	FileSize   string   `json:"file_size"`
	Frameworks []string `json:"frameworks"`
	Tags       []string `json:"tags"`
}

// Event represents an activity log entry.
type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts"`
	Type        string `json:"type"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id"`
	ActorID     string `json:"actor_id"`
	PayloadJSON string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Progress returns workflow progress.
func (c *Client) Progress(ctx context.Context, persona, workflowID string) (Progress, error) {
	var resp Progress
	err := c.do(ctx, http.MethodGet, workflowPath(persona, workflowID, "progress"), nil, &resp)
	return resp, err
}

// CompleteStep submits step data and advances the workflow.
func (c *Client) CompleteStep(ctx context.Context, persona, workflowID, stepID string, data map[string]any) (Progress, error) {
	var resp Progress
	endpoint := workflowPath(persona, workflowID, "steps/"+url.PathEscape(stepID)+"/complete")
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"data": data}, &resp)
	return resp, err
}

// CreateProject creates a project with the default phases.
func (c *Client) CreateProject(ctx context.Context, name, description string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", map[string]any{"name": name, "description": description}, &resp)
	return resp, err
}

// AddTask adds a task to a phase.
func (c *Client) AddTask(ctx context.Context, projectID, phaseID, title string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("v0/projects/%s/phases/%s/tasks", url.PathEscape(projectID), url.PathEscape(phaseID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"title": title}, &resp)
	return resp, err
}

// SetTaskStatus changes a task status and returns the recomputed project.
func (c *Client) SetTaskStatus(ctx context.Context, projectID, taskID, status string) (Project, error) {
	var resp Project
	endpoint := fmt.Sprintf("v0/projects/%s/tasks/%s/status", url.PathEscape(projectID), url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// CreateReminder schedules a reminder.
func (c *Client) CreateReminder(ctx context.Context, title, message string, at time.Time) (Reminder, error) {
	body := map[string]any{
		"title":        title,
		"message":      message,
		"scheduled_at": at.UTC().Format(time.RFC3339),
	}
	var resp Reminder
	err := c.do(ctx, http.MethodPost, "v0/reminders", body, &resp)
	return resp, err
}

// Notifications lists in-app notifications.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	var resp []Notification
	endpoint := "v0/notifications"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AddEvidence registers an evidence item.
func (c *Client) AddEvidence(ctx context.Context, name, evidenceType string, frameworks []string) (Evidence, error) {
	body := map[string]any{"name": name, "type": evidenceType, "frameworks": frameworks}
	var resp Evidence
	err := c.do(ctx, http.MethodPost, "v0/evidence", body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func workflowPath(persona, workflowID, rest string) string {
	return fmt.Sprintf("v0/personas/%s/workflows/%s/%s", url.PathEscape(persona), url.PathEscape(workflowID), rest)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
