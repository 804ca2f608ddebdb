package server

import (
	"errors"
	"time"

	"complyflow/internal/domain"
)

// Request payloads

type CompleteStepRequest struct {
	Data map[string]any `json:"data"`
}

type CreateProjectRequest struct {
	Name             string              `json:"name" minLength:"1"`
	Description      string              `json:"description,omitempty"`
	StartDate        *time.Time          `json:"start_date,omitempty"`
	TargetCompletion *time.Time          `json:"target_completion,omitempty"`
	TeamMembers      []domain.TeamMember `json:"team_members,omitempty"`
}

type AddMemberRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

type CreateTaskRequest struct {
	Title          string     `json:"title" minLength:"1"`
	Description    string     `json:"description,omitempty"`
	AssigneeID     string     `json:"assignee_id,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	Priority       string     `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Category       string     `json:"category,omitempty"`
	Deliverable    string     `json:"deliverable,omitempty"`
	Dependencies   []string   `json:"dependencies,omitempty"`
	EstimatedHours float64    `json:"estimated_hours,omitempty" minimum:"0"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type AssignTaskRequest struct {
	// AssigneeID empty clears the assignment.
	AssigneeID string `json:"assignee_id"`
}

type LinkEvidenceRequest struct {
	EvidenceID string `json:"evidence_id" minLength:"1"`
}

type LogHoursRequest struct {
	Hours float64 `json:"hours" exclusiveMinimum:"0"`
}

type CreateReminderRequest struct {
	ID          string            `json:"id,omitempty"`
	Title       string            `json:"title"`
	Message     string            `json:"message,omitempty"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	ActionURL   string            `json:"action_url,omitempty"`
	Priority    string            `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type CreateEvidenceRequest struct {
	Name        string   `json:"name"`
	Type        string   `json:"type" enum:"policy,procedure,assessment,training,technical,legal"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	SizeBytes   int64    `json:"size_bytes,omitempty" minimum:"0"`
	Tags        []string `json:"tags,omitempty"`
	LinkedTasks []string `json:"linked_tasks,omitempty"`
	Frameworks  []string `json:"frameworks,omitempty"`
}

type UpdateEvidenceRequest struct {
	Name        *string  `json:"name,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Frameworks  []string `json:"frameworks,omitempty"`
}

type LinkTaskRequest struct {
	TaskID string `json:"task_id" minLength:"1"`
	// ProjectID defaults to the current project.
	ProjectID string `json:"project_id,omitempty"`
}

type RecordAccessRequest struct {
	Action string `json:"action" enum:"viewed,downloaded"`
}

type SetModeRequest struct {
	Mode string `json:"mode" enum:"solo,team"`
}

// Responses

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Persona string `json:"persona,omitempty"`
	Source  string `json:"source"`
}

type ProgressResponse struct {
	domain.WorkflowProgress
	Percent int `json:"percent"`
}

type ModeResponse struct {
	Mode string `json:"mode"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type CheckRemindersResponse struct {
	Fired []domain.Reminder `json:"fired"`
}

func asValidation(err error) (domain.ValidationError, bool) {
	var ve domain.ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

func orZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
