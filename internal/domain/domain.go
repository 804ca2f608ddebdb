package domain

import "time"

// Progress statuses.
const (
	ProgressNotStarted = "not_started"
	ProgressInProgress = "in_progress"
	ProgressCompleted  = "completed"
)

// Phase statuses.
const (
	PhasePlanning   = "planning"
	PhaseInProgress = "in_progress"
	PhaseCompleted  = "completed"
	PhaseOnHold     = "on_hold"
)

// Task statuses.
const (
	TaskNotStarted = "not_started"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskBlocked    = "blocked"
)

// Priorities shared by tasks, reminders and notifications.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

type FormField struct {
	Name     string   `json:"name" yaml:"name"`
	Type     string   `json:"type" yaml:"type"`
	Label    string   `json:"label,omitempty" yaml:"label"`
	Required bool     `json:"required" yaml:"required"`
	Options  []string `json:"options,omitempty" yaml:"options"`
}

type ValidationRule struct {
	Field   string `json:"field" yaml:"field"`
	Type    string `json:"type" yaml:"type" enum:"required,email,phone,custom"`
	Message string `json:"message" yaml:"message"`
	// Custom names a predicate registered on the definition table; only for type custom.
	Custom string `json:"custom,omitempty" yaml:"custom"`
}

type StepMetadata struct {
	EstimatedTime   string `json:"estimated_time,omitempty" yaml:"estimated_time"`
	PlatformFeature string `json:"platform_feature,omitempty" yaml:"platform_feature"`
}

type WorkflowStep struct {
	ID          string           `json:"id" yaml:"id"`
	Title       string           `json:"title" yaml:"title"`
	Description string           `json:"description,omitempty" yaml:"description"`
	Fields      []FormField      `json:"fields,omitempty" yaml:"fields"`
	Rules       []ValidationRule `json:"validation,omitempty" yaml:"validation"`
	Next        string           `json:"next,omitempty" yaml:"next"`
	Previous    string           `json:"previous,omitempty" yaml:"previous"`
	Required    bool             `json:"required" yaml:"required"`
	Metadata    StepMetadata     `json:"metadata" yaml:"metadata"`
}

type Workflow struct {
	ID          string         `json:"id" yaml:"id"`
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description,omitempty" yaml:"description"`
	Steps       []WorkflowStep `json:"steps" yaml:"steps"`
}

type WorkflowProgress struct {
	Persona        string         `json:"persona"`
	WorkflowID     string         `json:"workflow_id"`
	CurrentStep    string         `json:"current_step"`
	CompletedSteps []string       `json:"completed_steps"`
	Data           map[string]any `json:"data"`
	Status         string         `json:"status" enum:"not_started,in_progress,completed"`
	CreatedAt      time.Time      `json:"created_at" format:"date-time"`
	UpdatedAt      time.Time      `json:"updated_at" format:"date-time"`
}

type TeamMember struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Role  string `json:"role,omitempty"`
}

type Task struct {
	ID             string    `json:"id"`
	PhaseID        string    `json:"phase_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Status         string    `json:"status" enum:"not_started,in_progress,completed,blocked"`
	AssigneeID     *string   `json:"assignee_id,omitempty"`
	DueDate        time.Time `json:"due_date" format:"date-time"`
	Priority       string    `json:"priority" enum:"low,medium,high,critical"`
	Category       string    `json:"category,omitempty"`
	Deliverable    string    `json:"deliverable,omitempty"`
	Evidence       []string  `json:"evidence"`
	Dependencies   []string  `json:"dependencies"`
	EstimatedHours float64   `json:"estimated_hours"`
	ActualHours    float64   `json:"actual_hours"`
}

type Phase struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Status       string    `json:"status" enum:"planning,in_progress,completed,on_hold"`
	StartDate    time.Time `json:"start_date" format:"date-time"`
	EndDate      time.Time `json:"end_date" format:"date-time"`
	Tasks        []Task    `json:"tasks"`
	Deliverables []string  `json:"deliverables"`
	Milestones   []string  `json:"milestones"`
}

type Project struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Description      string       `json:"description,omitempty"`
	Phases           []Phase      `json:"phases"`
	TeamMembers      []TeamMember `json:"team_members"`
	OverallProgress  int          `json:"overall_progress"`
	CurrentPhaseID   string       `json:"current_phase_id,omitempty"`
	StartDate        time.Time    `json:"start_date" format:"date-time"`
	TargetCompletion time.Time    `json:"target_completion" format:"date-time"`
	CreatedAt        time.Time    `json:"created_at" format:"date-time"`
	LastUpdated      time.Time    `json:"last_updated" format:"date-time"`
}

type Reminder struct {
	ID          string            `json:"id"`
	Title       string            `json:"title" validate:"required"`
	Message     string            `json:"message"`
	ScheduledAt time.Time         `json:"scheduled_at" format:"date-time" validate:"required"`
	ActionURL   string            `json:"action_url,omitempty" validate:"omitempty,url"`
	Priority    string            `json:"priority" enum:"low,medium,high,critical" validate:"omitempty,oneof=low medium high critical"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type AuditEntry struct {
	Action    string    `json:"action"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp" format:"date-time"`
	Details   string    `json:"details,omitempty"`
}

type EvidenceItem struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         string       `json:"type" enum:"policy,procedure,assessment,training,technical,legal"`
	Category     string       `json:"category,omitempty"`
	Description  string       `json:"description,omitempty"`
	UploadedAt   time.Time    `json:"uploaded_at" format:"date-time"`
	LastModified time.Time    `json:"last_modified" format:"date-time"`
	UploadedBy   string       `json:"uploaded_by"`
	FileSize     string       `json:"file_size,omitempty"`
	Tags         []string     `json:"tags"`
	LinkedTasks  []string     `json:"linked_tasks"`
	Frameworks   []string     `json:"frameworks"`
	AuditTrail   []AuditEntry `json:"audit_trail"`
}

type Notification struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Type      string            `json:"type"`
	Priority  string            `json:"priority" enum:"low,medium,high,critical"`
	ActionURL string            `json:"action_url,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at" format:"date-time"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
