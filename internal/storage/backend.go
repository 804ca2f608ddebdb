package storage

import (
	"context"
	"strings"
)

// Backend is the raw text key-value store behind an Adapter.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Well-known keys. The layout is shared with exported browser workspaces.
const (
	RemindersKey     = "cybercorrect_local_reminders"
	EvidenceKey      = "evidence_items"
	NotificationsKey = "notifications"

	workflowProgressPrefix = "workflow_progress_"
	projectPrefix          = "project_"
	appPrefix              = "app_"
)

// WorkflowProgressKey returns workflow_progress_<workflowID>, or
// workflow_progress_<persona>:<workflowID> when persona is set.
func WorkflowProgressKey(persona, workflowID string) string {
	if persona == "" {
		return workflowProgressPrefix + workflowID
	}
	return workflowProgressPrefix + persona + ":" + workflowID
}

func ProjectKey(name string) string { return projectPrefix + name }

func AppKey(name string) string { return appPrefix + name }

func hasPrefix(key, prefix string) bool {
	return prefix == "" || strings.HasPrefix(key, prefix)
}
