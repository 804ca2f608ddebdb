package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"complyflow/internal/config"
	"complyflow/internal/domain"
	"complyflow/internal/reminder"
)

const defaultWebhookTimeout = 5 * time.Second

// Webhook posts notifications as JSON to the configured endpoints.
// Endpoints need no user permission.
type Webhook struct {
	hooks  []config.WebhookConfig
	client *http.Client
}

func NewWebhook(hooks []config.WebhookConfig) *Webhook {
	var enabled []config.WebhookConfig
	for _, h := range hooks {
		if h.Enabled != nil && !*h.Enabled {
			continue
		}
		if strings.TrimSpace(h.URL) == "" {
			continue
		}
		enabled = append(enabled, h)
	}
	return &Webhook{hooks: enabled, client: &http.Client{Timeout: defaultWebhookTimeout}}
}

func (w *Webhook) Permission(context.Context) string {
	if len(w.hooks) == 0 {
		return reminder.PermissionDenied
	}
	return reminder.PermissionGranted
}

func (w *Webhook) RequestPermission(ctx context.Context) (string, error) {
	return w.Permission(ctx), nil
}

type webhookNotification struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Title      string            `json:"title"`
	Message    string            `json:"message,omitempty"`
	Priority   string            `json:"priority"`
	Persistent bool              `json:"persistent"`
	ActionURL  string            `json:"action_url,omitempty"`
	CreatedAt  string            `json:"created_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Show delivers n to every hook whose type filter matches. Delivery is
// attempted once per hook.
func (w *Webhook) Show(ctx context.Context, n domain.Notification, persistent bool) error {
	body, err := json.Marshal(webhookNotification{
		ID:         n.ID,
		Type:       n.Type,
		Title:      n.Title,
		Message:    n.Message,
		Priority:   n.Priority,
		Persistent: persistent,
		ActionURL:  n.ActionURL,
		CreatedAt:  n.CreatedAt.UTC().Format(time.RFC3339),
		Metadata:   n.Metadata,
	})
	if err != nil {
		return err
	}
	var errs []error
	for _, hook := range w.hooks {
		if !newTypeFilter(hook.Types).match(n.Type) {
			continue
		}
		if err := w.post(ctx, hook, n, body); err != nil {
			errs = append(errs, fmt.Errorf("deliver to %s: %w", hook.URL, err))
		}
	}
	return errors.Join(errs...)
}

func (w *Webhook) post(ctx context.Context, hook config.WebhookConfig, n domain.Notification, body []byte) error {
	client := w.client
	if hook.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(hook.TimeoutSeconds) * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Complyflow-Type", n.Type)
	req.Header.Set("X-Complyflow-Delivery", n.ID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Complyflow-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

type typeFilter struct {
	all bool
	set map[string]struct{}
}

func newTypeFilter(types []string) typeFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return typeFilter{all: true}
	}
	return typeFilter{set: set}
}

func (f typeFilter) match(t string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[t]
	return ok
}
