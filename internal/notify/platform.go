package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"complyflow/internal/domain"
	"complyflow/internal/reminder"
)

// Console prints notifications to a writer. Mode follows the
// notifications.desktop setting: prompt, granted or denied.
type Console struct {
	W io.Writer

	mu         sync.Mutex
	permission string
}

func NewConsole(w io.Writer, mode string) *Console {
	perm := reminder.PermissionDefault
	switch mode {
	case "granted":
		perm = reminder.PermissionGranted
	case "denied":
		perm = reminder.PermissionDenied
	}
	return &Console{W: w, permission: perm}
}

func (c *Console) Permission(context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permission
}

// RequestPermission grants a pending prompt; a terminal has nobody to ask.
func (c *Console) RequestPermission(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.permission == reminder.PermissionDefault {
		c.permission = reminder.PermissionGranted
	}
	return c.permission, nil
}

func (c *Console) Show(_ context.Context, n domain.Notification, persistent bool) error {
	marker := ""
	if persistent {
		marker = " [!]"
	}
	line := fmt.Sprintf("[%s]%s %s", strings.ToUpper(n.Priority), marker, n.Title)
	if n.Message != "" {
		line += ": " + n.Message
	}
	if n.ActionURL != "" {
		line += " (" + n.ActionURL + ")"
	}
	_, err := fmt.Fprintln(c.W, line)
	return err
}

// Multi fans out to several platforms, each with its own permission.
type Multi []reminder.Platform

func (m Multi) Permission(ctx context.Context) string {
	perm := reminder.PermissionDenied
	for _, p := range m {
		switch p.Permission(ctx) {
		case reminder.PermissionGranted:
			return reminder.PermissionGranted
		case reminder.PermissionDefault:
			perm = reminder.PermissionDefault
		}
	}
	return perm
}

func (m Multi) RequestPermission(ctx context.Context) (string, error) {
	var errs []error
	for _, p := range m {
		if p.Permission(ctx) == reminder.PermissionDefault {
			if _, err := p.RequestPermission(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return m.Permission(ctx), errors.Join(errs...)
}

func (m Multi) Show(ctx context.Context, n domain.Notification, persistent bool) error {
	var errs []error
	for _, p := range m {
		if p.Permission(ctx) != reminder.PermissionGranted {
			continue
		}
		if err := p.Show(ctx, n, persistent); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
