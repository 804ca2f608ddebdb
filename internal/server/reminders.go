package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"complyflow/internal/domain"
	"complyflow/internal/engine"
	"complyflow/internal/notify"
	"complyflow/internal/reminder"
)

func registerReminders(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-reminder",
		Method:        http.MethodPost,
		Path:          "/reminders",
		Summary:       "Schedule a reminder",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateReminderRequest `json:"body"`
	}) (*body[domain.Reminder], error) {
		r, err := e.Reminders.Create(ctx, domain.Reminder{
			ID:          input.Body.ID,
			Title:       input.Body.Title,
			Message:     input.Body.Message,
			ScheduledAt: input.Body.ScheduledAt,
			ActionURL:   input.Body.ActionURL,
			Priority:    input.Body.Priority,
			Metadata:    input.Body.Metadata,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(r), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reminders",
		Method:      http.MethodGet,
		Path:        "/reminders",
		Summary:     "List scheduled reminders",
	}, func(ctx context.Context, input *struct {
		Upcoming bool `query:"upcoming"`
		Limit    int  `query:"limit" minimum:"0"`
	}) (*body[[]domain.Reminder], error) {
		items, err := e.Reminders.List(ctx, reminder.ListOptions{UpcomingOnly: input.Upcoming, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-reminder",
		Method:        http.MethodDelete,
		Path:          "/reminders/{reminder_id}",
		Summary:       "Cancel a reminder",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ReminderID string `path:"reminder_id"`
	}) (*struct{}, error) {
		if err := e.Reminders.Delete(ctx, input.ReminderID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-reminders",
		Method:      http.MethodPost,
		Path:        "/reminders/check",
		Summary:     "Fire due reminders now",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*body[CheckRemindersResponse], error) {
		fired, err := e.Reminders.Check(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(CheckRemindersResponse{Fired: fired}), nil
	})
}

func registerNotifications(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List in-app notifications, newest first",
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
		Limit  int  `query:"limit" minimum:"0"`
	}) (*body[[]domain.Notification], error) {
		items, err := e.Inbox.List(ctx, notify.ListOptions{UnreadOnly: input.Unread, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "count-unread-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications/unread-count",
		Summary:     "Count unread notifications",
	}, func(ctx context.Context, _ *struct{}) (*body[CountResponse], error) {
		n, err := e.Inbox.UnreadCount(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(CountResponse{Count: n}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-all-notifications-read",
		Method:      http.MethodPost,
		Path:        "/notifications/read",
		Summary:     "Mark every notification read",
	}, func(ctx context.Context, _ *struct{}) (*body[CountResponse], error) {
		n, err := e.Inbox.MarkAllRead(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(CountResponse{Count: n}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "mark-notification-read",
		Method:        http.MethodPost,
		Path:          "/notifications/{notification_id}/read",
		Summary:       "Mark a notification read",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct{}, error) {
		if err := e.Inbox.MarkRead(ctx, input.NotificationID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-notification",
		Method:        http.MethodDelete,
		Path:          "/notifications/{notification_id}",
		Summary:       "Delete a notification",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct{}, error) {
		if err := e.Inbox.Delete(ctx, input.NotificationID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
