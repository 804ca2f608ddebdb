package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"complyflow/internal/domain"
	"complyflow/internal/engine"
	"complyflow/internal/notify"
	"complyflow/internal/reminder"
)

func reminderCmd() *cobra.Command {
	rem := &cobra.Command{
		Use:   "reminder",
		Short: "Scheduled reminders",
		Long:  "Reminders fire once when due. 'cf serve' checks them on a timer; 'cf reminder check' runs one sweep now.",
	}
	rem.AddCommand(reminderAddCmd())
	rem.AddCommand(reminderListCmd())
	rem.AddCommand(reminderDeleteCmd())
	rem.AddCommand(reminderCheckCmd())
	return rem
}

func reminderAddCmd() *cobra.Command {
	var r domain.Reminder
	var at string
	var in time.Duration
	var meta map[string]string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule a reminder",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case at != "":
				t, err := parseDate(at)
				if err != nil {
					return err
				}
				r.ScheduledAt = t
			case in > 0:
				r.ScheduledAt = time.Now().Add(in)
			default:
				return fmt.Errorf("one of --at or --in is required")
			}
			r.Metadata = meta
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				created, err := e.Reminders.Create(ctx, r)
				if err != nil {
					return err
				}
				return printReminders([]domain.Reminder{created})
			})
		},
	}
	cmd.Flags().StringVar(&r.ID, "id", "", "reminder id (generated when empty)")
	cmd.Flags().StringVar(&r.Title, "title", "", "title")
	cmd.Flags().StringVar(&r.Message, "message", "", "message")
	cmd.Flags().StringVar(&at, "at", "", "when to fire (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().DurationVar(&in, "in", 0, "fire after this duration")
	cmd.Flags().StringVar(&r.ActionURL, "action-url", "", "link opened from the notification")
	cmd.Flags().StringVar(&r.Priority, "priority", "", "low, medium, high or critical")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "metadata key=value pairs")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func reminderListCmd() *cobra.Command {
	var opts reminder.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reminders by scheduled time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Reminders.List(ctx, opts)
				if err != nil {
					return err
				}
				return printReminders(items)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.UpcomingOnly, "upcoming", false, "only reminders not yet due")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of reminders")
	return cmd
}

func reminderDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <reminder-id>",
		Short: "Cancel a reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if err := e.Reminders.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func reminderCheckCmd() *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fire due reminders now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				sweep := e.Reminders.Check
				if resume {
					sweep = e.Reminders.Resume
				}
				fired, err := sweep(ctx)
				if err != nil {
					return err
				}
				return printReminders(fired)
			})
		},
	}
	cmd.Flags().BoolVar(&resume, "catch-up", false, "also fire missed reminders within the catch-up window")
	return cmd
}

func printReminders(items []domain.Reminder) error {
	return printJSONOrTable(items, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Scheduled", "Due"})
		for _, r := range items {
			tw.AppendRow(table.Row{r.ID, r.Title, r.Priority, r.ScheduledAt.Local().Format(time.DateTime), humanize.Time(r.ScheduledAt)})
		}
	})
}

func notificationCmd() *cobra.Command {
	n := &cobra.Command{
		Use:     "notification",
		Aliases: []string{"inbox"},
		Short:   "In-app notification inbox",
	}
	n.AddCommand(notificationListCmd())
	n.AddCommand(&cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.Inbox.MarkRead(ctx, args[0])
			})
		},
	})
	n.AddCommand(&cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				count, err := e.Inbox.MarkAllRead(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("marked %d read\n", count)
				return nil
			})
		},
	})
	n.AddCommand(&cobra.Command{
		Use:   "delete <notification-id>",
		Short: "Delete a notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.Inbox.Delete(ctx, args[0])
			})
		},
	})
	return n
}

func notificationListCmd() *cobra.Command {
	var opts notify.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Inbox.List(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "", "Title", "Priority", "When"})
					for _, n := range items {
						mark := "*"
						if n.Read {
							mark = ""
						}
						tw.AppendRow(table.Row{n.ID, mark, n.Title, n.Priority, humanize.Time(n.CreatedAt)})
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&opts.UnreadOnly, "unread", false, "only unread notifications")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of notifications")
	return cmd
}
