package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"complyflow/internal/domain"
	"complyflow/internal/engine"
	"complyflow/internal/project"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{
		Use:   "project",
		Short: "Manage compliance projects",
		Long:  "A project runs through assessment, planning, implementation and validation phases. Progress is the share of completed tasks.",
	}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUseCmd())
	prj.AddCommand(projectTaskCmd())
	prj.AddCommand(projectPhaseCmd())
	prj.AddCommand(projectMemberCmd())
	return prj
}

// targetProject resolves --project or falls back to the current project.
func targetProject(ctx context.Context, e *engine.Engine) (string, error) {
	if id := viper.GetString("project"); id != "" {
		return id, nil
	}
	p, err := e.Projects.Current(ctx)
	if err != nil {
		return "", fmt.Errorf("no --project given and no current project: %w", err)
	}
	return p.ID, nil
}

func projectCreateCmd() *cobra.Command {
	var in project.Input
	var start, target string
	var members []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project with the default phases",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if in.StartDate, err = parseDate(start); err != nil {
				return err
			}
			if in.TargetCompletion, err = parseDate(target); err != nil {
				return err
			}
			for _, m := range members {
				id, name, ok := strings.Cut(m, ":")
				if !ok {
					return fmt.Errorf("member %q: want id:name", m)
				}
				in.TeamMembers = append(in.TeamMembers, domain.TeamMember{ID: id, Name: name})
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				p, err := e.Projects.CreateProject(ctx, in, actorID())
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "project name")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&start, "start", "", "start date (defaults to today)")
	cmd.Flags().StringVar(&target, "target", "", "target completion date")
	cmd.Flags().StringSliceVar(&members, "member", nil, "team member as id:name (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Projects.List(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "Name", "Progress", "Current phase", "Target"})
					for _, p := range items {
						tw.AppendRow(table.Row{p.ID, p.Name, fmt.Sprintf("%d%%", p.OverallProgress), p.CurrentPhaseID, p.TargetCompletion.Format("2006-01-02")})
					}
				})
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show a project with its phases and tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				id, err := targetProject(ctx, e)
				if err != nil {
					return err
				}
				p, err := e.Projects.Get(ctx, id)
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
}

func projectUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <project-id>",
		Short: "Make a project the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if err := e.Projects.SetCurrent(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("current project:", args[0])
				return nil
			})
		},
	}
}

func projectTaskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage project tasks"}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskEvidenceCmd())
	task.AddCommand(taskHoursCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var in project.TaskInput
	var phaseID, due string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a task to a phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if in.DueDate, err = parseDate(due); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				pid, err := targetProject(ctx, e)
				if err != nil {
					return err
				}
				t, err := e.Projects.AddTask(ctx, pid, phaseID, in, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "Phase", "Title", "Priority", "Due"})
					tw.AppendRow(table.Row{t.ID, t.PhaseID, t.Title, t.Priority, t.DueDate.Format("2006-01-02")})
				})
			})
		},
	}
	cmd.Flags().StringVar(&phaseID, "phase", "", "phase id")
	cmd.Flags().StringVar(&in.Title, "title", "", "task title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.AssigneeID, "assignee", "", "team member id")
	cmd.Flags().StringVar(&due, "due", "", "due date (defaults to a week from now)")
	cmd.Flags().StringVar(&in.Priority, "priority", "", "low, medium, high or critical")
	cmd.Flags().StringVar(&in.Category, "category", "", "category")
	cmd.Flags().StringVar(&in.Deliverable, "deliverable", "", "deliverable produced by the task")
	cmd.Flags().StringSliceVar(&in.Dependencies, "depends-on", nil, "task ids this task depends on")
	cmd.Flags().Float64Var(&in.EstimatedHours, "estimate", 0, "estimated hours")
	_ = cmd.MarkFlagRequired("phase")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				pid, err := targetProject(ctx, e)
				if err != nil {
					return err
				}
				t, err := e.Projects.Task(ctx, pid, args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

// projectMutation runs fn against the target project and prints the result.
func projectMutation(cmd *cobra.Command, fn func(context.Context, *engine.Engine, string) (domain.Project, error)) error {
	return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
		pid, err := targetProject(ctx, e)
		if err != nil {
			return err
		}
		p, err := fn(ctx, e, pid)
		if err != nil {
			return err
		}
		return printProject(p)
	})
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Set a task status (not_started, in_progress, completed, blocked)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return projectMutation(cmd, func(ctx context.Context, e *engine.Engine, pid string) (domain.Project, error) {
				return e.Projects.UpdateTaskStatus(ctx, pid, args[0], args[1], actorID())
			})
		},
	}
}

func taskAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <task-id> [member-id]",
		Short: "Assign a task; omit the member to unassign",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			member := ""
			if len(args) == 2 {
				member = args[1]
			}
			return projectMutation(cmd, func(ctx context.Context, e *engine.Engine, pid string) (domain.Project, error) {
				return e.Projects.AssignTask(ctx, pid, args[0], member, actorID())
			})
		},
	}
}

func taskEvidenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evidence <task-id> <evidence-id>",
		Short: "Attach an evidence item to a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return projectMutation(cmd, func(ctx context.Context, e *engine.Engine, pid string) (domain.Project, error) {
				p, _, err := e.LinkTaskEvidence(ctx, pid, args[0], args[1], actorID())
				return p, err
			})
		},
	}
}

func taskHoursCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hours <task-id> <hours>",
		Short: "Log hours against a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hours, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("hours: %w", err)
			}
			return projectMutation(cmd, func(ctx context.Context, e *engine.Engine, pid string) (domain.Project, error) {
				return e.Projects.LogHours(ctx, pid, args[0], hours, actorID())
			})
		},
	}
}

func projectPhaseCmd() *cobra.Command {
	phase := &cobra.Command{Use: "phase", Short: "Manage project phases"}
	phase.AddCommand(&cobra.Command{
		Use:   "status <phase-id> <status>",
		Short: "Set a phase status (planning, in_progress, completed, on_hold)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return projectMutation(cmd, func(ctx context.Context, e *engine.Engine, pid string) (domain.Project, error) {
				return e.Projects.UpdatePhaseStatus(ctx, pid, args[0], args[1], actorID())
			})
		},
	})
	return phase
}

func projectMemberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Manage the project team"}
	var m domain.TeamMember
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a team member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				pid, err := targetProject(ctx, e)
				if err != nil {
					return err
				}
				added, err := e.Projects.AddTeamMember(ctx, pid, m, actorID())
				if err != nil {
					return err
				}
				return printJSON(added)
			})
		},
	}
	add.Flags().StringVar(&m.ID, "id", "", "member id (generated when empty)")
	add.Flags().StringVar(&m.Name, "name", "", "display name")
	add.Flags().StringVar(&m.Email, "email", "", "email address")
	add.Flags().StringVar(&m.Role, "role", "", "role on the project")
	_ = add.MarkFlagRequired("name")
	member.AddCommand(add)
	return member
}

func printProject(p domain.Project) error {
	return printJSONOrTable(p, func(tw table.Writer) {
		tw.SetTitle(fmt.Sprintf("%s (%s) %d%%", p.Name, p.ID, p.OverallProgress))
		tw.AppendHeader(table.Row{"Phase", "Status", "Task", "Title", "Task status", "Assignee"})
		for _, ph := range p.Phases {
			if len(ph.Tasks) == 0 {
				tw.AppendRow(table.Row{ph.Name, ph.Status, "", "", "", ""})
				continue
			}
			for _, t := range ph.Tasks {
				assignee := ""
				if t.AssigneeID != nil {
					assignee = *t.AssigneeID
				}
				tw.AppendRow(table.Row{ph.Name, ph.Status, t.ID, t.Title, t.Status, assignee})
			}
		}
		tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}, {Number: 2, AutoMerge: true}})
	})
}
