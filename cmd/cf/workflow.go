package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"complyflow/internal/domain"
	"complyflow/internal/engine"
)

func workflowCmd() *cobra.Command {
	wf := &cobra.Command{
		Use:   "workflow",
		Short: "Guided data-rights workflows",
		Long:  "Workflows are grouped by persona. Progress is kept per persona and workflow; completing a step validates its data first.",
	}
	wf.AddCommand(workflowListCmd())
	wf.AddCommand(workflowShowCmd())
	wf.AddCommand(workflowProgressCmd())
	wf.AddCommand(workflowCompleteCmd())
	wf.AddCommand(workflowResetCmd())
	return wf
}

func workflowListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [persona]",
		Short: "List workflows, optionally for one persona",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				personas := e.Workflows.Personas()
				if len(args) == 1 {
					personas = []string{args[0]}
				}
				type row struct {
					Persona string `json:"persona"`
					ID      string `json:"id"`
					Title   string `json:"title"`
					Steps   int    `json:"steps"`
				}
				var rows []row
				for _, p := range personas {
					for _, w := range e.Workflows.Workflows(p) {
						rows = append(rows, row{Persona: p, ID: w.ID, Title: w.Title, Steps: len(w.Steps)})
					}
				}
				return printJSONOrTable(rows, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Persona", "Workflow", "Title", "Steps"})
					for _, r := range rows {
						tw.AppendRow(table.Row{r.Persona, r.ID, r.Title, r.Steps})
					}
				})
			})
		},
	}
}

func workflowShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <persona> <workflow>",
		Short: "Show the steps of a workflow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				wf, err := e.Workflows.Workflow(args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(wf, func(tw table.Writer) {
					tw.SetTitle(wf.Title)
					tw.AppendHeader(table.Row{"#", "Step", "Title", "Fields", "Est. time"})
					for i, s := range wf.Steps {
						fields := make([]string, 0, len(s.Fields))
						for _, f := range s.Fields {
							fields = append(fields, f.Name)
						}
						tw.AppendRow(table.Row{i + 1, s.ID, s.Title, strings.Join(fields, ", "), s.Metadata.EstimatedTime})
					}
				})
			})
		},
	}
}

func workflowProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <persona> <workflow>",
		Short: "Show workflow progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				p, err := e.Progress.Progress(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printProgress(e, p)
			})
		},
	}
}

func workflowCompleteCmd() *cobra.Command {
	var dataJSON, dataFile string
	cmd := &cobra.Command{
		Use:     "complete <persona> <workflow> <step>",
		Short:   "Complete a step with JSON form data",
		Example: `  cf workflow complete worker data-access-request select-data-types --data '{"dataTypes":["contact_info"]}'`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readStepData(dataJSON, dataFile)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				p, err := e.Progress.CompleteStep(ctx, args[0], args[1], args[2], data)
				if err != nil {
					var ve domain.ValidationError
					if errors.As(err, &ve) {
						for _, msg := range ve.Errors {
							fmt.Fprintln(os.Stderr, "  -", msg)
						}
						return fmt.Errorf("step %s not completed", args[2])
					}
					return err
				}
				return printProgress(e, p)
			})
		},
	}
	cmd.Flags().StringVar(&dataJSON, "data", "", "step data as a JSON object")
	cmd.Flags().StringVar(&dataFile, "data-file", "", "read step data from a JSON file")
	return cmd
}

func workflowResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <persona> <workflow>",
		Short: "Forget progress on a workflow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if err := e.Progress.Reset(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("reset %s/%s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func printProgress(e *engine.Engine, p domain.WorkflowProgress) error {
	out := struct {
		domain.WorkflowProgress
		Percent int `json:"percent"`
	}{p, e.Progress.Percent(p)}
	return printJSONOrTable(out, func(tw table.Writer) {
		tw.AppendRows([]table.Row{
			{"Workflow", p.Persona + "/" + p.WorkflowID},
			{"Status", p.Status},
			{"Current step", p.CurrentStep},
			{"Completed", strings.Join(p.CompletedSteps, ", ")},
			{"Progress", fmt.Sprintf("%d%%", out.Percent)},
		})
	})
}

func readStepData(inline, file string) (map[string]any, error) {
	raw := []byte(inline)
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	data := map[string]any{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("step data must be a JSON object: %w", err)
	}
	return data, nil
}
