package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"complyflow/internal/domain"
	"complyflow/internal/engine"
	"complyflow/internal/evidence"
)

func evidenceCmd() *cobra.Command {
	ev := &cobra.Command{
		Use:   "evidence",
		Short: "Evidence vault",
		Long:  "Evidence items back compliance tasks. Every change and every view or download is recorded in the item's audit trail.",
	}
	ev.AddCommand(evidenceAddCmd())
	ev.AddCommand(evidenceListCmd())
	ev.AddCommand(evidenceShowCmd())
	ev.AddCommand(evidenceUpdateCmd())
	ev.AddCommand(evidenceLinkCmd())
	ev.AddCommand(evidenceExportCmd())
	ev.AddCommand(evidenceDeleteCmd())
	return ev
}

func evidenceFilterFlags(cmd *cobra.Command, f *evidence.Filter) {
	cmd.Flags().StringVar(&f.Type, "type", "", "evidence type")
	cmd.Flags().StringVar(&f.Framework, "framework", "", "framework, e.g. GDPR")
	cmd.Flags().StringVar(&f.Tag, "tag", "", "tag")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "search name, description and category")
}

func evidenceAddCmd() *cobra.Command {
	var in evidence.AddInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an evidence item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				it, err := e.Evidence.Add(ctx, in, actorID())
				if err != nil {
					return err
				}
				return printEvidence([]domain.EvidenceItem{it})
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "name")
	cmd.Flags().StringVar(&in.Type, "type", "", "policy, procedure, assessment, training, technical or legal")
	cmd.Flags().StringVar(&in.Category, "category", "", "category")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().Int64Var(&in.SizeBytes, "size", 0, "file size in bytes")
	cmd.Flags().StringSliceVar(&in.Tags, "tag", nil, "tags")
	cmd.Flags().StringSliceVar(&in.LinkedTasks, "task", nil, "linked task ids")
	cmd.Flags().StringSliceVar(&in.Frameworks, "framework", nil, "frameworks")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func evidenceListCmd() *cobra.Command {
	var f evidence.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Search evidence, most recently modified first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.Evidence.List(ctx, f)
				if err != nil {
					return err
				}
				return printEvidence(items)
			})
		},
	}
	evidenceFilterFlags(cmd, &f)
	return cmd
}

func evidenceShowCmd() *cobra.Command {
	var audit bool
	cmd := &cobra.Command{
		Use:   "show <evidence-id>",
		Short: "Show an evidence item; records a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				it, err := e.Evidence.RecordAccess(ctx, args[0], evidence.ActionViewed, actorID())
				if err != nil {
					return err
				}
				if !audit {
					return printJSON(it)
				}
				return printJSONOrTable(it.AuditTrail, func(tw table.Writer) {
					tw.SetTitle(it.Name)
					tw.AppendHeader(table.Row{"When", "Action", "User", "Details"})
					for _, a := range it.AuditTrail {
						tw.AppendRow(table.Row{a.Timestamp.Local().Format("2006-01-02 15:04"), a.Action, a.User, a.Details})
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&audit, "audit", false, "show the audit trail")
	return cmd
}

func evidenceUpdateCmd() *cobra.Command {
	var name, category, description string
	var tags, frameworks []string
	cmd := &cobra.Command{
		Use:   "update <evidence-id>",
		Short: "Update evidence metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in evidence.UpdateInput
			if cmd.Flags().Changed("name") {
				in.Name = ptr(name)
			}
			if cmd.Flags().Changed("category") {
				in.Category = ptr(category)
			}
			if cmd.Flags().Changed("description") {
				in.Description = ptr(description)
			}
			if cmd.Flags().Changed("tag") {
				in.Tags = tags
			}
			if cmd.Flags().Changed("framework") {
				in.Frameworks = frameworks
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				it, err := e.Evidence.Update(ctx, args[0], in, actorID())
				if err != nil {
					return err
				}
				return printEvidence([]domain.EvidenceItem{it})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "replace tags")
	cmd.Flags().StringSliceVar(&frameworks, "framework", nil, "replace frameworks")
	return cmd
}

func evidenceLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <evidence-id> <task-id>",
		Short: "Link evidence to a task of the current or --project project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				_, it, err := e.LinkTaskEvidence(ctx, viper.GetString("project"), args[1], args[0], actorID())
				if err != nil {
					return err
				}
				return printEvidence([]domain.EvidenceItem{it})
			})
		},
	}
}

func evidenceExportCmd() *cobra.Command {
	var f evidence.Filter
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export evidence as JSON or CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				w := os.Stdout
				if out != "" {
					file, err := os.Create(out)
					if err != nil {
						return err
					}
					defer file.Close()
					w = file
				}
				if err := e.Evidence.Export(ctx, w, format, f); err != nil {
					return err
				}
				if out != "" {
					fmt.Fprintln(os.Stderr, "wrote", out)
				}
				return nil
			})
		},
	}
	evidenceFilterFlags(cmd, &f)
	cmd.Flags().StringVar(&format, "format", evidence.FormatJSON, "json or csv")
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func evidenceDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <evidence-id>",
		Short: "Delete an evidence item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if err := e.Evidence.Delete(ctx, args[0], actorID()); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func printEvidence(items []domain.EvidenceItem) error {
	return printJSONOrTable(items, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Name", "Type", "Size", "Frameworks", "Modified"})
		for _, it := range items {
			tw.AppendRow(table.Row{it.ID, it.Name, it.Type, it.FileSize, strings.Join(it.Frameworks, ", "), it.LastModified.Local().Format("2006-01-02 15:04")})
		}
	})
}

func settingsCmd() *cobra.Command {
	s := &cobra.Command{Use: "settings", Short: "App settings"}
	mode := &cobra.Command{
		Use:   "mode [solo|team]",
		Short: "Show or switch the app mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if len(args) == 1 {
					if err := e.Settings.SetMode(ctx, args[0], actorID()); err != nil {
						return err
					}
				}
				m, err := e.Settings.Mode(ctx)
				if err != nil {
					return err
				}
				fmt.Println(m)
				return nil
			})
		},
	}
	s.AddCommand(mode)
	return s
}
