package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/db"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
	"github.com/ALT-F4-LLC/workgraph/internal/render"
)

// listOptions reads the filter flags shared by list, board and plan.
func listOptions(cmd *cobra.Command, r *resolver) (db.ListOptions, error) {
	var opts db.ListOptions
	if p, _ := cmd.Flags().GetString("project"); p != "" {
		id, err := r.project(p)
		if err != nil {
			return opts, err
		}
		opts.ProjectID = id
	}
	if cmd.Flags().Lookup("status") != nil {
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			id, err := r.status(s)
			if err != nil {
				return opts, err
			}
			opts.StatusID = id
		}
	}
	all, _ := cmd.Flags().GetBool("all")
	opts.OpenOnly = !all && opts.StatusID == 0
	if cmd.Flags().Lookup("limit") != nil {
		opts.Limit, _ = cmd.Flags().GetInt("limit")
	}
	return opts, nil
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)
		ctx := cmd.Context()

		r := newResolver(ctx, a.store)
		opts, err := listOptions(cmd, r)
		if err != nil {
			return err
		}
		issues, err := a.store.ListIssues(ctx, opts)
		if err != nil {
			return cmdErr(fmt.Errorf("listing issues: %w", err), output.ErrGeneral)
		}
		if issues == nil {
			issues = []*model.Issue{}
		}

		var message string
		if !w.JSONMode {
			if len(issues) == 0 {
				message = render.EmptyState("No issues found.", "Create one with: workgraph create", w.QuietMode)
			} else {
				names, err := r.names()
				if err != nil {
					return cmdErr(fmt.Errorf("loading catalog: %w", err), output.ErrGeneral)
				}
				message = render.RenderTable(issues, names, model.DateOnly(time.Now()))
			}
		}
		w.Success(issues, message)
		return nil
	},
}

func init() {
	listCmd.Flags().StringP("project", "p", "", "Only issues of this project")
	listCmd.Flags().StringP("status", "s", "", "Only issues in this status")
	listCmd.Flags().Bool("all", false, "Include closed issues")
	listCmd.Flags().IntP("limit", "n", 50, "Maximum number of issues (0 for no limit)")
	rootCmd.AddCommand(listCmd)
}
