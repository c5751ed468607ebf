package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/lifecycle"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
)

var editCmd = &cobra.Command{
	Use:   "edit <id> key=value...",
	Short: "Change attributes of an issue",
	Long: `Edit assigns attributes and saves the issue when it validates. Keys
include subject, description, status, type, assignee, category, version,
start, due, done, estimate, watchers and cf.<field>. An empty value clears
the attribute. Changing dates reschedules the issues that follow it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)
		ctx := cmd.Context()

		user, err := actor(cmd, a)
		if err != nil {
			return err
		}
		issue, err := loadIssue(cmd, a, args[0])
		if err != nil {
			return err
		}

		attrs, err := newResolver(ctx, a.store).attributes(args[1:])
		if err != nil {
			return err
		}
		if notes, _ := cmd.Flags().GetString("notes"); notes != "" {
			attrs[lifecycle.AttrNotes] = notes
		}
		if len(attrs) == 0 {
			return cmdErr(fmt.Errorf("nothing to change: pass key=value assignments or --notes"), output.ErrValidation)
		}

		res, err := a.engine.ValidateAndApply(ctx, user, issue, attrs)
		if err != nil {
			return engineErr(err)
		}
		reportMutation(w, res, fmt.Sprintf("Updated %s", model.FormatID(issue.ID)))
		return nil
	},
}

func init() {
	editCmd.Flags().StringP("notes", "m", "", "Note to add to the change")
	rootCmd.AddCommand(editCmd)
}
