package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/lifecycle"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

var moveCmd = &cobra.Command{
	Use:   "move <id> <project>",
	Short: "Move or copy an issue to another project",
	Long: `Move reassigns an issue to another project. Its category is mapped by
name, a version not shared with the target is cleared and relations that
would cross projects are dropped unless cross_project_relations is set.
With --copy a new issue is created and the original is left as it is.`,
	Args: cobra.ExactArgs(2),
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

		r := newResolver(ctx, a.store)
		projectID, err := r.project(args[1])
		if err != nil {
			return err
		}
		var typeID int
		if t, _ := cmd.Flags().GetString("type"); t != "" {
			if typeID, err = r.issueType(t); err != nil {
				return err
			}
		}
		sets, _ := cmd.Flags().GetStringArray("set")
		attrs, err := r.attributes(sets)
		if err != nil {
			return err
		}
		copyIssue, _ := cmd.Flags().GetBool("copy")

		res, err := a.engine.Move(ctx, user, issue, projectID, typeID, lifecycle.MoveOptions{
			Copy:       copyIssue,
			Attributes: attrs,
		})
		if err != nil {
			return engineErr(err)
		}

		verb := "Moved"
		if copyIssue {
			verb = "Copied"
		}
		reportMutation(w, res, fmt.Sprintf("%s %s to %s as %s", verb, model.FormatID(issue.ID), args[1], model.FormatID(res.Issue.ID)))
		return nil
	},
}

func init() {
	moveCmd.Flags().StringP("type", "T", "", "Type in the target project (default: keep)")
	moveCmd.Flags().Bool("copy", false, "Copy the issue instead of moving it")
	moveCmd.Flags().StringArray("set", nil, "Attribute to set on the result, as key=value (repeatable)")
	rootCmd.AddCommand(moveCmd)
}
