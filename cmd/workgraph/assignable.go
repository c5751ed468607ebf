package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// assignableResult is the JSON shape of the assignable command.
type assignableResult struct {
	Versions []model.Version `json:"versions"`
	Users    []model.User    `json:"users"`
}

var assignableCmd = &cobra.Command{
	Use:   "assignable <id>",
	Short: "List the versions and users an issue can be assigned to",
	Long: `Assignable lists the open versions shared with the issue's project,
plus its current version, and the active project members and author.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)
		ctx := cmd.Context()

		issue, err := loadIssue(cmd, a, args[0])
		if err != nil {
			return err
		}
		versions, err := a.engine.AssignableVersions(ctx, issue)
		if err != nil {
			return engineErr(err)
		}
		users, err := a.engine.AssignableUsers(ctx, issue)
		if err != nil {
			return engineErr(err)
		}
		res := assignableResult{Versions: versions, Users: users}
		if res.Versions == nil {
			res.Versions = []model.Version{}
		}
		if res.Users == nil {
			res.Users = []model.User{}
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%s versions:", model.FormatID(issue.ID))
		for _, v := range res.Versions {
			marker := ""
			if issue.FixedVersionID != nil && *issue.FixedVersionID == v.ID {
				marker = " (current)"
			}
			fmt.Fprintf(&b, "\n  %s%s", v.Name, marker)
		}
		fmt.Fprintf(&b, "\n%s assignees:", model.FormatID(issue.ID))
		for _, u := range res.Users {
			marker := ""
			if issue.IsAssignedTo(u.ID) {
				marker = " (current)"
			}
			fmt.Fprintf(&b, "\n  %s%s", u.Login, marker)
		}
		w.Success(res, b.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(assignableCmd)
}
