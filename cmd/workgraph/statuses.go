package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

var statusesCmd = &cobra.Command{
	Use:   "statuses <id>",
	Short: "List the statuses an issue can move to",
	Long: `Statuses lists the statuses an issue may be set to. Closed statuses are
left out while the issue is blocked by an open issue.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		issue, err := loadIssue(cmd, a, args[0])
		if err != nil {
			return err
		}
		allowed, err := a.engine.AllowedStatuses(cmd.Context(), issue)
		if err != nil {
			return engineErr(err)
		}
		if allowed == nil {
			allowed = []model.IssueStatus{}
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%s can move to:", model.FormatID(issue.ID))
		for _, s := range allowed {
			marker := ""
			if s.ID == issue.StatusID {
				marker = " (current)"
			} else if s.IsClosed {
				marker = " (closed)"
			}
			fmt.Fprintf(&b, "\n  %s%s", s.Name, marker)
		}
		w.Success(allowed, b.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusesCmd)
}
