package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
	"github.com/ALT-F4-LLC/workgraph/internal/render"
)

// boardColumn is the JSON shape of one board column.
type boardColumn struct {
	Status model.IssueStatus `json:"status"`
	Issues []*model.Issue    `json:"issues"`
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show issues grouped by status",
	Args:  cobra.NoArgs,
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
		names, err := r.names()
		if err != nil {
			return cmdErr(fmt.Errorf("loading catalog: %w", err), output.ErrGeneral)
		}

		byStatus := make(map[int][]*model.Issue)
		for _, issue := range issues {
			byStatus[issue.StatusID] = append(byStatus[issue.StatusID], issue)
		}
		columns := []boardColumn{}
		for _, s := range names.StatusOrder() {
			if list, ok := byStatus[s.ID]; ok {
				columns = append(columns, boardColumn{Status: s, Issues: list})
			}
		}

		var message string
		if !w.JSONMode {
			message = render.RenderBoard(issues, names, render.BoardOptions{IncludeClosed: !opts.OpenOnly})
		}
		w.Success(columns, message)
		return nil
	},
}

func init() {
	boardCmd.Flags().StringP("project", "p", "", "Only issues of this project")
	boardCmd.Flags().Bool("all", false, "Include closed issues")
	rootCmd.AddCommand(boardCmd)
}
