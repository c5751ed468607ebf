package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
	"github.com/ALT-F4-LLC/workgraph/internal/render"
)

// showResult is the issue with what the detail view adds to it.
type showResult struct {
	Issue          *model.Issue     `json:"issue"`
	Relations      []model.Relation `json:"relations"`
	Journals       []model.Journal  `json:"journals"`
	SpentHours     float64          `json:"spent_hours"`
	Overdue        bool             `json:"overdue"`
	BehindSchedule bool             `json:"behind_schedule"`
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)
		ctx := cmd.Context()

		issue, err := loadIssue(cmd, a, args[0])
		if err != nil {
			return err
		}

		relations, err := a.store.LoadRelationsFor(ctx, issue.ID)
		if err != nil {
			return cmdErr(fmt.Errorf("fetching relations: %w", err), output.ErrGeneral)
		}
		history, _ := cmd.Flags().GetInt("history")
		journals, err := a.store.Journals(ctx, issue.ID, history)
		if err != nil {
			return cmdErr(fmt.Errorf("fetching history: %w", err), output.ErrGeneral)
		}
		spent, err := a.store.SpentHours(ctx, issue.ID)
		if err != nil {
			return cmdErr(fmt.Errorf("fetching spent time: %w", err), output.ErrGeneral)
		}
		names, err := newResolver(ctx, a.store).names()
		if err != nil {
			return cmdErr(fmt.Errorf("loading catalog: %w", err), output.ErrGeneral)
		}

		if relations == nil {
			relations = []model.Relation{}
		}
		if journals == nil {
			journals = []model.Journal{}
		}
		today := model.DateOnly(time.Now())
		result := showResult{
			Issue:          issue,
			Relations:      relations,
			Journals:       journals,
			SpentHours:     spent,
			Overdue:        issue.Overdue(today, names.IsClosed(issue.StatusID)),
			BehindSchedule: issue.BehindSchedule(today),
		}

		var message string
		if !w.JSONMode {
			message = render.RenderDetail(issue, names, render.DetailOptions{
				Relations:  relations,
				Journals:   journals,
				SpentHours: spent,
				Today:      today,
			})
		}
		w.Success(result, message)
		return nil
	},
}

func init() {
	showCmd.Flags().Int("history", 10, "Number of journal entries to show (0 for all)")
	rootCmd.AddCommand(showCmd)
}
