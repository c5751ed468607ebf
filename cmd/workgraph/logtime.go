package main

import (
	"errors"
	"fmt"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/db"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
)

type logTimeResult struct {
	Entry      *model.TimeEntry `json:"entry"`
	SpentHours float64          `json:"spent_hours"`
}

var logTimeCmd = &cobra.Command{
	Use:   "log-time <id> <hours>",
	Short: "Log time spent on an issue",
	Long:  `Hours accept decimals (1.5), clock notation (1:30) and units (1h30, 90m).`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)
		ctx := cmd.Context()

		user, err := actor(cmd, a)
		if err != nil {
			return err
		}
		id, err := model.ParseID(args[0])
		if err != nil {
			return cmdErr(fmt.Errorf("invalid issue ID: %w", err), output.ErrValidation)
		}
		hours, err := model.ParseHours(args[1])
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		if hours <= 0 {
			return cmdErr(fmt.Errorf("hours must be positive"), output.ErrValidation)
		}

		entry := &model.TimeEntry{IssueID: &id, UserID: user.ID, Hours: hours}
		if err := a.store.LogTime(ctx, entry); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return cmdErr(fmt.Errorf("issue %s not found", model.FormatID(id)), output.ErrNotFound)
			}
			return cmdErr(fmt.Errorf("logging time: %w", err), output.ErrGeneral)
		}
		spent, err := a.store.SpentHours(ctx, id)
		if err != nil {
			return cmdErr(fmt.Errorf("fetching spent time: %w", err), output.ErrGeneral)
		}

		w.Success(logTimeResult{Entry: entry, SpentHours: spent},
			fmt.Sprintf("Logged %sh on %s (%sh total)",
				humanize.Ftoa(hours), model.FormatID(id), humanize.Ftoa(spent)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logTimeCmd)
}
