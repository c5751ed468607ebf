package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
)

var closeCmd = &cobra.Command{
	Use:   "close <id> [status]",
	Short: "Close an issue and its open duplicates",
	Long: `Close moves an issue to a closed status. Without a status the
default_closed_status setting is used, else the first closed status.
Issues that duplicate it are closed too.`,
	Args: cobra.RangeArgs(1, 2),
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

		var statusID int
		if len(args) == 2 {
			statusID, err = newResolver(ctx, a.store).status(args[1])
		} else {
			statusID, err = closedStatus(ctx, a)
		}
		if err != nil {
			return err
		}

		notes, _ := cmd.Flags().GetString("notes")
		res, err := a.engine.Close(ctx, user, issue, statusID, notes)
		if err != nil {
			return engineErr(err)
		}
		reportMutation(w, res, fmt.Sprintf("Closed %s: %s", model.FormatID(issue.ID), issue.Subject))
		return nil
	},
}

// closedStatus picks the status close uses when none is given.
func closedStatus(ctx context.Context, a *app) (int, error) {
	if a.settings.DefaultClosedStatus > 0 {
		return a.settings.DefaultClosedStatus, nil
	}
	statuses, err := a.store.Statuses(ctx)
	if err != nil {
		return 0, cmdErr(fmt.Errorf("loading statuses: %w", err), output.ErrGeneral)
	}
	sort.SliceStable(statuses, func(i, j int) bool { return statuses[i].Position < statuses[j].Position })
	for _, s := range statuses {
		if s.IsClosed {
			return s.ID, nil
		}
	}
	return 0, cmdErr(fmt.Errorf("no closed status defined in the catalog"), output.ErrValidation)
}

func init() {
	closeCmd.Flags().StringP("notes", "m", "", "Closing note")
	rootCmd.AddCommand(closeCmd)
}
