package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy <id>",
	Short: "Delete an issue with its relations",
	Long: `Destroy deletes an issue, its relations, journals and watchers. Time
logged on it is kept without an issue.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		user, err := actor(cmd, a)
		if err != nil {
			return err
		}
		issue, err := loadIssue(cmd, a, args[0])
		if err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if w.JSONMode || !term.IsTerminal(int(os.Stdin.Fd())) {
				return cmdErr(fmt.Errorf("refusing to destroy %s without --yes", model.FormatID(issue.ID)), output.ErrValidation)
			}
			confirmed := false
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Destroy %s: %s?", model.FormatID(issue.ID), issue.Subject)).
				Affirmative("Destroy").
				Negative("Keep").
				Value(&confirmed).
				Run()
			if errors.Is(err, huh.ErrUserAborted) || (err == nil && !confirmed) {
				w.Info("Cancelled.")
				return nil
			}
			if err != nil {
				return cmdErr(fmt.Errorf("confirmation failed: %w", err), output.ErrGeneral)
			}
		}

		res, err := a.engine.Destroy(cmd.Context(), user, issue)
		if err != nil {
			return engineErr(err)
		}
		reportMutation(w, res, fmt.Sprintf("Destroyed %s: %s", model.FormatID(issue.ID), issue.Subject))
		return nil
	},
}

func init() {
	destroyCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(destroyCmd)
}
