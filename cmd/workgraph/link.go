package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/db"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
)

var linkCmd = &cobra.Command{
	Use:   "link <id> <kind> <target>",
	Short: "Create a relation between two issues",
	Long: `Link relates two issues. Kinds are relates, duplicates, duplicated-by,
blocks, blocked-by, precedes and follows. A precedes relation reschedules
the following issue when needed. --force skips the cycle check.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		user, err := actor(cmd, a)
		if err != nil {
			return err
		}
		fromID, err := model.ParseID(args[0])
		if err != nil {
			return cmdErr(fmt.Errorf("invalid issue ID: %w", err), output.ErrValidation)
		}
		kind, err := model.ParseRelationKind(args[1])
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		toID, err := model.ParseID(args[2])
		if err != nil {
			return cmdErr(fmt.Errorf("invalid target ID: %w", err), output.ErrValidation)
		}
		force, _ := cmd.Flags().GetBool("force")

		res, err := a.engine.Relate(cmd.Context(), user, fromID, toID, kind, force)
		if err != nil {
			return engineErr(err)
		}
		reportMutation(w, res, fmt.Sprintf("Linked %s %s %s (relation %d)",
			model.FormatID(fromID), kind, model.FormatID(toID), res.Relation.ID))
		return nil
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink <relation-id>",
	Short: "Remove a relation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		id, err := strconv.Atoi(args[0])
		if err != nil || id <= 0 {
			return cmdErr(fmt.Errorf("invalid relation ID %q", args[0]), output.ErrValidation)
		}

		rel, err := a.store.DeleteRelation(cmd.Context(), id)
		if errors.Is(err, db.ErrNotFound) {
			return cmdErr(fmt.Errorf("relation %d not found", id), output.ErrNotFound)
		}
		if err != nil {
			return cmdErr(fmt.Errorf("deleting relation: %w", err), output.ErrGeneral)
		}

		w.Success(rel, fmt.Sprintf("Unlinked %s %s %s",
			model.FormatID(rel.FromID), rel.Kind, model.FormatID(rel.ToID)))
		return nil
	},
}

func init() {
	linkCmd.Flags().Bool("force", false, "Skip the cycle check")
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(unlinkCmd)
}
