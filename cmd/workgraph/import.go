package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/catalog"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
)

var importCmd = &cobra.Command{
	Use:   "import <catalog.toml>",
	Short: "Load projects, types, statuses, users and other reference data",
	Long: `Import upserts the reference data in a TOML catalog file. Records are
matched by ID; records missing from the file are left in place. Project
type, custom field and member lists are replaced by those in the file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		c, err := catalog.Load(args[0])
		if errors.Is(err, fs.ErrNotExist) {
			return cmdErr(fmt.Errorf("catalog file %s not found", args[0]), output.ErrNotFound)
		}
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}

		stats, err := a.store.ImportCatalog(cmd.Context(), c)
		if err != nil {
			return cmdErr(fmt.Errorf("importing catalog: %w", err), output.ErrGeneral)
		}

		a.logger.Debug("catalog imported", "path", args[0], "projects", stats.Projects, "users", stats.Users)
		w.Success(stats, fmt.Sprintf("Imported %d project(s), %d type(s), %d status(es), %d user(s)",
			stats.Projects, stats.Types, stats.Statuses, stats.Users))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
