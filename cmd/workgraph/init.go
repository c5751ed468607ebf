package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/config"
	"github.com/ALT-F4-LLC/workgraph/internal/db"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
)

type initResult struct {
	Path          string `json:"path"`
	DBPath        string `json:"db_path"`
	SettingsPath  string `json:"settings_path"`
	SchemaVersion int    `json:"schema_version"`
	Created       bool   `json:"created"`
}

var initCmd = &cobra.Command{
	Use:         "init",
	Short:       "Initialize a new workgraph database",
	Annotations: map[string]string{"skipDB": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		exists, err := cfg.Exists()
		if err != nil {
			return cmdErr(fmt.Errorf("checking database: %w", err), output.ErrGeneral)
		}

		if !exists {
			if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
				return cmdErr(fmt.Errorf("creating directory: %w", err), output.ErrGeneral)
			}
		} else {
			w.Warn("Database already exists at %s", cfg.DBPath)
		}

		conn, err := db.Open(cfg.DBPath)
		if err != nil {
			return cmdErr(fmt.Errorf("opening database: %w", err), output.ErrGeneral)
		}
		defer conn.Close()

		if err := db.Initialize(conn); err != nil {
			return cmdErr(fmt.Errorf("initializing schema: %w", err), output.ErrGeneral)
		}
		if err := db.Migrate(conn); err != nil {
			return cmdErr(fmt.Errorf("migrating schema: %w", err), output.ErrGeneral)
		}

		schemaVersion, err := db.SchemaVersion(conn)
		if err != nil {
			return cmdErr(fmt.Errorf("reading schema version: %w", err), output.ErrGeneral)
		}

		if _, err := os.Stat(cfg.SettingsPath); errors.Is(err, fs.ErrNotExist) {
			if err := config.WriteSettings(cfg.SettingsPath, config.DefaultSettings()); err != nil {
				return cmdErr(err, output.ErrGeneral)
			}
		}

		result := initResult{
			Path:          cfg.Dir,
			DBPath:        cfg.DBPath,
			SettingsPath:  cfg.SettingsPath,
			SchemaVersion: schemaVersion,
			Created:       !exists,
		}
		if exists {
			w.Success(result, "Database already initialized")
			return nil
		}

		w.Success(result, "Initialized workgraph database")
		w.Info("Initialized workgraph database at %s", cfg.DBPath)
		w.Info("Next: workgraph import <catalog.toml> to load projects, types, statuses and users")
		w.Info("Consider adding .workgraph/ to your .gitignore")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
