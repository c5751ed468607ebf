package main

import (
	"fmt"
	"os"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/config"
	"github.com/ALT-F4-LLC/workgraph/internal/db"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
)

type configInfo struct {
	DBPath        string          `json:"db_path"`
	DBSizeBytes   int64           `json:"db_size_bytes"`
	SchemaVersion int             `json:"schema_version"`
	SettingsPath  string          `json:"settings_path"`
	Settings      config.Settings `json:"settings"`
	IssuePrefix   string          `json:"issue_prefix"`
	Login         string          `json:"login"`
	PathEnv       string          `json:"workgraph_path_env"`
	PathEnvSet    bool            `json:"workgraph_path_set"`
}

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Display workgraph configuration",
	Annotations: map[string]string{"skipDB": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		settings, err := config.LoadSettings(cfg.SettingsPath)
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		login, _ := cmd.Flags().GetString("as")
		if login == "" {
			login = config.DefaultLogin()
		}
		info := configInfo{
			DBPath:       cfg.DBPath,
			SettingsPath: cfg.SettingsPath,
			Settings:     settings,
			IssuePrefix:  model.IDPrefix,
			Login:        login,
			PathEnv:      os.Getenv("WORKGRAPH_PATH"),
			PathEnvSet:   cfg.EnvVarSet,
		}

		exists, err := cfg.Exists()
		if err != nil {
			return cmdErr(fmt.Errorf("checking database: %w", err), output.ErrGeneral)
		}
		if !exists {
			w.Warn("No workgraph database found. Run 'workgraph init' to create one.")
			w.Success(info, formatConfigHuman(info, true))
			return nil
		}

		conn, err := db.Open(cfg.DBPath)
		if err != nil {
			return cmdErr(fmt.Errorf("opening database: %w", err), output.ErrGeneral)
		}
		defer conn.Close()

		info.SchemaVersion, err = db.SchemaVersion(conn)
		if err != nil {
			return cmdErr(fmt.Errorf("reading schema version: %w", err), output.ErrGeneral)
		}
		stat, err := os.Stat(cfg.DBPath)
		if err != nil {
			return cmdErr(fmt.Errorf("reading database file: %w", err), output.ErrGeneral)
		}
		info.DBSizeBytes = stat.Size()

		w.Success(info, formatConfigHuman(info, false))
		return nil
	},
}

func formatConfigHuman(info configInfo, notFound bool) string {
	var b strings.Builder
	if notFound {
		fmt.Fprintf(&b, "Database path:    %s (not found)\n", info.DBPath)
	} else {
		fmt.Fprintf(&b, "Database path:    %s\n", info.DBPath)
		fmt.Fprintf(&b, "Database size:    %s\n", humanize.Bytes(uint64(info.DBSizeBytes)))
		fmt.Fprintf(&b, "Schema version:   %d\n", info.SchemaVersion)
	}
	fmt.Fprintf(&b, "Settings:         %s\n", info.SettingsPath)
	fmt.Fprintf(&b, "  done_ratio:              %s\n", info.Settings.DoneRatio)
	fmt.Fprintf(&b, "  send_notifications:      %t\n", info.Settings.SendNotifications)
	fmt.Fprintf(&b, "  cross_project_relations: %t\n", info.Settings.CrossProjectRelations)
	fmt.Fprintf(&b, "  default_closed_status:   %d\n", info.Settings.DefaultClosedStatus)
	fmt.Fprintf(&b, "  log_level:               %s\n", info.Settings.LogLevel)
	fmt.Fprintf(&b, "Issue prefix:     %s\n", info.IssuePrefix)
	fmt.Fprintf(&b, "Acting as:        %s\n", info.Login)
	env := info.PathEnv
	if env == "" {
		env = "(not set)"
	}
	fmt.Fprintf(&b, "WORKGRAPH_PATH:   %s", env)
	return b.String()
}

func init() {
	rootCmd.AddCommand(configCmd)
}
