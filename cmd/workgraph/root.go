package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/workgraph/internal/config"
	"github.com/ALT-F4-LLC/workgraph/internal/db"
	"github.com/ALT-F4-LLC/workgraph/internal/lifecycle"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
	"github.com/ALT-F4-LLC/workgraph/internal/telemetry"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type contextKey string

const (
	cfgKey contextKey = "cfg"
	appKey contextKey = "app"
)

// CmdError wraps an error with a machine-readable error code for structured output.
type CmdError struct {
	Err  error
	Code output.ErrorCode
}

func (e *CmdError) Error() string { return e.Err.Error() }

func (e *CmdError) Unwrap() error { return e.Err }

func cmdErr(err error, code output.ErrorCode) *CmdError {
	return &CmdError{Err: err, Code: code}
}

// engineErr classifies an error returned by the store or the lifecycle.
func engineErr(err error) *CmdError {
	return cmdErr(err, output.Classify(err))
}

// app is what a command that opened the database works with.
type app struct {
	store    *db.Store
	engine   *lifecycle.Lifecycle
	settings config.Settings
	logger   *slog.Logger
}

var rootCmd = &cobra.Command{
	Use:     "workgraph",
	Short:   "Local issue tracker with relation-aware scheduling",
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Resolve()
		if err != nil {
			return err
		}

		ctx := context.WithValue(cmd.Context(), cfgKey, cfg)

		if _, ok := cmd.Annotations["skipDB"]; ok {
			cmd.SetContext(ctx)
			return nil
		}

		if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
			return cmdErr(
				fmt.Errorf("no workgraph database found, run 'workgraph init' to create one"),
				output.ErrNotFound,
			)
		}

		settings, err := config.LoadSettings(cfg.SettingsPath)
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		logger, err := newLogger(cmd, settings)
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}

		if err := telemetry.Init(ctx, os.Stderr, "workgraph", version); err != nil {
			logger.Warn("telemetry disabled", "err", err)
		}

		conn, err := db.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Migrate(conn); err != nil {
			conn.Close()
			return fmt.Errorf("migrating database: %w", err)
		}

		store := db.NewStore(conn)
		engine := lifecycle.New(store, store,
			lifecycle.WithPermissions(store),
			lifecycle.WithNotifier(store),
			lifecycle.WithLogger(logger),
			lifecycle.WithSettings(settings),
		)

		cmd.SetContext(context.WithValue(ctx, appKey, &app{
			store:    store,
			engine:   engine,
			settings: settings,
			logger:   logger,
		}))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if a, ok := cmd.Context().Value(appKey).(*app); ok && a != nil {
			return a.store.DB().Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().String("as", "", "Login of the acting user (default from git config or the OS user)")
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

// newLogger returns a text logger on stderr. --verbose forces debug level,
// otherwise settings.log_level applies.
func newLogger(cmd *cobra.Command, settings config.Settings) (*slog.Logger, error) {
	level, err := config.ParseLevel(settings.LogLevel)
	if err != nil {
		return nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func getWriter(cmd *cobra.Command) *output.Writer {
	jsonMode, _ := cmd.Flags().GetBool("json")
	quietMode, _ := cmd.Flags().GetBool("quiet")
	return output.New(jsonMode, quietMode)
}

func getCfg(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(cfgKey).(*config.Config)
	return cfg
}

func getApp(cmd *cobra.Command) *app {
	a, _ := cmd.Context().Value(appKey).(*app)
	return a
}

// actor resolves the acting user from --as, falling back to the default
// login.
func actor(cmd *cobra.Command, a *app) (*model.User, error) {
	login, _ := cmd.Flags().GetString("as")
	if login == "" {
		login = config.DefaultLogin()
	}
	u, err := a.store.UserByLogin(cmd.Context(), login)
	if errors.Is(err, db.ErrNotFound) {
		return nil, cmdErr(
			fmt.Errorf("unknown user %q: import a catalog that defines it or pass --as", login),
			output.ErrNotFound,
		)
	}
	if err != nil {
		return nil, cmdErr(fmt.Errorf("resolving user: %w", err), output.ErrGeneral)
	}
	return u, nil
}

// Execute runs the root command and returns an exit code.
func Execute() int {
	defer telemetry.Shutdown(context.Background())

	if err := rootCmd.Execute(); err != nil {
		jsonMode, _ := rootCmd.PersistentFlags().GetBool("json")
		quietMode, _ := rootCmd.PersistentFlags().GetBool("quiet")
		w := output.New(jsonMode, quietMode)

		var ce *CmdError
		if errors.As(err, &ce) {
			return w.Error(ce.Err, ce.Code)
		}
		return w.Error(err, output.ErrGeneral)
	}
	return 0
}
