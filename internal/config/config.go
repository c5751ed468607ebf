package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	dbFileName       = "workgraph.db"
	settingsFileName = "settings.toml"
)

// Config holds resolved configuration for the workgraph directory.
type Config struct {
	Dir          string // resolved .workgraph directory path
	DBPath       string // full path to workgraph.db
	SettingsPath string // full path to settings.toml
	EnvVarSet    bool   // whether WORKGRAPH_PATH was used
}

// Resolve returns the current configuration by checking WORKGRAPH_PATH
// first, then falling back to $PWD/.workgraph.
func Resolve() (*Config, error) {
	var dir string
	var envVarSet bool

	if envPath := os.Getenv("WORKGRAPH_PATH"); envPath != "" {
		dir = envPath
		envVarSet = true
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(cwd, ".workgraph")
	}

	return &Config{
		Dir:          dir,
		DBPath:       filepath.Join(dir, dbFileName),
		SettingsPath: filepath.Join(dir, settingsFileName),
		EnvVarSet:    envVarSet,
	}, nil
}

// Exists checks if the workgraph directory and DB file both exist.
// It returns an error for non-existence failures (e.g. permission errors).
func (c *Config) Exists() (bool, error) {
	for _, p := range []string{c.Dir, c.DBPath} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return false, nil
			}
			return false, err
		}
	}
	return true, nil
}

// DoneRatioMode selects where an issue's done ratio comes from.
type DoneRatioMode string

const (
	DoneRatioField  DoneRatioMode = "field"
	DoneRatioStatus DoneRatioMode = "status"
)

// Settings are the engine switches stored in settings.toml.
type Settings struct {
	DoneRatio             DoneRatioMode `toml:"done_ratio" json:"done_ratio"`
	SendNotifications     bool          `toml:"send_notifications" json:"send_notifications"`
	CrossProjectRelations bool          `toml:"cross_project_relations" json:"cross_project_relations"`
	// DefaultClosedStatus is the status cascaded duplicates are closed with.
	// Zero means the status the original issue was closed with.
	DefaultClosedStatus int    `toml:"default_closed_status" json:"default_closed_status"`
	LogLevel            string `toml:"log_level" json:"log_level"`
}

// DefaultSettings returns the settings used when settings.toml is absent.
func DefaultSettings() Settings {
	return Settings{
		DoneRatio:         DoneRatioField,
		SendNotifications: true,
		LogLevel:          "warn",
	}
}

// Validate returns an error if the settings hold an unrecognized value.
func (s Settings) Validate() error {
	switch s.DoneRatio {
	case DoneRatioField, DoneRatioStatus:
	default:
		return fmt.Errorf("invalid done_ratio %q: must be %q or %q", s.DoneRatio, DoneRatioField, DoneRatioStatus)
	}
	if _, err := ParseLevel(s.LogLevel); err != nil {
		return err
	}
	if s.DefaultClosedStatus < 0 {
		return fmt.Errorf("invalid default_closed_status %d", s.DefaultClosedStatus)
	}
	return nil
}

// ParseLevel maps a log_level setting to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", s, err)
	}
	return level, nil
}

// LoadSettings reads settings.toml at path. Keys missing from the file keep
// their defaults; a missing file yields DefaultSettings.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("reading %s: %w", settingsFileName, err)
	}
	if _, err := toml.Decode(string(data), &s); err != nil {
		return s, fmt.Errorf("parsing %s: %w", settingsFileName, err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("parsing %s: %w", settingsFileName, err)
	}
	return s, nil
}

// WriteSettings writes s to path as TOML.
func WriteSettings(path string, s Settings) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", settingsFileName, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(s); err != nil {
		return fmt.Errorf("writing %s: %w", settingsFileName, err)
	}
	return f.Close()
}

var (
	defaultLogin     string
	defaultLoginOnce sync.Once
)

// DefaultLogin returns the login the CLI acts as when --as is not given.
// It tries git config user.email's local part first and falls back to the
// OS username. The result is cached for the lifetime of the process.
func DefaultLogin() string {
	defaultLoginOnce.Do(func() {
		defaultLogin = resolveLogin()
	})
	return defaultLogin
}

func resolveLogin() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "git", "config", "user.email").Output()
	if err == nil {
		if local, _, ok := strings.Cut(strings.TrimSpace(string(out)), "@"); ok && local != "" {
			return local
		}
	}

	u, err := user.Current()
	if err == nil && u.Username != "" {
		return u.Username
	}

	return "admin"
}
