// Package config provides process-wide settings management for devloop.
//
// Settings are persisted as settings.yaml under the data directory and
// loaded into a single mutex-protected instance. Get returns the settings
// BY VALUE; all mutations go through Set/Update helpers which validate and
// persist atomically. State (request phases, retry counters) belongs in the
// database, never here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"devloop/pkg/logx"
)

// Auth modes for the agent gateway.
const (
	AuthModeAPI = "api" // ANTHROPIC_API_KEY environment variable or stored key
	AuthModeMax = "max" // subscription auth handled outside this process
)

// Commit branch modes.
const (
	CommitBranchCurrent = "current"
	CommitBranchOther   = "other"
)

// DefaultModel is the model used for agent invocations unless overridden.
const DefaultModel = "claude-sonnet-4-5"

// Settings holds all user-tunable knobs. Durations are expressed in
// seconds in the YAML file for easy hand-editing.
type Settings struct {
	Model            string `yaml:"model"`
	AuthMode         string `yaml:"auth_mode"`
	APIKey           string `yaml:"api_key,omitempty"`
	PollIntervalSecs int    `yaml:"poll_interval_secs"`
	IdleActionSecs   int    `yaml:"idle_action_secs"`
	Paused           bool   `yaml:"paused"`
	MaxIterations    int    `yaml:"max_iterations"` // 0 = unlimited
	MaxTestRetries   int    `yaml:"max_test_retries"`
	SpawnFixRequest  bool   `yaml:"spawn_fix_request"` // create a bug_fix request on fatal errors
	DocRetentionDays int    `yaml:"doc_retention_days"`

	// Commit policy defaults, overridable per project and per request.
	CommitEnabled    bool   `yaml:"commit_enabled"`
	CommitBranchMode string `yaml:"commit_branch_mode"`
	CommitBranchName string `yaml:"commit_branch_name,omitempty"`

	// Crash-recovery thresholds: a wip request older than WipTimeoutSecs,
	// or a planning claim older than PlanningTimeoutSecs, is re-eligible.
	WipTimeoutSecs      int `yaml:"wip_timeout_secs"`
	PlanningTimeoutSecs int `yaml:"planning_timeout_secs"`
}

// Defaults returns the settings used when no settings.yaml exists.
func Defaults() Settings {
	return Settings{
		Model:               DefaultModel,
		AuthMode:            AuthModeAPI,
		PollIntervalSecs:    30,
		IdleActionSecs:      600,
		MaxTestRetries:      3,
		SpawnFixRequest:     false,
		DocRetentionDays:    30,
		CommitEnabled:       true,
		CommitBranchMode:    CommitBranchCurrent,
		WipTimeoutSecs:      24 * 60 * 60,
		PlanningTimeoutSecs: 4 * 60 * 60,
	}
}

//nolint:gochecknoglobals // intentional singleton, mirrors the data dir on disk
var (
	mu       sync.RWMutex
	settings = Defaults()
	dataDir  = "data"
	logger   *logx.Logger
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// DataDir returns the current data directory.
func DataDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return dataDir
}

// SettingsPath returns the path of the settings file.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.yaml")
}

// DatabasePath returns the path of the request database.
func DatabasePath() string {
	return filepath.Join(DataDir(), "devloop.db")
}

// DocsDir returns the directory where phase output documents are kept.
func DocsDir() string {
	return filepath.Join(DataDir(), "docs")
}

// PIDFilePath returns the daemon PID file path.
func PIDFilePath() string {
	return filepath.Join(DataDir(), "devloop.pid")
}

// Load reads settings.yaml from dir (creating defaults if absent) and sets
// the package data directory. Must be called once at startup.
func Load(dir string) error {
	mu.Lock()
	defer mu.Unlock()

	dataDir = dir
	path := filepath.Join(dir, "settings.yaml")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		settings = Defaults()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	loaded := Defaults()
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := validate(&loaded); err != nil {
		return fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	settings = loaded
	return nil
}

// Reload re-reads the settings file. Called by the daemon each poll cycle
// so interval and pause changes take effect without a restart. Errors are
// logged and the previous settings retained.
func Reload() {
	dir := DataDir()
	if err := Load(dir); err != nil {
		getLogger().Warn("settings reload failed, keeping previous: %v", err)
	}
}

// Get returns a copy of the current settings.
func Get() Settings {
	mu.RLock()
	defer mu.RUnlock()
	return settings
}

// Set validates, stores, and persists new settings.
func Set(s Settings) error {
	if err := validate(&s); err != nil {
		return err
	}

	mu.Lock()
	settings = s
	dir := dataDir
	mu.Unlock()

	return save(dir, &s)
}

// Update applies fn to a copy of the current settings and persists the
// result if fn succeeds.
func Update(fn func(*Settings)) error {
	mu.Lock()
	s := settings
	mu.Unlock()

	fn(&s)
	return Set(s)
}

// PollInterval returns the polling interval as a duration.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSecs) * time.Second
}

// IdleActionInterval returns the idle-action interval as a duration.
func (s Settings) IdleActionInterval() time.Duration {
	return time.Duration(s.IdleActionSecs) * time.Second
}

// WipTimeout returns the stale-wip threshold as a duration.
func (s Settings) WipTimeout() time.Duration {
	return time.Duration(s.WipTimeoutSecs) * time.Second
}

// PlanningTimeout returns the stale planning-claim threshold as a duration.
func (s Settings) PlanningTimeout() time.Duration {
	return time.Duration(s.PlanningTimeoutSecs) * time.Second
}

// ResolveAPIKey returns the gateway API key: the environment variable wins,
// then the stored setting.
func (s Settings) ResolveAPIKey() string {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key
	}
	return s.APIKey
}

func validate(s *Settings) error {
	if s.AuthMode != AuthModeAPI && s.AuthMode != AuthModeMax {
		return fmt.Errorf("auth_mode must be %q or %q, got %q", AuthModeAPI, AuthModeMax, s.AuthMode)
	}
	if s.CommitBranchMode != CommitBranchCurrent && s.CommitBranchMode != CommitBranchOther {
		return fmt.Errorf("commit_branch_mode must be %q or %q, got %q", CommitBranchCurrent, CommitBranchOther, s.CommitBranchMode)
	}
	if s.PollIntervalSecs <= 0 {
		return fmt.Errorf("poll_interval_secs must be positive, got %d", s.PollIntervalSecs)
	}
	if s.MaxTestRetries < 0 {
		return fmt.Errorf("max_test_retries must be non-negative, got %d", s.MaxTestRetries)
	}
	if s.WipTimeoutSecs <= 0 || s.PlanningTimeoutSecs <= 0 {
		return fmt.Errorf("timeout thresholds must be positive")
	}
	return nil
}

func save(dir string, s *Settings) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	// Write-then-rename keeps a concurrent reader from seeing a torn file.
	path := filepath.Join(dir, "settings.yaml")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}
