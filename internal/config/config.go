package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

const (
	RemoteMemory   = "memory"
	RemoteAzure    = "azure"
	RemotePostgres = "postgres"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// AzureConfig points at an Azure Table Storage account.
type AzureConfig struct {
	ConnectionString string `yaml:"connection_string" json:"connection_string"`
	TasksTable       string `yaml:"tasks_table" json:"tasks_table"`
	PersonsTable     string `yaml:"persons_table" json:"persons_table"`
}

// PostgresConfig points at a Postgres database.
type PostgresConfig struct {
	DSN          string `yaml:"dsn" json:"dsn"`
	TasksTable   string `yaml:"tasks_table" json:"tasks_table"`
	PersonsTable string `yaml:"persons_table" json:"persons_table"`
}

// RemoteConfig selects and configures the authoritative task store.
type RemoteConfig struct {
	// Kind is one of "memory" (default), "azure" or "postgres".
	Kind     string         `yaml:"kind" json:"kind"`
	Azure    AzureConfig    `yaml:"azure" json:"azure"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
}

// RedisConfig enables the read cache in front of the remote store when Addr
// is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone whose calendar days tasks are grouped by
	// (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday a week query snaps to when no start
	// day is given. Supported values:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// AccountID scopes every remote fetch and is stamped on new records.
	AccountID string `yaml:"account_id" json:"account_id"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic pulls from the remote store.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is the default look-ahead of the upcoming view.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	InitialBatch int `yaml:"initial_batch" json:"initial_batch"`
	TopUpBatch   int `yaml:"top_up_batch" json:"top_up_batch"`

	// SyncTimeout bounds every remote call.
	SyncTimeout time.Duration `yaml:"sync_timeout" json:"sync_timeout"`

	// SnapshotPath is where the last pulled remote state is kept so the
	// service can start offline. Empty disables it.
	SnapshotPath string `yaml:"snapshot_path" json:"snapshot_path"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Remote RemoteConfig `yaml:"remote" json:"remote"`
	Redis  RedisConfig  `yaml:"redis" json:"redis"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		Timezone:     "UTC",
		WeekStart:    "monday",
		AccountID:    "household",
		RefreshCron:  "*/15 * * * *",
		HorizonDays:  7,
		InitialBatch: 10,
		TopUpBatch:   1,
		SyncTimeout:  15 * time.Second,
		SnapshotPath: "./var/chorecal/snapshot.json",
		LogLevel:     "info",
		Remote: RemoteConfig{
			Kind: RemoteMemory,
			Azure: AzureConfig{
				TasksTable:   "tasks",
				PersonsTable: "persons",
			},
			Postgres: PostgresConfig{
				TasksTable:   "tasks",
				PersonsTable: "persons",
			},
		},
		Redis: RedisConfig{
			TTL: time.Minute,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	// WeekStart default & validation.
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		// Unknown value; fall back to monday to avoid surprising week views.
		c.WeekStart = def.WeekStart
	}
	if c.AccountID == "" {
		c.AccountID = def.AccountID
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.InitialBatch <= 0 {
		c.InitialBatch = def.InitialBatch
	}
	if c.TopUpBatch <= 0 {
		c.TopUpBatch = def.TopUpBatch
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = def.SyncTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	c.Remote.Kind = strings.ToLower(strings.TrimSpace(c.Remote.Kind))
	if c.Remote.Kind == "" {
		c.Remote.Kind = RemoteMemory
	}
	if c.Remote.Azure.TasksTable == "" {
		c.Remote.Azure.TasksTable = def.Remote.Azure.TasksTable
	}
	if c.Remote.Azure.PersonsTable == "" {
		c.Remote.Azure.PersonsTable = def.Remote.Azure.PersonsTable
	}
	if c.Remote.Postgres.TasksTable == "" {
		c.Remote.Postgres.TasksTable = def.Remote.Postgres.TasksTable
	}
	if c.Remote.Postgres.PersonsTable == "" {
		c.Remote.Postgres.PersonsTable = def.Remote.Postgres.PersonsTable
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = def.Redis.TTL
	}
}

// Validate reports settings that cannot be used as given.
func (c *Config) Validate() error {
	var errs []error

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}

	switch c.Remote.Kind {
	case RemoteMemory:
	case RemoteAzure:
		if c.Remote.Azure.ConnectionString == "" {
			errs = append(errs, errors.New("remote.azure.connection_string is required"))
		}
	case RemotePostgres:
		if c.Remote.Postgres.DSN == "" {
			errs = append(errs, errors.New("remote.postgres.dsn is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown remote kind %q", c.Remote.Kind))
	}

	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		errs = append(errs, errors.New("basic_auth needs both username and password"))
	}

	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FirstWeekday returns the weekday a week view starts on.
func (c *Config) FirstWeekday() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".chorecal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
