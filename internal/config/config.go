package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/aqasim81/schema-runner/internal/history"
)

// Default values for configuration fields.
const (
	DefaultMigrationsDir    = "./migrations"
	DefaultHistoryTable     = history.DefaultTable
	DefaultLock             = true
	DefaultLockTimeout      = 5 * time.Second
	DefaultStatementTimeout = time.Duration(0)
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultFormat           = "text"
)

// ErrInvalidConfig indicates a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the application configuration loaded from file, environment, and flags.
type Config struct {
	DatabaseURL      string
	MigrationsDir    string
	HistoryTable     string
	Lock             bool
	LockWait         bool
	LockTimeout      time.Duration
	StatementTimeout time.Duration
	LogLevel         string
	LogFormat        string
	Format           string
}

// yamlConfig is the raw YAML file representation with string durations.
// Booleans are pointers so an explicit false is distinguishable from unset.
type yamlConfig struct {
	DatabaseURL      string `yaml:"database_url"`
	MigrationsDir    string `yaml:"migrations_dir"`
	HistoryTable     string `yaml:"history_table"`
	Lock             *bool  `yaml:"lock"`
	LockWait         *bool  `yaml:"lock_wait"`
	LockTimeout      string `yaml:"lock_timeout"`
	StatementTimeout string `yaml:"statement_timeout"`
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"`
	Format           string `yaml:"format"`
}

// New returns a Config populated with default values.
func New() *Config {
	return &Config{
		MigrationsDir:    DefaultMigrationsDir,
		HistoryTable:     DefaultHistoryTable,
		Lock:             DefaultLock,
		LockTimeout:      DefaultLockTimeout,
		StatementTimeout: DefaultStatementTimeout,
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
		Format:           DefaultFormat,
	}
}

// Load reads a YAML configuration file and returns a Config.
// If allowMissing is true and the file does not exist, defaults are returned.
func Load(path string, allowMissing bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return New(), nil
		}

		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return fromYAML(&raw)
}

// fromYAML converts the raw YAML representation to a Config with defaults applied.
func fromYAML(raw *yamlConfig) (*Config, error) {
	cfg := New()

	setString(&cfg.DatabaseURL, raw.DatabaseURL)
	setString(&cfg.MigrationsDir, raw.MigrationsDir)
	setString(&cfg.HistoryTable, raw.HistoryTable)
	setString(&cfg.LogLevel, raw.LogLevel)
	setString(&cfg.LogFormat, raw.LogFormat)
	setString(&cfg.Format, raw.Format)

	if raw.Lock != nil {
		cfg.Lock = *raw.Lock
	}

	if raw.LockWait != nil {
		cfg.LockWait = *raw.LockWait
	}

	if raw.LockTimeout != "" {
		d, err := time.ParseDuration(raw.LockTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing lock_timeout %q: %w", raw.LockTimeout, err)
		}

		cfg.LockTimeout = d
	}

	if raw.StatementTimeout != "" {
		d, err := time.ParseDuration(raw.StatementTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing statement_timeout %q: %w", raw.StatementTimeout, err)
		}

		cfg.StatementTimeout = d
	}

	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// MergeEnv overrides config fields from MIGRATE_* environment variables.
// Unparseable durations and booleans leave the current value in place.
func MergeEnv(cfg *Config) {
	setString(&cfg.DatabaseURL, os.Getenv("MIGRATE_DATABASE_URL"))
	setString(&cfg.MigrationsDir, os.Getenv("MIGRATE_MIGRATIONS_DIR"))
	setString(&cfg.HistoryTable, os.Getenv("MIGRATE_HISTORY_TABLE"))
	setString(&cfg.LogLevel, os.Getenv("MIGRATE_LOG_LEVEL"))
	setString(&cfg.LogFormat, os.Getenv("MIGRATE_LOG_FORMAT"))
	setString(&cfg.Format, os.Getenv("MIGRATE_FORMAT"))

	if v := os.Getenv("MIGRATE_LOCK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Lock = b
		}
	}

	if v := os.Getenv("MIGRATE_LOCK_WAIT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LockWait = b
		}
	}

	if v := os.Getenv("MIGRATE_LOCK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LockTimeout = d
		}
	}

	if v := os.Getenv("MIGRATE_STATEMENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StatementTimeout = d
		}
	}
}

// Validate checks values that would otherwise fail late, after connecting.
func (c *Config) Validate() error {
	if err := history.ValidateTableName(c.HistoryTable); err != nil {
		return fmt.Errorf("%w: history_table: %w", ErrInvalidConfig, err)
	}

	if c.LockTimeout < 0 {
		return fmt.Errorf("%w: lock_timeout must not be negative", ErrInvalidConfig)
	}

	if c.StatementTimeout < 0 {
		return fmt.Errorf("%w: statement_timeout must not be negative", ErrInvalidConfig)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrInvalidConfig, err)
	}

	if !oneOf(c.LogFormat, "text", "json") {
		return fmt.Errorf("%w: log_format %q (want text or json)", ErrInvalidConfig, c.LogFormat)
	}

	if !oneOf(c.Format, "text", "json") {
		return fmt.Errorf("%w: format %q (want text or json)", ErrInvalidConfig, c.Format)
	}

	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if strings.EqualFold(v, o) {
			return true
		}
	}

	return false
}
