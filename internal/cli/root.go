// Package cli implements the migrate command line.
package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aqasim81/schema-runner/internal/config"
	"github.com/aqasim81/schema-runner/internal/logging"
)

const version = "0.2.0"

// AppConfig holds the loaded configuration, set during PersistentPreRunE.
var AppConfig *config.Config //nolint:gochecknoglobals // standard Cobra pattern for shared config

// AppLogger is the logger built from AppConfig, set during PersistentPreRunE.
var AppLogger *logrus.Logger //nolint:gochecknoglobals // shared with subcommands like AppConfig

// rootCmd is the base command for the migrate CLI.
var rootCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:     "migrate",
	Version: version,
	Short:   "Forward-only SQL schema migration runner",
	Long: `migrate applies versioned SQL scripts (V001__create_users.sql, ...) to a
PostgreSQL or SQLite database exactly once, in version order, each in its own
transaction. Applied scripts are recorded with a SHA-256 checksum, and any later
edit to an applied script stops the run before anything else is applied.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	flags := rootCmd.PersistentFlags()
	flags.String("config", "migrate.yml", "path to configuration file")
	flags.String("database-url", "", "database URL (postgres://... or sqlite:path)")
	flags.String("migrations-dir", "", "path to migration files")
	flags.String("history-table", "", "name of the applied-migrations table")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	flags.Bool("no-lock", false, "do not take the PostgreSQL advisory lock")
	flags.Bool("lock-wait", false, "wait for the advisory lock instead of failing fast")
	flags.Bool("verbose", false, "shorthand for --log-level debug")
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(ExitCode(err))
	}
}

// loadConfig loads configuration with precedence: flag > env > file.
func loadConfig(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	allowMissing := !cmd.Flags().Changed("config")

	cfg, err := config.Load(configPath, allowMissing)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	config.MergeEnv(cfg)
	mergeFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}

	AppConfig = cfg
	AppLogger = logger

	return nil
}

// mergeFlags overrides config with explicitly-set CLI flags.
func mergeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	stringFlags := map[string]*string{
		"database-url":   &cfg.DatabaseURL,
		"migrations-dir": &cfg.MigrationsDir,
		"history-table":  &cfg.HistoryTable,
		"log-level":      &cfg.LogLevel,
		"log-format":     &cfg.LogFormat,
	}

	for name, dst := range stringFlags {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}

	if flags.Changed("no-lock") {
		noLock, _ := flags.GetBool("no-lock")
		cfg.Lock = !noLock
	}

	if flags.Changed("lock-wait") {
		cfg.LockWait, _ = flags.GetBool("lock-wait")
	}

	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.LogLevel = logrus.DebugLevel.String()
	}
}

// logger returns AppLogger, or a discarding logger before configuration is loaded.
func logger() logrus.FieldLogger {
	if AppLogger == nil {
		return logging.Discard()
	}

	return AppLogger
}
