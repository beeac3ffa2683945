package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aqasim81/schema-runner/internal/config"
	"github.com/aqasim81/schema-runner/internal/database"
	"github.com/aqasim81/schema-runner/internal/runner"
)

// errDatabaseURLRequired is returned when no database URL is configured.
var errDatabaseURLRequired = errors.New( //nolint:gochecknoglobals // sentinel error
	"database URL is required (set --database-url, MIGRATE_DATABASE_URL, or database_url in config)",
)

func connectDB(ctx context.Context, cfg *config.Config, out io.Writer) (*database.Handle, error) {
	if cfg.DatabaseURL == "" {
		return nil, errDatabaseURLRequired
	}

	fmt.Fprintf(out, "Connecting to %s\n", config.RedactURL(cfg.DatabaseURL))

	h, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return h, nil
}

func settingsFromConfig(cfg *config.Config) runner.Settings {
	return runner.Settings{
		HistoryTable:     cfg.HistoryTable,
		Lock:             cfg.Lock,
		LockWait:         cfg.LockWait,
		LockTimeout:      cfg.LockTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}
}

// openRunner connects and builds a runner for cfg. The caller closes the handle.
func openRunner(
	ctx context.Context, cfg *config.Config, out io.Writer, opts ...runner.Option,
) (*runner.Runner, *database.Handle, error) {
	h, err := connectDB(ctx, cfg, out)
	if err != nil {
		return nil, nil, err
	}

	opts = append([]runner.Option{runner.WithLogger(logger())}, opts...)

	r, err := runner.ForHandle(cfg.MigrationsDir, h, settingsFromConfig(cfg), opts...)
	if err != nil {
		_ = h.Close()

		return nil, nil, err
	}

	return r, h, nil
}
