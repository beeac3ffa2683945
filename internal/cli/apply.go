package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aqasim81/schema-runner/internal/runner"
)

var applyCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "apply",
	Short: "Apply pending migrations",
	Long: `Apply pending migrations in version order, each in its own transaction.
Applied migrations are verified against their recorded checksums first; if any
was edited, nothing is applied.`,
	RunE: runApply,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	applyCmd.Flags().Bool("dry-run", false, "show what would be applied without executing")
	applyCmd.Flags().Duration("lock-timeout", 0, "override lock timeout (e.g., 10s, 1m)")
	applyCmd.Flags().Duration("statement-timeout", 0, "override statement timeout (e.g., 30s, 5m)")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, _ []string) error {
	cfg := *AppConfig

	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if cmd.Flags().Changed("lock-timeout") {
		cfg.LockTimeout, _ = cmd.Flags().GetDuration("lock-timeout")
	}

	if cmd.Flags().Changed("statement-timeout") {
		cfg.StatementTimeout, _ = cmd.Flags().GetDuration("statement-timeout")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := cmd.OutOrStdout()

	r, h, err := openRunner(ctx, &cfg, out,
		runner.WithDryRun(dryRun),
		runner.WithProgressCallback(printProgress(out)),
	)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck // best-effort close on exit

	if dryRun {
		fmt.Fprintln(out, "\n--- DRY RUN (no changes will be made) ---")
	}

	report, err := r.Run(ctx)

	for _, v := range report.Missing {
		fmt.Fprintf(out, "  Warning: %s is recorded as applied but its file is missing\n", v)
	}

	if err != nil {
		if report.Count() > 0 {
			fmt.Fprintf(out, "\n%d migration(s) applied before the failure remain applied.\n", report.Count())
		}

		return err
	}

	switch {
	case dryRun:
		fmt.Fprintf(out, "\nDry run complete: %d migration(s) would be applied, %d already applied.\n",
			len(report.Pending), report.Skipped)
	case report.Count() == 0:
		fmt.Fprintf(out, "\nDatabase is up to date (%d already applied).\n", report.Skipped)
	default:
		fmt.Fprintf(out, "\nApply complete: %d applied, %d skipped.\n", report.Count(), report.Skipped)
	}

	return nil
}

func printProgress(out io.Writer) func(runner.ProgressEvent) {
	return func(event runner.ProgressEvent) {
		switch event.Status {
		case runner.StatusStarting:
			fmt.Fprintf(out, "  Applying %s ... ", event.Script.FileName)
		case runner.StatusCompleted:
			fmt.Fprintf(out, "done (%s)\n", event.Duration.Truncate(time.Millisecond))
		case runner.StatusSkipped:
			fmt.Fprintf(out, "  Would apply %s\n", event.Script.FileName)
		case runner.StatusFailed:
			fmt.Fprintf(out, "FAILED\n")
			fmt.Fprintf(out, "    Error: %v\n", event.Error)
		}
	}
}
