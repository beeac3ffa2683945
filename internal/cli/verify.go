package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aqasim81/schema-runner/internal/runner"
)

var verifyCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "verify",
	Short: "Check applied migrations against their recorded checksums",
	Long: `Recompute the checksum of every applied migration and compare it with
the history table. Exits non-zero if any applied file was edited.`,
	RunE: runVerify,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := cmd.OutOrStdout()

	r, h, err := openRunner(ctx, AppConfig, out)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck // best-effort close on exit

	statuses, err := r.Verify(ctx)
	if err != nil {
		for _, s := range statuses {
			if s.State == runner.ScriptTampered {
				fmt.Fprintf(out, "  MODIFIED  %s\n", s.FileName)
			}
		}

		return err
	}

	verified := 0

	for _, s := range statuses {
		switch s.State {
		case runner.ScriptApplied:
			verified++
		case runner.ScriptMissing:
			fmt.Fprintf(out, "  Warning: %s is recorded as applied but its file is missing\n", s.Version)
		case runner.ScriptPending, runner.ScriptTampered:
		}
	}

	fmt.Fprintf(out, "All %d applied migration(s) match their recorded checksums.\n", verified)

	return nil
}
