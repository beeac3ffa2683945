package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "plan",
	Short: "Show execution plan for pending migrations",
	Long: `Verify applied migrations and list the pending ones in the order they
would be applied. Nothing is executed.`,
	RunE: runPlan,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, _ []string) error {
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

	pending, err := r.Plan(ctx)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending migrations.")
		return nil
	}

	fmt.Fprintf(out, "%d pending migration(s):\n", len(pending))

	for i, s := range pending {
		fmt.Fprintf(out, "  %d. %s  %s  (sha256 %s)\n", i+1, s.Version, s.FileName, s.Checksum[:12])
	}

	return nil
}
