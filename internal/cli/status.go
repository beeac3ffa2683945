package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aqasim81/schema-runner/internal/runner"
)

var statusCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "status",
	Short: "Show migration status",
	Long: `Display every known migration with its state: applied, pending,
tampered (edited after it was applied) or missing (applied, file gone).`,
	RunE: runStatus,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	statusCmd.Flags().String("format", "", "output format (text, json); defaults to the configured format")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig

	format := cfg.Format
	if cmd.Flags().Changed("format") {
		format, _ = cmd.Flags().GetString("format")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := cmd.OutOrStdout()

	// Connection chatter would corrupt JSON output.
	connOut := out
	if strings.EqualFold(format, "json") {
		connOut = io.Discard
	}

	r, h, err := openRunner(ctx, cfg, connOut)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck // best-effort close on exit

	statuses, err := r.Status(ctx)
	if err != nil {
		return err
	}

	if strings.EqualFold(format, "json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		if statuses == nil {
			statuses = []runner.ScriptStatus{}
		}

		return enc.Encode(statuses)
	}

	printStatusTable(out, statuses)

	return nil
}

func printStatusTable(out io.Writer, statuses []runner.ScriptStatus) {
	if len(statuses) == 0 {
		fmt.Fprintln(out, "No migrations found.")
		return
	}

	counts := make(map[runner.ScriptState]int)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tFILE\tSTATE\tAPPLIED AT")

	for _, s := range statuses {
		appliedAt := "-"
		if !s.AppliedAt.IsZero() {
			appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05 MST")
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Version, s.FileName, s.State, appliedAt)
		counts[s.State]++
	}

	_ = tw.Flush()

	fmt.Fprintf(out, "\n%d applied, %d pending, %d tampered, %d missing.\n",
		counts[runner.ScriptApplied], counts[runner.ScriptPending],
		counts[runner.ScriptTampered], counts[runner.ScriptMissing])
}
