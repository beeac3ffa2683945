package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aqasim81/schema-runner/internal/migration"
)

// defaultVersionWidth is the zero padding used for the first migration.
const defaultVersionWidth = 3

var errEmptyDescription = errors.New("description must contain at least one letter or digit")

var nonWord = regexp.MustCompile(`[^a-z0-9]+`) //nolint:gochecknoglobals // compiled once

var createCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "create <description>",
	Short: "Create the next migration file",
	Long: `Create an empty V<next>__<description>.sql file in the migrations
directory. The version is one more than the highest existing version and keeps
the widest zero padding already in use.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCreate,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	dir := AppConfig.MigrationsDir

	path, err := createMigration(dir, strings.Join(args, " "))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)

	return nil
}

// createMigration writes an empty script for the next version and returns its path.
func createMigration(dir, description string) (string, error) {
	slug := strings.Trim(nonWord.ReplaceAllString(strings.ToLower(description), "_"), "_")
	if slug == "" {
		return "", errEmptyDescription
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &migration.SourceUnreadableError{Path: dir, Err: err}
	}

	scripts, err := migration.Discover(dir)
	if err != nil {
		return "", err
	}

	next := nextVersion(scripts)
	name := fmt.Sprintf("V%s__%s.%s", next, slug, migration.DefaultExtension)
	path := filepath.Join(dir, name)

	header := fmt.Sprintf("-- %s: %s\n", next, description)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // path built from validated parts
	if err != nil {
		return "", fmt.Errorf("creating migration file: %w", err)
	}

	if _, err := f.WriteString(header); err != nil {
		_ = f.Close()

		return "", fmt.Errorf("writing migration file: %w", err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writing migration file: %w", err)
	}

	return path, nil
}

// nextVersion returns the highest version plus one, zero-padded to the
// widest existing version.
func nextVersion(scripts []migration.Script) string {
	width := defaultVersionWidth
	highest := "0"

	for _, s := range scripts {
		if len(s.Version) > width {
			width = len(s.Version)
		}

		if migration.CompareVersions(s.Version, highest) > 0 {
			highest = s.Version
		}
	}

	next := incrementDigits(migration.CanonicalVersion(highest))
	if len(next) < width {
		next = strings.Repeat("0", width-len(next)) + next
	}

	return next
}

// incrementDigits adds one to a decimal digit string of any length.
func incrementDigits(v string) string {
	b := []byte(v)

	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < '9' {
			b[i]++
			return string(b)
		}

		b[i] = '0'
	}

	return "1" + string(b)
}
