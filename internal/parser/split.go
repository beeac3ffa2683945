package parser //nolint:revive // intentional: does not conflict with go/parser in internal package

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// SplitBatches splits a script on batch separator lines: a line holding only
// GO, in any case, optionally followed by a semicolon. Batches that contain
// nothing but whitespace are dropped. Batch text is otherwise kept as written.
func SplitBatches(script string) []string {
	var (
		batches []string
		current strings.Builder
	)

	flush := func() {
		if strings.TrimSpace(current.String()) != "" {
			batches = append(batches, current.String())
		}

		current.Reset()
	}

	for _, line := range strings.SplitAfter(script, "\n") {
		if isBatchSeparator(line) {
			flush()

			continue
		}

		current.WriteString(line)
	}

	flush()

	return batches
}

func isBatchSeparator(line string) bool {
	s := strings.TrimSpace(line)
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))

	return strings.EqualFold(s, "GO")
}

// SplitStatements splits a batch into individual statements using the
// PostgreSQL parser, so semicolons inside strings, comments and dollar-quoted
// bodies are handled correctly.
func SplitStatements(batch string) ([]string, error) {
	if strings.TrimSpace(batch) == "" {
		return nil, nil
	}

	parts, err := pg_query.SplitWithParser(batch, true)
	if err != nil {
		return nil, fmt.Errorf("splitting statements: %w", err)
	}

	stmts := make([]string, 0, len(parts))

	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			stmts = append(stmts, p)
		}
	}

	return stmts, nil
}

// SplitScript splits a whole script into batches and then statements.
func SplitScript(script string) ([]string, error) {
	var stmts []string

	for i, batch := range SplitBatches(script) {
		parts, err := SplitStatements(batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i+1, err)
		}

		stmts = append(stmts, parts...)
	}

	return stmts, nil
}
