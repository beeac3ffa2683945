package database

import (
	"fmt"
	"strings"
)

// Dialect identifies the database engine behind a URL.
type Dialect string

// Supported dialects.
const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DetectDialect picks the dialect from the URL scheme. Bare paths ending in
// .db, .sqlite or .sqlite3 and ":memory:" are SQLite.
func DetectDialect(databaseURL string) (Dialect, error) {
	u := strings.TrimSpace(databaseURL)
	lower := strings.ToLower(u)

	switch {
	case u == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidDatabaseURL)
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Postgres, nil
	case strings.HasPrefix(lower, "sqlite:"), strings.HasPrefix(lower, "file:"), u == ":memory:":
		return SQLite, nil
	}

	for _, ext := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(lower, ext) {
			return SQLite, nil
		}
	}

	scheme, _, found := strings.Cut(u, "://")
	if !found {
		scheme = u
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, scheme)
}

// sqliteDSN strips the sqlite: or sqlite:// prefix, leaving a name the driver accepts.
func sqliteDSN(databaseURL string) string {
	u := strings.TrimSpace(databaseURL)

	for _, prefix := range []string{"sqlite://", "sqlite:"} {
		if len(u) >= len(prefix) && strings.EqualFold(u[:len(prefix)], prefix) {
			return u[len(prefix):]
		}
	}

	return u
}
