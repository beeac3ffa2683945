// Package history persists the ledger of applied migrations. Rows are only
// ever inserted: a version that is already present is reported as a
// duplicate rather than overwritten.
package history

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/aqasim81/schema-runner/internal/migration"
)

// DefaultTable is the ledger table name used when none is configured.
const DefaultTable = "schema_migrations"

// ErrInvalidTableName indicates a configured table name is not a plain identifier.
var ErrInvalidTableName = errors.New("invalid history table name")

// ErrTableCreation indicates the history table could not be created.
var ErrTableCreation = errors.New("creating history table")

// tableNamePattern accepts "name" or "schema.name".
var tableNamePattern = regexp.MustCompile( //nolint:gochecknoglobals // compiled once
	`^[A-Za-z_][A-Za-z0-9_]{0,62}(\.[A-Za-z_][A-Za-z0-9_]{0,62})?$`,
)

// Record is one applied migration.
type Record struct {
	Version         string
	FileName        string
	Checksum        string
	AppliedAt       time.Time
	ExecutionTimeMs int64
}

// NewRecord builds the ledger row for a script that just committed.
func NewRecord(s *migration.Script, appliedAt time.Time, elapsed time.Duration) Record {
	return Record{
		Version:         s.Version,
		FileName:        s.FileName,
		Checksum:        s.Checksum,
		AppliedAt:       appliedAt.UTC(),
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
}

// ValidateTableName rejects anything but a plain, optionally schema-qualified identifier.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, name)
	}

	return nil
}

// duplicateError reports rec colliding with the existing row for its version.
// existing is that row's file name, empty when it could not be read.
func duplicateError(rec Record, existing string, err error) error {
	return &migration.DuplicateVersionError{
		Version: rec.Version,
		First:   existing,
		Second:  rec.FileName,
		Source:  migration.DuplicateInHistory,
		Err:     err,
	}
}
