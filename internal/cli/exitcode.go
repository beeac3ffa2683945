package cli

import (
	"errors"

	"github.com/aqasim81/schema-runner/internal/migration"
)

// Process exit codes, so provisioning scripts can tell failures apart.
const (
	ExitOK                = 0
	ExitError             = 1
	ExitSourceUnreadable  = 3
	ExitDuplicateVersion  = 4
	ExitTamperedMigration = 5
	ExitExecutionFailed   = 6
)

// ExitCode maps an error returned by a command to the process exit code.
// Tampering wins over other kinds when several are present.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, migration.ErrTampered):
		return ExitTamperedMigration
	case errors.Is(err, migration.ErrDuplicateVersion):
		return ExitDuplicateVersion
	case errors.Is(err, migration.ErrSourceUnreadable):
		return ExitSourceUnreadable
	case errors.Is(err, migration.ErrExecution):
		return ExitExecutionFailed
	default:
		return ExitError
	}
}
