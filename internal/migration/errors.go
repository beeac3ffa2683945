package migration

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below via errors.Is.
var (
	// ErrSourceUnreadable indicates the migrations directory or a file in it could not be read.
	ErrSourceUnreadable = errors.New("migration source unreadable")

	// ErrDuplicateVersion indicates two migrations share a version.
	ErrDuplicateVersion = errors.New("duplicate migration version")

	// ErrTampered indicates an applied migration no longer matches its recorded checksum.
	ErrTampered = errors.New("applied migration was modified")

	// ErrExecution indicates a migration's statements failed and were rolled back.
	ErrExecution = errors.New("migration execution failed")
)

// SourceUnreadableError reports a missing or unreadable migration source.
type SourceUnreadableError struct {
	Path string
	Err  error
}

func (e *SourceUnreadableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSourceUnreadable, e.Path, e.Err)
}

func (e *SourceUnreadableError) Unwrap() error { return e.Err }

// Is matches ErrSourceUnreadable.
func (e *SourceUnreadableError) Is(target error) bool { return target == ErrSourceUnreadable }

// Duplicate sources.
const (
	DuplicateInSource  = "source"
	DuplicateInHistory = "history"
)

// DuplicateVersionError reports two files with the same version, or a history
// insert that collided with an existing row (a concurrent runner won the race).
type DuplicateVersionError struct {
	Version string
	First   string // first file name, or the existing history row's file name when it could be read
	Second  string
	Source  string // DuplicateInSource or DuplicateInHistory
	Err     error  // driver error for history collisions
}

func (e *DuplicateVersionError) Error() string {
	if e.Source == DuplicateInHistory {
		recorded := "this version"
		if e.First != "" {
			recorded = e.First
		}

		msg := fmt.Sprintf("%s %s: history already contains %s (recording %s)", ErrDuplicateVersion, e.Version, recorded, e.Second)
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}

		return msg
	}

	return fmt.Sprintf("%s %s: %s and %s", ErrDuplicateVersion, e.Version, e.First, e.Second)
}

func (e *DuplicateVersionError) Unwrap() error { return e.Err }

// Is matches ErrDuplicateVersion.
func (e *DuplicateVersionError) Is(target error) bool { return target == ErrDuplicateVersion }

// TamperedMigrationError reports an applied migration whose on-disk content
// no longer hashes to the checksum stored in the history table.
type TamperedMigrationError struct {
	Version  string
	FileName string
	Recorded string
	Computed string
}

func (e *TamperedMigrationError) Error() string {
	return fmt.Sprintf("%s: %s (%s): recorded=%s computed=%s",
		ErrTampered, e.Version, e.FileName, e.Recorded, e.Computed)
}

// Is matches ErrTampered.
func (e *TamperedMigrationError) Is(target error) bool { return target == ErrTampered }

// MigrationExecutionError reports a failed script. Statement is the 1-based
// index of the failing statement, or 0 when the failure is not tied to one
// (begin, commit, recording).
type MigrationExecutionError struct {
	Version   string
	FileName  string
	Statement int
	Err       error
}

func (e *MigrationExecutionError) Error() string {
	if e.Statement > 0 {
		return fmt.Sprintf("%s: %s (%s) statement %d: %v", ErrExecution, e.Version, e.FileName, e.Statement, e.Err)
	}

	return fmt.Sprintf("%s: %s (%s): %v", ErrExecution, e.Version, e.FileName, e.Err)
}

func (e *MigrationExecutionError) Unwrap() error { return e.Err }

// Is matches ErrExecution.
func (e *MigrationExecutionError) Is(target error) bool { return target == ErrExecution }
