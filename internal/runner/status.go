package runner

import (
	"context"
	"time"

	"github.com/aqasim81/schema-runner/internal/migration"
)

// ScriptState is where a single migration stands relative to history.
type ScriptState string

// Script states reported by Status.
const (
	ScriptApplied  ScriptState = "applied"
	ScriptPending  ScriptState = "pending"
	ScriptTampered ScriptState = "tampered"
	ScriptMissing  ScriptState = "missing"
)

// ScriptStatus describes one migration, either on disk, in history, or both.
type ScriptStatus struct {
	Version   string      `json:"version"`
	FileName  string      `json:"file"`
	State     ScriptState `json:"state"`
	AppliedAt time.Time   `json:"applied_at,omitzero"`
	Checksum  string      `json:"checksum,omitempty"`
}

// Status lists every known migration in version order. Unlike Run and Plan it
// reports tampered scripts instead of failing on them. Status, Plan and Verify
// never create the history table.
func (r *Runner) Status(ctx context.Context) ([]ScriptStatus, error) {
	scripts, err := r.discover()
	if err != nil {
		return nil, err
	}

	applied, err := r.loadApplied(ctx, false)
	if err != nil {
		return nil, err
	}

	return compare(scripts, applied).statuses, nil
}

// Verify checks every applied script against its recorded checksum. It
// returns the full status list together with the combined tamper error, so a
// caller can show which scripts changed from a single read.
func (r *Runner) Verify(ctx context.Context) ([]ScriptStatus, error) {
	scripts, err := r.discover()
	if err != nil {
		return nil, err
	}

	applied, err := r.loadApplied(ctx, false)
	if err != nil {
		return nil, err
	}

	v := compare(scripts, applied)

	return v.statuses, v.tampered
}

// Plan returns the scripts a run would apply, after verifying the applied
// ones. It executes nothing.
func (r *Runner) Plan(ctx context.Context) ([]migration.Script, error) {
	scripts, err := r.discover()
	if err != nil {
		return nil, err
	}

	v, err := r.verify(ctx, scripts, false)
	if err != nil {
		return nil, err
	}

	return v.pending, nil
}
