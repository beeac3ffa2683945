package runner

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/aqasim81/schema-runner/internal/history"
	"github.com/aqasim81/schema-runner/internal/migration"
)

// verification is the comparison of scripts on disk with the history table.
type verification struct {
	statuses []ScriptStatus
	pending  []migration.Script
	skipped  int
	missing  []string
	tampered error
}

// loadApplied reads the history table. With create set it first makes sure
// the table exists; otherwise a missing table reads as an empty history and
// nothing is written.
func (r *Runner) loadApplied(ctx context.Context, create bool) (map[string]history.Record, error) {
	if create {
		if err := r.store.EnsureTable(ctx); err != nil {
			return nil, fmt.Errorf("ensuring history table: %w", err)
		}
	} else {
		exists, err := r.store.TableExists(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading history: %w", err)
		}

		if !exists {
			return map[string]history.Record{}, nil
		}
	}

	applied, err := r.store.GetApplied(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	return applied, nil
}

// verify compares scripts with history and fails if any applied script was
// modified. Every mismatch is reported, not just the first.
func (r *Runner) verify(ctx context.Context, scripts []migration.Script, create bool) (verification, error) {
	applied, err := r.loadApplied(ctx, create)
	if err != nil {
		return verification{}, err
	}

	v := compare(scripts, applied)
	if v.tampered != nil {
		return verification{}, v.tampered
	}

	return v, nil
}

// compare matches scripts to history rows by numeric version.
func compare(scripts []migration.Script, applied map[string]history.Record) verification {
	var (
		v        verification
		tampered *multierror.Error
	)

	byVersion := make(map[string]history.Record, len(applied))
	for version, rec := range applied {
		byVersion[migration.CanonicalVersion(version)] = rec
	}

	onDisk := make(map[string]struct{}, len(scripts))

	for i := range scripts {
		s := &scripts[i]
		key := migration.CanonicalVersion(s.Version)
		onDisk[key] = struct{}{}

		rec, ok := byVersion[key]
		if !ok {
			v.pending = append(v.pending, *s)
			v.statuses = append(v.statuses, ScriptStatus{Version: s.Version, FileName: s.FileName, State: ScriptPending})

			continue
		}

		status := ScriptStatus{
			Version:   s.Version,
			FileName:  s.FileName,
			State:     ScriptApplied,
			AppliedAt: rec.AppliedAt,
			Checksum:  rec.Checksum,
		}

		if !s.Verify(rec.Checksum) {
			status.State = ScriptTampered
			tampered = multierror.Append(tampered, &migration.TamperedMigrationError{
				Version:  s.Version,
				FileName: s.FileName,
				Recorded: rec.Checksum,
				Computed: migration.ComputeChecksum(s.Content),
			})
		} else {
			v.skipped++
		}

		v.statuses = append(v.statuses, status)
	}

	for key, rec := range byVersion {
		if _, ok := onDisk[key]; ok {
			continue
		}

		v.missing = append(v.missing, rec.Version)
		v.statuses = append(v.statuses, ScriptStatus{
			Version:   rec.Version,
			FileName:  rec.FileName,
			State:     ScriptMissing,
			AppliedAt: rec.AppliedAt,
			Checksum:  rec.Checksum,
		})
	}

	sort.Slice(v.missing, func(i, j int) bool {
		return migration.CompareVersions(v.missing[i], v.missing[j]) < 0
	})
	sort.SliceStable(v.statuses, func(i, j int) bool {
		return migration.CompareVersions(v.statuses[i].Version, v.statuses[j].Version) < 0
	})

	v.tampered = tampered.ErrorOrNil()

	return v
}
