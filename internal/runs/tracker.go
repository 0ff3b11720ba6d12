// Package runs correlates a dataset with the worker execution currently or
// most recently responsible for it.
package runs

import (
	"context"
	"fmt"

	"github.com/carhart/plenario/internal/database"
)

// Store is the slice of the metadata store the tracker writes through.
type Store interface {
	UpdateDatasetRunHistory(ctx context.Context, sourceHash string, resultIDs []string) error
	SetShapeRunID(ctx context.Context, tableName, runID string) error
}

// Tracker records which run id last touched each dataset. Tabular datasets
// keep an append-only history; shapes keep a single slot. The write sits on
// the critical path before ingestion, so a failure here aborts the parent
// operation rather than being skipped.
type Tracker struct {
	store Store
}

// NewTracker creates a Tracker over the given store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// RecordDatasetRun appends runID to the dataset's run history and persists
// the full list in one statement scoped by the dataset key. It returns the
// previous most-recent run id, or "" if the history was empty.
//
// Two near-simultaneous triggers for the same key can interleave their
// history reads and lose one entry from the audit trail; the store offers no
// conflict detection on this column. Accepted: the history is audit data,
// never a business-logic input.
func (t *Tracker) RecordDatasetRun(ctx context.Context, rec *database.DatasetRecord, runID string) (string, error) {
	prev := rec.LastRunID()

	rec.ResultIDs = append(rec.ResultIDs, runID)
	if err := t.store.UpdateDatasetRunHistory(ctx, rec.SourceHash, rec.ResultIDs); err != nil {
		return "", fmt.Errorf("failed to record run %s for dataset %s: %w", runID, rec.SourceHash, err)
	}
	return prev, nil
}

// RecordShapeRun replaces the shape's run id slot, returning the previous
// run id or "" if none was set.
func (t *Tracker) RecordShapeRun(ctx context.Context, rec *database.ShapeRecord, runID string) (string, error) {
	prev := ""
	if rec.RunID.Valid {
		prev = rec.RunID.String
	}

	if err := t.store.SetShapeRunID(ctx, rec.TableName, runID); err != nil {
		return "", fmt.Errorf("failed to record run %s for shape %s: %w", runID, rec.TableName, err)
	}
	rec.RunID = database.ToNullString(runID)
	return prev, nil
}
