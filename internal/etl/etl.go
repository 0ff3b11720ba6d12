// Package etl defines the ingestion contract the orchestrator drives. The
// transformation logic that parses and loads source data lives behind these
// interfaces; the orchestrator only sequences Add/Update/Drop calls and
// propagates their failures.
package etl

import (
	"context"
	"fmt"

	"github.com/carhart/plenario/internal/database"
)

// Op names the lifecycle verb an ingestor was performing when it failed.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpDrop   Op = "drop"
)

// TabularIngestor performs the content-level work for tabular datasets.
// Update must be safe to call repeatedly: the scheduler may re-trigger a
// refresh before a prior run completes, and the orchestrator relies on
// upsert-style idempotency rather than locking.
type TabularIngestor interface {
	Add(ctx context.Context, rec *database.DatasetRecord) error
	Update(ctx context.Context, rec *database.DatasetRecord) error
}

// ShapeIngestor performs the content-level work for shapefile datasets.
type ShapeIngestor interface {
	Add(ctx context.Context, rec *database.ShapeRecord) error
	Update(ctx context.Context, rec *database.ShapeRecord) error
}

// Error is a typed ingestion failure. The orchestrator propagates it
// unmodified; interpretation and alerting belong to the transport's retry
// policy, not to the lifecycle layer.
type Error struct {
	Dataset string
	Op      Op
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ingestion %s failed for %s: %v", e.Op, e.Dataset, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
