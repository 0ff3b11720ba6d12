package etl

import (
	"context"

	"github.com/carhart/plenario/internal/database"
)

// The static driver is the built-in default. It materializes the dataset's
// backing table without loading content; real source parsers are provided by
// the embedding platform and registered under their own driver names.

func init() {
	RegisterTabularDriver("static", func(b Backend) TabularIngestor {
		return &staticTabular{backend: b}
	})
	RegisterShapeDriver("static", func(b Backend) ShapeIngestor {
		return &staticShape{backend: b}
	})
}

type staticTabular struct {
	backend Backend
}

func (s *staticTabular) Add(ctx context.Context, rec *database.DatasetRecord) error {
	if err := s.backend.EnsureTable(ctx, rec.TableName); err != nil {
		return &Error{Dataset: rec.SourceHash, Op: OpAdd, Err: err}
	}
	return nil
}

// Update keeps the backing table present. Repeat calls are no-ops, which is
// the idempotency the refresh path depends on.
func (s *staticTabular) Update(ctx context.Context, rec *database.DatasetRecord) error {
	if err := s.backend.EnsureTable(ctx, rec.TableName); err != nil {
		return &Error{Dataset: rec.SourceHash, Op: OpUpdate, Err: err}
	}
	return nil
}

type staticShape struct {
	backend Backend
}

func (s *staticShape) Add(ctx context.Context, rec *database.ShapeRecord) error {
	if err := s.backend.EnsureTable(ctx, rec.TableName); err != nil {
		return &Error{Dataset: rec.TableName, Op: OpAdd, Err: err}
	}
	return nil
}

func (s *staticShape) Update(ctx context.Context, rec *database.ShapeRecord) error {
	if err := s.backend.EnsureTable(ctx, rec.TableName); err != nil {
		return &Error{Dataset: rec.TableName, Op: OpUpdate, Err: err}
	}
	return nil
}
