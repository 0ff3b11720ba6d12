package etl

import (
	"context"
	"fmt"
)

// Backend is the storage capability ingestion drivers materialize tables
// through.
type Backend interface {
	EnsureTable(ctx context.Context, tableName string) error
}

// TabularFactory builds a TabularIngestor over a storage backend.
type TabularFactory func(Backend) TabularIngestor

// ShapeFactory builds a ShapeIngestor over a storage backend.
type ShapeFactory func(Backend) ShapeIngestor

var (
	tabularDrivers = map[string]TabularFactory{}
	shapeDrivers   = map[string]ShapeFactory{}
)

// RegisterTabularDriver registers a tabular ingestion driver by name.
func RegisterTabularDriver(name string, factory TabularFactory) {
	tabularDrivers[name] = factory
}

// RegisterShapeDriver registers a shape ingestion driver by name.
func RegisterShapeDriver(name string, factory ShapeFactory) {
	shapeDrivers[name] = factory
}

// NewTabular creates the named tabular ingestor.
func NewTabular(driver string, backend Backend) (TabularIngestor, error) {
	factory, ok := tabularDrivers[driver]
	if !ok {
		return nil, fmt.Errorf("unknown tabular ingestion driver: %s", driver)
	}
	return factory(backend), nil
}

// NewShape creates the named shape ingestor.
func NewShape(driver string, backend Backend) (ShapeIngestor, error) {
	factory, ok := shapeDrivers[driver]
	if !ok {
		return nil, fmt.Errorf("unknown shape ingestion driver: %s", driver)
	}
	return factory(backend), nil
}
