package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/carhart/plenario/internal/database"
	"github.com/carhart/plenario/internal/etl"
	"github.com/carhart/plenario/internal/runs"
)

// Error types surfaced through Temporal application errors.
const (
	errTypeNotFound       = "NotFound"
	errTypeTransientStore = "TransientStore"
)

// IngestOp selects the ingestor verb an ingestion activity performs.
type IngestOp string

const (
	OpAdd    IngestOp = "add"
	OpUpdate IngestOp = "update"
)

// MetadataStore is the slice of the metadata store the activities consume.
// *database.Client satisfies it.
type MetadataStore interface {
	GetDataset(ctx context.Context, sourceHash string) (*database.DatasetRecord, error)
	GetShape(ctx context.Context, tableName string) (*database.ShapeRecord, error)
	MarkDatasetIngested(ctx context.Context, sourceHash string) error
	MarkShapeIngested(ctx context.Context, tableName string) error
	DeleteDataset(ctx context.Context, sourceHash string) error
	DeleteShape(ctx context.Context, tableName string) error
	DropTable(ctx context.Context, tableName string) error
	ListDatasetsByFrequency(ctx context.Context, freq database.Frequency) ([]string, error)
	ListShapesByFrequency(ctx context.Context, freq database.Frequency) ([]string, error)
}

// TaskActivities holds the activity implementations backing the lifecycle
// workflows.
type TaskActivities struct {
	store   MetadataStore
	tracker *runs.Tracker
	tabular etl.TabularIngestor
	shape   etl.ShapeIngestor
}

// NewTaskActivities creates a TaskActivities instance.
func NewTaskActivities(store MetadataStore, tracker *runs.Tracker, tabular etl.TabularIngestor, shape etl.ShapeIngestor) *TaskActivities {
	return &TaskActivities{store: store, tracker: tracker, tabular: tabular, shape: shape}
}

// notFound converts a missing-record failure into a non-retryable error so
// the transport does not retry a fatal precondition.
func notFound(err error, key string) error {
	return temporal.NewNonRetryableApplicationError(
		fmt.Sprintf("dataset %s not found", key), errTypeNotFound, err)
}

// storeError labels transient store failures (connection loss, serialization
// conflicts) so the retry that follows is attributable; everything else
// propagates untouched and is still subject to the generic retry policy.
func storeError(err error) error {
	if database.IsTransient(err) {
		return temporal.NewApplicationError(err.Error(), errTypeTransientStore, err)
	}
	return err
}

// =============================================================================
// RUN TRACKING ACTIVITIES
// =============================================================================

// RecordDatasetRunInput is the input for RecordDatasetRun.
type RecordDatasetRunInput struct {
	SourceHash string `json:"sourceHash"`
	RunID      string `json:"runId"`
}

// RecordDatasetRunOutput is the output for RecordDatasetRun.
type RecordDatasetRunOutput struct {
	HumanName string `json:"humanName"`
	TableName string `json:"tableName"`
	PrevRunID string `json:"prevRunId,omitempty"`
}

// RecordDatasetRun appends the run id to the dataset's history and persists
// it before any ingestion work starts.
func (a *TaskActivities) RecordDatasetRun(ctx context.Context, input RecordDatasetRunInput) (*RecordDatasetRunOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("recording dataset run", "sourceHash", input.SourceHash, "runId", input.RunID)

	rec, err := a.store.GetDataset(ctx, input.SourceHash)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, notFound(err, input.SourceHash)
		}
		return nil, storeError(err)
	}

	prev, err := a.tracker.RecordDatasetRun(ctx, rec, input.RunID)
	if err != nil {
		return nil, storeError(err)
	}

	return &RecordDatasetRunOutput{
		HumanName: rec.HumanName,
		TableName: rec.TableName,
		PrevRunID: prev,
	}, nil
}

// RecordShapeRunInput is the input for RecordShapeRun.
type RecordShapeRunInput struct {
	TableName string `json:"tableName"`
	RunID     string `json:"runId"`
}

// RecordShapeRunOutput is the output for RecordShapeRun.
type RecordShapeRunOutput struct {
	DatasetName string `json:"datasetName"`
	SourceURL   string `json:"sourceUrl"`
	PrevRunID   string `json:"prevRunId,omitempty"`
}

// RecordShapeRun sets the shape's run id slot before ingestion starts.
func (a *TaskActivities) RecordShapeRun(ctx context.Context, input RecordShapeRunInput) (*RecordShapeRunOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("recording shape run", "tableName", input.TableName, "runId", input.RunID)

	rec, err := a.store.GetShape(ctx, input.TableName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, notFound(err, input.TableName)
		}
		return nil, storeError(err)
	}

	prev, err := a.tracker.RecordShapeRun(ctx, rec, input.RunID)
	if err != nil {
		return nil, storeError(err)
	}

	return &RecordShapeRunOutput{
		DatasetName: rec.DatasetName,
		SourceURL:   rec.SourceURL,
		PrevRunID:   prev,
	}, nil
}

// =============================================================================
// INGESTION ACTIVITIES
// =============================================================================

// IngestDatasetInput is the input for IngestDataset.
type IngestDatasetInput struct {
	SourceHash string   `json:"sourceHash"`
	Op         IngestOp `json:"op"`
}

// IngestDataset invokes the tabular ingestor and, on a first ingestion,
// commits the dataset's ingested status; a refresh leaves the status as it
// is. Ingestion failures propagate unmodified; the transport's retry policy
// is the only recovery lever.
func (a *TaskActivities) IngestDataset(ctx context.Context, input IngestDatasetInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("ingesting dataset", "sourceHash", input.SourceHash, "op", input.Op)

	rec, err := a.store.GetDataset(ctx, input.SourceHash)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return notFound(err, input.SourceHash)
		}
		return storeError(err)
	}

	switch input.Op {
	case OpAdd:
		err = a.tabular.Add(ctx, rec)
	case OpUpdate:
		err = a.tabular.Update(ctx, rec)
	default:
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("unknown ingest op %q", input.Op), "INVALID_INPUT", nil)
	}
	if err != nil {
		return err
	}

	if input.Op == OpAdd {
		if err := a.store.MarkDatasetIngested(ctx, input.SourceHash); err != nil {
			return storeError(err)
		}
	}
	return nil
}

// IngestShapeInput is the input for IngestShape.
type IngestShapeInput struct {
	TableName string   `json:"tableName"`
	Op        IngestOp `json:"op"`
}

// IngestShape invokes the shape ingestor and, on a first ingestion, commits
// the shape's ingested flag; a refresh leaves the flag as it is.
func (a *TaskActivities) IngestShape(ctx context.Context, input IngestShapeInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("ingesting shape", "tableName", input.TableName, "op", input.Op)

	rec, err := a.store.GetShape(ctx, input.TableName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return notFound(err, input.TableName)
		}
		return storeError(err)
	}

	switch input.Op {
	case OpAdd:
		err = a.shape.Add(ctx, rec)
	case OpUpdate:
		err = a.shape.Update(ctx, rec)
	default:
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("unknown ingest op %q", input.Op), "INVALID_INPUT", nil)
	}
	if err != nil {
		return err
	}

	if input.Op == OpAdd {
		if err := a.store.MarkShapeIngested(ctx, input.TableName); err != nil {
			return storeError(err)
		}
	}
	return nil
}

// =============================================================================
// DESTROY ACTIVITIES
// =============================================================================

// DestroyDataset drops the backing table, then deletes the metadata record.
// Both steps tolerate having already happened, so retrying the whole
// activity after a transient commit failure is correct.
func (a *TaskActivities) DestroyDataset(ctx context.Context, input DatasetInput) (string, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("destroying dataset", "sourceHash", input.SourceHash)

	rec, err := a.store.GetDataset(ctx, input.SourceHash)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// Already deleted; nothing left to do.
			return fmt.Sprintf("Deleted %s", input.SourceHash), nil
		}
		return "", storeError(err)
	}

	if err := a.store.DropTable(ctx, rec.TableName); err != nil {
		return "", storeError(err)
	}

	if err := a.store.DeleteDataset(ctx, input.SourceHash); err != nil && !errors.Is(err, database.ErrNotFound) {
		return "", storeError(err)
	}

	return fmt.Sprintf("Deleted %s (%s)", rec.HumanName, rec.SourceHash), nil
}

// DestroyShape drops the shape's table, then deletes the metadata record.
func (a *TaskActivities) DestroyShape(ctx context.Context, input ShapeInput) (string, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("destroying shape", "tableName", input.TableName)

	rec, err := a.store.GetShape(ctx, input.TableName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Sprintf("Removed %s", input.TableName), nil
		}
		return "", storeError(err)
	}

	if err := a.store.DropTable(ctx, rec.TableName); err != nil {
		return "", storeError(err)
	}

	if err := a.store.DeleteShape(ctx, input.TableName); err != nil && !errors.Is(err, database.ErrNotFound) {
		return "", storeError(err)
	}

	return fmt.Sprintf("Removed %s", input.TableName), nil
}

// =============================================================================
// SCHEDULER ACTIVITIES
// =============================================================================

// ListDueDatasetsInput is the input for ListDueDatasets.
type ListDueDatasetsInput struct {
	Frequency database.Frequency `json:"frequency"`
}

// ListDueDatasetsOutput is the output for ListDueDatasets. Both result sets
// are always present, empty or not.
type ListDueDatasetsOutput struct {
	Datasets []string `json:"datasets"`
	Shapes   []string `json:"shapes"`
}

// ListDueDatasets returns the keys of every dataset eligible for refresh at
// the given cadence: tabular datasets that have been ingested at least once,
// and shapes whose ingested flag is set.
func (a *TaskActivities) ListDueDatasets(ctx context.Context, input ListDueDatasetsInput) (*ListDueDatasetsOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("listing due datasets", "frequency", input.Frequency)

	datasets, err := a.store.ListDatasetsByFrequency(ctx, input.Frequency)
	if err != nil {
		return nil, storeError(err)
	}

	shapes, err := a.store.ListShapesByFrequency(ctx, input.Frequency)
	if err != nil {
		return nil, storeError(err)
	}

	return &ListDueDatasetsOutput{Datasets: datasets, Shapes: shapes}, nil
}
