// Package temporal defines the Temporal workflows and activities that drive
// the dataset ingestion lifecycle: add, refresh and destroy operations for
// tabular and shape datasets, plus the frequency-driven refresh fan-out.
package temporal

import (
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/carhart/plenario/internal/database"
)

// =============================================================================
// WORKFLOW NAMES
// =============================================================================

const (
	AddDatasetWorkflow      = "addDatasetWorkflow"
	UpdateDatasetWorkflow   = "updateDatasetWorkflow"
	DeleteDatasetWorkflow   = "deleteDatasetWorkflow"
	AddShapeWorkflow        = "addShapeWorkflow"
	UpdateShapeWorkflow     = "updateShapeWorkflow"
	DeleteShapeWorkflow     = "deleteShapeWorkflow"
	FrequencyUpdateWorkflow = "frequencyUpdateWorkflow"
)

// =============================================================================
// ACTIVITY OPTIONS
// =============================================================================

var defaultActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 10 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    5,
	},
}

// Ingestion may block on network and storage I/O of unbounded duration; the
// orchestrator defers timeout policy to the task execution deadline.
var ingestActivityOptions = workflow.ActivityOptions{
	ScheduleToCloseTimeout: 2 * time.Hour,
	StartToCloseTimeout:    time.Hour,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second * 5,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute * 5,
		MaximumAttempts:    3,
	},
}

// =============================================================================
// WORKFLOW INPUTS/OUTPUTS
// =============================================================================

// DatasetInput identifies a tabular dataset by its source hash.
type DatasetInput struct {
	SourceHash string `json:"sourceHash"`
}

// ShapeInput identifies a shape dataset by its table name.
type ShapeInput struct {
	TableName string `json:"tableName"`
}

// FrequencyInput is the input for FrequencyUpdateWorkflow.
type FrequencyInput struct {
	Frequency database.Frequency `json:"frequency"`
}

// SubmitFailure records one fan-out item that could not be submitted.
type SubmitFailure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// FrequencyUpdateOutput is the aggregate outcome of one scheduler tick.
type FrequencyUpdateOutput struct {
	Frequency string          `json:"frequency"`
	Submitted int             `json:"submitted"`
	Failed    []SubmitFailure `json:"failed,omitempty"`
	Summary   string          `json:"summary"`
}

// =============================================================================
// TABULAR DATASET WORKFLOWS
// =============================================================================

// AddDatasetWorkflowFunc runs the first ingestion of a tabular dataset. The
// workflow run id is appended to the dataset's run history before ingestion
// starts, so a crash mid-ingestion still leaves an auditable trail pointing
// at the responsible run.
func AddDatasetWorkflowFunc(ctx workflow.Context, input DatasetInput) (string, error) {
	rec, err := recordDatasetRun(ctx, input.SourceHash)
	if err != nil {
		return "", err
	}

	ingestCtx := workflow.WithActivityOptions(ctx, ingestActivityOptions)
	err = workflow.ExecuteActivity(ingestCtx, "IngestDataset", IngestDatasetInput{
		SourceHash: input.SourceHash,
		Op:         OpAdd,
	}).Get(ctx, nil)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Finished adding %s (%s)", rec.HumanName, input.SourceHash), nil
}

// UpdateDatasetWorkflowFunc refreshes an already ingested tabular dataset.
// The ingestor's Update must be repeat-safe: the scheduler may re-trigger a
// refresh before a prior run completes.
func UpdateDatasetWorkflowFunc(ctx workflow.Context, input DatasetInput) (string, error) {
	rec, err := recordDatasetRun(ctx, input.SourceHash)
	if err != nil {
		return "", err
	}

	ingestCtx := workflow.WithActivityOptions(ctx, ingestActivityOptions)
	err = workflow.ExecuteActivity(ingestCtx, "IngestDataset", IngestDatasetInput{
		SourceHash: input.SourceHash,
		Op:         OpUpdate,
	}).Get(ctx, nil)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Finished updating %s (%s)", rec.HumanName, input.SourceHash), nil
}

// DeleteDatasetWorkflowFunc destroys a tabular dataset: the backing table is
// dropped (tolerating its absence), then the metadata record is deleted. The
// whole operation is one activity so a transient commit failure retries the
// full sequence, which is safe because the drop is repeatable.
func DeleteDatasetWorkflowFunc(ctx workflow.Context, input DatasetInput) (string, error) {
	actCtx := workflow.WithActivityOptions(ctx, defaultActivityOptions)
	var msg string
	err := workflow.ExecuteActivity(actCtx, "DestroyDataset", input).Get(ctx, &msg)
	return msg, err
}

// recordDatasetRun loads the record and persists the run id append. A
// failure here aborts the operation before any ingestion is attempted.
func recordDatasetRun(ctx workflow.Context, sourceHash string) (*RecordDatasetRunOutput, error) {
	info := workflow.GetInfo(ctx)
	actCtx := workflow.WithActivityOptions(ctx, defaultActivityOptions)

	var out RecordDatasetRunOutput
	err := workflow.ExecuteActivity(actCtx, "RecordDatasetRun", RecordDatasetRunInput{
		SourceHash: sourceHash,
		RunID:      info.WorkflowExecution.RunID,
	}).Get(ctx, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// SHAPE DATASET WORKFLOWS
// =============================================================================

// AddShapeWorkflowFunc runs the first ingestion of a shape dataset.
func AddShapeWorkflowFunc(ctx workflow.Context, input ShapeInput) (string, error) {
	rec, err := recordShapeRun(ctx, input.TableName)
	if err != nil {
		return "", err
	}

	ingestCtx := workflow.WithActivityOptions(ctx, ingestActivityOptions)
	err = workflow.ExecuteActivity(ingestCtx, "IngestShape", IngestShapeInput{
		TableName: input.TableName,
		Op:        OpAdd,
	}).Get(ctx, nil)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Finished adding shape dataset %s from %s.", rec.DatasetName, rec.SourceURL), nil
}

// UpdateShapeWorkflowFunc refreshes an already ingested shape dataset.
func UpdateShapeWorkflowFunc(ctx workflow.Context, input ShapeInput) (string, error) {
	rec, err := recordShapeRun(ctx, input.TableName)
	if err != nil {
		return "", err
	}

	ingestCtx := workflow.WithActivityOptions(ctx, ingestActivityOptions)
	err = workflow.ExecuteActivity(ingestCtx, "IngestShape", IngestShapeInput{
		TableName: input.TableName,
		Op:        OpUpdate,
	}).Get(ctx, nil)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Finished updating shape dataset %s from %s.", rec.DatasetName, rec.SourceURL), nil
}

// DeleteShapeWorkflowFunc destroys a shape dataset.
func DeleteShapeWorkflowFunc(ctx workflow.Context, input ShapeInput) (string, error) {
	actCtx := workflow.WithActivityOptions(ctx, defaultActivityOptions)
	var msg string
	err := workflow.ExecuteActivity(actCtx, "DestroyShape", input).Get(ctx, &msg)
	return msg, err
}

func recordShapeRun(ctx workflow.Context, tableName string) (*RecordShapeRunOutput, error) {
	info := workflow.GetInfo(ctx)
	actCtx := workflow.WithActivityOptions(ctx, defaultActivityOptions)

	var out RecordShapeRunOutput
	err := workflow.ExecuteActivity(actCtx, "RecordShapeRun", RecordShapeRunInput{
		TableName: tableName,
		RunID:     info.WorkflowExecution.RunID,
	}).Get(ctx, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// FREQUENCY UPDATE WORKFLOW
// =============================================================================

// FrequencyUpdateWorkflowFunc fans out one refresh per dataset due at the
// given cadence. Each refresh is an independent fire-and-forget child
// workflow; a failed submission is recorded and does not block the rest.
func FrequencyUpdateWorkflowFunc(ctx workflow.Context, input FrequencyInput) (*FrequencyUpdateOutput, error) {
	logger := workflow.GetLogger(ctx)
	info := workflow.GetInfo(ctx)

	if !input.Frequency.Valid() {
		return nil, temporal.NewApplicationError(
			fmt.Sprintf("unknown frequency %q", input.Frequency), "INVALID_INPUT")
	}

	actCtx := workflow.WithActivityOptions(ctx, defaultActivityOptions)
	var due ListDueDatasetsOutput
	err := workflow.ExecuteActivity(actCtx, "ListDueDatasets", ListDueDatasetsInput{
		Frequency: input.Frequency,
	}).Get(ctx, &due)
	if err != nil {
		return nil, err
	}

	out := &FrequencyUpdateOutput{Frequency: string(input.Frequency)}

	submit := func(workflowID, childWorkflow, key string, childInput any) {
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID:        workflowID,
			ParentClosePolicy: enumspb.PARENT_CLOSE_POLICY_ABANDON,
		})
		future := workflow.ExecuteChildWorkflow(childCtx, childWorkflow, childInput)
		if err := future.GetChildWorkflowExecution().Get(ctx, nil); err != nil {
			logger.Warn("refresh submission failed", "key", key, "error", err)
			out.Failed = append(out.Failed, SubmitFailure{Key: key, Error: err.Error()})
			return
		}
		out.Submitted++
	}

	// The tick's own run id makes child workflow ids unique per tick while
	// staying deterministic on replay.
	tick := info.WorkflowExecution.RunID
	for _, hash := range due.Datasets {
		submit(fmt.Sprintf("update-dataset-%s-%s", hash, tick), UpdateDatasetWorkflow,
			hash, DatasetInput{SourceHash: hash})
	}
	for _, table := range due.Shapes {
		submit(fmt.Sprintf("update-shape-%s-%s", table, tick), UpdateShapeWorkflow,
			table, ShapeInput{TableName: table})
	}

	out.Summary = fmt.Sprintf("%s update complete", input.Frequency)
	return out, nil
}
