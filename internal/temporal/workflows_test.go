package temporal

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/carhart/plenario/internal/database"
)

// newWorkflowEnv builds a test environment with every lifecycle workflow and
// activity registered against the given activities, mirroring the worker's
// registration.
func newWorkflowEnv(t *testing.T, acts *TaskActivities) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()

	env.RegisterWorkflowWithOptions(AddDatasetWorkflowFunc, workflow.RegisterOptions{Name: AddDatasetWorkflow})
	env.RegisterWorkflowWithOptions(UpdateDatasetWorkflowFunc, workflow.RegisterOptions{Name: UpdateDatasetWorkflow})
	env.RegisterWorkflowWithOptions(DeleteDatasetWorkflowFunc, workflow.RegisterOptions{Name: DeleteDatasetWorkflow})
	env.RegisterWorkflowWithOptions(AddShapeWorkflowFunc, workflow.RegisterOptions{Name: AddShapeWorkflow})
	env.RegisterWorkflowWithOptions(UpdateShapeWorkflowFunc, workflow.RegisterOptions{Name: UpdateShapeWorkflow})
	env.RegisterWorkflowWithOptions(DeleteShapeWorkflowFunc, workflow.RegisterOptions{Name: DeleteShapeWorkflow})
	env.RegisterWorkflowWithOptions(FrequencyUpdateWorkflowFunc, workflow.RegisterOptions{Name: FrequencyUpdateWorkflow})

	env.RegisterActivity(acts.RecordDatasetRun)
	env.RegisterActivity(acts.RecordShapeRun)
	env.RegisterActivity(acts.IngestDataset)
	env.RegisterActivity(acts.IngestShape)
	env.RegisterActivity(acts.DestroyDataset)
	env.RegisterActivity(acts.DestroyShape)
	env.RegisterActivity(acts.ListDueDatasets)

	return env
}

// =============================================================================
// ADD / UPDATE WORKFLOWS
// =============================================================================

func TestAddDatasetWorkflow(t *testing.T) {
	acts, store, tabular, _ := newTestActivities()
	store.addDataset(datasetFixture("abc123", "Crimes", database.FrequencyWeekly, false))

	env := newWorkflowEnv(t, acts)
	env.ExecuteWorkflow(AddDatasetWorkflowFunc, DatasetInput{SourceHash: "abc123"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var msg string
	require.NoError(t, env.GetWorkflowResult(&msg))
	require.Equal(t, "Finished adding Crimes (abc123)", msg)

	require.Equal(t, 1, tabular.addCalls)
	require.Len(t, store.datasets["abc123"].ResultIDs, 1)
	require.True(t, store.datasets["abc123"].DateAdded.Valid)
}

func TestAddDatasetWorkflowNotFound(t *testing.T) {
	acts, store, tabular, _ := newTestActivities()

	env := newWorkflowEnv(t, acts)
	env.ExecuteWorkflow(AddDatasetWorkflowFunc, DatasetInput{SourceHash: "missing"})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)

	var appErr *sdktemporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "NotFound", appErr.Type())

	// The failure path must perform no run-id write and no ingestor call.
	require.Zero(t, store.historyWrites)
	require.Zero(t, tabular.addCalls)
}

func TestUpdateDatasetWorkflowAppendsHistory(t *testing.T) {
	acts, store, tabular, _ := newTestActivities()
	rec := datasetFixture("abc123", "Crimes", database.FrequencyWeekly, true)
	rec.ResultIDs = []string{"run-initial"}
	store.addDataset(rec)

	env := newWorkflowEnv(t, acts)
	env.ExecuteWorkflow(UpdateDatasetWorkflowFunc, DatasetInput{SourceHash: "abc123"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var msg string
	require.NoError(t, env.GetWorkflowResult(&msg))
	require.Equal(t, "Finished updating Crimes (abc123)", msg)

	require.Equal(t, 1, tabular.updateCalls)
	history := store.datasets["abc123"].ResultIDs
	require.Len(t, history, 2)
	require.Equal(t, "run-initial", history[0])
	require.NotEqual(t, history[0], history[1], "run ids in the history must be distinct")
}

func TestAddDatasetWorkflowIngestionFailure(t *testing.T) {
	acts, store, tabular, _ := newTestActivities()
	store.addDataset(datasetFixture("abc123", "Crimes", database.FrequencyWeekly, false))
	tabular.err = errors.New("source fetch timed out")

	env := newWorkflowEnv(t, acts)
	env.ExecuteWorkflow(AddDatasetWorkflowFunc, DatasetInput{SourceHash: "abc123"})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	require.Contains(t, err.Error(), "source fetch timed out")

	// The run was recorded before ingestion was attempted, the ingest was
	// retried per policy, and the dataset is still pending.
	require.Len(t, store.datasets["abc123"].ResultIDs, 1)
	require.Equal(t, 3, tabular.addCalls)
	require.False(t, store.datasets["abc123"].DateAdded.Valid)
}

func TestAddShapeWorkflow(t *testing.T) {
	acts, store, _, shape := newTestActivities()
	store.addShape(shapeFixture("parks", "Parks", database.FrequencyDaily, false))

	env := newWorkflowEnv(t, acts)
	env.ExecuteWorkflow(AddShapeWorkflowFunc, ShapeInput{TableName: "parks"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var msg string
	require.NoError(t, env.GetWorkflowResult(&msg))
	require.Equal(t, "Finished adding shape dataset Parks from https://data.example.org/shapes/parks.", msg)

	require.Equal(t, 1, shape.addCalls)
	require.True(t, store.shapes["parks"].IsIngested)
	require.True(t, store.shapes["parks"].RunID.Valid)
}

// =============================================================================
// DELETE WORKFLOWS
// =============================================================================

func TestDeleteDatasetWorkflowTwice(t *testing.T) {
	acts, store, _, _ := newTestActivities()
	store.addDataset(datasetFixture("abc123", "Crimes", database.FrequencyWeekly, true))

	env := newWorkflowEnv(t, acts)
	env.ExecuteWorkflow(DeleteDatasetWorkflowFunc, DatasetInput{SourceHash: "abc123"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var msg string
	require.NoError(t, env.GetWorkflowResult(&msg))
	require.Equal(t, "Deleted Crimes (abc123)", msg)
	require.NotContains(t, store.datasets, "abc123")

	// The storage table is already gone; a second destroy must not raise.
	env = newWorkflowEnv(t, acts)
	env.ExecuteWorkflow(DeleteDatasetWorkflowFunc, DatasetInput{SourceHash: "abc123"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.NoError(t, env.GetWorkflowResult(&msg))
	require.Equal(t, "Deleted abc123", msg)
}

func TestDeleteDatasetWorkflowRetriesTransientCommit(t *testing.T) {
	acts, store, _, _ := newTestActivities()
	store.addDataset(datasetFixture("abc123", "Crimes", database.FrequencyWeekly, true))
	store.deleteErrs = []error{&pq.Error{Code: "40001", Message: "serialization conflict"}}

	env := newWorkflowEnv(t, acts)
	env.ExecuteWorkflow(DeleteDatasetWorkflowFunc, DatasetInput{SourceHash: "abc123"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var msg string
	require.NoError(t, env.GetWorkflowResult(&msg))
	require.Equal(t, "Deleted Crimes (abc123)", msg)
	require.NotContains(t, store.datasets, "abc123")

	// The retried operation re-dropped the already absent table without
	// raising.
	require.Equal(t, 2, store.dropCalls["dat_abc123"])
}

// =============================================================================
// FREQUENCY UPDATE WORKFLOW
// =============================================================================

func TestFrequencyUpdateWorkflowDaily(t *testing.T) {
	acts, store, _, _ := newTestActivities()
	store.addDataset(datasetFixture("abc123", "Crimes", database.FrequencyWeekly, true))
	store.addDataset(datasetFixture("daily1", "Permits", database.FrequencyDaily, true))
	store.addDataset(datasetFixture("daily2", "Potholes", database.FrequencyDaily, false))
	store.addShape(shapeFixture("parks", "Parks", database.FrequencyDaily, false))
	store.addShape(shapeFixture("lakes", "Lakes", database.FrequencyDaily, true))

	env := newWorkflowEnv(t, acts)
	env.ExecuteWorkflow(FrequencyUpdateWorkflowFunc, FrequencyInput{Frequency: database.FrequencyDaily})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out FrequencyUpdateOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "daily", out.Frequency)
	require.Equal(t, "daily update complete", out.Summary)
	require.Equal(t, 2, out.Submitted, "one refresh for daily1, one for lakes")
	require.Empty(t, out.Failed)
}

func TestFrequencyUpdateWorkflowWeekly(t *testing.T) {
	acts, store, _, _ := newTestActivities()
	store.addDataset(datasetFixture("abc123", "Crimes", database.FrequencyWeekly, true))
	store.addDataset(datasetFixture("daily1", "Permits", database.FrequencyDaily, true))

	env := newWorkflowEnv(t, acts)
	env.ExecuteWorkflow(FrequencyUpdateWorkflowFunc, FrequencyInput{Frequency: database.FrequencyWeekly})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out FrequencyUpdateOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, 1, out.Submitted, "only abc123 is due weekly")
	require.Empty(t, out.Failed)
}

func TestFrequencyUpdateWorkflowRecordsSubmitFailures(t *testing.T) {
	acts, store, _, _ := newTestActivities()
	store.addDataset(datasetFixture("daily1", "Permits", database.FrequencyDaily, true))
	store.addDataset(datasetFixture("other1", "Potholes", database.FrequencyDaily, true))
	// Listing daily1 twice makes its second child workflow collide on the
	// deterministic workflow id.
	store.dueOverride = []string{"daily1", "daily1", "other1"}

	env := newWorkflowEnv(t, acts)
	env.ExecuteWorkflow(FrequencyUpdateWorkflowFunc, FrequencyInput{Frequency: database.FrequencyDaily})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out FrequencyUpdateOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, 2, out.Submitted, "the collision must not block the remaining submissions")
	require.Len(t, out.Failed, 1)
	require.Equal(t, "daily1", out.Failed[0].Key)
	require.NotEmpty(t, out.Failed[0].Error)
	require.Equal(t, "daily update complete", out.Summary)
}

func TestFrequencyUpdateWorkflowInvalidCadence(t *testing.T) {
	acts, _, _, _ := newTestActivities()

	env := newWorkflowEnv(t, acts)
	env.ExecuteWorkflow(FrequencyUpdateWorkflowFunc, FrequencyInput{Frequency: "fortnightly"})

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)

	var appErr *sdktemporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "INVALID_INPUT", appErr.Type())
}
