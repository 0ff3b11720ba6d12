// Package main is the entry point for the ingestion lifecycle worker. It
// registers the dataset lifecycle workflows and their activities on the
// orchestrator task queue.
package main

import (
	"context"
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/carhart/plenario/internal/config"
	"github.com/carhart/plenario/internal/database"
	"github.com/carhart/plenario/internal/etl"
	"github.com/carhart/plenario/internal/runs"
	temporal_internal "github.com/carhart/plenario/internal/temporal"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()

	if cfg.MigrationsPath != "" {
		if err := database.Migrate(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
	}

	db, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	tabular, err := etl.NewTabular(cfg.TabularDriver, db)
	if err != nil {
		log.Fatalf("failed to create tabular ingestor: %v", err)
	}
	shape, err := etl.NewShape(cfg.ShapeDriver, db)
	if err != nil {
		log.Fatalf("failed to create shape ingestor: %v", err)
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("failed to create Temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})

	acts := temporal_internal.NewTaskActivities(db, runs.NewTracker(db), tabular, shape)
	w.RegisterActivity(acts.RecordDatasetRun)
	w.RegisterActivity(acts.RecordShapeRun)
	w.RegisterActivity(acts.IngestDataset)
	w.RegisterActivity(acts.IngestShape)
	w.RegisterActivity(acts.DestroyDataset)
	w.RegisterActivity(acts.DestroyShape)
	w.RegisterActivity(acts.ListDueDatasets)

	registerWorkflow(w, temporal_internal.AddDatasetWorkflowFunc, temporal_internal.AddDatasetWorkflow)
	registerWorkflow(w, temporal_internal.UpdateDatasetWorkflowFunc, temporal_internal.UpdateDatasetWorkflow)
	registerWorkflow(w, temporal_internal.DeleteDatasetWorkflowFunc, temporal_internal.DeleteDatasetWorkflow)
	registerWorkflow(w, temporal_internal.AddShapeWorkflowFunc, temporal_internal.AddShapeWorkflow)
	registerWorkflow(w, temporal_internal.UpdateShapeWorkflowFunc, temporal_internal.UpdateShapeWorkflow)
	registerWorkflow(w, temporal_internal.DeleteShapeWorkflowFunc, temporal_internal.DeleteShapeWorkflow)
	registerWorkflow(w, temporal_internal.FrequencyUpdateWorkflowFunc, temporal_internal.FrequencyUpdateWorkflow)

	log.Printf("ingestion worker started: queue=%s drivers=%s/%s",
		cfg.TemporalTaskQueue, cfg.TabularDriver, cfg.ShapeDriver)

	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}

func registerWorkflow(w worker.Worker, fn any, name string) {
	w.RegisterWorkflowWithOptions(fn, workflow.RegisterOptions{Name: name})
}
