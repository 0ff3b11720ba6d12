// Package main submits a single lifecycle operation and waits for its
// result. It is the operator-facing entry point for the six dataset
// operations and the frequency tick.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/carhart/plenario/internal/config"
	"github.com/carhart/plenario/internal/database"
	temporal_internal "github.com/carhart/plenario/internal/temporal"
)

func main() {
	op := flag.String("op", "", "operation: add-dataset, update-dataset, delete-dataset, add-shape, update-shape, delete-shape, tick")
	key := flag.String("key", "", "dataset key: source hash for tabular, table name for shapes")
	freq := flag.String("frequency", "", "cadence for tick: hourly, daily, weekly, monthly or yearly")
	flag.Parse()

	workflowName, input, err := resolve(*op, *key, *freq)
	if err != nil {
		log.Fatal(err)
	}

	cfg := config.Load()
	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("failed to create Temporal client: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("%s-%s", *op, uuid.NewString()),
		TaskQueue: cfg.TemporalTaskQueue,
	}, workflowName, input)
	if err != nil {
		log.Fatalf("failed to submit %s: %v", *op, err)
	}

	log.Printf("submitted %s: workflow=%s run=%s", *op, run.GetID(), run.GetRunID())

	if workflowName == temporal_internal.FrequencyUpdateWorkflow {
		var out temporal_internal.FrequencyUpdateOutput
		if err := run.Get(ctx, &out); err != nil {
			log.Fatalf("%s failed: %v", *op, err)
		}
		log.Printf("%s: submitted=%d failed=%d", out.Summary, out.Submitted, len(out.Failed))
		for _, f := range out.Failed {
			log.Printf("  failed to submit %s: %s", f.Key, f.Error)
		}
		return
	}

	var msg string
	if err := run.Get(ctx, &msg); err != nil {
		log.Fatalf("%s failed: %v", *op, err)
	}
	log.Print(msg)
}

func resolve(op, key, freq string) (string, any, error) {
	switch op {
	case "add-dataset", "update-dataset", "delete-dataset":
		if key == "" {
			return "", nil, fmt.Errorf("-key is required for %s", op)
		}
	case "add-shape", "update-shape", "delete-shape":
		if key == "" {
			return "", nil, fmt.Errorf("-key is required for %s", op)
		}
	case "tick":
		f := database.Frequency(freq)
		if !f.Valid() {
			return "", nil, fmt.Errorf("-frequency must be one of hourly, daily, weekly, monthly, yearly")
		}
		return temporal_internal.FrequencyUpdateWorkflow, temporal_internal.FrequencyInput{Frequency: f}, nil
	default:
		return "", nil, fmt.Errorf("unknown operation %q", op)
	}

	datasetInput := temporal_internal.DatasetInput{SourceHash: key}
	shapeInput := temporal_internal.ShapeInput{TableName: key}

	switch op {
	case "add-dataset":
		return temporal_internal.AddDatasetWorkflow, datasetInput, nil
	case "update-dataset":
		return temporal_internal.UpdateDatasetWorkflow, datasetInput, nil
	case "delete-dataset":
		return temporal_internal.DeleteDatasetWorkflow, datasetInput, nil
	case "add-shape":
		return temporal_internal.AddShapeWorkflow, shapeInput, nil
	case "update-shape":
		return temporal_internal.UpdateShapeWorkflow, shapeInput, nil
	case "delete-shape":
		return temporal_internal.DeleteShapeWorkflow, shapeInput, nil
	}
	return "", nil, fmt.Errorf("unknown operation %q", op)
}
