// Package main installs the periodic frequency-update workflows. One cron
// workflow per cadence re-enqueues refreshes for every due dataset; the
// workflow id is stable per cadence so repeated installs do not stack
// duplicate schedules.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/carhart/plenario/internal/config"
	"github.com/carhart/plenario/internal/database"
	temporal_internal "github.com/carhart/plenario/internal/temporal"
)

var cronSpecs = map[database.Frequency]string{
	database.FrequencyHourly:  "0 * * * *",
	database.FrequencyDaily:   "0 0 * * *",
	database.FrequencyWeekly:  "0 0 * * 0",
	database.FrequencyMonthly: "0 0 1 * *",
	database.FrequencyYearly:  "0 0 1 1 *",
}

func main() {
	ctx := context.Background()
	cfg := config.Load()

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("failed to create Temporal client: %v", err)
	}
	defer c.Close()

	for _, freq := range database.Frequencies {
		opts := client.StartWorkflowOptions{
			ID:           fmt.Sprintf("frequency-update-%s", freq),
			TaskQueue:    cfg.TemporalTaskQueue,
			CronSchedule: cronSpecs[freq],
		}

		run, err := c.ExecuteWorkflow(ctx, opts, temporal_internal.FrequencyUpdateWorkflow,
			temporal_internal.FrequencyInput{Frequency: freq})
		if err != nil {
			if isAlreadyScheduled(err) {
				log.Printf("%s schedule already installed", freq)
				continue
			}
			log.Fatalf("failed to start %s schedule: %v", freq, err)
		}
		log.Printf("scheduled %s updates: workflow=%s cron=%q", freq, run.GetID(), cronSpecs[freq])
	}
}

// isAlreadyScheduled reports whether a schedule install failed only because
// the cron workflow for that cadence is already running.
func isAlreadyScheduled(err error) bool {
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	return errors.As(err, &already)
}
