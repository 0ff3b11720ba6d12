package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
)

func TestIsAlreadyScheduled(t *testing.T) {
	already := serviceerror.NewWorkflowExecutionAlreadyStarted(
		"Workflow execution already started", "request-id", "run-id")

	require.True(t, isAlreadyScheduled(already))
	require.True(t, isAlreadyScheduled(fmt.Errorf("start failed: %w", already)))
	require.False(t, isAlreadyScheduled(errors.New("connection refused")))
	require.False(t, isAlreadyScheduled(nil))
}
