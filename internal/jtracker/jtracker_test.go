package jtracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const diamond = `
workflow:
  name: wf
  version: "2.0"
  tasks:
    report:
      depends_on: [align_a, align_b]
    align_b:
      depends_on: [fetch]
      input:
        reference: grch38
    align_a:
      depends_on: [fetch]
    fetch: {}
`

func TestNew_OrdersTasksByDependencyThenName(t *testing.T) {
	jt, err := New(diamond)
	require.NoError(t, err)

	assert.Equal(t, "wf", jt.Name())
	assert.Equal(t, []string{"fetch", "align_a", "align_b", "report"}, jt.Tasks())
}

func TestNew_LegacyTopLevelTasks(t *testing.T) {
	jt, err := New("tasks:\n  b: {depends_on: [a]}\n  a: {}\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, jt.Tasks())
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		definition string
		wantErr    error
	}{
		{"not yaml", "workflow: [", ErrInvalidDefinition},
		{"empty", "", ErrInvalidDefinition},
		{"no name", "workflow:\n  tasks:\n    a: {}\n", ErrInvalidDefinition},
		{"no tasks", "workflow:\n  name: wf\n", ErrInvalidDefinition},
		{"unknown dependency", "workflow:\n  name: wf\n  tasks:\n    a: {depends_on: [zz]}\n", ErrUnknownDependency},
		{"cycle", "workflow:\n  name: wf\n  tasks:\n    a: {depends_on: [b]}\n    b: {depends_on: [a]}\n    c: {}\n", ErrDependencyCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.definition)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExecutionPlan(t *testing.T) {
	jt, err := New(diamond)
	require.NoError(t, err)

	job := map[string]any{"sample": "S1"}
	plan, err := jt.ExecutionPlan(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"name": "wf", "version": "2.0"}, plan["workflow"])
	assert.Equal(t, job, plan["job"])

	tasks := plan["tasks"].([]any)
	require.Len(t, tasks, 4)
	report := tasks[3].(map[string]any)
	assert.Equal(t, "report", report["task"])
	assert.Equal(t, []string{"align_a", "align_b"}, report["depends_on"])
	alignB := tasks[2].(map[string]any)
	assert.Equal(t, map[string]any{"reference": "grch38"}, alignB["input"])
}

func TestExecutionPlan_CanceledContext(t *testing.T) {
	jt, err := New(diamond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = jt.ExecutionPlan(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
