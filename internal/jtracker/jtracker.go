// Package jtracker parses JTracker workflow definitions and binds job
// documents to them as execution plans.
package jtracker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidDefinition is returned when a definition can't be parsed.
	ErrInvalidDefinition = errors.New("invalid JTracker definition")
	// ErrDependencyCycle is returned when tasks depend on each other in a loop.
	ErrDependencyCycle = errors.New("task dependency cycle")
	// ErrUnknownDependency is returned when a task depends on an undeclared task.
	ErrUnknownDependency = errors.New("unknown task dependency")
)

type task struct {
	DependsOn []string       `yaml:"depends_on"`
	Input     map[string]any `yaml:"input"`
}

type definition struct {
	Workflow *struct {
		Name    string          `yaml:"name"`
		Version string          `yaml:"version"`
		Tasks   map[string]task `yaml:"tasks"`
	} `yaml:"workflow"`
	// definitions written before the workflow section declare tasks at the top
	Tasks map[string]task `yaml:"tasks"`
}

// JTracker is a parsed workflow definition.
type JTracker struct {
	name    string
	version string
	tasks   map[string]task
	order   []string
}

// New parses definition. Tasks are ordered once, so a definition whose
// dependencies can't be satisfied is rejected here.
func New(definitionText string) (*JTracker, error) {
	var def definition
	if err := yaml.Unmarshal([]byte(definitionText), &def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	jt := &JTracker{}
	switch {
	case def.Workflow != nil:
		if def.Workflow.Name == "" {
			return nil, fmt.Errorf("%w: workflow.name is required", ErrInvalidDefinition)
		}
		jt.name = def.Workflow.Name
		jt.version = def.Workflow.Version
		jt.tasks = def.Workflow.Tasks
		if len(jt.tasks) == 0 {
			jt.tasks = def.Tasks
		}
	case len(def.Tasks) > 0:
		jt.tasks = def.Tasks
	default:
		return nil, fmt.Errorf("%w: missing workflow section", ErrInvalidDefinition)
	}
	if len(jt.tasks) == 0 {
		return nil, fmt.Errorf("%w: no tasks declared", ErrInvalidDefinition)
	}

	order, err := topoSort(jt.tasks)
	if err != nil {
		return nil, err
	}
	jt.order = order
	return jt, nil
}

// Name returns the declared workflow name.
func (j *JTracker) Name() string { return j.name }

// Tasks returns the task names in execution order.
func (j *JTracker) Tasks() []string {
	return append([]string(nil), j.order...)
}

// ExecutionPlan binds job to the workflow: every task in dependency order
// with its declared input.
func (j *JTracker) ExecutionPlan(ctx context.Context, job map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if job == nil {
		job = map[string]any{}
	}

	tasks := make([]any, 0, len(j.order))
	for _, name := range j.order {
		t := j.tasks[name]
		deps := append([]string{}, t.DependsOn...)
		sort.Strings(deps)
		input := t.Input
		if input == nil {
			input = map[string]any{}
		}
		tasks = append(tasks, map[string]any{
			"task":       name,
			"depends_on": deps,
			"input":      input,
		})
	}

	return map[string]any{
		"workflow": map[string]any{"name": j.name, "version": j.version},
		"job":      job,
		"tasks":    tasks,
	}, nil
}

// topoSort orders tasks with Kahn's algorithm, picking the smallest ready
// name first.
func topoSort(tasks map[string]task) ([]string, error) {
	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for name, t := range tasks {
		indegree[name] += 0
		seen := map[string]bool{}
		for _, dep := range t.DependsOn {
			if _, ok := tasks[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, name, dep)
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(tasks))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, d := range dependents[next] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) != len(tasks) {
		var stuck []string
		for name, n := range indegree {
			if n > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: %v", ErrDependencyCycle, stuck)
	}
	return order, nil
}
