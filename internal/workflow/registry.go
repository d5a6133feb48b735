/*-------------------------------------------------------------------------
 *
 * registry.go
 *    Workflow definition registry
 *
 * Validates and stores workflow definitions. Validation rejects
 * duplicate stage ids, dependencies on unknown stages, dependency
 * cycles, and unresolvable stage types before a definition becomes
 * executable.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/registry.go
 *
 *-------------------------------------------------------------------------
 */

package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

/* DefinitionRegistry holds validated workflow definitions */
type DefinitionRegistry struct {
	mu          sync.RWMutex
	definitions map[string]*WorkflowDefinition
	handlers    *StageHandlerRegistry
	events      EventPublisher
}

/* NewDefinitionRegistry creates a registry bound to a handler registry */
func NewDefinitionRegistry(handlers *StageHandlerRegistry, events EventPublisher) *DefinitionRegistry {
	return &DefinitionRegistry{
		definitions: make(map[string]*WorkflowDefinition),
		handlers:    handlers,
		events:      events,
	}
}

/* Register validates and stores a workflow definition. Registering an
 * existing id replaces the definition; in-flight executions keep the
 * definition they started with. */
func (r *DefinitionRegistry) Register(ctx context.Context, def *WorkflowDefinition) error {
	if err := r.Validate(def); err != nil {
		return err
	}

	r.mu.Lock()
	r.definitions[def.ID] = def
	r.mu.Unlock()

	if r.events != nil {
		_ = r.events.Publish(ctx, EventWorkflowRegistered, "registry", map[string]interface{}{
			"workflow_id": def.ID,
			"name":        def.Name,
			"stage_count": len(def.Stages),
		})
	}
	return nil
}

/* Get returns a registered definition or ErrDefinitionNotFound */
func (r *DefinitionRegistry) Get(workflowID string) (*WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow lookup failed: workflow_id='%s', error=%w", workflowID, ErrDefinitionNotFound)
	}
	return def, nil
}

/* List returns registered workflow ids in sorted order */
func (r *DefinitionRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.definitions))
	for id := range r.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

/* Validate checks a definition for structural correctness */
func (r *DefinitionRegistry) Validate(def *WorkflowDefinition) error {
	if def == nil {
		return &ValidationError{Field: "definition", Reason: "definition is nil"}
	}
	if def.ID == "" {
		return &ValidationError{Field: "id", Reason: "workflow id is required"}
	}
	if def.Name == "" {
		return &ValidationError{Field: "name", Reason: "workflow name is required"}
	}
	if len(def.Stages) == 0 {
		return &ValidationError{Field: "stages", Reason: "workflow requires at least one stage"}
	}

	stageIDs := make(map[string]bool, len(def.Stages))
	for i := range def.Stages {
		stage := &def.Stages[i]
		if stage.ID == "" {
			return &ValidationError{Field: fmt.Sprintf("stages[%d].id", i), Reason: "stage id is required"}
		}
		if stageIDs[stage.ID] {
			return &ValidationError{Field: fmt.Sprintf("stages[%d].id", i), Reason: fmt.Sprintf("duplicate stage id '%s'", stage.ID)}
		}
		stageIDs[stage.ID] = true

		if err := r.validateStage(stage, fmt.Sprintf("stages[%d]", i)); err != nil {
			return err
		}
	}

	for i := range def.Stages {
		for _, dep := range def.Stages[i].DependsOn {
			if dep == def.Stages[i].ID {
				return &ValidationError{Field: fmt.Sprintf("stages[%d].depends_on", i), Reason: fmt.Sprintf("stage '%s' depends on itself", dep)}
			}
			if !stageIDs[dep] {
				return &ValidationError{Field: fmt.Sprintf("stages[%d].depends_on", i), Reason: fmt.Sprintf("unknown dependency '%s'", dep)}
			}
		}
	}

	if cycle := findCycle(def.Stages); len(cycle) > 0 {
		return &ValidationError{Field: "stages", Reason: fmt.Sprintf("dependency cycle detected involving stages %v", cycle)}
	}

	return nil
}

func (r *DefinitionRegistry) validateStage(stage *WorkflowStage, field string) error {
	if stage.Type == "" {
		return &ValidationError{Field: field + ".type", Reason: "stage type is required"}
	}
	if r.handlers != nil && !r.handlers.Supports(stage.Type) {
		return &ValidationError{Field: field + ".type", Reason: fmt.Sprintf("no handler registered for stage type '%s'", stage.Type)}
	}
	if stage.Retry.MaxAttempts < 0 {
		return &ValidationError{Field: field + ".retry.max_attempts", Reason: "max_attempts must not be negative"}
	}
	if stage.Retry.Backoff != "" {
		switch stage.Retry.Backoff {
		case BackoffLinear, BackoffExponential, BackoffFixed:
		default:
			return &ValidationError{Field: field + ".retry.backoff", Reason: fmt.Sprintf("unknown backoff strategy '%s'", stage.Retry.Backoff)}
		}
	}
	if stage.Fallback != nil {
		if stage.Fallback.ID == "" {
			return &ValidationError{Field: field + ".fallback.id", Reason: "fallback stage id is required"}
		}
		if len(stage.Fallback.DependsOn) > 0 {
			return &ValidationError{Field: field + ".fallback.depends_on", Reason: "fallback stages must not declare dependencies"}
		}
		if err := r.validateStage(stage.Fallback, field+".fallback"); err != nil {
			return err
		}
	}
	return nil
}

const (
	colorWhite = iota /* unvisited */
	colorGray         /* on the current DFS path */
	colorBlack        /* fully explored */
)

/* findCycle runs an iterative depth-first search over the dependency
 * graph. A gray stage reached again while still on the stack closes a
 * cycle; the stack segment from its first occurrence holds the
 * participants, returned in sorted order. */
func findCycle(stages []WorkflowStage) []string {
	deps := make(map[string][]string, len(stages))
	for i := range stages {
		deps[stages[i].ID] = stages[i].DependsOn
	}

	type frame struct {
		id   string
		next int
	}

	color := make(map[string]int, len(stages))
	for i := range stages {
		if color[stages[i].ID] != colorWhite {
			continue
		}
		stack := []frame{{id: stages[i].ID}}
		color[stages[i].ID] = colorGray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			edges := deps[top.id]
			if top.next < len(edges) {
				dep := edges[top.next]
				top.next++
				switch color[dep] {
				case colorWhite:
					color[dep] = colorGray
					stack = append(stack, frame{id: dep})
				case colorGray:
					start := 0
					for j := range stack {
						if stack[j].id == dep {
							start = j
							break
						}
					}
					cycle := make([]string, 0, len(stack)-start)
					for _, f := range stack[start:] {
						cycle = append(cycle, f.id)
					}
					sort.Strings(cycle)
					return cycle
				}
				continue
			}
			color[top.id] = colorBlack
			stack = stack[:len(stack)-1]
		}
	}
	return nil
}
