/*-------------------------------------------------------------------------
 *
 * registry_test.go
 *    Tests for workflow definition validation and registration
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/registry_test.go
 *
 *-------------------------------------------------------------------------
 */

package workflow

import (
	"context"
	"errors"
	"testing"
)

func newTestRegistry() *DefinitionRegistry {
	return NewDefinitionRegistry(nil, nil)
}

func validDefinition() *WorkflowDefinition {
	return &WorkflowDefinition{
		ID:   "blog-pipeline",
		Name: "Blog Pipeline",
		Stages: []WorkflowStage{
			{ID: "generate", Name: "Generate", Type: StageTypeGeneration},
			{ID: "check", Name: "Check", Type: StageTypeQualityCheck, DependsOn: []string{"generate"}},
			{ID: "deploy", Name: "Deploy", Type: StageTypeDeployment, DependsOn: []string{"check"}},
		},
	}
}

func TestValidateDefinition(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(def *WorkflowDefinition)
		wantErr bool
	}{
		{"valid definition", func(def *WorkflowDefinition) {}, false},
		{"missing id", func(def *WorkflowDefinition) { def.ID = "" }, true},
		{"missing name", func(def *WorkflowDefinition) { def.Name = "" }, true},
		{"no stages", func(def *WorkflowDefinition) { def.Stages = nil }, true},
		{"missing stage id", func(def *WorkflowDefinition) { def.Stages[0].ID = "" }, true},
		{"duplicate stage id", func(def *WorkflowDefinition) { def.Stages[1].ID = "generate" }, true},
		{"missing stage type", func(def *WorkflowDefinition) { def.Stages[0].Type = "" }, true},
		{"self dependency", func(def *WorkflowDefinition) { def.Stages[0].DependsOn = []string{"generate"} }, true},
		{"unknown dependency", func(def *WorkflowDefinition) { def.Stages[1].DependsOn = []string{"missing"} }, true},
		{"negative max attempts", func(def *WorkflowDefinition) { def.Stages[0].Retry.MaxAttempts = -1 }, true},
		{"unknown backoff strategy", func(def *WorkflowDefinition) { def.Stages[0].Retry.Backoff = "random" }, true},
		{"valid backoff strategy", func(def *WorkflowDefinition) { def.Stages[0].Retry.Backoff = BackoffExponential }, false},
		{"fallback without id", func(def *WorkflowDefinition) {
			def.Stages[0].Fallback = &WorkflowStage{Type: StageTypeGeneration}
		}, true},
		{"fallback with dependencies", func(def *WorkflowDefinition) {
			def.Stages[0].Fallback = &WorkflowStage{ID: "fb", Type: StageTypeGeneration, DependsOn: []string{"check"}}
		}, true},
		{"valid fallback", func(def *WorkflowDefinition) {
			def.Stages[0].Fallback = &WorkflowStage{ID: "fb", Type: StageTypeGeneration}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)
			err := newTestRegistry().Validate(def)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("Validate() error type = %T, want *ValidationError", err)
				}
			}
		})
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	def := &WorkflowDefinition{
		ID:   "cyclic",
		Name: "Cyclic",
		Stages: []WorkflowStage{
			{ID: "a", Name: "A", Type: StageTypeGeneration, DependsOn: []string{"c"}},
			{ID: "b", Name: "B", Type: StageTypeGeneration, DependsOn: []string{"a"}},
			{ID: "c", Name: "C", Type: StageTypeGeneration, DependsOn: []string{"b"}},
		},
	}
	if err := newTestRegistry().Validate(def); err == nil {
		t.Fatal("Validate() accepted a cyclic definition")
	}
}

func TestValidateRejectsUnsupportedType(t *testing.T) {
	handlers := NewStageHandlerRegistry()
	handlers.Register(&testHandler{stageType: StageTypeGeneration})

	registry := NewDefinitionRegistry(handlers, nil)
	def := &WorkflowDefinition{
		ID:   "wf",
		Name: "WF",
		Stages: []WorkflowStage{
			{ID: "review", Name: "Review", Type: StageTypeHumanReview},
		},
	}
	if err := registry.Validate(def); err == nil {
		t.Fatal("Validate() accepted a stage type with no registered handler")
	}
}

func TestRegisterAndGet(t *testing.T) {
	registry := newTestRegistry()
	def := validDefinition()

	if err := registry.Register(context.Background(), def); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := registry.Get(def.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != def.Name {
		t.Errorf("Get() name = %s, want %s", got.Name, def.Name)
	}

	if _, err := registry.Get("missing"); !errors.Is(err, ErrDefinitionNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrDefinitionNotFound", err)
	}
}

func TestRegisterReplacesExisting(t *testing.T) {
	registry := newTestRegistry()
	def := validDefinition()
	if err := registry.Register(context.Background(), def); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	updated := validDefinition()
	updated.Name = "Blog Pipeline v2"
	if err := registry.Register(context.Background(), updated); err != nil {
		t.Fatalf("Register() replace error = %v", err)
	}

	got, err := registry.Get(def.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "Blog Pipeline v2" {
		t.Errorf("Get() name = %s, want replaced definition", got.Name)
	}
}

func TestListReturnsSortedIDs(t *testing.T) {
	registry := newTestRegistry()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		def := validDefinition()
		def.ID = id
		if err := registry.Register(context.Background(), def); err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
	}

	ids := registry.List()
	want := []string{"alpha", "mid", "zeta"}
	if len(ids) != len(want) {
		t.Fatalf("List() length = %d, want %d", len(ids), len(want))
	}
	for i, id := range want {
		if ids[i] != id {
			t.Errorf("List()[%d] = %s, want %s", i, ids[i], id)
		}
	}
}

func TestFindCycleReportsParticipants(t *testing.T) {
	stages := []WorkflowStage{
		{ID: "root"},
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "leaf", DependsOn: []string{"root"}},
	}
	cycle := findCycle(stages)
	if len(cycle) != 2 {
		t.Fatalf("findCycle() = %v, want the two cycle participants", cycle)
	}
	if cycle[0] != "a" || cycle[1] != "b" {
		t.Errorf("findCycle() = %v, want [a b]", cycle)
	}
}

func TestFindCycleDiamondIsAcyclic(t *testing.T) {
	/* converging paths revisit fully explored stages, which must not
	 * read as a cycle */
	stages := []WorkflowStage{
		{ID: "top"},
		{ID: "left", DependsOn: []string{"top"}},
		{ID: "right", DependsOn: []string{"top"}},
		{ID: "bottom", DependsOn: []string{"left", "right"}},
	}
	if cycle := findCycle(stages); cycle != nil {
		t.Errorf("findCycle() = %v, want nil for a diamond", cycle)
	}
}

func TestFindCycleThreeStageLoop(t *testing.T) {
	stages := []WorkflowStage{
		{ID: "entry"},
		{ID: "x", DependsOn: []string{"entry", "z"}},
		{ID: "y", DependsOn: []string{"x"}},
		{ID: "z", DependsOn: []string{"y"}},
	}
	cycle := findCycle(stages)
	if len(cycle) != 3 {
		t.Fatalf("findCycle() = %v, want the three cycle participants", cycle)
	}
	want := []string{"x", "y", "z"}
	for i, id := range want {
		if cycle[i] != id {
			t.Errorf("findCycle()[%d] = %s, want %s", i, cycle[i], id)
		}
	}
}
