/*-------------------------------------------------------------------------
 *
 * scheduler_test.go
 *    Tests for the wave-based dependency scheduler
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/scheduler_test.go
 *
 *-------------------------------------------------------------------------
 */

package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

/* testHandler dispatches execution to a configurable function */
type testHandler struct {
	stageType StageType
	fn        func(ctx context.Context, sc *StageContext) (map[string]interface{}, error)
}

func (h *testHandler) Type() StageType { return h.stageType }

func (h *testHandler) Execute(ctx context.Context, sc *StageContext) (map[string]interface{}, error) {
	if h.fn == nil {
		return map[string]interface{}{}, nil
	}
	return h.fn(ctx, sc)
}

/* captureEvents records published events for assertions */
type captureEvents struct {
	mu     sync.Mutex
	events []string
}

func newCaptureEvents() *captureEvents {
	return &captureEvents{}
}

func (c *captureEvents) Publish(_ context.Context, eventType, _ string, _ map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, eventType)
	return nil
}

func (c *captureEvents) count(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func runScheduler(t *testing.T, def *WorkflowDefinition, handlers *StageHandlerRegistry, events EventPublisher) (*WorkflowExecution, error) {
	t.Helper()
	scheduler := NewDependencyScheduler(handlers, NewMemoryExecutionStore(), events, 8)
	execution := NewExecution(def, map[string]interface{}{"topic": "databases"})
	err := scheduler.Run(context.Background(), def, execution, &sync.Mutex{})
	return execution, err
}

func TestSchedulerRunsStagesInDependencyOrder(t *testing.T) {
	var mu sync.Mutex
	order := make([]string, 0, 4)
	record := func(_ context.Context, sc *StageContext) (map[string]interface{}, error) {
		mu.Lock()
		order = append(order, sc.Stage.ID)
		mu.Unlock()
		return map[string]interface{}{"from": sc.Stage.ID}, nil
	}

	handlers := NewStageHandlerRegistry()
	handlers.Register(&testHandler{stageType: StageTypeGeneration, fn: record})
	handlers.Register(&testHandler{stageType: StageTypeQualityCheck, fn: record})
	handlers.Register(&testHandler{stageType: StageTypeDeployment, fn: record})

	def := &WorkflowDefinition{
		ID:   "wf",
		Name: "WF",
		Stages: []WorkflowStage{
			{ID: "generate", Type: StageTypeGeneration},
			{ID: "check-a", Type: StageTypeQualityCheck, DependsOn: []string{"generate"}},
			{ID: "check-b", Type: StageTypeQualityCheck, DependsOn: []string{"generate"}},
			{ID: "deploy", Type: StageTypeDeployment, DependsOn: []string{"check-a", "check-b"}},
		},
	}

	execution, err := runScheduler(t, def, handlers, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if execution.Status != ExecutionCompleted {
		t.Fatalf("Status = %s, want completed", execution.Status)
	}
	if len(order) != 4 {
		t.Fatalf("executed %d stages, want 4", len(order))
	}
	if order[0] != "generate" {
		t.Errorf("first stage = %s, want generate", order[0])
	}
	if order[3] != "deploy" {
		t.Errorf("last stage = %s, want deploy", order[3])
	}
	if execution.Metrics.CompletedStages != 4 {
		t.Errorf("CompletedStages = %d, want 4", execution.Metrics.CompletedStages)
	}
}

func TestSchedulerRunsIndependentStagesConcurrently(t *testing.T) {
	/* Each check stage waits for the other to start; a serializing
	 * scheduler would never let both proceed */
	aStarted := make(chan struct{})
	bStarted := make(chan struct{})
	rendezvous := func(started chan struct{}, other chan struct{}) func(context.Context, *StageContext) (map[string]interface{}, error) {
		var once sync.Once
		return func(ctx context.Context, _ *StageContext) (map[string]interface{}, error) {
			once.Do(func() { close(started) })
			select {
			case <-other:
				return map[string]interface{}{}, nil
			case <-time.After(2 * time.Second):
				return nil, errors.New("peer stage never started")
			}
		}
	}

	handlers := NewStageHandlerRegistry()
	handlers.Register(&testHandler{stageType: StageTypeGeneration})
	handlers.Register(&checkPairHandler{
		a: rendezvous(aStarted, bStarted),
		b: rendezvous(bStarted, aStarted),
	})

	def := &WorkflowDefinition{
		ID:   "parallel",
		Name: "Parallel",
		Stages: []WorkflowStage{
			{ID: "generate", Type: StageTypeGeneration},
			{ID: "check-a", Type: StageTypeQualityCheck, DependsOn: []string{"generate"}},
			{ID: "check-b", Type: StageTypeQualityCheck, DependsOn: []string{"generate"}},
		},
	}

	execution, err := runScheduler(t, def, handlers, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if execution.Status != ExecutionCompleted {
		t.Fatalf("Status = %s, want completed", execution.Status)
	}
}

/* checkPairHandler routes the two check stages to separate functions */
type checkPairHandler struct {
	a, b func(ctx context.Context, sc *StageContext) (map[string]interface{}, error)
}

func (h *checkPairHandler) Type() StageType { return StageTypeQualityCheck }

func (h *checkPairHandler) Execute(ctx context.Context, sc *StageContext) (map[string]interface{}, error) {
	if sc.Stage.ID == "check-a" {
		return h.a(ctx, sc)
	}
	return h.b(ctx, sc)
}

func TestSchedulerMergesDependencyOutputs(t *testing.T) {
	handlers := NewStageHandlerRegistry()
	handlers.Register(&testHandler{stageType: StageTypeGeneration, fn: func(_ context.Context, sc *StageContext) (map[string]interface{}, error) {
		return map[string]interface{}{"content": "draft text"}, nil
	}})

	var captured map[string]interface{}
	handlers.Register(&testHandler{stageType: StageTypeQualityCheck, fn: func(_ context.Context, sc *StageContext) (map[string]interface{}, error) {
		captured = sc.Input
		return map[string]interface{}{}, nil
	}})

	def := &WorkflowDefinition{
		ID:   "wf",
		Name: "WF",
		Stages: []WorkflowStage{
			{ID: "generate", Type: StageTypeGeneration},
			{ID: "check", Type: StageTypeQualityCheck, DependsOn: []string{"generate"}},
		},
	}

	if _, err := runScheduler(t, def, handlers, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if captured["topic"] != "databases" {
		t.Error("workflow input not propagated to stage input")
	}
	if captured["content"] != "draft text" {
		t.Error("dependency output not flat-merged into stage input")
	}
	if depOutput, ok := captured["generate"].(map[string]interface{}); !ok || depOutput["content"] != "draft text" {
		t.Error("dependency output not keyed by stage id")
	}
}

func TestSchedulerRetriesUntilSuccess(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	handlers := NewStageHandlerRegistry()
	handlers.Register(&testHandler{stageType: StageTypeGeneration, fn: func(_ context.Context, sc *StageContext) (map[string]interface{}, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			return nil, NewStageError("generation_failed", "transient", nil)
		}
		return map[string]interface{}{"content": "ok"}, nil
	}})

	events := newCaptureEvents()
	def := &WorkflowDefinition{
		ID:   "wf",
		Name: "WF",
		Stages: []WorkflowStage{
			{ID: "generate", Type: StageTypeGeneration, Retry: RetryPolicy{
				MaxAttempts: 5,
				Backoff:     BackoffFixed,
				BaseDelay:   time.Millisecond,
			}},
		},
	}

	execution, err := runScheduler(t, def, handlers, events)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	se := execution.Stage("generate")
	if se.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", se.Attempts)
	}
	if execution.Metrics.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", execution.Metrics.RetryCount)
	}
	if events.count(EventStageRetrying) != 2 {
		t.Errorf("retry events = %d, want 2", events.count(EventStageRetrying))
	}
}

func TestSchedulerStopsRetryingPermanentFailure(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	handlers := NewStageHandlerRegistry()
	handlers.Register(&testHandler{stageType: StageTypeCompliance, fn: func(_ context.Context, sc *StageContext) (map[string]interface{}, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, NewPermanentStageError("compliance_violation", "blocked term", nil)
	}})

	def := &WorkflowDefinition{
		ID:   "wf",
		Name: "WF",
		Stages: []WorkflowStage{
			{ID: "comply", Type: StageTypeCompliance, Retry: RetryPolicy{
				MaxAttempts: 5,
				Backoff:     BackoffFixed,
				BaseDelay:   time.Millisecond,
			}},
		},
	}

	execution, err := runScheduler(t, def, handlers, nil)
	if err == nil {
		t.Fatal("Run() succeeded, want permanent failure")
	}
	if calls != 1 {
		t.Errorf("handler called %d times, want 1 for a permanent error", calls)
	}
	if execution.Status != ExecutionFailed {
		t.Errorf("Status = %s, want failed", execution.Status)
	}
	if execution.Error == nil || execution.Error.Code != "compliance_violation" {
		t.Errorf("Error = %+v, want compliance_violation", execution.Error)
	}
}

func TestSchedulerFallbackRunsOnceAfterRetriesExhaust(t *testing.T) {
	var mu sync.Mutex
	primaryCalls, fallbackCalls := 0, 0
	handlers := NewStageHandlerRegistry()
	handlers.Register(&testHandler{stageType: StageTypeGeneration, fn: func(_ context.Context, sc *StageContext) (map[string]interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		if sc.Stage.ID == "generate" {
			primaryCalls++
			return nil, NewStageError("generation_failed", "provider down", nil)
		}
		fallbackCalls++
		return map[string]interface{}{"content": "fallback text"}, nil
	}})

	def := &WorkflowDefinition{
		ID:   "wf",
		Name: "WF",
		Stages: []WorkflowStage{
			{
				ID:   "generate",
				Type: StageTypeGeneration,
				Retry: RetryPolicy{
					MaxAttempts: 2,
					Backoff:     BackoffFixed,
					BaseDelay:   time.Millisecond,
				},
				Fallback: &WorkflowStage{ID: "generate-fallback", Type: StageTypeGeneration},
			},
		},
	}

	execution, err := runScheduler(t, def, handlers, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if primaryCalls != 2 {
		t.Errorf("primary calls = %d, want 2", primaryCalls)
	}
	if fallbackCalls != 1 {
		t.Errorf("fallback calls = %d, want exactly 1", fallbackCalls)
	}

	se := execution.Stage("generate")
	if !se.UsedFallback {
		t.Error("UsedFallback not set")
	}
	if se.Status != StageCompleted {
		t.Errorf("stage status = %s, want completed", se.Status)
	}
	if se.Output["content"] != "fallback text" {
		t.Errorf("stage output = %+v, want fallback output", se.Output)
	}
}

func TestSchedulerFallbackFailurePropagates(t *testing.T) {
	handlers := NewStageHandlerRegistry()
	handlers.Register(&testHandler{stageType: StageTypeGeneration, fn: func(_ context.Context, sc *StageContext) (map[string]interface{}, error) {
		return nil, NewStageError("generation_failed", "down", nil)
	}})

	def := &WorkflowDefinition{
		ID:   "wf",
		Name: "WF",
		Stages: []WorkflowStage{
			{
				ID:       "generate",
				Type:     StageTypeGeneration,
				Retry:    RetryPolicy{MaxAttempts: 1, Backoff: BackoffFixed, BaseDelay: time.Millisecond},
				Fallback: &WorkflowStage{ID: "generate-fallback", Type: StageTypeGeneration},
			},
		},
	}

	execution, err := runScheduler(t, def, handlers, nil)
	if err == nil {
		t.Fatal("Run() succeeded, want failure when fallback also fails")
	}
	se := execution.Stage("generate")
	if !se.UsedFallback {
		t.Error("UsedFallback not set on fallback failure")
	}
	if se.Status != StageFailed {
		t.Errorf("stage status = %s, want failed", se.Status)
	}
}

func TestSchedulerSkipsDownstreamOnFailure(t *testing.T) {
	handlers := NewStageHandlerRegistry()
	handlers.Register(&testHandler{stageType: StageTypeGeneration, fn: func(_ context.Context, sc *StageContext) (map[string]interface{}, error) {
		return nil, NewPermanentStageError("generation_config_invalid", "no prompt", nil)
	}})
	handlers.Register(&testHandler{stageType: StageTypeQualityCheck})
	handlers.Register(&testHandler{stageType: StageTypeDeployment})

	def := &WorkflowDefinition{
		ID:   "wf",
		Name: "WF",
		Stages: []WorkflowStage{
			{ID: "generate", Type: StageTypeGeneration},
			{ID: "check", Type: StageTypeQualityCheck, DependsOn: []string{"generate"}},
			{ID: "deploy", Type: StageTypeDeployment, DependsOn: []string{"check"}},
		},
	}

	execution, err := runScheduler(t, def, handlers, nil)
	if err == nil {
		t.Fatal("Run() succeeded, want failure")
	}
	if execution.Status != ExecutionFailed {
		t.Errorf("Status = %s, want failed", execution.Status)
	}
	for _, stageID := range []string{"check", "deploy"} {
		if se := execution.Stage(stageID); se.Status != StageSkipped {
			t.Errorf("stage %s status = %s, want skipped", stageID, se.Status)
		}
	}
	if execution.Metrics.SkippedStages != 2 {
		t.Errorf("SkippedStages = %d, want 2", execution.Metrics.SkippedStages)
	}
}

func TestSchedulerDetectsDeadlock(t *testing.T) {
	handlers := NewStageHandlerRegistry()
	handlers.Register(&testHandler{stageType: StageTypeGeneration})

	/* Bypasses registration-time validation to exercise the runtime guard */
	def := &WorkflowDefinition{
		ID:   "wf",
		Name: "WF",
		Stages: []WorkflowStage{
			{ID: "a", Type: StageTypeGeneration, DependsOn: []string{"b"}},
			{ID: "b", Type: StageTypeGeneration, DependsOn: []string{"a"}},
		},
	}

	execution, err := runScheduler(t, def, handlers, nil)
	var de *DeadlockError
	if !errors.As(err, &de) {
		t.Fatalf("Run() error = %v, want DeadlockError", err)
	}
	if len(de.Remaining) != 2 {
		t.Errorf("Remaining = %v, want both stages", de.Remaining)
	}
	if execution.Status != ExecutionFailed {
		t.Errorf("Status = %s, want failed", execution.Status)
	}
	if execution.Error == nil || execution.Error.Code != "deadlock" {
		t.Errorf("Error = %+v, want deadlock code", execution.Error)
	}
}

func TestSchedulerStageTimeout(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	handlers := NewStageHandlerRegistry()
	handlers.Register(&testHandler{stageType: StageTypeGeneration, fn: func(ctx context.Context, sc *StageContext) (map[string]interface{}, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return map[string]interface{}{}, nil
		}
	}})

	def := &WorkflowDefinition{
		ID:   "wf",
		Name: "WF",
		Stages: []WorkflowStage{
			{
				ID:      "generate",
				Type:    StageTypeGeneration,
				Timeout: 10 * time.Millisecond,
				Retry:   RetryPolicy{MaxAttempts: 2, Backoff: BackoffFixed, BaseDelay: time.Millisecond},
			},
		},
	}

	execution, err := runScheduler(t, def, handlers, nil)
	if err == nil {
		t.Fatal("Run() succeeded, want timeout failure")
	}
	if calls != 2 {
		t.Errorf("handler called %d times, want 2 since timeouts are retryable", calls)
	}
	if execution.Error == nil || execution.Error.Code != "timeout" {
		t.Errorf("Error = %+v, want timeout code", execution.Error)
	}
}

func TestSchedulerCollectsTerminalOutputs(t *testing.T) {
	handlers := NewStageHandlerRegistry()
	handlers.Register(&testHandler{stageType: StageTypeGeneration, fn: func(_ context.Context, sc *StageContext) (map[string]interface{}, error) {
		return map[string]interface{}{"content": "draft"}, nil
	}})
	handlers.Register(&testHandler{stageType: StageTypeDeployment, fn: func(_ context.Context, sc *StageContext) (map[string]interface{}, error) {
		return map[string]interface{}{"deployed": true}, nil
	}})

	def := &WorkflowDefinition{
		ID:   "wf",
		Name: "WF",
		Stages: []WorkflowStage{
			{ID: "generate", Type: StageTypeGeneration},
			{ID: "deploy", Type: StageTypeDeployment, DependsOn: []string{"generate"}},
		},
	}

	execution, err := runScheduler(t, def, handlers, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := execution.Output["deploy"]; !ok {
		t.Error("terminal stage output missing from execution output")
	}
	if _, ok := execution.Output["generate"]; ok {
		t.Error("non-terminal stage output should not appear in execution output")
	}
}

func TestSchedulerAccumulatesQualityAndCost(t *testing.T) {
	handlers := NewStageHandlerRegistry()
	handlers.Register(&testHandler{stageType: StageTypeGeneration, fn: func(_ context.Context, sc *StageContext) (map[string]interface{}, error) {
		return map[string]interface{}{"content": "draft", "cost": 0.25}, nil
	}})
	handlers.Register(&testHandler{stageType: StageTypeQualityCheck, fn: func(_ context.Context, sc *StageContext) (map[string]interface{}, error) {
		return map[string]interface{}{"overall_score": 87.5}, nil
	}})

	def := &WorkflowDefinition{
		ID:   "wf",
		Name: "WF",
		Stages: []WorkflowStage{
			{ID: "generate", Type: StageTypeGeneration},
			{ID: "check", Type: StageTypeQualityCheck, DependsOn: []string{"generate"}},
		},
	}

	execution, err := runScheduler(t, def, handlers, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if execution.Metrics.TotalCost != 0.25 {
		t.Errorf("TotalCost = %.2f, want 0.25", execution.Metrics.TotalCost)
	}
	if execution.Metrics.QualityScores["check"] != 87.5 {
		t.Errorf("QualityScores = %+v, want check=87.5", execution.Metrics.QualityScores)
	}
}
