/*-------------------------------------------------------------------------
 *
 * orchestrator_test.go
 *    End-to-end tests for the workflow orchestrator
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/orchestrator_test.go
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

	"github.com/google/uuid"
)

/* stubProvider returns fixed content for generation stages */
type stubProvider struct {
	content string
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(_ context.Context, request *GenerationRequest) (*GenerationResult, error) {
	return &GenerationResult{
		Content:    p.content,
		Model:      request.Model,
		TokensUsed: 128,
		Cost:       0.01,
	}, nil
}

/* stubSender records deployment notifications */
type stubSender struct {
	mu    sync.Mutex
	sends []string
}

func (s *stubSender) Send(_ context.Context, channel string, _ map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, channel)
	return nil
}

func (s *stubSender) channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sends...)
}

func newTestOrchestrator(events EventPublisher) (*Orchestrator, *stubSender) {
	handlers := NewStageHandlerRegistry()
	orchestrator := NewOrchestrator(handlers, nil, events, OrchestratorConfig{
		MaxConcurrentStages: 8,
	})

	sender := &stubSender{}
	provider := &stubProvider{content: "PostgreSQL index maintenance requires periodic VACUUM runs to reclaim dead tuples and keep query plans healthy."}

	handlers.Register(NewGenerationHandler(provider, nil, nil, time.Minute))
	handlers.Register(NewQualityCheckHandler(NewQualityGateEvaluator(), events))
	handlers.Register(NewHumanReviewHandler(orchestrator.Reviews(), events, time.Minute))
	handlers.Register(NewComplianceHandler())
	handlers.Register(NewApprovalHandler(orchestrator.Approvals(), events))
	handlers.Register(NewDeploymentHandler(sender))

	return orchestrator, sender
}

func contentPipeline() *WorkflowDefinition {
	return &WorkflowDefinition{
		ID:   "content-pipeline",
		Name: "Content Pipeline",
		Stages: []WorkflowStage{
			{
				ID:   "generate",
				Type: StageTypeGeneration,
				Config: map[string]interface{}{
					"prompt": "Write about index maintenance",
					"model":  "standard",
				},
			},
			{
				ID:        "check",
				Type:      StageTypeQualityCheck,
				DependsOn: []string{"generate"},
				Config: map[string]interface{}{
					"quality_gate": map[string]interface{}{
						"threshold": 50.0,
						"mandatory": true,
						"criteria": []interface{}{
							map[string]interface{}{
								"name":      "length",
								"weight":    1.0,
								"validator": "min_length",
								"threshold": 50.0,
								"config":    map[string]interface{}{"min_length": 50.0},
							},
						},
					},
				},
			},
			{
				ID:        "review",
				Type:      StageTypeHumanReview,
				DependsOn: []string{"check"},
			},
			{
				ID:        "approve",
				Type:      StageTypeApproval,
				DependsOn: []string{"review"},
				Config: map[string]interface{}{
					"approval": map[string]interface{}{
						"required_approvals": 1.0,
						"timeout":            "1m",
						"approvers": []interface{}{
							map[string]interface{}{"name": "lead", "weight": 1.0},
						},
					},
				},
			},
			{
				ID:        "deploy",
				Type:      StageTypeDeployment,
				DependsOn: []string{"approve"},
				Config: map[string]interface{}{
					"channels": []interface{}{"blog", "newsletter"},
				},
			},
		},
	}
}

func waitTerminal(t *testing.T, orchestrator *Orchestrator, executionID uuid.UUID) *WorkflowExecution {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		execution, err := orchestrator.GetExecutionStatus(context.Background(), executionID)
		if err == nil && execution.Status.Terminal() {
			return execution
		}
		select {
		case <-deadline:
			t.Fatalf("execution %s never reached a terminal state", executionID)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestOrchestratorFullPipeline(t *testing.T) {
	events := newCaptureEvents()
	orchestrator, sender := newTestOrchestrator(events)

	def := contentPipeline()
	if err := orchestrator.RegisterWorkflow(context.Background(), def); err != nil {
		t.Fatalf("RegisterWorkflow() error = %v", err)
	}

	executionID, err := orchestrator.StartWorkflow(context.Background(), def.ID, map[string]interface{}{"topic": "indexes"})
	if err != nil {
		t.Fatalf("StartWorkflow() error = %v", err)
	}

	waitFor(t, "review suspension", func() bool {
		return orchestrator.Reviews().Pending(executionID, "review")
	})
	err = orchestrator.CompleteHumanReview(context.Background(), executionID, "review", &HumanReviewRecord{
		Reviewer: "alice",
		Decision: ReviewApproved,
		Comments: "reads well",
	})
	if err != nil {
		t.Fatalf("CompleteHumanReview() error = %v", err)
	}

	waitFor(t, "approval suspension", func() bool {
		return orchestrator.Approvals().Pending(executionID, "approve")
	})
	err = orchestrator.SubmitApprovalDecision(context.Background(), executionID, "approve", ApprovalDecision{
		Approver: "lead",
		Approve:  true,
	})
	if err != nil {
		t.Fatalf("SubmitApprovalDecision() error = %v", err)
	}

	execution := waitTerminal(t, orchestrator, executionID)
	if execution.Status != ExecutionCompleted {
		t.Fatalf("Status = %s, want completed (error=%+v)", execution.Status, execution.Error)
	}

	for _, stageID := range []string{"generate", "check", "review", "approve", "deploy"} {
		se := execution.Stage(stageID)
		if se == nil || se.Status != StageCompleted {
			t.Errorf("stage %s = %+v, want completed", stageID, se)
		}
	}

	review := execution.Stage("review").Review
	if review == nil || review.Reviewer != "alice" {
		t.Errorf("review record = %+v, want alice's approval", review)
	}
	if execution.Metrics.CompletedStages != 5 {
		t.Errorf("CompletedStages = %d, want 5", execution.Metrics.CompletedStages)
	}
	if execution.Metrics.TotalCost != 0.01 {
		t.Errorf("TotalCost = %.3f, want 0.01", execution.Metrics.TotalCost)
	}
	if _, ok := execution.Metrics.QualityScores["check"]; !ok {
		t.Error("quality score for check stage not recorded")
	}

	channels := sender.channels()
	if len(channels) != 2 || channels[0] != "blog" || channels[1] != "newsletter" {
		t.Errorf("deployed channels = %v, want [blog newsletter]", channels)
	}

	if events.count(EventExecutionCompleted) != 1 {
		t.Errorf("completion events = %d, want 1", events.count(EventExecutionCompleted))
	}
	if events.count(EventHumanReviewRequested) != 1 {
		t.Errorf("review requested events = %d, want 1", events.count(EventHumanReviewRequested))
	}
}

func TestOrchestratorReviewRejectionFailsExecution(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(nil)
	def := contentPipeline()
	if err := orchestrator.RegisterWorkflow(context.Background(), def); err != nil {
		t.Fatalf("RegisterWorkflow() error = %v", err)
	}

	executionID, err := orchestrator.StartWorkflow(context.Background(), def.ID, nil)
	if err != nil {
		t.Fatalf("StartWorkflow() error = %v", err)
	}

	waitFor(t, "review suspension", func() bool {
		return orchestrator.Reviews().Pending(executionID, "review")
	})
	err = orchestrator.CompleteHumanReview(context.Background(), executionID, "review", &HumanReviewRecord{
		Reviewer: "bob",
		Decision: ReviewRejected,
	})
	if err != nil {
		t.Fatalf("CompleteHumanReview() error = %v", err)
	}

	execution := waitTerminal(t, orchestrator, executionID)
	if execution.Status != ExecutionFailed {
		t.Fatalf("Status = %s, want failed", execution.Status)
	}
	if execution.Error == nil || execution.Error.Code != "review_rejected" {
		t.Errorf("Error = %+v, want review_rejected", execution.Error)
	}
	for _, stageID := range []string{"approve", "deploy"} {
		if se := execution.Stage(stageID); se.Status != StageSkipped {
			t.Errorf("stage %s status = %s, want skipped", stageID, se.Status)
		}
	}
}

func TestOrchestratorCancelWorkflow(t *testing.T) {
	handlers := NewStageHandlerRegistry()
	orchestrator := NewOrchestrator(handlers, nil, nil, OrchestratorConfig{})

	started := make(chan struct{})
	handlers.Register(&testHandler{stageType: StageTypeGeneration, fn: func(ctx context.Context, sc *StageContext) (map[string]interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	handlers.Register(&testHandler{stageType: StageTypeDeployment})

	def := &WorkflowDefinition{
		ID:   "cancellable",
		Name: "Cancellable",
		Stages: []WorkflowStage{
			{ID: "generate", Type: StageTypeGeneration},
			{ID: "deploy", Type: StageTypeDeployment, DependsOn: []string{"generate"}},
		},
	}
	if err := orchestrator.RegisterWorkflow(context.Background(), def); err != nil {
		t.Fatalf("RegisterWorkflow() error = %v", err)
	}

	executionID, err := orchestrator.StartWorkflow(context.Background(), def.ID, nil)
	if err != nil {
		t.Fatalf("StartWorkflow() error = %v", err)
	}
	<-started

	if err := orchestrator.CancelWorkflow(context.Background(), executionID, "operator request"); err != nil {
		t.Fatalf("CancelWorkflow() error = %v", err)
	}

	execution := waitTerminal(t, orchestrator, executionID)
	if execution.Status != ExecutionCancelled {
		t.Fatalf("Status = %s, want cancelled", execution.Status)
	}
	if execution.CancelReason != "operator request" {
		t.Errorf("CancelReason = %s", execution.CancelReason)
	}
	if se := execution.Stage("deploy"); se.Status != StageSkipped {
		t.Errorf("deploy status = %s, want skipped", se.Status)
	}

	/* Cancelling a settled execution is rejected */
	if err := orchestrator.CancelWorkflow(context.Background(), executionID, "again"); !errors.Is(err, ErrExecutionNotRunning) {
		t.Errorf("CancelWorkflow(settled) error = %v, want ErrExecutionNotRunning", err)
	}
}

func TestOrchestratorCancelSettlesAfterStagesReturn(t *testing.T) {
	handlers := NewStageHandlerRegistry()
	orchestrator := NewOrchestrator(handlers, nil, nil, OrchestratorConfig{})

	started := make(chan struct{})
	release := make(chan struct{})
	handlers.Register(&testHandler{stageType: StageTypeGeneration, fn: func(_ context.Context, _ *StageContext) (map[string]interface{}, error) {
		close(started)
		<-release
		return map[string]interface{}{}, nil
	}})

	def := &WorkflowDefinition{
		ID:     "slow",
		Name:   "Slow",
		Stages: []WorkflowStage{{ID: "generate", Type: StageTypeGeneration}},
	}
	if err := orchestrator.RegisterWorkflow(context.Background(), def); err != nil {
		t.Fatalf("RegisterWorkflow() error = %v", err)
	}

	executionID, err := orchestrator.StartWorkflow(context.Background(), def.ID, nil)
	if err != nil {
		t.Fatalf("StartWorkflow() error = %v", err)
	}
	<-started

	if err := orchestrator.CancelWorkflow(context.Background(), executionID, "operator request"); err != nil {
		t.Fatalf("CancelWorkflow() error = %v", err)
	}

	/* While the stage is still in flight, the record must not read as
	 * terminal; the scheduler performs the transition after the wave
	 * returns */
	for i := 0; i < 10; i++ {
		execution, err := orchestrator.GetExecutionStatus(context.Background(), executionID)
		if err != nil {
			t.Fatalf("GetExecutionStatus() error = %v", err)
		}
		if execution.Status.Terminal() {
			t.Fatalf("Status = %s before in-flight stage returned", execution.Status)
		}
		time.Sleep(2 * time.Millisecond)
	}

	close(release)
	execution := waitTerminal(t, orchestrator, executionID)
	if execution.Status != ExecutionCancelled {
		t.Fatalf("Status = %s, want cancelled", execution.Status)
	}
	if execution.CancelReason != "operator request" {
		t.Errorf("CancelReason = %s", execution.CancelReason)
	}
}

func TestOrchestratorExecuteWorkflowSynchronous(t *testing.T) {
	handlers := NewStageHandlerRegistry()
	orchestrator := NewOrchestrator(handlers, nil, nil, OrchestratorConfig{})
	handlers.Register(&testHandler{stageType: StageTypeGeneration, fn: func(_ context.Context, sc *StageContext) (map[string]interface{}, error) {
		return map[string]interface{}{"content": "sync result"}, nil
	}})

	def := &WorkflowDefinition{
		ID:     "sync",
		Name:   "Sync",
		Stages: []WorkflowStage{{ID: "generate", Type: StageTypeGeneration}},
	}
	if err := orchestrator.RegisterWorkflow(context.Background(), def); err != nil {
		t.Fatalf("RegisterWorkflow() error = %v", err)
	}

	execution, err := orchestrator.ExecuteWorkflow(context.Background(), def.ID, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow() error = %v", err)
	}
	if execution.Status != ExecutionCompleted {
		t.Errorf("Status = %s, want completed", execution.Status)
	}
	if execution.Output["generate"] == nil {
		t.Error("terminal output missing")
	}
}

func TestOrchestratorExecuteUnknownWorkflow(t *testing.T) {
	orchestrator := NewOrchestrator(NewStageHandlerRegistry(), nil, nil, OrchestratorConfig{})
	if _, err := orchestrator.ExecuteWorkflow(context.Background(), "missing", nil); !errors.Is(err, ErrDefinitionNotFound) {
		t.Errorf("ExecuteWorkflow() error = %v, want ErrDefinitionNotFound", err)
	}
	if _, err := orchestrator.StartWorkflow(context.Background(), "missing", nil); !errors.Is(err, ErrDefinitionNotFound) {
		t.Errorf("StartWorkflow() error = %v, want ErrDefinitionNotFound", err)
	}
}

func TestOrchestratorWorkflowMetrics(t *testing.T) {
	handlers := NewStageHandlerRegistry()
	orchestrator := NewOrchestrator(handlers, nil, nil, OrchestratorConfig{})

	var mu sync.Mutex
	fail := false
	handlers.Register(&testHandler{stageType: StageTypeGeneration, fn: func(_ context.Context, sc *StageContext) (map[string]interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, NewPermanentStageError("generation_config_invalid", "bad config", nil)
		}
		return map[string]interface{}{"cost": 0.5, "overall_score": 90.0}, nil
	}})

	def := &WorkflowDefinition{
		ID:     "metered",
		Name:   "Metered",
		Stages: []WorkflowStage{{ID: "generate", Type: StageTypeGeneration}},
	}
	if err := orchestrator.RegisterWorkflow(context.Background(), def); err != nil {
		t.Fatalf("RegisterWorkflow() error = %v", err)
	}

	if _, err := orchestrator.ExecuteWorkflow(context.Background(), def.ID, nil); err != nil {
		t.Fatalf("ExecuteWorkflow() error = %v", err)
	}
	if _, err := orchestrator.ExecuteWorkflow(context.Background(), def.ID, nil); err != nil {
		t.Fatalf("ExecuteWorkflow() error = %v", err)
	}
	mu.Lock()
	fail = true
	mu.Unlock()
	if _, err := orchestrator.ExecuteWorkflow(context.Background(), def.ID, nil); err == nil {
		t.Fatal("ExecuteWorkflow() succeeded, want failure")
	}

	wm, err := orchestrator.GetWorkflowMetrics(context.Background(), def.ID)
	if err != nil {
		t.Fatalf("GetWorkflowMetrics() error = %v", err)
	}
	if wm.TotalExecutions != 3 || wm.Completed != 2 || wm.Failed != 1 {
		t.Errorf("metrics = %+v, want 3 total, 2 completed, 1 failed", wm)
	}
	if wm.SuccessRate != 2.0/3.0 {
		t.Errorf("SuccessRate = %.3f, want 2/3", wm.SuccessRate)
	}
	if wm.TotalCost != 1.0 {
		t.Errorf("TotalCost = %.2f, want 1.0", wm.TotalCost)
	}
	if wm.AverageQuality != 90 {
		t.Errorf("AverageQuality = %.2f, want 90", wm.AverageQuality)
	}

	if _, err := orchestrator.GetWorkflowMetrics(context.Background(), "missing"); !errors.Is(err, ErrDefinitionNotFound) {
		t.Errorf("GetWorkflowMetrics(missing) error = %v, want ErrDefinitionNotFound", err)
	}
}

func TestOrchestratorExecutionHistory(t *testing.T) {
	handlers := NewStageHandlerRegistry()
	orchestrator := NewOrchestrator(handlers, nil, nil, OrchestratorConfig{})
	handlers.Register(&testHandler{stageType: StageTypeGeneration})

	def := &WorkflowDefinition{
		ID:     "historic",
		Name:   "Historic",
		Stages: []WorkflowStage{{ID: "generate", Type: StageTypeGeneration}},
	}
	if err := orchestrator.RegisterWorkflow(context.Background(), def); err != nil {
		t.Fatalf("RegisterWorkflow() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := orchestrator.ExecuteWorkflow(context.Background(), def.ID, nil); err != nil {
			t.Fatalf("ExecuteWorkflow() error = %v", err)
		}
	}

	history, err := orchestrator.GetExecutionHistory(context.Background(), def.ID, 2)
	if err != nil {
		t.Fatalf("GetExecutionHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2", len(history))
	}
}
