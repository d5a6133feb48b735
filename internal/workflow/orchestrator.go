/*-------------------------------------------------------------------------
 *
 * orchestrator.go
 *    Workflow orchestrator facade
 *
 * Public entry point of the engine. Wires the registry, scheduler,
 * review and approval gateways, store, and event publisher, and owns
 * the per-execution mutex and cancellation handle for every active
 * execution.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/orchestrator.go
 *
 *-------------------------------------------------------------------------
 */

package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* activeExecution tracks a running execution's shared state */
type activeExecution struct {
	execution *WorkflowExecution
	mu        *sync.Mutex
	cancel    context.CancelFunc
}

/* OrchestratorConfig tunes the orchestrator */
type OrchestratorConfig struct {
	MaxConcurrentStages int
}

/* Orchestrator coordinates workflow registration and execution */
type Orchestrator struct {
	registry  *DefinitionRegistry
	handlers  *StageHandlerRegistry
	scheduler *DependencyScheduler
	reviews   *HumanReviewGateway
	approvals *ApprovalGateway
	store     ExecutionStore
	events    EventPublisher

	mu     sync.Mutex
	active map[uuid.UUID]*activeExecution
}

/* NewOrchestrator creates an orchestrator. A nil store falls back to
 * the in-memory store; a nil events publisher disables events. */
func NewOrchestrator(handlers *StageHandlerRegistry, store ExecutionStore, events EventPublisher, config OrchestratorConfig) *Orchestrator {
	if store == nil {
		store = NewMemoryExecutionStore()
	}
	return &Orchestrator{
		registry:  NewDefinitionRegistry(handlers, events),
		handlers:  handlers,
		scheduler: NewDependencyScheduler(handlers, store, events, config.MaxConcurrentStages),
		reviews:   NewHumanReviewGateway(),
		approvals: NewApprovalGateway(events),
		store:     store,
		events:    events,
		active:    make(map[uuid.UUID]*activeExecution),
	}
}

/* Reviews returns the human review gateway */
func (o *Orchestrator) Reviews() *HumanReviewGateway { return o.reviews }

/* Approvals returns the approval gateway */
func (o *Orchestrator) Approvals() *ApprovalGateway { return o.approvals }

/* Registry returns the definition registry */
func (o *Orchestrator) Registry() *DefinitionRegistry { return o.registry }

/* RegisterWorkflow validates and registers a workflow definition */
func (o *Orchestrator) RegisterWorkflow(ctx context.Context, def *WorkflowDefinition) error {
	return o.registry.Register(ctx, def)
}

/* ExecuteWorkflow runs a workflow synchronously and returns the
 * terminal execution record. The returned error is the execution's
 * terminal failure cause, if any. */
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, workflowID string, input map[string]interface{}) (*WorkflowExecution, error) {
	execution, runCtx, err := o.startExecution(ctx, workflowID, input)
	if err != nil {
		return nil, err
	}
	runErr := o.run(runCtx, workflowID, execution)
	return execution.Clone(), runErr
}

/* StartWorkflow runs a workflow asynchronously and returns the
 * execution id immediately */
func (o *Orchestrator) StartWorkflow(ctx context.Context, workflowID string, input map[string]interface{}) (uuid.UUID, error) {
	execution, runCtx, err := o.startExecution(context.WithoutCancel(ctx), workflowID, input)
	if err != nil {
		return uuid.Nil, err
	}
	go func() {
		if err := o.run(runCtx, workflowID, execution); err != nil {
			metrics.ErrorWithContext(runCtx, "workflow execution failed", err, map[string]interface{}{
				"execution_id": execution.ID.String(),
				"workflow_id":  workflowID,
			})
		}
	}()
	return execution.ID, nil
}

func (o *Orchestrator) startExecution(ctx context.Context, workflowID string, input map[string]interface{}) (*WorkflowExecution, context.Context, error) {
	def, err := o.registry.Get(workflowID)
	if err != nil {
		return nil, nil, err
	}

	execution := NewExecution(def, input)
	runCtx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	o.active[execution.ID] = &activeExecution{
		execution: execution,
		mu:        &sync.Mutex{},
		cancel:    cancel,
	}
	o.mu.Unlock()

	if err := o.store.SaveExecution(ctx, execution.Clone()); err != nil {
		o.release(execution.ID)
		cancel()
		return nil, nil, fmt.Errorf("failed to persist new execution: execution_id='%s', error=%w", execution.ID, err)
	}

	if o.events != nil {
		_ = o.events.Publish(ctx, EventExecutionStarted, "orchestrator", map[string]interface{}{
			"execution_id": execution.ID.String(),
			"workflow_id":  workflowID,
		})
	}
	return execution, runCtx, nil
}

func (o *Orchestrator) run(ctx context.Context, workflowID string, execution *WorkflowExecution) error {
	defer o.release(execution.ID)

	def, err := o.registry.Get(workflowID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	active := o.active[execution.ID]
	o.mu.Unlock()
	if active == nil {
		return fmt.Errorf("execution is no longer active: execution_id='%s'", execution.ID)
	}

	logCtx := metrics.WithLogContext(ctx, "", workflowID, execution.ID.String(), "")
	metrics.InfoWithContext(logCtx, "workflow execution starting", map[string]interface{}{
		"stage_count": len(def.Stages),
	})
	return o.scheduler.Run(logCtx, def, execution, active.mu)
}

func (o *Orchestrator) release(executionID uuid.UUID) {
	o.mu.Lock()
	active, ok := o.active[executionID]
	delete(o.active, executionID)
	o.mu.Unlock()
	if ok && active.cancel != nil {
		active.cancel()
	}
}

/* CancelWorkflow requests cancellation of a running execution. Stages
 * already in flight are interrupted via context; the scheduler performs
 * the single transition to cancelled once the current wave returns, so
 * the record never reads as terminal while still being mutated. */
func (o *Orchestrator) CancelWorkflow(ctx context.Context, executionID uuid.UUID, reason string) error {
	o.mu.Lock()
	active, ok := o.active[executionID]
	o.mu.Unlock()

	if !ok {
		if _, err := o.store.GetExecution(ctx, executionID); err != nil {
			return err
		}
		return fmt.Errorf("cancel rejected: execution_id='%s', error=%w", executionID, ErrExecutionNotRunning)
	}

	active.mu.Lock()
	if active.execution.Status.Terminal() {
		active.mu.Unlock()
		return fmt.Errorf("cancel rejected: execution_id='%s', error=%w", executionID, ErrExecutionNotRunning)
	}
	active.execution.CancelReason = reason
	active.mu.Unlock()
	active.cancel()

	metrics.InfoWithContext(ctx, "workflow execution cancelled", map[string]interface{}{
		"execution_id": executionID.String(),
		"reason":       reason,
	})
	return nil
}

/* GetExecutionStatus returns a snapshot of an execution */
func (o *Orchestrator) GetExecutionStatus(ctx context.Context, executionID uuid.UUID) (*WorkflowExecution, error) {
	if snapshot := o.snapshot(executionID); snapshot != nil {
		return snapshot, nil
	}
	return o.store.GetExecution(ctx, executionID)
}

/* GetExecutionHistory returns recent executions for a workflow */
func (o *Orchestrator) GetExecutionHistory(ctx context.Context, workflowID string, limit int) ([]*WorkflowExecution, error) {
	return o.store.ListExecutions(ctx, workflowID, limit)
}

/* CompleteHumanReview resolves a suspended human review stage */
func (o *Orchestrator) CompleteHumanReview(ctx context.Context, executionID uuid.UUID, stageID string, record *HumanReviewRecord) error {
	if err := o.reviews.Complete(executionID, stageID, record); err != nil {
		return err
	}

	o.mu.Lock()
	active, ok := o.active[executionID]
	o.mu.Unlock()
	if ok {
		active.mu.Lock()
		if se := active.execution.Stage(stageID); se != nil {
			se.Review = record
		}
		active.mu.Unlock()
	}

	metrics.InfoWithContext(ctx, "human review completed", map[string]interface{}{
		"execution_id": executionID.String(),
		"stage_id":     stageID,
		"decision":     record.Decision,
	})
	return nil
}

/* SubmitApprovalDecision records an approver decision for a suspended
 * approval stage */
func (o *Orchestrator) SubmitApprovalDecision(ctx context.Context, executionID uuid.UUID, stageID string, decision ApprovalDecision) error {
	if err := o.approvals.Submit(executionID, stageID, decision); err != nil {
		return err
	}
	metrics.InfoWithContext(ctx, "approval decision submitted", map[string]interface{}{
		"execution_id": executionID.String(),
		"stage_id":     stageID,
		"approver":     decision.Approver,
		"approve":      decision.Approve,
	})
	return nil
}

/* WorkflowMetrics aggregates execution outcomes for one workflow */
type WorkflowMetrics struct {
	WorkflowID      string        `json:"workflow_id"`
	TotalExecutions int           `json:"total_executions"`
	Completed       int           `json:"completed"`
	Failed          int           `json:"failed"`
	Cancelled       int           `json:"cancelled"`
	Running         int           `json:"running"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration"`
	AverageQuality  float64       `json:"average_quality"`
	TotalRetries    int           `json:"total_retries"`
	TotalCost       float64       `json:"total_cost"`
}

/* GetWorkflowMetrics aggregates stored executions for a workflow */
func (o *Orchestrator) GetWorkflowMetrics(ctx context.Context, workflowID string) (*WorkflowMetrics, error) {
	if _, err := o.registry.Get(workflowID); err != nil {
		return nil, err
	}

	executions, err := o.store.ListExecutions(ctx, workflowID, 0)
	if err != nil {
		return nil, err
	}

	wm := &WorkflowMetrics{WorkflowID: workflowID}
	var totalDuration time.Duration
	var qualitySum float64
	var qualityCount int
	for _, execution := range executions {
		wm.TotalExecutions++
		wm.TotalRetries += execution.Metrics.RetryCount
		wm.TotalCost += execution.Metrics.TotalCost
		switch execution.Status {
		case ExecutionCompleted:
			wm.Completed++
			totalDuration += execution.Metrics.ProcessingTime
		case ExecutionFailed:
			wm.Failed++
		case ExecutionCancelled:
			wm.Cancelled++
		default:
			wm.Running++
		}
		for _, score := range execution.Metrics.QualityScores {
			qualitySum += score
			qualityCount++
		}
	}
	if wm.TotalExecutions > 0 {
		wm.SuccessRate = float64(wm.Completed) / float64(wm.TotalExecutions)
	}
	if wm.Completed > 0 {
		wm.AverageDuration = totalDuration / time.Duration(wm.Completed)
	}
	if qualityCount > 0 {
		wm.AverageQuality = qualitySum / float64(qualityCount)
	}
	return wm, nil
}

func (o *Orchestrator) snapshot(executionID uuid.UUID) *WorkflowExecution {
	o.mu.Lock()
	active, ok := o.active[executionID]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	active.mu.Lock()
	defer active.mu.Unlock()
	return active.execution.Clone()
}
