/*-------------------------------------------------------------------------
 *
 * scheduler.go
 *    Wave-based dependency scheduler
 *
 * Drives one workflow execution to a terminal state. Each wave launches
 * every pending stage whose dependencies have all completed; stages in
 * a wave run concurrently with no ordering between them. A permanent
 * stage failure skips all remaining stages and fails the execution. An
 * empty ready set with stages remaining is a deadlock, which a
 * validated definition cannot produce.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/scheduler.go
 *
 *-------------------------------------------------------------------------
 */

package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* DependencyScheduler executes workflow stages in dependency waves */
type DependencyScheduler struct {
	handlers      *StageHandlerRegistry
	store         ExecutionStore
	events        EventPublisher
	maxConcurrent int
}

/* NewDependencyScheduler creates a scheduler */
func NewDependencyScheduler(handlers *StageHandlerRegistry, store ExecutionStore, events EventPublisher, maxConcurrent int) *DependencyScheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	return &DependencyScheduler{
		handlers:      handlers,
		store:         store,
		events:        events,
		maxConcurrent: maxConcurrent,
	}
}

/* Run drives the execution to a terminal state. The caller's mutex
 * guards all reads and writes of the execution record; the scheduler
 * releases it while stage handlers run. */
func (s *DependencyScheduler) Run(ctx context.Context, def *WorkflowDefinition, execution *WorkflowExecution, mu *sync.Mutex) error {
	mu.Lock()
	execution.Status = ExecutionRunning
	mu.Unlock()
	s.persist(ctx, execution, mu)

	semaphore := make(chan struct{}, s.maxConcurrent)

	for {
		if ctx.Err() != nil {
			return s.finishCancelled(ctx, execution, mu, cancelReason(execution, mu))
		}

		mu.Lock()
		ready, remaining := readyStages(def, execution)
		mu.Unlock()

		if len(remaining) == 0 {
			return s.finishCompleted(ctx, def, execution, mu)
		}
		if len(ready) == 0 {
			err := &DeadlockError{Remaining: remaining}
			return s.finishFailed(ctx, execution, mu, err)
		}

		var wg sync.WaitGroup
		failures := make(chan error, len(ready))
		for _, stageID := range ready {
			stage := def.Stage(stageID)
			wg.Add(1)
			semaphore <- struct{}{}
			go func(stage *WorkflowStage) {
				defer wg.Done()
				defer func() { <-semaphore }()
				if err := s.runStage(ctx, stage, execution, mu); err != nil {
					failures <- err
				}
			}(stage)
		}
		wg.Wait()
		close(failures)

		if err := <-failures; err != nil {
			if ctx.Err() != nil {
				return s.finishCancelled(ctx, execution, mu, cancelReason(execution, mu))
			}
			return s.finishFailed(ctx, execution, mu, err)
		}
		s.persist(ctx, execution, mu)
	}
}

/* cancelReason reads the reason recorded by a cancel request, falling
 * back to a generic one when only the context was cancelled */
func cancelReason(execution *WorkflowExecution, mu *sync.Mutex) string {
	mu.Lock()
	defer mu.Unlock()
	if execution.CancelReason != "" {
		return execution.CancelReason
	}
	return "context cancelled"
}

/* readyStages returns pending stages whose dependencies have all
 * completed, plus the ids of all non-terminal stages */
func readyStages(def *WorkflowDefinition, execution *WorkflowExecution) ([]string, []string) {
	ready := make([]string, 0)
	remaining := make([]string, 0)
	for i := range def.Stages {
		stage := &def.Stages[i]
		se := execution.Stage(stage.ID)
		if se == nil || se.Status != StagePending {
			continue
		}
		remaining = append(remaining, stage.ID)

		eligible := true
		for _, dep := range stage.DependsOn {
			depExec := execution.Stage(dep)
			if depExec == nil || depExec.Status != StageCompleted {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, stage.ID)
		}
	}
	return ready, remaining
}

/* runStage executes one stage through its retry and fallback policy */
func (s *DependencyScheduler) runStage(ctx context.Context, stage *WorkflowStage, execution *WorkflowExecution, mu *sync.Mutex) error {
	mu.Lock()
	se := execution.Stage(stage.ID)
	now := time.Now()
	se.Status = StageRunning
	se.StartedAt = &now
	input := buildStageInput(stage, execution)
	mu.Unlock()

	s.publish(ctx, EventStageStarted, execution, stage.ID, nil)
	logCtx := metrics.WithLogContext(ctx, "", execution.WorkflowID, execution.ID.String(), stage.ID)

	policy := stage.Retry
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}

	output, attempts, err := s.attemptLoop(logCtx, stage, execution, input, policy)

	if err != nil && stage.Fallback != nil {
		metrics.WarnWithContext(logCtx, "primary stage exhausted retries, running fallback", map[string]interface{}{
			"attempts": attempts,
			"error":    err.Error(),
		})
		fallbackOutput, fallbackErr := s.executeOnce(logCtx, stage.Fallback, execution, input, stage.Fallback.Timeout)
		mu.Lock()
		se.UsedFallback = true
		mu.Unlock()
		if fallbackErr == nil {
			output, err = fallbackOutput, nil
		} else {
			err = fmt.Errorf("fallback stage failed after primary exhausted retries: stage_id='%s', primary=%v, error=%w", stage.ID, err, fallbackErr)
		}
	}

	mu.Lock()
	se.Attempts = attempts
	completed := time.Now()
	se.CompletedAt = &completed
	execution.Metrics.RetryCount += attempts - 1

	if err != nil {
		se.Status = StageFailed
		se.Error = toExecutionError(err)
		execution.Metrics.FailedStages++
		mu.Unlock()
		metrics.RecordStageExecution(string(stage.Type), "failed", completed.Sub(now))
		s.publish(ctx, EventStageFailed, execution, stage.ID, map[string]interface{}{
			"error":    err.Error(),
			"attempts": attempts,
		})
		return err
	}

	se.Status = StageCompleted
	se.Output = output
	execution.Metrics.CompletedStages++
	if score, ok := toNumber(output["overall_score"]); ok {
		execution.Metrics.QualityScores[stage.ID] = score
	}
	if cost, ok := toNumber(output["cost"]); ok {
		execution.Metrics.TotalCost += cost
	}
	mu.Unlock()

	metrics.RecordStageExecution(string(stage.Type), "completed", completed.Sub(now))
	s.publish(ctx, EventStageCompleted, execution, stage.ID, map[string]interface{}{
		"attempts": attempts,
	})
	return nil
}

/* attemptLoop runs the bounded retry loop for the primary stage */
func (s *DependencyScheduler) attemptLoop(ctx context.Context, stage *WorkflowStage, execution *WorkflowExecution, input map[string]interface{}, policy RetryPolicy) (map[string]interface{}, int, error) {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		attempts = attempt
		output, err := s.executeOnce(ctx, stage, execution, input, stage.Timeout)
		if err == nil {
			return output, attempts, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			metrics.WarnWithContext(ctx, "stage failed permanently", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
			return nil, attempts, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := RetryDelay(policy, attempt)
		metrics.RecordStageRetry(string(stage.Type))
		s.publish(ctx, EventStageRetrying, execution, stage.ID, map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})

		select {
		case <-ctx.Done():
			return nil, attempts, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, attempts, fmt.Errorf("stage exhausted retries: stage_id='%s', attempts=%d, error=%w", stage.ID, attempts, lastErr)
}

/* executeOnce runs a single handler invocation under the stage timeout */
func (s *DependencyScheduler) executeOnce(ctx context.Context, stage *WorkflowStage, execution *WorkflowExecution, input map[string]interface{}, timeout time.Duration) (map[string]interface{}, error) {
	handler, err := s.handlers.Resolve(stage.Type)
	if err != nil {
		return nil, NewPermanentStageError("handler_missing", err.Error(), nil)
	}

	execCtx := ctx
	if timeout > 0 && stage.Type != StageTypeHumanReview && stage.Type != StageTypeApproval {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	output, err := handler.Execute(execCtx, &StageContext{
		Execution: execution,
		Stage:     stage,
		Input:     input,
	})
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, &TimeoutError{StageID: stage.ID, Timeout: timeout}
		}
		return nil, err
	}
	return output, nil
}

/* buildStageInput merges workflow input with dependency outputs. Later
 * dependencies win on key collision; dependency outputs always win
 * over workflow input. */
func buildStageInput(stage *WorkflowStage, execution *WorkflowExecution) map[string]interface{} {
	input := make(map[string]interface{}, len(execution.Input))
	for k, v := range execution.Input {
		input[k] = v
	}
	for _, dep := range stage.DependsOn {
		depExec := execution.Stage(dep)
		if depExec == nil || depExec.Output == nil {
			continue
		}
		for k, v := range depExec.Output {
			input[k] = v
		}
		input[dep] = depExec.Output
	}
	return input
}

func (s *DependencyScheduler) finishCompleted(ctx context.Context, def *WorkflowDefinition, execution *WorkflowExecution, mu *sync.Mutex) error {
	mu.Lock()
	now := time.Now()
	execution.Status = ExecutionCompleted
	execution.CompletedAt = &now
	execution.Metrics.ProcessingTime = now.Sub(execution.StartedAt)
	for i := range def.Stages {
		stage := &def.Stages[i]
		if !isTerminalStage(def, stage.ID) {
			continue
		}
		if se := execution.Stage(stage.ID); se != nil && se.Output != nil {
			execution.Output[stage.ID] = se.Output
		}
	}
	duration := execution.Metrics.ProcessingTime
	mu.Unlock()

	metrics.RecordWorkflowExecution(execution.WorkflowID, "completed", duration)
	s.publish(ctx, EventExecutionCompleted, execution, "", map[string]interface{}{
		"duration": duration.String(),
	})
	s.persist(ctx, execution, mu)
	return nil
}

func (s *DependencyScheduler) finishFailed(ctx context.Context, execution *WorkflowExecution, mu *sync.Mutex, cause error) error {
	mu.Lock()
	now := time.Now()
	execution.Status = ExecutionFailed
	execution.CompletedAt = &now
	execution.Metrics.ProcessingTime = now.Sub(execution.StartedAt)
	execution.Error = toExecutionError(cause)
	for _, se := range execution.Stages {
		if se.Status == StagePending {
			se.Status = StageSkipped
			execution.Metrics.SkippedStages++
		}
	}
	duration := execution.Metrics.ProcessingTime
	mu.Unlock()

	metrics.RecordWorkflowExecution(execution.WorkflowID, "failed", duration)
	s.publish(ctx, EventExecutionFailed, execution, "", map[string]interface{}{
		"error": cause.Error(),
	})
	s.persist(ctx, execution, mu)
	return cause
}

func (s *DependencyScheduler) finishCancelled(ctx context.Context, execution *WorkflowExecution, mu *sync.Mutex, reason string) error {
	mu.Lock()
	now := time.Now()
	execution.Status = ExecutionCancelled
	execution.CancelReason = reason
	execution.CompletedAt = &now
	execution.Metrics.ProcessingTime = now.Sub(execution.StartedAt)
	for _, se := range execution.Stages {
		if se.Status == StagePending {
			se.Status = StageSkipped
			execution.Metrics.SkippedStages++
		}
	}
	duration := execution.Metrics.ProcessingTime
	mu.Unlock()

	metrics.RecordWorkflowExecution(execution.WorkflowID, "cancelled", duration)
	s.publish(context.WithoutCancel(ctx), EventExecutionCancelled, execution, "", map[string]interface{}{
		"reason": reason,
	})
	s.persist(context.WithoutCancel(ctx), execution, mu)
	return nil
}

func (s *DependencyScheduler) persist(ctx context.Context, execution *WorkflowExecution, mu *sync.Mutex) {
	if s.store == nil {
		return
	}
	mu.Lock()
	snapshot := execution.Clone()
	mu.Unlock()
	if err := s.store.SaveExecution(ctx, snapshot); err != nil {
		metrics.ErrorWithContext(ctx, "failed to persist execution snapshot", err, map[string]interface{}{
			"execution_id": snapshot.ID.String(),
		})
	}
}

func (s *DependencyScheduler) publish(ctx context.Context, eventType string, execution *WorkflowExecution, stageID string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["execution_id"] = execution.ID.String()
	payload["workflow_id"] = execution.WorkflowID
	if stageID != "" {
		payload["stage_id"] = stageID
	}
	_ = s.events.Publish(ctx, eventType, "scheduler", payload)
}

/* isTerminalStage reports whether no other stage depends on this one */
func isTerminalStage(def *WorkflowDefinition, stageID string) bool {
	for i := range def.Stages {
		for _, dep := range def.Stages[i].DependsOn {
			if dep == stageID {
				return false
			}
		}
	}
	return true
}
