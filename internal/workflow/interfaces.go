/*-------------------------------------------------------------------------
 *
 * interfaces.go
 *    Collaborator contracts for the orchestration engine
 *
 * The engine depends on narrow interfaces for persistence, events,
 * caching, and content generation. Concrete implementations live in
 * their own packages and are wired at startup.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/interfaces.go
 *
 *-------------------------------------------------------------------------
 */

package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

/* Event types published over the engine lifecycle */
const (
	EventWorkflowRegistered    = "workflow.registered"
	EventExecutionStarted      = "execution.started"
	EventExecutionCompleted    = "execution.completed"
	EventExecutionFailed       = "execution.failed"
	EventExecutionCancelled    = "execution.cancelled"
	EventStageStarted          = "stage.started"
	EventStageCompleted        = "stage.completed"
	EventStageFailed           = "stage.failed"
	EventStageRetrying         = "stage.retrying"
	EventStageSkipped          = "stage.skipped"
	EventHumanReviewRequested  = "review.requested"
	EventHumanReviewCompleted  = "review.completed"
	EventApprovalRequested     = "approval.requested"
	EventApprovalEscalated     = "approval.escalated"
	EventApprovalResolved      = "approval.resolved"
	EventQualityGateEvaluated  = "quality_gate.evaluated"
)

/* EventPublisher publishes lifecycle events to interested subscribers */
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, source string, payload map[string]interface{}) error
}

/* ExecutionStore persists execution snapshots */
type ExecutionStore interface {
	SaveExecution(ctx context.Context, execution *WorkflowExecution) error
	GetExecution(ctx context.Context, executionID uuid.UUID) (*WorkflowExecution, error)
	ListExecutions(ctx context.Context, workflowID string, limit int) ([]*WorkflowExecution, error)
}

/* CacheProvider caches generation outputs keyed by request fingerprint */
type CacheProvider interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Delete(key string)
}

/* GenerationRequest is the input to a content generation call */
type GenerationRequest struct {
	Prompt      string                 `json:"prompt"`
	Model       string                 `json:"model,omitempty"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Temperature float64                `json:"temperature,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

/* GenerationResult is the output of a content generation call */
type GenerationResult struct {
	Content    string                 `json:"content"`
	Model      string                 `json:"model,omitempty"`
	TokensUsed int                    `json:"tokens_used,omitempty"`
	Cost       float64                `json:"cost,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

/* ContentGenerationProvider produces content for generation stages */
type ContentGenerationProvider interface {
	Generate(ctx context.Context, request *GenerationRequest) (*GenerationResult, error)
	Name() string
}

/* StageContext carries the inputs available to a stage handler */
type StageContext struct {
	Execution *WorkflowExecution
	Stage     *WorkflowStage
	Input     map[string]interface{}
}

/* StageHandler executes one stage type. Output becomes available to
 * dependent stages; errors are classified via IsRetryable. */
type StageHandler interface {
	Execute(ctx context.Context, sc *StageContext) (map[string]interface{}, error)
	Type() StageType
}
