/*-------------------------------------------------------------------------
 *
 * types.go
 *    Core data model for the NeuronFlow orchestration engine
 *
 * Defines workflow definitions, stages, retry policies, quality gates,
 * approval configuration, executions, and execution metrics.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/types.go
 *
 *-------------------------------------------------------------------------
 */

package workflow

import (
	"time"

	"github.com/google/uuid"
)

/* StageType identifies the handler contract a stage is dispatched to */
type StageType string

const (
	StageTypeGeneration   StageType = "ai_generation"
	StageTypeQualityCheck StageType = "quality_check"
	StageTypeHumanReview  StageType = "human_review"
	StageTypeCompliance   StageType = "compliance_check"
	StageTypeApproval     StageType = "approval"
	StageTypeDeployment   StageType = "deployment"
)

/* BackoffStrategy maps a retry attempt number to a wait delay */
type BackoffStrategy string

const (
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
	BackoffFixed       BackoffStrategy = "fixed"
)

/* RetryPolicy controls retry behavior for a stage */
type RetryPolicy struct {
	MaxAttempts int             `json:"max_attempts" yaml:"max_attempts"`
	Backoff     BackoffStrategy `json:"backoff" yaml:"backoff"`
	BaseDelay   time.Duration   `json:"base_delay" yaml:"base_delay"`
	MaxDelay    time.Duration   `json:"max_delay" yaml:"max_delay"`
}

/* DefaultRetryPolicy is applied when a stage declares no retry policy */
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 1,
		Backoff:     BackoffFixed,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
	}
}

/* WorkflowStage is one node in a workflow's dependency graph */
type WorkflowStage struct {
	ID        string                 `json:"id" yaml:"id"`
	Name      string                 `json:"name" yaml:"name"`
	Type      StageType              `json:"type" yaml:"type"`
	Config    map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
	DependsOn []string               `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Timeout   time.Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retry     RetryPolicy            `json:"retry" yaml:"retry"`
	Fallback  *WorkflowStage         `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

/* TriggerConfig describes how a workflow may be started */
type TriggerConfig struct {
	Type   string                 `json:"type" yaml:"type"`
	Cron   string                 `json:"cron,omitempty" yaml:"cron,omitempty"`
	Event  string                 `json:"event,omitempty" yaml:"event,omitempty"`
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

/* SLAConfig holds service-level targets for a workflow */
type SLAConfig struct {
	MaxDuration   time.Duration `json:"max_duration,omitempty" yaml:"max_duration,omitempty"`
	StageWarning  time.Duration `json:"stage_warning,omitempty" yaml:"stage_warning,omitempty"`
	ReviewTimeout time.Duration `json:"review_timeout,omitempty" yaml:"review_timeout,omitempty"`
}

/* ApproverConfig describes a single named approver */
type ApproverConfig struct {
	Name    string `json:"name" yaml:"name"`
	Weight  int    `json:"weight,omitempty" yaml:"weight,omitempty"`
	CanVeto bool   `json:"can_veto,omitempty" yaml:"can_veto,omitempty"`
}

/* TimeoutAction is the terminal action when an approval deadline elapses */
type TimeoutAction string

const (
	TimeoutEscalate    TimeoutAction = "escalate"
	TimeoutAutoApprove TimeoutAction = "auto_approve"
	TimeoutAutoReject  TimeoutAction = "auto_reject"
	TimeoutExtend      TimeoutAction = "extend"
)

/* EscalationStep notifies additional approvers after a time threshold */
type EscalationStep struct {
	After     time.Duration `json:"after" yaml:"after"`
	Approvers []string      `json:"approvers" yaml:"approvers"`
}

/* ApprovalConfig configures an approval level */
type ApprovalConfig struct {
	Role              string           `json:"role,omitempty" yaml:"role,omitempty"`
	Approvers         []ApproverConfig `json:"approvers" yaml:"approvers"`
	RequiredApprovals int              `json:"required_approvals" yaml:"required_approvals"`
	AmountThreshold   float64          `json:"amount_threshold,omitempty" yaml:"amount_threshold,omitempty"`
	RiskThreshold     float64          `json:"risk_threshold,omitempty" yaml:"risk_threshold,omitempty"`
	Timeout           time.Duration    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	OnTimeout         TimeoutAction    `json:"on_timeout,omitempty" yaml:"on_timeout,omitempty"`
	Extension         time.Duration    `json:"extension,omitempty" yaml:"extension,omitempty"`
	Escalation        []EscalationStep `json:"escalation,omitempty" yaml:"escalation,omitempty"`
}

/* QualityCriterion is one weighted scoring criterion of a quality gate */
type QualityCriterion struct {
	Name      string                 `json:"name" yaml:"name"`
	Weight    float64                `json:"weight" yaml:"weight"`
	Validator string                 `json:"validator" yaml:"validator"`
	Threshold float64                `json:"threshold" yaml:"threshold"`
	Config    map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

/* QualityGate is a weighted multi-criterion scoring check */
type QualityGate struct {
	ID        string             `json:"id" yaml:"id"`
	Criteria  []QualityCriterion `json:"criteria" yaml:"criteria"`
	Threshold float64            `json:"threshold" yaml:"threshold"`
	Mandatory bool               `json:"mandatory" yaml:"mandatory"`
}

/* WorkflowDefinition is an immutable definition of stages and policy */
type WorkflowDefinition struct {
	ID       string          `json:"id" yaml:"id"`
	Name     string          `json:"name" yaml:"name"`
	Stages   []WorkflowStage `json:"stages" yaml:"stages"`
	Triggers []TriggerConfig `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	Approval *ApprovalConfig `json:"approval,omitempty" yaml:"approval,omitempty"`
	SLA      *SLAConfig      `json:"sla,omitempty" yaml:"sla,omitempty"`
}

/* Stage returns the stage with the given id, or nil */
func (d *WorkflowDefinition) Stage(id string) *WorkflowStage {
	for i := range d.Stages {
		if d.Stages[i].ID == id {
			return &d.Stages[i]
		}
	}
	return nil
}

/* ExecutionStatus is the lifecycle status of a workflow execution */
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

/* Terminal reports whether the status is terminal */
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

/* StageStatus is the lifecycle status of a stage execution */
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

/* ExecutionError is the structured terminal error carried by failed executions */
type ExecutionError struct {
	Code        string    `json:"code"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Recoverable bool      `json:"recoverable"`
}

/* HumanReviewRecord is the outcome of a human review */
type HumanReviewRecord struct {
	Reviewer    string                 `json:"reviewer"`
	Decision    string                 `json:"decision"`
	Comments    string                 `json:"comments,omitempty"`
	SubmittedAt time.Time              `json:"submitted_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

const (
	ReviewApproved         = "approved"
	ReviewRejected         = "rejected"
	ReviewChangesRequested = "changes_requested"
)

/* StageExecution tracks one stage of a workflow execution */
type StageExecution struct {
	StageID      string                 `json:"stage_id"`
	Status       StageStatus            `json:"status"`
	Attempts     int                    `json:"attempts"`
	UsedFallback bool                   `json:"used_fallback,omitempty"`
	Output       map[string]interface{} `json:"output,omitempty"`
	Error        *ExecutionError        `json:"error,omitempty"`
	Review       *HumanReviewRecord     `json:"review,omitempty"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

/* ExecutionMetrics aggregates per-execution counters */
type ExecutionMetrics struct {
	TotalStages     int                `json:"total_stages"`
	CompletedStages int                `json:"completed_stages"`
	FailedStages    int                `json:"failed_stages"`
	SkippedStages   int                `json:"skipped_stages"`
	RetryCount      int                `json:"retry_count"`
	TotalCost       float64            `json:"total_cost"`
	QualityScores   map[string]float64 `json:"quality_scores,omitempty"`
	ProcessingTime  time.Duration      `json:"processing_time"`
}

/* WorkflowExecution is one run of a workflow against specific input */
type WorkflowExecution struct {
	ID           uuid.UUID              `json:"id"`
	WorkflowID   string                 `json:"workflow_id"`
	Status       ExecutionStatus        `json:"status"`
	Input        map[string]interface{} `json:"input,omitempty"`
	Output       map[string]interface{} `json:"output,omitempty"`
	Stages       []*StageExecution      `json:"stages"`
	Metrics      ExecutionMetrics       `json:"metrics"`
	Error        *ExecutionError        `json:"error,omitempty"`
	CancelReason string                 `json:"cancel_reason,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

/* Stage returns the stage execution for the given stage id, or nil */
func (e *WorkflowExecution) Stage(stageID string) *StageExecution {
	for _, se := range e.Stages {
		if se.StageID == stageID {
			return se
		}
	}
	return nil
}

/* Clone returns a deep copy of the execution record */
func (e *WorkflowExecution) Clone() *WorkflowExecution {
	clone := *e
	clone.Input = cloneMap(e.Input)
	clone.Output = cloneMap(e.Output)
	clone.Stages = make([]*StageExecution, len(e.Stages))
	for i, se := range e.Stages {
		sc := *se
		sc.Output = cloneMap(se.Output)
		if se.Error != nil {
			ec := *se.Error
			sc.Error = &ec
		}
		if se.Review != nil {
			rc := *se.Review
			rc.Metadata = cloneMap(se.Review.Metadata)
			sc.Review = &rc
		}
		if se.StartedAt != nil {
			ts := *se.StartedAt
			sc.StartedAt = &ts
		}
		if se.CompletedAt != nil {
			ts := *se.CompletedAt
			sc.CompletedAt = &ts
		}
		clone.Stages[i] = &sc
	}
	if e.Error != nil {
		ec := *e.Error
		clone.Error = &ec
	}
	if e.CompletedAt != nil {
		ts := *e.CompletedAt
		clone.CompletedAt = &ts
	}
	if e.Metrics.QualityScores != nil {
		scores := make(map[string]float64, len(e.Metrics.QualityScores))
		for k, v := range e.Metrics.QualityScores {
			scores[k] = v
		}
		clone.Metrics.QualityScores = scores
	}
	return &clone
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	clone := make(map[string]interface{}, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

/* NewExecution creates a pending execution with eagerly created stage records */
func NewExecution(def *WorkflowDefinition, input map[string]interface{}) *WorkflowExecution {
	exec := &WorkflowExecution{
		ID:         uuid.New(),
		WorkflowID: def.ID,
		Status:     ExecutionPending,
		Input:      cloneMap(input),
		Output:     make(map[string]interface{}),
		Stages:     make([]*StageExecution, 0, len(def.Stages)),
		StartedAt:  time.Now(),
		Metrics: ExecutionMetrics{
			TotalStages:   len(def.Stages),
			QualityScores: make(map[string]float64),
		},
	}
	for i := range def.Stages {
		exec.Stages = append(exec.Stages, &StageExecution{
			StageID: def.Stages[i].ID,
			Status:  StagePending,
		})
	}
	return exec
}
