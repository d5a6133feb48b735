/*-------------------------------------------------------------------------
 *
 * errors.go
 *    Error taxonomy for the orchestration engine
 *
 * Defines validation, stage execution, timeout, deadlock, and quality
 * gate errors with the retryable classification used by the scheduler.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/errors.go
 *
 *-------------------------------------------------------------------------
 */

package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrDefinitionNotFound  = errors.New("workflow definition not found")
	ErrExecutionNotFound   = errors.New("workflow execution not found")
	ErrExecutionNotRunning = errors.New("workflow execution is not running")
	ErrNoPendingReview     = errors.New("no pending human review for key")
	ErrNoPendingApproval   = errors.New("no pending approval for key")
	ErrReviewTimeout       = errors.New("human review timed out")
)

/* ValidationError rejects a malformed definition at registration time */
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow validation failed: field='%s', reason=%s", e.Field, e.Reason)
}

/* StageError is a stage handler failure with retryable classification.
 * Handlers that cannot classify leave Retryable unset via NewStageError;
 * IsRetryable treats unclassified errors as retryable, matching the
 * uniform-retry behavior of the engine. */
type StageError struct {
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stage execution failed: code=%s, %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("stage execution failed: code=%s, %s", e.Code, e.Message)
}

func (e *StageError) Unwrap() error { return e.Err }

/* IsRetryable reports the stage error classification */
func (e *StageError) IsRetryable() bool { return e.Retryable }

/* NewStageError creates a retryable stage error */
func NewStageError(code, message string, err error) *StageError {
	return &StageError{Code: code, Message: message, Retryable: true, Err: err}
}

/* NewPermanentStageError creates a non-retryable stage error */
func NewPermanentStageError(code, message string, err error) *StageError {
	return &StageError{Code: code, Message: message, Retryable: false, Err: err}
}

/* TimeoutError marks a stage that exceeded its configured timeout */
type TimeoutError struct {
	StageID string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("stage timed out: stage_id='%s', timeout=%s", e.StageID, e.Timeout)
}

/* IsRetryable reports that timeouts follow the normal retry path */
func (e *TimeoutError) IsRetryable() bool { return true }

/* DeadlockError is a fatal invariant violation: stages remain but none
 * is ready. Unreachable for a validated acyclic definition. */
type DeadlockError struct {
	Remaining []string
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("workflow deadlocked: no ready stages, remaining=[%s]", strings.Join(e.Remaining, ", "))
}

/* IsRetryable reports that deadlocks are never recoverable */
func (e *DeadlockError) IsRetryable() bool { return false }

/* QualityGateFailure marks a mandatory gate scoring under its threshold */
type QualityGateFailure struct {
	GateID    string
	Score     float64
	Threshold float64
	Result    *GateResult
}

func (e *QualityGateFailure) Error() string {
	return fmt.Sprintf("quality gate failed: gate_id='%s', score=%.2f, threshold=%.2f", e.GateID, e.Score, e.Threshold)
}

/* retryClassifier is implemented by errors that know their retry class */
type retryClassifier interface {
	IsRetryable() bool
}

/* IsRetryable reports whether a stage failure is eligible for retry.
 * Unclassified errors are retried, preserving the engine's uniform
 * retry behavior for handlers that do not classify. */
func IsRetryable(err error) bool {
	var rc retryClassifier
	if errors.As(err, &rc) {
		return rc.IsRetryable()
	}
	return true
}

/* toExecutionError converts an error into the structured terminal form */
func toExecutionError(err error) *ExecutionError {
	code := "stage_failed"
	recoverable := IsRetryable(err)

	var se *StageError
	var te *TimeoutError
	var de *DeadlockError
	var qe *QualityGateFailure
	var ve *ValidationError
	switch {
	case errors.As(err, &de):
		code = "deadlock"
		recoverable = false
	case errors.As(err, &te):
		code = "timeout"
	case errors.As(err, &qe):
		code = "quality_gate_failed"
	case errors.As(err, &ve):
		code = "validation_failed"
		recoverable = false
	case errors.As(err, &se):
		code = se.Code
	}

	return &ExecutionError{
		Code:        code,
		Message:     err.Error(),
		Timestamp:   time.Now(),
		Recoverable: recoverable,
	}
}
