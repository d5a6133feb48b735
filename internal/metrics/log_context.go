/*-------------------------------------------------------------------------
 *
 * log_context.go
 *    Log context helpers for structured logging
 *
 * Provides helpers for consistent structured logging with request_id,
 * workflow_id, execution_id, stage_id fields across all components.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/metrics/log_context.go
 *
 *-------------------------------------------------------------------------
 */

package metrics

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	workflowIDKey  contextKey = "workflow_id"
	executionIDKey contextKey = "execution_id"
	stageIDKey     contextKey = "stage_id"
)

/* WithLogContext adds logging fields to context */
func WithLogContext(ctx context.Context, requestID, workflowID, executionID, stageID string) context.Context {
	if requestID != "" {
		ctx = context.WithValue(ctx, requestIDKey, requestID)
	}
	if workflowID != "" {
		ctx = context.WithValue(ctx, workflowIDKey, workflowID)
	}
	if executionID != "" {
		ctx = context.WithValue(ctx, executionIDKey, executionID)
	}
	if stageID != "" {
		ctx = context.WithValue(ctx, stageIDKey, stageID)
	}
	return ctx
}

/* WithExecutionIDLogContext adds execution ID to log context */
func WithExecutionIDLogContext(ctx context.Context, executionID uuid.UUID) context.Context {
	return context.WithValue(ctx, executionIDKey, executionID.String())
}

/* WithStageIDLogContext adds stage ID to log context */
func WithStageIDLogContext(ctx context.Context, stageID string) context.Context {
	return context.WithValue(ctx, stageIDKey, stageID)
}

/* GetRequestIDFromContext gets request ID from context */
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

/* GetWorkflowIDFromContext gets workflow ID from context */
func GetWorkflowIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(workflowIDKey).(string); ok {
		return id
	}
	return ""
}

/* GetExecutionIDFromContext gets execution ID from context */
func GetExecutionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(executionIDKey).(string); ok {
		return id
	}
	if id, ok := ctx.Value(executionIDKey).(uuid.UUID); ok {
		return id.String()
	}
	return ""
}

/* GetStageIDFromContext gets stage ID from context */
func GetStageIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(stageIDKey).(string); ok {
		return id
	}
	return ""
}

/* LoggerFromContext creates a zerolog logger with fields from context */
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	logger := *zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	/* Add context fields */
	requestID := GetRequestIDFromContext(ctx)
	workflowID := GetWorkflowIDFromContext(ctx)
	executionID := GetExecutionIDFromContext(ctx)
	stageID := GetStageIDFromContext(ctx)

	if requestID != "" {
		logger = logger.With().Str("request_id", requestID).Logger()
	}
	if workflowID != "" {
		logger = logger.With().Str("workflow_id", workflowID).Logger()
	}
	if executionID != "" {
		logger = logger.With().Str("execution_id", executionID).Logger()
	}
	if stageID != "" {
		logger = logger.With().Str("stage_id", stageID).Logger()
	}

	return logger
}

/* LogWithContext logs a message with context fields */
func LogWithContext(ctx context.Context, level zerolog.Level, message string, fields map[string]interface{}) {
	logger := LoggerFromContext(ctx)
	event := logger.WithLevel(level)

	for key, value := range fields {
		event = event.Interface(key, value)
	}

	event.Msg(message)
}

/* DebugWithContext logs a debug message with context */
func DebugWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.DebugLevel, message, fields)
}

/* InfoWithContext logs an info message with context */
func InfoWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.InfoLevel, message, fields)
}

/* WarnWithContext logs a warning message with context */
func WarnWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.WarnLevel, message, fields)
}

/* ErrorWithContext logs an error message with context */
func ErrorWithContext(ctx context.Context, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogWithContext(ctx, zerolog.ErrorLevel, message, fields)
}
