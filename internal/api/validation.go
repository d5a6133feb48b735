/*-------------------------------------------------------------------------
 *
 * validation.go
 *    Request validation utilities for NeuronFlow API
 *
 * Provides validation functions for API requests including body size
 * limits, UUID validation, and pagination.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/api/validation.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/google/uuid"
)

var workflowIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

/* ReadAndValidateBody reads the request body enforcing a size limit */
func ReadAndValidateBody(r *http.Request, maxSize int64) ([]byte, error) {
	if r.Body == nil {
		return nil, fmt.Errorf("request body is required")
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > maxSize {
		return nil, fmt.Errorf("request body exceeds maximum size of %d bytes", maxSize)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("request body is empty")
	}
	return body, nil
}

/* ValidateUUIDRequired validates a required UUID path parameter */
func ValidateUUIDRequired(value, field string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if _, err := uuid.Parse(value); err != nil {
		return fmt.Errorf("%s must be a valid UUID", field)
	}
	return nil
}

/* ValidateWorkflowID validates a workflow identifier path parameter */
func ValidateWorkflowID(value string) error {
	if value == "" {
		return fmt.Errorf("workflow_id is required")
	}
	if len(value) > 100 {
		return fmt.Errorf("workflow_id must not exceed 100 characters")
	}
	if !workflowIDRegex.MatchString(value) {
		return fmt.Errorf("workflow_id must contain only alphanumeric characters, dashes, and underscores")
	}
	return nil
}

/* ParseLimit parses a limit query parameter with bounds */
func ParseLimit(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}
