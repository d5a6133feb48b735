/*-------------------------------------------------------------------------
 *
 * errors.go
 *    API error types and helpers
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/api/errors.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"net/http"
)

/* APIError carries an HTTP status and request context for a failure */
type APIError struct {
	Code      int
	Message   string
	Err       error
	RequestID string
	Path      string
	Method    string
	Resource  string
	ID        string
	Details   map[string]interface{}
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

/* ErrorResponse is the JSON error body */
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

/* Common API errors */
var (
	ErrNotFound     = NewError(http.StatusNotFound, "resource not found", nil)
	ErrUnauthorized = NewError(http.StatusUnauthorized, "authentication required", nil)
	ErrConflict     = NewError(http.StatusConflict, "resource conflict", nil)
)

/* NewError creates an API error */
func NewError(code int, message string, err error) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

/* NewErrorWithContext creates an API error with request context */
func NewErrorWithContext(code int, message string, err error, requestID, path, method, resource, id string, details map[string]interface{}) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Err:       err,
		RequestID: requestID,
		Path:      path,
		Method:    method,
		Resource:  resource,
		ID:        id,
		Details:   details,
	}
}

/* WrapError attaches a request ID to an existing API error */
func WrapError(err *APIError, requestID string) *APIError {
	wrapped := *err
	wrapped.RequestID = requestID
	return &wrapped
}
