/*-------------------------------------------------------------------------
 *
 * handlers.go
 *    API handlers for the NeuronFlow orchestration engine
 *
 * Provides REST API endpoints for workflow registration, execution,
 * cancellation, status, history, human review, approvals, and
 * aggregated workflow metrics.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/api/handlers.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/neurondb/NeuronFlow/internal/metrics"
	"github.com/neurondb/NeuronFlow/internal/workflow"
)

const maxBodySize = 1024 * 1024

type Handlers struct {
	orchestrator *workflow.Orchestrator
}

func NewHandlers(orchestrator *workflow.Orchestrator) *Handlers {
	return &Handlers{orchestrator: orchestrator}
}

/* NewRouter builds the API router with middleware applied */
func NewRouter(handlers *Handlers, stream *EventStream) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestIDMiddleware)
	router.Use(RecoveryMiddleware)
	router.Use(CORSMiddleware)
	router.Use(LoggingMiddleware)

	router.HandleFunc("/health", handlers.Health).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/workflows", handlers.RegisterWorkflow).Methods("POST")
	v1.HandleFunc("/workflows", handlers.ListWorkflows).Methods("GET")
	v1.HandleFunc("/workflows/{id}", handlers.GetWorkflow).Methods("GET")
	v1.HandleFunc("/workflows/{id}/execute", handlers.ExecuteWorkflow).Methods("POST")
	v1.HandleFunc("/workflows/{id}/executions", handlers.ListExecutions).Methods("GET")
	v1.HandleFunc("/workflows/{id}/metrics", handlers.GetWorkflowMetrics).Methods("GET")
	v1.HandleFunc("/executions/{id}", handlers.GetExecution).Methods("GET")
	v1.HandleFunc("/executions/{id}/cancel", handlers.CancelExecution).Methods("POST")
	v1.HandleFunc("/executions/{id}/stages/{stage_id}/review", handlers.CompleteReview).Methods("POST")
	v1.HandleFunc("/executions/{id}/stages/{stage_id}/approval", handlers.SubmitApproval).Methods("POST")

	if stream != nil {
		v1.HandleFunc("/events/stream", stream.Handle).Methods("GET")
	}

	return router
}

/* Health reports service liveness */
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

/* RegisterWorkflow validates and registers a workflow definition */
func (h *Handlers) RegisterWorkflow(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	body, err := ReadAndValidateBody(r, maxBodySize)
	if err != nil {
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "request body validation failed", err, requestID, r.URL.Path, r.Method, "workflow", "", nil))
		return
	}

	var def workflow.WorkflowDefinition
	if err := json.Unmarshal(body, &def); err != nil {
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "request body parsing error", err, requestID, r.URL.Path, r.Method, "workflow", "", nil))
		return
	}

	if err := h.orchestrator.RegisterWorkflow(r.Context(), &def); err != nil {
		var ve *workflow.ValidationError
		if errors.As(err, &ve) {
			respondError(w, NewErrorWithContext(http.StatusBadRequest, "workflow validation failed", err, requestID, r.URL.Path, r.Method, "workflow", def.ID, nil))
			return
		}
		respondError(w, NewErrorWithContext(http.StatusInternalServerError, "workflow registration failed", err, requestID, r.URL.Path, r.Method, "workflow", def.ID, nil))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"workflow_id": def.ID,
		"stage_count": len(def.Stages),
	})
}

/* ListWorkflows lists registered workflow ids */
func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": h.orchestrator.Registry().List(),
	})
}

/* GetWorkflow returns a registered workflow definition */
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := GetRequestID(r.Context())

	if err := ValidateWorkflowID(vars["id"]); err != nil {
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "invalid workflow ID", err, requestID, r.URL.Path, r.Method, "workflow", vars["id"], nil))
		return
	}

	def, err := h.orchestrator.Registry().Get(vars["id"])
	if err != nil {
		respondError(w, WrapError(ErrNotFound, requestID))
		return
	}

	respondJSON(w, http.StatusOK, def)
}

/* ExecuteWorkflow starts a workflow execution. With async=true the
 * execution id returns immediately; otherwise the handler blocks until
 * the execution reaches a terminal state. */
func (h *Handlers) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := GetRequestID(r.Context())

	if err := ValidateWorkflowID(vars["id"]); err != nil {
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "invalid workflow ID", err, requestID, r.URL.Path, r.Method, "workflow", vars["id"], nil))
		return
	}

	var req struct {
		Input map[string]interface{} `json:"input"`
		Async bool                   `json:"async,omitempty"`
	}
	if r.ContentLength > 0 {
		body, err := ReadAndValidateBody(r, maxBodySize)
		if err != nil {
			respondError(w, NewErrorWithContext(http.StatusBadRequest, "request body validation failed", err, requestID, r.URL.Path, r.Method, "execution", "", nil))
			return
		}
		if err := json.Unmarshal(body, &req); err != nil {
			respondError(w, NewErrorWithContext(http.StatusBadRequest, "request body parsing error", err, requestID, r.URL.Path, r.Method, "execution", "", nil))
			return
		}
	}
	if r.URL.Query().Get("async") == "true" {
		req.Async = true
	}

	if req.Async {
		executionID, err := h.orchestrator.StartWorkflow(r.Context(), vars["id"], req.Input)
		if err != nil {
			respondExecuteError(w, r, requestID, vars["id"], err)
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"execution_id": executionID.String(),
			"status":       string(workflow.ExecutionRunning),
		})
		return
	}

	execution, err := h.orchestrator.ExecuteWorkflow(r.Context(), vars["id"], req.Input)
	if err != nil && execution == nil {
		respondExecuteError(w, r, requestID, vars["id"], err)
		return
	}

	/* Failed executions return the terminal record with 200; the error
	 * taxonomy is carried in the execution body */
	respondJSON(w, http.StatusOK, execution)
}

func respondExecuteError(w http.ResponseWriter, r *http.Request, requestID, workflowID string, err error) {
	if errors.Is(err, workflow.ErrDefinitionNotFound) {
		respondError(w, WrapError(ErrNotFound, requestID))
		return
	}
	respondError(w, NewErrorWithContext(http.StatusInternalServerError, "workflow execution failed to start", err, requestID, r.URL.Path, r.Method, "execution", workflowID, nil))
}

/* GetExecution returns an execution snapshot */
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := GetRequestID(r.Context())

	executionID, apiErr := parseExecutionID(vars["id"], requestID, r)
	if apiErr != nil {
		respondError(w, apiErr)
		return
	}

	execution, err := h.orchestrator.GetExecutionStatus(r.Context(), executionID)
	if err != nil {
		if errors.Is(err, workflow.ErrExecutionNotFound) {
			respondError(w, WrapError(ErrNotFound, requestID))
			return
		}
		respondError(w, NewErrorWithContext(http.StatusInternalServerError, "execution lookup failed", err, requestID, r.URL.Path, r.Method, "execution", vars["id"], nil))
		return
	}

	respondJSON(w, http.StatusOK, execution)
}

/* ListExecutions returns recent executions for a workflow */
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := GetRequestID(r.Context())

	if err := ValidateWorkflowID(vars["id"]); err != nil {
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "invalid workflow ID", err, requestID, r.URL.Path, r.Method, "workflow", vars["id"], nil))
		return
	}

	limit, err := ParseLimit(r, 50, 500)
	if err != nil {
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "invalid limit", err, requestID, r.URL.Path, r.Method, "execution", "", nil))
		return
	}

	executions, err := h.orchestrator.GetExecutionHistory(r.Context(), vars["id"], limit)
	if err != nil {
		respondError(w, NewErrorWithContext(http.StatusInternalServerError, "execution list failed", err, requestID, r.URL.Path, r.Method, "execution", vars["id"], nil))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"workflow_id": vars["id"],
		"executions":  executions,
	})
}

/* CancelExecution requests cancellation of a running execution */
func (h *Handlers) CancelExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := GetRequestID(r.Context())

	executionID, apiErr := parseExecutionID(vars["id"], requestID, r)
	if apiErr != nil {
		respondError(w, apiErr)
		return
	}

	var req struct {
		Reason string `json:"reason,omitempty"`
	}
	if r.ContentLength > 0 {
		if body, err := ReadAndValidateBody(r, maxBodySize); err == nil {
			_ = json.Unmarshal(body, &req)
		}
	}
	if req.Reason == "" {
		req.Reason = "cancelled via API"
	}

	if err := h.orchestrator.CancelWorkflow(r.Context(), executionID, req.Reason); err != nil {
		switch {
		case errors.Is(err, workflow.ErrExecutionNotFound):
			respondError(w, WrapError(ErrNotFound, requestID))
		case errors.Is(err, workflow.ErrExecutionNotRunning):
			respondError(w, WrapError(ErrConflict, requestID))
		default:
			respondError(w, NewErrorWithContext(http.StatusInternalServerError, "execution cancel failed", err, requestID, r.URL.Path, r.Method, "execution", vars["id"], nil))
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"execution_id": executionID.String(),
		"status":       string(workflow.ExecutionCancelled),
		"reason":       req.Reason,
	})
}

/* CompleteReview resolves a suspended human review stage */
func (h *Handlers) CompleteReview(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := GetRequestID(r.Context())

	executionID, apiErr := parseExecutionID(vars["id"], requestID, r)
	if apiErr != nil {
		respondError(w, apiErr)
		return
	}

	body, err := ReadAndValidateBody(r, maxBodySize)
	if err != nil {
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "request body validation failed", err, requestID, r.URL.Path, r.Method, "review", "", nil))
		return
	}

	var record workflow.HumanReviewRecord
	if err := json.Unmarshal(body, &record); err != nil {
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "request body parsing error", err, requestID, r.URL.Path, r.Method, "review", "", nil))
		return
	}
	if record.Reviewer == "" {
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "reviewer is required", nil, requestID, r.URL.Path, r.Method, "review", "", nil))
		return
	}
	switch record.Decision {
	case workflow.ReviewApproved, workflow.ReviewRejected, workflow.ReviewChangesRequested:
	default:
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "decision must be one of: approved, rejected, changes_requested", nil, requestID, r.URL.Path, r.Method, "review", "", nil))
		return
	}

	if err := h.orchestrator.CompleteHumanReview(r.Context(), executionID, vars["stage_id"], &record); err != nil {
		if errors.Is(err, workflow.ErrNoPendingReview) {
			respondError(w, WrapError(ErrNotFound, requestID))
			return
		}
		respondError(w, NewErrorWithContext(http.StatusInternalServerError, "review completion failed", err, requestID, r.URL.Path, r.Method, "review", vars["stage_id"], nil))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"execution_id": executionID.String(),
		"stage_id":     vars["stage_id"],
		"decision":     record.Decision,
	})
}

/* SubmitApproval records an approver decision for an approval stage */
func (h *Handlers) SubmitApproval(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := GetRequestID(r.Context())

	executionID, apiErr := parseExecutionID(vars["id"], requestID, r)
	if apiErr != nil {
		respondError(w, apiErr)
		return
	}

	body, err := ReadAndValidateBody(r, maxBodySize)
	if err != nil {
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "request body validation failed", err, requestID, r.URL.Path, r.Method, "approval", "", nil))
		return
	}

	var decision workflow.ApprovalDecision
	if err := json.Unmarshal(body, &decision); err != nil {
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "request body parsing error", err, requestID, r.URL.Path, r.Method, "approval", "", nil))
		return
	}
	if decision.Approver == "" {
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "approver is required", nil, requestID, r.URL.Path, r.Method, "approval", "", nil))
		return
	}

	if err := h.orchestrator.SubmitApprovalDecision(r.Context(), executionID, vars["stage_id"], decision); err != nil {
		if errors.Is(err, workflow.ErrNoPendingApproval) {
			respondError(w, WrapError(ErrNotFound, requestID))
			return
		}
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "approval submission failed", err, requestID, r.URL.Path, r.Method, "approval", vars["stage_id"], nil))
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"execution_id": executionID.String(),
		"stage_id":     vars["stage_id"],
		"approver":     decision.Approver,
	})
}

/* GetWorkflowMetrics returns aggregated execution metrics */
func (h *Handlers) GetWorkflowMetrics(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := GetRequestID(r.Context())

	if err := ValidateWorkflowID(vars["id"]); err != nil {
		respondError(w, NewErrorWithContext(http.StatusBadRequest, "invalid workflow ID", err, requestID, r.URL.Path, r.Method, "workflow", vars["id"], nil))
		return
	}

	wm, err := h.orchestrator.GetWorkflowMetrics(r.Context(), vars["id"])
	if err != nil {
		if errors.Is(err, workflow.ErrDefinitionNotFound) {
			respondError(w, WrapError(ErrNotFound, requestID))
			return
		}
		respondError(w, NewErrorWithContext(http.StatusInternalServerError, "metrics aggregation failed", err, requestID, r.URL.Path, r.Method, "workflow", vars["id"], nil))
		return
	}

	respondJSON(w, http.StatusOK, wm)
}

func parseExecutionID(raw, requestID string, r *http.Request) (uuid.UUID, *APIError) {
	if err := ValidateUUIDRequired(raw, "execution_id"); err != nil {
		return uuid.Nil, NewErrorWithContext(http.StatusBadRequest, "invalid execution ID", err, requestID, r.URL.Path, r.Method, "execution", raw, nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, NewErrorWithContext(http.StatusBadRequest, "invalid execution ID format", err, requestID, r.URL.Path, r.Method, "execution", raw, nil)
	}
	return id, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, err *APIError) {
	response := ErrorResponse{
		Error: err.Message,
		Code:  err.Code,
	}
	if err.Err != nil {
		response.Message = err.Err.Error()
	}
	if err.RequestID != "" {
		w.Header().Set("X-Request-ID", err.RequestID)
	}
	respondJSON(w, err.Code, response)
}
