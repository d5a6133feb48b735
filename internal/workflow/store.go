/*-------------------------------------------------------------------------
 *
 * store.go
 *    In-memory execution store
 *
 * Stores deep clones of execution snapshots so callers never observe
 * mid-flight mutation by the scheduler.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/store.go
 *
 *-------------------------------------------------------------------------
 */

package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

/* MemoryExecutionStore is the default non-durable execution store */
type MemoryExecutionStore struct {
	mu         sync.RWMutex
	executions map[uuid.UUID]*WorkflowExecution
}

/* NewMemoryExecutionStore creates an empty in-memory store */
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{
		executions: make(map[uuid.UUID]*WorkflowExecution),
	}
}

/* SaveExecution stores a deep clone of the execution snapshot */
func (s *MemoryExecutionStore) SaveExecution(_ context.Context, execution *WorkflowExecution) error {
	if execution == nil {
		return fmt.Errorf("execution is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[execution.ID] = execution.Clone()
	return nil
}

/* GetExecution returns a deep clone or ErrExecutionNotFound */
func (s *MemoryExecutionStore) GetExecution(_ context.Context, executionID uuid.UUID) (*WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	execution, ok := s.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("execution lookup failed: execution_id='%s', error=%w", executionID, ErrExecutionNotFound)
	}
	return execution.Clone(), nil
}

/* ListExecutions returns clones for a workflow, newest first. An empty
 * workflowID matches all executions. */
func (s *MemoryExecutionStore) ListExecutions(_ context.Context, workflowID string, limit int) ([]*WorkflowExecution, error) {
	s.mu.RLock()
	matched := make([]*WorkflowExecution, 0, len(s.executions))
	for _, execution := range s.executions {
		if workflowID == "" || execution.WorkflowID == workflowID {
			matched = append(matched, execution.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
