/*-------------------------------------------------------------------------
 *
 * review.go
 *    Human review gateway
 *
 * Tracks outstanding (execution, stage) review requests and suspends the
 * calling goroutine on a resolution channel until an external caller
 * completes the review or the configured timeout elapses. Only the exact
 * matching key resolves a suspension; no worker is occupied while a
 * review waits.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/review.go
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

type reviewKey struct {
	executionID uuid.UUID
	stageID     string
}

/* HumanReviewGateway resolves suspended human review stages */
type HumanReviewGateway struct {
	mu      sync.Mutex
	pending map[reviewKey]chan *HumanReviewRecord
}

/* NewHumanReviewGateway creates a human review gateway */
func NewHumanReviewGateway() *HumanReviewGateway {
	return &HumanReviewGateway{
		pending: make(map[reviewKey]chan *HumanReviewRecord),
	}
}

/* Await registers a pending review and suspends until it is completed,
 * the timeout elapses, or the context is cancelled. Timeout returns
 * ErrReviewTimeout; the caller applies the review's terminal action. */
func (g *HumanReviewGateway) Await(ctx context.Context, executionID uuid.UUID, stageID string, timeout time.Duration) (*HumanReviewRecord, error) {
	key := reviewKey{executionID: executionID, stageID: stageID}
	ch := make(chan *HumanReviewRecord, 1)

	g.mu.Lock()
	if _, exists := g.pending[key]; exists {
		g.mu.Unlock()
		return nil, fmt.Errorf("review already pending: execution_id='%s', stage_id='%s'", executionID, stageID)
	}
	g.pending[key] = ch
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.pending[key] == ch {
			delete(g.pending, key)
		}
		g.mu.Unlock()
	}()

	requestedAt := time.Now()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeoutCh:
		metrics.RecordHumanReview("timeout", time.Since(requestedAt))
		return nil, ErrReviewTimeout
	case record := <-ch:
		metrics.RecordHumanReview(record.Decision, time.Since(requestedAt))
		return record, nil
	}
}

/* Complete resolves the suspension matching exactly (executionID, stageID).
 * Returns ErrNoPendingReview when no such suspension exists; unrelated
 * suspensions are untouched. */
func (g *HumanReviewGateway) Complete(executionID uuid.UUID, stageID string, record *HumanReviewRecord) error {
	if record == nil {
		return fmt.Errorf("review record is required")
	}
	if record.SubmittedAt.IsZero() {
		record.SubmittedAt = time.Now()
	}

	key := reviewKey{executionID: executionID, stageID: stageID}

	g.mu.Lock()
	ch, ok := g.pending[key]
	if ok {
		delete(g.pending, key)
	}
	g.mu.Unlock()

	if !ok {
		return ErrNoPendingReview
	}

	ch <- record
	return nil
}

/* Pending reports whether a review is outstanding for the key */
func (g *HumanReviewGateway) Pending(executionID uuid.UUID, stageID string) bool {
	key := reviewKey{executionID: executionID, stageID: stageID}
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[key]
	return ok
}

/* PendingCount returns the number of outstanding reviews */
func (g *HumanReviewGateway) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
