/*-------------------------------------------------------------------------
 *
 * queue.go
 *    Delivery job queue
 *
 * In-memory queue of notification delivery jobs. Jobs carry a retry
 * budget; requeued jobs keep their position behind newer work so a
 * failing endpoint cannot starve the queue.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/jobs/queue.go
 *
 *-------------------------------------------------------------------------
 */

package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

/* DeliveryJob is one pending notification delivery */
type DeliveryJob struct {
	ID         uuid.UUID              `json:"id"`
	Channel    string                 `json:"channel"`
	Payload    map[string]interface{} `json:"payload"`
	RetryCount int                    `json:"retry_count"`
	MaxRetries int                    `json:"max_retries"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
	NotBefore  time.Time              `json:"not_before"`
}

/* Queue is an in-memory delivery job queue */
type Queue struct {
	mu   sync.Mutex
	jobs []*DeliveryJob
}

/* NewQueue creates an empty queue */
func NewQueue() *Queue {
	return &Queue{jobs: make([]*DeliveryJob, 0)}
}

/* Enqueue adds a delivery job */
func (q *Queue) Enqueue(channel string, payload map[string]interface{}, maxRetries int) uuid.UUID {
	job := &DeliveryJob{
		ID:         uuid.New(),
		Channel:    channel,
		Payload:    payload,
		MaxRetries: maxRetries,
		EnqueuedAt: time.Now(),
	}
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	return job.ID
}

/* ClaimJob removes and returns the oldest claimable job, or nil */
func (q *Queue) ClaimJob(_ context.Context) (*DeliveryJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for i, job := range q.jobs {
		if job.NotBefore.After(now) {
			continue
		}
		q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
		return job, nil
	}
	return nil, nil
}

/* Requeue returns a failed job to the queue with a retry delay */
func (q *Queue) Requeue(job *DeliveryJob, delay time.Duration) {
	job.RetryCount++
	job.NotBefore = time.Now().Add(delay)
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
}

/* Len returns the number of queued jobs */
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
