/*-------------------------------------------------------------------------
 *
 * queue_test.go
 *    Tests for the delivery job queue and worker pool
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/jobs/queue_test.go
 *
 *-------------------------------------------------------------------------
 */

package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueueEnqueueAndClaim(t *testing.T) {
	queue := NewQueue()
	ctx := context.Background()

	queue.Enqueue("blog", map[string]interface{}{"event": "completed"}, 3)
	queue.Enqueue("newsletter", map[string]interface{}{"event": "failed"}, 3)
	if queue.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", queue.Len())
	}

	first, err := queue.ClaimJob(ctx)
	if err != nil {
		t.Fatalf("ClaimJob() error = %v", err)
	}
	if first == nil || first.Channel != "blog" {
		t.Errorf("first job = %+v, want oldest job first", first)
	}

	second, _ := queue.ClaimJob(ctx)
	if second == nil || second.Channel != "newsletter" {
		t.Errorf("second job = %+v", second)
	}

	empty, err := queue.ClaimJob(ctx)
	if err != nil || empty != nil {
		t.Errorf("ClaimJob() on empty queue = (%+v, %v), want (nil, nil)", empty, err)
	}
}

func TestQueueRequeueDelaysJob(t *testing.T) {
	queue := NewQueue()
	ctx := context.Background()

	queue.Enqueue("blog", nil, 3)
	job, _ := queue.ClaimJob(ctx)

	queue.Requeue(job, 50*time.Millisecond)
	if job.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", job.RetryCount)
	}

	/* The job is not claimable until its NotBefore passes */
	if early, _ := queue.ClaimJob(ctx); early != nil {
		t.Error("ClaimJob() returned a delayed job before its retry time")
	}

	time.Sleep(60 * time.Millisecond)
	if late, _ := queue.ClaimJob(ctx); late == nil {
		t.Error("ClaimJob() did not return the job after its retry delay")
	}
}

func TestQueueRequeueSkipsDelayedJobs(t *testing.T) {
	queue := NewQueue()
	ctx := context.Background()

	queue.Enqueue("blog", nil, 3)
	delayed, _ := queue.ClaimJob(ctx)
	queue.Requeue(delayed, time.Minute)

	queue.Enqueue("newsletter", nil, 3)
	job, _ := queue.ClaimJob(ctx)
	if job == nil || job.Channel != "newsletter" {
		t.Errorf("ClaimJob() = %+v, want the claimable job behind a delayed one", job)
	}
}

/* recordingSender fails a channel a configured number of times */
type recordingSender struct {
	mu       sync.Mutex
	failures int
	sends    int
}

func (s *recordingSender) Send(_ context.Context, _ string, _ map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	if s.failures > 0 {
		s.failures--
		return errors.New("delivery failed")
	}
	return nil
}

func (s *recordingSender) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends
}

func TestWorkerProcessesJobs(t *testing.T) {
	queue := NewQueue()
	sender := &recordingSender{}
	worker := NewWorker(queue, sender, 1)
	worker.retryDelay = time.Millisecond

	queue.Enqueue("blog", map[string]interface{}{"event": "completed"}, 3)
	queue.Enqueue("newsletter", map[string]interface{}{"event": "completed"}, 3)

	worker.Start()
	defer worker.Stop()

	deadline := time.After(5 * time.Second)
	for sender.sendCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("worker delivered %d jobs, want 2", sender.sendCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
	if queue.Len() != 0 {
		t.Errorf("queue length = %d after delivery, want 0", queue.Len())
	}
}

func TestWorkerRetriesFailedDelivery(t *testing.T) {
	queue := NewQueue()
	sender := &recordingSender{failures: 2}
	worker := NewWorker(queue, sender, 1)
	worker.retryDelay = time.Millisecond

	queue.Enqueue("blog", nil, 3)

	worker.Start()
	defer worker.Stop()

	deadline := time.After(10 * time.Second)
	for sender.sendCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("worker attempted %d deliveries, want 3 (two failures then success)", sender.sendCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWorkerDropsJobAfterMaxRetries(t *testing.T) {
	queue := NewQueue()
	sender := &recordingSender{failures: 100}
	worker := NewWorker(queue, sender, 1)
	worker.retryDelay = time.Millisecond

	queue.Enqueue("blog", nil, 2)

	worker.Start()
	defer worker.Stop()

	/* 1 initial attempt + 2 retries, then the job is dropped */
	deadline := time.After(10 * time.Second)
	for sender.sendCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("worker attempted %d deliveries, want 3", sender.sendCount())
		case <-time.After(10 * time.Millisecond):
		}
	}

	time.Sleep(100 * time.Millisecond)
	if queue.Len() != 0 {
		t.Errorf("queue length = %d, want 0 after the job is dropped", queue.Len())
	}
	if sender.sendCount() > 3 {
		t.Errorf("worker attempted %d deliveries, want exactly 3", sender.sendCount())
	}
}
