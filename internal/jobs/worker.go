/*-------------------------------------------------------------------------
 *
 * worker.go
 *    Background delivery worker for NeuronFlow
 *
 * Provides worker pool for processing notification delivery jobs from
 * the queue with configurable concurrency and graceful shutdown
 * support.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/jobs/worker.go
 *
 *-------------------------------------------------------------------------
 */

package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* Sender delivers a payload to a named channel */
type Sender interface {
	Send(ctx context.Context, channel string, payload map[string]interface{}) error
}

type Worker struct {
	queue      *Queue
	sender     Sender
	workers    int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	retryDelay time.Duration
}

func NewWorker(queue *Queue, sender Sender, workers int) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	if workers <= 0 {
		workers = 2
	}
	return &Worker{
		queue:      queue,
		sender:     sender,
		workers:    workers,
		ctx:        ctx,
		cancel:     cancel,
		retryDelay: 5 * time.Second,
	}
}

func (w *Worker) Start() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.work()
	}
}

func (w *Worker) work() {
	defer w.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			for {
				job, err := w.queue.ClaimJob(w.ctx)
				if err != nil || job == nil {
					break
				}
				w.processJob(job)
			}
		}
	}
}

func (w *Worker) processJob(job *DeliveryJob) {
	err := w.sender.Send(w.ctx, job.Channel, job.Payload)
	if err == nil {
		return
	}

	if job.RetryCount >= job.MaxRetries {
		metrics.ErrorWithContext(w.ctx, "delivery job exhausted retries", err, map[string]interface{}{
			"job_id":  job.ID.String(),
			"channel": job.Channel,
			"retries": job.RetryCount,
		})
		metrics.RecordNotificationDelivery(job.Channel, "exhausted")
		return
	}

	/* Linear backoff between delivery attempts */
	delay := w.retryDelay * time.Duration(job.RetryCount+1)
	w.queue.Requeue(job, delay)
	metrics.WarnWithContext(w.ctx, "delivery job requeued", map[string]interface{}{
		"job_id":  job.ID.String(),
		"channel": job.Channel,
		"retries": job.RetryCount,
		"delay":   delay.String(),
	})
}

func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
}
