/*-------------------------------------------------------------------------
 *
 * retry.go
 *    Retry delay computation
 *
 * Pure mapping from (policy, attempt) to a backoff delay. The delay is
 * the wait inserted after the given attempt number fails.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/retry.go
 *
 *-------------------------------------------------------------------------
 */

package workflow

import "time"

/* RetryDelay computes the backoff delay after a failed attempt.
 * attempt is 1-based. The result is capped at policy.MaxDelay when a
 * cap is configured. No jitter is applied. */
func RetryDelay(policy RetryPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := policy.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	var delay time.Duration
	switch policy.Backoff {
	case BackoffLinear:
		delay = base * time.Duration(attempt)
	case BackoffExponential:
		delay = base
		for i := 1; i < attempt; i++ {
			delay *= 2
			if policy.MaxDelay > 0 && delay >= policy.MaxDelay {
				return policy.MaxDelay
			}
		}
	case BackoffFixed:
		delay = base
	default:
		delay = base
	}

	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay
}
