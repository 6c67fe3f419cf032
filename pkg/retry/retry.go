package retry

import (
	"context"
	"fmt"
)

// Operation is one fallible call to be retried
type Operation[T any] func(ctx context.Context) (T, error)

// Do runs op until it succeeds, fails with a non-retryable error, or the
// policy's attempt bound is reached. The error of the final attempt is
// returned unchanged.
func Do[T any](ctx context.Context, p *Policy, endpoint string, op Operation[T]) (T, error) {
	var zero T
	maxAttempts := p.MaxAttempts()

	for attempt := 1; ; attempt++ {
		p.stats.recordAttempt(endpoint)

		result, err := op(ctx)
		if err == nil {
			p.stats.recordSuccess(endpoint)
			p.metrics.RecordAttempt(endpoint, "success")
			if attempt > 1 {
				p.log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"endpoint": endpoint,
					"attempt":  attempt,
				})
			}
			return result, nil
		}

		decision := p.Classify(err)
		if decision.Retry && ctx.Err() != nil {
			decision.Retry = false
			decision.Reason = "context done"
		}
		p.stats.recordError(endpoint, decision)

		if !decision.Retry || attempt >= maxAttempts {
			p.stats.recordFailure(endpoint)
			p.metrics.RecordAttempt(endpoint, "failure")

			fields := map[string]interface{}{
				"endpoint": endpoint,
				"attempt":  attempt,
				"reason":   decision.Reason,
				"error":    err.Error(),
			}
			if decision.Retry {
				p.log.ErrorWithFields("max retry attempts exceeded", fields)
			} else {
				p.log.DebugWithFields("error is not retryable", fields)
			}
			return zero, err
		}

		delay := p.backoff.NextDelay(attempt)
		p.stats.recordRetry(endpoint, delay)
		p.metrics.RecordAttempt(endpoint, "retry")

		p.log.WarnWithFields("retrying operation", map[string]interface{}{
			"endpoint":     endpoint,
			"attempt":      attempt,
			"max_attempts": maxAttempts,
			"reason":       decision.Reason,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
		})

		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			p.stats.recordFailure(endpoint)
			return zero, fmt.Errorf("retry cancelled after attempt %d: %w", attempt, sleepErr)
		}
	}
}

// DoErr is Do for operations without a result.
func DoErr(ctx context.Context, p *Policy, endpoint string, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, endpoint, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
