// Package retry re-invokes fallible protocol calls with exponential backoff
// and jitter.
//
// A Policy is built from config.RetryConfig. Classify decides whether a
// failure is transient; the BackoffStrategy decides how long to wait. The two
// are independent so platform specific error handling can change without
// touching the delay math.
//
// Basic usage:
//
//	policy := retry.NewPolicy(cfg.Retry, retry.WithLogger(log))
//
//	post, err := retry.Do(ctx, policy, "STATUSES", func(ctx context.Context) (*models.Post, error) {
//		return fetch(ctx, id)
//	})
//
// Classification:
//   - timeouts and connection failures: retried per RetryOnTimeout / RetryOnConnectionError
//   - HTTP status: retried when listed in RetryStatusCodes and the 429 or 5xx toggle is on
//   - message substrings and error kinds from the config: retried
//   - everything else, including cancellation: returned immediately
//
// When attempts run out the last error is returned as is, so callers can
// still inspect it with errors.As.
package retry
