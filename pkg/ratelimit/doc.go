// Package ratelimit implements the client-side request budgets applied before
// every upstream call.
//
// TokenBucket is a continuously refilling bucket: tokens accrue at a fixed
// rate per second up to a capacity and refill is computed lazily on access.
// A denied Consume never changes the bucket and reports how long the caller
// would have to wait. A bucket with no refill rate reports NeverRefills.
//
// RateLimiter layers buckets into tiers, evaluated in this order:
//
//   - global: requests per minute, hour and day
//   - platform: per platform name (lower-case)
//   - endpoint: per endpoint tag such as MEDIA or STATUSES (upper-case)
//   - platform+endpoint: per pair
//
// The first tier that denies wins. Tokens already taken from tiers that
// admitted are not refunded.
//
// Usage:
//
//	limiter := ratelimit.New(cfg.RateLimit, ratelimit.WithLogger(log))
//
//	if err := limiter.WaitIfNeeded(ctx, "MEDIA", "pixelfed"); err != nil {
//	    return err
//	}
//	// perform the request
//
// Response headers such as X-RateLimit-Remaining are parsed and logged by
// UpdateFromResponseHeaders but never fed back into the buckets.
package ratelimit
