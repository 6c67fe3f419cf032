package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// NeverRefills is reported as the wait when a bucket has no refill rate and
// can therefore never satisfy the request. Callers treat it as "reject now".
const NeverRefills = time.Duration(math.MaxInt64)

// MaxBucketWait bounds how long ConsumeWait is willing to suspend.
const MaxBucketWait = 60 * time.Second

// epsilon absorbs float error accumulated by fractional refills.
const epsilon = 1e-9

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// Sleeper suspends for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper backed by a timer.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TokenBucket is a continuously refilling token bucket.
//
// Tokens accumulate at rate per second up to capacity. Refill is computed
// lazily whenever the bucket is accessed. A denied Consume leaves the
// token count untouched.
type TokenBucket struct {
	rate       float64 // tokens per second
	capacity   float64
	tokens     float64
	lastRefill time.Time
	now        Clock
	sleep      Sleeper
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket using the wall clock.
func NewTokenBucket(rate, capacity float64) *TokenBucket {
	return NewTokenBucketWithClock(rate, capacity, time.Now)
}

// NewTokenBucketWithClock creates a full bucket driven by clock.
func NewTokenBucketWithClock(rate, capacity float64, clock Clock) *TokenBucket {
	if capacity < 0 {
		capacity = 0
	}
	return &TokenBucket{
		rate:       rate,
		capacity:   capacity,
		tokens:     capacity,
		lastRefill: clock(),
		now:        clock,
		sleep:      SleepContext,
	}
}

// Consume attempts to take n tokens. On denial it returns the time until n
// tokens will be available, or NeverRefills.
func (tb *TokenBucket) Consume(n float64) (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()

	if n <= tb.tokens+epsilon {
		tb.tokens = math.Max(0, tb.tokens-n)
		return true, 0
	}

	if tb.rate <= 0 || n > tb.capacity {
		return false, NeverRefills
	}

	seconds := (n - tb.tokens) / tb.rate
	return false, time.Duration(math.Ceil(seconds * float64(time.Second)))
}

// ConsumeWait is Consume that suspends for the reported wait when it is at
// most MaxBucketWait, then tries exactly once more.
func (tb *TokenBucket) ConsumeWait(ctx context.Context, n float64) (bool, error) {
	allowed, wait := tb.Consume(n)
	if allowed {
		return true, nil
	}
	if wait > MaxBucketWait {
		return false, nil
	}

	if err := tb.sleep(ctx, wait); err != nil {
		return false, err
	}

	allowed, _ = tb.Consume(n)
	return allowed, nil
}

// Tokens returns the current token count after refilling.
func (tb *TokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	return tb.tokens
}

// Capacity returns the maximum bucket capacity.
func (tb *TokenBucket) Capacity() float64 {
	return tb.capacity
}

// Rate returns the refill rate in tokens per second.
func (tb *TokenBucket) Rate() float64 {
	return tb.rate
}

// Reset refills the bucket to capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = tb.now()
}

// refillLocked adds tokens for the time elapsed since the last refill.
// Caller must hold lock.
func (tb *TokenBucket) refillLocked() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 && tb.rate > 0 {
		tb.tokens = math.Min(tb.capacity, tb.tokens+elapsed*tb.rate)
	}
	tb.lastRefill = now
}
