package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"fedicaption/pkg/config"
)

// BackoffStrategy defines the interface for different backoff strategies
type BackoffStrategy interface {
	// NextDelay returns the delay to wait after the given failed attempt (1-based)
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter
type ExponentialBackoff struct {
	// BaseDelay is the delay after the first failure
	BaseDelay time.Duration
	// MaxDelay caps the delay before jitter is applied
	MaxDelay time.Duration
	// Multiplier is the factor by which delay increases
	Multiplier float64
	// JitterFactor scales the random noise added to each delay (0.0 to 1.0)
	JitterFactor float64
	// Rand returns a value in [0,1). Defaults to math/rand.
	Rand func() float64
}

// NewExponentialBackoff builds the backoff described by cfg
func NewExponentialBackoff(cfg config.RetryConfig) *ExponentialBackoff {
	eb := &ExponentialBackoff{
		BaseDelay:  cfg.BaseDelay,
		MaxDelay:   cfg.MaxDelay,
		Multiplier: cfg.BackoffFactor,
	}
	if cfg.Jitter {
		eb.JitterFactor = cfg.JitterFactor
	}
	return eb
}

// NextDelay returns min(MaxDelay, BaseDelay*Multiplier^(attempt-1)) plus
// delay*JitterFactor*noise with noise uniform in [-1,1]. Never negative.
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	multiplier := eb.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	delay := float64(eb.BaseDelay) * math.Pow(multiplier, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	if eb.JitterFactor > 0 {
		random := eb.Rand
		if random == nil {
			random = rand.Float64
		}
		noise := random()*2 - 1
		delay += delay * eb.JitterFactor * noise
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// ConstantBackoff implements constant delay backoff
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
