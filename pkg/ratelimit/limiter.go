package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"fedicaption/pkg/config"
	"fedicaption/pkg/errors"
	"fedicaption/pkg/logger"
	"fedicaption/pkg/metrics"
)

type window struct {
	name    string
	seconds float64
}

var (
	windowMinute = window{"minute", 60}
	windowHour   = window{"hour", 3600}
	windowDay    = window{"day", 86400}
)

// tier is one evaluated level of the bucket hierarchy. Global tiers carry
// their bucket; the others are created from key, rate and capacity on first
// use.
type tier struct {
	name     string
	bucket   *TokenBucket
	key      string
	rate     float64
	capacity float64
}

// RateLimiter enforces the global, platform, endpoint and platform+endpoint
// budgets described by a config.RateLimitConfig. A single instance is meant
// to be shared by every client that targets the same logical limits.
type RateLimiter struct {
	cfg     config.RateLimitConfig
	log     logger.Logger
	metrics *metrics.Collector
	now     Clock
	sleep   Sleeper

	mu      sync.Mutex
	global  []tier
	buckets map[string]*TokenBucket
	usage   usage
}

type usage struct {
	requests  int64
	throttled int64
	totalWait time.Duration
	endpoints map[string]int64
	platforms map[string]int64
	since     time.Time
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithLogger sets the logger used for throttling events.
func WithLogger(l logger.Logger) Option {
	return func(r *RateLimiter) { r.log = l }
}

// WithMetrics records admissions, throttles and waits on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *RateLimiter) { r.metrics = c }
}

// WithClock replaces the wall clock for every bucket.
func WithClock(c Clock) Option {
	return func(r *RateLimiter) { r.now = c }
}

// WithSleeper replaces the suspension used by WaitIfNeeded.
func WithSleeper(s Sleeper) Option {
	return func(r *RateLimiter) { r.sleep = s }
}

// New creates a RateLimiter from cfg. Map keys are normalized so lookups are
// case-insensitive: endpoints upper-case, platforms lower-case.
func New(cfg config.RateLimitConfig, opts ...Option) *RateLimiter {
	r := &RateLimiter{
		cfg:     normalizeConfig(cfg),
		now:     time.Now,
		sleep:   SleepContext,
		buckets: make(map[string]*TokenBucket),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logger.OrDefault(r.log).WithField("component", "ratelimit")

	g := r.cfg.Global
	minuteCapacity := g.RequestsPerMinute
	if g.MaxBurst > 0 && g.RequestsPerMinute > 0 {
		minuteCapacity = g.MaxBurst
	}
	if g.RequestsPerMinute > 0 {
		r.global = append(r.global, tier{name: "global_minute", bucket: r.newBucket(float64(g.RequestsPerMinute)/windowMinute.seconds, float64(minuteCapacity))})
	}
	if g.RequestsPerHour > 0 {
		r.global = append(r.global, tier{name: "global_hour", bucket: r.newBucket(float64(g.RequestsPerHour)/windowHour.seconds, float64(g.RequestsPerHour))})
	}
	if g.RequestsPerDay > 0 {
		r.global = append(r.global, tier{name: "global_day", bucket: r.newBucket(float64(g.RequestsPerDay)/windowDay.seconds, float64(g.RequestsPerDay))})
	}

	r.usage = newUsage(r.now())
	return r
}

func normalizeConfig(cfg config.RateLimitConfig) config.RateLimitConfig {
	out := cfg
	out.Endpoints = make(map[string]config.WindowLimits, len(cfg.Endpoints))
	for k, v := range cfg.Endpoints {
		out.Endpoints[NormalizeEndpoint(k)] = v
	}
	out.Platforms = make(map[string]config.WindowLimits, len(cfg.Platforms))
	for k, v := range cfg.Platforms {
		out.Platforms[NormalizePlatform(k)] = v
	}
	out.PlatformEndpoints = make(map[string]map[string]config.WindowLimits, len(cfg.PlatformEndpoints))
	for p, eps := range cfg.PlatformEndpoints {
		inner := make(map[string]config.WindowLimits, len(eps))
		for k, v := range eps {
			inner[NormalizeEndpoint(k)] = v
		}
		out.PlatformEndpoints[NormalizePlatform(p)] = inner
	}
	return out
}

func newUsage(now time.Time) usage {
	return usage{
		endpoints: make(map[string]int64),
		platforms: make(map[string]int64),
		since:     now,
	}
}

// NormalizeEndpoint returns the canonical endpoint key.
func NormalizeEndpoint(endpoint string) string {
	return strings.ToUpper(strings.TrimSpace(endpoint))
}

// NormalizePlatform returns the canonical platform key.
func NormalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

func (r *RateLimiter) newBucket(rate, capacity float64) *TokenBucket {
	b := NewTokenBucketWithClock(rate, capacity, r.now)
	b.sleep = r.sleep
	return b
}

// Check evaluates every applicable tier in order: global minute, hour and
// day, then platform, endpoint and platform+endpoint. The first denying tier
// stops evaluation and its wait is returned. Tokens taken by tiers that
// admitted before the denial are kept.
func (r *RateLimiter) Check(endpoint, platform string) (bool, time.Duration) {
	allowed, wait, _ := r.consumeFrom(r.tiers(NormalizeEndpoint(endpoint), NormalizePlatform(platform)), 0)
	return allowed, wait
}

// tiers lists the tiers that apply to endpoint and platform in evaluation
// order.
func (r *RateLimiter) tiers(endpoint, platform string) []tier {
	ts := make([]tier, 0, len(r.global)+9)
	ts = append(ts, r.global...)

	if platform != "" {
		if limits, ok := r.cfg.Platforms[platform]; ok {
			ts = appendWindows(ts, "platform", platform, limits)
		}
	}
	if endpoint != "" {
		if limits, ok := r.cfg.Endpoints[endpoint]; ok {
			ts = appendWindows(ts, "endpoint", endpoint, limits)
		}
	}
	if platform != "" && endpoint != "" {
		if limits, ok := r.cfg.PlatformEndpoints[platform][endpoint]; ok {
			ts = appendWindows(ts, "platform_endpoint", platform+"/"+endpoint, limits)
		}
	}
	return ts
}

// appendWindows adds the minute, hour and day windows of one tier.
func appendWindows(ts []tier, kind, key string, limits config.WindowLimits) []tier {
	for _, w := range []struct {
		window
		limit int
	}{
		{windowMinute, limits.PerMinute},
		{windowHour, limits.PerHour},
		{windowDay, limits.PerDay},
	} {
		if w.limit <= 0 {
			continue
		}
		ts = append(ts, tier{
			name:     kind + "_" + w.name,
			key:      kind + ":" + key + ":" + w.name,
			rate:     float64(w.limit) / w.seconds,
			capacity: float64(w.limit),
		})
	}
	return ts
}

// consumeFrom takes one token from each tier starting at start. On denial it
// returns the position of the denying tier.
func (r *RateLimiter) consumeFrom(ts []tier, start int) (bool, time.Duration, int) {
	for i := start; i < len(ts); i++ {
		b := ts[i].bucket
		if b == nil {
			b = r.bucket(ts[i].key, ts[i].rate, ts[i].capacity)
		}
		if allowed, wait := b.Consume(1); !allowed {
			return false, wait, i
		}
	}
	return true, 0, len(ts)
}

// bucket returns the bucket for key, creating it full on first use.
func (r *RateLimiter) bucket(key string, rate, capacity float64) *TokenBucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = r.newBucket(rate, capacity)
		r.buckets[key] = b
	}
	return b
}

// WaitIfNeeded blocks until every tier admits the request, then records it.
// After a suspension evaluation resumes at the tier that denied, so tiers
// that already admitted the request are charged once. A wait that can never be satisfied, or that exceeds the configured MaxWait,
// fails with errors.ErrRateLimitExceeded instead of suspending.
func (r *RateLimiter) WaitIfNeeded(ctx context.Context, endpoint, platform string) error {
	endpoint = NormalizeEndpoint(endpoint)
	platform = NormalizePlatform(platform)

	ts := r.tiers(endpoint, platform)
	start := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		allowed, wait, denied := r.consumeFrom(ts, start)
		if allowed {
			r.recordRequest(endpoint, platform)
			return nil
		}
		tierName := ts[denied].name

		r.metrics.RecordThrottled(endpoint, platform, tierName)

		if wait == NeverRefills || (r.cfg.MaxWait > 0 && wait > r.cfg.MaxWait) {
			r.recordThrottle(0)
			r.log.WarnWithFields("rate limit wait exceeds bound, rejecting", map[string]interface{}{
				"endpoint": endpoint,
				"platform": platform,
				"tier":     tierName,
			})
			return fmt.Errorf("%s tier: %w", tierName, errors.ErrRateLimitExceeded)
		}

		r.recordThrottle(wait)
		r.metrics.RecordWait(platform, wait)
		logger.LogRateLimit(r.log, endpoint, platform, wait)

		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
		start = denied
	}
}

func (r *RateLimiter) recordRequest(endpoint, platform string) {
	r.mu.Lock()
	r.usage.requests++
	if endpoint != "" {
		r.usage.endpoints[endpoint]++
	}
	if platform != "" {
		r.usage.platforms[platform]++
	}
	r.mu.Unlock()

	r.metrics.RecordAdmitted(endpoint, platform)
}

func (r *RateLimiter) recordThrottle(wait time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.usage.throttled++
	r.usage.totalWait += wait
}

// Stats is a snapshot of limiter usage since the last reset.
type Stats struct {
	TotalRequests     int64            `json:"total_requests"`
	ThrottledRequests int64            `json:"throttled_requests"`
	TotalWait         time.Duration    `json:"total_wait"`
	AverageWait       time.Duration    `json:"average_wait"`
	RequestsPerMinute float64          `json:"requests_per_minute"`
	ThrottleRate      float64          `json:"throttle_rate_percent"`
	Since             time.Time        `json:"since"`
	Elapsed           time.Duration    `json:"elapsed"`
	Endpoints         map[string]int64 `json:"endpoints"`
	Platforms         map[string]int64 `json:"platforms"`
}

// Stats returns usage counters and derived rates.
func (r *RateLimiter) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := r.now().Sub(r.usage.since)
	s := Stats{
		TotalRequests:     r.usage.requests,
		ThrottledRequests: r.usage.throttled,
		TotalWait:         r.usage.totalWait,
		Since:             r.usage.since,
		Elapsed:           elapsed,
		Endpoints:         make(map[string]int64, len(r.usage.endpoints)),
		Platforms:         make(map[string]int64, len(r.usage.platforms)),
	}
	for k, v := range r.usage.endpoints {
		s.Endpoints[k] = v
	}
	for k, v := range r.usage.platforms {
		s.Platforms[k] = v
	}

	if minutes := elapsed.Minutes(); minutes > 0 {
		s.RequestsPerMinute = float64(s.TotalRequests) / minutes
	}
	if s.TotalRequests > 0 {
		s.ThrottleRate = float64(s.ThrottledRequests) / float64(s.TotalRequests) * 100
	}
	if s.ThrottledRequests > 0 {
		s.AverageWait = s.TotalWait / time.Duration(s.ThrottledRequests)
	}
	return s
}

// ResetStats zeroes the counters and restarts the measurement window.
// Bucket state is untouched.
func (r *RateLimiter) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.usage = newUsage(r.now())
}

// Config returns the normalized configuration snapshot.
func (r *RateLimiter) Config() config.RateLimitConfig {
	return r.cfg.Clone()
}
