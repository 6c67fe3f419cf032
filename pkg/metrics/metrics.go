// Package metrics exposes Prometheus instrumentation for the protocol client.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus collectors for rate limiting, retries and API errors.
// A nil *Collector is valid and records nothing.
type Collector struct {
	rateLimitRequests  *prometheus.CounterVec
	rateLimitThrottled *prometheus.CounterVec
	rateLimitWait      *prometheus.HistogramVec

	retryAttempts *prometheus.CounterVec

	apiErrors *prometheus.CounterVec
}

// NewCollector registers the collectors on reg. A nil reg yields a collector
// whose metrics are never exported, which is what tests usually want.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		rateLimitRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedicaption_ratelimit_requests_total",
				Help: "Total number of requests admitted by the local rate limiter",
			},
			[]string{"endpoint", "platform"},
		),

		rateLimitThrottled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedicaption_ratelimit_throttled_total",
				Help: "Total number of rate limit denials by tier",
			},
			[]string{"endpoint", "platform", "tier"},
		),

		rateLimitWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fedicaption_ratelimit_wait_seconds",
				Help:    "Time spent suspended waiting for rate limit tokens",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
			},
			[]string{"platform"},
		),

		retryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedicaption_retry_attempts_total",
				Help: "Total number of operation attempts by outcome",
			},
			[]string{"endpoint", "outcome"},
		),

		apiErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedicaption_api_errors_total",
				Help: "Total number of failed upstream API calls",
			},
			[]string{"platform", "endpoint", "status"},
		),
	}
}

// RecordAdmitted records a request admitted by every rate limit tier.
func (c *Collector) RecordAdmitted(endpoint, platform string) {
	if c == nil {
		return
	}
	c.rateLimitRequests.WithLabelValues(endpoint, platform).Inc()
}

// RecordThrottled records a denial by the named tier.
func (c *Collector) RecordThrottled(endpoint, platform, tier string) {
	if c == nil {
		return
	}
	c.rateLimitThrottled.WithLabelValues(endpoint, platform, tier).Inc()
}

// RecordWait records time spent suspended by the rate limiter.
func (c *Collector) RecordWait(platform string, wait time.Duration) {
	if c == nil {
		return
	}
	c.rateLimitWait.WithLabelValues(platform).Observe(wait.Seconds())
}

// RecordAttempt records one retry loop attempt. outcome is one of
// "success", "retry" or "failure".
func (c *Collector) RecordAttempt(endpoint, outcome string) {
	if c == nil {
		return
	}
	c.retryAttempts.WithLabelValues(endpoint, outcome).Inc()
}

// RecordAPIError records a failed upstream call. status 0 means no response.
func (c *Collector) RecordAPIError(platform, endpoint string, status int) {
	if c == nil {
		return
	}
	c.apiErrors.WithLabelValues(platform, endpoint, strconv.Itoa(status)).Inc()
}
