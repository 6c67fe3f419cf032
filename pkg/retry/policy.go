package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"fedicaption/pkg/config"
	errs "fedicaption/pkg/errors"
	"fedicaption/pkg/logger"
	"fedicaption/pkg/metrics"
)

// Decision is the outcome of classifying one failure.
type Decision struct {
	Retry  bool
	Reason string
	Kind   string
	Status int
}

// Policy decides which failures are retried and how long to wait between
// attempts. Classification and delay computation are independent: the
// backoff strategy can be swapped without touching Classify.
type Policy struct {
	cfg     config.RetryConfig
	backoff BackoffStrategy
	sleep   func(ctx context.Context, d time.Duration) error
	log     logger.Logger
	metrics *metrics.Collector
	stats   *Stats
}

// Option configures a Policy.
type Option func(*Policy)

// WithBackoff replaces the exponential backoff derived from the config.
func WithBackoff(b BackoffStrategy) Option {
	return func(p *Policy) { p.backoff = b }
}

// WithSleeper replaces the suspension between attempts.
func WithSleeper(s func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) { p.sleep = s }
}

// WithLogger sets the logger used for retry events.
func WithLogger(l logger.Logger) Option {
	return func(p *Policy) { p.log = l }
}

// WithMetrics records attempts on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Policy) { p.metrics = c }
}

// NewPolicy creates a Policy from cfg.
func NewPolicy(cfg config.RetryConfig, opts ...Option) *Policy {
	p := &Policy{
		cfg:     cfg,
		backoff: NewExponentialBackoff(cfg),
		sleep:   Wait,
		stats:   NewStats(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logger.OrDefault(p.log).WithField("component", "retry")
	return p
}

// MaxAttempts returns the attempt bound, never less than one.
func (p *Policy) MaxAttempts() int {
	if p.cfg.MaxAttempts < 1 {
		return 1
	}
	return p.cfg.MaxAttempts
}

// Stats returns the policy's running statistics.
func (p *Policy) Stats() *Stats {
	return p.stats
}

// Classify reports whether err should be retried.
//
// Connectivity failures follow RetryOnTimeout and RetryOnConnectionError.
// Failures carrying an HTTP status are retried only when the status is in
// RetryStatusCodes and its toggle is on. Other failures are retried when
// their message contains a configured substring or their kind is listed
// in RetryableKinds. Cancellation and local rate-limit rejection never are.
func (p *Policy) Classify(err error) Decision {
	if err == nil {
		return Decision{Reason: "success"}
	}

	kind := Kind(err)

	if errors.Is(err, context.Canceled) {
		return Decision{Kind: kind, Reason: "cancelled"}
	}
	if errors.Is(err, errs.ErrRateLimitExceeded) {
		return Decision{Kind: kind, Reason: "local rate limit"}
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case errs.ErrorTypeTimeout:
			return Decision{Retry: p.cfg.RetryOnTimeout, Kind: kind, Reason: "timeout"}
		case errs.ErrorTypeConnection, errs.ErrorTypeNetwork:
			return Decision{Retry: p.cfg.RetryOnConnectionError, Kind: kind, Reason: "connection"}
		}
		if apiErr.Code > 0 {
			return p.classifyStatus(apiErr.Code, kind)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Kind: kind, Reason: "deadline exceeded"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Decision{Retry: p.cfg.RetryOnTimeout, Kind: kind, Reason: "timeout"}
		}
		return Decision{Retry: p.cfg.RetryOnConnectionError, Kind: kind, Reason: "connection"}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Decision{Retry: p.cfg.RetryOnConnectionError, Kind: kind, Reason: "connection"}
	}

	msg := strings.ToLower(err.Error())
	for _, s := range p.cfg.RetryableErrors {
		if s != "" && strings.Contains(msg, strings.ToLower(s)) {
			return Decision{Retry: true, Kind: kind, Reason: "message matches " + s}
		}
	}

	for _, k := range p.cfg.RetryableKinds {
		if strings.EqualFold(k, kind) {
			return Decision{Retry: true, Kind: kind, Reason: "retryable kind"}
		}
	}

	return Decision{Kind: kind, Reason: "not retryable"}
}

func (p *Policy) classifyStatus(code int, kind string) Decision {
	d := Decision{Kind: kind, Status: code, Reason: "status not retryable"}

	listed := false
	for _, c := range p.cfg.RetryStatusCodes {
		if c == code {
			listed = true
			break
		}
	}
	if !listed {
		return d
	}

	switch {
	case code == 429:
		d.Retry = p.cfg.RetryOnRateLimit
		d.Reason = "rate limited"
	case code >= 500:
		d.Retry = p.cfg.RetryOnServerError
		d.Reason = "server error"
	default:
		d.Retry = true
		d.Reason = "status listed"
	}
	return d
}

// Kind names the category of err for statistics and RetryableKinds matching.
func Kind(err error) string {
	var apiErr *errs.Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return string(apiErr.Type)
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return string(errs.ErrorTypeTimeout)
	case errors.Is(err, errs.ErrRateLimitExceeded):
		return "local_rate_limit"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return string(errs.ErrorTypeTimeout)
		}
		return string(errs.ErrorTypeNetwork)
	}
	return string(errs.ErrorTypeUnknown)
}
