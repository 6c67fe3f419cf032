package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"fedicaption/pkg/config"
	errs "fedicaption/pkg/errors"
	"fedicaption/pkg/logger"
	"fedicaption/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func testPolicy(cfg config.RetryConfig, opts ...Option) (*Policy, *recordingSleeper) {
	sleeper := &recordingSleeper{}
	opts = append([]Option{WithSleeper(sleeper.Sleep), WithLogger(logger.NewNopLogger())}, opts...)
	return NewPolicy(cfg, opts...), sleeper
}

func noJitter() config.RetryConfig {
	cfg := config.DefaultRetryConfig()
	cfg.Jitter = false
	return cfg
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{6, 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.want, backoff.NextDelay(tt.attempt))
		})
	}
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	for _, r := range []float64{0, 0.25, 0.5, 0.999} {
		backoff := &ExponentialBackoff{
			BaseDelay:    time.Second,
			MaxDelay:     time.Minute,
			Multiplier:   2,
			JitterFactor: 0.1,
			Rand:         func() float64 { return r },
		}
		delay := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, delay, 1800*time.Millisecond)
		assert.LessOrEqual(t, delay, 2200*time.Millisecond)
	}

	backoff := &ExponentialBackoff{BaseDelay: time.Second, Multiplier: 2, JitterFactor: 0.1, Rand: func() float64 { return 0 }}
	assert.Equal(t, 900*time.Millisecond, backoff.NextDelay(1))
}

func TestExponentialBackoffNeverNegative(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    time.Second,
		Multiplier:   2,
		JitterFactor: 5,
		Rand:         func() float64 { return 0 },
	}
	assert.Equal(t, time.Duration(0), backoff.NextDelay(1))
}

func TestNewExponentialBackoffFromConfig(t *testing.T) {
	cfg := config.DefaultRetryConfig()
	eb := NewExponentialBackoff(cfg)
	assert.Equal(t, cfg.JitterFactor, eb.JitterFactor)

	cfg.Jitter = false
	assert.Zero(t, NewExponentialBackoff(cfg).JitterFactor)
}

func TestConstantBackoff(t *testing.T) {
	backoff := &ConstantBackoff{Delay: 500 * time.Millisecond}
	assert.Equal(t, time.Duration(0), backoff.NextDelay(0))
	assert.Equal(t, 500*time.Millisecond, backoff.NextDelay(3))
}

func TestDoRetriesUpToMaxAttempts(t *testing.T) {
	policy, sleeper := testPolicy(noJitter())

	calls := 0
	var last error
	_, err := Do(context.Background(), policy, "STATUSES", func(ctx context.Context) (int, error) {
		calls++
		last = errs.NewHTTPError("GET", "https://a.example/api/v1/statuses", 503, fmt.Sprintf("attempt %d", calls))
		return 0, last
	})

	assert.Equal(t, 3, calls)
	assert.Same(t, last, err, "the final attempt's error is returned unchanged")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)

	sum := policy.Stats().Summary()
	assert.Equal(t, int64(3), sum.Attempts)
	assert.Equal(t, int64(2), sum.Retries)
	assert.Equal(t, int64(1), sum.Failures)
	assert.Equal(t, 3*time.Second, sum.TotalRetryWait)

	b := policy.Stats().Breakdown()
	assert.Equal(t, int64(3), b.StatusCodes[503])
	assert.Equal(t, int64(3), b.ErrorKinds["server_error"])
	assert.Equal(t, int64(3), b.Endpoints["STATUSES"].Attempts)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	policy, sleeper := testPolicy(noJitter())

	calls := 0
	_, err := Do(context.Background(), policy, "STATUSES", func(ctx context.Context) (string, error) {
		calls++
		return "", errs.NewHTTPError("GET", "https://a.example/api/v1/statuses/9", 404, "")
	})

	assert.Equal(t, 1, calls)
	assert.True(t, errs.IsNotFound(err))
	assert.Empty(t, sleeper.delays)
}

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	policy, _ := testPolicy(noJitter())

	calls := 0
	got, err := Do(context.Background(), policy, "MEDIA", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &errs.Error{Type: errs.ErrorTypeConnection, Message: "connection refused"}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)

	sum := policy.Stats().Summary()
	assert.Equal(t, int64(1), sum.Successes)
	assert.Equal(t, 100.0, sum.SuccessRate)
}

func TestDoStopsWhenContextDone(t *testing.T) {
	policy, sleeper := testPolicy(noJitter())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	last := errs.NewHTTPError("GET", "https://a.example/", 502, "")
	err := DoErr(ctx, policy, "", func(ctx context.Context) error {
		calls++
		cancel()
		return last
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, last, err)
	assert.Empty(t, sleeper.delays)
}

func TestDoDoesNotRetryCallerDeadline(t *testing.T) {
	policy, sleeper := testPolicy(noJitter())

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	calls := 0
	timeout := &errs.Error{Type: errs.ErrorTypeTimeout, Message: "request timed out", Err: timeoutErr{}}
	err := DoErr(ctx, policy, "STATUSES", func(ctx context.Context) error {
		calls++
		return timeout
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, timeout, err)
	assert.NotContains(t, err.Error(), "retry cancelled")
	assert.Empty(t, sleeper.delays)
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := NewPolicy(noJitter(), WithLogger(logger.NewNopLogger()), WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	calls := 0
	err := DoErr(ctx, policy, "", func(ctx context.Context) error {
		calls++
		return errs.NewHTTPError("GET", "https://a.example/", 502, "")
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	policy, _ := testPolicy(noJitter(), WithMetrics(metrics.NewCollector(reg)))

	calls := 0
	_ = DoErr(context.Background(), policy, "MEDIA", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errs.NewHTTPError("PUT", "https://a.example/api/v1/media/1", 500, "")
		}
		return nil
	})

	count, err := testutil.GatherAndCount(reg, "fedicaption_retry_attempts_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "retry and success series")
}

func TestClassify(t *testing.T) {
	cfg := noJitter()
	cfg.RetryableKinds = []string{"parsing"}
	policy, _ := testPolicy(cfg)

	tests := []struct {
		name  string
		err   error
		retry bool
	}{
		{"429", errs.NewHTTPError("GET", "u", 429, ""), true},
		{"500", errs.NewHTTPError("GET", "u", 500, ""), true},
		{"522 cdn", errs.NewHTTPError("GET", "u", 522, ""), true},
		{"501 not listed", errs.NewHTTPError("GET", "u", 501, ""), false},
		{"400", errs.NewHTTPError("GET", "u", 400, ""), false},
		{"401", errs.NewHTTPError("GET", "u", 401, ""), false},
		{"timeout", &errs.Error{Type: errs.ErrorTypeTimeout}, true},
		{"wrapped connection", fmt.Errorf("fetch: %w", &errs.Error{Type: errs.ErrorTypeConnection}), true},
		{"net timeout", timeoutErr{}, true},
		{"eof", io.ErrUnexpectedEOF, true},
		{"message substring", errors.New("read: Connection Reset by peer"), true},
		{"retryable kind", &errs.Error{Type: errs.ErrorTypeParsing, Message: "bad json"}, true},
		{"cancelled", context.Canceled, false},
		{"local rate limit", fmt.Errorf("global_minute tier: %w", errs.ErrRateLimitExceeded), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retry, policy.Classify(tt.err).Retry)
		})
	}
}

func TestClassifyHonorsToggles(t *testing.T) {
	cfg := noJitter()
	cfg.RetryOnServerError = false
	cfg.RetryOnRateLimit = false
	cfg.RetryOnTimeout = false
	cfg.RetryOnConnectionError = false
	policy, _ := testPolicy(cfg)

	assert.False(t, policy.Classify(errs.NewHTTPError("GET", "u", 503, "")).Retry)
	assert.False(t, policy.Classify(errs.NewHTTPError("GET", "u", 429, "")).Retry)
	assert.False(t, policy.Classify(&errs.Error{Type: errs.ErrorTypeTimeout}).Retry)
	assert.False(t, policy.Classify(&errs.Error{Type: errs.ErrorTypeNetwork}).Retry)

	d := policy.Classify(errs.NewHTTPError("GET", "u", 503, ""))
	assert.Equal(t, 503, d.Status)
	assert.Equal(t, "server_error", d.Kind)
}

func TestMaxAttemptsFloor(t *testing.T) {
	cfg := noJitter()
	cfg.MaxAttempts = 0
	policy, _ := testPolicy(cfg)
	assert.Equal(t, 1, policy.MaxAttempts())
}

func TestStatsReset(t *testing.T) {
	policy, _ := testPolicy(noJitter())
	_ = DoErr(context.Background(), policy, "X", func(ctx context.Context) error { return nil })
	require.Equal(t, int64(1), policy.Stats().Summary().Attempts)

	policy.Stats().Reset()
	assert.Zero(t, policy.Stats().Summary().Attempts)
	assert.Empty(t, policy.Stats().Breakdown().Endpoints)
}

func TestWaitRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Wait(context.Background(), time.Millisecond))
}
