package activitypub

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"fedicaption/pkg/config"
	errs "fedicaption/pkg/errors"
	"fedicaption/pkg/logger"
	"fedicaption/pkg/metrics"
	"fedicaption/pkg/models"
	"fedicaption/pkg/platforms"
	"fedicaption/pkg/ratelimit"
	"fedicaption/pkg/retry"
	"fedicaption/pkg/transport"
)

// Client talks to one fediverse instance. Every request is admitted by the
// rate limiter, then retried by the policy:
//
//	retry(rateLimited(request))
//
// so each retry attempt is rate limited on its own. The adapter and HTTP
// session belong to the client; the rate limiter may be shared.
type Client struct {
	cfg      *config.Config
	adapter  platforms.Adapter
	limiter  *ratelimit.RateLimiter
	policy   *retry.Policy
	session  *transport.Session
	metrics  *metrics.Collector
	log      logger.Logger
	handlers map[string]DiagnosticHandler

	mu           sync.Mutex
	serverLimits *ratelimit.HeaderInfo
}

type options struct {
	log        logger.Logger
	limiter    *ratelimit.RateLimiter
	policy     *retry.Policy
	adapter    platforms.Adapter
	registry   *platforms.Registry
	metrics    *metrics.Collector
	httpClient *http.Client
	handlers   map[string]DiagnosticHandler
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the client's logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRateLimiter shares limiter with other clients. Without it the client
// builds its own from the configuration.
func WithRateLimiter(limiter *ratelimit.RateLimiter) Option {
	return func(o *options) { o.limiter = limiter }
}

// WithRetryPolicy replaces the policy built from the configuration.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithAdapter skips platform resolution and uses a.
func WithAdapter(a platforms.Adapter) Option {
	return func(o *options) { o.adapter = a }
}

// WithRegistry resolves the adapter from reg instead of the default registry.
func WithRegistry(reg *platforms.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithMetrics records rate limit, retry and API error metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithHTTPClient sets the HTTP client used by the session.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithDiagnosticHandler replaces the diagnostics for platform.
func WithDiagnosticHandler(platform string, h DiagnosticHandler) Option {
	return func(o *options) {
		if o.handlers == nil {
			o.handlers = make(map[string]DiagnosticHandler)
		}
		o.handlers[strings.ToLower(platform)] = h
	}
}

// New creates a client for the instance in cfg.Platform. Configuration
// problems and unknown explicit platform types fail here.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.OrDefault(o.log)

	adapter := o.adapter
	if adapter == nil {
		reg := o.registry
		if reg == nil {
			reg = platforms.DefaultRegistry(log)
		}
		a, err := reg.Create(platforms.ConfigFromPlatform(cfg.Platform, log))
		if err != nil {
			return nil, err
		}
		adapter = a
	} else if err := adapter.ValidateConfig(); err != nil {
		return nil, err
	}

	log = log.WithFields(map[string]interface{}{
		"component": "activitypub",
		"platform":  adapter.Name(),
	})

	limiter := o.limiter
	if limiter == nil {
		limiter = ratelimit.New(cfg.RateLimit, ratelimit.WithLogger(log), ratelimit.WithMetrics(o.metrics))
	}

	policy := o.policy
	if policy == nil {
		policy = retry.NewPolicy(cfg.Retry, retry.WithLogger(log), retry.WithMetrics(o.metrics))
	}

	handlers := defaultDiagnosticHandlers()
	for name, h := range o.handlers {
		handlers[name] = h
	}

	c := &Client{
		cfg:     cfg,
		adapter: adapter,
		limiter: limiter,
		policy:  policy,
		session: transport.NewSession(transport.Options{
			Timeout:     cfg.Platform.Timeout,
			UserAgent:   cfg.Platform.UserAgent,
			AccessToken: cfg.Platform.AccessToken,
			HTTPClient:  o.httpClient,
			Logger:      log,
		}),
		metrics:  o.metrics,
		log:      log,
		handlers: handlers,
	}

	log.DebugWithFields("client created", map[string]interface{}{
		"instance": cfg.Platform.InstanceURL,
	})
	return c, nil
}

// Do sends one request through the rate limiter and retry policy. rawURL
// may be absolute or a path on the instance. Errors are returned as the
// final attempt produced them.
func (c *Client) Do(ctx context.Context, method, rawURL string, body interface{}) (*transport.Response, error) {
	rawURL = c.resolve(rawURL)
	endpoint := EndpointTag(rawURL)
	platform := c.adapter.Name()

	call := func(ctx context.Context) (*transport.Response, error) {
		start := time.Now()
		resp, err := c.session.Do(ctx, method, rawURL, body)
		if resp != nil {
			logger.LogRequest(c.log, method, rawURL, resp.StatusCode, time.Since(start))
			// Error responses carry headers too; a 429 brings Retry-After.
			c.observeServerLimits(resp.Header, platform)
		}
		if code := errs.StatusOf(err); code > 0 {
			c.metrics.RecordAPIError(platform, endpoint, code)
		}
		return resp, err
	}

	resp, err := retry.Do(ctx, c.policy, statsKey(endpoint), c.rateLimited(endpoint, call))
	if err != nil {
		c.diagnose(method, rawURL, endpoint, err)
		return nil, err
	}

	return resp, nil
}

// observeServerLimits passes the limits the adapter parsed from h to the
// limiter's log and keeps them for the usage report.
func (c *Client) observeServerLimits(h http.Header, platform string) {
	info := c.limiter.ObserveServerLimits(c.adapter.GetRateLimitInfo(h), platform)
	if !info.Present {
		return
	}
	c.mu.Lock()
	c.serverLimits = &info
	c.mu.Unlock()
}

// rateLimited gates op behind the limiter for (endpoint, platform).
func (c *Client) rateLimited(endpoint string, op retry.Operation[*transport.Response]) retry.Operation[*transport.Response] {
	return func(ctx context.Context) (*transport.Response, error) {
		if err := c.limiter.WaitIfNeeded(ctx, endpoint, c.adapter.Name()); err != nil {
			return nil, err
		}
		return op(ctx)
	}
}

func statsKey(endpoint string) string {
	if endpoint == "" {
		return "OTHER"
	}
	return endpoint
}

func (c *Client) resolve(rawURL string) string {
	if strings.HasPrefix(rawURL, "/") {
		return strings.TrimRight(c.cfg.Platform.InstanceURL, "/") + rawURL
	}
	return rawURL
}

// diagnose hands protocol errors to the platform's diagnostic handler.
func (c *Client) diagnose(method, rawURL, endpoint string, err error) {
	var apiErr *errs.Error
	if !errors.As(err, &apiErr) || apiErr.Code == 0 {
		return
	}

	ec := newErrorContext(c.adapter.Name(), c.cfg.Platform.InstanceURL, method, rawURL, endpoint, apiErr.Code, apiErr.Body, c.identity())

	h, ok := c.handlers[c.adapter.Name()]
	if !ok {
		h = genericDiagnostics
	}
	h(c.log, ec)
}

// identity names the connected account, when known.
func (c *Client) identity() string {
	if v, ok := c.adapter.(platforms.AccountReporter); ok {
		if a := v.Account(); a != nil {
			return a.Acct
		}
	}
	return c.cfg.Platform.Username
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, rawURL string) (*transport.Response, error) {
	return c.Do(ctx, http.MethodGet, rawURL, nil)
}

// Put sends a PUT request with body encoded as JSON unless it is form values or bytes.
func (c *Client) Put(ctx context.Context, rawURL string, body interface{}) (*transport.Response, error) {
	return c.Do(ctx, http.MethodPut, rawURL, body)
}

// Post sends a POST request.
func (c *Client) Post(ctx context.Context, rawURL string, body interface{}) (*transport.Response, error) {
	return c.Do(ctx, http.MethodPost, rawURL, body)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, rawURL string) (*transport.Response, error) {
	return c.Do(ctx, http.MethodDelete, rawURL, nil)
}

// GetJSON performs a GET and decodes the response into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v interface{}) error {
	return transport.GetJSON(ctx, c, rawURL, v)
}

// Platform returns the adapter's platform name.
func (c *Client) Platform() string {
	return c.adapter.Name()
}

// Adapter returns the platform adapter.
func (c *Client) Adapter() platforms.Adapter {
	return c.adapter
}

// Authenticate checks the configured credentials. A rejected token yields false.
func (c *Client) Authenticate(ctx context.Context) (bool, error) {
	return c.adapter.Authenticate(ctx, c)
}

// GetUserPosts returns up to limit recent posts of userID. When a later
// page fails the posts fetched so far are returned along with the error.
func (c *Client) GetUserPosts(ctx context.Context, userID string, limit int) ([]models.Post, error) {
	posts, err := c.adapter.GetUserPosts(ctx, c, userID, limit)
	if err != nil {
		c.log.WithError(err).WarnWithFields("fetching posts failed", map[string]interface{}{
			"user":    userID,
			"fetched": len(posts),
		})
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, err
}

// GetPostByID returns nil without error when the post does not exist.
func (c *Client) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	return c.adapter.GetPostByID(ctx, c, id)
}

// UpdatePost applies patch to the post.
func (c *Client) UpdatePost(ctx context.Context, id string, patch map[string]interface{}) (bool, error) {
	return c.adapter.UpdatePost(ctx, c, id, patch)
}

// UpdateMediaCaption sets the alt text of one media item.
func (c *Client) UpdateMediaCaption(ctx context.Context, update models.CaptionUpdate) (bool, error) {
	return c.adapter.UpdateMediaCaption(ctx, c, update)
}

// UpdateStatusMediaCaption captions mediaID of statusID. Platforms that
// caption media directly ignore the status.
func (c *Client) UpdateStatusMediaCaption(ctx context.Context, statusID, mediaID, caption string) (bool, error) {
	if sc, ok := c.adapter.(platforms.StatusCaptioner); ok {
		return sc.UpdateStatusMediaCaption(ctx, c, statusID, mediaID, caption)
	}
	return c.adapter.UpdateMediaCaption(ctx, c, models.CaptionUpdate{MediaID: mediaID, StatusID: statusID, Caption: caption})
}

// ExtractImagesFromPost returns the images of post that need captions.
func (c *Client) ExtractImagesFromPost(post models.Post) []models.ImageRef {
	return c.adapter.ExtractImagesFromPost(post)
}

// RateLimitStats returns the limiter's usage statistics.
func (c *Client) RateLimitStats() ratelimit.Stats {
	return c.limiter.Stats()
}

// ResetRateLimitStats clears the limiter's usage statistics. Buckets keep their tokens.
func (c *Client) ResetRateLimitStats() {
	c.limiter.ResetStats()
}

// Close releases the HTTP session. The client may still be used afterwards;
// the session reopens on the next request.
func (c *Client) Close() error {
	return c.session.Close()
}
