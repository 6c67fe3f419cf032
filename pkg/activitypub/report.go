package activitypub

import (
	"time"

	"fedicaption/pkg/ratelimit"
	"fedicaption/pkg/retry"
)

// UsageReport combines rate limit and retry statistics for one client.
type UsageReport struct {
	Platform     string                `json:"platform"`
	Instance     string                `json:"instance"`
	GeneratedAt  time.Time             `json:"generated_at"`
	RateLimit    ratelimit.Stats       `json:"rate_limit"`
	Retry        retry.Summary         `json:"retry"`
	Breakdown    retry.Breakdown       `json:"retry_breakdown"`
	ServerLimits *ratelimit.HeaderInfo `json:"server_limits,omitempty"`
}

// APIUsageReport snapshots the client's usage.
func (c *Client) APIUsageReport() UsageReport {
	c.mu.Lock()
	var server *ratelimit.HeaderInfo
	if c.serverLimits != nil {
		info := *c.serverLimits
		server = &info
	}
	c.mu.Unlock()

	return UsageReport{
		Platform:     c.adapter.Name(),
		Instance:     c.cfg.Platform.InstanceURL,
		GeneratedAt:  time.Now(),
		RateLimit:    c.limiter.Stats(),
		Retry:        c.policy.Stats().Summary(),
		Breakdown:    c.policy.Stats().Breakdown(),
		ServerLimits: server,
	}
}
