package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HeaderInfo is the server's own view of its rate limit, as advertised in
// response headers. It is informational only.
type HeaderInfo struct {
	Limit      int           `json:"limit,omitempty"`
	Remaining  int           `json:"remaining,omitempty"`
	Reset      time.Time     `json:"reset,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Present    bool          `json:"present"`
}

// ResetFormat is one encoding of the X-RateLimit-Reset header.
type ResetFormat int

const (
	// ResetRFC3339 is an ISO 8601 timestamp, as sent by Mastodon and Pleroma.
	ResetRFC3339 ResetFormat = iota
	// ResetUnix is a unix timestamp in seconds, as sent by Pixelfed.
	ResetUnix
	// ResetSeconds is a number of seconds from now.
	ResetSeconds
)

// ParseHeaders reads X-RateLimit-Limit, X-RateLimit-Remaining,
// X-RateLimit-Reset and Retry-After, accepting every reset format. Numeric
// resets below 1e9 are taken as relative seconds.
func ParseHeaders(h http.Header, now time.Time) HeaderInfo {
	return ParseHeadersWith(h, now, ResetRFC3339, ResetUnix, ResetSeconds)
}

// ParseHeadersWith is ParseHeaders restricted to the reset formats a
// platform actually sends. A reset in any other format is ignored.
func ParseHeadersWith(h http.Header, now time.Time, formats ...ResetFormat) HeaderInfo {
	var info HeaderInfo

	if v, ok := headerInt(h, "X-RateLimit-Limit"); ok {
		info.Limit = v
		info.Present = true
	}
	if v, ok := headerInt(h, "X-RateLimit-Remaining"); ok {
		info.Remaining = v
		info.Present = true
	}

	if raw := strings.TrimSpace(h.Get("X-RateLimit-Reset")); raw != "" {
		if t, ok := parseReset(raw, now, formats); ok {
			info.Reset = t
			info.Present = true
		}
	}

	if raw := strings.TrimSpace(h.Get("Retry-After")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			info.RetryAfter = time.Duration(n) * time.Second
			info.Present = true
		} else if t, err := http.ParseTime(raw); err == nil {
			if d := t.Sub(now); d > 0 {
				info.RetryAfter = d
			}
			info.Present = true
		}
	}

	return info
}

func parseReset(raw string, now time.Time, formats []ResetFormat) (time.Time, bool) {
	n, numErr := strconv.ParseInt(raw, 10, 64)
	for _, f := range formats {
		switch f {
		case ResetRFC3339:
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				return t, true
			}
		case ResetUnix:
			if numErr == nil && n >= 1_000_000_000 {
				return time.Unix(n, 0), true
			}
		case ResetSeconds:
			if numErr == nil && n >= 0 && n < 1_000_000_000 {
				return now.Add(time.Duration(n) * time.Second), true
			}
		}
	}
	return time.Time{}, false
}

func headerInt(h http.Header, key string) (int, bool) {
	raw := strings.TrimSpace(h.Get(key))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// UpdateFromResponseHeaders logs the server-advertised limits for platform.
// Local buckets remain the only admission authority; nothing here changes them.
func (r *RateLimiter) UpdateFromResponseHeaders(h http.Header, platform string) HeaderInfo {
	return r.ObserveServerLimits(ParseHeaders(h, r.now()), platform)
}

// ObserveServerLimits logs limits already parsed by a platform adapter.
// Like UpdateFromResponseHeaders it is advisory only.
func (r *RateLimiter) ObserveServerLimits(info HeaderInfo, platform string) HeaderInfo {
	if !info.Present {
		return info
	}

	fields := map[string]interface{}{
		"platform":  NormalizePlatform(platform),
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.Reset.IsZero() {
		fields["reset"] = info.Reset
	}
	if info.RetryAfter > 0 {
		fields["retry_after"] = info.RetryAfter
	}

	if (info.Remaining == 0 && info.Limit > 0) || info.RetryAfter > 0 {
		r.log.WarnWithFields("server reports rate limit exhausted", fields)
	} else {
		r.log.DebugWithFields("server rate limit headers", fields)
	}
	return info
}
