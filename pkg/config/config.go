package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "FEDICAPTION_"

// Config holds all configuration options for the protocol client
type Config struct {
	// Target instance and credentials
	Platform PlatformConfig `yaml:"platform" json:"platform"`

	// Self-imposed request budgets
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry tuning
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PlatformConfig describes the instance the client talks to
type PlatformConfig struct {
	Type         string        `yaml:"type" json:"type"`
	InstanceURL  string        `yaml:"instance_url" json:"instance_url"`
	AccessToken  string        `yaml:"access_token" json:"access_token"`
	ClientKey    string        `yaml:"client_key" json:"client_key"`
	ClientSecret string        `yaml:"client_secret" json:"client_secret"`
	Username     string        `yaml:"username" json:"username"`
	UserAgent    string        `yaml:"user_agent" json:"user_agent"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

// WindowLimits caps requests over the three standard windows. Zero disables a window.
type WindowLimits struct {
	PerMinute int `yaml:"per_minute" json:"per_minute"`
	PerHour   int `yaml:"per_hour" json:"per_hour"`
	PerDay    int `yaml:"per_day" json:"per_day"`
}

// IsZero reports whether no window is configured.
func (w WindowLimits) IsZero() bool {
	return w.PerMinute <= 0 && w.PerHour <= 0 && w.PerDay <= 0
}

// GlobalLimits applies to every request regardless of platform or endpoint
type GlobalLimits struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int `yaml:"requests_per_hour" json:"requests_per_hour"`
	RequestsPerDay    int `yaml:"requests_per_day" json:"requests_per_day"`
	MaxBurst          int `yaml:"max_burst" json:"max_burst"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Global            GlobalLimits                       `yaml:"global" json:"global"`
	Endpoints         map[string]WindowLimits            `yaml:"endpoints" json:"endpoints"`
	Platforms         map[string]WindowLimits            `yaml:"platforms" json:"platforms"`
	PlatformEndpoints map[string]map[string]WindowLimits `yaml:"platform_endpoints" json:"platform_endpoints"`
	MaxWait           time.Duration                      `yaml:"max_wait" json:"max_wait"`
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts            int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay              time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay               time.Duration `yaml:"max_delay" json:"max_delay"`
	BackoffFactor          float64       `yaml:"backoff_factor" json:"backoff_factor"`
	Jitter                 bool          `yaml:"jitter" json:"jitter"`
	JitterFactor           float64       `yaml:"jitter_factor" json:"jitter_factor"`
	RetryStatusCodes       []int         `yaml:"retry_status_codes" json:"retry_status_codes"`
	RetryableKinds         []string      `yaml:"retryable_kinds" json:"retryable_kinds"`
	RetryableErrors        []string      `yaml:"retryable_errors" json:"retryable_errors"`
	RetryOnTimeout         bool          `yaml:"retry_on_timeout" json:"retry_on_timeout"`
	RetryOnConnectionError bool          `yaml:"retry_on_connection_error" json:"retry_on_connection_error"`
	RetryOnServerError     bool          `yaml:"retry_on_server_error" json:"retry_on_server_error"`
	RetryOnRateLimit       bool          `yaml:"retry_on_rate_limit" json:"retry_on_rate_limit"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultRetryStatusCodes are retried when the matching toggle is on.
// 520-524 are CDN edge errors.
var DefaultRetryStatusCodes = []int{429, 500, 502, 503, 504, 520, 521, 522, 523, 524}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			UserAgent: "fedicaption/1.0 (+accessibility captions)",
			Timeout:   30 * time.Second,
		},
		RateLimit: DefaultRateLimitConfig(),
		Retry:     DefaultRetryConfig(),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultRateLimitConfig returns the default request budgets
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Global: GlobalLimits{
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			RequestsPerDay:    10000,
			MaxBurst:          10,
		},
		Endpoints: map[string]WindowLimits{
			"MEDIA": {PerMinute: 10},
		},
		Platforms:         map[string]WindowLimits{},
		PlatformEndpoints: map[string]map[string]WindowLimits{},
		MaxWait:           5 * time.Minute,
	}
}

// DefaultRetryConfig returns the default retry tuning
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:            3,
		BaseDelay:              1 * time.Second,
		MaxDelay:               30 * time.Second,
		BackoffFactor:          2.0,
		Jitter:                 true,
		JitterFactor:           0.1,
		RetryStatusCodes:       append([]int(nil), DefaultRetryStatusCodes...),
		RetryableErrors:        []string{"connection reset", "temporarily unavailable", "eof"},
		RetryOnTimeout:         true,
		RetryOnConnectionError: true,
		RetryOnServerError:     true,
		RetryOnRateLimit:       true,
	}
}

// Clone returns a deep copy of the rate limit configuration
func (r RateLimitConfig) Clone() RateLimitConfig {
	out := r
	out.Endpoints = make(map[string]WindowLimits, len(r.Endpoints))
	for k, v := range r.Endpoints {
		out.Endpoints[k] = v
	}
	out.Platforms = make(map[string]WindowLimits, len(r.Platforms))
	for k, v := range r.Platforms {
		out.Platforms[k] = v
	}
	out.PlatformEndpoints = make(map[string]map[string]WindowLimits, len(r.PlatformEndpoints))
	for p, eps := range r.PlatformEndpoints {
		inner := make(map[string]WindowLimits, len(eps))
		for k, v := range eps {
			inner[k] = v
		}
		out.PlatformEndpoints[p] = inner
	}
	return out
}

// ForPlatform returns a clone with limits set for one platform, leaving the receiver untouched.
func (r RateLimitConfig) ForPlatform(platform string, limits WindowLimits) RateLimitConfig {
	out := r.Clone()
	out.Platforms[strings.ToLower(platform)] = limits
	return out
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv(envPrefix + "PLATFORM"); v != "" {
		c.Platform.Type = v
	}
	if v := os.Getenv(envPrefix + "INSTANCE_URL"); v != "" {
		c.Platform.InstanceURL = v
	}
	if v := os.Getenv(envPrefix + "ACCESS_TOKEN"); v != "" {
		c.Platform.AccessToken = v
	}
	if v := os.Getenv(envPrefix + "CLIENT_KEY"); v != "" {
		c.Platform.ClientKey = v
	}
	if v := os.Getenv(envPrefix + "CLIENT_SECRET"); v != "" {
		c.Platform.ClientSecret = v
	}
	if v := os.Getenv(envPrefix + "USERNAME"); v != "" {
		c.Platform.Username = v
	}
	if v := os.Getenv(envPrefix + "USER_AGENT"); v != "" {
		c.Platform.UserAgent = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	intVars := map[string]*int{
		"RATE_LIMIT_PER_MINUTE": &c.RateLimit.Global.RequestsPerMinute,
		"RATE_LIMIT_PER_HOUR":   &c.RateLimit.Global.RequestsPerHour,
		"RATE_LIMIT_PER_DAY":    &c.RateLimit.Global.RequestsPerDay,
		"RATE_LIMIT_MAX_BURST":  &c.RateLimit.Global.MaxBurst,
		"RETRY_MAX_ATTEMPTS":    &c.Retry.MaxAttempts,
	}
	for name, dst := range intVars {
		if v := os.Getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				continue
			}
			*dst = n
		}
	}

	durVars := map[string]*time.Duration{
		"TIMEOUT":             &c.Platform.Timeout,
		"RATE_LIMIT_MAX_WAIT": &c.RateLimit.MaxWait,
		"RETRY_BASE_DELAY":    &c.Retry.BaseDelay,
		"RETRY_MAX_DELAY":     &c.Retry.MaxDelay,
	}
	for name, dst := range durVars {
		if v := os.Getenv(envPrefix + name); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				continue
			}
			*dst = d
		}
	}

	if v := os.Getenv(envPrefix + "RETRY_BACKOFF_FACTOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRETRY_BACKOFF_FACTOR: %w", envPrefix, err))
		} else {
			c.Retry.BackoffFactor = f
		}
	}
	if v := os.Getenv(envPrefix + "RETRY_JITTER"); v != "" {
		c.Retry.Jitter = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv(envPrefix + "RETRY_STATUS_CODES"); v != "" {
		codes, err := parseIntList(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRETRY_STATUS_CODES: %w", envPrefix, err))
		} else {
			c.Retry.RetryStatusCodes = codes
		}
	}
	if v := os.Getenv(envPrefix + "RETRY_ERRORS"); v != "" {
		c.Retry.RetryableErrors = splitList(v)
	}

	if err := c.loadRateLimitOverrides(os.Environ()); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// loadRateLimitOverrides reads nested overrides such as
// FEDICAPTION_RATE_LIMIT_PLATFORM_MASTODON_ENDPOINT_MEDIA_MINUTE=5.
func (c *Config) loadRateLimitOverrides(environ []string) error {
	var errs []error
	const prefix = envPrefix + "RATE_LIMIT_"

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		parts := strings.Split(strings.TrimPrefix(key, prefix), "_")
		if len(parts) < 3 {
			continue
		}
		window := parts[len(parts)-1]
		if window != "MINUTE" && window != "HOUR" && window != "DAY" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}

		switch parts[0] {
		case "ENDPOINT":
			endpoint := strings.Join(parts[1:len(parts)-1], "_")
			if c.RateLimit.Endpoints == nil {
				c.RateLimit.Endpoints = map[string]WindowLimits{}
			}
			c.RateLimit.Endpoints[endpoint] = setWindow(c.RateLimit.Endpoints[endpoint], window, n)
		case "PLATFORM":
			rest := parts[1 : len(parts)-1]
			idx := indexOf(rest, "ENDPOINT")
			if idx < 0 {
				platform := strings.ToLower(strings.Join(rest, "_"))
				if c.RateLimit.Platforms == nil {
					c.RateLimit.Platforms = map[string]WindowLimits{}
				}
				c.RateLimit.Platforms[platform] = setWindow(c.RateLimit.Platforms[platform], window, n)
				continue
			}
			platform := strings.ToLower(strings.Join(rest[:idx], "_"))
			endpoint := strings.Join(rest[idx+1:], "_")
			if platform == "" || endpoint == "" {
				continue
			}
			if c.RateLimit.PlatformEndpoints == nil {
				c.RateLimit.PlatformEndpoints = map[string]map[string]WindowLimits{}
			}
			if c.RateLimit.PlatformEndpoints[platform] == nil {
				c.RateLimit.PlatformEndpoints[platform] = map[string]WindowLimits{}
			}
			eps := c.RateLimit.PlatformEndpoints[platform]
			eps[endpoint] = setWindow(eps[endpoint], window, n)
		}
	}

	return errors.Join(errs...)
}

func setWindow(w WindowLimits, window string, n int) WindowLimits {
	switch window {
	case "MINUTE":
		w.PerMinute = n
	case "HOUR":
		w.PerHour = n
	case "DAY":
		w.PerDay = n
	}
	return w
}

func indexOf(parts []string, s string) int {
	for i, p := range parts {
		if p == s {
			return i
		}
	}
	return -1
}

// parseDuration accepts Go durations and bare seconds ("1.5").
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func parseIntList(s string) ([]int, error) {
	var out []int
	for _, item := range splitList(s) {
		n, err := strconv.Atoi(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".fedicaption.yaml",
		".fedicaption.yml",
		filepath.Join(home, ".config", "fedicaption", "config.yaml"),
		filepath.Join(home, ".config", "fedicaption", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Platform.InstanceURL == "" {
		errs = append(errs, errors.New("instance URL is required"))
	} else if u, err := url.Parse(c.Platform.InstanceURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("instance URL %q must be an absolute URL", c.Platform.InstanceURL))
	}
	if c.Platform.AccessToken == "" {
		errs = append(errs, errors.New("access token is required"))
	}
	if c.Platform.Timeout < 0 {
		errs = append(errs, errors.New("timeout cannot be negative"))
	}

	if err := c.RateLimit.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Validate checks rate limit values for negatives
func (r RateLimitConfig) Validate() error {
	var errs []error
	g := r.Global
	if g.RequestsPerMinute < 0 || g.RequestsPerHour < 0 || g.RequestsPerDay < 0 || g.MaxBurst < 0 {
		errs = append(errs, errors.New("global rate limits cannot be negative"))
	}
	check := func(scope string, w WindowLimits) {
		if w.PerMinute < 0 || w.PerHour < 0 || w.PerDay < 0 {
			errs = append(errs, fmt.Errorf("rate limits for %s cannot be negative", scope))
		}
	}
	for name, w := range r.Endpoints {
		check("endpoint "+name, w)
	}
	for name, w := range r.Platforms {
		check("platform "+name, w)
	}
	for p, eps := range r.PlatformEndpoints {
		for name, w := range eps {
			check(p+"/"+name, w)
		}
	}
	if r.MaxWait < 0 {
		errs = append(errs, errors.New("max wait cannot be negative"))
	}
	return errors.Join(errs...)
}

// Validate checks retry values
func (r RetryConfig) Validate() error {
	var errs []error
	if r.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}
	if r.BaseDelay < 0 || r.MaxDelay < 0 {
		errs = append(errs, errors.New("retry delays cannot be negative"))
	}
	if r.BackoffFactor < 1 {
		errs = append(errs, errors.New("retry backoff factor must be >= 1"))
	}
	if r.JitterFactor < 0 || r.JitterFactor > 1 {
		errs = append(errs, errors.New("retry jitter factor must be between 0 and 1"))
	}
	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["platform"].(string); ok && v != "" {
		c.Platform.Type = v
	}
	if v, ok := flags["instance"].(string); ok && v != "" {
		c.Platform.InstanceURL = v
	}
	if v, ok := flags["token"].(string); ok && v != "" {
		c.Platform.AccessToken = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["max-attempts"].(int); ok && v > 0 {
		c.Retry.MaxAttempts = v
	}
	if v, ok := flags["requests-per-minute"].(int); ok && v > 0 {
		c.RateLimit.Global.RequestsPerMinute = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	cfg, err := LoadUnvalidated(configPath, flags)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadUnvalidated is Load without the final validation, for callers that
// fill credentials from another source first.
func LoadUnvalidated(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".fedicaption.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	return config, nil
}
