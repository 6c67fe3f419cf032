package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Platform.InstanceURL = "https://pixelfed.social"
	cfg.Platform.AccessToken = "token"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.RateLimit.Global.RequestsPerMinute != 60 {
		t.Errorf("Expected default requests per minute to be 60, got %d", config.RateLimit.Global.RequestsPerMinute)
	}

	if config.RateLimit.Endpoints["MEDIA"].PerMinute != 10 {
		t.Errorf("Expected default MEDIA budget of 10/min, got %d", config.RateLimit.Endpoints["MEDIA"].PerMinute)
	}

	if config.Retry.MaxAttempts != 3 {
		t.Errorf("Expected default max attempts to be 3, got %d", config.Retry.MaxAttempts)
	}

	if len(config.Retry.RetryStatusCodes) != len(DefaultRetryStatusCodes) {
		t.Errorf("Expected %d retry status codes, got %d", len(DefaultRetryStatusCodes), len(config.Retry.RetryStatusCodes))
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FEDICAPTION_INSTANCE_URL", "https://mastodon.social")
	t.Setenv("FEDICAPTION_ACCESS_TOKEN", "env-token")
	t.Setenv("FEDICAPTION_PLATFORM", "mastodon")
	t.Setenv("FEDICAPTION_RATE_LIMIT_PER_MINUTE", "30")
	t.Setenv("FEDICAPTION_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("FEDICAPTION_RETRY_BASE_DELAY", "0.5")
	t.Setenv("FEDICAPTION_RETRY_STATUS_CODES", "429, 503")
	t.Setenv("FEDICAPTION_LOG_LEVEL", "debug")

	config := DefaultConfig()
	if err := config.LoadFromEnv(); err != nil {
		t.Fatalf("Failed to load from environment: %v", err)
	}

	if config.Platform.InstanceURL != "https://mastodon.social" {
		t.Errorf("Expected instance URL from env, got %s", config.Platform.InstanceURL)
	}
	if config.Platform.AccessToken != "env-token" {
		t.Errorf("Expected access token from env, got %s", config.Platform.AccessToken)
	}
	if config.Platform.Type != "mastodon" {
		t.Errorf("Expected platform mastodon, got %s", config.Platform.Type)
	}
	if config.RateLimit.Global.RequestsPerMinute != 30 {
		t.Errorf("Expected requests per minute to be 30, got %d", config.RateLimit.Global.RequestsPerMinute)
	}
	if config.Retry.MaxAttempts != 5 {
		t.Errorf("Expected max attempts to be 5, got %d", config.Retry.MaxAttempts)
	}
	if config.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("Expected base delay of 500ms, got %v", config.Retry.BaseDelay)
	}
	if len(config.Retry.RetryStatusCodes) != 2 || config.Retry.RetryStatusCodes[1] != 503 {
		t.Errorf("Expected status codes [429 503], got %v", config.Retry.RetryStatusCodes)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level to be debug, got %s", config.Logging.Level)
	}
}

func TestLoadFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("FEDICAPTION_RETRY_MAX_ATTEMPTS", "many")

	config := DefaultConfig()
	err := config.LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "RETRY_MAX_ATTEMPTS") {
		t.Errorf("Expected error naming RETRY_MAX_ATTEMPTS, got %v", err)
	}
}

func TestRateLimitOverridesFromEnv(t *testing.T) {
	config := DefaultConfig()
	err := config.loadRateLimitOverrides([]string{
		"FEDICAPTION_RATE_LIMIT_ENDPOINT_STATUSES_MINUTE=20",
		"FEDICAPTION_RATE_LIMIT_PLATFORM_MASTODON_HOUR=300",
		"FEDICAPTION_RATE_LIMIT_PLATFORM_PIXELFED_ENDPOINT_MEDIA_MINUTE=5",
		"FEDICAPTION_RATE_LIMIT_PER_MINUTE=10",
		"UNRELATED=1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := config.RateLimit.Endpoints["STATUSES"].PerMinute; got != 20 {
		t.Errorf("Expected STATUSES 20/min, got %d", got)
	}
	if got := config.RateLimit.Platforms["mastodon"].PerHour; got != 300 {
		t.Errorf("Expected mastodon 300/h, got %d", got)
	}
	if got := config.RateLimit.PlatformEndpoints["pixelfed"]["MEDIA"].PerMinute; got != 5 {
		t.Errorf("Expected pixelfed MEDIA 5/min, got %d", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{
			name:      "valid config",
			mutate:    func(c *Config) {},
			wantError: false,
		},
		{
			name:      "missing instance URL",
			mutate:    func(c *Config) { c.Platform.InstanceURL = "" },
			wantError: true,
		},
		{
			name:      "relative instance URL",
			mutate:    func(c *Config) { c.Platform.InstanceURL = "pixelfed.social" },
			wantError: true,
		},
		{
			name:      "missing access token",
			mutate:    func(c *Config) { c.Platform.AccessToken = "" },
			wantError: true,
		},
		{
			name:      "negative endpoint limit",
			mutate:    func(c *Config) { c.RateLimit.Endpoints["MEDIA"] = WindowLimits{PerMinute: -1} },
			wantError: true,
		},
		{
			name:      "zero attempts",
			mutate:    func(c *Config) { c.Retry.MaxAttempts = 0 },
			wantError: true,
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Logging.Level = "invalid" },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestForPlatformClones(t *testing.T) {
	base := DefaultRateLimitConfig()
	derived := base.ForPlatform("Mastodon", WindowLimits{PerMinute: 5})

	if _, ok := base.Platforms["mastodon"]; ok {
		t.Error("ForPlatform must not modify the receiver")
	}
	if derived.Platforms["mastodon"].PerMinute != 5 {
		t.Errorf("Expected mastodon override of 5/min, got %+v", derived.Platforms["mastodon"])
	}

	derived.Endpoints["MEDIA"] = WindowLimits{PerMinute: 1}
	if base.Endpoints["MEDIA"].PerMinute != 10 {
		t.Error("Clone must deep copy endpoint limits")
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()

	config.MergeCommandLineFlags(map[string]interface{}{
		"instance":  "https://pleroma.site",
		"token":     "flag-token",
		"platform":  "pleroma",
		"log-level": "error",
	})

	if config.Platform.InstanceURL != "https://pleroma.site" {
		t.Errorf("Expected instance from flags, got %s", config.Platform.InstanceURL)
	}
	if config.Platform.AccessToken != "flag-token" {
		t.Errorf("Expected token from flags, got %s", config.Platform.AccessToken)
	}
	if config.Platform.Type != "pleroma" {
		t.Errorf("Expected platform from flags, got %s", config.Platform.Type)
	}
	if config.Logging.Level != "error" {
		t.Errorf("Expected log level to be error, got %s", config.Logging.Level)
	}
}

func TestSaveAndLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	config := validConfig()
	config.RateLimit.PlatformEndpoints["mastodon"] = map[string]WindowLimits{"MEDIA": {PerMinute: 3}}
	config.Retry.MaxAttempts = 4

	if err := config.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded := DefaultConfig()
	if err := loaded.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Platform.InstanceURL != "https://pixelfed.social" {
		t.Errorf("Expected loaded instance URL, got %s", loaded.Platform.InstanceURL)
	}
	if loaded.Retry.MaxAttempts != 4 {
		t.Errorf("Expected loaded max attempts to be 4, got %d", loaded.Retry.MaxAttempts)
	}
	if loaded.RateLimit.PlatformEndpoints["mastodon"]["MEDIA"].PerMinute != 3 {
		t.Errorf("Expected nested platform endpoint override, got %+v", loaded.RateLimit.PlatformEndpoints)
	}
	if loaded.Retry.BaseDelay != time.Second {
		t.Errorf("Expected base delay to round-trip, got %v", loaded.Retry.BaseDelay)
	}
}
