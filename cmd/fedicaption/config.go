package main

import (
	"errors"
	"fmt"
	"os"

	"fedicaption/pkg/config"
	"fedicaption/pkg/ui"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const exampleConfig = `# fedicaption configuration file
#
# Values can also come from environment variables prefixed with
# FEDICAPTION_, e.g. FEDICAPTION_INSTANCE_URL and FEDICAPTION_ACCESS_TOKEN,
# or from a .env file. Prefer 'fedicaption auth login' over storing the
# token here.

platform:
  # pixelfed, mastodon or pleroma. Detected from the URL when empty.
  type: ""
  instance_url: "https://pixelfed.social"
  access_token: ""
  user_agent: "fedicaption/1.0 (+accessibility captions)"
  timeout: 30s

rate_limit:
  # Budget shared by every request. 0 disables a window.
  global:
    requests_per_minute: 60
    requests_per_hour: 1000
    requests_per_day: 10000
    max_burst: 10
  # Longest a request may wait for tokens before it is refused.
  max_wait: 5m
  # Per endpoint budgets keyed by tag: STATUSES, ACCOUNTS, MEDIA, SEARCH, ...
  endpoints:
    MEDIA:
      per_minute: 10
  # Per platform budgets.
  platforms:
    mastodon:
      per_minute: 300

retry:
  max_attempts: 3
  base_delay: 1s
  max_delay: 30s
  backoff_factor: 2
  jitter: true
  jitter_factor: 0.1
  retry_status_codes: [429, 500, 502, 503, 504, 520, 521, 522, 523, 524]

logging:
  # debug, info, warn, error or disabled
  level: "info"
  # Optional log file, written as JSON in addition to the console.
  file: ""
`

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
		Long: `Manage fedicaption configuration files.

Configuration is loaded from (highest priority first):
  - Command line flags
  - Environment variables (FEDICAPTION_*)
  - .env files
  - Configuration file
  - Default values`,
	}

	configCmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create an example configuration file",
			Long: `Create an example configuration file with the common options.

The file is created as '.fedicaption.yaml' in the current directory unless
a different path is given with --config.`,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runConfigInit()
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show the effective configuration",
			Long: `Show the configuration merged from every source, including a stored
account. Tokens and client secrets are masked.`,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runConfigShow(cmd)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate the configuration",
			Long: `Validate the merged configuration: required fields, URL syntax,
and rate limit and retry values.`,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runConfigValidate()
			},
		},
	)
	return configCmd
}

func (a *app) runConfigInit() error {
	path := a.configFile
	if path == "" {
		path = ".fedicaption.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := os.WriteFile(path, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + path)
	ui.Print(`
Next steps:
1. Set instance_url in the file
2. Run 'fedicaption auth login' to store an access token
3. Run 'fedicaption config validate' to check the configuration`)
	return nil
}

func (a *app) runConfigShow(cmd *cobra.Command) error {
	cfg, err := a.loadConfig(false)
	if err != nil {
		return err
	}

	display := *cfg
	display.Platform.AccessToken = maskSecret(display.Platform.AccessToken)
	display.Platform.ClientSecret = maskSecret(display.Platform.ClientSecret)

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func (a *app) runConfigValidate() error {
	cfg, err := a.loadConfig(false)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		ui.PrintError("Configuration has errors")
		var joined interface{ Unwrap() []error }
		if errors.As(err, &joined) {
			for _, e := range joined.Unwrap() {
				ui.PrintError("  " + e.Error())
			}
		}
		return errors.New("configuration is invalid")
	}

	if cfg.Platform.Type == "" {
		ui.PrintWarning("Platform type not set, it will be detected from the instance URL")
	}

	ui.PrintSuccess("Configuration is valid")
	ui.PrintInfo("Instance", cfg.Platform.InstanceURL)
	ui.PrintInfo("Rate limit", describeGlobalLimits(cfg.RateLimit.Global))
	ui.PrintInfo("Max attempts", fmt.Sprintf("%d", cfg.Retry.MaxAttempts))
	ui.PrintInfo("Log level", cfg.Logging.Level)
	return nil
}

func describeGlobalLimits(g config.GlobalLimits) string {
	s := ""
	for _, w := range []struct {
		n    int
		unit string
	}{
		{g.RequestsPerMinute, "minute"},
		{g.RequestsPerHour, "hour"},
		{g.RequestsPerDay, "day"},
	} {
		if w.n <= 0 {
			continue
		}
		if s != "" {
			s += ", "
		}
		s += fmt.Sprintf("%d/%s", w.n, w.unit)
	}
	if s == "" {
		return "unlimited"
	}
	return s
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 8:
		return s[:4] + "..." + s[len(s)-4:]
	default:
		return "***"
	}
}
