package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"

	"fedicaption/pkg/activitypub"
	"fedicaption/pkg/auth"
	"fedicaption/pkg/config"
	"fedicaption/pkg/logger"
	"fedicaption/pkg/metrics"
	"fedicaption/pkg/platforms"
	"fedicaption/pkg/transport"
	"fedicaption/pkg/ui"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// app holds the global flags and the shared pieces every command needs.
type app struct {
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool
	account    string
	platform   string
	instance   string
	token      string
	discover   bool
	metricsOut string

	registry *prometheus.Registry
	metrics  *metrics.Collector

	// newManager opens the credential store. Tests swap in a memory manager.
	newManager func() (*auth.Manager, error)
	// httpClient, when set, is used for every outbound request.
	httpClient *http.Client
}

func newApp() *app {
	reg := prometheus.NewRegistry()
	return &app{
		registry:   reg,
		metrics:    metrics.NewCollector(reg),
		newManager: auth.NewManager,
	}
}

// newRootCmd builds the command tree around a.
func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fedicaption",
		Short: "Find and fix missing image descriptions on the fediverse",
		Long: `fedicaption reads posts from a Pixelfed, Mastodon or Pleroma/Akkoma
instance, lists images that have no alt text, and writes captions back.

Features:
  - Platform detection by URL or NodeInfo
  - Secure credential storage using the system keychain
  - Tiered client side rate limiting (global, endpoint, platform)
  - Automatic retry with exponential backoff and jitter
  - Resumable caption batches with a live dashboard`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.SetOutput(cmd.OutOrStdout())
			ui.SetErrorOutput(cmd.ErrOrStderr())
			ui.SetNoColor(a.noColor)
			ui.SetQuietMode(a.quiet)

			if a.verbose && cmd.Name() != "help" {
				ui.PrintLogo()
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.writeMetrics()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (default is .fedicaption.yaml or $HOME/.config/fedicaption/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error, disabled)")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "suppress all output except errors")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "show the logo and debug logs")
	flags.StringVarP(&a.account, "account", "a", "", "stored account to use (see 'auth list')")
	flags.StringVar(&a.platform, "platform", "", "platform type (pixelfed, mastodon, pleroma); detected when empty")
	flags.StringVarP(&a.instance, "instance", "i", "", "instance URL, e.g. https://pixelfed.social")
	flags.StringVar(&a.token, "token", "", "access token (prefer 'auth login')")
	flags.BoolVar(&a.discover, "discover", false, "ask the instance for its software via NodeInfo when no platform is set")
	flags.StringVar(&a.metricsOut, "metrics-out", "", "write Prometheus metrics to this file when the command ends")

	rootCmd.SetVersionTemplate(`fedicaption {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		newPostsCmd(a),
		newImagesCmd(a),
		newCaptionCmd(a),
		newDetectCmd(a),
		newAuthCmd(a),
		newConfigCmd(a),
		newStatsCmd(a),
	)
	return rootCmd
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func (a *app) flagMap() map[string]interface{} {
	flags := make(map[string]interface{})
	if a.platform != "" {
		flags["platform"] = a.platform
	}
	if a.instance != "" {
		flags["instance"] = a.instance
	}
	if a.token != "" {
		flags["token"] = a.token
	}
	switch {
	case a.logLevel != "":
		flags["log-level"] = a.logLevel
	case a.verbose:
		flags["log-level"] = "debug"
	case a.quiet:
		flags["log-level"] = "error"
	}
	return flags
}

// loadConfig merges every configuration source, sets up logging and fills
// credentials from the credential manager. With validate set the result is
// ready for a client.
func (a *app) loadConfig(validate bool) (*config.Config, error) {
	cfg, err := config.LoadUnvalidated(a.configFile, a.flagMap())
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := a.resolveCredentials(cfg); err != nil {
		return nil, err
	}

	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return cfg, nil
}

// resolveCredentials applies the --account login, or the default login when
// no token came from flags, files or the environment.
func (a *app) resolveCredentials(cfg *config.Config) error {
	if a.account == "" && cfg.Platform.AccessToken != "" {
		return nil
	}

	manager, err := a.newManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if a.account != "" {
		account, err := manager.Retrieve(a.account)
		if err != nil {
			return fmt.Errorf("failed to load account %q: %w", a.account, err)
		}
		account.ApplyTo(&cfg.Platform)
		return nil
	}

	account, err := manager.RetrieveDefault()
	if errors.Is(err, auth.ErrCredentialsNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load stored credentials: %w", err)
	}
	if cfg.Platform.InstanceURL != "" && !sameInstance(cfg.Platform.InstanceURL, account.InstanceURL) {
		logger.GetLogger().DebugWithFields("Default account is for another instance", map[string]interface{}{
			"account":  account.Name,
			"instance": cfg.Platform.InstanceURL,
		})
		return nil
	}

	logger.GetLogger().DebugWithFields("Using stored account", map[string]interface{}{"account": account.Name})
	account.ApplyTo(&cfg.Platform)
	return nil
}

func sameInstance(a, b string) bool {
	return strings.EqualFold(strings.TrimRight(a, "/"), strings.TrimRight(b, "/"))
}

// newClient creates a protocol client for cfg. With --discover and no
// platform type the adapter is chosen by the instance's NodeInfo.
func (a *app) newClient(ctx context.Context, cfg *config.Config) (*activitypub.Client, error) {
	log := logger.GetLogger()
	opts := []activitypub.Option{
		activitypub.WithLogger(log),
		activitypub.WithMetrics(a.metrics),
	}
	if a.httpClient != nil {
		opts = append(opts, activitypub.WithHTTPClient(a.httpClient))
	}

	if a.discover && cfg.Platform.Type == "" {
		session := a.newSession(cfg)
		defer session.Close()

		adapter, err := platforms.DefaultRegistry(log).CreateWithDiscovery(ctx, session, platforms.ConfigFromPlatform(cfg.Platform, log))
		if err != nil {
			return nil, err
		}
		opts = append(opts, activitypub.WithAdapter(adapter))
	}

	return activitypub.New(cfg, opts...)
}

// newSession returns an unthrottled session for one-off discovery requests.
func (a *app) newSession(cfg *config.Config) *transport.Session {
	return transport.NewSession(transport.Options{
		Timeout:    cfg.Platform.Timeout,
		UserAgent:  cfg.Platform.UserAgent,
		HTTPClient: a.httpClient,
		Logger:     logger.GetLogger(),
	})
}

func (a *app) writeMetrics() error {
	if a.metricsOut == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.metricsOut, a.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
