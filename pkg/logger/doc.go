// Package logger provides structured logging for fedicaption.
//
// It wraps zerolog behind a small Logger interface so protocol components
// can accept a logger without depending on zerolog directly. Console output
// is human readable; when a log file is configured every event is also
// appended there as JSON.
//
// Basic Usage:
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "debug"})
//
//	logger.WithField("platform", "mastodon").Info("client ready")
//	logger.GetLogger().WarnWithFields("rate limit reached", map[string]interface{}{
//	    "endpoint": "MEDIA",
//	    "wait":     2 * time.Second,
//	})
//
// Components take a Logger argument and fall back to the global instance
// through OrDefault. Tests use NewNopLogger or NewTestLogger, the latter
// capturing every message for assertions.
package logger
