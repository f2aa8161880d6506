// Package telemetry reports operator-visible search failures to Sentry.
package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

const serviceName = "pensieve-search"

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN         string
	Environment string
	Release     string
	Debug       bool
}

// Init initializes Sentry and returns a function that flushes pending
// events. With an empty DSN it does nothing. An init failure is logged
// and reporting stays off.
func Init(cfg Config, logger zerolog.Logger) func() {
	if cfg.DSN == "" {
		return func() {}
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		Debug:       cfg.Debug,
		ServerName:  serviceName,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("sentry: failed to initialize, continuing without error reporting")
		return func() {}
	}

	logger.Info().Str("environment", cfg.Environment).Msg("sentry: error reporting initialized")
	return func() {
		sentry.Flush(5 * time.Second)
	}
}

// CaptureError captures an error to Sentry with the current context.
func CaptureError(ctx context.Context, err error) {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
}

// SearchFailure reports a failed search tagged with its id
func SearchFailure(searchID string, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("search_id", searchID)
		scope.SetTag("component", "searcher")
		sentry.CaptureException(err)
	})
}

// AddBreadcrumb adds a breadcrumb to the current scope.
func AddBreadcrumb(ctx context.Context, category, message string) {
	breadcrumb := &sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(breadcrumb, nil)
	} else {
		sentry.AddBreadcrumb(breadcrumb)
	}
}
