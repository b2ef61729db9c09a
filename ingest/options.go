package ingest

import (
	"log/slog"
	"time"
)

type Option func(o *Orchestrator)

// WithLogger specifies the logger for the orchestrator
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithQueryInterval specifies query interval for the orchestrator's jobs.
// Defaults to 1s.
// Feeds are usually reloaded daily, so a coarser interval is fine in production
func WithQueryInterval(q time.Duration) Option {
	return func(o *Orchestrator) {
		o.queryInterval = q
	}
}

// WithRetryDelay specifies the delay before the first retry of a failed feed.
// Consecutive failures double it, up to the feed's interval. Defaults to 10s
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

// WithSaveTimeout bounds each fragment save. Defaults to 10s
func WithSaveTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.saveTimeout = d
		}
	}
}
