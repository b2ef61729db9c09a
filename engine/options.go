package engine

import (
	"log/slog"
	"time"
)

type Option func(e *Engine)

// WithLogger specifies the logger for the engine
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithWorkers sets the size of the batch worker pool. Defaults to 8
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithClassifier overrides the volatility classifier
func WithClassifier(c Classifier) Option {
	return func(e *Engine) {
		e.classifier = c
	}
}

// WithWorkflowTimeout bounds each query's total resolution time.
// Zero means the caller's context alone governs
func WithWorkflowTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.workflowTimeout = d
	}
}

// WithAgeDecay caps the confidence of stable entries that have not been
// reverified for a while
func WithAgeDecay(d AgeDecay) Option {
	return func(e *Engine) {
		e.ageDecay = &d
	}
}
