package ingest

import (
	"context"
	"time"

	"github.com/sig-0/dutyrates/storage/types"
)

// Feed is a single authoritative rate schedule source
type Feed interface {
	// Name returns the human-readable name of the feed
	Name() string

	// Interval returns the interval at which the feed should be reloaded
	Interval() time.Duration

	// Fetch loads the feed, yielding stable-class fragments (base and preferential rates)
	Fetch(context.Context) ([]*types.Fragment, error)
}
