package ingest

import (
	"context"
	"time"

	"github.com/rs/xid"

	"github.com/sig-0/dutyrates/storage/types"
)

// scheduledIngest is a single scheduled Feed ingest job
type scheduledIngest struct {
	at       time.Time
	feed     Feed
	feedID   xid.ID
	failures int // consecutive failed fetches
}

// Less is utilized to sort scheduled ingests by their due-time (earliest == first)
func (a scheduledIngest) Less(b scheduledIngest) bool {
	return a.at.Before(b.at)
}

// workerInfo is the work context for the feed routine
type workerInfo struct {
	feed     Feed
	resCh    chan<- *workerResponse
	feedID   xid.ID
	failures int
}

// workerResponse is the feed routine response
type workerResponse struct {
	error     error             // encountered error, if any
	fragments []*types.Fragment // the fetched fragments
	feedID    xid.ID            // the feed ID
	failures  int               // consecutive failures before this run
}

// handleJob fetches using the feed
func handleJob(
	ctx context.Context,
	info *workerInfo,
) {
	fragments, err := info.feed.Fetch(ctx)

	response := &workerResponse{
		error:     err,
		fragments: fragments,
		feedID:    info.feedID,
		failures:  info.failures,
	}

	select {
	case <-ctx.Done():
	case info.resCh <- response:
	}
}
