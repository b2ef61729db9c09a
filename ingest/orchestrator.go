// Package ingest periodically loads authoritative rate schedules into the store,
// so the precision ladder can resolve without research
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sig-0/iq"

	"github.com/sig-0/dutyrates/storage"
	"github.com/sig-0/dutyrates/storage/types"
)

var (
	errInvalidFeed     = errors.New("invalid feed")
	errInvalidInterval = errors.New("invalid interval")
	errUnknownBase     = errors.New("schedule row has no base rate")
)

const (
	defaultRetryDelay  = 10 * time.Second
	defaultSaveTimeout = 10 * time.Second
)

// Orchestrator is the main job scheduler for registered feeds
type Orchestrator struct {
	storage storage.Storage
	logger  *slog.Logger

	registeredFeeds sync.Map

	q             iq.Queue[scheduledIngest]
	queryInterval time.Duration
	retryDelay    time.Duration
	saveTimeout   time.Duration
	qMux          sync.Mutex
}

// New creates a new Orchestrator instance
func New(storage storage.Storage, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		storage:       storage,
		q:             iq.NewQueue[scheduledIngest](),
		queryInterval: time.Second, // every second
		retryDelay:    defaultRetryDelay,
		saveTimeout:   defaultSaveTimeout,
	}

	// Apply the options
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Register registers a new feed with the orchestrator.
// The feed is immediately queued up for execution
func (o *Orchestrator) Register(f Feed) error {
	if f == nil || f.Name() == "" {
		return errInvalidFeed
	}

	if f.Interval() <= 0 {
		return errInvalidInterval
	}

	// Register the feed
	id := xid.New()
	o.registeredFeeds.Store(id, f)

	o.logger.Info(
		"registered new feed",
		"name", f.Name(),
	)

	// Schedule the job
	o.scheduleIngest(
		time.Now().UTC(),
		id,
		f,
		0,
	)

	return nil
}

// Start starts the feed orchestration service loop [BLOCKING]
func (o *Orchestrator) Start(ctx context.Context) error {
	collectorCh := make(chan *workerResponse, 100)

	// Start a listener for monitoring jobs
	ticker := time.NewTicker(o.queryInterval)
	defer ticker.Stop()

	// handleIngest initializes all jobs that are executable (due)
	handleIngest := func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				nextSI := o.nextIngest()
				if nextSI == nil {
					return // nothing to schedule anymore
				}

				o.logger.Info(
					"scheduling ingest",
					"name", nextSI.feed.Name(),
				)

				// Spawn worker
				info := &workerInfo{
					feed:     nextSI.feed,
					feedID:   nextSI.feedID,
					failures: nextSI.failures,
					resCh:    collectorCh,
				}

				go handleJob(ctx, info)
			}
		}
	}

	// Initialize the first set of due jobs (on boot)
	handleIngest()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator service shut down")

			return nil
		case <-ticker.C:
			handleIngest()
		case response := <-collectorCh:
			now := time.Now().UTC()

			feedRaw, ok := o.registeredFeeds.Load(response.feedID)
			if !ok {
				o.logger.Error(
					"unable to load registered feed",
					"id", response.feedID.String(),
				)

				continue
			}

			feed, _ := feedRaw.(Feed)

			if response.error != nil {
				failures := response.failures + 1
				delay := o.backoff(failures, feed.Interval())

				o.logger.Error(
					"error encountered during schedule fetch",
					"name", feed.Name(),
					"failures", failures,
					"retry_in", delay,
					"err", response.error,
				)

				// Retry ingest job soon
				o.scheduleIngest(
					now.Add(delay),
					response.feedID,
					feed,
					failures,
				)

				continue
			}

			saved := o.save(ctx, response.fragments)

			o.logger.Info(
				"ingested schedule",
				"name", feed.Name(),
				"fetched", len(response.fragments),
				"saved", saved,
			)

			// Schedule a new ingest for this feed
			o.scheduleIngest(
				now.Add(feed.Interval()),
				response.feedID,
				feed,
				0,
			)
		}
	}
}

// save persists the fetched fragments as stable entries, returning the saved count.
// Individual failures are logged and skipped
func (o *Orchestrator) save(ctx context.Context, fragments []*types.Fragment) int {
	saved := 0

	for _, fragment := range fragments {
		prepared, err := prepare(fragment)
		if err != nil {
			o.logger.Warn(
				"skipping schedule row",
				"code", fragment.Key.Code,
				"err", err,
			)

			continue
		}

		saveCtx, cancelFn := context.WithTimeout(ctx, o.saveTimeout)

		if err := o.storage.Put(saveCtx, prepared, 0); err != nil {
			o.logger.Error(
				"unable to save schedule row",
				"code", prepared.Key.Code,
				"origin", prepared.Key.Origin,
				"destination", prepared.Key.Destination,
				"err", err,
			)

			cancelFn()

			continue
		}

		cancelFn()

		saved++
	}

	return saved
}

// prepare canonicalizes a schedule row into a stable fragment
func prepare(f *types.Fragment) (*types.Fragment, error) {
	if f == nil {
		return nil, errInvalidFeed
	}

	code, err := types.ParseCode(f.Key.Code)
	if err != nil {
		return nil, err
	}

	origin, err := types.ParseCountry(f.Key.Origin.String())
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}

	destination, err := types.ParseCountry(f.Key.Destination.String())
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	if f.BaseRate.IsUnknown() {
		return nil, errUnknownBase
	}

	out := f.Clone()
	out.Key = types.Key{
		Code:        code.String(),
		Origin:      origin,
		Destination: destination,
		Class:       types.FieldClassStable,
	}
	out.Overlays = nil
	out.OverlaysKnown = false

	if out.Source == "" {
		out.Source = types.SourceExact
	}

	if out.Confidence <= 0 {
		out.Confidence = types.CeilingExact
	}

	if out.VerifiedAt.IsZero() {
		out.VerifiedAt = time.Now().UTC()
	}

	return out, nil
}

// backoff doubles the retry delay per consecutive failure, capped at the feed interval
func (o *Orchestrator) backoff(failures int, interval time.Duration) time.Duration {
	delay := o.retryDelay

	for i := 1; i < failures && delay < interval; i++ {
		delay *= 2
	}

	return min(delay, interval)
}

// scheduleIngest schedules a new feed ingest
func (o *Orchestrator) scheduleIngest(
	at time.Time,
	feedID xid.ID,
	feed Feed,
	failures int,
) {
	o.qMux.Lock()
	defer o.qMux.Unlock()

	futureSI := scheduledIngest{
		at:       at,
		feedID:   feedID,
		feed:     feed,
		failures: failures,
	}

	o.q.Push(futureSI)
}

// nextIngest fetches the next due ingest job, as of the moment of calling
func (o *Orchestrator) nextIngest() *scheduledIngest {
	o.qMux.Lock()
	defer o.qMux.Unlock()

	now := time.Now().UTC()

	// Check if anything needs to be scheduled
	if o.q.Len() == 0 {
		return nil // nothing to schedule, all jobs are running
	}

	// Check if the top element is due
	if o.q.Index(0).at.After(now) {
		return nil // nothing to schedule, latest job is in the future
	}

	// Grab the next job
	nextSI := o.q.PopFront()

	return nextSI
}
