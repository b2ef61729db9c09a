// Package engine resolves rate queries: it classifies each query's volatility,
// walks the precision ladder over the cache, falls back to external research,
// writes results back (best-effort) and aggregates a conservative confidence
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sig-0/dutyrates/cache"
	"github.com/sig-0/dutyrates/lookup"
	"github.com/sig-0/dutyrates/research"
	"github.com/sig-0/dutyrates/storage/types"
	"github.com/sig-0/dutyrates/volatility"
)

const (
	defaultWorkers = 8

	// defaultResearchBudget bounds a shared research flight when no workflow timeout is set
	defaultResearchBudget = 2 * time.Minute
)

// Classifier maps a query triple to its freshness policy
type Classifier interface {
	Classify(code types.ClassificationCode, origin, destination types.Country) volatility.Tier
}

// Researcher resolves a query through external research
type Researcher interface {
	Research(ctx context.Context, req *research.Request) (*research.Result, error)
}

// Engine is the rate resolution engine
type Engine struct {
	cache      *cache.Cache
	resolver   *lookup.Resolver
	classifier Classifier
	researcher Researcher
	logger     *slog.Logger

	// in-flight research, keyed by lane, so concurrent identical queries share one call
	flights singleflight.Group

	// confidence caps for aging stable entries, nil disables them
	ageDecay *AgeDecay

	workers         int
	workflowTimeout time.Duration
}

// New creates a new engine over the cache and the research fallback
func New(c *cache.Cache, researcher Researcher, opts ...Option) *Engine {
	e := &Engine{
		cache:      c,
		classifier: volatility.NewClassifier(),
		researcher: researcher,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		workers:    defaultWorkers,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.resolver = lookup.New(c, lookup.WithLogger(e.logger))

	return e
}

// query is a validated, canonicalized RateQuery
type query struct {
	code           types.ClassificationCode
	origin         types.Country
	destination    types.Country
	productContext string
}

func parseQuery(q types.RateQuery) (query, error) {
	code, err := types.ParseCode(q.Code)
	if err != nil {
		return query{}, err
	}

	origin, err := types.ParseCountry(q.Origin)
	if err != nil {
		return query{}, fmt.Errorf("origin: %w", err)
	}

	destination, err := types.ParseCountry(q.Destination)
	if err != nil {
		return query{}, fmt.Errorf("destination: %w", err)
	}

	parsed := query{
		code:        code,
		origin:      origin,
		destination: destination,
	}

	if q.ProductContext != nil {
		parsed.productContext = strings.TrimSpace(*q.ProductContext)
	}

	return parsed, nil
}

func (q query) key(class types.FieldClass) types.Key {
	return types.Key{
		Code:        q.code.String(),
		Origin:      q.origin,
		Destination: q.destination,
		Class:       class,
	}
}

// Classify returns the volatility tier of a query, without resolving it
func (e *Engine) Classify(q types.RateQuery) (volatility.Tier, error) {
	parsed, err := parseQuery(q)
	if err != nil {
		return volatility.Tier{}, err
	}

	return e.classifier.Classify(parsed.code, parsed.origin, parsed.destination), nil
}

// Resolve resolves a single query. Only malformed input
// (types.ErrInvalidCode, types.ErrInvalidCountry) is returned as an error:
// research and persistence failures degrade the returned record instead.
// A degraded record is in the FAILED state. Without a cached base every rate is
// Unknown, with confidence 0 and source unresolved. A cached base rate stays Known:
// its overlays fall back to a stale cached overlay (the record is marked stale) or
// become Unknown, which again makes the total Unknown with confidence 0
func (e *Engine) Resolve(ctx context.Context, q types.RateQuery) (*types.RateRecord, error) {
	parsed, err := parseQuery(q)
	if err != nil {
		return nil, err
	}

	ctx, cancelFn := e.withWorkflowTimeout(ctx)
	defer cancelFn()

	return e.resolve(ctx, parsed, false)
}

// Reclassify forces research for the query and overwrites its stable entry
func (e *Engine) Reclassify(ctx context.Context, q types.RateQuery) (*types.RateRecord, error) {
	parsed, err := parseQuery(q)
	if err != nil {
		return nil, err
	}

	ctx, cancelFn := e.withWorkflowTimeout(ctx)
	defer cancelFn()

	return e.resolve(ctx, parsed, true)
}

func (e *Engine) withWorkflowTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.workflowTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, e.workflowTimeout)
}

// resolve runs the per-query state machine
func (e *Engine) resolve(ctx context.Context, q query, reclassify bool) (*types.RateRecord, error) {
	var (
		m    = newMachine()
		asm  = newAssembly()
		tier = e.classifier.Classify(q.code, q.origin, q.destination)
	)

	if err := m.to(types.StateCacheCheck); err != nil {
		return nil, err
	}

	match, ladderHit := e.resolver.Resolve(ctx, lookup.Request{
		Code:        q.code,
		Origin:      q.origin,
		Destination: q.destination,
		Class:       types.FieldClassStable,
	})

	overlay, overlayHit := e.cache.Get(ctx, q.key(types.FieldClassOverlay))
	freshOverlay := overlayHit && !overlay.Stale

	// A fresh research snapshot stands in for a missing base, but only if it holds one
	snapshotBase := !ladderHit && freshOverlay && !overlay.Fragment.BaseRate.IsUnknown()

	switch {
	case ladderHit:
		asm.useMatch(match)

		if e.ageDecay != nil {
			asm.capBase(e.ageDecay.ceiling(match.Entry.Fragment.VerifiedAt, e.cache.Now()))
		}
	case snapshotBase:
		asm.useSnapshotBase(q.code.String(), overlay)
	}

	haveBase := ladderHit || snapshotBase

	needsResearch := reclassify ||
		tier.BypassCache ||
		!haveBase ||
		(overlayHit && overlay.Stale) ||
		(!overlayHit && tier.Name != types.TierStable)

	if !needsResearch {
		if overlayHit {
			asm.useOverlayEntry(overlay)
		}

		asm.defaultOverlays(tier)

		// A served snapshot is a research result, not a ladder level
		state := types.StateResolvedResearch
		if ladderHit {
			state = resolvedState(match.Source)
		}

		if err := m.to(state); err != nil {
			return nil, err
		}

		return asm.finalize(q, tier, state), nil
	}

	if err := m.to(types.StatePendingResearch); err != nil {
		return nil, err
	}

	result, err := e.research(ctx, q, tier)
	if err != nil {
		e.logger.Warn(
			"research failed, degrading record",
			"code", q.code,
			"origin", q.origin,
			"destination", q.destination,
			"have_base", haveBase,
			"err", err,
		)

		if err := m.to(types.StateFailed); err != nil {
			return nil, err
		}

		return degrade(q, tier, asm, haveBase, overlay, overlayHit), nil
	}

	var (
		now      = e.cache.Now()
		keepBase = ladderHit && !reclassify
	)

	e.writeBack(ctx, q, tier, result, now, !keepBase, reclassify)

	asm.useResearch(q.code.String(), result, now, tier.CacheTTL, keepBase)
	asm.defaultOverlays(tier)

	if err := m.to(types.StateResolvedResearch); err != nil {
		return nil, err
	}

	return asm.finalize(q, tier, types.StateResolvedResearch), nil
}

// research runs the fallback, sharing the call between concurrent identical queries
func (e *Engine) research(ctx context.Context, q query, tier volatility.Tier) (*research.Result, error) {
	if e.researcher == nil {
		return nil, fmt.Errorf("%w: no researcher configured", types.ErrProviderUnavailable)
	}

	req := &research.Request{
		Code:           q.code,
		Origin:         q.origin,
		Destination:    q.destination,
		ProductContext: q.productContext,
		Policies:       tier.ApplicablePolicies,
	}

	flightKey := strings.Join([]string{q.code.String(), q.origin.String(), q.destination.String()}, "|")

	// The flight is detached from the caller that started it, so one caller
	// leaving never fails the others waiting on the same lane
	flightCh := e.flights.DoChan(flightKey, func() (any, error) {
		flightCtx, cancelFn := context.WithTimeout(context.WithoutCancel(ctx), e.researchBudget())
		defer cancelFn()

		return e.researcher.Research(flightCtx, req)
	})

	var flight singleflight.Result

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", types.ErrTimeout, ctx.Err())
	case flight = <-flightCh:
	}

	if err := flight.Err; err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %w", types.ErrTimeout, err)
		}

		return nil, err
	}

	if flight.Shared {
		e.logger.Debug("shared in-flight research", "code", q.code)
	}

	result, _ := flight.Val.(*research.Result)
	if result == nil {
		return nil, fmt.Errorf("%w: empty research result", types.ErrProviderUnavailable)
	}

	return result, nil
}

// researchBudget is the deadline of a single research flight
func (e *Engine) researchBudget() time.Duration {
	if e.workflowTimeout > 0 {
		return e.workflowTimeout
	}

	return defaultResearchBudget
}

// writeBack persists a research result. Failures are logged by the cache and ignored
func (e *Engine) writeBack(
	ctx context.Context,
	q query,
	tier volatility.Tier,
	result *research.Result,
	now time.Time,
	writeBase bool,
	reclassify bool,
) {
	snapshot := &types.Fragment{
		Key:              q.key(types.FieldClassOverlay),
		BaseRate:         result.Base.Rate,
		PreferentialRate: result.Preferential.Rate,
		Overlays:         make(map[string]types.Rate, len(result.Overlays)),
		OverlaysKnown:    result.OverlaysKnown,
		Source:           types.SourceResearch,
		Confidence:       overlayConfidence(result),
		Description:      result.Description,
		Justification:    result.Base.Justification,
		VerifiedAt:       now,
	}

	for name, field := range result.Overlays {
		snapshot.Overlays[name] = field.Rate
	}

	e.cache.PutOverlay(ctx, snapshot, tier.CacheTTL)

	// An unknown base is never persisted as a stable entry, it would block later writes
	if !writeBase || result.Base.Rate.IsUnknown() {
		return
	}

	stable := &types.Fragment{
		Key:              q.key(types.FieldClassStable),
		BaseRate:         result.Base.Rate,
		PreferentialRate: result.Preferential.Rate,
		Source:           types.SourceResearch,
		Confidence:       result.Base.Confidence,
		Description:      result.Description,
		Justification:    result.Base.Justification,
		VerifiedAt:       now,
	}

	if reclassify {
		e.cache.Reclassify(ctx, stable)

		return
	}

	e.cache.PutStable(ctx, stable)
}

// degrade builds the record returned when research failed.
// A cached base survives; overlays fall back to a stale cached entry or Unknown
func degrade(
	q query,
	tier volatility.Tier,
	asm *assembly,
	keepBase bool,
	overlay *cache.Entry,
	overlayHit bool,
) *types.RateRecord {
	if !keepBase {
		asm = newAssembly()
		asm.markOverlaysUnknown()

		return asm.finalize(q, tier, types.StateFailed)
	}

	if overlayHit {
		asm.useOverlayEntry(overlay)
	} else {
		asm.markOverlaysUnknown()
	}

	return asm.finalize(q, tier, types.StateFailed)
}

// overlayConfidence is the weakest confidence across the snapshot's fields
func overlayConfidence(result *research.Result) int {
	lowest := math.MaxInt

	if !result.Base.Rate.IsUnknown() {
		lowest = result.Base.Confidence
	}

	for _, field := range result.Overlays {
		if field.Rate.IsUnknown() {
			continue
		}

		lowest = min(lowest, field.Confidence)
	}

	if lowest == math.MaxInt {
		return result.Confidence
	}

	return lowest
}
