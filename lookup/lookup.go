// Package lookup implements the precision ladder over the rate cache:
// exact, then fuzzy (7-digit prefix), then family (5-digit prefix)
package lookup

import (
	"context"
	"io"
	"log/slog"
	"sort"

	"github.com/sig-0/dutyrates/cache"
	"github.com/sig-0/dutyrates/storage/types"
)

// Match is a ladder hit, tagged with the level that produced it
type Match struct {
	Entry       *cache.Entry
	MatchedCode string
	Source      types.LookupSource
}

// Ceiling returns the confidence ceiling of the matched level
func (m *Match) Ceiling() int {
	return m.Source.Ceiling()
}

// Confidence returns the stored confidence bounded by the level ceiling
func (m *Match) Confidence() int {
	return min(m.Ceiling(), m.Entry.Fragment.Confidence)
}

// Request is a single ladder lookup
type Request struct {
	Code        types.ClassificationCode
	Origin      types.Country
	Destination types.Country
	Class       types.FieldClass
}

type level struct {
	source types.LookupSource
	digits int
}

var prefixLevels = []level{
	{source: types.SourceFuzzy, digits: types.FuzzyPrefixLength},
	{source: types.SourceFamily, digits: types.FamilyPrefixLength},
}

// Resolver walks the precision ladder. Steps are strictly sequential
type Resolver struct {
	cache  *cache.Cache
	logger *slog.Logger
}

type Option func(r *Resolver)

// WithLogger specifies the logger for the resolver
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a new ladder resolver over the cache
func New(c *cache.Cache, opts ...Option) *Resolver {
	r := &Resolver{
		cache:  c,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve walks the ladder and returns the first hit, if any
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Match, bool) {
	if match, ok := r.exact(ctx, req); ok {
		return match, true
	}

	for _, lvl := range prefixLevels {
		if ctx.Err() != nil {
			return nil, false
		}

		if match, ok := r.prefix(ctx, req, lvl); ok {
			return match, true
		}
	}

	r.logger.Debug(
		"precision ladder miss",
		"code", req.Code,
		"origin", req.Origin,
		"destination", req.Destination,
		"class", req.Class,
	)

	return nil, false
}

// exact tries the canonical representation, then the grouped one
func (r *Resolver) exact(ctx context.Context, req Request) (*Match, bool) {
	for _, code := range representations(req.Code.String()) {
		entry, ok := r.cache.Get(ctx, types.Key{
			Code:        code,
			Origin:      req.Origin,
			Destination: req.Destination,
			Class:       req.Class,
		})
		if !ok {
			continue
		}

		return &Match{
			Entry:       entry,
			MatchedCode: types.StripDelimiters(code),
			Source:      types.SourceExact,
		}, true
	}

	return nil, false
}

// prefix queries the level's prefix in both representations and picks
// the first candidate by ascending canonical code
func (r *Resolver) prefix(ctx context.Context, req Request, lvl level) (*Match, bool) {
	candidates := make([]*cache.Entry, 0)

	for _, prefix := range representations(req.Code.Prefix(lvl.digits)) {
		candidates = append(candidates, r.cache.GetByPrefix(ctx, types.Prefix{
			CodePrefix:  prefix,
			Origin:      req.Origin,
			Destination: req.Destination,
			Class:       req.Class,
		})...)
	}

	if len(candidates) == 0 {
		return nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return canonical(candidates[i]) < canonical(candidates[j])
	})

	best := candidates[0]

	if len(candidates) > 1 {
		r.logger.Debug(
			"multiple ladder candidates, picking ascending first",
			"code", req.Code,
			"level", lvl.source,
			"candidates", len(candidates),
			"picked", canonical(best),
		)
	}

	return &Match{
		Entry:       best,
		MatchedCode: canonical(best),
		Source:      lvl.source,
	}, true
}

// representations returns the canonical and grouped forms of a digit string
func representations(digits string) []string {
	grouped := types.GroupDigits(digits)
	if grouped == digits {
		return []string{digits}
	}

	return []string{digits, grouped}
}

func canonical(e *cache.Entry) string {
	return types.StripDelimiters(e.Fragment.Key.Code)
}
