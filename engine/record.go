package engine

import (
	"maps"
	"slices"
	"time"

	"github.com/sig-0/dutyrates/cache"
	"github.com/sig-0/dutyrates/confidence"
	"github.com/sig-0/dutyrates/lookup"
	"github.com/sig-0/dutyrates/research"
	"github.com/sig-0/dutyrates/storage/types"
	"github.com/sig-0/dutyrates/volatility"
)

// overlayField is a single overlay with its provenance
type overlayField struct {
	rate       types.Rate
	source     types.LookupSource
	confidence int
}

// assembly collects the pieces of a record before it is finalized
type assembly struct {
	verifiedAt   time.Time
	expiresAt    *time.Time
	overlays     map[string]overlayField
	base         types.Rate
	preferential types.Rate
	matchedCode  string
	baseSource   types.LookupSource
	baseConf     int

	// overlaysKnown separates "no overlays apply" from "overlays not sourced"
	overlaysKnown bool
	stale         bool
}

func newAssembly() *assembly {
	return &assembly{
		base:         types.Unknown(),
		preferential: types.Unknown(),
		baseSource:   types.SourceUnresolved,
	}
}

// useMatch takes the base fields from a ladder hit. The stored provenance can
// only lower the level's confidence, never raise it
func (a *assembly) useMatch(m *lookup.Match) {
	f := m.Entry.Fragment

	a.base = f.BaseRate
	a.preferential = f.PreferentialRate
	a.matchedCode = m.MatchedCode
	a.baseSource = weaker(m.Source, f.Source)
	a.baseConf = min(m.Confidence(), a.baseSource.Ceiling())
	a.observe(f.VerifiedAt)
}

// capBase lowers the base confidence to the given ceiling
func (a *assembly) capBase(ceiling int) {
	a.baseConf = min(a.baseConf, ceiling)
}

// useSnapshotBase takes the base fields from a cached research snapshot
func (a *assembly) useSnapshotBase(code string, entry *cache.Entry) {
	f := entry.Fragment

	a.base = f.BaseRate
	a.preferential = f.PreferentialRate
	a.matchedCode = code
	a.baseSource = weaker(types.SourceExact, f.Source)
	a.baseConf = min(f.Confidence, a.baseSource.Ceiling())
	a.observe(f.VerifiedAt)
}

// useOverlayEntry takes the overlays from a cached overlay fragment
func (a *assembly) useOverlayEntry(entry *cache.Entry) {
	f := entry.Fragment

	a.overlaysKnown = f.OverlaysKnown
	a.overlays = make(map[string]overlayField, len(f.Overlays))

	for name, rate := range f.Overlays {
		a.overlays[name] = overlayField{
			rate:       rate,
			source:     f.Source,
			confidence: f.Confidence,
		}
	}

	a.expiresAt = f.ExpiresAt()
	a.stale = entry.Stale
	a.observe(f.VerifiedAt)
}

// useResearch takes the fields from a fresh research result.
// A ladder base, if any, is kept: stable fields only change on reclassification
func (a *assembly) useResearch(code string, result *research.Result, now time.Time, ttl time.Duration, keepBase bool) {
	if !keepBase {
		a.base = result.Base.Rate
		a.preferential = result.Preferential.Rate
		a.matchedCode = code
		a.baseSource = types.SourceResearch
		a.baseConf = result.Base.Confidence
	}

	a.overlaysKnown = result.OverlaysKnown
	a.overlays = make(map[string]overlayField, len(result.Overlays))

	for name, field := range result.Overlays {
		a.overlays[name] = overlayField{
			rate:       field.Rate,
			source:     types.SourceResearch,
			confidence: field.Confidence,
		}
	}

	expiresAt := now.Add(ttl)

	a.expiresAt = &expiresAt
	a.stale = false
	a.observe(now)
}

// defaultOverlays treats unsourced overlays on a stable lane as none applying
func (a *assembly) defaultOverlays(tier volatility.Tier) {
	if a.overlaysKnown || tier.Name != types.TierStable {
		return
	}

	a.overlaysKnown = true
	a.overlays = map[string]overlayField{}
}

// markOverlaysUnknown drops any overlay information
func (a *assembly) markOverlaysUnknown() {
	a.overlaysKnown = false
	a.overlays = nil
	a.expiresAt = nil
}

// observe tracks the oldest contributing verification time
func (a *assembly) observe(t time.Time) {
	if t.IsZero() {
		return
	}

	if a.verifiedAt.IsZero() || t.Before(a.verifiedAt) {
		a.verifiedAt = t
	}
}

// finalize computes the total rate and the aggregated confidence
func (a *assembly) finalize(
	q query,
	tier volatility.Tier,
	state types.ResolutionState,
) *types.RateRecord {
	contributions := []confidence.Contribution{
		confidence.Contribute("base_rate", a.base, a.baseSource, a.baseConf),
	}

	overlays := make(map[string]types.Rate, len(a.overlays))

	if a.overlaysKnown {
		for _, name := range slices.Sorted(maps.Keys(a.overlays)) {
			field := a.overlays[name]

			overlays[name] = field.rate
			contributions = append(
				contributions,
				confidence.Contribute(name, field.rate, field.source, field.confidence),
			)
		}
	} else {
		contributions = append(contributions, confidence.Contribution{
			Field:  "overlays",
			Source: types.SourceUnresolved,
		})
	}

	total := types.Unknown()
	if a.overlaysKnown {
		total = types.SumRates(a.base, overlays)
	}

	conf, source := confidence.Aggregate(contributions)

	return &types.RateRecord{
		Code:             q.code.String(),
		MatchedCode:      a.matchedCode,
		Origin:           q.origin,
		Destination:      q.destination,
		BaseRate:         a.base,
		PreferentialRate: a.preferential,
		Overlays:         overlays,
		TotalRate:        total,
		Confidence:       conf,
		Source:           source,
		Tier:             tier.Name,
		State:            state,
		VerifiedAt:       a.verifiedAt,
		ExpiresAt:        a.expiresAt,
		Stale:            a.stale,
	}
}

// weaker returns the lower-ranked of two sources. An unset stored source defers to the level
func weaker(a, b types.LookupSource) types.LookupSource {
	if b != "" && b.Rank() < a.Rank() {
		return b
	}

	return a
}
