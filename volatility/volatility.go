// Package volatility maps a (code, origin, destination) triple to a cache
// freshness policy. Classification is deterministic and performs no I/O
package volatility

import (
	"slices"
	"time"

	"github.com/sig-0/dutyrates/storage/types"
)

const (
	SuperVolatileTTL = 24 * time.Hour
	VolatileTTL      = 168 * time.Hour
	StableTTL        = 2160 * time.Hour
)

// Tier is the freshness policy assigned to a query
type Tier struct {
	Name               types.VolatilityTier `json:"name"`
	Rationale          string               `json:"rationale"`
	ApplicablePolicies []string             `json:"applicable_policies"`
	CacheTTL           time.Duration        `json:"cache_ttl"`
	BypassCache        bool                 `json:"bypass_cache"`
}

// DefaultTTL returns the cache TTL of the tier name
func DefaultTTL(name types.VolatilityTier) time.Duration {
	switch name {
	case types.TierSuperVolatile:
		return SuperVolatileTTL
	case types.TierVolatile:
		return VolatileTTL
	default:
		return StableTTL
	}
}

// Rule is a single row of the classification table. Empty match
// lists match anything
type Rule struct {
	Name               string
	Tier               types.VolatilityTier
	Rationale          string
	Origins            []types.Country
	Destinations       []types.Country
	Chapters           []string
	Headings           []string
	ApplicablePolicies []string
	CacheTTL           time.Duration
	BypassCache        bool
}

// Matches reports whether the rule applies to the triple
func (r Rule) Matches(code types.ClassificationCode, origin, destination types.Country) bool {
	if len(r.Origins) > 0 && !slices.Contains(r.Origins, origin) {
		return false
	}

	if len(r.Destinations) > 0 && !slices.Contains(r.Destinations, destination) {
		return false
	}

	if len(r.Chapters) == 0 && len(r.Headings) == 0 {
		return true
	}

	return slices.Contains(r.Chapters, code.Chapter()) ||
		slices.Contains(r.Headings, code.Heading())
}

func (r Rule) tier() Tier {
	ttl := r.CacheTTL
	if ttl <= 0 {
		ttl = DefaultTTL(r.Tier)
	}

	return Tier{
		Name:               r.Tier,
		Rationale:          r.Rationale,
		ApplicablePolicies: slices.Clone(r.ApplicablePolicies),
		CacheTTL:           ttl,
		BypassCache:        r.BypassCache,
	}
}

// StableTier is returned when no rule matches
func StableTier() Tier {
	return Tier{
		Name:               types.TierStable,
		Rationale:          "Standard tariff rates",
		ApplicablePolicies: []string{"Standard MFN", "USMCA"},
		CacheTTL:           StableTTL,
	}
}

// Classifier evaluates an ordered rule table, first match wins
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier over the given rules.
// With no rules, the built-in table is used
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	return &Classifier{
		rules: slices.Clone(rules),
	}
}

// Classify returns the tier of the first matching rule, or the stable tier
func (c *Classifier) Classify(code types.ClassificationCode, origin, destination types.Country) Tier {
	for _, rule := range c.rules {
		if rule.Matches(code, origin, destination) {
			return rule.tier()
		}
	}

	return StableTier()
}

// Rules returns a copy of the classifier's rule table
func (c *Classifier) Rules() []Rule {
	return slices.Clone(c.rules)
}
