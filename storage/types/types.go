package types

import "time"

type FieldClass string

const (
	// FieldClassStable holds base and preferential rates (no expiry)
	FieldClassStable FieldClass = "stable"

	// FieldClassOverlay holds policy overlays (TTL driven by the volatility tier)
	FieldClassOverlay FieldClass = "overlay"
)

func (f FieldClass) String() string {
	return string(f)
}

type LookupSource string

const (
	SourceExact      LookupSource = "exact"
	SourceFuzzy      LookupSource = "fuzzy"
	SourceFamily     LookupSource = "family"
	SourceResearch   LookupSource = "research"
	SourceUnresolved LookupSource = "unresolved"
)

func (s LookupSource) String() string {
	return string(s)
}

const (
	CeilingExact      = 100
	CeilingFuzzy      = 75
	CeilingFamily     = 50
	CeilingResearch   = 90
	CeilingUnresolved = 0
)

// Ceiling returns the fixed confidence ceiling of the lookup level
func (s LookupSource) Ceiling() int {
	switch s {
	case SourceExact:
		return CeilingExact
	case SourceFuzzy:
		return CeilingFuzzy
	case SourceFamily:
		return CeilingFamily
	case SourceResearch:
		return CeilingResearch
	default:
		return CeilingUnresolved
	}
}

// Rank orders sources from weakest (0) to strongest
func (s LookupSource) Rank() int {
	switch s {
	case SourceExact:
		return 4
	case SourceFuzzy:
		return 3
	case SourceFamily:
		return 2
	case SourceResearch:
		return 1
	default:
		return 0
	}
}

type VolatilityTier string

const (
	TierStable        VolatilityTier = "stable"
	TierVolatile      VolatilityTier = "volatile"
	TierSuperVolatile VolatilityTier = "super_volatile"
)

func (t VolatilityTier) String() string {
	return string(t)
}

type ResolutionState string

const (
	StateNew              ResolutionState = "NEW"
	StateCacheCheck       ResolutionState = "CACHE_CHECK"
	StateResolvedExact    ResolutionState = "RESOLVED_EXACT"
	StateResolvedFuzzy    ResolutionState = "RESOLVED_FUZZY"
	StateResolvedFamily   ResolutionState = "RESOLVED_FAMILY"
	StatePendingResearch  ResolutionState = "PENDING_RESEARCH"
	StateResolvedResearch ResolutionState = "RESOLVED_RESEARCH"
	StateFailed           ResolutionState = "FAILED"
)

// Terminal reports whether no further transition is allowed
func (s ResolutionState) Terminal() bool {
	switch s {
	case StateResolvedExact,
		StateResolvedFuzzy,
		StateResolvedFamily,
		StateResolvedResearch,
		StateFailed:
		return true
	default:
		return false
	}
}

// Key addresses a single cache entry. It deliberately carries no caller identity
type Key struct {
	Code        string     `json:"code"`
	Origin      Country    `json:"origin"`
	Destination Country    `json:"destination"`
	Class       FieldClass `json:"class"`
}

// Prefix addresses every entry whose code starts with CodePrefix
type Prefix struct {
	CodePrefix  string     `json:"code_prefix"`
	Origin      Country    `json:"origin"`
	Destination Country    `json:"destination"`
	Class       FieldClass `json:"class"`
}

// Fragment is the persisted unit of rate data for a single key
type Fragment struct {
	VerifiedAt       time.Time       `json:"verified_at"`
	Overlays         map[string]Rate `json:"overlays,omitempty"`
	BaseRate         Rate            `json:"base_rate"`
	PreferentialRate Rate            `json:"preferential_rate"`
	Key              Key             `json:"key"`
	Source           LookupSource    `json:"source"`
	Description      string          `json:"description,omitempty"`
	Justification    string          `json:"justification,omitempty"`
	TTL              time.Duration   `json:"ttl"`
	Confidence       int             `json:"confidence"`

	// OverlaysKnown separates "no overlays apply" from "overlays not sourced"
	OverlaysKnown bool `json:"overlays_known"`
}

// ExpiresAt returns the end of the validity window, or nil if the fragment never expires
func (f *Fragment) ExpiresAt() *time.Time {
	if f.TTL <= 0 {
		return nil
	}

	t := f.VerifiedAt.Add(f.TTL)

	return &t
}

// Clone returns a deep copy of the fragment
func (f *Fragment) Clone() *Fragment {
	cp := *f

	if f.Overlays != nil {
		cp.Overlays = make(map[string]Rate, len(f.Overlays))

		for name, rate := range f.Overlays {
			cp.Overlays[name] = rate
		}
	}

	return &cp
}

// RateQuery is a single rate resolution request
type RateQuery struct {
	Code           string  `json:"code"`
	Origin         string  `json:"origin"`
	Destination    string  `json:"destination"`
	ProductContext *string `json:"product_context,omitempty"`
}

// RateRecord is the finalized resolution result handed to the caller
type RateRecord struct {
	VerifiedAt       time.Time       `json:"verified_at"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	Overlays         map[string]Rate `json:"overlays"`
	BaseRate         Rate            `json:"base_rate"`
	PreferentialRate Rate            `json:"preferential_rate"`
	TotalRate        Rate            `json:"total_rate"`
	Code             string          `json:"code"`
	MatchedCode      string          `json:"matched_code,omitempty"`
	Origin           Country         `json:"origin"`
	Destination      Country         `json:"destination"`
	Source           LookupSource    `json:"source"`
	Tier             VolatilityTier  `json:"tier"`
	State            ResolutionState `json:"state"`
	Confidence       int             `json:"confidence"`
	Stale            bool            `json:"stale"`
}
