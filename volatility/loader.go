package volatility

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sig-0/dutyrates/storage/types"
)

var (
	errEmptyRuleTable = errors.New("rule table is empty")
	errUnknownTier    = errors.New("unknown tier")
	errInvalidMatcher = errors.New("invalid code matcher")
)

type ruleFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	Name         string   `yaml:"name"`
	Tier         string   `yaml:"tier"`
	Rationale    string   `yaml:"rationale"`
	TTL          string   `yaml:"ttl"`
	Origins      []string `yaml:"origins"`
	Destinations []string `yaml:"destinations"`
	Chapters     []string `yaml:"chapters"`
	Headings     []string `yaml:"headings"`
	Policies     []string `yaml:"policies"`
	BypassCache  bool     `yaml:"bypass_cache"`
}

// LoadRulesFile reads a YAML rule table from disk
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read rule file: %w", err)
	}

	return LoadRules(data)
}

// LoadRules parses a YAML rule table. Rule order is preserved
func LoadRules(data []byte) ([]Rule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse rule yaml: %w", err)
	}

	if len(file.Rules) == 0 {
		return nil, errEmptyRuleTable
	}

	rules := make([]Rule, 0, len(file.Rules))

	for i, entry := range file.Rules {
		rule, err := entry.toRule()
		if err != nil {
			return nil, fmt.Errorf("invalid rule #%d (%s): %w", i, entry.Name, err)
		}

		rules = append(rules, rule)
	}

	return rules, nil
}

func (e ruleEntry) toRule() (Rule, error) {
	tier := types.VolatilityTier(strings.ToLower(strings.TrimSpace(e.Tier)))

	switch tier {
	case types.TierStable, types.TierVolatile, types.TierSuperVolatile:
	default:
		return Rule{}, fmt.Errorf("%w: %q", errUnknownTier, e.Tier)
	}

	var ttl time.Duration

	if e.TTL != "" {
		parsed, err := time.ParseDuration(e.TTL)
		if err != nil {
			return Rule{}, fmt.Errorf("unable to parse ttl: %w", err)
		}

		ttl = parsed
	}

	origins, err := parseCountries(e.Origins)
	if err != nil {
		return Rule{}, err
	}

	destinations, err := parseCountries(e.Destinations)
	if err != nil {
		return Rule{}, err
	}

	if err := validateDigits(e.Chapters, 2); err != nil {
		return Rule{}, err
	}

	if err := validateDigits(e.Headings, 4); err != nil {
		return Rule{}, err
	}

	return Rule{
		Name:               e.Name,
		Tier:               tier,
		Rationale:          e.Rationale,
		Origins:            origins,
		Destinations:       destinations,
		Chapters:           e.Chapters,
		Headings:           e.Headings,
		ApplicablePolicies: e.Policies,
		CacheTTL:           ttl,
		BypassCache:        e.BypassCache,
	}, nil
}

func parseCountries(raw []string) ([]types.Country, error) {
	out := make([]types.Country, 0, len(raw))

	for _, r := range raw {
		c, err := types.ParseCountry(r)
		if err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	return out, nil
}

func validateDigits(values []string, length int) error {
	for _, v := range values {
		if len(v) != length {
			return fmt.Errorf("%w: %q must have %d digits", errInvalidMatcher, v, length)
		}

		for i := 0; i < len(v); i++ {
			if v[i] < '0' || v[i] > '9' {
				return fmt.Errorf("%w: %q", errInvalidMatcher, v)
			}
		}
	}

	return nil
}
