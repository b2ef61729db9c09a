package volatility

import "github.com/sig-0/dutyrates/storage/types"

var euMembers = []types.Country{
	"AT", "BE", "BG", "HR", "CY", "CZ", "DK", "EE", "FI", "FR", "DE", "GR", "HU", "IE",
	"IT", "LV", "LT", "LU", "MT", "NL", "PL", "PT", "RO", "SK", "SI", "ES", "SE",
}

// DefaultRules returns the built-in classification table
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:         "cn-us-electronics",
			Tier:         types.TierSuperVolatile,
			Origins:      []types.Country{"CN"},
			Destinations: []types.Country{"US"},
			Chapters:     []string{"85"},
			Rationale:    "China electronics to the US: Section 301 and CHIPS Act restrictions, rates change monthly",
			ApplicablePolicies: []string{
				"Section 301",
				"CHIPS Act",
				"Reciprocal Tariffs",
				"IEEPA",
			},
		},
		{
			Name:         "cn-us-strategic",
			Tier:         types.TierSuperVolatile,
			Origins:      []types.Country{"CN"},
			Destinations: []types.Country{"US"},
			Headings:     []string{"8541", "8542", "8507", "8504", "8703", "8708", "8544"},
			Rationale:    "China strategic goods to the US: multiple overlapping tariffs",
			ApplicablePolicies: []string{
				"Section 301",
				"Reciprocal Tariffs",
				"IEEPA",
				"Strategic Trade Controls",
			},
		},
		{
			Name:         "us-steel-aluminum",
			Tier:         types.TierSuperVolatile,
			Destinations: []types.Country{"US"},
			Chapters:     []string{"72", "73", "76"},
			Rationale:    "Steel and aluminum to the US: Section 232 rates and exemptions change by country",
			ApplicablePolicies: []string{
				"Section 232",
				"Country-specific exemptions",
				"Reciprocal adjustments",
			},
		},
		{
			Name:         "cn-us-any",
			Tier:         types.TierSuperVolatile,
			Origins:      []types.Country{"CN"},
			Destinations: []types.Country{"US"},
			Rationale:    "China to the US: active trade dispute with frequent tariff changes",
			ApplicablePolicies: []string{
				"Section 301",
				"Reciprocal Tariffs",
				"IEEPA",
			},
		},
		{
			Name:         "cn-usmca-circumvention",
			Tier:         types.TierVolatile,
			Origins:      []types.Country{"CN"},
			Destinations: []types.Country{"CA", "MX"},
			Rationale:    "China to USMCA partners: circumvention enforcement monitoring",
			ApplicablePolicies: []string{
				"Circumvention rules",
				"Origin verification",
				"Transshipment enforcement",
			},
		},
		{
			Name:         "emerging-asia-us",
			Tier:         types.TierVolatile,
			Origins:      []types.Country{"VN", "TH", "IN", "ID", "MY"},
			Destinations: []types.Country{"US"},
			Rationale:    "Emerging Asia to the US: potential reciprocal tariff targets",
			ApplicablePolicies: []string{
				"Base MFN",
				"Reciprocal tariffs",
				"Trade monitoring",
			},
		},
		{
			Name:         "eu-us-vehicles",
			Tier:         types.TierVolatile,
			Origins:      euMembers,
			Destinations: []types.Country{"US"},
			Chapters:     []string{"87"},
			Rationale:    "EU vehicles to the US: rates under active negotiation",
			ApplicablePolicies: []string{
				"Section 232 (autos)",
				"EU-US framework",
			},
		},
	}
}
