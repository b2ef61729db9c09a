// Package confidence combines per-field provenance into a single conservative
// confidence score: the weakest contributing field dominates
package confidence

import "github.com/sig-0/dutyrates/storage/types"

// Contribution is the provenance of a single field of a rate record
type Contribution struct {
	Field      string
	Source     types.LookupSource
	Confidence int
}

// Aggregate returns the minimum contributing confidence and the source of that
// minimum. Ties are resolved toward the weaker source. With no contributions
// the result is (0, unresolved)
func Aggregate(contributions []Contribution) (int, types.LookupSource) {
	if len(contributions) == 0 {
		return 0, types.SourceUnresolved
	}

	lowest := contributions[0]

	for _, c := range contributions[1:] {
		if c.Confidence < lowest.Confidence ||
			(c.Confidence == lowest.Confidence && c.Source.Rank() < lowest.Source.Rank()) {
			lowest = c
		}
	}

	return clamp(lowest.Confidence), lowest.Source
}

// Contribute builds a contribution, bounding the confidence by the source ceiling.
// An unknown rate always contributes (0, unresolved)
func Contribute(field string, rate types.Rate, source types.LookupSource, confidence int) Contribution {
	if rate.IsUnknown() {
		return Contribution{
			Field:      field,
			Source:     types.SourceUnresolved,
			Confidence: 0,
		}
	}

	return Contribution{
		Field:      field,
		Source:     source,
		Confidence: min(clamp(confidence), source.Ceiling()),
	}
}

func clamp(c int) int {
	return max(0, min(c, 100))
}
