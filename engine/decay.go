package engine

import (
	"time"

	"github.com/sig-0/dutyrates/storage/types"
)

const (
	// CeilingAged caps an entry older than AgeDecay.StaleAfter
	CeilingAged = 75

	// CeilingCriticallyAged caps an entry older than AgeDecay.CriticalAfter
	CeilingCriticallyAged = 50
)

// AgeDecay lowers the confidence of stable entries as their verification ages.
// A zero threshold disables that step
type AgeDecay struct {
	StaleAfter    time.Duration
	CriticalAfter time.Duration
}

// DefaultAgeDecay flags entries older than 90 days, and critically older than 180
func DefaultAgeDecay() AgeDecay {
	return AgeDecay{
		StaleAfter:    90 * 24 * time.Hour,
		CriticalAfter: 180 * 24 * time.Hour,
	}
}

// ceiling returns the confidence cap of an entry verified at verifiedAt
func (d AgeDecay) ceiling(verifiedAt, now time.Time) int {
	if verifiedAt.IsZero() {
		return types.CeilingExact
	}

	age := now.Sub(verifiedAt)

	switch {
	case d.CriticalAfter > 0 && age > d.CriticalAfter:
		return CeilingCriticallyAged
	case d.StaleAfter > 0 && age > d.StaleAfter:
		return CeilingAged
	default:
		return types.CeilingExact
	}
}
