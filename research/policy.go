package research

import (
	"math"
	"time"
)

// Policy is the declared retry policy applied to each provider in the chain.
// Only rate-limit / overload errors are retried; anything else fails over
type Policy struct {
	MaxAttempts    int           // attempts per provider, including the first
	BaseDelay      time.Duration // delay before the second attempt
	Multiplier     float64       // backoff growth factor
	AttemptTimeout time.Duration // bound on a single provider call
}

// DefaultPolicy returns the default retry policy (2s, 4s backoff, 3 attempts)
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      2 * time.Second,
		Multiplier:     2,
		AttemptTimeout: 60 * time.Second,
	}
}

// Backoff returns the delay after the given failed attempt (1-based)
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	return time.Duration(float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt-1)))
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}

	return p.MaxAttempts
}
