package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
)

// RateState distinguishes a sourced value from an explicit zero and from absence
type RateState uint8

const (
	RateUnknown RateState = iota
	RateKnown
	RateConfirmedZero
)

func (s RateState) String() string {
	switch s {
	case RateKnown:
		return "known"
	case RateConfirmedZero:
		return "confirmed_zero"
	default:
		return "unknown"
	}
}

var errInvalidRateState = errors.New("invalid rate state")

// Rate is a duty rate in percentage points (2.5 == 2.5% ad valorem).
// The zero value is Unknown, so an unset field can never read as 0%
type Rate struct {
	state RateState
	value float64
}

// Unknown returns an absent rate
func Unknown() Rate {
	return Rate{}
}

// ConfirmedZero returns a rate explicitly sourced as duty-free
func ConfirmedZero() Rate {
	return Rate{state: RateConfirmedZero}
}

// RateOf wraps an explicitly sourced value.
// A sourced 0 becomes ConfirmedZero, non-finite or negative values become Unknown
func RateOf(v float64) Rate {
	switch {
	case math.IsNaN(v), math.IsInf(v, 0), v < 0:
		return Unknown()
	case v == 0:
		return ConfirmedZero()
	default:
		return Rate{state: RateKnown, value: v}
	}
}

func (r Rate) State() RateState {
	return r.state
}

// Value returns the numeric rate, and false if the rate is Unknown
func (r Rate) Value() (float64, bool) {
	switch r.state {
	case RateKnown:
		return r.value, true
	case RateConfirmedZero:
		return 0, true
	default:
		return 0, false
	}
}

func (r Rate) IsUnknown() bool {
	return r.state == RateUnknown
}

// Add sums two rates. Any Unknown operand makes the sum Unknown
func (r Rate) Add(other Rate) Rate {
	a, okA := r.Value()
	b, okB := other.Value()

	if !okA || !okB {
		return Unknown()
	}

	return RateOf(a + b)
}

func (r Rate) String() string {
	switch r.state {
	case RateKnown:
		return fmt.Sprintf("%g%%", r.value)
	case RateConfirmedZero:
		return "0% (confirmed)"
	default:
		return "unknown"
	}
}

type rateJSON struct {
	Value *float64 `json:"value,omitempty"`
	State string   `json:"state"`
}

func (r Rate) MarshalJSON() ([]byte, error) {
	out := rateJSON{
		State: r.state.String(),
	}

	if r.state == RateKnown {
		v := r.value
		out.Value = &v
	}

	return json.Marshal(out)
}

func (r *Rate) UnmarshalJSON(data []byte) error {
	var in rateJSON

	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	switch in.State {
	case "known":
		if in.Value == nil {
			return fmt.Errorf("%w: known rate without value", errInvalidRateState)
		}

		*r = RateOf(*in.Value)
	case "confirmed_zero":
		*r = ConfirmedZero()
	case "unknown", "":
		*r = Unknown()
	default:
		return fmt.Errorf("%w: %q", errInvalidRateState, in.State)
	}

	return nil
}

// SumRates adds the base rate and every overlay
func SumRates(base Rate, overlays map[string]Rate) Rate {
	total := base

	// Sorted so the float sum is deterministic
	for _, name := range slices.Sorted(maps.Keys(overlays)) {
		total = total.Add(overlays[name])
	}

	return total
}
