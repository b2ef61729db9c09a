package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sig-0/dutyrates/storage/types"
)

var errInvalidTransition = errors.New("invalid state transition")

// transitions is the per-query resolution state machine
var transitions = map[types.ResolutionState][]types.ResolutionState{
	types.StateNew: {
		types.StateCacheCheck,
	},
	types.StateCacheCheck: {
		types.StateResolvedExact,
		types.StateResolvedFuzzy,
		types.StateResolvedFamily,
		types.StateResolvedResearch, // served from a fresh research snapshot
		types.StatePendingResearch,
	},
	types.StatePendingResearch: {
		types.StateResolvedResearch,
		types.StateFailed,
	},
}

// machine tracks a single query's progress through the resolution states
type machine struct {
	state   types.ResolutionState
	history []types.ResolutionState
}

func newMachine() *machine {
	return &machine{
		state:   types.StateNew,
		history: []types.ResolutionState{types.StateNew},
	}
}

// to moves the machine to the next state, if the transition is allowed
func (m *machine) to(next types.ResolutionState) error {
	if !slices.Contains(transitions[m.state], next) {
		return fmt.Errorf("%w: %s -> %s", errInvalidTransition, m.state, next)
	}

	m.state = next
	m.history = append(m.history, next)

	return nil
}

// resolvedState maps a ladder level to its terminal state
func resolvedState(source types.LookupSource) types.ResolutionState {
	switch source {
	case types.SourceExact:
		return types.StateResolvedExact
	case types.SourceFuzzy:
		return types.StateResolvedFuzzy
	case types.SourceFamily:
		return types.StateResolvedFamily
	default:
		return types.StateResolvedResearch
	}
}
