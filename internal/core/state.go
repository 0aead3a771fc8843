package core

import "fmt"

// State is a step of the analysis pipeline state machine.
type State string

const (
	StateIdle                State = "IDLE"
	StateExtractingFactors   State = "EXTRACTING_FACTORS"
	StateArguing             State = "ARGUING"
	StateCountering          State = "COUNTERING"
	StateSynthesizing        State = "SYNTHESIZING"
	StateGeneratingReport    State = "GENERATING_REPORT"
	StateComplete            State = "COMPLETE"
	StateError               State = "ERROR"
	StateRateLimitTerminated State = "RATE_LIMIT_TERMINATED"
)

// transitions lists the legal successors of each state. ERROR is reachable
// from every active state and is added in CanTransition.
var transitions = map[State][]State{
	StateIdle:                {StateExtractingFactors},
	StateExtractingFactors:   {StateArguing},
	StateArguing:             {StateCountering, StateRateLimitTerminated},
	StateCountering:          {StateSynthesizing, StateRateLimitTerminated},
	StateSynthesizing:        {StateArguing, StateGeneratingReport, StateRateLimitTerminated},
	StateRateLimitTerminated: {StateGeneratingReport},
	StateGeneratingReport:    {StateComplete},
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateError
}

// IsActive reports whether the pipeline is running in this state.
func (s State) IsActive() bool {
	switch s {
	case StateExtractingFactors, StateArguing, StateCountering, StateSynthesizing,
		StateGeneratingReport, StateRateLimitTerminated:
		return true
	}
	return false
}

// IsFactorStep reports whether s is one of the per-factor debate states.
func (s State) IsFactorStep() bool {
	return s == StateArguing || s == StateCountering || s == StateSynthesizing
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	if to == StateError {
		return from.IsActive()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a state error for illegal moves.
func ValidateTransition(from, to State) error {
	if CanTransition(from, to) {
		return nil
	}
	return ErrState(CodeInvalidTransition, fmt.Sprintf("cannot transition from %s to %s", from, to))
}
