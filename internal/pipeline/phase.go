// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

// Phase enumerates the orchestrator's state machine. Every stop condition
// is a data value (StopDecision), not a control-flow side effect, which
// keeps the transitions exhaustively testable.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseFetching
	PhaseScoring
	PhaseFiltering
	PhaseDeciding
	PhaseRelaxing
	PhaseDone
)

// String returns the phase name for logs.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseFetching:
		return "FETCHING"
	case PhaseScoring:
		return "SCORING"
	case PhaseFiltering:
		return "FILTERING"
	case PhaseDeciding:
		return "DECIDING"
	case PhaseRelaxing:
		return "RELAXING"
	case PhaseDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}
