package scanner

import (
	"errors"
	"time"
)

// Phase is the scanner's position within a cycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseFetching   Phase = "fetching"
	PhaseProcessing Phase = "processing"
	PhaseResolving  Phase = "resolving"
	PhaseEmitting   Phase = "emitting"
	PhaseCommitting Phase = "committing"
)

// ErrInvalidTransition is returned when an invalid phase transition is attempted.
var ErrInvalidTransition = errors.New("invalid phase transition")

// ValidTransitions defines allowed phase transitions.
// Key is the current phase, value is the list of valid next phases.
// Fetch and emit failures return to idle without committing.
var ValidTransitions = map[Phase][]Phase{
	PhaseIdle:       {PhaseFetching},
	PhaseFetching:   {PhaseProcessing, PhaseIdle},
	PhaseProcessing: {PhaseResolving},
	PhaseResolving:  {PhaseEmitting},
	PhaseEmitting:   {PhaseCommitting, PhaseIdle},
	PhaseCommitting: {PhaseIdle},
}

// CanTransition checks if a transition from one phase to another is valid.
func CanTransition(from, to Phase) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}

	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a phase change with metadata.
type Transition struct {
	From      Phase
	To        Phase
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to Phase, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the cycle.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// PhaseDescription returns a human-readable description of a phase.
func PhaseDescription(p Phase) string {
	switch p {
	case PhaseIdle:
		return "Idle - waiting for the next cycle"
	case PhaseFetching:
		return "Fetching - waiting on the transaction source"
	case PhaseProcessing:
		return "Processing - decoding and matching the page"
	case PhaseResolving:
		return "Resolving - reconciling unbound aliases"
	case PhaseEmitting:
		return "Emitting - delivering match events"
	case PhaseCommitting:
		return "Committing - advancing the cursor"
	default:
		return "Unknown phase"
	}
}
