// Package domain contains core domain types for the Seren session service.
package domain

// Phase is one stage of the guided bilateral-stimulation exercise.
type Phase string

const (
	// PhasePreparation is the opening grounding/setup stage.
	PhasePreparation Phase = "Preparation"
	// PhaseRecallAcknowledge briefly acknowledges the target memory.
	PhaseRecallAcknowledge Phase = "RecallAcknowledge"
	// PhaseBilateralStart begins the tapping rhythm.
	PhaseBilateralStart Phase = "BilateralStart"
	// PhasePositiveResource builds a calm/safe mental image.
	PhasePositiveResource Phase = "PositiveResource"
	// PhaseBilateralPositive taps while holding the positive image.
	PhaseBilateralPositive Phase = "BilateralPositive"
	// PhaseIntegration closes the exercise and collects the end rating.
	PhaseIntegration Phase = "Integration"
	// PhaseCompleted is terminal; no further turns are accepted.
	PhaseCompleted Phase = "Completed"
)

// phaseOrder is the fixed progression of the exercise.
var phaseOrder = []Phase{
	PhasePreparation,
	PhaseRecallAcknowledge,
	PhaseBilateralStart,
	PhasePositiveResource,
	PhaseBilateralPositive,
	PhaseIntegration,
	PhaseCompleted,
}

// phaseIndex returns the position of p in the progression, or -1 if p is not
// a recognized phase.
func phaseIndex(p Phase) int {
	for i, v := range phaseOrder {
		if v == p {
			return i
		}
	}
	return -1
}

// ParsePhase validates a raw phase string.
func ParsePhase(s string) (Phase, bool) {
	p := Phase(s)
	return p, phaseIndex(p) >= 0
}

// NextLegal returns the phase immediately after p in the progression.
// ok is false when p is terminal or not a recognized phase.
func NextLegal(p Phase) (next Phase, ok bool) {
	i := phaseIndex(p)
	if i < 0 || i >= len(phaseOrder)-1 {
		return "", false
	}
	return phaseOrder[i+1], true
}

// IsForwardMove reports whether to is strictly later than from in the
// progression. Skipping intermediate phases is a forward move; moving
// backward or to an unrecognized phase is not. Only automatic advancement
// derived from model guidance is held to this check; explicit phase
// overrides are authoritative regardless of ordering.
func IsForwardMove(from, to Phase) bool {
	fi, ti := phaseIndex(from), phaseIndex(to)
	if fi < 0 || ti < 0 {
		return false
	}
	return ti > fi
}

// IsTerminal reports whether p accepts no further turns.
func IsTerminal(p Phase) bool {
	return p == PhaseCompleted
}
