// Package guidance implements the phase-aware orchestration core: the
// turn-count heuristic, the prompt composer, and the tolerant interpreter
// that recovers structured guidance from free-form model output.
package guidance

import (
	"strings"

	"github.com/ashureev/seren/internal/domain"
)

// MarkerClassifier decides whether an assistant message marks entry into the
// experiential core of the exercise. The default implementation is a keyword
// scan; it is an interface so the heuristic can be swapped without touching
// the state machine.
type MarkerClassifier interface {
	IsPhaseEntryMarker(text string) bool
}

// positiveMarkers are phrases the assistant reliably uses once the exercise
// reaches its positive-resource imagery. This is an approximation tied to
// the provider's wording, not a correctness guarantee.
var positiveMarkers = []string{
	"safe place",
	"calm place",
	"peaceful",
	"feeling of calm",
	"comforting image",
	"positive image",
	"sense of safety",
}

// KeywordClassifier matches a fixed, case-insensitive phrase list.
type KeywordClassifier struct {
	phrases []string
}

// NewKeywordClassifier returns the default marker classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{phrases: positiveMarkers}
}

// IsPhaseEntryMarker reports whether text contains any marker phrase.
func (c *KeywordClassifier) IsPhaseEntryMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range c.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Deriver computes the turn count and phase-conditioned fallback guidance.
type Deriver struct {
	classifier MarkerClassifier
}

// NewDeriver creates a Deriver. A nil classifier falls back to the keyword
// classifier.
func NewDeriver(classifier MarkerClassifier) *Deriver {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	return &Deriver{classifier: classifier}
}

// TurnCount scans the ordered history and counts user messages after the
// first assistant message that marks entry into the positive phase. The
// result is a deterministic function of the history.
func (d *Deriver) TurnCount(history []domain.Message) int {
	inPositive := false
	count := 0
	for _, msg := range history {
		switch msg.Role {
		case domain.RoleAssistant:
			if !inPositive && d.classifier.IsPhaseEntryMarker(msg.Content) {
				inPositive = true
			}
		case domain.RoleUser:
			if inPositive {
				count++
			}
		}
	}
	return count
}

// defaultCueCount is the number of cue repetitions per set when structured
// guidance is unavailable.
const defaultCueCount = 5

// Turn-count thresholds for nudging the exercise forward.
const (
	nudgeThreshold      = 2
	transitionThreshold = 4
)

// isCorePhase reports whether p is one of the two positive/core phases whose
// fallback guidance shows cues and may suggest advancement.
func isCorePhase(p domain.Phase) bool {
	return p == domain.PhasePositiveResource || p == domain.PhaseBilateralPositive
}

// Fallback returns the phase-conditioned default Guidance used when the
// provider's structured output cannot be trusted. Every field is always set;
// SuggestedNextPhase is the only nullable field.
func Fallback(phase domain.Phase, turnCount int) domain.Guidance {
	if !isCorePhase(phase) {
		return domain.Guidance{
			ShowCue:            false,
			ShowBlinkCue:       false,
			CueCount:           0,
			SuggestedNextPhase: nil,
			GroundingNeeded:    false,
		}
	}

	g := domain.Guidance{
		ShowCue:         true,
		ShowBlinkCue:    turnCount > 0,
		CueCount:        defaultCueCount,
		GroundingNeeded: false,
	}

	switch {
	case turnCount >= transitionThreshold:
		next := domain.PhaseIntegration
		g.SuggestedNextPhase = &next
	case turnCount >= nudgeThreshold:
		next := domain.PhaseIntegration
		if phase == domain.PhasePositiveResource {
			next = domain.PhaseBilateralPositive
		}
		g.SuggestedNextPhase = &next
	}

	return g
}
