package guidance

import (
	"testing"

	"github.com/ashureev/seren/internal/domain"
)

func assistant(text string) domain.Message {
	return domain.Message{Role: domain.RoleAssistant, Content: text}
}

func user(text string) domain.Message {
	return domain.Message{Role: domain.RoleUser, Content: text}
}

func TestTurnCountEmptyHistory(t *testing.T) {
	t.Parallel()

	d := NewDeriver(nil)
	if got := d.TurnCount(nil); got != 0 {
		t.Fatalf("expected 0 turns for empty history, got %d", got)
	}
}

func TestTurnCountIgnoresMessagesBeforeMarker(t *testing.T) {
	t.Parallel()

	d := NewDeriver(nil)
	history := []domain.Message{
		assistant("Welcome. How are you feeling today?"),
		user("A bit tense."),
		assistant("Let's begin with slow taps."),
		user("Okay."),
	}
	if got := d.TurnCount(history); got != 0 {
		t.Fatalf("expected 0 turns before positive-phase marker, got %d", got)
	}
}

func TestTurnCountCountsUserMessagesAfterMarker(t *testing.T) {
	t.Parallel()

	d := NewDeriver(nil)
	history := []domain.Message{
		assistant("Welcome."),
		user("Hello."),
		assistant("Now picture your safe place — what do you see there?"),
		user("A beach at dusk."),
		assistant("Stay with that. What do you hear?"),
		user("Waves."),
	}
	if got := d.TurnCount(history); got != 2 {
		t.Fatalf("expected 2 turns after marker, got %d", got)
	}
}

func TestTurnCountMarkerMatchIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	d := NewDeriver(nil)
	history := []domain.Message{
		assistant("Imagine a PEACEFUL spot."),
		user("Done."),
	}
	if got := d.TurnCount(history); got != 1 {
		t.Fatalf("expected case-insensitive marker match, got %d turns", got)
	}
}

func TestTurnCountIsDeterministic(t *testing.T) {
	t.Parallel()

	d := NewDeriver(nil)
	history := []domain.Message{
		assistant("Find your calm place."),
		user("Okay."),
		user("Still here."),
	}
	first := d.TurnCount(history)
	for i := 0; i < 10; i++ {
		if got := d.TurnCount(history); got != first {
			t.Fatalf("turn count changed between calls: %d then %d", first, got)
		}
	}
}

type markEverything struct{}

func (markEverything) IsPhaseEntryMarker(string) bool { return true }

func TestDeriverAcceptsCustomClassifier(t *testing.T) {
	t.Parallel()

	d := NewDeriver(markEverything{})
	history := []domain.Message{
		assistant("anything at all"),
		user("one"),
		user("two"),
	}
	if got := d.TurnCount(history); got != 2 {
		t.Fatalf("expected custom classifier to trigger counting, got %d", got)
	}
}

func TestFallbackNonCorePhases(t *testing.T) {
	t.Parallel()

	for _, p := range []domain.Phase{
		domain.PhasePreparation,
		domain.PhaseRecallAcknowledge,
		domain.PhaseBilateralStart,
		domain.PhaseIntegration,
		domain.PhaseCompleted,
	} {
		g := Fallback(p, 5)
		if g.ShowCue || g.ShowBlinkCue || g.GroundingNeeded {
			t.Fatalf("%s: expected all flags false, got %+v", p, g)
		}
		if g.SuggestedNextPhase != nil {
			t.Fatalf("%s: expected no suggested phase, got %s", p, *g.SuggestedNextPhase)
		}
	}
}

func TestFallbackCorePhaseThresholds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		phase     domain.Phase
		turnCount int
		wantBlink bool
		wantNext  *domain.Phase
	}{
		{domain.PhasePositiveResource, 0, false, nil},
		{domain.PhasePositiveResource, 1, true, nil},
		{domain.PhasePositiveResource, 2, true, phasePtr(domain.PhaseBilateralPositive)},
		{domain.PhasePositiveResource, 4, true, phasePtr(domain.PhaseIntegration)},
		{domain.PhaseBilateralPositive, 2, true, phasePtr(domain.PhaseIntegration)},
		{domain.PhaseBilateralPositive, 4, true, phasePtr(domain.PhaseIntegration)},
	}

	for _, tc := range cases {
		g := Fallback(tc.phase, tc.turnCount)
		if !g.ShowCue {
			t.Fatalf("%s/%d: expected ShowCue", tc.phase, tc.turnCount)
		}
		if g.ShowBlinkCue != tc.wantBlink {
			t.Fatalf("%s/%d: ShowBlinkCue = %v, want %v", tc.phase, tc.turnCount, g.ShowBlinkCue, tc.wantBlink)
		}
		if g.CueCount != 5 {
			t.Fatalf("%s/%d: CueCount = %d, want 5", tc.phase, tc.turnCount, g.CueCount)
		}
		if (g.SuggestedNextPhase == nil) != (tc.wantNext == nil) {
			t.Fatalf("%s/%d: SuggestedNextPhase = %v, want %v", tc.phase, tc.turnCount, g.SuggestedNextPhase, tc.wantNext)
		}
		if tc.wantNext != nil && *g.SuggestedNextPhase != *tc.wantNext {
			t.Fatalf("%s/%d: SuggestedNextPhase = %s, want %s", tc.phase, tc.turnCount, *g.SuggestedNextPhase, *tc.wantNext)
		}
	}
}

func phasePtr(p domain.Phase) *domain.Phase {
	return &p
}
