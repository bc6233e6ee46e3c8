package models

import "testing"

func TestIntentResultSanitize(t *testing.T) {
	r := IntentResult{Intent: "buy_now", Confidence: 1.4, SuggestedJourney: "checkout"}.Sanitize()
	if r.Intent != IntentUnknown {
		t.Errorf("expected unknown intent, got %q", r.Intent)
	}
	if r.SuggestedJourney != JourneyUnknown {
		t.Errorf("expected unknown journey, got %q", r.SuggestedJourney)
	}
	if r.Confidence != 1.0 {
		t.Errorf("expected confidence clamped to 1.0, got %v", r.Confidence)
	}
}

func TestIntentResultSanitize_TruncatesNotes(t *testing.T) {
	long := make([]byte, 2*MaxClassifierNotesLength)
	for i := range long {
		long[i] = 'x'
	}
	r := IntentResult{Intent: IntentOrderStatus, Confidence: 0.8, SuggestedJourney: JourneyOrders, Notes: string(long)}.Sanitize()
	if len(r.Notes) != MaxClassifierNotesLength {
		t.Errorf("expected notes truncated to %d, got %d", MaxClassifierNotesLength, len(r.Notes))
	}
}

func TestLanguageResultSanitize(t *testing.T) {
	r := LanguageResult{ResponseLanguage: "de", Confidence: -0.5}.Sanitize()
	if r.ResponseLanguage != LanguageMixed {
		t.Errorf("expected mixed language fallback, got %q", r.ResponseLanguage)
	}
	if r.Confidence != 0 {
		t.Errorf("expected confidence clamped to 0, got %v", r.Confidence)
	}
}

func TestGovernanceResultSanitize(t *testing.T) {
	r := GovernanceResult{Classification: "rude", Confidence: 0.6, RecommendedAction: "ban"}.Sanitize()
	if r.Classification != GovernorBusiness {
		t.Errorf("expected business fallback, got %q", r.Classification)
	}
	if r.RecommendedAction != ActionProceed {
		t.Errorf("expected proceed fallback, got %q", r.RecommendedAction)
	}
	if r.Confidence != 0.6 {
		t.Errorf("confidence should pass through unchanged, got %v", r.Confidence)
	}
}

func TestSanitize_ValidResultsPassThrough(t *testing.T) {
	in := GovernanceResult{Classification: GovernorSpam, Confidence: 0.9, RecommendedAction: ActionLimit}
	if out := in.Sanitize(); out != in {
		t.Errorf("valid result mutated by sanitize: %+v", out)
	}
}
