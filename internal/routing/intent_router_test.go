package routing

import (
	"testing"

	"github.com/sokoflow/sokoflow/internal/models"
)

func TestRoute_ThresholdBoundaries(t *testing.T) {
	r := NewIntentRouter()
	cases := []struct {
		name          string
		confidence    float64
		wantJourney   models.Journey
		wantClarify   bool
		wantSuggested string
	}{
		{"at commit threshold", 0.70, models.JourneySales, false, ""},
		{"just below commit", 0.6999, models.JourneyUnknown, true, "sales"},
		{"at clarify threshold", 0.50, models.JourneyUnknown, true, "sales"},
		{"just below clarify", 0.4999, models.JourneyUnknown, false, ""},
		{"high confidence", 0.95, models.JourneySales, false, ""},
		{"zero confidence", 0.0, models.JourneyUnknown, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := r.Route(models.IntentSalesDiscovery, tc.confidence)
			if d.Journey != tc.wantJourney {
				t.Errorf("journey: want %q, got %q", tc.wantJourney, d.Journey)
			}
			if d.ShouldClarify != tc.wantClarify {
				t.Errorf("should_clarify: want %v, got %v", tc.wantClarify, d.ShouldClarify)
			}
			suggested, _ := d.Metadata[models.MetaSuggestedJourney].(string)
			if suggested != tc.wantSuggested {
				t.Errorf("suggested journey: want %q, got %q", tc.wantSuggested, suggested)
			}
			if d.Confidence != tc.confidence {
				t.Errorf("confidence: want %v, got %v", tc.confidence, d.Confidence)
			}
		})
	}
}

func TestRoute_IntentTable(t *testing.T) {
	r := NewIntentRouter()
	cases := []struct {
		intent models.Intent
		want   models.Journey
	}{
		{models.IntentSalesDiscovery, models.JourneySales},
		{models.IntentProductQuestion, models.JourneySales},
		{models.IntentSupportQuestion, models.JourneySupport},
		{models.IntentOrderStatus, models.JourneyOrders},
		{models.IntentDiscountsOffers, models.JourneyOffers},
		{models.IntentPreferencesConsent, models.JourneyPrefs},
		{models.IntentPaymentHelp, models.JourneySupport},
		{models.IntentHumanRequest, models.JourneyGovernance},
		{models.IntentSpamCasual, models.JourneyGovernance},
		{models.IntentUnknown, models.JourneyUnknown},
	}
	for _, tc := range cases {
		d := r.Route(tc.intent, 0.99)
		if d.Journey != tc.want {
			t.Errorf("intent %s: want journey %q, got %q", tc.intent, tc.want, d.Journey)
		}
	}
}

func TestRoute_ClarifyRecordsSuggestionOnly(t *testing.T) {
	r := NewIntentRouter()
	d := r.Route(models.IntentProductQuestion, 0.65)
	if d.Journey != models.JourneyUnknown {
		t.Errorf("mid-confidence route must not commit, got %q", d.Journey)
	}
	if !d.ShouldClarify {
		t.Error("mid-confidence route must ask for clarification")
	}
	if got, _ := d.Metadata[models.MetaSuggestedJourney].(string); got != "sales" {
		t.Errorf("expected suggested_journey sales, got %q", got)
	}
}

func TestMappedJourney_UnknownIntentFallsBack(t *testing.T) {
	if got := MappedJourney("made_up"); got != models.JourneyUnknown {
		t.Errorf("expected unknown journey, got %q", got)
	}
}
