// Package routing implements the deterministic routing decisions for
// Sokoflow: confidence-threshold intent routing, priority-ordered escalation
// detection, and the web-catalog fallback policy.
package routing

import (
	"fmt"
	"log/slog"

	"github.com/sokoflow/sokoflow/internal/models"
)

// Confidence thresholds for intent routing. Routing is a pure function of
// these bounds; both are inclusive lower bounds for their branch.
const (
	// CommitThreshold is the minimum confidence to commit to the mapped journey.
	CommitThreshold = 0.70
	// ClarifyThreshold is the minimum confidence to ask a clarifying question
	// instead of routing blind.
	ClarifyThreshold = 0.50
)

// journeyTable is the static intent to journey mapping.
var journeyTable = map[models.Intent]models.Journey{
	models.IntentSalesDiscovery:     models.JourneySales,
	models.IntentProductQuestion:    models.JourneySales,
	models.IntentSupportQuestion:    models.JourneySupport,
	models.IntentOrderStatus:        models.JourneyOrders,
	models.IntentDiscountsOffers:    models.JourneyOffers,
	models.IntentPreferencesConsent: models.JourneyPrefs,
	models.IntentPaymentHelp:        models.JourneySupport,
	models.IntentHumanRequest:       models.JourneyGovernance,
	models.IntentSpamCasual:         models.JourneyGovernance,
	models.IntentUnknown:            models.JourneyUnknown,
}

// MappedJourney returns the static journey for an intent. Intents outside
// the table map to the unknown journey.
func MappedJourney(intent models.Intent) models.Journey {
	if j, ok := journeyTable[intent]; ok {
		return j
	}
	return models.JourneyUnknown
}

// IntentRouter routes a classified intent to a journey based on confidence
// thresholds.
type IntentRouter struct{}

// NewIntentRouter creates a new IntentRouter.
func NewIntentRouter() *IntentRouter {
	return &IntentRouter{}
}

// Route produces the routing decision for one classified turn.
//
// confidence >= 0.70 commits to the mapped journey; [0.50, 0.70) routes to
// unknown and asks for clarification, recording the mapped journey in
// metadata as a suggestion only; below 0.50 routes to unknown silently.
func (r *IntentRouter) Route(intent models.Intent, confidence float64) *models.RouteDecision {
	mapped := MappedJourney(intent)

	var decision *models.RouteDecision
	switch {
	case confidence >= CommitThreshold:
		decision = &models.RouteDecision{
			Journey:    mapped,
			Reason:     fmt.Sprintf("intent %s at confidence %.2f", intent, confidence),
			Confidence: confidence,
		}
	case confidence >= ClarifyThreshold:
		decision = &models.RouteDecision{
			Journey:       models.JourneyUnknown,
			Reason:        fmt.Sprintf("intent %s at confidence %.2f below commit threshold, asking for clarification", intent, confidence),
			Confidence:    confidence,
			ShouldClarify: true,
		}
		decision.WithMeta(models.MetaSuggestedJourney, string(mapped))
	default:
		decision = &models.RouteDecision{
			Journey:    models.JourneyUnknown,
			Reason:     fmt.Sprintf("intent %s at confidence %.2f too low to route", intent, confidence),
			Confidence: confidence,
		}
	}

	slog.Debug("IntentRouter.Route", "intent", intent, "confidence", confidence,
		"journey", decision.Journey, "shouldClarify", decision.ShouldClarify)
	return decision
}
