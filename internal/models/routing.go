// Package models defines routing decision types shared by the router,
// governance engine and escalation detector.
package models

// EscalationTrigger identifies the rule that forced a human handoff.
type EscalationTrigger string

const (
	// TriggerStateFlagged fires when the state already carries an escalation flag.
	TriggerStateFlagged EscalationTrigger = "state_flagged"
	// TriggerExplicitHumanRequest fires on explicit agent/human keywords.
	TriggerExplicitHumanRequest EscalationTrigger = "explicit_human_request"
	// TriggerPaymentDispute fires on payment-dispute or delivery-complaint keywords.
	TriggerPaymentDispute EscalationTrigger = "payment_dispute"
	// TriggerSensitiveContent fires on legal/medical/safety keywords.
	TriggerSensitiveContent EscalationTrigger = "sensitive_content"
	// TriggerUserFrustration fires on frustration keywords after enough turns.
	TriggerUserFrustration EscalationTrigger = "user_frustration"
	// TriggerRepeatedFailures fires after too many consecutive clarification rounds.
	TriggerRepeatedFailures EscalationTrigger = "repeated_failures"
)

// Metadata keys used on RouteDecision.Metadata.
const (
	MetaSuggestedJourney   = "suggested_journey"
	MetaEscalationRequired = "escalation_required"
	MetaEscalationTrigger  = "escalation_trigger"
	MetaGovernanceAction   = "governance_action"
	MetaRateLimited        = "rate_limited"
)

// RouteDecision is the ephemeral outcome of one routing evaluation. The same
// shape drives intent-based routing, governance redirects and escalation
// overrides, so downstream stages branch on a single structure.
type RouteDecision struct {
	Journey       Journey        `json:"journey"`
	Reason        string         `json:"reason"`
	Confidence    float64        `json:"confidence"`
	ShouldClarify bool           `json:"should_clarify"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// WithMeta sets a metadata key on the decision, allocating the map lazily.
func (d *RouteDecision) WithMeta(key string, value any) *RouteDecision {
	if d.Metadata == nil {
		d.Metadata = make(map[string]any)
	}
	d.Metadata[key] = value
	return d
}

// EscalationDecision builds the RouteDecision produced by a matched
// escalation rule: governance journey, no clarification, trigger recorded.
func EscalationDecision(trigger EscalationTrigger, reason string, confidence float64) *RouteDecision {
	d := &RouteDecision{
		Journey:    JourneyGovernance,
		Reason:     reason,
		Confidence: confidence,
	}
	return d.WithMeta(MetaEscalationRequired, true).WithMeta(MetaEscalationTrigger, string(trigger))
}
