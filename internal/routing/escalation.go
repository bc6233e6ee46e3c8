// Package routing implements escalation trigger detection.
package routing

import (
	"log/slog"
	"strings"

	"github.com/sokoflow/sokoflow/internal/models"
)

// FrustrationMinTurns is the minimum turn count before frustration keywords
// alone can trigger an escalation.
const FrustrationMinTurns = 3

// Escalation rule confidences, in rule priority order.
const (
	confidenceHumanRequest     = 1.0
	confidencePaymentDispute   = 0.9
	confidenceSensitiveContent = 0.8
	confidenceFrustration      = 0.7
)

var humanRequestKeywords = []string{
	"agent",
	"human",
	"call me",
	"representative",
	"real person",
	"customer care",
	"speak to someone",
	"talk to someone",
	"nataka kuongea na mtu",
}

var paymentDisputeKeywords = []string{
	"i paid but",
	"chargeback",
	"refund",
	"never received",
	"wrong item",
	"money back",
	"charged twice",
	"nimelipa lakini",
	"rudisha pesa",
}

var sensitiveContentKeywords = []string{
	"legal",
	"lawyer",
	"lawsuit",
	"medical",
	"emergency",
	"suicide",
	"police",
	"harassment",
}

var frustrationKeywords = []string{
	"useless",
	"not helping",
	"this is ridiculous",
	"terrible service",
	"waste of time",
	"fed up",
	"angry",
	"umenichosha",
}

// EscalationDetector evaluates the priority-ordered escalation rules over
// the raw message text and per-conversation signals. It runs before normal
// intent routing and its decision overrides it.
type EscalationDetector struct{}

// NewEscalationDetector creates a new EscalationDetector.
func NewEscalationDetector() *EscalationDetector {
	return &EscalationDetector{}
}

// Detect returns the decision of the first matching rule, or nil when no
// rule matches and normal routing should proceed. flaggedAtEntry must be the
// escalation flag as loaded at turn entry: a flag raised later in the same
// turn must not shadow the message-level rules.
func (d *EscalationDetector) Detect(messageText string, flaggedAtEntry bool, turnCount int) *models.RouteDecision {
	// Rule 1: the conversation arrived already flagged for escalation.
	if flaggedAtEntry {
		return d.matched(models.TriggerStateFlagged, "conversation already flagged for escalation", confidenceHumanRequest)
	}

	text := strings.ToLower(messageText)

	// Rule 2: explicit request for a human.
	if containsAny(text, humanRequestKeywords) {
		return d.matched(models.TriggerExplicitHumanRequest, "customer explicitly asked for a human", confidenceHumanRequest)
	}

	// Rule 3: payment dispute or delivery complaint.
	if containsAny(text, paymentDisputeKeywords) {
		return d.matched(models.TriggerPaymentDispute, "payment dispute or delivery complaint language", confidencePaymentDispute)
	}

	// Rule 4: sensitive, legal or medical content.
	if containsAny(text, sensitiveContentKeywords) {
		return d.matched(models.TriggerSensitiveContent, "sensitive or legal content", confidenceSensitiveContent)
	}

	// Rule 5: frustration, only after the conversation has had a few turns.
	if turnCount >= FrustrationMinTurns && containsAny(text, frustrationKeywords) {
		return d.matched(models.TriggerUserFrustration, "repeated frustration signals", confidenceFrustration)
	}

	return nil
}

func (d *EscalationDetector) matched(trigger models.EscalationTrigger, reason string, confidence float64) *models.RouteDecision {
	slog.Info("EscalationDetector.Detect: rule matched", "trigger", trigger, "confidence", confidence)
	return models.EscalationDecision(trigger, reason, confidence)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
