// Package governance implements the casual/spam/abuse turn-counting policy
// for Sokoflow conversations.
//
// The engine consumes the governance classifier's result, applies the
// tenant's chattiness policy and the fixed spam/abuse limits, and emits a
// RouteDecision when the turn must be redirected to the governance journey
// instead of its intent-routed journey.
package governance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sokoflow/sokoflow/internal/models"
)

// SpamTurnLimit is the fixed number of spam turns tolerated before
// disengaging. Turn counts at or above the limit disengage.
const SpamTurnLimit = 2

// casualTurnLimits maps a tenant's chattiness level to the maximum casual
// turns tolerated before redirecting to business.
var casualTurnLimits = map[int]int{
	0: 0,
	1: 1,
	2: 2,
	3: 4,
}

// CasualTurnLimit returns the casual-turn cap for a chattiness level.
// Levels outside policy bounds fall back to the strictest cap.
func CasualTurnLimit(chattinessLevel int) int {
	if limit, ok := casualTurnLimits[chattinessLevel]; ok {
		return limit
	}
	return 0
}

// Outcome is the governance action taken for one turn.
type Outcome string

const (
	// OutcomeProceed lets the turn continue on normal intent routing.
	OutcomeProceed Outcome = "proceed"
	// OutcomeFriendlyCasual answers small talk within the chattiness budget.
	OutcomeFriendlyCasual Outcome = "friendly_casual_response"
	// OutcomeRedirectToBusiness nudges the customer back to business topics.
	OutcomeRedirectToBusiness Outcome = "redirect_to_business"
	// OutcomeSpamWarning warns the customer before disengaging.
	OutcomeSpamWarning Outcome = "spam_warning"
	// OutcomeDisengage stops responding to a spamming customer.
	OutcomeDisengage Outcome = "disengage"
	// OutcomeStop halts the turn for abusive content and escalates.
	OutcomeStop Outcome = "stop"
	// OutcomeRateLimited short-circuits a throttled customer.
	OutcomeRateLimited Outcome = "rate_limited"
)

// RateLimiter is the external cooldown collaborator keyed by
// (tenant, customer). The engine checks it before applying its own policy.
type RateLimiter interface {
	// CheckRateLimit reports whether the customer is currently throttled.
	CheckRateLimit(ctx context.Context, tenantID, customerID string) (bool, error)

	// ApplySpamCooldown throttles the customer after a spam disengage.
	ApplySpamCooldown(ctx context.Context, tenantID, customerID string) error

	// ApplyAbuseCooldown throttles the customer after abusive content.
	ApplyAbuseCooldown(ctx context.Context, tenantID, customerID string) error
}

// Decision is the engine's verdict for one turn. Route is non-nil when the
// pipeline must redirect to the governance journey instead of executing the
// intent-routed journey.
type Decision struct {
	Outcome Outcome
	Route   *models.RouteDecision
}

// Engine applies the per-classification governance policy.
type Engine struct {
	limiter RateLimiter
}

// NewEngine creates a governance engine with the given rate limiter.
func NewEngine(limiter RateLimiter) *Engine {
	return &Engine{limiter: limiter}
}

// Apply evaluates governance policy for one turn, mutating the state's
// counters and escalation fields as required.
//
// The rate limiter is consulted first: a throttled customer short-circuits
// regardless of this turn's classification. A rate-limiter read failure is
// treated as not throttled so a degraded limiter store cannot stall the
// pipeline.
func (e *Engine) Apply(ctx context.Context, state *models.ConversationState, result models.GovernanceResult) (Decision, error) {
	throttled, err := e.limiter.CheckRateLimit(ctx, state.TenantID, customerKey(state))
	if err != nil {
		slog.Warn("Engine.Apply: rate limit check failed, proceeding", "error", err, "tenantID", state.TenantID)
	} else if throttled {
		slog.Info("Engine.Apply: customer throttled, short-circuiting", "tenantID", state.TenantID, "conversationID", state.ConversationID)
		route := &models.RouteDecision{
			Journey:    models.JourneyGovernance,
			Reason:     "customer is rate limited",
			Confidence: result.Confidence,
		}
		route.WithMeta(models.MetaRateLimited, true).
			WithMeta(models.MetaGovernanceAction, string(OutcomeRateLimited))
		return Decision{Outcome: OutcomeRateLimited, Route: route}, nil
	}

	if err := state.UpdateGovernor(result.Classification, result.Confidence); err != nil {
		return Decision{}, err
	}

	switch result.Classification {
	case models.GovernorBusiness:
		return Decision{Outcome: OutcomeProceed}, nil
	case models.GovernorCasual:
		return e.applyCasual(state, result), nil
	case models.GovernorSpam:
		return e.applySpam(ctx, state, result), nil
	case models.GovernorAbuse:
		return e.applyAbuse(ctx, state, result), nil
	default:
		// Sanitize guarantees a closed-set classification; treat anything
		// else as a contract breach.
		return Decision{}, &models.InvalidStateError{Field: "governor_classification", Reason: fmt.Sprintf("unknown value %q", result.Classification)}
	}
}

func (e *Engine) applyCasual(state *models.ConversationState, result models.GovernanceResult) Decision {
	state.CasualTurns++
	limit := CasualTurnLimit(state.MaxChattinessLevel)
	if state.CasualTurns > limit {
		slog.Debug("Engine.applyCasual: chattiness budget exhausted",
			"casualTurns", state.CasualTurns, "limit", limit, "chattiness", state.MaxChattinessLevel)
		return e.governanceDecision(OutcomeRedirectToBusiness,
			fmt.Sprintf("casual turn %d exceeds chattiness budget %d", state.CasualTurns, limit), result)
	}
	return e.governanceDecision(OutcomeFriendlyCasual,
		fmt.Sprintf("casual turn %d within chattiness budget %d", state.CasualTurns, limit), result)
}

func (e *Engine) applySpam(ctx context.Context, state *models.ConversationState, result models.GovernanceResult) Decision {
	state.SpamTurns++
	if state.SpamTurns >= SpamTurnLimit {
		if err := e.limiter.ApplySpamCooldown(ctx, state.TenantID, customerKey(state)); err != nil {
			slog.Error("Engine.applySpam: failed to apply spam cooldown", "error", err, "tenantID", state.TenantID)
		}
		return e.governanceDecision(OutcomeDisengage,
			fmt.Sprintf("spam turn %d reached limit %d, disengaging", state.SpamTurns, SpamTurnLimit), result)
	}
	return e.governanceDecision(OutcomeSpamWarning,
		fmt.Sprintf("spam turn %d below limit %d, warning", state.SpamTurns, SpamTurnLimit), result)
}

func (e *Engine) applyAbuse(ctx context.Context, state *models.ConversationState, result models.GovernanceResult) Decision {
	state.EscalationRequired = true
	state.EscalationReason = "abusive content detected"
	if err := e.limiter.ApplyAbuseCooldown(ctx, state.TenantID, customerKey(state)); err != nil {
		slog.Error("Engine.applyAbuse: failed to apply abuse cooldown", "error", err, "tenantID", state.TenantID)
	}
	return e.governanceDecision(OutcomeStop, "abusive content, stopping immediately", result)
}

func (e *Engine) governanceDecision(outcome Outcome, reason string, result models.GovernanceResult) Decision {
	route := &models.RouteDecision{
		Journey:    models.JourneyGovernance,
		Reason:     reason,
		Confidence: result.Confidence,
	}
	route.WithMeta(models.MetaGovernanceAction, string(outcome))
	if outcome == OutcomeStop {
		route.WithMeta(models.MetaEscalationRequired, true)
	}
	return Decision{Outcome: outcome, Route: route}
}

// customerKey picks the most stable customer identifier available for
// cooldown keying.
func customerKey(state *models.ConversationState) string {
	if state.CustomerID != "" {
		return state.CustomerID
	}
	if state.Phone != "" {
		return state.Phone
	}
	return state.ConversationID
}
