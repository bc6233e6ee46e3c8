// Package flow runs the fixed-stage turn pipeline: every inbound message
// passes through the same ordered stages, and any stage failure is contained
// into an escalation with a generic customer-facing reply rather than a
// dropped turn.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sokoflow/sokoflow/internal/genai"
	"github.com/sokoflow/sokoflow/internal/governance"
	"github.com/sokoflow/sokoflow/internal/models"
	"github.com/sokoflow/sokoflow/internal/routing"
	"github.com/sokoflow/sokoflow/internal/store"
	"github.com/sokoflow/sokoflow/internal/tenant"
)

// Stage names, in pipeline order. The order is fixed; stages never run
// conditionally or out of sequence.
const (
	StageEntry              = "entry"
	StageTenantResolve      = "tenant_resolve"
	StageCustomerResolve    = "customer_resolve"
	StageIntentClassify     = "intent_classify"
	StageLanguagePolicy     = "language_policy"
	StageGovernance         = "governance"
	StageJourneyRouter      = "journey_router"
	StageJourneyExecution   = "journey_execution"
	StageResponseGeneration = "response_generation"
	StagePersistence        = "persistence"
)

// ClarificationRoundLimit bounds consecutive clarification turns before the
// pipeline escalates instead of asking again.
const ClarificationRoundLimit = 3

// TurnRequest is the entry contract for one pipeline run.
type TurnRequest struct {
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id"`
	RequestID      string `json:"request_id,omitempty"`
	MessageText    string `json:"message_text"`
	Phone          string `json:"phone,omitempty"`
	CustomerID     string `json:"customer_id,omitempty"`
}

// Validate rejects requests the pipeline cannot run at all. Anything past
// this point is handled by stage containment, not rejection.
func (r *TurnRequest) Validate() error {
	if r.TenantID == "" {
		return models.ErrEmptyTenant
	}
	if r.ConversationID == "" {
		return models.ErrEmptyConversation
	}
	if strings.TrimSpace(r.MessageText) == "" {
		return models.ErrEmptyMessage
	}
	return nil
}

// turn carries everything one pipeline run accumulates across stages.
type turn struct {
	req    TurnRequest
	state  *models.ConversationState
	policy tenant.Policy
	route  *models.RouteDecision
	gov    governance.Decision

	// flaggedAtEntry snapshots the escalation flag as loaded at turn entry,
	// before any stage this turn could raise it.
	flaggedAtEntry bool

	// contained is set when a stage failed and the rest of the pipeline
	// runs in degraded mode to still produce a reply.
	contained *models.StageExecutionError
	// govHandled marks turns where governance decided the route itself.
	govHandled bool
	// draft is the journey executor's reply before language rendering.
	draft string
}

// Orchestrator wires the classifiers, governance engine, routers and storage
// into the fixed-stage pipeline.
type Orchestrator struct {
	store      store.Store
	tenants    *tenant.Registry
	classifier genai.ClientInterface
	governor   *governance.Engine
	router     *routing.IntentRouter
	escalation *routing.EscalationDetector
	responder  *Responder
	catalog    CatalogSearcher
}

// NewOrchestrator creates the pipeline. The classifier should already wrap
// its heuristic fallback; the orchestrator never retries classification.
func NewOrchestrator(st store.Store, tenants *tenant.Registry, classifier genai.ClientInterface, governor *governance.Engine) *Orchestrator {
	return &Orchestrator{
		store:      st,
		tenants:    tenants,
		classifier: classifier,
		governor:   governor,
		router:     routing.NewIntentRouter(),
		escalation: routing.NewEscalationDetector(),
		responder:  NewResponder(classifier),
	}
}

// ProcessTurn runs one inbound message through the pipeline and returns the
// updated conversation state, including the transient reply fields.
//
// Stage failures do not abort the turn: the first failing stage flips the
// turn into containment, remaining domain stages are skipped, and response
// generation plus persistence still run so the customer gets a reply and the
// escalation flag survives the turn.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req TurnRequest) (*models.ConversationState, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = "req_" + uuid.NewString()
	}

	t := &turn{req: req}

	stages := []struct {
		name string
		run  func(context.Context, *turn) error
	}{
		{StageEntry, o.stageEntry},
		{StageTenantResolve, o.stageTenantResolve},
		{StageCustomerResolve, o.stageCustomerResolve},
		{StageIntentClassify, o.stageIntentClassify},
		{StageLanguagePolicy, o.stageLanguagePolicy},
		{StageGovernance, o.stageGovernance},
		{StageJourneyRouter, o.stageJourneyRouter},
		{StageJourneyExecution, o.stageJourneyExecution},
	}
	for _, s := range stages {
		if t.contained != nil {
			break
		}
		if err := o.runStage(ctx, s.name, s.run, t); err != nil {
			o.contain(t, s.name, err)
		}
	}

	// Response generation and persistence always run, even for a contained
	// turn. A failure inside response generation falls back to the static
	// escalation template; a persistence failure is the only error that
	// surfaces to the caller.
	if err := o.runStage(ctx, StageResponseGeneration, o.stageResponseGeneration, t); err != nil {
		o.contain(t, StageResponseGeneration, err)
		t.state.ResponseText = o.responder.EscalationFallback(t.state.ResponseLanguage)
	}
	if err := o.runStage(ctx, StagePersistence, o.stagePersistence, t); err != nil {
		slog.Error("Orchestrator.ProcessTurn: persistence failed", "error", err,
			"tenantID", req.TenantID, "conversationID", req.ConversationID)
		return t.state, &models.StageExecutionError{Stage: StagePersistence, Err: err}
	}

	slog.Debug("Orchestrator.ProcessTurn: turn complete",
		"tenantID", req.TenantID, "conversationID", req.ConversationID,
		"journey", t.state.Journey, "escalation", t.state.EscalationRequired,
		"contained", t.contained != nil)
	return t.state, nil
}

// runStage executes one stage with panic containment.
func (o *Orchestrator) runStage(ctx context.Context, name string, fn func(context.Context, *turn) error, t *turn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Orchestrator.runStage: stage panicked", "stage", name, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, t)
}

// contain flips the turn into degraded mode: escalation is set on the state
// and response generation will render the generic fallback.
func (o *Orchestrator) contain(t *turn, stage string, err error) {
	t.contained = &models.StageExecutionError{Stage: stage, Err: err}
	slog.Error("Orchestrator: stage failed, containing turn", "stage", stage, "error", err,
		"tenantID", t.req.TenantID, "conversationID", t.req.ConversationID)
	if t.state == nil {
		// Entry itself failed; response generation and persistence still need
		// a state to carry the fallback reply and the escalation flag.
		t.state = models.NewConversationState(t.req.TenantID, t.req.ConversationID, t.req.RequestID)
		t.state.BeginTurn(t.req.RequestID, t.req.MessageText)
		t.state.TurnCount++
	}
	t.state.EscalationRequired = true
	t.state.EscalationReason = "System error in " + stage
	t.state.NeedsClarification = false
	t.state.Journey = models.JourneyGovernance
}

// stageEntry loads or creates the conversation state and opens the turn.
func (o *Orchestrator) stageEntry(ctx context.Context, t *turn) error {
	state, err := o.store.LoadState(ctx, t.req.TenantID, t.req.ConversationID)
	switch {
	case err == nil:
		state.BeginTurn(t.req.RequestID, t.req.MessageText)
	case errors.Is(err, models.ErrStateNotFound):
		state = models.NewConversationState(t.req.TenantID, t.req.ConversationID, t.req.RequestID)
		state.BeginTurn(t.req.RequestID, t.req.MessageText)
	default:
		return fmt.Errorf("failed to load conversation state: %w", err)
	}
	state.TurnCount++
	t.state = state
	t.flaggedAtEntry = state.EscalationRequired
	return nil
}

// stageTenantResolve copies tenant policy onto the state for this turn.
func (o *Orchestrator) stageTenantResolve(ctx context.Context, t *turn) error {
	policy, err := o.tenants.Resolve(t.req.TenantID)
	if err != nil {
		return err
	}
	t.policy = policy
	t.state.MaxChattinessLevel = policy.MaxChattinessLevel
	t.state.AllowedLanguages = policy.AllowedLanguages
	t.state.DefaultLanguage = policy.DefaultLanguage
	return nil
}

// stageCustomerResolve attaches customer identity from the request.
func (o *Orchestrator) stageCustomerResolve(ctx context.Context, t *turn) error {
	if t.req.Phone != "" {
		t.state.Phone = t.req.Phone
	}
	if t.req.CustomerID != "" {
		t.state.CustomerID = t.req.CustomerID
	} else if t.state.CustomerID == "" && t.state.Phone != "" {
		t.state.CustomerID = "cust_" + strings.TrimPrefix(t.state.Phone, "+")
	}
	return nil
}

// stageIntentClassify records intent classification on the state.
func (o *Orchestrator) stageIntentClassify(ctx context.Context, t *turn) error {
	result, err := o.classifier.ClassifyIntent(ctx, t.req.MessageText)
	if err != nil {
		return err
	}
	return t.state.UpdateIntent(result.Intent, result.Confidence)
}

// stageLanguagePolicy selects the response language within tenant policy.
// A classified language outside the tenant's allowed set falls back to the
// tenant default rather than failing the turn.
func (o *Orchestrator) stageLanguagePolicy(ctx context.Context, t *turn) error {
	result, err := o.classifier.ClassifyLanguage(ctx, t.req.MessageText, t.state.AllowedLanguages)
	if err != nil {
		return err
	}
	language := result.ResponseLanguage
	if !languageAllowed(t.state.AllowedLanguages, language) {
		slog.Debug("Orchestrator.stageLanguagePolicy: language outside tenant policy, using default",
			"classified", language, "default", t.state.DefaultLanguage)
		language = t.state.DefaultLanguage
		if language == "" {
			language = models.LanguageEnglish
		}
	}
	return t.state.UpdateLanguage(language, result.Confidence)
}

// stageGovernance classifies and applies spam/casual/abuse policy.
func (o *Orchestrator) stageGovernance(ctx context.Context, t *turn) error {
	result, err := o.classifier.ClassifyGovernance(ctx, t.req.MessageText)
	if err != nil {
		return err
	}
	decision, err := o.governor.Apply(ctx, t.state, result)
	if err != nil {
		return err
	}
	t.gov = decision
	if decision.Route != nil {
		t.route = decision.Route
		t.govHandled = true
	}
	return nil
}

// stageJourneyRouter picks the journey for the turn. Escalation rules are
// checked first and override both governance and intent routing; a
// governance redirect beats intent routing; intent routing is the default.
func (o *Orchestrator) stageJourneyRouter(ctx context.Context, t *turn) error {
	if decision := o.escalation.Detect(t.req.MessageText, t.flaggedAtEntry, t.state.TurnCount); decision != nil {
		t.route = decision
		t.state.EscalationRequired = true
		t.state.EscalationReason = decision.Reason
		t.govHandled = false
	} else if !t.govHandled {
		t.route = o.router.Route(t.state.Intent, t.state.IntentConfidence)
	}

	// Clarification-loop bound: three consecutive clarifying turns become a
	// handoff instead of a fourth question.
	if t.route.ShouldClarify {
		t.state.ClarificationRounds++
		if t.state.ClarificationRounds >= ClarificationRoundLimit {
			t.route = models.EscalationDecision(models.TriggerRepeatedFailures,
				"repeated clarification failures", 1.0)
			t.state.EscalationRequired = true
			t.state.EscalationReason = "repeated clarification failures"
			t.state.ClarificationRounds = 0
		}
	} else {
		t.state.ClarificationRounds = 0
	}

	t.state.Journey = t.route.Journey
	t.state.NeedsClarification = t.route.ShouldClarify
	t.state.RoutingMetadata = t.route.Metadata
	return nil
}

// stageJourneyExecution runs the selected journey and drafts the reply.
func (o *Orchestrator) stageJourneyExecution(ctx context.Context, t *turn) error {
	if t.state.EscalationRequired && t.state.HandoffTicketID == "" {
		t.state.HandoffTicketID = "tick_" + uuid.NewString()
		slog.Info("Orchestrator.stageJourneyExecution: handoff ticket opened",
			"ticketID", t.state.HandoffTicketID, "tenantID", t.state.TenantID,
			"reason", t.state.EscalationReason)
	}
	draft, err := o.executeJourney(ctx, t)
	if err != nil {
		return err
	}
	t.draft = draft
	return nil
}

// stageResponseGeneration renders the final customer-facing text.
func (o *Orchestrator) stageResponseGeneration(ctx context.Context, t *turn) error {
	if t.contained != nil {
		t.state.ResponseText = o.responder.EscalationFallback(t.state.ResponseLanguage)
		return nil
	}
	if t.gov.Outcome == governance.OutcomeDisengage || t.gov.Outcome == governance.OutcomeRateLimited {
		// Disengaged and throttled customers get no reply at all.
		t.state.ResponseText = ""
		return nil
	}
	text, err := o.responder.Render(ctx, t)
	if err != nil {
		return err
	}
	t.state.ResponseText = text
	return nil
}

// stagePersistence writes the state back. Transient fields are stripped by
// the serializer, not here.
func (o *Orchestrator) stagePersistence(ctx context.Context, t *turn) error {
	return o.store.SaveState(ctx, t.state)
}

func languageAllowed(allowed []models.Language, l models.Language) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == l {
			return true
		}
	}
	return false
}
