// Package models defines the core data structures for Sokoflow.
//
// It includes the per-turn conversation state, the closed enum sets used by
// the routing pipeline, and the classifier result contracts shared across modules.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Intent is the fine-grained classification of what the customer wants this turn.
type Intent string

const (
	IntentSalesDiscovery     Intent = "sales_discovery"
	IntentProductQuestion    Intent = "product_question"
	IntentSupportQuestion    Intent = "support_question"
	IntentOrderStatus        Intent = "order_status"
	IntentDiscountsOffers    Intent = "discounts_offers"
	IntentPreferencesConsent Intent = "preferences_consent"
	IntentPaymentHelp        Intent = "payment_help"
	IntentHumanRequest       Intent = "human_request"
	IntentSpamCasual         Intent = "spam_casual"
	IntentUnknown            Intent = "unknown"
)

// IsValidIntent checks if the given intent is a member of the closed intent set.
func IsValidIntent(i Intent) bool {
	switch i {
	case IntentSalesDiscovery, IntentProductQuestion, IntentSupportQuestion,
		IntentOrderStatus, IntentDiscountsOffers, IntentPreferencesConsent,
		IntentPaymentHelp, IntentHumanRequest, IntentSpamCasual, IntentUnknown:
		return true
	default:
		return false
	}
}

// Journey is the high-level conversation track a turn is routed to.
type Journey string

const (
	JourneySales      Journey = "sales"
	JourneySupport    Journey = "support"
	JourneyOrders     Journey = "orders"
	JourneyOffers     Journey = "offers"
	JourneyPrefs      Journey = "prefs"
	JourneyGovernance Journey = "governance"
	JourneyUnknown    Journey = "unknown"
)

// IsValidJourney checks if the given journey is a member of the closed journey set.
func IsValidJourney(j Journey) bool {
	switch j {
	case JourneySales, JourneySupport, JourneyOrders, JourneyOffers,
		JourneyPrefs, JourneyGovernance, JourneyUnknown:
		return true
	default:
		return false
	}
}

// Language is the response language selected for a conversation.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageSwahili Language = "sw"
	LanguageSheng   Language = "sheng"
	LanguageMixed   Language = "mixed"
)

// IsValidLanguage checks if the given language is a member of the closed language set.
func IsValidLanguage(l Language) bool {
	switch l {
	case LanguageEnglish, LanguageSwahili, LanguageSheng, LanguageMixed:
		return true
	default:
		return false
	}
}

// GovernorClass is the risk/relevance tag applied to a turn for cost and safety control.
type GovernorClass string

const (
	GovernorBusiness GovernorClass = "business"
	GovernorCasual   GovernorClass = "casual"
	GovernorSpam     GovernorClass = "spam"
	GovernorAbuse    GovernorClass = "abuse"
)

// IsValidGovernorClass checks if the given classification is a member of the closed set.
func IsValidGovernorClass(g GovernorClass) bool {
	switch g {
	case GovernorBusiness, GovernorCasual, GovernorSpam, GovernorAbuse:
		return true
	default:
		return false
	}
}

// Chattiness level bounds for tenant policy.
const (
	MinChattinessLevel = 0
	MaxChattinessLevel = 3
)

// transientStateKeys lists orchestration-only fields that must never be
// persisted. They are stripped on both serialization and load.
var transientStateKeys = []string{
	"incoming_message",
	"response_text",
	"needs_clarification",
	"routing_metadata",
}

// ConversationState is the per-(tenant, conversation) record every pipeline
// stage reads and mutates during a turn. It is created on the first inbound
// message, mutated in place for the duration of one turn, and serialized to
// storage at the end of the turn.
type ConversationState struct {
	// Identity
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id"`
	RequestID      string `json:"request_id"`
	CustomerID     string `json:"customer_id,omitempty"`
	Phone          string `json:"phone,omitempty"`

	// Classification
	Intent                 Intent        `json:"intent,omitempty"`
	IntentConfidence       float64       `json:"intent_confidence"`
	ResponseLanguage       Language      `json:"response_language,omitempty"`
	LanguageConfidence     float64       `json:"language_confidence"`
	GovernorClassification GovernorClass `json:"governor_classification,omitempty"`
	GovernorConfidence     float64       `json:"governor_confidence"`
	Journey                Journey       `json:"journey,omitempty"`

	// Counters
	TurnCount           int `json:"turn_count"`
	CasualTurns         int `json:"casual_turns"`
	SpamTurns           int `json:"spam_turns"`
	ClarificationRounds int `json:"clarification_rounds"`
	ShortlistRejections int `json:"shortlist_rejections"`

	// Policy inputs
	MaxChattinessLevel int        `json:"max_chattiness_level"`
	AllowedLanguages   []Language `json:"allowed_languages,omitempty"`
	DefaultLanguage    Language   `json:"default_language,omitempty"`

	// Escalation
	EscalationRequired bool   `json:"escalation_required"`
	EscalationReason   string `json:"escalation_reason,omitempty"`
	HandoffTicketID    string `json:"handoff_ticket_id,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`

	// Transient orchestration fields. Never persisted; stripped by the
	// deny-list on both ToJSON and FromJSON.
	IncomingMessage    string         `json:"incoming_message,omitempty"`
	ResponseText       string         `json:"response_text,omitempty"`
	NeedsClarification bool           `json:"needs_clarification,omitempty"`
	RoutingMetadata    map[string]any `json:"routing_metadata,omitempty"`
}

// NewConversationState creates the state record for the first inbound message
// of a conversation.
func NewConversationState(tenantID, conversationID, requestID string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		TenantID:           tenantID,
		ConversationID:     conversationID,
		RequestID:          requestID,
		MaxChattinessLevel: 1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Validate checks every invariant on the state. It returns an
// InvalidStateError naming the first offending field; it never coerces.
func (s *ConversationState) Validate() error {
	if s.TenantID == "" {
		return &InvalidStateError{Field: "tenant_id", Reason: "must not be empty"}
	}
	if s.ConversationID == "" {
		return &InvalidStateError{Field: "conversation_id", Reason: "must not be empty"}
	}
	if s.RequestID == "" {
		return &InvalidStateError{Field: "request_id", Reason: "must not be empty"}
	}
	if s.Intent != "" && !IsValidIntent(s.Intent) {
		return &InvalidStateError{Field: "intent", Reason: fmt.Sprintf("unknown value %q", s.Intent)}
	}
	if s.Journey != "" && !IsValidJourney(s.Journey) {
		return &InvalidStateError{Field: "journey", Reason: fmt.Sprintf("unknown value %q", s.Journey)}
	}
	if s.ResponseLanguage != "" && !IsValidLanguage(s.ResponseLanguage) {
		return &InvalidStateError{Field: "response_language", Reason: fmt.Sprintf("unknown value %q", s.ResponseLanguage)}
	}
	if s.GovernorClassification != "" && !IsValidGovernorClass(s.GovernorClassification) {
		return &InvalidStateError{Field: "governor_classification", Reason: fmt.Sprintf("unknown value %q", s.GovernorClassification)}
	}
	for _, l := range s.AllowedLanguages {
		if !IsValidLanguage(l) {
			return &InvalidStateError{Field: "allowed_languages", Reason: fmt.Sprintf("unknown value %q", l)}
		}
	}
	if s.DefaultLanguage != "" && !IsValidLanguage(s.DefaultLanguage) {
		return &InvalidStateError{Field: "default_language", Reason: fmt.Sprintf("unknown value %q", s.DefaultLanguage)}
	}
	if err := checkConfidence("intent_confidence", s.IntentConfidence); err != nil {
		return err
	}
	if err := checkConfidence("language_confidence", s.LanguageConfidence); err != nil {
		return err
	}
	if err := checkConfidence("governor_confidence", s.GovernorConfidence); err != nil {
		return err
	}
	if s.TurnCount < 0 {
		return &InvalidStateError{Field: "turn_count", Reason: "must not be negative"}
	}
	if s.CasualTurns < 0 {
		return &InvalidStateError{Field: "casual_turns", Reason: "must not be negative"}
	}
	if s.SpamTurns < 0 {
		return &InvalidStateError{Field: "spam_turns", Reason: "must not be negative"}
	}
	if s.ClarificationRounds < 0 {
		return &InvalidStateError{Field: "clarification_rounds", Reason: "must not be negative"}
	}
	if s.MaxChattinessLevel < MinChattinessLevel || s.MaxChattinessLevel > MaxChattinessLevel {
		return &InvalidStateError{Field: "max_chattiness_level", Reason: fmt.Sprintf("must be between %d and %d", MinChattinessLevel, MaxChattinessLevel)}
	}
	return nil
}

func checkConfidence(field string, v float64) error {
	if v < 0 || v > 1 {
		return &InvalidStateError{Field: field, Reason: fmt.Sprintf("confidence %v outside [0,1]", v)}
	}
	return nil
}

// UpdateIntent records a new intent classification. It rejects confidence
// outside [0,1] before mutating.
func (s *ConversationState) UpdateIntent(intent Intent, confidence float64) error {
	if !IsValidIntent(intent) {
		return &InvalidStateError{Field: "intent", Reason: fmt.Sprintf("unknown value %q", intent)}
	}
	if err := checkConfidence("intent_confidence", confidence); err != nil {
		return err
	}
	s.Intent = intent
	s.IntentConfidence = confidence
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateLanguage records a new language classification. It rejects confidence
// outside [0,1] before mutating.
func (s *ConversationState) UpdateLanguage(language Language, confidence float64) error {
	if !IsValidLanguage(language) {
		return &InvalidStateError{Field: "response_language", Reason: fmt.Sprintf("unknown value %q", language)}
	}
	if err := checkConfidence("language_confidence", confidence); err != nil {
		return err
	}
	s.ResponseLanguage = language
	s.LanguageConfidence = confidence
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateGovernor records a new governor classification. It rejects confidence
// outside [0,1] before mutating.
func (s *ConversationState) UpdateGovernor(class GovernorClass, confidence float64) error {
	if !IsValidGovernorClass(class) {
		return &InvalidStateError{Field: "governor_classification", Reason: fmt.Sprintf("unknown value %q", class)}
	}
	if err := checkConfidence("governor_confidence", confidence); err != nil {
		return err
	}
	s.GovernorClassification = class
	s.GovernorConfidence = confidence
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// ToJSON serializes the persisted schema of the state. Transient
// orchestration fields are stripped before encoding.
func (s *ConversationState) ToJSON() ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to re-read conversation state: %w", err)
	}
	for _, key := range transientStateKeys {
		delete(payload, key)
	}
	return json.Marshal(payload)
}

// FromJSON deserializes a persisted state payload. Payloads missing
// tenant_id, conversation_id or request_id are rejected; unknown or
// transient keys are dropped rather than failing the whole payload.
func FromJSON(data []byte) (*ConversationState, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse conversation state payload: %w", err)
	}
	for _, required := range []string{"tenant_id", "conversation_id", "request_id"} {
		raw, ok := payload[required]
		if !ok {
			return nil, &InvalidStateError{Field: required, Reason: "missing from payload"}
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil || v == "" {
			return nil, &InvalidStateError{Field: required, Reason: "missing from payload"}
		}
	}
	for _, key := range transientStateKeys {
		delete(payload, key)
	}
	cleaned, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild conversation state payload: %w", err)
	}
	var state ConversationState
	if err := json.Unmarshal(cleaned, &state); err != nil {
		return nil, fmt.Errorf("failed to decode conversation state: %w", err)
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &state, nil
}

// BeginTurn resets the per-turn transient fields and installs the new
// request identity and inbound text for the turn about to run.
func (s *ConversationState) BeginTurn(requestID, messageText string) {
	s.RequestID = requestID
	s.IncomingMessage = messageText
	s.ResponseText = ""
	s.NeedsClarification = false
	s.RoutingMetadata = nil
	s.UpdatedAt = time.Now().UTC()
}
