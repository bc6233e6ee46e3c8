// Package models defines the typed result contracts returned by the
// external classifiers. Results are validated once at the boundary via
// Sanitize; downstream code never re-checks field presence.
package models

// MaxClassifierNotesLength caps the free-text notes a classifier may attach.
const MaxClassifierNotesLength = 100

// GovernanceAction is the action recommended by the governance classifier.
type GovernanceAction string

const (
	ActionProceed  GovernanceAction = "proceed"
	ActionRedirect GovernanceAction = "redirect"
	ActionLimit    GovernanceAction = "limit"
	ActionStop     GovernanceAction = "stop"
	ActionHandoff  GovernanceAction = "handoff"
)

// IsValidGovernanceAction checks if the given action is a member of the closed set.
func IsValidGovernanceAction(a GovernanceAction) bool {
	switch a {
	case ActionProceed, ActionRedirect, ActionLimit, ActionStop, ActionHandoff:
		return true
	default:
		return false
	}
}

// IntentResult is the structured output of the intent classifier.
type IntentResult struct {
	Intent           Intent  `json:"intent"`
	Confidence       float64 `json:"confidence"`
	Notes            string  `json:"notes,omitempty"`
	SuggestedJourney Journey `json:"suggested_journey,omitempty"`
}

// Sanitize clamps an externally produced intent result into the closed
// contract. Unknown intents become IntentUnknown and confidence is clamped
// into [0,1]; this is the documented exception to fail-fast validation
// because LLM output is untrusted by construction.
func (r IntentResult) Sanitize() IntentResult {
	if !IsValidIntent(r.Intent) {
		r.Intent = IntentUnknown
	}
	if !IsValidJourney(r.SuggestedJourney) {
		r.SuggestedJourney = JourneyUnknown
	}
	r.Confidence = clamp01(r.Confidence)
	if len(r.Notes) > MaxClassifierNotesLength {
		r.Notes = r.Notes[:MaxClassifierNotesLength]
	}
	return r
}

// LanguageResult is the structured output of the language classifier.
type LanguageResult struct {
	ResponseLanguage          Language `json:"response_language"`
	Confidence                float64  `json:"confidence"`
	ShouldAskLanguageQuestion bool     `json:"should_ask_language_question"`
}

// Sanitize clamps an externally produced language result. Unknown languages
// become LanguageMixed and confidence is clamped into [0,1].
func (r LanguageResult) Sanitize() LanguageResult {
	if !IsValidLanguage(r.ResponseLanguage) {
		r.ResponseLanguage = LanguageMixed
	}
	r.Confidence = clamp01(r.Confidence)
	return r
}

// GovernanceResult is the structured output of the governance classifier.
type GovernanceResult struct {
	Classification    GovernorClass    `json:"classification"`
	Confidence        float64          `json:"confidence"`
	RecommendedAction GovernanceAction `json:"recommended_action"`
}

// Sanitize clamps an externally produced governance result. Unknown
// classifications become GovernorBusiness (the safe default: the turn
// proceeds through normal routing) and confidence is clamped into [0,1].
func (r GovernanceResult) Sanitize() GovernanceResult {
	if !IsValidGovernorClass(r.Classification) {
		r.Classification = GovernorBusiness
	}
	if !IsValidGovernanceAction(r.RecommendedAction) {
		r.RecommendedAction = ActionProceed
	}
	r.Confidence = clamp01(r.Confidence)
	return r
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
