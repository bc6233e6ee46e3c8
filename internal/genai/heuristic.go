// Package genai provides the heuristic keyword classifier used when the
// OpenAI classifier is unreachable or over budget. The pipeline never
// blocks on classifier unavailability.
package genai

import (
	"context"
	"strings"

	"github.com/sokoflow/sokoflow/internal/models"
	"github.com/sokoflow/sokoflow/internal/routing"
)

// Heuristic confidence levels. Keyword hits commit; misses stay below the
// clarify threshold so the router asks nothing on a blind guess.
const (
	heuristicHitConfidence  = 0.75
	heuristicMissConfidence = 0.30
)

// intentKeywords is evaluated in order; the first matching rule wins.
var intentKeywords = []struct {
	intent   models.Intent
	keywords []string
}{
	{models.IntentHumanRequest, []string{"agent", "human", "representative", "call me"}},
	{models.IntentOrderStatus, []string{"where is my order", "track", "order status", "delivery", "nimeagiza"}},
	{models.IntentPaymentHelp, []string{"mpesa", "payment", "paybill", "how do i pay", "pay for"}},
	{models.IntentDiscountsOffers, []string{"discount", "offer", "promo", "punguzo", "sale"}},
	{models.IntentPreferencesConsent, []string{"unsubscribe", "stop messaging", "opt out", "change language"}},
	{models.IntentSupportQuestion, []string{"not working", "problem", "issue", "complain", "broken", "help me with"}},
	{models.IntentProductQuestion, []string{"how much", "price", "bei gani", "do you have", "in stock", "size"}},
	{models.IntentSalesDiscovery, []string{"looking for", "i want to buy", "nataka kununua", "show me", "natafuta"}},
	{models.IntentSpamCasual, []string{"just saying hi", "how are you", "mambo vipi", "habari yako"}},
}

var swahiliMarkers = []string{"habari", "asante", "nataka", "bei", "ngapi", "sawa", "karibu", "nunua", "tafadhali"}

var shengMarkers = []string{"niaje", "poa", "fiti", "maze", "mbogi", "doh"}

var englishMarkers = []string{"the", "please", "want", "how", "where", "price", "order"}

var abuseMarkers = []string{"stupid", "idiot", "useless fool", "hate you", "mjinga"}

var spamMarkers = []string{"http://", "https://", "earn money fast", "click this link", "forward this"}

var casualMarkers = []string{"how are you", "good morning", "habari yako", "mambo", "niaje", "lol"}

// HeuristicClassifier is the keyword fallback classifier. It is pure and
// never fails, which makes it a safe last resort behind the LLM classifiers.
type HeuristicClassifier struct{}

var _ ClientInterface = (*HeuristicClassifier)(nil)

// NewHeuristicClassifier creates the keyword fallback classifier.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

// ClassifyIntent matches the message against the keyword table.
func (h *HeuristicClassifier) ClassifyIntent(ctx context.Context, messageText string) (models.IntentResult, error) {
	text := strings.ToLower(messageText)
	for _, rule := range intentKeywords {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return models.IntentResult{
					Intent:           rule.intent,
					Confidence:       heuristicHitConfidence,
					Notes:            "keyword match: " + kw,
					SuggestedJourney: routing.MappedJourney(rule.intent),
				}, nil
			}
		}
	}
	return models.IntentResult{
		Intent:           models.IntentUnknown,
		Confidence:       heuristicMissConfidence,
		Notes:            "no keyword match",
		SuggestedJourney: models.JourneyUnknown,
	}, nil
}

// ClassifyLanguage counts language markers in the message.
func (h *HeuristicClassifier) ClassifyLanguage(ctx context.Context, messageText string, allowed []models.Language) (models.LanguageResult, error) {
	text := strings.ToLower(messageText)
	sw := countMarkers(text, swahiliMarkers)
	sheng := countMarkers(text, shengMarkers)
	en := countMarkers(text, englishMarkers)

	var language models.Language
	switch {
	case sheng > 0 && sheng >= sw:
		language = models.LanguageSheng
	case sw > 0 && en > 0:
		language = models.LanguageMixed
	case sw > 0:
		language = models.LanguageSwahili
	default:
		language = models.LanguageEnglish
	}

	confidence := heuristicHitConfidence
	if sw+sheng+en == 0 {
		confidence = heuristicMissConfidence
	}
	return models.LanguageResult{
		ResponseLanguage:          language,
		Confidence:                confidence,
		ShouldAskLanguageQuestion: confidence <= heuristicMissConfidence,
	}, nil
}

// ClassifyGovernance tags the message with the marker tables; anything
// unmatched is business.
func (h *HeuristicClassifier) ClassifyGovernance(ctx context.Context, messageText string) (models.GovernanceResult, error) {
	text := strings.ToLower(messageText)
	switch {
	case countMarkers(text, abuseMarkers) > 0:
		return models.GovernanceResult{Classification: models.GovernorAbuse, Confidence: heuristicHitConfidence, RecommendedAction: models.ActionStop}, nil
	case countMarkers(text, spamMarkers) > 0:
		return models.GovernanceResult{Classification: models.GovernorSpam, Confidence: heuristicHitConfidence, RecommendedAction: models.ActionLimit}, nil
	case countMarkers(text, casualMarkers) > 0:
		return models.GovernanceResult{Classification: models.GovernorCasual, Confidence: heuristicHitConfidence, RecommendedAction: models.ActionRedirect}, nil
	default:
		return models.GovernanceResult{Classification: models.GovernorBusiness, Confidence: heuristicMissConfidence, RecommendedAction: models.ActionProceed}, nil
	}
}

// GenerateReply returns the user prompt unchanged; templated journey text is
// already customer-ready when the LLM is unavailable.
func (h *HeuristicClassifier) GenerateReply(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return userPrompt, nil
}

func countMarkers(text string, markers []string) int {
	var n int
	for _, m := range markers {
		if strings.Contains(text, m) {
			n++
		}
	}
	return n
}
