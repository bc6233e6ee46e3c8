package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/sokoflow/sokoflow/internal/models"
)

func TestHeuristicClassifyIntent(t *testing.T) {
	h := NewHeuristicClassifier()
	ctx := context.Background()

	tests := []struct {
		name       string
		message    string
		wantIntent models.Intent
		wantCommit bool
	}{
		{"human request", "I want to talk to an agent now", models.IntentHumanRequest, true},
		{"human beats sales keywords", "show me a human agent", models.IntentHumanRequest, true},
		{"order status", "where is my order from last week", models.IntentOrderStatus, true},
		{"payment help", "how do I pay with mpesa", models.IntentPaymentHelp, true},
		{"discounts", "any promo running this weekend?", models.IntentDiscountsOffers, true},
		{"preferences", "please unsubscribe me", models.IntentPreferencesConsent, true},
		{"support", "my charger is not working", models.IntentSupportQuestion, true},
		{"product question", "bei gani ya hii simu", models.IntentProductQuestion, true},
		{"sales discovery", "nataka kununua viatu", models.IntentSalesDiscovery, true},
		{"casual", "just saying hi", models.IntentSpamCasual, true},
		{"no match", "xyzzy frobnicate", models.IntentUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.ClassifyIntent(ctx, tt.message)
			if err != nil {
				t.Fatalf("ClassifyIntent returned error: %v", err)
			}
			if result.Intent != tt.wantIntent {
				t.Errorf("intent = %q, want %q", result.Intent, tt.wantIntent)
			}
			if tt.wantCommit && result.Confidence != heuristicHitConfidence {
				t.Errorf("confidence = %v, want %v", result.Confidence, heuristicHitConfidence)
			}
			if !tt.wantCommit && result.Confidence != heuristicMissConfidence {
				t.Errorf("confidence = %v, want %v", result.Confidence, heuristicMissConfidence)
			}
		})
	}
}

func TestHeuristicClassifyLanguage(t *testing.T) {
	h := NewHeuristicClassifier()
	ctx := context.Background()
	allowed := []models.Language{models.LanguageEnglish, models.LanguageSwahili, models.LanguageSheng}

	tests := []struct {
		name    string
		message string
		want    models.Language
	}{
		{"english", "please tell me the price", models.LanguageEnglish},
		{"swahili", "habari, nataka kujua bei tafadhali", models.LanguageSwahili},
		{"sheng", "niaje maze, mambo poa?", models.LanguageSheng},
		{"mixed", "nataka the blue one please", models.LanguageMixed},
		{"no markers defaults to english", "123 456", models.LanguageEnglish},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.ClassifyLanguage(ctx, tt.message, allowed)
			if err != nil {
				t.Fatalf("ClassifyLanguage returned error: %v", err)
			}
			if result.ResponseLanguage != tt.want {
				t.Errorf("language = %q, want %q", result.ResponseLanguage, tt.want)
			}
		})
	}
}

func TestHeuristicClassifyGovernance(t *testing.T) {
	h := NewHeuristicClassifier()
	ctx := context.Background()

	tests := []struct {
		name       string
		message    string
		wantClass  models.GovernorClass
		wantAction models.GovernanceAction
	}{
		{"abuse", "you are a stupid bot", models.GovernorAbuse, models.ActionStop},
		{"spam link", "earn money fast https://scam.example", models.GovernorSpam, models.ActionLimit},
		{"casual", "good morning, habari yako?", models.GovernorCasual, models.ActionRedirect},
		{"business", "I need a size 42 running shoe", models.GovernorBusiness, models.ActionProceed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.ClassifyGovernance(ctx, tt.message)
			if err != nil {
				t.Fatalf("ClassifyGovernance returned error: %v", err)
			}
			if result.Classification != tt.wantClass {
				t.Errorf("classification = %q, want %q", result.Classification, tt.wantClass)
			}
			if result.RecommendedAction != tt.wantAction {
				t.Errorf("action = %q, want %q", result.RecommendedAction, tt.wantAction)
			}
		})
	}
}

// failingClient always fails, standing in for an unreachable OpenAI API.
type failingClient struct {
	calls int
}

var _ ClientInterface = (*failingClient)(nil)

func (f *failingClient) ClassifyIntent(ctx context.Context, messageText string) (models.IntentResult, error) {
	f.calls++
	return models.IntentResult{}, &models.ClassifierFailureError{Classifier: "intent", Err: errors.New("connection refused")}
}

func (f *failingClient) ClassifyLanguage(ctx context.Context, messageText string, allowed []models.Language) (models.LanguageResult, error) {
	f.calls++
	return models.LanguageResult{}, &models.ClassifierFailureError{Classifier: "language", Err: errors.New("connection refused")}
}

func (f *failingClient) ClassifyGovernance(ctx context.Context, messageText string) (models.GovernanceResult, error) {
	f.calls++
	return models.GovernanceResult{}, &models.ClassifierFailureError{Classifier: "governance", Err: errors.New("connection refused")}
}

func (f *failingClient) GenerateReply(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	return "", &models.ClassifierFailureError{Classifier: "reply", Err: errors.New("connection refused")}
}

// fixedClient returns canned results, standing in for a healthy primary.
type fixedClient struct {
	intent models.IntentResult
}

var _ ClientInterface = (*fixedClient)(nil)

func (f *fixedClient) ClassifyIntent(ctx context.Context, messageText string) (models.IntentResult, error) {
	return f.intent, nil
}

func (f *fixedClient) ClassifyLanguage(ctx context.Context, messageText string, allowed []models.Language) (models.LanguageResult, error) {
	return models.LanguageResult{ResponseLanguage: models.LanguageEnglish, Confidence: 0.9}, nil
}

func (f *fixedClient) ClassifyGovernance(ctx context.Context, messageText string) (models.GovernanceResult, error) {
	return models.GovernanceResult{Classification: models.GovernorBusiness, Confidence: 0.9, RecommendedAction: models.ActionProceed}, nil
}

func (f *fixedClient) GenerateReply(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "canned reply", nil
}

func TestFallbackChainUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &fixedClient{intent: models.IntentResult{Intent: models.IntentOrderStatus, Confidence: 0.95}}
	chain := NewFallbackChain(primary, NewHeuristicClassifier())

	result, err := chain.ClassifyIntent(context.Background(), "xyzzy")
	if err != nil {
		t.Fatalf("ClassifyIntent returned error: %v", err)
	}
	if result.Intent != models.IntentOrderStatus || result.Confidence != 0.95 {
		t.Errorf("got %+v, want primary result", result)
	}
}

func TestFallbackChainFallsBackOnFailure(t *testing.T) {
	primary := &failingClient{}
	chain := NewFallbackChain(primary, NewHeuristicClassifier())
	ctx := context.Background()

	result, err := chain.ClassifyIntent(ctx, "where is my order")
	if err != nil {
		t.Fatalf("chain surfaced a classifier error: %v", err)
	}
	if result.Intent != models.IntentOrderStatus {
		t.Errorf("intent = %q, want heuristic fallback result", result.Intent)
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d, want 1", primary.calls)
	}

	gov, err := chain.ClassifyGovernance(ctx, "you are a stupid bot")
	if err != nil {
		t.Fatalf("chain surfaced a classifier error: %v", err)
	}
	if gov.Classification != models.GovernorAbuse {
		t.Errorf("classification = %q, want abuse from heuristic", gov.Classification)
	}
}

func TestFallbackChainNilPrimary(t *testing.T) {
	chain := NewFallbackChain(nil, nil)

	result, err := chain.ClassifyIntent(context.Background(), "any promo today?")
	if err != nil {
		t.Fatalf("ClassifyIntent returned error: %v", err)
	}
	if result.Intent != models.IntentDiscountsOffers {
		t.Errorf("intent = %q, want heuristic result with nil primary", result.Intent)
	}
}
