// Package genai provides the fallback chain combining the LLM classifier
// with the heuristic keyword classifier.
package genai

import (
	"context"
	"log/slog"

	"github.com/sokoflow/sokoflow/internal/models"
)

// FallbackChain tries the primary classifier and falls back to the
// heuristic classifier on any failure. Classifier errors are recovered
// here and never surface past this boundary.
type FallbackChain struct {
	primary  ClientInterface
	fallback ClientInterface
}

var _ ClientInterface = (*FallbackChain)(nil)

// NewFallbackChain builds a chain. A nil primary degrades to the fallback
// alone, which keeps the pipeline running without an API key.
func NewFallbackChain(primary ClientInterface, fallback ClientInterface) *FallbackChain {
	if fallback == nil {
		fallback = NewHeuristicClassifier()
	}
	return &FallbackChain{primary: primary, fallback: fallback}
}

// ClassifyIntent tries the primary classifier, then the heuristic.
func (f *FallbackChain) ClassifyIntent(ctx context.Context, messageText string) (models.IntentResult, error) {
	if f.primary != nil {
		result, err := f.primary.ClassifyIntent(ctx, messageText)
		if err == nil {
			return result, nil
		}
		slog.Warn("FallbackChain.ClassifyIntent: primary failed, using heuristic", "error", err)
	}
	return f.fallback.ClassifyIntent(ctx, messageText)
}

// ClassifyLanguage tries the primary classifier, then the heuristic.
func (f *FallbackChain) ClassifyLanguage(ctx context.Context, messageText string, allowed []models.Language) (models.LanguageResult, error) {
	if f.primary != nil {
		result, err := f.primary.ClassifyLanguage(ctx, messageText, allowed)
		if err == nil {
			return result, nil
		}
		slog.Warn("FallbackChain.ClassifyLanguage: primary failed, using heuristic", "error", err)
	}
	return f.fallback.ClassifyLanguage(ctx, messageText, allowed)
}

// ClassifyGovernance tries the primary classifier, then the heuristic.
func (f *FallbackChain) ClassifyGovernance(ctx context.Context, messageText string) (models.GovernanceResult, error) {
	if f.primary != nil {
		result, err := f.primary.ClassifyGovernance(ctx, messageText)
		if err == nil {
			return result, nil
		}
		slog.Warn("FallbackChain.ClassifyGovernance: primary failed, using heuristic", "error", err)
	}
	return f.fallback.ClassifyGovernance(ctx, messageText)
}

// GenerateReply tries the primary generator, then the heuristic passthrough.
func (f *FallbackChain) GenerateReply(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if f.primary != nil {
		reply, err := f.primary.GenerateReply(ctx, systemPrompt, userPrompt)
		if err == nil {
			return reply, nil
		}
		slog.Warn("FallbackChain.GenerateReply: primary failed, using fallback", "error", err)
	}
	return f.fallback.GenerateReply(ctx, systemPrompt, userPrompt)
}
