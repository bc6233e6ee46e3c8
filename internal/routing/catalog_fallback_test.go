package routing

import "testing"

// decisiveScores is a top-3 with one clear winner, used to keep predicate (c)
// quiet in tests that target the other predicates.
var decisiveScores = []float64{0.95, 0.4, 0.3}

func TestCatalogFallback_LargeVagueResult(t *testing.T) {
	sig := CatalogSignals{
		MessageText:              "anything is fine",
		TotalMatchesEstimate:     50,
		ClarifyingQuestionsAsked: 1,
		TopScores:                decisiveScores,
		Searched:                 true,
	}
	reason, ok := EvaluateCatalogFallback(sig)
	if !ok || reason != ReasonLargeVagueResult {
		t.Errorf("expected large_vague_result, got %q ok=%v", reason, ok)
	}
}

func TestCatalogFallback_LargeResultNeedsClarifyingQuestionFirst(t *testing.T) {
	sig := CatalogSignals{
		MessageText:              "anything is fine",
		TotalMatchesEstimate:     120,
		ClarifyingQuestionsAsked: 0,
		TopScores:                decisiveScores,
		Searched:                 true,
	}
	if reason, ok := EvaluateCatalogFallback(sig); ok {
		t.Errorf("predicate (a) requires a prior clarifying question, got %q", reason)
	}
}

func TestCatalogFallback_ShortReplyIsVague(t *testing.T) {
	sig := CatalogSignals{
		MessageText:              "ok",
		TotalMatchesEstimate:     80,
		ClarifyingQuestionsAsked: 2,
		TopScores:                decisiveScores,
		Searched:                 true,
	}
	reason, ok := EvaluateCatalogFallback(sig)
	if !ok || reason != ReasonLargeVagueResult {
		t.Errorf("replies under %d chars are vague, got %q ok=%v", VagueReplyMaxLength, reason, ok)
	}
}

func TestCatalogFallback_BrowseRequest(t *testing.T) {
	sig := CatalogSignals{
		MessageText: "can I see all your dresses please",
		TopScores:   decisiveScores,
		Searched:    true,
	}
	reason, ok := EvaluateCatalogFallback(sig)
	if !ok || reason != ReasonBrowseRequest {
		t.Errorf("expected browse_request, got %q ok=%v", reason, ok)
	}
}

func TestCatalogFallback_NoClearWinner(t *testing.T) {
	cases := []struct {
		name   string
		scores []float64
	}{
		{"weak top score", []float64{0.65, 0.5, 0.4}},
		{"tight spread", []float64{0.85, 0.80, 0.4}},
		{"fewer than three results", []float64{0.9, 0.3}},
		{"no scores", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := CatalogSignals{MessageText: "blue running shoes in size 42 please", TopScores: tc.scores, Searched: true}
			reason, ok := EvaluateCatalogFallback(sig)
			if !ok || reason != ReasonNoClearWinner {
				t.Errorf("expected no_clear_winner, got %q ok=%v", reason, ok)
			}
		})
	}
}

func TestCatalogFallback_NoSearchSkipsScorePredicates(t *testing.T) {
	// A turn with no catalog backend produces unsearched signals: empty
	// scores and variants must not read as "no clear winner".
	sig := CatalogSignals{MessageText: "blue running shoes in size 42 please"}
	if reason, ok := EvaluateCatalogFallback(sig); ok {
		t.Errorf("unsearched signals must not trigger fallback, got %q", reason)
	}

	// Text-only and conversation-level predicates still apply without a search.
	sig.MessageText = "show me everything you have"
	reason, ok := EvaluateCatalogFallback(sig)
	if !ok || reason != ReasonBrowseRequest {
		t.Errorf("expected browse_request without a search, got %q ok=%v", reason, ok)
	}
	sig.MessageText = "none of those work for me"
	sig.ShortlistRejections = 2
	reason, ok = EvaluateCatalogFallback(sig)
	if !ok || reason != ReasonShortlistRejected {
		t.Errorf("expected shortlist_rejected without a search, got %q ok=%v", reason, ok)
	}
}

func TestCatalogFallback_VariantDisambiguation(t *testing.T) {
	t.Run("many variants", func(t *testing.T) {
		sig := CatalogSignals{
			MessageText:   "blue running shoes in size 42 please",
			TopScores:     decisiveScores,
			VariantCounts: []int{1, 4},
			Searched:      true,
		}
		reason, ok := EvaluateCatalogFallback(sig)
		if !ok || reason != ReasonVariantDisambiguation {
			t.Errorf("expected variant_disambiguation, got %q ok=%v", reason, ok)
		}
	})
	t.Run("visual category", func(t *testing.T) {
		sig := CatalogSignals{
			MessageText: "blue running shoes in size 42 please",
			TopScores:   decisiveScores,
			Categories:  []string{"Shoes"},
			Searched:    true,
		}
		reason, ok := EvaluateCatalogFallback(sig)
		if !ok || reason != ReasonVariantDisambiguation {
			t.Errorf("expected variant_disambiguation, got %q ok=%v", reason, ok)
		}
	})
}

func TestCatalogFallback_ShortlistRejections(t *testing.T) {
	sig := CatalogSignals{
		MessageText:         "blue running shoes in size 42 please",
		TopScores:           decisiveScores,
		ShortlistRejections: 2,
		Searched:            true,
	}
	reason, ok := EvaluateCatalogFallback(sig)
	if !ok || reason != ReasonShortlistRejected {
		t.Errorf("expected shortlist_rejected, got %q ok=%v", reason, ok)
	}

	sig.ShortlistRejections = 1
	if reason, ok := EvaluateCatalogFallback(sig); ok {
		t.Errorf("one rejection should not trigger fallback, got %q", reason)
	}
}

func TestCatalogFallback_OrderOfReasons(t *testing.T) {
	// Multiple predicates true at once: the first in documented order wins.
	sig := CatalogSignals{
		MessageText:              "anything, show me everything",
		TotalMatchesEstimate:     200,
		ClarifyingQuestionsAsked: 1,
		TopScores:                []float64{0.2, 0.2, 0.2},
		ShortlistRejections:      5,
		Searched:                 true,
	}
	reason, ok := EvaluateCatalogFallback(sig)
	if !ok || reason != ReasonLargeVagueResult {
		t.Errorf("expected first matching reason large_vague_result, got %q", reason)
	}
}
