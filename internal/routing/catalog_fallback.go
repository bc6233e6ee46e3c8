// Package routing implements the web-catalog fallback policy.
package routing

import (
	"log/slog"
	"strings"
)

// Catalog fallback thresholds.
const (
	// LargeResultThreshold is the match-count estimate above which a vague
	// search hands off to the web catalog.
	LargeResultThreshold = 50
	// VagueReplyMaxLength marks replies shorter than this as vague.
	VagueReplyMaxLength = 10
	// NoWinnerMaxScore is the minimum top score for a clear shortlist winner.
	NoWinnerMaxScore = 0.7
	// NoWinnerSpread is the minimum lead the top score needs over the runner-up.
	NoWinnerSpread = 0.1
	// ManyVariantsThreshold marks an item as needing variant disambiguation.
	ManyVariantsThreshold = 4
	// ShortlistRejectionLimit is the number of rejected shortlists before
	// giving up on inline suggestions.
	ShortlistRejectionLimit = 2
)

// FallbackReason identifies which predicate decided to hand off to the web
// catalog. Reasons are reported in evaluation order for observability.
type FallbackReason string

const (
	ReasonLargeVagueResult      FallbackReason = "large_vague_result"
	ReasonBrowseRequest         FallbackReason = "browse_request"
	ReasonNoClearWinner         FallbackReason = "no_clear_winner"
	ReasonVariantDisambiguation FallbackReason = "variant_disambiguation"
	ReasonShortlistRejected     FallbackReason = "shortlist_rejected"
)

var vaguePhrases = []string{
	"anything",
	"whatever",
	"something nice",
	"not sure",
	"sijui",
	"you choose",
	"surprise me",
	"any",
}

var browsePatterns = []string{
	"see all",
	"browse",
	"list everything",
	"show me everything",
	"full catalog",
	"full catalogue",
	"all products",
	"onyesha zote",
}

// visualCategories lists product categories where a picture beats a text
// shortlist.
var visualCategories = map[string]bool{
	"clothing":  true,
	"shoes":     true,
	"fabric":    true,
	"furniture": true,
	"jewelry":   true,
	"decor":     true,
}

// CatalogSignals carries the per-turn search context the fallback policy
// evaluates. All fields are inputs; the policy never mutates them.
type CatalogSignals struct {
	MessageText              string
	TotalMatchesEstimate     int
	ClarifyingQuestionsAsked int
	TopScores                []float64
	VariantCounts            []int
	Categories               []string
	ShortlistRejections      int

	// Searched marks signals backed by an actual catalog search. Without it
	// the score and variant predicates are skipped: empty scores mean "no
	// search ran", not "the search found nothing decisive".
	Searched bool
}

// EvaluateCatalogFallback decides whether to present a web catalog link
// instead of an inline shortlist. It returns the first matching reason in
// documented order, or false when the inline shortlist should be used.
func EvaluateCatalogFallback(sig CatalogSignals) (FallbackReason, bool) {
	if isLargeAndVague(sig) {
		return reasoned(ReasonLargeVagueResult)
	}
	if wantsFullCatalog(sig.MessageText) {
		return reasoned(ReasonBrowseRequest)
	}
	if sig.Searched && hasNoClearWinner(sig.TopScores) {
		return reasoned(ReasonNoClearWinner)
	}
	if sig.Searched && needsVariantDisambiguation(sig.VariantCounts, sig.Categories) {
		return reasoned(ReasonVariantDisambiguation)
	}
	if sig.ShortlistRejections >= ShortlistRejectionLimit {
		return reasoned(ReasonShortlistRejected)
	}
	return "", false
}

func reasoned(r FallbackReason) (FallbackReason, bool) {
	slog.Debug("EvaluateCatalogFallback: handing off to web catalog", "reason", r)
	return r, true
}

// isLargeAndVague fires when the result set is large and the customer's
// reply after at least one clarifying question is still vague.
func isLargeAndVague(sig CatalogSignals) bool {
	if sig.TotalMatchesEstimate < LargeResultThreshold || sig.ClarifyingQuestionsAsked < 1 {
		return false
	}
	return isVagueReply(sig.MessageText)
}

// isVagueReply matches the vague-phrase list or a very short reply.
func isVagueReply(text string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	if len(trimmed) < VagueReplyMaxLength {
		return true
	}
	for _, phrase := range vaguePhrases {
		if strings.Contains(trimmed, phrase) {
			return true
		}
	}
	return false
}

// wantsFullCatalog matches explicit browse-everything requests.
func wantsFullCatalog(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range browsePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// hasNoClearWinner reports whether the top-3 scored results fail to single
// out one product: fewer than 3 scored results, a weak best score, or a
// best score without a clear lead.
func hasNoClearWinner(scores []float64) bool {
	if len(scores) < 3 {
		return true
	}
	max := scores[0]
	second := -1.0
	for _, s := range scores[1:] {
		if s > max {
			second = max
			max = s
		} else if s > second {
			second = s
		}
	}
	if max < NoWinnerMaxScore {
		return true
	}
	return max-second < NoWinnerSpread
}

// needsVariantDisambiguation reports whether any returned item carries many
// variants or belongs to a visual category.
func needsVariantDisambiguation(variantCounts []int, categories []string) bool {
	for _, n := range variantCounts {
		if n >= ManyVariantsThreshold {
			return true
		}
	}
	for _, c := range categories {
		if visualCategories[strings.ToLower(c)] {
			return true
		}
	}
	return false
}
