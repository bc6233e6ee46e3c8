package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sokoflow/sokoflow/internal/governance"
	"github.com/sokoflow/sokoflow/internal/models"
	"github.com/sokoflow/sokoflow/internal/routing"
)

// CatalogSearcher supplies product-match signals for the sales journey. The
// orchestrator only consumes aggregate signals; ranking stays in the catalog.
type CatalogSearcher interface {
	// Search estimates matches for a free-text query within a tenant catalog.
	Search(ctx context.Context, tenantID, query string) (routing.CatalogSignals, error)
}

// SetCatalog installs a catalog backend. Without one the sales journey
// falls back on message-text signals alone.
func (o *Orchestrator) SetCatalog(c CatalogSearcher) { o.catalog = c }

// executeJourney dispatches to the journey selected by the router and
// returns the draft reply text for response generation.
func (o *Orchestrator) executeJourney(ctx context.Context, t *turn) (string, error) {
	switch t.state.Journey {
	case models.JourneySales:
		return o.executeSales(ctx, t)
	case models.JourneySupport:
		return o.executeSupport(t)
	case models.JourneyOrders:
		return o.executeOrders(t)
	case models.JourneyOffers:
		return o.executeOffers(t)
	case models.JourneyPrefs:
		return o.executePrefs(t)
	case models.JourneyGovernance:
		return o.executeGovernance(t)
	default:
		return o.executeUnknown(t)
	}
}

// executeSales drives product discovery. Catalog signals feed the fallback
// policy: when browsing beats questioning, the reply points at the catalog
// link instead of asking another clarifying question.
func (o *Orchestrator) executeSales(ctx context.Context, t *turn) (string, error) {
	signals := routing.CatalogSignals{
		MessageText:         t.req.MessageText,
		ShortlistRejections: t.state.ShortlistRejections,
	}
	if o.catalog != nil {
		fetched, err := o.catalog.Search(ctx, t.state.TenantID, t.req.MessageText)
		if err != nil {
			// Catalog outage degrades to text-only signals, not a dead turn.
			slog.Warn("Orchestrator.executeSales: catalog search failed", "error", err,
				"tenantID", t.state.TenantID)
		} else {
			fetched.MessageText = t.req.MessageText
			fetched.ShortlistRejections = t.state.ShortlistRejections
			fetched.Searched = true
			signals = fetched
		}
	}

	if reason, fallback := routing.EvaluateCatalogFallback(signals); fallback {
		slog.Debug("Orchestrator.executeSales: catalog fallback", "reason", reason,
			"tenantID", t.state.TenantID, "conversationID", t.state.ConversationID)
		t.state.NeedsClarification = false
		if t.route != nil {
			t.route.ShouldClarify = false
		}
		return o.catalogFallbackDraft(t, reason), nil
	}

	if t.state.NeedsClarification {
		return draftClarifySales, nil
	}
	return draftSalesDiscovery, nil
}

func (o *Orchestrator) catalogFallbackDraft(t *turn, reason routing.FallbackReason) string {
	link := t.policy.CatalogURL
	if link == "" {
		link = "our full catalog"
	}
	switch reason {
	case routing.ReasonShortlistRejected:
		return fmt.Sprintf(draftCatalogAfterRejections, link)
	case routing.ReasonBrowseRequest:
		return fmt.Sprintf(draftCatalogBrowse, link)
	default:
		return fmt.Sprintf(draftCatalogGeneric, link)
	}
}

func (o *Orchestrator) executeSupport(t *turn) (string, error) {
	if t.state.NeedsClarification {
		return draftClarifySupport, nil
	}
	if t.state.Intent == models.IntentPaymentHelp {
		return draftPaymentHelp, nil
	}
	return draftSupport, nil
}

func (o *Orchestrator) executeOrders(t *turn) (string, error) {
	return draftOrderStatus, nil
}

func (o *Orchestrator) executeOffers(t *turn) (string, error) {
	return draftOffers, nil
}

func (o *Orchestrator) executePrefs(t *turn) (string, error) {
	return draftPreferences, nil
}

// executeGovernance handles escalations, redirects and casual chat. The
// reply depends on why the turn landed here, carried by the route decision
// and governance outcome.
func (o *Orchestrator) executeGovernance(t *turn) (string, error) {
	if t.state.EscalationRequired {
		return fmt.Sprintf(draftEscalation, t.state.HandoffTicketID), nil
	}
	switch t.gov.Outcome {
	case governance.OutcomeFriendlyCasual:
		return draftCasualFriendly, nil
	case governance.OutcomeRedirectToBusiness:
		return draftRedirectBusiness, nil
	case governance.OutcomeSpamWarning:
		return draftSpamWarning, nil
	case governance.OutcomeDisengage, governance.OutcomeRateLimited:
		return "", nil
	default:
		return draftRedirectBusiness, nil
	}
}

// executeUnknown covers the silent-unknown route: low-confidence turns get a
// gentle generic prompt rather than a wrong guess.
func (o *Orchestrator) executeUnknown(t *turn) (string, error) {
	if t.state.NeedsClarification {
		return draftClarifyGeneric, nil
	}
	return draftGenericHelp, nil
}
