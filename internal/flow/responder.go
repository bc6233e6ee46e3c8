package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sokoflow/sokoflow/internal/genai"
	"github.com/sokoflow/sokoflow/internal/models"
	"github.com/sokoflow/sokoflow/internal/tone"
)

// Draft templates produced by journey execution. They are written in
// English; the responder translates or paraphrases per the turn's response
// language. Catalog drafts carry one %s for the catalog link.
const (
	draftSalesDiscovery = "Karibu! What are you shopping for today? Tell me the item and your budget and I'll find options for you."
	draftClarifySales   = "I can help you find that. Could you tell me a bit more, like the brand, size or budget you have in mind?"

	draftCatalogGeneric         = "We have quite a range for that. The easiest way is to browse everything here: %s. Tell me when something catches your eye!"
	draftCatalogBrowse          = "Sure! You can browse our full catalog here: %s. Ping me when you see something you like."
	draftCatalogAfterRejections = "No problem, let's try a different way. Browse the full range here: %s and tell me what looks right."

	draftSupport        = "Sorry about the trouble. I've noted the issue. Can you describe what happened so I can sort it out or pass it to the right person?"
	draftClarifySupport = "I want to make sure I get this right. Could you tell me a bit more about the problem?"
	draftPaymentHelp    = "Happy to help with payment. You can pay via M-Pesa paybill; if a payment failed or went missing, share the transaction code and I'll check it."

	draftOrderStatus = "Let me check on your order. Could you share your order number or the phone number you ordered with?"
	draftOffers      = "Here's what's on offer right now. Would you like me to send the current deals for a specific category?"
	draftPreferences = "You're in control of these messages. Reply STOP to opt out, or tell me your preferred language and I'll switch."

	draftCasualFriendly   = "All good over here! Now, anything from the shop I can help you with?"
	draftRedirectBusiness = "I'm the shop assistant, so I'm best at orders and products. Anything from the store I can help you find?"
	draftSpamWarning      = "This number is for customer service only. Please keep messages about our products and orders."

	draftClarifyGeneric = "I didn't quite catch that. Are you looking to buy something, check an order, or do you need help with a purchase?"
	draftGenericHelp    = "Hi! I can help you shop, check an order, or sort out an issue. What would you like to do?"

	draftEscalation = "I'm connecting you with one of our team members who can help you personally. Your reference is %s, and someone will be with you shortly."
)

// escalationFallbacks is the static containment reply per language, used
// when the pipeline itself failed and no draft exists.
var escalationFallbacks = map[models.Language]string{
	models.LanguageEnglish: "Sorry, something went wrong on our side. I've alerted our team and someone will follow up with you shortly.",
	models.LanguageSwahili: "Samahani, kuna hitilafu upande wetu. Nimejulisha timu yetu na mtu atakufuatilia hivi karibuni.",
	models.LanguageSheng:   "Pole, kuna shida kiasi huku kwetu. Nimeshow team yetu, mtu atakucheki karibuni.",
	models.LanguageMixed:   "Samahani, something went wrong on our side. Our team will follow up with you shortly.",
}

// Responder turns a journey draft into the final customer-facing text,
// paraphrasing into the response language via the generation model. The
// fallback chain guarantees Render degrades to the draft itself rather than
// failing the turn.
type Responder struct {
	generator genai.ClientInterface
}

// NewResponder creates a responder backed by the given generator.
func NewResponder(generator genai.ClientInterface) *Responder {
	return &Responder{generator: generator}
}

const replySystemPrompt = `You are a friendly WhatsApp assistant for a Kenyan shop called %BUSINESS%.
Rewrite the given reply in %LANGUAGE% with a warm, brief tone suitable for WhatsApp.
Keep every fact, reference number and link exactly as given. Reply with the message text only.`

// Render produces the final reply for the turn. English turns skip the
// paraphrase pass; other languages go through the generator so the reply
// matches the customer's language.
func (r *Responder) Render(ctx context.Context, t *turn) (string, error) {
	draft := strings.TrimSpace(t.draft)
	if draft == "" {
		return "", nil
	}
	language := t.state.ResponseLanguage
	if language == "" || language == models.LanguageEnglish {
		return draft, nil
	}

	system := strings.NewReplacer(
		"%BUSINESS%", t.policy.BusinessName,
		"%LANGUAGE%", languageName(language),
	).Replace(replySystemPrompt)
	system += tone.BuildToneGuide(t.policy.ReplyTone)

	reply, err := r.generator.GenerateReply(ctx, system, draft)
	if err != nil {
		slog.Warn("Responder.Render: generation failed, using draft", "error", err,
			"language", language)
		return draft, nil
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return draft, nil
	}
	return reply, nil
}

// EscalationFallback is the static containment reply for a failed turn.
func (r *Responder) EscalationFallback(language models.Language) string {
	if text, ok := escalationFallbacks[language]; ok {
		return text
	}
	return escalationFallbacks[models.LanguageEnglish]
}

func languageName(l models.Language) string {
	switch l {
	case models.LanguageSwahili:
		return "Swahili"
	case models.LanguageSheng:
		return "Sheng (Nairobi slang Swahili)"
	case models.LanguageMixed:
		return "a natural mix of English and Swahili"
	default:
		return "English"
	}
}
