// Package genai provides GenAI-backed message classification and reply
// generation using the OpenAI API.
//
// Classifier outputs are sanitized at this boundary; downstream code never
// re-checks enum membership or confidence ranges.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sokoflow/sokoflow/internal/models"
)

// ClientInterface defines the classification and generation operations the
// pipeline consumes. Implementations must return sanitized results.
type ClientInterface interface {
	// ClassifyIntent classifies what the customer wants this turn.
	ClassifyIntent(ctx context.Context, messageText string) (models.IntentResult, error)

	// ClassifyLanguage selects the response language for the turn.
	ClassifyLanguage(ctx context.Context, messageText string, allowed []models.Language) (models.LanguageResult, error)

	// ClassifyGovernance tags the turn as business, casual, spam or abuse.
	ClassifyGovernance(ctx context.Context, messageText string) (models.GovernanceResult, error)

	// GenerateReply produces the customer-facing response text.
	GenerateReply(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const intentSystemPrompt = `You classify one inbound WhatsApp message from a commerce customer.
Respond with JSON: {"intent": one of [sales_discovery, product_question, support_question,
order_status, discounts_offers, preferences_consent, payment_help, human_request,
spam_casual, unknown], "confidence": 0..1, "notes": short string,
"suggested_journey": one of [sales, support, orders, offers, prefs, governance, unknown]}.`

const languageSystemPrompt = `You detect the language of one inbound WhatsApp message.
Customers write in English, Swahili, Sheng or a mix. Respond with JSON:
{"response_language": one of [en, sw, sheng, mixed], "confidence": 0..1,
"should_ask_language_question": bool}.`

const governanceSystemPrompt = `You tag one inbound WhatsApp message for a commerce assistant.
Respond with JSON: {"classification": one of [business, casual, spam, abuse],
"confidence": 0..1, "recommended_action": one of [proceed, redirect, limit, stop, handoff]}.`

// Client wraps the OpenAI chat completion API for classification.
type Client struct {
	client openai.Client
	model  openai.ChatModel
}

var _ ClientInterface = (*Client)(nil)

// NewClient initializes a client using the OPENAI_API_KEY environment variable.
func NewClient() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	return NewClientWithKey(apiKey), nil
}

// NewClientWithKey initializes a client with an explicit API key.
func NewClientWithKey(apiKey string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModelGPT4oMini,
	}
}

// ClassifyIntent classifies what the customer wants this turn.
func (c *Client) ClassifyIntent(ctx context.Context, messageText string) (models.IntentResult, error) {
	var result models.IntentResult
	if err := c.completeJSON(ctx, "intent", intentSystemPrompt, messageText, &result); err != nil {
		return models.IntentResult{}, err
	}
	return result.Sanitize(), nil
}

// ClassifyLanguage selects the response language for the turn.
func (c *Client) ClassifyLanguage(ctx context.Context, messageText string, allowed []models.Language) (models.LanguageResult, error) {
	prompt := languageSystemPrompt
	if len(allowed) > 0 {
		names := make([]string, len(allowed))
		for i, l := range allowed {
			names[i] = string(l)
		}
		prompt += "\nThe tenant only supports: " + strings.Join(names, ", ") + "."
	}
	var result models.LanguageResult
	if err := c.completeJSON(ctx, "language", prompt, messageText, &result); err != nil {
		return models.LanguageResult{}, err
	}
	return result.Sanitize(), nil
}

// ClassifyGovernance tags the turn as business, casual, spam or abuse.
func (c *Client) ClassifyGovernance(ctx context.Context, messageText string) (models.GovernanceResult, error) {
	var result models.GovernanceResult
	if err := c.completeJSON(ctx, "governance", governanceSystemPrompt, messageText, &result); err != nil {
		return models.GovernanceResult{}, err
	}
	return result.Sanitize(), nil
}

// GenerateReply produces the customer-facing response text.
func (c *Client) GenerateReply(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", &models.ClassifierFailureError{Classifier: "reply", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &models.ClassifierFailureError{Classifier: "reply", Err: fmt.Errorf("no choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}

// completeJSON runs one JSON-mode completion and decodes it into out.
func (c *Client) completeJSON(ctx context.Context, classifier, systemPrompt, messageText string, out any) error {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(messageText),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return &models.ClassifierFailureError{Classifier: classifier, Err: err}
	}
	if len(resp.Choices) == 0 {
		return &models.ClassifierFailureError{Classifier: classifier, Err: fmt.Errorf("no choices returned")}
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), out); err != nil {
		return &models.ClassifierFailureError{Classifier: classifier, Err: fmt.Errorf("malformed JSON output: %w", err)}
	}
	return nil
}
