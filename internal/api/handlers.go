// Package api provides HTTP handlers for Sokoflow endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sokoflow/sokoflow/internal/messaging"
	"github.com/sokoflow/sokoflow/internal/models"
)

// twilioWebhookHandler handles POST /webhook/twilio. Twilio posts inbound
// WhatsApp messages as form data; the tenant comes from the tenant query
// parameter or falls back to the server default.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.twilioWebhookHandler: webhook received", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form data"))
		return
	}

	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		tenantID = s.defaultTenant
	}
	from := strings.TrimPrefix(r.FormValue("From"), "whatsapp:")
	body := r.FormValue("Body")
	messageSID := r.FormValue("MessageSid")

	if from == "" || body == "" {
		slog.Warn("Server.twilioWebhookHandler: missing fields", "from", from != "", "body", body != "")
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required fields: From, Body"))
		return
	}

	outcome, err := s.processor.Handle(r.Context(), messaging.InboundMessage{
		TenantID:  tenantID,
		MessageID: messageSID,
		Phone:     from,
		Text:      body,
	})
	if err != nil {
		slog.Warn("Server.twilioWebhookHandler: message rejected", "error", err, "tenantID", tenantID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	slog.Info("Server.twilioWebhookHandler: inbound message handled",
		"tenantID", tenantID, "outcome", outcome)
	// Twilio expects a 2xx quickly; replies go out through the REST API,
	// not the webhook response.
	writeOutcome(w, outcome)
}

// injectMessageHandler handles POST /messages: a JSON inbound message from
// a non-Twilio channel or a test harness.
func (s *Server) injectMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.injectMessageHandler: processing message", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var msg messaging.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		slog.Warn("Server.injectMessageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if msg.TenantID == "" {
		msg.TenantID = s.defaultTenant
	}

	outcome, err := s.processor.Handle(r.Context(), msg)
	if err != nil {
		slog.Warn("Server.injectMessageHandler: message rejected", "error", err, "tenantID", msg.TenantID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	writeOutcome(w, outcome)
}

// conversationStateHandler handles GET /conversations/state.
func (s *Server) conversationStateHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.conversationStateHandler: lookup", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	conversationID := r.URL.Query().Get("conversation_id")
	if tenantID == "" || conversationID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required parameters: tenant_id, conversation_id"))
		return
	}

	state, err := s.st.LoadState(r.Context(), tenantID, conversationID)
	if err != nil {
		if errors.Is(err, models.ErrStateNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
			return
		}
		slog.Error("Server.conversationStateHandler: load failed", "error", err,
			"tenantID", tenantID, "conversationID", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load conversation state"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(state))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "sokoflow"}))
}

// writeOutcome maps a processor outcome to the response envelope.
func writeOutcome(w http.ResponseWriter, outcome messaging.Outcome) {
	switch outcome {
	case messaging.OutcomeQueued:
		writeJSONResponse(w, http.StatusAccepted, models.Queued("Message queued with burst"))
	default:
		writeJSONResponse(w, http.StatusAccepted, models.Accepted(map[string]string{"outcome": string(outcome)}))
	}
}
