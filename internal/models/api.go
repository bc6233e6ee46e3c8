// Package models defines the shared API response envelope.
package models

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusAccepted indicates an inbound message was accepted for processing.
	APIStatusAccepted APIStatus = "accepted"
	// APIStatusSkipped indicates an inbound message was dropped as a duplicate.
	APIStatusSkipped APIStatus = "skipped"
	// APIStatusQueued indicates an inbound message was queued for burst coalescing.
	APIStatusQueued APIStatus = "queued"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result any) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// Accepted creates an accepted API response for inbound messages.
func Accepted(result any) APIResponse {
	return APIResponse{Status: string(APIStatusAccepted), Result: result}
}

// Skipped creates a skipped API response for duplicate messages.
func Skipped(message string) APIResponse {
	return APIResponse{Status: string(APIStatusSkipped), Message: message}
}

// Queued creates a queued API response for burst-coalesced messages.
func Queued(message string) APIResponse {
	return APIResponse{Status: string(APIStatusQueued), Message: message}
}
