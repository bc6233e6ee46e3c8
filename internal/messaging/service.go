// Package messaging provides outbound WhatsApp delivery and the inbound
// message processor that feeds the turn pipeline.
package messaging

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// DefaultChannelTimeout bounds how long an emit may block before dropping.
const DefaultChannelTimeout = 5 * time.Second

// ErrServiceStopped indicates an operation was attempted on a stopped service.
var ErrServiceStopped = errors.New("messaging service is stopped")

// phoneNumberRegex strips everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier. Each service implements its own rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Stop stops background processing and cleans up resources.
	Stop() error
}

// CanonicalizePhone strips a phone number to digits and validates length.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", errors.New("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", errors.New("invalid phone number: no digits found")
	}
	if len(canonical) < 6 {
		return "", errors.New("invalid phone number: too short (minimum 6 digits required)")
	}
	return canonical, nil
}
