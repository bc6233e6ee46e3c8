// Package util provides utility functions for the Sokoflow application.
package util

import (
	"math/rand"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2 for non-cryptographic identifier purposes.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.Intn(16)])
	}

	return builder.String()
}

// GenerateConversationID generates a unique conversation ID with "conv_" prefix.
func GenerateConversationID() string {
	return GenerateRandomID("conv_", 32)
}

// GenerateRequestID generates a unique per-turn request ID with "req_" prefix.
func GenerateRequestID() string {
	return GenerateRandomID("req_", 32)
}

// GenerateTicketID generates a unique handoff ticket ID with "tick_" prefix.
func GenerateTicketID() string {
	return GenerateRandomID("tick_", 32)
}
