package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		hexLength  int
		wantPrefix string
		wantLength int // expected total length: prefix + hexLength
	}{
		{
			name:       "conversation ID format",
			prefix:     "conv_",
			hexLength:  32,
			wantPrefix: "conv_",
			wantLength: 37,
		},
		{
			name:       "request ID format",
			prefix:     "req_",
			hexLength:  32,
			wantPrefix: "req_",
			wantLength: 36,
		},
		{
			name:       "custom prefix",
			prefix:     "test_",
			hexLength:  16,
			wantPrefix: "test_",
			wantLength: 21,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomID(tt.prefix, tt.hexLength)

			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("GenerateRandomID() = %v, want prefix %v", got, tt.wantPrefix)
			}
			if len(got) != tt.wantLength {
				t.Errorf("GenerateRandomID() length = %v, want %v", len(got), tt.wantLength)
			}
			if !isValidHex(got[len(tt.wantPrefix):]) {
				t.Errorf("GenerateRandomID() hex part = %v is not valid hex", got[len(tt.wantPrefix):])
			}
		})
	}
}

func TestGenerateRandomHex(t *testing.T) {
	if got := GenerateRandomHex(0); got != "" {
		t.Errorf("GenerateRandomHex(0) = %q, want empty", got)
	}
	if got := GenerateRandomHex(-3); got != "" {
		t.Errorf("GenerateRandomHex(-3) = %q, want empty", got)
	}
	got := GenerateRandomHex(40)
	if len(got) != 40 {
		t.Errorf("length = %d, want 40", len(got))
	}
	if !isValidHex(got) {
		t.Errorf("GenerateRandomHex() = %v is not valid hex", got)
	}
}

func TestGeneratedIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateTicketID()
		if !strings.HasPrefix(id, "tick_") {
			t.Fatalf("ticket ID %q missing prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func isValidHex(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}
