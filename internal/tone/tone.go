// Package tone provides a fixed whitelist of reply tone tags, validation,
// mutual-exclusion enforcement, and prompt-guide construction for tenant
// reply styling.
package tone

import (
	"strings"
)

// AllTags is the hard-coded set of safe reply tone tags a tenant may set.
var AllTags = map[string]bool{
	// Style
	"concise":   true,
	"detailed":  true,
	"formal":    true,
	"casual":    true,
	"no_emojis": true,
	"emojis_ok": true,
	// Stance
	"warm_karibu":          true,
	"neutral_professional": true,
	// Selling
	"upsell_ok": true,
	"no_upsell": true,
}

// mutuallyExclusivePairs defines tags where at most one may be active. The
// first tag of a pair wins when both are present.
var mutuallyExclusivePairs = [][2]string{
	{"concise", "detailed"},
	{"formal", "casual"},
	{"no_emojis", "emojis_ok"},
	{"warm_karibu", "neutral_professional"},
	{"no_upsell", "upsell_ok"},
}

// ValidateTags strips unknown and duplicate tags and enforces mutual
// exclusion, preserving input order.
func ValidateTags(tags []string) []string {
	var cleaned []string
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.TrimSpace(strings.ToLower(t))
		if AllTags[t] && !seen[t] {
			cleaned = append(cleaned, t)
			seen[t] = true
		}
	}

	for _, pair := range mutuallyExclusivePairs {
		if seen[pair[0]] && seen[pair[1]] {
			cleaned = remove(cleaned, pair[1])
			delete(seen, pair[1])
		}
	}
	return cleaned
}

// BuildToneGuide produces a compact instruction snippet for injection into
// reply-generation system prompts. It returns an empty string when there are
// no active tags.
func BuildToneGuide(tags []string) string {
	if len(tags) == 0 {
		return ""
	}

	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}

	var b strings.Builder
	b.WriteString("\n<TONE POLICY>\nStyle the reply for this shop:\n")

	if set["concise"] {
		b.WriteString("- Be concise: short sentences, minimal filler.\n")
	}
	if set["detailed"] {
		b.WriteString("- Give slightly more explanation, but avoid rambling.\n")
	}
	if set["formal"] {
		b.WriteString("- Use formal diction and professional register.\n")
	}
	if set["casual"] {
		b.WriteString("- Use casual, friendly language.\n")
	}
	if set["no_emojis"] {
		b.WriteString("- Do NOT use emojis.\n")
	} else if set["emojis_ok"] {
		b.WriteString("- Emojis are welcome where appropriate.\n")
	}

	hasStance := false
	if set["warm_karibu"] {
		b.WriteString("- Adopt a warm, welcoming karibu stance.\n")
		hasStance = true
	}
	if set["neutral_professional"] {
		b.WriteString("- Keep a neutral, professional stance.\n")
		hasStance = true
	}
	if !hasStance {
		b.WriteString("- Keep a neutral, professional stance.\n")
	}

	if set["upsell_ok"] {
		b.WriteString("- You may suggest one related product where natural.\n")
	}
	if set["no_upsell"] {
		b.WriteString("- Do not suggest additional products beyond what was asked.\n")
	}

	b.WriteString("- NEVER mirror hostility, sarcasm, insults, or unsafe language.\n")
	b.WriteString("</TONE POLICY>\n")

	return b.String()
}

func remove(tags []string, target string) []string {
	out := tags[:0]
	for _, t := range tags {
		if t != target {
			out = append(out, t)
		}
	}
	return out
}
