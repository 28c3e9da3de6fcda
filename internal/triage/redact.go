package triage

import (
	"strings"

	"triage-assistant/internal/domain"
)

const (
	// PIIMarker opens and closes every span the guard model flags.
	PIIMarker   = "~~"
	Placeholder = "[REDACTED]"
)

// Anonymize replaces every ~~span~~ with the placeholder. An opening marker
// without a partner redacts everything after it.
func Anonymize(masked string) string {
	var b strings.Builder
	rest := masked
	for {
		open := strings.Index(rest, PIIMarker)
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:open])
		b.WriteString(Placeholder)

		rest = rest[open+len(PIIMarker):]
		closing := strings.Index(rest, PIIMarker)
		if closing < 0 {
			return b.String()
		}
		rest = rest[closing+len(PIIMarker):]
	}
}

// StripMarkers removes the markers and keeps the flagged text.
func StripMarkers(masked string) string {
	return strings.ReplaceAll(masked, PIIMarker, "")
}

func MarkersBalanced(masked string) bool {
	return strings.Count(masked, PIIMarker)%2 == 0
}

func NewGuardResult(raw, masked string) domain.GuardResult {
	return domain.GuardResult{
		Raw:        raw,
		Masked:     masked,
		Anonymized: Anonymize(masked),
	}
}
