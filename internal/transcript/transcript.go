// Package transcript normalizes speech-to-text output and derives fallback task titles.
package transcript

import (
	"strings"
	"unicode/utf8"
)

// Ellipsis marks a title shortened by FallbackTitle.
const Ellipsis = "..."

// Transcript is the text recognized for one finalized artifact.
type Transcript struct {
	Text       string
	ArtifactID string
}

// Empty reports whether no usable speech was recognized.
func (t Transcript) Empty() bool {
	return Normalize(t.Text) == ""
}

// Normalize collapses whitespace runs and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// FallbackTitle bounds text to maxRunes, ending with Ellipsis when shortened.
func FallbackTitle(text string, maxRunes int) string {
	normalized := Normalize(text)
	if maxRunes <= 0 || utf8.RuneCountInString(normalized) <= maxRunes {
		return normalized
	}

	keep := maxRunes - utf8.RuneCountInString(Ellipsis)
	if keep <= 0 {
		return string([]rune(normalized)[:maxRunes])
	}

	runes := []rune(normalized)
	head := strings.TrimRight(string(runes[:keep]), " ")
	return head + Ellipsis
}
