package types

import (
	"strings"
	"unicode/utf8"
)

var sentenceBreaks = []string{". ", ".\n", "! ", "? "}

// TruncateAtSentence cuts text to at most max characters, preferring a
// sentence boundary past the first 40 characters, falling back to a hard
// cut with an ellipsis.
func TruncateAtSentence(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	best := -1
	for _, sep := range sentenceBreaks {
		if idx := strings.LastIndex(cut, sep); idx > best {
			best = idx
		}
	}
	if best > 40 {
		return strings.TrimSpace(cut[:best+1])
	}
	if max > 3 {
		return strings.TrimSpace(cut[:max-3]) + "..."
	}
	return cut
}

// TruncateChars hard-cuts text to at most max bytes, backing up so a
// multi-byte UTF-8 sequence is never split.
func TruncateChars(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// EnforceCardLimits applies the summary/content caps and guarantees the
// summary is never a pure prefix of the content text.
func EnforceCardLimits(summary, content string) (string, string) {
	if len(content) > MaxContentChars {
		content = content[:MaxContentChars]
	}
	if len(summary) > MaxSummaryChars {
		summary = TruncateAtSentence(summary, MaxSummaryChars)
	}
	if summary != "" && strings.HasPrefix(content, summary) {
		if len(summary) > MaxSummaryChars-3 {
			summary = summary[:MaxSummaryChars-3]
		}
		summary = strings.TrimRight(summary, " \t\n") + "..."
		if strings.HasPrefix(content, summary) {
			summary = strings.TrimSuffix(summary, "...") + "…"
		}
	}
	return summary, content
}
