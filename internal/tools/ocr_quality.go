package tools

import (
	"strings"
	"unicode"
)

// OCR quality gate thresholds.
const (
	ocrMinChars      = 30
	ocrMinWords      = 3
	ocrMinConfidence = 40.0
	ocrMinAlphaRatio = 0.30
	ocrMaxGarbage    = 0.50
	ocrMaxCharRun    = 5
	ocrKeepAnywayLen = 20
)

// ocrFailureTokens mark engine diagnostics leaking into the text.
var ocrFailureTokens = []string{
	"estimating resolution",
	"empty page",
	"error during processing",
}

// MeaningfulOCRText reports whether OCR output is good enough to stand
// as the card's text on its own. avgConfidence < 0 means the engine did
// not report one.
func MeaningfulOCRText(text string, avgConfidence float64) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < ocrMinChars {
		return false
	}
	if countWords(trimmed) < ocrMinWords {
		return false
	}
	if avgConfidence >= 0 && avgConfidence < ocrMinConfidence {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, token := range ocrFailureTokens {
		if strings.Contains(lower, token) {
			return false
		}
	}

	var alpha, garbage, total int
	for _, r := range trimmed {
		total++
		switch {
		case unicode.IsLetter(r):
			alpha++
		case unicode.IsDigit(r) || unicode.IsSpace(r):
		default:
			garbage++
		}
	}
	if total == 0 {
		return false
	}
	if float64(alpha)/float64(total) < ocrMinAlphaRatio {
		return false
	}
	if float64(garbage)/float64(total) > ocrMaxGarbage {
		return false
	}
	if longestCharRun(trimmed) >= ocrMaxCharRun {
		return false
	}
	return true
}

// KeepOCRTextAnyway accepts OCR output that failed the strict gate but
// still carries enough signal: sparse text in technical diagrams beats
// a generic caption.
func KeepOCRTextAnyway(text string) bool {
	nonWS := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			nonWS++
		}
	}
	return nonWS >= ocrKeepAnywayLen
}

// countWords counts runs of two or more letters.
func countWords(s string) int {
	count := 0
	run := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			run++
			continue
		}
		if run >= 2 {
			count++
		}
		run = 0
	}
	if run >= 2 {
		count++
	}
	return count
}

// longestCharRun finds the longest run of one repeated non-space char.
func longestCharRun(s string) int {
	longest, run := 0, 0
	var prev rune
	for _, r := range s {
		if unicode.IsSpace(r) {
			run = 0
			prev = 0
			continue
		}
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
