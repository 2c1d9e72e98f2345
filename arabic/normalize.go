// Package arabic canonicalizes Arabic text so that matching is insensitive to
// diacritics, alef variants and spacing.
package arabic

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	alef            = 'ا'
	superscriptAlef = '\u0670'
)

// isDiacritic reports whether r is a tashkeel mark (including Quranic
// annotation signs) or the superscript alef.
func isDiacritic(r rune) bool {
	switch {
	case r >= '\u0617' && r <= '\u061A':
		return true
	case r >= '\u064B' && r <= '\u065F':
		return true
	case r == superscriptAlef:
		return true
	}
	return false
}

// unifyAlef maps alef with madda and alef with hamza above/below to plain alef.
func unifyAlef(r rune) rune {
	switch r {
	case 'آ', 'أ', 'إ':
		return alef
	}
	return r
}

// Normalize strips diacritics, unifies alef forms and collapses whitespace.
// It is pure and idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	// Chains are stateful, build one per call.
	t := transform.Chain(runes.Remove(runes.Predicate(isDiacritic)), runes.Map(unifyAlef))
	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}
	return strings.Join(strings.Fields(out), " ")
}

// NormalizeAll normalizes every element of values, dropping entries that
// normalize to the empty string.
func NormalizeAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := Normalize(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}
