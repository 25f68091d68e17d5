package services

import (
	"strings"
	"unicode"
)

const slugSeparators = "~`!@#$%^&*()+={}[];:'\"<>.,/\\?"

// NormalizeSlug lowercases s and replaces each separator or whitespace
// character with one hyphen. Runs are not collapsed.
func NormalizeSlug(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(slugSeparators, r) {
			return '-'
		}
		return r
	}, strings.ToLower(s))
}
