package vat

import (
	"regexp"
	"strings"
)

var separators = strings.NewReplacer(".", "", ",", "", "-", "", " ", "")

// allowedChars guards the canonical identifier before it is sent anywhere.
var allowedChars = regexp.MustCompile(`^[\pL0-9\s.,\-]+$`)

// Normalize turns a raw identifier into its number body: upper-cased, separators
// and ASCII control characters removed, and a leading two-letter prefix dropped.
func Normalize(raw string) string {
	s := separators.Replace(strings.ToUpper(raw))
	s = strings.Map(func(r rune) rune {
		if r < 0x20 {
			return -1
		}
		return r
	}, s)

	if hasLetterPrefix(s) {
		if len(s) <= 2 {
			return ""
		}
		return s[2:]
	}
	return s
}

// hasLetterPrefix reports whether the first two bytes (or the only byte) are ASCII letters.
func hasLetterPrefix(s string) bool {
	if s == "" {
		return false
	}
	n := min(2, len(s))
	for i := 0; i < n; i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}

// Canonical returns the country code followed by the normalized body.
func Canonical(country, raw string) string {
	return country + Normalize(raw)
}

func allowed(canonical string) bool {
	return allowedChars.MatchString(canonical)
}
