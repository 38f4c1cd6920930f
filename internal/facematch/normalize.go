package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// polishLetters covers letters that do not decompose under NFD.
var polishLetters = strings.NewReplacer("ł", "l", "Ł", "L")

// RemoveDiacritics removes diacritical marks from a string (e.g., "Łukasz Żółć" -> "Lukasz Zolc").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return polishLetters.Replace(result)
}

// NormalizePersonName normalizes a name for comparison (lowercase, no diacritics, spaces for dashes).
func NormalizePersonName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// NameMatches reports whether query occurs in "first last" or "last first"
// after normalization. An empty query matches nothing.
func NameMatches(query, firstName, lastName string) bool {
	q := NormalizePersonName(query)
	if q == "" {
		return false
	}
	first := NormalizePersonName(firstName)
	last := NormalizePersonName(lastName)
	return strings.Contains(first+" "+last, q) || strings.Contains(last+" "+first, q)
}
