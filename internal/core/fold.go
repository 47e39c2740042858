package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldAccents strips combining marks: "Ñuño José" -> "Nuno Jose".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeKey produces the stored form of a natural-key field:
// cleaned, whitespace collapsed, uppercased.
func NormalizeKey(s string) string {
	return strings.ToUpper(CleanCell(s))
}

// FoldKey produces a comparison key: NormalizeKey without accents.
// Two names are the same person when their fold keys are equal.
func FoldKey(s string) string {
	return NormalizeKey(FoldAccents(s))
}

// SameName reports whether a and b are equal ignoring case, accents and
// spacing. Empty names never match.
func SameName(a, b string) bool {
	fa := FoldKey(a)
	return fa != "" && fa == FoldKey(b)
}
