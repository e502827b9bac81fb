package normalizer

import (
	"unicode"
	"unicode/utf8"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripDiacritics removes combining marks ("Peñasco" -> "Penasco").
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	out, _, _ := transform.String(t, s)
	return out
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

// FoldASCII maps s to ASCII. Marks are stripped first so that common Latin
// letters keep their base form; anything still outside ASCII is transliterated.
func FoldASCII(s string) string {
	if isASCII(s) {
		return s
	}
	s = StripDiacritics(s)
	if isASCII(s) {
		return s
	}
	return unidecode.Unidecode(s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
