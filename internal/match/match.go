// Package match holds the text comparison rules shared by the bibliographic
// database adapters, the query cache, and the offline store: title
// normalization, title equivalence, and author consistency.
package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// minContainmentLen is the shortest normalized title allowed to match by
// prefix containment alone.
const minContainmentLen = 20

// stripMarks removes diacritics: decompose, drop combining marks, recompose.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeTitle reduces text to a canonical comparison form: diacritics
// stripped, lowercased, punctuation dropped, whitespace collapsed. Also used
// for cache keys and author name comparison.
func NormalizeTitle(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// TitlesMatch compares a cited title against a database title after
// normalization. Besides exact equality, a word-boundary prefix match with
// enough overlap counts, so a title truncated at a subtitle still matches
// the full record.
func TitlesMatch(cited, found string) bool {
	a, b := NormalizeTitle(cited), NormalizeTitle(found)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < minContainmentLen {
		return false
	}
	return strings.HasPrefix(longer, shorter+" ")
}

// Surname extracts the family name from a cited author string, which may
// arrive as "Vaswani, A.", "A. Vaswani", "Ashish Vaswani", "LeCun Y", or a
// bare surname.
func Surname(author string) string {
	a := strings.TrimSpace(author)
	if a == "" {
		return ""
	}
	if head, _, ok := strings.Cut(a, ","); ok {
		return strings.TrimSpace(head)
	}
	fields := strings.Fields(a)
	for i := len(fields) - 1; i >= 0; i-- {
		if !isInitials(fields[i]) {
			return fields[i]
		}
	}
	return strings.TrimRight(fields[len(fields)-1], ".")
}

// isInitials reports whether s consists only of single-letter runs such as
// "A.", "M.-W.", or "Y".
func isInitials(s string) bool {
	letters, run := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			run++
			if run > 1 {
				return false
			}
			letters++
			continue
		}
		run = 0
	}
	return letters > 0
}

// AuthorsMatch reports whether a cited author list is consistent with the
// names a database returned: at least half of the cited surnames must appear
// among the found names. An empty cited list matches vacuously; an empty
// found list matches nothing.
func AuthorsMatch(cited, found []string) bool {
	if len(cited) == 0 {
		return true
	}
	if len(found) == 0 {
		return false
	}

	foundNorm := make([]string, 0, len(found))
	for _, f := range found {
		foundNorm = append(foundNorm, " "+NormalizeTitle(f)+" ")
	}

	hits := 0
	for _, c := range cited {
		sn := NormalizeTitle(Surname(c))
		if sn == "" {
			continue
		}
		for _, f := range foundNorm {
			if strings.Contains(f, " "+sn+" ") {
				hits++
				break
			}
		}
	}
	return hits >= (len(cited)+1)/2
}
