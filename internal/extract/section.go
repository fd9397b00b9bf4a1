package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/refcheck/refcheck/internal/model"
)

// FindReferencesSection locates the span of text holding the reference list.
//
// The LAST header match wins: bibliographies sit near the end of a paper, and
// earlier matches are usually table-of-contents entries. The section ends at
// the first end-marker match after the header, else at end of document. When
// no header matches, the final FallbackFraction of the document is used and
// the confidence is marked SectionFallback.
//
// Returns model.ErrNoReferencesFound only when the document is empty or
// shorter than the minimal length threshold; that aborts the whole run.
func FindReferencesSection(text string, p *Patterns) (model.ReferencesSection, error) {
	if len(strings.TrimSpace(text)) < p.MinDocLen {
		return model.ReferencesSection{}, eris.Wrap(model.ErrNoReferencesFound, "document empty or too short")
	}

	headers := p.Header.FindAllStringIndex(text, -1)
	if len(headers) > 0 {
		last := headers[len(headers)-1]
		start := last[1]

		end := len(text)
		if m := p.EndMarker.FindStringIndex(text[start:]); m != nil {
			end = start + m[0]
		}
		if start >= end {
			// Header at the very end of the document; nothing follows it.
			return fallbackSection(text, p)
		}
		return model.ReferencesSection{Start: start, End: end, Confidence: model.SectionMatched}, nil
	}

	return fallbackSection(text, p)
}

// fallbackSection returns the final FallbackFraction of the document.
func fallbackSection(text string, p *Patterns) (model.ReferencesSection, error) {
	start := int(float64(len(text)) * (1 - p.FallbackFraction))
	start = alignToRune(text, start)
	if start >= len(text) {
		start = 0
	}
	return model.ReferencesSection{Start: start, End: len(text), Confidence: model.SectionFallback}, nil
}

// alignToRune moves a byte offset forward to the next rune boundary so the
// section span never splits a multi-byte character.
func alignToRune(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// SectionText slices the located section out of the document.
func SectionText(text string, sec model.ReferencesSection) string {
	return text[sec.Start:sec.End]
}
