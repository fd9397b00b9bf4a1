package extract

import (
	"regexp"
	"strings"

	"github.com/refcheck/refcheck/internal/model"
)

// blankLineRe separates publisher-style reference blocks.
var blankLineRe = regexp.MustCompile(`\n\s*\n`)

// SegmentReferences splits section text into individual citation strings.
//
// Strategies are tried in a fixed order; a strategy succeeds when it yields at
// least MinSegments segments longer than MinSegmentLen, and the first success
// wins. There is no scoring or merging across strategies. If every strategy
// fails, the whole section becomes one segment, so segmentation never fails
// outright. Given identical text and patterns the output is always identical.
func SegmentReferences(section string, p *Patterns) []model.CitationSegment {
	type strategy struct {
		name  model.StrategyName
		split func(string) []string
	}
	strategies := []strategy{
		{model.StrategyBracketed, func(s string) []string { return splitAtMarkers(s, p.Bracketed) }},
		{model.StrategyNumbered, func(s string) []string { return splitAtMarkers(s, p.Numbered) }},
		{model.StrategyAuthorYear, func(s string) []string { return splitAtMarkers(s, p.AuthorYear) }},
		{model.StrategyInitials, func(s string) []string { return splitInitials(s, p) }},
		{model.StrategyPublisher, splitBlankLines},
	}

	for _, st := range strategies {
		parts := filterSegments(st.split(section), p.MinSegmentLen)
		if len(parts) >= p.MinSegments {
			return toSegments(parts, st.name)
		}
	}

	// Guaranteed fallback: the entire section as one segment.
	return toSegments([]string{strings.TrimSpace(section)}, model.StrategyWholeSection)
}

// splitAtMarkers cuts the text at every match start of the marker pattern.
// Text before the first marker is preamble and is discarded.
func splitAtMarkers(text string, marker *regexp.Regexp) []string {
	locs := marker.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		parts = append(parts, text[loc[0]:end])
	}
	return parts
}

// splitInitials handles unnumbered ML-style bibliographies of the form
// "I. Surname and I. Surname. Title. Venue, Year." A boundary is a sentence
// period followed by a newline and a new author-initials block. Requires
// MinInitialsRefs boundary matches before claiming the format, since the
// pattern is loose enough to misfire on prose.
func splitInitials(text string, p *Patterns) []string {
	ms := p.Initials.FindAllStringSubmatchIndex(text, -1)
	if len(ms) < p.MinInitialsRefs {
		return nil
	}

	// Submatch index layout: [full0 full1 g1s g1e g2s g2e]. Each reference
	// runs through the terminating period captured in group 1.
	var parts []string
	parts = append(parts, text[:ms[0][3]])

	for i, m := range ms {
		start := m[4] // group 2: the author-initials block opening the next reference
		end := len(text)
		if i+1 < len(ms) {
			end = ms[i+1][3] // through the terminating period of this reference
		}
		if start < end {
			parts = append(parts, text[start:end])
		}
	}
	return parts
}

// splitBlankLines treats blank-line separated blocks as references.
func splitBlankLines(text string) []string {
	return blankLineRe.Split(text, -1)
}

// filterSegments trims each candidate and drops those at or below minLen.
func filterSegments(parts []string, minLen int) []string {
	var out []string
	for _, part := range parts {
		t := strings.TrimSpace(part)
		if len(t) > minLen {
			out = append(out, t)
		}
	}
	return out
}

// toSegments assigns contiguous indices starting at 0.
func toSegments(parts []string, name model.StrategyName) []model.CitationSegment {
	segs := make([]model.CitationSegment, len(parts))
	for i, part := range parts {
		segs[i] = model.CitationSegment{Index: i, Text: part, Strategy: name}
	}
	return segs
}
