package extract

import (
	"regexp"
	"strings"

	"github.com/refcheck/refcheck/internal/model"
)

// Internal parsing helpers. These are structural heuristics rather than
// format-specific patterns, so they are not part of the override set.
var (
	leadingMarkerRe = regexp.MustCompile(`^\s*(?:\[\d{1,3}\]|\d{1,3}\.)\s*`)
	leadingYearRe   = regexp.MustCompile(`^\(?(?:19|20)\d{2}[a-z]?\)?[.,:]?\s*`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
	dehyphenRe      = regexp.MustCompile(`(\p{Ll})-\n\s*(\p{Ll})`)
	yearRe          = regexp.MustCompile(`\b((?:19|20)\d{2})[a-z]?\b`)
	versionSuffixRe = regexp.MustCompile(`v\d+$`)
	initialRe       = regexp.MustCompile(`\b([A-Z])\.`)

	// Abbreviations whose periods must not end a sentence during splitting.
	abbrevRe = regexp.MustCompile(`(?i)\b(et al|e\.g|i\.e|cf|vs|vol|no|pp|ed|eds|proc|conf|trans)\.`)

	// "Surname, I." or "Surname, I. I." author blocks opening a citation.
	surnameFirstBlockRe = regexp.MustCompile(
		`^((?:[A-Z][a-zA-Z'\x{00C0}-\x{024F}-]+,\s+(?:[A-Z]\.[\s-]*)+(?:,\s*|;\s*|,?\s+and\s+|\s*&\s*)?)+(?:et\s+al\.?\s*)?)`)

	// "I. Surname" or "I.-J. Surname" author blocks opening a citation.
	initialsFirstBlockRe = regexp.MustCompile(
		`^((?:[A-Z]\.(?:[\s-]*[A-Z]\.)*\s+[A-Z][a-zA-Z'\x{00C0}-\x{024F}-]+(?:,\s*|;\s*|,?\s+and\s+|\s*&\s*)?)+(?:et\s+al\.?\s*)?)\.?\s+`)

	// Binds "Surname, I." into one token before connector splitting.
	surnameInitialsRe = regexp.MustCompile(`([A-Z][a-zA-Z'\x{00C0}-\x{024F}-]+),\s+((?:[A-Z]\.[\s-]*)+)`)

	// Initials-first blocks carry no surname commas, so binding must not run.
	initialsLeadRe = regexp.MustCompile(`^[A-Z]\.`)

	etAlRe = regexp.MustCompile(`,?\s*et\s+al\.?`)
)

// ParseReferences converts citation segments into structured references. This
// step is total: every segment, however malformed, yields exactly one
// Reference; missing fields stay empty with confidence flags, never an error.
// Segments are parsed independently with no shared mutable state.
func ParseReferences(segments []model.CitationSegment, p *Patterns) []model.Reference {
	refs := make([]model.Reference, len(segments))
	for i, seg := range segments {
		refs[i] = parseOne(seg, p)
	}
	return refs
}

func parseOne(seg model.CitationSegment, p *Patterns) model.Reference {
	ref := model.Reference{RawCitation: seg.Text}

	text := normalizeLigatures(seg.Text, p)
	text = dehyphenRe.ReplaceAllString(text, "$1$2")
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	text = leadingMarkerRe.ReplaceAllString(text, "")

	ref.DOI = extractDOI(text, p)
	ref.ArxivID = extractArxiv(text, p)
	ref.Year = extractYear(text)

	if url := p.URL.FindString(text); url != "" {
		ref.URL = strings.TrimRight(url, ".,;")
		switch {
		case p.AcademicURL.MatchString(ref.URL):
			ref.Confidence.AcademicURL = true
		case p.NonAcademicURL.MatchString(ref.URL):
			ref.Confidence.NonAcademic = true
		}
	}

	title, authors, venue, quoted := extractFields(text, p)
	ref.Title = cleanTitle(title, p)
	ref.Venue = venue
	ref.Authors = splitAuthors(authors, p)
	ref.Confidence.TitleQuoted = quoted

	if reason := titleRejectReason(ref.Title, p); reason != "" {
		ref.Confidence.TitleReject = reason
		ref.Confidence.LowConfidence = true
	}

	return ref
}

// extractFields separates one flattened citation into title, author block,
// and venue. Quoted titles win; otherwise the title is the text between the
// author block and the first venue-cutoff match.
func extractFields(text string, p *Patterns) (title, authors, venue string, quoted bool) {
	if m := p.QuotedTitle.FindStringSubmatchIndex(text); m != nil {
		title = text[m[2]:m[3]]
		authors = strings.TrimSpace(text[:m[0]])
		venue = cleanVenue(firstClause(text[m[1]:]))
		return title, authors, venue, true
	}

	rest := text
	if m := surnameFirstBlockRe.FindStringSubmatch(text); m != nil {
		authors = m[1]
		rest = text[len(m[0]):]
	} else if m := initialsFirstBlockRe.FindStringSubmatch(text); m != nil {
		authors = m[1]
		rest = text[len(m[0]):]
	}
	rest = strings.TrimLeft(rest, ". ")
	// Author-year citations put "(2017)." between authors and title.
	rest = leadingYearRe.ReplaceAllString(rest, "")

	if loc := p.VenueCutoff.FindStringIndex(rest); loc != nil {
		title = rest[:loc[0]]
		venue = cleanVenue(firstClause(rest[loc[0]:]))
		return title, authors, venue, false
	}

	parts := splitOnPeriods(rest)
	if len(parts) > 0 {
		title = parts[0]
	}
	if len(parts) > 1 {
		venue = cleanVenue(parts[1])
	}
	return title, authors, venue, false
}

// cleanTitle trims punctuation, strips a trailing subtitle when enough words
// remain, and truncates venue text trailing a ?/! title.
func cleanTitle(title string, p *Patterns) string {
	title = strings.Trim(title, " .,;:")
	title = truncateTitleAtVenue(title)
	if m := p.Subtitle.FindStringIndex(title); m != nil {
		head := strings.TrimSpace(title[:m[0]])
		if len(strings.Fields(head)) >= p.MinTitleWords {
			title = head
		}
	}
	return strings.TrimSpace(title)
}

// firstClause returns the first sentence-like clause of s.
func firstClause(s string) string {
	parts := splitOnPeriods(s)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// cleanVenue strips years and stray punctuation from a venue clause.
func cleanVenue(s string) string {
	v := yearRe.ReplaceAllString(s, "")
	v = strings.Trim(v, " .,;:()")
	if runes := []rune(v); len(runes) > 120 {
		v = string(runes[:120])
	}
	return v
}

// splitOnPeriods splits at ". " boundaries while protecting abbreviations and
// single-letter initials from false splits.
func splitOnPeriods(text string) []string {
	safe := abbrevRe.ReplaceAllString(text, "${1}\x00")
	safe = initialRe.ReplaceAllString(safe, "${1}\x00")

	parts := strings.Split(safe, ". ")

	var out []string
	for _, p := range parts {
		p = strings.ReplaceAll(p, "\x00", ".")
		p = strings.TrimRight(p, ".")
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitAuthors splits an author block on connector patterns, truncated to
// MaxAuthors. "Surname, I." pairs are bound into one token first so the comma
// between surname and initials survives the split.
func splitAuthors(block string, p *Patterns) []string {
	block = strings.TrimSpace(block)
	if block == "" {
		return nil
	}
	block = etAlRe.ReplaceAllString(block, "")
	if !initialsLeadRe.MatchString(block) {
		block = surnameInitialsRe.ReplaceAllString(block, "$1\x00$2")
	}

	parts := p.AuthorSplit.Split(block, -1)
	var out []string
	for _, part := range parts {
		name := strings.ReplaceAll(part, "\x00", ", ")
		name = strings.Trim(name, " ,;:")
		if len(name) < 2 {
			continue
		}
		out = append(out, name)
		if len(out) == p.MaxAuthors {
			break
		}
	}
	return out
}

// normalizeLigatures applies the ligature table by sequential replacement.
func normalizeLigatures(s string, p *Patterns) string {
	for _, l := range p.ligatures {
		s = strings.ReplaceAll(s, l.from, l.to)
	}
	return s
}

// extractYear prefers the last plausible year. Publication years trail the
// citation, while earlier matches are often arXiv identifiers or page numbers.
func extractYear(text string) string {
	ms := yearRe.FindAllStringSubmatch(text, -1)
	if len(ms) == 0 {
		return ""
	}
	return ms[len(ms)-1][1]
}

func extractDOI(text string, p *Patterns) string {
	doi := p.DOI.FindString(text)
	return strings.TrimRight(doi, ".,;)")
}

func extractArxiv(text string, p *Patterns) string {
	m := p.Arxiv.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return versionSuffixRe.ReplaceAllString(m[1], "")
}
