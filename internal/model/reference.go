package model

// SectionConfidence describes how the references section was located.
type SectionConfidence string

const (
	// SectionMatched means a header pattern matched.
	SectionMatched SectionConfidence = "matched"
	// SectionFallback means no header matched and the tail fraction of the
	// document was used instead.
	SectionFallback SectionConfidence = "fallback"
)

// ReferencesSection is the half-open span [Start, End) of the document text
// that holds the reference list. Start < End always holds.
type ReferencesSection struct {
	Start      int               `json:"start"`
	End        int               `json:"end"`
	Confidence SectionConfidence `json:"confidence"`
}

// Len returns the section length in bytes.
func (s ReferencesSection) Len() int { return s.End - s.Start }

// StrategyName identifies the segmentation strategy that produced a segment.
type StrategyName string

const (
	StrategyBracketed    StrategyName = "bracketed"     // IEEE "[1] ..."
	StrategyNumbered     StrategyName = "numbered"      // "1. ..."
	StrategyAuthorYear   StrategyName = "authoryear"    // AAAI "Surname, I. ..."
	StrategyInitials     StrategyName = "initials"      // ML "I. Surname and I. Surname. ..."
	StrategyPublisher    StrategyName = "publisher"     // blank-line separated blocks
	StrategyWholeSection StrategyName = "whole-section" // guaranteed fallback
)

// CitationSegment is one raw candidate reference string. Indices are unique,
// ascending, and contiguous from 0 within a segmentation run.
type CitationSegment struct {
	Index    int          `json:"index"`
	Text     string       `json:"text"`
	Strategy StrategyName `json:"strategy"`
}

// TitleRejectReason explains why an extracted title failed validation.
// The reference is kept either way; the reason only lowers confidence.
type TitleRejectReason string

const (
	RejectVenueOnly    TitleRejectReason = "venue_only"
	RejectAuthorList   TitleRejectReason = "author_list"
	RejectNonReference TitleRejectReason = "non_reference"
	RejectTooLong      TitleRejectReason = "too_long"
	RejectTooShort     TitleRejectReason = "too_short"
	RejectNoTitle      TitleRejectReason = "no_title"
)

// FieldConfidence carries per-field extraction confidence for one reference.
type FieldConfidence struct {
	LowConfidence bool              `json:"low_confidence"`
	TitleReject   TitleRejectReason `json:"title_reject,omitempty"`
	TitleQuoted   bool              `json:"title_quoted,omitempty"`
	AcademicURL   bool              `json:"academic_url,omitempty"`
	NonAcademic   bool              `json:"non_academic_url,omitempty"`
}

// Reference is one structured bibliographic reference, derived from exactly
// one CitationSegment. Immutable once produced; missing fields are empty,
// never an error.
type Reference struct {
	Title       string          `json:"title,omitempty"`
	Authors     []string        `json:"authors,omitempty"`
	Venue       string          `json:"venue,omitempty"`
	Year        string          `json:"year,omitempty"`
	DOI         string          `json:"doi,omitempty"`
	ArxivID     string          `json:"arxiv_id,omitempty"`
	URL         string          `json:"url,omitempty"`
	RawCitation string          `json:"raw_citation"`
	Confidence  FieldConfidence `json:"confidence"`
}

// Queryable reports whether the reference carries enough signal to be looked
// up in a scholarly database (a usable title or a hard identifier).
func (r Reference) Queryable() bool {
	if r.DOI != "" || r.ArxivID != "" {
		return true
	}
	return r.Title != "" && r.Confidence.TitleReject == ""
}

// ShortTitle returns the title truncated for log lines and progress events.
func (r Reference) ShortTitle() string {
	const max = 60
	t := r.Title
	if t == "" {
		t = r.RawCitation
	}
	runes := []rune(t)
	if len(runes) > max {
		return string(runes[:max-1]) + "…"
	}
	return t
}
