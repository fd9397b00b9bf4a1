package extract

import (
	"regexp"
	"strings"

	"github.com/refcheck/refcheck/internal/model"
)

// Title validation patterns. These catch extraction failures seen across
// large conference bibliographies: venue text trailing a question-mark title,
// venue names grabbed as titles, author lists grabbed as titles, and
// checklist/acknowledgment noise. Rejected titles are kept on the reference
// with a low-confidence flag; the segment is never dropped.
var (
	venueAfterPunctRe = regexp.MustCompile(
		`[?!]\s+(?:International|Proceedings|Advances|Conference|Workshop|Symposium|Association|` +
			`The\s+\d{4}\s+Conference|Nations|Annual|IEEE|ACM|USENIX|AAAI|NeurIPS|ICML|ICLR|` +
			`CVPR|ICCV|ECCV|ACL|EMNLP|NAACL)`)

	venueOnlyRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:SIAM|IEEE|ACM|PNAS)\s+(?:Journal|Transactions|Review)`),
		regexp.MustCompile(`(?i)^(?:Journal|Transactions|Proceedings)\s+(?:of|on)\s+`),
		regexp.MustCompile(`(?i)^Advances\s+in\s+Neural`),
	}

	// "AL, Andrew Ahn, Nic Becker," style organization author lists.
	authorInitialsListRe = regexp.MustCompile(
		`^[A-Z]{1,3},\s+[A-Z][a-z]+\s+[A-Z][a-z]+,\s+[A-Z][a-z]+\s+[A-Z][a-z]+`)

	// "B. Hassibi, D. G. Stork, and G. J. Wolff" style author lists.
	mlAuthorListRe = regexp.MustCompile(
		`^[A-Z]\.(?:\s*[A-Z]\.)?\s+[A-Z][a-z]+,\s+[A-Z]\.(?:\s*[A-Z]\.)?\s+[A-Z][a-z]+,\s+and\s+[A-Z]\.`)

	nonReferenceRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^[•\-]\s+(?:The answer|Released models|If you are using)`),
		regexp.MustCompile(`(?i)^We gratefully acknowledge`),
	}
)

// truncateTitleAtVenue cuts a title that runs into a venue name after a
// question mark or exclamation point, keeping the punctuation.
func truncateTitleAtVenue(title string) string {
	if m := venueAfterPunctRe.FindStringIndex(title); m != nil {
		return strings.TrimSpace(title[:m[0]+1])
	}
	return title
}

// titleRejectReason validates an extracted title. An empty return means the
// title is acceptable.
func titleRejectReason(title string, p *Patterns) model.TitleRejectReason {
	if title == "" {
		return model.RejectNoTitle
	}
	for _, re := range venueOnlyRes {
		if re.MatchString(title) {
			return model.RejectVenueOnly
		}
	}
	if authorInitialsListRe.MatchString(title) || mlAuthorListRe.MatchString(title) {
		return model.RejectAuthorList
	}
	for _, re := range nonReferenceRes {
		if re.MatchString(title) {
			return model.RejectNonReference
		}
	}
	if len(title) > p.MaxTitleLen {
		return model.RejectTooLong
	}
	if len(strings.Fields(title)) < p.MinTitleWords {
		return model.RejectTooShort
	}
	return ""
}
