package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/refcheck/refcheck/internal/model"
)

// refColumns defines the ordered per-reference output columns shared by the
// CSV writer and the XLSX References sheet.
var refColumns = []string{
	"Index",
	"Status",
	"Title",
	"Authors",
	"Year",
	"Venue",
	"DOI",
	"ArXiv ID",
	"Found In",
	"Paper URL",
	"Authors Match",
	"Failed DBs",
	"Note",
	"Raw Citation",
}

// WriteJSON writes the canonical run record as indented JSON.
func WriteJSON(w io.Writer, run *Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		return eris.Wrap(err, "report: encode json")
	}
	return nil
}

// WriteCSV writes one row per reference.
func WriteCSV(w io.Writer, run *Run) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(refColumns); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}

	for i, r := range run.Results {
		if err := cw.Write(buildRefRow(i, r)); err != nil {
			return eris.Wrap(err, "report: write csv row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

// buildRefRow maps a ValidationResult to an output row.
func buildRefRow(i int, r model.ValidationResult) []string {
	return []string{
		fmt.Sprintf("%d", i+1),
		string(r.Status),
		r.Reference.Title,
		strings.Join(r.Reference.Authors, "; "),
		r.Reference.Year,
		r.Reference.Venue,
		r.Reference.DOI,
		r.Reference.ArxivID,
		r.ChosenSource,
		r.PaperURL,
		authorsMatchCell(r),
		strings.Join(r.FailedDBs, "; "),
		r.Annotation,
		r.Reference.RawCitation,
	}
}

// authorsMatchCell reports whether the chosen database's author list agreed
// with the parsed one. Empty when either side had no authors to compare.
func authorsMatchCell(r model.ValidationResult) string {
	m := chosenRecord(r)
	if m == nil || len(r.Reference.Authors) == 0 || len(m.Authors) == 0 {
		return ""
	}
	if m.AuthorsMatch {
		return "yes"
	}
	return "no"
}

// chosenRecord returns the matched record from the adapter that verified the
// reference, or nil.
func chosenRecord(r model.ValidationResult) *model.MatchedRecord {
	if r.ChosenSource == "" {
		return nil
	}
	for _, dr := range r.DbResults {
		if dr.DbName == r.ChosenSource && dr.Status == model.DbFound {
			return dr.Matched
		}
	}
	return nil
}

// WriteMarkdown writes a human-readable report.
func WriteMarkdown(w io.Writer, run *Run) error {
	_, err := io.WriteString(w, FormatMarkdown(run))
	return eris.Wrap(err, "report: write markdown")
}

// FormatMarkdown generates the human-readable report text.
func FormatMarkdown(run *Run) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Reference Check: %s\n", run.Source)
	fmt.Fprintf(&b, "Run: %s\n", run.ID)
	fmt.Fprintf(&b, "Created: %s\n\n", run.CreatedAt.Format(time.RFC3339))

	// Summary.
	s := run.Stats
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- References checked: %d\n", s.Total)
	fmt.Fprintf(&b, "- Verified: %d\n", s.Verified)
	fmt.Fprintf(&b, "- Retracted: %d\n", s.Retracted)
	fmt.Fprintf(&b, "- Likely hallucinated: %d\n", s.LikelyHallucinated)
	fmt.Fprintf(&b, "- Unverified: %d\n", s.Unverified)
	if s.Cancelled > 0 {
		fmt.Fprintf(&b, "- Cancelled: %d\n", s.Cancelled)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(&b, "- Skipped (not queryable): %d\n", s.Skipped)
	}
	b.WriteString("\n")

	// Flagged references get full detail.
	b.WriteString("## Flagged References\n")
	flagged := 0
	for i, r := range run.Results {
		if r.Status != model.StatusRetracted && r.Status != model.StatusLikelyHallucinated {
			continue
		}
		flagged++
		writeFlaggedRef(&b, i, r)
	}
	if flagged == 0 {
		b.WriteString("None.\n")
	}
	b.WriteString("\n")

	// Author mismatches are warnings, never verdicts.
	var mismatched []int
	for i, r := range run.Results {
		if authorsMatchCell(r) == "no" {
			mismatched = append(mismatched, i)
		}
	}
	if len(mismatched) > 0 {
		b.WriteString("## Author Mismatches\n")
		for _, i := range mismatched {
			r := run.Results[i]
			fmt.Fprintf(&b, "- [%d] %s: cited %s; %s lists %s\n",
				i+1, r.Reference.ShortTitle(),
				strings.Join(r.Reference.Authors, ", "),
				r.ChosenSource,
				strings.Join(r.FoundAuthors, ", "))
		}
		b.WriteString("\n")
	}

	// One line per reference.
	b.WriteString("## All References\n")
	for i, r := range run.Results {
		writeRefLine(&b, i, r)
	}

	return b.String()
}

// writeFlaggedRef renders the detail block for one flagged reference.
func writeFlaggedRef(b *strings.Builder, i int, r model.ValidationResult) {
	fmt.Fprintf(b, "### [%d] %s\n", i+1, r.Reference.ShortTitle())
	fmt.Fprintf(b, "- Status: %s\n", r.Status)
	if r.Reference.Year != "" {
		fmt.Fprintf(b, "- Year: %s\n", r.Reference.Year)
	}
	if r.Retraction != nil {
		if r.Retraction.Notice != "" {
			fmt.Fprintf(b, "- Retraction notice: %s\n", r.Retraction.Notice)
		}
		if r.Retraction.RetractionDOI != "" {
			fmt.Fprintf(b, "- Retraction DOI: %s\n", r.Retraction.RetractionDOI)
		}
		if r.Retraction.Source != "" {
			fmt.Fprintf(b, "- Reported by: %s\n", r.Retraction.Source)
		}
	}
	if len(r.DbResults) > 0 {
		names := make([]string, 0, len(r.DbResults))
		for _, dr := range r.DbResults {
			names = append(names, dr.DbName)
		}
		fmt.Fprintf(b, "- Databases checked: %s\n", strings.Join(names, ", "))
	}
	if len(r.FailedDBs) > 0 {
		fmt.Fprintf(b, "- Databases unavailable: %s\n", strings.Join(r.FailedDBs, ", "))
	}
	if r.Annotation != "" {
		fmt.Fprintf(b, "- Reviewer note: %s\n", r.Annotation)
	}
	fmt.Fprintf(b, "- Citation: %s\n", r.Reference.RawCitation)
}

// writeRefLine renders the one-line entry for the All References list.
func writeRefLine(b *strings.Builder, i int, r model.ValidationResult) {
	fmt.Fprintf(b, "- [%d] %s: %s", i+1, r.Status, r.Reference.ShortTitle())
	if r.ChosenSource != "" {
		if r.Reference.Year != "" {
			fmt.Fprintf(b, " (%s, %s)", r.ChosenSource, r.Reference.Year)
		} else {
			fmt.Fprintf(b, " (%s)", r.ChosenSource)
		}
	}
	if r.Skipped {
		b.WriteString(" (not queryable)")
	}
	if len(r.FailedDBs) > 0 {
		fmt.Fprintf(b, " [unavailable: %s]", strings.Join(r.FailedDBs, ", "))
	}
	b.WriteString("\n")
}

// WriteXLSX writes a workbook with a Summary sheet and a References sheet
// holding one row per reference.
func WriteXLSX(w io.Writer, run *Run) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	addKV := func(k, v string) {
		row := summary.AddRow()
		row.AddCell().Value = k
		row.AddCell().Value = v
	}
	addKV("Run ID", run.ID)
	addKV("Source", run.Source)
	addKV("Created", run.CreatedAt.Format(time.RFC3339))
	addKV("References checked", fmt.Sprintf("%d", run.Stats.Total))
	addKV("Verified", fmt.Sprintf("%d", run.Stats.Verified))
	addKV("Retracted", fmt.Sprintf("%d", run.Stats.Retracted))
	addKV("Likely hallucinated", fmt.Sprintf("%d", run.Stats.LikelyHallucinated))
	addKV("Unverified", fmt.Sprintf("%d", run.Stats.Unverified))
	addKV("Cancelled", fmt.Sprintf("%d", run.Stats.Cancelled))
	addKV("Skipped", fmt.Sprintf("%d", run.Stats.Skipped))

	refs, err := f.AddSheet("References")
	if err != nil {
		return eris.Wrap(err, "report: add references sheet")
	}
	header := refs.AddRow()
	for _, col := range refColumns {
		header.AddCell().Value = col
	}
	for i, r := range run.Results {
		row := refs.AddRow()
		for _, cell := range buildRefRow(i, r) {
			row.AddCell().Value = cell
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write xlsx")
	}
	return nil
}
