// Package report renders validation runs as JSON, CSV, Markdown, or XLSX
// files. The JSON form is the canonical run record: it round-trips through
// Load so a saved run can be re-rendered into any other format later.
package report

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/refcheck/refcheck/internal/model"
)

// Run is one complete validation run: the source document, per-reference
// verdicts, and summary stats. IDs are assigned at creation and identify the
// run in saved files and the history store.
type Run struct {
	ID        string                   `json:"id"`
	Source    string                   `json:"source"`
	CreatedAt time.Time                `json:"created_at"`
	Stats     model.CheckStats         `json:"stats"`
	Results   []model.ValidationResult `json:"results"`
}

// NewRun stamps results with a fresh run ID and summary stats.
func NewRun(source string, results []model.ValidationResult) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Source:    source,
		CreatedAt: time.Now().UTC(),
		Stats:     model.Summarize(results),
		Results:   results,
	}
}

// Load reads a run previously written by WriteJSON.
func Load(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "report: read run file")
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, eris.Wrap(err, "report: parse run file")
	}
	if run.ID == "" {
		return nil, eris.New("report: run file has no id")
	}

	return &run, nil
}

// Format selects an output renderer.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatXLSX     Format = "xlsx"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatCSV, FormatMarkdown, FormatXLSX:
		return Format(s), nil
	default:
		return "", eris.Errorf("report: unknown format %q (want json, csv, markdown, or xlsx)", s)
	}
}

// Write renders the run to w in the given format.
func Write(w io.Writer, run *Run, format Format) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, run)
	case FormatCSV:
		return WriteCSV(w, run)
	case FormatMarkdown:
		return WriteMarkdown(w, run)
	case FormatXLSX:
		return WriteXLSX(w, run)
	default:
		return eris.Errorf("report: unknown format %q", format)
	}
}

// Save renders the run to a file, creating or truncating it.
func Save(path string, run *Run, format Format) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "report: create output file")
	}
	defer f.Close() //nolint:errcheck

	if err := Write(f, run, format); err != nil {
		return err
	}
	return f.Close()
}
