// Package pdftext turns PDF documents into plain text for the extraction
// pipeline. Page-level extraction failures are tolerated; a document fails
// only when it cannot be opened or yields no text at all.
package pdftext

import (
	"bytes"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/refcheck/refcheck/internal/model"
)

// ExtractFile extracts the full text of the PDF at path.
func ExtractFile(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", &model.ExtractionError{Path: path, Err: eris.Wrap(err, "open pdf")}
	}
	defer f.Close()

	text, err := readAllPages(r)
	if err != nil {
		return "", &model.ExtractionError{Path: path, Err: err}
	}
	return text, nil
}

// Extract extracts the full text of a PDF held in memory.
func Extract(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &model.ExtractionError{Err: eris.Wrap(err, "open pdf")}
	}
	text, err := readAllPages(r)
	if err != nil {
		return "", &model.ExtractionError{Err: err}
	}
	return text, nil
}

// ReadSource loads text from path: PDFs are extracted, anything else is read
// as plain text. An empty result is an ExtractionError either way.
func ReadSource(path string) (string, error) {
	if strings.EqualFold(strings.TrimPrefix(ext(path), "."), "pdf") {
		return ExtractFile(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &model.ExtractionError{Path: path, Err: err}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return "", &model.ExtractionError{Path: path, Err: eris.New("document is empty")}
	}
	return string(data), nil
}

func readAllPages(r *pdf.Reader) (string, error) {
	var b strings.Builder
	pages := r.NumPage()
	skipped := 0

	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			skipped++
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Damaged or image-only pages are common in scanned papers;
			// keep going and count them.
			skipped++
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	if skipped > 0 {
		zap.L().Debug("pdf pages skipped during extraction",
			zap.Int("skipped", skipped),
			zap.Int("total", pages))
	}

	out := b.String()
	if len(strings.TrimSpace(out)) == 0 {
		return "", eris.New("no extractable text")
	}
	return out, nil
}

// ext returns the lowercase file extension including the dot.
func ext(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return strings.ToLower(path[i:])
	}
	return ""
}
