package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refcheck/refcheck/internal/model"
)

func TestFindReferencesSection_HeaderMatch(t *testing.T) {
	doc := "Introduction\n\nWe study reference extraction at some length in this paper.\n\n" +
		"References\n" +
		"[1] A. Author. A paper title of note. Journal, 2020.\n" +
		"[2] B. Author. Another paper title of note. Journal, 2021.\n\n" +
		"Appendix A\nExtra material that is not part of the bibliography.\n"

	sec, err := FindReferencesSection(doc, DefaultPatterns())
	require.NoError(t, err)
	assert.Equal(t, model.SectionMatched, sec.Confidence)

	body := SectionText(doc, sec)
	assert.Contains(t, body, "[1]")
	assert.Contains(t, body, "[2]")
	assert.NotContains(t, body, "Introduction")
	assert.NotContains(t, body, "Appendix")
}

func TestFindReferencesSection_LastHeaderWins(t *testing.T) {
	doc := "Contents\nReferences\nIntroduction and body text that runs long enough to pass the length check.\n\n" +
		"References\n[1] A. Author. Study of many things. Journal, 2019.\n"

	sec, err := FindReferencesSection(doc, DefaultPatterns())
	require.NoError(t, err)
	assert.Equal(t, model.SectionMatched, sec.Confidence)
	assert.Equal(t, len(doc), sec.End)

	body := SectionText(doc, sec)
	assert.Contains(t, body, "[1]")
	assert.NotContains(t, body, "Introduction")
}

func TestFindReferencesSection_EmptyDoc(t *testing.T) {
	_, err := FindReferencesSection("", DefaultPatterns())
	assert.ErrorIs(t, err, model.ErrNoReferencesFound)
}

func TestFindReferencesSection_TooShortDoc(t *testing.T) {
	_, err := FindReferencesSection("tiny document", DefaultPatterns())
	assert.ErrorIs(t, err, model.ErrNoReferencesFound)
}

func TestFindReferencesSection_FallbackWhenNoHeader(t *testing.T) {
	doc := strings.Repeat("a", 100)
	sec, err := FindReferencesSection(doc, DefaultPatterns())
	require.NoError(t, err)
	assert.Equal(t, model.SectionFallback, sec.Confidence)
	assert.Equal(t, 30, sec.Start)
	assert.Equal(t, 100, sec.End)
}

func TestFindReferencesSection_FallbackRuneAligned(t *testing.T) {
	doc := "a" + strings.Repeat("€", 40)
	sec, err := FindReferencesSection(doc, DefaultPatterns())
	require.NoError(t, err)
	assert.Equal(t, model.SectionFallback, sec.Confidence)
	assert.True(t, utf8.RuneStart(doc[sec.Start]))
	r, _ := utf8.DecodeRuneInString(SectionText(doc, sec))
	assert.NotEqual(t, utf8.RuneError, r)
}

func TestFindReferencesSection_HeaderAtVeryEnd(t *testing.T) {
	doc := strings.Repeat("body text ", 10) + "\nReferences"
	sec, err := FindReferencesSection(doc, DefaultPatterns())
	require.NoError(t, err)
	assert.Equal(t, model.SectionFallback, sec.Confidence)
}

func TestFindReferencesSection_HeaderOverride(t *testing.T) {
	doc := "Resumen\n" + strings.Repeat("Texto del artículo sobre un tema interesante. ", 20) +
		"\nBibliografía\n" +
		"[1] Un autor. Un título suficientemente largo. Revista, 2020.\n" +
		"[2] Otro autor. Otro título suficientemente largo. Revista, 2021.\n"

	def, err := FindReferencesSection(doc, DefaultPatterns())
	require.NoError(t, err)
	assert.Equal(t, model.SectionFallback, def.Confidence)

	p, err := CompileOverrides(Overrides{Header: `(?mi)^\s*bibliografía\s*:?\s*$`})
	require.NoError(t, err)

	sec, err := FindReferencesSection(doc, p)
	require.NoError(t, err)
	assert.Equal(t, model.SectionMatched, sec.Confidence)
	assert.NotEqual(t, def.Start, sec.Start)

	body := strings.TrimSpace(SectionText(doc, sec))
	assert.True(t, strings.HasPrefix(body, "[1]"))
	assert.NotContains(t, body, "Resumen")
}
