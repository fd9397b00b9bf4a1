// Package extract locates, segments, and parses the references section of
// scholarly-paper text. All pattern-driven behavior is parametrized by a
// compiled-once Patterns value; parsing itself is total and never fails on
// malformed input.
package extract

import (
	"os"
	"regexp"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/refcheck/refcheck/internal/model"
)

// Built-in defaults. Absent override fields resolve to these at construction
// time, not at call time.
const (
	defaultHeader    = `(?mi)^\s*(?:[0-9ivx]+\.?\s*)?(?:references|bibliography|works\s+cited|literature\s+cited|reference\s+list)\s*:?\s*$`
	defaultEndMarker = `(?mi)^\s*(?:appendix(?:\s+[a-z])?|appendices|supplementary\s+material|checklist|neurips\s+paper\s+checklist)\s*:?\s*$`

	defaultBracketed  = `(?m)^\s*\[(\d{1,3})\]`
	defaultNumbered   = `(?m)^\s*(\d{1,3})\.\s+\S`
	defaultAuthorYear = `(?m)^[A-Z][a-zA-Z'\x{00C0}-\x{024F}-]+,\s+[A-Z]\.`
	defaultInitials   = `(\.\s*)\n+([A-Z]\.(?:\s*[A-Z]\.)?\s+[A-Z][a-zA-Z\x{00C0}-\x{024F}-]+(?:\s+and\s+[A-Z]\.|,\s+[A-Z]\.))`

	defaultQuotedTitle = `[“"']([^”"']{8,400})[”"']`
	defaultVenueCutoff = `(?i)\b(?:in\s+proc(?:eedings)?\b|proceedings\s+of|in:\s|in\s+advances\b|advances\s+in\s+neural|in\s+(?:neurips|nips|icml|iclr|cvpr|iccv|eccv|acl|emnlp|naacl|aaai|aistats|uai|kdd|sigir)\b|journal\s+of|ieee\s+trans|acm\s+trans|arxiv\s+preprint|vol\.\s*\d|pp\.\s*\d|pages\s+\d)`
	defaultSubtitle    = `:\s+(?:a|an|the)\s+[a-z][^:]*$`
	defaultAuthorSplit = `,\s+and\s+|;\s+|,\s+|\s+and\s+|\s+&\s+`

	defaultDOI   = `\b10\.\d{4,9}/[-._;()/:a-zA-Z0-9]+`
	defaultArxiv = `(?i)\barxiv[:\s]\s*((?:\d{4}\.\d{4,5})(?:v\d+)?|[a-z][a-z-]*(?:\.[A-Z]{2})?/\d{7})`
	defaultURL   = `https?://[^\s<>()\[\]{}"']+`

	defaultAcademicURL    = `(?i)\b(?:doi\.org|arxiv\.org|dl\.acm\.org|ieeexplore\.ieee\.org|link\.springer\.com|openreview\.net|aclanthology\.org|proceedings\.mlr\.press|ncbi\.nlm\.nih\.gov|pubmed|europepmc\.org|semanticscholar\.org|openalex\.org|dblp\.org|jmlr\.org)`
	defaultNonAcademicURL = `(?i)\b(?:github\.com|gitlab\.com|bitbucket\.org|medium\.com|wikipedia\.org|twitter\.com|x\.com|youtube\.com|reddit\.com|huggingface\.co|substack\.com|blogspot\.|wordpress\.)`
)

const (
	defaultFallbackFraction = 0.7
	defaultMinSegments      = 2
	defaultMinSegmentLen    = 20
	defaultMaxAuthors       = 12
	defaultMinTitleWords    = 3
	defaultMaxTitleLen      = 300
	defaultMinDocLen        = 40
	defaultMinInitialsRefs  = 5
)

// defaultLigatures maps typographic ligatures to their ASCII expansions,
// applied by sequential replacement during parsing.
var defaultLigatures = map[string]string{
	"ﬁ": "fi",
	"ﬂ": "fl",
	"ﬀ": "ff",
	"ﬃ": "ffi",
	"ﬄ": "ffl",
	"ﬅ": "ft",
	"ﬆ": "st",
}

// Overrides is the raw, optional override set. Zero values mean "use the
// built-in default". Loadable from YAML via LoadOverrides.
type Overrides struct {
	Header    string `yaml:"header" mapstructure:"header"`
	EndMarker string `yaml:"end_marker" mapstructure:"end_marker"`

	Bracketed  string `yaml:"bracketed" mapstructure:"bracketed"`
	Numbered   string `yaml:"numbered" mapstructure:"numbered"`
	AuthorYear string `yaml:"author_year" mapstructure:"author_year"`
	Initials   string `yaml:"initials" mapstructure:"initials"`

	QuotedTitle string `yaml:"quoted_title" mapstructure:"quoted_title"`
	VenueCutoff string `yaml:"venue_cutoff" mapstructure:"venue_cutoff"`
	Subtitle    string `yaml:"subtitle" mapstructure:"subtitle"`
	AuthorSplit string `yaml:"author_split" mapstructure:"author_split"`

	DOI            string `yaml:"doi" mapstructure:"doi"`
	Arxiv          string `yaml:"arxiv" mapstructure:"arxiv"`
	AcademicURL    string `yaml:"academic_url" mapstructure:"academic_url"`
	NonAcademicURL string `yaml:"non_academic_url" mapstructure:"non_academic_url"`

	Ligatures map[string]string `yaml:"ligatures" mapstructure:"ligatures"`

	FallbackFraction float64 `yaml:"fallback_fraction" mapstructure:"fallback_fraction"`
	MinSegments      int     `yaml:"min_segments" mapstructure:"min_segments"`
	MinSegmentLen    int     `yaml:"min_segment_len" mapstructure:"min_segment_len"`
	MaxAuthors       int     `yaml:"max_authors" mapstructure:"max_authors"`
	MinTitleWords    int     `yaml:"min_title_words" mapstructure:"min_title_words"`
	MaxTitleLen      int     `yaml:"max_title_len" mapstructure:"max_title_len"`
	MinDocLen        int     `yaml:"min_doc_len" mapstructure:"min_doc_len"`
}

// LoadOverrides reads an override set from a YAML file.
func LoadOverrides(path string) (Overrides, error) {
	var o Overrides
	data, err := os.ReadFile(path)
	if err != nil {
		return o, eris.Wrapf(err, "extract: read overrides %s", path)
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, eris.Wrapf(err, "extract: parse overrides %s", path)
	}
	return o, nil
}

// ligature is one replacement pair. Pairs are applied in sorted-key order so
// parsing stays a pure function of its inputs.
type ligature struct {
	from, to string
}

// Patterns is the immutable, compiled pattern-and-threshold set consumed by
// the locator, segmenter, and parser. Build once per run via CompileOverrides
// and share freely across goroutines.
type Patterns struct {
	Header    *regexp.Regexp
	EndMarker *regexp.Regexp

	Bracketed  *regexp.Regexp
	Numbered   *regexp.Regexp
	AuthorYear *regexp.Regexp
	Initials   *regexp.Regexp

	QuotedTitle *regexp.Regexp
	VenueCutoff *regexp.Regexp
	Subtitle    *regexp.Regexp
	AuthorSplit *regexp.Regexp

	DOI            *regexp.Regexp
	Arxiv          *regexp.Regexp
	URL            *regexp.Regexp
	AcademicURL    *regexp.Regexp
	NonAcademicURL *regexp.Regexp

	ligatures []ligature

	FallbackFraction float64
	MinSegments      int
	MinSegmentLen    int
	MaxAuthors       int
	MinTitleWords    int
	MaxTitleLen      int
	MinDocLen        int
	MinInitialsRefs  int
}

// CompileOverrides resolves absent fields to defaults and compiles every
// pattern exactly once. An invalid pattern yields a *model.ConfigError naming
// the offending field; no document is processed until compilation succeeds.
func CompileOverrides(o Overrides) (*Patterns, error) {
	p := &Patterns{
		FallbackFraction: o.FallbackFraction,
		MinSegments:      o.MinSegments,
		MinSegmentLen:    o.MinSegmentLen,
		MaxAuthors:       o.MaxAuthors,
		MinTitleWords:    o.MinTitleWords,
		MaxTitleLen:      o.MaxTitleLen,
		MinDocLen:        o.MinDocLen,
		MinInitialsRefs:  defaultMinInitialsRefs,
	}

	if p.FallbackFraction <= 0 || p.FallbackFraction > 1 {
		p.FallbackFraction = defaultFallbackFraction
	}
	if p.MinSegments <= 0 {
		p.MinSegments = defaultMinSegments
	}
	if p.MinSegmentLen <= 0 {
		p.MinSegmentLen = defaultMinSegmentLen
	}
	if p.MaxAuthors <= 0 {
		p.MaxAuthors = defaultMaxAuthors
	}
	if p.MinTitleWords <= 0 {
		p.MinTitleWords = defaultMinTitleWords
	}
	if p.MaxTitleLen <= 0 {
		p.MaxTitleLen = defaultMaxTitleLen
	}
	if p.MinDocLen <= 0 {
		p.MinDocLen = defaultMinDocLen
	}

	fields := []struct {
		name     string
		override string
		fallback string
		dst      **regexp.Regexp
	}{
		{"header", o.Header, defaultHeader, &p.Header},
		{"end_marker", o.EndMarker, defaultEndMarker, &p.EndMarker},
		{"bracketed", o.Bracketed, defaultBracketed, &p.Bracketed},
		{"numbered", o.Numbered, defaultNumbered, &p.Numbered},
		{"author_year", o.AuthorYear, defaultAuthorYear, &p.AuthorYear},
		{"initials", o.Initials, defaultInitials, &p.Initials},
		{"quoted_title", o.QuotedTitle, defaultQuotedTitle, &p.QuotedTitle},
		{"venue_cutoff", o.VenueCutoff, defaultVenueCutoff, &p.VenueCutoff},
		{"subtitle", o.Subtitle, defaultSubtitle, &p.Subtitle},
		{"author_split", o.AuthorSplit, defaultAuthorSplit, &p.AuthorSplit},
		{"doi", o.DOI, defaultDOI, &p.DOI},
		{"arxiv", o.Arxiv, defaultArxiv, &p.Arxiv},
		{"url", "", defaultURL, &p.URL},
		{"academic_url", o.AcademicURL, defaultAcademicURL, &p.AcademicURL},
		{"non_academic_url", o.NonAcademicURL, defaultNonAcademicURL, &p.NonAcademicURL},
	}

	for _, f := range fields {
		src := f.override
		if src == "" {
			src = f.fallback
		}
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, &model.ConfigError{Field: f.name, Err: err}
		}
		*f.dst = re
	}

	ligs := o.Ligatures
	if ligs == nil {
		ligs = defaultLigatures
	}
	keys := make([]string, 0, len(ligs))
	for k := range ligs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.ligatures = append(p.ligatures, ligature{from: k, to: ligs[k]})
	}

	return p, nil
}

// DefaultPatterns compiles the built-in defaults. The defaults are constants
// covered by tests, so a compile failure is a programmer error.
func DefaultPatterns() *Patterns {
	p, err := CompileOverrides(Overrides{})
	if err != nil {
		panic(err)
	}
	return p
}
