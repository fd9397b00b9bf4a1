package model

import "time"

// DbStatus is the outcome of one adapter lookup for one reference.
type DbStatus string

const (
	DbFound    DbStatus = "found"
	DbNotFound DbStatus = "not_found"
	DbTimeout  DbStatus = "timeout"
	DbError    DbStatus = "error"
	DbSkipped  DbStatus = "skipped" // cache-disabled adapter or cancelled before dispatch
)

// Canonical database identifiers. These appear in config (query order,
// disabled_dbs), in DbResult.DbName, and as rate limiter keys.
const (
	DbCrossref        = "crossref"
	DbOpenAlex        = "openalex"
	DbSemanticScholar = "semanticscholar"
	DbArxiv           = "arxiv"
	DbDBLP            = "dblp"
	DbEuropePMC       = "europepmc"
	DbPubMed          = "pubmed"
	DbDBLPOffline     = "dblp-offline"
)

// MatchedRecord is the metadata a database returned for a matched reference.
type MatchedRecord struct {
	Title        string   `json:"title"`
	Authors      []string `json:"authors,omitempty"`
	URL          string   `json:"url,omitempty"`
	Year         string   `json:"year,omitempty"`
	AuthorsMatch bool     `json:"authors_match"`
}

// RetractionInfo describes a database-reported retraction.
type RetractionInfo struct {
	Retracted     bool   `json:"retracted"`
	RetractionDOI string `json:"retraction_doi,omitempty"`
	Source        string `json:"source,omitempty"`
	Notice        string `json:"notice,omitempty"`
}

// DoiInfo is the outcome of verifying a parsed DOI directly.
type DoiInfo struct {
	DOI   string `json:"doi"`
	Valid bool   `json:"valid"`
	Title string `json:"title,omitempty"`
}

// ArxivInfo is the outcome of verifying a parsed arXiv identifier directly.
type ArxivInfo struct {
	ArxivID string `json:"arxiv_id"`
	Valid   bool   `json:"valid"`
	Title   string `json:"title,omitempty"`
}

// DbResult is one (reference, adapter) outcome. Owned by the worker that
// produced it until merged into a ValidationResult.
type DbResult struct {
	DbName     string          `json:"db_name"`
	Status     DbStatus        `json:"status"`
	Elapsed    time.Duration   `json:"elapsed_ns"`
	Matched    *MatchedRecord  `json:"matched,omitempty"`
	Retraction *RetractionInfo `json:"retraction,omitempty"`
	Staleness  time.Duration   `json:"staleness_ns,omitempty"` // offline stores only
	Error      string          `json:"error,omitempty"`
	FromCache  bool            `json:"from_cache,omitempty"`

	// Identifier verification side results. The crossref adapter checks a
	// parsed DOI, the arxiv adapter a parsed arXiv id; the orchestrator
	// lifts these into the ValidationResult.
	DoiCheck   *DoiInfo   `json:"doi_check,omitempty"`
	ArxivCheck *ArxivInfo `json:"arxiv_check,omitempty"`
}

// Status is the aggregated verdict for one reference.
type Status string

const (
	StatusVerified           Status = "verified"
	StatusRetracted          Status = "retracted"
	StatusLikelyHallucinated Status = "likely_hallucinated"
	StatusUnverified         Status = "unverified"
	StatusCancelled          Status = "cancelled"
)

// ValidationResult is the final verdict for one reference. The orchestrator
// returns exactly one per input reference, in input order.
type ValidationResult struct {
	Reference    Reference       `json:"reference"`
	Status       Status          `json:"status"`
	DbResults    []DbResult      `json:"db_results,omitempty"`
	ChosenSource string          `json:"chosen_source,omitempty"`
	FoundAuthors []string        `json:"found_authors,omitempty"`
	PaperURL     string          `json:"paper_url,omitempty"`
	FailedDBs    []string        `json:"failed_dbs,omitempty"`
	DoiInfo      *DoiInfo        `json:"doi_info,omitempty"`
	ArxivInfo    *ArxivInfo      `json:"arxiv_info,omitempty"`
	Retraction   *RetractionInfo `json:"retraction_info,omitempty"`
	Skipped      bool            `json:"skipped,omitempty"`    // not queryable, no lookups performed
	Annotation   string          `json:"annotation,omitempty"` // reviewer note, set by the report annotator
}

// CheckStats summarizes a complete validation run.
type CheckStats struct {
	Total              int `json:"total"`
	Verified           int `json:"verified"`
	Retracted          int `json:"retracted"`
	LikelyHallucinated int `json:"likely_hallucinated"`
	Unverified         int `json:"unverified"`
	Cancelled          int `json:"cancelled"`
	Skipped            int `json:"skipped"`
}

// Add folds one result into the stats.
func (s *CheckStats) Add(r ValidationResult) {
	s.Total++
	if r.Skipped {
		s.Skipped++
	}
	switch r.Status {
	case StatusVerified:
		s.Verified++
	case StatusRetracted:
		s.Retracted++
	case StatusLikelyHallucinated:
		s.LikelyHallucinated++
	case StatusUnverified:
		s.Unverified++
	case StatusCancelled:
		s.Cancelled++
	}
}

// Summarize builds stats from a full result list.
func Summarize(results []ValidationResult) CheckStats {
	var s CheckStats
	for _, r := range results {
		s.Add(r)
	}
	return s
}
