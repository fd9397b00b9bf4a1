package model

import (
	"errors"
	"fmt"
)

// ErrNoReferencesFound signals that the section locator exhausted both header
// and fallback logic on a document too short or empty to hold a reference
// list. It aborts the whole run.
var ErrNoReferencesFound = errors.New("no references section found")

// ConfigError reports an invalid override pattern or threshold, detected at
// construction time before any document is processed.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ExtractionError reports unreadable or empty document text. It aborts the
// whole run.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("extraction: %v", e.Err)
	}
	return fmt.Sprintf("extraction: %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// AdapterError reports a failed database lookup for one reference. It never
// aborts a run; the orchestrator records it on the result and moves on.
type AdapterError struct {
	Db  string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %v", e.Db, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
