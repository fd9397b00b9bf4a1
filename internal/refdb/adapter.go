// Package refdb defines the bibliographic database adapter contract and the
// adapters backed by the public scholarly APIs. Adapters translate one
// Reference into one lookup outcome; pacing, retries, caching, and timeouts
// belong to the caller.
package refdb

import (
	"context"
	"slices"

	"github.com/refcheck/refcheck/internal/model"
)

// searchLimit is how many candidates an adapter requests per title search.
const searchLimit = 5

// Adapter is one bibliographic database. Implementations must be safe for
// concurrent use; Query is called from many workers at once.
type Adapter interface {
	// Name returns the canonical database identifier.
	Name() string

	// Query looks the reference up. A miss is a DbResult with DbNotFound,
	// not an error; a returned error means the lookup itself failed and the
	// caller decides between DbError and DbTimeout.
	Query(ctx context.Context, ref model.Reference) (model.DbResult, error)
}

// DefaultOrder is the query order. ChosenSource precedence follows it.
var DefaultOrder = []string{
	model.DbCrossref,
	model.DbOpenAlex,
	model.DbSemanticScholar,
	model.DbArxiv,
	model.DbDBLP,
	model.DbEuropePMC,
	model.DbPubMed,
	model.DbDBLPOffline,
}

// Registry holds the enabled adapters in query order.
type Registry struct {
	adapters []Adapter
}

// NewRegistry keeps the given adapters in order, dropping any whose name is
// in disabled.
func NewRegistry(adapters []Adapter, disabled []string) *Registry {
	r := &Registry{}
	for _, a := range adapters {
		if a == nil || slices.Contains(disabled, a.Name()) {
			continue
		}
		r.adapters = append(r.adapters, a)
	}
	return r
}

// Adapters returns the enabled adapters in query order.
func (r *Registry) Adapters() []Adapter {
	return r.adapters
}

// Names returns the enabled adapter names in query order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

// Len returns the number of enabled adapters.
func (r *Registry) Len() int { return len(r.adapters) }
