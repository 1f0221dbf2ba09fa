// Package registry resolves a Source to the fetch handler that knows
// how to retrieve and enrich it. Entries are a typed, init-time Go
// table rather than dynamically discovered plugins - the redesign
// spec.md calls for in place of file-system-based fetcher discovery.
package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/lighthouse-labs/policywatch/pkg/fetch"
	"github.com/lighthouse-labs/policywatch/pkg/source"
)

// FetchFunc retrieves and extracts a single source's content.
type FetchFunc func(ctx context.Context, c *fetch.Client, src source.Source) (*fetch.Result, error)

// EnrichFunc stamps source-specific metadata onto a successful
// result. It is never called when the fetch failed.
type EnrichFunc func(result *fetch.Result, src source.Source)

// Entry binds a (country, visa_type, source_type) match to a handler.
type Entry struct {
	Country    string
	VisaType   source.VisaType
	SourceType source.Kind
	Handler    FetchFunc
	Enrich     EnrichFunc
}

func (e Entry) matches(src source.Source) bool {
	if !strings.EqualFold(e.Country, src.Country) {
		return false
	}
	if e.SourceType != src.Type {
		return false
	}
	if e.VisaType == source.VisaBoth {
		return true
	}
	return strings.EqualFold(string(e.VisaType), string(src.VisaType))
}

// Registry is an ordered table resolved top-down: the first matching
// entry wins.
type Registry struct {
	entries []Entry
}

// New builds a Registry populated with the standard route roster.
func New() *Registry {
	r := &Registry{}
	r.entries = append(r.entries, standardRoutes()...)
	return r
}

// Register puts an entry ahead of every existing one, so it takes
// precedence over the standard routes: for tests or local overrides.
func (r *Registry) Register(e Entry) {
	r.entries = append([]Entry{e}, r.entries...)
}

// Resolve returns the first entry matching src, in table order: entries
// added by Register (most recent first), then the standard routes.
func (r *Registry) Resolve(src source.Source) (Entry, bool) {
	for _, e := range r.entries {
		if e.matches(src) {
			return e, true
		}
	}
	return Entry{}, false
}

// Fetch resolves src's handler and runs it, enriching the result on
// success. If no entry matches (country, visa_type, source_type), it
// returns an error instead of guessing a handler - the caller records
// that as a failed source and moves on, rather than fetching an
// unregistered route with no enrichment.
func (r *Registry) Fetch(ctx context.Context, c *fetch.Client, src source.Source) (*fetch.Result, error) {
	entry, ok := r.Resolve(src)
	if !ok {
		return nil, fmt.Errorf("no registered handler for country=%q visa_type=%q source_type=%q", src.Country, src.VisaType, src.Type)
	}

	result, err := entry.Handler(ctx, c, src)
	if err != nil {
		return nil, err
	}
	if result.Success && entry.Enrich != nil {
		entry.Enrich(result, src)
	}
	return result, nil
}

func fetchHTML(ctx context.Context, c *fetch.Client, src source.Source) (*fetch.Result, error) {
	return fetch.HTML(ctx, c, src.URL)
}

func fetchPDF(ctx context.Context, c *fetch.Client, src source.Source) (*fetch.Result, error) {
	return fetch.PDF(ctx, c, src.URL)
}
