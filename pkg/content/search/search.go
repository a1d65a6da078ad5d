// Package search pages through repository nodes that match a query
// expression. It is the search collaborator consumed by bulk jobs.
package search

import (
	"context"
	"fmt"

	"mercator-hq/holds/pkg/content"
)

// DefaultMaxItems is the page size used when a request leaves MaxItems unset.
const DefaultMaxItems = 100

// Request asks for one page of results.
type Request struct {
	Query     string
	SkipCount int
	MaxItems  int
}

// Page is one page of search results. NumberFound is advisory: callers must
// use HasMore and Items to decide when to stop.
type Page struct {
	NumberFound int64
	HasMore     bool
	Items       []content.NodeRef
}

// Lister is the part of content.Store the engine reads from.
type Lister interface {
	List(ctx context.Context) ([]*content.Node, error)
}

// Engine evaluates expressions against a live store. Each page is computed
// from a fresh listing, so pages may drift when the store changes between
// requests.
type Engine struct {
	store Lister
}

// NewEngine creates a search engine over store.
func NewEngine(store Lister) *Engine {
	return &Engine{store: store}
}

// ValidateQuery reports whether query parses.
func (e *Engine) ValidateQuery(query string) error {
	_, err := Parse(query)
	return err
}

// Search returns one page of node references matching req.Query, ordered by path.
func (e *Engine) Search(ctx context.Context, req Request) (*Page, error) {
	expr, err := Parse(req.Query)
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	if req.SkipCount < 0 {
		return nil, fmt.Errorf("negative skip count %d", req.SkipCount)
	}
	maxItems := req.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}

	nodes, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	var matched []content.NodeRef
	for _, n := range nodes {
		if expr.Match(n) {
			matched = append(matched, n.Ref)
		}
	}

	page := &Page{NumberFound: int64(len(matched))}
	if req.SkipCount >= len(matched) {
		return page, nil
	}
	end := min(req.SkipCount+maxItems, len(matched))
	page.Items = matched[req.SkipCount:end]
	page.HasMore = end < len(matched)
	return page, nil
}
