// Package search describes executable search requests: the compiled query,
// sort, page cursor and limits, and the contract a search engine snapshot
// fulfils.
package search

import (
	"context"
	"errors"

	"GoRowSearch/internal/query"
)

var (
	ErrInvalidLimit   = errors.New("limit must be positive")
	ErrCursorMismatch = errors.New("cursor does not match sort")
	ErrInvalidCursor  = errors.New("invalid cursor")
	ErrInvalidSort    = errors.New("invalid sort")
)

// RankedHit is one search result.
type RankedHit struct {
	Key     string
	DocID   uint32
	Version uint64 // row version the index entry was built from
	Score   float32
	Marker  RankMarker
}

// Request is one page request against a snapshot.
type Request struct {
	Query  query.Query
	Filter query.Query // restricts without scoring; may be nil
	Sort   Sort
	After  *RankMarker // exclusive lower bound in sort order
	Limit  int
	Fields []string
}

// Searcher is an immutable index snapshot.
type Searcher interface {
	// Search returns up to req.Limit hits after req.After in sort order.
	// Fewer than Limit hits means the snapshot is exhausted.
	Search(ctx context.Context, req Request) ([]RankedHit, error)

	// Close releases the snapshot. Callers go through the snapshot manager
	// and never close a searcher directly.
	Close() error
}
