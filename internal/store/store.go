// Package store is the primary row store the search index is built from.
// Rows are versioned: every write bumps the key's version, including a write
// after a delete, so index entries can be compared against live rows.
package store

import (
	"context"
	"errors"
	"maps"
	"time"
)

var (
	ErrNotFound    = errors.New("row not found")
	ErrEmptyKey    = errors.New("row key is empty")
	ErrStoreClosed = errors.New("store closed")
)

// Row is one live row.
type Row struct {
	Key       string
	Version   uint64
	Fields    map[string]any
	UpdatedAt time.Time
}

// Project returns a copy of r restricted to fields. An empty list keeps
// every field.
func (r *Row) Project(fields []string) *Row {
	out := *r
	if len(fields) == 0 {
		out.Fields = maps.Clone(r.Fields)
		return &out
	}
	out.Fields = make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := r.Fields[f]; ok {
			out.Fields[f] = v
		}
	}
	return &out
}

// Reader resolves row keys to live rows.
type Reader interface {
	// Lookup returns the current row for key with only the requested fields
	// loaded, or ErrNotFound.
	Lookup(ctx context.Context, key string, fields []string) (*Row, error)
}

// Store is a readable and writable row store.
type Store interface {
	Reader

	// Put replaces the fields of key and returns the new version.
	Put(ctx context.Context, key string, fields map[string]any) (uint64, error)

	// Delete removes key. Deleting an absent row returns ErrNotFound.
	Delete(ctx context.Context, key string) error

	// Scan calls fn for every live row in key order.
	Scan(ctx context.Context, fn func(*Row) error) error

	Close() error
}

// ReadCommand is the caller's side of a scan: where rows are read from and
// how many may be returned.
type ReadCommand struct {
	Store Reader
	Limit int // 0 means no cap beyond the search limit
}
