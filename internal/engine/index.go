// Package engine is an in-memory search index: documents are buffered by a
// single writer and frozen into immutable, roaring-backed snapshots on
// Refresh.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"GoRowSearch/internal/analysis"
	"GoRowSearch/internal/geo"
	"GoRowSearch/internal/index"
	"GoRowSearch/internal/scoring"
)

var (
	ErrInvalidDocument = errors.New("invalid document")
	ErrEmptyKey        = errors.New("document key is empty")
	ErrIndexClosed     = errors.New("index closed")
)

// document is one buffered row as the index will see it.
type document struct {
	key     string
	version uint64
	fields  map[string]any
}

// Options configure an Index.
type Options struct {
	Analyzers        *analysis.Registry
	Scorer           scoring.BM25
	MaxTermsExpanded int
	Logger           *slog.Logger
}

// Index is the write side. Upsert and Delete change the buffered state;
// searches only see it after Refresh.
type Index struct {
	schema *index.Schema
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	docs       map[string]*document
	dirty      bool
	closed     bool
	generation uint64
}

// NewIndex creates an empty index for schema.
func NewIndex(schema *index.Schema, opts Options) (*Index, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("new index: %w", err)
	}
	if opts.Analyzers == nil {
		opts.Analyzers = analysis.NewRegistry()
	}
	if opts.Scorer == (scoring.BM25{}) {
		opts.Scorer = scoring.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Index{
		schema: schema,
		opts:   opts,
		logger: opts.Logger.With("component", "engine"),
		docs:   make(map[string]*document),
		dirty:  true,
	}, nil
}

// Schema returns the index schema.
func (ix *Index) Schema() *index.Schema { return ix.schema }

// Upsert buffers a document. A version older than the buffered one is
// ignored so out-of-order index updates cannot resurrect old content.
func (ix *Index) Upsert(key string, version uint64, fields map[string]any) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ix.Validate(fields); err != nil {
		return fmt.Errorf("document %q: %w", key, err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return ErrIndexClosed
	}
	if cur, ok := ix.docs[key]; ok && cur.version > version {
		ix.logger.Debug("stale upsert ignored", "key", key, "version", version, "current", cur.version)
		return nil
	}
	ix.docs[key] = &document{key: key, version: version, fields: maps.Clone(fields)}
	ix.dirty = true
	return nil
}

// Delete removes a buffered document. Deleting an absent key is a no-op.
func (ix *Index) Delete(key string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return ErrIndexClosed
	}
	if _, ok := ix.docs[key]; ok {
		delete(ix.docs, key)
		ix.dirty = true
	}
	return nil
}

// DocCount returns the number of buffered documents.
func (ix *Index) DocCount() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.docs)
}

// Dirty reports whether buffered changes are not yet in a snapshot.
func (ix *Index) Dirty() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.dirty
}

// Refresh freezes the buffered documents into a new snapshot.
func (ix *Index) Refresh() (*Snapshot, error) {
	ix.mu.Lock()
	if ix.closed {
		ix.mu.Unlock()
		return nil, ErrIndexClosed
	}
	docs := make([]*document, 0, len(ix.docs))
	for _, d := range ix.docs {
		docs = append(docs, d)
	}
	ix.dirty = false
	ix.generation++
	gen := ix.generation
	ix.mu.Unlock()

	start := time.Now()
	slices.SortFunc(docs, func(a, b *document) int {
		switch {
		case a.key < b.key:
			return -1
		case a.key > b.key:
			return 1
		}
		return 0
	})
	snap := ix.build(gen, docs)

	ix.logger.Info("index refreshed",
		"generation", gen,
		"docs", len(docs),
		"duration", time.Since(start),
	)
	return snap, nil
}

// RunRefresher refreshes every interval while there are buffered changes
// and hands each snapshot to publish, until ctx is done.
func (ix *Index) RunRefresher(ctx context.Context, interval time.Duration, publish func(*Snapshot) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !ix.Dirty() {
				continue
			}
			snap, err := ix.Refresh()
			if err != nil {
				ix.logger.Warn("periodic refresh failed", "error", err)
				return
			}
			if err := publish(snap); err != nil {
				ix.logger.Warn("publish snapshot failed", "generation", snap.Generation(), "error", err)
			}
		}
	}
}

// Close stops accepting writes.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.closed = true
	return nil
}

// Validate checks that every indexed field value can be indexed.
func (ix *Index) Validate(fields map[string]any) error {
	for _, f := range ix.schema.Fields {
		v, ok := fields[f.Name]
		if !ok || v == nil || !f.Indexed {
			continue
		}
		if !f.MultiValued && len(index.Values(v)) > 1 && f.Type != index.FieldTypeGeoShape {
			return fmt.Errorf("%w: field %q is not multi-valued", ErrInvalidDocument, f.Name)
		}
		switch f.Type {
		case index.FieldTypeNumeric:
			if _, err := index.NumericValues(v); err != nil {
				return fmt.Errorf("%w: field %q: %v", ErrInvalidDocument, f.Name, err)
			}
		case index.FieldTypeGeoPoint, index.FieldTypeGeoShape:
			if _, err := geo.ParsePoints(v); err != nil {
				return fmt.Errorf("%w: field %q: %v", ErrInvalidDocument, f.Name, err)
			}
		}
	}
	return nil
}
