// Package scan merges a search engine's ranked hits back into primary-store
// rows. A RowIterator pulls hits in batches from one pinned snapshot,
// resolves each against the live store and drops hits whose row has since
// been deleted or changed so it no longer matches.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"GoRowSearch/internal/condition"
	"GoRowSearch/internal/search"
	"GoRowSearch/internal/snapshot"
	"GoRowSearch/internal/store"
)

var (
	ErrUnsupportedOperation = errors.New("operation not supported by search scans")
	ErrIteratorClosed       = errors.New("iterator closed")
	ErrNoMoreRows           = errors.New("no more rows")
)

// DefaultBatchSize is how many hits one engine fetch asks for.
const DefaultBatchSize = 64

// Config tunes scans.
type Config struct {
	// BatchSize caps the hits requested per engine fetch. It is independent
	// of the caller's row limit.
	BatchSize int

	// MaxFetches caps engine round trips per scan. 0 means unlimited.
	MaxFetches int
}

// DefaultConfig returns the default scan configuration.
func DefaultConfig() Config {
	return Config{BatchSize: DefaultBatchSize}
}

// Acquirer hands out searcher handles. *snapshot.Manager implements it.
type Acquirer interface {
	Acquire() (*snapshot.Handle, error)
}

// Scanner opens row iterators over the current snapshot of one index.
type Scanner struct {
	snapshots Acquirer
	compiler  *condition.Compiler
	cfg       Config
	metrics   *Metrics
	logger    *slog.Logger
}

// NewScanner creates a scanner. metrics may be nil.
func NewScanner(snapshots Acquirer, compiler *condition.Compiler, cfg Config, metrics *Metrics, logger *slog.Logger) *Scanner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxFetches < 0 {
		cfg.MaxFetches = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		snapshots: snapshots,
		compiler:  compiler,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.With("component", "scan"),
	}
}

// Config returns the effective configuration.
func (s *Scanner) Config() Config { return s.cfg }

// OpenScan pins the current snapshot and returns an iterator over the rows
// desc selects. The caller must Close the iterator.
func (s *Scanner) OpenScan(ctx context.Context, desc *search.Descriptor, cmd store.ReadCommand) (*RowIterator, error) {
	if desc == nil {
		return nil, errors.New("open scan: nil descriptor")
	}
	if cmd.Store == nil {
		return nil, errors.New("open scan: read command has no store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, err := s.snapshots.Acquire()
	if err != nil {
		return nil, fmt.Errorf("open scan: %w", err)
	}

	limit := desc.Limit
	if cmd.Limit > 0 && cmd.Limit < limit {
		limit = cmd.Limit
	}
	id := uuid.NewString()
	it := &RowIterator{
		id:           id,
		ctx:          ctx,
		desc:         desc,
		reader:       cmd.Store,
		handle:       h,
		compiler:     s.compiler,
		cfg:          s.cfg,
		metrics:      s.metrics,
		logger:       s.logger.With("scan_id", id, "generation", h.Generation),
		limit:        limit,
		fetchAfter:   desc.After,
		lookupFields: lookupFields(desc),
		state:        StateCreated,
	}
	s.metrics.opened()
	it.logger.Debug("scan opened",
		"limit", limit,
		"sort", desc.Sort.Fingerprint(),
		"resumed", desc.After != nil,
	)
	return it, nil
}

// Page is one fully drained scan.
type Page struct {
	Rows      []*store.Row
	Cursor    *search.Cursor // nil when no row was emitted
	Truncated bool
	Stats     Stats
}

// Page opens a scan, drains it and closes it.
func (s *Scanner) Page(ctx context.Context, desc *search.Descriptor, cmd store.ReadCommand) (*Page, error) {
	it, err := s.OpenScan(ctx, desc, cmd)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	page := &Page{}
	for it.HasNext() {
		row, err := it.Next()
		if err != nil {
			return nil, err
		}
		page.Rows = append(page.Rows, row)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	page.Cursor = it.Cursor()
	page.Truncated = it.Truncated()
	page.Stats = it.Stats()
	return page, nil
}

// lookupFields is what each store lookup must load: the requested fields
// plus every field the condition and filter reference, so changed rows can
// be rechecked. nil loads the whole row.
func lookupFields(desc *search.Descriptor) []string {
	if len(desc.Fields) == 0 {
		return nil
	}
	fields := slices.Clone(desc.Fields)
	for _, c := range []condition.Condition{desc.Condition, desc.FilterBy} {
		for _, f := range condition.Fields(c) {
			if !slices.Contains(fields, f) {
				fields = append(fields, f)
			}
		}
	}
	return fields
}
