package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"GoRowSearch/internal/condition"
	"GoRowSearch/internal/config"
	"GoRowSearch/internal/engine"
	"GoRowSearch/internal/index"
	"GoRowSearch/internal/scan"
	"GoRowSearch/internal/search"
	"GoRowSearch/internal/snapshot"
	"GoRowSearch/internal/store"
)

// IndexManager owns the runtime state of one searchable table: the primary
// store, the search index built from it, the snapshot manager and the
// scanner that merges the two.
type IndexManager struct {
	Schema    *index.Schema
	Store     store.Store
	Index     *engine.Index
	Snapshots *snapshot.Manager
	Scanner   *scan.Scanner
	Compiler  *condition.Compiler

	cfg    config.Config
	logger *slog.Logger

	publishMu sync.Mutex
	published uint64 // engine generation of the published snapshot
}

// NewIndexManager indexes every row already in st, publishes the first
// snapshot and wires a scanner. Scan metrics are registered with reg when
// it is non-nil.
func NewIndexManager(ctx context.Context, cfg config.Config, schema *index.Schema, st store.Store, reg prometheus.Registerer, logger *slog.Logger) (*IndexManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "index_manager")

	compiler := condition.NewCompiler(schema)
	ix, err := engine.NewIndex(schema, engine.Options{
		Analyzers:        compiler.Analyzers,
		MaxTermsExpanded: cfg.Index.MaxTermsExpanded,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var rows int
	err = st.Scan(ctx, func(r *store.Row) error {
		if err := ix.Upsert(r.Key, r.Version, r.Fields); err != nil {
			logger.Warn("row not indexed", "key", r.Key, "error", err)
			return nil
		}
		rows++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load rows: %w", err)
	}
	snap, err := ix.Refresh()
	if err != nil {
		return nil, err
	}
	logger.Info("index built from store", "rows", rows, "duration", time.Since(start))

	snapshots := snapshot.NewManager(snap, logger)
	if cfg.Snapshot.LeakThreshold > 0 {
		snapshots.LeakThreshold = cfg.Snapshot.LeakThreshold
	}

	var metrics *scan.Metrics
	if reg != nil {
		metrics = scan.NewMetrics(reg)
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "gorowsearch_searcher_handles",
			Help: "Searcher handles currently held",
		}, func() float64 { return float64(snapshots.RefCount()) }))
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "gorowsearch_snapshot_generation",
			Help: "Generation of the published snapshot",
		}, func() float64 { return float64(snapshots.Generation()) }))
	}

	scanner := scan.NewScanner(snapshots, compiler, scan.Config{
		BatchSize:  cfg.Scan.BatchSize,
		MaxFetches: cfg.Scan.MaxFetches,
	}, metrics, logger)

	return &IndexManager{
		Schema:    schema,
		Store:     st,
		Index:     ix,
		Snapshots: snapshots,
		Scanner:   scanner,
		Compiler:  compiler,
		cfg:       cfg,
		logger:    logger,
		published: snap.Generation(),
	}, nil
}

// Put validates fields, writes them to the store and indexes them at the
// version the store assigned. The change is searchable after the next
// refresh.
func (m *IndexManager) Put(ctx context.Context, key string, fields map[string]any) (uint64, error) {
	if key == "" {
		return 0, store.ErrEmptyKey
	}
	if err := m.Index.Validate(fields); err != nil {
		return 0, err
	}
	v, err := m.Store.Put(ctx, key, fields)
	if err != nil {
		return 0, err
	}
	if err := m.Index.Upsert(key, v, fields); err != nil {
		return 0, fmt.Errorf("index row %q: %w", key, err)
	}
	return v, nil
}

// Delete removes a row from the store and the index.
func (m *IndexManager) Delete(ctx context.Context, key string) error {
	if err := m.Store.Delete(ctx, key); err != nil {
		return err
	}
	return m.Index.Delete(key)
}

// Refresh publishes buffered index changes and returns the new snapshot.
func (m *IndexManager) Refresh() (*engine.Snapshot, error) {
	snap, err := m.Index.Refresh()
	if err != nil {
		return nil, err
	}
	if err := m.publish(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// publish hands snap to the snapshot manager unless a newer engine
// generation is already published, in which case snap is closed.
func (m *IndexManager) publish(snap *engine.Snapshot) error {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()
	if snap.Generation() <= m.published {
		m.logger.Debug("dropping superseded snapshot", "generation", snap.Generation(), "published", m.published)
		return snap.Close()
	}
	if err := m.Snapshots.Refresh(snap); err != nil {
		_ = snap.Close()
		return err
	}
	m.published = snap.Generation()
	return nil
}

// RunRefresher refreshes in the background at the configured interval
// until ctx is done. It returns immediately when the interval is zero.
func (m *IndexManager) RunRefresher(ctx context.Context) {
	if m.cfg.Index.RefreshInterval <= 0 {
		return
	}
	m.Index.RunRefresher(ctx, m.cfg.Index.RefreshInterval, m.publish)
}

// SearchRequest is one page request.
type SearchRequest struct {
	Condition condition.Condition
	Filter    condition.Condition
	Sort      search.Sort
	Cursor    *search.Cursor
	Limit     int
	Fields    []string
}

// Search builds the request and drains one page of rows.
func (m *IndexManager) Search(ctx context.Context, req SearchRequest) (*scan.Page, error) {
	desc, err := search.Build(m.Compiler, search.BuildRequest{
		Condition: req.Condition,
		Filter:    req.Filter,
		Sort:      req.Sort,
		Cursor:    req.Cursor,
		Limit:     req.Limit,
		Fields:    req.Fields,
	})
	if err != nil {
		return nil, err
	}
	return m.Scanner.Page(ctx, desc, store.ReadCommand{Store: m.Store})
}

// Info reports index state for the info endpoint.
func (m *IndexManager) Info() map[string]any {
	leaks := m.Snapshots.DetectLeaks()
	for _, h := range leaks {
		m.logger.Warn("searcher handle held too long",
			"handle_id", h.ID,
			"generation", h.Generation,
			"held", h.HeldDuration(),
		)
	}
	return map[string]any{
		"buffered_rows":  m.Index.DocCount(),
		"dirty":          m.Index.Dirty(),
		"generation":     m.Snapshots.Generation(),
		"snapshot_state": m.Snapshots.State().String(),
		"handles":        m.Snapshots.RefCount(),
		"leaked_handles": len(leaks),
		"fields":         len(m.Schema.Fields),
	}
}

// Close closes the snapshot manager, the index and the store.
func (m *IndexManager) Close() error {
	return errors.Join(m.Snapshots.Close(), m.Index.Close(), m.Store.Close())
}
