package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"GoRowSearch/internal/condition"
	"GoRowSearch/internal/search"
	"GoRowSearch/internal/snapshot"
	"GoRowSearch/internal/store"
)

// State is the iterator's position in its lifecycle.
type State int

const (
	StateCreated State = iota
	StateFetching
	StateResolving
	StateReady
	StateExhausted
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateFetching:
		return "fetching"
	case StateResolving:
		return "resolving"
	case StateReady:
		return "ready"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stale hit reasons.
const (
	staleDeleted = "deleted"
	staleChanged = "changed"
)

// Stats summarize one scan.
type Stats struct {
	Fetches int
	Hits    int
	Stale   int
	Emitted int
}

// RowIterator is a lazy, ordered sequence of live rows. It is not safe for
// concurrent use; run concurrent scans on separate iterators.
type RowIterator struct {
	id       string
	ctx      context.Context
	desc     *search.Descriptor
	reader   store.Reader
	handle   *snapshot.Handle
	compiler *condition.Compiler
	cfg      Config
	metrics  *Metrics
	logger   *slog.Logger

	limit        int
	lookupFields []string

	state      State
	batch      []search.RankedHit
	pos        int
	fetchAfter *search.RankMarker // marker of the last fetched hit
	engineDone bool
	truncated  bool

	next       *store.Row
	nextMarker search.RankMarker
	lastMarker *search.RankMarker // marker of the last emitted row

	stats    Stats
	err      error
	released bool
}

// ID identifies the scan in logs.
func (it *RowIterator) ID() string { return it.id }

// State returns the current state.
func (it *RowIterator) State() State { return it.state }

// HasNext reports whether Next will return a row. It may block on the
// engine or the store. After a failure it returns false and Err reports
// the cause.
func (it *RowIterator) HasNext() bool {
	switch it.state {
	case StateClosed, StateFailed, StateExhausted:
		return false
	case StateReady:
		return true
	}
	it.advance()
	return it.state == StateReady
}

// Next returns the next row.
func (it *RowIterator) Next() (*store.Row, error) {
	if it.state == StateClosed {
		return nil, ErrIteratorClosed
	}
	if !it.HasNext() {
		if it.err != nil {
			return nil, it.err
		}
		return nil, ErrNoMoreRows
	}

	row := it.next
	marker := it.nextMarker
	it.next = nil
	it.lastMarker = &marker
	it.stats.Emitted++
	it.metrics.emitted()

	if it.stats.Emitted >= it.limit {
		it.exhaust()
	} else {
		it.state = StateResolving
	}
	return row, nil
}

// Err returns the error that ended the scan, if any.
func (it *RowIterator) Err() error { return it.err }

// Remove is not supported: rows are removed through the store.
func (it *RowIterator) Remove() error { return ErrUnsupportedOperation }

// Cursor resumes after the last emitted row, or is nil if nothing was
// emitted.
func (it *RowIterator) Cursor() *search.Cursor {
	if it.lastMarker == nil {
		return nil
	}
	c := it.desc.Cursor(*it.lastMarker)
	return &c
}

// Truncated reports whether the fetch cap ended the scan early.
func (it *RowIterator) Truncated() bool { return it.truncated }

// Stats returns the scan counters so far.
func (it *RowIterator) Stats() Stats { return it.stats }

// Close ends the scan and releases its snapshot. It is safe to call in any
// state and more than once.
func (it *RowIterator) Close() error {
	if it.state == StateClosed {
		return nil
	}
	prev := it.state
	it.state = StateClosed
	it.next = nil
	it.batch = nil
	it.release()
	it.logger.Debug("scan closed",
		"from_state", prev.String(),
		"fetches", it.stats.Fetches,
		"hits", it.stats.Hits,
		"stale", it.stats.Stale,
		"emitted", it.stats.Emitted,
	)
	return nil
}

// advance moves toward StateReady, fetching and resolving as needed, and
// stops in Ready, Exhausted or Failed.
func (it *RowIterator) advance() {
	for {
		if it.stats.Emitted >= it.limit {
			it.exhaust()
			return
		}

		if it.pos >= len(it.batch) {
			if it.engineDone {
				it.exhaust()
				return
			}
			if it.cfg.MaxFetches > 0 && it.stats.Fetches >= it.cfg.MaxFetches {
				it.truncated = true
				it.metrics.wasTruncated()
				it.logger.Warn("scan truncated by fetch cap",
					"max_fetches", it.cfg.MaxFetches,
					"stale", it.stats.Stale,
				)
				it.exhaust()
				return
			}
			if err := it.fetch(); err != nil {
				it.fail(err)
				return
			}
			continue
		}

		it.state = StateResolving
		hit := it.batch[it.pos]
		it.pos++

		row, err := it.resolve(hit)
		if err != nil {
			it.fail(err)
			return
		}
		if row == nil {
			continue
		}
		it.next = row
		it.nextMarker = hit.Marker
		it.state = StateReady
		return
	}
}

// fetch requests the next batch after the last fetched hit.
func (it *RowIterator) fetch() error {
	it.state = StateFetching
	if err := it.ctx.Err(); err != nil {
		return err
	}

	n := min(it.cfg.BatchSize, it.limit-it.stats.Emitted)
	start := time.Now()
	hits, err := it.handle.Searcher().Search(it.ctx, it.desc.Request(it.fetchAfter, n))
	if err != nil {
		return fmt.Errorf("fetch hits: %w", err)
	}
	it.metrics.fetched(len(hits), time.Since(start))

	it.stats.Fetches++
	it.stats.Hits += len(hits)
	it.batch = hits
	it.pos = 0
	if len(hits) < n {
		it.engineDone = true
	}
	if len(hits) > 0 {
		last := hits[len(hits)-1].Marker
		it.fetchAfter = &last
	}
	it.logger.Debug("batch fetched", "requested", n, "returned", len(hits))
	return nil
}

// resolve looks up the live row behind hit. A nil row with a nil error
// means the hit is stale.
func (it *RowIterator) resolve(hit search.RankedHit) (*store.Row, error) {
	if err := it.ctx.Err(); err != nil {
		return nil, err
	}
	row, err := it.reader.Lookup(it.ctx, hit.Key, it.lookupFields)
	if errors.Is(err, store.ErrNotFound) {
		it.discard(hit, staleDeleted)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve row %q: %w", hit.Key, err)
	}

	if row.Version != hit.Version {
		ok, err := it.stillMatches(row)
		if err != nil {
			return nil, fmt.Errorf("recheck row %q: %w", hit.Key, err)
		}
		if !ok {
			it.discard(hit, staleChanged)
			return nil, nil
		}
	}
	if len(it.desc.Fields) > 0 && len(it.lookupFields) != len(it.desc.Fields) {
		row = row.Project(it.desc.Fields)
	}
	return row, nil
}

// stillMatches evaluates the compiled query and filter against a row that
// changed after it was indexed.
func (it *RowIterator) stillMatches(row *store.Row) (bool, error) {
	ok, err := it.compiler.Eval(it.desc.Query, row.Fields)
	if err != nil || !ok {
		return false, err
	}
	if it.desc.Filter == nil {
		return true, nil
	}
	return it.compiler.Eval(it.desc.Filter, row.Fields)
}

func (it *RowIterator) discard(hit search.RankedHit, reason string) {
	it.stats.Stale++
	it.metrics.stale(reason)
	it.logger.Debug("stale hit discarded", "key", hit.Key, "indexed_version", hit.Version, "reason", reason)
}

func (it *RowIterator) exhaust() {
	it.state = StateExhausted
	it.batch = nil
	it.release()
}

func (it *RowIterator) fail(err error) {
	it.err = err
	it.state = StateFailed
	it.batch = nil
	it.next = nil
	it.metrics.failed()
	it.logger.Warn("scan failed", "error", err, "emitted", it.stats.Emitted)
	it.release()
}

// release returns the snapshot handle. It runs once per scan whichever way
// the scan ends.
func (it *RowIterator) release() {
	if it.released {
		return
	}
	it.released = true
	it.handle.Release()
	it.metrics.released()
}
