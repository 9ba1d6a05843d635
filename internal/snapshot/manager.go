// Package snapshot hands out reference-counted handles to the current search
// index snapshot and defers refresh and close until no handle is held.
package snapshot

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"GoRowSearch/internal/search"
)

var (
	ErrManagerClosed = errors.New("snapshot manager closed")
)

// State is the manager's lifecycle state.
type State int

const (
	StateIdle   State = iota // no handle outstanding; refresh and close apply at once
	StateActive              // handles outstanding; refresh and close are queued
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

// Manager owns the current snapshot of one index.
//
// Concurrency model:
//   - mu serializes every refcount change and the swap/close bookkeeping.
//   - Snapshots are closed outside mu so a slow Close never blocks Acquire.
//   - Reads through a handle's Searcher take no lock here.
type Manager struct {
	mu         sync.Mutex
	current    search.Searcher
	generation uint64
	refCount   int
	handles    map[uint64]*Handle

	pending    search.Searcher // refresh queued while Active
	pendingGen uint64
	closing    bool // Close queued while Active
	closed     bool

	nextHandleID atomic.Uint64
	logger       *slog.Logger

	// LeakThreshold is the duration after which a held handle is reported
	// by DetectLeaks. Zero disables leak detection.
	LeakThreshold time.Duration
}

// NewManager creates a Manager serving initial as generation 1.
func NewManager(initial search.Searcher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		current:       initial,
		generation:    1,
		handles:       make(map[uint64]*Handle),
		logger:        logger.With("component", "snapshot"),
		LeakThreshold: 5 * time.Minute,
	}
}

// Acquire pins the current snapshot. The caller MUST call Release exactly
// once on the returned handle.
func (m *Manager) Acquire() (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.closing {
		return nil, ErrManagerClosed
	}

	h := &Handle{
		ID:         m.nextHandleID.Add(1),
		Generation: m.generation,
		AcquiredAt: time.Now(),
		searcher:   m.current,
		manager:    m,
	}
	m.refCount++
	m.handles[h.ID] = h

	m.logger.Debug("snapshot acquired",
		"handle_id", h.ID,
		"generation", h.Generation,
		"ref_count", m.refCount,
	)
	return h, nil
}

// Release unpins a handle. When the last handle goes, a queued refresh is
// applied and a queued close is carried out.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	if h.manager != m || !h.released.CompareAndSwap(false, true) {
		panic(&DoubleReleaseError{HandleID: h.ID, Generation: h.Generation})
	}

	var toClose []search.Searcher

	m.mu.Lock()
	if _, ok := m.handles[h.ID]; !ok {
		m.mu.Unlock()
		panic(&DoubleReleaseError{HandleID: h.ID, Generation: h.Generation})
	}
	delete(m.handles, h.ID)
	m.refCount--
	if m.refCount < 0 {
		m.mu.Unlock()
		panic("snapshot: ref count went negative")
	}
	refCount := m.refCount
	if refCount == 0 {
		toClose = m.drainLocked()
	}
	m.mu.Unlock()

	m.logger.Debug("snapshot released",
		"handle_id", h.ID,
		"generation", h.Generation,
		"held_duration", h.HeldDuration(),
		"ref_count", refCount,
	)
	m.closeAll(toClose)
}

// drainLocked applies queued work on the Active→Idle edge and returns the
// snapshots to close. Callers hold mu.
func (m *Manager) drainLocked() []search.Searcher {
	var toClose []search.Searcher
	if m.pending != nil {
		toClose = append(toClose, m.current)
		m.current, m.generation = m.pending, m.pendingGen
		m.pending = nil
		m.logger.Info("deferred refresh applied", "generation", m.generation)
	}
	if m.closing {
		toClose = append(toClose, m.current)
		m.current = nil
		m.closing = false
		m.closed = true
		m.logger.Info("deferred close applied", "generation", m.generation)
	}
	return toClose
}

// Refresh installs next as the current snapshot. While Idle the swap is
// immediate and the old snapshot is closed; while Active it is queued, and
// a newer refresh replaces (and closes) an older queued one.
func (m *Manager) Refresh(next search.Searcher) error {
	var toClose []search.Searcher

	m.mu.Lock()
	if m.closed || m.closing {
		m.mu.Unlock()
		m.closeAll([]search.Searcher{next})
		return ErrManagerClosed
	}

	gen := m.generation + 1
	if m.pending != nil {
		gen = m.pendingGen + 1
	}

	if m.refCount == 0 {
		toClose = append(toClose, m.current)
		m.current, m.generation = next, gen
		m.logger.Info("snapshot refreshed", "generation", gen)
	} else {
		if m.pending != nil {
			toClose = append(toClose, m.pending)
		}
		m.pending, m.pendingGen = next, gen
		m.logger.Debug("snapshot refresh queued", "generation", gen, "ref_count", m.refCount)
	}
	m.mu.Unlock()

	return m.closeAll(toClose)
}

// Close closes the current snapshot once no handle is outstanding. It is
// idempotent; subsequent Acquire and Refresh calls fail with ErrManagerClosed.
func (m *Manager) Close() error {
	var toClose []search.Searcher

	m.mu.Lock()
	if m.closed || m.closing {
		m.mu.Unlock()
		return nil
	}
	if m.pending != nil {
		toClose = append(toClose, m.pending)
		m.pending = nil
	}
	if m.refCount == 0 {
		toClose = append(toClose, m.current)
		m.current = nil
		m.closed = true
		m.logger.Info("snapshot manager closed", "generation", m.generation)
	} else {
		m.closing = true
		m.logger.Info("snapshot manager close deferred", "ref_count", m.refCount)
	}
	m.mu.Unlock()

	return m.closeAll(toClose)
}

func (m *Manager) closeAll(searchers []search.Searcher) error {
	var errs []error
	for _, s := range searchers {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			m.logger.Warn("snapshot close failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return StateClosed
	case m.refCount > 0:
		return StateActive
	default:
		return StateIdle
	}
}

// RefCount returns the number of outstanding handles.
func (m *Manager) RefCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refCount
}

// Generation returns the generation new handles observe.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// DetectLeaks returns handles that have been held longer than LeakThreshold.
func (m *Manager) DetectLeaks() []*Handle {
	if m.LeakThreshold <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var leaks []*Handle
	for _, h := range m.handles {
		if h.HeldDuration() > m.LeakThreshold {
			leaks = append(leaks, h)
		}
	}
	return leaks
}
