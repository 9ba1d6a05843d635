package snapshot

import (
	"fmt"
	"sync/atomic"
	"time"

	"GoRowSearch/internal/search"
)

// DoubleReleaseError is the panic value when a handle is released twice or
// handed to a manager that did not issue it. Either is a caller bug that
// would otherwise corrupt the reference count.
type DoubleReleaseError struct {
	HandleID   uint64
	Generation uint64
}

func (e *DoubleReleaseError) Error() string {
	return fmt.Sprintf("snapshot: handle %d (generation %d) released more than once", e.HandleID, e.Generation)
}

// Handle pins one snapshot for the duration of a scan. Every handle returned
// by Manager.Acquire must be released exactly once.
type Handle struct {
	// ID is unique per manager.
	ID uint64

	// Generation is the snapshot generation this handle observes.
	Generation uint64

	// AcquiredAt is when this handle was acquired.
	AcquiredAt time.Time

	searcher search.Searcher
	manager  *Manager
	released atomic.Bool
}

// Searcher returns the pinned snapshot. It is valid until Release.
func (h *Handle) Searcher() search.Searcher {
	return h.searcher
}

// Release returns the handle to its manager. A second call panics with
// *DoubleReleaseError.
func (h *Handle) Release() {
	h.manager.Release(h)
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// HeldDuration returns how long this handle has been held.
func (h *Handle) HeldDuration() time.Duration {
	return time.Since(h.AcquiredAt)
}
