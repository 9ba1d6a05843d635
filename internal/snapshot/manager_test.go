package snapshot

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"GoRowSearch/internal/search"
)

// fakeSearcher counts closes and records whether it was closed while its
// manager still had handles outstanding.
type fakeSearcher struct {
	name        string
	closes      atomic.Int32
	closedInUse atomic.Bool
	manager     *Manager
	closeErr    error
}

func (f *fakeSearcher) Search(context.Context, search.Request) ([]search.RankedHit, error) {
	return nil, nil
}

func (f *fakeSearcher) Close() error {
	f.closes.Add(1)
	if f.manager != nil && pinned(f.manager, f) {
		f.closedInUse.Store(true)
	}
	return f.closeErr
}

// pinned reports whether any outstanding handle of m holds s.
func pinned(m *Manager, s search.Searcher) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.handles {
		if h.searcher == s {
			return true
		}
	}
	return false
}

func newManager(t *testing.T) (*Manager, *fakeSearcher) {
	t.Helper()
	s := &fakeSearcher{name: "gen1"}
	m := NewManager(s, nil)
	s.manager = m
	return m, s
}

func TestManager_AcquireRelease(t *testing.T) {
	m, s := newManager(t)
	assert.Equal(t, StateIdle, m.State())

	h1, err := m.Acquire()
	require.NoError(t, err)
	h2, err := m.Acquire()
	require.NoError(t, err)

	assert.Equal(t, StateActive, m.State())
	assert.Equal(t, 2, m.RefCount())
	assert.Same(t, h1.Searcher(), h2.Searcher())
	assert.NotEqual(t, h1.ID, h2.ID)

	h1.Release()
	assert.True(t, h1.Released())
	assert.Equal(t, StateActive, m.State())
	h2.Release()
	assert.Equal(t, StateIdle, m.State())
	assert.Zero(t, s.closes.Load())
}

func TestManager_DoubleReleasePanics(t *testing.T) {
	m, _ := newManager(t)
	h, err := m.Acquire()
	require.NoError(t, err)
	h.Release()

	defer func() {
		r := recover()
		require.NotNil(t, r, "second release must panic")
		var dre *DoubleReleaseError
		require.True(t, errors.As(r.(error), &dre))
		assert.Equal(t, h.ID, dre.HandleID)
		assert.Zero(t, m.RefCount(), "refcount must not be corrupted")
	}()
	h.Release()
}

func TestManager_ForeignHandlePanics(t *testing.T) {
	m1, _ := newManager(t)
	m2, _ := newManager(t)
	h, err := m1.Acquire()
	require.NoError(t, err)

	assert.PanicsWithError(t, (&DoubleReleaseError{HandleID: h.ID, Generation: 1}).Error(), func() {
		m2.Release(h)
	})
	h.Release()
}

func TestManager_RefreshIdle(t *testing.T) {
	m, old := newManager(t)
	next := &fakeSearcher{name: "gen2", manager: m}

	require.NoError(t, m.Refresh(next))
	assert.Equal(t, int32(1), old.closes.Load())
	assert.Equal(t, uint64(2), m.Generation())

	h, err := m.Acquire()
	require.NoError(t, err)
	assert.Same(t, next, h.Searcher())
	assert.Equal(t, uint64(2), h.Generation)
	h.Release()
}

func TestManager_RefreshDeferredWhileActive(t *testing.T) {
	m, old := newManager(t)
	h, err := m.Acquire()
	require.NoError(t, err)

	gen2 := &fakeSearcher{name: "gen2", manager: m}
	gen3 := &fakeSearcher{name: "gen3", manager: m}
	require.NoError(t, m.Refresh(gen2))
	require.NoError(t, m.Refresh(gen3))

	assert.Zero(t, old.closes.Load(), "in-use snapshot closed early")
	assert.Equal(t, int32(1), gen2.closes.Load(), "superseded queued snapshot is closed")

	// Acquisitions while Active share the pinned snapshot.
	h2, err := m.Acquire()
	require.NoError(t, err)
	assert.Same(t, old, h2.Searcher())

	h.Release()
	h2.Release()

	assert.Equal(t, int32(1), old.closes.Load())
	assert.False(t, old.closedInUse.Load())
	assert.Equal(t, uint64(3), m.Generation())

	h3, err := m.Acquire()
	require.NoError(t, err)
	assert.Same(t, gen3, h3.Searcher())
	h3.Release()
}

func TestManager_CloseDeferred(t *testing.T) {
	m, s := newManager(t)
	h, err := m.Acquire()
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.Zero(t, s.closes.Load())
	_, err = m.Acquire()
	assert.ErrorIs(t, err, ErrManagerClosed)

	h.Release()
	assert.Equal(t, int32(1), s.closes.Load())
	assert.Equal(t, StateClosed, m.State())

	require.NoError(t, m.Close())
	assert.Equal(t, int32(1), s.closes.Load(), "close is idempotent")

	next := &fakeSearcher{}
	assert.ErrorIs(t, m.Refresh(next), ErrManagerClosed)
	assert.Equal(t, int32(1), next.closes.Load(), "rejected refresh closes its snapshot")
}

func TestManager_CloseError(t *testing.T) {
	s := &fakeSearcher{closeErr: errors.New("disk on fire")}
	m := NewManager(s, nil)
	assert.ErrorContains(t, m.Close(), "disk on fire")
}

func TestManager_DetectLeaks(t *testing.T) {
	m, _ := newManager(t)
	m.LeakThreshold = time.Millisecond

	h, err := m.Acquire()
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	leaks := m.DetectLeaks()
	require.Len(t, leaks, 1)
	assert.Equal(t, h.ID, leaks[0].ID)

	h.Release()
	assert.Empty(t, m.DetectLeaks())

	m.LeakThreshold = 0
	assert.Nil(t, m.DetectLeaks())
}

// Concurrent acquire/release pairs with a close issued midway: the snapshot
// is closed exactly once, only after the last release, and never while a
// handle is outstanding.
func TestManager_ConcurrentCloseOnlyWhenIdle(t *testing.T) {
	const workers = 32
	m, s := newManager(t)

	handles := make(chan *Handle, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			h, err := m.Acquire()
			if err != nil {
				return err
			}
			handles <- h
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(handles)

	require.NoError(t, m.Close())
	assert.Zero(t, s.closes.Load())

	var rg errgroup.Group
	for h := range handles {
		rg.Go(func() error {
			h.Release()
			return nil
		})
	}
	require.NoError(t, rg.Wait())

	assert.Equal(t, int32(1), s.closes.Load())
	assert.False(t, s.closedInUse.Load())
	assert.Equal(t, StateClosed, m.State())
	assert.Zero(t, m.RefCount())
}

func TestManager_ConcurrentRefreshAndScans(t *testing.T) {
	m, _ := newManager(t)
	var created []*fakeSearcher

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			for j := 0; j < 50; j++ {
				h, err := m.Acquire()
				if err != nil {
					return err
				}
				if _, err := h.Searcher().Search(context.Background(), search.Request{}); err != nil {
					return err
				}
				h.Release()
			}
			return nil
		})
	}
	for i := 0; i < 20; i++ {
		s := &fakeSearcher{manager: m}
		created = append(created, s)
		require.NoError(t, m.Refresh(s))
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, StateIdle, m.State())
	for _, s := range created {
		assert.False(t, s.closedInUse.Load())
		assert.LessOrEqual(t, s.closes.Load(), int32(1))
	}
}
