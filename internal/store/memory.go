package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	rows     map[string]*Row
	versions map[string]uint64 // survives deletes
	closed   bool
	now      func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rows:     make(map[string]*Row),
		versions: make(map[string]uint64),
		now:      time.Now,
	}
}

func (m *Memory) Lookup(ctx context.Context, key string, fields []string) (*Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	r, ok := m.rows[key]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Project(fields), nil
}

func (m *Memory) Put(ctx context.Context, key string, fields map[string]any) (uint64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrStoreClosed
	}
	m.versions[key]++
	v := m.versions[key]
	m.rows[key] = &Row{Key: key, Version: v, Fields: maps.Clone(fields), UpdatedAt: m.now()}
	return v, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if _, ok := m.rows[key]; !ok {
		return ErrNotFound
	}
	delete(m.rows, key)
	return nil
}

func (m *Memory) Scan(ctx context.Context, fn func(*Row) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrStoreClosed
	}
	keys := slices.Sorted(maps.Keys(m.rows))
	rows := make([]*Row, len(keys))
	for i, k := range keys {
		rows[i] = m.rows[k].Project(nil)
	}
	m.mu.RUnlock()

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of live rows.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
