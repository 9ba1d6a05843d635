package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"GoRowSearch/internal/condition"
	"GoRowSearch/internal/engine"
	"GoRowSearch/internal/geo"
	"GoRowSearch/internal/search"
	"GoRowSearch/internal/snapshot"
	"GoRowSearch/internal/store"
	"GoRowSearch/internal/testutil"
)

type fixture struct {
	store    *store.Memory
	index    *engine.Index
	manager  *snapshot.Manager
	compiler *condition.Compiler
	metrics  *Metrics
	scanner  *Scanner
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	schema := testutil.RowSchema()
	st := store.NewMemory()
	ix, err := engine.NewIndex(schema, engine.Options{})
	require.NoError(t, err)
	testutil.Seed(t, testutil.SampleRows(), st, ix)
	snap, err := ix.Refresh()
	require.NoError(t, err)

	f := &fixture{
		store:    st,
		index:    ix,
		manager:  snapshot.NewManager(snap, nil),
		compiler: condition.NewCompiler(schema),
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	f.scanner = NewScanner(f.manager, f.compiler, cfg, f.metrics, nil)
	t.Cleanup(func() { f.manager.Close() })
	return f
}

func (f *fixture) build(t *testing.T, req search.BuildRequest) *search.Descriptor {
	t.Helper()
	d, err := search.Build(f.compiler, req)
	require.NoError(t, err)
	return d
}

func (f *fixture) refresh(t *testing.T) {
	t.Helper()
	snap, err := f.index.Refresh()
	require.NoError(t, err)
	require.NoError(t, f.manager.Refresh(snap))
}

func (f *fixture) page(t *testing.T, req search.BuildRequest) *Page {
	t.Helper()
	p, err := f.scanner.Page(context.Background(), f.build(t, req), store.ReadCommand{Store: f.store})
	require.NoError(t, err)
	return p
}

func rowKeys(rows []*store.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key
	}
	return out
}

func drain(t *testing.T, it *RowIterator) []string {
	t.Helper()
	var out []string
	for it.HasNext() {
		row, err := it.Next()
		require.NoError(t, err)
		out = append(out, row.Key)
	}
	require.NoError(t, it.Err())
	return out
}

var active = &condition.Match{Field: "status", Value: "active"}

func TestScan_EndToEndPagination(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	full := f.page(t, search.BuildRequest{Condition: active, Limit: 10})
	assert.Equal(t, []string{"row-1", "row-3", "row-4"}, rowKeys(full.Rows))

	first := f.page(t, search.BuildRequest{Condition: active, Limit: 2})
	require.Equal(t, []string{"row-1", "row-3"}, rowKeys(first.Rows))
	require.NotNil(t, first.Cursor)

	// The cursor survives a round trip through its token form.
	cursor, err := search.DecodeCursor(first.Cursor.Encode())
	require.NoError(t, err)

	second := f.page(t, search.BuildRequest{Condition: active, Limit: 2, Cursor: &cursor})
	assert.Equal(t, []string{"row-4"}, rowKeys(second.Rows))

	third := f.page(t, search.BuildRequest{Condition: active, Limit: 2, Cursor: second.Cursor})
	assert.Empty(t, third.Rows)
	assert.Nil(t, third.Cursor)

	assert.Equal(t, 0, f.manager.RefCount())
	assert.Equal(t, float64(4), promtest.ToFloat64(f.metrics.scansOpened))
	assert.Equal(t, float64(6), promtest.ToFloat64(f.metrics.rowsEmitted))
	assert.Equal(t, float64(0), promtest.ToFloat64(f.metrics.openScans))
}

func TestScan_CursorMismatch(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	first := f.page(t, search.BuildRequest{Condition: active, Limit: 1})

	_, err := search.Build(f.compiler, search.BuildRequest{
		Condition: active,
		Sort:      search.Sort{{Field: "price"}},
		Cursor:    first.Cursor,
		Limit:     1,
	})
	assert.ErrorIs(t, err, search.ErrCursorMismatch)
}

func TestScan_StaleHits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())

	// The index still holds row-1 and row-3 as active.
	require.NoError(t, f.store.Delete(ctx, "row-3"))
	_, err := f.store.Put(ctx, "row-1", map[string]any{"status": "archived"})
	require.NoError(t, err)
	_, err = f.store.Put(ctx, "row-4", map[string]any{"status": "active", "title": "Rewritten"})
	require.NoError(t, err)

	p := f.page(t, search.BuildRequest{Condition: active, Limit: 1})
	require.Equal(t, []string{"row-4"}, rowKeys(p.Rows))
	assert.Equal(t, "Rewritten", p.Rows[0].Fields["title"])
	assert.Equal(t, uint64(2), p.Rows[0].Version)
	assert.Equal(t, 2, p.Stats.Stale)
	assert.Equal(t, 1, p.Stats.Emitted)

	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.staleHits.WithLabelValues(staleDeleted)))
	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.staleHits.WithLabelValues(staleChanged)))
}

func TestScan_StaleHitsRefetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{BatchSize: 2})
	require.NoError(t, f.store.Delete(ctx, "row-1"))

	p := f.page(t, search.BuildRequest{Condition: active, Limit: 2})
	assert.Equal(t, []string{"row-3", "row-4"}, rowKeys(p.Rows))
	assert.Equal(t, 2, p.Stats.Fetches)
	assert.Equal(t, 3, p.Stats.Hits)
	assert.False(t, p.Truncated)
}

func TestScan_CursorSkipsStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	require.NoError(t, f.store.Delete(ctx, "row-3"))

	var got []string
	var cursor *search.Cursor
	for range 5 {
		p := f.page(t, search.BuildRequest{Condition: active, Limit: 1, Cursor: cursor})
		if len(p.Rows) == 0 {
			break
		}
		got = append(got, rowKeys(p.Rows)...)
		cursor = p.Cursor
	}
	assert.Equal(t, []string{"row-1", "row-4"}, got)
}

func TestScan_ProjectsFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	_, err := f.store.Put(ctx, "row-1", map[string]any{"status": "active", "title": "New title", "price": 1.0})
	require.NoError(t, err)

	p := f.page(t, search.BuildRequest{Condition: active, Limit: 1, Fields: []string{"title"}})
	require.Len(t, p.Rows, 1)
	assert.Equal(t, map[string]any{"title": "New title"}, p.Rows[0].Fields)
}

func TestScan_BatchSizeIndependentOfLimit(t *testing.T) {
	req := search.BuildRequest{
		Condition: &condition.All{},
		Sort:      search.Sort{{Field: "price"}},
		Limit:     10,
	}
	want := []string{"row-3", "row-1", "row-2", "row-4", "row-5"}

	small := newFixture(t, Config{BatchSize: 1})
	p := small.page(t, req)
	assert.Equal(t, want, rowKeys(p.Rows))
	assert.Equal(t, 6, p.Stats.Fetches)

	large := newFixture(t, DefaultConfig())
	p = large.page(t, req)
	assert.Equal(t, want, rowKeys(p.Rows))
	assert.Equal(t, 1, p.Stats.Fetches)
}

func TestScan_MaxFetches(t *testing.T) {
	f := newFixture(t, Config{BatchSize: 1, MaxFetches: 2})
	p := f.page(t, search.BuildRequest{Condition: &condition.All{}, Sort: search.Sort{{Field: "price"}}, Limit: 10})
	assert.Equal(t, []string{"row-3", "row-1"}, rowKeys(p.Rows))
	assert.True(t, p.Truncated)
	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.truncated))
}

func TestScan_ReadCommandLimit(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	d := f.build(t, search.BuildRequest{Condition: active, Limit: 10})
	p, err := f.scanner.Page(context.Background(), d, store.ReadCommand{Store: f.store, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"row-1"}, rowKeys(p.Rows))
}

func TestScan_PaginationMatchesFullScan(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	madrid := geo.LatLng{Lat: 40.4168, Lon: -3.7038}

	tests := []struct {
		name string
		cond condition.Condition
		sort search.Sort
	}{
		{name: "score", cond: &condition.Match{Field: "title", Value: "search index query"}},
		{name: "price asc", cond: &condition.All{}, sort: search.Sort{{Field: "price"}}},
		{name: "status desc", cond: &condition.All{}, sort: search.Sort{{Field: "status", Reverse: true}}},
		{name: "tags then price", cond: &condition.All{}, sort: search.Sort{{Field: "tags"}, {Field: "price", Reverse: true}}},
		{name: "distance", cond: &condition.All{}, sort: search.Sort{{Field: "location", GeoOrigin: &madrid}}},
		{name: "wildcard", cond: &condition.Wildcard{Field: "title", Value: "*e*"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			full := f.page(t, search.BuildRequest{Condition: tt.cond, Sort: tt.sort, Limit: 100})
			require.NotEmpty(t, full.Rows)

			for _, size := range []int{1, 2, 3} {
				var paged []string
				var cursor *search.Cursor
				for {
					p := f.page(t, search.BuildRequest{Condition: tt.cond, Sort: tt.sort, Limit: size, Cursor: cursor})
					paged = append(paged, rowKeys(p.Rows)...)
					if len(p.Rows) < size {
						break
					}
					cursor = p.Cursor
				}
				assert.Equal(t, rowKeys(full.Rows), paged, "page size %d", size)
			}
		})
	}
}

func TestScan_CloseReleasesOnce(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	d := f.build(t, search.BuildRequest{Condition: active, Limit: 10})

	it, err := f.scanner.OpenScan(context.Background(), d, store.ReadCommand{Store: f.store})
	require.NoError(t, err)
	assert.Equal(t, StateCreated, it.State())
	assert.NotEmpty(t, it.ID())
	assert.Equal(t, 1, f.manager.RefCount())

	require.True(t, it.HasNext())
	assert.Equal(t, StateReady, it.State())
	assert.ErrorIs(t, it.Remove(), ErrUnsupportedOperation)

	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	assert.Equal(t, StateClosed, it.State())
	assert.Equal(t, 0, f.manager.RefCount())
	assert.False(t, it.HasNext())
	_, err = it.Next()
	assert.ErrorIs(t, err, ErrIteratorClosed)
}

func TestScan_ExhaustionReleases(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	d := f.build(t, search.BuildRequest{Condition: active, Limit: 10})

	it, err := f.scanner.OpenScan(context.Background(), d, store.ReadCommand{Store: f.store})
	require.NoError(t, err)
	assert.Equal(t, []string{"row-1", "row-3", "row-4"}, drain(t, it))
	assert.Equal(t, StateExhausted, it.State())
	assert.Equal(t, 0, f.manager.RefCount())

	_, err = it.Next()
	assert.ErrorIs(t, err, ErrNoMoreRows)
	require.NoError(t, it.Close())
	assert.Equal(t, 0, f.manager.RefCount())
}

type mockReader struct {
	mock.Mock
}

func (m *mockReader) Lookup(ctx context.Context, key string, fields []string) (*store.Row, error) {
	args := m.Called(ctx, key, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Row), args.Error(1)
}

func TestScan_StoreErrorIsFatal(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	d := f.build(t, search.BuildRequest{Condition: active, Limit: 10})

	boom := errors.New("disk on fire")
	reader := &mockReader{}
	reader.On("Lookup", mock.Anything, "row-1", mock.Anything).
		Return(&store.Row{Key: "row-1", Version: 1, Fields: map[string]any{"status": "active"}}, nil)
	reader.On("Lookup", mock.Anything, "row-3", mock.Anything).Return(nil, boom)

	it, err := f.scanner.OpenScan(context.Background(), d, store.ReadCommand{Store: reader})
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.HasNext())
	row, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "row-1", row.Key)

	assert.False(t, it.HasNext())
	assert.ErrorIs(t, it.Err(), boom)
	_, err = it.Next()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, it.State())
	assert.Equal(t, 0, f.manager.RefCount())
	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.scanFailures))

	reader.AssertExpectations(t)
	reader.AssertNotCalled(t, "Lookup", mock.Anything, "row-4", mock.Anything)
}

func TestScan_CanceledContext(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	d := f.build(t, search.BuildRequest{Condition: active, Limit: 10})

	ctx, cancel := context.WithCancel(context.Background())
	it, err := f.scanner.OpenScan(ctx, d, store.ReadCommand{Store: f.store})
	require.NoError(t, err)
	cancel()

	assert.False(t, it.HasNext())
	assert.ErrorIs(t, it.Err(), context.Canceled)
	assert.Equal(t, 0, f.manager.RefCount())
	require.NoError(t, it.Close())
}

func TestScan_OpenErrors(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	d := f.build(t, search.BuildRequest{Condition: active, Limit: 10})
	ctx := context.Background()

	_, err := f.scanner.OpenScan(ctx, nil, store.ReadCommand{Store: f.store})
	assert.Error(t, err)
	_, err = f.scanner.OpenScan(ctx, d, store.ReadCommand{})
	assert.Error(t, err)

	require.NoError(t, f.manager.Close())
	_, err = f.scanner.OpenScan(ctx, d, store.ReadCommand{Store: f.store})
	assert.ErrorIs(t, err, snapshot.ErrManagerClosed)
}

func TestScan_SnapshotPinnedAcrossRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{BatchSize: 1})
	d := f.build(t, search.BuildRequest{Condition: active, Limit: 10})

	it, err := f.scanner.OpenScan(ctx, d, store.ReadCommand{Store: f.store})
	require.NoError(t, err)
	require.True(t, it.HasNext())

	v, err := f.store.Put(ctx, "row-0", map[string]any{"status": "active"})
	require.NoError(t, err)
	require.NoError(t, f.index.Upsert("row-0", v, map[string]any{"status": "active"}))
	f.refresh(t)
	assert.Equal(t, uint64(1), f.manager.Generation())

	assert.Equal(t, []string{"row-1", "row-3", "row-4"}, drain(t, it))
	require.NoError(t, it.Close())
	assert.Equal(t, uint64(2), f.manager.Generation())

	p := f.page(t, search.BuildRequest{Condition: active, Limit: 10})
	assert.Equal(t, []string{"row-0", "row-1", "row-3", "row-4"}, rowKeys(p.Rows))
}

func TestScan_ConcurrentScansAndRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{BatchSize: 2})

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 25; i++ {
				d, err := search.Build(f.compiler, search.BuildRequest{Condition: active, Limit: 3})
				if err != nil {
					return err
				}
				p, err := f.scanner.Page(gctx, d, store.ReadCommand{Store: f.store})
				if err != nil {
					return err
				}
				if len(p.Rows) != 3 {
					return errors.New("short page")
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for i := 0; i < 25; i++ {
			snap, err := f.index.Refresh()
			if err != nil {
				return err
			}
			if err := f.manager.Refresh(snap); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())
	assert.Equal(t, 0, f.manager.RefCount())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Equal(t, "State(42)", State(42).String())
}
