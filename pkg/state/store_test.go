package state

import (
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/json"
	"github.com/mounirtms/gridcore/pkg/storage"
)

// flakyStore fails the first failSet writes, then delegates.
type flakyStore struct {
	mu      sync.Mutex
	inner   storage.Store
	failSet int
	sets    int
}

func (f *flakyStore) Get(key string) ([]byte, error) { return f.inner.Get(key) }

func (f *flakyStore) Set(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.failSet > 0 {
		f.failSet--
		return stderrors.New("disk full")
	}
	return f.inner.Set(key, value)
}

func (f *flakyStore) Delete(key string) error { return f.inner.Delete(key) }

func (f *flakyStore) Keys(prefix string) ([]string, error) { return f.inner.Keys(prefix) }

func newTestStore(t *testing.T, st storage.Store) *Store {
	t.Helper()
	s := NewStore(Config{
		GridName: "orders",
		Storage:  st,
		// Long delay so saves only happen when tests call Flush.
		SaveDelay: time.Hour,
	})
	t.Cleanup(s.Close)
	return s
}

func sampleFilter() FilterModel {
	return FilterModel{
		Items: []FilterItem{
			{Field: "status", Operator: OpEquals, Value: "shipped"},
		},
		Logic: FilterAnd,
	}
}

func TestStoreDefaults(t *testing.T) {
	s := newTestStore(t, nil)

	assert.Equal(t, PaginationModel{Page: 0, PageSize: DefaultPageSize}, s.Pagination())
	assert.Empty(t, s.Sort())
	assert.True(t, s.Filter().IsZero())
	assert.Empty(t, s.Selection())
	assert.Equal(t, DensityStandard, s.View().Density)
	assert.Equal(t, ViewTable, s.View().ViewMode)
}

func TestStoreCustomDefaults(t *testing.T) {
	s := NewStore(Config{
		GridName: "orders",
		Defaults: Defaults{PageSize: 100, Density: DensityCompact, ViewMode: ViewCard},
	})
	defer s.Close()

	assert.Equal(t, 100, s.Pagination().PageSize)
	assert.Equal(t, DensityCompact, s.View().Density)
	assert.Equal(t, ViewCard, s.View().ViewMode)
}

func TestStoreGettersReturnCopies(t *testing.T) {
	s := newTestStore(t, nil)
	s.SetSort(SortModel{{Field: "name", Direction: SortAsc}})
	s.SetSelection(SelectionModel{"1", "2"})

	sort := s.Sort()
	sort[0].Field = "mutated"
	assert.Equal(t, "name", s.Sort()[0].Field)

	sel := s.Selection()
	sel[0] = "mutated"
	assert.Equal(t, RowID("1"), s.Selection()[0])

	f := s.Filter()
	s.SetFilter(sampleFilter())
	got := s.Filter()
	got.Items[0].Value = "mutated"
	assert.Equal(t, "shipped", s.Filter().Items[0].Value)
	assert.True(t, f.IsZero())
}

func TestStoreOneEventPerCommit(t *testing.T) {
	s := newTestStore(t, nil)

	var mu sync.Mutex
	var events []Event
	unsub := s.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	defer unsub()

	s.SetPagination(PaginationModel{Page: 2, PageSize: 50})
	s.SetSort(SortModel{{Field: "name", Direction: SortDesc}})
	s.SetFilter(sampleFilter())
	s.SetSelection(SelectionModel{"1"})
	s.SetSearch("anvil")
	s.SetViewMode(ViewCard)
	s.Reset()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 7)
	kinds := make([]EventKind, len(events))
	for i, ev := range events {
		assert.Equal(t, "orders", ev.Grid)
		kinds[i] = ev.Kind
	}
	assert.Equal(t, []EventKind{
		EventPagination, EventSort, EventFilter, EventSelection,
		EventSearch, EventView, EventReset,
	}, kinds)
}

func TestStoreSubscriberMayReadBack(t *testing.T) {
	s := newTestStore(t, nil)

	var got PaginationModel
	s.Subscribe(func(Event) {
		got = s.Pagination()
	})

	s.SetPagination(PaginationModel{Page: 3, PageSize: 25})
	assert.Equal(t, 3, got.Page)
}

func TestStoreUnsubscribeStopsDelivery(t *testing.T) {
	s := newTestStore(t, nil)

	calls := 0
	unsub := s.Subscribe(func(Event) { calls++ })

	s.SetSearch("a")
	unsub()
	s.SetSearch("b")

	assert.Equal(t, 1, calls)
}

func TestStoreExportImportRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	s.SetPagination(PaginationModel{Page: 4, PageSize: 50})
	s.SetSort(SortModel{{Field: "price", Direction: SortDesc}, {Field: "sku", Direction: SortAsc}})
	s.SetFilter(sampleFilter())
	s.SetSelection(SelectionModel{"7", "9"})
	s.SetSearch("rope")
	s.SetDensity(DensityComfortable)

	snap, err := s.Export()
	require.NoError(t, err)
	first, err := json.Marshal(snap)
	require.NoError(t, err)

	require.NoError(t, s.Import(snap))
	again, err := s.Export()
	require.NoError(t, err)
	second, err := json.Marshal(again)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestStoreImportRejectsUnknownVersion(t *testing.T) {
	s := newTestStore(t, nil)

	err := s.Import(Snapshot{Version: 99})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestStoreImportIsSingleEvent(t *testing.T) {
	s := newTestStore(t, nil)
	s.SetSelection(SelectionModel{"1"})
	snap, err := s.Export()
	require.NoError(t, err)

	events := 0
	s.Subscribe(func(Event) { events++ })

	require.NoError(t, s.Import(snap))
	assert.Equal(t, 1, events)
}

func TestStoreResetRestoresDefaults(t *testing.T) {
	s := newTestStore(t, nil)
	s.SetPagination(PaginationModel{Page: 9, PageSize: 100})
	s.SetSort(SortModel{{Field: "name", Direction: SortAsc}})
	s.SetSelection(SelectionModel{"1", "2"})
	s.SetSearch("x")

	s.Reset()

	assert.Equal(t, PaginationModel{Page: 0, PageSize: DefaultPageSize}, s.Pagination())
	assert.Empty(t, s.Sort())
	assert.Empty(t, s.Selection())
	assert.Empty(t, s.View().SearchValue)
	assert.Equal(t, ViewTable, s.View().ViewMode)
}

func TestStorePersistAndReload(t *testing.T) {
	mem := storage.NewMemoryStore()

	s := newTestStore(t, mem)
	s.SetPagination(PaginationModel{Page: 2, PageSize: 50})
	s.SetSelection(SelectionModel{"42"})
	s.SetViewMode(ViewCard)
	s.Flush()

	raw, err := mem.Get(StateKey("orders"))
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	reloaded := newTestStore(t, mem)
	assert.Equal(t, PaginationModel{Page: 2, PageSize: 50}, reloaded.Pagination())
	assert.Equal(t, SelectionModel{"42"}, reloaded.Selection())
	assert.Equal(t, ViewCard, reloaded.View().ViewMode)
}

func TestStoreSavesAreDebounced(t *testing.T) {
	mem := storage.NewMemoryStore()
	wrapped := &flakyStore{inner: mem}

	s := newTestStore(t, wrapped)
	s.SetSearch("a")
	s.SetSearch("ab")
	s.SetSearch("abc")
	s.Flush()

	wrapped.mu.Lock()
	sets := wrapped.sets
	wrapped.mu.Unlock()
	assert.Equal(t, 1, sets)

	reloaded := newTestStore(t, mem)
	assert.Equal(t, "abc", reloaded.View().SearchValue)
}

func TestStoreSaveFailureRetriesOnNextWrite(t *testing.T) {
	mem := storage.NewMemoryStore()
	wrapped := &flakyStore{inner: mem, failSet: 1}

	s := newTestStore(t, wrapped)
	s.SetSearch("lost")
	s.Flush()

	_, err := mem.Get(StateKey("orders"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	// In-memory state stays authoritative after the failed write.
	assert.Equal(t, "lost", s.View().SearchValue)

	s.SetSearch("kept")
	s.Flush()

	reloaded := newTestStore(t, mem)
	assert.Equal(t, "kept", reloaded.View().SearchValue)
}

func TestStoreCorruptSnapshotFallsBackToDefaults(t *testing.T) {
	mem := storage.NewMemoryStore()
	require.NoError(t, mem.Set(StateKey("orders"), []byte("{not json")))

	s := newTestStore(t, mem)
	assert.Equal(t, DefaultPageSize, s.Pagination().PageSize)
}

func TestStoreUnknownVersionStartsFresh(t *testing.T) {
	mem := storage.NewMemoryStore()
	snap := Snapshot{
		Version:    99,
		GridName:   "orders",
		Pagination: PaginationModel{Page: 7, PageSize: 500},
	}
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, mem.Set(StateKey("orders"), raw))

	s := newTestStore(t, mem)
	assert.Equal(t, PaginationModel{Page: 0, PageSize: DefaultPageSize}, s.Pagination())
}

func TestStorePruneSelection(t *testing.T) {
	s := newTestStore(t, nil)
	s.SetSelection(SelectionModel{"1", "2", "3"})

	events := 0
	s.Subscribe(func(ev Event) {
		if ev.Kind == EventSelection {
			events++
		}
	})

	s.PruneSelection(func(id RowID) bool { return id != "2" })
	assert.Equal(t, SelectionModel{"1", "3"}, s.Selection())
	assert.Equal(t, 1, events)

	// Nothing to prune: no event.
	s.PruneSelection(func(RowID) bool { return true })
	assert.Equal(t, 1, events)

	s.PruneSelection(func(RowID) bool { return false })
	assert.Empty(t, s.Selection())
	assert.Equal(t, 2, events)
}

func TestStateKey(t *testing.T) {
	assert.Equal(t, "grid:orders:state", StateKey("orders"))
}
