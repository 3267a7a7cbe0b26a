package state

import (
	stderrors "errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/internal/sched"
	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/json"
	"github.com/mounirtms/gridcore/pkg/logger"
	"github.com/mounirtms/gridcore/pkg/metrics"
	"github.com/mounirtms/gridcore/pkg/storage"
)

// DefaultPageSize applies when Defaults carries none.
const DefaultPageSize = 25

// DefaultSaveDelay is the debounce window for persisting state.
const DefaultSaveDelay = 250 * time.Millisecond

// StateKey returns the storage key of a grid's view state.
func StateKey(gridName string) string {
	return "grid:" + gridName + ":state"
}

// EventKind identifies which slice of state a commit touched.
type EventKind string

const (
	EventPagination EventKind = "pagination"
	EventSort       EventKind = "sort"
	EventFilter     EventKind = "filter"
	EventSelection  EventKind = "selection"
	EventView       EventKind = "view"
	EventSearch     EventKind = "search"
	EventImport     EventKind = "import"
	EventReset      EventKind = "reset"
)

// Event describes one committed transition. Every setter produces
// exactly one event no matter how many fields it touched.
type Event struct {
	Grid string
	Kind EventKind
}

// Subscriber observes committed transitions. Subscribers run outside
// the store lock and may call back into the store.
type Subscriber func(Event)

// Defaults is the factory state Reset restores.
type Defaults struct {
	PageSize int
	Density  Density
	ViewMode ViewMode
}

func (d Defaults) withFallbacks() Defaults {
	if d.PageSize <= 0 {
		d.PageSize = DefaultPageSize
	}
	if d.Density == "" {
		d.Density = DensityStandard
	}
	if d.ViewMode == "" {
		d.ViewMode = ViewTable
	}
	return d
}

// Config configures a store.
type Config struct {
	GridName string

	// Storage persists snapshots. Nil keeps state in memory only.
	Storage storage.Store

	Defaults Defaults

	// SaveDelay overrides the debounce window; zero means the default.
	SaveDelay time.Duration
}

// Store holds one grid's view model: pagination, sort, filter,
// selection and presentation state. Writes commit atomically, notify
// subscribers once and schedule a debounced save.
type Store struct {
	mu       sync.Mutex
	gridName string
	defaults Defaults

	pagination PaginationModel
	sort       SortModel
	filter     FilterModel
	selection  SelectionModel
	view       ViewState

	storage storage.Store
	saver   *sched.Debouncer
	subs    []Subscriber

	collector *metrics.Collector
	log       *zap.Logger
}

// NewStore creates a store, loading any persisted snapshot. Load
// failures fall back to defaults and are logged once; an unknown
// snapshot version starts fresh.
func NewStore(cfg Config) *Store {
	defaults := cfg.Defaults.withFallbacks()
	delay := cfg.SaveDelay
	if delay <= 0 {
		delay = DefaultSaveDelay
	}

	s := &Store{
		gridName:  cfg.GridName,
		defaults:  defaults,
		storage:   cfg.Storage,
		saver:     sched.NewDebouncer(delay),
		collector: metrics.NewCollector(cfg.GridName),
		log:       logger.WithGrid(cfg.GridName).Named("state"),
	}
	s.applyDefaultsLocked()
	s.load()
	return s
}

func (s *Store) applyDefaultsLocked() {
	s.pagination = PaginationModel{Page: 0, PageSize: s.defaults.PageSize}
	s.sort = nil
	s.filter = FilterModel{}
	s.selection = nil
	s.view = ViewState{Density: s.defaults.Density, ViewMode: s.defaults.ViewMode}
}

func (s *Store) load() {
	if s.storage == nil {
		return
	}

	raw, err := s.storage.Get(StateKey(s.gridName))
	if err != nil {
		if !stderrors.Is(err, storage.ErrNotFound) {
			s.log.Warn("failed to load persisted state, using defaults", zap.Error(err))
		}
		return
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.log.Warn("failed to decode persisted state, using defaults", zap.Error(err))
		return
	}
	if snap.Version != SchemaVersion {
		s.log.Warn("unknown state schema version, starting fresh",
			zap.Int("version", snap.Version))
		return
	}

	s.mu.Lock()
	s.applySnapshotLocked(snap)
	s.mu.Unlock()
}

func (s *Store) applySnapshotLocked(snap Snapshot) {
	s.pagination = snap.Pagination
	s.sort = snap.Sort.Clone()
	s.filter = snap.Filter.Clone()
	s.selection = snap.Selection.Clone()
	s.view = snap.View
}

// GridName returns the grid this store belongs to.
func (s *Store) GridName() string {
	return s.gridName
}

// Pagination returns a copy of the pagination model.
func (s *Store) Pagination() PaginationModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagination
}

// Sort returns a copy of the sort model.
func (s *Store) Sort() SortModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sort.Clone()
}

// Filter returns a copy of the filter model.
func (s *Store) Filter() FilterModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.Clone()
}

// Selection returns a copy of the selection.
func (s *Store) Selection() SelectionModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Clone()
}

// View returns a copy of the view state.
func (s *Store) View() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SetPagination commits a new pagination model.
func (s *Store) SetPagination(p PaginationModel) {
	s.mu.Lock()
	s.pagination = p
	s.commitLocked()
	s.mu.Unlock()
	s.notify(EventPagination)
}

// SetSort commits a new sort model.
func (s *Store) SetSort(m SortModel) {
	s.mu.Lock()
	s.sort = m.Clone()
	s.commitLocked()
	s.mu.Unlock()
	s.notify(EventSort)
}

// SetFilter commits a new filter model.
func (s *Store) SetFilter(f FilterModel) {
	s.mu.Lock()
	s.filter = f.Clone()
	s.commitLocked()
	s.mu.Unlock()
	s.notify(EventFilter)
}

// SetSelection commits a new selection.
func (s *Store) SetSelection(sel SelectionModel) {
	s.mu.Lock()
	s.selection = sel.Clone()
	s.commitLocked()
	s.mu.Unlock()
	s.notify(EventSelection)
}

// PruneSelection drops selected rows the predicate rejects. It commits
// and notifies only when the selection actually shrank.
func (s *Store) PruneSelection(keep func(RowID) bool) {
	s.mu.Lock()
	pruned := make(SelectionModel, 0, len(s.selection))
	for _, id := range s.selection {
		if keep(id) {
			pruned = append(pruned, id)
		}
	}
	changed := len(pruned) != len(s.selection)
	if changed {
		if len(pruned) == 0 {
			s.selection = nil
		} else {
			s.selection = pruned
		}
		s.commitLocked()
	}
	s.mu.Unlock()

	if changed {
		s.notify(EventSelection)
	}
}

// SetView commits a new view state.
func (s *Store) SetView(v ViewState) {
	s.mu.Lock()
	s.view = v
	s.commitLocked()
	s.mu.Unlock()
	s.notify(EventView)
}

// SetSearch commits a new quick-search value.
func (s *Store) SetSearch(value string) {
	s.mu.Lock()
	s.view.SearchValue = value
	s.commitLocked()
	s.mu.Unlock()
	s.notify(EventSearch)
}

// SetDensity commits a new row density.
func (s *Store) SetDensity(d Density) {
	s.mu.Lock()
	s.view.Density = d
	s.commitLocked()
	s.mu.Unlock()
	s.notify(EventView)
}

// SetViewMode commits a new view mode.
func (s *Store) SetViewMode(m ViewMode) {
	s.mu.Lock()
	s.view.ViewMode = m
	s.commitLocked()
	s.mu.Unlock()
	s.notify(EventView)
}

// ToggleFilters flips the filter panel visibility.
func (s *Store) ToggleFilters() {
	s.mu.Lock()
	s.view.FiltersVisible = !s.view.FiltersVisible
	s.commitLocked()
	s.mu.Unlock()
	s.notify(EventView)
}

// Export captures the full state as a snapshot. Importing an exported
// snapshot and exporting again yields byte-equal JSON.
func (s *Store) Export() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version:    SchemaVersion,
		GridName:   s.gridName,
		Pagination: s.pagination,
		Sort:       s.sort.Clone(),
		Filter:     s.filter.Clone(),
		Selection:  s.selection.Clone(),
		View:       s.view,
	}
}

// Import replaces the state with a snapshot in one commit.
func (s *Store) Import(snap Snapshot) error {
	if snap.Version != SchemaVersion {
		return errors.Newf(errors.ErrorTypeValidation, "unsupported snapshot version %d", snap.Version)
	}

	s.mu.Lock()
	s.applySnapshotLocked(snap)
	s.commitLocked()
	s.mu.Unlock()

	s.notify(EventImport)
	return nil
}

// Reset restores factory defaults in one commit.
func (s *Store) Reset() {
	s.mu.Lock()
	s.applyDefaultsLocked()
	s.commitLocked()
	s.mu.Unlock()
	s.notify(EventReset)
}

// Subscribe registers a subscriber and returns its remover.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	idx := len(s.subs) - 1
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if idx < len(s.subs) {
			s.subs[idx] = nil
		}
		s.mu.Unlock()
	}
}

func (s *Store) notify(kind EventKind) {
	s.mu.Lock()
	subs := make([]Subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	ev := Event{Grid: s.gridName, Kind: kind}
	for _, fn := range subs {
		if fn != nil {
			fn(ev)
		}
	}
}

// commitLocked schedules the debounced save. Failed saves keep the
// in-memory state authoritative; the next write retries.
func (s *Store) commitLocked() {
	if s.storage == nil {
		return
	}
	s.saver.Call(s.save)
}

func (s *Store) save() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		s.collector.StateSave(false)
		s.log.Error("failed to encode state snapshot", zap.Error(err))
		return
	}

	if err := s.storage.Set(StateKey(s.gridName), raw); err != nil {
		s.collector.StateSave(false)
		s.log.Warn("failed to persist state, will retry on next write", zap.Error(err))
		return
	}
	s.collector.StateSave(true)
}

// Flush persists any pending save immediately.
func (s *Store) Flush() {
	s.saver.Flush()
}

// Close flushes pending work and stops the saver.
func (s *Store) Close() {
	s.saver.Flush()
	s.saver.Stop()
}
