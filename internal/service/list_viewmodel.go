package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/live"
	"github.com/tazhate/pimstore/internal/prefs"
	"github.com/tazhate/pimstore/internal/query"
	"github.com/tazhate/pimstore/internal/storage"
)

// ListResult is one delivered snapshot of a module's list.
type ListResult struct {
	// Generation identifies the settings change the rows were built for.
	Generation uint64
	Settings   *domain.ListSettings
	Rows       []*domain.ICal4List
	Groups     []Group
	Err        error
}

// ListViewModel keeps the list of one module current. Settings changes and
// change notifications rebuild the query and run it on the worker; only
// the result of the latest rebuild is published.
type ListViewModel struct {
	module  domain.Module
	storage *storage.Storage
	prefs   prefs.Store
	worker  *live.Worker
	entries *EntryService
	loc     *time.Location
	now     Clock

	// Entries holds the latest published result.
	Entries *live.Value[ListResult]

	mu       sync.Mutex
	settings *domain.ListSettings
	gen      uint64

	ctx      context.Context
	cancel   context.CancelFunc
	unlisten func()
	done     chan struct{}
}

// ListViewModelConfig carries the collaborators of a ListViewModel.
type ListViewModelConfig struct {
	Module   domain.Module
	Storage  *storage.Storage
	Prefs    prefs.Store
	Worker   *live.Worker
	Hub      *live.Hub
	Entries  *EntryService
	Location *time.Location
	Clock    Clock
}

// NewListViewModel loads the persisted settings of the module and issues
// the first query. Unreadable settings fall back to defaults.
func NewListViewModel(cfg ListViewModelConfig) *ListViewModel {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	vm := &ListViewModel{
		module:   cfg.Module,
		storage:  cfg.Storage,
		prefs:    cfg.Prefs,
		worker:   cfg.Worker,
		entries:  cfg.Entries,
		loc:      loc,
		now:      clockOrNow(cfg.Clock),
		Entries:  live.NewValue(ListResult{}),
		settings: domain.NewListSettings(cfg.Module),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	if vm.prefs != nil {
		if err := vm.settings.Load(vm.prefs); err != nil {
			log.Printf("Error loading %s list settings, using defaults: %v", cfg.Module, err)
		}
	}

	if cfg.Hub != nil {
		ch, unlisten := cfg.Hub.Listen()
		vm.unlisten = unlisten
		go func() {
			defer close(vm.done)
			for range ch {
				vm.Refresh()
			}
		}()
	} else {
		close(vm.done)
	}

	vm.Refresh()
	return vm
}

func (vm *ListViewModel) Module() domain.Module {
	return vm.module
}

// Settings returns a copy of the current settings.
func (vm *ListViewModel) Settings() *domain.ListSettings {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.settings.Clone()
}

// Update applies fn to the settings and rebuilds the list. Nothing is
// persisted.
func (vm *ListViewModel) Update(fn func(s *domain.ListSettings)) {
	vm.mu.Lock()
	fn(vm.settings)
	vm.settings.Module = vm.module
	vm.mu.Unlock()
	vm.Refresh()
}

// SetSearchText changes the transient search text and rebuilds the list.
func (vm *ListViewModel) SetSearchText(text string) {
	vm.Update(func(s *domain.ListSettings) { s.SearchText = text })
}

// UpdateSearch rebuilds the list and, when save is set, persists the
// settings.
func (vm *ListViewModel) UpdateSearch(save bool) error {
	vm.Refresh()
	if save {
		return vm.Save()
	}
	return nil
}

// Save persists the current settings.
func (vm *ListViewModel) Save() error {
	if vm.prefs == nil {
		return nil
	}
	vm.mu.Lock()
	snapshot := vm.settings.Clone()
	vm.mu.Unlock()
	return snapshot.Save(vm.prefs)
}

// ClearFilter restores the defaults, rebuilds and persists them.
func (vm *ListViewModel) ClearFilter() error {
	vm.mu.Lock()
	vm.settings.Reset()
	vm.mu.Unlock()
	return vm.UpdateSearch(true)
}

// ApplyPreset replaces the settings with a stored preset. The search text
// is kept.
func (vm *ListViewModel) ApplyPreset(s *domain.ListSettings) {
	vm.Update(func(cur *domain.ListSettings) {
		text := cur.SearchText
		*cur = *s.Clone()
		cur.SearchText = text
	})
}

// Refresh rebuilds the query from the current settings and runs it on the
// worker. Results of superseded refreshes are dropped.
func (vm *ListViewModel) Refresh() {
	vm.mu.Lock()
	vm.gen++
	gen := vm.gen
	snapshot := vm.settings.Clone()
	vm.mu.Unlock()

	q := query.BuildList(vm.module, snapshot, vm.now(), vm.loc)
	ok := vm.worker.Submit(func() {
		if vm.ctx.Err() != nil {
			return
		}
		rows, err := vm.storage.QueryList(vm.ctx, q)
		vm.publish(gen, snapshot, rows, err)
	})
	if !ok {
		log.Printf("%s list: worker closed, refresh dropped", vm.module)
	}
}

func (vm *ListViewModel) publish(gen uint64, s *domain.ListSettings, rows []*domain.ICal4List, err error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if gen != vm.gen || vm.ctx.Err() != nil {
		return
	}
	res := ListResult{Generation: gen, Settings: s, Rows: rows, Err: err}
	if err == nil {
		res.Groups = GroupEntries(rows, s.GroupBy, vm.module, vm.loc)
	} else {
		log.Printf("Error querying %s list: %v", vm.module, err)
	}
	vm.Entries.Set(res)
}

// Generation returns the generation of the latest refresh request.
func (vm *ListViewModel) Generation() uint64 {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.gen
}

// UpdateProgress changes the progress of a row. Rows deleted in the
// meantime are ignored.
func (vm *ListViewModel) UpdateProgress(ctx context.Context, ref domain.EntryRef, percent int) error {
	_, err := vm.entries.UpdateProgress(ctx, ref, percent)
	return ignoreNotFound(err, "update progress")
}

// Delete removes rows with their children. Rows deleted in the meantime are
// ignored.
func (vm *ListViewModel) Delete(ctx context.Context, ids []int64) error {
	_, err := vm.entries.Delete(ctx, ids)
	return ignoreNotFound(err, "delete")
}

func ignoreNotFound(err error, op string) error {
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("%s: entry no longer exists: %v", op, err)
		return nil
	}
	return err
}

// Close stops listening for changes. Queued queries finish but are not
// published.
func (vm *ListViewModel) Close() {
	vm.cancel()
	if vm.unlisten != nil {
		vm.unlisten()
	}
	<-vm.done
}
