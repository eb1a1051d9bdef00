package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tazhate/pimstore/config"
	"github.com/tazhate/pimstore/internal/clients/caldav"
	"github.com/tazhate/pimstore/internal/domain"
	"github.com/tazhate/pimstore/internal/live"
	"github.com/tazhate/pimstore/internal/prefs"
	"github.com/tazhate/pimstore/internal/scheduler"
	"github.com/tazhate/pimstore/internal/service"
	"github.com/tazhate/pimstore/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	hub := live.NewHub()
	worker := live.NewWorker(64)

	relationSvc := service.NewRelationService(store, hub, nil)
	recurrenceSvc := service.NewRecurrenceService(store, hub, cfg.Timezone, nil)
	entrySvc := service.NewEntryService(store, recurrenceSvc, relationSvc, hub, nil)
	collectionSvc := service.NewCollectionService(store, hub, nil, cfg.TestAccountType)

	// A nil *caldav.Directory must not end up inside the interface
	var dir service.AccountDirectory
	if cfg.HasCalDAV() {
		dir = caldav.NewDirectory(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.CalDAVAccountType)
	} else {
		log.Println("CalDAV not configured, remote collections will be pruned")
	}

	prefStore := prefs.NewFileStore(cfg.PrefsPath)
	var lists []*service.ListViewModel
	var unsubscribe []func()
	for _, m := range domain.Modules {
		vm := service.NewListViewModel(service.ListViewModelConfig{
			Module:   m,
			Storage:  store,
			Prefs:    prefStore,
			Worker:   worker,
			Hub:      hub,
			Entries:  entrySvc,
			Location: cfg.Timezone,
		})
		lists = append(lists, vm)
		ch, cancelSub := vm.Entries.Subscribe()
		unsubscribe = append(unsubscribe, cancelSub)
		go logList(vm.Module(), ch)
	}

	sched := scheduler.New(cfg, collectionSvc, relationSvc, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	log.Println("pimd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	cancel()
	sched.Stop()
	for _, vm := range lists {
		vm.Close()
	}
	worker.Close()
	for _, cancelSub := range unsubscribe {
		cancelSub()
	}

	log.Println("pimd stopped")
}

// logList reports published list snapshots until ch is closed.
func logList(m domain.Module, ch <-chan service.ListResult) {
	for res := range ch {
		if res.Generation == 0 {
			continue
		}
		if res.Err != nil {
			log.Printf("%s list: %v", m, res.Err)
			continue
		}
		log.Printf("%s list: %d entries in %d groups (generation %d)", m, len(res.Rows), len(res.Groups), res.Generation)
	}
}
