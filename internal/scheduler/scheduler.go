package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tazhate/pimstore/config"
	"github.com/tazhate/pimstore/internal/service"
)

// maintenanceTimeout bounds one maintenance run.
const maintenanceTimeout = 5 * time.Minute

type Scheduler struct {
	cron        *cron.Cron
	cfg         *config.Config
	collections *service.CollectionService
	relations   *service.RelationService
	directory   service.AccountDirectory

	// running guards against overlapping maintenance runs
	running sync.Mutex
}

// New creates the scheduler. A nil directory skips the collection refresh
// and prunes against an empty account list.
func New(cfg *config.Config, collections *service.CollectionService, relations *service.RelationService, dir service.AccountDirectory) *Scheduler {
	c := cron.New(cron.WithLocation(cfg.Timezone))

	return &Scheduler{
		cron:        c,
		cfg:         cfg,
		collections: collections,
		relations:   relations,
		directory:   dir,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.PruneSchedule, func() { s.runMaintenance(ctx) }); err != nil {
		return fmt.Errorf("add maintenance job: %w", err)
	}

	s.cron.Start()
	log.Printf("Scheduler started (TZ: %s, maintenance: %s)", s.cfg.Timezone, s.cfg.PruneSchedule)

	// Run once at startup so removed accounts do not linger until the first tick
	s.runMaintenance(ctx)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) runMaintenance(ctx context.Context) {
	if !s.running.TryLock() {
		log.Println("Maintenance still running, skipping tick")
		return
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, maintenanceTimeout)
	defer cancel()

	if err := s.Maintain(ctx); err != nil {
		log.Printf("Error running maintenance: %v", err)
	}
}

// Maintain refreshes remote collections, prunes collections of removed
// accounts and drops relations whose parent no longer exists.
func (s *Scheduler) Maintain(ctx context.Context) error {
	if s.directory != nil {
		n, err := s.collections.RefreshFromDirectory(ctx, s.directory)
		if err != nil {
			return fmt.Errorf("refresh collections: %w", err)
		}
		log.Printf("Refreshed %d remote collections", n)
	} else {
		n, err := s.collections.PruneDeletedAccounts(ctx, nil)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Printf("Pruned %d collections of removed accounts", n)
		}
	}

	n, err := s.relations.PruneDangling(ctx)
	if err != nil {
		return fmt.Errorf("prune relations: %w", err)
	}
	if n > 0 {
		log.Printf("Pruned %d dangling relations", n)
	}
	return nil
}
