package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/malsync/internal/cache"
)

// Importer refreshes the id-mapping store
type Importer interface {
	Import(ctx context.Context) (int, error)
	NeedsImport() (bool, error)
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron        *cron.Cron
	importer    Importer
	refreshSpec string
	caches      []cache.Named
	logger      *logrus.Logger

	// Imports started outside cron; Stop cancels and waits for them
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	importing atomic.Bool
}

// NewScheduler creates a new scheduler. refreshSpec is the cron expression
// of the mapping refresh.
func NewScheduler(importer Importer, refreshSpec string, caches []cache.Named, logger *logrus.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:        cron.New(),
		importer:    importer,
		refreshSpec: refreshSpec,
		caches:      caches,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	_, err := s.cron.AddFunc(s.refreshSpec, func() {
		s.runImport()
	})
	if err != nil {
		return fmt.Errorf("failed to add mapping refresh job: %w", err)
	}

	// Every minute: publish cache sizes
	_, err = s.cron.AddFunc("* * * * *", func() {
		s.reportCaches()
	})
	if err != nil {
		return fmt.Errorf("failed to add cache report job: %w", err)
	}

	s.cron.Start()
	s.logger.WithField("mapping_refresh", s.refreshSpec).Info("Scheduler started")

	// Populate an empty store right away instead of waiting for the first refresh
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		needs, err := s.importer.NeedsImport()
		if err != nil {
			s.logger.WithError(err).Error("Failed to check mapping store")
			return
		}
		if needs {
			s.logger.Info("Mapping store is empty, running initial import")
			s.runImport()
		}
	}()

	return nil
}

// TriggerImport starts a mapping refresh in the background. It returns
// false when a refresh is already running.
func (s *Scheduler) TriggerImport() bool {
	if s.ctx.Err() != nil || s.importing.Load() {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runImport()
	}()
	return true
}

// Stop stops the scheduler, cancels running imports and waits for them
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// runImport executes the mapping refresh job. Overlapping runs are skipped.
func (s *Scheduler) runImport() {
	if !s.importing.CompareAndSwap(false, true) {
		s.logger.Info("Mapping refresh already running, skipping")
		return
	}
	defer s.importing.Store(false)

	s.logger.Info("Running scheduled mapping refresh")

	if count, err := s.importer.Import(s.ctx); err != nil {
		s.logger.WithError(err).Error("Mapping refresh failed")
	} else {
		s.logger.WithField("count", count).Info("Mapping refresh completed successfully")
	}
}

// reportCaches publishes the size of every cache
func (s *Scheduler) reportCaches() {
	cache.ReportSize(s.caches...)
}
