package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driving"
	"github.com/custodia-labs/quire/internal/logger"
)

const reindexTag = "reindex"

var _ driving.Scheduler = (*Scheduler)(nil)

// Scheduler re-runs the crawl and index pipeline on a fixed interval while
// the server is up. Runs never overlap.
type Scheduler struct {
	pipeline driving.PipelineService
	sitemap  string
	interval time.Duration

	// runMu serialises pipeline runs, scheduled or not.
	runMu sync.Mutex

	mu      sync.Mutex
	cron    *gocron.Scheduler
	cancel  context.CancelFunc
	running bool
	last    *domain.PipelineRun
	runs    int
}

// NewScheduler creates a scheduler for sitemapURL.
func NewScheduler(pipeline driving.PipelineService, sitemapURL string, interval time.Duration) *Scheduler {
	return &Scheduler{
		pipeline: pipeline,
		sitemap:  sitemapURL,
		interval: interval,
	}
}

// Start schedules the pipeline and returns immediately. The first run
// happens one interval after Start.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("%w: reindex interval must be positive", domain.ErrInvalidInput)
	}
	if s.sitemap == "" {
		return fmt.Errorf("%w: reindex needs a sitemap URL", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()

	_, err := cron.Every(s.interval).WaitForSchedule().Tag(reindexTag).Do(func() {
		s.RunNow(runCtx)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("schedule reindex: %w", err)
	}

	cron.StartAsync()
	s.cron = cron
	s.cancel = cancel
	s.running = true
	logger.Info("reindex of %s scheduled every %s", s.sitemap, s.interval)
	return nil
}

// Stop cancels any run in flight and waits for the scheduler to halt.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cron, cancel := s.cron, s.cancel
	s.mu.Unlock()

	cancel()
	cron.Stop()
}

// RunNow executes the pipeline once and records the outcome. It waits for
// a run already in flight to finish first.
func (s *Scheduler) RunNow(ctx context.Context) *domain.PipelineRun {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	run := &domain.PipelineRun{StartedAt: time.Now()}

	report, err := s.pipeline.Run(ctx, s.sitemap)
	run.EndedAt = time.Now()
	run.Report = report
	if err != nil {
		run.Err = err.Error()
		logger.Error("reindex of %s failed: %v", s.sitemap, err)
	} else if report != nil && report.Index != nil {
		logger.Info("reindex of %s: %d indexed, %d failed, %d skipped",
			s.sitemap, report.Index.Succeeded, report.Index.Failed, report.Index.Skipped)
	}

	s.mu.Lock()
	s.last = run
	s.runs++
	s.mu.Unlock()
	return run
}

// LastRun returns the most recent run, or nil before the first one.
func (s *Scheduler) LastRun() *domain.PipelineRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Runs returns how many runs have completed.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}
