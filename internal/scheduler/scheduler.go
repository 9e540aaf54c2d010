// Package scheduler runs the periodic background maintenance jobs.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"captable/internal/logger"
	"captable/internal/services"
)

// Scheduler owns the background job runner.
type Scheduler struct {
	inner     gocron.Scheduler
	companies services.CompanyServicer
}

// New creates a Scheduler with the order-cache rebuild job registered at
// the given interval.
func New(companies services.CompanyServicer, rebuildEvery time.Duration) (*Scheduler, error) {
	inner, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	s := &Scheduler{inner: inner, companies: companies}

	_, err = inner.NewJob(
		gocron.DurationJob(rebuildEvery),
		gocron.NewTask(s.rebuildOrderCaches),
	)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Start launches the job runner. Jobs run in background goroutines.
func (s *Scheduler) Start() {
	s.inner.Start()
}

// Shutdown stops the runner and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.inner.Shutdown()
}

func (s *Scheduler) rebuildOrderCaches() {
	log := logger.Get()
	log.Infow("order cache rebuild started")

	start := time.Now()
	if err := s.companies.RebuildOrderCaches(context.Background()); err != nil {
		log.Errorw("order cache rebuild failed", "error", err)
		return
	}
	log.Infow("order cache rebuild finished", "took_ms", time.Since(start).Milliseconds())
}
