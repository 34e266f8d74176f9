package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/weather-monitor/internal/metrics"
	"github.com/i474232898/weather-monitor/internal/weather"
)

// LocationLister lists the locations that should have a sync job.
type LocationLister interface {
	ListLocations(ctx context.Context) ([]weather.Location, error)
	FindLocationByID(ctx context.Context, id int64) (weather.Location, error)
}

// Supervisor periodically reconciles the registry with the stored locations: it starts jobs
// that are missing (for instance after a restart) and stops jobs whose location is gone.
type Supervisor struct {
	scheduler *gocron.Scheduler
	locations LocationLister
	registry  *Registry
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

// NewSupervisor creates a new Supervisor.
func NewSupervisor(locations LocationLister, registry *Registry, interval time.Duration, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Supervisor{
		scheduler: s,
		locations: locations,
		registry:  registry,
		interval:  interval,
		timeout:   30 * time.Second,
		logger:    logger,
	}
}

// Start schedules the reconciliation job, runs it once right away and starts the
// underlying scheduler.
func (s *Supervisor) Start() error {
	_, err := s.scheduler.Every(s.interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if _, _, err := s.Reconcile(ctx); err != nil {
			s.logger.Error("reconcile sync jobs failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reconcile job: %w", err)
	}

	s.scheduler.StartAsync()
	return nil
}

// Reconcile registers a job for every stored location that lacks one and deregisters jobs
// whose location is no longer stored. Jobs registered while the sweep runs are left alone.
func (s *Supervisor) Reconcile(ctx context.Context) (started, stopped int, err error) {
	listedAt := time.Now().UTC()
	locs, err := s.locations.ListLocations(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list locations: %w", err)
	}

	stored := make(map[int64]struct{}, len(locs))
	for _, loc := range locs {
		stored[loc.ID] = struct{}{}
		if s.registry.Running(loc.ID) {
			continue
		}
		if !s.registry.Register(loc.ID) {
			continue
		}
		// The location may have been deleted after the listing. Its own Deregister could
		// then have run before this Register, so check again and undo.
		if _, err := s.locations.FindLocationByID(ctx, loc.ID); err != nil {
			s.registry.Deregister(loc.ID)
			if !errors.Is(err, weather.ErrLocationNotFound) {
				s.logger.Warn("recheck location failed", zap.Int64("location_id", loc.ID), zap.Error(err))
			}
			continue
		}
		started++
	}

	for _, j := range s.registry.Jobs() {
		if _, ok := stored[j.LocationID]; ok || j.StartedAt.After(listedAt) {
			continue
		}
		if s.registry.Deregister(j.LocationID) {
			stopped++
		}
	}

	metrics.IncReconcile(started, stopped)
	if started > 0 || stopped > 0 {
		s.logger.Info("sync jobs reconciled",
			zap.Int("started", started),
			zap.Int("stopped", stopped),
			zap.Int("active", s.registry.Len()),
		)
	}
	return started, stopped, nil
}

// Stop stops the scheduler and cancels any future reconciliation runs.
func (s *Supervisor) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
