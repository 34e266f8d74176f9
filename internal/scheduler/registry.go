package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/weather-monitor/internal/metrics"
	"github.com/i474232898/weather-monitor/internal/weather"
)

// Refresher runs one fetch-and-merge pass for a location.
// It must return weather.ErrLocationNotFound once the location is gone.
type Refresher interface {
	Refresh(ctx context.Context, locationID int64) (weather.MergeResult, error)
}

// Config controls the sync jobs.
type Config struct {
	// Interval is the pause before every refresh cycle.
	Interval time.Duration
	// CycleTimeout bounds a single refresh cycle.
	CycleTimeout time.Duration
}

// JobInfo describes a running sync job.
type JobInfo struct {
	LocationID int64     `json:"location_id"`
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
}

type job struct {
	locationID int64
	runID      uuid.UUID
	startedAt  time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// Registry owns one sync job per location id.
type Registry struct {
	refresher Refresher
	cfg       Config
	logger    *zap.Logger

	mu     sync.Mutex
	jobs   map[int64]*job
	closed bool
	wg     sync.WaitGroup
}

// NewRegistry creates an empty Registry.
func NewRegistry(refresher Refresher, cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 30 * time.Second
	}
	return &Registry{
		refresher: refresher,
		cfg:       cfg,
		logger:    logger,
		jobs:      make(map[int64]*job),
	}
}

// Register starts a sync job for locationID. It returns false without side effects when a job
// is already registered for the id or the registry has been shut down.
func (r *Registry) Register(locationID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Warn("registry is shut down, sync job not started", zap.Int64("location_id", locationID))
		return false
	}
	if existing, ok := r.jobs[locationID]; ok {
		r.logger.Info("sync job already registered",
			zap.Int64("location_id", locationID),
			zap.Stringer("run_id", existing.runID),
		)
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		locationID: locationID,
		runID:      uuid.New(),
		startedAt:  time.Now().UTC(),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	r.jobs[locationID] = j
	metrics.SetActiveJobs(len(r.jobs))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(j.done)
		defer cancel()

		r.run(ctx, j)
		r.release(j)
	}()
	return true
}

// Deregister cancels the job of locationID and forgets it.
// It reports whether a job was registered. The job may still be finishing its current
// cycle when Deregister returns.
func (r *Registry) Deregister(locationID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[locationID]
	if !ok {
		return false
	}
	delete(r.jobs, locationID)
	j.cancel()
	metrics.SetActiveJobs(len(r.jobs))

	r.logger.Info("sync job deregistered",
		zap.Int64("location_id", locationID),
		zap.Stringer("run_id", j.runID),
	)
	return true
}

// release drops j from the registry unless it has already been replaced or removed.
func (r *Registry) release(j *job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.jobs[j.locationID]; ok && cur == j {
		delete(r.jobs, j.locationID)
		metrics.SetActiveJobs(len(r.jobs))
	}
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Running reports whether a job is registered for locationID.
func (r *Registry) Running(locationID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[locationID]
	return ok
}

// Jobs returns the registered jobs ordered by location id.
func (r *Registry) Jobs() []JobInfo {
	r.mu.Lock()
	out := make([]JobInfo, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, JobInfo{LocationID: j.locationID, RunID: j.runID.String(), StartedAt: j.startedAt})
	}
	r.mu.Unlock()

	sort.Slice(out, func(a, b int) bool { return out[a].LocationID < out[b].LocationID })
	return out
}

// Shutdown cancels every job and waits for them to exit or for ctx to be done.
// Register is refused afterwards.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for id, j := range r.jobs {
		j.cancel()
		delete(r.jobs, id)
	}
	metrics.SetActiveJobs(0)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
