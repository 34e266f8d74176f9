package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-monitor/internal/metrics"
	"github.com/i474232898/weather-monitor/internal/weather"
)

// run is the body of a sync job. It returns when ctx is cancelled or the location is gone.
func (r *Registry) run(ctx context.Context, j *job) {
	log := r.logger.With(
		zap.Int64("location_id", j.locationID),
		zap.Stringer("run_id", j.runID),
	)
	log.Info("sync job started", zap.Duration("interval", r.cfg.Interval))

	timer := time.NewTimer(r.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sync job stopped")
			return
		case <-timer.C:
		}

		if ctx.Err() != nil {
			log.Info("sync job stopped")
			return
		}
		if !r.cycle(ctx, log, j.locationID) {
			log.Info("location no longer exists, sync job terminated")
			return
		}
		timer.Reset(r.cfg.Interval)
	}
}

// cycle runs one refresh and reports whether the job should keep going.
func (r *Registry) cycle(ctx context.Context, log *zap.Logger, locationID int64) bool {
	cycleCtx, cancel := context.WithTimeout(ctx, r.cfg.CycleTimeout)
	defer cancel()

	start := time.Now()
	res, err := r.refresher.Refresh(cycleCtx, locationID)

	var mergeErr *weather.MergeError
	switch {
	case err == nil:
		metrics.IncRefresh("ok")
		log.Debug("refresh cycle finished",
			zap.Int("inserted", res.Inserted),
			zap.Int("updated", res.Updated),
			zap.Int("unchanged", res.Unchanged),
			zap.Duration("took", time.Since(start)),
		)
	case errors.Is(err, weather.ErrLocationNotFound):
		metrics.IncRefresh("vanished")
		return false
	case ctx.Err() != nil:
		metrics.IncRefresh("cancelled")
		log.Debug("refresh cycle interrupted", zap.Error(err))
	case weather.IsSourceError(err):
		metrics.IncRefresh("source_error")
		log.Warn("weather fetch failed, retrying next cycle", zap.Error(err))
	case errors.As(err, &mergeErr):
		metrics.IncRefresh("merge_error")
		log.Error("merge failed, nothing was written", zap.Error(err))
	default:
		metrics.IncRefresh("error")
		log.Error("refresh cycle failed", zap.Error(err))
	}
	return true
}
