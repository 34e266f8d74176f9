package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-monitor/internal/metrics"
	"github.com/i474232898/weather-monitor/internal/weather"
)

// Failover asks its sources in order and returns the first successful answer.
type Failover struct {
	sources []weather.Source
	logger  *zap.Logger
}

var _ weather.Source = (*Failover)(nil)

func NewFailover(logger *zap.Logger, sources ...weather.Source) *Failover {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Failover{sources: sources, logger: logger}
}

func (f *Failover) Name() string {
	names := make([]string, len(f.sources))
	for i, s := range f.sources {
		names[i] = s.Name()
	}
	return "failover(" + strings.Join(names, ",") + ")"
}

// FetchToday returns the records of the first source that answers without error.
// When every source fails, the error is transient if at least one failure was.
func (f *Failover) FetchToday(ctx context.Context, c weather.Coordinates) ([]weather.Record, error) {
	if len(f.sources) == 0 {
		return nil, fmt.Errorf("%w: no providers configured", weather.ErrPermanentSource)
	}

	var errs []error
	transient := false
	for _, src := range f.sources {
		start := time.Now()
		records, err := src.FetchToday(ctx, c)
		metrics.ObserveSourceFetch(src.Name(), time.Since(start), err)
		if err == nil {
			return records, nil
		}

		f.logger.Warn("weather provider failed",
			zap.String("provider", src.Name()),
			zap.Stringer("coordinates", c),
			zap.Error(err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		if !errors.Is(err, weather.ErrPermanentSource) {
			transient = true
		}
		if ctx.Err() != nil {
			break
		}
	}

	kind := weather.ErrPermanentSource
	if transient {
		kind = weather.ErrTransientSource
	}
	return nil, fmt.Errorf("%w: all providers failed: %v", kind, errors.Join(errs...))
}
