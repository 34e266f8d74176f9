package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-monitor/internal/common"
	"github.com/i474232898/weather-monitor/internal/metrics"
)

// Service orchestrates the store, the external source and the merge engine.
type Service struct {
	store    Store
	source   Source
	merger   *Merger
	geocoder Geocoder
	clock    Clock
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock used to decide what "today" is.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithGeocoder enables adding locations by name only.
func WithGeocoder(g Geocoder) Option {
	return func(s *Service) { s.geocoder = g }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new Service.
func NewService(store Store, source Source, opts ...Option) *Service {
	s := &Service{
		store:  store,
		source: source,
		clock:  SystemClock{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.merger = NewMerger(store, s.logger)
	return s
}

// LocationWeather is a location together with its stored records.
type LocationWeather struct {
	Location
	Records []Record `json:"weather_records"`
}

// AddLocation stores a new location and seeds it with today's records.
// When c is nil the coordinates are looked up by name through the geocoder.
// A failed seed fetch is logged and does not fail the call; the sync job retries it.
func (s *Service) AddLocation(ctx context.Context, name string, c *Coordinates) (Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Location{}, fmt.Errorf("%w: name is required", ErrInvalidLocation)
	}

	var coords Coordinates
	switch {
	case c != nil:
		coords = *c
	case s.geocoder == nil:
		return Location{}, fmt.Errorf("%w: coordinates are required", ErrInvalidLocation)
	default:
		found, err := s.geocoder.Geocode(ctx, name)
		if err != nil {
			return Location{}, fmt.Errorf("%w: geocode %q: %v", ErrInvalidLocation, name, err)
		}
		coords = found
	}
	if err := coords.Validate(); err != nil {
		return Location{}, err
	}

	loc, err := s.store.CreateLocation(ctx, name, coords)
	if err != nil {
		return Location{}, err
	}
	s.logger.Info("location added",
		zap.Int64("location_id", loc.ID),
		zap.String("name", loc.Name),
		zap.Float64("latitude", loc.Latitude),
		zap.Float64("longitude", loc.Longitude),
	)

	if _, err := s.Refresh(ctx, loc.ID); err != nil {
		s.logger.Warn("initial weather fetch failed", zap.Int64("location_id", loc.ID), zap.Error(err))
	}
	return loc, nil
}

// DeleteLocation removes a location and its records.
func (s *Service) DeleteLocation(ctx context.Context, id int64) error {
	if err := s.store.DeleteLocation(ctx, id); err != nil {
		return err
	}
	s.logger.Info("location deleted", zap.Int64("location_id", id))
	return nil
}

// ListLocations delegates to the underlying store.
func (s *Service) ListLocations(ctx context.Context) ([]Location, error) {
	return s.store.ListLocations(ctx)
}

// ListLocationsWithWeather returns every location with its stored records.
func (s *Service) ListLocationsWithWeather(ctx context.Context) ([]LocationWeather, error) {
	locs, err := s.store.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]LocationWeather, 0, len(locs))
	for _, loc := range locs {
		records, err := s.store.ListRecords(ctx, loc.ID)
		if err != nil {
			return nil, fmt.Errorf("list records of location %d: %w", loc.ID, err)
		}
		out = append(out, LocationWeather{Location: loc, Records: records})
	}
	return out, nil
}

// FindLocation resolves ref against the store.
func (s *Service) FindLocation(ctx context.Context, ref LocationRef) (Location, error) {
	switch ref.Kind() {
	case RefByID:
		return s.store.FindLocationByID(ctx, ref.ID())
	case RefByName:
		return s.store.FindLocationByName(ctx, ref.Name())
	case RefByCoordinates:
		return s.store.FindLocationByCoordinates(ctx, ref.Coordinates())
	default:
		return Location{}, fmt.Errorf("%w: empty location reference", ErrInvalidLocation)
	}
}

// Refresh runs one fetch-and-merge pass for a location.
// It returns ErrLocationNotFound when the location no longer exists.
func (s *Service) Refresh(ctx context.Context, locationID int64) (MergeResult, error) {
	loc, err := s.store.FindLocationByID(ctx, locationID)
	if err != nil {
		return MergeResult{}, err
	}

	records, err := s.fetch(ctx, loc.Coordinates)
	if err != nil {
		return MergeResult{}, err
	}

	return s.merger.Merge(ctx, loc.ID, records)
}

// ResolveNow returns the record nearest to the current time.
func (s *Service) ResolveNow(ctx context.Context, ref LocationRef) (Resolution, error) {
	return s.ResolveNearest(ctx, ref, s.clock.Now())
}

// ResolveNearest returns the record closest to target for the referenced location.
//
// Stored records of the current day are preferred. The source is asked once when the location
// has none (records from earlier days do not count), or when ref holds coordinates that match no stored location. A location referenced
// by id or name that is not stored yields ErrLocationNotFound. target must fall within the
// current day, otherwise ErrTimeRange is returned before anything is looked up.
func (s *Service) ResolveNearest(ctx context.Context, ref LocationRef, target time.Time) (Resolution, error) {
	now := s.clock.Now()
	if !common.WithinDay(target, now) {
		return Resolution{}, fmt.Errorf("%w: %s is not on %s",
			ErrTimeRange, target.Format(time.RFC3339), now.Format("2006-01-02"))
	}

	loc, err := s.FindLocation(ctx, ref)
	switch {
	case err == nil:
		records, err := s.store.ListRecords(ctx, loc.ID)
		if err != nil {
			return Resolution{}, fmt.Errorf("list records of location %d: %w", loc.ID, err)
		}
		if best, ok := Nearest(recordsOfDay(records, now), target); ok {
			metrics.IncResolve(string(OriginStore))
			return Resolution{Record: best, Origin: OriginStore, Location: &loc}, nil
		}
		s.logger.Info("no stored weather for today, asking source", zap.Int64("location_id", loc.ID))
		return s.resolveFromSource(ctx, loc.Coordinates, target, &loc)

	case errors.Is(err, ErrLocationNotFound) && ref.Kind() == RefByCoordinates:
		coords := ref.Coordinates()
		if err := coords.Validate(); err != nil {
			return Resolution{}, err
		}
		s.logger.Debug("coordinates not monitored, asking source", zap.Stringer("coordinates", coords))
		return s.resolveFromSource(ctx, coords, target, nil)

	default:
		return Resolution{}, err
	}
}

// recordsOfDay keeps the records that fall on the same day as now.
func recordsOfDay(records []Record, now time.Time) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if common.WithinDay(r.Time, now) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) resolveFromSource(ctx context.Context, c Coordinates, target time.Time, loc *Location) (Resolution, error) {
	records, err := s.fetch(ctx, c)
	if err != nil {
		return Resolution{}, err
	}
	best, ok := Nearest(records, target)
	if !ok {
		return Resolution{}, fmt.Errorf("%w for %s", ErrNoData, c)
	}
	metrics.IncResolve(string(OriginSource))
	return Resolution{Record: best, Origin: OriginSource, Location: loc}, nil
}

func (s *Service) fetch(ctx context.Context, c Coordinates) ([]Record, error) {
	if s.source == nil {
		return nil, fmt.Errorf("%w: no weather source configured", ErrPermanentSource)
	}
	records, err := s.source.FetchToday(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("fetch %s from %s: %w", c, s.source.Name(), err)
	}
	return records, nil
}
