package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/i474232898/weather-monitor/internal/weather"
)

var (
	// ErrDuplicateRecord is returned when a location already has a record at the given time.
	ErrDuplicateRecord = errors.New("record with the same time already exists")

	// ErrRecordNotFound is returned when an update targets an unknown record id.
	ErrRecordNotFound = errors.New("record not found")
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// Transactions hold the write lock for their whole duration, so writers never interleave.
type MemoryStore struct {
	mu sync.RWMutex

	locations map[int64]weather.Location
	// key: location id, value: records ordered by time
	records map[int64][]weather.Record

	nextLocationID int64
	nextRecordID   int64
}

var _ weather.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locations: make(map[int64]weather.Location),
		records:   make(map[int64][]weather.Record),
	}
}

// CreateLocation stores a new location and assigns its id.
func (s *MemoryStore) CreateLocation(_ context.Context, name string, c weather.Coordinates) (weather.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, loc := range s.locations {
		if loc.Name == name || loc.Coordinates == c {
			return weather.Location{}, fmt.Errorf("%w: %q", weather.ErrLocationExists, name)
		}
	}

	s.nextLocationID++
	loc := weather.Location{ID: s.nextLocationID, Name: name, Coordinates: c}
	s.locations[loc.ID] = loc
	return loc, nil
}

// DeleteLocation removes a location together with its records.
func (s *MemoryStore) DeleteLocation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[id]; !ok {
		return fmt.Errorf("location %d: %w", id, weather.ErrLocationNotFound)
	}
	delete(s.locations, id)
	delete(s.records, id)
	return nil
}

// ListLocations returns all locations ordered by id.
func (s *MemoryStore) ListLocations(_ context.Context) ([]weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.Location, 0, len(s.locations))
	for _, loc := range s.locations {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) FindLocationByID(_ context.Context, id int64) (weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[id]
	if !ok {
		return weather.Location{}, fmt.Errorf("location %d: %w", id, weather.ErrLocationNotFound)
	}
	return loc, nil
}

func (s *MemoryStore) FindLocationByName(_ context.Context, name string) (weather.Location, error) {
	return s.findFirst(func(loc weather.Location) bool { return loc.Name == name },
		fmt.Sprintf("location %q", name))
}

func (s *MemoryStore) FindLocationByCoordinates(_ context.Context, c weather.Coordinates) (weather.Location, error) {
	return s.findFirst(func(loc weather.Location) bool { return loc.Coordinates == c },
		"location at "+c.String())
}

func (s *MemoryStore) findFirst(match func(weather.Location) bool, what string) (weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, loc := range s.locations {
		if match(loc) {
			return loc, nil
		}
	}
	return weather.Location{}, fmt.Errorf("%s: %w", what, weather.ErrLocationNotFound)
}

// ListRecords returns a copy of the records of a location ordered by time.
func (s *MemoryStore) ListRecords(_ context.Context, locationID int64) ([]weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneRecords(s.records[locationID]), nil
}

// WithinTx runs fn against a staged copy of the touched locations and publishes it only
// when fn succeeds and ctx is still live.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx weather.StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:        s,
		staged:       make(map[int64][]weather.Record),
		nextRecordID: s.nextRecordID,
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for id, recs := range tx.staged {
		if _, ok := s.locations[id]; ok {
			s.records[id] = recs
		}
	}
	s.nextRecordID = tx.nextRecordID
	return nil
}

// memoryTx runs with the store's write lock held.
type memoryTx struct {
	store        *MemoryStore
	staged       map[int64][]weather.Record
	nextRecordID int64
}

func (tx *memoryTx) LockLocation(_ context.Context, id int64) error {
	if _, ok := tx.store.locations[id]; !ok {
		return fmt.Errorf("location %d: %w", id, weather.ErrLocationNotFound)
	}
	return nil
}

func (tx *memoryTx) ListRecords(_ context.Context, locationID int64) ([]weather.Record, error) {
	return cloneRecords(tx.view(locationID)), nil
}

func (tx *memoryTx) InsertRecord(_ context.Context, locationID int64, r weather.Record) error {
	if _, ok := tx.store.locations[locationID]; !ok {
		return fmt.Errorf("location %d: %w", locationID, weather.ErrLocationNotFound)
	}
	recs := tx.stage(locationID)
	for _, cur := range recs {
		if cur.Time.Equal(r.Time) {
			return fmt.Errorf("location %d at %s: %w", locationID, r.Time, ErrDuplicateRecord)
		}
	}

	tx.nextRecordID++
	rec := r.Clone()
	rec.ID = tx.nextRecordID
	rec.LocationID = locationID
	rec.Time = r.Time.UTC()

	i := sort.Search(len(recs), func(i int) bool { return recs[i].Time.After(rec.Time) })
	recs = append(recs, weather.Record{})
	copy(recs[i+1:], recs[i:])
	recs[i] = rec
	tx.staged[locationID] = recs
	return nil
}

func (tx *memoryTx) UpdateRecord(_ context.Context, recordID int64, r weather.Record) error {
	for locationID := range tx.store.locations {
		for _, cur := range tx.view(locationID) {
			if cur.ID != recordID {
				continue
			}
			recs := tx.stage(locationID)
			for i := range recs {
				if recs[i].ID == recordID {
					recs[i] = recs[i].WithReadings(r)
				}
			}
			return nil
		}
	}
	return fmt.Errorf("record %d: %w", recordID, ErrRecordNotFound)
}

// view returns the records the transaction currently sees for a location.
func (tx *memoryTx) view(locationID int64) []weather.Record {
	if recs, ok := tx.staged[locationID]; ok {
		return recs
	}
	return tx.store.records[locationID]
}

// stage makes sure the transaction owns a private copy of a location's records.
func (tx *memoryTx) stage(locationID int64) []weather.Record {
	if recs, ok := tx.staged[locationID]; ok {
		return recs
	}
	recs := cloneRecords(tx.store.records[locationID])
	tx.staged[locationID] = recs
	return recs
}

func cloneRecords(in []weather.Record) []weather.Record {
	out := make([]weather.Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
