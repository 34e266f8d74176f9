package weather

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

// fakeStore keeps everything in maps and counts the calls the tests care about.
type fakeStore struct {
	mu sync.Mutex

	locations    map[int64]Location
	records      map[int64][]Record
	nextID       int64
	nextRecordID int64

	// failWrites makes every insert and update inside a transaction fail.
	failWrites error

	txCalls     int
	findCalls   int
	recordReads int
	insertCalls int
	updateCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		locations: make(map[int64]Location),
		records:   make(map[int64][]Record),
	}
}

func (s *fakeStore) CreateLocation(_ context.Context, name string, c Coordinates) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, loc := range s.locations {
		if loc.Name == name || loc.Coordinates == c {
			return Location{}, ErrLocationExists
		}
	}
	s.nextID++
	loc := Location{ID: s.nextID, Name: name, Coordinates: c}
	s.locations[loc.ID] = loc
	return loc, nil
}

func (s *fakeStore) DeleteLocation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locations[id]; !ok {
		return ErrLocationNotFound
	}
	delete(s.locations, id)
	delete(s.records, id)
	return nil
}

func (s *fakeStore) ListLocations(_ context.Context) ([]Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Location, 0, len(s.locations))
	for _, loc := range s.locations {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) FindLocationByID(_ context.Context, id int64) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if loc, ok := s.locations[id]; ok {
		return loc, nil
	}
	return Location{}, fmt.Errorf("location %d: %w", id, ErrLocationNotFound)
}

func (s *fakeStore) FindLocationByName(_ context.Context, name string) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	for _, loc := range s.locations {
		if loc.Name == name {
			return loc, nil
		}
	}
	return Location{}, ErrLocationNotFound
}

func (s *fakeStore) FindLocationByCoordinates(_ context.Context, c Coordinates) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	for _, loc := range s.locations {
		if loc.Coordinates == c {
			return loc, nil
		}
	}
	return Location{}, ErrLocationNotFound
}

func (s *fakeStore) ListRecords(_ context.Context, locationID int64) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordReads++
	return append([]Record(nil), s.records[locationID]...), nil
}

func (s *fakeStore) WithinTx(_ context.Context, fn func(tx StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCalls++

	tx := &fakeTx{s: s, staged: make(map[int64][]Record), nextRecordID: s.nextRecordID}
	for id, recs := range s.records {
		tx.staged[id] = append([]Record(nil), recs...)
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.records = tx.staged
	s.nextRecordID = tx.nextRecordID
	return nil
}

// seed stores records for a location, bypassing transactions.
func (s *fakeStore) seed(locationID int64, recs ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.nextRecordID++
		r.ID = s.nextRecordID
		r.LocationID = locationID
		s.records[locationID] = append(s.records[locationID], r)
	}
}

func (s *fakeStore) snapshot(locationID int64) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records[locationID]...)
}

type fakeTx struct {
	s            *fakeStore
	staged       map[int64][]Record
	nextRecordID int64
}

func (tx *fakeTx) LockLocation(_ context.Context, id int64) error {
	if _, ok := tx.s.locations[id]; !ok {
		return ErrLocationNotFound
	}
	return nil
}

func (tx *fakeTx) ListRecords(_ context.Context, locationID int64) ([]Record, error) {
	return append([]Record(nil), tx.staged[locationID]...), nil
}

func (tx *fakeTx) InsertRecord(_ context.Context, locationID int64, r Record) error {
	tx.s.insertCalls++
	if tx.s.failWrites != nil {
		return tx.s.failWrites
	}
	tx.nextRecordID++
	r.ID = tx.nextRecordID
	tx.staged[locationID] = append(tx.staged[locationID], r)
	return nil
}

func (tx *fakeTx) UpdateRecord(_ context.Context, recordID int64, r Record) error {
	tx.s.updateCalls++
	if tx.s.failWrites != nil {
		return tx.s.failWrites
	}
	for id, recs := range tx.staged {
		for i := range recs {
			if recs[i].ID == recordID {
				tx.staged[id][i] = recs[i].WithReadings(r)
				return nil
			}
		}
	}
	return errors.New("no such record")
}

type fakeSource struct {
	mu      sync.Mutex
	records []Record
	err     error
	calls   int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchToday(_ context.Context, _ Coordinates) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]Record(nil), f.records...), nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGeocoder struct {
	coords Coordinates
	err    error
}

func (g fakeGeocoder) Geocode(context.Context, string) (Coordinates, error) {
	return g.coords, g.err
}
