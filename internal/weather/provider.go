package weather

import (
	"context"
	"time"
)

// Source abstracts an external weather data source (e.g. Open-Meteo, WeatherAPI, OpenWeatherMap).
type Source interface {
	Name() string
	// FetchToday returns the records the source has for the current day at c.
	// Errors wrap ErrTransientSource or ErrPermanentSource.
	FetchToday(ctx context.Context, c Coordinates) ([]Record, error)
}

// Geocoder resolves a place name into coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (Coordinates, error)
}

// Store is the contract the in-memory store and the Postgres store must satisfy.
// Lookups return ErrLocationNotFound when nothing matches.
type Store interface {
	CreateLocation(ctx context.Context, name string, c Coordinates) (Location, error)
	DeleteLocation(ctx context.Context, id int64) error
	ListLocations(ctx context.Context) ([]Location, error)

	FindLocationByID(ctx context.Context, id int64) (Location, error)
	FindLocationByName(ctx context.Context, name string) (Location, error)
	FindLocationByCoordinates(ctx context.Context, c Coordinates) (Location, error)

	// ListRecords returns the records of a location ordered by time.
	ListRecords(ctx context.Context, locationID int64) ([]Record, error)

	// WithinTx runs fn in a transaction. It commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx StoreTx) error) error
}

// StoreTx is the set of operations available inside Store.WithinTx.
type StoreTx interface {
	// LockLocation serializes writers of one location until the transaction ends.
	LockLocation(ctx context.Context, id int64) error
	ListRecords(ctx context.Context, locationID int64) ([]Record, error)
	InsertRecord(ctx context.Context, locationID int64, r Record) error
	// UpdateRecord overwrites every reading of the stored record with the given id.
	UpdateRecord(ctx context.Context, recordID int64, r Record) error
}

// Clock tells the current time. Tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reports wall-clock time in Loc (UTC when nil).
type SystemClock struct {
	Loc *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Loc)
}
