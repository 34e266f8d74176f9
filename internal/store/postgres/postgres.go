// Package postgres provides the Postgres-backed weather store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i474232898/weather-monitor/internal/weather"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS locations (
	id        BIGSERIAL PRIMARY KEY,
	name      TEXT NOT NULL UNIQUE,
	latitude  DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	UNIQUE (latitude, longitude)
);

CREATE TABLE IF NOT EXISTS weather_records (
	id                   BIGSERIAL PRIMARY KEY,
	location_id          BIGINT NOT NULL REFERENCES locations (id) ON DELETE CASCADE,
	recorded_at          TIMESTAMPTZ NOT NULL,
	temperature_2m       DOUBLE PRECISION,
	wind_speed_10m       DOUBLE PRECISION,
	pressure_msl         DOUBLE PRECISION,
	rain                 DOUBLE PRECISION,
	relative_humidity_2m DOUBLE PRECISION,
	UNIQUE (location_id, recorded_at)
);`

const recordColumns = `id, location_id, recorded_at, temperature_2m, wind_speed_10m, pressure_msl, rain, relative_humidity_2m`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type pool interface {
	querier
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store persists locations and weather records in Postgres.
type Store struct {
	pool pool
}

var _ weather.Store = (*Store)(nil)

// NewStore connects to Postgres and makes sure the schema exists.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &Store{pool: p}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// EnsureSchema creates the tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) CreateLocation(ctx context.Context, name string, c weather.Coordinates) (weather.Location, error) {
	loc := weather.Location{Name: name, Coordinates: c}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO locations (name, latitude, longitude) VALUES ($1, $2, $3) RETURNING id`,
		name, c.Latitude, c.Longitude,
	).Scan(&loc.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return weather.Location{}, fmt.Errorf("%w: %q", weather.ErrLocationExists, name)
		}
		return weather.Location{}, fmt.Errorf("insert location: %w", err)
	}
	return loc, nil
}

// DeleteLocation removes a location. Its records go with it through ON DELETE CASCADE.
func (s *Store) DeleteLocation(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete location %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("location %d: %w", id, weather.ErrLocationNotFound)
	}
	return nil
}

func (s *Store) ListLocations(ctx context.Context) ([]weather.Location, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, latitude, longitude FROM locations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []weather.Location
	for rows.Next() {
		var loc weather.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Latitude, &loc.Longitude); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return out, nil
}

func (s *Store) FindLocationByID(ctx context.Context, id int64) (weather.Location, error) {
	return s.findLocation(ctx, fmt.Sprintf("location %d", id),
		`SELECT id, name, latitude, longitude FROM locations WHERE id = $1`, id)
}

func (s *Store) FindLocationByName(ctx context.Context, name string) (weather.Location, error) {
	return s.findLocation(ctx, fmt.Sprintf("location %q", name),
		`SELECT id, name, latitude, longitude FROM locations WHERE name = $1`, name)
}

func (s *Store) FindLocationByCoordinates(ctx context.Context, c weather.Coordinates) (weather.Location, error) {
	return s.findLocation(ctx, "location at "+c.String(),
		`SELECT id, name, latitude, longitude FROM locations WHERE latitude = $1 AND longitude = $2`,
		c.Latitude, c.Longitude)
}

func (s *Store) findLocation(ctx context.Context, what, query string, args ...any) (weather.Location, error) {
	var loc weather.Location
	err := s.pool.QueryRow(ctx, query, args...).Scan(&loc.ID, &loc.Name, &loc.Latitude, &loc.Longitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return weather.Location{}, fmt.Errorf("%s: %w", what, weather.ErrLocationNotFound)
	}
	if err != nil {
		return weather.Location{}, fmt.Errorf("find %s: %w", what, err)
	}
	return loc, nil
}

func (s *Store) ListRecords(ctx context.Context, locationID int64) ([]weather.Record, error) {
	return listRecords(ctx, s.pool, locationID, false)
}

// WithinTx runs fn in a Postgres transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx weather.StoreTx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			// the caller's context may already be done; the rollback must still reach the server
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(&storeTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type storeTx struct {
	tx pgx.Tx
}

func (t *storeTx) LockLocation(ctx context.Context, id int64) error {
	var locked int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM locations WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("location %d: %w", id, weather.ErrLocationNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock location %d: %w", id, err)
	}
	return nil
}

func (t *storeTx) ListRecords(ctx context.Context, locationID int64) ([]weather.Record, error) {
	return listRecords(ctx, t.tx, locationID, true)
}

func (t *storeTx) InsertRecord(ctx context.Context, locationID int64, r weather.Record) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO weather_records (
	location_id, recorded_at, temperature_2m, wind_speed_10m, pressure_msl, rain, relative_humidity_2m
) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		locationID, r.Time.UTC(), r.Temperature, r.WindSpeed, r.Pressure, r.Precipitation, r.Humidity,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (t *storeTx) UpdateRecord(ctx context.Context, recordID int64, r weather.Record) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE weather_records
SET temperature_2m = $1, wind_speed_10m = $2, pressure_msl = $3, rain = $4, relative_humidity_2m = $5
WHERE id = $6`,
		r.Temperature, r.WindSpeed, r.Pressure, r.Precipitation, r.Humidity, recordID,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update record %d: no such row", recordID)
	}
	return nil
}

func listRecords(ctx context.Context, q querier, locationID int64, forUpdate bool) ([]weather.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM weather_records WHERE location_id = $1 ORDER BY recorded_at`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, locationID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []weather.Record
	for rows.Next() {
		var r weather.Record
		if err := rows.Scan(
			&r.ID, &r.LocationID, &r.Time,
			&r.Temperature, &r.WindSpeed, &r.Pressure, &r.Precipitation, &r.Humidity,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Time = r.Time.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}
