// Package store persists raw observations and hourly aggregates in SQLite.
//
// The raw table is append-only; every ingestion run adds its rows and never
// updates existing ones. The hourly table is keyed by (location, forecast
// hour) and merged with an upsert that preserves created_at. Watermarks are
// tracked per location and advance inside the same transaction as the merge,
// so a crashed run never records progress it did not persist.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/csnaves/weather-pipeline/internal/domain"
)

// timeLayout is how timestamps are stored. All values are UTC before
// formatting, so lexicographic order matches chronological order.
const timeLayout = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS raw_weather (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	forecast_time TEXT NOT NULL,
	location TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	temperature_2m REAL,
	is_day INTEGER NOT NULL,
	precipitation_probability REAL,
	precipitation REAL,
	mode TEXT NOT NULL,
	ingested_at TEXT NOT NULL,
	loaded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_raw_weather_location ON raw_weather(location);

CREATE TABLE IF NOT EXISTS hourly_weather (
	location TEXT NOT NULL,
	forecast_time TEXT NOT NULL,
	avg_temperature REAL NOT NULL,
	avg_precipitation_probability REAL NOT NULL,
	total_precipitation REAL NOT NULL,
	is_day INTEGER NOT NULL,
	grid_point_count INTEGER NOT NULL,
	source_updated_at TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (location, forecast_time)
);

CREATE TABLE IF NOT EXISTS watermarks (
	location TEXT PRIMARY KEY,
	source_updated_at TEXT NOT NULL
);
`

// Store is a SQLite-backed warehouse for the ingestion pipeline.
type Store struct {
	db     *sql.DB
	clock  clockwork.Clock
	logger *slog.Logger
}

// Open opens (or creates) the database at path and ensures the schema exists.
// Use ":memory:" for an ephemeral database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("database opened", "path", path)
	return &Store{db: db, clock: clockwork.NewRealClock(), logger: logger}, nil
}

// SetClock swaps the time source used for created_at and updated_at stamps.
func (s *Store) SetClock(c clockwork.Clock) {
	s.clock = c
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendRaw stamps the batch with a single load time and appends every row to
// the raw table. Nothing is updated or deleted; re-loaded observations simply
// coexist with their stale predecessors.
func (s *Store) AppendRaw(ctx context.Context, obs []domain.RawObservation) error {
	if len(obs) == 0 {
		return nil
	}
	obs = domain.StampLoadedAt(obs)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_weather (
			forecast_time, location, latitude, longitude,
			temperature_2m, is_day, precipitation_probability, precipitation,
			mode, ingested_at, loaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing append: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		_, err := stmt.ExecContext(ctx,
			formatTime(o.ForecastTime),
			o.Location,
			o.Latitude,
			o.Longitude,
			nullableFloat(o.Temperature),
			o.IsDay,
			nullableFloat(o.PrecipProbability),
			nullableFloat(o.Precipitation),
			string(o.Mode),
			formatTime(o.IngestedAt),
			formatTime(o.LoadedAt),
		)
		if err != nil {
			return fmt.Errorf("appending raw observation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	s.logger.Debug("raw observations appended", "count", len(obs))
	return nil
}

// RawObservations returns every raw row recorded for a location, in load
// order.
func (s *Store) RawObservations(ctx context.Context, location string) ([]domain.RawObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT forecast_time, location, latitude, longitude,
		       temperature_2m, is_day, precipitation_probability, precipitation,
		       mode, ingested_at, loaded_at
		FROM raw_weather
		WHERE location = ?
		ORDER BY id`, location)
	if err != nil {
		return nil, fmt.Errorf("querying raw observations: %w", err)
	}
	defer rows.Close()

	var out []domain.RawObservation
	for rows.Next() {
		var (
			o                  domain.RawObservation
			forecast, ingested string
			loaded, mode       string
			temp, prob, precip sql.NullFloat64
		)
		if err := rows.Scan(
			&forecast, &o.Location, &o.Latitude, &o.Longitude,
			&temp, &o.IsDay, &prob, &precip,
			&mode, &ingested, &loaded,
		); err != nil {
			return nil, fmt.Errorf("scanning raw observation: %w", err)
		}
		o.Temperature = floatOrNaN(temp)
		o.PrecipProbability = floatOrNaN(prob)
		o.Precipitation = floatOrNaN(precip)
		o.Mode = domain.Mode(mode)
		if o.ForecastTime, err = parseTime(forecast); err != nil {
			return nil, err
		}
		if o.IngestedAt, err = parseTime(ingested); err != nil {
			return nil, err
		}
		if o.LoadedAt, err = parseTime(loaded); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Watermark returns the last merged source_updated_at for a location, or the
// zero time when the location has never been merged.
func (s *Store) Watermark(ctx context.Context, location string) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT source_updated_at FROM watermarks WHERE location = ?`, location).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("querying watermark: %w", err)
	}
	return parseTime(raw)
}

// MergeAggregates upserts the hourly rows and advances the watermark in one
// transaction. Existing rows keep their created_at; updated_at always moves
// to now. A zero watermark leaves the stored watermark untouched.
func (s *Store) MergeAggregates(ctx context.Context, location string, aggs []domain.HourlyAggregate, watermark time.Time) error {
	now := s.clock.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.MergeError{Err: fmt.Errorf("beginning merge: %w", err)}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hourly_weather (
			location, forecast_time, avg_temperature,
			avg_precipitation_probability, total_precipitation,
			is_day, grid_point_count, source_updated_at, summary,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location, forecast_time) DO UPDATE SET
			avg_temperature = excluded.avg_temperature,
			avg_precipitation_probability = excluded.avg_precipitation_probability,
			total_precipitation = excluded.total_precipitation,
			is_day = excluded.is_day,
			grid_point_count = excluded.grid_point_count,
			source_updated_at = excluded.source_updated_at,
			summary = excluded.summary,
			updated_at = excluded.updated_at`)
	if err != nil {
		return &domain.MergeError{Err: fmt.Errorf("preparing merge: %w", err)}
	}
	defer stmt.Close()

	for _, a := range aggs {
		_, err := stmt.ExecContext(ctx,
			a.Location,
			formatTime(a.ForecastTime),
			a.AvgTemperature,
			a.AvgPrecipProb,
			a.TotalPrecip,
			a.IsDay,
			a.GridPointCount,
			formatTime(a.SourceUpdatedAt),
			a.Summary,
			formatTime(now),
			formatTime(now),
		)
		if err != nil {
			return &domain.MergeError{Err: fmt.Errorf("merging aggregate for %s at %s: %w", a.Location, a.ForecastTime, err)}
		}
	}

	if !watermark.IsZero() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO watermarks (location, source_updated_at) VALUES (?, ?)
			ON CONFLICT(location) DO UPDATE SET
				source_updated_at = excluded.source_updated_at`,
			location, formatTime(watermark))
		if err != nil {
			return &domain.MergeError{Err: fmt.Errorf("advancing watermark: %w", err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &domain.MergeError{Err: fmt.Errorf("committing merge: %w", err)}
	}

	s.logger.Debug("aggregates merged", "location", location, "count", len(aggs))
	return nil
}

// ListAggregates returns the hourly rows for a location ordered by forecast
// time.
func (s *Store) ListAggregates(ctx context.Context, location string) ([]domain.HourlyAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT location, forecast_time, avg_temperature,
		       avg_precipitation_probability, total_precipitation,
		       is_day, grid_point_count, source_updated_at, summary,
		       created_at, updated_at
		FROM hourly_weather
		WHERE location = ?
		ORDER BY forecast_time`, location)
	if err != nil {
		return nil, fmt.Errorf("querying aggregates: %w", err)
	}
	defer rows.Close()

	var out []domain.HourlyAggregate
	for rows.Next() {
		var (
			a                                   domain.HourlyAggregate
			forecast, sourceUpdated, created, updated string
		)
		if err := rows.Scan(
			&a.Location, &forecast, &a.AvgTemperature,
			&a.AvgPrecipProb, &a.TotalPrecip,
			&a.IsDay, &a.GridPointCount, &sourceUpdated, &a.Summary,
			&created, &updated,
		); err != nil {
			return nil, fmt.Errorf("scanning aggregate: %w", err)
		}
		if a.ForecastTime, err = parseTime(forecast); err != nil {
			return nil, err
		}
		if a.SourceUpdatedAt, err = parseTime(sourceUpdated); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if a.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// nullableFloat maps NaN to NULL so SQLite never stores an unrepresentable
// value; floatOrNaN is the inverse on the way out.
func nullableFloat(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
