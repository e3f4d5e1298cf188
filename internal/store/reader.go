package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/i474232898/fmi-temperature-logger/internal/weather"
)

var (
	// ErrNotFound is returned when no rows match a query.
	ErrNotFound = errors.New("no temperature data for location")

	// ErrUnavailable is returned when no database connection could be made.
	ErrUnavailable = errors.New("database unavailable")
)

// Reader queries stored observations.
type Reader struct {
	conn  *Connector
	table string
}

// NewReader creates a Reader for the named table.
func NewReader(conn *Connector, table string) *Reader {
	return &Reader{conn: conn, table: table}
}

// Latest returns the most recent observation for location.
func (r *Reader) Latest(ctx context.Context, location string) (weather.Observation, error) {
	db, ok := r.conn.Connect(ctx)
	if !ok {
		return weather.Observation{}, ErrUnavailable
	}
	defer db.Close() //nolint:errcheck // Connection is discarded after use

	query := db.Rebind(fmt.Sprintf(
		"SELECT location, temperature, time FROM %s WHERE location = ? ORDER BY time DESC LIMIT 1", r.table))

	var obs weather.Observation
	if err := db.GetContext(ctx, &obs, query, location); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return weather.Observation{}, ErrNotFound
		}
		return weather.Observation{}, fmt.Errorf("querying latest observation: %w", err)
	}
	obs.Timestamp = obs.Timestamp.UTC()
	return obs, nil
}

// Range returns observations for location between from and to (inclusive),
// oldest first. Duplicate rows are returned as stored.
func (r *Reader) Range(ctx context.Context, location string, from, to time.Time) ([]weather.Observation, error) {
	db, ok := r.conn.Connect(ctx)
	if !ok {
		return nil, ErrUnavailable
	}
	defer db.Close() //nolint:errcheck // Connection is discarded after use

	query := db.Rebind(fmt.Sprintf(
		"SELECT location, temperature, time FROM %s WHERE location = ? AND time >= ? AND time <= ? ORDER BY time", r.table))

	var result []weather.Observation
	if err := db.SelectContext(ctx, &result, query, location, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("querying observations: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	for i := range result {
		result[i].Timestamp = result[i].Timestamp.UTC()
	}
	return result, nil
}
