package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Writer inserts one observation row per call over a fresh connection.
type Writer struct {
	conn  *Connector
	table string
	log   *zap.SugaredLogger
}

// NewWriter creates a Writer for the named table.
func NewWriter(conn *Connector, table string, log *zap.SugaredLogger) *Writer {
	return &Writer{conn: conn, table: table, log: log}
}

// WriteRow stores a single observation. Failures are logged and the
// observation is dropped; WriteRow always returns normally.
func (w *Writer) WriteRow(ctx context.Context, location string, temperature float64, ts time.Time) {
	db, ok := w.conn.Connect(ctx)
	if !ok {
		w.log.Error("Failed to write data to db (connection failed)")
		return
	}
	defer db.Close() //nolint:errcheck // Connection is discarded after use

	query := db.Rebind(fmt.Sprintf(
		"INSERT INTO %s (location, temperature, time) VALUES (?, ?, ?)", w.table))

	if _, err := db.ExecContext(ctx, query, location, temperature, ts.UTC().Truncate(time.Second)); err != nil {
		w.log.Errorf("Failed to write data to db: %v", err)
	}
}
