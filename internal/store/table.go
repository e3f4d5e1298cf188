package store

import (
	"context"
	"fmt"
)

// Tables ensures the observation table exists.
type Tables struct {
	conn  *Connector
	table string
}

// NewTables creates a Tables for the named table.
func NewTables(conn *Connector, table string) *Tables {
	return &Tables{conn: conn, table: table}
}

// EnsureTable creates the observation table if it is absent. When no
// connection can be made it does nothing; the connector has already logged
// the failure. Errors from the statement itself are returned.
func (t *Tables) EnsureTable(ctx context.Context) error {
	db, ok := t.conn.Connect(ctx)
	if !ok {
		return nil
	}
	defer db.Close() //nolint:errcheck // Connection is discarded after use

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		location varchar(255),
		temperature real,
		time timestamp
	)`, t.table)

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating table %s: %w", t.table, err)
	}
	return nil
}
