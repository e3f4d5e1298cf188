package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver ("pgx")
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver ("sqlite3")
	"go.uber.org/zap"

	"github.com/i474232898/fmi-temperature-logger/internal/config"
)

const (
	// connectTimeout bounds a single connection attempt including its ping.
	connectTimeout = 5 * time.Second

	// sqliteBusyTimeoutMS is the lock wait used for SQLite files.
	sqliteBusyTimeoutMS = 5000
)

// Connector opens short-lived database connections with a bounded retry.
// Every successful Connect returns a new handle the caller must Close.
type Connector struct {
	driver   string
	dsn      string
	attempts int
	backoff  time.Duration
	log      *zap.SugaredLogger

	open  func(ctx context.Context, driver, dsn string) (*sqlx.DB, error)
	sleep func(ctx context.Context, d time.Duration) error
}

// NewConnector creates a Connector for the configured database.
func NewConnector(cfg config.DatabaseConfig, log *zap.SugaredLogger) *Connector {
	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Connector{
		driver:   cfg.Driver,
		dsn:      DSN(cfg),
		attempts: attempts,
		backoff:  cfg.ConnectBackoff,
		log:      log,
		open:     sqlx.ConnectContext,
		sleep:    sleepContext,
	}
}

// Driver returns the database/sql driver name in use.
func (c *Connector) Driver() string {
	return c.driver
}

// Connect tries to open a connection up to the configured number of attempts,
// waiting the backoff between tries. It reports failure through the log and
// the boolean result; it never returns an error.
func (c *Connector) Connect(ctx context.Context) (*sqlx.DB, bool) {
	for attempt := 1; attempt <= c.attempts; attempt++ {
		db, err := c.openOnce(ctx)
		if err == nil {
			return db, true
		}

		left := c.attempts - attempt
		c.log.Warnf("Unable to connect to database, %d retries left (%v)", left, err)
		if left == 0 {
			break
		}
		if err := c.sleep(ctx, c.backoff); err != nil {
			break
		}
	}

	c.log.Error("Failed to connect to database")
	return nil, false
}

func (c *Connector) openOnce(ctx context.Context) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := c.open(ctx, c.driver, c.dsn)
	if err != nil {
		return nil, err
	}
	// One operation, one connection.
	db.SetMaxOpenConns(1)
	return db, nil
}

// DSN builds the driver-specific connection string.
//
// For pgx the keyword/value form is used (dbname, user and optionally host,
// port and password). For sqlite3 Name is the database file path.
func DSN(cfg config.DatabaseConfig) string {
	if cfg.Driver == "sqlite3" {
		return fmt.Sprintf("file:%s?_busy_timeout=%d", cfg.Name, sqliteBusyTimeoutMS)
	}

	parts := []string{
		"dbname=" + quoteDSNValue(cfg.Name),
		"user=" + quoteDSNValue(cfg.User),
	}
	if cfg.Host != "" {
		parts = append(parts, "host="+quoteDSNValue(cfg.Host))
	}
	if cfg.Port != 0 {
		parts = append(parts, fmt.Sprintf("port=%d", cfg.Port))
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+quoteDSNValue(cfg.Password))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
