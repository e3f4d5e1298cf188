package weather

import (
	"context"
	"errors"
	"time"
)

// ErrClientInit is wrapped by client factories when a provider client
// cannot be constructed (bad base URL, missing HTTP client, ...).
var ErrClientInit = errors.New("weather client initialization failed")

// Client abstracts an observation source (e.g. FMI Open Data, Open-Meteo).
type Client interface {
	Name() string
	Fetch(ctx context.Context, location, parameter string) ([]Batch, error)
}

// ClientFactory builds a Client for one fetch.
type ClientFactory func() (Client, error)

// RowWriter persists one observation. Implementations report failures
// through their own logging and never return them.
type RowWriter interface {
	WriteRow(ctx context.Context, location string, temperature float64, ts time.Time)
}

// Mirror is an optional secondary destination for observations.
type Mirror interface {
	Name() string
	Publish(ctx context.Context, obs Observation) error
}
