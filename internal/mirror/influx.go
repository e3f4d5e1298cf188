package mirror

import (
	"context"
	"fmt"
	"math"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/i474232898/fmi-temperature-logger/internal/config"
	"github.com/i474232898/fmi-temperature-logger/internal/weather"
)

const (
	influxMeasurement = "temperature"

	// influxRequestTimeout is in seconds, as the client options expect.
	influxRequestTimeout = 10
)

// Influx writes each observation as one point:
//
//	temperature,location=<location> value=<temperature> <time>
type Influx struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInflux creates the InfluxDB mirror. It returns ErrDisabled when no URL is configured.
func NewInflux(cfg config.InfluxDBConfig) (*Influx, error) {
	if cfg.URL == "" {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(influxRequestTimeout),
	)

	return &Influx{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

func (i *Influx) Name() string {
	return "influxdb"
}

// Publish writes obs synchronously. A reading without a finite value has no
// field to write and is skipped.
func (i *Influx) Publish(ctx context.Context, obs weather.Observation) error {
	if math.IsNaN(obs.Temperature) || math.IsInf(obs.Temperature, 0) {
		return nil
	}

	p := influxdb2.NewPoint(
		influxMeasurement,
		map[string]string{"location": obs.Location},
		map[string]interface{}{"value": obs.Temperature},
		obs.Timestamp.UTC(),
	)
	if err := i.write.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("writing point: %w", err)
	}
	return nil
}

// Close releases the underlying HTTP resources.
func (i *Influx) Close() {
	i.client.Close()
}
