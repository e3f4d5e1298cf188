package weather

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"
)

// logTimeLayout is the timestamp layout used in per-observation log lines.
const logTimeLayout = "2006-01-02 15:04:05"

// Service runs one poll cycle: fetch, log and persist observations for a location.
type Service struct {
	location  string
	newClient ClientFactory
	writer    RowWriter
	mirrors   []Mirror
	log       *zap.SugaredLogger
}

// NewService creates a new Service.
func NewService(location string, newClient ClientFactory, writer RowWriter, log *zap.SugaredLogger, mirrors ...Mirror) *Service {
	return &Service{
		location:  location,
		newClient: newClient,
		writer:    writer,
		mirrors:   mirrors,
		log:       log,
	}
}

// Location returns the place this service polls.
func (s *Service) Location() string {
	return s.location
}

// FetchTemperature returns the temperature batches for the configured location.
// It never fails: initialization and fetch errors are logged and an empty
// result is returned instead.
func (s *Service) FetchTemperature(ctx context.Context) []Batch {
	client, err := s.newClient()
	if err != nil {
		if errors.Is(err, ErrClientInit) {
			s.log.Errorf("Failed to initialize weather client, won't be able to fetch temperatures: %v", err)
		} else {
			s.log.Errorf("Unexpected error creating weather client: %v", err)
		}
		return nil
	}

	batches, err := client.Fetch(ctx, s.location, ParameterTemperature)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			s.log.Errorf("Failed to fetch temperature: %s", fe.Error())
		} else {
			s.log.Errorf("Failed to fetch temperature from %s: %v", client.Name(), err)
		}
		return nil
	}
	return batches
}

// RunCycle fetches the latest batches, logs every reading and hands it to the
// row writer and mirrors in order. It returns the number of observations processed.
func (s *Service) RunCycle(ctx context.Context) int {
	processed := 0
	for _, batch := range s.FetchTemperature(ctx) {
		for _, obs := range batch.Observations(s.location) {
			// Stop handing rows to the writer once shutdown has begun.
			if ctx.Err() != nil {
				return processed
			}
			s.log.Infof("Temperature in %s at %s: %s UTC",
				obs.Location, obs.Timestamp.Format(logTimeLayout), formatValue(obs.Temperature))

			s.writer.WriteRow(ctx, obs.Location, obs.Temperature, obs.Timestamp)
			s.publish(ctx, obs)
			processed++
		}
	}
	return processed
}

func (s *Service) publish(ctx context.Context, obs Observation) {
	for _, m := range s.mirrors {
		if err := m.Publish(ctx, obs); err != nil {
			s.log.Warnf("Failed to publish observation to %s: %v", m.Name(), err)
		}
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
