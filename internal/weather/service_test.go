package weather

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClient struct {
	batches []Batch
	err     error
	calls   []string
}

func (c *fakeClient) Name() string { return "fake" }

func (c *fakeClient) Fetch(_ context.Context, location, parameter string) ([]Batch, error) {
	c.calls = append(c.calls, location+"/"+parameter)
	return c.batches, c.err
}

type writtenRow struct {
	location    string
	temperature float64
	ts          time.Time
}

type fakeWriter struct {
	rows []writtenRow
}

func (w *fakeWriter) WriteRow(_ context.Context, location string, temperature float64, ts time.Time) {
	w.rows = append(w.rows, writtenRow{location, temperature, ts})
}

type fakeMirror struct {
	err  error
	seen []Observation
}

func (m *fakeMirror) Name() string { return "mirror" }

func (m *fakeMirror) Publish(_ context.Context, obs Observation) error {
	m.seen = append(m.seen, obs)
	return m.err
}

func newObservedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func factoryFor(c Client) ClientFactory {
	return func() (Client, error) { return c, nil }
}

func TestRunCycle_LogsAndWritesEveryPairInOrder(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client := &fakeClient{batches: []Batch{
		{Times: []time.Time{t0, t0.Add(10 * time.Minute)}, Values: []float64{-5.5, -5.25}},
		{Times: []time.Time{t0.Add(20 * time.Minute)}, Values: []float64{-4}},
	}}
	writer := &fakeWriter{}
	log, logs := newObservedLogger()

	svc := NewService("Kirkkonummi", factoryFor(client), writer, log)
	n := svc.RunCycle(context.Background())

	if n != 3 {
		t.Fatalf("RunCycle() = %d, want 3", n)
	}
	if len(client.calls) != 1 || client.calls[0] != "Kirkkonummi/temperature" {
		t.Errorf("client calls = %v", client.calls)
	}

	wantValues := []float64{-5.5, -5.25, -4}
	if len(writer.rows) != len(wantValues) {
		t.Fatalf("writes = %d, want %d", len(writer.rows), len(wantValues))
	}
	for i, row := range writer.rows {
		if row.temperature != wantValues[i] {
			t.Errorf("row %d temperature = %v, want %v", i, row.temperature, wantValues[i])
		}
		if row.location != "Kirkkonummi" {
			t.Errorf("row %d location = %q", i, row.location)
		}
	}

	infos := logs.FilterLevelExact(zapcore.InfoLevel).All()
	if len(infos) != 3 {
		t.Fatalf("info lines = %d, want 3", len(infos))
	}
	want := "Temperature in Kirkkonummi at 2024-01-01 00:00:00: -5.5 UTC"
	if infos[0].Message != want {
		t.Errorf("first log line = %q, want %q", infos[0].Message, want)
	}
}

func TestRunCycle_UnevenBatchStopsAtShorter(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client := &fakeClient{batches: []Batch{
		{Times: []time.Time{t0, t0.Add(time.Hour), t0.Add(2 * time.Hour)}, Values: []float64{1, 2}},
	}}
	writer := &fakeWriter{}
	log, _ := newObservedLogger()

	n := NewService("Kirkkonummi", factoryFor(client), writer, log).RunCycle(context.Background())
	if n != 2 || len(writer.rows) != 2 {
		t.Errorf("processed %d, wrote %d; want 2 and 2", n, len(writer.rows))
	}
}

// cancellingWriter cancels the cycle context after its first row.
type cancellingWriter struct {
	fakeWriter
	cancel context.CancelFunc
}

func (w *cancellingWriter) WriteRow(ctx context.Context, location string, temperature float64, ts time.Time) {
	w.fakeWriter.WriteRow(ctx, location, temperature, ts)
	w.cancel()
}

func TestRunCycle_StopsWhenContextCancelled(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client := &fakeClient{batches: []Batch{
		{Times: []time.Time{t0, t0.Add(10 * time.Minute)}, Values: []float64{-5.5, -5.25}},
		{Times: []time.Time{t0.Add(20 * time.Minute)}, Values: []float64{-4}},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	writer := &cancellingWriter{cancel: cancel}
	mirror := &fakeMirror{}
	log, logs := newObservedLogger()

	n := NewService("Kirkkonummi", factoryFor(client), writer, log, mirror).RunCycle(ctx)

	if n != 1 || len(writer.rows) != 1 {
		t.Errorf("processed %d, wrote %d; want 1 and 1", n, len(writer.rows))
	}
	if got := logs.FilterLevelExact(zapcore.InfoLevel).Len(); got != 1 {
		t.Errorf("info lines = %d, want 1", got)
	}
}

func TestRunCycle_EmptyResult(t *testing.T) {
	writer := &fakeWriter{}
	log, logs := newObservedLogger()

	n := NewService("Kirkkonummi", factoryFor(&fakeClient{}), writer, log).RunCycle(context.Background())
	if n != 0 || len(writer.rows) != 0 {
		t.Errorf("processed %d, wrote %d; want none", n, len(writer.rows))
	}
	if logs.Len() != 0 {
		t.Errorf("log lines = %d, want 0", logs.Len())
	}
}

func TestFetchTemperature_Failures(t *testing.T) {
	tests := []struct {
		name    string
		factory ClientFactory
		want    string
	}{
		{
			name: "client init failure",
			factory: func() (Client, error) {
				return nil, fmt.Errorf("parsing base url: %w", ErrClientInit)
			},
			want: "Failed to initialize weather client",
		},
		{
			name: "provider fetch error",
			factory: factoryFor(&fakeClient{err: &FetchError{
				Provider: "fmi", StatusCode: 400, Message: "No locations found for the place",
			}}),
			want: "Failed to fetch temperature: fmi: status 400: No locations found for the place",
		},
		{
			name:    "other fetch error",
			factory: factoryFor(&fakeClient{err: errors.New("boom")}),
			want:    "Failed to fetch temperature from fake: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, logs := newObservedLogger()
			svc := NewService("Kirkkonummi", tt.factory, &fakeWriter{}, log)

			if got := svc.FetchTemperature(context.Background()); got != nil {
				t.Errorf("FetchTemperature() = %v, want nil", got)
			}

			errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
			if len(errs) != 1 {
				t.Fatalf("error lines = %d, want 1", len(errs))
			}
			if got := errs[0].Message; len(got) < len(tt.want) || got[:len(tt.want)] != tt.want {
				t.Errorf("error line = %q, want prefix %q", got, tt.want)
			}
		})
	}
}

func TestRunCycle_MirrorFailureDoesNotStopWrites(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client := &fakeClient{batches: []Batch{{Times: []time.Time{t0, t0}, Values: []float64{1, 2}}}}
	writer := &fakeWriter{}
	mirror := &fakeMirror{err: errors.New("broker down")}
	log, logs := newObservedLogger()

	NewService("Kirkkonummi", factoryFor(client), writer, log, mirror).RunCycle(context.Background())

	if len(writer.rows) != 2 || len(mirror.seen) != 2 {
		t.Errorf("writes=%d mirrored=%d, want 2 and 2", len(writer.rows), len(mirror.seen))
	}
	if got := logs.FilterLevelExact(zapcore.WarnLevel).Len(); got != 2 {
		t.Errorf("warn lines = %d, want 2", got)
	}
}

func TestBatchObservations_UTC(t *testing.T) {
	helsinki := time.FixedZone("EET", 2*60*60)
	b := Batch{
		Times:  []time.Time{time.Date(2024, 1, 1, 2, 0, 0, 0, helsinki)},
		Values: []float64{3},
	}
	obs := b.Observations("Kirkkonummi")
	if len(obs) != 1 {
		t.Fatalf("len = %d", len(obs))
	}
	if obs[0].Timestamp.Location() != time.UTC || obs[0].Timestamp.Hour() != 0 {
		t.Errorf("timestamp = %v, want 00:00 UTC", obs[0].Timestamp)
	}
}
