package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/fmi-temperature-logger/internal/config"
	"github.com/i474232898/fmi-temperature-logger/internal/store"
	"github.com/i474232898/fmi-temperature-logger/internal/weather"
)

func sqliteConfig(t *testing.T, dir string) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Driver:          "sqlite3",
		Name:            filepath.Join(dir, "weather.db"),
		User:            "logger",
		Table:           "temperature",
		ConnectAttempts: 1,
	}
}

// seededReader returns a reader over a SQLite table holding three observations
// for Kirkkonummi, one hour apart starting at midnight UTC.
func seededReader(t *testing.T) *store.Reader {
	t.Helper()
	cfg := sqliteConfig(t, t.TempDir())
	log := zap.NewNop().Sugar()
	conn := store.NewConnector(cfg, log)

	ctx := context.Background()
	if err := store.NewTables(conn, cfg.Table).EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable() error = %v", err)
	}
	w := store.NewWriter(conn, cfg.Table, log)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range []float64{-5.5, -6, -6.5} {
		w.WriteRow(ctx, "Kirkkonummi", v, base.Add(time.Duration(i)*time.Hour))
	}
	return store.NewReader(conn, cfg.Table)
}

func doGet(t *testing.T, reader ObservationReader, target string) *http.Response {
	t.Helper()
	app := NewApp("test")
	RegisterRoutes(app, reader, "Kirkkonummi")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return resp
}

func TestLatest(t *testing.T) {
	resp := doGet(t, seededReader(t), "/api/v1/temperature/latest")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var obs weather.Observation
	if err := json.NewDecoder(resp.Body).Decode(&obs); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if obs.Location != "Kirkkonummi" || obs.Temperature != -6.5 {
		t.Errorf("observation = %+v", obs)
	}
	if !obs.Timestamp.Equal(time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", obs.Timestamp)
	}
}

func TestHistory(t *testing.T) {
	resp := doGet(t, seededReader(t),
		"/api/v1/temperature/history?location=Kirkkonummi&from=2024-01-01T00:00:00Z&to=2024-01-01T01:00:00Z")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var body struct {
		Observations []weather.Observation `json:"observations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Observations) != 2 {
		t.Fatalf("observations = %d, want 2", len(body.Observations))
	}
	if body.Observations[0].Temperature != -5.5 {
		t.Errorf("first temperature = %v, want -5.5", body.Observations[0].Temperature)
	}
}

func TestStatusCodes(t *testing.T) {
	reader := seededReader(t)

	unreachable := sqliteConfig(t, filepath.Join(t.TempDir(), "missing"))
	offline := store.NewReader(store.NewConnector(unreachable, zap.NewNop().Sugar()), unreachable.Table)

	tests := []struct {
		name   string
		reader ObservationReader
		target string
		want   int
	}{
		{"unknown location", reader, "/api/v1/temperature/latest?location=Espoo", http.StatusNotFound},
		{"missing range", reader, "/api/v1/temperature/history", http.StatusBadRequest},
		{"bad time", reader, "/api/v1/temperature/history?from=yesterday&to=today", http.StatusBadRequest},
		{"reversed range", reader, "/api/v1/temperature/history?from=1704070800&to=1704067200", http.StatusBadRequest},
		{"unix range", reader, "/api/v1/temperature/history?from=1704067200&to=1704070800", http.StatusOK},
		{"empty range", reader, "/api/v1/temperature/history?from=2023-01-01T00:00:00Z&to=2023-01-02T00:00:00Z", http.StatusNotFound},
		{"database down", offline, "/api/v1/temperature/latest", http.StatusServiceUnavailable},
		{"health", reader, "/health", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doGet(t, tt.reader, tt.target)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-01-01T00:00:00Z", "2024-01-01T02:00:00+02:00", "1704067200"} {
		got, err := parseTime(s)
		if err != nil {
			t.Fatalf("parseTime(%q) error = %v", s, err)
		}
		if !got.Equal(want) {
			t.Errorf("parseTime(%q) = %v, want %v", s, got, want)
		}
	}
	if _, err := parseTime("2024-01-01"); err == nil {
		t.Error("parseTime() expected error for date only")
	}
}
