package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/fmi-temperature-logger/internal/api/http"
	"github.com/i474232898/fmi-temperature-logger/internal/config"
	"github.com/i474232898/fmi-temperature-logger/internal/logging"
	"github.com/i474232898/fmi-temperature-logger/internal/mirror"
	"github.com/i474232898/fmi-temperature-logger/internal/scheduler"
	"github.com/i474232898/fmi-temperature-logger/internal/store"
	"github.com/i474232898/fmi-temperature-logger/internal/weather"
	"github.com/i474232898/fmi-temperature-logger/internal/weather/providers"
)

const appName = "fmi-temperature-logger"

func main() {
	// Used until the configured level is known.
	log := logging.Default()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log = logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	_ = log.Sync()

	if err != nil {
		os.Exit(1)
	}
}

// run wires every component and polls until ctx is cancelled. Resources are
// released before it returns, including on a start-up failure.
func run(ctx context.Context, cfg *config.AppConfig, log *zap.SugaredLogger) error {
	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	var newClient weather.ClientFactory
	switch cfg.Provider {
	case "openmeteo":
		newClient = providers.NewOpenMeteoFactory(httpClient, cfg.OpenMeteo)
	default:
		newClient = providers.NewFMIFactory(httpClient, cfg.FMI)
	}

	conn := store.NewConnector(cfg.Database, log)
	tables := store.NewTables(conn, cfg.Database.Table)
	writer := store.NewWriter(conn, cfg.Database.Table, log)

	mirrors := setupMirrors(cfg, log)
	defer closeMirrors(mirrors)
	service := weather.NewService(cfg.Location, newClient, writer, log, mirrors...)

	if cfg.API.Port != "" {
		app := httpapi.NewApp(appName)
		app.Use(logger.New())
		app.Use(recover.New())
		httpapi.RegisterRoutes(app, store.NewReader(conn, cfg.Database.Table), cfg.Location)

		go func() {
			if err := app.Listen(":" + cfg.API.Port); err != nil {
				log.Errorf("HTTP server stopped: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				log.Errorf("Error during HTTP shutdown: %v", err)
			}
		}()
	}

	log.Infof("Logging %s temperatures for %s every %s", cfg.Provider, cfg.Location, cfg.FetchInterval)

	sched := scheduler.New(tables, service, cfg.FetchInterval, cfg.FetchSchedule, log)
	if err := sched.Run(ctx); err != nil {
		log.Errorf("Stopping: %v", err)
		return err
	}

	log.Info("Shutting down")
	return nil
}

// closer is implemented by mirrors holding network resources.
type closer interface {
	Close()
}

// setupMirrors builds every configured mirror. A mirror that fails to start is
// logged and skipped.
func setupMirrors(cfg *config.AppConfig, log *zap.SugaredLogger) []weather.Mirror {
	var mirrors []weather.Mirror

	add := func(m weather.Mirror, err error) {
		switch {
		case errors.Is(err, mirror.ErrDisabled):
			return
		case err != nil:
			log.Warnf("Mirror unavailable, continuing without it: %v", err)
			return
		}
		log.Infof("Mirroring observations to %s", m.Name())
		mirrors = append(mirrors, m)
	}

	influx, err := mirror.NewInflux(cfg.InfluxDB)
	add(influx, err)

	mqtt, err := mirror.NewMQTT(cfg.MQTT)
	add(mqtt, err)

	return mirrors
}

func closeMirrors(mirrors []weather.Mirror) {
	for _, m := range mirrors {
		if c, ok := m.(closer); ok {
			c.Close()
		}
	}
}
