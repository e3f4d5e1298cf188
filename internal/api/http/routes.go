package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/fmi-temperature-logger/internal/store"
	"github.com/i474232898/fmi-temperature-logger/internal/weather"
)

var validate = validator.New()

// ObservationReader is the read side of the observation table.
type ObservationReader interface {
	Latest(ctx context.Context, location string) (weather.Observation, error)
	Range(ctx context.Context, location string, from, to time.Time) ([]weather.Observation, error)
}

// NewApp creates the Fiber app with the shared JSON error handler.
func NewApp(name string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. Requests without
// a location query parameter use defaultLocation.
func RegisterRoutes(app *fiber.App, reader ObservationReader, defaultLocation string) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"location": defaultLocation,
		})
	})

	v1 := app.Group("/api/v1")

	v1.Get("/temperature/latest", func(c *fiber.Ctx) error {
		location := c.Query("location", defaultLocation)

		obs, err := reader.Latest(c.UserContext(), location)
		if err != nil {
			return readError(err, "failed to fetch temperature")
		}
		return c.JSON(obs)
	})

	v1.Get("/temperature/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c, defaultLocation); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		observations, err := reader.Range(c.UserContext(), req.Location, req.From, req.To)
		if err != nil {
			return readError(err, "failed to fetch temperature history")
		}

		return c.JSON(fiber.Map{
			"location":     req.Location,
			"from":         req.From,
			"to":           req.To,
			"observations": observations,
		})
	})
}

func readError(err error, msg string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, msg)
	}
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Location string    `validate:"required,max=255"`
	From     time.Time `validate:"required"`
	To       time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx, defaultLocation string) error {
	h.Location = c.Query("location", defaultLocation)

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
