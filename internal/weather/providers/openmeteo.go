package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/fmi-temperature-logger/internal/config"
	"github.com/i474232898/fmi-temperature-logger/internal/weather"
)

const openMeteoName = "openmeteo"

// openMeteoTimeLayout is the hourly time format returned with timezone=GMT.
const openMeteoTimeLayout = "2006-01-02T15:04"

// openMeteoVariables maps observation parameters to Open-Meteo hourly variables.
var openMeteoVariables = map[string]string{
	weather.ParameterTemperature: "temperature_2m",
}

// OpenMeteoProvider implements weather.Client for Open-Meteo. The place name is
// geocoded first, then the past day of hourly values is returned as one batch.
type OpenMeteoProvider struct {
	name         string
	baseURL      string
	geocodingURL string
	httpCfg      HTTPClientConfig
	circuit      *gobreaker.CircuitBreaker
	now          func() time.Time
}

// NewOpenMeteoFactory returns a factory building Open-Meteo clients that share one circuit breaker.
func NewOpenMeteoFactory(client *http.Client, cfg config.OpenMeteoConfig) weather.ClientFactory {
	cb := newBreaker(openMeteoName)
	return func() (weather.Client, error) {
		return newOpenMeteoProvider(client, cfg, cb)
	}
}

func newOpenMeteoProvider(client *http.Client, cfg config.OpenMeteoConfig, cb *gobreaker.CircuitBreaker) (*OpenMeteoProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrClientInit, errNoHTTPClient)
	}
	if err := validateBaseURL(cfg.BaseURL); err != nil {
		return nil, err
	}
	if err := validateBaseURL(cfg.GeocodingURL); err != nil {
		return nil, err
	}

	return &OpenMeteoProvider{
		name:         openMeteoName,
		baseURL:      cfg.BaseURL,
		geocodingURL: cfg.GeocodingURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff,
		},
		circuit: cb,
		now:     time.Now,
	}, nil
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, location, parameter string) ([]weather.Batch, error) {
	variable, ok := openMeteoVariables[parameter]
	if !ok {
		return nil, &weather.FetchError{Provider: p.name, Message: "unsupported parameter " + parameter}
	}

	lat, lon, err := p.geocode(ctx, location)
	if err != nil {
		return nil, err
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", lat))
		values.Set("longitude", fmt.Sprintf("%f", lon))
		values.Set("hourly", variable)
		values.Set("past_days", "1")
		values.Set("forecast_days", "1")
		values.Set("timezone", "GMT")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, fetchError(p.name, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Hourly map[string]json.RawMessage `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &weather.FetchError{Provider: p.name, Message: "decoding response", Err: err}
	}

	var times []string
	var values []*float64
	if err := json.Unmarshal(payload.Hourly["time"], &times); err != nil {
		return nil, &weather.FetchError{Provider: p.name, Message: "decoding hourly times", Err: err}
	}
	if err := json.Unmarshal(payload.Hourly[variable], &values); err != nil {
		return nil, &weather.FetchError{Provider: p.name, Message: "decoding hourly " + variable, Err: err}
	}

	// Only hours that have already happened and carry a value are observations.
	now := p.now().UTC()
	var batch weather.Batch
	for i := 0; i < len(times) && i < len(values); i++ {
		if values[i] == nil {
			continue
		}
		ts, err := time.ParseInLocation(openMeteoTimeLayout, times[i], time.UTC)
		if err != nil {
			return nil, &weather.FetchError{Provider: p.name, Message: "invalid time " + times[i], Err: err}
		}
		if ts.After(now) {
			continue
		}
		batch.Times = append(batch.Times, ts)
		batch.Values = append(batch.Values, *values[i])
	}

	return []weather.Batch{batch}, nil
}

func (p *OpenMeteoProvider) geocode(ctx context.Context, location string) (float64, float64, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("name", location)
		values.Set("count", "1")
		values.Set("format", "json")

		u := fmt.Sprintf("%s?%s", p.geocodingURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return 0, 0, fetchError(p.name, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Results []struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, 0, &weather.FetchError{Provider: p.name, Message: "decoding geocoding response", Err: err}
	}
	if len(payload.Results) == 0 {
		return 0, 0, &weather.FetchError{
			Provider: p.name,
			Message:  fmt.Sprintf("no locations found for %q", location),
			NotFound: true,
		}
	}
	return payload.Results[0].Latitude, payload.Results[0].Longitude, nil
}
