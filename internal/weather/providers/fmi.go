package providers

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/fmi-temperature-logger/internal/config"
	"github.com/i474232898/fmi-temperature-logger/internal/weather"
)

const fmiName = "fmi"

// FMIClient implements weather.Client for the FMI Open Data WFS service.
// Each wfs:member of the response becomes one batch.
type FMIClient struct {
	name        string
	baseURL     string
	storedQuery string
	httpCfg     HTTPClientConfig
	circuit     *gobreaker.CircuitBreaker
}

// NewFMIFactory returns a factory building FMI clients that share one circuit breaker.
func NewFMIFactory(client *http.Client, cfg config.FMIConfig) weather.ClientFactory {
	cb := newBreaker(fmiName)
	return func() (weather.Client, error) {
		return newFMIClient(client, cfg, cb)
	}
}

func newFMIClient(client *http.Client, cfg config.FMIConfig, cb *gobreaker.CircuitBreaker) (*FMIClient, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrClientInit, errNoHTTPClient)
	}
	if err := validateBaseURL(cfg.BaseURL); err != nil {
		return nil, err
	}
	if cfg.StoredQuery == "" {
		return nil, fmt.Errorf("%w: stored query is not configured", weather.ErrClientInit)
	}

	return &FMIClient{
		name:        fmiName,
		baseURL:     cfg.BaseURL,
		storedQuery: cfg.StoredQuery,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff,
		},
		circuit: cb,
	}, nil
}

func (c *FMIClient) Name() string {
	return c.name
}

// fmiFeatureCollection is the subset of a timevaluepair response we read.
type fmiFeatureCollection struct {
	Members []struct {
		Points []struct {
			Time  string `xml:"MeasurementTVP>time"`
			Value string `xml:"MeasurementTVP>value"`
		} `xml:"PointTimeSeriesObservation>result>MeasurementTimeseries>point"`
	} `xml:"member"`
}

// fmiExceptionReport is the OWS error document returned with 4xx responses.
type fmiExceptionReport struct {
	Texts []string `xml:"Exception>ExceptionText"`
}

func (c *FMIClient) Fetch(ctx context.Context, location, parameter string) ([]weather.Batch, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("service", "WFS")
		values.Set("version", "2.0.0")
		values.Set("request", "getFeature")
		values.Set("storedquery_id", c.storedQuery)
		values.Set("place", location)
		values.Set("parameters", parameter)

		u := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, c.requestError(err)
	}
	defer resp.Body.Close()

	var payload fmiFeatureCollection
	if err := xml.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &weather.FetchError{Provider: c.name, Message: "decoding response", Err: err}
	}

	batches := make([]weather.Batch, 0, len(payload.Members))
	for _, m := range payload.Members {
		batch := weather.Batch{
			Times:  make([]time.Time, 0, len(m.Points)),
			Values: make([]float64, 0, len(m.Points)),
		}
		for _, p := range m.Points {
			ts, err := time.Parse(time.RFC3339, strings.TrimSpace(p.Time))
			if err != nil {
				return nil, &weather.FetchError{Provider: c.name, Message: "invalid time " + p.Time, Err: err}
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(p.Value), 64)
			if err != nil {
				return nil, &weather.FetchError{Provider: c.name, Message: "invalid value " + p.Value, Err: err}
			}
			batch.Times = append(batch.Times, ts.UTC())
			batch.Values = append(batch.Values, v)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// requestError attaches the server's exception text, if any, to a failed request.
func (c *FMIClient) requestError(err error) error {
	fe := fetchError(c.name, err)

	var se *statusError
	if !errors.As(err, &se) || se.Body == "" {
		return fe
	}

	var report fmiExceptionReport
	if xml.Unmarshal([]byte(se.Body), &report) != nil || len(report.Texts) == 0 {
		return fe
	}

	texts := make([]string, 0, len(report.Texts))
	for _, t := range report.Texts {
		if t = strings.TrimSpace(t); t != "" {
			texts = append(texts, t)
		}
	}
	fe.Message = strings.Join(texts, " ")
	fe.NotFound = containsAny(fe.Message, "No locations found", "Unknown location", "place")
	return fe
}
