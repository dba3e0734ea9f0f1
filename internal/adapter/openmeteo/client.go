// Package openmeteo fetches hourly weather for sampled grid points from the
// Open-Meteo forecast API.
package openmeteo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/csnaves/weather-pipeline/internal/domain"
)

// DefaultBaseURL is the public Open-Meteo forecast endpoint.
const DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

// weatherModel pins the forecast model so the effective grid resolution stays
// stable across runs.
const weatherModel = "icon_global"

// hourlyVariables are the per-hour fields requested for every grid point.
const hourlyVariables = "temperature_2m,is_day,precipitation_probability,precipitation"

// Client fetches raw observations for a set of grid points.
type Client struct {
	httpClient *http.Client
	baseURL    string
	backoff    backoffConfig
	circuit    *gobreaker.CircuitBreaker
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo client. maxRetries counts retries after the
// first attempt; initialBackoff is the delay before the first retry.
func NewClient(baseURL string, timeout time.Duration, maxRetries int, initialBackoff time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		backoff: backoffConfig{
			maxRetries:      maxRetries,
			initialInterval: initialBackoff,
			maxInterval:     30 * time.Second,
		},
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openmeteo",
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
}

// SetClock swaps the time source used to stamp ingested_at.
func (c *Client) SetClock(clk clockwork.Clock) {
	c.clock = clk
}

// Fetch retrieves hourly weather for every grid point in one request. The
// mode selects the window: history covers the past 24 hours, forecast the
// next hour. All returned rows carry the given location label.
func (c *Client) Fetch(ctx context.Context, location string, points []domain.GridPoint, mode domain.Mode) ([]domain.RawObservation, error) {
	if len(points) == 0 {
		return nil, nil
	}

	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.baseURL+"?"+c.queryParams(points, mode).Encode(), nil)
	}

	resp, attempts, err := doRequestWithResilience(ctx, c.httpClient, c.backoff, c.circuit, buildRequest)
	if err != nil {
		return nil, &domain.FetchError{Attempts: attempts, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.FetchError{Attempts: attempts, Err: fmt.Errorf("reading response: %w", err)}
	}

	pointResponses, err := decodeResponses(body)
	if err != nil {
		return nil, &domain.FetchError{Attempts: attempts, Err: err}
	}
	if len(pointResponses) != len(points) {
		return nil, &domain.FetchError{
			Attempts: attempts,
			Err:      fmt.Errorf("requested %d grid points, got %d responses", len(points), len(pointResponses)),
		}
	}

	ingested := c.clock.Now().UTC()
	var out []domain.RawObservation
	for i, pr := range pointResponses {
		rows, err := pr.observations(location, points[i], mode, ingested)
		if err != nil {
			return nil, &domain.FetchError{Attempts: attempts, Err: err}
		}
		out = append(out, rows...)
	}

	c.logger.Debug("weather fetched",
		"location", location,
		"mode", mode,
		"grid_points", len(points),
		"rows", len(out),
	)
	return out, nil
}

func (c *Client) queryParams(points []domain.GridPoint, mode domain.Mode) url.Values {
	lats := make([]string, len(points))
	lons := make([]string, len(points))
	for i, p := range points {
		lats[i] = strconv.FormatFloat(p.Latitude, 'f', 4, 64)
		lons[i] = strconv.FormatFloat(p.Longitude, 'f', 4, 64)
	}

	params := url.Values{
		"latitude":           {strings.Join(lats, ",")},
		"longitude":          {strings.Join(lons, ",")},
		"hourly":             {hourlyVariables},
		"models":             {weatherModel},
		"temperature_unit":   {"fahrenheit"},
		"precipitation_unit": {"inch"},
		"wind_speed_unit":    {"mph"},
		"timeformat":         {"unixtime"},
	}
	if mode == domain.ModeHistory {
		params.Set("past_hours", "24")
		params.Set("forecast_hours", "0")
	} else {
		params.Set("past_hours", "0")
		params.Set("forecast_hours", "1")
	}
	return params
}

// decodeResponses handles both response shapes: a JSON array when multiple
// coordinates were requested, a single object for one coordinate.
func decodeResponses(body []byte) ([]pointResponse, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var many []pointResponse
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return many, nil
	}

	var one pointResponse
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return []pointResponse{one}, nil
}

// Open-Meteo API response types. Hourly values are pointers so JSON nulls
// survive as NaN instead of collapsing to zero.

type pointResponse struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Hourly    hourlyData `json:"hourly"`
}

type hourlyData struct {
	Time              []int64    `json:"time"`
	Temperature       []*float64 `json:"temperature_2m"`
	IsDay             []*float64 `json:"is_day"`
	PrecipProbability []*float64 `json:"precipitation_probability"`
	Precipitation     []*float64 `json:"precipitation"`
}

// observations flattens one point's hourly arrays into raw rows. The
// requested coordinates are used, not the model-snapped ones the API echoes,
// so the natural key lines up run over run.
func (pr pointResponse) observations(location string, point domain.GridPoint, mode domain.Mode, ingested time.Time) ([]domain.RawObservation, error) {
	h := pr.Hourly
	n := len(h.Time)
	if len(h.Temperature) != n || len(h.IsDay) != n || len(h.PrecipProbability) != n || len(h.Precipitation) != n {
		return nil, fmt.Errorf("ragged hourly arrays for point (%.4f, %.4f)", point.Latitude, point.Longitude)
	}

	out := make([]domain.RawObservation, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.RawObservation{
			ForecastTime:      time.Unix(h.Time[i], 0).UTC(),
			Location:          location,
			Latitude:          point.Latitude,
			Longitude:         point.Longitude,
			Temperature:       floatOrNaN(h.Temperature[i]),
			IsDay:             h.IsDay[i] != nil && *h.IsDay[i] > 0.5,
			PrecipProbability: floatOrNaN(h.PrecipProbability[i]),
			Precipitation:     floatOrNaN(h.Precipitation[i]),
			Mode:              mode,
			IngestedAt:        ingested,
		})
	}
	return out, nil
}

func floatOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
