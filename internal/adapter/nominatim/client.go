// Package nominatim implements domain.Geocoder against the OpenStreetMap
// Nominatim search API.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/csnaves/weather-pipeline/internal/domain"
	"github.com/csnaves/weather-pipeline/internal/observability"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// userAgent identifies this service per the Nominatim usage policy.
const userAgent = "weather-pipeline/1.0"

var errNoResults = errors.New("no results")

// Client looks up bounding boxes for named places.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a Nominatim client. metrics may be nil.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
		metrics: metrics,
	}
}

// Geocode resolves a location to its bounding box. City/state pairs use the
// structured search form; free-form names go through the q parameter.
func (c *Client) Geocode(ctx context.Context, loc domain.Location) (domain.BoundingBox, error) {
	params := url.Values{
		"format": {"json"},
		"limit":  {"1"},
	}
	if loc.Name != "" {
		params.Set("q", loc.Name)
	} else {
		params.Set("city", loc.City)
		params.Set("state", loc.State)
	}

	box, err := c.doRequest(ctx, c.baseURL+"/search?"+params.Encode())
	if errors.Is(err, errNoResults) {
		c.countRequest("empty")
		return domain.BoundingBox{}, &domain.ResolutionError{Place: loc.DisplayName(), Err: err}
	}
	if err != nil {
		c.countRequest("error")
		return domain.BoundingBox{}, err
	}

	c.countRequest("success")
	return box, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.BoundingBox, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.BoundingBox{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.BoundingBox{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.BoundingBox{}, fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, body)
	}

	var results []result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return domain.BoundingBox{}, fmt.Errorf("decode response: %w", err)
	}

	if len(results) == 0 {
		return domain.BoundingBox{}, errNoResults
	}
	return results[0].boundingBox()
}

func (c *Client) countRequest(outcome string) {
	if c.metrics != nil {
		c.metrics.GeocodeRequests.WithLabelValues(outcome).Inc()
	}
}

// Nominatim API response types.

type result struct {
	DisplayName string `json:"display_name"`
	// BoundingBox is [south, north, west, east] as decimal strings.
	BoundingBox []string `json:"boundingbox"`
}

func (r result) boundingBox() (domain.BoundingBox, error) {
	if len(r.BoundingBox) != 4 {
		return domain.BoundingBox{}, fmt.Errorf("malformed boundingbox for %q: %v", r.DisplayName, r.BoundingBox)
	}
	edges := make([]float64, 4)
	for i, s := range r.BoundingBox {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.BoundingBox{}, fmt.Errorf("parsing boundingbox edge %q: %w", s, err)
		}
		edges[i] = v
	}
	return domain.BoundingBox{South: edges[0], North: edges[1], West: edges[2], East: edges[3]}, nil
}
