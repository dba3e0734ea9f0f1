package openmeteo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csnaves/weather-pipeline/internal/domain"
)

var (
	testHour     = time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	testIngested = time.Date(2026, 8, 30, 15, 30, 0, 0, time.UTC)
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c := NewClient(baseURL, 5*time.Second, 2, time.Millisecond,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.SetClock(clockwork.NewFakeClockAt(testIngested))
	return c
}

// pointJSON builds one per-point payload with a single hourly sample.
func pointJSON(temp string) string {
	return fmt.Sprintf(`{
		"latitude": 39.62, "longitude": -105.02,
		"hourly": {
			"time": [%d],
			"temperature_2m": [%s],
			"is_day": [1],
			"precipitation_probability": [20],
			"precipitation": [0.1]
		}
	}`, testHour.Unix(), temp)
}

func TestClient_Fetch_MultiPoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "39.6000,39.7000", q.Get("latitude"))
		assert.Equal(t, "-105.0000,-105.0000", q.Get("longitude"))
		assert.Equal(t, hourlyVariables, q.Get("hourly"))
		assert.Equal(t, "fahrenheit", q.Get("temperature_unit"))
		assert.Equal(t, "unixtime", q.Get("timeformat"))
		assert.Equal(t, "24", q.Get("past_hours"))
		assert.Equal(t, "0", q.Get("forecast_hours"))

		fmt.Fprintf(w, "[%s,%s]", pointJSON("68"), pointJSON("70"))
	}))
	defer srv.Close()

	points := []domain.GridPoint{
		{Latitude: 39.6, Longitude: -105.0},
		{Latitude: 39.7, Longitude: -105.0},
	}
	obs, err := testClient(t, srv.URL).Fetch(context.Background(), "Denver, Colorado", points, domain.ModeHistory)
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, 68.0, obs[0].Temperature)
	assert.Equal(t, 70.0, obs[1].Temperature)
	// Rows carry the requested coordinates, not the model-snapped echo.
	assert.Equal(t, 39.6, obs[0].Latitude)
	assert.Equal(t, 39.7, obs[1].Latitude)
	assert.Equal(t, testHour, obs[0].ForecastTime)
	assert.Equal(t, testIngested, obs[0].IngestedAt)
	assert.Equal(t, "Denver, Colorado", obs[0].Location)
	assert.Equal(t, domain.ModeHistory, obs[0].Mode)
	assert.True(t, obs[0].IsDay)
	assert.True(t, obs[0].LoadedAt.IsZero(), "loaded_at is stamped at append time, not fetch time")
}

func TestClient_Fetch_SinglePointObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "0", q.Get("past_hours"))
		assert.Equal(t, "1", q.Get("forecast_hours"))
		fmt.Fprint(w, pointJSON("72"))
	}))
	defer srv.Close()

	points := []domain.GridPoint{{Latitude: 39.6, Longitude: -105.0}}
	obs, err := testClient(t, srv.URL).Fetch(context.Background(), "Denver, Colorado", points, domain.ModeForecast)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 72.0, obs[0].Temperature)
	assert.Equal(t, domain.ModeForecast, obs[0].Mode)
}

func TestClient_Fetch_NullBecomesNaN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, pointJSON("null"))
	}))
	defer srv.Close()

	points := []domain.GridPoint{{Latitude: 39.6, Longitude: -105.0}}
	obs, err := testClient(t, srv.URL).Fetch(context.Background(), "Denver, Colorado", points, domain.ModeHistory)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.True(t, math.IsNaN(obs[0].Temperature))
	assert.Equal(t, 0.1, obs[0].Precipitation)
}

func TestClient_Fetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "try again", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, pointJSON("68"))
	}))
	defer srv.Close()

	points := []domain.GridPoint{{Latitude: 39.6, Longitude: -105.0}}
	obs, err := testClient(t, srv.URL).Fetch(context.Background(), "Denver, Colorado", points, domain.ModeHistory)
	require.NoError(t, err)
	assert.Len(t, obs, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Fetch_ExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	points := []domain.GridPoint{{Latitude: 39.6, Longitude: -105.0}}
	_, err := testClient(t, srv.URL).Fetch(context.Background(), "Denver, Colorado", points, domain.ModeHistory)

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 3, fetchErr.Attempts)
}

func TestClient_Fetch_ResponseCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "[%s]", pointJSON("68"))
	}))
	defer srv.Close()

	points := []domain.GridPoint{
		{Latitude: 39.6, Longitude: -105.0},
		{Latitude: 39.7, Longitude: -105.0},
	}
	_, err := testClient(t, srv.URL).Fetch(context.Background(), "Denver, Colorado", points, domain.ModeHistory)

	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "got 1 responses")
}

func TestClient_Fetch_NoPoints(t *testing.T) {
	obs, err := testClient(t, "http://unused").Fetch(context.Background(), "Denver, Colorado", nil, domain.ModeHistory)
	require.NoError(t, err)
	assert.Empty(t, obs)
}
