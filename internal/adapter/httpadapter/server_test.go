package httpadapter_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csnaves/weather-pipeline/internal/adapter/httpadapter"
	"github.com/csnaves/weather-pipeline/internal/domain"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockAggregates struct {
	aggs []domain.HourlyAggregate
	err  error
}

func (m *mockAggregates) ListAggregates(_ context.Context, _ string) ([]domain.HourlyAggregate, error) {
	return m.aggs, m.err
}

func newTestServer(readyErr error, aggs *mockAggregates) *httpadapter.Server {
	if aggs == nil {
		aggs = &mockAggregates{}
	}
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, aggs, slog.Default())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(fmt.Errorf("not ready yet"), nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAggregatesRequiresLocation(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/aggregates", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAggregatesReturnsRows(t *testing.T) {
	aggs := &mockAggregates{aggs: []domain.HourlyAggregate{
		{
			Location:       "Denver, Colorado",
			ForecastTime:   time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC),
			AvgTemperature: 69.5,
			GridPointCount: 4,
		},
	}}
	srv := newTestServer(nil, aggs)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/aggregates?location=Denver%2C+Colorado", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body []domain.HourlyAggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, 69.5, body[0].AvgTemperature)
}

func TestAggregatesEmptyList(t *testing.T) {
	srv := newTestServer(nil, &mockAggregates{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/aggregates?location=Nowhere", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestAggregatesInternalError(t *testing.T) {
	srv := newTestServer(nil, &mockAggregates{err: fmt.Errorf("db closed")})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/aggregates?location=Denver", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
