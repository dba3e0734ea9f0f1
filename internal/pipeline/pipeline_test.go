package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csnaves/weather-pipeline/internal/domain"
	"github.com/csnaves/weather-pipeline/internal/observability"
)

var (
	testHour = time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	loadTime = time.Date(2026, 8, 30, 16, 0, 0, 0, time.UTC)

	denver    = domain.Location{City: "Denver", State: "Colorado"}
	denverBox = domain.BoundingBox{South: 39.6, North: 39.75, West: -105.1, East: -104.95}
)

// --- mocks ---

type mockGeocoder struct {
	box map[string]domain.BoundingBox
	err error
}

func (m *mockGeocoder) Geocode(_ context.Context, loc domain.Location) (domain.BoundingBox, error) {
	if m.err != nil {
		return domain.BoundingBox{}, m.err
	}
	box, ok := m.box[loc.DisplayName()]
	if !ok {
		return domain.BoundingBox{}, &domain.ResolutionError{Place: loc.DisplayName(), Err: errors.New("no results")}
	}
	return box, nil
}

type mockFetcher struct {
	obs    map[string][]domain.RawObservation
	err    error
	points int
}

func (m *mockFetcher) Fetch(_ context.Context, location string, points []domain.GridPoint, mode domain.Mode) ([]domain.RawObservation, error) {
	m.points = len(points)
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.RawObservation, 0, len(m.obs[location]))
	for _, o := range m.obs[location] {
		o.Mode = mode
		out = append(out, o)
	}
	return out, nil
}

type mockStore struct {
	raws       map[string][]domain.RawObservation
	watermarks map[string]time.Time
	merged     map[string][]domain.HourlyAggregate
	appends    int
	merges     int
	mergeErr   error
}

func newMockStore() *mockStore {
	return &mockStore{
		raws:       map[string][]domain.RawObservation{},
		watermarks: map[string]time.Time{},
		merged:     map[string][]domain.HourlyAggregate{},
	}
}

func (m *mockStore) AppendRaw(_ context.Context, obs []domain.RawObservation) error {
	obs = domain.StampLoadedAt(obs)
	m.appends++
	for _, o := range obs {
		m.raws[o.Location] = append(m.raws[o.Location], o)
	}
	return nil
}

func (m *mockStore) RawObservations(_ context.Context, location string) ([]domain.RawObservation, error) {
	return append([]domain.RawObservation{}, m.raws[location]...), nil
}

func (m *mockStore) Watermark(_ context.Context, location string) (time.Time, error) {
	return m.watermarks[location], nil
}

func (m *mockStore) MergeAggregates(_ context.Context, location string, aggs []domain.HourlyAggregate, watermark time.Time) error {
	if m.mergeErr != nil {
		return m.mergeErr
	}
	m.merges++
	m.merged[location] = aggs
	if !watermark.IsZero() {
		m.watermarks[location] = watermark
	}
	return nil
}

type mockPublisher struct {
	published []domain.HourlyAggregate
	err       error
}

func (m *mockPublisher) PublishAggregates(_ context.Context, aggs []domain.HourlyAggregate) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, aggs...)
	return nil
}

// --- helpers ---

func denverObservations() []domain.RawObservation {
	temps := map[domain.GridPoint]float64{
		{Latitude: 39.6, Longitude: -105.1}: 68,
		{Latitude: 39.6, Longitude: -105.0}: 70,
		{Latitude: 39.7, Longitude: -105.1}: 69,
		{Latitude: 39.7, Longitude: -105.0}: 71,
	}
	var out []domain.RawObservation
	for point, temp := range temps {
		out = append(out, domain.RawObservation{
			ForecastTime: testHour,
			Location:     "Denver, Colorado",
			Latitude:     point.Latitude,
			Longitude:    point.Longitude,
			Temperature:  temp,
			IsDay:        true,
			IngestedAt:   loadTime,
		})
	}
	return out
}

func newTestPipeline(geo *mockGeocoder, fetcher *mockFetcher, store *mockStore, pub Publisher, dryRun bool) *Pipeline {
	return New(Options{
		Geocoder:  geo,
		Fetcher:   fetcher,
		Store:     store,
		Publisher: pub,
		GridStep:  0.1,
		DryRun:    dryRun,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:   observability.NewMetricsForTesting(),
	})
}

func freezeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(loadTime))
	t.Cleanup(func() { domain.SetClock(nil) })
}

// --- tests ---

func TestPipeline_Run_MergesAggregates(t *testing.T) {
	freezeClock(t)

	geo := &mockGeocoder{box: map[string]domain.BoundingBox{"Denver, Colorado": denverBox}}
	fetcher := &mockFetcher{obs: map[string][]domain.RawObservation{"Denver, Colorado": denverObservations()}}
	store := newMockStore()
	pub := &mockPublisher{}
	p := newTestPipeline(geo, fetcher, store, pub, false)

	err := p.Run(context.Background(), domain.ModeHistory, []domain.Location{denver})
	require.NoError(t, err)

	assert.Equal(t, 4, fetcher.points, "0.1 degree step over the Denver box gives a 2x2 grid")

	merged := store.merged["Denver, Colorado"]
	require.Len(t, merged, 1)
	assert.Equal(t, 69.5, merged[0].AvgTemperature)
	assert.Equal(t, 4, merged[0].GridPointCount)
	assert.Equal(t, testHour, merged[0].ForecastTime)
	assert.Equal(t, loadTime, store.watermarks["Denver, Colorado"])

	require.Len(t, pub.published, 1)
	assert.Equal(t, merged[0], pub.published[0])

	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_SecondRunNothingNew(t *testing.T) {
	freezeClock(t)

	geo := &mockGeocoder{box: map[string]domain.BoundingBox{"Denver, Colorado": denverBox}}
	fetcher := &mockFetcher{obs: map[string][]domain.RawObservation{"Denver, Colorado": denverObservations()}}
	store := newMockStore()
	p := newTestPipeline(geo, fetcher, store, nil, false)

	require.NoError(t, p.Run(context.Background(), domain.ModeHistory, []domain.Location{denver}))
	require.Equal(t, 1, store.merges)

	// Same clock, so the re-fetched rows carry the same loaded_at and fall at
	// the watermark, not past it.
	require.NoError(t, p.Run(context.Background(), domain.ModeHistory, []domain.Location{denver}))
	assert.Equal(t, 1, store.merges, "no fresh rows means no merge")
}

func TestPipeline_Run_DryRunWritesNothing(t *testing.T) {
	freezeClock(t)

	geo := &mockGeocoder{box: map[string]domain.BoundingBox{"Denver, Colorado": denverBox}}
	fetcher := &mockFetcher{obs: map[string][]domain.RawObservation{"Denver, Colorado": denverObservations()}}
	store := newMockStore()
	pub := &mockPublisher{}
	p := newTestPipeline(geo, fetcher, store, pub, true)

	err := p.Run(context.Background(), domain.ModeHistory, []domain.Location{denver})
	require.NoError(t, err)

	assert.Zero(t, store.appends)
	assert.Zero(t, store.merges)
	assert.Empty(t, store.watermarks)
	assert.Empty(t, pub.published)
}

func TestPipeline_Run_FailingLocationDoesNotBlockOthers(t *testing.T) {
	freezeClock(t)

	nowhere := domain.Location{Name: "Nowhereville"}
	geo := &mockGeocoder{box: map[string]domain.BoundingBox{"Denver, Colorado": denverBox}}
	fetcher := &mockFetcher{obs: map[string][]domain.RawObservation{"Denver, Colorado": denverObservations()}}
	store := newMockStore()
	p := newTestPipeline(geo, fetcher, store, nil, false)

	err := p.Run(context.Background(), domain.ModeHistory, []domain.Location{nowhere, denver})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nowhereville")

	var resErr *domain.ResolutionError
	assert.ErrorAs(t, err, &resErr)

	assert.Len(t, store.merged["Denver, Colorado"], 1, "healthy location still merges")
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_PublishFailureSurfaces(t *testing.T) {
	freezeClock(t)

	geo := &mockGeocoder{box: map[string]domain.BoundingBox{"Denver, Colorado": denverBox}}
	fetcher := &mockFetcher{obs: map[string][]domain.RawObservation{"Denver, Colorado": denverObservations()}}
	store := newMockStore()
	pub := &mockPublisher{err: errors.New("broker unreachable")}
	p := newTestPipeline(geo, fetcher, store, pub, false)

	err := p.Run(context.Background(), domain.ModeHistory, []domain.Location{denver})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishing aggregates")
	assert.Equal(t, 1, store.merges, "merge commits before publish is attempted")
}

func TestPipeline_CheckReadiness(t *testing.T) {
	p := newTestPipeline(&mockGeocoder{}, &mockFetcher{}, newMockStore(), nil, false)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_FetchErrorPropagates(t *testing.T) {
	freezeClock(t)

	geo := &mockGeocoder{box: map[string]domain.BoundingBox{"Denver, Colorado": denverBox}}
	fetcher := &mockFetcher{err: &domain.FetchError{Attempts: 3, Err: errors.New("timeout")}}
	store := newMockStore()
	p := newTestPipeline(geo, fetcher, store, nil, false)

	err := p.Run(context.Background(), domain.ModeHistory, []domain.Location{denver})
	require.Error(t, err)

	var fetchErr *domain.FetchError
	assert.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, store.appends)
}
