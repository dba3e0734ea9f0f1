// Command seed fills a database with synthetic raw observations so the
// aggregation path can be exercised without hitting the live weather API. It
// uses the actual domain and store packages so seeded rows match real
// ingestion output.
//
// Usage:
//
//	go run ./cmd/seed -db weather.db -location "Denver, Colorado" -hours 24
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/csnaves/weather-pipeline/internal/adapter/store"
	"github.com/csnaves/weather-pipeline/internal/domain"
)

var baseTime = time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dbPath := flag.String("db", "weather.db", "database path to seed")
	location := flag.String("location", "Denver, Colorado", "location label for the seeded rows")
	hours := flag.Int("hours", 24, "number of consecutive forecast hours to seed")
	flag.Parse()

	if *hours <= 0 {
		return fmt.Errorf("-hours must be positive")
	}

	// Fix the clock so seeded loaded_at values are reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(baseTime.Add(time.Duration(*hours) * time.Hour)))
	defer domain.SetClock(nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(*dbPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	points := []domain.GridPoint{
		{Latitude: 39.6, Longitude: -105.1},
		{Latitude: 39.6, Longitude: -105.0},
		{Latitude: 39.7, Longitude: -105.1},
		{Latitude: 39.7, Longitude: -105.0},
	}

	var obs []domain.RawObservation
	for h := 0; h < *hours; h++ {
		forecast := baseTime.Add(time.Duration(h) * time.Hour)
		for i, p := range points {
			obs = append(obs, domain.RawObservation{
				ForecastTime:      forecast,
				Location:          *location,
				Latitude:          p.Latitude,
				Longitude:         p.Longitude,
				Temperature:       55 + 15*math.Sin(2*math.Pi*float64(h)/24) + float64(i),
				IsDay:             h >= 6 && h < 20,
				PrecipProbability: float64((h * 7) % 100),
				Precipitation:     0.01 * float64(h%5),
				Mode:              domain.ModeHistory,
				IngestedAt:        baseTime.Add(time.Duration(h) * time.Hour),
			})
		}
	}

	if err := st.AppendRaw(context.Background(), obs); err != nil {
		return fmt.Errorf("seeding raw observations: %w", err)
	}

	log.Printf("seeded %d raw rows for %s across %d hours into %s", len(obs), *location, *hours, *dbPath)
	return nil
}
