// Package config loads service settings from environment variables, with an
// optional .env file and an optional YAML locations file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/csnaves/weather-pipeline/internal/domain"
)

// Config holds all service settings.
type Config struct {
	DatabasePath    string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Grid sampling.
	GridStep float64

	// Nominatim geocoding.
	NominatimBaseURL string
	NominatimTimeout time.Duration
	GeocodeCacheSize int

	// Open-Meteo fetching.
	OpenMeteoBaseURL string
	OpenMeteoTimeout time.Duration
	FetchMaxRetries  int
	FetchBackoff     time.Duration

	// Gemini summaries.
	GeminiAPIKey   string
	GeminiModel    string
	SummaryEnabled bool
	SummaryTimeout time.Duration

	// Kafka publishing. An empty broker list disables the publisher.
	KafkaBrokers   []string
	KafkaSinkTopic string

	// Locations to ingest when the CLI passes none.
	Locations []domain.Location
}

// Load reads configuration, applying defaults where unset. A .env file in the
// working directory is folded into the environment when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	nominatimTimeout, err := parseDuration("NOMINATIM_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	openMeteoTimeout, err := parseDuration("OPENMETEO_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	fetchBackoff, err := parseDuration("FETCH_BACKOFF", "500ms")
	if err != nil {
		return nil, err
	}
	summaryTimeout, err := parseDuration("SUMMARY_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	gridStep, err := parseGridStep()
	if err != nil {
		return nil, err
	}
	fetchMaxRetries, err := parsePositiveInt("FETCH_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	geocodeCacheSize, err := parsePositiveInt("GEOCODE_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	summaryEnabled := geminiKey != ""
	if v := os.Getenv("SUMMARY_ENABLED"); v != "" {
		summaryEnabled = v == "true"
	}

	locations, err := loadLocations(os.Getenv("LOCATIONS_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabasePath:    envOrDefault("WEATHER_DB_PATH", "weather.db"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		GridStep: gridStep,

		NominatimBaseURL: os.Getenv("NOMINATIM_BASE_URL"),
		NominatimTimeout: nominatimTimeout,
		GeocodeCacheSize: geocodeCacheSize,

		OpenMeteoBaseURL: os.Getenv("OPENMETEO_BASE_URL"),
		OpenMeteoTimeout: openMeteoTimeout,
		FetchMaxRetries:  fetchMaxRetries,
		FetchBackoff:     fetchBackoff,

		GeminiAPIKey:   geminiKey,
		GeminiModel:    envOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		SummaryEnabled: summaryEnabled,
		SummaryTimeout: summaryTimeout,

		KafkaBrokers:   parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "hourly-weather"),

		Locations: locations,
	}

	if cfg.DatabasePath == "" {
		return nil, errors.New("WEATHER_DB_PATH is required")
	}
	if cfg.SummaryEnabled && cfg.GeminiAPIKey == "" {
		return nil, errors.New("SUMMARY_ENABLED is true but GEMINI_API_KEY is not set")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_BROKERS is set but KAFKA_SINK_TOPIC is empty")
	}

	return cfg, nil
}

// defaultLocations are ingested when no locations file and no CLI flags are
// given.
func defaultLocations() []domain.Location {
	return []domain.Location{
		{City: "Atlanta", State: "Georgia"},
		{City: "New York", State: "New York"},
		{City: "Washington", State: "District of Columbia"},
		{City: "San Francisco", State: "California"},
		{Name: "Daniel Boone National Forest, USA"},
	}
}

// loadLocations reads the YAML locations file, falling back to the defaults
// when no file is configured.
func loadLocations(path string) ([]domain.Location, error) {
	if path == "" {
		return defaultLocations(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading locations file: %w", err)
	}

	var locations []domain.Location
	if err := yaml.Unmarshal(data, &locations); err != nil {
		return nil, fmt.Errorf("parsing locations file %s: %w", path, err)
	}
	if len(locations) == 0 {
		return nil, fmt.Errorf("locations file %s lists no locations", path)
	}
	for i, loc := range locations {
		if loc.IsZero() {
			return nil, fmt.Errorf("locations file %s: entry %d has neither name nor city/state", path, i+1)
		}
	}
	return locations, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseGridStep() (float64, error) {
	s := os.Getenv("GRID_STEP")
	if s == "" {
		return 0.1, nil
	}
	step, err := strconv.ParseFloat(s, 64)
	if err != nil || step <= 0 {
		return 0, errors.New("invalid GRID_STEP")
	}
	return step, nil
}
