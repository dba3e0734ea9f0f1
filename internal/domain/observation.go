package domain

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects the ingestion window: a wide backfill of past hours or a
// narrow forward window for scheduled runs.
type Mode string

const (
	// ModeHistory ingests the past 24 hours.
	ModeHistory Mode = "history"
	// ModeForecast ingests the next hour.
	ModeForecast Mode = "forecast"
)

// ParseMode validates a mode string from the CLI.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeHistory, ModeForecast:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be %q or %q", s, ModeHistory, ModeForecast)
	}
}

// Location is a place to track, either a city/state pair or a free-form
// query string, mirroring the two Nominatim lookup forms.
type Location struct {
	City  string `yaml:"city"`
	State string `yaml:"state"`
	Name  string `yaml:"name"`
}

// ParseLocation interprets a CLI location argument: "City, State" becomes a
// city/state pair, anything else stays a free-form query.
func ParseLocation(arg string) Location {
	arg = strings.TrimSpace(arg)
	if city, state, ok := strings.Cut(arg, ","); ok {
		city = strings.TrimSpace(city)
		state = strings.TrimSpace(state)
		if city != "" && state != "" && !strings.Contains(state, ",") {
			return Location{City: city, State: state}
		}
	}
	return Location{Name: arg}
}

// DisplayName is the label stored with every observation for this location.
func (l Location) DisplayName() string {
	if l.Name != "" {
		return l.Name
	}
	return l.City + ", " + l.State
}

// IsZero reports whether the location carries no query at all.
func (l Location) IsZero() bool {
	return l.Name == "" && l.City == "" && l.State == ""
}

// BoundingBox is a rectangular lat/lon region covering a named place.
type BoundingBox struct {
	South float64
	North float64
	West  float64
	East  float64
}

// GridPoint is one sampled coordinate used to approximate weather across an area.
type GridPoint struct {
	Latitude  float64
	Longitude float64
}

// RawObservation is one weather sample for one grid point at one forecast hour.
type RawObservation struct {
	ForecastTime      time.Time `json:"timestamp"`
	Location          string    `json:"location"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	Temperature       float64   `json:"temperature_2m"`
	IsDay             bool      `json:"is_day"`
	PrecipProbability float64   `json:"precipitation_probability"`
	Precipitation     float64   `json:"precipitation"`
	Mode              Mode      `json:"mode"`
	IngestedAt        time.Time `json:"ingested_at"`
	LoadedAt          time.Time `json:"loaded_at"`
}

// ObservationKey is the natural key of a raw observation. Forecast time is
// kept as unix seconds so the struct is comparable and usable as a map key.
type ObservationKey struct {
	ForecastUnix int64
	Latitude     float64
	Longitude    float64
}

// Key returns the natural key of the observation.
func (o RawObservation) Key() ObservationKey {
	return ObservationKey{
		ForecastUnix: o.ForecastTime.Unix(),
		Latitude:     o.Latitude,
		Longitude:    o.Longitude,
	}
}

// StampLoadedAt marks a batch of raw observations as loaded now. Every row in
// the batch gets the same instant, so one ingestion run is one load event.
func StampLoadedAt(obs []RawObservation) []RawObservation {
	now := clock.Now().UTC()
	for i := range obs {
		obs[i].LoadedAt = now
	}
	return obs
}

// CanonicalObservation is a raw observation after deduplication, carrying the
// source_updated_at watermark value used for incremental selection.
type CanonicalObservation struct {
	RawObservation
	SourceUpdatedAt time.Time
}

// HourlyAggregate is one analytics row per (location, forecast hour).
type HourlyAggregate struct {
	Location          string    `json:"location"`
	ForecastTime      time.Time `json:"timestamp"`
	AvgTemperature    float64   `json:"avg_temperature"`
	AvgPrecipProb     float64   `json:"avg_precipitation_probability"`
	TotalPrecip       float64   `json:"total_precipitation"`
	IsDay             bool      `json:"is_day"`
	GridPointCount    int       `json:"grid_point_count"`
	SourceUpdatedAt   time.Time `json:"source_updated_at"`
	Summary           string    `json:"summary,omitempty"`
	CreatedAt         time.Time `json:"created_at,omitzero"`
	UpdatedAt         time.Time `json:"updated_at,omitzero"`
}
