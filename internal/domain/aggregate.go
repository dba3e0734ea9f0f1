package domain

import (
	"math"
	"slices"
	"strings"
	"time"
)

type aggregateKey struct {
	location     string
	forecastUnix int64
}

type aggregateGroup struct {
	location      string
	forecastTime  time.Time
	sumTemp       float64
	sumPrecipProb float64
	sumPrecip     float64
	dayVotes      int
	count         int
	maxSourceTS   time.Time
}

// AggregateHourly folds canonical observations into one row per
// (location, forecast hour). Per group: arithmetic means for temperature and
// precipitation probability, a sum for precipitation, a majority vote for
// is_day with an even split resolving to true, the contributing row count,
// and the maximum source_updated_at.
//
// Any row with a NaN or infinite required numeric field fails the whole call
// with an *AggregationError. Output is sorted by location then forecast time,
// so the result is a deterministic function of the input set.
func AggregateHourly(obs []CanonicalObservation) ([]HourlyAggregate, error) {
	groups := make(map[aggregateKey]*aggregateGroup, len(obs))

	for _, o := range obs {
		if field := invalidField(o); field != "" {
			return nil, &AggregationError{
				Location:     o.Location,
				ForecastTime: o.ForecastTime,
				Field:        field,
			}
		}

		hour := o.ForecastTime.UTC().Truncate(time.Hour)
		key := aggregateKey{location: o.Location, forecastUnix: hour.Unix()}
		g, ok := groups[key]
		if !ok {
			g = &aggregateGroup{location: o.Location, forecastTime: hour}
			groups[key] = g
		}

		g.sumTemp += o.Temperature
		g.sumPrecipProb += o.PrecipProbability
		g.sumPrecip += o.Precipitation
		if o.IsDay {
			g.dayVotes++
		}
		g.count++
		if o.SourceUpdatedAt.After(g.maxSourceTS) {
			g.maxSourceTS = o.SourceUpdatedAt
		}
	}

	aggs := make([]HourlyAggregate, 0, len(groups))
	for _, g := range groups {
		n := float64(g.count)
		aggs = append(aggs, HourlyAggregate{
			Location:        g.location,
			ForecastTime:    g.forecastTime,
			AvgTemperature:  g.sumTemp / n,
			AvgPrecipProb:   g.sumPrecipProb / n,
			TotalPrecip:     g.sumPrecip,
			IsDay:           2*g.dayVotes >= g.count,
			GridPointCount:  g.count,
			SourceUpdatedAt: g.maxSourceTS,
		})
	}

	slices.SortFunc(aggs, func(a, b HourlyAggregate) int {
		if c := strings.Compare(a.Location, b.Location); c != 0 {
			return c
		}
		return a.ForecastTime.Compare(b.ForecastTime)
	})
	return aggs, nil
}

// invalidField names the first required numeric field that is not finite,
// or "" when the row is usable.
func invalidField(o CanonicalObservation) string {
	switch {
	case !isFinite(o.Temperature):
		return "temperature_2m"
	case !isFinite(o.PrecipProbability):
		return "precipitation_probability"
	case !isFinite(o.Precipitation):
		return "precipitation"
	default:
		return ""
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
