package domain

import "time"

// SelectSince keeps only records with source_updated_at strictly greater than
// the watermark. A zero watermark selects everything: the first run is a full
// backfill, later runs process deltas. Records at exactly the watermark were
// merged by a previous run and are skipped.
func SelectSince(obs []CanonicalObservation, watermark time.Time) []CanonicalObservation {
	if watermark.IsZero() {
		return obs
	}
	out := make([]CanonicalObservation, 0, len(obs))
	for _, o := range obs {
		if o.SourceUpdatedAt.After(watermark) {
			out = append(out, o)
		}
	}
	return out
}

// MaxSourceUpdated returns the greatest source_updated_at among the
// aggregates, the candidate for the next persisted watermark. Zero when the
// slice is empty.
func MaxSourceUpdated(aggs []HourlyAggregate) time.Time {
	var max time.Time
	for _, a := range aggs {
		if a.SourceUpdatedAt.After(max) {
			max = a.SourceUpdatedAt
		}
	}
	return max
}
