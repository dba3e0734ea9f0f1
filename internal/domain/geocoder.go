package domain

import "context"

// Geocoder resolves a place to its bounding box.
type Geocoder interface {
	// Geocode returns the bounding box covering the location, or a
	// *ResolutionError when the place cannot be found.
	Geocode(ctx context.Context, loc Location) (BoundingBox, error)
}

// Summarizer turns aggregate statistics into a short human-readable sentence.
// Implementations may be slow or rate-limited; callers must treat failures as
// non-fatal.
type Summarizer interface {
	Summarize(ctx context.Context, agg HourlyAggregate) (string, error)
}
