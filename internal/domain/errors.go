package domain

import (
	"fmt"
	"time"
)

// ResolutionError means a place could not be turned into a usable grid:
// the geocode lookup failed, returned no results, or produced a bounding box
// the sampler does not support. Fatal for that location only.
type ResolutionError struct {
	Place string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Place, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// FetchError means the weather provider could not be reached even after
// retrying.
type FetchError struct {
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("weather fetch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AggregationError means an input row was missing a required numeric field.
// The group is rejected outright instead of silently coercing to zero.
type AggregationError struct {
	Location     string
	ForecastTime time.Time
	Field        string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %s @ %s: field %s is not a finite number",
		e.Location, e.ForecastTime.Format(time.RFC3339), e.Field)
}

// MergeError means the analytics store rejected the merge batch. The batch is
// applied in one transaction, so prior state is left untouched.
type MergeError struct {
	Err error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge aggregates: %v", e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }
