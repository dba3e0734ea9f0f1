package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// gridTolerance collapses sample points closer than ~11 m, so a box smaller
// than the step still yields exactly one upstream call per distinct cell.
const gridTolerance = 1e-4

// Validate rejects boxes the sampler does not support. Boxes crossing the
// antimeridian (west > east) or extending past the poles fail here instead of
// producing wrapped coordinates.
func (b BoundingBox) Validate() error {
	if b.South < -90 || b.North > 90 {
		return fmt.Errorf("bounding box extends past the poles: south=%.4f north=%.4f", b.South, b.North)
	}
	if b.West < -180 || b.East > 180 {
		return fmt.Errorf("bounding box longitude out of range: west=%.4f east=%.4f", b.West, b.East)
	}
	if b.South > b.North {
		return fmt.Errorf("bounding box is inverted: south=%.4f > north=%.4f", b.South, b.North)
	}
	if b.West > b.East {
		return fmt.Errorf("bounding box crosses the antimeridian: west=%.4f > east=%.4f", b.West, b.East)
	}
	return nil
}

// SampleGrid covers the box with points spaced step degrees apart, south to
// north then west to east. A degenerate (point-like) box yields one point.
// Points within gridTolerance of each other are collapsed.
func SampleGrid(box BoundingBox, step float64) ([]GridPoint, error) {
	if step <= 0 {
		return nil, errors.New("grid step must be positive")
	}
	if err := box.Validate(); err != nil {
		return nil, err
	}

	latSteps := int(math.Floor((box.North-box.South)/step)) + 1
	lonSteps := int(math.Floor((box.East-box.West)/step)) + 1

	seen := make(map[GridPoint]struct{}, latSteps*lonSteps)
	points := make([]GridPoint, 0, latSteps*lonSteps)
	for i := 0; i < latSteps; i++ {
		lat := box.South + float64(i)*step
		for j := 0; j < lonSteps; j++ {
			lon := box.West + float64(j)*step
			key := GridPoint{
				Latitude:  math.Round(lat/gridTolerance) * gridTolerance,
				Longitude: math.Round(lon/gridTolerance) * gridTolerance,
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			points = append(points, GridPoint{Latitude: lat, Longitude: lon})
		}
	}
	return points, nil
}

// ResolveGrid turns a place name into its grid sample points: one geocode
// call, then a pure sampling of the returned box. All failures surface as a
// *ResolutionError for the place.
func ResolveGrid(ctx context.Context, g Geocoder, loc Location, step float64) ([]GridPoint, error) {
	box, err := g.Geocode(ctx, loc)
	if err != nil {
		var resErr *ResolutionError
		if errors.As(err, &resErr) {
			return nil, err
		}
		return nil, &ResolutionError{Place: loc.DisplayName(), Err: err}
	}

	points, err := SampleGrid(box, step)
	if err != nil {
		return nil, &ResolutionError{Place: loc.DisplayName(), Err: err}
	}
	return points, nil
}
