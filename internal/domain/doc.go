// Package domain models hourly weather observations and their aggregation.
//
// # Data Source
//
// Observations come from the Open-Meteo forecast API, sampled over a grid of
// coordinates covering each configured place. Place names are resolved to
// bounding boxes through a Nominatim lookup, and the box is sampled at a fixed
// step matching the weather model's native resolution (roughly 0.1 degrees for
// the global ICON model). One raw observation is one grid point at one forecast
// hour.
//
// # Natural Key and Deduplication
//
// The tuple (forecast time, latitude, longitude) identifies a grid-point
// observation. Repeated ingestion runs write overlapping windows, so the raw
// store holds duplicates transiently. [Deduplicate] collapses them to one
// canonical record per key, keeping the row with the greatest loaded_at;
// when two rows carry the same loaded_at, the one appearing later in input
// order wins. The surviving row's loaded_at becomes the canonical record's
// source_updated_at.
//
// # Watermarks and Incremental Selection
//
// Each location carries a persisted watermark: the maximum source_updated_at
// merged so far. [SelectSince] keeps only records strictly newer than the
// watermark, so a run processes deltas instead of full history. A zero
// watermark selects everything (first-run backfill). Aggregating the full
// history once and aggregating it as successive deltas converge to the same
// analytics rows.
//
// # Hourly Aggregation
//
// [AggregateHourly] groups canonical records by (location, forecast hour) and
// produces one row per group: arithmetic means for temperature and
// precipitation probability, a sum for precipitation, a majority vote for
// is_day (an even split resolves to true), the contributing row count, and the
// maximum source_updated_at, which becomes the next watermark candidate. A
// NaN or infinite value in a required numeric field fails the whole group with
// an [AggregationError] rather than leaking a zero into a statistic.
package domain
