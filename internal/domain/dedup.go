package domain

// Deduplicate collapses raw observations to one canonical record per natural
// key: the row with the greatest loaded_at survives, and when two rows carry
// the same loaded_at the one appearing later in input order wins. The
// surviving row's loaded_at becomes the record's source_updated_at.
//
// The function is a pure, single-pass fold over its input: no wall clock, no
// random access beyond a per-key best-so-far table. Output preserves the
// input order of first appearance per key, so deduplicating an
// already-deduplicated set returns the same records in the same order.
func Deduplicate(raws []RawObservation) []CanonicalObservation {
	best := make(map[ObservationKey]int, len(raws))
	order := make([]ObservationKey, 0, len(raws))

	for i, raw := range raws {
		key := raw.Key()
		prev, ok := best[key]
		if !ok {
			best[key] = i
			order = append(order, key)
			continue
		}
		if !raw.LoadedAt.Before(raws[prev].LoadedAt) {
			best[key] = i
		}
	}

	out := make([]CanonicalObservation, 0, len(order))
	for _, key := range order {
		raw := raws[best[key]]
		out = append(out, CanonicalObservation{
			RawObservation:  raw,
			SourceUpdatedAt: raw.LoadedAt,
		})
	}
	return out
}
