package domain

import (
	"context"
	"log/slog"
)

// EnrichWithSummary attaches a generated summary sentence to each aggregate.
// If summarizer is nil the aggregates pass through unchanged. A failed
// generation leaves that row's summary empty and moves on; a missing summary
// never blocks the merge.
func EnrichWithSummary(ctx context.Context, aggs []HourlyAggregate, summarizer Summarizer, logger *slog.Logger) []HourlyAggregate {
	if summarizer == nil {
		return aggs
	}

	for i := range aggs {
		text, err := summarizer.Summarize(ctx, aggs[i])
		if err != nil {
			logger.Warn("summary generation failed",
				"location", aggs[i].Location,
				"forecast_time", aggs[i].ForecastTime,
				"error", err,
			)
			continue
		}
		aggs[i].Summary = text
	}
	return aggs
}
