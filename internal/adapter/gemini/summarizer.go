// Package gemini generates one-sentence weather summaries for hourly
// aggregates with the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/csnaves/weather-pipeline/internal/domain"
	"github.com/csnaves/weather-pipeline/internal/observability"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Summarizer implements domain.Summarizer with the Gemini API.
type Summarizer struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewSummarizer creates a Gemini-backed summarizer. metrics may be nil.
func NewSummarizer(ctx context.Context, apiKey, model string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) (*Summarizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Summarizer{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Summarize produces a single plain-English sentence describing the hour.
func (s *Summarizer) Summarize(ctx context.Context, agg domain.HourlyAggregate) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(buildSummaryPrompt(agg)),
		}, genai.RoleUser),
	}

	result, err := s.client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		s.countRequest("error")
		return "", fmt.Errorf("generate summary for %s at %s: %w", agg.Location, agg.ForecastTime, err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		s.countRequest("error")
		return "", fmt.Errorf("empty summary response for %s at %s", agg.Location, agg.ForecastTime)
	}

	s.countRequest("success")
	return text, nil
}

func (s *Summarizer) countRequest(outcome string) {
	if s.metrics != nil {
		s.metrics.SummaryRequests.WithLabelValues(outcome).Inc()
	}
}

func buildSummaryPrompt(agg domain.HourlyAggregate) string {
	daytime := "night"
	if agg.IsDay {
		daytime = "day"
	}
	return fmt.Sprintf(
		"Write one short sentence describing this hour of weather for %s at %s (%s): "+
			"average temperature %.1f°F, average precipitation probability %.0f%%, "+
			"total precipitation %.2f inches. Reply with the sentence only.",
		agg.Location,
		agg.ForecastTime.UTC().Format("2006-01-02 15:04 MST"),
		daytime,
		agg.AvgTemperature,
		agg.AvgPrecipProb,
		agg.TotalPrecip,
	)
}
