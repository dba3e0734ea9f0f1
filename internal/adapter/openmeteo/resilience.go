package openmeteo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// backoffConfig controls exponential backoff between retries.
type backoffConfig struct {
	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration
}

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
	errCircuitOpen = errors.New("circuit breaker open")
)

// doRequestWithResilience executes the request with retries, exponential
// backoff, and a circuit breaker. Rate limits and 5xx responses are retried;
// other non-2xx statuses fail immediately.
func doRequestWithResilience(
	ctx context.Context,
	client *http.Client,
	backoff backoffConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, int, error) {
	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, attempt, err
		}
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				return nil, errRateLimited
			}
			if resp.StatusCode >= 500 {
				resp.Body.Close()
				return nil, errServerError
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}

			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, attempt + 1, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, attempt + 1, nil
		}

		// An open circuit fails fast; retrying would only keep it open.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, attempt + 1, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		// Client-side 4xx responses (other than 429) are not transient.
		if errors.Is(err, errUnexpected) {
			return nil, attempt + 1, err
		}

		lastErr = err
		if attempt >= backoff.maxRetries {
			return nil, attempt + 1, lastErr
		}

		delay := backoff.initialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if backoff.maxInterval > 0 && delay > backoff.maxInterval {
			delay = backoff.maxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt + 1, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}
