package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-monitor/internal/common"
	"github.com/i474232898/weather-monitor/internal/weather"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

// NewHTTPClientConfig returns the default resilience settings around client.
func NewHTTPClientConfig(client *http.Client, maxRetries int) HTTPClientConfig {
	return HTTPClientConfig{
		Client: client,
		Backoff: BackoffConfig{
			MaxRetries:      maxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}
}

var (
	errRateLimited   = fmt.Errorf("%w: rate limited", weather.ErrTransientSource)
	errServerError   = fmt.Errorf("%w: server error", weather.ErrTransientSource)
	errCircuitOpen   = fmt.Errorf("%w: circuit breaker open", weather.ErrTransientSource)
	errUnexpected    = fmt.Errorf("%w: unexpected status code", weather.ErrPermanentSource)
	errNoHTTPClient  = fmt.Errorf("%w: http client not configured", weather.ErrPermanentSource)
	errInvalidConfig = fmt.Errorf("%w: invalid backoff configuration", weather.ErrPermanentSource)
	errNoAPIKey      = fmt.Errorf("%w: api key is not configured", weather.ErrPermanentSource)
)

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// rejected requests say nothing about the provider's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, weather.ErrPermanentSource)
		},
	})
}

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker. Returned errors wrap weather.ErrTransientSource or
// weather.ErrPermanentSource; permanent failures are not retried.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", weather.ErrTransientSource, ctx.Err())
		}

		req, err := buildRequest()
		if err != nil {
			return nil, fmt.Errorf("%w: build request: %v", weather.ErrPermanentSource, err)
		}

		// Ensure the request obeys context cancellation.
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, fmt.Errorf("%w: %v", weather.ErrTransientSource, execErr)
			}

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}
			drainAndClose(resp.Body)

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				return nil, errRateLimited
			case resp.StatusCode >= 500:
				return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
			default:
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("%w: unexpected result type from circuit breaker", weather.ErrPermanentSource)
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		if errors.Is(err, weather.ErrPermanentSource) {
			return nil, err
		}

		lastErr = err
		if attempt >= cfg.Backoff.MaxRetries {
			return nil, lastErr
		}

		// Backoff with exponential delay.
		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %v", weather.ErrTransientSource, ctx.Err())
		case <-timer.C:
		}

		attempt++
	}
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4<<10))
	_ = body.Close()
}

// todayOnly keeps the records that fall on now's calendar day, ordered by time.
func todayOnly(records []weather.Record, now time.Time) []weather.Record {
	out := records[:0]
	for _, r := range records {
		if common.WithinDay(r.Time, now) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// precipitationInterval is the span one stored rain reading covers, the step of the
// Open-Meteo minutely_15 series.
const precipitationInterval = 15 * time.Minute

// rainPerInterval spreads a rain total measured over span evenly onto precipitationInterval.
func rainPerInterval(total *float64, span time.Duration) *float64 {
	if total == nil || span <= 0 {
		return total
	}
	v := *total * float64(precipitationInterval) / float64(span)
	return &v
}

func clockOrSystem(c weather.Clock) weather.Clock {
	if c == nil {
		return weather.SystemClock{}
	}
	return c
}

func decodeError(provider string, err error) error {
	return fmt.Errorf("%w: decode %s response: %v", weather.ErrPermanentSource, provider, err)
}
